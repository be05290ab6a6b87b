package call

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sawt-ai/sawt/internal/silence"
)

type scriptedSubmitter struct {
	mu         sync.Mutex
	greeting   TurnResult
	turnResult TurnResult
	turnErr    error
	endResult  EndResult
	turnClips  [][]byte
	endCalls   int
}

func (s *scriptedSubmitter) Greeting(context.Context, string) (TurnResult, error) {
	return s.greeting, nil
}

func (s *scriptedSubmitter) SubmitTurn(_ context.Context, _ string, clip []byte, sent func()) (TurnResult, error) {
	sent()
	s.mu.Lock()
	s.turnClips = append(s.turnClips, clip)
	res, err := s.turnResult, s.turnErr
	s.mu.Unlock()
	return res, err
}

func (s *scriptedSubmitter) EndCall(context.Context, string) (EndResult, error) {
	s.mu.Lock()
	s.endCalls++
	s.mu.Unlock()
	return s.endResult, nil
}

func (s *scriptedSubmitter) clips() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.turnClips...)
}

type manualPlayer struct {
	mu     sync.Mutex
	played [][]byte
	onDone func()
	stops  int
	muted  bool
}

func (p *manualPlayer) SetMuted(muted bool) {
	p.mu.Lock()
	p.muted = muted
	p.mu.Unlock()
}

func (p *manualPlayer) Play(clip []byte, onDone func()) {
	p.mu.Lock()
	p.played = append(p.played, clip)
	p.onDone = onDone
	p.mu.Unlock()
}

func (p *manualPlayer) Stop() {
	p.mu.Lock()
	p.stops++
	p.mu.Unlock()
}

func (p *manualPlayer) finish() {
	p.mu.Lock()
	done := p.onDone
	p.onDone = nil
	p.mu.Unlock()
	if done != nil {
		done()
	}
}

func (p *manualPlayer) playCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.played)
}

func (p *manualPlayer) stopCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stops
}

func loopConfig() silence.Config {
	cfg := silence.DefaultConfig()
	cfg.StopWindow = 30 * time.Millisecond
	return cfg
}

// loudPCM builds n 10ms frames of speech-level PCM16 at 16kHz (320 bytes per
// frame).
func loudPCM(n int) []byte {
	const samplesPerFrame = 160
	out := make([]byte, n*samplesPerFrame*2)
	for i := 0; i < n*samplesPerFrame; i++ {
		binary.LittleEndian.PutUint16(out[i*2:i*2+2], uint16(int16(4000)))
	}
	return out
}

func quietPCM(n int) []byte {
	const samplesPerFrame = 160
	return make([]byte, n*samplesPerFrame*2)
}

func waitState(t *testing.T, o *Orchestrator, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if o.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("state = %q, want %q", o.State(), want)
}

// waitRecording blocks until the loop has opened a take for the current
// utterance.
func waitClips(t *testing.T, sub *scriptedSubmitter, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(sub.clips()) == n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("submitted clips = %d, want %d", len(sub.clips()), n)
}

func waitRecording(t *testing.T, o *Orchestrator) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if o.recorder.Recording() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("recorder never opened a take")
}

func startedLoop(t *testing.T, sub *scriptedSubmitter, player *manualPlayer, ev OrchestratorEvents) *Orchestrator {
	t.Helper()
	o := NewOrchestrator("s1", sub, player, loopConfig(), ev, nil)
	o.Start(context.Background())
	t.Cleanup(func() {
		o.End()
		select {
		case <-o.Done():
		case <-time.After(2 * time.Second):
			t.Error("loop did not shut down")
		}
	})
	return o
}

func TestOrchestrator_GreetingThenListening(t *testing.T) {
	sub := &scriptedSubmitter{greeting: TurnResult{Audio: []byte("greeting-audio")}}
	player := &manualPlayer{}
	o := startedLoop(t, sub, player, OrchestratorEvents{})

	waitState(t, o, StateSpeaking)
	if player.playCount() != 1 {
		t.Fatalf("plays = %d", player.playCount())
	}
	player.finish()
	waitState(t, o, StateListening)
}

func TestOrchestrator_FullTurnCycle(t *testing.T) {
	sub := &scriptedSubmitter{
		greeting:   TurnResult{Audio: []byte("greeting")},
		turnResult: TurnResult{Audio: []byte("reply-audio")},
	}
	player := &manualPlayer{}

	var mu sync.Mutex
	var transitions []State
	o := startedLoop(t, sub, player, OrchestratorEvents{
		OnStateChange: func(_, to State) {
			mu.Lock()
			transitions = append(transitions, to)
			mu.Unlock()
		},
	})

	waitState(t, o, StateSpeaking)
	player.finish()
	waitState(t, o, StateListening)

	// Speak long enough for a real clip, then go quiet.
	o.FeedPCM16(loudPCM(2))
	waitRecording(t, o)
	o.FeedPCM16(loudPCM(5))
	o.FeedPCM16(quietPCM(4))

	waitState(t, o, StateSpeaking)
	clips := sub.clips()
	if len(clips) != 1 {
		t.Fatalf("submitted clips = %d", len(clips))
	}
	if len(clips[0]) < 1500 {
		t.Fatalf("clip size = %d, too small to have been submitted", len(clips[0]))
	}
	player.finish()
	waitState(t, o, StateListening)

	mu.Lock()
	defer mu.Unlock()
	want := []State{StateGreeting, StateSpeaking, StateListening, StateTranscribing, StateThinking, StateSpeaking, StateListening}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Fatalf("transitions = %v, want %v", transitions, want)
		}
	}
}

func TestOrchestrator_ShortClipResumesListening(t *testing.T) {
	sub := &scriptedSubmitter{}
	player := &manualPlayer{}
	o := startedLoop(t, sub, player, OrchestratorEvents{})

	waitState(t, o, StateListening)

	// One loud frame opens the take; total audio stays under the clip floor.
	o.FeedPCM16(loudPCM(1))
	waitRecording(t, o)
	o.FeedPCM16(quietPCM(4))

	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) {
		if st := o.State(); st != StateListening {
			t.Fatalf("state = %q, short clip must not leave LISTENING", st)
		}
		time.Sleep(5 * time.Millisecond)
	}
	if len(sub.clips()) != 0 {
		t.Fatal("short clip must not be submitted")
	}

	// The detector re-armed: a real utterance still goes through.
	o.FeedPCM16(loudPCM(1))
	waitRecording(t, o)
	o.FeedPCM16(loudPCM(6))
	o.FeedPCM16(quietPCM(4))
	waitClips(t, sub, 1)
}

func TestOrchestrator_BargeInStopsPlayback(t *testing.T) {
	sub := &scriptedSubmitter{greeting: TurnResult{Audio: []byte("long greeting")}}
	player := &manualPlayer{}
	o := startedLoop(t, sub, player, OrchestratorEvents{})

	waitState(t, o, StateSpeaking)

	// Caller talks over the agent.
	o.FeedPCM16(loudPCM(2))
	waitState(t, o, StateListening)
	if player.stopCount() == 0 {
		t.Fatal("barge-in must stop playback")
	}
	if !o.recorder.Recording() {
		t.Fatal("barge-in must start capturing the interruption")
	}
}

func TestOrchestrator_FailedTurnResumesListening(t *testing.T) {
	sub := &scriptedSubmitter{turnErr: errors.New("server down")}
	player := &manualPlayer{}
	o := startedLoop(t, sub, player, OrchestratorEvents{})

	waitState(t, o, StateListening)
	o.FeedPCM16(loudPCM(1))
	waitRecording(t, o)
	o.FeedPCM16(loudPCM(6))
	o.FeedPCM16(quietPCM(4))

	waitClips(t, sub, 1)
	waitState(t, o, StateListening)
}

func TestOrchestrator_MuteLeavesStateAlone(t *testing.T) {
	sub := &scriptedSubmitter{greeting: TurnResult{Audio: []byte("greeting")}}
	player := &manualPlayer{}
	o := startedLoop(t, sub, player, OrchestratorEvents{})

	waitState(t, o, StateSpeaking)
	o.SetMuted(true)

	player.mu.Lock()
	muted := player.muted
	player.mu.Unlock()
	if !muted {
		t.Fatal("mute must reach the player")
	}
	if o.State() != StateSpeaking {
		t.Fatalf("state = %q, mute must not change state", o.State())
	}

	// Playback still completes and the loop still advances while muted.
	player.finish()
	waitState(t, o, StateListening)
}

func TestOrchestrator_EndIsTerminalAndSummarizesOnce(t *testing.T) {
	sub := &scriptedSubmitter{endResult: EndResult{Summary: "the summary"}}
	player := &manualPlayer{}

	var mu sync.Mutex
	var summaries []string
	o := NewOrchestrator("s1", sub, player, loopConfig(), OrchestratorEvents{
		OnSummary: func(s string) {
			mu.Lock()
			summaries = append(summaries, s)
			mu.Unlock()
		},
	}, nil)
	o.Start(context.Background())

	waitState(t, o, StateListening)
	o.End()
	o.End()

	select {
	case <-o.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not shut down")
	}
	if o.State() != StateEnded {
		t.Fatalf("state = %q", o.State())
	}

	mu.Lock()
	defer mu.Unlock()
	if len(summaries) != 1 || summaries[0] != "the summary" {
		t.Fatalf("summaries = %v, want exactly one", summaries)
	}
	if sub.endCalls != 1 {
		t.Fatalf("end calls = %d", sub.endCalls)
	}
}
