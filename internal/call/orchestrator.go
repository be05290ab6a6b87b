package call

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/sawt-ai/sawt/internal/silence"
	"github.com/sawt-ai/sawt/internal/turn"
)

// State is the client loop's lifecycle state.
type State string

const (
	StateIdle         State = "IDLE"
	StateGreeting     State = "GREETING"
	StateListening    State = "LISTENING"
	StateTranscribing State = "TRANSCRIBING"
	StateThinking     State = "THINKING"
	StateSpeaking     State = "SPEAKING"
	StateEnded        State = "ENDED"
)

// Submitter is the client's view of the turn service. sent fires once the
// clip has been handed off, marking the transcription/thinking boundary.
type Submitter interface {
	Greeting(ctx context.Context, sessionKey string) (TurnResult, error)
	SubmitTurn(ctx context.Context, sessionKey string, clip []byte, sent func()) (TurnResult, error)
	EndCall(ctx context.Context, sessionKey string) (EndResult, error)
}

// Player renders assistant audio. Play must not block; onDone fires when the
// clip finishes or Stop cuts it off.
type Player interface {
	Play(clip []byte, onDone func())
	Stop()
}

// Muter is implemented by players that can silence output while keeping
// playback running.
type Muter interface {
	SetMuted(muted bool)
}

// OrchestratorEvents are the loop's outward callbacks. All fire on the loop
// goroutine.
type OrchestratorEvents struct {
	OnStateChange func(from, to State)
	OnSummary     func(summary string)
}

type eventKind int

const (
	evSpeechStart eventKind = iota
	evSpeechStop
	evGreetingResult
	evClipSent
	evTurnDone
	evPlaybackDone
	evEnd
)

type loopEvent struct {
	kind eventKind
	res  TurnResult
	err  error
}

// Orchestrator is the client-side loop: it owns the silence detector and the
// clip recorder and serializes every transition through a single event
// queue, so there is exactly one writer of the state.
type Orchestrator struct {
	sessionKey string
	submitter  Submitter
	player     Player
	ev         OrchestratorEvents
	logger     *zap.Logger

	detector *silence.Detector
	recorder *turn.Recorder

	events chan loopEvent
	done   chan struct{}
	cancel context.CancelFunc

	mu    sync.Mutex
	state State

	endOnce sync.Once
}

// NewOrchestrator builds a loop for one session. cfg tunes the silence
// detector; pass silence.DefaultConfig() for the stock thresholds.
func NewOrchestrator(sessionKey string, submitter Submitter, player Player, cfg silence.Config, ev OrchestratorEvents, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	o := &Orchestrator{
		sessionKey: sessionKey,
		submitter:  submitter,
		player:     player,
		ev:         ev,
		logger:     log,
		recorder:   turn.NewRecorder(),
		events:     make(chan loopEvent, 64),
		done:       make(chan struct{}),
		state:      StateIdle,
	}
	o.detector = silence.NewDetector(cfg, silence.Events{
		OnSpeechStart: func() { o.push(loopEvent{kind: evSpeechStart}) },
		OnSpeechStop:  func() { o.push(loopEvent{kind: evSpeechStop}) },
	})
	return o
}

// State reports the current loop state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Start begins the call: the loop requests the agent's greeting and runs
// until End. Start returns immediately.
func (o *Orchestrator) Start(ctx context.Context) {
	ctx, o.cancel = context.WithCancel(ctx)
	go o.run(ctx)
	o.setState(StateGreeting)
	go func() {
		res, err := o.submitter.Greeting(ctx, o.sessionKey)
		o.push(loopEvent{kind: evGreetingResult, res: res, err: err})
	}()
}

// FeedPCM16 accepts live mic audio. Safe to call from the capture goroutine;
// audio is buffered by the recorder while a take is open and drives the
// silence detector at all times.
func (o *Orchestrator) FeedPCM16(pcm []byte) {
	o.recorder.Write(pcm)
	o.detector.FeedPCM16(pcm)
}

// End hangs up. It cancels any recording or playback, closes the session on
// the server and emits the summary exactly once. Terminal.
func (o *Orchestrator) End() {
	o.push(loopEvent{kind: evEnd})
}

// SetMuted silences assistant playback. Orthogonal to the loop: recording
// and state transitions are untouched, only what the player renders changes.
// A no-op for players that cannot mute.
func (o *Orchestrator) SetMuted(muted bool) {
	if m, ok := o.player.(Muter); ok {
		m.SetMuted(muted)
	}
}

// Done closes when the loop has fully shut down.
func (o *Orchestrator) Done() <-chan struct{} { return o.done }

func (o *Orchestrator) push(ev loopEvent) {
	select {
	case o.events <- ev:
	case <-o.done:
	}
}

func (o *Orchestrator) setState(to State) {
	o.mu.Lock()
	from := o.state
	o.state = to
	o.mu.Unlock()
	if from != to && o.ev.OnStateChange != nil {
		o.ev.OnStateChange(from, to)
	}
}

func (o *Orchestrator) run(ctx context.Context) {
	for ev := range o.events {
		if o.handle(ctx, ev) {
			return
		}
	}
}

// handle applies one event. Returns true when the loop is finished.
func (o *Orchestrator) handle(ctx context.Context, ev loopEvent) bool {
	state := o.State()
	switch ev.kind {
	case evGreetingResult:
		if state != StateGreeting {
			return false
		}
		if ev.err != nil || len(ev.res.Audio) == 0 {
			if ev.err != nil {
				o.logger.Warn("greeting failed, listening anyway", zap.Error(ev.err))
			}
			o.listen()
			return false
		}
		o.speak(ev.res.Audio)

	case evSpeechStart:
		switch state {
		case StateSpeaking:
			// Barge-in: the caller talks over the agent. Cut playback and
			// capture the interruption from its start.
			o.player.Stop()
			o.beginTake()
			o.setState(StateListening)
		case StateListening:
			o.beginTake()
		}

	case evSpeechStop:
		if state != StateListening {
			return false
		}
		clip, ok := o.recorder.Finalize()
		if !ok || turn.TooShort(clip) {
			// Noise, not a turn. Resume listening for a real one.
			o.detector.Arm()
			return false
		}
		o.setState(StateTranscribing)
		go func() {
			res, err := o.submitter.SubmitTurn(ctx, o.sessionKey, clip, func() {
				o.push(loopEvent{kind: evClipSent})
			})
			o.push(loopEvent{kind: evTurnDone, res: res, err: err})
		}()

	case evClipSent:
		if state == StateTranscribing {
			o.setState(StateThinking)
		}

	case evTurnDone:
		if state != StateTranscribing && state != StateThinking {
			return false
		}
		if ev.err != nil {
			o.logger.Warn("turn failed, listening again", zap.Error(ev.err))
			o.listen()
			return false
		}
		if len(ev.res.Audio) == 0 {
			o.listen()
			return false
		}
		o.speak(ev.res.Audio)

	case evPlaybackDone:
		if state == StateSpeaking {
			o.listen()
		}

	case evEnd:
		o.finish(ctx)
		return true
	}
	return false
}

func (o *Orchestrator) listen() {
	o.detector.Arm()
	o.setState(StateListening)
}

func (o *Orchestrator) beginTake() {
	if err := o.recorder.Begin(); err != nil {
		// A leftover take from a barge-in; restart it cleanly.
		o.recorder.Finalize()
		_ = o.recorder.Begin()
	}
}

func (o *Orchestrator) speak(audio []byte) {
	// Armed while the agent talks so a barge-in can interrupt playback.
	o.detector.Arm()
	o.setState(StateSpeaking)
	o.player.Play(audio, func() {
		o.push(loopEvent{kind: evPlaybackDone})
	})
}

func (o *Orchestrator) finish(ctx context.Context) {
	o.endOnce.Do(func() {
		o.player.Stop()
		o.recorder.Finalize()
		o.setState(StateEnded)

		res, err := o.submitter.EndCall(ctx, o.sessionKey)
		if err != nil {
			o.logger.Warn("call end failed", zap.Error(err))
		}
		if o.ev.OnSummary != nil {
			o.ev.OnSummary(res.Summary)
		}
		if o.cancel != nil {
			o.cancel()
		}
		close(o.done)
	})
}
