package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/sawt-ai/sawt/internal/call"
	"github.com/sawt-ai/sawt/internal/client"
	"github.com/sawt-ai/sawt/internal/logger"
	"github.com/sawt-ai/sawt/internal/silence"
)

var callCmd = &cobra.Command{
	Use:   "call",
	Short: "Run a caller loop against a sawt server",
	Long: `Run the caller loop headless: raw PCM16 mono 16kHz audio is read from
stdin (pipe it from arecord, sox or ffmpeg) and assistant replies are piped
to a player command. Ends the call and prints the summary on stdin EOF.`,
	Run: func(cmd *cobra.Command, _ []string) {
		runCall(cmd)
	},
}

func init() {
	rootCmd.AddCommand(callCmd)

	callCmd.Flags().String("server", "http://localhost:8080", "sawt server base URL")
	callCmd.Flags().String("agent", "recruiter", "agent to talk to (recruiter or candidate)")
	callCmd.Flags().String("session", "", "session key (default: generated)")
	callCmd.Flags().String("job", "", "job id for recruiter intake calls")
	callCmd.Flags().String("candidate", "", "candidate id for screening calls")
	callCmd.Flags().String("player", "mpg123 -q -", "command the reply clips are piped to")
}

func runCall(cmd *cobra.Command) {
	zl, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}
	defer func() { _ = zl.Sync() }()

	flag := func(name string) string { return cmd.Flag(name).Value.String() }

	sessionKey := flag("session")
	if sessionKey == "" {
		sessionKey = fmt.Sprintf("cli-%d", os.Getpid())
	}

	c := client.New(flag("server"), flag("agent"))
	c.JobID = flag("job")
	c.CandidateID = flag("candidate")

	player, err := newExecPlayer(flag("player"))
	if err != nil {
		zl.Fatal("invalid player command", zap.Error(err))
	}

	var summary string
	var once sync.Once
	events := call.OrchestratorEvents{
		OnStateChange: func(from, to call.State) {
			zl.Debug("state", zap.String("from", string(from)), zap.String("to", string(to)))
		},
		OnSummary: func(s string) { once.Do(func() { summary = s }) },
	}

	loop := call.NewOrchestrator(sessionKey, c, player, silence.DefaultConfig(), events, zl)
	loop.Start(context.Background())

	go func() {
		buf := make([]byte, 3200) // 100ms of PCM16 mono at 16kHz
		for {
			n, err := os.Stdin.Read(buf)
			if n > 0 {
				loop.FeedPCM16(buf[:n])
			}
			if err != nil {
				loop.End()
				return
			}
		}
	}()

	<-loop.Done()
	if summary != "" {
		fmt.Println(summary)
	}
}

// execPlayer satisfies the orchestrator's Player by piping each reply clip
// to an external playback command.
type execPlayer struct {
	name string
	args []string

	mu    sync.Mutex
	cur   *exec.Cmd
	muted bool
}

// SetMuted drops clips instead of piping them to the playback command. The
// headless player has no volume control, so muted playback completes
// immediately.
func (p *execPlayer) SetMuted(muted bool) {
	p.mu.Lock()
	p.muted = muted
	p.mu.Unlock()
}

func newExecPlayer(command string) (*execPlayer, error) {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty player command")
	}
	return &execPlayer{name: parts[0], args: parts[1:]}, nil
}

func (p *execPlayer) Play(clip []byte, onDone func()) {
	p.mu.Lock()
	if p.muted {
		p.mu.Unlock()
		go onDone()
		return
	}
	cmd := exec.Command(p.name, p.args...)
	stdin, err := cmd.StdinPipe()
	if err == nil {
		err = cmd.Start()
	}
	if err != nil {
		p.mu.Unlock()
		onDone()
		return
	}
	p.cur = cmd
	p.mu.Unlock()

	go func() {
		_, _ = stdin.Write(clip)
		_ = stdin.Close()
		_ = cmd.Wait()

		p.mu.Lock()
		interrupted := p.cur != cmd
		if !interrupted {
			p.cur = nil
		}
		p.mu.Unlock()

		// A stopped playback must not re-arm listening on its own.
		if !interrupted {
			onDone()
		}
	}()
}

func (p *execPlayer) Stop() {
	p.mu.Lock()
	cmd := p.cur
	p.cur = nil
	p.mu.Unlock()
	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
}
