package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/sawt-ai/sawt/internal/agents"
	"github.com/sawt-ai/sawt/internal/archive"
	"github.com/sawt-ai/sawt/internal/call"
	"github.com/sawt-ai/sawt/internal/config"
	"github.com/sawt-ai/sawt/internal/dialogue"
	"github.com/sawt-ai/sawt/internal/extract"
	"github.com/sawt-ai/sawt/internal/interview"
	"github.com/sawt-ai/sawt/internal/llm"
	"github.com/sawt-ai/sawt/internal/logger"
	"github.com/sawt-ai/sawt/internal/persist"
	"github.com/sawt-ai/sawt/internal/server"
	"github.com/sawt-ai/sawt/internal/stt"
	"github.com/sawt-ai/sawt/internal/telephony"
	"github.com/sawt-ai/sawt/internal/tts"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the interview server",
	Run: func(cmd *cobra.Command, _ []string) {
		serve(cmd)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("address", "a", "", "listen address (overrides HTTP_ADDRESS)")
}

func serve(cmd *cobra.Command) {
	ctx := context.Background()

	zl, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}
	defer func() { _ = zl.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		zl.Fatal("loading config", zap.Error(err))
	}
	if addr := cmd.Flag("address").Value.String(); addr != "" {
		cfg.HTTPAddress = addr
	}
	if err := cfg.Validate(); err != nil {
		zl.Fatal("validating config", zap.Error(err))
	}
	for _, w := range cfg.Warnings {
		zl.Warn(w)
	}

	zl.Info("starting sawt", zap.String("version", version), zap.String("address", cfg.HTTPAddress))

	store := interview.NewStore(interview.DefaultSessionTTL)
	defer store.Close()

	registry := agents.NewRegistry()
	if cfg.AgentsFile != "" {
		if err := registry.LoadOverridesFile(cfg.AgentsFile); err != nil {
			zl.Fatal("loading agent overrides", zap.String("path", cfg.AgentsFile), zap.Error(err))
		}
		zl.Info("loaded agent overrides", zap.String("path", cfg.AgentsFile))
	}

	chat, err := newChatClient(ctx, cfg)
	if err != nil {
		zl.Fatal("building chat client", zap.Error(err))
	}

	hub := server.NewHub(zl)
	extractor := extract.NewExtractor(chat, zl)

	svcCfg := call.TurnServiceConfig{
		Store:     store,
		Registry:  registry,
		STT:       stt.New(cfg.AssemblyAIKey, zl),
		Dialog:    dialogue.NewEngine(chat, zl),
		Extractor: extractor,
		TTS:       newSynthesizer(cfg),
		Events:    hub,
		Logger:    zl,
	}

	var onboardWriter call.CandidateWriter
	if cfg.SupabaseURL != "" && cfg.SupabaseServiceKey != "" {
		ps, err := persist.New(persist.Config{
			URL:            cfg.SupabaseURL,
			ServiceRoleKey: cfg.SupabaseServiceKey,
			ClipBucket:     cfg.SupabaseClipBucket,
		}, zl)
		if err != nil {
			zl.Fatal("building supabase store", zap.Error(err))
		}
		svcCfg.Persist = ps
		onboardWriter = ps
	}

	if cfg.ArchivePath != "" {
		ar, err := archive.Open(cfg.ArchivePath)
		if err != nil {
			zl.Fatal("opening call archive", zap.String("path", cfg.ArchivePath), zap.Error(err))
		}
		defer func() { _ = ar.Close() }()
		svcCfg.Archive = ar
	}

	svc := call.NewTurnService(svcCfg)

	srv := server.New(svc, hub, zl)
	srv.Onboarding = call.NewOnboardService(extractor, onboardWriter, zl)
	e := srv.NewEcho()

	if cfg.TwilioAccountSID != "" && cfg.TwilioAuthToken != "" {
		e.Use(telephony.Auth(func() string { return cfg.TwilioAuthToken }))
		telephony.NewHandlers(telephony.Config{
			AccountSID: cfg.TwilioAccountSID,
			AuthToken:  cfg.TwilioAuthToken,
			Agent:      cfg.TwilioAgent,
		}, svc, zl).Register(e)
		zl.Info("phone entry point enabled", zap.String("agent", cfg.TwilioAgent))
	}

	go func() {
		if err := e.Start(cfg.HTTPAddress); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("http server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zl.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		zl.Error("shutdown", zap.Error(err))
	}
}

func newChatClient(ctx context.Context, cfg config.Config) (llm.Client, error) {
	switch cfg.LLMBackend {
	case "gemini":
		return llm.NewGeminiClient(ctx, cfg.GeminiKey, cfg.LLMModel)
	case "openai":
		return llm.NewOpenAIClient(cfg.OpenAIKey, cfg.LLMModel), nil
	default:
		return nil, fmt.Errorf("unknown llm backend %q", cfg.LLMBackend)
	}
}

func newSynthesizer(cfg config.Config) tts.Synthesizer {
	switch cfg.TTSBackend {
	case "elevenlabs":
		return tts.NewElevenLabsClient(cfg.ElevenLabsKey)
	case "deepgram":
		return tts.NewDeepgramClient(cfg.DeepgramKey, cfg.TTSModel)
	default:
		return tts.NewOpenAIClient(cfg.OpenAIKey, cfg.TTSModel)
	}
}
