// Package config loads application settings from the environment (and an
// optional .env file) into one struct.
package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds everything the server needs to start. Provider keys are
// optional: a missing key disables that provider and lands in Warnings.
type Config struct {
	HTTPAddress string `mapstructure:"http_address"`

	AssemblyAIKey string `mapstructure:"assemblyai_api_key"`

	LLMBackend string `mapstructure:"llm_backend"` // openai or gemini
	LLMModel   string `mapstructure:"llm_model"`
	OpenAIKey  string `mapstructure:"openai_api_key"`
	GeminiKey  string `mapstructure:"gemini_api_key"`

	TTSBackend    string `mapstructure:"tts_backend"` // openai, elevenlabs or deepgram
	TTSModel      string `mapstructure:"tts_model"`
	DeepgramKey   string `mapstructure:"deepgram_api_key"`
	ElevenLabsKey string `mapstructure:"elevenlabs_api_key"`

	SupabaseURL        string `mapstructure:"supabase_url"`
	SupabaseServiceKey string `mapstructure:"supabase_service_role_key"`
	SupabaseClipBucket string `mapstructure:"supabase_clip_bucket"`

	TwilioAccountSID string `mapstructure:"twilio_account_sid"`
	TwilioAuthToken  string `mapstructure:"twilio_auth_token"`
	TwilioAgent      string `mapstructure:"twilio_agent"`

	ArchivePath string `mapstructure:"archive_path"`
	AgentsFile  string `mapstructure:"agents_file"`

	Debug   bool `mapstructure:"debug"`
	LogJSON bool `mapstructure:"log_json"`

	// Warnings lists capabilities disabled by missing keys. Informational;
	// the caller decides whether to log or refuse to start.
	Warnings []string `mapstructure:"-"`
}

var keys = []string{
	"http_address",
	"assemblyai_api_key",
	"llm_backend", "llm_model", "openai_api_key", "gemini_api_key",
	"tts_backend", "tts_model", "deepgram_api_key", "elevenlabs_api_key",
	"supabase_url", "supabase_service_role_key", "supabase_clip_bucket",
	"twilio_account_sid", "twilio_auth_token", "twilio_agent",
	"archive_path", "agents_file",
	"debug", "log_json",
}

// Load reads a .env file when present, then the environment, and returns a
// Config with defaults applied.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetDefault("http_address", ":8080")
	v.SetDefault("llm_backend", "openai")
	v.SetDefault("tts_backend", "openai")
	v.SetDefault("archive_path", "calls.db")
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return Config{}, fmt.Errorf("config: bind %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	cfg.Warnings = warnings(cfg)
	return cfg, nil
}

func warnings(cfg Config) []string {
	var w []string
	if cfg.AssemblyAIKey == "" {
		w = append(w, "ASSEMBLYAI_API_KEY not set, transcription disabled")
	}
	switch cfg.LLMBackend {
	case "openai":
		if cfg.OpenAIKey == "" {
			w = append(w, "OPENAI_API_KEY not set, dialogue and extraction disabled")
		}
	case "gemini":
		if cfg.GeminiKey == "" {
			w = append(w, "GEMINI_API_KEY not set, dialogue and extraction disabled")
		}
	}
	switch cfg.TTSBackend {
	case "openai":
		if cfg.OpenAIKey == "" {
			w = append(w, "OPENAI_API_KEY not set, speech synthesis disabled")
		}
	case "elevenlabs":
		if cfg.ElevenLabsKey == "" {
			w = append(w, "ELEVENLABS_API_KEY not set, speech synthesis disabled")
		}
	case "deepgram":
		if cfg.DeepgramKey == "" {
			w = append(w, "DEEPGRAM_API_KEY not set, speech synthesis disabled")
		}
	}
	if cfg.SupabaseURL == "" || cfg.SupabaseServiceKey == "" {
		w = append(w, "SUPABASE_URL/SUPABASE_SERVICE_ROLE_KEY not set, persistence disabled")
	}
	if cfg.TwilioAccountSID == "" || cfg.TwilioAuthToken == "" {
		w = append(w, "TWILIO_ACCOUNT_SID/TWILIO_AUTH_TOKEN not set, phone entry point disabled")
	}
	return w
}

// Validate rejects configurations the server cannot run with at all.
func (c Config) Validate() error {
	switch c.LLMBackend {
	case "openai", "gemini":
	default:
		return fmt.Errorf("config: unknown llm backend %q", c.LLMBackend)
	}
	switch c.TTSBackend {
	case "openai", "elevenlabs", "deepgram":
	default:
		return fmt.Errorf("config: unknown tts backend %q", c.TTSBackend)
	}
	return nil
}
