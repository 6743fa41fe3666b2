package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config holds application configuration.
type Config struct {
	HTTPAddress string
	// Optional shared secret protecting the mutating API routes.
	AuthPassword string

	AssemblyAIKey string

	CerebrasKey     string
	CerebrasModelID string

	// Speech output provider: "elevenlabs" (default) or "deepgram".
	SpeechProvider    string
	ElevenLabsKey     string
	ElevenLabsVoiceID string
	DeepgramKey       string
	DeepgramModel     string

	SupabaseURL   string
	SupabaseKey   string
	TurnLogTable  string
	ICEServersJSON string

	// Engine warm-up before the recognition stream is opened.
	WarmUpDelay time.Duration
	// Partial transcripts inside this window after open are dropped (engine noise).
	PartialGraceWindow time.Duration
	// Pause after every playback before the coordinator frees the audio device.
	SpeechSettleDelay time.Duration

	// Speak translations aloud automatically after a successful translate cycle.
	AutoSpeakTranslations bool
}

// Load reads environment variables and returns Config with sane defaults.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file found, using process environment")
	}

	addr := os.Getenv("HTTP_ADDRESS")
	if addr == "" {
		addr = ":8080"
	}

	assemblyAIKey := os.Getenv("ASSEMBLYAI_API_KEY")
	if assemblyAIKey == "" {
		log.Warn().Msg("ASSEMBLYAI_API_KEY not set - speech recognition will not work")
	}

	cerebrasKey := os.Getenv("CEREBRAS_API_KEY")
	cerebrasModel := os.Getenv("CEREBRAS_MODEL_ID")
	if cerebrasModel == "" {
		cerebrasModel = "llama-4-maverick-17b-128e-instruct"
	}
	if cerebrasKey == "" {
		log.Warn().Msg("CEREBRAS_API_KEY not set - translation will not work")
	}

	provider := os.Getenv("SPEECH_PROVIDER")
	if provider == "" {
		provider = "elevenlabs"
	}
	elevenKey := os.Getenv("ELEVENLABS_API_KEY")
	voiceID := os.Getenv("ELEVENLABS_VOICE_ID")
	deepgramKey := os.Getenv("DEEPGRAM_API_KEY")
	deepgramModel := os.Getenv("DEEPGRAM_TTS_MODEL")
	if provider == "elevenlabs" && elevenKey == "" {
		log.Warn().Msg("ELEVENLABS_API_KEY not set - speech output will not work")
	}
	if provider == "deepgram" && deepgramKey == "" {
		log.Warn().Msg("DEEPGRAM_API_KEY not set - speech output will not work")
	}

	supabaseURL := os.Getenv("SUPABASE_URL")
	supabaseKey := os.Getenv("SUPABASE_SERVICE_ROLE_KEY")
	if supabaseURL == "" || supabaseKey == "" {
		log.Warn().Msg("SUPABASE_URL / SUPABASE_SERVICE_ROLE_KEY not set - turns will not be persisted")
	}
	turnTable := os.Getenv("TURN_LOG_TABLE")
	if turnTable == "" {
		turnTable = "conversation_turns"
	}

	iceServers := os.Getenv("ICE_SERVERS_JSON")
	if iceServers == "" {
		iceServers = `[{"urls":["stun:stun.l.google.com:19302"]}]`
	}

	cfg := Config{
		HTTPAddress:           addr,
		AuthPassword:          os.Getenv("AUTH_PASSWORD"),
		AssemblyAIKey:         assemblyAIKey,
		CerebrasKey:           cerebrasKey,
		CerebrasModelID:       cerebrasModel,
		SpeechProvider:        provider,
		ElevenLabsKey:         elevenKey,
		ElevenLabsVoiceID:     voiceID,
		DeepgramKey:           deepgramKey,
		DeepgramModel:         deepgramModel,
		SupabaseURL:           supabaseURL,
		SupabaseKey:           supabaseKey,
		TurnLogTable:          turnTable,
		ICEServersJSON:        iceServers,
		WarmUpDelay:           durationEnv("SESSION_WARMUP_MS", 300*time.Millisecond),
		PartialGraceWindow:    durationEnv("PARTIAL_GRACE_MS", 200*time.Millisecond),
		SpeechSettleDelay:     durationEnv("SPEECH_SETTLE_MS", 400*time.Millisecond),
		AutoSpeakTranslations: boolEnv("AUTO_SPEAK_TRANSLATIONS", true),
	}

	log.Info().Str("http_address", cfg.HTTPAddress).Str("speech_provider", cfg.SpeechProvider).Msg("config loaded")
	return cfg
}

// durationEnv parses an env var holding milliseconds, falling back to def.
func durationEnv(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	ms, err := strconv.Atoi(v)
	if err != nil || ms < 0 {
		log.Warn().Str("key", key).Str("value", v).Msg("invalid duration env, using default")
		return def
	}
	return time.Duration(ms) * time.Millisecond
}

func boolEnv(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Msg("invalid bool env, using default")
		return def
	}
	return b
}
