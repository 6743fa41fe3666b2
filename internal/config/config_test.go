package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_DefaultsAndEnv(t *testing.T) {
	os.Setenv("HTTP_ADDRESS", "")
	os.Setenv("ICE_SERVERS_JSON", "")
	os.Setenv("CEREBRAS_MODEL_ID", "")
	os.Setenv("TURN_LOG_TABLE", "")
	cfg := Load()
	if cfg.HTTPAddress == "" {
		t.Fatalf("expected default http address")
	}
	if cfg.ICEServersJSON == "" {
		t.Fatalf("expected default ice servers json")
	}
	if cfg.CerebrasModelID == "" {
		t.Fatalf("expected default cerebras model id")
	}
	if cfg.TurnLogTable == "" {
		t.Fatalf("expected default turn log table")
	}
}

func TestLoad_Tunables(t *testing.T) {
	os.Setenv("SESSION_WARMUP_MS", "150")
	os.Setenv("PARTIAL_GRACE_MS", "bogus")
	os.Setenv("AUTO_SPEAK_TRANSLATIONS", "false")
	defer func() {
		os.Unsetenv("SESSION_WARMUP_MS")
		os.Unsetenv("PARTIAL_GRACE_MS")
		os.Unsetenv("AUTO_SPEAK_TRANSLATIONS")
	}()
	cfg := Load()
	if cfg.WarmUpDelay != 150*time.Millisecond {
		t.Fatalf("warm-up: got %v", cfg.WarmUpDelay)
	}
	if cfg.PartialGraceWindow != 200*time.Millisecond {
		t.Fatalf("expected default grace window on parse error, got %v", cfg.PartialGraceWindow)
	}
	if cfg.AutoSpeakTranslations {
		t.Fatalf("expected auto speak disabled")
	}
}
