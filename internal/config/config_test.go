package config

import (
	"testing"
	"time"
)

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"ASSEMBLYAI_API_KEY",
		"ASSEMBLYAI_REALTIME_URL",
		"ASR_RECONNECT_DELAY",
		"ASR_MAX_RECONNECT_ATTEMPTS",
		"TTS_ENDPOINT_URL",
		"TTS_REQUEST_TIMEOUT",
		"TTS_DEFAULT_VOICE_ID",
		"MURF_API_KEY",
		"MURF_API_URL",
		"MURF_FETCH_TIMEOUT",
		"LOCAL_TTS_COMMAND",
		"CALL_RESUME_LISTEN_DELAY",
		"CALL_DEDUP_WINDOW",
		"CALL_GREETING",
		"CALL_SYSTEM_PROMPT",
		"CALL_DOCTOR_ID",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.BindAddr != ":8080" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":8080")
	}
	if cfg.ReconnectDelay != 2*time.Second {
		t.Fatalf("ReconnectDelay = %v, want 2s", cfg.ReconnectDelay)
	}
	if cfg.MaxReconnectAttempts != 5 {
		t.Fatalf("MaxReconnectAttempts = %d, want 5", cfg.MaxReconnectAttempts)
	}
	if cfg.ResumeListenDelay != 500*time.Millisecond {
		t.Fatalf("ResumeListenDelay = %v, want 500ms", cfg.ResumeListenDelay)
	}
	if cfg.DedupWindow != time.Second {
		t.Fatalf("DedupWindow = %v, want 1s", cfg.DedupWindow)
	}
	if cfg.DefaultVoiceID != "natalie" {
		t.Fatalf("DefaultVoiceID = %q, want %q", cfg.DefaultVoiceID, "natalie")
	}
	if cfg.LocalTTSCommand != "espeak-ng" {
		t.Fatalf("LocalTTSCommand = %q, want %q", cfg.LocalTTSCommand, "espeak-ng")
	}
}

func TestLoadOverrides(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("ASR_RECONNECT_DELAY", "250ms")
	t.Setenv("ASR_MAX_RECONNECT_ATTEMPTS", "3")
	t.Setenv("CALL_DOCTOR_ID", "7")
	t.Setenv("ASSEMBLYAI_API_KEY", "  secret  ")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ReconnectDelay != 250*time.Millisecond {
		t.Fatalf("ReconnectDelay = %v, want 250ms", cfg.ReconnectDelay)
	}
	if cfg.MaxReconnectAttempts != 3 {
		t.Fatalf("MaxReconnectAttempts = %d, want 3", cfg.MaxReconnectAttempts)
	}
	if cfg.DoctorID != 7 {
		t.Fatalf("DoctorID = %d, want 7", cfg.DoctorID)
	}
	if cfg.AssemblyAIAPIKey != "secret" {
		t.Fatalf("AssemblyAIAPIKey = %q, want trimmed value", cfg.AssemblyAIAPIKey)
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("ASR_RECONNECT_DELAY", "soon")

	if _, err := Load(); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadRejectsNonPositiveAttempts(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("ASR_MAX_RECONNECT_ATTEMPTS", "0")

	if _, err := Load(); err == nil {
		t.Fatal("expected validation error")
	}
}
