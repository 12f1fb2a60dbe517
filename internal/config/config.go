package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the voice-call engine and the
// synthesis proxy.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AssemblyAIAPIKey      string
	AssemblyAIRealtimeURL string
	ReconnectDelay        time.Duration
	MaxReconnectAttempts  int

	TTSEndpointURL    string
	TTSRequestTimeout time.Duration
	DefaultVoiceID    string

	MurfAPIKey       string
	MurfAPIURL       string
	MurfFetchTimeout time.Duration

	LocalTTSCommand string

	ResumeListenDelay time.Duration
	DedupWindow       time.Duration

	DefaultGreeting string
	SystemPrompt    string
	DoctorID        int
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "voicecall"),

		AssemblyAIAPIKey:      envTrimmed("ASSEMBLYAI_API_KEY"),
		AssemblyAIRealtimeURL: envOrDefault("ASSEMBLYAI_REALTIME_URL", "wss://api.assemblyai.com/v2/realtime/ws?sample_rate=16000"),

		TTSEndpointURL: envOrDefault("TTS_ENDPOINT_URL", "http://localhost:8080/v1/tts"),
		DefaultVoiceID: envOrDefault("TTS_DEFAULT_VOICE_ID", "natalie"),

		MurfAPIKey: envTrimmed("MURF_API_KEY"),
		MurfAPIURL: envOrDefault("MURF_API_URL", "https://api.murf.ai/v1/speech/generate-with-key"),

		LocalTTSCommand: envOrDefault("LOCAL_TTS_COMMAND", "espeak-ng"),

		DefaultGreeting: envOrDefault("CALL_GREETING", "Hello, I am your AI medical assistant. How can I help you today?"),
		SystemPrompt:    envTrimmed("CALL_SYSTEM_PROMPT"),

		ShutdownTimeout:      15 * time.Second,
		ReconnectDelay:       2 * time.Second,
		MaxReconnectAttempts: 5,
		TTSRequestTimeout:    15 * time.Second,
		MurfFetchTimeout:     10 * time.Second,
		ResumeListenDelay:    500 * time.Millisecond,
		DedupWindow:          time.Second,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ReconnectDelay, err = durationFromEnv("ASR_RECONNECT_DELAY", cfg.ReconnectDelay)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxReconnectAttempts, err = intFromEnv("ASR_MAX_RECONNECT_ATTEMPTS", cfg.MaxReconnectAttempts)
	if err != nil {
		return Config{}, err
	}
	cfg.TTSRequestTimeout, err = durationFromEnv("TTS_REQUEST_TIMEOUT", cfg.TTSRequestTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.MurfFetchTimeout, err = durationFromEnv("MURF_FETCH_TIMEOUT", cfg.MurfFetchTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ResumeListenDelay, err = durationFromEnv("CALL_RESUME_LISTEN_DELAY", cfg.ResumeListenDelay)
	if err != nil {
		return Config{}, err
	}
	cfg.DedupWindow, err = durationFromEnv("CALL_DEDUP_WINDOW", cfg.DedupWindow)
	if err != nil {
		return Config{}, err
	}
	cfg.DoctorID, err = intFromEnv("CALL_DOCTOR_ID", cfg.DoctorID)
	if err != nil {
		return Config{}, err
	}

	if cfg.ReconnectDelay <= 0 {
		return Config{}, fmt.Errorf("ASR_RECONNECT_DELAY must be positive")
	}
	if cfg.MaxReconnectAttempts <= 0 {
		return Config{}, fmt.Errorf("ASR_MAX_RECONNECT_ATTEMPTS must be positive")
	}
	if cfg.ResumeListenDelay < 0 {
		return Config{}, fmt.Errorf("CALL_RESUME_LISTEN_DELAY must not be negative")
	}
	if cfg.DedupWindow <= 0 {
		return Config{}, fmt.Errorf("CALL_DEDUP_WINDOW must be positive")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func envTrimmed(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}
