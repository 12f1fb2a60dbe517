package synthesis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type RemoteConfig struct {
	EndpointURL string
	Timeout     time.Duration
	HTTPClient  *http.Client
}

// Result is the outcome of one remote synthesis request. Degraded means
// the service asked the caller to synthesize locally instead; Text then
// carries the text to speak (possibly rewritten by the service).
type Result struct {
	Audio    []byte
	Degraded bool
	Text     string
}

// RemoteSynthesizer calls the speech synthesis endpoint. Any server
// error or payload it cannot make sense of is reported as a degraded
// result rather than an error: the caller always has the local engine
// to fall back to, so the only hard failures are transport-level.
type RemoteSynthesizer struct {
	cfg    RemoteConfig
	client *http.Client
}

func NewRemoteSynthesizer(cfg RemoteConfig) (*RemoteSynthesizer, error) {
	if strings.TrimSpace(cfg.EndpointURL) == "" {
		return nil, fmt.Errorf("synthesis endpoint url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &RemoteSynthesizer{cfg: cfg, client: client}, nil
}

type synthesisRequest struct {
	Text     string `json:"text"`
	VoiceID  string `json:"voiceId"`
	DoctorID int    `json:"doctorId"`
}

type degradedResponse struct {
	Success       bool   `json:"success"`
	UseBrowserTTS bool   `json:"useBrowserTTS"`
	Text          string `json:"text"`
}

func (s *RemoteSynthesizer) Synthesize(ctx context.Context, text, voiceID string, doctorID int) (Result, error) {
	body, err := json.Marshal(synthesisRequest{Text: text, VoiceID: voiceID, DoctorID: doctorID})
	if err != nil {
		return Result{}, fmt.Errorf("encode synthesis request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.EndpointURL, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build synthesis request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("synthesis request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return Result{}, fmt.Errorf("read synthesis response: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	if resp.StatusCode == http.StatusOK && strings.HasPrefix(contentType, "audio/") {
		return Result{Audio: payload}, nil
	}

	// Anything else, degraded JSON included, sends the caller to the
	// local engine with the best text available.
	var degraded degradedResponse
	if err := json.Unmarshal(payload, &degraded); err == nil && strings.TrimSpace(degraded.Text) != "" {
		return Result{Degraded: true, Text: degraded.Text}, nil
	}
	return Result{Degraded: true, Text: text}, nil
}
