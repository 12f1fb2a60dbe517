package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/medagent/voicecall/internal/reliability"
)

// Each doctor persona speaks with a fixed upstream voice; the mapping
// overrides whatever voice id the caller sent so a persona always
// sounds the same.
var doctorVoices = map[int]string{
	1:  "en-US-marcus",  // General Physician
	2:  "en-US-arnold",  // Pediatrician
	3:  "en-US-terrell", // Dermatologist
	4:  "en-US-natalie", // Psychologist
	5:  "en-US-sarah",   // Nutritionist
	6:  "en-US-eliza",   // Cardiologist
	7:  "en-US-grace",   // ENT Specialist
	8:  "en-US-ken",     // Orthopedic
	9:  "en-US-amara",   // Gynecologist
	10: "en-US-james",   // Dentist
}

var voiceAliases = map[string]string{
	"marcus":  "en-US-marcus",
	"arnold":  "en-US-arnold",
	"terrell": "en-US-terrell",
	"natalie": "en-US-natalie",
	"sarah":   "en-US-sarah",
	"eliza":   "en-US-eliza",
	"grace":   "en-US-grace",
	"ken":     "en-US-ken",
	"amara":   "en-US-amara",
	"james":   "en-US-james",
}

const defaultUpstreamVoice = "en-US-natalie"

func resolveVoice(doctorID int, voiceID string) string {
	if v, ok := doctorVoices[doctorID]; ok {
		return v
	}
	if v, ok := voiceAliases[strings.TrimSpace(voiceID)]; ok {
		return v
	}
	return defaultUpstreamVoice
}

type MurfConfig struct {
	APIKey       string
	APIURL       string
	Timeout      time.Duration
	FetchTimeout time.Duration
	HTTPClient   *http.Client
}

// MurfClient generates speech through the Murf API: one POST that
// returns a URL to the rendered audio, then a fetch of that URL.
type MurfClient struct {
	cfg    MurfConfig
	client *http.Client
}

func NewMurfClient(cfg MurfConfig) *MurfClient {
	if strings.TrimSpace(cfg.APIURL) == "" {
		cfg.APIURL = "https://api.murf.ai/v1/speech/generate-with-key"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &MurfClient{cfg: cfg, client: client}
}

func (c *MurfClient) Configured() bool {
	return strings.TrimSpace(c.cfg.APIKey) != ""
}

type murfGenerateRequest struct {
	Voice      string  `json:"voice"`
	Text       string  `json:"text"`
	Format     string  `json:"format"`
	Speed      float64 `json:"speed"`
	Pitch      int     `json:"pitch"`
	SampleRate int     `json:"sampleRate"`
}

type murfGenerateResponse struct {
	Success bool `json:"success"`
	Data    struct {
		URL string `json:"url"`
	} `json:"data"`
}

// Generate renders text with the given upstream voice and returns MP3
// bytes. A retryable upstream status gets one retry before giving up.
func (c *MurfClient) Generate(ctx context.Context, voice, text string) ([]byte, error) {
	body, err := json.Marshal(murfGenerateRequest{
		Voice:      voice,
		Text:       text,
		Format:     "mp3",
		Speed:      1.0,
		Pitch:      0,
		SampleRate: 44100,
	})
	if err != nil {
		return nil, fmt.Errorf("encode generate request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		audioURL, genErr := c.generateOnce(ctx, body)
		if genErr == nil {
			return c.fetchAudio(ctx, audioURL)
		}
		lastErr = genErr
		var statusErr *upstreamStatusError
		if !errors.As(genErr, &statusErr) || !reliability.IsRetryableHTTPStatus(statusErr.status) {
			break
		}
	}
	return nil, lastErr
}

type upstreamStatusError struct {
	status int
}

func (e *upstreamStatusError) Error() string {
	return fmt.Sprintf("upstream synthesis returned status %d", e.status)
}

func (c *MurfClient) generateOnce(ctx context.Context, body []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-API-KEY", c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("generate request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &upstreamStatusError{status: resp.StatusCode}
	}

	var parsed murfGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode generate response: %w", err)
	}
	if !parsed.Success || strings.TrimSpace(parsed.Data.URL) == "" {
		return "", fmt.Errorf("generate response carried no audio url")
	}
	return parsed.Data.URL, nil
}

func (c *MurfClient) fetchAudio(ctx context.Context, audioURL string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.FetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, audioURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build audio fetch: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch audio: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("audio fetch returned status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("audio fetch returned empty body")
	}
	return data, nil
}
