package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/medagent/voicecall/internal/observability"
)

// SpeechGenerator is the upstream synthesis backend the proxy talks to.
type SpeechGenerator interface {
	Configured() bool
	Generate(ctx context.Context, voice, text string) ([]byte, error)
}

// Server is the synthesis proxy: it maps doctor personas to upstream
// voices, calls the vendor, and streams the audio back. When the vendor
// is unavailable it answers with a degraded payload telling the caller
// to synthesize locally.
type Server struct {
	generator SpeechGenerator
	metrics   *observability.Metrics
}

func New(generator SpeechGenerator, metrics *observability.Metrics) *Server {
	return &Server{generator: generator, metrics: metrics}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealth)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})
	r.Post("/v1/tts", s.handleSynthesize)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":              "ok",
		"upstream_configured": s.generator.Configured(),
	})
}

type synthesizeRequest struct {
	Text     string `json:"text"`
	VoiceID  string `json:"voiceId"`
	DoctorID int    `json:"doctorId"`
}

type degradedPayload struct {
	Success       bool   `json:"success"`
	UseBrowserTTS bool   `json:"useBrowserTTS"`
	Text          string `json:"text"`
}

func (s *Server) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	var req synthesizeRequest
	if err := decodeJSON(r, &req); err != nil {
		s.countProxy("bad_request")
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		s.countProxy("bad_request")
		respondError(w, http.StatusBadRequest, "missing_text", "text is required")
		return
	}

	if !s.generator.Configured() {
		s.countProxy("degraded_unconfigured")
		respondDegraded(w, req.Text)
		return
	}

	voice := resolveVoice(req.DoctorID, req.VoiceID)
	audio, err := s.generator.Generate(r.Context(), voice, req.Text)
	if err != nil {
		// The engine falls back to its local synthesizer on this
		// payload, so upstream failures never become hard errors.
		s.countProxy("degraded_upstream")
		respondDegraded(w, req.Text)
		return
	}

	s.countProxy("ok")
	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Content-Disposition", "attachment; filename=speech.mp3")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(audio)
}

func (s *Server) countProxy(outcome string) {
	if s.metrics != nil {
		s.metrics.ProxyRequests.WithLabelValues(outcome).Inc()
	}
}

func respondDegraded(w http.ResponseWriter, text string) {
	respondJSON(w, http.StatusOK, degradedPayload{
		Success:       false,
		UseBrowserTTS: true,
		Text:          text,
	})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
