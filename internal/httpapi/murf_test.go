package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestMurfClientGeneratesAndFetches(t *testing.T) {
	audio := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("mp3-bytes"))
	}))
	defer audio.Close()

	var gotReq murfGenerateRequest
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-KEY") != "key" {
			t.Errorf("missing api key header")
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data":    map[string]string{"url": audio.URL},
		})
	}))
	defer api.Close()

	client := NewMurfClient(MurfConfig{APIKey: "key", APIURL: api.URL, Timeout: time.Second, FetchTimeout: time.Second})
	data, err := client.Generate(context.Background(), "en-US-marcus", "hello")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if string(data) != "mp3-bytes" {
		t.Fatalf("unexpected audio %q", data)
	}
	if gotReq.Voice != "en-US-marcus" || gotReq.Text != "hello" || gotReq.Format != "mp3" {
		t.Fatalf("unexpected upstream request %+v", gotReq)
	}
	if gotReq.SampleRate != 44100 || gotReq.Speed != 1.0 {
		t.Fatalf("unexpected render settings %+v", gotReq)
	}
}

func TestMurfClientRetriesOnceOnRetryableStatus(t *testing.T) {
	audio := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("mp3-bytes"))
	}))
	defer audio.Close()

	var calls atomic.Int32
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data":    map[string]string{"url": audio.URL},
		})
	}))
	defer api.Close()

	client := NewMurfClient(MurfConfig{APIKey: "key", APIURL: api.URL, Timeout: time.Second, FetchTimeout: time.Second})
	data, err := client.Generate(context.Background(), "en-US-marcus", "hello")
	if err != nil {
		t.Fatalf("Generate after retry: %v", err)
	}
	if string(data) != "mp3-bytes" {
		t.Fatalf("unexpected audio %q", data)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("expected 2 upstream calls, got %d", got)
	}
}

func TestMurfClientDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer api.Close()

	client := NewMurfClient(MurfConfig{APIKey: "bad", APIURL: api.URL, Timeout: time.Second})
	if _, err := client.Generate(context.Background(), "en-US-marcus", "hello"); err == nil {
		t.Fatal("expected error")
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected a single upstream call, got %d", got)
	}
}

func TestMurfClientRejectsMissingAudioURL(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"success": false})
	}))
	defer api.Close()

	client := NewMurfClient(MurfConfig{APIKey: "key", APIURL: api.URL, Timeout: time.Second})
	if _, err := client.Generate(context.Background(), "en-US-marcus", "hello"); err == nil {
		t.Fatal("expected error for missing audio url")
	}
}
