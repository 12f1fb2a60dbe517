package app

import (
	"fmt"
	"strings"

	"github.com/medagent/voicecall/internal/audio"
	"github.com/medagent/voicecall/internal/call"
	"github.com/medagent/voicecall/internal/config"
	"github.com/medagent/voicecall/internal/observability"
	"github.com/medagent/voicecall/internal/reliability"
	"github.com/medagent/voicecall/internal/synthesis"
	"github.com/medagent/voicecall/internal/transcribe"
)

// Options carries the pieces the surrounding application supplies: the
// response generator and the UI-facing sinks.
type Options struct {
	Responder call.Responder
	Sinks     call.Sinks

	// Metrics overrides the default registry-backed instruments;
	// used by tests to avoid duplicate registration.
	Metrics *observability.Metrics
}

type BuildResult struct {
	Config       config.Config
	Orchestrator *call.Orchestrator
	Player       *synthesis.Player
	Metrics      *observability.Metrics

	// Cleanup releases the microphone and audio backend; call it on
	// shutdown after StopCall.
	Cleanup func() error
}

// Build assembles the full capture-transcribe-speak engine from
// configuration.
func Build(cfg config.Config, opts Options) (*BuildResult, error) {
	if opts.Responder == nil {
		return nil, fmt.Errorf("a responder is required")
	}

	metrics := opts.Metrics
	if metrics == nil {
		metrics = observability.NewMetrics(cfg.MetricsNamespace)
	}

	mic, err := audio.NewMicrophone()
	if err != nil {
		return nil, fmt.Errorf("microphone init failed: %w", err)
	}
	pipeline := audio.NewPipeline(mic, metrics)

	transcriber, err := transcribe.NewClient(transcribe.Config{
		URL:    cfg.AssemblyAIRealtimeURL,
		APIKey: cfg.AssemblyAIAPIKey,
		Reconnect: reliability.ReconnectPolicy{
			Delay:       cfg.ReconnectDelay,
			MaxAttempts: cfg.MaxReconnectAttempts,
		},
	}, metrics)
	if err != nil {
		_ = mic.Close()
		return nil, fmt.Errorf("transcription client init failed: %w", err)
	}

	remote, err := synthesis.NewRemoteSynthesizer(synthesis.RemoteConfig{
		EndpointURL: cfg.TTSEndpointURL,
		Timeout:     cfg.TTSRequestTimeout,
	})
	if err != nil {
		_ = mic.Close()
		return nil, fmt.Errorf("remote synthesizer init failed: %w", err)
	}
	local, err := synthesis.NewCommandEngine(synthesis.CommandEngineConfig{
		Command: cfg.LocalTTSCommand,
	})
	if err != nil {
		_ = mic.Close()
		return nil, fmt.Errorf("local synthesis init failed: %w", err)
	}

	var orchestrator *call.Orchestrator
	player := synthesis.NewPlayer(synthesis.PlayerConfig{
		Remote:          remote,
		Local:           local,
		Device:          synthesis.NewSpeaker(),
		Metrics:         metrics,
		OnSpeakingStart: func() { orchestrator.SpeakingStarted() },
		OnSpeakingEnd:   func() { orchestrator.SpeakingEnded() },
	})

	orchestrator = call.NewOrchestrator(call.Config{
		VoiceID:      cfg.DefaultVoiceID,
		DoctorID:     cfg.DoctorID,
		Greeting:     cfg.DefaultGreeting,
		SystemPrompt: cfg.SystemPrompt,
		ResumeDelay:  cfg.ResumeListenDelay,
		DedupWindow:  cfg.DedupWindow,
		Sinks:        opts.Sinks,
		Metrics:      metrics,
	}, pipeline, transcriber, player, opts.Responder)

	cleanup := func() error {
		var errs []string
		if err := mic.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if len(errs) > 0 {
			return fmt.Errorf("%s", strings.Join(errs, "; "))
		}
		return nil
	}

	return &BuildResult{
		Config:       cfg,
		Orchestrator: orchestrator,
		Player:       player,
		Metrics:      metrics,
		Cleanup:      cleanup,
	}, nil
}
