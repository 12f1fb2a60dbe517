package synthesis

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/medagent/voicecall/internal/observability"
)

// RemoteSpeech is the remote synthesis call the player prefers.
type RemoteSpeech interface {
	Synthesize(ctx context.Context, text, voiceID string, doctorID int) (Result, error)
}

type Request struct {
	Text     string
	VoiceID  string
	DoctorID int
}

type PlayerConfig struct {
	Remote  RemoteSpeech
	Local   LocalEngine
	Device  PlaybackDevice
	Metrics *observability.Metrics

	// OnSpeakingStart and OnSpeakingEnd fire exactly once each per
	// processed request, on the playback worker goroutine.
	OnSpeakingStart func()
	OnSpeakingEnd   func()
}

// Player serializes speech requests through a single worker. A request
// arriving while another is being spoken overwrites any not-yet-started
// pending request; there is no queue. Every processed request produces
// one speaking-start and one speaking-end no matter which path spoke it
// or how it failed.
type Player struct {
	cfg PlayerConfig

	mu      sync.Mutex
	pending *Request
	current context.CancelFunc
	closed  bool

	wake chan struct{}
	done chan struct{}
	wg   sync.WaitGroup
}

func NewPlayer(cfg PlayerConfig) *Player {
	p := &Player{
		cfg:  cfg,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	p.wg.Add(1)
	go p.run()
	return p
}

// Speak schedules text for playback. Last write wins while the worker
// is busy.
func (p *Player) Speak(req Request) {
	if strings.TrimSpace(req.Text) == "" {
		return
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.pending = &req
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Stop aborts in-flight playback and clears anything pending. The
// aborted request still reports its speaking-end.
func (p *Player) Stop() {
	p.mu.Lock()
	p.pending = nil
	cancel := p.current
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (p *Player) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.pending = nil
	cancel := p.current
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	close(p.done)
	p.wg.Wait()
}

func (p *Player) run() {
	defer p.wg.Done()
	for {
		select {
		case <-p.done:
			return
		case <-p.wake:
		}
		for {
			p.mu.Lock()
			req := p.pending
			p.pending = nil
			if req == nil || p.closed {
				p.mu.Unlock()
				break
			}
			ctx, cancel := context.WithCancel(context.Background())
			p.current = cancel
			p.mu.Unlock()

			p.process(ctx, *req)

			p.mu.Lock()
			p.current = nil
			p.mu.Unlock()
			cancel()
		}
	}
}

func (p *Player) process(ctx context.Context, req Request) {
	if p.cfg.OnSpeakingStart != nil {
		p.cfg.OnSpeakingStart()
	}
	started := time.Now()
	defer func() {
		if p.cfg.Metrics != nil {
			p.cfg.Metrics.ObserveSpeakDuration(time.Since(started))
		}
		if p.cfg.OnSpeakingEnd != nil {
			p.cfg.OnSpeakingEnd()
		}
	}()

	fallbackText := req.Text
	result, err := p.cfg.Remote.Synthesize(ctx, req.Text, req.VoiceID, req.DoctorID)
	switch {
	case err != nil:
		p.count("remote_error")
	case result.Degraded:
		p.count("remote_degraded")
		if strings.TrimSpace(result.Text) != "" {
			fallbackText = result.Text
		}
	default:
		if playErr := p.cfg.Device.Play(ctx, result.Audio); playErr == nil {
			p.count("remote")
			return
		}
		p.count("playback_error")
	}

	p.speakLocally(ctx, fallbackText)
}

// speakLocally is the end of the fallback chain; it reports failures
// through metrics only and always returns.
func (p *Player) speakLocally(ctx context.Context, text string) {
	if ctx.Err() != nil {
		return
	}
	audioData, err := p.cfg.Local.Synthesize(ctx, text)
	if err != nil {
		p.count("local_failed")
		return
	}
	if err := p.cfg.Device.Play(ctx, audioData); err != nil {
		p.count("local_failed")
		return
	}
	p.count("local")
}

func (p *Player) count(path string) {
	if p.cfg.Metrics != nil {
		p.cfg.Metrics.SynthesisRequests.WithLabelValues(path).Inc()
	}
}
