package call

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/medagent/voicecall/internal/audio"
	"github.com/medagent/voicecall/internal/observability"
	"github.com/medagent/voicecall/internal/synthesis"
	"github.com/medagent/voicecall/internal/transcribe"
)

// CallState is the orchestrator's turn-taking state.
type CallState string

const (
	StateIdle             CallState = "idle"
	StateListening        CallState = "listening"
	StateAwaitingResponse CallState = "awaiting_response"
	StateSpeaking         CallState = "speaking"
)

// CapturePipeline feeds encoded microphone frames to a sink while the
// listening flag is set.
type CapturePipeline interface {
	Start(sink audio.FrameSink) error
	SetListening(on bool)
	Close() error
}

// Transcriber is the streaming recognition socket.
type Transcriber interface {
	Start(ctx context.Context)
	Events() <-chan transcribe.Event
	Send(pcm []byte)
	Close() error
}

// Speaker turns assistant text into audible speech.
type Speaker interface {
	Speak(req synthesis.Request)
	Stop()
	Close()
}

// Responder generates the assistant's reply to a finalized user
// utterance. It may block; the orchestrator calls it off the event
// loop.
type Responder interface {
	Respond(ctx context.Context, userText string) (string, error)
}

// Sinks are the callbacks through which the orchestrator reports to the
// surrounding application. They must be cheap and non-blocking; nil
// sinks are skipped.
type Sinks struct {
	OnTranscript    func(text string, isFinal bool)
	OnMessage       func(msg Message)
	OnError         func(message string)
	OnSpeakingStart func()
	OnSpeakingEnd   func()
	OnTick          func(elapsedSeconds int)
}

type Config struct {
	VoiceID  string
	DoctorID int
	Greeting string

	// SystemPrompt is call configuration for the response-generating
	// collaborator; the orchestrator carries it but does not interpret
	// it.
	SystemPrompt string

	// ResumeDelay is the pause between speaking-end and listening
	// resume, covering the tail of the agent's own playback.
	ResumeDelay time.Duration
	DedupWindow time.Duration

	Sinks   Sinks
	Metrics *observability.Metrics
}

// Orchestrator owns the turn-taking state machine. All transitions run
// on a single event-loop goroutine, so no transition ever observes
// another mid-flight. Listening and speaking are mutually exclusive by
// construction; the user cannot interrupt agent speech.
type Orchestrator struct {
	cfg         Config
	capture     CapturePipeline
	transcriber Transcriber
	player      Speaker
	responder   Responder
	log         *Log

	mu            sync.Mutex
	state         CallState
	caption       string
	assistantText string
	elapsed       int
	active        bool
	resumeTimer   *time.Timer
	ctx           context.Context
	cancel        context.CancelFunc

	ops chan func()
	wg  sync.WaitGroup
}

func NewOrchestrator(cfg Config, capture CapturePipeline, transcriber Transcriber, player Speaker, responder Responder) *Orchestrator {
	if cfg.ResumeDelay <= 0 {
		cfg.ResumeDelay = 500 * time.Millisecond
	}
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = time.Second
	}
	return &Orchestrator{
		cfg:         cfg,
		capture:     capture,
		transcriber: transcriber,
		player:      player,
		responder:   responder,
		log:         NewLog(cfg.DedupWindow),
		state:       StateIdle,
		ops:         make(chan func(), 64),
	}
}

// StartCall activates the session: microphone, socket, duration ticker,
// and the opening greeting. The greeting is spoken before listening
// begins; the uniform speaking-to-listening transition applies to it
// like any other utterance.
func (o *Orchestrator) StartCall() error {
	o.mu.Lock()
	if o.active {
		o.mu.Unlock()
		return fmt.Errorf("call already active")
	}
	o.active = true
	o.state = StateSpeaking
	o.elapsed = 0
	o.caption = ""
	o.assistantText = ""
	o.ctx, o.cancel = context.WithCancel(context.Background())
	ctx := o.ctx
	o.mu.Unlock()

	if err := o.capture.Start(o.transcriber.Send); err != nil {
		o.mu.Lock()
		o.active = false
		o.state = StateIdle
		o.cancel()
		o.mu.Unlock()
		return err
	}
	o.capture.SetListening(false)
	o.transcriber.Start(ctx)

	if o.cfg.Metrics != nil {
		o.cfg.Metrics.ActiveCalls.Inc()
		o.cfg.Metrics.CallEvents.WithLabelValues("start").Inc()
	}

	o.wg.Add(1)
	go o.run(ctx)

	greeting := strings.TrimSpace(o.cfg.Greeting)
	if greeting != "" {
		o.post(func() { o.assistantMessage(greeting) })
	} else {
		o.post(func() { o.resumeListening() })
	}
	return nil
}

// StopCall tears the session down from any state. Safe to call
// repeatedly; only the first call does anything.
func (o *Orchestrator) StopCall() {
	o.mu.Lock()
	if !o.active {
		o.mu.Unlock()
		return
	}
	o.active = false
	o.state = StateIdle
	o.caption = ""
	o.assistantText = ""
	if o.resumeTimer != nil {
		o.resumeTimer.Stop()
		o.resumeTimer = nil
	}
	cancel := o.cancel
	o.mu.Unlock()

	cancel()
	o.player.Stop()
	o.player.Close()
	if err := o.transcriber.Close(); err != nil {
		o.reportError(fmt.Sprintf("closing transcription socket: %v", err))
	}
	if err := o.capture.Close(); err != nil {
		o.reportError(fmt.Sprintf("releasing microphone: %v", err))
	}
	o.log.Reset()
	o.wg.Wait()

	if o.cfg.Metrics != nil {
		o.cfg.Metrics.ActiveCalls.Dec()
		o.cfg.Metrics.CallEvents.WithLabelValues("stop").Inc()
	}
}

// SpeakingStarted is wired to the player's speaking-start callback.
func (o *Orchestrator) SpeakingStarted() {
	o.post(func() {
		o.mu.Lock()
		o.state = StateSpeaking
		o.mu.Unlock()
		o.capture.SetListening(false)
		if o.cfg.Sinks.OnSpeakingStart != nil {
			o.cfg.Sinks.OnSpeakingStart()
		}
	})
}

// SpeakingEnded is wired to the player's speaking-end callback. It arms
// the resume timer; listening restarts only after the delay elapses.
func (o *Orchestrator) SpeakingEnded() {
	o.post(func() {
		if o.cfg.Sinks.OnSpeakingEnd != nil {
			o.cfg.Sinks.OnSpeakingEnd()
		}
		o.mu.Lock()
		if !o.active {
			o.mu.Unlock()
			return
		}
		if o.resumeTimer != nil {
			o.resumeTimer.Stop()
		}
		o.resumeTimer = time.AfterFunc(o.cfg.ResumeDelay, func() {
			o.post(o.resumeListening)
		})
		o.mu.Unlock()
	})
}

// CallSnapshot is a point-in-time view for the UI layer: the live user
// caption (latest partial) and the latest assistant message alongside
// state and elapsed time.
type CallSnapshot struct {
	Active         bool
	State          CallState
	Caption        string
	AssistantText  string
	ElapsedSeconds int
}

func (o *Orchestrator) Snapshot() CallSnapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return CallSnapshot{
		Active:         o.active,
		State:          o.state,
		Caption:        o.caption,
		AssistantText:  o.assistantText,
		ElapsedSeconds: o.elapsed,
	}
}

func (o *Orchestrator) Messages() []Message {
	return o.log.Messages()
}

// SystemPrompt returns the call's configured prompt for the
// response-generating collaborator.
func (o *Orchestrator) SystemPrompt() string {
	return o.cfg.SystemPrompt
}

func (o *Orchestrator) run(ctx context.Context) {
	defer o.wg.Done()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-o.transcriber.Events():
			o.handleTranscript(evt)
		case <-ticker.C:
			o.tick()
		case fn := <-o.ops:
			fn()
		}
	}
}

func (o *Orchestrator) post(fn func()) {
	o.mu.Lock()
	ctx := o.ctx
	o.mu.Unlock()
	if ctx == nil {
		return
	}
	select {
	case o.ops <- fn:
	case <-ctx.Done():
	}
}

func (o *Orchestrator) handleTranscript(evt transcribe.Event) {
	switch evt.Type {
	case transcribe.EventPartial:
		// Late partials after an utterance was finalized are noise;
		// caption only moves while listening.
		if o.currentState() != StateListening {
			return
		}
		o.setCaption(evt.Text)
		if o.cfg.Sinks.OnTranscript != nil {
			o.cfg.Sinks.OnTranscript(evt.Text, false)
		}
	case transcribe.EventFinal:
		if o.currentState() != StateListening {
			return
		}
		if o.cfg.Sinks.OnTranscript != nil {
			o.cfg.Sinks.OnTranscript(evt.Text, true)
		}
		text := strings.TrimSpace(evt.Text)
		if text == "" {
			return
		}
		o.userUtterance(text)
	case transcribe.EventError:
		o.countError("transcription_service")
		o.reportError(evt.Detail)
	case transcribe.EventFatal:
		o.countError("transcription_transport")
		o.reportError(evt.Detail)
	}
}

// userUtterance closes the current user turn and dispatches response
// generation off the loop.
func (o *Orchestrator) userUtterance(text string) {
	if msg, added := o.log.Append(RoleUser, text, time.Now()); added {
		if o.cfg.Sinks.OnMessage != nil {
			o.cfg.Sinks.OnMessage(msg)
		}
	}

	o.mu.Lock()
	o.state = StateAwaitingResponse
	o.caption = ""
	ctx := o.ctx
	o.mu.Unlock()
	o.capture.SetListening(false)

	go func() {
		reply, err := o.responder.Respond(ctx, text)
		if err != nil {
			o.post(func() {
				o.countError("responder")
				o.reportError(fmt.Sprintf("response generation failed: %v", err))
				o.resumeListening()
			})
			return
		}
		o.post(func() { o.assistantMessage(reply) })
	}()
}

func (o *Orchestrator) assistantMessage(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		o.resumeListening()
		return
	}

	msg, added := o.log.Append(RoleAssistant, text, time.Now())
	if !added {
		// Duplicate delivery of the same reply; the turn is over.
		o.resumeListening()
		return
	}
	if o.cfg.Sinks.OnMessage != nil {
		o.cfg.Sinks.OnMessage(msg)
	}

	o.mu.Lock()
	o.state = StateSpeaking
	o.assistantText = text
	o.mu.Unlock()
	o.capture.SetListening(false)
	o.player.Speak(synthesis.Request{
		Text:     text,
		VoiceID:  o.cfg.VoiceID,
		DoctorID: o.cfg.DoctorID,
	})
}

func (o *Orchestrator) resumeListening() {
	o.mu.Lock()
	if !o.active {
		o.mu.Unlock()
		return
	}
	o.state = StateListening
	o.caption = ""
	o.mu.Unlock()
	o.capture.SetListening(true)
}

func (o *Orchestrator) tick() {
	o.mu.Lock()
	o.elapsed++
	elapsed := o.elapsed
	o.mu.Unlock()
	if o.cfg.Sinks.OnTick != nil {
		o.cfg.Sinks.OnTick(elapsed)
	}
}

func (o *Orchestrator) currentState() CallState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) setCaption(text string) {
	o.mu.Lock()
	o.caption = text
	o.mu.Unlock()
}

func (o *Orchestrator) reportError(message string) {
	if o.cfg.Sinks.OnError != nil {
		o.cfg.Sinks.OnError(message)
	}
}

func (o *Orchestrator) countError(code string) {
	if o.cfg.Metrics != nil {
		o.cfg.Metrics.EngineErrors.WithLabelValues(code).Inc()
	}
}
