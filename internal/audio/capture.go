package audio

import (
	"errors"
	"sync"

	"github.com/medagent/voicecall/internal/observability"
)

// ErrCaptureDenied indicates the microphone could not be opened, most
// commonly because the OS denied access. This is fatal for the call:
// the pipeline never retries on its own.
var ErrCaptureDenied = errors.New("microphone access denied")

// CaptureDevice is a running audio source delivering float32 blocks of
// BlockSize mono samples at CaptureRate.
type CaptureDevice interface {
	Start(onBlock func(block []float32)) error
	Close() error
}

// FrameSink receives encoded 16kHz PCM16LE frames ready for transmission.
type FrameSink func(pcm []byte)

// Pipeline owns the capture device and the per-block processing graph.
// The device keeps running for the whole call; toggling the listening
// flag only wires or unwires the transmission edge, so resuming is
// cheap. A block observed while the flag is off is dropped, never
// queued.
type Pipeline struct {
	device  CaptureDevice
	metrics *observability.Metrics

	mu        sync.Mutex
	sink      FrameSink
	listening bool
	started   bool
	closed    bool
}

func NewPipeline(device CaptureDevice, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{device: device, metrics: metrics}
}

// Start opens the device and begins block processing. Frames flow to
// sink only while the listening flag is on.
func (p *Pipeline) Start(sink FrameSink) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return errors.New("capture pipeline closed")
	}
	if p.started {
		p.mu.Unlock()
		return nil
	}
	p.started = true
	p.sink = sink
	p.mu.Unlock()

	if err := p.device.Start(p.process); err != nil {
		p.mu.Lock()
		p.started = false
		p.mu.Unlock()
		return err
	}
	return nil
}

// SetListening wires (true) or unwires (false) the transmission edge.
func (p *Pipeline) SetListening(on bool) {
	p.mu.Lock()
	p.listening = on
	p.mu.Unlock()
}

func (p *Pipeline) Listening() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.listening
}

// Close releases the device. Safe to call from any state, more than once.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.listening = false
	p.sink = nil
	p.mu.Unlock()
	return p.device.Close()
}

func (p *Pipeline) process(block []float32) {
	p.mu.Lock()
	sink := p.sink
	listening := p.listening && !p.closed
	p.mu.Unlock()

	if !listening || sink == nil {
		if p.metrics != nil {
			p.metrics.CaptureBlocks.WithLabelValues("dropped_not_listening").Inc()
		}
		return
	}

	pcm := EncodeFrame(block)

	// The flag may flip while the block is being encoded; re-check at
	// send time so a frame produced just before a state change is
	// dropped rather than transmitted.
	p.mu.Lock()
	listening = p.listening && !p.closed
	p.mu.Unlock()
	if !listening {
		if p.metrics != nil {
			p.metrics.CaptureBlocks.WithLabelValues("dropped_not_listening").Inc()
		}
		return
	}

	if p.metrics != nil {
		p.metrics.CaptureBlocks.WithLabelValues("sent").Inc()
	}
	sink(pcm)
}
