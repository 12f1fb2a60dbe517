package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/gen2brain/malgo"
)

// Microphone is a malgo-backed capture device: 44.1kHz mono float32,
// delivered to the pipeline in BlockSize chunks. Echo cancellation,
// noise suppression and gain control are handled by the OS capture
// stack; miniaudio exposes no per-stream toggles for them.
type Microphone struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device

	mu      sync.Mutex
	pending []float32
	onBlock func([]float32)
	closed  bool
}

func NewMicrophone() (*Microphone, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: init audio context: %v", ErrCaptureDenied, err)
	}
	return &Microphone{ctx: ctx, pending: make([]float32, 0, 2*BlockSize)}, nil
}

func (m *Microphone) Start(onBlock func(block []float32)) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return fmt.Errorf("microphone closed")
	}
	m.onBlock = onBlock
	m.mu.Unlock()

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatF32
	cfg.Capture.Channels = 1
	cfg.SampleRate = CaptureRate

	device, err := malgo.InitDevice(m.ctx.Context, cfg, malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			m.accumulate(input)
		},
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCaptureDenied, err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("%w: %v", ErrCaptureDenied, err)
	}

	m.mu.Lock()
	m.device = device
	m.mu.Unlock()
	return nil
}

func (m *Microphone) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	device := m.device
	m.device = nil
	m.onBlock = nil
	m.mu.Unlock()

	if device != nil {
		device.Uninit()
	}
	return m.ctx.Uninit()
}

// accumulate buffers raw device frames until a full BlockSize block is
// available, then hands it off. The device period rarely matches the
// block size exactly.
func (m *Microphone) accumulate(input []byte) {
	m.mu.Lock()
	if m.closed || m.onBlock == nil {
		m.mu.Unlock()
		return
	}
	for i := 0; i+4 <= len(input); i += 4 {
		m.pending = append(m.pending, math.Float32frombits(binary.LittleEndian.Uint32(input[i:])))
	}

	var blocks [][]float32
	for len(m.pending) >= BlockSize {
		block := make([]float32, BlockSize)
		copy(block, m.pending[:BlockSize])
		m.pending = m.pending[:copy(m.pending, m.pending[BlockSize:])]
		blocks = append(blocks, block)
	}
	onBlock := m.onBlock
	m.mu.Unlock()

	for _, block := range blocks {
		onBlock(block)
	}
}
