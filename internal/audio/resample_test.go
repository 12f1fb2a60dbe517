package audio

import (
	"math"
	"testing"
)

func TestDownsampleConstantSignal(t *testing.T) {
	const v = 0.25
	in := make([]float32, 100)
	for i := range in {
		in[i] = v
	}

	out := Downsample(in, CaptureRate, TargetRate)

	ratio := float64(CaptureRate) / float64(TargetRate)
	wantLen := int(math.Round(100 / ratio))
	if len(out) != wantLen {
		t.Fatalf("output length = %d, want %d", len(out), wantLen)
	}
	for i, s := range out {
		if math.Abs(float64(s)-v) > 1e-6 {
			t.Fatalf("out[%d] = %v, want %v", i, s, v)
		}
	}
}

func TestDownsampleWindowsCoverInputOnce(t *testing.T) {
	// An impulse train must keep its total energy: each input sample
	// contributes to exactly one output window.
	in := make([]float32, 441)
	for i := range in {
		in[i] = 1
	}
	out := Downsample(in, CaptureRate, TargetRate)

	// Every window averages only ones, so every output must be 1.
	for i, s := range out {
		if math.Abs(float64(s)-1) > 1e-6 {
			t.Fatalf("out[%d] = %v, want 1", i, s)
		}
	}
	if len(out) != 160 {
		t.Fatalf("441 samples at 44100->16000 should give 160, got %d", len(out))
	}
}

func TestDownsampleSameRatePassthrough(t *testing.T) {
	in := []float32{0.1, 0.2, 0.3}
	out := Downsample(in, 16000, 16000)
	if len(out) != 3 || out[0] != 0.1 || out[2] != 0.3 {
		t.Fatalf("same-rate downsample should pass through, got %v", out)
	}
}

func TestQuantizePCM16ClampAsymmetry(t *testing.T) {
	out := QuantizePCM16([]float32{1.5, -0.5, -2.0})

	if out[0] != 32767 {
		t.Fatalf("quantize(1.5) = %d, want 32767 (high-side clamp)", out[0])
	}
	if out[1] != -16383 {
		t.Fatalf("quantize(-0.5) = %d, want -16383", out[1])
	}
	// The low side is not clamped: -2.0*32767 = -65534 wraps through
	// int16 truncation to 2.
	if out[2] != 2 {
		t.Fatalf("quantize(-2.0) = %d, want 2 (unclamped wrap)", out[2])
	}
}

func TestEncodePCM16LE(t *testing.T) {
	got := EncodePCM16LE([]int16{1, -1, 256})
	want := []byte{0x01, 0x00, 0xFF, 0xFF, 0x00, 0x01}
	if len(got) != len(want) {
		t.Fatalf("length = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte[%d] = %#x, want %#x", i, got[i], want[i])
		}
	}
}

func TestEncodeFrameLength(t *testing.T) {
	block := make([]float32, BlockSize)
	pcm := EncodeFrame(block)

	ratio := float64(CaptureRate) / float64(TargetRate)
	wantSamples := int(math.Round(float64(BlockSize) / ratio))
	if len(pcm) != 2*wantSamples {
		t.Fatalf("frame bytes = %d, want %d", len(pcm), 2*wantSamples)
	}
}
