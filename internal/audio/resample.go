package audio

import (
	"encoding/binary"
	"math"
)

const (
	// CaptureRate is the microphone capture rate in Hz.
	CaptureRate = 44100
	// TargetRate is the rate expected by the transcription service.
	TargetRate = 16000
	// BlockSize is the number of samples processed per capture block.
	BlockSize = 4096
)

// Downsample reduces buffer from inRate to outRate by averaging input
// samples over non-overlapping, ratio-sized windows. Window boundaries
// are rounded, so every input sample lands in exactly one window apart
// from rounding at the tail.
func Downsample(buffer []float32, inRate, outRate int) []float32 {
	if outRate == inRate || len(buffer) == 0 {
		return buffer
	}

	ratio := float64(inRate) / float64(outRate)
	outLen := int(math.Round(float64(len(buffer)) / ratio))
	out := make([]float32, outLen)

	offsetOut := 0
	offsetIn := 0
	for offsetOut < outLen {
		nextOffsetIn := int(math.Round(float64(offsetOut+1) * ratio))
		var accum float64
		count := 0
		for i := offsetIn; i < nextOffsetIn && i < len(buffer); i++ {
			accum += float64(buffer[i])
			count++
		}
		if count > 0 {
			out[offsetOut] = float32(accum / float64(count))
		}
		offsetOut++
		offsetIn = nextOffsetIn
	}
	return out
}

// QuantizePCM16 converts float samples (nominally in [-1,1]) to 16-bit
// signed integers. Values above 1.0 clamp to 32767; values below -1.0
// are deliberately NOT clamped and wrap through int16 truncation, which
// reproduces the historical typed-array behavior this engine was built
// against. Callers that need symmetric clamping must do it upstream.
func QuantizePCM16(buffer []float32) []int16 {
	out := make([]int16, len(buffer))
	for i, s := range buffer {
		v := math.Min(1, float64(s)) * 0x7FFF
		out[i] = int16(int32(v))
	}
	return out
}

// EncodePCM16LE serializes int16 samples as little-endian bytes, the
// wire format of the transcription service.
func EncodePCM16LE(samples []int16) []byte {
	out := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(s))
	}
	return out
}

// EncodeFrame runs the full per-block pipeline: downsample from the
// capture rate to the target rate, quantize, and serialize.
func EncodeFrame(block []float32) []byte {
	down := Downsample(block, CaptureRate, TargetRate)
	return EncodePCM16LE(QuantizePCM16(down))
}
