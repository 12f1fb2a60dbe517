package audio

import (
	"bytes"
	"testing"
)

func TestWAVRoundTrip(t *testing.T) {
	pcm := EncodePCM16LE([]int16{0, 1000, -1000, 32767})
	wav, err := EncodeWAVPCM16LE(pcm, TargetRate)
	if err != nil {
		t.Fatalf("EncodeWAVPCM16LE() error = %v", err)
	}

	got, info, err := DecodeWAVPCM16LE(wav)
	if err != nil {
		t.Fatalf("DecodeWAVPCM16LE() error = %v", err)
	}
	if info.SampleRate != TargetRate || info.Channels != 1 {
		t.Fatalf("info = %+v, want 16000Hz mono", info)
	}
	if !bytes.Equal(got, pcm) {
		t.Fatalf("decoded PCM differs from input")
	}
}

func TestDecodeWAVRejectsGarbage(t *testing.T) {
	if _, _, err := DecodeWAVPCM16LE([]byte("definitely not audio")); err == nil {
		t.Fatalf("expected error for non-WAV input")
	}
}
