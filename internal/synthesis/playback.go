package synthesis

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/hajimehoshi/go-mp3"

	"github.com/medagent/voicecall/internal/audio"
)

// PlaybackDevice renders synthesized audio to the speaker, blocking
// until playback completes or ctx is cancelled.
type PlaybackDevice interface {
	Play(ctx context.Context, audioData []byte) error
}

const (
	playbackRate     = 44100
	playbackChannels = 2
)

// Speaker plays MP3 (remote synthesis) and 16-bit PCM WAV (local
// engine) payloads through the default output device. The underlying
// context is process-global and fixed-format, so all decoded streams
// are conformed to 44.1kHz stereo before playback.
type Speaker struct {
	mu  sync.Mutex
	ctx *oto.Context
}

func NewSpeaker() *Speaker {
	return &Speaker{}
}

func (s *Speaker) context() (*oto.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx != nil {
		return s.ctx, nil
	}
	otoCtx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   playbackRate,
		ChannelCount: playbackChannels,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return nil, fmt.Errorf("init speaker: %w", err)
	}
	<-ready
	s.ctx = otoCtx
	return s.ctx, nil
}

func (s *Speaker) Play(ctx context.Context, audioData []byte) error {
	pcm, rate, channels, err := decodePayload(audioData)
	if err != nil {
		return err
	}
	frames := conformPCM(pcm, rate, channels)

	otoCtx, err := s.context()
	if err != nil {
		return err
	}

	player := otoCtx.NewPlayer(bytes.NewReader(frames))
	player.Play()
	defer player.Close()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for player.IsPlaying() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// decodePayload sniffs the payload format: MP3 first (the remote
// service's response), then PCM16 WAV (the local engine's output).
func decodePayload(data []byte) (pcm []byte, rate, channels int, err error) {
	if decoder, mpErr := mp3.NewDecoder(bytes.NewReader(data)); mpErr == nil {
		decoded, readErr := io.ReadAll(decoder)
		if readErr == nil && len(decoded) > 0 {
			// go-mp3 always emits 16-bit stereo.
			return decoded, decoder.SampleRate(), 2, nil
		}
	}

	decoded, info, wavErr := audio.DecodeWAVPCM16LE(data)
	if wavErr != nil {
		return nil, 0, 0, fmt.Errorf("unsupported audio payload: %w", wavErr)
	}
	return decoded, info.SampleRate, info.Channels, nil
}

// conformPCM converts interleaved s16le PCM to the fixed playback
// format. Rate conversion is nearest-sample, which is plenty for
// synthesized speech.
func conformPCM(pcm []byte, rate, channels int) []byte {
	if rate == playbackRate && channels == playbackChannels {
		return pcm
	}
	if rate <= 0 || channels <= 0 {
		return nil
	}

	frameCount := len(pcm) / (2 * channels)
	outFrames := frameCount
	if rate != playbackRate {
		outFrames = int(float64(frameCount) * float64(playbackRate) / float64(rate))
	}

	out := make([]byte, outFrames*2*playbackChannels)
	for i := 0; i < outFrames; i++ {
		src := i
		if rate != playbackRate {
			src = int(float64(i) * float64(rate) / float64(playbackRate))
			if src >= frameCount {
				src = frameCount - 1
			}
		}
		base := src * 2 * channels
		var lo, hi byte
		if base+1 < len(pcm) {
			lo, hi = pcm[base], pcm[base+1]
		}
		dst := i * 2 * playbackChannels
		for ch := 0; ch < playbackChannels; ch++ {
			srcBase := base + ch*2
			if channels > ch && srcBase+1 < len(pcm) {
				out[dst+ch*2] = pcm[srcBase]
				out[dst+ch*2+1] = pcm[srcBase+1]
			} else {
				out[dst+ch*2] = lo
				out[dst+ch*2+1] = hi
			}
		}
	}
	return out
}
