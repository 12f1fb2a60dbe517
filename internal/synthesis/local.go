package synthesis

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// LocalEngine produces audio for text without the remote service.
type LocalEngine interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

type CommandEngineConfig struct {
	// Command is the synthesizer binary, e.g. "espeak-ng". It must
	// support writing a WAV stream to stdout via --stdout.
	Command string
	Timeout time.Duration
}

// CommandEngine shells out to an installed speech synthesizer. Every
// invocation is bounded by the configured timeout so a wedged binary
// can never hold the playback worker hostage.
type CommandEngine struct {
	cfg CommandEngineConfig
}

func NewCommandEngine(cfg CommandEngineConfig) (*CommandEngine, error) {
	if strings.TrimSpace(cfg.Command) == "" {
		return nil, fmt.Errorf("local synthesis command is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &CommandEngine{cfg: cfg}, nil
}

func (e *CommandEngine) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("nothing to synthesize")
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, e.cfg.Command, "--stdout", text)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("local synthesis %q: %w", e.cfg.Command, err)
	}
	if out.Len() == 0 {
		return nil, fmt.Errorf("local synthesis %q produced no audio", e.cfg.Command)
	}
	return out.Bytes(), nil
}
