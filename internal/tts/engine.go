package tts

import (
	"context"
	"fmt"

	pockettts "github.com/cwbudde/go-call-pocket-tts"

	"github.com/example/go-speech-gateway/internal/audio"
	"github.com/example/go-speech-gateway/internal/config"
)

// Engine produces PCM samples from text and a voice reference.
type Engine interface {
	Generate(ctx context.Context, text, voiceRef string) ([]float32, error)
}

// PocketEngine invokes the pocket-tts model through its subprocess client.
// All model loading, tokenization and vocoding happen inside pocket-tts;
// this wrapper only maps parameters and decodes the returned WAV.
type PocketEngine struct {
	cfg config.TTSConfig
}

func NewPocketEngine(cfg config.TTSConfig) *PocketEngine {
	return &PocketEngine{cfg: cfg}
}

// Preflight verifies the pocket-tts executable is resolvable without
// running a generation.
func (e *PocketEngine) Preflight() error {
	return pockettts.Preflight(e.cfg.CLIPath)
}

func (e *PocketEngine) Generate(ctx context.Context, text, voiceRef string) ([]float32, error) {
	res, err := pockettts.Generate(ctx, text, &pockettts.Options{
		Voice:          voiceRef,
		Config:         e.cfg.CLIConfigPath,
		ExecutablePath: e.cfg.CLIPath,
		Quiet:          e.cfg.Quiet,
	})
	if err != nil {
		return nil, fmt.Errorf("pocket-tts generate: %w", err)
	}

	samples, err := audio.DecodeWAV(res.Data)
	if err != nil {
		return nil, fmt.Errorf("decode model output: %w", err)
	}

	return samples, nil
}
