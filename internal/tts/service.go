package tts

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/go-speech-gateway/internal/audio"
	"github.com/example/go-speech-gateway/internal/config"
	"github.com/example/go-speech-gateway/internal/text"
)

// ErrInvalidSpeed is returned when the speed parameter is outside [0.5, 2.0].
var ErrInvalidSpeed = errors.New("speed must be between 0.5 and 2.0")

// Request carries the validated synthesis parameters.
type Request struct {
	Text  string
	Voice string
	Speed float64 // 0 means 1.0
}

// Segment locates one synthesized text chunk inside the output sample stream.
type Segment struct {
	Text        string
	StartSample int
	EndSample   int
}

// Result is a completed synthesis.
type Result struct {
	Samples    []float32
	Voice      string // resolved voice ID
	SampleRate int
	Segments   []Segment
}

// PCMChunk is one block of streamed samples.
type PCMChunk struct {
	Samples    []float32
	ChunkIndex int
	Final      bool
}

// Service normalizes and chunks input text, drives the engine per chunk,
// and assembles PCM output with segment offsets.
type Service struct {
	engine        Engine
	registry      *Registry
	maxChunkChars int
	hooks         []audio.Hook
}

func NewService(cfg config.Config) (*Service, error) {
	registry, err := LoadRegistry(cfg.TTS.VoiceDir, cfg.TTS.DefaultVoice)
	if err != nil {
		return nil, fmt.Errorf("load voice registry: %w", err)
	}

	return &Service{
		engine:        NewPocketEngine(cfg.TTS),
		registry:      registry,
		maxChunkChars: cfg.TTS.MaxChunkChars,
		hooks:         synthesisHooks(cfg.Audio),
	}, nil
}

// synthesisHooks assembles the per-chunk post-processing chain from audio
// config: DC removal, optional peak normalization, then edge fades so chunk
// boundaries do not click.
func synthesisHooks(cfg config.AudioConfig) []audio.Hook {
	var hooks []audio.Hook

	if cfg.DCBlock {
		hooks = append(hooks, func(s []float32) []float32 {
			return audio.DCBlock(s, audio.ExpectedSampleRate)
		})
	}
	if cfg.PeakNormalize {
		hooks = append(hooks, audio.PeakNormalize)
	}
	if cfg.FadeMs > 0 {
		hooks = append(hooks, func(s []float32) []float32 {
			s = audio.FadeIn(s, audio.ExpectedSampleRate, cfg.FadeMs)
			return audio.FadeOut(s, audio.ExpectedSampleRate, cfg.FadeMs)
		})
	}

	return hooks
}

// ListVoices returns the registered voices.
func (s *Service) ListVoices() []Voice {
	return s.registry.ListVoices()
}

// ResolveVoice maps a requested voice ID (or OpenAI alias) to a registered voice.
func (s *Service) ResolveVoice(id string) (Voice, error) {
	return s.registry.Resolve(id)
}

// Preflight verifies the underlying engine can run.
func (s *Service) Preflight() error {
	type preflighter interface{ Preflight() error }

	if p, ok := s.engine.(preflighter); ok {
		return p.Preflight()
	}
	return nil
}

// Synthesize produces the full sample stream for a request.
func (s *Service) Synthesize(ctx context.Context, req Request) (Result, error) {
	normalized, voice, speed, err := s.prepare(req)
	if err != nil {
		return Result{}, err
	}

	res := Result{
		Voice:      voice.ID,
		SampleRate: audio.ExpectedSampleRate,
	}

	for i, chunk := range text.ChunkBySentence(normalized, s.maxChunkChars) {
		samples, err := s.generateChunk(ctx, chunk, voice, speed)
		if err != nil {
			return Result{}, fmt.Errorf("chunk %d: %w", i, err)
		}

		start := len(res.Samples)
		res.Samples = append(res.Samples, samples...)
		res.Segments = append(res.Segments, Segment{
			Text:        chunk,
			StartSample: start,
			EndSample:   len(res.Samples),
		})
	}

	return res, nil
}

// SynthesizeStream sends one PCMChunk per text chunk on out and closes the
// channel when done.  The error (if any) is returned after the channel is
// closed so consumers can drain safely.
func (s *Service) SynthesizeStream(ctx context.Context, req Request, out chan<- PCMChunk) error {
	defer close(out)

	normalized, voice, speed, err := s.prepare(req)
	if err != nil {
		return err
	}

	chunks := text.ChunkBySentence(normalized, s.maxChunkChars)
	for i, chunk := range chunks {
		samples, err := s.generateChunk(ctx, chunk, voice, speed)
		if err != nil {
			return fmt.Errorf("chunk %d: %w", i, err)
		}

		select {
		case out <- PCMChunk{Samples: samples, ChunkIndex: i, Final: i == len(chunks)-1}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return nil
}

func (s *Service) prepare(req Request) (string, Voice, float64, error) {
	normalized, err := text.Normalize(req.Text)
	if err != nil {
		return "", Voice{}, 0, err
	}

	voice, err := s.registry.Resolve(req.Voice)
	if err != nil {
		return "", Voice{}, 0, err
	}

	speed, err := normalizeSpeed(req.Speed)
	if err != nil {
		return "", Voice{}, 0, err
	}

	return normalized, voice, speed, nil
}

func (s *Service) generateChunk(ctx context.Context, chunk string, voice Voice, speed float64) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	samples, err := s.engine.Generate(ctx, chunk, voice.Ref())
	if err != nil {
		return nil, err
	}

	samples = audio.ApplyHooks(samples, s.hooks...)
	if speed != 1.0 {
		samples = audio.Stretch(samples, speed)
	}

	return samples, nil
}

func normalizeSpeed(speed float64) (float64, error) {
	if speed == 0 {
		return 1.0, nil
	}
	if speed < 0.5 || speed > 2.0 {
		return 0, fmt.Errorf("%w: got %g", ErrInvalidSpeed, speed)
	}
	return speed, nil
}
