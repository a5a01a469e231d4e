package server_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"math"
	"net/http"
	"testing"

	"github.com/example/go-speech-gateway/internal/audio"
	"github.com/example/go-speech-gateway/internal/server"
	"github.com/example/go-speech-gateway/internal/tts"
)

// segmentSynthesizer returns a fixed two-segment result.
type segmentSynthesizer struct{}

func (segmentSynthesizer) Synthesize(_ context.Context, req tts.Request) (tts.Result, error) {
	// 24000 samples per segment = exactly one second each.
	samples := make([]float32, 48000)

	return tts.Result{
		Samples:    samples,
		Voice:      req.Voice,
		SampleRate: audio.ExpectedSampleRate,
		Segments: []tts.Segment{
			{Text: "First sentence.", StartSample: 0, EndSample: 24000},
			{Text: "Second sentence.", StartSample: 24000, EndSample: 48000},
		},
	}, nil
}

type timingBody struct {
	Audio       string  `json:"audio"`
	ContentType string  `json:"content_type"`
	SampleRate  int     `json:"sample_rate"`
	DurationS   float64 `json:"duration_s"`
	Voice       string  `json:"voice"`
	LatencyS    float64 `json:"latency_s"`
	Segments    []struct {
		Text   string  `json:"text"`
		StartS float64 `json:"start_s"`
		EndS   float64 `json:"end_s"`
	} `json:"segments"`
}

func TestTiming_ReturnsSegmentsAndAudio(t *testing.T) {
	h := server.NewHandler(segmentSynthesizer{}, stubVoices{})

	rec := postJSON(h, "/synthesize-with-timing",
		map[string]any{"input": "First sentence. Second sentence.", "voice": "coral"})

	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q; want application/json", ct)
	}

	var body timingBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}

	if body.Voice != "dave" {
		t.Errorf("voice = %q; want dave", body.Voice)
	}
	if body.SampleRate != 24000 {
		t.Errorf("sample_rate = %d; want 24000", body.SampleRate)
	}
	if math.Abs(body.DurationS-2.0) > 1e-6 {
		t.Errorf("duration_s = %g; want 2.0", body.DurationS)
	}
	if body.ContentType != "audio/wav" {
		t.Errorf("content_type = %q; want audio/wav", body.ContentType)
	}

	if len(body.Segments) != 2 {
		t.Fatalf("got %d segments; want 2", len(body.Segments))
	}

	first, second := body.Segments[0], body.Segments[1]
	if first.StartS != 0 || math.Abs(first.EndS-1.0) > 1e-6 {
		t.Errorf("segment 0 = [%g, %g]; want [0, 1]", first.StartS, first.EndS)
	}
	if math.Abs(second.StartS-1.0) > 1e-6 || math.Abs(second.EndS-2.0) > 1e-6 {
		t.Errorf("segment 1 = [%g, %g]; want [1, 2]", second.StartS, second.EndS)
	}

	// Embedded audio must be a decodable WAV.
	wavBytes, err := base64.StdEncoding.DecodeString(body.Audio)
	if err != nil {
		t.Fatalf("audio is not valid base64: %v", err)
	}

	samples, err := audio.DecodeWAV(wavBytes)
	if err != nil {
		t.Fatalf("embedded audio is not a valid WAV: %v", err)
	}
	if len(samples) != 48000 {
		t.Errorf("decoded %d samples; want 48000", len(samples))
	}
}

func TestTiming_MissingInputReturns422(t *testing.T) {
	h := server.NewHandler(segmentSynthesizer{}, stubVoices{})

	rec := postJSON(h, "/synthesize-with-timing", map[string]any{"voice": "dave"})

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("want 422, got %d", rec.Code)
	}
}

func TestTiming_MethodNotAllowed(t *testing.T) {
	h := server.NewHandler(segmentSynthesizer{}, stubVoices{})

	rec := get(h, "/synthesize-with-timing")

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("want 405, got %d", rec.Code)
	}
}
