package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/example/go-speech-gateway/internal/audio"
	"github.com/example/go-speech-gateway/internal/config"
	"github.com/example/go-speech-gateway/internal/text"
	"github.com/example/go-speech-gateway/internal/transcode"
	"github.com/example/go-speech-gateway/internal/tts"
)

// ParseLogLevel converts a case-insensitive level string to slog.Level.
// An empty string returns slog.LevelInfo. Unknown strings return an error.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (want debug|info|warn|error)", s)
	}
}

// Synthesizer produces PCM samples for a synthesis request.
type Synthesizer interface {
	Synthesize(ctx context.Context, req tts.Request) (tts.Result, error)
}

// StreamingSynthesizer produces PCM chunks incrementally, closing out when done.
type StreamingSynthesizer interface {
	SynthesizeStream(ctx context.Context, req tts.Request, out chan<- tts.PCMChunk) error
}

// VoiceDirectory lists and resolves voices.
type VoiceDirectory interface {
	ListVoices() []tts.Voice
	ResolveVoice(id string) (tts.Voice, error)
}

// Transcoder encodes raw s16le PCM into a compressed container.
type Transcoder interface {
	Encode(ctx context.Context, pcm io.Reader, format transcode.Format, sampleRate int, out io.Writer) error
}

// ---------------------------------------------------------------------------
// Functional options
// ---------------------------------------------------------------------------

type options struct {
	maxTextBytes   int
	workers        int
	requestTimeout time.Duration
	logger         *slog.Logger
	transcoder     Transcoder
	streamer       StreamingSynthesizer
	modelID        string
}

func defaultOptions() options {
	return options{
		maxTextBytes:   4096,
		workers:        2,
		requestTimeout: 60 * time.Second,
		logger:         slog.Default(),
		modelID:        "pocket-tts",
	}
}

// Option configures the HTTP handler.
type Option func(*options)

// WithMaxTextBytes sets the maximum allowed input text length in bytes.
func WithMaxTextBytes(n int) Option {
	return func(o *options) { o.maxTextBytes = n }
}

// WithWorkers sets the maximum number of concurrent synthesis calls.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithRequestTimeout sets the per-request synthesis deadline.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) { o.requestTimeout = d }
}

// WithLogger sets the slog.Logger used for request logging.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithTranscoder enables compressed output formats (mp3, opus, aac, flac).
// Without one, those formats answer 501.
func WithTranscoder(t Transcoder) Option {
	return func(o *options) { o.transcoder = t }
}

// WithStreamer enables chunked streaming responses for stream:true requests.
func WithStreamer(s StreamingSynthesizer) Option {
	return func(o *options) { o.streamer = s }
}

// WithModelID sets the model identifier reported by /health.
func WithModelID(id string) Option {
	return func(o *options) { o.modelID = id }
}

// ---------------------------------------------------------------------------
// handler
// ---------------------------------------------------------------------------

// handler holds the dependencies needed to serve HTTP requests.
type handler struct {
	synth  Synthesizer
	voices VoiceDirectory
	opts   options
	sem    chan struct{} // semaphore for worker pool
	log    *slog.Logger
}

// NewHandler returns an http.Handler exposing the OpenAI-compatible speech
// endpoint plus the convenience routes.
func NewHandler(synth Synthesizer, voices VoiceDirectory, optFns ...Option) http.Handler {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	h := &handler{
		synth:  synth,
		voices: voices,
		opts:   opts,
		log:    opts.logger,
	}
	if opts.workers > 0 {
		h.sem = make(chan struct{}, opts.workers)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", h.handleIndex)
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/voices", h.handleVoices)
	mux.HandleFunc("/v1/audio/speech", h.handleSpeech)
	mux.HandleFunc("/synthesize", h.handleSpeech)
	mux.HandleFunc("/synthesize-with-timing", h.handleTiming)
	return mux
}

func buildVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func (h *handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	formats := make([]string, 0, len(transcode.Formats()))
	for _, f := range transcode.Formats() {
		formats = append(formats, string(f))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"service": "speechgw",
		"version": buildVersion(),
		"endpoints": []string{
			"/v1/audio/speech",
			"/synthesize",
			"/synthesize-with-timing",
			"/voices",
			"/health",
		},
		"formats": formats,
	})
}

func (h *handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	voices := h.voices.ListVoices()
	ids := make([]string, 0, len(voices))
	for _, v := range voices {
		ids = append(ids, v.ID)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": buildVersion(),
		"model":   h.opts.modelID,
		"voices":  ids,
	})
}

func (h *handler) handleVoices(w http.ResponseWriter, _ *http.Request) {
	voices := h.voices.ListVoices()
	if voices == nil {
		voices = []tts.Voice{}
	}
	writeJSON(w, http.StatusOK, voices)
}

// speechRequest mirrors the OpenAI createSpeech body.  Some clients send
// "text" for the input and "format" for the response format; both aliases
// are accepted the way the reference server accepted them.
type speechRequest struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Text           string  `json:"text"`
	Voice          string  `json:"voice"`
	ResponseFormat string  `json:"response_format"`
	Format         string  `json:"format"`
	Speed          float64 `json:"speed"`
	Stream         bool    `json:"stream"`
}

func (r speechRequest) inputText() string {
	if strings.TrimSpace(r.Input) != "" {
		return r.Input
	}
	return r.Text
}

func (r speechRequest) format() string {
	if strings.TrimSpace(r.ResponseFormat) != "" {
		return r.ResponseFormat
	}
	return r.Format
}

// decodeSpeechRequest parses and validates the shared request fields.
// It writes the error response itself and reports ok=false on failure.
func (h *handler) decodeSpeechRequest(w http.ResponseWriter, r *http.Request) (speechRequest, bool) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return speechRequest{}, false
	}

	if r.Body == nil {
		writeError(w, http.StatusBadRequest, "request body is required")
		return speechRequest{}, false
	}

	var req speechRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return speechRequest{}, false
	}

	if strings.TrimSpace(req.inputText()) == "" {
		writeError(w, http.StatusUnprocessableEntity, "missing required field 'input'")
		return speechRequest{}, false
	}

	if len(req.inputText()) > h.opts.maxTextBytes {
		writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("input exceeds maximum size of %d bytes", h.opts.maxTextBytes))
		return speechRequest{}, false
	}

	if req.Speed != 0 && (req.Speed < 0.5 || req.Speed > 2.0) {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("speed %g out of range [0.5, 2.0]", req.Speed))
		return speechRequest{}, false
	}

	return req, true
}

// acquireWorker blocks until a worker slot is free or the request is cancelled.
// The returned release func is a no-op when throttling is disabled.
func (h *handler) acquireWorker(w http.ResponseWriter, r *http.Request) (func(), bool) {
	if h.sem == nil {
		return func() {}, true
	}

	select {
	case h.sem <- struct{}{}:
		return func() { <-h.sem }, true
	case <-r.Context().Done():
		writeError(w, http.StatusServiceUnavailable, "request cancelled while waiting for worker")
		return nil, false
	}
}

func (h *handler) handleSpeech(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeSpeechRequest(w, r)
	if !ok {
		return
	}

	format, err := transcode.ParseFormat(req.format())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if format.NeedsFFmpeg() && h.opts.transcoder == nil {
		writeError(w, http.StatusNotImplemented,
			fmt.Sprintf("format %q requires ffmpeg, which is not available", format))
		return
	}

	// Resolve the voice up front so streaming responses can still answer
	// 400 for unknown voices before any audio bytes are committed.
	voice, err := h.voices.ResolveVoice(req.Voice)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.Stream && h.opts.streamer == nil {
		writeError(w, http.StatusNotImplemented, "streaming is not enabled")
		return
	}

	release, ok := h.acquireWorker(w, r)
	if !ok {
		return
	}
	defer release()

	ctx, cancel := context.WithTimeout(r.Context(), h.opts.requestTimeout)
	defer cancel()

	treq := tts.Request{Text: req.inputText(), Voice: voice.ID, Speed: req.Speed}

	if req.Stream {
		h.streamSpeech(ctx, w, r, treq, format)
		return
	}

	start := time.Now()
	result, err := h.synth.Synthesize(ctx, treq)
	if err != nil {
		h.writeSynthesisError(w, r, treq, err, time.Since(start))
		return
	}

	payload, err := h.encode(ctx, result, format)
	if err != nil {
		h.log.ErrorContext(r.Context(), "audio export failed",
			slog.String("format", string(format)),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "audio export failed: "+err.Error())
		return
	}
	latency := time.Since(start)

	h.log.InfoContext(r.Context(), "synthesis complete",
		slog.String("voice", result.Voice),
		slog.String("format", string(format)),
		slog.Int("text_len", len(treq.Text)),
		slog.Int64("duration_ms", latency.Milliseconds()),
		slog.Int("audio_bytes", len(payload)),
	)

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("x-tts-voice-id", result.Voice)
	w.Header().Set("x-tts-latency-s", fmt.Sprintf("%.3f", latency.Seconds()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

// encode serializes a synthesis result into the requested container.
func (h *handler) encode(ctx context.Context, result tts.Result, format transcode.Format) ([]byte, error) {
	switch format {
	case transcode.FormatWAV:
		return audio.EncodeWAV(result.Samples)
	case transcode.FormatPCM:
		return audio.EncodePCM16(result.Samples), nil
	default:
		var buf bytes.Buffer
		pcm := bytes.NewReader(audio.EncodePCM16(result.Samples))
		if err := h.opts.transcoder.Encode(ctx, pcm, format, result.SampleRate, &buf); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
}

// streamSpeech answers with chunked transfer, flushing audio as the model
// produces it.  The first chunk is awaited before headers are written so
// early failures still produce a JSON error response.
func (h *handler) streamSpeech(ctx context.Context, w http.ResponseWriter, r *http.Request, treq tts.Request, format transcode.Format) {
	ch := make(chan tts.PCMChunk, 4)
	synthErr := make(chan error, 1)

	start := time.Now()
	go func() {
		synthErr <- h.opts.streamer.SynthesizeStream(ctx, treq, ch)
	}()

	first, ok := <-ch
	if !ok {
		err := <-synthErr
		if err == nil {
			err = errors.New("synthesis produced no audio")
		}
		h.writeSynthesisError(w, r, treq, err, time.Since(start))
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("x-tts-voice-id", treq.Voice)
	// Time to first chunk; the headers are committed before the rest of
	// the audio exists.
	w.Header().Set("x-tts-latency-s", fmt.Sprintf("%.3f", time.Since(start).Seconds()))
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	out := flushWriter{w: w, f: flusher}

	var streamErr error
	switch format {
	case transcode.FormatWAV:
		if _, err := audio.WriteWAVHeaderStreaming(out); err != nil {
			return
		}
		streamErr = writePCMStream(out, first, ch)
	case transcode.FormatPCM:
		streamErr = writePCMStream(out, first, ch)
	default:
		streamErr = h.transcodeStream(ctx, out, format, first, ch)
	}

	// Drain leftovers after a write failure so the streamer can finish
	// and report instead of blocking on a full channel.
	for range ch {
	}

	if err := <-synthErr; err != nil && streamErr == nil {
		streamErr = err
	}

	if streamErr != nil {
		// Headers are already sent; all we can do is log and drop the stream.
		h.log.ErrorContext(r.Context(), "stream aborted",
			slog.String("voice", treq.Voice),
			slog.String("format", string(format)),
			slog.String("error", streamErr.Error()),
		)
		return
	}

	h.log.InfoContext(r.Context(), "stream complete",
		slog.String("voice", treq.Voice),
		slog.String("format", string(format)),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
}

// writePCMStream writes the first chunk and every following chunk as s16le.
func writePCMStream(out io.Writer, first tts.PCMChunk, ch <-chan tts.PCMChunk) error {
	if _, err := audio.WritePCM16Samples(out, first.Samples); err != nil {
		return err
	}

	for c := range ch {
		if _, err := audio.WritePCM16Samples(out, c.Samples); err != nil {
			return err
		}
	}

	return nil
}

// transcodeStream pipes PCM chunks through ffmpeg, copying encoded output to
// the response as it becomes available.
func (h *handler) transcodeStream(ctx context.Context, out io.Writer, format transcode.Format, first tts.PCMChunk, ch <-chan tts.PCMChunk) error {
	pr, pw := io.Pipe()

	go func() {
		err := writePCMStream(pw, first, ch)
		_ = pw.CloseWithError(err)
	}()

	err := h.opts.transcoder.Encode(ctx, pr, format, audio.ExpectedSampleRate, out)
	if err != nil {
		// Unblock the feeder goroutine.
		_ = pr.CloseWithError(err)
	}
	return err
}

// timingSegment is one synthesized chunk with its position in the audio.
type timingSegment struct {
	Text   string  `json:"text"`
	StartS float64 `json:"start_s"`
	EndS   float64 `json:"end_s"`
}

type timingResponse struct {
	Audio       string          `json:"audio"` // base64-encoded WAV
	ContentType string          `json:"content_type"`
	SampleRate  int             `json:"sample_rate"`
	DurationS   float64         `json:"duration_s"`
	Voice       string          `json:"voice"`
	LatencyS    float64         `json:"latency_s"`
	Segments    []timingSegment `json:"segments"`
}

func (h *handler) handleTiming(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeSpeechRequest(w, r)
	if !ok {
		return
	}

	voice, err := h.voices.ResolveVoice(req.Voice)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	release, ok := h.acquireWorker(w, r)
	if !ok {
		return
	}
	defer release()

	ctx, cancel := context.WithTimeout(r.Context(), h.opts.requestTimeout)
	defer cancel()

	treq := tts.Request{Text: req.inputText(), Voice: voice.ID, Speed: req.Speed}

	start := time.Now()
	result, err := h.synth.Synthesize(ctx, treq)
	if err != nil {
		h.writeSynthesisError(w, r, treq, err, time.Since(start))
		return
	}

	wavBytes, err := audio.EncodeWAV(result.Samples)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "audio export failed: "+err.Error())
		return
	}
	latency := time.Since(start)

	rate := float64(result.SampleRate)
	segments := make([]timingSegment, 0, len(result.Segments))
	for _, seg := range result.Segments {
		segments = append(segments, timingSegment{
			Text:   seg.Text,
			StartS: float64(seg.StartSample) / rate,
			EndS:   float64(seg.EndSample) / rate,
		})
	}

	h.log.InfoContext(r.Context(), "synthesis with timing complete",
		slog.String("voice", result.Voice),
		slog.Int("segments", len(segments)),
		slog.Int64("duration_ms", latency.Milliseconds()),
	)

	writeJSON(w, http.StatusOK, timingResponse{
		Audio:       base64.StdEncoding.EncodeToString(wavBytes),
		ContentType: "audio/wav",
		SampleRate:  result.SampleRate,
		DurationS:   float64(len(result.Samples)) / rate,
		Voice:       result.Voice,
		LatencyS:    latency.Seconds(),
		Segments:    segments,
	})
}

// writeSynthesisError maps synthesis failures to status codes and logs them.
func (h *handler) writeSynthesisError(w http.ResponseWriter, r *http.Request, treq tts.Request, err error, elapsed time.Duration) {
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		h.log.WarnContext(r.Context(), "synthesis timed out",
			slog.String("voice", treq.Voice),
			slog.Int("text_len", len(treq.Text)),
			slog.Int64("duration_ms", elapsed.Milliseconds()),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusGatewayTimeout, "synthesis timed out")
	case errors.Is(err, tts.ErrUnknownVoice) || errors.Is(err, tts.ErrInvalidSpeed):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, text.ErrEmptyText):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.log.ErrorContext(r.Context(), "synthesis failed",
			slog.String("voice", treq.Voice),
			slog.Int("text_len", len(treq.Text)),
			slog.Int64("duration_ms", elapsed.Milliseconds()),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// flushWriter flushes the response after every write so chunked streaming
// delivers audio incrementally.
type flushWriter struct {
	w io.Writer
	f http.Flusher
}

func (fw flushWriter) Write(p []byte) (int, error) {
	n, err := fw.w.Write(p)
	if fw.f != nil {
		fw.f.Flush()
	}
	return n, err
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// ---------------------------------------------------------------------------
// Server — wires handler into net/http.Server with graceful shutdown
// ---------------------------------------------------------------------------

// Server wires the HTTP handler into a net/http.Server with graceful shutdown.
type Server struct {
	cfg             config.Config
	tts             *tts.Service
	shutdownTimeout time.Duration
}

func New(cfg config.Config, svc *tts.Service) *Server {
	return &Server{
		cfg:             cfg,
		tts:             svc,
		shutdownTimeout: 30 * time.Second,
	}
}

// WithShutdownTimeout overrides the graceful-shutdown drain period.
func (s *Server) WithShutdownTimeout(d time.Duration) *Server {
	s.shutdownTimeout = d
	return s
}

func (s *Server) Start(ctx context.Context) error {
	svc := s.tts
	if svc == nil {
		var err error
		svc, err = tts.NewService(s.cfg)
		if err != nil {
			return fmt.Errorf("initialize tts service: %w", err)
		}
	}

	handlerOpts := []Option{
		WithWorkers(s.cfg.Server.Workers),
		WithMaxTextBytes(s.cfg.Server.MaxTextBytes),
		WithRequestTimeout(time.Duration(s.cfg.Server.RequestTimeout) * time.Second),
		WithStreamer(svc),
		WithModelID(s.cfg.TTS.ModelID),
	}

	ffmpeg := transcode.NewFFmpeg(s.cfg.Audio)
	if err := ffmpeg.Available(); err != nil {
		slog.Warn("ffmpeg unavailable, compressed formats disabled",
			slog.String("error", err.Error()))
	} else {
		handlerOpts = append(handlerOpts, WithTranscoder(ffmpeg))
	}

	h := NewHandler(svc, svc, handlerOpts...)

	httpServer := &http.Server{
		Addr:              s.cfg.Server.ListenAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return fmt.Errorf("http listen: %w", err)
	}
}

func ProbeHTTP(addr string) error {
	resp, err := http.Get("http://" + addr + "/health") //nolint:noctx
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected health status: %s", resp.Status)
	}
	return nil
}
