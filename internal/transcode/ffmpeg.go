package transcode

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"

	"github.com/example/go-speech-gateway/internal/config"
)

// FFmpeg encodes raw PCM into compressed containers by piping through the
// ffmpeg executable: s16le mono on stdin, encoded bytes on stdout.  Because
// both ends are pipes it works for buffered and chunked-streaming responses
// alike.
type FFmpeg struct {
	path        string
	mp3Quality  int
	opusBitrate string
	log         *slog.Logger
}

// NewFFmpeg builds a transcoder from audio config.  It does not verify the
// executable; call Available for that.
func NewFFmpeg(cfg config.AudioConfig) *FFmpeg {
	path := cfg.FFmpegPath
	if path == "" {
		path = "ffmpeg"
	}

	bitrate := cfg.OpusBitrate
	if bitrate == "" {
		bitrate = "64k"
	}

	return &FFmpeg{
		path:        path,
		mp3Quality:  cfg.MP3Quality,
		opusBitrate: bitrate,
		log:         slog.Default(),
	}
}

// WithLogger overrides the logger used for subprocess diagnostics.
func (f *FFmpeg) WithLogger(l *slog.Logger) *FFmpeg {
	f.log = l
	return f
}

// Available reports whether the ffmpeg executable can be resolved.
func (f *FFmpeg) Available() error {
	_, err := exec.LookPath(f.path)
	if err != nil {
		return fmt.Errorf("ffmpeg not found at %q: %w", f.path, err)
	}
	return nil
}

// Encode reads raw s16le mono PCM at the given sample rate from pcm and
// writes the encoded container to out.  The subprocess is killed when ctx is
// cancelled.  wav and pcm formats are rejected; callers serialize those
// in-process.
func (f *FFmpeg) Encode(ctx context.Context, pcm io.Reader, format Format, sampleRate int, out io.Writer) error {
	args, err := f.args(format, sampleRate)
	if err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, f.path, args...)
	cmd.Stdin = pcm
	cmd.Stdout = out

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			f.log.Error("ffmpeg encode failed",
				slog.String("format", string(format)),
				slog.String("stderr", lastLine(msg)),
			)
			return fmt.Errorf("ffmpeg %s encode: %w: %s", format, err, lastLine(msg))
		}
		return fmt.Errorf("ffmpeg %s encode: %w", format, err)
	}

	return nil
}

func (f *FFmpeg) args(format Format, sampleRate int) ([]string, error) {
	base := []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "s16le",
		"-ar", strconv.Itoa(sampleRate),
		"-ac", "1",
		"-i", "-",
	}

	switch format {
	case FormatMP3:
		base = append(base, "-codec:a", "libmp3lame", "-q:a", strconv.Itoa(f.mp3Quality), "-f", "mp3")
	case FormatOpus:
		base = append(base, "-codec:a", "libopus", "-b:a", f.opusBitrate, "-f", "ogg")
	case FormatAAC:
		base = append(base, "-codec:a", "aac", "-f", "adts")
	case FormatFLAC:
		base = append(base, "-codec:a", "flac", "-f", "flac")
	default:
		return nil, fmt.Errorf("format %q is not transcoded via ffmpeg", format)
	}

	return append(base, "-"), nil
}

// lastLine trims a multi-line stderr dump to its final line, which is where
// ffmpeg puts the actionable error.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
