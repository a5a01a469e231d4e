package transcode

import (
	"fmt"
	"strings"
)

// Format is a supported output container/codec, matching the values OpenAI
// accepts for response_format on /v1/audio/speech.
type Format string

const (
	FormatMP3  Format = "mp3"
	FormatWAV  Format = "wav"
	FormatPCM  Format = "pcm"
	FormatOpus Format = "opus"
	FormatAAC  Format = "aac"
	FormatFLAC Format = "flac"
)

// DefaultFormat is used when the request omits response_format.
const DefaultFormat = FormatMP3

// Formats lists every supported format in a stable order.
func Formats() []Format {
	return []Format{FormatMP3, FormatWAV, FormatPCM, FormatOpus, FormatAAC, FormatFLAC}
}

// ParseFormat folds case and surrounding whitespace and validates the value.
// An empty string selects DefaultFormat.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	if f == "" {
		return DefaultFormat, nil
	}

	switch f {
	case FormatMP3, FormatWAV, FormatPCM, FormatOpus, FormatAAC, FormatFLAC:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported format %q (want mp3|wav|pcm|opus|aac|flac)", s)
	}
}

// ContentType returns the MIME type sent with a response in this format.
func (f Format) ContentType() string {
	switch f {
	case FormatMP3:
		return "audio/mpeg"
	case FormatWAV:
		return "audio/wav"
	case FormatPCM:
		return "audio/pcm"
	case FormatOpus:
		return "audio/ogg"
	case FormatAAC:
		return "audio/aac"
	case FormatFLAC:
		return "audio/flac"
	default:
		return "application/octet-stream"
	}
}

// NeedsFFmpeg reports whether producing this format requires the external
// encoder.  wav and pcm are serialized in-process.
func (f Format) NeedsFFmpeg() bool {
	switch f {
	case FormatWAV, FormatPCM:
		return false
	default:
		return true
	}
}
