package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/example/go-speech-gateway/internal/audio"
	"github.com/example/go-speech-gateway/internal/transcode"
	"github.com/example/go-speech-gateway/internal/tts"
	"github.com/spf13/cobra"
)

func newSynthCmd() *cobra.Command {
	var (
		textFlag string
		out      string
		voice    string
		format   string
		speed    float64
	)

	cmd := &cobra.Command{
		Use:   "synth",
		Short: "Synthesize text to an audio file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			input, err := readSynthText(textFlag, os.Stdin)
			if err != nil {
				return err
			}

			outFormat, err := transcode.ParseFormat(format)
			if err != nil {
				return err
			}

			svc, err := tts.NewService(cfg)
			if err != nil {
				return err
			}

			result, err := svc.Synthesize(cmd.Context(), tts.Request{
				Text:  input,
				Voice: voice,
				Speed: speed,
			})
			if err != nil {
				return err
			}

			var data []byte
			switch outFormat {
			case transcode.FormatWAV:
				data, err = audio.EncodeWAV(result.Samples)
				if err != nil {
					return err
				}
			case transcode.FormatPCM:
				data = audio.EncodePCM16(result.Samples)
			default:
				ffmpeg := transcode.NewFFmpeg(cfg.Audio)
				if err := ffmpeg.Available(); err != nil {
					return err
				}

				var buf bytes.Buffer
				pcm := bytes.NewReader(audio.EncodePCM16(result.Samples))
				if err := ffmpeg.Encode(cmd.Context(), pcm, outFormat, result.SampleRate, &buf); err != nil {
					return err
				}
				data = buf.Bytes()
			}

			if out == "-" {
				_, err = os.Stdout.Write(data)
				return err
			}

			if err := os.WriteFile(out, data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}

			_, _ = fmt.Fprintf(os.Stdout, "wrote %d bytes to %s (%s, voice %s)\n",
				len(data), out, outFormat, result.Voice)
			return nil
		},
	}

	cmd.Flags().StringVar(&textFlag, "text", "", "Text to synthesize (\"-\" or empty reads stdin)")
	cmd.Flags().StringVar(&out, "out", "speech.wav", "Output file path (\"-\" for stdout)")
	cmd.Flags().StringVar(&voice, "voice", "", "Voice ID or OpenAI voice name")
	cmd.Flags().StringVar(&format, "format", "wav", "Output format (mp3|wav|pcm|opus|aac|flac)")
	cmd.Flags().Float64Var(&speed, "speed", 0, "Playback speed in [0.5, 2.0] (0 = normal)")

	return cmd
}

// readSynthText returns the flag value, or reads stdin when the flag is
// empty or "-".
func readSynthText(flagValue string, stdin io.Reader) (string, error) {
	if flagValue != "" && flagValue != "-" {
		return flagValue, nil
	}

	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}

	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", fmt.Errorf("no input text (use --text or pipe to stdin)")
	}

	return text, nil
}
