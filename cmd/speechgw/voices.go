package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/example/go-speech-gateway/internal/tts"
	"github.com/spf13/cobra"
)

func newVoicesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "voices",
		Short: "List available voices",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			registry, err := tts.LoadRegistry(cfg.TTS.VoiceDir, cfg.TTS.DefaultVoice)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "ID\tSOURCE\tLICENSE")

			for _, v := range registry.ListVoices() {
				source := "builtin"
				if v.Path != "" {
					source = v.Path
				}
				license := v.License
				if license == "" {
					license = "-"
				}
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", v.ID, source, license)
			}

			return w.Flush()
		},
	}

	return cmd
}
