package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig `mapstructure:"server"`
	TTS      TTSConfig    `mapstructure:"tts"`
	Audio    AudioConfig  `mapstructure:"audio"`
	LogLevel string       `mapstructure:"log_level"`
}

type ServerConfig struct {
	ListenAddr      string `mapstructure:"listen_addr"`
	MaxTextBytes    int    `mapstructure:"max_text_bytes"`
	RequestTimeout  int    `mapstructure:"request_timeout"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"`
	Workers         int    `mapstructure:"workers"`
}

type TTSConfig struct {
	ModelID       string `mapstructure:"model_id"`
	VoiceDir      string `mapstructure:"voice_dir"`
	DefaultVoice  string `mapstructure:"default_voice"`
	CLIPath       string `mapstructure:"cli_path"`
	CLIConfigPath string `mapstructure:"cli_config_path"`
	Quiet         bool   `mapstructure:"quiet"`
	MaxChunkChars int    `mapstructure:"max_chunk_chars"`
}

type AudioConfig struct {
	FFmpegPath    string  `mapstructure:"ffmpeg_path"`
	MP3Quality    int     `mapstructure:"mp3_quality"`
	OpusBitrate   string  `mapstructure:"opus_bitrate"`
	FadeMs        float64 `mapstructure:"fade_ms"`
	DCBlock       bool    `mapstructure:"dc_block"`
	PeakNormalize bool    `mapstructure:"peak_normalize"`
}

type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   Config
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			ListenAddr:      ":8080",
			MaxTextBytes:    4096,
			RequestTimeout:  60,
			ShutdownTimeout: 30,
			Workers:         2,
		},
		TTS: TTSConfig{
			ModelID:       "pocket-tts",
			VoiceDir:      "voices",
			DefaultVoice:  "dave",
			CLIPath:       "",
			CLIConfigPath: "",
			Quiet:         true,
			MaxChunkChars: 400,
		},
		Audio: AudioConfig{
			FFmpegPath:    "ffmpeg",
			MP3Quality:    4,
			OpusBitrate:   "64k",
			FadeMs:        5,
			DCBlock:       true,
			PeakNormalize: false,
		},
		LogLevel: "info",
	}
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.String("server-listen-addr", defaults.Server.ListenAddr, "HTTP listen address")
	fs.Int("server-max-text-bytes", defaults.Server.MaxTextBytes, "Maximum accepted input text size in bytes")
	fs.Int("server-request-timeout", defaults.Server.RequestTimeout, "Per-request synthesis deadline in seconds")
	fs.Int("server-shutdown-timeout", defaults.Server.ShutdownTimeout, "Graceful shutdown drain period in seconds")
	fs.Int("server-workers", defaults.Server.Workers, "Max concurrent synthesis requests")
	fs.String("tts-model-id", defaults.TTS.ModelID, "Model identifier reported by /health")
	fs.String("tts-voice-dir", defaults.TTS.VoiceDir, "Directory holding voice embeddings and manifest")
	fs.String("tts-default-voice", defaults.TTS.DefaultVoice, "Voice used when the request omits one")
	fs.String("tts-cli-path", defaults.TTS.CLIPath, "Path to pocket-tts executable")
	fs.String("tts-cli-config-path", defaults.TTS.CLIConfigPath, "Path to pocket-tts config file")
	fs.Bool("tts-quiet", defaults.TTS.Quiet, "Pass --quiet to pocket-tts generate")
	fs.Int("tts-max-chunk-chars", defaults.TTS.MaxChunkChars, "Max characters per synthesis chunk")
	fs.String("audio-ffmpeg-path", defaults.Audio.FFmpegPath, "Path to the ffmpeg executable")
	fs.Int("audio-mp3-quality", defaults.Audio.MP3Quality, "LAME VBR quality for mp3 output (0=best, 9=worst)")
	fs.String("audio-opus-bitrate", defaults.Audio.OpusBitrate, "Target bitrate for opus output")
	fs.Float64("audio-fade-ms", defaults.Audio.FadeMs, "Fade-in/out ramp per synthesized chunk in milliseconds (0 disables)")
	fs.Bool("audio-dc-block", defaults.Audio.DCBlock, "Remove DC offset from synthesized audio")
	fs.Bool("audio-peak-normalize", defaults.Audio.PeakNormalize, "Scale synthesized audio to peak amplitude 1.0")
	fs.String("log-level", defaults.LogLevel, "Log level (debug|info|warn|error)")
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)
	if opts.Cmd != nil {
		if err := v.BindPFlags(opts.Cmd.Flags()); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}
	registerAliases(v)

	v.SetEnvPrefix("SPEECHGW")
	replacer := strings.NewReplacer("-", "_", ".", "_", "__", "_")
	v.SetEnvKeyReplacer(replacer)
	if err := v.BindEnv("audio.ffmpeg_path", "SPEECHGW_FFMPEG", "FFMPEG_PATH"); err != nil {
		return Config{}, fmt.Errorf("bind ffmpeg env vars: %w", err)
	}
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("speechgw")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("server.listen_addr", c.Server.ListenAddr)
	v.SetDefault("server.max_text_bytes", c.Server.MaxTextBytes)
	v.SetDefault("server.request_timeout", c.Server.RequestTimeout)
	v.SetDefault("server.shutdown_timeout", c.Server.ShutdownTimeout)
	v.SetDefault("server.workers", c.Server.Workers)
	v.SetDefault("tts.model_id", c.TTS.ModelID)
	v.SetDefault("tts.voice_dir", c.TTS.VoiceDir)
	v.SetDefault("tts.default_voice", c.TTS.DefaultVoice)
	v.SetDefault("tts.cli_path", c.TTS.CLIPath)
	v.SetDefault("tts.cli_config_path", c.TTS.CLIConfigPath)
	v.SetDefault("tts.quiet", c.TTS.Quiet)
	v.SetDefault("tts.max_chunk_chars", c.TTS.MaxChunkChars)
	v.SetDefault("audio.ffmpeg_path", c.Audio.FFmpegPath)
	v.SetDefault("audio.mp3_quality", c.Audio.MP3Quality)
	v.SetDefault("audio.opus_bitrate", c.Audio.OpusBitrate)
	v.SetDefault("audio.fade_ms", c.Audio.FadeMs)
	v.SetDefault("audio.dc_block", c.Audio.DCBlock)
	v.SetDefault("audio.peak_normalize", c.Audio.PeakNormalize)
	v.SetDefault("log_level", c.LogLevel)
}

func registerAliases(v *viper.Viper) {
	v.RegisterAlias("server.listen_addr", "server-listen-addr")
	v.RegisterAlias("server.max_text_bytes", "server-max-text-bytes")
	v.RegisterAlias("server.request_timeout", "server-request-timeout")
	v.RegisterAlias("server.shutdown_timeout", "server-shutdown-timeout")
	v.RegisterAlias("server.workers", "server-workers")
	v.RegisterAlias("tts.model_id", "tts-model-id")
	v.RegisterAlias("tts.voice_dir", "tts-voice-dir")
	v.RegisterAlias("tts.default_voice", "tts-default-voice")
	v.RegisterAlias("tts.cli_path", "tts-cli-path")
	v.RegisterAlias("tts.cli_config_path", "tts-cli-config-path")
	v.RegisterAlias("tts.quiet", "tts-quiet")
	v.RegisterAlias("tts.max_chunk_chars", "tts-max-chunk-chars")
	v.RegisterAlias("audio.ffmpeg_path", "audio-ffmpeg-path")
	v.RegisterAlias("audio.mp3_quality", "audio-mp3-quality")
	v.RegisterAlias("audio.opus_bitrate", "audio-opus-bitrate")
	v.RegisterAlias("audio.fade_ms", "audio-fade-ms")
	v.RegisterAlias("audio.dc_block", "audio-dc-block")
	v.RegisterAlias("audio.peak_normalize", "audio-peak-normalize")
	v.RegisterAlias("log_level", "log-level")
}
