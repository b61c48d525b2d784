package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ivlev/vidstab/internal/config"
	"github.com/ivlev/vidstab/internal/engine"
	"github.com/ivlev/vidstab/internal/source"
	"github.com/ivlev/vidstab/internal/system"
	"github.com/ivlev/vidstab/internal/video"
)

type options struct {
	configPath string
	radius     int
	backend    string
	codec      string
	quality    int
	fps        float64
	workers    int
	noEnhance  bool
	report     string
	stats      bool
	logLevel   string
	logFormat  string
}

func newRootCommand() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "vidstab <input> <output>",
		Short: "Stabilize a shaky video and enhance its local contrast",
		Long: `vidstab runs two passes over the input. The first measures the camera motion
between consecutive frames; the second averages that motion over a sliding
window, warps every frame by the result and applies CLAHE to its luminance.

The input may be any file ffmpeg can decode, or a directory of PNG/JPEG frames.
An output path without an extension (or an existing directory) receives a
PNG sequence instead of an encoded video.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := buildConfig(cmd, opts, args)
			if err != nil {
				return err
			}
			if err := setupLogging(cfg, cmd.ErrOrStderr()); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.configPath, "config", "c", "", "YAML configuration file")
	f.IntVarP(&opts.radius, "radius", "r", config.DefaultRadius, "Smoothing radius in frames")
	f.StringVar(&opts.backend, "backend", "native", "Processing backend: native, opencv")
	f.StringVar(&opts.codec, "codec", "mpeg4", "Output video codec (auto picks a hardware H.264 encoder when available)")
	f.IntVarP(&opts.quality, "quality", "q", 0, "Encoder quality (0 = codec default; x264: CRF, NVENC: CQ, VideoToolbox: bitrate = Q*100kbit/s, mpeg4: qscale)")
	f.Float64Var(&opts.fps, "fps", 30, "Frame rate for image-sequence input")
	f.IntVarP(&opts.workers, "workers", "w", 0, "Worker goroutines (default: number of CPUs)")
	f.BoolVar(&opts.noEnhance, "no-enhance", false, "Skip local contrast enhancement")
	f.StringVar(&opts.report, "report", "", "Write a YAML report of the measured and smoothed motion")
	f.BoolVar(&opts.stats, "stats", false, "Print a performance report when done")
	f.StringVar(&opts.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	f.StringVar(&opts.logFormat, "log-format", "text", "Log format: text, json")

	return cmd
}

// buildConfig layers defaults, the config file and explicitly set flags.
func buildConfig(cmd *cobra.Command, opts options, args []string) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	cfg.InputPath = args[0]
	cfg.OutputPath = args[1]
	cfg.BuildVersion = Version

	f := cmd.Flags()
	if f.Changed("radius") {
		cfg.Radius = opts.radius
	}
	if f.Changed("backend") {
		cfg.Backend = opts.backend
	}
	if f.Changed("codec") {
		cfg.Codec = opts.codec
	}
	if f.Changed("quality") {
		cfg.Quality = opts.quality
	}
	if f.Changed("fps") {
		cfg.FPS = opts.fps
	}
	if f.Changed("workers") {
		cfg.Workers = opts.workers
	}
	if opts.noEnhance {
		cfg.Enhance.Enabled = false
	}
	if f.Changed("report") {
		cfg.ReportPath = opts.report
	}
	if opts.stats {
		cfg.ShowStats = true
	}
	if f.Changed("log-level") {
		cfg.LogLevel = opts.logLevel
	}
	if f.Changed("log-format") {
		cfg.LogFormat = opts.logFormat
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func setupLogging(cfg *config.Config, w io.Writer) error {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)
	logrus.SetOutput(w)

	switch cfg.LogFormat {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("unknown log format %q", cfg.LogFormat)
	}
	return nil
}

func run(ctx context.Context, cfg *config.Config, stdout, stderr io.Writer) error {
	start := time.Now()

	src, err := source.Open(ctx, cfg.InputPath, cfg.FPS)
	if err != nil {
		return err
	}
	defer src.Close()
	info := src.Info()
	if info.FPS <= 0 {
		info.FPS = cfg.FPS
	}

	codec, quality := resolveCodec(ctx, cfg.Codec, cfg.Quality)

	backend, err := engine.NewBackend(cfg.Backend, cfg)
	if err != nil {
		return err
	}

	sink, err := video.Open(ctx, cfg.OutputPath, video.Format{
		Width:   info.Width,
		Height:  info.Height,
		FPS:     info.FPS,
		Codec:   codec,
		Quality: quality,
	})
	if err != nil {
		return err
	}

	stab := engine.NewStabilizer(cfg, src, sink, backend)
	if isTerminal(stderr) {
		stab.Progress = newProgressBar(stderr)
	}

	res, runErr := stab.Run(ctx)
	if err := sink.Close(); err != nil && runErr == nil {
		runErr = fmt.Errorf("finalize output: %w", err)
	}
	if runErr != nil {
		return runErr
	}

	logrus.WithFields(logrus.Fields{
		"output":   cfg.OutputPath,
		"frames":   res.Written,
		"fallback": res.Fallback,
	}).Info("Stabilization finished")

	if cfg.ShowStats {
		writeStats(ctx, stdout, cfg, res, codec, time.Since(start))
	}
	return nil
}

// resolveCodec expands "auto" to the best available H.264 encoder and picks
// a sensible quality for it when none was given.
func resolveCodec(ctx context.Context, codec string, quality int) (string, int) {
	if codec != "auto" {
		return codec, quality
	}
	codec = system.DetectH264Encoder(ctx)
	if codec != "libx264" {
		logrus.WithField("encoder", codec).Info("Hardware encoder detected")
	}
	if quality == 0 {
		switch codec {
		case "h264_videotoolbox":
			quality = 75
		case "h264_nvenc":
			quality = 28
		default:
			quality = 23
		}
	}
	return codec, quality
}
