package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"audiocaption/internal/caption"
	"audiocaption/internal/config"
	"audiocaption/internal/observability"
	"audiocaption/internal/report"
	"audiocaption/internal/upstream/openai"
)

const clientTitle = "Qwen3-Omni Audio Captioner Service Test Client"

type captionFlags struct {
	baseURL     string
	temperature float64
	topP        float64
	topK        int
	maxTokens   int
	timeout     time.Duration
	metricsFile string
}

func newRootCommand(cfg config.Config) *cobra.Command {
	flags := captionFlags{}

	rootCmd := &cobra.Command{
		Use:           "audiocaption [audio_url]",
		Short:         "Request a caption for an audio URL from a captioning service",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCaption(cmd, cfg, flags, args)
		},
	}

	f := rootCmd.Flags()
	f.StringVar(&flags.baseURL, "base-url", cfg.BaseURL, "Base URL of the captioning service")
	f.Float64Var(&flags.temperature, "temperature", cfg.Temperature, "Sampling temperature")
	f.Float64Var(&flags.topP, "top-p", cfg.TopP, "Top-p sampling parameter")
	f.IntVar(&flags.topK, "top-k", cfg.TopK, "Top-k sampling parameter")
	f.IntVar(&flags.maxTokens, "max-tokens", cfg.MaxTokens, "Maximum tokens to generate")
	f.DurationVar(&flags.timeout, "timeout", cfg.RequestTimeout, "Request timeout")
	f.StringVar(&flags.metricsFile, "metrics-file", cfg.MetricsFile, "Write Prometheus metrics to this file after the run")

	rootCmd.AddCommand(newServeMockCommand(cfg))

	return rootCmd
}

func runCaption(cmd *cobra.Command, cfg config.Config, flags captionFlags, args []string) error {
	printer := report.NewPrinter(cmd.OutOrStdout())
	logger := newLogger(cfg.LogLevel, cmd.ErrOrStderr())
	metrics := observability.NewMetrics()

	printer.Header(clientTitle, cfg.DefaultAudioURL)

	audioURL := cfg.DefaultAudioURL
	custom := len(args) == 1
	if custom {
		audioURL = args[0]
	}
	printer.Source(custom, fmt.Sprintf("%s <audio_url>", cmd.Root().Name()))

	factory := caption.HTTPClientFactory(newHTTPClient(flags.timeout), openai.WithObserver(metrics.ObserveUpstream))
	runner := caption.New(factory,
		caption.WithSink(printer),
		caption.WithLogger(logger),
		caption.WithResultObserver(func(kind caption.Kind, _ time.Duration) {
			metrics.ObserveResult(kind.String())
		}),
	)

	res := runner.Run(cmd.Context(), caption.Request{
		AudioURL:    audioURL,
		BaseURL:     flags.baseURL,
		Temperature: flags.temperature,
		TopP:        flags.topP,
		TopK:        flags.topK,
		MaxTokens:   flags.maxTokens,
		Timeout:     flags.timeout,
	})

	if flags.metricsFile != "" {
		if err := metrics.WriteTextfile(flags.metricsFile); err != nil {
			logger.Warn("metrics textfile write failed", "path", flags.metricsFile, "error", err)
		}
	}

	if code := res.ExitCode(); code != 0 {
		return &exitCodeError{code: code}
	}
	return nil
}
