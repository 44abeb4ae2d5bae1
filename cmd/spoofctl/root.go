package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dudu/facelive/internal/config"
	"github.com/dudu/facelive/internal/inference"
	"github.com/dudu/facelive/internal/liveness"
	"github.com/dudu/facelive/internal/log"
	"github.com/dudu/facelive/internal/pipeline"
)

// Version is the application version.
const Version = "0.1.0"

var (
	// cfg is loaded once before any subcommand runs
	cfg *config.Config

	envFile   string
	modelDir  string
	manifest  string
	logLevel  string
	threshold float64
)

var rootCmd = &cobra.Command{
	Use:     "spoofctl",
	Short:   "Face detection and liveness scoring tool",
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var envFiles []string
		if envFile != "" {
			envFiles = append(envFiles, envFile)
		}
		loaded, err := config.Load(envFiles...)
		if err != nil {
			return err
		}
		if modelDir != "" {
			loaded.ModelDir = modelDir
		}
		if manifest != "" {
			loaded.LivenessManifest = manifest
		}
		if logLevel != "" {
			loaded.LogLevel = logLevel
		}
		if cmd.Flags().Changed("threshold") {
			loaded.LiveThreshold = threshold
		}
		if err := loaded.Validate(); err != nil {
			return fmt.Errorf("invalid flags: %w", err)
		}
		cfg = loaded
		log.Setup(cfg.LogOptions())
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if err := inference.Shutdown(); err != nil {
			log.Warn(log.Fields{"error": err.Error()}, "failed to shut down onnxruntime")
		}
	},
}

// buildPipeline loads the detector and, when a manifest is set, the
// liveness sub-models.
func buildPipeline() (*pipeline.Pipeline, error) {
	models, err := cfg.LivenessModels()
	if err != nil {
		return nil, err
	}
	return pipeline.Build(pipeline.Config{
		Loader:      cfg.Loader(),
		Detector:    cfg.Detector(),
		Liveness:    models,
		Aggregation: liveness.Aggregation(cfg.Aggregation),
		Layout:      cfg.Layout(),
		Threshold:   float32(cfg.LiveThreshold),
	})
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env", "", "Env file to load (default: .env when present)")
	rootCmd.PersistentFlags().StringVar(&modelDir, "models", "", "Model directory (overrides FACELIVE_MODEL_DIR)")
	rootCmd.PersistentFlags().StringVar(&manifest, "manifest", "", "Liveness manifest JSON (overrides FACELIVE_LIVENESS_MANIFEST)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (overrides FACELIVE_LOG_LEVEL)")
	rootCmd.PersistentFlags().Float64Var(&threshold, "threshold", 0.5, "Minimum liveness score counted as live")
}

func main() {
	Execute()
}
