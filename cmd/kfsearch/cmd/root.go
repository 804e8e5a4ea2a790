// Package cmd provides the CLI commands for kfsearch.
package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/kfsearch/kfsearch/internal/config"
	"github.com/kfsearch/kfsearch/internal/logging"
	"github.com/kfsearch/kfsearch/pkg/version"
)

var (
	projectDir     string
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the kfsearch CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kfsearch",
		Short: "Multi-model keyframe retrieval engine",
		Long: `kfsearch searches a pre-built keyframe index by text, by example
image, by visual neighbor, and across a temporal sequence of sentences
describing a scene.

It never loads model weights in-process: every configured model is an
HTTP backend the engine talks to over the network.`,
		Version:      version.Version,
		SilenceUsage: true,
	}

	cmd.SetVersionTemplate("kfsearch version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&projectDir, "config", ".", "Directory containing .kfsearch.yaml")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.kfsearch/logs/")

	cmd.PersistentPreRunE = startLogging
	cmd.PersistentPostRunE = stopLogging

	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newTemporalCmd())
	cmd.AddCommand(newFuseCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

func startLogging(_ *cobra.Command, _ []string) error {
	if !debugMode {
		return nil
	}
	logger, cleanup, err := logging.Setup(logging.DebugConfig())
	if err != nil {
		return err
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	return nil
}

func stopLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

func loadProjectConfig() (*config.Config, error) {
	return config.Load(projectDir)
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
