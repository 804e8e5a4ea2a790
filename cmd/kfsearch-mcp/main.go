// Package main provides the kfsearch-mcp entry point: an MCP server over
// stdio that exposes the same search operations as the kfsearch CLI to
// any MCP-speaking client.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kfsearch/kfsearch/internal/config"
	"github.com/kfsearch/kfsearch/internal/engine"
	"github.com/kfsearch/kfsearch/internal/logging"
	"github.com/kfsearch/kfsearch/internal/mcpserver"
)

func main() {
	var projectDir string
	var debugMode bool
	flag.StringVar(&projectDir, "config", ".", "Directory containing .kfsearch.yaml")
	flag.BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.kfsearch/logs/")
	flag.Parse()

	if debugMode {
		logger, cleanup, err := logging.Setup(logging.DebugConfig())
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		defer cleanup()
		slog.SetDefault(logger)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, projectDir); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, projectDir string) error {
	cfg, err := config.Load(projectDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	eng, err := engine.Build(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer eng.Close()

	srv := mcpserver.New(eng)
	return srv.Serve(ctx)
}
