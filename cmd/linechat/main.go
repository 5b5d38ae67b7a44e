// Command linechat runs the LINE chat bot: a webhook server that answers chat messages
// with OpenAI chat completions while keeping a short per-user conversation history.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"linechat/internal/kernel"
	"linechat/pkg/config"
	"linechat/pkg/logx"
	"linechat/pkg/version"
	"linechat/pkg/webhook"
)

const shutdownTimeout = 10 * time.Second

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run parses flags, loads configuration and serves until SIGINT/SIGTERM.
// It returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("linechat", flag.ContinueOnError)
	flags.SetOutput(stderr)
	var (
		configPath  = flags.String("config", "", "Path to a YAML config file (default $"+config.EnvConfigPath+")")
		showVersion = flags.Bool("version", false, "Show version information")
	)
	if err := flags.Parse(args); err != nil {
		return 2
	}

	if *showVersion {
		fmt.Fprintln(stdout, version.String())
		return 0
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		var cerr *config.Error
		if errors.As(err, &cerr) {
			fmt.Fprintf(stderr, "❌ %v\n", cerr)
		} else {
			fmt.Fprintf(stderr, "❌ Failed to load configuration: %v\n", err)
		}
		return 1
	}
	if cfg.Debug {
		logx.SetDebug(true)
	}

	logger := logx.NewLogger("main")
	logger.Info("Starting %s", version.String())
	logger.Info("Configuration: %s", cfg.Summary())

	replier, err := webhook.NewLineReplier(cfg.Line.ChannelAccessToken)
	if err != nil {
		logger.Error("%v", err)
		return 1
	}

	k, err := kernel.NewKernel(cfg, kernel.WithRuntimeMetrics())
	if err != nil {
		return 1
	}
	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           k.Handler(replier),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("🚀 Listening on %s (model %s)", server.Addr, cfg.OpenAI.Model)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			logger.Error("Server error: %v", err)
			return 1
		}
		return 0
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	//nolint:contextcheck // Parent context is cancelled; shutdown needs a fresh one.
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed: %v", err)
		return 1
	}
	return 0
}
