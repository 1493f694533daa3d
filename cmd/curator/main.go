package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/Logarithm-Labs/curator-agent/internal/app"
	curcfg "github.com/Logarithm-Labs/curator-agent/internal/config"
	"github.com/Logarithm-Labs/curator-agent/internal/logger"
)

func main() {
	var (
		cfgPath = flag.String("config", defaultConfigPath(), "config file path")
		mode    = flag.String("mode", "serve", "run | serve | sweep | report")
		label   = flag.String("label", "", "label for a single run")
		runID   = flag.String("run", "", "run id for report mode")
	)
	flag.Parse()

	cfg, err := curcfg.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}
	logFile, err := setupLogOutput(cfg.App.LogPath)
	if err != nil {
		log.Fatalf("init log file failed: %v", err)
	}
	if logFile != nil {
		defer logFile.Close()
	}
	logger.SetLevel(cfg.App.LogLevel)
	logger.Infof("config loaded (env=%s, source=%s)", cfg.App.Env, cfg.Source.Kind)

	a, err := app.NewApp(cfg)
	if err != nil {
		log.Fatalf("init app failed: %v", err)
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := dispatch(ctx, a, *mode, *label, *runID); err != nil {
		log.Fatalf("%s failed: %v", *mode, err)
	}
}

func dispatch(ctx context.Context, a *app.App, mode, label, runID string) error {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "serve":
		return a.Serve(ctx)
	case "run":
		return a.RunOnce(ctx, label)
	case "sweep":
		return a.RunSweep(ctx)
	case "report":
		return a.Report(ctx, runID)
	default:
		return fmt.Errorf("unknown mode %q", mode)
	}
}

func defaultConfigPath() string {
	if env := os.Getenv("CURATOR_CONFIG"); env != "" {
		return env
	}
	return "configs/config.yaml"
}

func setupLogOutput(path string) (*os.File, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, nil
	}
	dir := filepath.Dir(trimmed)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.OpenFile(trimmed, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	mw := io.MultiWriter(os.Stdout, file)
	log.SetOutput(mw)
	logger.SetOutput(mw)
	return file, nil
}
