package app

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/Logarithm-Labs/curator-agent/internal/backtest"
	curcfg "github.com/Logarithm-Labs/curator-agent/internal/config"
	"github.com/Logarithm-Labs/curator-agent/internal/config/loader"
	"github.com/Logarithm-Labs/curator-agent/internal/logger"
	"github.com/Logarithm-Labs/curator-agent/internal/report"
	"github.com/Logarithm-Labs/curator-agent/internal/store"

	"golang.org/x/sync/errgroup"
)

// App holds the wired application: observation source, simulator, stores
// and the HTTP surface.
type App struct {
	cfg      *curcfg.Config
	universe *loader.UniverseLoader
	source   backtest.SourceFactory
	results  *backtest.ResultStore
	audit    *store.AuditStore
	sim      *backtest.Simulator
	http     *backtest.HTTPServer
}

// NewApp builds the application from config without starting anything.
func NewApp(cfg *curcfg.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(cfg)
}

// Close releases store handles.
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.results != nil {
		_ = a.results.Close()
	}
	if a.audit != nil {
		_ = a.audit.Close()
	}
}

// Serve runs the HTTP API until the context is cancelled.
func (a *App) Serve(ctx context.Context) error {
	if a == nil || a.http == nil {
		return fmt.Errorf("app not initialized")
	}
	a.sim.SetContext(ctx)
	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := a.http.Start(); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		return a.http.Shutdown(context.Background())
	})
	logger.Infof("serving on %s", a.cfg.App.HTTPAddr)
	return group.Wait()
}

// RunOnce executes a single backtest synchronously and writes its report.
func (a *App) RunOnce(ctx context.Context, label string) error {
	cfg := a.baseConfigCopy()
	cfg.Label = label
	run, err := a.sim.RunSync(ctx, cfg)
	if err != nil {
		return err
	}
	logger.Infof("run %s finished: status=%s final=%.2f return=%.2f%% maxDD=%.2f%% trades=%d",
		run.ID, run.Status, run.Stats.FinalEquity, run.Stats.ReturnPct*100,
		run.Stats.MaxDrawdownPct*100, run.Stats.Trades)
	if run.Status != backtest.RunStatusDone {
		return fmt.Errorf("run %s ended %s: %s", run.ID, run.Status, run.Message)
	}
	return a.writeReport(ctx, run)
}

// RunSweep replays every scenario in the configured file and logs the
// ranking.
func (a *App) RunSweep(ctx context.Context) error {
	path := a.cfg.Sweep.ScenarioPath
	if path == "" {
		return fmt.Errorf("sweep.scenario_path not configured")
	}
	scenarios, err := backtest.LoadSweepFile(path)
	if err != nil {
		return err
	}
	results, err := backtest.RunSweep(ctx, a.source, a.baseConfigCopy(), scenarios, a.cfg.Sweep.Concurrency)
	if err != nil {
		return err
	}
	for i, res := range results {
		if res.Err != "" {
			logger.Warnf("sweep #%d %s: failed after %d steps: %s", i+1, res.Name, res.Stats.Steps, res.Err)
			continue
		}
		logger.Infof("sweep #%d %s: final=%.2f return=%.2f%% maxDD=%.2f%% trades=%d",
			i+1, res.Name, res.Stats.FinalEquity, res.Stats.ReturnPct*100,
			res.Stats.MaxDrawdownPct*100, res.Stats.Trades)
	}
	return nil
}

// Report regenerates the report files for a stored run.
func (a *App) Report(ctx context.Context, runID string) error {
	if runID == "" {
		return fmt.Errorf("run id required for report mode")
	}
	run, err := a.results.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	return a.writeReport(ctx, run)
}

func (a *App) writeReport(ctx context.Context, run backtest.Run) error {
	records, err := a.results.ListRecords(ctx, run.ID, 5000)
	if err != nil {
		return err
	}
	input := report.Input{Run: run, Records: records}
	dir := a.cfg.Report.OutputDir
	htmlPath, pngPath, err := report.WriteFiles(ctx, dir, input)
	if err != nil {
		return err
	}
	csvPath := filepath.Join(dir, fmt.Sprintf("records_%s_%s.csv", run.ID, time.Now().UTC().Format("20060102T150405")))
	if err := report.WriteRecordsCSVFile(csvPath, records); err != nil {
		return err
	}
	logger.Infof("report written: html=%s png=%s csv=%s", htmlPath, pngPath, csvPath)
	return nil
}

func (a *App) baseConfigCopy() backtest.RunConfig {
	b := NewAppBuilder(a.cfg)
	b.universe = a.universe
	return b.baseRunConfig()
}
