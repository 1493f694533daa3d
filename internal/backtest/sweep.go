package backtest

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

// SweepScenario is one parameter variant in a sweep file. Zero values fall
// back to the sweep's base configuration.
type SweepScenario struct {
	Name               string  `yaml:"name"`
	StartingCapital    float64 `yaml:"starting_capital"`
	FeeRate            float64 `yaml:"fee_rate"`
	RebalanceThreshold float64 `yaml:"rebalance_threshold"`
	RiskPenalty        float64 `yaml:"risk_penalty"`
	MaxUtilization     float64 `yaml:"max_utilization"`
	DefaultMaxWeight   float64 `yaml:"default_max_weight"`
	DecisionInterval   int     `yaml:"decision_interval"`
	WarmupSteps        int     `yaml:"warmup_steps"`
}

// SweepFile is the on-disk shape of a scenario list.
type SweepFile struct {
	Scenarios []SweepScenario `yaml:"scenarios"`
}

// SweepResult pairs a scenario with its finished stats.
type SweepResult struct {
	Name   string    `json:"name"`
	Config RunConfig `json:"config"`
	Stats  RunStats  `json:"stats"`
	Err    string    `json:"error,omitempty"`
}

// LoadSweepFile parses a YAML scenario file.
func LoadSweepFile(path string) ([]SweepScenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file SweepFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(file.Scenarios) == 0 {
		return nil, fmt.Errorf("%s defines no scenarios", path)
	}
	for i, sc := range file.Scenarios {
		if sc.Name == "" {
			file.Scenarios[i].Name = fmt.Sprintf("scenario-%02d", i+1)
		}
	}
	return file.Scenarios, nil
}

func (sc SweepScenario) apply(base RunConfig) RunConfig {
	cfg := base
	cfg.Label = sc.Name
	if sc.StartingCapital > 0 {
		cfg.StartingCapital = sc.StartingCapital
	}
	if sc.FeeRate > 0 {
		cfg.Costs.FeeRate = sc.FeeRate
	}
	if sc.RebalanceThreshold > 0 {
		cfg.Engine.RebalanceThreshold = sc.RebalanceThreshold
	}
	if sc.RiskPenalty > 0 {
		cfg.Engine.RiskPenalty = sc.RiskPenalty
	}
	if sc.MaxUtilization > 0 {
		cfg.Engine.MaxUtilization = sc.MaxUtilization
	}
	if sc.DefaultMaxWeight > 0 {
		cfg.Engine.DefaultMaxWeight = sc.DefaultMaxWeight
	}
	if sc.DecisionInterval > 0 {
		cfg.DecisionInterval = sc.DecisionInterval
	}
	if sc.WarmupSteps > 0 {
		cfg.WarmupSteps = sc.WarmupSteps
	}
	return cfg
}

// RunSweep replays every scenario over the same source, bounded by
// concurrency, and returns results ranked by final equity. A scenario that
// fails keeps its slot with the error recorded so the ranking stays
// complete.
func RunSweep(ctx context.Context, source SourceFactory, base RunConfig, scenarios []SweepScenario, concurrency int) ([]SweepResult, error) {
	if len(scenarios) == 0 {
		return nil, fmt.Errorf("no scenarios to sweep")
	}
	if concurrency <= 0 {
		concurrency = 2
	}
	results := make([]SweepResult, len(scenarios))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, sc := range scenarios {
		i, sc := i, sc
		g.Go(func() error {
			cfg := sc.apply(base)
			src, err := source()
			if err != nil {
				return err
			}
			_, stats, runErr := Replay(gctx, src, cfg)
			res := SweepResult{Name: sc.Name, Config: cfg, Stats: stats}
			if runErr != nil {
				res.Err = runErr.Error()
			}
			mu.Lock()
			results[i] = res
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.SliceStable(results, func(a, b int) bool {
		return results[a].Stats.FinalEquity > results[b].Stats.FinalEquity
	})
	return results, nil
}
