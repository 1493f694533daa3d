package app

import (
	"fmt"
	"strings"

	"github.com/Logarithm-Labs/curator-agent/internal/allocation"
	"github.com/Logarithm-Labs/curator-agent/internal/backtest"
	curcfg "github.com/Logarithm-Labs/curator-agent/internal/config"
	"github.com/Logarithm-Labs/curator-agent/internal/config/loader"
	"github.com/Logarithm-Labs/curator-agent/internal/logger"
	"github.com/Logarithm-Labs/curator-agent/internal/rebalance"
	"github.com/Logarithm-Labs/curator-agent/internal/store"
)

// AppBuilder assembles the application piece by piece so each dependency
// can fail fast with a precise error.
type AppBuilder struct {
	cfg *curcfg.Config

	universe *loader.UniverseLoader
	source   backtest.SourceFactory
	results  *backtest.ResultStore
	audit    *store.AuditStore
	sim      *backtest.Simulator
	http     *backtest.HTTPServer
}

func NewAppBuilder(cfg *curcfg.Config) *AppBuilder {
	return &AppBuilder{cfg: cfg}
}

// Build wires the full dependency graph.
func (b *AppBuilder) Build() (*App, error) {
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	steps := []struct {
		name string
		fn   func() error
	}{
		{"universe", b.buildUniverse},
		{"source", b.buildSource},
		{"stores", b.buildStores},
		{"simulator", b.buildSimulator},
		{"http", b.buildHTTP},
	}
	for _, step := range steps {
		if err := step.fn(); err != nil {
			return nil, fmt.Errorf("build %s: %w", step.name, err)
		}
	}
	return &App{
		cfg:      b.cfg,
		universe: b.universe,
		source:   b.source,
		results:  b.results,
		audit:    b.audit,
		sim:      b.sim,
		http:     b.http,
	}, nil
}

func (b *AppBuilder) buildUniverse() error {
	path := strings.TrimSpace(b.cfg.Source.UniversePath)
	if path == "" {
		return nil
	}
	l, err := loader.NewUniverseLoader(path)
	if err != nil {
		return err
	}
	b.universe = l
	logger.Infof("universe loaded: %d vaults", len(l.Snapshot().Vaults))
	return nil
}

func (b *AppBuilder) buildSource() error {
	src := b.cfg.Source
	switch strings.ToLower(strings.TrimSpace(src.Kind)) {
	case "csv":
		factory, err := backtest.NewCSVSourceFactory(src.CSVDir)
		if err != nil {
			return err
		}
		b.source = factory
	case "json":
		factory, err := backtest.NewJSONSourceFactory(src.JSONPath)
		if err != nil {
			return err
		}
		b.source = factory
	case "synthetic":
		b.source = backtest.NewSyntheticSourceFactory(backtest.SyntheticConfig{
			Seed:       src.Synthetic.Seed,
			Vaults:     src.Synthetic.Vaults,
			Steps:      src.Synthetic.Steps,
			Interval:   src.Synthetic.Interval,
			BaseYield:  src.Synthetic.BaseYield,
			YieldSwing: src.Synthetic.YieldSwing,
			Capacity:   src.Synthetic.Capacity,
			Outage:     src.Synthetic.Outage,
		})
	default:
		return fmt.Errorf("unknown source kind %q", src.Kind)
	}
	return nil
}

func (b *AppBuilder) buildStores() error {
	results, err := backtest.NewResultStore(b.cfg.Backtest.ResultDir)
	if err != nil {
		return err
	}
	b.results = results
	if path := strings.TrimSpace(b.cfg.Backtest.AuditPath); path != "" {
		audit, err := store.NewAuditStore(path)
		if err != nil {
			return err
		}
		b.audit = audit
	}
	return nil
}

func (b *AppBuilder) buildSimulator() error {
	var recorder backtest.DecisionRecorder
	if b.audit != nil {
		recorder = b.audit
	}
	sim, err := backtest.NewSimulator(backtest.SimulatorConfig{
		ResultStore:   b.results,
		Source:        b.source,
		BaseRun:       b.baseRunConfig(),
		Recorder:      recorder,
		MaxConcurrent: b.cfg.Backtest.MaxConcurrent,
	})
	if err != nil {
		return err
	}
	b.sim = sim
	return nil
}

func (b *AppBuilder) buildHTTP() error {
	srv, err := backtest.NewHTTPServer(backtest.HTTPConfig{
		Addr:      b.cfg.App.HTTPAddr,
		Simulator: b.sim,
		Results:   b.results,
	})
	if err != nil {
		return err
	}
	b.http = srv
	return nil
}

// baseRunConfig folds the engine, cost and universe config into the run
// defaults every submission inherits.
func (b *AppBuilder) baseRunConfig() backtest.RunConfig {
	engine := allocation.Config{
		MaxWeight:            b.cfg.Engine.MaxWeight,
		DefaultMaxWeight:     b.cfg.Engine.DefaultMaxWeight,
		MaxUtilization:       b.cfg.Engine.MaxUtilization,
		RebalanceThreshold:   b.cfg.Engine.RebalanceThreshold,
		DiversificationFloor: b.cfg.Engine.DiversificationFloor,
		RiskPenalty:          b.cfg.Engine.RiskPenalty,
	}
	if b.universe != nil {
		caps := b.universe.Snapshot().MaxWeights()
		if len(caps) > 0 {
			merged := make(map[string]float64, len(caps)+len(engine.MaxWeight))
			for k, v := range caps {
				merged[k] = v
			}
			// Explicit engine.max_weight entries win over universe caps.
			for k, v := range engine.MaxWeight {
				merged[k] = v
			}
			engine.MaxWeight = merged
		}
	}
	return backtest.RunConfig{
		StartingCapital: b.cfg.Backtest.StartingCapital,
		Engine:          engine,
		Costs: rebalance.CostModel{
			FeeRate: b.cfg.Costs.FeeRate,
			Slippage: rebalance.SlippageCurve{
				Base:     b.cfg.Costs.SlippageBase,
				Slope:    b.cfg.Costs.SlippageSlope,
				Exponent: b.cfg.Costs.SlippageExponent,
			},
		},
		DecisionInterval: b.cfg.Backtest.DecisionInterval,
		WarmupSteps:      b.cfg.Backtest.WarmupSteps,
	}
}
