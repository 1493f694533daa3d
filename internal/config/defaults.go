package config

import (
	"strings"
	"time"
)

const (
	defaultAppEnv            = "dev"
	defaultAppLogLevel       = "info"
	defaultAppHTTPAddr       = ":9980"
	defaultAppLogPath        = "data/logs/curator.log"
	defaultAppDataDir        = "data"
	defaultMaxWeight         = 1.0
	defaultMaxUtilization    = 0.95
	defaultThreshold         = 0.02
	defaultFeeRate           = 0.001
	defaultSlippageBase      = 0.0005
	defaultSlippageSlope     = 0.002
	defaultSlippageExponent  = 2.0
	defaultStartingCapital   = 10000.0
	defaultDecisionInterval  = 1
	defaultMaxConcurrent     = 2
	defaultResultDir         = "data/backtests"
	defaultAuditPath         = "data/backtests/decisions.db"
	defaultSourceKind        = "synthetic"
	defaultSyntheticVaults   = 4
	defaultSyntheticSteps    = 365
	defaultSyntheticInterval = 24 * time.Hour
	defaultSyntheticYield    = 0.08
	defaultSyntheticSwing    = 0.05
	defaultSyntheticCapacity = 50000.0
	defaultReportDir         = "data/reports"
	defaultSweepConcurrency  = 2
)

func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Engine.applyDefaults(keys)
	c.Costs.applyDefaults(keys)
	c.Backtest.applyDefaults(keys)
	c.Source.applyDefaults(keys)
	c.Report.applyDefaults(keys)
	c.Sweep.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
		stringFieldDefault("app.data_dir", &a.DataDir, defaultAppDataDir),
	)
}

func (e *EngineConfig) applyDefaults(keys keySet) {
	if e == nil {
		return
	}
	applyFieldDefaults(keys,
		floatFieldDefault("engine.default_max_weight", &e.DefaultMaxWeight, defaultMaxWeight),
		floatFieldDefault("engine.max_utilization", &e.MaxUtilization, defaultMaxUtilization),
		floatFieldDefault("engine.rebalance_threshold", &e.RebalanceThreshold, defaultThreshold),
	)
}

func (c *CostsConfig) applyDefaults(keys keySet) {
	if c == nil {
		return
	}
	applyFieldDefaults(keys,
		floatFieldDefault("costs.fee_rate", &c.FeeRate, defaultFeeRate),
		floatFieldDefault("costs.slippage_base", &c.SlippageBase, defaultSlippageBase),
		floatFieldDefault("costs.slippage_slope", &c.SlippageSlope, defaultSlippageSlope),
		floatFieldDefault("costs.slippage_exponent", &c.SlippageExponent, defaultSlippageExponent),
	)
}

func (b *BacktestConfig) applyDefaults(keys keySet) {
	if b == nil {
		return
	}
	applyFieldDefaults(keys,
		floatFieldDefault("backtest.starting_capital", &b.StartingCapital, defaultStartingCapital),
		fieldDefault{
			key:   "backtest.decision_interval",
			need:  func() bool { return b.DecisionInterval <= 0 },
			apply: func() { b.DecisionInterval = defaultDecisionInterval },
		},
		fieldDefault{
			key:   "backtest.max_concurrent",
			need:  func() bool { return b.MaxConcurrent <= 0 },
			apply: func() { b.MaxConcurrent = defaultMaxConcurrent },
		},
		stringFieldDefault("backtest.result_dir", &b.ResultDir, defaultResultDir),
		stringFieldDefault("backtest.audit_path", &b.AuditPath, defaultAuditPath),
	)
}

func (s *SourceConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("source.kind", &s.Kind, defaultSourceKind),
	)
	s.Synthetic.applyDefaults(keys)
}

func (s *SyntheticConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "source.synthetic.vaults",
			need:  func() bool { return s.Vaults <= 0 },
			apply: func() { s.Vaults = defaultSyntheticVaults },
		},
		fieldDefault{
			key:   "source.synthetic.steps",
			need:  func() bool { return s.Steps <= 0 },
			apply: func() { s.Steps = defaultSyntheticSteps },
		},
		fieldDefault{
			key:   "source.synthetic.interval",
			need:  func() bool { return s.Interval <= 0 },
			apply: func() { s.Interval = defaultSyntheticInterval },
		},
		floatFieldDefault("source.synthetic.base_yield", &s.BaseYield, defaultSyntheticYield),
		floatFieldDefault("source.synthetic.yield_swing", &s.YieldSwing, defaultSyntheticSwing),
		floatFieldDefault("source.synthetic.capacity", &s.Capacity, defaultSyntheticCapacity),
	)
}

func (r *ReportConfig) applyDefaults(keys keySet) {
	if r == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("report.output_dir", &r.OutputDir, defaultReportDir),
	)
}

func (s *SweepConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "sweep.concurrency",
			need:  func() bool { return s.Concurrency <= 0 },
			apply: func() { s.Concurrency = defaultSweepConcurrency },
		},
	)
}

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func floatFieldDefault(key string, target *float64, def float64) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil && *target == 0 },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
