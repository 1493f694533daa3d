package config

import (
	"fmt"
	"strings"
)

// validate runs eagerly at load time so a bad file never reaches a run.
func validate(c *Config) error {
	if err := c.Engine.validate(); err != nil {
		return err
	}
	if err := c.Costs.validate(); err != nil {
		return err
	}
	if err := c.Backtest.validate(); err != nil {
		return err
	}
	if err := c.Source.validate(); err != nil {
		return err
	}
	return nil
}

func (e *EngineConfig) validate() error {
	if e.DefaultMaxWeight <= 0 || e.DefaultMaxWeight > 1 {
		return fmt.Errorf("engine.default_max_weight must be in (0, 1]")
	}
	for id, w := range e.MaxWeight {
		if w < 0 || w > 1 {
			return fmt.Errorf("engine.max_weight.%s must be in [0, 1]", id)
		}
	}
	if e.MaxUtilization <= 0 || e.MaxUtilization > 1 {
		return fmt.Errorf("engine.max_utilization must be in (0, 1]")
	}
	if e.RebalanceThreshold < 0 || e.RebalanceThreshold >= 1 {
		return fmt.Errorf("engine.rebalance_threshold must be in [0, 1)")
	}
	if e.DiversificationFloor < 0 || e.DiversificationFloor > 1 {
		return fmt.Errorf("engine.diversification_floor must be in [0, 1]")
	}
	if e.RiskPenalty < 0 {
		return fmt.Errorf("engine.risk_penalty must be >= 0")
	}
	return nil
}

func (c *CostsConfig) validate() error {
	if c.FeeRate < 0 || c.FeeRate > 0.1 {
		return fmt.Errorf("costs.fee_rate must be in [0, 0.1]")
	}
	if c.SlippageBase < 0 || c.SlippageSlope < 0 {
		return fmt.Errorf("costs.slippage_base and slippage_slope must be >= 0")
	}
	return nil
}

func (b *BacktestConfig) validate() error {
	if b.StartingCapital <= 0 {
		return fmt.Errorf("backtest.starting_capital must be positive")
	}
	if b.WarmupSteps < 0 {
		return fmt.Errorf("backtest.warmup_steps must be >= 0")
	}
	return nil
}

func (s *SourceConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(s.Kind)) {
	case "csv":
		if strings.TrimSpace(s.CSVDir) == "" {
			return fmt.Errorf("source.csv_dir required for csv source")
		}
	case "json":
		if strings.TrimSpace(s.JSONPath) == "" {
			return fmt.Errorf("source.json_path required for json source")
		}
	case "synthetic":
	default:
		return fmt.Errorf("source.kind must be csv, json or synthetic")
	}
	return nil
}
