package config

import (
	"strings"
	"time"
)

// Config is the curator's main configuration carrier.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Costs    CostsConfig    `mapstructure:"costs"`
	Backtest BacktestConfig `mapstructure:"backtest"`
	Source   SourceConfig   `mapstructure:"source"`
	Report   ReportConfig   `mapstructure:"report"`
	Sweep    SweepConfig    `mapstructure:"sweep"`
}

type AppConfig struct {
	Env      string `mapstructure:"env"`
	LogLevel string `mapstructure:"log_level"`
	HTTPAddr string `mapstructure:"http_addr"`
	LogPath  string `mapstructure:"log_path"`
	DataDir  string `mapstructure:"data_dir"`
}

// EngineConfig mirrors the allocation policy knobs.
type EngineConfig struct {
	MaxWeight            map[string]float64 `mapstructure:"max_weight"`
	DefaultMaxWeight     float64            `mapstructure:"default_max_weight"`
	MaxUtilization       float64            `mapstructure:"max_utilization"`
	RebalanceThreshold   float64            `mapstructure:"rebalance_threshold"`
	DiversificationFloor float64            `mapstructure:"diversification_floor"`
	RiskPenalty          float64            `mapstructure:"risk_penalty"`
}

// CostsConfig parameterizes rebalance frictions.
type CostsConfig struct {
	FeeRate          float64 `mapstructure:"fee_rate"`
	SlippageBase     float64 `mapstructure:"slippage_base"`
	SlippageSlope    float64 `mapstructure:"slippage_slope"`
	SlippageExponent float64 `mapstructure:"slippage_exponent"`
}

type BacktestConfig struct {
	StartingCapital  float64 `mapstructure:"starting_capital"`
	DecisionInterval int     `mapstructure:"decision_interval"`
	WarmupSteps      int     `mapstructure:"warmup_steps"`
	MaxConcurrent    int     `mapstructure:"max_concurrent"`
	ResultDir        string  `mapstructure:"result_dir"`
	AuditPath        string  `mapstructure:"audit_path"`
}

// SourceConfig selects and parameterizes the observation feed.
type SourceConfig struct {
	Kind         string          `mapstructure:"kind"` // csv | json | synthetic
	CSVDir       string          `mapstructure:"csv_dir"`
	JSONPath     string          `mapstructure:"json_path"`
	UniversePath string          `mapstructure:"universe_path"`
	Synthetic    SyntheticConfig `mapstructure:"synthetic"`
}

type SyntheticConfig struct {
	Seed       int64         `mapstructure:"seed"`
	Vaults     int           `mapstructure:"vaults"`
	Steps      int           `mapstructure:"steps"`
	Interval   time.Duration `mapstructure:"interval"`
	BaseYield  float64       `mapstructure:"base_yield"`
	YieldSwing float64       `mapstructure:"yield_swing"`
	Capacity   float64       `mapstructure:"capacity"`
	Outage     bool          `mapstructure:"outage"`
}

type ReportConfig struct {
	OutputDir string `mapstructure:"output_dir"`
	RenderPNG bool   `mapstructure:"render_png"`
}

type SweepConfig struct {
	ScenarioPath string `mapstructure:"scenario_path"`
	Concurrency  int    `mapstructure:"concurrency"`
}

// keySet tracks field paths explicitly set in the config files, so defaults
// never clobber an intentional zero.
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault describes one field's defaulting rule.
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
