package backtest

import (
	"encoding/json"
	"time"

	"github.com/Logarithm-Labs/curator-agent/internal/allocation"
	"github.com/Logarithm-Labs/curator-agent/internal/rebalance"
	"github.com/Logarithm-Labs/curator-agent/internal/vault"
)

const (
	RunStatusPending = "pending"
	RunStatusRunning = "running"
	RunStatusDone    = "done"
	RunStatusFailed  = "failed"
)

// RunConfig is the full parameter snapshot of one backtest, persisted with
// the run so results stay replayable.
type RunConfig struct {
	Label            string              `json:"label,omitempty"`
	StartingCapital  float64             `json:"starting_capital"`
	Engine           allocation.Config   `json:"engine"`
	Costs            rebalance.CostModel `json:"costs"`
	DecisionInterval int                 `json:"decision_interval"`
	WarmupSteps      int                 `json:"warmup_steps"`
}

// Validate rejects a config before any timestep executes. The vault universe
// comes from the first snapshot, so engine validation runs against it.
func (c RunConfig) Validate(universe []string) error {
	if c.StartingCapital <= 0 {
		return &vault.InvalidConfigError{Reason: "starting_capital must be positive"}
	}
	if c.DecisionInterval < 0 || c.WarmupSteps < 0 {
		return &vault.InvalidConfigError{Reason: "decision_interval and warmup_steps cannot be negative"}
	}
	if err := c.Costs.Validate(); err != nil {
		return err
	}
	return c.Engine.Validate(universe)
}

// interval returns the decision cadence; the zero value means every step.
func (c RunConfig) interval() int {
	if c.DecisionInterval <= 1 {
		return 1
	}
	return c.DecisionInterval
}

// ResultRecord is one row of the run's output log: the portfolio after the
// step, the step's return, and the frictions paid for it. The simulator is
// the sole writer; consumers treat the log as immutable.
type ResultRecord struct {
	Step             int                 `json:"step"`
	Timestamp        time.Time           `json:"timestamp"`
	Holdings         map[string]float64  `json:"holdings"`
	Cash             float64             `json:"cash"`
	TotalEquity      float64             `json:"total_equity"`
	PeriodReturn     float64             `json:"period_return"`
	CumulativeReturn float64             `json:"cumulative_return"`
	Fees             float64             `json:"fees"`
	Slippage         float64             `json:"slippage"`
	Trades           []vault.TradeRecord `json:"trades,omitempty"`
	Decided          bool                `json:"decided"`
}

// RunStats summarizes a finished (or aborted) run.
type RunStats struct {
	FinalEquity    float64   `json:"final_equity"`
	Profit         float64   `json:"profit"`
	ReturnPct      float64   `json:"return_pct"`
	MaxDrawdownPct float64   `json:"max_drawdown_pct"`
	TotalFees      float64   `json:"total_fees"`
	TotalSlippage  float64   `json:"total_slippage"`
	Trades         int       `json:"trades"`
	Steps          int       `json:"steps"`
	Decisions      int       `json:"decisions"`
	EquityPeak     float64   `json:"equity_peak"`
	EquityValley   float64   `json:"equity_valley"`
	FinishedAt     time.Time `json:"finished_at"`
}

// Run is one backtest task tracked by the result store.
type Run struct {
	ID          string    `json:"id"`
	Label       string    `json:"label"`
	Status      string    `json:"status"`
	Message     string    `json:"message"`
	Config      RunConfig `json:"config"`
	Stats       RunStats  `json:"stats"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// MarshalConfig returns the config JSON for persistence.
func (r Run) MarshalConfig() ([]byte, error) {
	return json.Marshal(r.Config)
}

// RunRequest is the HTTP submission shape; zero-valued overrides fall back
// to the server's base configuration.
type RunRequest struct {
	Label              string  `json:"label"`
	StartingCapital    float64 `json:"starting_capital"`
	FeeRate            float64 `json:"fee_rate"`
	RebalanceThreshold float64 `json:"rebalance_threshold"`
	RiskPenalty        float64 `json:"risk_penalty"`
	DecisionInterval   int     `json:"decision_interval"`
	WarmupSteps        int     `json:"warmup_steps"`
}

// Apply folds the request's non-zero overrides into a base config.
func (r RunRequest) Apply(base RunConfig) RunConfig {
	cfg := base
	cfg.Label = r.Label
	if r.StartingCapital > 0 {
		cfg.StartingCapital = r.StartingCapital
	}
	if r.FeeRate > 0 {
		cfg.Costs.FeeRate = r.FeeRate
	}
	if r.RebalanceThreshold > 0 {
		cfg.Engine.RebalanceThreshold = r.RebalanceThreshold
	}
	if r.RiskPenalty > 0 {
		cfg.Engine.RiskPenalty = r.RiskPenalty
	}
	if r.DecisionInterval > 0 {
		cfg.DecisionInterval = r.DecisionInterval
	}
	if r.WarmupSteps > 0 {
		cfg.WarmupSteps = r.WarmupSteps
	}
	return cfg
}
