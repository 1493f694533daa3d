package allocation

import (
	"fmt"

	"github.com/Logarithm-Labs/curator-agent/internal/vault"
)

// Config is the engine's full parameter surface. Everything the decision
// depends on is here; there is no implicit global state.
type Config struct {
	// MaxWeight caps a single vault's share of equity. Per-vault overrides
	// win over DefaultMaxWeight.
	MaxWeight        map[string]float64
	DefaultMaxWeight float64

	// MaxUtilization blocks new deposits into vaults already fuller than
	// this fraction of their capacity.
	MaxUtilization float64

	// RebalanceThreshold is the hysteresis band: a vault's weight only moves
	// when the candidate differs from the current deposited fraction by more
	// than this.
	RebalanceThreshold float64

	// DiversificationFloor is the minimum total weight the caps must admit;
	// a universe whose caps sum below it cannot express a valid portfolio.
	DiversificationFloor float64

	// RiskPenalty scales how hard RiskScore discounts a vault's yield.
	RiskPenalty float64
}

// CapFor returns the effective max weight for a vault.
func (c Config) CapFor(id string) float64 {
	if w, ok := c.MaxWeight[id]; ok {
		return w
	}
	return c.DefaultMaxWeight
}

// Validate rejects configs that could never produce a valid allocation for
// the given universe. It runs once at run start, before any timestep.
func (c Config) Validate(universe []string) error {
	if c.DefaultMaxWeight < 0 || c.DefaultMaxWeight > 1 {
		return &vault.InvalidConfigError{Reason: fmt.Sprintf("default_max_weight %.4f outside [0,1]", c.DefaultMaxWeight)}
	}
	for id, w := range c.MaxWeight {
		if w < 0 || w > 1 {
			return &vault.InvalidConfigError{Reason: fmt.Sprintf("max_weight for %s (%.4f) outside [0,1]", id, w)}
		}
	}
	if c.MaxUtilization <= 0 || c.MaxUtilization > 1 {
		return &vault.InvalidConfigError{Reason: fmt.Sprintf("max_utilization %.4f outside (0,1]", c.MaxUtilization)}
	}
	if c.RebalanceThreshold < 0 || c.RebalanceThreshold >= 1 {
		return &vault.InvalidConfigError{Reason: fmt.Sprintf("rebalance_threshold %.4f outside [0,1)", c.RebalanceThreshold)}
	}
	if c.DiversificationFloor < 0 || c.DiversificationFloor > 1 {
		return &vault.InvalidConfigError{Reason: fmt.Sprintf("diversification_floor %.4f outside [0,1]", c.DiversificationFloor)}
	}
	if c.RiskPenalty < 0 {
		return &vault.InvalidConfigError{Reason: "risk_penalty cannot be negative"}
	}
	total := 0.0
	for _, id := range universe {
		total += c.CapFor(id)
	}
	if len(universe) > 0 && total < c.DiversificationFloor {
		return &vault.InvalidConfigError{Reason: fmt.Sprintf(
			"weight caps sum to %.4f, below diversification floor %.4f", total, c.DiversificationFloor)}
	}
	return nil
}
