package rebalance

import (
	"fmt"
	"math"

	"github.com/Logarithm-Labs/curator-agent/internal/vault"
)

// SlippageCurve models execution cost that grows with the destination
// vault's utilization: rate = Base + Slope * utilization^Exponent. A vault
// near capacity has little marginal room, so moving size into it costs more.
type SlippageCurve struct {
	Base     float64 `json:"base"`
	Slope    float64 `json:"slope"`
	Exponent float64 `json:"exponent"`
}

// Rate returns the slippage rate for a given utilization, clamped to [0,1].
func (s SlippageCurve) Rate(utilization float64) float64 {
	u := math.Max(0, math.Min(1, utilization))
	exp := s.Exponent
	if exp <= 0 {
		exp = 1
	}
	return s.Base + s.Slope*math.Pow(u, exp)
}

// CostModel bundles the per-trade frictions the executor charges.
type CostModel struct {
	FeeRate  float64       `json:"fee_rate"`
	Slippage SlippageCurve `json:"slippage"`
}

// Validate rejects cost parameters no real venue would quote.
func (m CostModel) Validate() error {
	if m.FeeRate < 0 || m.FeeRate > 0.1 {
		return &vault.InvalidConfigError{Reason: fmt.Sprintf("fee_rate %.4f outside [0,0.1]", m.FeeRate)}
	}
	if m.Slippage.Base < 0 || m.Slippage.Slope < 0 {
		return &vault.InvalidConfigError{Reason: "slippage base and slope cannot be negative"}
	}
	if m.Slippage.Rate(1) > 0.5 {
		return &vault.InvalidConfigError{Reason: fmt.Sprintf("slippage rate at full utilization (%.4f) above 0.5", m.Slippage.Rate(1))}
	}
	return nil
}
