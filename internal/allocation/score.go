package allocation

import (
	"sort"

	"github.com/Logarithm-Labs/curator-agent/internal/vault"
)

// scoredVault pairs a vault with its risk-adjusted expected yield.
type scoredVault struct {
	id       string
	score    float64
	held     float64 // current deposited fraction, for tie-breaking
	obs      vault.VaultObservation
	eligible bool // false when utilization already exceeds the cap
}

// scoreOf discounts the observed yield by the configured risk penalty.
// Unknown risk (RiskScore == 0) leaves the yield untouched.
func scoreOf(obs vault.VaultObservation, cfg Config) float64 {
	penalty := 1 - cfg.RiskPenalty*obs.RiskScore
	if penalty < 0 {
		penalty = 0
	}
	return obs.YieldRate * penalty
}

// rankVaults scores every available vault and orders them: score descending,
// then lower deposited fraction (prefer diversification), then vault id.
// The ordering is total, which is what makes the engine deterministic.
func rankVaults(state vault.PortfolioState, snap vault.ObservationSnapshot, cfg Config) []scoredVault {
	ranked := make([]scoredVault, 0, len(snap.Vaults))
	for _, id := range snap.VaultIDs() {
		obs, ok := snap.Lookup(id)
		if !ok {
			continue
		}
		ranked = append(ranked, scoredVault{
			id:       id,
			score:    scoreOf(obs, cfg),
			held:     state.DepositedFraction(id),
			obs:      obs,
			eligible: obs.Utilization <= cfg.MaxUtilization,
		})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		if ranked[i].held != ranked[j].held {
			return ranked[i].held < ranked[j].held
		}
		return ranked[i].id < ranked[j].id
	})
	return ranked
}
