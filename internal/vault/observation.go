package vault

import (
	"fmt"
	"sort"
	"time"
)

// VaultObservation is one per-vault data point, produced upstream and never
// modified by the core. YieldRate is an annualized fraction (0.05 = 5% APY),
// Utilization is how full the vault is and Capacity is its deposit ceiling in
// currency units. RiskScore is optional; zero means no penalty.
type VaultObservation struct {
	VaultID     string    `json:"vault_id"`
	Timestamp   time.Time `json:"timestamp"`
	YieldRate   float64   `json:"yield_rate"`
	Utilization float64   `json:"utilization"`
	Capacity    float64   `json:"capacity"`
	RiskScore   float64   `json:"risk_score,omitempty"`
	Available   bool      `json:"available"`
}

// FlowEvent is an external deposit into or withdrawal from the meta vault,
// attached to the snapshot of the timestep it arrives in. At most one side
// may be non-zero.
type FlowEvent struct {
	Deposit    float64 `json:"deposit,omitempty"`
	Withdrawal float64 `json:"withdrawal,omitempty"`
}

// IsZero reports whether the event carries no flow.
func (f FlowEvent) IsZero() bool {
	return f.Deposit == 0 && f.Withdrawal == 0
}

// ObservationSnapshot groups the observations of one timestep. Every vault in
// the universe appears exactly once; vaults without data carry an entry with
// Available=false instead of being silently absent.
type ObservationSnapshot struct {
	Timestamp time.Time                   `json:"timestamp"`
	Vaults    map[string]VaultObservation `json:"vaults"`
	Flow      FlowEvent                   `json:"flow,omitempty"`
}

// Validate checks the snapshot's internal consistency. It runs at the
// ingestion boundary so the decision path never sees a malformed snapshot.
func (s ObservationSnapshot) Validate() error {
	if s.Timestamp.IsZero() {
		return fmt.Errorf("snapshot has zero timestamp")
	}
	if len(s.Vaults) == 0 {
		return fmt.Errorf("snapshot %s has no vault entries", s.Timestamp.Format(time.RFC3339))
	}
	for id, obs := range s.Vaults {
		if obs.VaultID != id {
			return fmt.Errorf("snapshot %s: key %q does not match vault id %q", s.Timestamp.Format(time.RFC3339), id, obs.VaultID)
		}
		if !obs.Timestamp.Equal(s.Timestamp) {
			return fmt.Errorf("snapshot %s: vault %s carries timestamp %s", s.Timestamp.Format(time.RFC3339), id, obs.Timestamp.Format(time.RFC3339))
		}
		if !obs.Available {
			continue
		}
		if obs.Utilization < 0 || obs.Utilization > 1 {
			return fmt.Errorf("snapshot %s: vault %s utilization %.4f outside [0,1]", s.Timestamp.Format(time.RFC3339), id, obs.Utilization)
		}
		if obs.Capacity < 0 {
			return fmt.Errorf("snapshot %s: vault %s has negative capacity", s.Timestamp.Format(time.RFC3339), id)
		}
	}
	if s.Flow.Deposit < 0 || s.Flow.Withdrawal < 0 {
		return fmt.Errorf("snapshot %s: flow amounts must be non-negative", s.Timestamp.Format(time.RFC3339))
	}
	if s.Flow.Deposit > 0 && s.Flow.Withdrawal > 0 {
		return fmt.Errorf("snapshot %s: flow cannot carry both a deposit and a withdrawal", s.Timestamp.Format(time.RFC3339))
	}
	return nil
}

// VaultIDs returns the snapshot's vault ids in lexical order.
func (s ObservationSnapshot) VaultIDs() []string {
	ids := make([]string, 0, len(s.Vaults))
	for id := range s.Vaults {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Lookup returns the observation for a vault, requiring it to be available.
func (s ObservationSnapshot) Lookup(id string) (VaultObservation, bool) {
	obs, ok := s.Vaults[id]
	if !ok || !obs.Available {
		return VaultObservation{}, false
	}
	return obs, true
}
