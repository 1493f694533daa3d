package vault

import (
	"fmt"
	"sort"
)

// AllocationTarget maps vault id to the target fraction of total equity.
// Weights sum to at most 1; the residual stays in cash. Consumers must treat
// a target as read-only.
type AllocationTarget map[string]float64

// Weight returns the target weight for a vault, 0 when absent.
func (t AllocationTarget) Weight(id string) float64 {
	return t[id]
}

// TotalWeight sums the target's weights.
func (t AllocationTarget) TotalWeight() float64 {
	total := 0.0
	for _, w := range t {
		total += w
	}
	return total
}

// VaultIDs returns the target's vault ids in lexical order.
func (t AllocationTarget) VaultIDs() []string {
	ids := make([]string, 0, len(t))
	for id := range t {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Validate enforces non-negative weights summing to at most 1 (with a small
// float tolerance).
func (t AllocationTarget) Validate() error {
	total := 0.0
	for id, w := range t {
		if w < 0 {
			return fmt.Errorf("target weight for %s is negative (%.6f)", id, w)
		}
		total += w
	}
	if total > 1+1e-9 {
		return fmt.Errorf("target weights sum to %.6f, above 1", total)
	}
	return nil
}

// Clone copies the target.
func (t AllocationTarget) Clone() AllocationTarget {
	out := make(AllocationTarget, len(t))
	for id, w := range t {
		out[id] = w
	}
	return out
}
