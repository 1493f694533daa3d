package vault

import (
	"sort"
	"time"
)

// Dust is the smallest amount the core distinguishes from zero. Positions and
// trades below it are treated as empty.
const Dust = 1e-6

// PortfolioState is the meta vault's book at one instant: per-vault deposited
// amounts plus uninvested cash. It is a value threaded through the simulator
// loop; the executor returns a fresh state rather than mutating its input, so
// concurrent sweep runs never share one.
type PortfolioState struct {
	Timestamp time.Time          `json:"timestamp"`
	Deposits  map[string]float64 `json:"deposits"`
	Cash      float64            `json:"cash"`
}

// NewPortfolioState starts a portfolio holding only cash.
func NewPortfolioState(ts time.Time, cash float64) PortfolioState {
	return PortfolioState{Timestamp: ts, Deposits: make(map[string]float64), Cash: cash}
}

// TotalEquity is deposits plus cash.
func (p PortfolioState) TotalEquity() float64 {
	total := p.Cash
	for _, amt := range p.Deposits {
		total += amt
	}
	return total
}

// DepositedFraction returns vault id's share of total equity, 0 when the
// portfolio is empty.
func (p PortfolioState) DepositedFraction(id string) float64 {
	equity := p.TotalEquity()
	if equity <= 0 {
		return 0
	}
	return p.Deposits[id] / equity
}

// HeldVaults returns the ids with a position above Dust, in lexical order.
func (p PortfolioState) HeldVaults() []string {
	ids := make([]string, 0, len(p.Deposits))
	for id, amt := range p.Deposits {
		if amt > Dust {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Clone deep-copies the state so callers can build a successor without
// aliasing the deposits map.
func (p PortfolioState) Clone() PortfolioState {
	deposits := make(map[string]float64, len(p.Deposits))
	for id, amt := range p.Deposits {
		deposits[id] = amt
	}
	return PortfolioState{Timestamp: p.Timestamp, Deposits: deposits, Cash: p.Cash}
}
