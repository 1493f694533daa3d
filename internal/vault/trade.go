package vault

import "time"

// TradeRecord is one executed rebalance action. Delta is the signed amount
// moved into (positive) or out of (negative) the vault; Fee and Slippage are
// the costs charged for it. Records are immutable once emitted.
type TradeRecord struct {
	VaultID   string    `json:"vault_id"`
	Timestamp time.Time `json:"timestamp"`
	Delta     float64   `json:"delta"`
	Fee       float64   `json:"fee"`
	Slippage  float64   `json:"slippage"`
}

// Cost is the total friction paid for the trade.
func (t TradeRecord) Cost() float64 {
	return t.Fee + t.Slippage
}
