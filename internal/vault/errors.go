package vault

import (
	"fmt"
	"time"
)

// The core distinguishes three fatal error families: data errors
// (MissingObservation, OutOfOrderObservation) that indicate an upstream
// data-quality gap, modeling errors (NegativeCash) that indicate a logic or
// config defect, and configuration errors rejected before a run starts. None
// are retried and none are patched over, since masking any of them would
// corrupt the backtest's validity.

// MissingObservationError reports a held vault with no usable observation in
// the current snapshot.
type MissingObservationError struct {
	VaultID   string
	Timestamp time.Time
}

func (e *MissingObservationError) Error() string {
	return fmt.Sprintf("missing observation for held vault %s at %s", e.VaultID, e.Timestamp.Format(time.RFC3339))
}

// OutOfOrderObservationError reports a snapshot whose timestamp does not
// strictly increase over its predecessor.
type OutOfOrderObservationError struct {
	Prev time.Time
	Next time.Time
}

func (e *OutOfOrderObservationError) Error() string {
	return fmt.Sprintf("out-of-order observation: %s does not advance past %s",
		e.Next.Format(time.RFC3339), e.Prev.Format(time.RFC3339))
}

// NegativeCashError reports a rebalance that would drive the cash balance
// negative. The offending state is attached for post-mortem inspection.
type NegativeCashError struct {
	Timestamp time.Time
	Cash      float64
	State     PortfolioState
}

func (e *NegativeCashError) Error() string {
	return fmt.Sprintf("cash balance would go negative (%.6f) at %s", e.Cash, e.Timestamp.Format(time.RFC3339))
}

// InvalidConfigError reports a configuration rejected by upfront validation.
type InvalidConfigError struct {
	Reason string
}

func (e *InvalidConfigError) Error() string {
	return "invalid config: " + e.Reason
}
