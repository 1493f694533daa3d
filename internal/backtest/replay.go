package backtest

import (
	"context"
	"math"
	"time"

	"github.com/Logarithm-Labs/curator-agent/internal/allocation"
	"github.com/Logarithm-Labs/curator-agent/internal/rebalance"
	"github.com/Logarithm-Labs/curator-agent/internal/vault"
)

// StepResult pairs the portfolio after one timestep with the record
// describing what happened during it.
type StepResult struct {
	State  vault.PortfolioState
	Record ResultRecord
}

// replayState carries running aggregates across timesteps.
type replayState struct {
	cfg       RunConfig
	state     vault.PortfolioState
	prev      time.Time
	step      int
	started   bool
	peak      float64
	valley    float64
	drawdown  float64
	fees      float64
	slippage  float64
	flowTotal float64
	trades    int
	decisions int
}

func newReplayState(cfg RunConfig) *replayState {
	return &replayState{
		cfg:    cfg,
		peak:   cfg.StartingCapital,
		valley: cfg.StartingCapital,
	}
}

// Advance processes one snapshot. The first snapshot seeds the portfolio
// and is then processed as step one with zero elapsed time, so a decision
// is made immediately when the cadence allows it.
func (r *replayState) Advance(snap vault.ObservationSnapshot) (StepResult, error) {
	if err := snap.Validate(); err != nil {
		return StepResult{}, err
	}
	if !r.started {
		r.state = vault.NewPortfolioState(snap.Timestamp, r.cfg.StartingCapital)
		r.prev = snap.Timestamp
		r.started = true
	} else {
		if !snap.Timestamp.After(r.prev) {
			return StepResult{}, &vault.OutOfOrderObservationError{Prev: r.prev, Next: snap.Timestamp}
		}
	}
	elapsed := snap.Timestamp.Sub(r.prev)
	prevEquity := r.state.TotalEquity()

	accrued, err := rebalance.AccrueYield(r.state, snap, elapsed)
	if err != nil {
		return StepResult{}, err
	}
	flowed, netFlow := rebalance.ApplyFlow(accrued, snap.Flow)
	r.state = flowed
	r.flowTotal += netFlow

	r.step++
	rec := ResultRecord{
		Step:      r.step,
		Timestamp: snap.Timestamp,
	}

	if r.shouldDecide() {
		target, err := allocation.Decide(r.state, snap, r.cfg.Engine)
		if err != nil {
			return StepResult{}, err
		}
		next, trades, err := rebalance.Apply(r.state, target, snap, r.cfg.Costs)
		if err != nil {
			return StepResult{}, err
		}
		r.state = next
		rec.Decided = true
		rec.Trades = trades
		r.decisions++
		for _, t := range trades {
			rec.Fees += t.Fee
			rec.Slippage += t.Slippage
		}
		r.trades += len(trades)
		r.fees += rec.Fees
		r.slippage += rec.Slippage
	}

	r.state.Timestamp = snap.Timestamp
	r.prev = snap.Timestamp

	equity := r.state.TotalEquity()
	// Period return measures yield and costs only; external flows move
	// the baseline, not the performance.
	if prevEquity > vault.Dust {
		rec.PeriodReturn = (equity - netFlow - prevEquity) / prevEquity
	}
	if r.cfg.StartingCapital > 0 {
		rec.CumulativeReturn = (equity - r.flowTotal - r.cfg.StartingCapital) / r.cfg.StartingCapital
	}

	r.peak = math.Max(r.peak, equity)
	if equity < r.valley {
		r.valley = equity
	}
	if r.peak > 0 {
		if dd := (r.peak - equity) / r.peak; dd > r.drawdown {
			r.drawdown = dd
		}
	}

	rec.Holdings = make(map[string]float64, len(r.state.Deposits))
	for id, amt := range r.state.Deposits {
		rec.Holdings[id] = amt
	}
	rec.Cash = r.state.Cash
	rec.TotalEquity = equity

	return StepResult{State: r.state.Clone(), Record: rec}, nil
}

func (r *replayState) shouldDecide() bool {
	if r.step <= r.cfg.WarmupSteps {
		return false
	}
	return (r.step-r.cfg.WarmupSteps-1)%r.cfg.interval() == 0
}

// Stats summarizes the replay so far.
func (r *replayState) Stats() RunStats {
	equity := r.state.TotalEquity()
	profit := equity - r.cfg.StartingCapital - r.flowTotal
	returnPct := 0.0
	if r.cfg.StartingCapital > 0 {
		returnPct = profit / r.cfg.StartingCapital
	}
	return RunStats{
		FinalEquity:    equity,
		Profit:         profit,
		ReturnPct:      returnPct,
		MaxDrawdownPct: r.drawdown,
		TotalFees:      r.fees,
		TotalSlippage:  r.slippage,
		Trades:         r.trades,
		Steps:          r.step,
		Decisions:      r.decisions,
		EquityPeak:     r.peak,
		EquityValley:   r.valley,
		FinishedAt:     time.Now().UTC(),
	}
}

// Replay drains a source through a fresh replay state and returns every
// step's record plus the final stats. It is the synchronous core used by
// both the simulator and the parameter sweep.
func Replay(ctx context.Context, src ObservationSource, cfg RunConfig) ([]ResultRecord, RunStats, error) {
	rs := newReplayState(cfg)
	var records []ResultRecord
	validated := false
	for {
		select {
		case <-ctx.Done():
			return records, rs.Stats(), ctx.Err()
		default:
		}
		snap, ok, err := src.Next()
		if err != nil {
			return records, rs.Stats(), err
		}
		if !ok {
			break
		}
		if !validated {
			if err := cfg.Validate(snap.VaultIDs()); err != nil {
				return nil, RunStats{}, err
			}
			validated = true
		}
		res, err := rs.Advance(snap)
		if err != nil {
			return records, rs.Stats(), err
		}
		records = append(records, res.Record)
	}
	return records, rs.Stats(), nil
}
