package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/Logarithm-Labs/curator-agent/internal/logger"
	"github.com/Logarithm-Labs/curator-agent/internal/vault"

	"github.com/google/uuid"
)

// DecisionRecorder receives every executed allocation decision. The audit
// store implements it; a nil recorder disables auditing.
type DecisionRecorder interface {
	RecordDecision(ctx context.Context, runID string, ts time.Time, holdings map[string]float64, trades []vault.TradeRecord) error
}

type SimulatorConfig struct {
	ResultStore   *ResultStore
	Source        SourceFactory
	BaseRun       RunConfig
	Recorder      DecisionRecorder
	MaxConcurrent int
}

// Simulator replays observation series into result logs, one background
// goroutine per run, bounded by a semaphore.
type Simulator struct {
	results  *ResultStore
	source   SourceFactory
	base     RunConfig
	recorder DecisionRecorder

	sem     chan struct{}
	baseCtx context.Context
}

func NewSimulator(cfg SimulatorConfig) (*Simulator, error) {
	if cfg.ResultStore == nil {
		return nil, fmt.Errorf("result store is required")
	}
	if cfg.Source == nil {
		return nil, fmt.Errorf("source factory is required")
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Simulator{
		results:  cfg.ResultStore,
		source:   cfg.Source,
		base:     cfg.BaseRun,
		recorder: cfg.Recorder,
		sem:      make(chan struct{}, maxConcurrent),
		baseCtx:  context.Background(),
	}, nil
}

func (s *Simulator) SetContext(ctx context.Context) {
	if ctx != nil {
		s.baseCtx = ctx
	}
}

func (s *Simulator) ctx() context.Context {
	if s.baseCtx != nil {
		return s.baseCtx
	}
	return context.Background()
}

// StartRun registers a run and returns immediately; the replay happens in
// the background.
func (s *Simulator) StartRun(req RunRequest) (Run, error) {
	cfg := req.Apply(s.base)
	if cfg.StartingCapital <= 0 {
		cfg.StartingCapital = 10000
	}
	run := Run{
		ID:     uuid.NewString(),
		Label:  cfg.Label,
		Status: RunStatusPending,
		Config: cfg,
	}
	if err := s.results.InsertRun(s.ctx(), run); err != nil {
		return Run{}, err
	}
	go s.runLoop(run.ID, cfg)
	return run, nil
}

// RunSync executes a run in the caller's goroutine. The CLI run mode uses
// it so the process exits with the run's outcome.
func (s *Simulator) RunSync(ctx context.Context, cfg RunConfig) (Run, error) {
	if cfg.StartingCapital <= 0 {
		cfg.StartingCapital = s.base.StartingCapital
	}
	run := Run{
		ID:     uuid.NewString(),
		Label:  cfg.Label,
		Status: RunStatusPending,
		Config: cfg,
	}
	if err := s.results.InsertRun(ctx, run); err != nil {
		return Run{}, err
	}
	if err := s.execute(ctx, run.ID, cfg); err != nil {
		_ = s.results.UpdateRunStatus(ctx, run.ID, RunStatusFailed, err.Error())
		return s.results.GetRun(ctx, run.ID)
	}
	return s.results.GetRun(ctx, run.ID)
}

func (s *Simulator) runLoop(runID string, cfg RunConfig) {
	select {
	case s.sem <- struct{}{}:
	default:
		logger.Warnf("[backtest] run %s waiting for a free worker", runID)
		s.sem <- struct{}{}
	}
	defer func() { <-s.sem }()

	ctx := s.ctx()
	if err := s.execute(ctx, runID, cfg); err != nil {
		logger.Warnf("[backtest] run %s failed: %v", runID, err)
		_ = s.results.UpdateRunStatus(ctx, runID, RunStatusFailed, err.Error())
	}
}

// execute drives the replay and persists each step. On a replay error the
// records written so far stay in the store; only the run flips to failed.
func (s *Simulator) execute(ctx context.Context, runID string, cfg RunConfig) error {
	if err := s.results.UpdateRunStatus(ctx, runID, RunStatusRunning, "loading observations"); err != nil {
		logger.Debugf("update run status failed: %v", err)
	}
	src, err := s.source()
	if err != nil {
		return err
	}
	rs := newReplayState(cfg)
	validated := false
	steps := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		snap, ok, nextErr := src.Next()
		if nextErr != nil {
			return nextErr
		}
		if !ok {
			break
		}
		if !validated {
			if err := cfg.Validate(snap.VaultIDs()); err != nil {
				return err
			}
			validated = true
		}
		res, stepErr := rs.Advance(snap)
		if stepErr != nil {
			// Partial history stays queryable; the stats cover what ran.
			_ = s.results.UpdateRunSummary(ctx, runID, RunStatusFailed, rs.Stats(), stepErr.Error())
			return nil
		}
		if _, err := s.results.InsertRecord(ctx, runID, res.Record); err != nil {
			logger.Warnf("[backtest] run %s record insert failed: %v", runID, err)
		}
		if res.Record.Decided && s.recorder != nil {
			if err := s.recorder.RecordDecision(ctx, runID, res.Record.Timestamp, res.Record.Holdings, res.Record.Trades); err != nil {
				logger.Debugf("decision audit insert failed: %v", err)
			}
		}
		steps++
		if steps%50 == 0 {
			msg := fmt.Sprintf("processing step %d", steps)
			_ = s.results.UpdateRunStatus(ctx, runID, RunStatusRunning, msg)
		}
	}
	if steps == 0 {
		return fmt.Errorf("observation source produced no snapshots")
	}
	return s.results.UpdateRunSummary(ctx, runID, RunStatusDone, rs.Stats(), "done")
}
