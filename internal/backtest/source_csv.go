package backtest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Logarithm-Labs/curator-agent/internal/vault"
)

// csvColumns is the required header of a per-vault observation file.
var csvColumns = []string{"timestamp", "yield_rate", "utilization", "capacity", "risk_score"}

// LoadCSVDir reads one observation CSV per vault from dir (the vault ID is
// the file name without extension), joins them on timestamp, and clips the
// joined series to the range every vault covers. A vault missing a timestamp
// inside the common range is reported as absent rather than interpolated.
// An optional flows.csv supplies external deposits and withdrawals.
func LoadCSVDir(dir string) ([]vault.ObservationSnapshot, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	series := make(map[string]map[int64]vault.VaultObservation)
	var flows map[int64]vault.FlowEvent
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".csv") {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ".csv")
		path := filepath.Join(dir, e.Name())
		if name == "flows" {
			flows, err = loadFlowCSV(path)
			if err != nil {
				return nil, fmt.Errorf("load %s: %w", path, err)
			}
			continue
		}
		obs, err := loadVaultCSV(path, name)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
		series[name] = obs
	}
	if len(series) == 0 {
		return nil, fmt.Errorf("no vault observation files in %s", dir)
	}
	return joinSeries(series, flows)
}

func loadVaultCSV(path, vaultID string) (map[int64]vault.VaultObservation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, err
	}
	idx, err := columnIndex(header, csvColumns)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]vault.VaultObservation)
	for line := 2; ; line++ {
		row, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		ts, err := parseTimestamp(row[idx["timestamp"]])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		obs := vault.VaultObservation{
			VaultID:   vaultID,
			Timestamp: ts,
			Available: true,
		}
		if obs.YieldRate, err = strconv.ParseFloat(row[idx["yield_rate"]], 64); err != nil {
			return nil, fmt.Errorf("line %d yield_rate: %w", line, err)
		}
		if obs.Utilization, err = strconv.ParseFloat(row[idx["utilization"]], 64); err != nil {
			return nil, fmt.Errorf("line %d utilization: %w", line, err)
		}
		if obs.Capacity, err = strconv.ParseFloat(row[idx["capacity"]], 64); err != nil {
			return nil, fmt.Errorf("line %d capacity: %w", line, err)
		}
		if obs.RiskScore, err = strconv.ParseFloat(row[idx["risk_score"]], 64); err != nil {
			return nil, fmt.Errorf("line %d risk_score: %w", line, err)
		}
		out[ts.UnixMilli()] = obs
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no rows")
	}
	return out, nil
}

func loadFlowCSV(path string) (map[int64]vault.FlowEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, err
	}
	idx, err := columnIndex(header, []string{"timestamp", "deposit", "withdrawal"})
	if err != nil {
		return nil, err
	}
	out := make(map[int64]vault.FlowEvent)
	for line := 2; ; line++ {
		row, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		ts, err := parseTimestamp(row[idx["timestamp"]])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		var flow vault.FlowEvent
		if flow.Deposit, err = strconv.ParseFloat(row[idx["deposit"]], 64); err != nil {
			return nil, fmt.Errorf("line %d deposit: %w", line, err)
		}
		if flow.Withdrawal, err = strconv.ParseFloat(row[idx["withdrawal"]], 64); err != nil {
			return nil, fmt.Errorf("line %d withdrawal: %w", line, err)
		}
		out[ts.UnixMilli()] = flow
	}
	return out, nil
}

func columnIndex(header, required []string) (map[string]int, error) {
	idx := make(map[string]int, len(header))
	for i, col := range header {
		idx[strings.ToLower(strings.TrimSpace(col))] = i
	}
	for _, col := range required {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("missing column %q", col)
		}
	}
	return idx, nil
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}

// joinSeries merges per-vault series on the timestamps of the reference
// vault, clipped to the latest start and earliest end across vaults so every
// snapshot covers the full universe.
func joinSeries(series map[string]map[int64]vault.VaultObservation, flows map[int64]vault.FlowEvent) ([]vault.ObservationSnapshot, error) {
	var commonStart, commonEnd int64
	first := true
	for _, obs := range series {
		var lo, hi int64
		init := false
		for ts := range obs {
			if !init {
				lo, hi = ts, ts
				init = true
				continue
			}
			if ts < lo {
				lo = ts
			}
			if ts > hi {
				hi = ts
			}
		}
		if first {
			commonStart, commonEnd = lo, hi
			first = false
			continue
		}
		if lo > commonStart {
			commonStart = lo
		}
		if hi < commonEnd {
			commonEnd = hi
		}
	}
	if commonEnd < commonStart {
		return nil, fmt.Errorf("vault series share no common timestamp range")
	}

	// The densest vault's timestamps drive the grid.
	var refID string
	for id, obs := range series {
		if refID == "" || len(obs) > len(series[refID]) {
			refID = id
		}
	}
	var grid []int64
	for ts := range series[refID] {
		if ts >= commonStart && ts <= commonEnd {
			grid = append(grid, ts)
		}
	}
	sort.Slice(grid, func(i, j int) bool { return grid[i] < grid[j] })

	snaps := make([]vault.ObservationSnapshot, 0, len(grid))
	for _, ts := range grid {
		snap := vault.ObservationSnapshot{
			Timestamp: time.UnixMilli(ts).UTC(),
			Vaults:    make(map[string]vault.VaultObservation, len(series)),
		}
		for id, obs := range series {
			o, ok := obs[ts]
			if !ok {
				o = vault.VaultObservation{VaultID: id, Timestamp: snap.Timestamp, Available: false}
			}
			snap.Vaults[id] = o
		}
		if flow, ok := flows[ts]; ok {
			snap.Flow = flow
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

// NewCSVSourceFactory materializes the directory once and hands out cursors
// over the shared slice.
func NewCSVSourceFactory(dir string) (SourceFactory, error) {
	snaps, err := LoadCSVDir(dir)
	if err != nil {
		return nil, err
	}
	return func() (ObservationSource, error) {
		return NewSliceSource(snaps), nil
	}, nil
}
