package backtest

import (
	"github.com/Logarithm-Labs/curator-agent/internal/vault"
)

// ObservationSource streams snapshots in timestamp order. Next returns
// ok=false when the stream is exhausted; each call hands out the next
// snapshot exactly once.
type ObservationSource interface {
	Next() (vault.ObservationSnapshot, bool, error)
}

// SourceFactory builds a fresh source per run so concurrent runs never
// share a cursor.
type SourceFactory func() (ObservationSource, error)

// SliceSource replays a pre-built snapshot slice. Used by tests and the
// parameter sweep, which loads the dataset once and fans it out.
type SliceSource struct {
	snaps []vault.ObservationSnapshot
	pos   int
}

func NewSliceSource(snaps []vault.ObservationSnapshot) *SliceSource {
	return &SliceSource{snaps: snaps}
}

func (s *SliceSource) Next() (vault.ObservationSnapshot, bool, error) {
	if s.pos >= len(s.snaps) {
		return vault.ObservationSnapshot{}, false, nil
	}
	snap := s.snaps[s.pos]
	s.pos++
	return snap, true, nil
}

// Drain collects every remaining snapshot from a source. Handy for sources
// that must be materialized before fan-out.
func Drain(src ObservationSource) ([]vault.ObservationSnapshot, error) {
	var out []vault.ObservationSnapshot
	for {
		snap, ok, err := src.Next()
		if err != nil {
			return out, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, snap)
	}
}
