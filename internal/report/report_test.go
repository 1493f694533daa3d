package report

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/Logarithm-Labs/curator-agent/internal/backtest"
	"github.com/Logarithm-Labs/curator-agent/internal/vault"

	"github.com/stretchr/testify/assert"
)

func sampleRecords() []backtest.ResultRecord {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	records := make([]backtest.ResultRecord, 0, 20)
	equity := 10000.0
	for i := 0; i < 20; i++ {
		equity *= 1.0002
		records = append(records, backtest.ResultRecord{
			Step:        i + 1,
			Timestamp:   start.Add(time.Duration(i) * 24 * time.Hour),
			Holdings:    map[string]float64{"alpha": equity * 0.8, "beta": equity * 0.1},
			Cash:        equity * 0.1,
			TotalEquity: equity,
			Fees:        0.5,
			Decided:     i%2 == 0,
			Trades: []vault.TradeRecord{
				{VaultID: "alpha", Delta: 10, Fee: 0.5},
			},
		})
	}
	return records
}

func TestWriteRecordsCSV(t *testing.T) {
	var buf bytes.Buffer
	records := sampleRecords()
	assert.NoError(t, WriteRecordsCSV(&buf, records))

	rows, err := csv.NewReader(&buf).ReadAll()
	assert.NoError(t, err)
	assert.Len(t, rows, len(records)+1)

	header := rows[0]
	assert.Equal(t, "step", header[0])
	assert.Contains(t, header, "total_equity")
	// per-vault columns come after the fixed ones, sorted
	assert.Equal(t, "alpha", header[len(header)-2])
	assert.Equal(t, "beta", header[len(header)-1])

	assert.Equal(t, "1", rows[1][0])
	assert.Equal(t, "2024-01-01T00:00:00Z", rows[1][1])
	assert.Equal(t, "true", rows[1][8])
	assert.Equal(t, "false", rows[2][8])
}

func TestWriteRecordsCSV_Empty(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, WriteRecordsCSV(&buf, nil))
}

func TestBuildHTML(t *testing.T) {
	input := Input{
		Run: backtest.Run{
			ID:     "run-1",
			Label:  "sample",
			Status: backtest.RunStatusDone,
		},
		Records: sampleRecords(),
	}
	html, err := BuildHTML(input)
	assert.NoError(t, err)
	assert.NotEmpty(t, html)
	// the page embeds all three chart sections
	assert.Contains(t, string(html), "Equity")
	assert.Contains(t, string(html), "alpha")
}

func TestBuildHTML_NoRecords(t *testing.T) {
	_, err := BuildHTML(Input{Run: backtest.Run{ID: "run-1"}})
	assert.Error(t, err)
}

func TestCollectVaultIDs(t *testing.T) {
	ids := collectVaultIDs(sampleRecords())
	assert.Equal(t, []string{"alpha", "beta"}, ids)
}
