package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/Logarithm-Labs/curator-agent/internal/backtest"
)

// WriteRecordsCSV streams a run's result log as CSV with one column per
// vault, suitable for spreadsheet analysis.
func WriteRecordsCSV(w io.Writer, records []backtest.ResultRecord) error {
	if len(records) == 0 {
		return fmt.Errorf("no records to export")
	}
	ids := collectVaultIDs(records)
	cw := csv.NewWriter(w)
	header := []string{"step", "timestamp", "total_equity", "cash", "period_return", "cumulative_return", "fees", "slippage", "decided"}
	header = append(header, ids...)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, rec := range records {
		row := []string{
			strconv.Itoa(rec.Step),
			rec.Timestamp.UTC().Format("2006-01-02T15:04:05Z"),
			formatFloat(rec.TotalEquity),
			formatFloat(rec.Cash),
			formatFloat(rec.PeriodReturn),
			formatFloat(rec.CumulativeReturn),
			formatFloat(rec.Fees),
			formatFloat(rec.Slippage),
			strconv.FormatBool(rec.Decided),
		}
		for _, id := range ids {
			row = append(row, formatFloat(rec.Holdings[id]))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteRecordsCSVFile is the file-path convenience wrapper.
func WriteRecordsCSVFile(path string, records []backtest.ResultRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return WriteRecordsCSV(f, records)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
