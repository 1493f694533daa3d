package report

import (
	"bytes"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
	talib "github.com/markcheno/go-talib"

	"github.com/Logarithm-Labs/curator-agent/internal/backtest"
)

const (
	colorBackground    = "#060c1b"
	colorTextPrimary   = "#eceff4"
	colorTextSecondary = "#9ca3af"
	colorEquity        = "#34d399"
	colorEquitySMA     = "#fbbf24"
	colorCash          = "#3b82f6"
	colorFees          = "#f87171"
	colorSlippage      = "#a78bfa"

	chartWidthPx  = 1400
	chartHeightPx = 480

	equitySMAPeriod = 14
)

// Input bundles everything a run report needs.
type Input struct {
	Run     backtest.Run
	Records []backtest.ResultRecord
}

// BuildHTML renders the full report page: equity curve with a smoothed
// overlay, the allocation weights per step, and the friction paid per
// decision.
func BuildHTML(input Input) ([]byte, error) {
	if len(input.Records) == 0 {
		return nil, fmt.Errorf("run %s has no records to report", input.Run.ID)
	}
	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)
	page.PageTitle = fmt.Sprintf("backtest %s", input.Run.ID)

	xAxis := buildXAxis(input.Records)
	page.AddCharts(
		buildEquityChart(input, xAxis),
		buildWeightChart(input.Records, xAxis),
		buildCostChart(input.Records, xAxis),
	)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func buildXAxis(records []backtest.ResultRecord) []string {
	x := make([]string, len(records))
	for i, rec := range records {
		x[i] = rec.Timestamp.UTC().Format("2006-01-02 15:04")
	}
	return x
}

func baseInit() opts.Initialization {
	return opts.Initialization{
		Theme:           types.ThemeWesteros,
		Width:           fmt.Sprintf("%dpx", chartWidthPx),
		Height:          fmt.Sprintf("%dpx", chartHeightPx),
		BackgroundColor: colorBackground,
	}
}

func buildEquityChart(input Input, xAxis []string) *charts.Line {
	line := charts.NewLine()
	subtitle := fmt.Sprintf("final %.2f | return %.2f%% | maxDD %.2f%%",
		input.Run.Stats.FinalEquity, input.Run.Stats.ReturnPct*100, input.Run.Stats.MaxDrawdownPct*100)
	line.SetGlobalOptions(
		charts.WithInitializationOpts(baseInit()),
		charts.WithTitleOpts(opts.Title{
			Title:         "Equity",
			Subtitle:      subtitle,
			Left:          "left",
			TitleStyle:    &opts.TextStyle{Color: colorTextPrimary, FontSize: 18},
			SubtitleStyle: &opts.TextStyle{Color: colorTextSecondary},
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), TextStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale:     opts.Bool(true),
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.2)}},
		}),
	)
	line.SetSeriesOptions(
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
	)

	equity := make([]float64, len(input.Records))
	cash := make([]opts.LineData, len(input.Records))
	for i, rec := range input.Records {
		equity[i] = rec.TotalEquity
		cash[i] = opts.LineData{Value: round(rec.Cash, 2)}
	}
	line.SetXAxis(xAxis)
	line.AddSeries("Equity", toLineData(equity, len(equity)),
		charts.WithLineStyleOpts(opts.LineStyle{Color: colorEquity, Width: 2}))
	line.AddSeries("Cash", cash,
		charts.WithLineStyleOpts(opts.LineStyle{Color: colorCash, Width: 1}))
	if len(equity) > equitySMAPeriod {
		sma := talib.Sma(equity, equitySMAPeriod)
		line.AddSeries(fmt.Sprintf("SMA%d", equitySMAPeriod), toLineData(sma, len(equity)),
			charts.WithLineStyleOpts(opts.LineStyle{Color: colorEquitySMA, Width: 2}))
	}
	return line
}

func buildWeightChart(records []backtest.ResultRecord, xAxis []string) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(baseInit()),
		charts.WithTitleOpts(opts.Title{Title: "Allocation", Left: "left", TitleStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), TextStyle: &opts.TextStyle{Color: colorTextSecondary}}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{AxisLabel: &opts.AxisLabel{Show: opts.Bool(false)}}),
		charts.WithYAxisOpts(opts.YAxis{
			Max:       1,
			AxisLabel: &opts.AxisLabel{Show: opts.Bool(true), Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.15)}},
		}),
	)

	ids := collectVaultIDs(records)
	bar.SetXAxis(xAxis)
	for _, id := range ids {
		data := make([]opts.BarData, len(records))
		for i, rec := range records {
			weight := 0.0
			if rec.TotalEquity > 0 {
				weight = rec.Holdings[id] / rec.TotalEquity
			}
			data[i] = opts.BarData{Value: round(weight, 4)}
		}
		bar.AddSeries(id, data, charts.WithBarChartOpts(opts.BarChart{Stack: "weights"}))
	}
	cashData := make([]opts.BarData, len(records))
	for i, rec := range records {
		weight := 0.0
		if rec.TotalEquity > 0 {
			weight = rec.Cash / rec.TotalEquity
		}
		cashData[i] = opts.BarData{Value: round(weight, 4), ItemStyle: &opts.ItemStyle{Color: colorCash, Opacity: opts.Float(0.5)}}
	}
	bar.AddSeries("cash", cashData, charts.WithBarChartOpts(opts.BarChart{Stack: "weights"}))
	return bar
}

func buildCostChart(records []backtest.ResultRecord, xAxis []string) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(baseInit()),
		charts.WithTitleOpts(opts.Title{Title: "Costs", Left: "left", TitleStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), TextStyle: &opts.TextStyle{Color: colorTextSecondary}}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{AxisLabel: &opts.AxisLabel{Show: opts.Bool(false)}}),
		charts.WithYAxisOpts(opts.YAxis{
			AxisLabel: &opts.AxisLabel{Show: opts.Bool(true), Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.15)}},
		}),
	)
	fees := make([]opts.BarData, len(records))
	slip := make([]opts.BarData, len(records))
	for i, rec := range records {
		fees[i] = opts.BarData{Value: round(rec.Fees, 4), ItemStyle: &opts.ItemStyle{Color: colorFees, Opacity: opts.Float(0.7)}}
		slip[i] = opts.BarData{Value: round(rec.Slippage, 4), ItemStyle: &opts.ItemStyle{Color: colorSlippage, Opacity: opts.Float(0.7)}}
	}
	bar.SetXAxis(xAxis)
	bar.AddSeries("Fees", fees, charts.WithBarChartOpts(opts.BarChart{Stack: "costs"}))
	bar.AddSeries("Slippage", slip, charts.WithBarChartOpts(opts.BarChart{Stack: "costs"}))
	return bar
}

func collectVaultIDs(records []backtest.ResultRecord) []string {
	seen := map[string]struct{}{}
	var ids []string
	for _, rec := range records {
		for id := range rec.Holdings {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func toLineData(series []float64, length int) []opts.LineData {
	line := make([]opts.LineData, length)
	offset := length - len(series)
	if offset < 0 {
		offset = 0
	}
	for i := 0; i < offset; i++ {
		line[i] = opts.LineData{Value: nil}
	}
	for i := 0; i < len(series) && offset+i < length; i++ {
		val := series[i]
		if math.IsNaN(val) || val == 0 && i < equitySMAPeriod {
			line[offset+i] = opts.LineData{Value: nil}
		} else {
			line[offset+i] = opts.LineData{Value: round(val, 2)}
		}
	}
	return line
}

func round(val float64, decimals int) float64 {
	if decimals <= 0 {
		return math.Round(val)
	}
	scale := math.Pow10(decimals)
	return math.Round(val*scale) / scale
}

func defaultReportName(runID string, t time.Time) string {
	return fmt.Sprintf("report_%s_%s", runID, t.UTC().Format("20060102T150405"))
}
