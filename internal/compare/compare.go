// Package compare lines up the results of several runs side by side.
package compare

import (
	"slices"

	"backdash/internal/dashboard"
	"backdash/internal/domain"
)

// MaxSelected bounds how many runs can be compared at once.
const MaxSelected = 5

// Selection is an ordered set of at most MaxSelected run ids. The zero value
// is empty and ready to use.
type Selection struct {
	ids []string
}

// Toggle deselects id if it is selected, otherwise selects it when there is
// room. It reports whether id is selected afterwards. Toggling a new id on a
// full selection does nothing.
func (s *Selection) Toggle(id string) bool {
	if i := slices.Index(s.ids, id); i >= 0 {
		s.ids = slices.Delete(s.ids, i, i+1)
		return false
	}
	if len(s.ids) >= MaxSelected {
		return false
	}
	s.ids = append(s.ids, id)
	return true
}

// Remove deselects id.
func (s *Selection) Remove(id string) {
	if i := slices.Index(s.ids, id); i >= 0 {
		s.ids = slices.Delete(s.ids, i, i+1)
	}
}

// Contains reports whether id is selected.
func (s *Selection) Contains(id string) bool { return slices.Contains(s.ids, id) }

// IDs returns the selected ids in selection order.
func (s *Selection) IDs() []string { return slices.Clone(s.ids) }

func (s *Selection) Len() int   { return len(s.ids) }
func (s *Selection) Full() bool { return len(s.ids) >= MaxSelected }

// Label is the short name a run is plotted under: its last 8 characters.
func Label(runID string) string { return dashboard.ShortID(runID) }

// Point is one x position of the comparison chart. Values holds only the runs
// whose equity curve reaches Index.
type Point struct {
	Index  int
	Values map[string]float64
}

// Align merges the equity curves of the loaded runs among ids into points
// keyed by trade index. Runs without results contribute nothing. Shorter
// curves leave gaps rather than zeros.
func Align(ids []string, results map[string]*domain.RunResults) []Point {
	maxLen := 0
	for _, id := range ids {
		if r := results[id]; r != nil && len(r.EquityCurve) > maxLen {
			maxLen = len(r.EquityCurve)
		}
	}

	points := make([]Point, maxLen)
	for i := range points {
		points[i] = Point{Index: i, Values: make(map[string]float64, len(ids))}
		for _, id := range ids {
			if r := results[id]; r != nil && i < len(r.EquityCurve) {
				points[i].Values[Label(id)] = r.EquityCurve[i]
			}
		}
	}
	return points
}

// MetricRow is one line of the detailed comparison table. Cells follow the
// order of the ids passed to MetricRows; "-" marks a run without results.
type MetricRow struct {
	Metric string
	Cells  []string
}

// MetricRows builds the detailed comparison table.
func MetricRows(ids []string, results map[string]*domain.RunResults) []MetricRow {
	type col struct {
		name string
		fmt  func(domain.RunMetrics) string
	}
	cols := []col{
		{"PnL Net", func(m domain.RunMetrics) string { return dashboard.FormatUSD(m.NetPnL) }},
		{"Win Rate", func(m domain.RunMetrics) string { return dashboard.FormatPercent(m.WinRate) }},
		{"Trades", func(m domain.RunMetrics) string { return dashboard.FormatInt(m.TotalTrades) }},
		{"Profit Factor", func(m domain.RunMetrics) string { return dashboard.FormatProfitFactor(m.ProfitFactor) }},
		{"Max DD", func(m domain.RunMetrics) string { return dashboard.FormatUSD(m.MaxDrawdown) }},
		{"Expectancy", func(m domain.RunMetrics) string { return dashboard.FormatUSD(m.Expectancy) }},
		{"Avg Win", func(m domain.RunMetrics) string { return dashboard.FormatUSD(m.AvgWin) }},
		{"Avg Loss", func(m domain.RunMetrics) string { return dashboard.FormatUSD(m.AvgLoss) }},
		{"Winning Trades", func(m domain.RunMetrics) string { return dashboard.FormatInt(m.WinningTrades) }},
		{"Losing Trades", func(m domain.RunMetrics) string { return dashboard.FormatInt(m.LosingTrades) }},
	}

	rows := make([]MetricRow, len(cols))
	for i, c := range cols {
		rows[i] = MetricRow{Metric: c.name, Cells: make([]string, len(ids))}
		for j, id := range ids {
			if r := results[id]; r != nil {
				rows[i].Cells[j] = c.fmt(r.Metrics)
			} else {
				rows[i].Cells[j] = "-"
			}
		}
	}
	return rows
}
