package dashboard

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"backdash/internal/domain"
)

// Days lists heatmap rows in display order.
var Days = []string{"Lun", "Mar", "Mer", "Jeu", "Ven", "Sam", "Dim"}

var dayLabels = map[time.Weekday]string{
	time.Monday:    "Lun",
	time.Tuesday:   "Mar",
	time.Wednesday: "Mer",
	time.Thursday:  "Jeu",
	time.Friday:    "Ven",
	time.Saturday:  "Sam",
	time.Sunday:    "Dim",
}

func dayIndex(label string) int {
	for i, d := range Days {
		if d == label {
			return i
		}
	}
	return len(Days)
}

// BuildHeatmap groups trades by entry weekday and hour. Value is the mean P&L
// of the bucket and WinRate the share of take-profit exits. Open trades and
// trades with an unparseable date are skipped; a missing entry time lands in
// hour 0.
func BuildHeatmap(trades []domain.Trade) []domain.HeatmapCell {
	type key struct {
		day  string
		hour int
	}
	type acc struct {
		sum    decimal.Decimal
		trades int
		wins   int
	}
	buckets := make(map[key]*acc)

	for _, t := range trades {
		if !Closed(t) {
			continue
		}
		ts, ok := t.EntryAt()
		if !ok {
			d, err := time.Parse("2006-01-02", t.Date)
			if err != nil {
				continue
			}
			ts = d
		}
		k := key{day: dayLabels[ts.Weekday()], hour: ts.Hour()}
		a := buckets[k]
		if a == nil {
			a = &acc{sum: decimal.Zero}
			buckets[k] = a
		}
		a.sum = a.sum.Add(decimal.NewFromFloat(t.PnLUSD))
		a.trades++
		if t.IsWin() {
			a.wins++
		}
	}

	cells := make([]domain.HeatmapCell, 0, len(buckets))
	for k, a := range buckets {
		cells = append(cells, domain.HeatmapCell{
			Day:     k.day,
			Hour:    k.hour,
			Value:   a.sum.Div(decimal.NewFromInt(int64(a.trades))).InexactFloat64(),
			Trades:  a.trades,
			WinRate: float64(a.wins) / float64(a.trades),
		})
	}
	sort.Slice(cells, func(i, j int) bool {
		di, dj := dayIndex(cells[i].Day), dayIndex(cells[j].Day)
		if di != dj {
			return di < dj
		}
		return cells[i].Hour < cells[j].Hour
	})
	return cells
}

// HeatmapGrid indexes heatmap cells for row/column rendering.
type HeatmapGrid struct {
	Days  []string // rows present, in weekday order
	Hours []int    // columns present, ascending
	cells map[string]map[int]domain.HeatmapCell
}

// NewHeatmapGrid builds a grid from cells in any order.
func NewHeatmapGrid(cells []domain.HeatmapCell) *HeatmapGrid {
	g := &HeatmapGrid{cells: make(map[string]map[int]domain.HeatmapCell)}
	hours := make(map[int]bool)
	for _, c := range cells {
		row := g.cells[c.Day]
		if row == nil {
			row = make(map[int]domain.HeatmapCell)
			g.cells[c.Day] = row
			g.Days = append(g.Days, c.Day)
		}
		row[c.Hour] = c
		hours[c.Hour] = true
	}
	sort.Slice(g.Days, func(i, j int) bool { return dayIndex(g.Days[i]) < dayIndex(g.Days[j]) })
	for h := range hours {
		g.Hours = append(g.Hours, h)
	}
	sort.Ints(g.Hours)
	return g
}

// Cell returns the bucket for day and hour, if any trades fell in it.
func (g *HeatmapGrid) Cell(day string, hour int) (domain.HeatmapCell, bool) {
	c, ok := g.cells[day][hour]
	return c, ok
}

// Best returns the bucket with the highest mean P&L.
func (g *HeatmapGrid) Best() (domain.HeatmapCell, bool) {
	var best domain.HeatmapCell
	found := false
	for _, row := range g.cells {
		for _, c := range row {
			if !found || c.Value > best.Value {
				best, found = c, true
			}
		}
	}
	return best, found
}
