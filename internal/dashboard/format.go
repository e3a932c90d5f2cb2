package dashboard

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// FormatInt formats an integer with comma separators.
func FormatInt(n int) string {
	return humanize.Comma(int64(n))
}

// FormatUSD formats a dollar amount with no decimals: "$1,234" or "-$56".
func FormatUSD(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "-"
	}
	r := math.Round(v)
	if r < 0 {
		return "-$" + humanize.Comma(int64(-r))
	}
	return "$" + humanize.Comma(int64(r))
}

// FormatPnL formats a P&L amount with an explicit sign for gains.
func FormatPnL(v float64) string {
	if math.Round(v) > 0 {
		return "+" + FormatUSD(v)
	}
	return FormatUSD(v)
}

// FormatPercent formats a ratio (0.523) as a percentage with one decimal.
func FormatPercent(ratio float64) string {
	if math.IsNaN(ratio) || math.IsInf(ratio, 0) {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", ratio*100)
}

// FormatDuration renders seconds as "42s" below a minute and "3m 5s" above.
func FormatDuration(seconds float64) string {
	s := int(math.Round(seconds))
	if s < 60 {
		return fmt.Sprintf("%ds", s)
	}
	return fmt.Sprintf("%dm %ds", s/60, s%60)
}

// FormatProfitFactor shows the capped "no losing trades" value as ∞.
func FormatProfitFactor(pf float64) string {
	if pf > 999 || math.IsInf(pf, 1) {
		return "∞"
	}
	return fmt.Sprintf("%.2f", pf)
}

// timeLayouts are the timestamp shapes the backend emits.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses a backend timestamp. Naive timestamps are read as UTC.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FormatDate renders a backend timestamp as "02/01/2006 15:04", or returns
// the input unchanged when it cannot be parsed.
func FormatDate(s string) string {
	t, ok := ParseTimestamp(s)
	if !ok {
		return s
	}
	return t.Format("02/01/2006 15:04")
}

// FormatAgo renders a backend timestamp relative to now ("3 minutes ago").
func FormatAgo(s string) string {
	t, ok := ParseTimestamp(s)
	if !ok {
		return s
	}
	return humanize.Time(t)
}

// FormatCount formats a trade count, using K suffix for large values.
func FormatCount(n int) string {
	if n >= 100_000 {
		return fmt.Sprintf("%.0fK", float64(n)/1e3)
	}
	return FormatInt(n)
}

// ShortID returns the trailing 8 characters of an id.
func ShortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[len(id)-8:]
}
