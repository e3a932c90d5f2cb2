package dashboard

import (
	"sort"
	"strings"

	"backdash/internal/domain"
)

// FilterStrategies returns the strategies in category (empty or "all" for
// any) whose name, description, id or tags contain query, case-insensitive.
func FilterStrategies(list []domain.Strategy, category, query string) []domain.Strategy {
	query = strings.ToLower(strings.TrimSpace(query))
	all := category == "" || strings.EqualFold(category, "all")

	var out []domain.Strategy
	for _, s := range list {
		if !all && !strings.EqualFold(s.Category, category) {
			continue
		}
		if query != "" && !matches(s, query) {
			continue
		}
		out = append(out, s)
	}
	return out
}

func matches(s domain.Strategy, q string) bool {
	if strings.Contains(strings.ToLower(s.Name), q) ||
		strings.Contains(strings.ToLower(s.ID), q) ||
		strings.Contains(strings.ToLower(s.Description), q) {
		return true
	}
	for _, t := range s.Tags {
		if strings.Contains(strings.ToLower(t), q) {
			return true
		}
	}
	return false
}

// Categories returns the distinct non-empty categories, sorted.
func Categories(list []domain.Strategy) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range list {
		if s.Category != "" && !seen[s.Category] {
			seen[s.Category] = true
			out = append(out, s.Category)
		}
	}
	sort.Strings(out)
	return out
}

// Sort modes for the run history.
const (
	SortRecent    = 0 // newest first (default)
	SortName      = 1 // display name A-Z
	SortStatus    = 2 // running, then completed, then failed
	SortDuration  = 3 // longest first
	SortModeCount = 4
)

// SortModeLabel returns a short label for the given sort mode.
func SortModeLabel(mode int) string {
	switch mode {
	case SortRecent:
		return "recent"
	case SortName:
		return "name"
	case SortStatus:
		return "status"
	case SortDuration:
		return "duration"
	default:
		return "?"
	}
}

var statusRank = map[domain.RunState]int{
	domain.RunRunning:   0,
	domain.RunPending:   0,
	domain.RunCompleted: 1,
	domain.RunFailed:    2,
}

// SortRuns sorts runs in place. Ties keep their relative order.
func SortRuns(runs []domain.RunInfo, mode int) {
	sort.SliceStable(runs, func(i, j int) bool {
		a, b := runs[i], runs[j]
		switch mode {
		case SortName:
			return strings.ToLower(a.DisplayName()) < strings.ToLower(b.DisplayName())
		case SortStatus:
			return statusRank[a.Status] < statusRank[b.Status]
		case SortDuration:
			return duration(a) > duration(b)
		default:
			return a.StartedAt > b.StartedAt
		}
	})
}

func duration(r domain.RunInfo) float64 {
	if r.DurationSeconds == nil {
		return -1
	}
	return *r.DurationSeconds
}

// RunCounts tallies runs by status for the overview page.
type RunCounts struct {
	Total     int
	Running   int
	Completed int
	Failed    int
}

// CountRuns tallies runs by status.
func CountRuns(runs []domain.RunInfo) RunCounts {
	c := RunCounts{Total: len(runs)}
	for _, r := range runs {
		switch r.Status {
		case domain.RunRunning, domain.RunPending:
			c.Running++
		case domain.RunCompleted:
			c.Completed++
		case domain.RunFailed:
			c.Failed++
		}
	}
	return c
}
