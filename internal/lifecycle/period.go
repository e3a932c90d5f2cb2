package lifecycle

import (
	"fmt"
	"time"

	"backdash/internal/domain"
)

// Period selects the slice of market data a run is evaluated on.
type Period string

const (
	PeriodAll          Period = "all"
	PeriodLastMonth    Period = "last_month"
	PeriodExperimental Period = "experimental"
	PeriodCustom       Period = "custom"
)

const dateLayout = "2006-01-02"

// Periods lists the presets in display order.
var Periods = []Period{PeriodAll, PeriodLastMonth, PeriodExperimental, PeriodCustom}

// ParsePeriod accepts the wire name of a preset. Empty means PeriodAll.
func ParsePeriod(s string) (Period, error) {
	if s == "" {
		return PeriodAll, nil
	}
	for _, p := range Periods {
		if string(p) == s {
			return p, nil
		}
	}
	return "", &domain.ValidationError{Field: "period", Reason: fmt.Sprintf("unknown preset %q", s)}
}

// Label returns the dashboard caption for the preset.
func (p Period) Label() string {
	switch p {
	case PeriodAll:
		return "Toutes les données"
	case PeriodLastMonth:
		return "Dernier mois"
	case PeriodExperimental:
		return "Expérimental (2 semaines)"
	case PeriodCustom:
		return "Période personnalisée"
	}
	return string(p)
}

// Resolve returns the START_DATE/END_DATE parameters for the preset. The
// relative presets count back from the end of dr; when dr is nil they use
// fixed fallback windows. start and end are only read for PeriodCustom.
// An empty result means the whole data set.
func (p Period) Resolve(dr *domain.DataRange, start, end string) (domain.Params, error) {
	var from, to string
	switch p {
	case PeriodAll, "":
		return domain.Params{}, nil
	case PeriodLastMonth:
		from, to = "2024-09-01", "2024-09-30"
		if dr != nil && dr.EndDate != "" {
			t, err := time.Parse(dateLayout, dr.EndDate)
			if err != nil {
				return nil, fmt.Errorf("parsing data range end %q: %w", dr.EndDate, err)
			}
			from, to = t.AddDate(0, -1, 0).Format(dateLayout), dr.EndDate
		}
	case PeriodExperimental:
		from, to = "2024-08-14", "2024-08-21"
		if dr != nil && dr.EndDate != "" {
			t, err := time.Parse(dateLayout, dr.EndDate)
			if err != nil {
				return nil, fmt.Errorf("parsing data range end %q: %w", dr.EndDate, err)
			}
			from, to = t.AddDate(0, 0, -14).Format(dateLayout), dr.EndDate
		}
	case PeriodCustom:
		for _, f := range [][2]string{{"start", start}, {"end", end}} {
			if f[1] == "" {
				continue
			}
			if _, err := time.Parse(dateLayout, f[1]); err != nil {
				return nil, &domain.ValidationError{Field: f[0], Reason: "expected YYYY-MM-DD"}
			}
		}
		if start != "" && end != "" && start > end {
			return nil, &domain.ValidationError{Field: "end", Reason: "before start"}
		}
		from, to = start, end
	default:
		return nil, &domain.ValidationError{Field: "period", Reason: fmt.Sprintf("unknown preset %q", p)}
	}

	out := domain.Params{}
	if from != "" {
		out["START_DATE"] = domain.StringParam(from)
	}
	if to != "" {
		out["END_DATE"] = domain.StringParam(to)
	}
	return out, nil
}
