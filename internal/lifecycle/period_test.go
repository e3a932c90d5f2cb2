package lifecycle

import (
	"errors"
	"testing"

	"backdash/internal/domain"
)

func TestPeriodResolve(t *testing.T) {
	dr := &domain.DataRange{StartDate: "2024-01-02", EndDate: "2024-09-30", TotalDays: 272}

	tests := []struct {
		name      string
		p         Period
		dr        *domain.DataRange
		start     string
		end       string
		wantStart string
		wantEnd   string
	}{
		{"all", PeriodAll, dr, "", "", "", ""},
		{"last month", PeriodLastMonth, dr, "", "", "2024-08-30", "2024-09-30"},
		{"last month fallback", PeriodLastMonth, nil, "", "", "2024-09-01", "2024-09-30"},
		{"experimental", PeriodExperimental, dr, "", "", "2024-09-16", "2024-09-30"},
		{"experimental fallback", PeriodExperimental, nil, "", "", "2024-08-14", "2024-08-21"},
		{"custom", PeriodCustom, dr, "2024-03-01", "2024-03-15", "2024-03-01", "2024-03-15"},
		{"custom open end", PeriodCustom, nil, "2024-03-01", "", "2024-03-01", ""},
	}
	for _, tt := range tests {
		got, err := tt.p.Resolve(tt.dr, tt.start, tt.end)
		if err != nil {
			t.Errorf("%s: Resolve error: %v", tt.name, err)
			continue
		}
		s, _ := got["START_DATE"].Text()
		e, _ := got["END_DATE"].Text()
		if s != tt.wantStart || e != tt.wantEnd {
			t.Errorf("%s: Resolve = %q..%q, want %q..%q", tt.name, s, e, tt.wantStart, tt.wantEnd)
		}
		if tt.wantStart == "" {
			if _, ok := got["START_DATE"]; ok {
				t.Errorf("%s: START_DATE set for empty start", tt.name)
			}
		}
	}
}

func TestPeriodResolveErrors(t *testing.T) {
	var verr *domain.ValidationError
	if _, err := PeriodCustom.Resolve(nil, "03/01/2024", ""); !errors.As(err, &verr) || verr.Field != "start" {
		t.Errorf("bad start err = %v", err)
	}
	if _, err := PeriodCustom.Resolve(nil, "2024-03-15", "2024-03-01"); !errors.As(err, &verr) || verr.Field != "end" {
		t.Errorf("reversed range err = %v", err)
	}
	if _, err := Period("weekly").Resolve(nil, "", ""); !errors.As(err, &verr) {
		t.Errorf("unknown preset err = %v", err)
	}
}

func TestParsePeriod(t *testing.T) {
	for _, p := range Periods {
		got, err := ParsePeriod(string(p))
		if err != nil || got != p {
			t.Errorf("ParsePeriod(%q) = %q, %v", p, got, err)
		}
		if p.Label() == "" {
			t.Errorf("%q has no label", p)
		}
	}
	if got, _ := ParsePeriod(""); got != PeriodAll {
		t.Errorf("ParsePeriod(\"\") = %q, want all", got)
	}
	if _, err := ParsePeriod("yearly"); err == nil {
		t.Error("ParsePeriod(yearly) succeeded")
	}
}
