package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParamValueJSON(t *testing.T) {
	var p Params
	if err := json.Unmarshal([]byte(`{"period":14,"symbol":"NQ","risk":-0.5}`), &p); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if f, ok := p["period"].Float(); !ok || f != 14 {
		t.Errorf("period = %v (%v), want 14 number", f, ok)
	}
	if n, ok := p["period"].Int(); !ok || n != 14 {
		t.Errorf("period Int = %d (%v), want 14", n, ok)
	}
	if s, ok := p["symbol"].Text(); !ok || s != "NQ" {
		t.Errorf("symbol = %q (%v), want NQ string", s, ok)
	}
	if p["risk"].Kind() != KindNumber {
		t.Errorf("risk kind = %v, want number", p["risk"].Kind())
	}

	out, err := json.Marshal(Params{"period": NumberParam(14)})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(out) != `{"period":14}` {
		t.Errorf("Marshal = %s, want {\"period\":14}", out)
	}
}

func TestParamValueRejectsOtherKinds(t *testing.T) {
	for _, in := range []string{`{"a":true}`, `{"a":null}`, `{"a":[1]}`, `{"a":{"b":1}}`} {
		var p Params
		if err := json.Unmarshal([]byte(in), &p); err == nil {
			t.Errorf("Unmarshal(%s) succeeded, want error", in)
		}
	}
	if _, err := json.Marshal(ParamValue{}); err == nil {
		t.Error("marshaling zero ParamValue should fail")
	}
}

func TestParseParam(t *testing.T) {
	tests := []struct {
		in   string
		kind ParamKind
	}{
		{"14", KindNumber},
		{"1.5", KindNumber},
		{"-3", KindNumber},
		{"NQ", KindString},
		{"2024-09-01", KindString},
		{"Inf", KindString},
	}
	for _, tt := range tests {
		if got := ParseParam(tt.in).Kind(); got != tt.kind {
			t.Errorf("ParseParam(%q).Kind() = %v, want %v", tt.in, got, tt.kind)
		}
	}
}

func TestRequireNumber(t *testing.T) {
	p := Params{"period": NumberParam(14), "symbol": StringParam("NQ")}

	if f, err := p.RequireNumber("period", 1, 100); err != nil || f != 14 {
		t.Errorf("RequireNumber(period) = %v, %v", f, err)
	}

	var verr *ValidationError
	if _, err := p.RequireNumber("symbol", 0, 1); !errors.As(err, &verr) || verr.Field != "symbol" {
		t.Errorf("RequireNumber(symbol) err = %v, want ValidationError on symbol", err)
	}
	if _, err := p.RequireNumber("period", 20, 30); !errors.As(err, &verr) {
		t.Errorf("out-of-range err = %v, want ValidationError", err)
	}
	if _, err := p.RequireNumber("missing", 0, 1); !errors.As(err, &verr) {
		t.Errorf("missing err = %v, want ValidationError", err)
	}
	if s, err := p.RequireString("symbol"); err != nil || s != "NQ" {
		t.Errorf("RequireString(symbol) = %q, %v", s, err)
	}
}

func TestParamsMergeDoesNotMutate(t *testing.T) {
	base := Params{"a": NumberParam(1)}
	merged := base.Merge(Params{"a": NumberParam(2), "b": StringParam("x")})
	if f, _ := base["a"].Float(); f != 1 {
		t.Errorf("base mutated: a = %v", f)
	}
	if f, _ := merged["a"].Float(); f != 2 {
		t.Errorf("merged a = %v, want 2", f)
	}
	if got := merged.Keys(); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("Keys = %v, want [a b]", got)
	}
}

func TestRunStateTerminal(t *testing.T) {
	for s, want := range map[RunState]bool{
		RunPending: false, RunRunning: false, RunCompleted: true, RunFailed: true,
	} {
		if got := s.Terminal(); got != want {
			t.Errorf("%s.Terminal() = %v, want %v", s, got, want)
		}
	}
}

func TestTradeIsWin(t *testing.T) {
	for res, want := range map[string]bool{"TP": true, "tp": true, "WIN": true, "SL": false, "BE": false, "": false} {
		if got := (Trade{Result: res}).IsWin(); got != want {
			t.Errorf("IsWin(%q) = %v, want %v", res, got, want)
		}
	}
}

func TestTradeEntryAt(t *testing.T) {
	ts, ok := Trade{Date: "2024-09-02", EntryTime: "09:30"}.EntryAt()
	if !ok {
		t.Fatal("EntryAt failed")
	}
	if ts.Weekday().String() != "Monday" || ts.Hour() != 9 || ts.Minute() != 30 {
		t.Errorf("EntryAt = %v", ts)
	}
	if _, ok := (Trade{Date: "bad"}).EntryAt(); ok {
		t.Error("EntryAt should fail on malformed date")
	}
}

func TestMetricsConsistent(t *testing.T) {
	if !(RunMetrics{TotalTrades: 3, WinningTrades: 2, LosingTrades: 1}).Consistent() {
		t.Error("2+1 of 3 should be consistent")
	}
	if (RunMetrics{TotalTrades: 4, WinningTrades: 2, LosingTrades: 1}).Consistent() {
		t.Error("2+1 of 4 should not be consistent")
	}
}
