package analyst

import (
	"context"
	"errors"
	"strings"
	"testing"

	"backdash/internal/domain"
)

type stubChat struct {
	resp *domain.ChatResponse
	err  error
	got  domain.ChatRequest
}

func (s *stubChat) Chat(_ context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	s.got = req
	return s.resp, s.err
}

func TestAskUsesBackend(t *testing.T) {
	stub := &stubChat{resp: &domain.ChatResponse{Response: "## ok", Metadata: map[string]any{"type": "chart"}}}
	a := NewAssistant(stub, nil)

	msg := a.Ask(context.Background(), "montre le graph", "run-12345678")
	if msg.Fallback || msg.Content != "## ok" || msg.Type != TypeChart {
		t.Errorf("Ask = %+v", msg)
	}
	if stub.got.RunID != "run-12345678" || stub.got.Context["run_id"] != "run-12345678" {
		t.Errorf("request = %+v", stub.got)
	}
	if h := a.History(); len(h) != 2 || h[0].Role != RoleUser || h[1].Role != RoleAssistant {
		t.Errorf("History = %+v", h)
	}
}

func TestAskFallsBackOffline(t *testing.T) {
	a := NewAssistant(&stubChat{err: errors.New("connection refused")}, nil)

	msg := a.Ask(context.Background(), "Analyse les performances du dernier backtest", "")
	if !msg.Fallback || msg.Err == nil {
		t.Fatalf("expected fallback, got %+v", msg)
	}
	if !strings.Contains(msg.Content, "Analyse des Performances") {
		t.Errorf("fallback content = %q", msg.Content)
	}
	if msg.Type != TypeAnalysis {
		t.Errorf("Type = %q, want analysis", msg.Type)
	}
	a.Reset()
	if len(a.History()) != 0 {
		t.Error("Reset did not clear history")
	}
}

func TestFallbackRouting(t *testing.T) {
	tests := []struct {
		q    string
		want string
	}{
		{"quelle volatilité ?", "Volatilité"},
		{"écris un script", "Code"},
		{"bonjour", `"bonjour"`},
	}
	for _, tt := range tests {
		if got := Fallback(tt.q); !strings.Contains(got, tt.want) {
			t.Errorf("Fallback(%q) missing %q", tt.q, tt.want)
		}
	}
}

func TestDetectType(t *testing.T) {
	tests := map[string]ResponseType{
		"un chart":       TypeChart,
		"du code":        TypeCode,
		"les données":    TypeTable,
		"analyse le run": TypeAnalysis,
	}
	for q, want := range tests {
		if got := DetectType(q); got != want {
			t.Errorf("DetectType(%q) = %q, want %q", q, got, want)
		}
	}
}

func TestEnginePerformance(t *testing.T) {
	r := &domain.RunResults{
		RunID: "0000abcd1234",
		Trades: []domain.Trade{
			{Date: "2024-09-02", EntryTime: "14:00", PnLUSD: 100, Result: "TP"},
			{Date: "2024-09-02", EntryTime: "15:00", PnLUSD: -40, Result: "SL"},
		},
	}
	var e Engine
	got := e.Answer("analyse la performance", r)
	for _, want := range []string{"abcd1234", "**Total Trades**: 2", "+$60"} {
		if !strings.Contains(got, want) {
			t.Errorf("performance answer missing %q:\n%s", want, got)
		}
	}
	if got := e.Answer("quelle heure ?", r); !strings.Contains(got, "Meilleure heure**: 14h") {
		t.Errorf("temporal answer = %s", got)
	}
	if got := e.Answer("performance", nil); !strings.Contains(got, "Aucun backtest") {
		t.Errorf("nil results answer = %s", got)
	}
}

func TestRenderFallsBackToInput(t *testing.T) {
	out := RenderPlain("# Titre\n\ntexte", 40)
	if !strings.Contains(out, "Titre") || !strings.Contains(out, "texte") {
		t.Errorf("RenderPlain = %q", out)
	}
}
