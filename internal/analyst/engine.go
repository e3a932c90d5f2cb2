package analyst

import (
	"fmt"
	"math"
	"strings"

	"backdash/internal/dashboard"
	"backdash/internal/domain"
)

// Engine answers analyst questions from run results. It backs the chat
// endpoint of the mock backend.
type Engine struct{}

// Answer routes a question by keyword. results may be nil when no run is in
// scope.
func (Engine) Answer(query string, results *domain.RunResults) string {
	q := strings.ToLower(query)
	switch {
	case containsAny(q, "performance", "pnl", "profit", "loss", "backtest"):
		return Performance(results)
	case containsAny(q, "volatilité", "volatility", "vol", "risk"):
		return volatilityNote
	case containsAny(q, "code", "script", "python", "générer", "sharpe", "calmar"):
		return codeNote(q)
	case containsAny(q, "heure", "hour", "temps", "time", "distribution"):
		return Temporal(results)
	default:
		return fmt.Sprintf(defaultNote, query)
	}
}

func containsAny(s string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// Performance summarises a run's trades as markdown.
func Performance(r *domain.RunResults) string {
	if r == nil {
		return "📊 Aucun backtest trouvé. Lancez un backtest d'abord."
	}
	if len(r.Trades) == 0 {
		return "📊 Aucun trade dans ce backtest."
	}

	m, _ := dashboard.ComputeMetrics(r.Trades)
	maxWin, maxLoss := math.Inf(-1), math.Inf(1)
	for _, t := range r.Trades {
		maxWin = math.Max(maxWin, t.PnLUSD)
		maxLoss = math.Min(maxLoss, t.PnLUSD)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "## 📊 Analyse des Performances - Run %s\n\n", dashboard.ShortID(r.RunID))
	b.WriteString("### 📈 Métriques Principales\n")
	fmt.Fprintf(&b, "- **Total Trades**: %d\n", m.TotalTrades)
	fmt.Fprintf(&b, "- **Win Rate**: %s (%dW / %dL)\n", dashboard.FormatPercent(m.WinRate), m.WinningTrades, m.LosingTrades)
	fmt.Fprintf(&b, "- **PnL Total**: %s\n", dashboard.FormatPnL(m.NetPnL))
	fmt.Fprintf(&b, "- **PnL Moyen**: %s\n\n", dashboard.FormatPnL(m.Expectancy))
	b.WriteString("### 💰 Distribution des Gains\n")
	fmt.Fprintf(&b, "- **Plus Gros Gain**: %s\n", dashboard.FormatUSD(maxWin))
	fmt.Fprintf(&b, "- **Plus Grosse Perte**: %s\n\n", dashboard.FormatUSD(maxLoss))
	b.WriteString("### 📉 Gestion du Risque\n")
	fmt.Fprintf(&b, "- **Max Drawdown**: %s\n", dashboard.FormatUSD(m.MaxDrawdown))
	fmt.Fprintf(&b, "- **Sharpe Ratio**: %.2f\n", Sharpe(r.Trades))
	return b.String()
}

// Sharpe is the per-trade Sharpe ratio annualised over 252 periods.
func Sharpe(trades []domain.Trade) float64 {
	n := float64(len(trades))
	if n < 2 {
		return 0
	}
	var sum float64
	for _, t := range trades {
		sum += t.PnLUSD
	}
	mean := sum / n
	var ss float64
	for _, t := range trades {
		ss += (t.PnLUSD - mean) * (t.PnLUSD - mean)
	}
	std := math.Sqrt(ss / (n - 1))
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(252)
}

// Temporal reports the best and worst entry hours of a run.
func Temporal(r *domain.RunResults) string {
	if r == nil || len(r.Trades) == 0 {
		return "## ⏰ Distribution Temporelle\n\nAucun trade à analyser."
	}
	hours := make(map[int]float64)
	for _, c := range dashboard.BuildHeatmap(r.Trades) {
		hours[c.Hour] += c.Value * float64(c.Trades)
	}
	best, worst := -1, -1
	for h, pnl := range hours {
		if best < 0 || pnl > hours[best] || (pnl == hours[best] && h < best) {
			best = h
		}
		if worst < 0 || pnl < hours[worst] || (pnl == hours[worst] && h < worst) {
			worst = h
		}
	}
	return fmt.Sprintf("## ⏰ Distribution Temporelle\n\n- **Meilleure heure**: %dh (%s)\n- **Pire heure**: %dh (%s)\n",
		best, dashboard.FormatPnL(hours[best]), worst, dashboard.FormatPnL(hours[worst]))
}

func codeNote(q string) string {
	switch {
	case strings.Contains(q, "sharpe"):
		return "## 💻 Sharpe Ratio\n\n`sharpe = mean(pnl) / std(pnl) * sqrt(252)`\n\n" +
			"- **> 2.0**: Excellent\n- **1.0-2.0**: Bon\n- **< 1.0**: À améliorer"
	case strings.Contains(q, "calmar"):
		return "## 💻 Calmar Ratio\n\n`calmar = total_pnl / |max_drawdown|`\n\n" +
			"Un drawdown nul donne un ratio infini."
	default:
		return fallbackCode
	}
}

const volatilityNote = `## 📈 Analyse de Volatilité

- Rendements: variation relative des clôtures
- Volatilité historique: écart-type glissant sur 20 périodes, annualisé (×√252)
- Volatilité élevée = opportunités + risques; adaptez la taille des positions`

const defaultNote = `## 🔍 Analyse en cours...

Je traite votre requête: "%s"

Essayez des questions spécifiques comme:
- "Analyse les performances du dernier backtest"
- "Génère un code pour calculer le Sharpe ratio"
- "Montre la distribution temporelle des trades"
- "Analyse la volatilité récente"`
