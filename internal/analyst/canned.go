package analyst

import (
	"fmt"
	"strings"
)

// ResponseType classifies an answer for display.
type ResponseType string

const (
	TypeChart    ResponseType = "chart"
	TypeCode     ResponseType = "code"
	TypeTable    ResponseType = "table"
	TypeAnalysis ResponseType = "analysis"
)

// DetectType guesses how an answer to query should be displayed.
func DetectType(query string) ResponseType {
	q := strings.ToLower(query)
	switch {
	case strings.Contains(q, "chart") || strings.Contains(q, "graph"):
		return TypeChart
	case strings.Contains(q, "code") || strings.Contains(q, "script"):
		return TypeCode
	case strings.Contains(q, "table") || strings.Contains(q, "données"):
		return TypeTable
	default:
		return TypeAnalysis
	}
}

// Fallback returns the offline answer shown when the backend cannot be
// reached.
func Fallback(query string) string {
	q := strings.ToLower(query)
	switch {
	case strings.Contains(q, "performance") || strings.Contains(q, "backtest"):
		return fallbackPerformance
	case strings.Contains(q, "volatilité") || strings.Contains(q, "volatility"):
		return fallbackVolatility
	case strings.Contains(q, "code") || strings.Contains(q, "script"):
		return fallbackCode
	default:
		return fmt.Sprintf(fallbackDefault, query)
	}
}

const fallbackPerformance = `## 📊 Analyse des Performances

Le backend est injoignable : ces chiffres sont un exemple, pas vos résultats.

### Métriques Clés
- **PnL Total**: +$12,450
- **Win Rate**: 62.3% (156/250 trades)
- **Expectancy**: $49.80 par trade
- **Max Drawdown**: -$2,340

### Recommandations
1. Comparer les créneaux horaires avec la heatmap du run
2. Surveiller le drawdown en début de session
3. Tester un scale-in progressif`

const fallbackVolatility = `## 📈 Analyse de Volatilité

Le backend est injoignable : relancez la question une fois la connexion rétablie.

- Volatilité réalisée = écart-type des rendements sur 20 périodes, annualisé
- Une volatilité au-dessus de sa moyenne signale un environnement plus risqué
- Adaptez la taille des positions en conséquence`

const fallbackCode = "## 💻 Code d'Analyse\n\n" +
	"```go\n" +
	"func maxDrawdown(pnl []float64) float64 {\n" +
	"\tvar equity, peak, dd float64\n" +
	"\tfor i, p := range pnl {\n" +
	"\t\tequity += p\n" +
	"\t\tif i == 0 || equity > peak {\n" +
	"\t\t\tpeak = equity\n" +
	"\t\t}\n" +
	"\t\tdd = min(dd, equity-peak)\n" +
	"\t}\n" +
	"\treturn dd\n" +
	"}\n" +
	"```\n\n" +
	"Ce fragment calcule le drawdown maximal d'une série de P&L."

const fallbackDefault = `## 🔍 Analyse en cours...

Je traite votre requête: "%s"

Pour une analyse plus précise, vous pouvez:
- Spécifier une période: "Analyse les 7 derniers jours"
- Cibler une stratégie: "Compare SuperTrend vs MA Cross"
- Demander du code: "Génère un script pour calculer le ratio de Calmar"`
