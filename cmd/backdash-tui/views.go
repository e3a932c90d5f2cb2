package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"backdash/internal/analyst"
	"backdash/internal/compare"
	"backdash/internal/dashboard"
	"backdash/internal/lifecycle"
	"backdash/pkg/backdash"
)

// Styles.
var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	cursorStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("12"))
	selectedStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("208"))
	gainStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	lossStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	colHeaderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	tabStyle       = lipgloss.NewStyle().Padding(0, 1).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("4"))
	tabActiveStyle = lipgloss.NewStyle().Padding(0, 1).Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("11"))
	cardStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("8")).Padding(0, 1).Width(18)
	userStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
)

func pnlStyle(positive bool) lipgloss.Style {
	if positive {
		return gainStyle
	}
	return lossStyle
}

func (m model) View() string {
	if !m.ready {
		return "Loading..."
	}

	var tabs []string
	for i, name := range viewNames {
		label := fmt.Sprintf("%d %s", i+1, name)
		if view(i) == m.view {
			tabs = append(tabs, tabActiveStyle.Render(label))
		} else {
			tabs = append(tabs, tabStyle.Render(label))
		}
	}
	right := fmt.Sprintf(" %s (%s) ", m.d.sess.User(), m.d.sess.TierLabel())
	if m.d.relayAddr != "" {
		right = " relay " + m.d.relayAddr + " |" + right
	}
	header := lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
	gap := m.width - lipgloss.Width(header) - lipgloss.Width(right)
	if gap > 0 {
		header += tabStyle.Render(strings.Repeat(" ", max(gap-2, 0))) + right
	}

	pct := m.viewport.ScrollPercent() * 100
	footerLeft := " " + m.keyHelp()
	if m.status != "" {
		footerLeft = " " + m.status + "  |" + footerLeft
	}
	footerRight := fmt.Sprintf("%.0f%% ", pct)
	gap = m.width - lipgloss.Width(footerLeft) - len(footerRight)
	if gap < 0 {
		gap = 0
	}
	footerBar := lipgloss.NewStyle().
		Foreground(lipgloss.Color("15")).
		Background(lipgloss.Color("8")).
		Render(padOrTrunc(footerLeft+strings.Repeat(" ", gap)+footerRight, m.width))

	header = lipgloss.NewStyle().MaxWidth(m.width).Render(header)
	return header + "\n" + m.viewport.View() + "\n" + footerBar
}

func (m model) keyHelp() string {
	if m.typing {
		return "enter valider  esc annuler"
	}
	common := "tab vue  q quitter"
	switch m.view {
	case viewStrategies:
		return "up/dn choisir  enter lancer  / chercher  c catégorie  p période  " + common
	case viewRun:
		return "enter résultats  " + common
	case viewResults:
		return "r recharger  e exporter  " + common
	case viewRuns:
		return "space comparer  enter résultats  s tri  d supprimer  r recharger  " + common
	case viewCompare:
		return "r recharger  " + common
	case viewChat:
		return "enter question  R effacer  " + common
	}
	return common
}

func (m model) renderContent() string {
	var b strings.Builder
	switch m.view {
	case viewStrategies:
		m.renderStrategies(&b)
	case viewRun:
		m.renderRun(&b)
	case viewResults:
		m.renderResults(&b)
	case viewRuns:
		m.renderRuns(&b)
	case viewCompare:
		m.renderCompare(&b)
	case viewChat:
		m.renderChat(&b)
	}
	return b.String()
}

func (m model) renderStrategies(b *strings.Builder) {
	cat := m.category()
	if cat == "" {
		cat = "toutes"
	}
	period := tuiPeriods[m.period]
	fmt.Fprintf(b, "\n  Catégorie: %s   Période: %s", titleStyle.Render(cat), titleStyle.Render(period.Label()))
	if m.dataRange != nil {
		b.WriteString(dimStyle.Render(fmt.Sprintf("   données %s .. %s", m.dataRange.StartDate, m.dataRange.EndDate)))
	}
	b.WriteString("\n")
	if m.typing && m.view == viewStrategies {
		b.WriteString("  " + m.input.View() + "\n")
	} else if m.query != "" {
		fmt.Fprintf(b, "  Recherche: %q\n", m.query)
	}
	if st := m.stats; st != nil {
		b.WriteString(dimStyle.Render(fmt.Sprintf("  %d stratégies, %s runs, %s trades, win rate moyen %s",
			st.TotalStrategies, dashboard.FormatCount(st.TotalRuns), dashboard.FormatCount(st.TotalTrades),
			dashboard.FormatPercent(st.AvgWinRate))))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	list := m.visibleStrategies()
	if len(list) == 0 {
		b.WriteString(dimStyle.Render("  Aucune stratégie"))
		b.WriteString("\n")
		return
	}
	b.WriteString(colHeaderStyle.Render(fmt.Sprintf("  %-24s %-30s %-12s %-6s", "ID", "NOM", "CATÉGORIE", "TF")))
	b.WriteString("\n")
	for i, s := range list {
		line := fmt.Sprintf("  %-24s %-30s %-12s %-6s", padOrTrunc(s.ID, 24), padOrTrunc(s.Name, 30), s.Category, s.Timeframe)
		if i == m.cursor {
			line = cursorStyle.Render(line)
		}
		b.WriteString(line + "\n")
	}

	if m.cursor < len(list) {
		s := list[m.cursor]
		b.WriteString("\n  " + titleStyle.Render(s.Name) + "\n")
		if s.Description != "" {
			b.WriteString("  " + s.Description + "\n")
		}
		fmt.Fprintf(b, "  Risque: %s   Tags: %s\n", s.RiskModel, strings.Join(s.Tags, ", "))
		for _, k := range s.Parameters.Keys() {
			fmt.Fprintf(b, "    %-20s %s\n", k, s.Parameters[k])
		}
	}
}

func (m model) renderRun(b *strings.Builder) {
	s := m.snap
	b.WriteString("\n")
	switch s.State {
	case lifecycle.Idle:
		if s.Err != nil {
			b.WriteString("  " + lossStyle.Render("Création impossible: "+backdash.Describe(s.Err)) + "\n")
		} else {
			b.WriteString(dimStyle.Render("  Aucun run en cours. Lancez une stratégie depuis la vue 1."))
			b.WriteString("\n")
		}
		return
	case lifecycle.Creating:
		b.WriteString("  Création du run " + s.Name + "...\n")
		return
	}

	fmt.Fprintf(b, "  %s\n\n", dashboard.StatusBadge(s.Status).Render(s.Message, m.frame))
	fmt.Fprintf(b, "  Run:        %s\n", s.RunID)
	if s.Name != "" {
		fmt.Fprintf(b, "  Nom:        %s\n", s.Name)
	}
	fmt.Fprintf(b, "  Progression %s %3.0f%%\n", dashboard.Bar(s.Progress, 40), s.Progress*100)
	fmt.Fprintf(b, "  Requêtes:   %d   timers actifs: %d   mis à jour %s\n",
		m.d.ctrl.Polls(), m.d.ctrl.ActiveTimers(), s.ObservedAt.Format("15:04:05"))
	if s.Err != nil {
		b.WriteString("  " + lossStyle.Render("Dernière erreur: "+backdash.Describe(s.Err)) + "\n")
	}
	if n := len(m.d.ctrl.Violations()); n > 0 {
		b.WriteString("  " + lossStyle.Render(fmt.Sprintf("%d changements de statut après la fin ignorés", n)) + "\n")
	}

	if len(s.Logs) > 0 {
		b.WriteString("\n  " + titleStyle.Render("Logs") + "\n")
		logs := s.Logs
		if len(logs) > 20 {
			logs = logs[len(logs)-20:]
		}
		for _, line := range logs {
			b.WriteString(dimStyle.Render("    "+line) + "\n")
		}
	}
	if s.State == lifecycle.Completed {
		if m.results != nil && m.results.RunID == s.RunID {
			b.WriteString("\n  " + gainStyle.Render("Résultats prêts, entrée pour les afficher") + "\n")
		} else {
			b.WriteString("\n  Chargement des résultats...\n")
		}
	}
}

func (m model) renderResults(b *strings.Builder) {
	if m.resultsErr != nil {
		b.WriteString("\n  " + lossStyle.Render("Impossible de charger les résultats") + "\n\n")
		b.WriteString("  " + backdash.Describe(m.resultsErr) + "\n\n")
		b.WriteString(dimStyle.Render("  r pour réessayer") + "\n")
		return
	}
	res := m.results
	if res == nil {
		b.WriteString("\n" + dimStyle.Render("  Pas encore de résultats.") + "\n")
		return
	}
	met := res.Metrics
	fmt.Fprintf(b, "\n  %s  %s\n\n", titleStyle.Render(res.Strategy), dimStyle.Render(res.RunID))

	var cards []string
	for _, k := range dashboard.KPIs(met) {
		cards = append(cards, cardStyle.Render(dimStyle.Render(k.Title)+"\n"+pnlStyle(k.Positive).Render(k.Value)))
	}
	perRow := max(m.width/20, 1)
	for i := 0; i < len(cards); i += perRow {
		row := lipgloss.JoinHorizontal(lipgloss.Top, cards[i:min(i+perRow, len(cards))]...)
		b.WriteString(indent(row, 2) + "\n")
	}

	b.WriteString("\n")
	for _, s := range dashboard.WinLossSplit(met) {
		fmt.Fprintf(b, "  %-12s %s %5.1f%%\n", s.Name, dashboard.Bar(s.Share, 30), s.Share*100)
	}
	for _, s := range dashboard.ProfitLossBars(met) {
		fmt.Fprintf(b, "  %-12s %s %s\n", s.Name, dashboard.Bar(s.Share, 30), dashboard.FormatUSD(s.Value))
	}
	width := max(m.width-16, 10)
	if len(res.EquityCurve) > 0 {
		fmt.Fprintf(b, "\n  Equity    %s\n", gainStyle.Render(dashboard.Sparkline(res.EquityCurve, width)))
	}
	if len(res.DrawdownCurve) > 0 {
		fmt.Fprintf(b, "  Drawdown  %s\n", lossStyle.Render(dashboard.Sparkline(res.DrawdownCurve, width)))
	}

	grid := dashboard.NewHeatmapGrid(dashboard.BuildHeatmap(res.Trades))
	if len(grid.Days) > 0 {
		b.WriteString("\n  " + titleStyle.Render("P&L moyen par jour et heure") + "\n")
		b.WriteString(colHeaderStyle.Render("      "))
		for _, h := range grid.Hours {
			b.WriteString(colHeaderStyle.Render(fmt.Sprintf("%7dh", h)))
		}
		b.WriteString("\n")
		for _, d := range grid.Days {
			fmt.Fprintf(b, "  %-4s", d)
			for _, h := range grid.Hours {
				c, ok := grid.Cell(d, h)
				if !ok {
					b.WriteString(dimStyle.Render(fmt.Sprintf("%8s", ".")))
					continue
				}
				b.WriteString(pnlStyle(c.Value >= 0).Render(fmt.Sprintf("%8s", dashboard.FormatPnL(c.Value))))
			}
			b.WriteString("\n")
		}
	}

	if len(res.Trades) > 0 {
		b.WriteString("\n" + colHeaderStyle.Render(fmt.Sprintf("  %-4s %-10s %-6s %-6s %-6s %10s %10s %10s %s",
			"#", "DATE", "IN", "OUT", "SENS", "ENTRÉE", "SORTIE", "P&L", "RÉSULTAT")) + "\n")
		for _, t := range res.Trades {
			line := fmt.Sprintf("  %-4d %-10s %-6s %-6s %-6s %10.2f %10.2f %10s %s",
				t.ID, t.Date, t.EntryTime, t.ExitTime, t.Direction, t.Entry, t.Exit, dashboard.FormatPnL(t.PnLUSD), t.Result)
			b.WriteString(pnlStyle(t.PnLUSD >= 0).Render(line) + "\n")
		}
	}
}

func (m model) renderRuns(b *strings.Builder) {
	c := dashboard.CountRuns(m.runs)
	fmt.Fprintf(b, "\n  %d runs  (en cours %d, terminés %d, échecs %d)   tri: %s   comparaison: %d/%d\n\n",
		c.Total, c.Running, c.Completed, c.Failed, dashboard.SortModeLabel(m.sortMode), m.sel.Len(), compare.MaxSelected)
	if len(m.runs) == 0 {
		b.WriteString(dimStyle.Render("  Aucun run") + "\n")
		return
	}
	b.WriteString(colHeaderStyle.Render(fmt.Sprintf("  %-3s %-10s %-32s %-14s %-18s %s", "", "RUN", "NOM", "STATUT", "LANCÉ", "DURÉE")) + "\n")
	for i, r := range m.runs {
		mark := "[ ]"
		if m.sel.Contains(r.RunID) {
			mark = selectedStyle.Render("[x]")
		}
		dur := "-"
		if r.DurationSeconds != nil {
			dur = dashboard.FormatDuration(*r.DurationSeconds)
		}
		line := fmt.Sprintf("%-10s %-32s %-14s %-18s %s", compare.Label(r.RunID), padOrTrunc(r.DisplayName(), 32),
			dashboard.StatusBadge(r.Status).Text(), dashboard.FormatAgo(r.StartedAt), dur)
		if i == m.runCursor {
			line = cursorStyle.Render(line)
		}
		b.WriteString("  " + mark + " " + line + "\n")
	}
}

func (m model) renderCompare(b *strings.Builder) {
	ids := m.sel.IDs()
	if len(ids) == 0 {
		b.WriteString("\n" + dimStyle.Render("  Sélectionnez des runs avec espace dans l'historique (vue 4).") + "\n")
		return
	}
	if m.comparing {
		b.WriteString("\n  Chargement des résultats...\n")
	}
	loaded := m.d.loader.Results()
	failed := m.d.loader.Failed()

	b.WriteString("\n" + colHeaderStyle.Render(fmt.Sprintf("  %-16s", "")))
	for _, id := range ids {
		b.WriteString(titleStyle.Render(fmt.Sprintf(" %12s", compare.Label(id))))
	}
	b.WriteString("\n")
	for _, row := range compare.MetricRows(ids, loaded) {
		fmt.Fprintf(b, "  %-16s", row.Metric)
		for _, cell := range row.Cells {
			fmt.Fprintf(b, " %12s", cell)
		}
		b.WriteString("\n")
	}

	points := compare.Align(ids, loaded)
	if len(points) > 0 {
		fmt.Fprintf(b, "\n  %s (%d trades)\n", titleStyle.Render("Courbes d'equity"), len(points))
		width := max(m.width-16, 10)
		for _, id := range ids {
			if loaded[id] == nil {
				continue
			}
			label := compare.Label(id)
			var series []float64
			for _, p := range points {
				if v, ok := p.Values[label]; ok {
					series = append(series, v)
				}
			}
			fmt.Fprintf(b, "  %-10s %s\n", label, dashboard.Sparkline(series, width))
		}
	}
	for _, id := range ids {
		if err, ok := failed[id]; ok && loaded[id] == nil {
			b.WriteString("  " + lossStyle.Render(compare.Label(id)+" indisponible: "+backdash.Describe(err)) + "\n")
		}
	}
}

func (m model) renderChat(b *strings.Builder) {
	width := max(m.width-4, 20)
	history := m.d.asst.History()
	if len(history) == 0 {
		b.WriteString("\n" + dimStyle.Render("  Posez une question sur vos résultats: performance, sharpe, meilleures heures...") + "\n")
		if m.results != nil {
			b.WriteString(dimStyle.Render("  Run courant: "+m.results.RunID) + "\n")
		}
	}
	for _, msg := range history {
		b.WriteString("\n")
		if msg.Role == analyst.RoleUser {
			b.WriteString("  " + userStyle.Render("> "+msg.Content) + "\n")
			continue
		}
		b.WriteString(analyst.Render(msg.Content, width) + "\n")
		if msg.Fallback {
			b.WriteString(dimStyle.Render("  (réponse hors ligne)") + "\n")
		}
	}
	b.WriteString("\n")
	if m.typing {
		b.WriteString("  " + m.input.View() + "\n")
	}
}

func indent(s string, n int) string {
	pad := strings.Repeat(" ", n)
	return pad + strings.ReplaceAll(s, "\n", "\n"+pad)
}

func padOrTrunc(s string, width int) string {
	n := lipgloss.Width(s)
	if n > width {
		r := []rune(s)
		if len(r) > width {
			return string(r[:width])
		}
		return s
	}
	return s + strings.Repeat(" ", width-n)
}
