package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"backdash/internal/analyst"
	"backdash/internal/compare"
	"backdash/internal/dashboard"
	"backdash/internal/domain"
	"backdash/internal/lifecycle"
	"backdash/internal/results"
	"backdash/internal/session"
	"backdash/internal/store"
	"backdash/pkg/backdash"
)

type view int

const (
	viewStrategies view = iota
	viewRun
	viewResults
	viewRuns
	viewCompare
	viewChat
	viewCount
)

var viewNames = [viewCount]string{"Stratégies", "Run", "Résultats", "Historique", "Comparer", "Analyste"}

// deps are shared by every copy of the model.
type deps struct {
	ctx       context.Context
	client    *backdash.Client
	ctrl      *lifecycle.Controller
	fetcher   *results.Fetcher
	loader    *compare.Loader
	asst      *analyst.Assistant
	exports   store.ExportStore
	sess      *session.Session
	log       *slog.Logger
	relayAddr string
	maxSelect int
}

// Messages.
type tickMsg time.Time

type strategiesMsg struct {
	resp *domain.StrategyListResponse
	err  error
}

type dataRangeMsg struct {
	dr  *domain.DataRange
	err error
}

type runsMsg struct {
	resp *domain.RunListResponse
	err  error
}

type submittedMsg struct {
	snap lifecycle.Snapshot
	err  error
}

type resultsMsg struct {
	runID string
	res   *domain.RunResults
	err   error
}

type compareLoadedMsg struct{ err error }

type chatMsg struct{ reply analyst.Message }

type deletedMsg struct {
	runID string
	err   error
}

type exportedMsg struct {
	path string
	err  error
}

func tickCmd() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Model.
type model struct {
	d *deps

	view          view
	viewport      viewport.Model
	input         textinput.Model
	typing        bool // keys go to input
	ready         bool
	width, height int
	frame         int
	status        string

	// Strategies.
	strategies []domain.Strategy
	stats      *domain.CatalogStats
	categories []string
	catIdx     int // 0 is every category
	query      string
	cursor     int
	period     int // index into tuiPeriods
	dataRange  *domain.DataRange

	// Run.
	snap lifecycle.Snapshot

	// Results.
	results    *domain.RunResults
	resultsErr error
	fetching   string

	// History and comparison.
	runs      []domain.RunInfo
	runCursor int
	sortMode  int
	sel       *compare.Selection
	comparing bool
}

func initialModel(d *deps) model {
	ti := textinput.New()
	ti.CharLimit = 500
	return model{
		d:     d,
		input: ti,
		sel:   &compare.Selection{},
		snap:  d.ctrl.Snapshot(),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(tickCmd(), m.loadStrategies(), m.loadDataRange(), m.loadRuns())
}

// ---------------------------------------------------------------------------
// Commands
// ---------------------------------------------------------------------------

func (m model) loadStrategies() tea.Cmd {
	d := m.d
	return func() tea.Msg {
		resp, err := d.client.ListStrategies(d.ctx)
		return strategiesMsg{resp: resp, err: err}
	}
}

func (m model) loadDataRange() tea.Cmd {
	d := m.d
	return func() tea.Msg {
		dr, err := d.client.GetDataRange(d.ctx)
		return dataRangeMsg{dr: dr, err: err}
	}
}

func (m model) loadRuns() tea.Cmd {
	d := m.d
	return func() tea.Msg {
		resp, err := d.client.ListRuns(d.ctx, 50)
		return runsMsg{resp: resp, err: err}
	}
}

func (m model) submit(s domain.Strategy) tea.Cmd {
	d := m.d
	period := tuiPeriods[m.period]
	dr := m.dataRange
	return func() tea.Msg {
		dates, err := period.Resolve(dr, "", "")
		if err != nil {
			return submittedMsg{err: err}
		}
		params := s.Parameters.Merge(dates)
		name := fmt.Sprintf("%s - %s", s.Name, period.Label())
		snap, err := d.ctrl.Submit(d.ctx, s.ID, params, name)
		return submittedMsg{snap: snap, err: err}
	}
}

func (m model) fetchResults(runID string) tea.Cmd {
	d := m.d
	return func() tea.Msg {
		res, err := d.fetcher.Fetch(d.ctx, runID)
		return resultsMsg{runID: runID, res: res, err: err}
	}
}

func (m model) fetchCompleted(snap lifecycle.Snapshot) tea.Cmd {
	d := m.d
	return func() tea.Msg {
		res, err := d.fetcher.FetchCompleted(d.ctx, snap)
		return resultsMsg{runID: snap.RunID, res: res, err: err}
	}
}

func (m model) loadCompare() tea.Cmd {
	d := m.d
	ids := m.sel.IDs()
	return func() tea.Msg {
		return compareLoadedMsg{err: d.loader.Load(d.ctx, ids)}
	}
}

func (m model) ask(q string) tea.Cmd {
	d := m.d
	runID := ""
	if m.results != nil {
		runID = m.results.RunID
	}
	return func() tea.Msg {
		return chatMsg{reply: d.asst.Ask(d.ctx, q, runID)}
	}
}

func (m model) deleteRun(runID string) tea.Cmd {
	d := m.d
	return func() tea.Msg {
		_, err := d.client.DeleteRun(d.ctx, runID)
		return deletedMsg{runID: runID, err: err}
	}
}

func (m model) export(res *domain.RunResults) tea.Cmd {
	d := m.d
	return func() tea.Msg {
		path, err := d.exports.WriteRun(d.ctx, res)
		return exportedMsg{path: path, err: err}
	}
}

// tuiPeriods are the presets offered in the strategy list.
var tuiPeriods = []lifecycle.Period{lifecycle.PeriodAll, lifecycle.PeriodLastMonth, lifecycle.PeriodExperimental}

// ---------------------------------------------------------------------------
// Update
// ---------------------------------------------------------------------------

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.typing {
			return m.updateInput(msg)
		}
		if next, cmd, handled := m.updateKeys(msg); handled {
			return next, cmd
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		headerH := 1
		footerH := 1
		vpHeight := m.height - headerH - footerH
		if vpHeight < 1 {
			vpHeight = 1
		}
		m.input.Width = max(m.width-6, 10)
		if !m.ready {
			m.viewport = viewport.New(m.width, vpHeight)
			m.viewport.MouseWheelEnabled = true
			m.ready = true
		} else {
			m.viewport.Width = m.width
			m.viewport.Height = vpHeight
		}
		m.refresh()
		return m, nil

	case tickMsg:
		m.frame++
		prev := m.snap
		m.snap = m.d.ctrl.Snapshot()
		var cmds []tea.Cmd
		cmds = append(cmds, tickCmd())
		if m.snap.State == lifecycle.Completed && m.snap.RunID != "" && m.fetching != m.snap.RunID {
			m.fetching = m.snap.RunID
			cmds = append(cmds, m.fetchCompleted(m.snap))
		}
		if m.snap.State.Terminal() && !prev.State.Terminal() {
			cmds = append(cmds, m.loadRuns())
			if m.snap.State == lifecycle.Failed {
				m.status = "Run échoué: " + m.snap.Message
			}
		}
		m.refresh()
		return m, tea.Batch(cmds...)

	case strategiesMsg:
		if msg.err != nil {
			m.status = backdash.Describe(msg.err)
			m.d.log.Error("loading strategies", "error", msg.err)
		} else {
			m.strategies = msg.resp.Strategies
			m.stats = msg.resp.Stats
			m.categories = dashboard.Categories(m.strategies)
		}
		m.refresh()
		return m, nil

	case dataRangeMsg:
		if msg.err != nil {
			// Presets fall back to fixed windows without a range.
			m.d.log.Warn("data range unavailable", "error", msg.err)
		} else {
			m.dataRange = msg.dr
		}
		m.refresh()
		return m, nil

	case runsMsg:
		if msg.err != nil {
			m.status = backdash.Describe(msg.err)
		} else {
			m.runs = msg.resp.Runs
			dashboard.SortRuns(m.runs, m.sortMode)
			m.runCursor = min(m.runCursor, max(len(m.runs)-1, 0))
		}
		m.refresh()
		return m, nil

	case submittedMsg:
		if errors.Is(msg.err, lifecycle.ErrSuperseded) {
			m.d.log.Info("earlier submission replaced", "error", msg.err)
			return m, nil
		}
		if msg.err != nil {
			m.status = backdash.Describe(msg.err)
		} else {
			m.status = fmt.Sprintf("Run %s lancé", compare.Label(msg.snap.RunID))
			m.snap = msg.snap
		}
		m.refresh()
		return m, nil

	case resultsMsg:
		m.resultsErr = msg.err
		if msg.err == nil {
			m.results = msg.res
			if !msg.res.Metrics.Consistent() {
				m.d.log.Warn("metrics do not add up", "run_id", msg.runID)
			}
		}
		m.refresh()
		return m, nil

	case compareLoadedMsg:
		m.comparing = false
		if msg.err != nil {
			m.status = backdash.Describe(msg.err)
		}
		m.refresh()
		return m, nil

	case chatMsg:
		if msg.reply.Fallback {
			m.status = "Analyste hors ligne: " + backdash.Describe(msg.reply.Err)
		}
		m.refresh()
		m.viewport.GotoBottom()
		return m, nil

	case deletedMsg:
		if msg.err != nil {
			m.status = backdash.Describe(msg.err)
			return m, nil
		}
		m.sel.Remove(msg.runID)
		m.d.loader.Forget(msg.runID)
		m.status = fmt.Sprintf("Run %s supprimé", compare.Label(msg.runID))
		return m, m.loadRuns()

	case exportedMsg:
		if msg.err != nil {
			m.status = "Export: " + msg.err.Error()
		} else {
			m.status = "Exporté dans " + msg.path
		}
		return m, nil
	}

	if m.ready {
		m.viewport, cmd = m.viewport.Update(msg)
	}
	return m, cmd
}

// updateKeys handles navigation keys. Keys it does not handle scroll the
// viewport.
func (m model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd, bool) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit, true
	case "tab":
		return m.switchView((m.view + 1) % viewCount)
	case "shift+tab":
		return m.switchView((m.view + viewCount - 1) % viewCount)
	case "1", "2", "3", "4", "5", "6":
		return m.switchView(view(msg.String()[0] - '1'))
	}

	switch m.view {
	case viewStrategies:
		list := m.visibleStrategies()
		switch msg.String() {
		case "up", "k":
			m.cursor = max(m.cursor-1, 0)
		case "down", "j":
			m.cursor = min(m.cursor+1, max(len(list)-1, 0))
		case "/":
			m.typing = true
			m.input.Placeholder = "rechercher"
			m.input.SetValue(m.query)
			m.input.Focus()
		case "c":
			m.catIdx = (m.catIdx + 1) % (len(m.categories) + 1)
			m.cursor = 0
		case "p":
			m.period = (m.period + 1) % len(tuiPeriods)
		case "enter":
			if m.cursor >= len(list) {
				return m, nil, true
			}
			m.status = "Création du run..."
			m.view = viewRun
			m.refresh()
			return m, m.submit(list[m.cursor]), true
		default:
			return m, nil, false
		}

	case viewRun:
		switch msg.String() {
		case "enter":
			if m.results != nil && m.results.RunID == m.snap.RunID {
				return m.switchView(viewResults)
			}
		default:
			return m, nil, false
		}

	case viewResults:
		switch msg.String() {
		case "r":
			if m.results != nil {
				return m, m.fetchResults(m.results.RunID), true
			}
			if m.snap.State == lifecycle.Completed {
				return m, m.fetchCompleted(m.snap), true
			}
		case "e":
			if m.results != nil {
				return m, m.export(m.results), true
			}
		default:
			return m, nil, false
		}

	case viewRuns:
		switch msg.String() {
		case "up", "k":
			m.runCursor = max(m.runCursor-1, 0)
		case "down", "j":
			m.runCursor = min(m.runCursor+1, max(len(m.runs)-1, 0))
		case " ":
			if m.runCursor < len(m.runs) {
				m.toggle(m.runs[m.runCursor].RunID)
			}
		case "s":
			m.sortMode = (m.sortMode + 1) % dashboard.SortModeCount
			dashboard.SortRuns(m.runs, m.sortMode)
		case "r":
			return m, m.loadRuns(), true
		case "d":
			if m.runCursor < len(m.runs) {
				return m, m.deleteRun(m.runs[m.runCursor].RunID), true
			}
		case "enter":
			if m.runCursor < len(m.runs) {
				r := m.runs[m.runCursor]
				m.view = viewResults
				m.refresh()
				return m, m.fetchResults(r.RunID), true
			}
		default:
			return m, nil, false
		}

	case viewCompare:
		switch msg.String() {
		case "r":
			m.comparing = true
			m.refresh()
			return m, m.loadCompare(), true
		default:
			return m, nil, false
		}

	case viewChat:
		switch msg.String() {
		case "enter", "i":
			m.typing = true
			m.input.Placeholder = "posez une question sur le run"
			m.input.SetValue("")
			m.input.Focus()
		case "R":
			m.d.asst.Reset()
		default:
			return m, nil, false
		}
	}
	m.refresh()
	return m, nil, true
}

func (m model) switchView(v view) (tea.Model, tea.Cmd, bool) {
	m.view = v
	m.status = ""
	var cmd tea.Cmd
	if v == viewCompare && m.sel.Len() > 0 {
		m.comparing = true
		cmd = m.loadCompare()
	}
	m.refresh()
	m.viewport.GotoTop()
	return m, cmd, true
}

func (m *model) toggle(runID string) {
	limit := min(m.d.maxSelect, compare.MaxSelected)
	if !m.sel.Contains(runID) && m.sel.Len() >= limit {
		m.status = fmt.Sprintf("Maximum %d runs", limit)
		return
	}
	if m.sel.Toggle(runID) {
		m.status = fmt.Sprintf("%s ajouté à la comparaison", compare.Label(runID))
	} else {
		m.status = fmt.Sprintf("%s retiré de la comparaison", compare.Label(runID))
		m.d.loader.Forget(runID)
	}
}

func (m model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.typing = false
		m.input.Blur()
		m.refresh()
		return m, nil
	case "enter":
		m.typing = false
		m.input.Blur()
		value := strings.TrimSpace(m.input.Value())
		if m.view == viewChat {
			m.input.SetValue("")
			if value == "" {
				return m, nil
			}
			m.status = "L'analyste réfléchit..."
			m.refresh()
			return m, m.ask(value)
		}
		m.query = value
		m.cursor = 0
		m.refresh()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if m.view == viewStrategies {
		m.query = m.input.Value()
		m.cursor = 0
	}
	m.refresh()
	return m, cmd
}

func (m *model) refresh() {
	if m.ready {
		m.viewport.SetContent(m.renderContent())
	}
}

func (m model) category() string {
	if m.catIdx == 0 || m.catIdx > len(m.categories) {
		return ""
	}
	return m.categories[m.catIdx-1]
}

func (m model) visibleStrategies() []domain.Strategy {
	return dashboard.FilterStrategies(m.strategies, m.category(), m.query)
}
