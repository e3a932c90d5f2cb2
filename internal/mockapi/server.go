// Package mockapi is an in-memory stand-in for the backtesting backend. It
// serves the full REST surface consumed by pkg/backdash, simulating runs that
// complete after a configurable number of status polls.
package mockapi

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"backdash/internal/analyst"
	"backdash/internal/dashboard"
	"backdash/internal/domain"
)

// Options configures a Server.
type Options struct {
	// CompleteAfter is the number of status polls after which a run reaches
	// a terminal state. 0 leaves runs running until Finish is called.
	CompleteAfter int
	// FailStrategies lists strategy ids whose runs end failed.
	FailStrategies []string
	// Strategies replaces the default catalog when non-nil.
	Strategies []domain.Strategy
	DataRange  *domain.DataRange
	Logger     *slog.Logger
	NewID      func() string
	Now        func() time.Time
}

type run struct {
	info     domain.RunInfo
	strategy domain.Strategy
	params   domain.Params
	polls    int
	logs     []string
	results  *domain.RunResults
}

// Server is the mock backend.
type Server struct {
	opts      Options
	log       *slog.Logger
	dataRange domain.DataRange
	fail      map[string]bool
	engine    analyst.Engine

	mu         sync.Mutex
	strategies []domain.Strategy
	runs       map[string]*run
	order      []string // creation order
	ninja      []*ninjaExport
}

// New creates a mock backend.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.NewID == nil {
		opts.NewID = func() string { return uuid.NewString()[:8] }
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Server{
		opts:       opts,
		log:        opts.Logger,
		dataRange:  DefaultDataRange,
		fail:       make(map[string]bool),
		strategies: opts.Strategies,
		runs:       make(map[string]*run),
		ninja:      defaultNinja(),
	}
	if s.strategies == nil {
		s.strategies = DefaultStrategies()
	}
	if opts.DataRange != nil {
		s.dataRange = *opts.DataRange
	}
	for _, id := range opts.FailStrategies {
		s.fail[id] = true
	}
	return s
}

// RegisterRoutes registers all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /api/strategies", s.handleListStrategies)
	mux.HandleFunc("GET /api/strategies/{id}", s.handleGetStrategy)
	mux.HandleFunc("GET /api/runs", s.handleListRuns)
	mux.HandleFunc("POST /api/runs", s.handleCreateRun)
	mux.HandleFunc("GET /api/runs/data-range", s.handleDataRange)
	mux.HandleFunc("GET /api/runs/ohlc-data", s.handleOHLC)
	mux.HandleFunc("GET /api/runs/{id}/status", s.handleStatus)
	mux.HandleFunc("GET /api/runs/{id}/results", s.handleResults)
	mux.HandleFunc("GET /api/runs/{id}/heatmap", s.handleHeatmap)
	mux.HandleFunc("DELETE /api/runs/{id}", s.handleDelete)
	mux.HandleFunc("GET /api/ninja-strategies", s.handleNinjaList)
	mux.HandleFunc("GET /api/ninja-strategies/{id}/data", s.handleNinjaData)
	mux.HandleFunc("GET /api/ninja-strategies/{id}/download", s.handleNinjaDownload)
	mux.HandleFunc("POST /api/ai/chat", s.handleChat)
	mux.HandleFunc("GET /api/ai/runs", s.handleAnalystRuns)
}

// Handler returns an http.Handler with CORS and request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return s.logRequests(corsMiddleware(mux))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Debug("request", "method", r.Method, "path", r.URL.Path, "status", rec.status,
			"elapsed", time.Since(start), "request_id", r.Header.Get("X-Request-ID"))
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

// writeError mirrors the backend's {"detail": msg} error body.
func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"detail": msg})
}

// ---------------------------------------------------------------------------
// Test hooks
// ---------------------------------------------------------------------------

// Finish moves a run to a terminal state. Completed runs get results.
func (s *Server) Finish(runID string, state domain.RunState) error {
	if !state.Terminal() {
		return fmt.Errorf("finish %s: %q is not terminal", runID, state)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[runID]
	if !ok {
		return fmt.Errorf("finish %s: run not found", runID)
	}
	s.finishLocked(r, state)
	return nil
}

// Polls returns how many status requests a run has received.
func (s *Server) Polls(runID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.runs[runID]; ok {
		return r.polls
	}
	return 0
}

// Params returns the parameters a run was created with.
func (s *Server) Params(runID string) domain.Params {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.runs[runID]; ok {
		return r.params.Clone()
	}
	return nil
}

func (s *Server) finishLocked(r *run, state domain.RunState) {
	now := s.opts.Now().UTC()
	r.info.Status = state
	r.info.CompletedAt = now.Format("2006-01-02T15:04:05")
	if started, ok := dashboard.ParseTimestamp(r.info.StartedAt); ok {
		d := now.Sub(started).Seconds()
		r.info.DurationSeconds = &d
	}
	if state == domain.RunCompleted {
		r.results = generateResults(r.info.RunID, r.strategy, s.dataRange)
		r.info.Message = fmt.Sprintf("Backtest terminé: %d trades", r.results.Metrics.TotalTrades)
		r.logs = append(r.logs, r.info.Message)
	} else {
		r.info.Message = "Erreur pendant l'exécution du backtest"
		r.logs = append(r.logs, r.info.Message)
	}
	s.log.Info("run finished", "run_id", r.info.RunID, "status", state)
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok", "service": "backtest-api (mock)"})
}

func (s *Server) handleListStrategies(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := domain.CatalogStats{TotalStrategies: len(s.strategies), TotalRuns: len(s.runs)}
	var winSum float64
	var completed int
	for _, r := range s.runs {
		if r.results == nil {
			continue
		}
		completed++
		stats.TotalTrades += r.results.Metrics.TotalTrades
		winSum += r.results.Metrics.WinRate
	}
	if completed > 0 {
		stats.AvgWinRate = winSum / float64(completed)
	}
	writeJSON(w, domain.StrategyListResponse{Strategies: s.strategies, Stats: &stats})
}

func (s *Server) findStrategy(id string) (domain.Strategy, bool) {
	for _, st := range s.strategies {
		if st.ID == id {
			return st, true
		}
	}
	return domain.Strategy{}, false
}

func (s *Server) handleGetStrategy(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.mu.Lock()
	st, ok := s.findStrategy(id)
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Stratégie %s non trouvée", id))
		return
	}
	writeJSON(w, st)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusUnprocessableEntity, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	s.mu.Lock()
	runs := make([]domain.RunInfo, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		runs = append(runs, s.runs[s.order[i]].info)
	}
	s.mu.Unlock()

	total := len(runs)
	if limit > 0 && limit < len(runs) {
		runs = runs[:limit]
	}
	writeJSON(w, domain.RunListResponse{Runs: runs, Total: total})
}

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.StrategyID) == "" {
		writeError(w, http.StatusBadRequest, "strategy_id requis")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.findStrategy(req.StrategyID)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Stratégie %s non trouvée", req.StrategyID))
		return
	}

	id := s.opts.NewID()
	for _, exists := s.runs[id]; exists; _, exists = s.runs[id] {
		id = uuid.NewString()[:8]
	}
	started := s.opts.Now().UTC().Format("2006-01-02T15:04:05")
	msg := fmt.Sprintf("Backtest %s en préparation", st.Name)
	// The worker picks the run up immediately; only the creation response
	// reports it as pending.
	s.runs[id] = &run{
		info: domain.RunInfo{
			RunID:     id,
			Status:    domain.RunRunning,
			Message:   "Backtest en cours",
			Name:      req.Name,
			StartedAt: started,
		},
		strategy: st,
		params:   st.Parameters.Merge(req.Parameters),
		logs:     []string{msg, "Chargement des données", "Exécution de la stratégie"},
	}
	s.order = append(s.order, id)
	s.log.Info("run created", "run_id", id, "strategy", st.ID)

	writeJSON(w, domain.RunResponse{
		RunID:     id,
		Status:    domain.RunPending,
		Message:   msg,
		Name:      req.Name,
		StartedAt: started,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.mu.Lock()
	defer s.mu.Unlock()

	rn, ok := s.runs[id]
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Run %s non trouvé", id))
		return
	}

	rn.polls++
	if !rn.info.Status.Terminal() && s.opts.CompleteAfter > 0 && rn.polls >= s.opts.CompleteAfter {
		state := domain.RunCompleted
		if s.fail[rn.strategy.ID] {
			state = domain.RunFailed
		}
		s.finishLocked(rn, state)
	}

	progress := 1.0
	if !rn.info.Status.Terminal() {
		progress = 0.5
	}
	logs := make([]string, len(rn.logs))
	copy(logs, rn.logs)
	writeJSON(w, domain.RunStatus{
		RunID:       rn.info.RunID,
		Status:      rn.info.Status,
		Progress:    progress,
		Message:     rn.info.Message,
		Name:        rn.info.Name,
		Logs:        logs,
		StartedAt:   rn.info.StartedAt,
		CompletedAt: rn.info.CompletedAt,
	})
}

// completedRun looks up a run and writes the 404/400 response when it has
// no results yet.
func (s *Server) completedRun(w http.ResponseWriter, id string) (*run, bool) {
	rn, ok := s.runs[id]
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Run %s non trouvé", id))
		return nil, false
	}
	if rn.info.Status != domain.RunCompleted || rn.results == nil {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("Run %s n'est pas terminé (statut: %s)", id, rn.info.Status))
		return nil, false
	}
	return rn, true
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rn, ok := s.completedRun(w, r.PathValue("id"))
	if !ok {
		return
	}
	writeJSON(w, rn.results)
}

func (s *Server) handleHeatmap(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rn, ok := s.completedRun(w, r.PathValue("id"))
	if !ok {
		return
	}
	writeJSON(w, domain.HeatmapResponse{RunID: rn.info.RunID, Heatmap: dashboard.BuildHeatmap(rn.results.Trades)})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[id]; !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Run %s non trouvé", id))
		return
	}
	delete(s.runs, id)
	for i, rid := range s.order {
		if rid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.log.Info("run deleted", "run_id", id)
	writeJSON(w, domain.DeleteRunResponse{Success: true, Message: fmt.Sprintf("Run %s supprimé avec succès", id)})
}

func (s *Server) handleDataRange(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.dataRange)
}

func (s *Server) handleOHLC(w http.ResponseWriter, r *http.Request) {
	days := 7
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 365 {
			writeError(w, http.StatusUnprocessableEntity, "days must be between 1 and 365")
			return
		}
		days = n
	}
	writeJSON(w, generateOHLC(days, s.dataRange))
}

func (s *Server) findNinja(id string) *ninjaExport {
	for _, e := range s.ninja {
		if e.meta.ID == id {
			return e
		}
	}
	return nil
}

func (s *Server) handleNinjaList(w http.ResponseWriter, _ *http.Request) {
	var out domain.NinjaStrategyList
	markets := make(map[string]bool)
	for _, e := range s.ninja {
		out.Strategies = append(out.Strategies, e.meta)
		if !markets[e.meta.Market] {
			markets[e.meta.Market] = true
			out.Markets = append(out.Markets, e.meta.Market)
		}
	}
	sort.Strings(out.Markets)
	writeJSON(w, out)
}

func (s *Server) handleNinjaData(w http.ResponseWriter, r *http.Request) {
	e := s.findNinja(r.PathValue("id"))
	if e == nil {
		writeError(w, http.StatusNotFound, "Stratégie non trouvée")
		return
	}
	writeJSON(w, e.data())
}

func (s *Server) handleNinjaDownload(w http.ResponseWriter, r *http.Request) {
	e := s.findNinja(r.PathValue("id"))
	if e == nil {
		writeError(w, http.StatusNotFound, "Stratégie non trouvée")
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", e.meta.Filename))
	cw := csv.NewWriter(w)
	cw.Comma = ';'
	cw.Write(e.columns)
	cw.WriteAll(e.rows)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req domain.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid request body: "+err.Error())
		return
	}
	runID := req.RunID
	if runID == "" {
		if v, ok := req.Context["run_id"].(string); ok {
			runID = v
		}
	}

	s.mu.Lock()
	results := s.resultsFor(runID)
	s.mu.Unlock()

	writeJSON(w, domain.ChatResponse{
		Response: s.engine.Answer(req.Message, results),
		Metadata: map[string]any{
			"timestamp": s.opts.Now().Format(time.RFC3339),
			"type":      string(analyst.DetectType(req.Message)),
		},
	})
}

// resultsFor returns the named run's results, or the latest completed run's
// when runID is empty.
func (s *Server) resultsFor(runID string) *domain.RunResults {
	if runID != "" {
		if r, ok := s.runs[runID]; ok {
			return r.results
		}
		return nil
	}
	for i := len(s.order) - 1; i >= 0; i-- {
		if r := s.runs[s.order[i]]; r.results != nil {
			return r.results
		}
	}
	return nil
}

func (s *Server) handleAnalystRuns(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := domain.AnalystRunList{Runs: []domain.AnalystRun{}}
	for i := len(s.order) - 1; i >= 0; i-- {
		r := s.runs[s.order[i]]
		status := "incomplete"
		if r.info.Status == domain.RunCompleted {
			status = "completed"
		}
		out.Runs = append(out.Runs, domain.AnalystRun{
			RunID:     r.info.RunID,
			Strategy:  r.strategy.Name,
			Timestamp: r.info.StartedAt,
			Status:    status,
		})
	}
	writeJSON(w, out)
}
