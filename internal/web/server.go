package web

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"strconv"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/whackrock/fund/internal/logger"
	"github.com/whackrock/fund/internal/state"
	"github.com/whackrock/fund/internal/types"
)

// Fund is the part of the fund the API reads and drives.
type Fund interface {
	Name() string
	Symbol() string
	Address() common.Address
	Owner() common.Address
	Agent() common.Address
	AccountingAsset() common.Address
	AllowedTokens() []common.Address
	TargetWeights() []uint64
	AgentAumFeeBps() uint64
	Params() types.FundParameters
	LastFeeCollection() time.Time
	SymbolOf(token common.Address) string

	Summary() (types.FundSummary, error)
	NAVInDisplayCurrency(ctx context.Context) (sdkmath.Int, error)
	Oracles() []types.OracleView
	NeedsRebalance() (bool, uint64, error)
	BalanceOf(holder common.Address) sdkmath.Int
	ShareHolders() []types.ShareBalance

	Deposit(ctx context.Context, caller common.Address, amount sdkmath.Int, receiver common.Address) (sdkmath.Int, error)
	Withdraw(ctx context.Context, caller common.Address, shares sdkmath.Int, receiver, owner common.Address) ([]types.TokenAmount, error)
}

// EventLister serves the event feed, from the database journal or the in-memory recorder.
type EventLister interface {
	RecentEvents(ctx context.Context, limit int, eventType types.EventType) ([]types.Event, error)
	OperationEvents(ctx context.Context, operationID string) ([]types.Event, error)
	EventCounts(ctx context.Context) (map[string]int, error)
}

// History serves persisted NAV snapshots. Only available with a database.
type History interface {
	RecentSnapshots(ctx context.Context, limit int) ([]types.NAVSnapshot, error)
	SnapshotByID(ctx context.Context, id int64) (types.NAVSnapshot, error)
	GetPerformance(ctx context.Context, since time.Time) (state.Performance, error)
	Ping(ctx context.Context) error
}

// Options configures the optional parts of the server.
type Options struct {
	Port            string
	RateLimit       float64 // Requests per second, 0 disables limiting
	RateBurst       int
	DisplayDecimals int
	Events          EventLister
	History         History
	Metrics         http.Handler
}

// WebServer serves the fund's read API, deposits and withdrawals.
type WebServer struct {
	router  *mux.Router
	port    string
	fund    Fund
	opts    Options
	limiter *rate.Limiter
	started time.Time
	server  *http.Server
	logger  zerolog.Logger
}

// NewWebServer creates a new web server instance
func NewWebServer(fund Fund, opts Options) *WebServer {
	if opts.Port == "" {
		opts.Port = "8080"
	}
	if opts.DisplayDecimals == 0 {
		opts.DisplayDecimals = 18
	}

	ws := &WebServer{
		router:  mux.NewRouter(),
		port:    opts.Port,
		fund:    fund,
		opts:    opts,
		started: time.Now(),
		logger:  logger.GetForComponent("web_server"),
	}
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst <= 0 {
			burst = 1
		}
		ws.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	ws.setupRoutes()
	ws.server = &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return ws
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")
	if ws.opts.Metrics != nil {
		ws.router.Handle("/metrics", ws.opts.Metrics).Methods("GET")
	}

	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/fund", ws.handleGetFund).Methods("GET")
	api.HandleFunc("/nav", ws.handleGetNAV).Methods("GET")
	api.HandleFunc("/holdings", ws.handleGetHoldings).Methods("GET")
	api.HandleFunc("/oracles", ws.handleGetOracles).Methods("GET")
	api.HandleFunc("/balances/{address}", ws.handleGetBalance).Methods("GET")
	api.HandleFunc("/holders", ws.handleGetHolders).Methods("GET")
	api.HandleFunc("/events", ws.handleGetEvents).Methods("GET")
	api.HandleFunc("/events/summary", ws.handleGetEventSummary).Methods("GET")
	api.HandleFunc("/operations/{id}", ws.handleGetOperation).Methods("GET")
	api.HandleFunc("/snapshots", ws.handleGetSnapshots).Methods("GET")
	api.HandleFunc("/snapshots/{id}", ws.handleGetSnapshot).Methods("GET")
	api.HandleFunc("/performance", ws.handleGetPerformance).Methods("GET")
	api.HandleFunc("/deposit", ws.handleDeposit).Methods("POST")
	api.HandleFunc("/withdraw", ws.handleWithdraw).Methods("POST")

	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.rateLimitMiddleware)
	ws.router.Use(ws.loggingMiddleware)
}

// Handler exposes the router, mainly for tests.
func (ws *WebServer) Handler() http.Handler {
	return ws.router
}

// Start serves until Shutdown is called. It returns http.ErrServerClosed after a clean shutdown.
func (ws *WebServer) Start() error {
	ws.logger.Info().Str("port", ws.port).Msg("Starting web server")
	return ws.server.ListenAndServe()
}

func (ws *WebServer) Shutdown(ctx context.Context) error {
	return ws.server.Shutdown(ctx)
}

// handleHealth reports runtime stats, whether the fund can be valued and whether the database answers.
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	hasErrors := false
	fundStatus := map[string]interface{}{"valuation_ok": true}
	if _, err := ws.fund.Summary(); err != nil {
		hasErrors = true
		fundStatus["valuation_ok"] = false
		fundStatus["valuation_error"] = err.Error()
	}

	dbStatus := "disabled"
	if ws.opts.History != nil {
		dbStatus = "ok"
		if err := ws.opts.History.Ping(r.Context()); err != nil {
			dbStatus = "unreachable"
			hasErrors = true
		}
	}

	overallStatus := "OK"
	statusCode := http.StatusOK
	if hasErrors {
		overallStatus = "DEGRADED"
		statusCode = http.StatusServiceUnavailable
	}

	ws.writeJSONResponse(w, statusCode, map[string]interface{}{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"system": map[string]interface{}{
			"version":          runtime.Version(),
			"goroutines_count": runtime.NumGoroutine(),
			"alloc_bytes":      memStats.Alloc,
			"sys_bytes":        memStats.Sys,
			"gc_cycles":        memStats.NumGC,
			"uptime_seconds":   int64(time.Since(ws.started).Seconds()),
		},
		"component": map[string]interface{}{
			"name": "whackrock-fund",
			"fund": ws.fund.Symbol(),
		},
		"fund_status": fundStatus,
		"database":    dbStatus,
	})
}

// handleGetFund returns the fund's configuration and current agent.
func (ws *WebServer) handleGetFund(w http.ResponseWriter, r *http.Request) {
	tokens := ws.fund.AllowedTokens()
	weights := ws.fund.TargetWeights()
	basket := make([]map[string]interface{}, 0, len(tokens))
	for i, token := range tokens {
		basket = append(basket, map[string]interface{}{
			"token":      token,
			"symbol":     ws.fund.SymbolOf(token),
			"target_bps": weights[i],
		})
	}
	params := ws.fund.Params()

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"name":                ws.fund.Name(),
		"symbol":              ws.fund.Symbol(),
		"address":             ws.fund.Address(),
		"owner":               ws.fund.Owner(),
		"agent":               ws.fund.Agent(),
		"accounting_asset":    ws.fund.AccountingAsset(),
		"basket":              basket,
		"aum_fee_bps":         ws.fund.AgentAumFeeBps(),
		"last_fee_collection": ws.fund.LastFeeCollection().UTC(),
		"parameters": map[string]interface{}{
			"min_deposit":             params.MinDeposit,
			"min_initial_deposit":     params.MinInitialDeposit,
			"rebalance_threshold_bps": params.RebalanceThresholdBps,
			"slippage_tolerance_bps":  params.SlippageToleranceBps,
			"min_twap_period_seconds": int64(params.MinTWAPPeriod.Seconds()),
		},
	})
}

// handleGetNAV returns NAV, supply and share price, raw and formatted.
func (ws *WebServer) handleGetNAV(w http.ResponseWriter, r *http.Request) {
	summary, err := ws.fund.Summary()
	if err != nil {
		ws.writeFundError(w, err)
		return
	}
	needs, maxDev, err := ws.fund.NeedsRebalance()
	if err != nil {
		ws.writeFundError(w, err)
		return
	}

	response := map[string]interface{}{
		"timestamp":              summary.Timestamp.UTC(),
		"nav":                    summary.NAV,
		"nav_formatted":          formatAmount(summary.NAV, 18),
		"total_supply":           summary.TotalSupply,
		"total_supply_formatted": formatAmount(summary.TotalSupply, 18),
		"share_price":            summary.SharePrice,
		"share_price_formatted":  formatAmount(summary.SharePrice, 18),
		"needs_rebalance":        needs,
		"max_deviation_bps":      maxDev,
	}
	if display, err := ws.fund.NAVInDisplayCurrency(r.Context()); err == nil {
		response["nav_display"] = display
		response["nav_display_formatted"] = formatAmount(display, ws.opts.DisplayDecimals)
	}
	ws.writeJSONResponse(w, http.StatusOK, response)
}

func (ws *WebServer) handleGetHoldings(w http.ResponseWriter, r *http.Request) {
	summary, err := ws.fund.Summary()
	if err != nil {
		ws.writeFundError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"nav":      summary.NAV,
		"holdings": summary.Holdings,
	})
}

func (ws *WebServer) handleGetOracles(w http.ResponseWriter, r *http.Request) {
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"oracles": ws.fund.Oracles(),
	})
}

func (ws *WebServer) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	holder, ok := parseAddress(mux.Vars(r)["address"])
	if !ok {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid address")
		return
	}
	shares := ws.fund.BalanceOf(holder)
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"address":          holder,
		"shares":           shares,
		"shares_formatted": formatAmount(shares, 18),
	})
}

func (ws *WebServer) handleGetHolders(w http.ResponseWriter, r *http.Request) {
	holders := ws.fund.ShareHolders()
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"holders": holders,
		"count":   len(holders),
	})
}

// handleGetEvents returns recent fund events, optionally filtered by ?type=.
func (ws *WebServer) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	if ws.opts.Events == nil {
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, "Event feed not configured")
		return
	}
	limit := parseLimit(r, 50)
	eventType := types.EventType(r.URL.Query().Get("type"))

	events, err := ws.opts.Events.RecentEvents(r.Context(), limit, eventType)
	if err != nil {
		ws.logger.Error().Err(err).Msg("Failed to get recent events")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve events")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"count":  len(events),
		"limit":  limit,
	})
}

// handleGetEventSummary counts the journaled events per type.
func (ws *WebServer) handleGetEventSummary(w http.ResponseWriter, r *http.Request) {
	if ws.opts.Events == nil {
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, "Event feed not configured")
		return
	}
	counts, err := ws.opts.Events.EventCounts(r.Context())
	if err != nil {
		ws.logger.Error().Err(err).Msg("Failed to count events")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to count events")
		return
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"counts": counts,
		"total":  total,
	})
}

// handleGetOperation returns every event of one deposit, withdrawal or other operation, in order.
func (ws *WebServer) handleGetOperation(w http.ResponseWriter, r *http.Request) {
	if ws.opts.Events == nil {
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, "Event feed not configured")
		return
	}
	id := mux.Vars(r)["id"]
	if _, err := uuid.Parse(id); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid operation ID")
		return
	}
	events, err := ws.opts.Events.OperationEvents(r.Context(), id)
	if err != nil {
		ws.logger.Error().Err(err).Str("operationId", id).Msg("Failed to get operation events")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve operation")
		return
	}
	if len(events) == 0 {
		ws.writeErrorResponse(w, http.StatusNotFound, "Operation not found")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"operation_id": id,
		"events":       events,
	})
}

func (ws *WebServer) handleGetSnapshots(w http.ResponseWriter, r *http.Request) {
	if ws.opts.History == nil {
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, "Database disabled")
		return
	}
	limit := parseLimit(r, 20)
	snapshots, err := ws.opts.History.RecentSnapshots(r.Context(), limit)
	if err != nil {
		ws.logger.Error().Err(err).Msg("Failed to get recent snapshots")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve snapshots")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"snapshots": snapshots,
		"count":     len(snapshots),
		"limit":     limit,
	})
}

func (ws *WebServer) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	if ws.opts.History == nil {
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, "Database disabled")
		return
	}
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid snapshot ID")
		return
	}
	snapshot, err := ws.opts.History.SnapshotByID(r.Context(), id)
	if err != nil {
		ws.logger.Error().Err(err).Int64("snapshotId", id).Msg("Failed to get snapshot")
		ws.writeErrorResponse(w, http.StatusNotFound, "Snapshot not found")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, snapshot)
}

// handleGetPerformance summarizes the snapshots of the last ?days= days (default 30).
func (ws *WebServer) handleGetPerformance(w http.ResponseWriter, r *http.Request) {
	if ws.opts.History == nil {
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, "Database disabled")
		return
	}
	days := 30
	if s := r.URL.Query().Get("days"); s != "" {
		if d, err := strconv.Atoi(s); err == nil && d > 0 && d <= 3650 {
			days = d
		}
	}
	perf, err := ws.opts.History.GetPerformance(r.Context(), time.Now().AddDate(0, 0, -days))
	if err != nil {
		ws.logger.Error().Err(err).Msg("Failed to get performance")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve performance")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, perf)
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		ws.logger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response
func (ws *WebServer) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	ws.writeJSONResponse(w, statusCode, map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": time.Now().UTC(),
	})
}

func parseLimit(r *http.Request, def int) int {
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= 500 {
			return n
		}
	}
	return def
}

func parseAddress(s string) (common.Address, bool) {
	if !common.IsHexAddress(s) {
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}
