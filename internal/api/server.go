// Package api implements the HTTP surface: transaction submission,
// processor status/admin endpoints, and the aggregate stats report. It
// is deliberately thin — request parsing and response shaping only —
// with every business decision delegated to internal/engine,
// internal/breaker, and internal/stats.
//
// Routing uses one http.ServeMux with a panic-recovery and logging
// middleware chain, built on Go 1.22's method-and-pattern mux syntax
// ("POST /transactions") instead of manual method checks per handler.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/orbitpay/switchboard/internal/apperrors"
	"github.com/orbitpay/switchboard/internal/breaker"
	"github.com/orbitpay/switchboard/internal/engine"
	"github.com/orbitpay/switchboard/internal/logging"
	"github.com/orbitpay/switchboard/internal/money"
	"github.com/orbitpay/switchboard/internal/stats"
	"github.com/orbitpay/switchboard/internal/txn"
)

// Clock abstracts time.Now for deterministic last-failure-age rendering
// in tests.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Server wires the fallback engine, breaker registry, and stats sink
// into an http.Handler.
type Server struct {
	engine   *engine.Engine
	registry *breaker.Registry
	sink     stats.Sink
	logger   logging.Logger
	clock    Clock
	mux      *http.ServeMux
}

// Option configures a Server at construction time.
type Option func(*Server)

// WithClock overrides the server's time source.
func WithClock(c Clock) Option {
	return func(s *Server) { s.clock = c }
}

// WithMetrics registers GET /metrics via the given collector handler
// when enabled is true.
func WithMetrics(enabled bool, handler http.Handler) Option {
	return func(s *Server) {
		if enabled && handler != nil {
			s.mux.Handle("GET /metrics", handler)
		}
	}
}

// New builds a Server. If logger is nil, a no-op logger is used.
func New(eng *engine.Engine, registry *breaker.Registry, sink stats.Sink, logger logging.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = logging.NoOp{}
	}
	s := &Server{
		engine:   eng,
		registry: registry,
		sink:     sink,
		logger:   logger.WithComponent("api"),
		clock:    realClock{},
		mux:      http.NewServeMux(),
	}
	s.routes()
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the fully wrapped http.Handler (routes plus the
// recovery/logging middleware chain), ready to pass to http.Server.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = recoveryMiddleware(s.logger)(h)
	h = loggingMiddleware(s.logger)(h)
	return h
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /transactions", s.handleCreateTransaction)
	s.mux.HandleFunc("GET /processors/status", s.handleProcessorStatus)
	s.mux.HandleFunc("POST /processors/{name}/reset", s.handleProcessorReset)
	s.mux.HandleFunc("POST /processors/{name}/inject-failures", s.handleInjectFailures)
	s.mux.HandleFunc("GET /stats", s.handleStats)
	s.mux.HandleFunc("GET /health", s.handleHealth)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var body transactionRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	currency := txn.Currency(body.Currency)
	if !txn.ValidCurrencies[currency] {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported currency: %q", body.Currency))
		return
	}

	amount, err := money.FromString(body.Amount)
	if err != nil || !amount.IsPositive() {
		writeError(w, http.StatusBadRequest, "amount must be a positive decimal string")
		return
	}

	transactionID := body.TransactionID
	if transactionID == "" {
		transactionID = uuid.New().String()
	}

	req := txn.New(transactionID, amount, currency, body.MerchantID, body.CardLastFour, body.Metadata)
	resp := s.engine.Process(r.Context(), req)

	writeJSON(w, http.StatusOK, toTransactionResponseBody(resp))
}

func toTransactionResponseBody(resp engine.Response) transactionResponseBody {
	out := transactionResponseBody{
		TransactionID:   resp.TransactionID,
		Status:          string(resp.Status),
		Amount:          resp.Amount.StringFixed(2),
		Currency:        string(resp.Currency),
		Attempts:        resp.Attempts,
		ProcessorsTried: resp.ProcessorsTried,
		LatencyMS:       resp.LatencyMS,
		ProcessedAt:     resp.ProcessedAt,
	}
	if resp.ProcessorUsed != "" {
		name := resp.ProcessorUsed
		out.ProcessorUsed = &name
	}
	if resp.Fee != nil {
		fee := resp.Fee.String()
		out.Fee = &fee
	}
	if resp.FeeRate != nil {
		out.FeeRate = resp.FeeRate
	}
	if resp.DeclineReason != "" {
		reason := resp.DeclineReason
		out.DeclineReason = &reason
	}
	if resp.DeclineType != "" {
		dt := string(resp.DeclineType)
		out.DeclineType = &dt
	}
	if out.ProcessorsTried == nil {
		out.ProcessorsTried = []string{}
	}
	return out
}

func (s *Server) handleProcessorStatus(w http.ResponseWriter, r *http.Request) {
	now := s.clock.Now()
	feeRates := s.feeRateIndex()
	reports := s.registry.List(now)

	out := make([]statusReportBody, 0, len(reports))
	for _, rep := range reports {
		out = append(out, toStatusReportBody(rep, now, feeRates[rep.Name]))
	}
	writeJSON(w, http.StatusOK, out)
}

func toStatusReportBody(rep breaker.StatusReport, now time.Time, feeRate float64) statusReportBody {
	body := statusReportBody{
		Name:                    rep.Name,
		State:                   string(rep.State),
		SuccessRate:             rep.SuccessRate,
		TotalCallsInWindow:      rep.TotalCallsInWindow,
		SuccessfulCallsInWindow: rep.SuccessfulCallsInWindow,
		FailedCallsInWindow:     rep.FailedCallsInWindow,
		FeeRate:                 feeRate,
	}
	if rep.LastFailureAt != nil {
		ago := formatAgo(now.Sub(*rep.LastFailureAt))
		body.LastFailureAt = &ago
	}
	if rep.CooldownRemaining != nil {
		secs := rep.CooldownRemaining.Seconds()
		body.CooldownRemainingSeconds = &secs
	}
	return body
}

// formatAgo renders a duration as a compact "<N>s ago" string.
func formatAgo(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs ago", d.Seconds())
}

func (s *Server) feeRateIndex() map[string]float64 {
	idx := make(map[string]float64)
	for _, p := range s.engine.Processors() {
		idx[p.Name()] = p.FeeRate()
	}
	return idx
}

func (s *Server) handleProcessorReset(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := s.registry.Reset(name); err != nil {
		s.writeNotFoundOr500(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resetResponseBody{Processor: name, Action: "reset", State: string(breaker.Closed)})
}

func (s *Server) handleInjectFailures(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	count, err := strconv.Atoi(r.URL.Query().Get("count"))
	if err != nil || count < 0 {
		writeError(w, http.StatusBadRequest, "count must be a non-negative integer")
		return
	}

	now := s.clock.Now()
	if err := s.registry.Inject(name, count, now); err != nil {
		s.writeNotFoundOr500(w, err)
		return
	}

	b, err := s.registry.Get(name)
	if err != nil {
		s.writeNotFoundOr500(w, err)
		return
	}
	rep := b.Status(now)
	writeJSON(w, http.StatusOK, injectResponseBody{
		Processor:          name,
		InjectedFailures:   count,
		State:              string(rep.State),
		SuccessRate:        rep.SuccessRate,
		TotalCallsInWindow: rep.TotalCallsInWindow,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	report := s.sink.Snapshot(r.Context())
	byProcessor := make(map[string]processorCountsBody, len(report.ByProcessor))
	for name, pc := range report.ByProcessor {
		byProcessor[name] = processorCountsBody{
			Attempts:    pc.Attempts,
			Successes:   pc.Successes,
			Failures:    pc.Failures,
			TotalFeeSum: pc.TotalFeeMinor,
		}
	}
	writeJSON(w, http.StatusOK, statsResponseBody{
		TotalAttempts:  report.TotalAttempts,
		TotalSuccesses: report.TotalSuccesses,
		TotalFailures:  report.TotalFailures,
		Since:          report.Since,
		ByProcessor:    byProcessor,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) writeNotFoundOr500(w http.ResponseWriter, err error) {
	if apperrors.IsNotFound(err) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.logger.Error("unexpected admin-surface error", map[string]interface{}{"error": err.Error()})
	writeError(w, http.StatusInternalServerError, "internal server error")
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}
