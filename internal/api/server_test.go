package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbitpay/switchboard/internal/backoff"
	"github.com/orbitpay/switchboard/internal/breaker"
	"github.com/orbitpay/switchboard/internal/engine"
	"github.com/orbitpay/switchboard/internal/logging"
	"github.com/orbitpay/switchboard/internal/outcome"
	"github.com/orbitpay/switchboard/internal/processor"
	"github.com/orbitpay/switchboard/internal/stats"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func instantBackoff() *backoff.Controller {
	return backoff.New(backoff.Config{Base: 0, Cap: 0, MaxRetries: 2}, nil)
}

func breakerConfig() breaker.Config {
	return breaker.Config{
		WindowSize:    50,
		WindowAge:     300 * time.Second,
		TripThreshold: 0.20,
		Cooldown:      120 * time.Second,
		MinSamples:    5,
	}
}

func buildServer(t *testing.T, procs []processor.Processor) (*Server, *breaker.Registry) {
	t.Helper()
	names := make([]string, 0, len(procs))
	for _, p := range procs {
		names = append(names, p.Name())
	}
	registry := breaker.NewRegistry(names, breakerConfig(), logging.NoOp{})
	sink := stats.NewMemorySink(names)
	eng := engine.New(procs, registry, instantBackoff(), sink, 3*time.Second)
	srv := New(eng, registry, sink, logging.NoOp{}, WithClock(fixedClock{now: time.Unix(2000, 0)}))
	return srv, registry
}

func postJSON(t *testing.T, h http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHandleCreateTransaction_Approved(t *testing.T) {
	vortex := processor.NewMock("VortexPay", 0.025, nil, 1).WithScript(outcome.Outcome{Kind: outcome.Success})
	srv, _ := buildServer(t, []processor.Processor{vortex})

	w := postJSON(t, srv.Handler(), "/transactions", transactionRequestBody{
		TransactionID: "txn-abc",
		Amount:        "100.00",
		Currency:      "BRL",
		MerchantID:    "merchant-1",
		CardLastFour:  "4242",
	})

	require.Equal(t, http.StatusOK, w.Code)

	var resp transactionResponseBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "approved", resp.Status)
	require.NotNil(t, resp.ProcessorUsed)
	assert.Equal(t, "VortexPay", *resp.ProcessorUsed)
	require.NotNil(t, resp.Fee)
	assert.Equal(t, "2.5000", *resp.Fee)
}

func TestHandleCreateTransaction_InvalidCurrency(t *testing.T) {
	vortex := processor.NewMock("VortexPay", 0.025, nil, 1)
	srv, _ := buildServer(t, []processor.Processor{vortex})

	w := postJSON(t, srv.Handler(), "/transactions", transactionRequestBody{
		Amount:       "10.00",
		Currency:     "XYZ",
		MerchantID:   "merchant-1",
		CardLastFour: "4242",
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleCreateTransaction_NonPositiveAmount(t *testing.T) {
	vortex := processor.NewMock("VortexPay", 0.025, nil, 1)
	srv, _ := buildServer(t, []processor.Processor{vortex})

	w := postJSON(t, srv.Handler(), "/transactions", transactionRequestBody{
		Amount:       "0.00",
		Currency:     "BRL",
		MerchantID:   "merchant-1",
		CardLastFour: "4242",
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleCreateTransaction_GeneratesIDWhenOmitted(t *testing.T) {
	vortex := processor.NewMock("VortexPay", 0.025, nil, 1).WithScript(outcome.Outcome{Kind: outcome.Success})
	srv, _ := buildServer(t, []processor.Processor{vortex})

	w := postJSON(t, srv.Handler(), "/transactions", transactionRequestBody{
		Amount:       "5.00",
		Currency:     "BRL",
		MerchantID:   "merchant-1",
		CardLastFour: "4242",
	})

	require.Equal(t, http.StatusOK, w.Code)
	var resp transactionResponseBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.TransactionID)
}

func TestHandleProcessorStatus_IncludesFeeRateAndSortedOrder(t *testing.T) {
	pix := processor.NewMock("PixFlow", 0.032, nil, 1)
	vortex := processor.NewMock("VortexPay", 0.025, nil, 2)
	srv, _ := buildServer(t, []processor.Processor{pix, vortex})

	req := httptest.NewRequest(http.MethodGet, "/processors/status", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var reports []statusReportBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reports))
	require.Len(t, reports, 2)
	assert.Equal(t, "PixFlow", reports[0].Name)
	assert.Equal(t, 0.032, reports[0].FeeRate)
	assert.Equal(t, "VortexPay", reports[1].Name)
	assert.Equal(t, "closed", reports[0].State)
}

func TestHandleProcessorReset_UnknownProcessorReturns404(t *testing.T) {
	vortex := processor.NewMock("VortexPay", 0.025, nil, 1)
	srv, _ := buildServer(t, []processor.Processor{vortex})

	req := httptest.NewRequest(http.MethodPost, "/processors/GhostPay/reset", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleProcessorReset_ClosesTrippedBreaker(t *testing.T) {
	vortex := processor.NewMock("VortexPay", 0.025, nil, 1)
	srv, registry := buildServer(t, []processor.Processor{vortex})
	require.NoError(t, registry.Inject("VortexPay", 10, time.Unix(2000, 0)))

	req := httptest.NewRequest(http.MethodPost, "/processors/VortexPay/reset", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp resetResponseBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "closed", resp.State)
}

func TestHandleInjectFailures_TripsBreaker(t *testing.T) {
	vortex := processor.NewMock("VortexPay", 0.025, nil, 1)
	srv, _ := buildServer(t, []processor.Processor{vortex})

	req := httptest.NewRequest(http.MethodPost, "/processors/VortexPay/inject-failures?count=10", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp injectResponseBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "open", resp.State)
	assert.Equal(t, 10, resp.InjectedFailures)
}

func TestHandleInjectFailures_RejectsNegativeCount(t *testing.T) {
	vortex := processor.NewMock("VortexPay", 0.025, nil, 1)
	srv, _ := buildServer(t, []processor.Processor{vortex})

	req := httptest.NewRequest(http.MethodPost, "/processors/VortexPay/inject-failures?count=-1", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleStats_ReflectsRecordedAttempts(t *testing.T) {
	vortex := processor.NewMock("VortexPay", 0.025, nil, 1).WithScript(outcome.Outcome{Kind: outcome.Success})
	srv, _ := buildServer(t, []processor.Processor{vortex})

	postJSON(t, srv.Handler(), "/transactions", transactionRequestBody{
		Amount: "1.00", Currency: "BRL", MerchantID: "m", CardLastFour: "4242",
	})

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp statsResponseBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(1), resp.TotalAttempts)
	assert.Equal(t, int64(1), resp.TotalSuccesses)
}

func TestHandleHealth(t *testing.T) {
	vortex := processor.NewMock("VortexPay", 0.025, nil, 1)
	srv, _ := buildServer(t, []processor.Processor{vortex})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRecoveryMiddleware_PanicReturns500(t *testing.T) {
	vortex := processor.NewMock("VortexPay", 0.025, nil, 1)
	srv, _ := buildServer(t, []processor.Processor{vortex})
	srv.mux.HandleFunc("GET /panic", func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})

	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
