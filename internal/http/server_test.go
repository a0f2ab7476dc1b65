package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dinero/internal/core"
	applog "dinero/internal/log"
	"dinero/internal/services"
	"dinero/internal/storage/memory"
)

type testServer struct {
	*Server
	store *memory.Store
}

func newTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()
	store := memory.New()
	if opts.Logger == nil {
		cfg := applog.DefaultConfig()
		cfg.Output = io.Discard
		opts.Logger = applog.New(cfg)
	}
	if opts.RateLimitPerMinute == 0 {
		opts.RateLimitPerMinute = 1000
	}
	srv := NewServer(":0", services.Deps{Store: store, StoreTimeout: time.Second}, opts)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &testServer{Server: srv, store: store}
}

func (ts *testServer) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	ts.Handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func (ts *testServer) createSource(t *testing.T, name, initial string) core.Source {
	t.Helper()
	rr := ts.do(t, http.MethodPost, "/api/sources", map[string]any{"name": name, "initial_balance": initial})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return decode[core.Source](t, rr)
}

func (ts *testServer) balance(t *testing.T, id int64) decimal.Decimal {
	t.Helper()
	rr := ts.do(t, http.MethodGet, fmt.Sprintf("/api/sources/%d/balance", id), nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	return decode[balanceResponse](t, rr).Balance
}

func assertError(t *testing.T, rr *httptest.ResponseRecorder, status int, kind core.ErrorKind) {
	t.Helper()
	require.Equal(t, status, rr.Code, rr.Body.String())
	assert.Equal(t, kind, decode[ErrorBody](t, rr).Error)
}

func TestHealthAndReady(t *testing.T) {
	ts := newTestServer(t, Options{})

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := ts.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusOK, rr.Code, path)
	}

	rr := ts.do(t, http.MethodGet, "/readyz", nil)
	body := decode[map[string]any](t, rr)
	assert.Equal(t, "ready", body["status"])
}

func TestSecurityHeadersAndRequestID(t *testing.T) {
	ts := newTestServer(t, Options{})
	rr := ts.do(t, http.MethodGet, "/api/categories", nil)

	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
}

func TestTransferScenarioOverHTTP(t *testing.T) {
	ts := newTestServer(t, Options{})
	a := ts.createSource(t, "A", "100000")
	b := ts.createSource(t, "B", "0")

	rr := ts.do(t, http.MethodPost, "/api/transactions", map[string]any{
		"type": "EXPENSE", "description": "Alquiler", "amount": "20000", "category": "Vivienda", "source_id": a.ID,
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	tx := decode[core.Transaction](t, rr)
	assert.Equal(t, core.Expense, tx.Type)
	assert.True(t, tx.Amount.Equal(decimal.NewFromInt(20000)))

	// Amount as a bare JSON number
	rr = ts.do(t, http.MethodPost, "/api/transfers",
		`{"from_source_id": `+fmt.Sprint(a.ID)+`, "to_source_id": "`+fmt.Sprint(b.ID)+`", "amount": 30000, "description": "Ahorro"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	tr := decode[core.Transfer](t, rr)
	require.Len(t, tr.Legs, 2)
	assert.Equal(t, "Transferencia a B: Ahorro", tr.Legs[0].Description)

	assert.Equal(t, "50000", ts.balance(t, a.ID).String())
	assert.Equal(t, "30000", ts.balance(t, b.ID).String())

	rr = ts.do(t, http.MethodGet, "/api/sources", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	list := decode[[]core.SourceBalance](t, rr)
	require.Len(t, list, 2)

	rr = ts.do(t, http.MethodGet, fmt.Sprintf("/api/transactions?source_id=%d", a.ID), nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]core.Transaction](t, rr), 2)
}

func TestAmountsAreJSONStrings(t *testing.T) {
	ts := newTestServer(t, Options{})
	a := ts.createSource(t, "A", "10.50")

	rr := ts.do(t, http.MethodGet, fmt.Sprintf("/api/sources/%d/balance", a.ID), nil)
	assert.Contains(t, rr.Body.String(), `"balance":"10.5"`)
	assert.Contains(t, rr.Body.String(), `"as_of":null`)
}

func TestSameSourceTransferRejected(t *testing.T) {
	ts := newTestServer(t, Options{})
	a := ts.createSource(t, "A", "100")

	rr := ts.do(t, http.MethodPost, "/api/transfers", map[string]any{
		"from_source_id": a.ID, "to_source_id": a.ID, "amount": "10", "description": "x",
	})
	assertError(t, rr, http.StatusUnprocessableEntity, core.KindSameSourceTransfer)
	assert.Equal(t, 0, ts.store.EntryCount())
	assert.Equal(t, "100", ts.balance(t, a.ID).String())
}

func TestCreateErrors(t *testing.T) {
	ts := newTestServer(t, Options{})
	a := ts.createSource(t, "A", "100")

	tests := []struct {
		name   string
		path   string
		body   any
		status int
		kind   core.ErrorKind
	}{
		{"zero amount", "/api/transactions", map[string]any{"type": "INCOME", "description": "x", "amount": "0", "category": "Salario", "source_id": a.ID}, 422, core.KindInvalidAmount},
		{"negative amount", "/api/transactions", map[string]any{"type": "INCOME", "description": "x", "amount": -5, "category": "Salario", "source_id": a.ID}, 422, core.KindInvalidAmount},
		{"missing amount", "/api/transactions", map[string]any{"type": "INCOME", "description": "x", "category": "Salario", "source_id": a.ID}, 422, core.KindInvalidAmount},
		{"unknown source", "/api/transactions", map[string]any{"type": "INCOME", "description": "x", "amount": "5", "category": "Salario", "source_id": 999}, 404, core.KindSourceNotFound},
		{"wrong category", "/api/transactions", map[string]any{"type": "INCOME", "description": "x", "amount": "5", "category": "Vivienda", "source_id": a.ID}, 422, core.KindInvalidCategory},
		{"transfer category reserved", "/api/transactions", map[string]any{"type": "EXPENSE", "description": "x", "amount": "5", "category": core.TransferCategory, "source_id": a.ID}, 422, core.KindInvalidCategory},
		{"empty description", "/api/transactions", map[string]any{"type": "INCOME", "description": "  ", "amount": "5", "category": "Salario", "source_id": a.ID}, 422, core.KindInvalidDescription},
		{"bad date", "/api/transactions", map[string]any{"type": "INCOME", "description": "x", "amount": "5", "category": "Salario", "source_id": a.ID, "date": "ayer"}, 400, core.KindInvalidRequest},
		{"malformed json", "/api/transactions", `{"type":`, 400, core.KindInvalidRequest},
		{"transfer to missing source", "/api/transfers", map[string]any{"from_source_id": a.ID, "to_source_id": 999, "amount": "5"}, 404, core.KindSourceNotFound},
		{"duplicate source", "/api/sources", map[string]any{"name": "a", "initial_balance": "0"}, 409, core.KindDuplicateSource},
		{"empty source name", "/api/sources", map[string]any{"name": " "}, 422, core.KindInvalidSourceName},
		{"bad initial balance", "/api/sources", map[string]any{"name": "C", "initial_balance": "lots"}, 422, core.KindInvalidAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := ts.do(t, http.MethodPost, tt.path, tt.body)
			assertError(t, rr, tt.status, tt.kind)
		})
	}
	assert.Equal(t, 0, ts.store.EntryCount(), "rejected requests persist nothing")
}

func TestIdempotencyKeyReplaysTransfer(t *testing.T) {
	ts := newTestServer(t, Options{})
	a := ts.createSource(t, "A", "100")
	b := ts.createSource(t, "B", "0")
	body := map[string]any{"from_source_id": a.ID, "to_source_id": b.ID, "amount": "25"}

	first := ts.do(t, http.MethodPost, "/api/transfers", body, IdempotencyKeyHeader, "retry-1")
	second := ts.do(t, http.MethodPost, "/api/transfers", body, IdempotencyKeyHeader, "retry-1")
	require.Equal(t, http.StatusCreated, first.Code)
	require.Equal(t, http.StatusCreated, second.Code)

	assert.Equal(t, decode[core.Transfer](t, first).ID, decode[core.Transfer](t, second).ID)
	assert.Equal(t, 2, ts.store.EntryCount())
	assert.Equal(t, "75", ts.balance(t, a.ID).String())
}

func TestArchiveSource(t *testing.T) {
	ts := newTestServer(t, Options{})
	a := ts.createSource(t, "A", "100")

	rr := ts.do(t, http.MethodDelete, fmt.Sprintf("/api/sources/%d", a.ID), nil)
	require.Equal(t, http.StatusNoContent, rr.Code, rr.Body.String())

	rr = ts.do(t, http.MethodGet, "/api/sources", nil)
	assert.Empty(t, decode[[]core.SourceBalance](t, rr))

	rr = ts.do(t, http.MethodPost, "/api/transactions", map[string]any{
		"type": "INCOME", "description": "x", "amount": "5", "category": "Salario", "source_id": a.ID,
	})
	assertError(t, rr, http.StatusNotFound, core.KindSourceNotFound)

	assertError(t, ts.do(t, http.MethodDelete, "/api/sources/999", nil), http.StatusNotFound, core.KindSourceNotFound)
	assertError(t, ts.do(t, http.MethodDelete, "/api/sources/abc", nil), http.StatusBadRequest, core.KindInvalidRequest)
}

func TestBalanceAsOf(t *testing.T) {
	ts := newTestServer(t, Options{})
	a := ts.createSource(t, "A", "100")
	for _, date := range []string{"2025-01-10", "2025-02-10"} {
		rr := ts.do(t, http.MethodPost, "/api/transactions", map[string]any{
			"type": "EXPENSE", "description": "Café", "amount": "10", "category": "Comida", "source_id": a.ID, "date": date,
		})
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	}

	rr := ts.do(t, http.MethodGet, fmt.Sprintf("/api/sources/%d/balance?as_of=2025-01-31", a.ID), nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "90", decode[balanceResponse](t, rr).Balance.String())
	assert.Equal(t, "80", ts.balance(t, a.ID).String())

	assertError(t, ts.do(t, http.MethodGet, "/api/sources/999/balance", nil), http.StatusNotFound, core.KindSourceNotFound)
}

func TestCategories(t *testing.T) {
	ts := newTestServer(t, Options{})
	rr := ts.do(t, http.MethodGet, "/api/categories", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	cats := decode[core.Categories](t, rr)
	assert.Contains(t, cats.Income, "Salario")
	assert.Contains(t, cats.Expense, "Comida")
	assert.NotContains(t, cats.Expense, core.TransferCategory)
}

func TestDashboardCacheInvalidatedOnWrite(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	ts := newTestServer(t, Options{DashboardCacheTTL: time.Hour, Now: func() time.Time { return now }})
	a := ts.createSource(t, "A", "100")

	rr := ts.do(t, http.MethodGet, "/api/dashboard-data", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, decode[core.DashboardData](t, rr).Summary.TotalBalance.Equal(decimal.NewFromInt(100)))

	// Served from cache
	rr = ts.do(t, http.MethodGet, "/api/dashboard-data", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.EqualValues(t, 1, ts.dashboardCache.Stats().Hits)

	rr = ts.do(t, http.MethodPost, "/api/transactions", map[string]any{
		"type": "INCOME", "description": "Nómina", "amount": "50", "category": "Salario", "source_id": a.ID, "date": "2025-06-01",
	})
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = ts.do(t, http.MethodGet, "/api/dashboard-data", nil)
	data := decode[core.DashboardData](t, rr)
	assert.True(t, data.Summary.TotalBalance.Equal(decimal.NewFromInt(150)), data.Summary.TotalBalance.String())
	assert.True(t, data.Summary.TotalIncome.Equal(decimal.NewFromInt(50)))
	assert.Equal(t, "Jun 2025", data.Charts.IncomeVsExpense.Labels[5])
	assert.Len(t, data.RecentTransactions, 1)
}

func TestRateLimitOnWrites(t *testing.T) {
	ts := newTestServer(t, Options{RateLimitPerMinute: 2})

	for i := 0; i < 2; i++ {
		rr := ts.do(t, http.MethodPost, "/api/sources", map[string]any{"name": fmt.Sprintf("S%d", i)})
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	}
	rr := ts.do(t, http.MethodPost, "/api/sources", map[string]any{"name": "S3"})
	assertError(t, rr, http.StatusTooManyRequests, KindRateLimited)
	assert.Equal(t, "60", rr.Header().Get("Retry-After"))

	// Reads are not limited
	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/api/sources", nil).Code)
}

func TestUnknownRoute(t *testing.T) {
	ts := newTestServer(t, Options{})
	assertError(t, ts.do(t, http.MethodGet, "/api/nope", nil), http.StatusNotFound, core.KindNotFound)
}

func TestMetrics(t *testing.T) {
	ts := newTestServer(t, Options{})
	ts.createSource(t, "A", "1")

	rr := ts.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "sources_created_total 1")
	assert.Contains(t, rr.Body.String(), "# TYPE http_requests_total counter")
}

func TestConcurrentTransfersConserveMoney(t *testing.T) {
	ts := newTestServer(t, Options{})
	a := ts.createSource(t, "A", "1000")
	b := ts.createSource(t, "B", "1000")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			from, to := a.ID, b.ID
			if i%2 == 1 {
				from, to = to, from
			}
			rr := ts.do(t, http.MethodPost, "/api/transfers", map[string]any{"from_source_id": from, "to_source_id": to, "amount": "7.25"})
			assert.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
		}(i)
	}
	wg.Wait()

	total := ts.balance(t, a.ID).Add(ts.balance(t, b.ID))
	assert.Equal(t, "2000", total.String())
	assert.Equal(t, 40, ts.store.EntryCount())
}

// gatedListStore parks the first unbounded ListTransactions call, which is
// the dashboard's full ledger read.
type gatedListStore struct {
	*memory.Store
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (g *gatedListStore) ListTransactions(ctx context.Context, f core.TransactionFilter) ([]core.Transaction, error) {
	if f.Limit == 0 && f.SourceID == 0 {
		g.once.Do(func() {
			close(g.entered)
			<-g.release
		})
	}
	return g.Store.ListTransactions(ctx, f)
}

func TestDashboardCacheSkipsResultComputedAcrossWrite(t *testing.T) {
	ts := newTestServer(t, Options{DashboardCacheTTL: time.Hour})

	gen := ts.dashboardGeneration()
	ts.invalidateDashboard()
	assert.False(t, ts.cacheDashboard(gen, core.DashboardData{}))
	_, ok := ts.dashboardCache.Get(dashboardCacheKey)
	assert.False(t, ok, "aggregate computed before a write must not be cached")

	assert.True(t, ts.cacheDashboard(ts.dashboardGeneration(), core.DashboardData{}))
}

func TestDashboardReadAfterConcurrentWrite(t *testing.T) {
	store := &gatedListStore{Store: memory.New(), entered: make(chan struct{}), release: make(chan struct{})}
	logCfg := applog.DefaultConfig()
	logCfg.Output = io.Discard
	srv := NewServer(":0", services.Deps{Store: store, StoreTimeout: 5 * time.Second}, Options{
		DashboardCacheTTL:  time.Hour,
		RateLimitPerMinute: 1000,
		Logger:             applog.New(logCfg),
	})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	ts := &testServer{Server: srv, store: store.Store}

	a := ts.createSource(t, "A", "100")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		rr := ts.do(t, http.MethodGet, "/api/dashboard-data", nil)
		assert.Equal(t, http.StatusOK, rr.Code)
	}()
	<-store.entered

	go func() {
		defer wg.Done()
		rr := ts.do(t, http.MethodPost, "/api/transactions", map[string]any{
			"type": "EXPENSE", "description": "Cena", "amount": "40", "category": "Comida", "source_id": a.ID,
		})
		assert.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	}()
	time.Sleep(20 * time.Millisecond)
	close(store.release)
	wg.Wait()

	rr := ts.do(t, http.MethodGet, "/api/dashboard-data", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	data := decode[core.DashboardData](t, rr)
	assert.Equal(t, "40", data.Summary.TotalExpense.String())
	assert.Equal(t, "60", data.Summary.TotalBalance.String())
}

func TestExponentAmountsRejected(t *testing.T) {
	ts := newTestServer(t, Options{})
	a := ts.createSource(t, "A", "100")

	for _, amount := range []any{"1e2000000000", "1e5", "-1E3", json.RawMessage(`1e2000000000`), "10000000000000000"} {
		rr := ts.do(t, http.MethodPost, "/api/transactions", map[string]any{
			"type": "EXPENSE", "description": "x", "amount": amount, "category": "Comida", "source_id": a.ID,
		})
		assertError(t, rr, http.StatusUnprocessableEntity, core.KindInvalidAmount)
	}

	rr := ts.do(t, http.MethodPost, "/api/sources", map[string]any{"name": "B", "initial_balance": "1e2000000000"})
	assertError(t, rr, http.StatusUnprocessableEntity, core.KindInvalidAmount)
	assert.Equal(t, "100", ts.balance(t, a.ID).String())
}
