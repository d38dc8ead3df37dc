package api

import (
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

	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vultisig/dca-plugin/config"
	"github.com/vultisig/dca-plugin/internal/oracle"
	"github.com/vultisig/dca-plugin/internal/tasks"
	"github.com/vultisig/dca-plugin/internal/types"
	"github.com/vultisig/dca-plugin/internal/venue"
	"github.com/vultisig/dca-plugin/plugin/dca"
	"github.com/vultisig/dca-plugin/service"
	"github.com/vultisig/dca-plugin/storage"
)

const (
	contractAddress = "neutron14hj2tavq8fpesdwxxcu44rty3hh90vhujrvcmstl4zr3txmfvw9s5c2epq"
	alice           = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
)

var pair = types.CurrencyPair{Base: "NTRN", Quote: "USD"}

type recordingQueue struct {
	mu       sync.Mutex
	enqueued []string
}

func (q *recordingQueue) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.enqueued = append(q.enqueued, task.Type())
	return &asynq.TaskInfo{ID: fmt.Sprintf("task-%d", len(q.enqueued)), Type: task.Type()}, nil
}

type memoryIdempotency struct {
	mu   sync.Mutex
	keys map[string]bool
}

func (m *memoryIdempotency) SetNX(_ context.Context, key string, _ string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys[key] {
		return false, nil
	}
	m.keys[key] = true
	return true, nil
}

func (m *memoryIdempotency) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

type testServer struct {
	e      *echo.Echo
	oracle *oracle.ManualOracle
	queue  *recordingQueue
}

func newTestServer(t *testing.T, instantiate bool) *testServer {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	o := oracle.NewManualOracle()
	o.SetMarket(pair, 6, true)
	require.NoError(t, o.SetPrice(pair, "500000", 6, 100))
	v := venue.NewPaperVenue(logger)
	v.SetPrice("uusdc", "untrn", decimal.RequireFromString("0.5"))

	store := storage.NewMemoryStorage()
	p, err := dca.NewDCAPlugin(store, o, o, v, logger)
	require.NoError(t, err)
	if instantiate {
		_, err = p.Instantiate(context.Background(), types.Env{BlockHeight: 100, ContractAddress: contractAddress}, types.InstantiateMsg{
			Owner:        alice,
			DenomBase:    "untrn",
			DenomQuote:   "uusdc",
			Base:         pair.Base,
			Quote:        pair.Quote,
			MaxBlockOld:  10,
			MaxSchedules: 1,
		})
		require.NoError(t, err)
	}

	queue := &recordingQueue{}
	outbox, err := service.NewOutbox(contractAddress, store, queue, logger)
	require.NoError(t, err)
	p.WithOutbox(outbox)
	svc, err := service.NewScheduleService(contractAddress, p, o, queue, outbox, storage.NewMemoryInstructionLog(), logger)
	require.NoError(t, err)
	srv := NewServer(config.ServerConfig{}, svc, &memoryIdempotency{keys: map[string]bool{}}, nil, logger)
	return &testServer{e: srv.Echo(), oracle: o, queue: queue}
}

func (ts *testServer) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	ts.e.ServeHTTP(rec, req)
	return rec
}

const createBody = `{"funds":[{"denom":"uusdc","amount":"100"}],"max_sell_amount":"30","max_slippage_basis_points":50}`

func TestPing(t *testing.T) {
	ts := newTestServer(t, true)
	rec := ts.do(http.MethodGet, "/ping", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateAndListSchedules(t *testing.T) {
	ts := newTestServer(t, true)

	rec := ts.do(http.MethodPost, "/dca/schedules", createBody, map[string]string{senderHeader: strings.ToLower(alice)})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp types.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	id, ok := resp.Attribute("schedule_id")
	require.True(t, ok)
	assert.Equal(t, "0", id)
	assert.Equal(t, []string{tasks.TypeDeposit}, ts.queue.enqueued)

	rec = ts.do(http.MethodGet, "/dca/schedules/"+alice, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var schedules []types.Schedule
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &schedules))
	require.Len(t, schedules, 1)
	assert.Equal(t, "100", schedules[0].RemainingAmount.String())
	assert.Equal(t, uint64(50), schedules[0].MaxSlippageBasisPoints)
}

func TestCreateScheduleErrors(t *testing.T) {
	ts := newTestServer(t, true)

	tests := []struct {
		name     string
		headers  map[string]string
		body     string
		status   int
		category string
	}{
		{"missing sender", nil, createBody, http.StatusBadRequest, ""},
		{"bad sender", map[string]string{senderHeader: "alice"}, createBody, http.StatusBadRequest, ""},
		{"bad json", map[string]string{senderHeader: alice}, `{"funds":`, http.StatusBadRequest, ""},
		{"missing denom", map[string]string{senderHeader: alice}, `{"funds":[{"amount":"1"}],"max_sell_amount":"1"}`, http.StatusBadRequest, ""},
		{"no funds", map[string]string{senderHeader: alice}, `{"max_sell_amount":"1"}`, http.StatusBadRequest, string(dca.CategoryInput)},
		{
			"wrong token",
			map[string]string{senderHeader: alice},
			`{"funds":[{"denom":"untrn","amount":"1"}],"max_sell_amount":"1"}`,
			http.StatusBadRequest,
			string(dca.CategoryInput),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(http.MethodPost, "/dca/schedules", tt.body, tt.headers)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.category, body.Category)
		})
	}
	assert.Empty(t, ts.queue.enqueued)
}

func TestCreateScheduleCapacity(t *testing.T) {
	ts := newTestServer(t, true)
	headers := map[string]string{senderHeader: alice}
	require.Equal(t, http.StatusOK, ts.do(http.MethodPost, "/dca/schedules", createBody, headers).Code)

	rec := ts.do(http.MethodPost, "/dca/schedules", createBody, headers)
	assert.Equal(t, http.StatusConflict, rec.Code)
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, string(dca.CategoryCapacity), body.Category)
}

func TestIdempotencyKey(t *testing.T) {
	ts := newTestServer(t, true)
	headers := map[string]string{senderHeader: alice, idempotencyHeader: "req-1"}
	require.Equal(t, http.StatusOK, ts.do(http.MethodPost, "/dca/schedules", createBody, headers).Code)
	assert.Equal(t, http.StatusConflict, ts.do(http.MethodPost, "/dca/schedules", createBody, headers).Code)

	// keys are scoped per action
	assert.Equal(t, http.StatusOK, ts.do(http.MethodPost, "/dca/withdraw", "", headers).Code)
}

func TestIdempotencyKeyReleasedOnFailure(t *testing.T) {
	ts := newTestServer(t, true)
	require.Equal(t, http.StatusOK, ts.do(http.MethodPost, "/dca/schedules", createBody, map[string]string{senderHeader: alice}).Code)

	// the contract is full, so the keyed request fails without taking effect
	headers := map[string]string{senderHeader: alice, idempotencyHeader: "req-2"}
	require.Equal(t, http.StatusConflict, ts.do(http.MethodPost, "/dca/schedules", createBody, headers).Code)

	require.Equal(t, http.StatusOK, ts.do(http.MethodPost, "/dca/withdraw", "", map[string]string{senderHeader: alice}).Code)
	assert.Equal(t, http.StatusOK, ts.do(http.MethodPost, "/dca/schedules", createBody, headers).Code)
	rec := ts.do(http.MethodPost, "/dca/schedules", createBody, headers)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "duplicate request")

	withdraw := map[string]string{senderHeader: "not-an-address", idempotencyHeader: "req-3"}
	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodPost, "/dca/withdraw", "", withdraw).Code)
	withdraw[senderHeader] = alice
	assert.Equal(t, http.StatusOK, ts.do(http.MethodPost, "/dca/withdraw", "", withdraw).Code)
}

func TestWithdrawAll(t *testing.T) {
	ts := newTestServer(t, true)
	headers := map[string]string{senderHeader: alice}
	require.Equal(t, http.StatusOK, ts.do(http.MethodPost, "/dca/schedules", createBody, headers).Code)

	rec := ts.do(http.MethodPost, "/dca/withdraw", "", headers)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp types.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, alice, resp.Messages[0].BankSend.ToAddress)
	assert.Equal(t, []string{tasks.TypeDeposit, tasks.TypeBankSend}, ts.queue.enqueued)
}

func TestTriggerRun(t *testing.T) {
	ts := newTestServer(t, true)
	rec := ts.do(http.MethodPost, "/dca/run", "", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp RunResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.TaskID)
	assert.Equal(t, []string{tasks.TypeRunSchedules}, ts.queue.enqueued)
}

func TestGetCurrentPrice(t *testing.T) {
	ts := newTestServer(t, true)
	rec := ts.do(http.MethodGet, "/dca/price", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp PriceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "0.5", resp.Price)

	ts.oracle.SetHeight(500)
	rec = ts.do(http.MethodGet, "/dca/price", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGetConfig(t *testing.T) {
	ts := newTestServer(t, false)
	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, "/dca/config", "", nil).Code)

	ts = newTestServer(t, true)
	rec := ts.do(http.MethodGet, "/dca/config", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var cfg types.Config
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cfg))
	assert.Equal(t, "untrn<>uusdc", cfg.PairData.PairID)
}

func TestGetContractInfo(t *testing.T) {
	ts := newTestServer(t, false)
	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, "/dca/info", "", nil).Code)

	ts = newTestServer(t, true)
	rec := ts.do(http.MethodGet, "/dca/info", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var info types.ContractInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, dca.ContractName, info.Contract)
	assert.Equal(t, dca.ContractVersion, info.Version)
}

func TestGetInstructionHistory(t *testing.T) {
	ts := newTestServer(t, true)
	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodGet, "/dca/history/abc", "", nil).Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodGet, "/dca/history/1?take=-1", "", nil).Code)

	rec := ts.do(http.MethodGet, "/dca/history/1?sort=-block_height", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}
