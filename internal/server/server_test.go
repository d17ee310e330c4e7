package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atm-ledger/internal/config"
	"atm-ledger/internal/domain"
	"atm-ledger/internal/errors"
	"atm-ledger/internal/repository"

	"github.com/shopspring/decimal"
)

const seedLedger = repository.LedgerHeader + "\n" +
	"00001,110,500.00\n" +
	"X0002,221,75.00\n"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(t *testing.T, ledgerContent string) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "DataBase.csv")
	if ledgerContent != "" {
		require.NoError(t, os.WriteFile(path, []byte(ledgerContent), 0o644))
	}
	return &config.Config{
		ServerPort:        "0",
		HTTPEnabled:       false,
		LedgerPath:        path,
		Transport:         config.TransportMemory,
		TransportCapacity: 4,
	}
}

// startTestServer runs the control loop and serves the gateway router from
// an httptest server.
func startTestServer(t *testing.T, cfg *config.Config) (*Server, *httptest.Server) {
	t.Helper()
	srv, _, err := StartServer(cfg, testLogger())
	require.NoError(t, err)

	ts := httptest.NewServer(srv.GetRouter())
	t.Cleanup(func() {
		ts.Close()
		srv.Stop(context.Background())
	})
	return srv, ts
}

func do(t *testing.T, ts *httptest.Server, method, path, body string) (int, map[string]interface{}) {
	t.Helper()
	req, err := http.NewRequest(method, ts.URL+path, bytes.NewBufferString(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp.StatusCode, decoded
}

func field(t *testing.T, body map[string]interface{}, section, key string) string {
	t.Helper()
	m, ok := body[section].(map[string]interface{})
	require.True(t, ok, "response has no %q section: %v", section, body)
	s, _ := m[key].(string)
	return s
}

func TestServer_TerminalFlow(t *testing.T) {
	cfg := testConfig(t, seedLedger)
	_, ts := startTestServer(t, cfg)

	code, body := do(t, ts, "GET", "/health", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", body["status"])

	code, body = do(t, ts, "POST", "/terminal/pin", `{"account_no":"00001","pin":111}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "OK", field(t, body, "data", "status"))
	assert.NotEmpty(t, field(t, body, "data", "correlation_id"))

	code, body = do(t, ts, "POST", "/terminal/balance", `{"account_no":"00001"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "500.00", field(t, body, "data", "funds"))

	code, body = do(t, ts, "POST", "/terminal/withdraw", `{"account_no":"00001","amount":"600.00"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "NSF", field(t, body, "error", "details"))

	code, body = do(t, ts, "POST", "/terminal/withdraw", `{"account_no":"00001","amount":"200.00"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "FUNDS_OK", field(t, body, "data", "status"))
	assert.Equal(t, "300.00", field(t, body, "data", "funds"))

	data, err := os.ReadFile(cfg.LedgerPath)
	require.NoError(t, err)
	assert.Equal(t, repository.LedgerHeader+"\n00001,110,300.00\nX0002,221,75.00\n", string(data))

	code, body = do(t, ts, "POST", "/terminal/balance", `{"account_no":"00002"}`)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, string(errors.AccountNotFound), field(t, body, "error", "code"))
}

func TestServer_LockoutFlow(t *testing.T) {
	cfg := testConfig(t, seedLedger)
	_, ts := startTestServer(t, cfg)

	for _, want := range []int{http.StatusUnauthorized, http.StatusUnauthorized, http.StatusForbidden} {
		code, _ := do(t, ts, "POST", "/terminal/pin", `{"account_no":"00001","pin":123}`)
		assert.Equal(t, want, code)
	}

	code, body := do(t, ts, "POST", "/terminal/pin", `{"account_no":"00001","pin":111}`)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "NOT_EXIST", field(t, body, "error", "details"))

	data, err := os.ReadFile(cfg.LedgerPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "X0001,110,500.00")
}

func TestServer_AdminCreateOnEmptyLedger(t *testing.T) {
	cfg := testConfig(t, "")
	cfg.LedgerInitEmpty = true
	_, ts := startTestServer(t, cfg)

	code, body := do(t, ts, "PUT", "/admin/accounts/00002", `{"pin":222,"funds":"1000.00"}`)
	assert.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "CREATED", field(t, body, "data", "status"))

	code, _ = do(t, ts, "PUT", "/admin/accounts/2", `{"pin":222,"funds":"1000.00"}`)
	assert.Equal(t, http.StatusBadRequest, code)

	// The server keeps serving after an admin update.
	code, _ = do(t, ts, "POST", "/terminal/pin", `{"account_no":"00002","pin":222}`)
	assert.Equal(t, http.StatusOK, code)

	restarted, err := NewServer(cfg, testLogger())
	require.NoError(t, err)
	account, err := restarted.store.Account().Find("00002")
	require.NoError(t, err)
	assert.Equal(t, domain.EncodePIN(222), account.PINCode)
	assert.True(t, account.Funds.Equal(decimal.NewFromInt(1000)))
	assert.Zero(t, account.Attempts)
}

func TestServer_MissingLedger(t *testing.T) {
	cfg := testConfig(t, "")

	_, err := NewServer(cfg, testLogger())
	assert.ErrorIs(t, err, errors.ErrLedgerUnavailable)

	cfg.LedgerInitEmpty = true
	srv, err := NewServer(cfg, testLogger())
	require.NoError(t, err)
	assert.Zero(t, srv.store.Account().Len())
}

func TestServer_StopsOnLedgerWriteFailure(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "ledger")
	require.NoError(t, os.Mkdir(dir, 0o755))
	cfg := testConfig(t, "")
	cfg.LedgerPath = filepath.Join(dir, "DataBase.csv")
	require.NoError(t, os.WriteFile(cfg.LedgerPath, []byte(seedLedger), 0o644))

	srv, _, err := StartServer(cfg, testLogger())
	require.NoError(t, err)
	defer srv.Stop(context.Background())

	require.NoError(t, os.RemoveAll(dir))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err = srv.Caller().Call(ctx, domain.Message{
		Origin:    domain.OriginTerminal,
		Operation: domain.OperationWithdraw,
		Account:   domain.AccountSnapshot{AccountNo: "00001", Funds: decimal.NewFromInt(1)},
	})
	assert.Error(t, err)

	select {
	case err := <-srv.Done():
		assert.ErrorIs(t, err, errors.ErrLedgerWriteFailed)
	case <-time.After(time.Second):
		t.Fatal("control loop kept running after a failed ledger write")
	}

	rec := httptest.NewRecorder()
	srv.GetRouter().ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_StopEndsLoopCleanly(t *testing.T) {
	cfg := testConfig(t, seedLedger)
	srv, _, err := StartServer(cfg, testLogger())
	require.NoError(t, err)

	require.NoError(t, srv.Stop(context.Background()))

	select {
	case err := <-srv.Done():
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("control loop did not stop")
	}
}

func TestServer_StartReleasesTransportWhenPortTaken(t *testing.T) {
	taken, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer taken.Close()
	_, port, err := net.SplitHostPort(taken.Addr().String())
	require.NoError(t, err)

	cfg := testConfig(t, seedLedger)
	cfg.HTTPEnabled = true

	srv, err := NewServer(cfg, testLogger())
	require.NoError(t, err)

	_, err = srv.Start(port)
	require.Error(t, err)

	err = srv.Caller().Send(context.Background(), domain.Message{})
	assert.ErrorIs(t, err, errors.ErrTransportClosed)

	select {
	case err := <-srv.Done():
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("control loop kept running after a failed start")
	}
}
