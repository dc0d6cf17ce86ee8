package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/peerpay/ledgercore/internal/api/middleware"
	"github.com/peerpay/ledgercore/internal/config"
	"github.com/peerpay/ledgercore/internal/domain"
	"github.com/peerpay/ledgercore/internal/ledger"
	"github.com/peerpay/ledgercore/internal/models"
	"github.com/peerpay/ledgercore/internal/notification"
	"github.com/peerpay/ledgercore/internal/repository"
	"github.com/peerpay/ledgercore/internal/service"
)

const (
	testJWTSecret   = "test-secret-test-secret-test-secret!"
	testJWTIssuer   = "peerpay-ledgercore-test"
	testJWTAudience = "ledger-api-test"
)

// syncSink delivers events to the notification service inline so tests see
// notifications without running the dispatch worker.
type syncSink struct {
	svc *notification.Service
}

func (s *syncSink) Publish(ctx context.Context, event domain.TransferEvent) error {
	return s.svc.HandleEvent(ctx, event)
}

type testEnv struct {
	server *httptest.Server
	store  *repository.MemoryStore
	ledger *ledger.Ledger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	middleware.SetJWTSecret(testJWTSecret)
	middleware.SetJWTValidation(testJWTIssuer, testJWTAudience)

	store := repository.NewMemoryStore()
	accountLedger, err := ledger.Open(context.Background(), store)
	require.NoError(t, err)

	guard := service.NewOwnershipGuard(accountLedger)
	notificationSvc := notification.NewService(store, notification.NewMockDeliverer())

	services := Services{
		Identity:      service.NewIdentityService(store),
		Account:       service.NewAccountService(accountLedger, store, guard),
		Transfer:      service.NewTransferCoordinator(accountLedger, store, guard, &syncSink{svc: notificationSvc}),
		Notifications: notificationSvc,
	}

	cfg := &config.Config{
		JWTSecret:          testJWTSecret,
		JWTIssuer:          testJWTIssuer,
		JWTAudience:        testJWTAudience,
		PublicRateLimitRPS: 1000,
		AuthRateLimitRPS:   1000,
	}

	router := NewRouter(cfg, zap.NewNop(), nil, nil, nil, services)
	srv := httptest.NewServer(router.Routes())
	t.Cleanup(srv.Close)

	return &testEnv{server: srv, store: store, ledger: accountLedger}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) *http.Response {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, e.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if method == http.MethodPost {
		req.Header.Set("Idempotency-Key", uuid.NewString())
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func (e *testEnv) register(t *testing.T, username string) models.Identity {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/v1/identities", "", map[string]string{"username": username})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var identity models.Identity
	decodeBody(t, resp, &identity)
	return identity
}

func (e *testEnv) login(t *testing.T, username string) string {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{"username": username})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Token string `json:"token"`
	}
	decodeBody(t, resp, &body)
	require.NotEmpty(t, body.Token)
	return body.Token
}

func (e *testEnv) adminToken(t *testing.T) string {
	t.Helper()
	admin := &models.Identity{
		ID:        uuid.New(),
		Username:  fmt.Sprintf("admin_%d", time.Now().UnixNano()),
		Role:      models.RoleAdmin,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, e.store.CreateIdentity(context.Background(), admin))
	return e.login(t, admin.Username)
}

func (e *testEnv) createAccount(t *testing.T, token, currency string) models.Account {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/v1/accounts", token, map[string]string{"currency": currency})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var account models.Account
	decodeBody(t, resp, &account)
	return account
}

func (e *testEnv) deposit(t *testing.T, adminToken string, accountID uuid.UUID, amount string) {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/v1/admin/deposits", adminToken, map[string]string{
		"account_id": accountID.String(),
		"amount":     amount,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestTransferLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t)

	env.register(t, "alice")
	env.register(t, "bob")
	aliceToken := env.login(t, "alice")
	bobToken := env.login(t, "bob")
	adminToken := env.adminToken(t)

	aliceAcc := env.createAccount(t, aliceToken, "USD")
	bobAcc := env.createAccount(t, bobToken, "USD")
	env.deposit(t, adminToken, aliceAcc.ID, "100.00")

	// Alice proposes 60 to Bob.
	resp := env.do(t, http.MethodPost, "/v1/transfers", aliceToken, map[string]string{
		"sender_account_id":   aliceAcc.ID.String(),
		"receiver_account_id": bobAcc.ID.String(),
		"amount":              "60.00",
		"description":         "rent",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var transfer models.Transfer
	decodeBody(t, resp, &transfer)
	assert.Equal(t, domain.TransferPending, transfer.Status)

	// While pending, Alice's balance shows the split.
	resp = env.do(t, http.MethodGet, "/v1/accounts/"+aliceAcc.ID.String()+"/balance", aliceToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var snapshot struct {
		Available string `json:"available"`
		Escrowed  string `json:"escrowed"`
	}
	decodeBody(t, resp, &snapshot)
	assert.Equal(t, "40", snapshot.Available)
	assert.Equal(t, "60", snapshot.Escrowed)

	// Bob got notified about the proposal.
	resp = env.do(t, http.MethodGet, "/v1/notifications", bobToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var notifications []models.Notification
	decodeBody(t, resp, &notifications)
	require.Len(t, notifications, 1)
	assert.Equal(t, domain.EventProposed, notifications[0].Kind)

	// Bob accepts.
	resp = env.do(t, http.MethodPost, "/v1/transfers/"+transfer.ID.String()+"/decision", bobToken, map[string]string{"decision": "accept"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var decided models.Transfer
	decodeBody(t, resp, &decided)
	assert.Equal(t, domain.TransferAccepted, decided.Status)

	// A second accept is a conflict, not a second settlement.
	resp = env.do(t, http.MethodPost, "/v1/transfers/"+transfer.ID.String()+"/decision", bobToken, map[string]string{"decision": "accept"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	// Bob's funds arrived exactly once.
	resp = env.do(t, http.MethodGet, "/v1/accounts/"+bobAcc.ID.String()+"/balance", bobToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &snapshot)
	assert.Equal(t, "60", snapshot.Available)

	// Alice was notified of the acceptance.
	resp = env.do(t, http.MethodGet, "/v1/notifications", aliceToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &notifications)
	require.Len(t, notifications, 1)
	assert.Equal(t, domain.EventAccepted, notifications[0].Kind)
}

func TestRejectReturnsEscrowOverHTTP(t *testing.T) {
	env := newTestEnv(t)

	env.register(t, "carol")
	env.register(t, "dave")
	carolToken := env.login(t, "carol")
	daveToken := env.login(t, "dave")
	adminToken := env.adminToken(t)

	carolAcc := env.createAccount(t, carolToken, "USD")
	daveAcc := env.createAccount(t, daveToken, "USD")
	env.deposit(t, adminToken, carolAcc.ID, "50.00")

	resp := env.do(t, http.MethodPost, "/v1/transfers", carolToken, map[string]string{
		"sender_account_id":   carolAcc.ID.String(),
		"receiver_account_id": daveAcc.ID.String(),
		"amount":              "20.00",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var transfer models.Transfer
	decodeBody(t, resp, &transfer)

	resp = env.do(t, http.MethodPost, "/v1/transfers/"+transfer.ID.String()+"/decision", daveToken, map[string]string{"decision": "reject"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = env.do(t, http.MethodGet, "/v1/accounts/"+carolAcc.ID.String()+"/balance", carolToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var snapshot struct {
		Available string `json:"available"`
		Escrowed  string `json:"escrowed"`
	}
	decodeBody(t, resp, &snapshot)
	assert.Equal(t, "50", snapshot.Available)
	assert.Equal(t, "0", snapshot.Escrowed)
}

func TestTransferErrorsOverHTTP(t *testing.T) {
	env := newTestEnv(t)

	env.register(t, "erin")
	env.register(t, "frank")
	erinToken := env.login(t, "erin")
	frankToken := env.login(t, "frank")
	adminToken := env.adminToken(t)

	erinAcc := env.createAccount(t, erinToken, "USD")
	frankAcc := env.createAccount(t, frankToken, "USD")
	env.deposit(t, adminToken, erinAcc.ID, "10.00")

	// Insufficient funds.
	resp := env.do(t, http.MethodPost, "/v1/transfers", erinToken, map[string]string{
		"sender_account_id":   erinAcc.ID.String(),
		"receiver_account_id": frankAcc.ID.String(),
		"amount":              "10.01",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	resp.Body.Close()

	// Sending from someone else's account.
	resp = env.do(t, http.MethodPost, "/v1/transfers", frankToken, map[string]string{
		"sender_account_id":   erinAcc.ID.String(),
		"receiver_account_id": frankAcc.ID.String(),
		"amount":              "1.00",
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	// Unknown receiver account.
	resp = env.do(t, http.MethodPost, "/v1/transfers", erinToken, map[string]string{
		"sender_account_id":   erinAcc.ID.String(),
		"receiver_account_id": uuid.NewString(),
		"amount":              "1.00",
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	// Non-positive amount.
	resp = env.do(t, http.MethodPost, "/v1/transfers", erinToken, map[string]string{
		"sender_account_id":   erinAcc.ID.String(),
		"receiver_account_id": frankAcc.ID.String(),
		"amount":              "0",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	resp.Body.Close()

	// No token at all.
	resp = env.do(t, http.MethodGet, "/v1/transfers", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestAdminDepositRequiresRole(t *testing.T) {
	env := newTestEnv(t)

	env.register(t, "grace")
	graceToken := env.login(t, "grace")
	graceAcc := env.createAccount(t, graceToken, "USD")

	resp := env.do(t, http.MethodPost, "/v1/admin/deposits", graceToken, map[string]string{
		"account_id": graceAcc.ID.String(),
		"amount":     "100.00",
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.server.URL + "/healthz")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// With no configured dependencies readiness degenerates to OK.
	resp, err = http.Get(env.server.URL + "/readyz")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}
