package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redismock/v8"
	"github.com/google/uuid"
	"github.com/richardliu001/ledger-service/internal/auth"
	"github.com/richardliu001/ledger-service/internal/config"
	"github.com/richardliu001/ledger-service/internal/logger"
	"github.com/richardliu001/ledger-service/internal/model"
	"github.com/richardliu001/ledger-service/internal/repo"
	"github.com/richardliu001/ledger-service/internal/service"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type testServer struct {
	router *gin.Engine
	jwt    *auth.JWTManager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, repo.Migrate(db))
	for _, u := range []string{"u1", "u2", "u3"} {
		require.NoError(t, db.Create(&model.Membership{ApartmentID: "apt", UserID: u, JoinedAt: time.Now()}).Error)
	}

	rdb, _ := redismock.NewClientMock()
	log, err := logger.NewLogger("error")
	require.NoError(t, err)
	r := repo.NewRepository(db, rdb, &kafka.Writer{}, log)
	mat := service.NewMaterializer(r, log)
	svc := Services{
		Debts:       service.NewDebtService(r, mat, true, log),
		Settlements: service.NewSettlementService(r, mat, true, log),
		Balances:    service.NewBalanceService(r, mat, log, service.NewMaterializedSource(r, log), service.NewHistorySource(r)),
	}
	jwtManager := auth.NewJWTManager("test-secret", "apartment-ledger", time.Hour)
	return &testServer{
		router: NewRouter(svc, config.ServerConfig{CORSOrigins: []string{"https://app.example"}}, config.RateLimitConfig{RPS: 1000, Burst: 1000}, jwtManager, log),
		jwt:    jwtManager,
	}
}

func (s *testServer) do(t *testing.T, method, path, user string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		tok, err := s.jwt.Generate(user)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var out map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w, out
}

func errorOf(t *testing.T, out map[string]interface{}) map[string]interface{} {
	t.Helper()
	e, ok := out["error"].(map[string]interface{})
	require.True(t, ok, "expected error body, got %v", out)
	return e
}

func TestHandlers_SettlementFlow(t *testing.T) {
	s := newTestServer(t)

	w, out := s.do(t, http.MethodPost, "/v1/apartments/apt/debts", "u1",
		gin.H{"debtor_id": "u1", "creditor_id": "u2", "amount": "50.00"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	debtID := out["id"].(string)

	w, out = s.do(t, http.MethodGet, "/v1/apartments/apt/balances", "u3", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, out["balances"], 2, "sync materialize after debt write")

	w, out = s.do(t, http.MethodPost, "/v1/apartments/apt/debts/"+debtID+"/settle", "u2", gin.H{"idempotency_key": "k1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	settlementID := out["settlement_id"].(string)
	assert.NotEmpty(t, settlementID)

	w, out = s.do(t, http.MethodPost, "/v1/apartments/apt/debts/"+debtID+"/settle", "u2", gin.H{"idempotency_key": "k1"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, settlementID, out["settlement_id"])
	assert.Equal(t, true, out["replayed"])

	w, out = s.do(t, http.MethodPost, "/v1/apartments/apt/debts/"+debtID+"/settle", "u1", nil)
	require.Equal(t, http.StatusConflict, w.Code)
	e := errorOf(t, out)
	assert.Equal(t, "failed-precondition", e["kind"])
	assert.Equal(t, "DEBT_ALREADY_CLOSED", e["reason"])
	assert.NotEmpty(t, e["log_id"])

	w, out = s.do(t, http.MethodGet, "/v1/apartments/apt/debts", "u1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, out["debts"])
}

func TestHandlers_CreateAndClose(t *testing.T) {
	s := newTestServer(t)

	w, out := s.do(t, http.MethodPost, "/v1/apartments/apt/settlements", "u1",
		gin.H{"from_user_id": "u1", "to_user_id": "u2", "amount": "30"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotEmpty(t, out["debt_id"])
	assert.NotEmpty(t, out["settlement_id"])

	w, out = s.do(t, http.MethodGet, "/v1/apartments/apt/balances?source=materialized", "u2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	rows := out["balances"].([]interface{})
	require.Len(t, rows, 2)
	nets := map[string]string{}
	for _, r := range rows {
		m := r.(map[string]interface{})
		nets[m["user_id"].(string)] = m["net"].(string)
	}
	assert.Equal(t, map[string]string{"u1": "-30", "u2": "30"}, nets)
}

func TestHandlers_Errors(t *testing.T) {
	s := newTestServer(t)

	w, out := s.do(t, http.MethodGet, "/v1/apartments/apt/debts", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "unauthenticated", errorOf(t, out)["kind"])

	w, out = s.do(t, http.MethodGet, "/v1/apartments/apt/debts", "stranger", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "NOT_A_MEMBER", errorOf(t, out)["reason"])

	w, _ = s.do(t, http.MethodPost, "/v1/apartments/apt/debts", "u1", gin.H{"debtor_id": "u1", "creditor_id": "u2", "amount": "ten"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(t, http.MethodPost, "/v1/apartments/apt/debts", "u1", gin.H{"debtor_id": "u1", "creditor_id": "u1", "amount": "10"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, out = s.do(t, http.MethodGet, "/v1/apartments/apt/debts/nope", "u1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not-found", errorOf(t, out)["kind"])

	w, out = s.do(t, http.MethodPost, "/v1/apartments/apt/settlements", "u1",
		gin.H{"from_user_id": "u1", "to_user_id": "u2", "amount": "5", "debt_id": "same"})
	require.Equal(t, http.StatusOK, w.Code, out)
	w, out = s.do(t, http.MethodPost, "/v1/apartments/apt/settlements", "u1",
		gin.H{"from_user_id": "u1", "to_user_id": "u2", "amount": "5", "debt_id": "same"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "already-exists", errorOf(t, out)["kind"])
}

func TestHandlers_ExpenseHistoryAndSuggestions(t *testing.T) {
	s := newTestServer(t)

	w, out := s.do(t, http.MethodPost, "/v1/apartments/apt/expenses", "u1",
		gin.H{"payer_id": "u1", "amount": "90", "participant_ids": []string{"u1", "u2", "u3"}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Len(t, out["debts"], 2)

	w, out = s.do(t, http.MethodGet, "/v1/apartments/apt/history", "u2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, out["expenses"], 1)

	w, out = s.do(t, http.MethodGet, "/v1/apartments/apt/transfers/suggested", "u2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, out["transfers"], 2)

	w, out = s.do(t, http.MethodPost, "/v1/apartments/apt/balances/recompute", "u3", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, out["balances"], 3)
}

func TestHandlers_Simplify(t *testing.T) {
	s := newTestServer(t)

	w, out := s.do(t, http.MethodPost, "/v1/simplify", "u1", gin.H{"balances": []gin.H{
		{"user_id": "A", "net": "100"}, {"user_id": "B", "net": "-60"}, {"user_id": "C", "net": "-40"},
	}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	transfers := out["transfers"].([]interface{})
	require.Len(t, transfers, 2)
	first := transfers[0].(map[string]interface{})
	assert.Equal(t, "B", first["from"])
	assert.Equal(t, "A", first["to"])
	assert.Equal(t, "60", first["amount"])
}

func TestRouter_CORSPreflight(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/v1/apartments/apt/debts", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, "https://app.example", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_RateLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RateLimitMiddleware(1, 1))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)
}
