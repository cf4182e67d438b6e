package middleware

import (
	"cobranca/models"
	"cobranca/services"
	"cobranca/utils"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testKey = "middleware-secret"

func tokenFor(t *testing.T, user *models.User) string {
	t.Helper()
	token, err := services.NewUserService(nil, testKey, time.Hour).GenerateToken(user)
	require.NoError(t, err)
	return token.Token
}

func whoAmI(w http.ResponseWriter, r *http.Request) {
	_, email, role, err := GetUserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Write([]byte(email + "|" + role))
}

func TestAuthMiddleware(t *testing.T) {
	handler := AuthMiddleware([]byte(testKey))(http.HandlerFunc(whoAmI))
	token := tokenFor(t, &models.User{ID: 3, Email: "agent@example.com", Role: models.RoleAgent})

	cases := []struct {
		name   string
		setup  func(r *http.Request)
		status int
		body   string
	}{
		{"без токена", func(r *http.Request) {}, http.StatusUnauthorized, ""},
		{"заголовок", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }, http.StatusOK, "agent@example.com|agent"},
		{"параметр", func(r *http.Request) { r.URL.RawQuery = "token=" + token }, http.StatusOK, "agent@example.com|agent"},
		{"чужая подпись", func(r *http.Request) {
			other, err := services.NewUserService(nil, "other", time.Hour).GenerateToken(&models.User{ID: 3})
			require.NoError(t, err)
			r.Header.Set("Authorization", "Bearer "+other.Token)
		}, http.StatusUnauthorized, ""},
		{"мусор", func(r *http.Request) { r.Header.Set("Authorization", "Bearer abc") }, http.StatusUnauthorized, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
			tc.setup(req)
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			assert.Equal(t, tc.status, rr.Code)
			if tc.body != "" {
				assert.Equal(t, tc.body, rr.Body.String())
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	handler := RequireRole(models.RoleAdmin)(http.HandlerFunc(whoAmI))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	req = req.WithContext(WithUser(req.Context(), 1, "agent@example.com", models.RoleAgent))
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	req = req.WithContext(WithUser(req.Context(), 1, "admin@example.com", models.RoleAdmin))
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRateLimit(t *testing.T) {
	now := time.Date(2025, time.March, 20, 12, 0, 0, 0, time.UTC)
	limiter := utils.NewRateLimiter(2, time.Minute).WithClock(func() time.Time { return now })
	handler := RateLimit(limiter, 2)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Password") != "certa" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	do := func(ip, password string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/signIn", nil)
		req.RemoteAddr = ip + ":5555"
		req.Header.Set("X-Password", password)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr
	}

	first := do("10.0.0.1", "errada")
	assert.Equal(t, http.StatusUnauthorized, first.Code)
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, http.StatusUnauthorized, do("10.0.0.1", "errada").Code)
	assert.Equal(t, http.StatusTooManyRequests, do("10.0.0.1", "certa").Code)
	assert.Equal(t, http.StatusUnauthorized, do("10.0.0.2", "errada").Code)

	// окно прошло
	now = now.Add(time.Minute + time.Second)
	assert.Equal(t, http.StatusUnauthorized, do("10.0.0.1", "errada").Code)

	// успешный вход обнуляет счетчик
	assert.Equal(t, http.StatusOK, do("10.0.0.1", "certa").Code)
	assert.Equal(t, 2, limiter.GetRemaining("10.0.0.1"))
	assert.Equal(t, http.StatusUnauthorized, do("10.0.0.1", "errada").Code)
	assert.Equal(t, http.StatusUnauthorized, do("10.0.0.1", "errada").Code)
	assert.Equal(t, http.StatusTooManyRequests, do("10.0.0.1", "errada").Code)
}

func TestRecoveryAndLogging(t *testing.T) {
	metrics := utils.NewMetrics()
	logger := zap.NewNop()
	handler := LoggingMiddleware(logger, metrics)(Recovery(logger, metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	snapshot := metrics.GetMetricsSnapshot()
	assert.Equal(t, int64(1), snapshot["critical_errors"])
	assert.Equal(t, int64(1), snapshot["failed_requests"])
}

func TestCORSPreflight(t *testing.T) {
	called := false
	handler := CORSMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodOptions, "/api/collection/groups", nil))

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.False(t, called)
}
