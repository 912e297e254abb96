package gateway

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/eaglebank/usersync/shared/middleware"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type seenRequest struct {
	Method        string `json:"method"`
	Path          string `json:"path"`
	Query         string `json:"query"`
	Body          string `json:"body"`
	CorrelationID string `json:"correlationId"`
	Authorization string `json:"authorization"`
}

func echoUpstream(t *testing.T, name string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Upstream", name)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(seenRequest{
			Method:        r.Method,
			Path:          r.URL.Path,
			Query:         r.URL.RawQuery,
			Body:          string(body),
			CorrelationID: r.Header.Get(middleware.CorrelationIDHeader),
			Authorization: r.Header.Get("Authorization"),
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func setupRouter(usersURL, notificationsURL string, timeout time.Duration) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := zerolog.Nop()
	return NewRouter(
		NewUpstream("user-service", usersURL, timeout, logger),
		NewUpstream("notification-service", notificationsURL, timeout, logger),
		logger,
	)
}

func TestRouter_ForwardsToUpstream(t *testing.T) {
	users := echoUpstream(t, "users")
	notifications := echoUpstream(t, "notifications")
	router := setupRouter(users.URL, notifications.URL, time.Second)

	tests := []struct {
		name         string
		method       string
		target       string
		body         string
		wantUpstream string
		wantPath     string
	}{
		{"create user", http.MethodPost, "/v1/users", `{"name":"Jo"}`, "users", "/v1/users"},
		{"list users", http.MethodGet, "/v1/users?page=2", "", "users", "/v1/users"},
		{"get user", http.MethodGet, "/v1/users/7", "", "users", "/v1/users/7"},
		{"update user", http.MethodPut, "/v1/users/7", `{"name":"Jo"}`, "users", "/v1/users/7"},
		{"delete user", http.MethodDelete, "/v1/users/7", "", "users", "/v1/users/7"},
		{"send email", http.MethodPost, "/v1/notifications/email", `{"to":"a@b.co"}`, "notifications", "/v1/notifications/email"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.target, strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Authorization", "Bearer abc")
			req.Header.Set(middleware.CorrelationIDHeader, "corr-1")
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusCreated, w.Code)
			assert.Equal(t, tt.wantUpstream, w.Header().Get("X-Upstream"))
			assert.Equal(t, "corr-1", w.Header().Get(middleware.CorrelationIDHeader))

			var seen seenRequest
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &seen))
			assert.Equal(t, tt.method, seen.Method)
			assert.Equal(t, tt.wantPath, seen.Path)
			assert.Equal(t, tt.body, seen.Body)
			assert.Equal(t, "corr-1", seen.CorrelationID)
			assert.Equal(t, "Bearer abc", seen.Authorization)
		})
	}
}

func TestRouter_PreservesQueryString(t *testing.T) {
	users := echoUpstream(t, "users")
	router := setupRouter(users.URL, users.URL, time.Second)

	req := httptest.NewRequest(http.MethodGet, "/v1/users?page=2&size=5", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var seen seenRequest
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &seen))
	assert.Equal(t, "page=2&size=5", seen.Query)
}

func TestRouter_MintsCorrelationID(t *testing.T) {
	users := echoUpstream(t, "users")
	router := setupRouter(users.URL, users.URL, time.Second)

	req := httptest.NewRequest(http.MethodGet, "/v1/users", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var seen seenRequest
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &seen))
	assert.NotEmpty(t, seen.CorrelationID)
	assert.Equal(t, seen.CorrelationID, w.Header().Get(middleware.CorrelationIDHeader))
}

func TestRouter_UpstreamDown(t *testing.T) {
	down := httptest.NewServer(http.NotFoundHandler())
	downURL := down.URL
	down.Close()
	router := setupRouter(downURL, downURL, time.Second)

	req := httptest.NewRequest(http.MethodGet, "/v1/users/1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "Service unavailable")
}

func TestRouter_UpstreamTimeout(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(slow.Close)
	router := setupRouter(slow.URL, slow.URL, 50*time.Millisecond)

	req := httptest.NewRequest(http.MethodGet, "/v1/users/1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
}

func TestRouter_UnknownRoute(t *testing.T) {
	users := echoUpstream(t, "users")
	router := setupRouter(users.URL, users.URL, time.Second)

	req := httptest.NewRequest(http.MethodGet, "/v1/accounts", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_Health(t *testing.T) {
	router := setupRouter("http://127.0.0.1:1", "http://127.0.0.1:1", time.Second)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "api-gateway")
}
