package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/eaglebank/usersync/shared/cqrs"
	"github.com/eaglebank/usersync/shared/middleware"
	"github.com/gin-gonic/gin"
)

type mockEmailSender struct {
	err   error
	calls []cqrs.SendEmailCommand
}

func (m *mockEmailSender) SendCustomEmail(_ context.Context, cmd cqrs.SendEmailCommand) error {
	m.calls = append(m.calls, cmd)
	return m.err
}

func newNotificationTestRouter(sender EmailSender, secret []byte) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewNotificationHandler(sender).RegisterRoutes(r, secret)
	return r
}

func doRequest(router *gin.Engine, body interface{}, token string) *httptest.ResponseRecorder {
	b, _ := json.Marshal(body)
	req, _ := http.NewRequest(http.MethodPost, "/v1/notifications/email", strings.NewReader(string(b)))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestSendEmail(t *testing.T) {
	tests := []struct {
		name           string
		body           interface{}
		senderErr      error
		expectedStatus int
		expectedCalls  int
	}{
		{
			name:           "accepted - valid request",
			body:           map[string]string{"to": "x@example.com", "subject": "S", "message": "M"},
			expectedStatus: http.StatusAccepted,
			expectedCalls:  1,
		},
		{
			name:           "accepted - mail failure is not reported",
			body:           map[string]string{"to": "x@example.com", "subject": "S", "message": "M"},
			senderErr:      fmt.Errorf("smtp down"),
			expectedStatus: http.StatusAccepted,
			expectedCalls:  1,
		},
		{
			name:           "bad request - invalid recipient",
			body:           map[string]string{"to": "nobody", "subject": "S", "message": "M"},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "bad request - missing message",
			body:           map[string]string{"to": "x@example.com", "subject": "S"},
			expectedStatus: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &mockEmailSender{err: tt.senderErr}
			w := doRequest(newNotificationTestRouter(sender, nil), tt.body, "")
			if w.Code != tt.expectedStatus {
				t.Fatalf("[%s] expected status %d, got %d; body: %s", tt.name, tt.expectedStatus, w.Code, w.Body.String())
			}
			if len(sender.calls) != tt.expectedCalls {
				t.Fatalf("[%s] expected %d sends, got %d", tt.name, tt.expectedCalls, len(sender.calls))
			}
		})
	}
}

func TestSendEmailPassesExactValues(t *testing.T) {
	sender := &mockEmailSender{}
	w := doRequest(newNotificationTestRouter(sender, nil), map[string]string{"to": "x@example.com", "subject": "S", "message": "M"}, "")
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", w.Code)
	}
	want := cqrs.SendEmailCommand{To: "x@example.com", Subject: "S", Message: "M"}
	if len(sender.calls) != 1 || sender.calls[0] != want {
		t.Errorf("expected exactly one send of %+v, got %+v", want, sender.calls)
	}
}

func TestSendEmailRequiresTokenWhenSecretSet(t *testing.T) {
	secret := []byte("notify-secret")
	token, err := middleware.IssueToken(secret, "ops", time.Minute)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	body := map[string]string{"to": "x@example.com", "subject": "S", "message": "M"}

	sender := &mockEmailSender{}
	router := newNotificationTestRouter(sender, secret)

	if w := doRequest(router, body, ""); w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", w.Code)
	}
	if w := doRequest(router, body, token); w.Code != http.StatusAccepted {
		t.Errorf("expected 202 with token, got %d", w.Code)
	}
	if len(sender.calls) != 1 {
		t.Errorf("expected 1 send, got %d", len(sender.calls))
	}
}
