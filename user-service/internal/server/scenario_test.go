package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/eaglebank/usersync/shared/events"
	"github.com/eaglebank/usersync/shared/models"
	sharedredis "github.com/eaglebank/usersync/shared/redis"
	usercmd "github.com/eaglebank/usersync/user-service/internal/command"
	"github.com/eaglebank/usersync/user-service/internal/handler"
	"github.com/eaglebank/usersync/user-service/internal/producer"
	userqry "github.com/eaglebank/usersync/user-service/internal/query"
	"github.com/eaglebank/usersync/user-service/internal/repository"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// topicWatcher is a test consumer on the user-events topic.
type topicWatcher struct {
	mu     sync.Mutex
	events []events.UserLifecycleEvent
}

func (w *topicWatcher) handle(_ context.Context, msg events.Message) error {
	e, err := events.Decode(msg.Payload)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.events = append(w.events, e)
	return nil
}

func (w *topicWatcher) snapshot() []events.UserLifecycleEvent {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]events.UserLifecycleEvent(nil), w.events...)
}

func (w *topicWatcher) waitFor(t *testing.T, n int) []events.UserLifecycleEvent {
	t.Helper()
	require.Eventually(t, func() bool { return len(w.snapshot()) >= n }, 3*time.Second, 10*time.Millisecond)
	// give a stray extra event time to show up
	time.Sleep(100 * time.Millisecond)
	return w.snapshot()
}

func newScenario(t *testing.T) (*gin.Engine, *topicWatcher) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := zerolog.Nop()
	store := repository.NewMemoryUserRepository()
	cache := sharedredis.NewViewCache[models.UserView](client, repository.UserViewKeyPrefix, time.Minute, logger)
	readRepo := repository.NewUserReadRepository(store, cache)

	publisher := events.NewPublisher(client, events.PublisherConfig{Topic: events.DefaultTopic})
	commands := usercmd.NewUserCommandService(store, readRepo, producer.NewUserEventProducer(publisher, logger), logger)
	queries := userqry.NewUserQueryService(readRepo)
	router := NewRouter(handler.NewUserHandler(commands, queries), logger)

	// created up front so the watcher sees everything published from here on
	require.NoError(t, client.XGroupCreateMkStream(context.Background(), events.DefaultTopic, "scenario-test", "0").Err())

	watcher := &topicWatcher{}
	sub := events.NewSubscriber(client, events.SubscriberConfig{
		Group:         "scenario-test",
		Consumer:      "watcher",
		Handler:       watcher.handle,
		BlockDuration: 50 * time.Millisecond,
		Logger:        logger,
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = sub.Start(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return router, watcher
}

func do(router *gin.Engine, method, url string, body any) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		b, _ := json.Marshal(body)
		req, _ = http.NewRequest(method, url, strings.NewReader(string(b)))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req, _ = http.NewRequest(method, url, nil)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestScenarioCreateEmitsEvent(t *testing.T) {
	router, watcher := newScenario(t)

	w := do(router, http.MethodPost, "/v1/users", map[string]any{"name": "Test User", "email": "test@example.com", "age": 25})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created models.UserView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.NotZero(t, created.ID)
	assert.Equal(t, "Test User", created.Name)
	assert.Equal(t, "test@example.com", created.Email)

	got := watcher.waitFor(t, 1)
	require.Len(t, got, 1)
	assert.Equal(t, events.UserCreated, got[0].EventType)
	assert.Equal(t, created.ID, got[0].UserID)
	assert.Equal(t, "test@example.com", got[0].Email)
	assert.Equal(t, "Test User", got[0].Name)
}

func TestScenarioDuplicateEmailEmitsOnce(t *testing.T) {
	router, watcher := newScenario(t)
	body := map[string]any{"name": "Same", "email": "same@example.com"}

	assert.Equal(t, http.StatusCreated, do(router, http.MethodPost, "/v1/users", body).Code)
	assert.Equal(t, http.StatusConflict, do(router, http.MethodPost, "/v1/users", body).Code)

	got := watcher.waitFor(t, 1)
	assert.Len(t, got, 1)
}

func TestScenarioDeleteEmitsSnapshot(t *testing.T) {
	router, watcher := newScenario(t)

	w := do(router, http.MethodPost, "/v1/users", map[string]any{"name": "Gone Soon", "email": "gone@example.com"})
	require.Equal(t, http.StatusCreated, w.Code)
	var created models.UserView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	url := fmt.Sprintf("/v1/users/%d", created.ID)

	// warm the read model so the delete has to invalidate it
	require.Equal(t, http.StatusOK, do(router, http.MethodGet, url, nil).Code)

	assert.Equal(t, http.StatusNoContent, do(router, http.MethodDelete, url, nil).Code)
	assert.Equal(t, http.StatusNotFound, do(router, http.MethodGet, url, nil).Code)
	assert.Equal(t, http.StatusNotFound, do(router, http.MethodDelete, url, nil).Code)

	got := watcher.waitFor(t, 2)
	require.Len(t, got, 2)
	var deletes []events.UserLifecycleEvent
	for _, e := range got {
		if e.EventType == events.UserDeleted {
			deletes = append(deletes, e)
		}
	}
	require.Len(t, deletes, 1)
	assert.Equal(t, created.ID, deletes[0].UserID)
	assert.Equal(t, "gone@example.com", deletes[0].Email)
	assert.Equal(t, "Gone Soon", deletes[0].Name)
}

func TestScenarioUpdateEmitsNothing(t *testing.T) {
	router, watcher := newScenario(t)

	w := do(router, http.MethodPost, "/v1/users", map[string]any{"name": "Alice", "email": "alice@example.com"})
	require.Equal(t, http.StatusCreated, w.Code)
	require.Equal(t, http.StatusCreated, do(router, http.MethodPost, "/v1/users", map[string]any{"name": "Bob", "email": "bob@example.com"}).Code)
	var alice models.UserView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &alice))
	url := fmt.Sprintf("/v1/users/%d", alice.ID)

	assert.Equal(t, http.StatusOK, do(router, http.MethodPut, url, map[string]any{"name": "Alice B", "email": "alice@example.com", "age": 40}).Code)
	assert.Equal(t, http.StatusConflict, do(router, http.MethodPut, url, map[string]any{"name": "Alice B", "email": "bob@example.com"}).Code)

	r := do(router, http.MethodGet, url, nil)
	require.Equal(t, http.StatusOK, r.Code)
	var view models.UserView
	require.NoError(t, json.Unmarshal(r.Body.Bytes(), &view))
	assert.Equal(t, "Alice B", view.Name, "cached view is refreshed on update")

	got := watcher.waitFor(t, 2)
	assert.Len(t, got, 2, "only the two creates are published")
}

func TestHealth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := NewRouter(handler.NewUserHandler(nil, nil), zerolog.Nop())
	assert.Equal(t, http.StatusOK, do(router, http.MethodGet, "/health", nil).Code)
}
