package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/heriberto777/core-app-sub000/internal/db"
	"github.com/heriberto777/core-app-sub000/internal/entity"
	"github.com/heriberto777/core-app-sub000/internal/metrics"
	"github.com/heriberto777/core-app-sub000/internal/progress"
	"github.com/heriberto777/core-app-sub000/internal/service"
	"github.com/heriberto777/core-app-sub000/internal/tracker"
	"github.com/heriberto777/core-app-sub000/tests/mocks"
)

type fakeDispatcher struct {
	enqueued []string
	err      error
}

func (d *fakeDispatcher) EnqueueRun(ctx context.Context, taskID string) error {
	if d.err != nil {
		return d.err
	}
	d.enqueued = append(d.enqueued, taskID)
	return nil
}

type handlerFixture struct {
	handler    *TaskHandler
	store      *mocks.MockStore
	dispatcher *fakeDispatcher
	tracker    *tracker.Tracker
	echo       *echo.Echo
}

func newFixture(t *testing.T) *handlerFixture {
	t.Helper()
	log := zap.NewNop().Sugar()
	store := mocks.NewMockStore()
	manager := db.NewManager(store.DBConfigs(), log)
	registry := metrics.NewRegistryWith(prometheus.NewRegistry())
	trk := tracker.New()
	monitor := service.NewMonitor(store, manager, log)
	queue := service.NewRetryQueue(mocks.NewMockRunner(), monitor, store, registry, log)
	dispatcher := &fakeDispatcher{}

	return &handlerFixture{
		handler:    NewTaskHandler(store, dispatcher, trk, progress.NewChannel(), manager, monitor, queue),
		store:      store,
		dispatcher: dispatcher,
		tracker:    trk,
		echo:       echo.New(),
	}
}

func (f *handlerFixture) request(method, path, body string, paramNames, paramValues []string) (*httptest.ResponseRecorder, echo.Context) {
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := f.echo.NewContext(req, rec)
	c.SetParamNames(paramNames...)
	c.SetParamValues(paramValues...)
	return rec, c
}

func runnableTask(name string) *entity.Task {
	return &entity.Task{
		Name:   name,
		Active: true,
		Kind:   entity.KindManual,
		Ruleset: entity.ValidationRuleset{
			Fields:         map[string]entity.FieldRule{"id": {Type: entity.FieldNumber}},
			RequiredFields: []string{"id"},
		},
		SourceServer: "src",
		TargetServer: "dst",
	}
}

// TestListTasks validates GET /api/tasks.
func TestListTasks(t *testing.T) {
	f := newFixture(t)
	f.store.SeedTask(runnableTask("alpha"))
	f.store.SeedTask(runnableTask("beta"))

	rec, c := f.request(http.MethodGet, "/api/tasks", "", nil, nil)
	require.NoError(t, f.handler.ListTasks(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data []entity.Task `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Data, 2)
}

// TestGetTaskNotFound validates the 404 path.
func TestGetTaskNotFound(t *testing.T) {
	f := newFixture(t)

	rec, c := f.request(http.MethodGet, "/api/tasks/missing", "", []string{"id"}, []string{"missing"})
	require.NoError(t, f.handler.GetTask(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "TASK_NOT_FOUND")
}

// TestUpsertTask validates PUT /api/tasks including operator checking.
func TestUpsertTask(t *testing.T) {
	f := newFixture(t)

	body := `{"name":"gamma","active":true,"kind":"manual","destTable":"dest",
		"ruleset":{"fields":{"id":{"type":"number"}},"requiredFields":["id"]}}`
	rec, c := f.request(http.MethodPut, "/api/tasks", body, nil, nil)
	require.NoError(t, f.handler.UpsertTask(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	stored, err := f.store.Tasks().GetByName(context.Background(), "gamma")
	require.NoError(t, err)
	assert.Equal(t, "dest", stored.DestTable)

	// Invalid operator is rejected before touching the store.
	bad := `{"name":"delta","params":[{"field":"x","operator":"XOR","value":1}]}`
	rec, c = f.request(http.MethodPut, "/api/tasks", bad, nil, nil)
	require.NoError(t, f.handler.UpsertTask(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_OPERATOR")

	// Missing name is rejected.
	rec, c = f.request(http.MethodPut, "/api/tasks", `{"active":true}`, nil, nil)
	require.NoError(t, f.handler.UpsertTask(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// TestRunTask validates dispatching and conflict handling.
func TestRunTask(t *testing.T) {
	f := newFixture(t)
	task := runnableTask("alpha")
	f.store.SeedTask(task)

	rec, c := f.request(http.MethodPost, "/api/tasks/"+task.ID+"/run", "", []string{"id"}, []string{task.ID})
	require.NoError(t, f.handler.RunTask(c))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{task.ID}, f.dispatcher.enqueued)

	// A second run while registered conflicts.
	_, _, err := f.tracker.Register(context.Background(), task.ID)
	require.NoError(t, err)
	rec, c = f.request(http.MethodPost, "/api/tasks/"+task.ID+"/run", "", []string{"id"}, []string{task.ID})
	require.NoError(t, f.handler.RunTask(c))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "ALREADY_RUNNING")
}

// TestRunTaskInactive validates the non-runnable rejection.
func TestRunTaskInactive(t *testing.T) {
	f := newFixture(t)
	task := runnableTask("alpha")
	task.Active = false
	f.store.SeedTask(task)

	rec, c := f.request(http.MethodPost, "/api/tasks/"+task.ID+"/run", "", []string{"id"}, []string{task.ID})
	require.NoError(t, f.handler.RunTask(c))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Empty(t, f.dispatcher.enqueued)
}

// TestCancelTask validates cancellation routing through the tracker.
func TestCancelTask(t *testing.T) {
	f := newFixture(t)

	rec, c := f.request(http.MethodPost, "/api/tasks/x/cancel", "", []string{"id"}, []string{"x"})
	require.NoError(t, f.handler.CancelTask(c))
	assert.Equal(t, http.StatusConflict, rec.Code)

	ctx, _, err := f.tracker.Register(context.Background(), "x")
	require.NoError(t, err)
	rec, c = f.request(http.MethodPost, "/api/tasks/x/cancel", "", []string{"id"}, []string{"x"})
	require.NoError(t, f.handler.CancelTask(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Error(t, ctx.Err(), "cancel must propagate to the task context")
}

// TestRetryQueueStatus validates the queue snapshot endpoint.
func TestRetryQueueStatus(t *testing.T) {
	f := newFixture(t)
	f.handler.queue.Enqueue("task-9", "timeout")

	rec, c := f.request(http.MethodGet, "/api/retry-queue", "", nil, nil)
	require.NoError(t, f.handler.RetryQueueStatus(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "task-9")
	assert.Contains(t, rec.Body.String(), `"depth":1`)
}

// TestHealthSnapshot validates the health endpoint shape.
func TestHealthSnapshot(t *testing.T) {
	f := newFixture(t)

	rec, c := f.request(http.MethodGet, "/api/health", "", nil, nil)
	require.NoError(t, f.handler.Health(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data service.HealthSnapshot `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Data.Degraded)
}
