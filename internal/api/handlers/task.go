package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/heriberto777/core-app-sub000/internal/api/response"
	"github.com/heriberto777/core-app-sub000/internal/db"
	"github.com/heriberto777/core-app-sub000/internal/entity"
	"github.com/heriberto777/core-app-sub000/internal/progress"
	"github.com/heriberto777/core-app-sub000/internal/repository"
	"github.com/heriberto777/core-app-sub000/internal/service"
	"github.com/heriberto777/core-app-sub000/internal/tracker"
)

// Dispatcher enqueues a manual transfer run for background execution.
type Dispatcher interface {
	EnqueueRun(ctx context.Context, taskID string) error
}

// TaskHandler handles HTTP requests for transfer task operations.
type TaskHandler struct {
	store      repository.Store
	dispatcher Dispatcher
	tracker    *tracker.Tracker
	progress   *progress.Channel
	manager    *db.Manager
	monitor    *service.Monitor
	queue      *service.RetryQueue
}

// NewTaskHandler creates a new task handler.
func NewTaskHandler(
	store repository.Store,
	dispatcher Dispatcher,
	trk *tracker.Tracker,
	prog *progress.Channel,
	manager *db.Manager,
	monitor *service.Monitor,
	queue *service.RetryQueue,
) *TaskHandler {
	return &TaskHandler{
		store:      store,
		dispatcher: dispatcher,
		tracker:    trk,
		progress:   prog,
		manager:    manager,
		monitor:    monitor,
		queue:      queue,
	}
}

// ListTasks handles GET /api/tasks
func (h *TaskHandler) ListTasks(c echo.Context) error {
	tasks, err := h.store.Tasks().List(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, response.ErrorResponseWithCode(
			"TASK_LIST_FAILED", err.Error()))
	}
	return c.JSON(http.StatusOK, response.SuccessResponse(tasks))
}

// GetTask handles GET /api/tasks/:id
func (h *TaskHandler) GetTask(c echo.Context) error {
	task, err := h.store.Tasks().GetByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		if repository.IsNotFound(err) {
			return c.JSON(http.StatusNotFound, response.ErrorResponseWithCode(
				"TASK_NOT_FOUND", "No task with id "+c.Param("id")))
		}
		return c.JSON(http.StatusInternalServerError, response.ErrorResponseWithCode(
			"TASK_GET_FAILED", err.Error()))
	}
	return c.JSON(http.StatusOK, response.SuccessResponse(task))
}

// UpsertTask handles PUT /api/tasks
func (h *TaskHandler) UpsertTask(c echo.Context) error {
	var task entity.Task
	if err := c.Bind(&task); err != nil {
		return c.JSON(http.StatusBadRequest, response.ErrorResponseWithCode(
			"INVALID_REQUEST", "Invalid request body: "+err.Error()))
	}
	if task.Name == "" {
		return c.JSON(http.StatusBadRequest, response.ErrorResponseWithCode(
			"INVALID_TASK", "Task name is required"))
	}
	for _, p := range task.Params {
		if !entity.ValidOperator(p.Operator) {
			return c.JSON(http.StatusBadRequest, response.ErrorResponseWithCode(
				"INVALID_OPERATOR", fmt.Sprintf("Unsupported operator %q for field %s", p.Operator, p.Field)))
		}
	}

	if err := h.store.Tasks().Upsert(c.Request().Context(), &task); err != nil {
		return c.JSON(http.StatusInternalServerError, response.ErrorResponseWithCode(
			"TASK_UPSERT_FAILED", err.Error()))
	}
	return c.JSON(http.StatusOK, response.SuccessResponse(task))
}

// RunTask handles POST /api/tasks/:id/run
func (h *TaskHandler) RunTask(c echo.Context) error {
	id := c.Param("id")

	task, err := h.store.Tasks().GetByID(c.Request().Context(), id)
	if err != nil {
		if repository.IsNotFound(err) {
			return c.JSON(http.StatusNotFound, response.ErrorResponseWithCode(
				"TASK_NOT_FOUND", "No task with id "+id))
		}
		return c.JSON(http.StatusInternalServerError, response.ErrorResponseWithCode(
			"TASK_GET_FAILED", err.Error()))
	}
	if err := task.Runnable(); err != nil {
		return c.JSON(http.StatusConflict, response.ErrorResponseWithCode(
			"TASK_NOT_RUNNABLE", err.Error()))
	}
	if h.tracker.IsRunning(id) {
		return c.JSON(http.StatusConflict, response.ErrorResponseWithCode(
			"ALREADY_RUNNING", entity.ErrAlreadyRunning.Error()))
	}

	if err := h.dispatcher.EnqueueRun(c.Request().Context(), id); err != nil {
		return c.JSON(http.StatusInternalServerError, response.ErrorResponseWithCode(
			"DISPATCH_FAILED", err.Error()))
	}
	return c.JSON(http.StatusAccepted, response.SuccessResponse(map[string]string{
		"taskId": id,
		"state":  "queued",
	}))
}

// CancelTask handles POST /api/tasks/:id/cancel
func (h *TaskHandler) CancelTask(c echo.Context) error {
	id := c.Param("id")
	if !h.tracker.Cancel(id) {
		return c.JSON(http.StatusConflict, response.ErrorResponseWithCode(
			"NOT_RUNNING", "Task "+id+" is not running"))
	}
	return c.JSON(http.StatusOK, response.SuccessResponse(map[string]string{
		"taskId": id,
		"state":  "cancelling",
	}))
}

// ListExecutions handles GET /api/tasks/:id/executions
func (h *TaskHandler) ListExecutions(c echo.Context) error {
	execs, err := h.store.Executions().ListByTask(c.Request().Context(), c.Param("id"), 50)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, response.ErrorResponseWithCode(
			"EXECUTION_LIST_FAILED", err.Error()))
	}
	return c.JSON(http.StatusOK, response.SuccessResponse(execs))
}

// StreamProgress handles GET /api/tasks/:id/progress as a server-sent event
// stream. The stream ends after the terminal event (100 or -1) or when the
// client disconnects.
func (h *TaskHandler) StreamProgress(c echo.Context) error {
	id := c.Param("id")

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	sub := h.progress.Subscribe(id)
	defer h.progress.Unsubscribe(sub)

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-sub.Events():
			if !ok {
				return nil
			}
			fmt.Fprintf(res, "data: {\"taskId\":%q,\"progress\":%d,\"timestamp\":%q}\n\n",
				event.TaskID, event.Progress, event.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"))
			res.Flush()
			if event.Terminal() {
				return nil
			}
		}
	}
}

// Diagnose handles GET /api/servers/:server/diagnose
func (h *TaskHandler) Diagnose(c echo.Context) error {
	report := h.manager.Diagnose(c.Request().Context(), c.Param("server"), h.store, c.QueryParam("table"))
	return c.JSON(http.StatusOK, response.SuccessResponse(report))
}

// Health handles GET /api/health
func (h *TaskHandler) Health(c echo.Context) error {
	snapshot := h.monitor.Snapshot()
	if err := h.store.Health(c.Request().Context()); err != nil {
		snapshot.Healthy = false
	}
	return c.JSON(http.StatusOK, response.SuccessResponse(snapshot))
}

// RetryQueueStatus handles GET /api/retry-queue
func (h *TaskHandler) RetryQueueStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, response.SuccessResponse(map[string]any{
		"depth":   h.queue.Len(),
		"entries": h.queue.Entries(),
	}))
}

// ResetHealth handles POST /api/health/reset, the operator intervention that
// clears a persistent degradation.
func (h *TaskHandler) ResetHealth(c echo.Context) error {
	h.monitor.ResetCounters()
	return c.JSON(http.StatusOK, response.SuccessResponse(h.monitor.Snapshot()))
}
