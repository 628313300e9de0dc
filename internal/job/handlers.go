package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/heriberto777/core-app-sub000/internal/entity"
	"github.com/heriberto777/core-app-sub000/internal/service"
)

// Handlers manages job execution handlers
type Handlers struct {
	transfer *service.Transfer
	log      *zap.SugaredLogger
}

// NewHandlers creates a new job handlers instance
func NewHandlers(transfer *service.Transfer, log *zap.SugaredLogger) *Handlers {
	return &Handlers{transfer: transfer, log: log}
}

// RegisterHandlers registers all job handlers with the Asynq mux
func (h *Handlers) RegisterHandlers(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeTransferRun, h.HandleTransferRun)
	mux.HandleFunc(TypeTransferScheduled, h.HandleScheduledSweep)
}

// HandleTransferRun executes one transfer task.
func (h *Handlers) HandleTransferRun(ctx context.Context, t *asynq.Task) error {
	var payload TransferRunPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", asynq.SkipRetry)
	}

	h.log.Infow("executing transfer", "task_id", payload.TaskID)

	result, err := h.transfer.Run(ctx, payload.TaskID)
	if err != nil {
		if errors.Is(err, entity.ErrAlreadyRunning) {
			h.log.Warnw("transfer already in flight, skipping", "task_id", payload.TaskID)
			return nil
		}
		// The orchestrator has already classified, persisted and, when
		// appropriate, parked the failure; the broker must not retry.
		h.log.Errorw("transfer failed", "task_id", payload.TaskID, "error", err)
		return nil
	}

	h.log.Infow("transfer completed",
		"task_id", payload.TaskID,
		"rows", result.Rows,
		"inserted", result.Inserted,
		"duplicates", result.Duplicates)
	return nil
}

// HandleScheduledSweep runs every active auto task in batch mode.
func (h *Handlers) HandleScheduledSweep(ctx context.Context, t *asynq.Task) error {
	h.log.Infow("scheduled transfer sweep starting")

	if err := h.transfer.RunBatch(ctx, entity.KindAuto); err != nil {
		h.log.Errorw("scheduled sweep aborted", "error", err)
		return nil
	}

	h.log.Infow("scheduled transfer sweep finished")
	return nil
}
