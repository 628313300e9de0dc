// Package service contains the transfer orchestrator, the retry queue for
// connection-failed tasks and the database health monitor.
package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/heriberto777/core-app-sub000/internal/db"
	"github.com/heriberto777/core-app-sub000/internal/entity"
	"github.com/heriberto777/core-app-sub000/internal/logger"
	"github.com/heriberto777/core-app-sub000/internal/metrics"
	"github.com/heriberto777/core-app-sub000/internal/progress"
	"github.com/heriberto777/core-app-sub000/internal/promotion"
	"github.com/heriberto777/core-app-sub000/internal/repository"
	"github.com/heriberto777/core-app-sub000/internal/retry"
	"github.com/heriberto777/core-app-sub000/internal/tracker"
	"github.com/heriberto777/core-app-sub000/internal/validation"
)

const (
	outerBatchSize = 500
	innerBatchSize = 50

	// progressStep is the minimum advance before a new progress event is
	// emitted, except for the 99 ceiling and terminal events.
	progressStep = 5

	postUpdateChunkSize = 500

	defaultBatchConcurrency = 3
	interBatchPause         = 10 * time.Second
)

// FailureQueue receives tasks that failed for connection reasons.
type FailureQueue interface {
	Enqueue(taskID, reason string)
}

// HealthChecker gates batch processing on database reachability.
type HealthChecker interface {
	Healthy(ctx context.Context) bool
}

// Transfer drives one task end-to-end: lease acquisition, fetch,
// deduplicated batched insertion, post-transfer marking and reporting.
type Transfer struct {
	store    repository.Store
	manager  *db.Manager
	gateway  *db.Gateway
	tracker  *tracker.Tracker
	progress *progress.Channel
	metrics  *metrics.Registry
	log      *zap.SugaredLogger

	mu         sync.Mutex
	retryQueue FailureQueue
	health     HealthChecker

	batchConcurrency int
}

// NewTransfer creates the orchestrator with its collaborators.
func NewTransfer(
	store repository.Store,
	manager *db.Manager,
	gateway *db.Gateway,
	trk *tracker.Tracker,
	prog *progress.Channel,
	m *metrics.Registry,
	log *zap.SugaredLogger,
) *Transfer {
	return &Transfer{
		store:            store,
		manager:          manager,
		gateway:          gateway,
		tracker:          trk,
		progress:         prog,
		metrics:          m,
		log:              log,
		batchConcurrency: defaultBatchConcurrency,
	}
}

// SetRetryQueue wires the queue that receives connection-failed tasks.
func (t *Transfer) SetRetryQueue(q FailureQueue) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.retryQueue = q
}

// SetHealthChecker wires the health gate used between task batches.
func (t *Transfer) SetHealthChecker(h HealthChecker) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.health = h
}

// SetBatchConcurrency overrides how many tasks run in parallel in batch mode.
func (t *Transfer) SetBatchConcurrency(n int) {
	if n > 0 {
		t.batchConcurrency = n
	}
}

// runState is the orchestrator's working set for one task run, owned
// exclusively by the run for its lifetime.
type runState struct {
	task      *entity.Task
	exec      *tracker.Execution
	record    *entity.TaskExecution
	mergeKeys []string

	source *db.Lease
	target *db.Lease
	tx     *sql.Tx

	result       entity.TransferResult
	existingKeys map[string]struct{}
	postKeys     []any
	lastProgress int

	// pendingKeys are the merge keys added by the inner batch currently in
	// flight; they leave the existing-key set if the batch is discarded.
	pendingKeys []string
	checkpoint  batchCheckpoint
}

// batchCheckpoint snapshots the counters at the last committed inner batch
// so a discarded batch can roll the run back to durable state.
type batchCheckpoint struct {
	inserted        int
	duplicates      int
	totalDuplicates int
	dupRecords      int
	hasMore         bool
	postKeys        int
}

// mark snapshots the committed counters before an inner batch starts.
func (s *runState) mark() {
	s.checkpoint = batchCheckpoint{
		inserted:        s.result.Inserted,
		duplicates:      s.result.Duplicates,
		totalDuplicates: s.result.TotalDuplicates,
		dupRecords:      len(s.result.DuplicatedRecords),
		hasMore:         s.result.HasMoreDuplicates,
		postKeys:        len(s.postKeys),
	}
	s.pendingKeys = s.pendingKeys[:0]
}

// restore rolls the counters back to the last checkpoint and evicts the
// keys the discarded batch had added, so its rows insert again on retry.
func (s *runState) restore() {
	cp := s.checkpoint
	s.result.Inserted = cp.inserted
	s.result.Duplicates = cp.duplicates
	s.result.TotalDuplicates = cp.totalDuplicates
	s.result.DuplicatedRecords = s.result.DuplicatedRecords[:cp.dupRecords]
	s.result.HasMoreDuplicates = cp.hasMore
	s.postKeys = s.postKeys[:cp.postKeys]
	for _, k := range s.pendingKeys {
		delete(s.existingKeys, k)
	}
	s.pendingKeys = s.pendingKeys[:0]
}

// Run executes a task end-to-end and returns its outcome. Failures
// classified as connection-transient re-attempt the run from CONNECT within
// the retry budget and, after exhaustion, park the task in the retry queue.
func (t *Transfer) Run(ctx context.Context, taskID string) (*entity.TransferResult, error) {
	task, err := t.store.Tasks().GetByID(ctx, taskID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, entity.NewTransferError(entity.KindTaskNotFound, taskID, entity.ErrTaskNotFound)
		}
		return nil, err
	}
	if err := task.Runnable(); err != nil {
		return nil, entity.NewTransferError(entity.KindOf(err), task.Name, err)
	}

	taskCtx, exec, err := t.tracker.Register(ctx, taskID)
	if err != nil {
		return nil, err
	}
	t.metrics.SetRunningTasks("transfer", len(t.tracker.Running()))
	defer func() {
		t.tracker.Complete(taskID)
		t.metrics.SetRunningTasks("transfer", len(t.tracker.Running()))
	}()

	taskCtx = logger.WithTaskID(taskCtx, taskID)
	log := logger.ForTask(taskCtx, t.log)

	record := &entity.TaskExecution{
		TaskID:    task.ID,
		TaskName:  task.Name,
		StartedAt: entity.Now(),
		Phase:     entity.PhasePrepare,
		Status:    entity.StatusRunning,
	}
	if err := t.store.Executions().Append(taskCtx, record); err != nil {
		log.Warnw("failed to record execution start", "error", err)
	}

	if err := t.store.Tasks().UpdateStatus(taskCtx, task.ID, entity.StatusRunning, 0); err != nil {
		return nil, fmt.Errorf("failed to mark task running: %w", err)
	}
	t.emit(task.ID, 0)

	started := time.Now()
	state := &runState{task: task, exec: exec, record: record, mergeKeys: task.Ruleset.MergeKeys()}

	// Connection-transient failures re-run the whole attempt from CONNECT.
	policy := retry.DefaultPolicy(entity.IsConnectionLost)
	runErr := retry.Execute(taskCtx, policy, func() error {
		state.reset()
		return t.attempt(taskCtx, state, log)
	})

	return t.finish(taskCtx, state, started, runErr, log)
}

// reset clears per-attempt state so a re-attempt starts clean.
func (s *runState) reset() {
	s.result = entity.TransferResult{}
	s.existingKeys = nil
	s.postKeys = nil
	s.pendingKeys = nil
	s.checkpoint = batchCheckpoint{}
	s.lastProgress = 0
	s.tx = nil
}

// attempt runs the CONNECT..FINALIZE phases once.
func (t *Transfer) attempt(ctx context.Context, state *runState, log *zap.SugaredLogger) error {
	if err := cancelled(ctx); err != nil {
		return err
	}

	// CONNECT
	state.exec.SetPhase(entity.PhaseConnect)
	sourceServer, targetServer := state.task.SourceAndTarget()

	source, err := t.manager.Lease(ctx, sourceServer)
	if err != nil {
		return err
	}
	state.source = source
	defer source.Release()

	target, err := t.manager.Lease(ctx, targetServer)
	if err != nil {
		return err
	}
	state.target = target
	defer target.Release()

	defer func() {
		if state.tx != nil {
			_ = state.tx.Rollback()
			state.tx = nil
		}
	}()

	// FETCH
	state.exec.SetPhase(entity.PhaseFetch)
	if err := cancelled(ctx); err != nil {
		return err
	}

	query, args, err := db.BuildQuery(state.task.Query, state.task.Params)
	if err != nil {
		return entity.NewTransferError(entity.KindUnknown, "invalid task parameters", err)
	}
	fetchStarted := time.Now()
	rows, err := t.gateway.Query(ctx, source.Conn(), query, args)
	t.metrics.ObserveQuery(source.Server, "fetch", time.Since(fetchStarted))
	if err != nil {
		return err
	}
	state.result.Rows = len(rows)

	if len(rows) == 0 {
		// Success no-op: no transaction is opened against the target.
		state.exec.SetPhase(entity.PhaseFinalize)
		state.result.Success = true
		state.result.Message = "no rows matched the projection query"
		if count, err := t.gateway.CountRows(ctx, target.Conn(), state.task.DestTable); err == nil {
			state.result.InitialCount = count
			state.result.FinalCount = count
		}
		return nil
	}

	// PREPARE_DEST
	state.exec.SetPhase(entity.PhasePrepareDest)
	if err := cancelled(ctx); err != nil {
		return err
	}

	if state.task.ClearBeforeInsert {
		deleted, err := t.gateway.ClearTable(ctx, target.Conn(), state.task.DestTable)
		switch {
		case err == nil:
			log.Infow("destination cleared", "table", state.task.DestTable, "deleted", deleted)
		case db.IsTableNotFound(err):
			log.Warnw("destination table missing, treating as empty", "table", state.task.DestTable)
		default:
			return err
		}
	}

	if count, err := t.gateway.CountRows(ctx, target.Conn(), state.task.DestTable); err == nil {
		state.result.InitialCount = count
	} else {
		log.Warnw("initial count unavailable, assuming 0", "table", state.task.DestTable, "error", err)
	}

	// PROCESS
	state.exec.SetPhase(entity.PhaseProcess)
	if err := t.process(ctx, state, rows, log); err != nil {
		return err
	}

	// POST
	state.exec.SetPhase(entity.PhasePost)
	if err := t.postUpdate(ctx, state, log); err != nil {
		// A post-update failure is logged; the run still counts as
		// successful.
		log.Errorw("post-transfer update failed", "error", err)
		state.result.ErrorDetail = err.Error()
	}

	// FINALIZE
	state.exec.SetPhase(entity.PhaseFinalize)
	if state.tx != nil {
		if err := state.tx.Commit(); err != nil {
			state.tx = nil
			return db.WrapSQL("failed to commit target transaction", err)
		}
		state.tx = nil
	}

	if count, err := t.gateway.CountRows(ctx, target.Conn(), state.task.DestTable); err == nil {
		state.result.FinalCount = count
	} else {
		state.result.FinalCount = state.result.InitialCount + int64(state.result.Inserted)
	}

	state.result.Success = true
	state.result.Message = fmt.Sprintf("transferred %d of %d rows (%d duplicates)",
		state.result.Inserted, state.result.Rows, state.result.Duplicates)
	return nil
}

// process iterates the fetched rows in outer/inner batches, deduplicating
// against the pre-fetched key set. Each inner batch commits its own target
// transaction, the per-insert transactional unit: a failure discards at
// most the current inner batch.
func (t *Transfer) process(ctx context.Context, state *runState, rows []entity.Row, log *zap.SugaredLogger) error {
	task := state.task

	started := time.Now()
	existing, err := t.gateway.ExistingKeys(ctx, state.target.Conn(), task.DestTable, state.mergeKeys)
	t.metrics.ObserveQuery(state.target.Server, "existing-keys", time.Since(started))
	if err != nil {
		// Insert-time constraint errors still catch duplicates.
		log.Warnw("existing-key prefetch failed, relying on constraint errors", "error", err)
		existing = make(map[string]struct{})
	}
	state.existingKeys = existing

	if task.Promotion != nil {
		linked := promotion.Link(rows, task.Promotion, log)
		if !linked.Skipped {
			rows = linked.Rows
			if linked.Orphans > 0 {
				log.Warnw("promotion linking left orphan bonus rows", "orphans", linked.Orphans)
			}
		}
	}

	opts := validation.Options{AutoConvert: true, Truncate: true, Trim: true}
	total := len(rows)
	processed := 0

	for outer := 0; outer < total; outer += outerBatchSize {
		if err := cancelled(ctx); err != nil {
			return err
		}

		outerEnd := min(outer+outerBatchSize, total)
		for inner := outer; inner < outerEnd; inner += innerBatchSize {
			innerEnd := min(inner+innerBatchSize, outerEnd)
			if err := t.processInnerBatch(ctx, state, rows[inner:innerEnd], opts); err != nil {
				return err
			}
			processed += innerEnd - inner
		}

		t.emitBatchProgress(ctx, state, processed, total)
	}

	return nil
}

// processInnerBatch inserts one inner batch inside its own transaction. A
// lost connection discards at most this batch: the counters roll back to
// the last committed checkpoint, the keys it added leave the set, and the
// whole batch is retried once on a fresh session. Any other failure also
// restores the checkpoint so the reported counts reflect committed rows
// only.
func (t *Transfer) processInnerBatch(ctx context.Context, state *runState, batch []entity.Row, opts validation.Options) error {
	state.mark()

	err := t.insertBatch(ctx, state, batch, opts)
	if err != nil && entity.IsConnectionLost(err) {
		t.metrics.RecordReconnect(state.target.Server)
		state.restore()
		if rerr := t.reconnectTarget(ctx, state); rerr != nil {
			return rerr
		}
		state.mark()
		err = t.insertBatch(ctx, state, batch, opts)
	}
	if err != nil {
		state.restore()
		if state.tx != nil {
			_ = state.tx.Rollback()
			state.tx = nil
		}
		return err
	}

	if err := state.tx.Commit(); err != nil {
		state.tx = nil
		state.restore()
		return db.WrapSQL("failed to commit batch", err)
	}
	state.tx = nil
	state.pendingKeys = state.pendingKeys[:0]
	return nil
}

// insertBatch runs every row of a batch through processRow on the current
// transaction, opening one if none is in flight.
func (t *Transfer) insertBatch(ctx context.Context, state *runState, batch []entity.Row, opts validation.Options) error {
	if state.tx == nil {
		tx, err := t.beginTargetTx(ctx, state)
		if err != nil {
			return err
		}
		state.tx = tx
	}
	for _, row := range batch {
		if err := t.processRow(ctx, state, row, opts); err != nil {
			return err
		}
	}
	return nil
}

// processRow sanitizes, deduplicates and inserts a single row. Connection
// losses bubble up to the inner-batch retry.
func (t *Transfer) processRow(ctx context.Context, state *runState, row entity.Row, opts validation.Options) error {
	task := state.task

	clean, err := validation.ValidateRow(row, &task.Ruleset, opts)
	if err != nil {
		return entity.NewTransferError(entity.KindValidation, "row failed validation", err)
	}

	if m := task.PostUpdateMapping; m != nil && task.PostUpdateQuery != "" {
		keyField := m.DestField
		if keyField == "" {
			keyField = task.Ruleset.PrimaryKey()
		}
		if v := clean[keyField]; v != nil {
			state.postKeys = append(state.postKeys, v)
		}
	}

	mergeKey := clean.MergeKey(state.mergeKeys)
	if _, dup := state.existingKeys[mergeKey]; dup {
		t.recordDuplicate(state, clean, "pre-check")
		return nil
	}

	columns := insertColumns(clean, &task.Ruleset, opts.AllowExtraFields)
	started := time.Now()
	_, err = t.gateway.Insert(ctx, state.tx, task.DestTable, clean, columns)
	t.metrics.ObserveInsert(state.target.Server, time.Since(started))
	if err != nil {
		if entity.IsDuplicate(err) {
			t.recordDuplicate(state, clean, "unique constraint")
			return nil
		}
		return err
	}

	state.result.Inserted++
	state.existingKeys[mergeKey] = struct{}{}
	state.pendingKeys = append(state.pendingKeys, mergeKey)
	return nil
}

// reconnectTarget replaces the target session after a connection loss. The
// in-flight transaction is gone with the session; the next batch attempt
// opens a new one.
func (t *Transfer) reconnectTarget(ctx context.Context, state *runState) error {
	if state.tx != nil {
		_ = state.tx.Rollback() // the session is gone; rollback is best effort
		state.tx = nil
	}
	return t.manager.Refresh(ctx, state.target)
}

func (t *Transfer) beginTargetTx(ctx context.Context, state *runState) (*sql.Tx, error) {
	tx, err := state.target.Conn().BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, db.WrapSQL("failed to begin target transaction", err)
	}
	return tx, nil
}

// recordDuplicate accounts a skipped row and appends it to the bounded
// duplicate report.
func (t *Transfer) recordDuplicate(state *runState, row entity.Row, reason string) {
	state.result.Duplicates++
	state.result.TotalDuplicates++
	if len(state.result.DuplicatedRecords) < entity.MaxDuplicateRecords {
		state.result.DuplicatedRecords = append(state.result.DuplicatedRecords,
			entity.NewDuplicateRecord(row, state.mergeKeys, reason))
	} else {
		state.result.HasMoreDuplicates = true
	}
}

// insertColumns fixes the column order for an insert: schema fields first,
// sorted, then extras when retained.
func insertColumns(row entity.Row, rs *entity.ValidationRuleset, extras bool) []string {
	columns := make([]string, 0, len(row))
	for field := range rs.Fields {
		if _, ok := row[field]; ok {
			columns = append(columns, field)
		}
	}
	if extras {
		for field := range row {
			if _, ok := rs.Fields[field]; !ok {
				columns = append(columns, field)
			}
		}
	}
	sort.Strings(columns)
	return columns
}

// postUpdate marks transferred rows on the source in chunks, stripping the
// configured key prefix. Each chunk retries once after a reconnect.
func (t *Transfer) postUpdate(ctx context.Context, state *runState, log *zap.SugaredLogger) error {
	task := state.task
	if task.PostUpdateQuery == "" || task.PostUpdateMapping == nil || len(state.postKeys) == 0 {
		return nil
	}
	if err := cancelled(ctx); err != nil {
		return err
	}

	mapping := task.PostUpdateMapping
	keys := make([]any, 0, len(state.postKeys))
	for _, k := range state.postKeys {
		if mapping.RemovePrefix != "" {
			if s, ok := k.(string); ok {
				k = strings.TrimPrefix(s, mapping.RemovePrefix)
			}
		}
		keys = append(keys, k)
	}

	for start := 0; start < len(keys); start += postUpdateChunkSize {
		end := min(start+postUpdateChunkSize, len(keys))
		chunk := keys[start:end]

		param := entity.QueryParam{Field: mapping.SourceField, Operator: entity.OpIn, Value: chunk}
		query, args, err := db.BuildQuery(task.PostUpdateQuery, []entity.QueryParam{param})
		if err != nil {
			return entity.NewTransferError(entity.KindPostUpdate, "invalid post-update query", err)
		}

		_, execErr := state.source.Conn().ExecContext(ctx, query, args...)
		if execErr != nil && db.IsConnectionErr(execErr) {
			t.metrics.RecordReconnect(state.source.Server)
			if rerr := t.manager.Refresh(ctx, state.source); rerr != nil {
				return entity.NewTransferError(entity.KindPostUpdate, "source reconnect failed", rerr)
			}
			_, execErr = state.source.Conn().ExecContext(ctx, query, args...)
		}
		if execErr != nil {
			return entity.NewTransferError(entity.KindPostUpdate,
				fmt.Sprintf("post-update chunk %d-%d failed", start, end), execErr)
		}
		log.Debugw("post-update chunk applied", "from", start, "to", end)
	}

	return nil
}

// emitBatchProgress publishes progress after an outer batch when it advanced
// enough to matter.
func (t *Transfer) emitBatchProgress(ctx context.Context, state *runState, processed, total int) {
	p := processed * 100 / total
	if p > 99 {
		p = 99
	}
	if p-state.lastProgress >= progressStep || (p == 99 && state.lastProgress != 99) {
		state.lastProgress = p
		t.emit(state.task.ID, p)
		storeCtx, cancel := detachedStoreCtx(ctx)
		_ = t.store.Tasks().UpdateStatus(storeCtx, state.task.ID, entity.StatusRunning, p)
		cancel()
	}
}

// detachedStoreCtx derives a short-lived context for task-store writes that
// must survive cancellation of the run.
func detachedStoreCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
}

// finish persists the terminal status, emits the terminal event and routes
// connection failures to the retry queue.
func (t *Transfer) finish(ctx context.Context, state *runState, started time.Time, runErr error, log *zap.SugaredLogger) (*entity.TransferResult, error) {
	task := state.task
	record := state.record
	result := &state.result

	// Terminal writes must survive a cancelled run context.
	storeCtx, cancel := detachedStoreCtx(ctx)
	defer cancel()

	record.FinishedAt = entity.NowPtr()
	record.Rows = result.Rows
	record.Inserted = result.Inserted
	record.Duplicates = result.Duplicates
	record.Errors = result.Errors

	duration := time.Since(started)

	switch {
	case runErr == nil:
		record.Status = entity.StatusCompleted
		record.Outcome = result.Message
		_ = t.store.Tasks().UpdateStatus(storeCtx, task.ID, entity.StatusCompleted, 100)
		_ = t.store.Tasks().UpdateOutcome(storeCtx, task.ID, result.Message)
		t.emit(task.ID, 100)
		t.metrics.RecordTransfer(task.Name, "completed", duration, result.Inserted, result.Duplicates)

		sample := &entity.MetricSample{
			TaskID:     task.ID,
			DurationMs: duration.Milliseconds(),
			Rows:       result.Rows,
			RecordedAt: entity.Now(),
		}
		if secs := duration.Seconds(); secs > 0 {
			sample.RowsPerSecond = float64(result.Rows) / secs
		}
		_ = t.store.Metrics().Append(storeCtx, sample)

	case entity.IsCancelled(runErr):
		record.Status = entity.StatusCancelled
		record.Outcome = "cancelled"
		result.Success = false
		result.Message = "transfer cancelled"
		_ = t.store.Tasks().UpdateStatus(storeCtx, task.ID, entity.StatusCancelled, -1)
		_ = t.store.Tasks().UpdateOutcome(storeCtx, task.ID, "cancelled")
		t.emit(task.ID, -1)
		t.metrics.RecordTransfer(task.Name, "cancelled", duration, result.Inserted, result.Duplicates)

	default:
		kind := entity.KindOf(runErr)
		record.Status = entity.StatusFailed
		record.Outcome = runErr.Error()
		result.Success = false
		result.Message = "transfer failed"
		result.ErrorDetail = runErr.Error()
		_ = t.store.Tasks().UpdateStatus(storeCtx, task.ID, entity.StatusFailed, -1)
		_ = t.store.Tasks().UpdateOutcome(storeCtx, task.ID, runErr.Error())
		t.emit(task.ID, -1)
		t.metrics.RecordTransfer(task.Name, "failed", duration, result.Inserted, result.Duplicates)
		t.metrics.RecordError(string(kind))

		if kind == entity.KindConnectionLost {
			t.mu.Lock()
			queue := t.retryQueue
			t.mu.Unlock()
			if queue != nil {
				queue.Enqueue(task.ID, runErr.Error())
				log.Infow("task routed to retry queue", "reason", runErr.Error())
			}
		}
	}

	if err := t.store.Executions().Update(storeCtx, record); err != nil {
		log.Warnw("failed to record execution outcome", "error", err)
	}

	if runErr != nil {
		return result, runErr
	}
	return result, nil
}

// emit publishes one progress event.
func (t *Transfer) emit(taskID string, p int) {
	t.progress.Publish(entity.ProgressEvent{
		TaskID:    taskID,
		Progress:  p,
		Timestamp: time.Now().UTC(),
	})
}

// RunBatch executes every active task of the given kind, up to the
// configured number in parallel, pausing between batches with a health
// check before each one.
func (t *Transfer) RunBatch(ctx context.Context, kind entity.ExecutionKind) error {
	tasks, err := t.store.Tasks().GetActive(ctx, kind)
	if err != nil {
		return fmt.Errorf("failed to load active tasks: %w", err)
	}
	if len(tasks) == 0 {
		return nil
	}

	t.mu.Lock()
	health := t.health
	t.mu.Unlock()

	for start := 0; start < len(tasks); start += t.batchConcurrency {
		if err := cancelled(ctx); err != nil {
			return err
		}
		if start > 0 {
			select {
			case <-time.After(interBatchPause):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if health != nil && !health.Healthy(ctx) {
			t.log.Warnw("databases unhealthy, stopping batch run", "remaining", len(tasks)-start)
			return entity.ErrUnavailable
		}

		end := min(start+t.batchConcurrency, len(tasks))
		var wg sync.WaitGroup
		for _, task := range tasks[start:end] {
			wg.Add(1)
			go func(id, name string) {
				defer wg.Done()
				if _, err := t.Run(ctx, id); err != nil {
					t.log.Errorw("batch task failed", "task", name, "error", err)
				}
			}(task.ID, task.Name)
		}
		wg.Wait()
	}

	return nil
}

// cancelled converts context cancellation into the taxonomy.
func cancelled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return entity.NewTransferError(entity.KindCancelled, "task cancelled", err)
	}
	return nil
}
