// Package worker runs queued site generations in the background.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/sitecraft/internal/generator"
	"github.com/kalambet/sitecraft/internal/scheduler"
	"github.com/kalambet/sitecraft/internal/site"
	"github.com/kalambet/sitecraft/internal/storage"
)

// JobStore abstracts the job queue and session bookkeeping.
type JobStore interface {
	EnqueueJob(ctx context.Context, job storage.Job) error
	ClaimNextJob(ctx context.Context, types []string) (*storage.Job, error)
	CompleteJob(ctx context.Context, id string) error
	FailJob(ctx context.Context, id string, errMsg string) error
	GetSession(ctx context.Context, id string) (storage.Session, error)
	UpdateSessionStatus(ctx context.Context, id, status string) error
	FinishSession(ctx context.Context, id, status, summaryJSON string) error
	RequeueStaleJobs(ctx context.Context, before time.Time) (int, error)
}

// Runner generates a plan for a session.
type Runner interface {
	Run(ctx context.Context, sessionID string, plan []string, gc generator.Context) scheduler.Summary
}

type generatePayload struct {
	SessionID string `json:"session_id"`
}

// Enqueue schedules generation of an existing session.
func Enqueue(ctx context.Context, store JobStore, sessionID string) (string, error) {
	payload, err := json.Marshal(generatePayload{SessionID: sessionID})
	if err != nil {
		return "", err
	}
	id := uuid.New().String()
	// A generation run never fails as a whole, so a failed job is not retried.
	err = store.EnqueueJob(ctx, storage.Job{
		ID:          id,
		Type:        storage.JobGenerateSite,
		PayloadJSON: string(payload),
		MaxAttempts: 1,
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// Worker processes generate_site jobs from the SQLite job queue. One worker
// per process keeps generation serial across sessions.
type Worker struct {
	store      JobStore
	runner     Runner
	poll       time.Duration
	staleAfter time.Duration
	logger     *slog.Logger
}

// DefaultStaleAfter is how long a job may stay running before a starting
// worker assumes its owner died and requeues it.
const DefaultStaleAfter = 15 * time.Minute

// New creates a Worker. If pollInterval is <= 0, it defaults to 500ms.
func New(store JobStore, runner Runner, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:      store,
		runner:     runner,
		poll:       pollInterval,
		staleAfter: DefaultStaleAfter,
		logger:     slog.Default().With("component", "worker"),
	}
}

// RequeueStale returns jobs left running by a crashed process to the queue.
func (w *Worker) RequeueStale(ctx context.Context) (int, error) {
	n, err := w.store.RequeueStaleJobs(ctx, time.Now().Add(-w.staleAfter))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		w.logger.Info("requeued stale jobs", "count", n, "stale_after", w.staleAfter)
	}
	return n, nil
}

// Run requeues stale jobs, then polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if _, err := w.RequeueStale(ctx); err != nil {
		w.logger.Error("requeueing stale jobs failed", "error", err)
	}
	for {
		if ctx.Err() != nil {
			return nil
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single generate_site job. It reports
// whether a job was processed, regardless of its outcome.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob(ctx, []string{storage.JobGenerateSite})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	log := w.logger.With("job_id", job.ID)
	if err := w.process(ctx, job); err != nil {
		log.Warn("job failed", "error", err)
		// Bookkeeping outlives shutdown of the run.
		bctx := context.WithoutCancel(ctx)
		if failErr := w.store.FailJob(bctx, job.ID, err.Error()); failErr != nil {
			log.Error("failed to mark job as failed", "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(context.WithoutCancel(ctx), job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

func (w *Worker) process(ctx context.Context, job *storage.Job) error {
	var payload generatePayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}
	if payload.SessionID == "" {
		return errors.New("payload has no session id")
	}

	sess, err := w.store.GetSession(ctx, payload.SessionID)
	if err != nil {
		return fmt.Errorf("loading session %s: %w", payload.SessionID, err)
	}

	var req site.GenerationRequest
	var plan []string
	if err := json.Unmarshal([]byte(sess.RequestJSON), &req); err != nil {
		w.markFailed(ctx, sess.ID, err)
		return fmt.Errorf("decoding request of session %s: %w", sess.ID, err)
	}
	if err := json.Unmarshal([]byte(sess.PlanJSON), &plan); err != nil {
		w.markFailed(ctx, sess.ID, err)
		return fmt.Errorf("decoding plan of session %s: %w", sess.ID, err)
	}

	if err := w.store.UpdateSessionStatus(ctx, sess.ID, storage.StatusGenerating); err != nil {
		return fmt.Errorf("marking session generating: %w", err)
	}

	sum := w.runner.Run(ctx, sess.ID, plan, generator.Context{Request: req, Plan: plan})

	status := storage.StatusCompleted
	if sum.Cancelled {
		status = storage.StatusFailed
	}
	summaryJSON, err := json.Marshal(sum)
	if err != nil {
		return fmt.Errorf("encoding summary: %w", err)
	}
	if err := w.store.FinishSession(context.WithoutCancel(ctx), sess.ID, status, string(summaryJSON)); err != nil {
		return fmt.Errorf("finishing session: %w", err)
	}
	return nil
}

func (w *Worker) markFailed(ctx context.Context, sessionID string, cause error) {
	summary, _ := json.Marshal(map[string]string{"error": cause.Error()})
	if err := w.store.FinishSession(context.WithoutCancel(ctx), sessionID, storage.StatusFailed, string(summary)); err != nil {
		w.logger.Error("marking session failed", "session_id", sessionID, "error", err)
	}
}
