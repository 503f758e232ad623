package async

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/andydreyson/v0-safetydatas-sub001/constants"
	"github.com/andydreyson/v0-safetydatas-sub001/internal/batch"
	"github.com/andydreyson/v0-safetydatas-sub001/internal/common"
	"github.com/andydreyson/v0-safetydatas-sub001/internal/entity"
	"github.com/andydreyson/v0-safetydatas-sub001/internal/pipeline"
	"github.com/andydreyson/v0-safetydatas-sub001/internal/repository"
)

// PriorLookup finds an earlier successful run for the same content.
type PriorLookup interface {
	FindByHash(ctx context.Context, contentHash string) (*entity.ExtractionRun, error)
}

type ProcessorQueue struct {
	pipeline batch.Pipeline
	recorder batch.Recorder
	prior    PriorLookup
	onDone   Handler
	logger   *slog.Logger
	workers  int
	timeout  time.Duration

	ch   chan Job
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.Mutex
	closed bool
}

type Option func(*ProcessorQueue)

func WithWorkers(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}
func WithQueueSize(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}
func WithProcessTimeout(d time.Duration) Option {
	return func(q *ProcessorQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

// WithRecorder persists every processed job.
func WithRecorder(r batch.Recorder) Option { return func(q *ProcessorQueue) { q.recorder = r } }

// WithPriorLookup skips documents whose content was already named, unless the job is forced.
func WithPriorLookup(p PriorLookup) Option { return func(q *ProcessorQueue) { q.prior = p } }

func WithHandler(h Handler) Option { return func(q *ProcessorQueue) { q.onDone = h } }

func NewProcessorQueue(p batch.Pipeline, logger *slog.Logger, opts ...Option) *ProcessorQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &ProcessorQueue{
		pipeline: p,
		logger:   logger,
		workers:  2,
		timeout:  3 * time.Minute,
		ch:       make(chan Job, 256),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *ProcessorQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Info("worker started", "worker_id", workerID)

				for job := range q.ch {
					q.process(workerID, job)
				}

				q.logger.Info("worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (q *ProcessorQueue) process(workerID int, job Job) {
	ctx, cancel := common.WithTimeout(context.Background(), q.timeout)
	defer cancel()
	if job.TraceID != "" {
		ctx = common.WithRequestID(ctx, job.TraceID)
	}
	doc := job.Document

	if !job.Force && q.prior != nil && doc.ContentHash != "" {
		prev, err := q.prior.FindByHash(ctx, doc.ContentHash)
		switch {
		case err == nil && prev.Name != nil:
			q.logger.Info("content already named, skipping", "worker_id", workerID, "doc_id", doc.ID,
				"name", *prev.Name, "previous_doc_id", prev.DocumentID)
			if q.onDone != nil {
				q.onDone(job, pipeline.Result{
					DocumentID: doc.ID, Name: *prev.Name, Status: constants.StatusFound,
					Stage: constants.StageDone, Method: prev.Method,
				})
			}
			return
		case err != nil && !errors.Is(err, repository.ErrNotFound):
			q.logger.Warn("prior run lookup failed", "doc_id", doc.ID, "error", err)
		}
	}

	res := q.pipeline.Run(ctx, doc)
	if res.Found() {
		q.logger.Info("processed document", "worker_id", workerID, "doc_id", doc.ID, "name", res.Name,
			"queued_ms", time.Since(job.SubmittedAt).Milliseconds())
	} else {
		q.logger.Warn("no name for document", "worker_id", workerID, "doc_id", doc.ID,
			"status", res.Status, "error", res.ErrorMessage())
	}

	if q.recorder != nil {
		if err := q.recorder.Record(ctx, uuid.Nil, doc, res); err != nil {
			q.logger.Error("record run failed", "doc_id", doc.ID, "error", err)
		}
	}
	if q.onDone != nil {
		q.onDone(job, res)
	}
}

// Enqueue blocks while the queue is full until ctx ends.
func (q *ProcessorQueue) Enqueue(ctx context.Context, job Job) error {
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now()
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.logger.Warn("cannot enqueue: queue is shutting down", "doc_id", job.Document.ID)
		return ErrQueueClosed
	}
	select {
	case q.ch <- job:
		q.logger.Info("queued document", "doc_id", job.Document.ID, "force", job.Force)
		return nil
	default:
	}
	q.logger.Warn("queue full, applying backpressure", "doc_id", job.Document.ID)
	select {
	case q.ch <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops intake and waits for queued jobs until ctx ends.
func (q *ProcessorQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("shutdown interrupted by context")
	case <-done:
		q.logger.Info("queue drained, shutdown complete")
	}
}

var _ Queue = (*ProcessorQueue)(nil)
