// Package batch runs the naming pipeline over an ordered list of documents.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/andydreyson/v0-safetydatas-sub001/constants"
	"github.com/andydreyson/v0-safetydatas-sub001/internal/common"
	"github.com/andydreyson/v0-safetydatas-sub001/internal/entity"
	"github.com/andydreyson/v0-safetydatas-sub001/internal/pipeline"
)

var (
	ErrEmptyBatch          = errors.New("batch: no documents")
	ErrMissingDocumentID   = errors.New("batch: document without id")
	ErrDuplicateDocumentID = errors.New("batch: duplicate document id")
)

// Pipeline is implemented by *pipeline.Orchestrator.
type Pipeline interface {
	Run(ctx context.Context, doc entity.Document) pipeline.Result
}

// Recorder is told about every finished document, e.g. to persist it.
// Errors are logged and never stop the batch.
type Recorder interface {
	Record(ctx context.Context, batchID uuid.UUID, doc entity.Document, res pipeline.Result) error
}

type Runner struct {
	pipeline   Pipeline
	delay      time.Duration
	workers    int
	docTimeout time.Duration
	recorder   Recorder
	logger     *slog.Logger
}

type Option func(*Runner)

// WithDelay sets the pause between documents (sequential) or the limiter interval (pool).
func WithDelay(d time.Duration) Option { return func(r *Runner) { r.delay = d } }

// WithWorkers runs up to n documents at once, paced by a token bucket instead of a fixed sleep.
func WithWorkers(n int) Option { return func(r *Runner) { r.workers = n } }

// WithDocumentTimeout bounds a single document's run.
func WithDocumentTimeout(d time.Duration) Option { return func(r *Runner) { r.docTimeout = d } }

func WithRecorder(rec Recorder) Option { return func(r *Runner) { r.recorder = rec } }

func WithLogger(l *slog.Logger) Option { return func(r *Runner) { r.logger = l } }

func NewRunner(p Pipeline, opts ...Option) *Runner {
	r := &Runner{pipeline: p, delay: constants.DefaultBatchDelay, workers: 1}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.workers < 1 {
		r.workers = 1
	}
	if r.delay < 0 {
		r.delay = 0
	}
	return r
}

// Run processes docs and returns one entry per document, in input order.
// Only contract violations return an error; per-document problems live in the entries.
func (r *Runner) Run(ctx context.Context, docs []entity.Document) (*Outcome, error) {
	if err := validate(docs); err != nil {
		return nil, err
	}
	start := time.Now()
	out := &Outcome{BatchID: uuid.New(), Entries: make([]Entry, len(docs))}

	r.logger.Info("batch.start", "batch_id", out.BatchID, "documents", len(docs), "workers", r.workers, "delay_ms", r.delay.Milliseconds())

	if r.workers > 1 {
		r.runPool(ctx, out, docs)
	} else {
		r.runSequential(ctx, out, docs)
	}

	out.tally()
	out.Duration = time.Since(start)
	r.logger.Info("batch.done",
		"batch_id", out.BatchID,
		"succeeded", out.Succeeded,
		"no_result", out.NoResult,
		"failed", out.Failed,
		"elapsed_ms", out.Duration.Milliseconds(),
	)
	return out, nil
}

func (r *Runner) runSequential(ctx context.Context, out *Outcome, docs []entity.Document) {
	for i, doc := range docs {
		if err := ctx.Err(); err != nil {
			r.skipFrom(out, docs, i, err)
			return
		}
		out.Entries[i] = r.runOne(ctx, out.BatchID, doc)

		if i < len(docs)-1 && r.delay > 0 {
			t := time.NewTimer(r.delay)
			select {
			case <-ctx.Done():
				t.Stop()
				r.skipFrom(out, docs, i+1, ctx.Err())
				return
			case <-t.C:
			}
		}
	}
}

func (r *Runner) runPool(ctx context.Context, out *Outcome, docs []entity.Document) {
	limit := rate.Inf
	if r.delay > 0 {
		limit = rate.Every(r.delay)
	}
	limiter := rate.NewLimiter(limit, 1)

	var g errgroup.Group
	g.SetLimit(r.workers)
	for i, doc := range docs {
		i, doc := i, doc
		g.Go(func() error {
			if err := limiter.Wait(ctx); err != nil {
				out.Entries[i] = skipped(doc, err)
				return nil
			}
			out.Entries[i] = r.runOne(ctx, out.BatchID, doc)
			return nil
		})
	}
	_ = g.Wait()
}

func (r *Runner) runOne(ctx context.Context, batchID uuid.UUID, doc entity.Document) Entry {
	runCtx, cancel := common.WithTimeout(ctx, r.docTimeout)
	defer cancel()
	runCtx = common.WithRequestID(runCtx, batchID.String()+"/"+doc.ID)

	res := r.pipeline.Run(runCtx, doc)
	if res.DocumentID == "" {
		res.DocumentID = doc.ID
	}
	if r.recorder != nil {
		if err := r.recorder.Record(ctx, batchID, doc, res); err != nil {
			r.logger.Warn("batch.record_failed", "batch_id", batchID, "doc_id", doc.ID, "error", err)
		}
	}
	return Entry{Document: doc, Result: res}
}

func (r *Runner) skipFrom(out *Outcome, docs []entity.Document, from int, err error) {
	r.logger.Warn("batch.cancelled", "batch_id", out.BatchID, "remaining", len(docs)-from, "error", err)
	for j := from; j < len(docs); j++ {
		out.Entries[j] = skipped(docs[j], err)
	}
}

func skipped(doc entity.Document, err error) Entry {
	return Entry{Document: doc, Result: pipeline.Result{
		DocumentID: doc.ID,
		Status:     constants.StatusFailed,
		Stage:      constants.StageFailed,
		FailedAt:   constants.StageStart,
		Err:        fmt.Errorf("not started: %w", err),
	}}
}

func validate(docs []entity.Document) error {
	if len(docs) == 0 {
		return ErrEmptyBatch
	}
	seen := make(map[string]struct{}, len(docs))
	for i, d := range docs {
		if d.ID == "" {
			return fmt.Errorf("%w (index %d)", ErrMissingDocumentID, i)
		}
		if _, dup := seen[d.ID]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateDocumentID, d.ID)
		}
		seen[d.ID] = struct{}{}
	}
	return nil
}
