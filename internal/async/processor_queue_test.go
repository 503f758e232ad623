package async

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andydreyson/v0-safetydatas-sub001/constants"
	"github.com/andydreyson/v0-safetydatas-sub001/internal/entity"
	"github.com/andydreyson/v0-safetydatas-sub001/internal/pipeline"
	"github.com/andydreyson/v0-safetydatas-sub001/internal/repository"
)

type pipeFunc func(ctx context.Context, doc entity.Document) pipeline.Result

func (f pipeFunc) Run(ctx context.Context, doc entity.Document) pipeline.Result { return f(ctx, doc) }

type recorder struct {
	mu   sync.Mutex
	docs []string
}

func (r *recorder) Record(_ context.Context, batchID uuid.UUID, doc entity.Document, _ pipeline.Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs = append(r.docs, doc.ID)
	return nil
}

type priorFunc func(ctx context.Context, hash string) (*entity.ExtractionRun, error)

func (f priorFunc) FindByHash(ctx context.Context, hash string) (*entity.ExtractionRun, error) {
	return f(ctx, hash)
}

func named(doc entity.Document) pipeline.Result {
	return pipeline.Result{DocumentID: doc.ID, Name: "Name of " + doc.ID, Status: constants.StatusFound, Stage: constants.StageDone}
}

func TestProcessorQueue_ProcessesAndDrains(t *testing.T) {
	var (
		mu      sync.Mutex
		results = map[string]pipeline.Result{}
		rec     = &recorder{}
	)
	q := NewProcessorQueue(pipeFunc(func(_ context.Context, d entity.Document) pipeline.Result {
		time.Sleep(5 * time.Millisecond)
		return named(d)
	}), nil,
		WithWorkers(2),
		WithRecorder(rec),
		WithHandler(func(j Job, res pipeline.Result) {
			mu.Lock()
			results[j.Document.ID] = res
			mu.Unlock()
		}),
	)

	for _, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, q.Enqueue(context.Background(), Job{Document: entity.Document{ID: id}}))
	}
	q.Shutdown(context.Background())

	assert.Len(t, results, 4)
	assert.Equal(t, "Name of c", results["c"].Name)
	assert.ElementsMatch(t, []string{"a", "b", "c", "d"}, rec.docs)

	err := q.Enqueue(context.Background(), Job{Document: entity.Document{ID: "late"}})
	assert.ErrorIs(t, err, ErrQueueClosed)
	q.Shutdown(context.Background())
}

func TestProcessorQueue_JobTimeout(t *testing.T) {
	done := make(chan pipeline.Result, 1)
	q := NewProcessorQueue(pipeFunc(func(ctx context.Context, d entity.Document) pipeline.Result {
		<-ctx.Done()
		return pipeline.Result{DocumentID: d.ID, Status: constants.StatusFailed, Stage: constants.StageFailed, Err: ctx.Err()}
	}), nil, WithWorkers(1), WithProcessTimeout(20*time.Millisecond),
		WithHandler(func(_ Job, res pipeline.Result) { done <- res }))
	defer q.Shutdown(context.Background())

	require.NoError(t, q.Enqueue(context.Background(), Job{Document: entity.Document{ID: "slow"}}))
	select {
	case res := <-done:
		assert.Equal(t, constants.StatusFailed, res.Status)
		assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
	case <-time.After(2 * time.Second):
		t.Fatal("job did not time out")
	}
}

func TestProcessorQueue_SkipsKnownContent(t *testing.T) {
	var calls atomic.Int32
	name := "Propane"
	prior := priorFunc(func(_ context.Context, hash string) (*entity.ExtractionRun, error) {
		switch hash {
		case "known":
			return &entity.ExtractionRun{DocumentID: "old.pdf", Name: &name, Method: constants.MethodModel}, nil
		case "broken":
			return nil, errors.New("db down")
		}
		return nil, repository.ErrNotFound
	})

	var (
		mu  sync.Mutex
		got = map[string]pipeline.Result{}
	)
	q := NewProcessorQueue(pipeFunc(func(_ context.Context, d entity.Document) pipeline.Result {
		calls.Add(1)
		return named(d)
	}), nil, WithWorkers(1), WithPriorLookup(prior),
		WithHandler(func(j Job, res pipeline.Result) {
			mu.Lock()
			got[j.Document.ID] = res
			mu.Unlock()
		}))

	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, Job{Document: entity.Document{ID: "dup", ContentHash: "known"}}))
	require.NoError(t, q.Enqueue(ctx, Job{Document: entity.Document{ID: "forced", ContentHash: "known"}, Force: true}))
	require.NoError(t, q.Enqueue(ctx, Job{Document: entity.Document{ID: "new", ContentHash: "fresh"}}))
	require.NoError(t, q.Enqueue(ctx, Job{Document: entity.Document{ID: "lookup-error", ContentHash: "broken"}}))
	q.Shutdown(ctx)

	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, "Propane", got["dup"].Name)
	assert.Equal(t, constants.MethodModel, got["dup"].Method)
	assert.Equal(t, "Name of forced", got["forced"].Name)
	assert.Equal(t, "Name of lookup-error", got["lookup-error"].Name)
}

func TestProcessorQueue_EnqueueBackpressureHonoursContext(t *testing.T) {
	release := make(chan struct{})
	q := NewProcessorQueue(pipeFunc(func(_ context.Context, d entity.Document) pipeline.Result {
		<-release
		return named(d)
	}), nil, WithWorkers(1), WithQueueSize(1))

	bg := context.Background()
	require.NoError(t, q.Enqueue(bg, Job{Document: entity.Document{ID: "running"}}))
	// wait for the worker to take the first job so the buffer slot frees up
	require.Eventually(t, func() bool { return len(q.ch) == 0 }, time.Second, time.Millisecond)
	require.NoError(t, q.Enqueue(bg, Job{Document: entity.Document{ID: "buffered"}}))

	ctx, cancel := context.WithTimeout(bg, 20*time.Millisecond)
	defer cancel()
	err := q.Enqueue(ctx, Job{Document: entity.Document{ID: "blocked"}})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	q.Shutdown(bg)
}
