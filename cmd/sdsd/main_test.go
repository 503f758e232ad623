package main

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/andydreyson/v0-safetydatas-sub001/internal/async"
	"github.com/andydreyson/v0-safetydatas-sub001/internal/entity"
)

type fakeScanner struct{}

func (fakeScanner) Describe(path string) (entity.Document, error) {
	if path == "bad.exe" {
		return entity.Document{}, errors.New("unsupported")
	}
	return entity.Document{ID: path, Path: path}, nil
}

type fakeQueue struct {
	mu   sync.Mutex
	jobs []async.Job
}

func (q *fakeQueue) Enqueue(_ context.Context, job async.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *fakeQueue) Shutdown(context.Context) {}

func TestServeEvents(t *testing.T) {
	events := make(chan string, 3)
	errs := make(chan error, 1)
	events <- "a.pdf"
	events <- "bad.exe"
	events <- "b.png"
	errs <- errors.New("overflow")
	close(errs)
	close(events)

	q := &fakeQueue{}
	done := make(chan struct{})
	go func() {
		serveEvents(context.Background(), events, errs, fakeScanner{}, q, slog.Default())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("serveEvents did not stop after the watcher closed")
	}
	if assert.Len(t, q.jobs, 2) {
		assert.Equal(t, "a.pdf", q.jobs[0].Document.ID)
		assert.Equal(t, "b.png", q.jobs[1].Document.ID)
		assert.NotEmpty(t, q.jobs[0].TraceID)
		assert.NotEqual(t, q.jobs[0].TraceID, q.jobs[1].TraceID)
	}
}

func TestServeEvents_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	serveEvents(ctx, make(chan string), make(chan error), fakeScanner{}, &fakeQueue{}, slog.Default())
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"/a", "/b"}, splitList(" /a,,/b ,"))
	assert.Nil(t, splitList(""))
}
