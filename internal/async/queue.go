package async

import (
	"context"
	"errors"
	"time"

	"github.com/andydreyson/v0-safetydatas-sub001/internal/entity"
	"github.com/andydreyson/v0-safetydatas-sub001/internal/pipeline"
)

var ErrQueueClosed = errors.New("queue is shutting down")

// Job is one document waiting to be named.
type Job struct {
	Document    entity.Document
	Force       bool // run even if the same content was already named
	SubmittedAt time.Time
	TraceID     string
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}

// Handler is called once per finished job, from the worker goroutine.
type Handler func(job Job, res pipeline.Result)
