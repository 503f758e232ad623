package batch

import (
	"time"

	"github.com/google/uuid"

	"github.com/andydreyson/v0-safetydatas-sub001/constants"
	"github.com/andydreyson/v0-safetydatas-sub001/internal/entity"
	"github.com/andydreyson/v0-safetydatas-sub001/internal/pipeline"
)

type Entry struct {
	Document entity.Document
	Result   pipeline.Result
}

// Outcome holds one entry per input document, in input order.
type Outcome struct {
	BatchID   uuid.UUID
	Entries   []Entry
	Succeeded int
	NoResult  int
	Failed    int
	Duration  time.Duration
}

func (o *Outcome) Len() int { return len(o.Entries) }

// Get returns the result for a document id.
func (o *Outcome) Get(id string) (pipeline.Result, bool) {
	for _, e := range o.Entries {
		if e.Document.ID == id {
			return e.Result, true
		}
	}
	return pipeline.Result{}, false
}

// Names maps document id to name, nil where no name was found.
func (o *Outcome) Names() map[string]*string {
	m := make(map[string]*string, len(o.Entries))
	for _, e := range o.Entries {
		m[e.Document.ID] = e.Result.NamePtr()
	}
	return m
}

func (o *Outcome) tally() {
	o.Succeeded, o.NoResult, o.Failed = 0, 0, 0
	for _, e := range o.Entries {
		switch e.Result.Status {
		case constants.StatusFound:
			o.Succeeded++
		case constants.StatusNoResult:
			o.NoResult++
		default:
			o.Failed++
		}
	}
}
