package pipeline

import (
	"time"

	"github.com/andydreyson/v0-safetydatas-sub001/constants"
	"github.com/andydreyson/v0-safetydatas-sub001/internal/entity"
)

// Result is the whole outcome of one run. Name is set only when Status is FOUND.
type Result struct {
	DocumentID string           `json:"document_id"`
	Name       string           `json:"name,omitempty"`
	Status     constants.Status `json:"status"`
	Stage      constants.Stage  `json:"stage"`               // DONE or FAILED
	FailedAt   constants.Stage  `json:"failed_at,omitempty"` // stage active when the run failed
	Method     string           `json:"method,omitempty"`    // where the text or the name came from
	Attempts   []entity.Attempt `json:"attempts,omitempty"`
	Err        error            `json:"-"` // diagnostic only, never a reason to abort a caller
	Duration   time.Duration    `json:"duration"`
}

func (r Result) Found() bool { return r.Status == constants.StatusFound && r.Name != "" }

// NamePtr returns the name or nil when there is none.
func (r Result) NamePtr() *string {
	if !r.Found() {
		return nil
	}
	n := r.Name
	return &n
}

// ErrorMessage returns Err as text, or "" when there is none.
func (r Result) ErrorMessage() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}
