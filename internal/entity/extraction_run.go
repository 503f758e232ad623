package entity

import (
	"time"

	"github.com/google/uuid"
)

// ExtractionRun is the caller-side record of one pipeline run, as stored by the repository.
type ExtractionRun struct {
	ID           uuid.UUID  `json:"id"`
	BatchID      *uuid.UUID `json:"batch_id,omitempty"`
	DocumentID   string     `json:"document_id"`
	SourcePath   string     `json:"source_path,omitempty"`
	ContentHash  string     `json:"content_hash,omitempty"`
	Status       string     `json:"status"`
	Stage        string     `json:"stage"`
	Method       string     `json:"method,omitempty"`
	Name         *string    `json:"name,omitempty"`
	ErrorMessage *string    `json:"error_message,omitempty"`
	DurationMS   int64      `json:"duration_ms"`
	CreatedAt    time.Time  `json:"created_at"`
}
