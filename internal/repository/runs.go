package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/andydreyson/v0-safetydatas-sub001/constants"
	"github.com/andydreyson/v0-safetydatas-sub001/internal/entity"
	"github.com/andydreyson/v0-safetydatas-sub001/internal/pipeline"
)

const runsTable = "extraction_runs"

var ErrNotFound = errors.New("run not found")

var runColumns = []string{
	"id", "batch_id", "document_id", "source_path", "content_hash",
	"status", "stage", "method", "name", "error_message", "duration_ms", "created_at",
}

// RunStore keeps the caller-side history of pipeline runs.
type RunStore struct {
	drv    *entsql.Driver
	logger *slog.Logger
}

func NewRunStore(drv *entsql.Driver, logger *slog.Logger) *RunStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &RunStore{drv: drv, logger: logger}
}

func (s *RunStore) builder() *entsql.DialectBuilder { return entsql.Dialect(s.drv.Dialect()) }

// Ping checks that the database still answers.
func (s *RunStore) Ping(ctx context.Context, timeout time.Duration) error {
	return HealthCheck(ctx, s.drv, timeout)
}

// Migrate creates the runs table and its indexes if they are missing.
func (s *RunStore) Migrate(ctx context.Context) error {
	tsType := "timestamp"
	if s.drv.Dialect() == dialect.Postgres {
		tsType = "timestamptz"
	}
	q := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id            varchar(36) NOT NULL PRIMARY KEY,
	batch_id      varchar(36),
	document_id   text NOT NULL,
	source_path   text NOT NULL DEFAULT '',
	content_hash  varchar(64) NOT NULL DEFAULT '',
	status        varchar(16) NOT NULL,
	stage         varchar(32) NOT NULL,
	method        varchar(32) NOT NULL DEFAULT '',
	name          text,
	error_message text,
	duration_ms   bigint NOT NULL DEFAULT 0,
	created_at    %s NOT NULL
)`, runsTable, tsType)

	db := s.drv.DB()
	if _, err := db.ExecContext(ctx, q); err != nil {
		s.logger.Error("migrate runs table failed", "error", err)
		return fmt.Errorf("create %s: %w", runsTable, err)
	}
	for _, idx := range []string{
		"CREATE INDEX IF NOT EXISTS extraction_runs_content_hash_idx ON extraction_runs (content_hash)",
		"CREATE INDEX IF NOT EXISTS extraction_runs_batch_id_idx ON extraction_runs (batch_id)",
	} {
		if _, err := db.ExecContext(ctx, idx); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	s.logger.Debug("runs table ready")
	return nil
}

// SaveRun inserts a run, filling ID and CreatedAt when unset.
func (s *RunStore) SaveRun(ctx context.Context, run *entity.ExtractionRun) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	var batchID any
	if run.BatchID != nil {
		batchID = run.BatchID.String()
	}

	q, args := s.builder().Insert(runsTable).
		Columns(runColumns...).
		Values(
			run.ID.String(), batchID, run.DocumentID, run.SourcePath, run.ContentHash,
			run.Status, run.Stage, run.Method, nullable(run.Name), nullable(run.ErrorMessage),
			run.DurationMS, run.CreatedAt,
		).
		Query()
	if _, err := s.drv.DB().ExecContext(ctx, q, args...); err != nil {
		s.logger.Error("save run failed", "doc_id", run.DocumentID, "error", err)
		return fmt.Errorf("insert run: %w", err)
	}
	s.logger.Debug("run saved", "run_id", run.ID, "doc_id", run.DocumentID, "status", run.Status)
	return nil
}

// FindByHash returns the latest successful run for the given content, or ErrNotFound.
func (s *RunStore) FindByHash(ctx context.Context, contentHash string) (*entity.ExtractionRun, error) {
	q, args := s.builder().Select(runColumns...).
		From(entsql.Table(runsTable)).
		Where(entsql.And(
			entsql.EQ("content_hash", contentHash),
			entsql.EQ("status", string(constants.StatusFound)),
		)).
		OrderBy(entsql.Desc("created_at")).
		Limit(1).
		Query()

	runs, err := s.query(ctx, q, args)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, ErrNotFound
	}
	return &runs[0], nil
}

// ListByBatch returns a batch's runs in insertion order.
func (s *RunStore) ListByBatch(ctx context.Context, batchID uuid.UUID) ([]entity.ExtractionRun, error) {
	q, args := s.builder().Select(runColumns...).
		From(entsql.Table(runsTable)).
		Where(entsql.EQ("batch_id", batchID.String())).
		OrderBy("created_at", "document_id").
		Query()
	return s.query(ctx, q, args)
}

func (s *RunStore) query(ctx context.Context, q string, args []any) ([]entity.ExtractionRun, error) {
	rows, err := s.drv.DB().QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []entity.ExtractionRun
	for rows.Next() {
		var (
			r                          entity.ExtractionRun
			id                         string
			batchID, name, errMessage sql.NullString
		)
		if err := rows.Scan(&id, &batchID, &r.DocumentID, &r.SourcePath, &r.ContentHash,
			&r.Status, &r.Stage, &r.Method, &name, &errMessage, &r.DurationMS, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if r.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("run id %q: %w", id, err)
		}
		if batchID.Valid {
			b, err := uuid.Parse(batchID.String)
			if err != nil {
				return nil, fmt.Errorf("batch id %q: %w", batchID.String, err)
			}
			r.BatchID = &b
		}
		r.Name = fromNullable(name)
		r.ErrorMessage = fromNullable(errMessage)
		out = append(out, r)
	}
	return out, rows.Err()
}

// CountByStatus returns the number of recorded runs per status.
func (s *RunStore) CountByStatus(ctx context.Context) (map[string]int, error) {
	q, args := s.builder().Select("status", entsql.Count("*")).
		From(entsql.Table(runsTable)).
		GroupBy("status").
		Query()

	rows, err := s.drv.DB().QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("count runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// Record stores a finished pipeline run; it satisfies batch.Recorder.
func (s *RunStore) Record(ctx context.Context, batchID uuid.UUID, doc entity.Document, res pipeline.Result) error {
	run := RunFromResult(doc, res)
	if batchID != uuid.Nil {
		run.BatchID = &batchID
	}
	return s.SaveRun(ctx, &run)
}

// RunFromResult maps a pipeline result to its stored shape.
func RunFromResult(doc entity.Document, res pipeline.Result) entity.ExtractionRun {
	run := entity.ExtractionRun{
		DocumentID:  doc.ID,
		SourcePath:  doc.Path,
		ContentHash: doc.ContentHash,
		Status:      string(res.Status),
		Stage:       string(res.Stage),
		Method:      res.Method,
		Name:        res.NamePtr(),
		DurationMS:  res.Duration.Milliseconds(),
	}
	if msg := res.ErrorMessage(); msg != "" {
		run.ErrorMessage = &msg
	}
	return run
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func fromNullable(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}
