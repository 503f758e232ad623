package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andydreyson/v0-safetydatas-sub001/constants"
	"github.com/andydreyson/v0-safetydatas-sub001/internal/entity"
	"github.com/andydreyson/v0-safetydatas-sub001/internal/pipeline"
)

func newTestStore(t *testing.T) *RunStore {
	t.Helper()
	ctx := context.Background()
	drv, closeFn, err := Open(ctx, Config{Driver: "sqlite", DSN: "file::memory:"}, nil)
	require.NoError(t, err)
	t.Cleanup(closeFn)

	s := NewRunStore(drv, nil)
	require.NoError(t, s.Migrate(ctx))
	require.NoError(t, s.Migrate(ctx), "migrate is idempotent")
	return s
}

func strPtr(s string) *string { return &s }

func TestDriverFromDSN(t *testing.T) {
	assert.Equal(t, "postgres", DriverFromDSN("postgres://u:p@localhost:5432/sds"))
	assert.Equal(t, "postgres", DriverFromDSN(" PostgreSQL://localhost/sds"))
	assert.Equal(t, "sqlite", DriverFromDSN("file:sds.db"))
	assert.Equal(t, "sqlite", DriverFromDSN(""))
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, _, err := Open(context.Background(), Config{Driver: "oracle"}, nil)
	assert.Error(t, err)
}

func TestRunStore_MigrateCreatesTableAndIndexes(t *testing.T) {
	s := newTestStore(t)
	rows, err := s.drv.DB().QueryContext(context.Background(),
		"SELECT name FROM sqlite_master WHERE tbl_name = 'extraction_runs' ORDER BY name")
	require.NoError(t, err)
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var n string
		require.NoError(t, rows.Scan(&n))
		names = append(names, n)
	}
	require.NoError(t, rows.Err())
	assert.Contains(t, names, "extraction_runs")
	assert.Contains(t, names, "extraction_runs_batch_id_idx")
	assert.Contains(t, names, "extraction_runs_content_hash_idx")
}

func TestRunStore_SaveAndFindByHash(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	older := &entity.ExtractionRun{
		DocumentID: "propane.pdf", ContentHash: "abc", Status: string(constants.StatusFound),
		Stage: string(constants.StageDone), Method: constants.MethodModel,
		Name: strPtr("Propane"), CreatedAt: base,
	}
	newer := &entity.ExtractionRun{
		DocumentID: "propane-v2.pdf", ContentHash: "abc", Status: string(constants.StatusFound),
		Stage: string(constants.StageDone), Method: constants.MethodPattern,
		Name: strPtr("Propane 2.5"), CreatedAt: base.Add(time.Minute),
	}
	miss := &entity.ExtractionRun{
		DocumentID: "scan.pdf", ContentHash: "abc", Status: string(constants.StatusNoResult),
		Stage: string(constants.StageDone), ErrorMessage: strPtr("model declined"),
		CreatedAt: base.Add(2 * time.Minute),
	}
	for _, r := range []*entity.ExtractionRun{older, newer, miss} {
		require.NoError(t, s.SaveRun(ctx, r))
		assert.NotEqual(t, uuid.Nil, r.ID)
	}

	got, err := s.FindByHash(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, newer.ID, got.ID, "latest FOUND run wins over a later miss")
	require.NotNil(t, got.Name)
	assert.Equal(t, "Propane 2.5", *got.Name)
	assert.Nil(t, got.ErrorMessage)
	assert.Nil(t, got.BatchID)

	_, err = s.FindByHash(ctx, "nope")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestRunStore_RecordAndListByBatch(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	batchID := uuid.New()

	docs := []entity.Document{
		{ID: "1", Path: "/sds/propane.pdf", ContentHash: "h1"},
		{ID: "2", Path: "/sds/scan.pdf", ContentHash: "h2"},
	}
	results := []pipeline.Result{
		{DocumentID: "1", Name: "Propane", Status: constants.StatusFound, Stage: constants.StageDone,
			Method: constants.MethodModel, Duration: 1500 * time.Millisecond},
		{DocumentID: "2", Status: constants.StatusFailed, Stage: constants.StageFailed,
			FailedAt: constants.StageModelFallback, Err: context.DeadlineExceeded},
	}
	for i := range docs {
		require.NoError(t, s.Record(ctx, batchID, docs[i], results[i]))
		time.Sleep(2 * time.Millisecond)
	}
	require.NoError(t, s.Record(ctx, uuid.New(), docs[0], results[0]))

	runs, err := s.ListByBatch(ctx, batchID)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	assert.Equal(t, "1", runs[0].DocumentID)
	assert.Equal(t, "/sds/propane.pdf", runs[0].SourcePath)
	require.NotNil(t, runs[0].Name)
	assert.Equal(t, "Propane", *runs[0].Name)
	assert.Equal(t, int64(1500), runs[0].DurationMS)
	require.NotNil(t, runs[0].BatchID)
	assert.Equal(t, batchID, *runs[0].BatchID)

	assert.Equal(t, string(constants.StatusFailed), runs[1].Status)
	assert.Nil(t, runs[1].Name)
	require.NotNil(t, runs[1].ErrorMessage)
	assert.Contains(t, *runs[1].ErrorMessage, "deadline")

	counts, err := s.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{
		string(constants.StatusFound):  2,
		string(constants.StatusFailed): 1,
	}, counts)
}

func TestRunFromResult_NoNameUnlessFound(t *testing.T) {
	run := RunFromResult(entity.Document{ID: "x"}, pipeline.Result{Name: "stale", Status: constants.StatusNoResult})
	assert.Nil(t, run.Name)
	assert.Nil(t, run.ErrorMessage)
}

func TestHealthCheck(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, HealthCheck(context.Background(), s.drv, time.Second))
	assert.NoError(t, s.Ping(context.Background(), 0))
}
