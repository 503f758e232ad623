package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/andydreyson/v0-safetydatas-sub001/constants"
	"github.com/andydreyson/v0-safetydatas-sub001/internal/batch"
	"github.com/andydreyson/v0-safetydatas-sub001/internal/entity"
	"github.com/andydreyson/v0-safetydatas-sub001/internal/repository"
)

const (
	ResultsSheet = "Results"
	SummarySheet = "Summary"
)

var headers = []string{
	"Document",
	"Source Path",
	"Product Name",
	"Status",
	"Stage",
	"Method",
	"Error",
}

// RunLister is implemented by *repository.RunStore.
type RunLister interface {
	ListByBatch(ctx context.Context, batchID uuid.UUID) ([]entity.ExtractionRun, error)
}

var _ RunLister = (*repository.RunStore)(nil)

// Service produces XLSX bytes for batch results.
type Service struct {
	runs   RunLister
	logger *slog.Logger
}

func NewService(runs RunLister, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{runs: runs, logger: logger}
}

type row struct {
	doc, path, name, status, stage, method, errMsg string
}

// OutcomeXLSX writes a finished batch, one row per document in input order.
func (s *Service) OutcomeXLSX(o *batch.Outcome) ([]byte, error) {
	if o == nil {
		return nil, fmt.Errorf("nil outcome")
	}
	rows := make([]row, 0, len(o.Entries))
	for _, e := range o.Entries {
		rows = append(rows, row{
			doc:    e.Document.ID,
			path:   e.Document.Path,
			name:   e.Result.Name,
			status: string(e.Result.Status),
			stage:  string(e.Result.Stage),
			method: e.Result.Method,
			errMsg: truncate(e.Result.ErrorMessage(), 140),
		})
	}
	return s.write(o.BatchID, rows, o.Duration)
}

// BatchXLSX writes the stored runs for a batch.
func (s *Service) BatchXLSX(ctx context.Context, batchID uuid.UUID) ([]byte, error) {
	start := time.Now()
	if s.runs == nil {
		return nil, fmt.Errorf("no run store configured")
	}
	runs, err := s.runs.ListByBatch(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	rows := make([]row, 0, len(runs))
	for _, r := range runs {
		rw := row{
			doc:    r.DocumentID,
			path:   r.SourcePath,
			status: r.Status,
			stage:  r.Stage,
			method: r.Method,
		}
		if r.Name != nil {
			rw.name = *r.Name
		}
		if r.ErrorMessage != nil {
			rw.errMsg = truncate(*r.ErrorMessage, 140)
		}
		rows = append(rows, rw)
	}
	return s.write(batchID, rows, time.Since(start))
}

func (s *Service) write(batchID uuid.UUID, rows []row, elapsed time.Duration) ([]byte, error) {
	start := time.Now()
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	// the default workbook has "Sheet1"; rename it so there is no empty sheet
	if err := f.SetSheetName("Sheet1", ResultsSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(SummarySheet); err != nil {
		return nil, err
	}
	activeIndex, _ := f.GetSheetIndex(ResultsSheet)
	f.SetActiveSheet(activeIndex)

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(ResultsSheet, cell, h)
	}

	counts := map[string]int{}
	for i, r := range rows {
		line := i + 2
		for col, v := range []string{r.doc, r.path, r.name, r.status, r.stage, r.method, r.errMsg} {
			cell, _ := excelize.CoordinatesToCellName(col+1, line)
			_ = f.SetCellValue(ResultsSheet, cell, v)
		}
		counts[r.status]++
	}

	_ = f.SetColWidth(ResultsSheet, "A", "A", 28) // document
	_ = f.SetColWidth(ResultsSheet, "B", "B", 60) // path
	_ = f.SetColWidth(ResultsSheet, "C", "C", 40) // name
	_ = f.SetColWidth(ResultsSheet, "D", "F", 16)
	_ = f.SetColWidth(ResultsSheet, "G", "G", 48) // error

	summary := [][2]any{
		{"Batch", batchID.String()},
		{"Documents", len(rows)},
		{"Found", counts[string(constants.StatusFound)]},
		{"No Result", counts[string(constants.StatusNoResult)]},
		{"Failed", counts[string(constants.StatusFailed)]},
		{"Duration (ms)", elapsed.Milliseconds()},
	}
	for i, kv := range summary {
		_ = f.SetCellValue(SummarySheet, fmt.Sprintf("A%d", i+1), kv[0])
		_ = f.SetCellValue(SummarySheet, fmt.Sprintf("B%d", i+1), kv[1])
	}
	_ = f.SetColWidth(SummarySheet, "A", "A", 16)
	_ = f.SetColWidth(SummarySheet, "B", "B", 40)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"batch_id", batchID.String(),
		"rows", len(rows),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
