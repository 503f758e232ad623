package pipeline_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/andydreyson/v0-safetydatas-sub001/constants"
	"github.com/andydreyson/v0-safetydatas-sub001/internal/entity"
	"github.com/andydreyson/v0-safetydatas-sub001/internal/llm"
	"github.com/andydreyson/v0-safetydatas-sub001/internal/llm/mocks"
	"github.com/andydreyson/v0-safetydatas-sub001/internal/naming"
	"github.com/andydreyson/v0-safetydatas-sub001/internal/ocr"
	"github.com/andydreyson/v0-safetydatas-sub001/internal/pipeline"
	"github.com/andydreyson/v0-safetydatas-sub001/internal/textlayer"
)

var doc = entity.Document{ID: "sds-1", Name: "sheet.pdf", MediaType: "application/pdf"}

func staticText(s string) pipeline.TextExtractor {
	return pipeline.TextExtractorFunc(func(context.Context, entity.Document) textlayer.Result {
		return textlayer.Result{Text: s, Method: constants.MethodTextLayer}
	})
}

type countingOCR struct {
	text  string
	calls int
}

func (c *countingOCR) Recognize(context.Context, entity.Document) ocr.Result {
	c.calls++
	return ocr.Result{Text: c.text, Method: constants.MethodOCR}
}

func newOrchestrator(t *testing.T, cfg pipeline.Config, text string, o *countingOCR, completer llm.Completer) *pipeline.Orchestrator {
	t.Helper()
	x := llm.NewNameExtractor(completer, llm.ExtractorConfig{}, nil)
	var rec pipeline.Recognizer
	if o != nil {
		rec = o
	}
	return pipeline.New(cfg, staticText(text), rec, naming.DefaultMatcher(), x, nil)
}

func TestRun_PropaneFallsToModel(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := mocks.NewMockCompleter(ctrl)
	m.EXPECT().Complete(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req llm.CompletionRequest) (string, error) {
			assert.Contains(t, req.User, "Product name: Propane CAS NO: 74-98-6")
			return "Propane", nil
		}).Times(1)

	o := &countingOCR{}
	p := newOrchestrator(t, pipeline.DefaultConfig(), "Product name: Propane CAS NO: 74-98-6", o, m)

	res := p.Run(context.Background(), doc)
	require.True(t, res.Found())
	assert.Equal(t, "Propane", res.Name)
	assert.Equal(t, constants.MethodModel, res.Method)
	assert.Equal(t, constants.StageDone, res.Stage)
	assert.Zero(t, o.calls, "text layer was long enough, OCR must not run")

	var stages []constants.Stage
	for _, a := range res.Attempts {
		stages = append(stages, a.Stage)
	}
	assert.Equal(t, []constants.Stage{
		constants.StageTextExtracted,
		constants.StagePatternChecked,
		constants.StageModelFallback,
		constants.StageSanitized,
	}, stages)
}

func TestRun_RhodiumMatchedWithoutModel(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := mocks.NewMockCompleter(ctrl)
	m.EXPECT().Complete(gomock.Any(), gomock.Any()).Times(0)

	texts := []string{
		"SAFETY DATA SHEET. Product identifier: Rhodium plating concentrate",
		"Seksjon 1: Identifikasjon av stoffet. Handelsnavn: RHODIUM 2g/l, leverandør AS",
		strings.Repeat("filler text ", 50) + "rhodium" + strings.Repeat(" more filler", 50),
	}
	for _, text := range texts {
		p := newOrchestrator(t, pipeline.DefaultConfig(), text, &countingOCR{}, m)
		res := p.Run(context.Background(), doc)
		require.True(t, res.Found(), text)
		assert.Equal(t, "Rhodium", res.Name)
		assert.Equal(t, constants.MethodPattern, res.Method)
	}
}

func TestRun_ZeroTextIsNoResult(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := mocks.NewMockCompleter(ctrl)
	m.EXPECT().Complete(gomock.Any(), gomock.Any()).Times(0)

	o := &countingOCR{}
	p := newOrchestrator(t, pipeline.DefaultConfig(), "", o, m)

	res := p.Run(context.Background(), doc)
	assert.False(t, res.Found())
	assert.Equal(t, constants.StatusNoResult, res.Status)
	assert.Empty(t, res.Name)
	assert.Nil(t, res.NamePtr())
	assert.Equal(t, 1, o.calls)
}

func TestRun_ShortTextFromBothStagesNeverCallsModel(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := mocks.NewMockCompleter(ctrl)
	m.EXPECT().Complete(gomock.Any(), gomock.Any()).Times(0)

	for _, tc := range []struct{ layer, ocr string }{
		{"", "123456789"},
		{"abc", "   \n  "},
		{"  short  ", "tiny"},
	} {
		o := &countingOCR{text: tc.ocr}
		res := newOrchestrator(t, pipeline.DefaultConfig(), tc.layer, o, m).Run(context.Background(), doc)
		assert.Equal(t, constants.StatusNoResult, res.Status)
		assert.Equal(t, 1, o.calls)
	}
}

func TestRun_OCRTextReplacesThinTextLayer(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := mocks.NewMockCompleter(ctrl)
	m.EXPECT().Complete(gomock.Any(), gomock.Any()).Times(0)

	o := &countingOCR{text: "Sikkerhetsdatablad\nHandelsnavn: Rødsprit 1 liter"}
	res := newOrchestrator(t, pipeline.DefaultConfig(), "p. 1", o, m).Run(context.Background(), doc)
	require.True(t, res.Found())
	assert.Equal(t, "Rødsprit", res.Name)
	assert.Equal(t, 1, o.calls)
}

func TestRun_ThinOCRKeepsTextLayer(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := mocks.NewMockCompleter(ctrl)
	m.EXPECT().Complete(gomock.Any(), gomock.Any()).Return("Lampeolje", nil).Times(1)

	o := &countingOCR{text: "x"}
	res := newOrchestrator(t, pipeline.DefaultConfig(), "Lampeolje 1L flaske", o, m).Run(context.Background(), doc)
	require.True(t, res.Found())
	assert.Equal(t, "Lampeolje", res.Name)
	assert.Equal(t, 1, o.calls)
}

func TestRun_ModelDeclines(t *testing.T) {
	text := "Product name: Something unrecognised by any rule"
	for _, tc := range []struct {
		name  string
		reply string
		err   error
	}{
		{"unknown", "UNKNOWN", nil},
		{"empty", "", nil},
		{"one char", "?", nil},
		{"unknown with period", "Unknown.", nil},
		{"punctuation only", "???", nil},
		{"not applicable", "N/A", nil},
		{"api error", "", llm.NewAPIError(401, "invalid key")},
		{"transport error", "", errors.New("dial tcp: connection refused")},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			m := mocks.NewMockCompleter(ctrl)
			m.EXPECT().Complete(gomock.Any(), gomock.Any()).Return(tc.reply, tc.err).Times(1)

			res := newOrchestrator(t, pipeline.DefaultConfig(), text, nil, m).Run(context.Background(), doc)
			assert.Equal(t, constants.StatusNoResult, res.Status)
			assert.Equal(t, constants.StageDone, res.Stage)
			assert.Empty(t, res.Name)
		})
	}
}

func TestRun_CandidateSanitizedToFallbackIsNoResult(t *testing.T) {
	model := pipeline.NameExtractorFunc(func(context.Context, string) (string, error) { return "%% **", nil })
	p := pipeline.New(pipeline.DefaultConfig(), staticText("Product name: Something unrecognised by any rule"), nil, nil, model, nil)

	res := p.Run(context.Background(), doc)
	assert.Equal(t, constants.StatusNoResult, res.Status)
	assert.Empty(t, res.Name)
}

func TestRun_ModelTimeoutIsNoResult(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := mocks.NewMockCompleter(ctrl)
	m.EXPECT().Complete(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ llm.CompletionRequest) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		}).Times(1)

	x := llm.NewNameExtractor(m, llm.ExtractorConfig{Timeout: 10 * time.Millisecond}, nil)
	p := pipeline.New(pipeline.DefaultConfig(), staticText("Product name: Propane CAS NO: 74-98-6"), nil, nil, x, nil)

	res := p.Run(context.Background(), doc)
	assert.Equal(t, constants.StatusNoResult, res.Status)
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
}

func TestRun_ModelAnswerIsSanitized(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := mocks.NewMockCompleter(ctrl)
	m.EXPECT().Complete(gomock.Any(), gomock.Any()).Return(`"Isopropyl alcohol 99%"`, nil)

	p := pipeline.New(pipeline.Config{SkipPatterns: true}, staticText("Product: Isopropyl alcohol 99% technical grade"), nil, nil,
		llm.NewNameExtractor(m, llm.ExtractorConfig{}, nil), nil)
	res := p.Run(context.Background(), doc)
	require.True(t, res.Found())
	assert.Equal(t, "Isopropyl_alcohol_99", res.Name)
}

func TestRun_PanicBecomesFailed(t *testing.T) {
	boom := pipeline.TextExtractorFunc(func(context.Context, entity.Document) textlayer.Result {
		panic("corrupt xref table")
	})
	p := pipeline.New(pipeline.DefaultConfig(), boom, nil, nil, nil, nil)

	var res pipeline.Result
	require.NotPanics(t, func() { res = p.Run(context.Background(), doc) })
	assert.Equal(t, constants.StatusFailed, res.Status)
	assert.Equal(t, constants.StageFailed, res.Stage)
	assert.Equal(t, constants.StageTextExtracted, res.FailedAt)
	assert.ErrorIs(t, res.Err, pipeline.ErrStagePanic)
	assert.False(t, res.Found())
}

func TestRun_CancelledContextFails(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ctrl := gomock.NewController(t)
	m := mocks.NewMockCompleter(ctrl)
	m.EXPECT().Complete(gomock.Any(), gomock.Any()).Times(0)

	res := newOrchestrator(t, pipeline.DefaultConfig(), "Product name: Propane CAS NO: 74-98-6", nil, m).Run(ctx, doc)
	assert.Equal(t, constants.StatusFailed, res.Status)
	assert.ErrorIs(t, res.Err, context.Canceled)
}

func TestRun_ModelOnlyConfig(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := mocks.NewMockCompleter(ctrl)
	m.EXPECT().Complete(gomock.Any(), gomock.Any()).Return("Rhodium sulphate", nil).Times(1)

	o := &countingOCR{text: "unused"}
	res := newOrchestrator(t, pipeline.ModelOnlyConfig(), "Rhodium sulphate solution, 2 g/l", o, m).Run(context.Background(), doc)
	require.True(t, res.Found())
	assert.Equal(t, "Rhodium_sulphate", res.Name, "rules are off, the model answer is used")
	assert.Zero(t, o.calls)
}

func TestRun_NoModelConfigured(t *testing.T) {
	p := pipeline.New(pipeline.DefaultConfig(), staticText("Product name: Propane CAS NO: 74-98-6"), nil, nil, nil, nil)
	res := p.Run(context.Background(), doc)
	assert.Equal(t, constants.StatusNoResult, res.Status)
}
