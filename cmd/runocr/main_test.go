package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andydreyson/v0-safetydatas-sub001/internal/common"
)

func TestRun_TextLayerOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rhodium.txt")
	require.NoError(t, os.WriteFile(path, []byte("SAFETY DATA SHEET\nRhodium plating solution"), 0o644))

	var out, errOut bytes.Buffer
	code := run(context.Background(), []string{"-ocr=false", "-log-level", "error", path}, &out, &errOut)
	require.Equal(t, common.ExitOK, code, errOut.String())
	assert.Contains(t, out.String(), "=== text layer")
	assert.Contains(t, out.String(), "Rhodium plating solution")
	assert.NotContains(t, out.String(), "=== ocr")
}

func TestRun_Usage(t *testing.T) {
	var out, errOut bytes.Buffer
	assert.Equal(t, common.ExitUsage, run(context.Background(), nil, &out, &errOut))
	assert.Contains(t, errOut.String(), "usage")
}

func TestRun_MissingFile(t *testing.T) {
	var out, errOut bytes.Buffer
	code := run(context.Background(), []string{"-ocr=false", filepath.Join(t.TempDir(), "nope.pdf")}, &out, &errOut)
	assert.Equal(t, common.ExitFailure, code)
}
