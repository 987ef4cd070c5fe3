package onnx

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLibPath_Precedence(t *testing.T) {
	t.Setenv(libEnv, "/from/env/libonnxruntime.so")
	assert.Equal(t, "/from/config.so", LibPath("/from/config.so"))
	assert.Equal(t, "/from/env/libonnxruntime.so", LibPath(""))
}

func TestFirstExisting(t *testing.T) {
	dir := t.TempDir()
	lib := filepath.Join(dir, "libonnxruntime.so")
	require.NoError(t, os.WriteFile(lib, nil, 0o644))

	assert.Equal(t, lib, firstExisting([]string{filepath.Join(dir, "missing.so"), lib}))
	assert.Empty(t, firstExisting([]string{filepath.Join(dir, "missing.so")}))
}

func TestCandidates(t *testing.T) {
	assert.NotEmpty(t, candidates("linux"))
	assert.NotEmpty(t, candidates("darwin"))
	assert.Nil(t, candidates("plan9"))
}
