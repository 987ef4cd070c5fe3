package service

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return dir
}

func TestLoadLabels_ListTakesPrecedence(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"labels.json":   `["anger", "joy", "sadness"]`,
		"id2label.json": `{"0": "x", "1": "y", "2": "z"}`,
	})
	assert.Equal(t, []string{"anger", "joy", "sadness"}, LoadLabels(dir))
}

func TestLoadLabels_MappingInIndexOrder(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"id2label.json": `{"1": "joy", "0": "sad"}`,
	})
	assert.Equal(t, []string{"sad", "joy"}, LoadLabels(dir))
}

func TestLoadLabels_MappingWithGapsUsesDocumentOrder(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"label_map.json": `{"2": "fear", "0": "anger", "5": "love"}`,
	})
	assert.Equal(t, []string{"fear", "anger", "love"}, LoadLabels(dir))
}

func TestLoadLabels_MappingDuplicateKeyLastWins(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"label_map.json": `{"0": "a", "0": "b", "1": "c"}`,
	})
	assert.Equal(t, []string{"b", "c"}, LoadLabels(dir))

	dir = writeFiles(t, map[string]string{
		"label_map.json": `{"3": "x", "1": "joy", "3": "fear"}`,
	})
	assert.Equal(t, []string{"fear", "joy"}, LoadLabels(dir))
}

func TestLoadLabels_SkipsInvalidCandidate(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"labels.json":    `["anger", "joy"`,
		"label_map.json": `{"0": "neutral", "1": "happy"}`,
	})
	assert.Equal(t, []string{"neutral", "happy"}, LoadLabels(dir))
}

func TestLoadLabels_ListValuesAreStringified(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"labels.json": `["joy", 7, true]`,
	})
	assert.Equal(t, []string{"joy", "7", "true"}, LoadLabels(dir))
}

func TestLoadLabels_ScalarIsNotALabelFile(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"labels.json":   `"joy"`,
		"id2label.json": `{"0": "sad"}`,
	})
	assert.Equal(t, []string{"sad"}, LoadLabels(dir))
}

func TestLoadLabels_ModelConfigFallback(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"config.json": `{"architectures": ["BertForSequenceClassification"], "id2label": {"0": "LABEL_A", "1": "LABEL_B"}}`,
	})
	assert.Equal(t, []string{"LABEL_A", "LABEL_B"}, LoadLabels(dir))
}

func TestLoadLabels_None(t *testing.T) {
	assert.Nil(t, LoadLabels(t.TempDir()))

	dir := writeFiles(t, map[string]string{
		"labels.json": `not json`,
		"config.json": `{"hidden_size": 768}`,
	})
	assert.Nil(t, LoadLabels(dir))
}
