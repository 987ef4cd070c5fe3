package service

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/tidwall/gjson"
)

// LabelFiles are the label metadata files tried, in priority order.
var LabelFiles = []string{"labels.json", "label_map.json", "id2label.json"}

// modelConfigFile is the Hugging Face model config. Its id2label mapping is
// consulted only when none of LabelFiles yields labels.
const modelConfigFile = "config.json"

// LoadLabels returns the class names found in dir, or nil when no candidate
// file exists or parses. A missing label set is not an error.
func LoadLabels(dir string) []string {
	for _, name := range LabelFiles {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		if labels, ok := parseLabels(data); ok {
			slog.Debug("Loaded labels", slog.String("file", name), slog.Int("count", len(labels)))
			return labels
		}
		slog.Warn("Ignoring unparseable label file", slog.String("file", name))
	}

	data, err := os.ReadFile(filepath.Join(dir, modelConfigFile))
	if err != nil || !gjson.ValidBytes(data) {
		return nil
	}
	id2label := gjson.GetBytes(data, "id2label")
	if !id2label.IsObject() {
		return nil
	}
	labels := labelsFromMapping(id2label)
	slog.Debug("Loaded labels", slog.String("file", modelConfigFile), slog.Int("count", len(labels)))
	return labels
}

// parseLabels accepts either a JSON list of names or a mapping from
// stringified class index to name.
func parseLabels(data []byte) ([]string, bool) {
	if !gjson.ValidBytes(data) {
		return nil, false
	}
	doc := gjson.ParseBytes(data)
	switch {
	case doc.IsArray():
		items := doc.Array()
		labels := make([]string, len(items))
		for i, it := range items {
			labels[i] = it.String()
		}
		return labels, true
	case doc.IsObject():
		return labelsFromMapping(doc), true
	}
	return nil, false
}

// labelsFromMapping orders an id->label object by index 0..N-1. A repeated
// key keeps its last value. If any index is missing the values are returned
// in first-seen key order instead, which is only correct when the file
// happens to be written in index order.
func labelsFromMapping(obj gjson.Result) []string {
	byKey := make(map[string]string)
	var keys []string
	obj.ForEach(func(key, value gjson.Result) bool {
		k := key.String()
		if _, seen := byKey[k]; !seen {
			keys = append(keys, k)
		}
		byKey[k] = value.String()
		return true
	})

	labels := make([]string, len(keys))
	for i := range labels {
		v, ok := byKey[strconv.Itoa(i)]
		if !ok {
			slog.Warn("Label mapping has non-sequential keys, using document order")
			for j, k := range keys {
				labels[j] = byKey[k]
			}
			return labels
		}
		labels[i] = v
	}
	return labels
}
