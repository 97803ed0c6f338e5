package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeJSON(t *testing.T) {
	var buf bytes.Buffer
	InitializeWithWriter("warn", "json", &buf)
	defer Initialize("info", "text")

	Info("dropped")
	WithRun("run-1", "overdue").Warn("pass failed", "errors", 2)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "pass failed", entry["msg"])
	assert.Equal(t, "run-1", entry["run_id"])
	assert.Equal(t, "overdue", entry["action"])
	assert.EqualValues(t, 2, entry["errors"])
}
