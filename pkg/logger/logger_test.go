package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(WithOutput(buf), WithFormat(FormatJSON), WithService("worker"))

	log.Info("hello", Error(errors.New("boom")))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "hello", entry["msg"])
	assert.Equal(t, "worker", entry["service"])
	assert.Equal(t, "boom", entry["error"])
}

func TestNewText(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(WithOutput(buf))

	log.Info("hello")

	assert.Contains(t, buf.String(), "level=INFO")
	assert.Contains(t, buf.String(), "msg=hello")
}

func TestLevelName(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(WithOutput(buf), WithLevelName("warn"))

	log.Info("dropped")
	assert.Empty(t, buf.String())

	log.Warn("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestErrorNil(t *testing.T) {
	assert.True(t, Error(nil).Equal(Error(nil)))
	assert.Empty(t, Error(nil).Key)
}
