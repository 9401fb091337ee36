package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_LevelAndJSON(t *testing.T) {
	var buf bytes.Buffer
	log, closer, err := New(Options{Level: "warn", Out: &buf})
	require.NoError(t, err)
	defer closer.Close()

	assert.Equal(t, logrus.WarnLevel, log.GetLevel())

	log.Info("hidden")
	log.WithField("tab_id", 3).Warn("shown")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "shown", entry["msg"])
	assert.EqualValues(t, 3, entry["tab_id"])
}

func TestNew_DefaultLevel(t *testing.T) {
	log, _, err := New(Options{Out: &bytes.Buffer{}})
	require.NoError(t, err)
	assert.Equal(t, logrus.InfoLevel, log.GetLevel())
}

func TestNew_InvalidLevel(t *testing.T) {
	_, _, err := New(Options{Level: "loud"})
	assert.Error(t, err)
}

func TestNew_TeesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "mediasniff.log")
	var buf bytes.Buffer

	log, closer, err := New(Options{Level: "info", File: path, Out: &buf})
	require.NoError(t, err)

	log.Info("to both")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to both")
	assert.Contains(t, buf.String(), "to both")
}
