package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	logger := newLogger()

	assert.NotNil(t, logger)
	formatter, ok := logger.Formatter.(*logrus.TextFormatter)
	require.True(t, ok)
	assert.Equal(t, time.RFC3339Nano, formatter.TimestampFormat)
	assert.True(t, formatter.FullTimestamp)
}

func TestGetLogger_FallsBackToGlobal(t *testing.T) {
	entry := G(context.Background())
	assert.Equal(t, L.Logger, entry.Logger)
}

func TestGetLogger_WithContextLogger(t *testing.T) {
	custom := logrus.NewEntry(logrus.New()).WithField("skill", "notes")
	ctx := WithLogger(context.Background(), custom)

	entry := G(ctx)
	assert.Equal(t, "notes", entry.Data["skill"])
}

func TestWithFields(t *testing.T) {
	ctx := WithFields(context.Background(), logrus.Fields{"agent": "codex"})
	assert.Equal(t, "codex", G(ctx).Data["agent"])
}

func TestSetLogLevel(t *testing.T) {
	original := L.Logger.GetLevel()
	defer L.Logger.SetLevel(original)

	require.NoError(t, SetLogLevel("debug"))
	assert.Equal(t, logrus.DebugLevel, L.Logger.GetLevel())

	assert.Error(t, SetLogLevel("loud"))
}

func TestConfigure_JSONOutput(t *testing.T) {
	originalLevel := L.Logger.GetLevel()
	originalFormatter := L.Logger.Formatter
	originalOut := L.Logger.Out
	defer func() {
		L.Logger.SetLevel(originalLevel)
		L.Logger.Formatter = originalFormatter
		L.Logger.SetOutput(originalOut)
	}()

	var buf bytes.Buffer
	require.NoError(t, Configure("info", "json", &buf))

	G(context.Background()).WithField("name", "notes").Info("linked")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "linked", record["message"])
	assert.Equal(t, "info", record["logLevel"])
	assert.Equal(t, "notes", record["name"])
	assert.Contains(t, record, "timestamp")
}

func TestConfigure_EmptyLevelKeepsCurrent(t *testing.T) {
	original := L.Logger.GetLevel()
	defer L.Logger.SetLevel(original)

	L.Logger.SetLevel(logrus.WarnLevel)
	require.NoError(t, Configure("", "fmt", nil))
	assert.Equal(t, logrus.WarnLevel, L.Logger.GetLevel())
}
