package testutil

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecordingLogger(t *testing.T) {
	logger, logs := NewRecordingLogger(t)

	logger.Debug("reading dump")
	logger.With(slog.String("target_dir", "q0")).WithGroup("site").Warn("tie", slog.Int("index", 3))
	logger.Error("device lost")

	assert.Equal(t, []string{"reading dump", "tie", "device lost"}, logs.Messages(slog.LevelDebug))
	assert.Equal(t, []string{"tie", "device lost"}, logs.Messages(slog.LevelWarn))
	assert.Empty(t, (&LogRecords{}).Messages(slog.LevelDebug))
}
