package testutil

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferedSlogHandler(t *testing.T) {
	t.Run("captures log records", func(t *testing.T) {
		logger, handler := NewTestLogger(t)

		logger.Info("loaded returns", slog.Int("rows", 120))
		logger.Error("store failed", slog.Int("code", 500))

		assert.Equal(t, 2, handler.Count())
		assert.True(t, handler.ContainsMessage("loaded"))
		assert.True(t, handler.ContainsAttr("rows", int64(120)))
		assert.False(t, handler.ContainsAttr("rows", int64(7)))
	})

	t.Run("filters by level", func(t *testing.T) {
		logger, handler := NewTestLogger(t)

		logger.Debug("debug msg")
		logger.Info("info msg")
		logger.Warn("warn msg")
		logger.Warn("another warn")

		assert.Len(t, handler.GetRecordsByLevel(slog.LevelDebug), 1)
		assert.Len(t, handler.GetRecordsByLevel(slog.LevelWarn), 2)
		AssertLogContains(t, handler, slog.LevelWarn, "another")
		AssertNoErrors(t, handler)
	})

	t.Run("keeps bound attributes", func(t *testing.T) {
		logger, handler := NewTestLogger(t)

		logger.With("component", "engine").Info("event study complete")
		logger.WithGroup("panel").Info("built", slog.Int("rows", 3))

		AssertLogAttr(t, handler, "component", "engine")
		AssertLogAttr(t, handler, "panel.rows", int64(3))
	})

	t.Run("clear", func(t *testing.T) {
		logger, handler := NewTestLogger(t)
		derived := logger.With("component", "loader")

		derived.Info("one")
		require.Equal(t, 1, handler.Count())
		handler.Clear()
		assert.Zero(t, handler.Count())
		assert.Empty(t, handler.GetRecords())
	})
}
