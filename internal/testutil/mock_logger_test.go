package testutil_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/LegalDoc-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LegalDoc-Intelligence/internal/testutil"
)

func TestMockLogger(t *testing.T) {
	logger := testutil.NewMockLogger()

	logger.Info("test info", logging.String("key", "value"))

	messages := logger.GetMessages()
	require.Len(t, messages, 1)
	assert.Equal(t, "info", messages[0].Level)
	assert.Equal(t, "test info", messages[0].Message)
	v, ok := messages[0].Field("key")
	assert.True(t, ok)
	assert.Equal(t, "value", v)

	logger.Clear()
	assert.Len(t, logger.GetMessages(), 0)

	logger.Error("test error")
	assert.True(t, logger.HasMessage("error", "test error"))
	assert.False(t, logger.HasMessage("info", "test info"))
}

func TestMockLogger_ChildrenShareRecord(t *testing.T) {
	root := testutil.NewMockLogger()
	child := root.Named("engine").With(logging.DocumentID("d1")).Named("tables")

	child.Warn("tables reload failed, keeping current snapshot")

	got, ok := root.Find("warn", "reload failed")
	require.True(t, ok)
	assert.Equal(t, "engine.tables", got.Logger)
	_, ok = got.Field("document_id")
	assert.True(t, ok)

	_, ok = root.Find("info", "reload failed")
	assert.False(t, ok)
}
