package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lancaster971/pilotproOS-sub003/internal/history"
)

func TestNewRejectsEmptyDSN(t *testing.T) {
	_, err := New("  ")
	assert.Error(t, err)
}

func TestSendAndRecent(t *testing.T) {
	dsn := "sqlite://" + filepath.Join(t.TempDir(), "events.db")
	sink, err := New(dsn)
	require.NoError(t, err)
	defer sink.Close()

	var _ history.Sink = sink

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()
	require.NoError(t, sink.Send(ctx, history.Record{ID: "a", OccurredAt: base, Level: "success", Message: "engine is running"}))
	require.NoError(t, sink.Send(ctx, history.Record{
		ID:         "b",
		OccurredAt: base.Add(time.Minute),
		Level:      "error",
		Message:    "engine stopped",
		Data:       map[string]interface{}{"service": "engine"},
	}))

	records, err := sink.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "b", records[0].ID)
	assert.Equal(t, "engine", records[0].Data["service"])
	assert.Equal(t, "a", records[1].ID)
	assert.Nil(t, records[1].Data)

	records, err = sink.Recent(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestMemoryDSN(t *testing.T) {
	sink, err := New(":memory:")
	require.NoError(t, err)
	defer sink.Close()

	require.NoError(t, sink.Send(context.Background(), history.Record{ID: "x", OccurredAt: time.Now(), Level: "info", Message: "hello"}))
	records, err := sink.Recent(context.Background(), 5)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}
