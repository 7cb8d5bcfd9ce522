package main

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// newTestBoltArchive returns a new events archive in a temporary path.
func newTestBoltArchive(t *testing.T) EventArchiver {
	t.Helper()
	f, err := os.CreateTemp("", "tmp.bolt.db-")
	require.NoError(t, err)
	f.Close()
	config := &BoltDBConfig{
		FilePath:   f.Name(),
		Timeout:    5 * time.Second,
		BucketName: "test.events",
	}
	client, err := GetBoltDBClient(config)
	require.NoError(t, err, "failed in creating a test bolt archive")
	archive := NewBoltEventArchive(zap.NewNop(), config, client)
	t.Cleanup(func() {
		archive.Close()
		os.Remove(config.FilePath)
	})
	return archive
}

// Ensure events are sequenced and listed in arrival order.
func TestBoltArchive_AppendAndList(t *testing.T) {
	archive := newTestBoltArchive(t)
	at := NewMockClocker().Now()

	for i, id := range []string{"1", "2", "3"} {
		seq, err := archive.Append(BookEvent{Kind: BookCreated, BookID: id, At: at})
		require.NoError(t, err)
		assert.Equal(t, uint64(i+1), seq)
	}
	_, err := archive.Append(BookEvent{Kind: BookDeleted, BookID: "2", At: at})
	require.NoError(t, err)

	t.Run("all events", func(t *testing.T) {
		events, err := archive.List(0)
		require.NoError(t, err)
		require.Len(t, events, 4)
		assert.Equal(t, uint64(1), events[0].Seq)
		assert.Equal(t, "1", events[0].BookID)
		assert.Equal(t, uint64(4), events[3].Seq)
		assert.Equal(t, BookDeleted, events[3].Kind)
		assert.True(t, at.Equal(events[3].At))
	})

	t.Run("most recent events", func(t *testing.T) {
		events, err := archive.List(2)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, uint64(3), events[0].Seq)
		assert.Equal(t, uint64(4), events[1].Seq)
	})
}

// Ensure an empty archive lists no events.
func TestBoltArchive_Empty(t *testing.T) {
	archive := newTestBoltArchive(t)
	events, err := archive.List(10)
	assert.NoError(t, err)
	assert.Equal(t, []ArchivedEvent{}, events)
}
