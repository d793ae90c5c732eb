package database

import (
	"path/filepath"
	"testing"

	"go-soundcloud-download/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "history"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestPutGetRoundTrip(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.Put([]byte("k"), []byte("some value that compresses")))
	got, err := db.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, "some value that compresses", string(got))
	assert.True(t, db.Has([]byte("k")))

	require.NoError(t, db.Delete([]byte("k")))
	_, err = db.Get([]byte("k"))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, db.Has([]byte("k")))
}

func TestHistoryEntries(t *testing.T) {
	db := openTestDB(t)

	older := models.HistoryEntry{
		RunID:     "run-1",
		Artist:    "artist1",
		Track:     models.CatalogItem{Title: "Song A", StreamURL: "https://api.example/tracks/1/stream", Format: "mp3"},
		Status:    models.StatusDownloaded,
		Timestamp: 100,
	}
	newer := models.HistoryEntry{
		RunID:        "run-2",
		Artist:       "artist1",
		Track:        models.CatalogItem{Title: "Song B", StreamURL: "https://api.example/tracks/2/stream", Format: "wav"},
		Status:       models.StatusError,
		ErrorDetails: "malformed API response",
		Timestamp:    200,
	}
	require.NoError(t, db.PutEntry(older))
	require.NoError(t, db.PutEntry(newer))
	require.NoError(t, db.Put([]byte("other_key"), []byte("ignored")))

	entries, err := db.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "Song B", entries[0].Track.Title)
	assert.Equal(t, "Song A", entries[1].Track.Title)

	got, err := db.GetEntry(older.Track.StreamURL)
	require.NoError(t, err)
	assert.Equal(t, older, got)

	// Re-recording the same track replaces the previous entry.
	older.Status = models.StatusError
	older.Timestamp = 300
	require.NoError(t, db.PutEntry(older))
	entries, err = db.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, models.StatusError, entries[0].Status)
}

func TestTrackKeyFitsBitcaskLimit(t *testing.T) {
	long := "https://api.example/tracks/1234567890/stream?secret_token=" + string(make([]byte, 200))
	assert.LessOrEqual(t, len(TrackKey(long)), 64)
	assert.NotEqual(t, TrackKey("a"), TrackKey("b"))
}

func TestDeleteHistoryEntries(t *testing.T) {
	db := openTestDB(t)

	entries := []models.HistoryEntry{
		{Artist: "artist1", Track: models.CatalogItem{Title: "Song A", StreamURL: "https://api.example/tracks/1/stream"}, Status: models.StatusDownloaded},
		{Artist: "artist1", Track: models.CatalogItem{Title: "Song B", StreamURL: "https://api.example/tracks/2/stream"}, Status: models.StatusError},
		{Artist: "artist2", Track: models.CatalogItem{Title: "Song C", StreamURL: "https://api.example/tracks/3/stream"}, Status: models.StatusError},
	}
	for _, e := range entries {
		require.NoError(t, db.PutEntry(e))
	}
	require.NoError(t, db.Put([]byte("other_key"), []byte("kept")))

	existed, err := db.DeleteEntry("https://api.example/tracks/1/stream")
	require.NoError(t, err)
	assert.True(t, existed)
	assert.False(t, db.Has(TrackKey("https://api.example/tracks/1/stream")))

	existed, err = db.DeleteEntry("https://api.example/tracks/99/stream")
	require.NoError(t, err)
	assert.False(t, existed)

	removed, err := db.DeleteEntries(func(e models.HistoryEntry) bool { return e.Artist == "artist2" })
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	left, err := db.Entries()
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "Song B", left[0].Track.Title)
	assert.True(t, db.Has([]byte("other_key")))
}
