package cmd

import (
	"bytes"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/anacrolix/torrent/metainfo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-soundcloud-download/index"
	"go-soundcloud-download/internal/api"
	"go-soundcloud-download/internal/batch"
	"go-soundcloud-download/internal/database"
	"go-soundcloud-download/internal/models"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestRootWithoutFlagsDoesNothing(t *testing.T) {
	t.Chdir(t.TempDir())

	for _, args := range [][]string{{}, {"--bogus", "value"}} {
		var out bytes.Buffer
		rootCmd.SetOut(&out)
		rootCmd.SetArgs(args)
		require.NoError(t, rootCmd.Execute())
		assert.Contains(t, out.String(), "Nothing to run")
	}

	assert.NoDirExists(t, "out")
	assert.NoFileExists(t, "api.log")
}

func TestRootWithoutFlagsIgnoresApiLoggingConfig(t *testing.T) {
	t.Chdir(t.TempDir())
	writeFile(t, "config.toml", "OutputDir = \"out\"\nLogApiRequests = true\n")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "Nothing to run")
	assert.True(t, globalConfig.LogApiRequests)

	assert.NoFileExists(t, "api.log")
	assert.NoDirExists(t, "out")
}

func TestSetupHttpTransportOpensLogOnDemand(t *testing.T) {
	t.Chdir(t.TempDir())
	saved := globalConfig
	t.Cleanup(func() { globalConfig = saved })

	globalConfig = models.Config{LogApiRequests: false}
	setupHttpTransport()
	assert.Equal(t, http.DefaultTransport, globalHttpTransport)
	assert.NoFileExists(t, "api.log")

	globalConfig = models.Config{LogApiRequests: true}
	setupHttpTransport()
	assert.IsType(t, &api.LoggingTransport{}, globalHttpTransport)
	assert.FileExists(t, "api.log")

	closeApiLog()
	assert.Equal(t, http.DefaultTransport, globalHttpTransport)
}

func TestBuildTorrent(t *testing.T) {
	base := t.TempDir()
	src := filepath.Join(base, "out")
	writeFile(t, filepath.Join(src, "Song A.mp3"), "ID3 frames")
	writeFile(t, filepath.Join(src, "Song B.wav"), "RIFF data")
	trackers := []string{"udp://tracker.example:1337/announce", "https://tracker.example/announce"}

	res, err := buildTorrent(src, trackers, base, false, true)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "out.torrent"), res.Path)
	assert.Equal(t, 2, res.Files)
	assert.Len(t, res.InfoHash, 40)

	mi, err := metainfo.LoadFromFile(res.Path)
	require.NoError(t, err)
	assert.Equal(t, trackers[0], mi.Announce)
	assert.Len(t, mi.AnnounceList, 2)
	info, err := mi.UnmarshalInfo()
	require.NoError(t, err)
	assert.Equal(t, "out", info.Name)
	assert.Equal(t, res.InfoHash, mi.HashInfoBytes().HexString())

	magnet, err := os.ReadFile(filepath.Join(base, "out-magnet.txt"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(magnet), "magnet:?xt=urn:btih:"+res.InfoHash))
	assert.Contains(t, string(magnet), "dn=out")

	// An existing torrent is left alone unless overwrite is requested.
	again, err := buildTorrent(src, trackers, base, false, false)
	require.NoError(t, err)
	assert.True(t, again.Skipped)

	again, err = buildTorrent(src, trackers, base, true, false)
	require.NoError(t, err)
	assert.False(t, again.Skipped)
	assert.Equal(t, res.InfoHash, again.InfoHash)
}

func TestBuildTorrentMissingDir(t *testing.T) {
	_, err := buildTorrent(filepath.Join(t.TempDir(), "missing"), []string{"udp://t"}, t.TempDir(), false, false)
	assert.Error(t, err)
}

func TestCleanDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "Song A.mp3.123.tmp"), "partial")
	writeFile(t, filepath.Join(dir, "nested", "Song B.wav.456.TMP"), "partial")
	writeFile(t, filepath.Join(dir, "out.torrent"), "d4:infoe")
	writeFile(t, filepath.Join(dir, "out-magnet.txt"), "magnet:?")
	writeFile(t, filepath.Join(dir, "Song A.mp3"), "ID3")

	stats, err := cleanDir(dir, false, false)
	require.NoError(t, err)
	assert.Equal(t, cleanStats{Tmp: 2}, stats)
	assert.FileExists(t, filepath.Join(dir, "out.torrent"))
	assert.FileExists(t, filepath.Join(dir, "Song A.mp3"))

	stats, err = cleanDir(dir, true, true)
	require.NoError(t, err)
	assert.Equal(t, cleanStats{Torrents: 1, Magnets: 1}, stats)
	assert.NoFileExists(t, filepath.Join(dir, "out.torrent"))
	assert.NoFileExists(t, filepath.Join(dir, "out-magnet.txt"))
	assert.FileExists(t, filepath.Join(dir, "Song A.mp3"))

	_, err = cleanDir(filepath.Join(dir, "Song A.mp3"), false, false)
	assert.Error(t, err)
}

func TestCleanIndexFlag(t *testing.T) {
	t.Chdir(t.TempDir())
	writeFile(t, "config.toml", "OutputDir = \"out\"\nBleveIndexPath = \"tracks.bleve\"\n")
	writeFile(t, filepath.Join("out", "Song A.mp3.tmp"), "partial")
	t.Cleanup(func() { _ = cleanCmd.Flags().Set("index", "false") })

	idx, err := index.OpenOrCreateIndex("tracks.bleve")
	require.NoError(t, err)
	require.NoError(t, idx.Close())
	require.DirExists(t, "tracks.bleve")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"clean", "--index"})
	require.NoError(t, rootCmd.Execute())

	assert.NoDirExists(t, "tracks.bleve")
	assert.NoFileExists(t, filepath.Join("out", "Song A.mp3.tmp"))
	assert.Contains(t, out.String(), "Removed 1 .tmp")
}

func TestDeleteHistory(t *testing.T) {
	db, err := database.Open(filepath.Join(t.TempDir(), "history"))
	require.NoError(t, err)
	defer db.Close()

	for _, e := range []models.HistoryEntry{
		{Artist: "artist1", Track: models.CatalogItem{Title: "Song A", StreamURL: "https://api.example/tracks/1/stream"}, Status: models.StatusDownloaded},
		{Artist: "artist1", Track: models.CatalogItem{Title: "Song B", StreamURL: "https://api.example/tracks/2/stream"}, Status: models.StatusError},
		{Artist: "artist2", Track: models.CatalogItem{Title: "Song C", StreamURL: "https://api.example/tracks/3/stream"}, Status: models.StatusDownloaded},
		{Artist: "artist2", Track: models.CatalogItem{Title: "Song D", StreamURL: "https://api.example/tracks/4/stream"}, Status: models.StatusError},
	} {
		require.NoError(t, db.PutEntry(e))
	}

	removed, err := deleteHistory(db, []string{"https://api.example/tracks/1/stream", "https://api.example/tracks/9/stream"}, "", false)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	removed, err = deleteHistory(db, nil, "ARTIST2", true)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	entries, err := db.Entries()
	require.NoError(t, err)
	var titles []string
	for _, e := range entries {
		titles = append(titles, e.Track.Title)
	}
	assert.ElementsMatch(t, []string{"Song B", "Song C"}, titles)

	removed, err = deleteHistory(db, nil, "", true)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}

func TestHistoryObserverRecordsResults(t *testing.T) {
	db, err := database.Open(filepath.Join(t.TempDir(), "history"))
	require.NoError(t, err)
	defer db.Close()

	run := batch.RunInfo{RunID: "run-1", Artist: "artist1", User: models.User{Name: "artist1", ID: "42"}, Total: 2}
	ok := models.ItemResult{
		Index:    0,
		Item:     models.CatalogItem{Title: "Song A", StreamURL: "https://api.example/tracks/1/stream", Format: "mp3"},
		Filename: "Song A.mp3",
		Path:     "out/Song A.mp3",
		Size:     3,
		Checksum: "abc",
	}
	failed := models.ItemResult{
		Index: 1,
		Item:  models.CatalogItem{Title: "Song B", StreamURL: "https://api.example/tracks/2/stream", Format: "wav"},
		Err:   errors.New("malformed API response"),
	}

	obs := &historyObserver{db: db}
	obs.ItemFinished(run, ok)
	obs.ItemFinished(run, failed)

	got, err := db.GetEntry(ok.Item.StreamURL)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDownloaded, got.Status)
	assert.Equal(t, "42", got.UserID)
	assert.Equal(t, "out/Song A.mp3", got.Path)

	got, err = db.GetEntry(failed.Item.StreamURL)
	require.NoError(t, err)
	assert.Equal(t, models.StatusError, got.Status)
	assert.Equal(t, "malformed API response", got.ErrorDetails)

	var table bytes.Buffer
	entries, err := db.Entries()
	require.NoError(t, err)
	writeHistoryTable(&table, entries)
	assert.Contains(t, table.String(), "Song A")
	assert.Contains(t, table.String(), "Error: malformed API response")
	assert.Contains(t, table.String(), "Total entries: 2")
}

func TestIndexItemFor(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	run := batch.RunInfo{RunID: "run-1", Artist: "artist1", User: models.User{ID: "42"}}
	res := models.ItemResult{
		Item: models.CatalogItem{Title: "Song A", StreamURL: "https://api.example/tracks/1/stream", Format: "mp3", Genre: "Ambient", Duration: 1234.5},
		Path: "out/Song A.mp3",
		Size: 1024,
	}

	item := indexItemFor(run, res, at)
	assert.Equal(t, string(database.TrackKey(res.Item.StreamURL)), item.ID)
	assert.Equal(t, "track", item.Type)
	assert.Equal(t, "artist1", item.Artist)
	assert.Equal(t, "Ambient", item.Genre)
	assert.Equal(t, float64(1024), item.SizeBytes)
	assert.Equal(t, 1234.5, item.DurationMs)
	assert.Equal(t, at, item.DownloadedAt)
}

func TestMagnetURI(t *testing.T) {
	got := magnetURI("abcd", "my out", []string{"udp://t:1/announce"})
	assert.Equal(t, "magnet:?xt=urn:btih:abcd&dn=my+out&tr=udp%3A%2F%2Ft%3A1%2Fannounce", got)
}
