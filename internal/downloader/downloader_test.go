package downloader

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"go-soundcloud-download/internal/api"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchChunks(t *testing.T) {
	body := bytes.Repeat([]byte{0x49, 0x44, 0x33, 0x00, 0xff}, 1000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.Write(body)
	}))
	defer srv.Close()

	d := NewDownloader(srv.Client()).WithChunkSize(512)
	payload, err := d.Fetch(context.Background(), srv.URL+"/a.mp3")
	require.NoError(t, err)

	assert.Equal(t, int64(len(body)), payload.Len())
	assert.Greater(t, len(payload.Chunks), 1)
	for _, c := range payload.Chunks {
		assert.LessOrEqual(t, len(c), 512)
	}
	assert.Equal(t, body, bytes.Join(payload.Chunks, nil))
}

func TestFetchEmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	payload, err := NewDownloader(srv.Client()).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Zero(t, payload.Len())
}

func TestFetchErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	d := NewDownloader(srv.Client())

	_, err := d.Fetch(context.Background(), srv.URL)
	assert.ErrorIs(t, err, api.ErrHttpStatus)

	_, err = d.Fetch(context.Background(), "")
	assert.ErrorIs(t, err, api.ErrParse)

	closed := httptest.NewServer(http.NotFoundHandler())
	closedURL := closed.URL
	closed.Close()
	_, err = d.Fetch(context.Background(), closedURL)
	assert.ErrorIs(t, err, api.ErrNetwork)
}

func TestFetchCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("x"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewDownloader(srv.Client()).Fetch(ctx, srv.URL)
	assert.ErrorIs(t, err, api.ErrNetwork)
}
