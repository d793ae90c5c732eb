package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go-soundcloud-download/internal/api"
	"go-soundcloud-download/internal/helpers"
	"go-soundcloud-download/internal/models"

	log "github.com/sirupsen/logrus"
)

// DefaultChunkSize is the read size used to split a body into chunks.
const DefaultChunkSize = 32 * 1024

// Downloader retrieves binary stream bodies. It performs no decoding or format inspection.
type Downloader struct {
	client    *http.Client
	chunkSize int
}

// NewDownloader creates a new Downloader. A nil client gets one without an overall
// timeout; cancellation comes from the request context.
func NewDownloader(client *http.Client) *Downloader {
	if client == nil {
		client = &http.Client{Timeout: 0}
	}
	return &Downloader{client: client, chunkSize: DefaultChunkSize}
}

// WithChunkSize sets the chunk size used by Fetch.
func (d *Downloader) WithChunkSize(n int) *Downloader {
	if n > 0 {
		d.chunkSize = n
	}
	return d
}

// Fetch GETs location and returns the body as an ordered sequence of chunks.
func (d *Downloader) Fetch(ctx context.Context, location string) (*models.BinaryPayload, error) {
	if location == "" {
		return nil, fmt.Errorf("%w: empty stream location", api.ErrParse)
	}
	safeURL := api.RedactString(location)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: creating download request for %s: %v", api.ErrParse, safeURL, err)
	}

	startTime := time.Now()
	resp, err := d.client.Do(req)
	if err != nil {
		log.WithError(err).Debugf("Error performing download request from %s", safeURL)
		return nil, fmt.Errorf("%w: GET %s: %v", api.ErrNetwork, safeURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: received status %d from %s", api.ErrHttpStatus, resp.StatusCode, safeURL)
	}

	payload := &models.BinaryPayload{}
	if resp.ContentLength > 0 {
		payload.Chunks = make([][]byte, 0, resp.ContentLength/int64(d.chunkSize)+1)
	}
	buf := make([]byte, d.chunkSize)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			payload.Chunks = append(payload.Chunks, chunk)
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return nil, fmt.Errorf("%w: reading body from %s after %s: %v",
				api.ErrNetwork, safeURL, helpers.BytesToSize(uint64(payload.Len())), readErr)
		}
	}

	log.Debugf("Fetched %s in %d chunks from %s in %v",
		helpers.BytesToSize(uint64(payload.Len())), len(payload.Chunks), safeURL, time.Since(startTime))
	return payload, nil
}
