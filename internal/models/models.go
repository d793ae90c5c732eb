package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Download status values stored in history entries.
const (
	StatusDownloaded = "Downloaded"
	StatusError      = "Error"
)

// Filename policies understood by storage.FilenameFor.
const (
	FilenamePolicySafe = "safe"
	FilenamePolicyRaw  = "raw"
)

type (
	Config struct {
		// Connection/Auth
		ClientID   string `toml:"ClientID"`
		ApiBaseUrl string `toml:"ApiBaseUrl"`

		// Paths
		OutputDir      string `toml:"OutputDir"`
		DatabasePath   string `toml:"DatabasePath"`
		BleveIndexPath string `toml:"BleveIndexPath"`

		// Downloader Behavior
		Concurrency         int    `toml:"Concurrency"`
		FilenamePolicy      string `toml:"FilenamePolicy"`
		SaveMetadata        bool   `toml:"SaveMetadata"`
		DisableHistory      bool   `toml:"DisableHistory"`
		ApiClientTimeoutSec int    `toml:"ApiClientTimeoutSec"`

		// Other
		LogApiRequests bool `toml:"LogApiRequests"`
	}

	// User is a resolved account. ID is opaque and only meaningful to the API.
	User struct {
		Name string `json:"name"`
		ID   string `json:"id"`
	}

	// CatalogItem is one entry of a user's track listing, in API order.
	CatalogItem struct {
		ID           OpaqueID `json:"id,omitempty"`
		Title        string   `json:"title"`
		StreamURL    string   `json:"stream_url"`
		Format       string   `json:"original_format"`
		PermalinkURL string   `json:"permalink_url,omitempty"`
		Genre        string   `json:"genre,omitempty"`
		Duration     float64  `json:"duration,omitempty"` // milliseconds
	}

	// StreamLocation is the short-lived target a stream reference points at.
	StreamLocation struct {
		Location string `json:"location"`
	}

	// ItemResult is the outcome of processing a single catalog item.
	ItemResult struct {
		Index    int
		Item     CatalogItem
		Filename string
		Path     string
		Size     int64
		Checksum string
		Err      error
		Duration time.Duration
	}

	// HistoryEntry is what gets written to the history database per processed item.
	HistoryEntry struct {
		RunID        string      `json:"runId"`
		Artist       string      `json:"artist"`
		UserID       string      `json:"userId"`
		Track        CatalogItem `json:"track"`
		Filename     string      `json:"filename"`
		Path         string      `json:"path"`
		Status       string      `json:"status"`
		ErrorDetails string      `json:"errorDetails,omitempty"`
		SizeBytes    int64       `json:"sizeBytes"`
		Checksum     string      `json:"checksum,omitempty"`
		Timestamp    int64       `json:"timestamp"`
	}
)

// OK reports whether the item was persisted.
func (r ItemResult) OK() bool {
	return r.Err == nil
}

// BinaryPayload holds a downloaded body as the ordered chunks it arrived in.
type BinaryPayload struct {
	Chunks [][]byte
}

// Len returns the total number of bytes across all chunks.
func (p *BinaryPayload) Len() int64 {
	var n int64
	for _, c := range p.Chunks {
		n += int64(len(c))
	}
	return n
}

// WriteTo writes every chunk to w in order.
func (p *BinaryPayload) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for _, c := range p.Chunks {
		n, err := w.Write(c)
		total += int64(n)
		if err != nil {
			return total, err
		}
		if n != len(c) {
			return total, io.ErrShortWrite
		}
	}
	return total, nil
}

// Release drops the chunk references once the payload has been persisted.
func (p *BinaryPayload) Release() {
	p.Chunks = nil
}

// OpaqueID is an identifier the API may send either as a JSON string or as a
// number. It is kept as text and never interpreted.
type OpaqueID string

func (id *OpaqueID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = OpaqueID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id is neither a string nor a number: %s", data)
	}
	*id = OpaqueID(n.String())
	return nil
}
