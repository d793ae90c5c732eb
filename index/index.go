package index

import (
	"errors"
	"os"
	"time"

	"github.com/blevesearch/bleve/v2"
	log "github.com/sirupsen/logrus"
)

const defaultIndexPath = "scd.bleve"

// Item is a downloaded track as stored in the search index. Fields are searchable by
// their JSON names, e.g. '+artist:artist1 format:mp3'.
type Item struct {
	ID           string    `json:"id"`   // t_<key>, shared with the history database
	Type         string    `json:"type"` // "track"
	Title        string    `json:"title"`
	Artist       string    `json:"artist"`
	UserID       string    `json:"userId,omitempty"`
	Format       string    `json:"format,omitempty"`
	Genre        string    `json:"genre,omitempty"`
	PermalinkURL string    `json:"permalinkUrl,omitempty"`
	FilePath     string    `json:"filePath"`
	Checksum     string    `json:"checksum,omitempty"`
	SizeBytes    float64   `json:"sizeBytes,omitempty"`
	DurationMs   float64   `json:"durationMs,omitempty"`
	DownloadedAt time.Time `json:"downloadedAt"`
	RunID        string    `json:"runId,omitempty"`
}

// OpenOrCreateIndex opens an existing Bleve index or creates a new one if it doesn't exist.
func OpenOrCreateIndex(indexPath string) (bleve.Index, error) {
	if indexPath == "" {
		indexPath = defaultIndexPath
	}

	idx, err := bleve.Open(indexPath)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		log.Infof("Creating new search index at: %s", indexPath)
		idx, err = bleve.New(indexPath, bleve.NewIndexMapping())
		if err != nil {
			return nil, err
		}
		return idx, nil
	} else if err != nil {
		return nil, err
	}
	log.Debugf("Opened existing search index at: %s", indexPath)
	return idx, nil
}

// IndexItem adds or updates an item in the index.
func IndexItem(idx bleve.Index, item Item) error {
	return idx.Index(item.ID, item)
}

// SearchIndex runs a query-string search and returns all stored fields of the hits.
func SearchIndex(idx bleve.Index, query string) (*bleve.SearchResult, error) {
	searchRequest := bleve.NewSearchRequest(bleve.NewQueryStringQuery(query))
	searchRequest.Fields = []string{"*"}
	searchRequest.Size = 50
	return idx.Search(searchRequest)
}

// DeleteIndex removes the index directory.
func DeleteIndex(indexPath string) error {
	if indexPath == "" {
		indexPath = defaultIndexPath
	}
	log.Infof("Deleting search index at: %s", indexPath)
	return os.RemoveAll(indexPath)
}
