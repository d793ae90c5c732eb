package cmd

import (
	"fmt"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/gosuri/uilive"
	log "github.com/sirupsen/logrus"

	"go-soundcloud-download/index"
	"go-soundcloud-download/internal/batch"
	"go-soundcloud-download/internal/database"
	"go-soundcloud-download/internal/helpers"
	"go-soundcloud-download/internal/models"
)

// progressObserver prints one line per track to a live terminal writer.
type progressObserver struct {
	writer *uilive.Writer
}

func (p *progressObserver) ItemStarted(run batch.RunInfo, idx int, item models.CatalogItem) {
	fmt.Fprintf(p.writer, "[%d/%d] Downloading %s...\n", idx+1, run.Total, item.Title)
}

func (p *progressObserver) ItemFinished(run batch.RunInfo, result models.ItemResult) {
	if result.OK() {
		fmt.Fprintf(p.writer.Newline(), "[%d/%d] Saved %s (%s, %v)\n", result.Index+1, run.Total,
			result.Filename, helpers.BytesToSize(uint64(result.Size)), result.Duration.Round(time.Millisecond))
		return
	}
	fmt.Fprintf(p.writer.Newline(), "[%d/%d] Error downloading %s: %v\n", result.Index+1, run.Total, result.Item.Title, result.Err)
}

// historyObserver records every finished track in the history database.
type historyObserver struct {
	db *database.DB
}

func (h *historyObserver) ItemStarted(batch.RunInfo, int, models.CatalogItem) {}

func (h *historyObserver) ItemFinished(run batch.RunInfo, result models.ItemResult) {
	entry := historyEntryFor(run, result, time.Now())
	if err := h.db.PutEntry(entry); err != nil {
		log.WithError(err).Errorf("Failed to record history for %s", result.Item.Title)
	}
}

func historyEntryFor(run batch.RunInfo, result models.ItemResult, at time.Time) models.HistoryEntry {
	entry := models.HistoryEntry{
		RunID:     run.RunID,
		Artist:    run.Artist,
		UserID:    run.User.ID,
		Track:     result.Item,
		Filename:  result.Filename,
		Path:      result.Path,
		Status:    models.StatusDownloaded,
		SizeBytes: result.Size,
		Checksum:  result.Checksum,
		Timestamp: at.Unix(),
	}
	if !result.OK() {
		entry.Status = models.StatusError
		entry.ErrorDetails = result.Err.Error()
	}
	return entry
}

// indexObserver adds successfully saved tracks to the search index.
type indexObserver struct {
	idx bleve.Index
}

func (o *indexObserver) ItemStarted(batch.RunInfo, int, models.CatalogItem) {}

func (o *indexObserver) ItemFinished(run batch.RunInfo, result models.ItemResult) {
	if !result.OK() {
		return
	}
	item := indexItemFor(run, result, time.Now())
	if err := index.IndexItem(o.idx, item); err != nil {
		log.WithError(err).Errorf("Failed to index %s", result.Path)
	} else {
		log.Debugf("Indexed %s (%s)", result.Item.Title, item.ID)
	}
}

func indexItemFor(run batch.RunInfo, result models.ItemResult, at time.Time) index.Item {
	return index.Item{
		ID:           string(database.TrackKey(result.Item.StreamURL)),
		Type:         "track",
		Title:        result.Item.Title,
		Artist:       run.Artist,
		UserID:       run.User.ID,
		Format:       result.Item.Format,
		Genre:        result.Item.Genre,
		PermalinkURL: result.Item.PermalinkURL,
		FilePath:     result.Path,
		Checksum:     result.Checksum,
		SizeBytes:    float64(result.Size),
		DurationMs:   result.Item.Duration,
		DownloadedAt: at,
		RunID:        run.RunID,
	}
}
