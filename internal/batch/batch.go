package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go-soundcloud-download/internal/models"
	"go-soundcloud-download/internal/storage"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Catalog is the part of the API client the driver needs.
type Catalog interface {
	ResolveUser(ctx context.Context, name string) (models.User, error)
	ListTracks(ctx context.Context, userID string) ([]models.CatalogItem, error)
	StreamResolver
}

// Store persists payloads into the output directory.
type Store interface {
	Save(name string, payload *models.BinaryPayload) (storage.SavedFile, error)
	WriteMetadata(name string, item models.CatalogItem) (string, error)
}

// RunInfo identifies the batch an observer callback belongs to.
type RunInfo struct {
	RunID  string
	Artist string
	User   models.User
	Total  int
}

// Observer is notified around every processed item. Calls are serialized, so
// implementations need no locking of their own.
type Observer interface {
	ItemStarted(run RunInfo, index int, item models.CatalogItem)
	ItemFinished(run RunInfo, result models.ItemResult)
}

// Options tune a batch run.
type Options struct {
	Concurrency    int    // Workers processing items; 1 keeps strict list order.
	FilenamePolicy string // models.FilenamePolicySafe or models.FilenamePolicyRaw
	SaveMetadata   bool
}

// Summary is the outcome of a batch run.
type Summary struct {
	RunID     string
	Artist    string
	User      models.User
	Results   []models.ItemResult // in catalog order
	Succeeded int
	Failed    int
	Bytes     int64
	Duration  time.Duration
}

// FailedItems returns the results that carry an error.
func (s *Summary) FailedItems() []models.ItemResult {
	var failed []models.ItemResult
	for _, r := range s.Results {
		if !r.OK() {
			failed = append(failed, r)
		}
	}
	return failed
}

// Driver runs the resolve, list, locate and persist pipeline for one artist.
type Driver struct {
	catalog   Catalog
	locator   *StreamLocator
	store     Store
	opts      Options
	observers []Observer

	stateMu sync.Mutex
	state   State

	observerMu sync.Mutex
}

// NewDriver wires a driver. A zero or negative concurrency is treated as 1.
func NewDriver(catalog Catalog, fetcher Fetcher, store Store, opts Options, observers ...Observer) *Driver {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.FilenamePolicy == "" {
		opts.FilenamePolicy = models.FilenamePolicySafe
	}
	return &Driver{
		catalog:   catalog,
		locator:   NewStreamLocator(catalog, fetcher),
		store:     store,
		opts:      opts,
		observers: observers,
		state:     StateInit,
	}
}

// State returns the driver's current state.
func (d *Driver) State() State {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	return d.state
}

func (d *Driver) setState(s State, runID string) {
	d.stateMu.Lock()
	prev := d.state
	d.state = s
	d.stateMu.Unlock()
	log.WithField("run", runID).Debugf("Batch state %s -> %s", prev, s)
}

// Run processes every track of artist. Failures to resolve the user or list the
// catalog abort the run; per-item failures are recorded in the summary and the
// remaining items are still processed. The returned summary is never nil.
func (d *Driver) Run(ctx context.Context, artist string) (*Summary, error) {
	startTime := time.Now()
	summary := &Summary{RunID: uuid.NewString(), Artist: artist}
	defer func() { summary.Duration = time.Since(startTime) }()
	logger := log.WithFields(log.Fields{"run": summary.RunID, "artist": artist})

	d.setState(StateResolvingUser, summary.RunID)
	user, err := d.catalog.ResolveUser(ctx, artist)
	if err != nil {
		d.setState(StateFailed, summary.RunID)
		return summary, fmt.Errorf("resolving user %q: %w", artist, err)
	}
	summary.User = user
	logger.Infof("Resolved %s to user id %s", artist, user.ID)

	d.setState(StateListingTracks, summary.RunID)
	items, err := d.catalog.ListTracks(ctx, user.ID)
	if err != nil {
		d.setState(StateFailed, summary.RunID)
		return summary, fmt.Errorf("listing tracks for %q: %w", artist, err)
	}
	logger.Infof("Found %d tracks", len(items))

	summary.Results = make([]models.ItemResult, len(items))
	for i, item := range items {
		summary.Results[i] = models.ItemResult{Index: i, Item: item}
	}
	if len(items) == 0 {
		d.setState(StateDone, summary.RunID)
		return summary, nil
	}

	d.setState(StateProcessingItem, summary.RunID)
	run := RunInfo{RunID: summary.RunID, Artist: artist, User: user, Total: len(items)}

	workers := d.opts.Concurrency
	if workers > len(items) {
		workers = len(items)
	}
	jobs := make(chan int)
	var g errgroup.Group
	for w := 1; w <= workers; w++ {
		id := w
		g.Go(func() error {
			logger.Debugf("Worker %d starting", id)
			for idx := range jobs {
				if ctx.Err() != nil {
					summary.Results[idx].Err = ctx.Err()
					continue
				}
				summary.Results[idx] = d.processItem(ctx, run, idx, items[idx])
			}
			logger.Debugf("Worker %d finished", id)
			return nil
		})
	}

feed:
	for i := range items {
		select {
		case jobs <- i:
		case <-ctx.Done():
			for j := i; j < len(items); j++ {
				summary.Results[j].Err = ctx.Err()
			}
			break feed
		}
	}
	close(jobs)
	_ = g.Wait()

	for _, r := range summary.Results {
		if r.OK() {
			summary.Succeeded++
			summary.Bytes += r.Size
		} else {
			summary.Failed++
		}
	}

	if err := ctx.Err(); err != nil {
		d.setState(StateFailed, summary.RunID)
		logger.Warnf("Batch interrupted after %d of %d tracks", summary.Succeeded, len(items))
		return summary, err
	}
	d.setState(StateDone, summary.RunID)
	return summary, nil
}

// processItem locates and persists one item. Its error, if any, ends up in the result.
func (d *Driver) processItem(ctx context.Context, run RunInfo, idx int, item models.CatalogItem) (result models.ItemResult) {
	startTime := time.Now()
	result = models.ItemResult{
		Index:    idx,
		Item:     item,
		Filename: storage.FilenameFor(item, d.opts.FilenamePolicy),
	}
	logger := log.WithFields(log.Fields{"run": run.RunID, "item": fmt.Sprintf("%d/%d", idx+1, run.Total), "title": item.Title})

	d.notify(func(o Observer) { o.ItemStarted(run, idx, item) })
	defer func() {
		result.Duration = time.Since(startTime)
		d.notify(func(o Observer) { o.ItemFinished(run, result) })
	}()

	payload, err := d.locator.Locate(ctx, item)
	if err != nil {
		logger.WithError(err).Error("Failed to fetch track")
		result.Err = err
		return result
	}

	saved, err := d.store.Save(result.Filename, payload)
	payload.Release()
	if err != nil {
		logger.WithError(err).Error("Failed to save track")
		result.Err = err
		return result
	}
	result.Path = saved.Path
	result.Size = saved.Size
	result.Checksum = saved.Checksum
	logger.Infof("Saved %s", saved.Path)

	if d.opts.SaveMetadata {
		if metaPath, err := d.store.WriteMetadata(result.Filename, item); err != nil {
			logger.WithError(err).Warn("Failed to write metadata file")
		} else {
			logger.Debugf("Wrote metadata %s", metaPath)
		}
	}
	return result
}

func (d *Driver) notify(fn func(Observer)) {
	if len(d.observers) == 0 {
		return
	}
	d.observerMu.Lock()
	defer d.observerMu.Unlock()
	for _, o := range d.observers {
		fn(o)
	}
}
