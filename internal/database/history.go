package database

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go-soundcloud-download/internal/helpers"
	"go-soundcloud-download/internal/models"

	log "github.com/sirupsen/logrus"
)

// trackKeyPrefix marks history entries; other key spaces may share the store.
const trackKeyPrefix = "t_"

// TrackKey returns the history key for a stream reference. bitcask caps key size,
// so the URL is hashed rather than stored verbatim.
func TrackKey(streamURL string) []byte {
	return []byte(trackKeyPrefix + helpers.ShortKey(streamURL))
}

// PutEntry stores (or replaces) the history entry for entry.Track.
func (d *DB) PutEntry(entry models.HistoryEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal history entry for %s: %w", entry.Track.Title, err)
	}
	return d.Put(TrackKey(entry.Track.StreamURL), data)
}

// GetEntry returns the history entry recorded for streamURL.
func (d *DB) GetEntry(streamURL string) (models.HistoryEntry, error) {
	var entry models.HistoryEntry
	raw, err := d.Get(TrackKey(streamURL))
	if err != nil {
		return entry, err
	}
	if err := json.Unmarshal(raw, &entry); err != nil {
		return entry, fmt.Errorf("failed to unmarshal history entry: %w", err)
	}
	return entry, nil
}

// Entries returns every history entry, newest first.
func (d *DB) Entries() ([]models.HistoryEntry, error) {
	var entries []models.HistoryEntry
	err := d.Fold(func(key []byte, value []byte) error {
		if !strings.HasPrefix(string(key), trackKeyPrefix) {
			return nil
		}
		var entry models.HistoryEntry
		if err := json.Unmarshal(value, &entry); err != nil {
			log.WithError(err).Warnf("Failed to unmarshal history entry %s, skipping", string(key))
			return nil
		}
		entries = append(entries, entry)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error scanning history: %w", err)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Timestamp != entries[j].Timestamp {
			return entries[i].Timestamp > entries[j].Timestamp
		}
		return entries[i].Track.Title < entries[j].Track.Title
	})
	return entries, nil
}

// DeleteEntry removes the history entry for streamURL and reports whether one existed.
func (d *DB) DeleteEntry(streamURL string) (bool, error) {
	key := TrackKey(streamURL)
	if !d.Has(key) {
		return false, nil
	}
	if err := d.Delete(key); err != nil {
		return false, err
	}
	return true, nil
}

// DeleteEntries removes every history entry match accepts and returns how many went.
func (d *DB) DeleteEntries(match func(models.HistoryEntry) bool) (int, error) {
	var keys [][]byte
	err := d.Fold(func(key []byte, value []byte) error {
		if !strings.HasPrefix(string(key), trackKeyPrefix) {
			return nil
		}
		var entry models.HistoryEntry
		if err := json.Unmarshal(value, &entry); err != nil {
			return nil
		}
		if match(entry) {
			keys = append(keys, append([]byte(nil), key...))
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("error scanning history: %w", err)
	}

	removed := 0
	for _, key := range keys {
		if err := d.Delete(key); err != nil && !errors.Is(err, ErrNotFound) {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
