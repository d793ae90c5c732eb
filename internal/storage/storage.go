package storage

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go-soundcloud-download/internal/helpers"
	"go-soundcloud-download/internal/models"

	log "github.com/sirupsen/logrus"
	"github.com/zeebo/blake3"
)

var (
	// ErrFileSystem covers open, write, close and rename failures.
	ErrFileSystem = errors.New("filesystem error")
	// ErrBootstrap means the output directory could not be prepared; callers should exit.
	ErrBootstrap = errors.New("output directory setup failed")
)

const tempSuffix = ".tmp"

// EnsureOutputDir checks that dir exists and is a directory, creating it if missing.
func EnsureOutputDir(dir string) error {
	stat, err := os.Stat(dir)
	switch {
	case err == nil && stat.IsDir():
		return nil
	case err == nil:
		return fmt.Errorf("%w: %s exists and is not a directory", ErrBootstrap, dir)
	case !errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("%w: checking %s: %v", ErrBootstrap, dir, err)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("%w: creating %s: %v", ErrBootstrap, dir, err)
	}
	log.Infof("Created output directory %s", dir)
	return nil
}

// FilenameFor derives the target filename of an item under the given policy.
// The raw policy reproduces "{title}.{format}" verbatim.
func FilenameFor(item models.CatalogItem, policy string) string {
	if policy == models.FilenamePolicyRaw {
		return fmt.Sprintf("%s.%s", item.Title, item.Format)
	}

	title := helpers.SanitizeFilename(item.Title)
	if title == "" {
		title = "untitled"
	}
	format := helpers.SanitizeFilename(item.Format)
	if format == "" {
		return title
	}
	return title + "." + format
}

// SavedFile describes a file written by the Persister.
type SavedFile struct {
	Path     string
	Size     int64
	Checksum string
}

// Persister writes payloads into a single output directory.
type Persister struct {
	Dir string
}

// NewPersister creates a Persister rooted at dir.
func NewPersister(dir string) *Persister {
	return &Persister{Dir: dir}
}

// Save writes payload to name inside the output directory, creating or overwriting it.
// The bytes go to a temp file that is renamed into place, so a failed save never
// leaves a partial target behind.
func (p *Persister) Save(name string, payload *models.BinaryPayload) (SavedFile, error) {
	target, err := p.resolve(name)
	if err != nil {
		return SavedFile{}, err
	}

	tempFile, err := os.CreateTemp(filepath.Dir(target), filepath.Base(target)+".*"+tempSuffix)
	if err != nil {
		return SavedFile{}, fmt.Errorf("%w: creating temporary file for %s: %v", ErrFileSystem, target, err)
	}
	shouldCleanupTemp := true
	defer func() {
		if shouldCleanupTemp {
			tempFile.Close()
			if removeErr := os.Remove(tempFile.Name()); removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
				log.WithError(removeErr).Warnf("Failed to remove temporary file %s", tempFile.Name())
			}
		}
	}()

	hasher := blake3.New()
	counter := &helpers.CounterWriter{Writer: io.MultiWriter(tempFile, hasher)}
	if _, err := payload.WriteTo(counter); err != nil {
		return SavedFile{}, fmt.Errorf("%w: writing %s: %v", ErrFileSystem, tempFile.Name(), err)
	}
	if err := tempFile.Close(); err != nil {
		return SavedFile{}, fmt.Errorf("%w: closing %s: %v", ErrFileSystem, tempFile.Name(), err)
	}
	if err := os.Rename(tempFile.Name(), target); err != nil {
		return SavedFile{}, fmt.Errorf("%w: renaming %s to %s: %v", ErrFileSystem, tempFile.Name(), target, err)
	}
	shouldCleanupTemp = false

	saved := SavedFile{
		Path:     target,
		Size:     int64(counter.Total),
		Checksum: hex.EncodeToString(hasher.Sum(nil)),
	}
	log.Debugf("Wrote %s (%s)", saved.Path, helpers.BytesToSize(counter.Total))
	return saved, nil
}

// WriteMetadata saves item as JSON next to the audio file, e.g. "Song A.json".
func (p *Persister) WriteMetadata(name string, item models.CatalogItem) (string, error) {
	target, err := p.resolve(strings.TrimSuffix(name, filepath.Ext(name)) + ".json")
	if err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(item, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal metadata for %s: %w", item.Title, err)
	}
	if err := os.WriteFile(target, data, 0644); err != nil {
		return "", fmt.Errorf("%w: writing metadata file %s: %v", ErrFileSystem, target, err)
	}
	return target, nil
}

// resolve joins name onto the output directory and refuses anything that lands outside it.
func (p *Persister) resolve(name string) (string, error) {
	if name == "" || name == "." {
		return "", fmt.Errorf("%w: empty filename", ErrFileSystem)
	}
	target := filepath.Join(p.Dir, name)
	rel, err := filepath.Rel(p.Dir, target)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: filename %q escapes output directory %s", ErrFileSystem, name, p.Dir)
	}
	return target, nil
}
