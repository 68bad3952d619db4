package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/ai-gallery/internal/model"
	"github.com/aliskhannn/ai-gallery/internal/storage"
)

// Storage keeps the newest images in a local directory.
// It stores files under a specified base path on the local filesystem,
// next to a JSON record per image.
//
// Save, Evict and List are serialized, so a listing never observes more
// than capacity images written by this process.
type Storage struct {
	mu       sync.RWMutex
	basePath string
	capacity int
	now      func() time.Time
	setTimes func(name string, atime, mtime time.Time) error
	last     int64 // unix millis of the latest saved image
}

// Option configures a Storage.
type Option func(*Storage)

// WithClock replaces time.Now as the source of creation timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Storage) { s.now = now }
}

// NewStorage creates a new Storage rooted at basePath, creating the
// directory when absent. A non-positive capacity uses storage.DefaultCapacity.
func NewStorage(basePath string, capacity int, opts ...Option) (*Storage, error) {
	if capacity <= 0 {
		capacity = storage.DefaultCapacity
	}

	s := &Storage{
		basePath: basePath,
		capacity: capacity,
		now:      time.Now,
		setTimes: os.Chtimes,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create directory %s: %v", storage.ErrStoreIO, basePath, err)
	}

	return s, nil
}

// Save writes data as a new image with its record, then evicts the oldest
// images beyond capacity.
func (s *Storage) Save(ctx context.Context, data []byte, rec model.Record) (model.StoredImage, error) {
	if err := ctx.Err(); err != nil {
		return model.StoredImage{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.basePath, 0o755); err != nil {
		return model.StoredImage{}, fmt.Errorf("%w: create directory %s: %v", storage.ErrStoreIO, s.basePath, err)
	}

	created := s.nextTime()
	name := storage.Filename(created)
	path := filepath.Join(s.basePath, name)

	if err := s.writeAtomic(path, data); err != nil {
		return model.StoredImage{}, err
	}

	rec.Timestamp = created
	recData, err := json.Marshal(rec)
	if err != nil {
		_ = os.Remove(path)
		return model.StoredImage{}, fmt.Errorf("%w: marshal record: %v", storage.ErrStoreIO, err)
	}
	if err := s.writeAtomic(filepath.Join(s.basePath, storage.RecordName(name)), recData); err != nil {
		_ = os.Remove(path)
		return model.StoredImage{}, err
	}

	// The listing orders by modification time, which must match creation order.
	if err := s.setTimes(path, created, created); err != nil {
		_ = os.Remove(path)
		_ = os.Remove(filepath.Join(s.basePath, storage.RecordName(name)))
		return model.StoredImage{}, fmt.Errorf("%w: set times on %s: %v", storage.ErrStoreIO, path, err)
	}

	if err := s.evict(); err != nil {
		return model.StoredImage{}, err
	}

	return storage.Image(storage.Entry{Name: name, ModTime: created}, path, &rec), nil
}

// List returns the stored images, newest first, at most capacity of them.
// A missing directory is an empty gallery.
func (s *Storage) List(ctx context.Context) ([]model.StoredImage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := s.entries()
	if err != nil {
		return nil, err
	}

	keep, _ := storage.Split(entries, s.capacity)

	images := make([]model.StoredImage, 0, len(keep))
	for _, e := range keep {
		images = append(images, storage.Image(e, filepath.Join(s.basePath, e.Name), s.readRecord(e.Name)))
	}

	return images, nil
}

// Evict deletes every image beyond capacity, oldest first, with its record.
func (s *Storage) Evict(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.evict()
}

// Open opens a stored image for reading.
func (s *Storage) Open(_ context.Context, name string) (io.ReadCloser, error) {
	if !storage.ValidName(name) {
		return nil, storage.ErrNotFound
	}

	f, err := os.Open(filepath.Join(s.basePath, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("%w: open %s: %v", storage.ErrStoreIO, name, err)
	}

	return f, nil
}

// evict must be called with the write lock held.
func (s *Storage) evict() error {
	entries, err := s.entries()
	if err != nil {
		return fmt.Errorf("%w: %v", storage.ErrStoreIO, err)
	}

	_, extras := storage.Split(entries, s.capacity)
	for _, e := range extras {
		if err := os.Remove(filepath.Join(s.basePath, e.Name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: remove %s: %v", storage.ErrStoreIO, e.Name, err)
		}
		if err := os.Remove(filepath.Join(s.basePath, storage.RecordName(e.Name))); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: remove record of %s: %v", storage.ErrStoreIO, e.Name, err)
		}

		zlog.Logger.Info().Str("file", e.Name).Msg("evicted gallery image")
	}

	return nil
}

// entries lists the images in the directory, newest first.
func (s *Storage) entries() ([]storage.Entry, error) {
	dirEntries, err := os.ReadDir(s.basePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: read directory %s: %v", storage.ErrList, s.basePath, err)
	}

	entries := make([]storage.Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		if de.IsDir() || !storage.ValidName(de.Name()) {
			continue
		}

		info, err := de.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("%w: stat %s: %v", storage.ErrList, de.Name(), err)
		}

		entries = append(entries, storage.Entry{Name: de.Name(), ModTime: info.ModTime()})
	}

	storage.SortNewest(entries)

	return entries, nil
}

// readRecord returns the caption record of an image, or nil when it is
// missing or unreadable.
func (s *Storage) readRecord(name string) *model.Record {
	data, err := os.ReadFile(filepath.Join(s.basePath, storage.RecordName(name)))
	if err != nil {
		return nil
	}

	var rec model.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		zlog.Logger.Warn().Err(err).Str("file", name).Msg("ignoring malformed image record")
		return nil
	}

	return &rec
}

// writeAtomic writes data to a temporary file and renames it into place,
// so readers never see a partial file.
func (s *Storage) writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(s.basePath, ".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %v", storage.ErrStoreIO, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: write %s: %v", storage.ErrStoreIO, path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %v", storage.ErrStoreIO, path, err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("%w: rename to %s: %v", storage.ErrStoreIO, path, err)
	}

	return nil
}

// nextTime returns a creation time whose millisecond is unused, so
// filenames stay unique even when saves land in the same millisecond.
func (s *Storage) nextTime() time.Time {
	ms := s.now().UnixMilli()
	if ms <= s.last {
		ms = s.last + 1
	}

	for {
		if _, err := os.Stat(filepath.Join(s.basePath, storage.Filename(time.UnixMilli(ms)))); err != nil {
			break
		}
		ms++
	}

	s.last = ms

	return time.UnixMilli(ms)
}
