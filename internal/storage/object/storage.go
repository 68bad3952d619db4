package object

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/ai-gallery/internal/model"
	"github.com/aliskhannn/ai-gallery/internal/storage"
)

// User metadata keys carrying the caption record.
const (
	metaPrompt   = "Prompt"
	metaProvider = "Provider"
	metaSource   = "Source"
)

// Storage provides an S3-compatible gallery backend using MinIO.
// Images live under a key prefix in one bucket; the caption record is
// kept in the object's user metadata.
type Storage struct {
	mu         sync.RWMutex
	client     *minio.Client
	bucketName string
	prefix     string
	capacity   int
	last       int64
}

// NewStorage creates a new Storage instance connected to the specified MinIO server.
// If the bucket does not exist, it will be created automatically.
func NewStorage(ctx context.Context, endpoint, accessKey, secretKey, bucketName, prefix string, useSSL bool, capacity int) (*Storage, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, bucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check if bucket exists: %w", err)
	}

	if !exists {
		if err := client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	if capacity <= 0 {
		capacity = storage.DefaultCapacity
	}

	return &Storage{
		client:     client,
		bucketName: bucketName,
		prefix:     normalizePrefix(prefix),
		capacity:   capacity,
	}, nil
}

// Save uploads data as a new image, then evicts the oldest images beyond capacity.
func (s *Storage) Save(ctx context.Context, data []byte, rec model.Record) (model.StoredImage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	created := s.nextTime()
	name := storage.Filename(created)
	key := s.prefix + name
	rec.Timestamp = created

	_, err := s.client.PutObject(ctx, s.bucketName, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:  "image/jpeg",
		UserMetadata: encodeRecord(rec),
	})
	if err != nil {
		return model.StoredImage{}, fmt.Errorf("%w: put %s: %v", storage.ErrStoreIO, key, err)
	}

	if err := s.evict(ctx); err != nil {
		return model.StoredImage{}, err
	}

	return storage.Image(storage.Entry{Name: name, ModTime: created}, key, &rec), nil
}

// List returns the stored images, newest first, at most capacity of them.
func (s *Storage) List(ctx context.Context) ([]model.StoredImage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := s.entries(ctx)
	if err != nil {
		return nil, err
	}

	keep, _ := storage.Split(entries, s.capacity)

	images := make([]model.StoredImage, 0, len(keep))
	for _, e := range keep {
		key := s.prefix + e.Name
		images = append(images, storage.Image(e, key, s.readRecord(ctx, key)))
	}

	return images, nil
}

// Evict deletes every image beyond capacity, oldest first.
func (s *Storage) Evict(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.evict(ctx)
}

// Open retrieves a stored image and returns a reader.
func (s *Storage) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if !storage.ValidName(name) {
		return nil, storage.ErrNotFound
	}

	key := s.prefix + name
	if _, err := s.client.StatObject(ctx, s.bucketName, key, minio.StatObjectOptions{}); err != nil {
		if isNotFound(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("%w: stat %s: %v", storage.ErrStoreIO, key, err)
	}

	obj, err := s.client.GetObject(ctx, s.bucketName, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %v", storage.ErrStoreIO, key, err)
	}

	return obj, nil
}

// evict must be called with the write lock held.
func (s *Storage) evict(ctx context.Context) error {
	entries, err := s.entries(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", storage.ErrStoreIO, err)
	}

	_, extras := storage.Split(entries, s.capacity)
	for _, e := range extras {
		key := s.prefix + e.Name
		if err := s.client.RemoveObject(ctx, s.bucketName, key, minio.RemoveObjectOptions{}); err != nil {
			return fmt.Errorf("%w: remove %s: %v", storage.ErrStoreIO, key, err)
		}

		zlog.Logger.Info().Str("object", key).Msg("evicted gallery image")
	}

	return nil
}

// entries lists the images under the prefix, newest first.
func (s *Storage) entries(ctx context.Context) ([]storage.Entry, error) {
	var entries []storage.Entry

	for obj := range s.client.ListObjects(ctx, s.bucketName, minio.ListObjectsOptions{Prefix: s.prefix}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("%w: list %s: %v", storage.ErrList, s.prefix, obj.Err)
		}

		name := strings.TrimPrefix(obj.Key, s.prefix)
		if strings.Contains(name, "/") || !storage.ValidName(name) {
			continue
		}

		entries = append(entries, storage.Entry{Name: name, ModTime: obj.LastModified})
	}

	storage.SortNewest(entries)

	return entries, nil
}

// readRecord returns the caption record stored in the object's metadata,
// or nil when it cannot be read.
func (s *Storage) readRecord(ctx context.Context, key string) *model.Record {
	info, err := s.client.StatObject(ctx, s.bucketName, key, minio.StatObjectOptions{})
	if err != nil {
		zlog.Logger.Warn().Err(err).Str("object", key).Msg("failed to read image record")
		return nil
	}

	return decodeRecord(info.UserMetadata)
}

// nextTime returns a creation time with an unused millisecond.
// S3 LastModified has second precision, so the name breaks ties.
func (s *Storage) nextTime() time.Time {
	ms := time.Now().UnixMilli()
	if ms <= s.last {
		ms = s.last + 1
	}
	s.last = ms

	return time.UnixMilli(ms)
}

// encodeRecord turns a record into object metadata. Values are query
// escaped because S3 metadata must be ASCII.
func encodeRecord(rec model.Record) map[string]string {
	meta := map[string]string{
		metaPrompt: url.QueryEscape(rec.Prompt),
	}
	if rec.Provider != "" {
		meta[metaProvider] = url.QueryEscape(rec.Provider)
	}
	if rec.Source != "" {
		meta[metaSource] = url.QueryEscape(rec.Source)
	}

	return meta
}

// decodeRecord reverses encodeRecord. Keys are matched case-insensitively
// since servers differ in how they return them.
func decodeRecord(meta map[string]string) *model.Record {
	var (
		rec   model.Record
		found bool
	)

	for k, v := range meta {
		value, err := url.QueryUnescape(v)
		if err != nil {
			value = v
		}

		switch strings.TrimPrefix(strings.ToLower(k), "x-amz-meta-") {
		case strings.ToLower(metaPrompt):
			rec.Prompt = value
			found = true
		case strings.ToLower(metaProvider):
			rec.Provider = value
		case strings.ToLower(metaSource):
			rec.Source = value
		}
	}

	if !found {
		return nil
	}

	return &rec
}

func normalizePrefix(prefix string) string {
	prefix = strings.Trim(path.Clean("/"+prefix), "/")
	if prefix == "" {
		return ""
	}

	return prefix + "/"
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound
}
