package object

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/johannesboyne/gofakes3"
	"github.com/johannesboyne/gofakes3/backend/s3mem"
	"github.com/minio/minio-go/v7"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/ai-gallery/internal/model"
	"github.com/aliskhannn/ai-gallery/internal/storage"
)

func TestMain(m *testing.M) {
	zlog.Init()
	os.Exit(m.Run())
}

// newTestStorage starts an in-memory S3 server and connects a Storage to it.
// A nil clock uses the wall clock.
func newTestStorage(t *testing.T, prefix string, clock gofakes3.TimeSource) *Storage {
	t.Helper()

	var (
		backendOpts []s3mem.Option
		serverOpts  []gofakes3.Option
	)
	if clock != nil {
		backendOpts = append(backendOpts, s3mem.WithTimeSource(clock))
		serverOpts = append(serverOpts, gofakes3.WithTimeSource(clock))
	}

	faker := gofakes3.New(s3mem.New(backendOpts...), serverOpts...)
	srv := httptest.NewServer(faker.Server())
	t.Cleanup(srv.Close)

	s, err := NewStorage(context.Background(), strings.TrimPrefix(srv.URL, "http://"), "key", "secret", "gallery", prefix, false, 10)
	if err != nil {
		t.Fatalf("NewStorage() error = %v", err)
	}
	return s
}

func saveN(t *testing.T, s *Storage, n int) []model.StoredImage {
	t.Helper()

	saved := make([]model.StoredImage, 0, n)
	for i := 1; i <= n; i++ {
		img, err := s.Save(context.Background(), []byte(fmt.Sprintf("jpeg-%d", i)), model.Record{Prompt: fmt.Sprintf("t%d", i), Provider: "replicate"})
		if err != nil {
			t.Fatalf("Save(t%d) error = %v", i, err)
		}
		saved = append(saved, img)
	}
	return saved
}

func objectKeys(t *testing.T, s *Storage) []string {
	t.Helper()

	var keys []string
	for obj := range s.client.ListObjects(context.Background(), s.bucketName, minio.ListObjectsOptions{Recursive: true}) {
		if obj.Err != nil {
			t.Fatalf("list objects: %v", obj.Err)
		}
		keys = append(keys, obj.Key)
	}
	return keys
}

func TestSave_ElevenImages(t *testing.T) {
	tests := []struct {
		name  string
		clock gofakes3.TimeSource
	}{
		{name: "wall clock"},
		// Every object shares one LastModified, so order comes from the name.
		{name: "same last modified", clock: gofakes3.FixedTimeSource(time.Now())},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			s := newTestStorage(t, "ai", tt.clock)

			saved := saveN(t, s, 11)

			if keys := objectKeys(t, s); len(keys) != 10 {
				t.Fatalf("objects = %d (%v), want 10", len(keys), keys)
			}

			list, err := s.List(ctx)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(list) != 10 {
				t.Fatalf("len(List()) = %d, want 10", len(list))
			}
			for i, img := range list {
				want := saved[10-i]
				if img.Filename != want.Filename || img.Prompt != want.Prompt {
					t.Errorf("list[%d] = %s %q, want %s %q", i, img.Filename, img.Prompt, want.Filename, want.Prompt)
				}
			}

			if _, err := s.Open(ctx, saved[0].Filename); !errors.Is(err, storage.ErrNotFound) {
				t.Errorf("Open(evicted) error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestSave_RecordRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t, "ai", nil)

	rec := model.Record{Prompt: "un café à Paris", Provider: "openai", Source: "https://x/y.png?a=b"}
	img, err := s.Save(ctx, []byte("jpeg"), rec)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if img.Path != "ai/"+img.Filename {
		t.Errorf("Path = %q, want key under prefix", img.Path)
	}

	list, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("len(List()) = %d, want 1", len(list))
	}
	if list[0].Prompt != rec.Prompt || list[0].Provider != rec.Provider {
		t.Errorf("List()[0] = %+v, want prompt %q provider %q", list[0], rec.Prompt, rec.Provider)
	}

	got := s.readRecord(ctx, img.Path)
	if got == nil || got.Source != rec.Source {
		t.Errorf("readRecord() = %+v, want source %q", got, rec.Source)
	}
}

func TestList_OnlyServableNames(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t, "ai", nil)

	saveN(t, s, 1)
	for _, key := range []string{"ai/sunset.jpg", "ai/img-sunset.jpg", "ai/nested/img-1.jpg", "other/img-2.jpg"} {
		if _, err := s.client.PutObject(ctx, s.bucketName, key, bytes.NewReader([]byte("jpeg")), 4, minio.PutObjectOptions{}); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}

	list, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 1 || list[0].Prompt != "t1" {
		t.Fatalf("List() = %+v, want only the saved image", list)
	}

	for _, img := range list {
		rc, err := s.Open(ctx, img.Filename)
		if err != nil {
			t.Errorf("Open(%q) error = %v, listed images must open", img.Filename, err)
			continue
		}
		rc.Close()
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t, "", nil)

	img, err := s.Save(ctx, []byte("jpeg-bytes"), model.Record{Prompt: "x"})
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	rc, err := s.Open(ctx, img.Filename)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "jpeg-bytes" {
		t.Errorf("data = %q", data)
	}

	// img-999.jpg is well formed but absent, so the server answers NoSuchKey.
	for _, name := range []string{"img-999.jpg", "../img-1.jpg", "sunset.jpg"} {
		if _, err := s.Open(ctx, name); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("Open(%q) error = %v, want ErrNotFound", name, err)
		}
	}
}

func TestEvict_NoopBelowCapacity(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t, "ai", nil)

	if err := s.Evict(ctx); err != nil {
		t.Fatalf("Evict() on empty bucket error = %v", err)
	}

	saveN(t, s, 3)
	if err := s.Evict(ctx); err != nil {
		t.Fatalf("Evict() error = %v", err)
	}
	if keys := objectKeys(t, s); len(keys) != 3 {
		t.Errorf("objects = %d, want 3", len(keys))
	}
}

func TestNormalizePrefix(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{in: "", want: ""},
		{in: "/", want: ""},
		{in: "gallery", want: "gallery/"},
		{in: "/gallery/", want: "gallery/"},
		{in: "a//b/../c", want: "a/c/"},
	}

	for _, tt := range tests {
		if got := normalizePrefix(tt.in); got != tt.want {
			t.Errorf("normalizePrefix(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRecordMetadata(t *testing.T) {
	rec := model.Record{Prompt: "un café à Paris, 日本", Provider: "replicate", Source: "https://x/y.png?a=b"}

	meta := encodeRecord(rec)
	for k, v := range meta {
		for _, r := range v {
			if r > 127 {
				t.Fatalf("metadata %s = %q is not ASCII", k, v)
			}
		}
	}

	// Servers return metadata keys with the amz prefix and varying case.
	returned := make(map[string]string, len(meta))
	for k, v := range meta {
		returned["X-Amz-Meta-"+k] = v
	}

	got := decodeRecord(returned)
	if got == nil {
		t.Fatal("decodeRecord() = nil")
	}
	if got.Prompt != rec.Prompt || got.Provider != rec.Provider || got.Source != rec.Source {
		t.Errorf("decodeRecord() = %+v, want %+v", *got, rec)
	}
}

func TestDecodeRecord_Missing(t *testing.T) {
	if got := decodeRecord(map[string]string{"Content-Type": "image/jpeg"}); got != nil {
		t.Errorf("decodeRecord() = %+v, want nil", got)
	}
}
