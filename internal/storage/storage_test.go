package storage

import (
	"testing"
	"time"

	"github.com/aliskhannn/ai-gallery/internal/model"
)

func TestFilename(t *testing.T) {
	ts := time.UnixMilli(1714564800123)

	name := Filename(ts)
	if name != "img-1714564800123.jpg" {
		t.Fatalf("Filename() = %q", name)
	}
	if !ValidName(name) {
		t.Errorf("%q should be a valid image name", name)
	}
	if RecordName(name) != "img-1714564800123.json" {
		t.Errorf("RecordName() = %q", RecordName(name))
	}
}

func TestValidName(t *testing.T) {
	for _, name := range []string{"", "img-.jpg", "img-12.jpeg", "../img-1.jpg", "img-1.jpg/x", "img-abc.jpg", "sunset.jpg", "img-sunset-over-the-sea.jpg"} {
		if ValidName(name) {
			t.Errorf("ValidName(%q) = true, want false", name)
		}
	}
}

func TestCaptionFromFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{in: "img-1714564800123.jpg", want: "1714564800123"},
		{in: "img-a-red-fox.jpg", want: "a red fox"},
		{in: "plain.jpg", want: "plain"},
	}

	for _, tt := range tests {
		if got := CaptionFromFilename(tt.in); got != tt.want {
			t.Errorf("CaptionFromFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSortNewestAndSplit(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	entries := []Entry{
		{Name: "img-1.jpg", ModTime: base},
		{Name: "img-3.jpg", ModTime: base.Add(2 * time.Second)},
		{Name: "img-2.jpg", ModTime: base.Add(2 * time.Second)},
		{Name: "img-4.jpg", ModTime: base.Add(3 * time.Second)},
	}

	SortNewest(entries)

	want := []string{"img-4.jpg", "img-3.jpg", "img-2.jpg", "img-1.jpg"}
	for i, e := range entries {
		if e.Name != want[i] {
			t.Errorf("entries[%d] = %s, want %s", i, e.Name, want[i])
		}
	}

	keep, evict := Split(entries, 3)
	if len(keep) != 3 || len(evict) != 1 || evict[0].Name != "img-1.jpg" {
		t.Errorf("Split() keep=%v evict=%v", keep, evict)
	}

	keep, evict = Split(entries, 10)
	if len(keep) != 4 || evict != nil {
		t.Errorf("Split() below capacity keep=%v evict=%v", keep, evict)
	}
}

func TestImage_PrefersRecord(t *testing.T) {
	e := Entry{Name: "img-a-cat.jpg", ModTime: time.Unix(10, 0)}

	fallback := Image(e, "/g/img-a-cat.jpg", nil)
	if fallback.Prompt != "a cat" {
		t.Errorf("fallback Prompt = %q", fallback.Prompt)
	}

	rec := &model.Record{Prompt: "A cat, in oils", Provider: "openai", Timestamp: time.Unix(20, 0)}
	img := Image(e, "/g/img-a-cat.jpg", rec)
	if img.Prompt != rec.Prompt || img.Provider != "openai" || !img.CreatedAt.Equal(rec.Timestamp) {
		t.Errorf("Image() = %+v", img)
	}
}
