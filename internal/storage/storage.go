// Package storage holds the naming and ordering rules shared by the gallery
// store backends.
//
// Images are named img-<unix millis>.jpg. Each image may have a record
// img-<unix millis>.json holding its structured caption.
package storage

import (
	"errors"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aliskhannn/ai-gallery/internal/model"
)

// DefaultCapacity is the number of images kept when no capacity is configured.
const DefaultCapacity = 10

const (
	imagePrefix = "img-"
	imageExt    = ".jpg"
	recordExt   = ".json"
)

var (
	// ErrStoreIO wraps write and delete failures.
	ErrStoreIO = errors.New("gallery store I/O failed")
	// ErrList wraps failures to read the store contents.
	ErrList = errors.New("gallery listing failed")
	// ErrNotFound is returned for unknown or malformed image names.
	ErrNotFound = errors.New("image not found")
)

var imageName = regexp.MustCompile(`^img-\d+\.jpg$`)

// Filename returns the image name for creation time t.
func Filename(t time.Time) string {
	return imagePrefix + strconv.FormatInt(t.UnixMilli(), 10) + imageExt
}

// RecordName returns the name of the caption record belonging to an image.
func RecordName(filename string) string {
	return strings.TrimSuffix(filename, imageExt) + recordExt
}

// ValidName reports whether name is a well-formed image name. Backends
// list and serve only names that pass it.
func ValidName(name string) bool {
	return imageName.MatchString(name)
}

// CaptionFromFilename approximates a caption from an image name by
// stripping the prefix and extension and turning dashes into spaces.
func CaptionFromFilename(name string) string {
	caption := strings.Replace(name, imagePrefix, "", 1)
	caption = strings.Replace(caption, imageExt, "", 1)

	return strings.ReplaceAll(caption, "-", " ")
}

// Entry is an image as seen by a backend listing.
type Entry struct {
	Name    string
	ModTime time.Time
}

// SortNewest orders entries by modification time, newest first. Equal
// times fall back to the name, which encodes the creation time.
func SortNewest(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].ModTime.Equal(entries[j].ModTime) {
			return entries[i].ModTime.After(entries[j].ModTime)
		}
		return entries[i].Name > entries[j].Name
	})
}

// Split returns the first capacity entries to keep and the rest to evict.
// entries must already be sorted newest first.
func Split(entries []Entry, capacity int) (keep, evict []Entry) {
	if len(entries) <= capacity {
		return entries, nil
	}

	return entries[:capacity], entries[capacity:]
}

// Image builds a StoredImage from a listing entry and its optional record.
func Image(e Entry, path string, rec *model.Record) model.StoredImage {
	img := model.StoredImage{
		Filename:  e.Name,
		Path:      path,
		Prompt:    CaptionFromFilename(e.Name),
		CreatedAt: e.ModTime,
	}

	if rec != nil {
		if rec.Prompt != "" {
			img.Prompt = rec.Prompt
		}
		img.Provider = rec.Provider
		if !rec.Timestamp.IsZero() {
			img.CreatedAt = rec.Timestamp
		}
	}

	return img
}
