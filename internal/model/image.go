package model

import "time"

// StoredImage is a processed image kept in the gallery store.
type StoredImage struct {
	Filename  string    `json:"filename"`
	Path      string    `json:"path"`   // location inside the backend (file path or object key)
	Prompt    string    `json:"prompt"` // caption, from the stored record or derived from the filename
	Provider  string    `json:"provider,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Record is the structured caption persisted next to each stored image.
type Record struct {
	Prompt    string    `json:"prompt"`
	Provider  string    `json:"provider,omitempty"`
	Source    string    `json:"source,omitempty"` // URL the image was fetched from
	Timestamp time.Time `json:"timestamp"`
}

// GalleryEntry is the public view of a stored image.
type GalleryEntry struct {
	ImageURL string `json:"imageUrl"`
	Prompt   string `json:"prompt"`
}
