package model

// JobStatus is the normalized state of a remote generation job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// Job is a remote generation job as reported by a provider.
type Job struct {
	ID     string    `json:"id"`
	Status JobStatus `json:"status"`
	Output string    `json:"output,omitempty"` // image URL once succeeded
	Error  string    `json:"error,omitempty"`
}

// Submission is the result of submitting a prompt to a provider.
// Exactly one of ImageURL, ImageData or JobID is set.
type Submission struct {
	ImageURL  string
	ImageData []byte
	JobID     string
}

// GenerateOptions are provider-independent generation parameters.
type GenerateOptions struct {
	Width  int
	Height int
}
