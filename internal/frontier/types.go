// Package frontier defines core types shared across the request-frontier
// subsystems: job identity, pending requests, and the sentinel errors the
// router surfaces to callers.
package frontier

import "errors"

// Job identifies one independently running crawl. Spider is the routing
// key; CrawlID labels the specific run and is carried for diagnostics
// only.
type Job struct {
	Spider  string
	CrawlID string
}

// Request is one unit of pending work: an opaque payload plus the ordered
// list of transformation-stage identifiers to run before storage. The
// router and backends never inspect the payload; only the worker's
// pipeline does.
type Request struct {
	URL    string         `json:"url"`
	Meta   map[string]any `json:"meta,omitempty"`
	Stages []string       `json:"stages,omitempty"`
}

// Valid reports whether the request is a recognizable unit of work.
func (r *Request) Valid() bool {
	return r != nil && r.URL != ""
}

// Sentinel errors returned by router operations.
var (
	// ErrNotRunning indicates the target spider has no live worker.
	ErrNotRunning = errors.New("frontier: storage worker not running")

	// ErrAlreadyStarted indicates StartWorker was called for a spider
	// that already has a live worker; the existing worker remains
	// authoritative.
	ErrAlreadyStarted = errors.New("frontier: storage worker already started")

	// ErrNotARequest indicates a store call carried a value that is not
	// a recognizable Request; nothing is forwarded.
	ErrNotARequest = errors.New("frontier: not a request")

	// ErrWorkerUnavailable indicates a forwarded call raced the death of
	// the worker between registry lookup and delivery.
	ErrWorkerUnavailable = errors.New("frontier: storage worker unavailable")
)
