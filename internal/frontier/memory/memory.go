// Package memory provides the reference in-process frontier backend.
package memory

import (
	"github.com/crawlkit/frontier/internal/frontier"
)

// Backend keeps a job's pending requests in an in-process stack. Store
// pushes onto the front and Pop removes from the front, so the most
// recently stored request is served first (LIFO). The bias toward
// depth-first traversal is an observable property relied on by callers.
//
// The owning worker serializes all calls; no locking here.
type Backend struct {
	job      frontier.Job
	requests []*frontier.Request
	count    int
}

// New constructs an uninitialized Backend.
func New() *Backend {
	return &Backend{}
}

// Factory adapts New to the frontier.BackendFactory shape.
func Factory() frontier.Backend {
	return New()
}

// Init resets the backend to an empty frontier for the given job.
func (b *Backend) Init(job frontier.Job) error {
	b.job = job
	b.requests = nil
	b.count = 0
	return nil
}

// Store pushes one request onto the front of the stack.
func (b *Backend) Store(req *frontier.Request) error {
	b.requests = append([]*frontier.Request{req}, b.requests...)
	b.count++
	return nil
}

// Pop removes and returns the most recently stored request, or (nil, nil)
// when the frontier is empty.
func (b *Backend) Pop() (*frontier.Request, error) {
	if len(b.requests) == 0 {
		return nil, nil
	}
	req := b.requests[0]
	b.requests = b.requests[1:]
	b.count--
	return req, nil
}

// Stats returns the number of currently stored requests.
func (b *Backend) Stats() (int, error) {
	return b.count, nil
}
