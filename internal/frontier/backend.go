package frontier

import "fmt"

// Backend is the pluggable storage strategy for one job's frontier. A
// worker owns exactly one Backend instance and serializes all calls to
// it, so implementations do not need to be safe for concurrent use.
//
// Contract:
//   - Init is called once, before any other operation, and must leave
//     the backend holding zero requests for the given job.
//   - Store adds one request and keeps the count reported by Stats in
//     sync.
//   - Pop removes and returns the next request per the backend's defined
//     ordering. An empty backend returns (nil, nil), not an error, and
//     the count stays at zero.
//   - Stats returns the number of currently stored requests: successful
//     stores minus successful non-empty pops since Init.
type Backend interface {
	Init(job Job) error
	Store(req *Request) error
	Pop() (*Request, error)
	Stats() (int, error)
}

// BackendFactory constructs an uninitialized Backend for a job.
type BackendFactory func() Backend

// Backends maps backend names to factories. The router resolves the
// configured backend name through this table at worker start.
type Backends map[string]BackendFactory

// Open builds and initializes the named backend for a job.
func (b Backends) Open(name string, job Job) (Backend, error) {
	factory, ok := b[name]
	if !ok {
		return nil, fmt.Errorf("unknown frontier backend: %q", name)
	}
	backend := factory()
	if err := backend.Init(job); err != nil {
		return nil, fmt.Errorf("init %s backend: %w", name, err)
	}
	return backend, nil
}
