package frontier

import (
	"sync"

	"go.uber.org/zap"
)

// State is the per-worker scratch state shared by pipeline stages across
// every request the worker processes. Stages use it to accumulate
// backend-derived information (seen fingerprints, per-domain counters),
// which is what makes duplicates within a single store batch detectable.
// Only the owning worker's goroutine touches a State.
type State struct {
	Job    Job
	Values map[string]any
}

// NewState builds an empty State for a job.
func NewState(job Job) *State {
	return &State{Job: job, Values: make(map[string]any)}
}

// Stage is one transformation step applied to a request before storage.
// Process returns the (possibly modified) request and whether to keep it.
// A false keep drops the request; stages may still mutate state on drop,
// e.g. recording a fingerprint as seen.
type Stage interface {
	Name() string
	Process(req *Request, state *State) (*Request, bool)
}

// StageRegistry resolves the stage identifiers carried on requests to
// Stage implementations. Registration happens at wiring time; lookups
// happen on every store, so reads take the cheap path of an RWMutex.
type StageRegistry struct {
	mu     sync.RWMutex
	stages map[string]Stage
}

// NewStageRegistry constructs an empty registry.
func NewStageRegistry() *StageRegistry {
	return &StageRegistry{stages: make(map[string]Stage)}
}

// Register adds or replaces a stage under its own name.
func (r *StageRegistry) Register(stage Stage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stages[stage.Name()] = stage
}

// Resolve returns the stage registered under id.
func (r *StageRegistry) Resolve(id string) (Stage, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stage, ok := r.stages[id]
	return stage, ok
}

// runPipeline folds the request's stage list over the worker state,
// short-circuiting on the first drop. Unknown stage identifiers are
// logged and skipped rather than dropping the request: a config typo
// should not silently empty a frontier.
func runPipeline(
	req *Request,
	state *State,
	registry *StageRegistry,
	logger *zap.Logger,
) (*Request, bool) {
	current := req
	for _, id := range req.Stages {
		stage, ok := registry.Resolve(id)
		if !ok {
			logger.Warn("unknown pipeline stage, skipping",
				zap.String("stage", id),
				zap.String("spider", state.Job.Spider),
			)
			continue
		}
		next, keep := stage.Process(current, state)
		if !keep {
			logger.Debug("request dropped by pipeline stage",
				zap.String("stage", id),
				zap.String("spider", state.Job.Spider),
				zap.String("url", current.URL),
			)
			return nil, false
		}
		current = next
	}
	return current, true
}

// FingerprintStage is the reference deduplication stage: it drops any
// request whose URL fingerprint has been seen before on this worker,
// marking the fingerprint as seen either way.
type FingerprintStage struct{}

// Name returns the identifier requests use to select this stage.
func (FingerprintStage) Name() string { return "fingerprint" }

const fingerprintStateKey = "fingerprint.seen"

// Process marks the request's URL as seen and drops it if it already was.
func (FingerprintStage) Process(req *Request, state *State) (*Request, bool) {
	seen, ok := state.Values[fingerprintStateKey].(map[string]struct{})
	if !ok {
		seen = make(map[string]struct{})
		state.Values[fingerprintStateKey] = seen
	}
	if _, dup := seen[req.URL]; dup {
		return nil, false
	}
	seen[req.URL] = struct{}{}
	return req, true
}
