package frontier

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/crawlkit/frontier/internal/metrics"
	"github.com/crawlkit/frontier/internal/supervise"
)

// DefaultChunkSize bounds how many requests travel in one forwarded
// store call; larger batches are split client-side into consecutive
// chunks with no cross-chunk atomicity.
const DefaultChunkSize = 50

// DefaultBackend is the backend name used when the config leaves it
// blank.
const DefaultBackend = "memory"

// Config controls Router behavior.
type Config struct {
	// Backend names the storage strategy opened for each new worker.
	Backend string
	// ChunkSize caps the number of requests per forwarded store call.
	ChunkSize int
}

// Router is the process-wide dispatcher for frontier operations. It maps
// spiders to their storage workers, creates workers on demand, forwards
// store/pop/stats calls, and prunes its registries when a worker
// terminates. The two registry maps are mutually inverse and only ever
// updated together under one critical section.
type Router struct {
	cfg      Config
	backends Backends
	stages   *StageRegistry
	logger   *zap.Logger

	mu       sync.Mutex
	bySpider map[string]*Worker
	byWorker map[*Worker]string
}

// NewRouter constructs a Router. The backends table must contain the
// configured backend name; stages may be empty when no pipeline is
// wired.
func NewRouter(cfg Config, backends Backends, stages *StageRegistry, logger *zap.Logger) *Router {
	metrics.Init()
	if cfg.Backend == "" {
		cfg.Backend = DefaultBackend
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if stages == nil {
		stages = NewStageRegistry()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		cfg:      cfg,
		backends: backends,
		stages:   stages,
		logger:   logger,
		bySpider: make(map[string]*Worker),
		byWorker: make(map[*Worker]string),
	}
}

// StartWorker creates and registers a storage worker for the job. If the
// spider already has a live worker it returns that worker along with
// ErrAlreadyStarted and performs no action. Workers run under a
// temporary supervision policy: a crash deregisters the job but never
// restarts it.
func (r *Router) StartWorker(job Job) (*Worker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.bySpider[job.Spider]; ok {
		return existing, ErrAlreadyStarted
	}

	backend, err := r.backends.Open(r.cfg.Backend, job)
	if err != nil {
		return nil, fmt.Errorf("start worker for %s: %w", job.Spider, err)
	}

	w := newWorker(job, backend, r.stages, r.logger.Named("worker").With(
		zap.String("spider", job.Spider),
		zap.String("crawl_id", job.CrawlID),
	))
	w.handle = supervise.Start("frontier-worker/"+job.Spider, r.logger, w.run)

	r.bySpider[job.Spider] = w
	r.byWorker[w] = job.Spider
	metrics.IncActiveWorkers()

	go r.watch(w)

	r.logger.Info("frontier worker registered",
		zap.String("spider", job.Spider),
		zap.String("crawl_id", job.CrawlID),
		zap.String("backend", r.cfg.Backend),
	)
	return w, nil
}

// watch consumes the single termination notification for a worker and
// prunes both registry maps. The router itself survives any worker
// failure.
func (r *Router) watch(w *Worker) {
	<-w.handle.Done()
	if err := w.handle.Err(); err != nil {
		metrics.ObserveWorkerCrash()
		r.logger.Error("frontier worker terminated abnormally",
			zap.String("spider", w.job.Spider),
			zap.String("crawl_id", w.job.CrawlID),
			zap.Error(err),
		)
	}
	r.deregister(w)
}

// deregister removes the worker from both maps if it is still
// registered. Idempotent: the liveness watch and StopWorker may both
// arrive here.
func (r *Router) deregister(w *Worker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	spider, ok := r.byWorker[w]
	if !ok {
		return
	}
	delete(r.byWorker, w)
	// Guard against a newer worker having been registered for the same
	// spider after this one died.
	if r.bySpider[spider] == w {
		delete(r.bySpider, spider)
	}
	metrics.DecActiveWorkers()
	r.logger.Info("frontier worker deregistered", zap.String("spider", spider))
}

// StopWorker gracefully shuts down the spider's worker and waits for it
// to be deregistered. Returns ErrNotRunning when the spider is unknown.
func (r *Router) StopWorker(spider string) error {
	w := r.lookup(spider)
	if w == nil {
		return ErrNotRunning
	}
	w.shutdown()
	<-w.handle.Done()
	r.deregister(w)
	return nil
}

// Store validates and forwards requests to the spider's worker, chunking
// lists larger than the configured batch limit into consecutive
// forwarded calls. Chunks already acknowledged before a failure are not
// undone.
func (r *Router) Store(spider string, reqs ...*Request) error {
	for _, req := range reqs {
		if !req.Valid() {
			metrics.ObserveRejected()
			r.logger.Error("rejecting malformed frontier request",
				zap.String("spider", spider),
			)
			return ErrNotARequest
		}
	}

	w := r.lookup(spider)
	if w == nil {
		return ErrNotRunning
	}

	start := time.Now()
	defer func() { metrics.ObserveOp("store", time.Since(start)) }()

	for _, chunk := range chunkRequests(reqs, r.cfg.ChunkSize) {
		if err := w.Store(chunk); err != nil {
			return r.forwardFailure("store", spider, err)
		}
	}
	return nil
}

// chunkRequests splits reqs into consecutive chunks of at most size
// requests, preserving order.
func chunkRequests(reqs []*Request, size int) [][]*Request {
	var chunks [][]*Request
	for len(reqs) > 0 {
		n := len(reqs)
		if n > size {
			n = size
		}
		chunks = append(chunks, reqs[:n])
		reqs = reqs[n:]
	}
	return chunks
}

// Pop forwards to the spider's worker and returns the next request, or
// nil when the frontier is empty.
func (r *Router) Pop(spider string) (*Request, error) {
	w := r.lookup(spider)
	if w == nil {
		return nil, ErrNotRunning
	}
	start := time.Now()
	defer func() { metrics.ObserveOp("pop", time.Since(start)) }()

	req, err := w.Pop()
	if err != nil {
		return nil, r.forwardFailure("pop", spider, err)
	}
	return req, nil
}

// Stats forwards to the spider's worker and returns the stored-request
// count.
func (r *Router) Stats(spider string) (int, error) {
	w := r.lookup(spider)
	if w == nil {
		return 0, ErrNotRunning
	}
	start := time.Now()
	defer func() { metrics.ObserveOp("stats", time.Since(start)) }()

	count, err := w.Stats()
	if err != nil {
		return 0, r.forwardFailure("stats", spider, err)
	}
	return count, nil
}

// ActiveJobs lists the jobs with live workers, sorted by spider.
func (r *Router) ActiveJobs() []Job {
	r.mu.Lock()
	jobs := make([]Job, 0, len(r.bySpider))
	for _, w := range r.bySpider {
		jobs = append(jobs, w.job)
	}
	r.mu.Unlock()
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Spider < jobs[j].Spider })
	return jobs
}

func (r *Router) lookup(spider string) *Worker {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bySpider[spider]
}

// forwardFailure logs a failed forwarded call. A worker that died
// between lookup and delivery surfaces as ErrWorkerUnavailable rather
// than a silent non-reply.
func (r *Router) forwardFailure(op, spider string, err error) error {
	r.logger.Warn("forwarded frontier call failed",
		zap.String("op", op),
		zap.String("spider", spider),
		zap.Error(err),
	)
	return err
}
