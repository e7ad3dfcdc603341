package frontier

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/crawlkit/frontier/internal/metrics"
	"github.com/crawlkit/frontier/internal/supervise"
)

// Worker owns one job's frontier: exactly one Backend instance plus the
// pipeline state for that job. A single goroutine (started under
// supervision by the router) drains the op channel, so every store, pop
// and stats call for a job is processed to completion before the next
// one starts, and the backend never sees concurrent access.
type Worker struct {
	job     Job
	backend Backend
	stages  *StageRegistry
	state   *State
	logger  *zap.Logger

	ops    chan workerOp
	stop   chan struct{}
	once   sync.Once
	handle *supervise.Handle
}

type workerOpKind int

const (
	opStore workerOpKind = iota
	opPop
	opStats
)

type workerOp struct {
	kind  workerOpKind
	reqs  []*Request
	reply chan workerReply
}

type workerReply struct {
	req   *Request
	count int
	err   error
}

func newWorker(job Job, backend Backend, stages *StageRegistry, logger *zap.Logger) *Worker {
	return &Worker{
		job:     job,
		backend: backend,
		stages:  stages,
		state:   NewState(job),
		logger:  logger,
		ops:     make(chan workerOp),
		stop:    make(chan struct{}),
	}
}

// run is the worker loop, executed under supervision.
func (w *Worker) run() error {
	w.logger.Info("storage worker started")
	for {
		select {
		case o := <-w.ops:
			o.reply <- w.handleOp(o)
		case <-w.stop:
			w.logger.Info("storage worker stopped")
			return nil
		}
	}
}

func (w *Worker) handleOp(o workerOp) workerReply {
	switch o.kind {
	case opStore:
		return workerReply{err: w.storeAll(o.reqs)}
	case opPop:
		req, err := w.backend.Pop()
		if err != nil {
			return workerReply{err: fmt.Errorf("backend pop: %w", err)}
		}
		if req != nil {
			metrics.ObservePopped(w.job.Spider)
		}
		return workerReply{req: req}
	case opStats:
		count, err := w.backend.Stats()
		if err != nil {
			return workerReply{err: fmt.Errorf("backend stats: %w", err)}
		}
		return workerReply{count: count}
	default:
		return workerReply{err: fmt.Errorf("unknown worker op %d", o.kind)}
	}
}

// storeAll runs each request through the pipeline in order, so later
// requests in the same batch observe state mutations (e.g. fingerprints)
// made while storing earlier ones. Dropped requests never reach the
// backend.
func (w *Worker) storeAll(reqs []*Request) error {
	stored, dropped := 0, 0
	for _, req := range reqs {
		transformed, keep := runPipeline(req, w.state, w.stages, w.logger)
		if !keep {
			dropped++
			continue
		}
		if err := w.backend.Store(transformed); err != nil {
			w.recordStores(stored, dropped)
			return fmt.Errorf("backend store: %w", err)
		}
		stored++
	}
	w.recordStores(stored, dropped)
	return nil
}

func (w *Worker) recordStores(stored, dropped int) {
	if stored > 0 {
		metrics.ObserveStored(w.job.Spider, stored)
	}
	if dropped > 0 {
		metrics.ObserveDropped(w.job.Spider, dropped)
	}
}

// Store forwards a batch of requests to the worker loop.
func (w *Worker) Store(reqs []*Request) error {
	_, err := w.call(workerOp{kind: opStore, reqs: reqs})
	return err
}

// Pop returns the next request from the backend, or nil when empty.
func (w *Worker) Pop() (*Request, error) {
	reply, err := w.call(workerOp{kind: opPop})
	if err != nil {
		return nil, err
	}
	return reply.req, nil
}

// Stats returns the number of requests currently stored for the job.
func (w *Worker) Stats() (int, error) {
	reply, err := w.call(workerOp{kind: opStats})
	if err != nil {
		return 0, err
	}
	return reply.count, nil
}

// call performs one synchronous round trip to the worker loop. If the
// worker terminates before accepting or answering — including a panic in
// a pipeline stage or backend mid-call — the caller gets
// ErrWorkerUnavailable instead of blocking forever.
func (w *Worker) call(o workerOp) (workerReply, error) {
	o.reply = make(chan workerReply, 1)
	select {
	case w.ops <- o:
	case <-w.handle.Done():
		return workerReply{}, ErrWorkerUnavailable
	}
	select {
	case reply := <-o.reply:
		if reply.err != nil {
			return workerReply{}, reply.err
		}
		return reply, nil
	case <-w.handle.Done():
		return workerReply{}, ErrWorkerUnavailable
	}
}

// shutdown asks the worker loop to exit. Safe to call more than once.
func (w *Worker) shutdown() {
	w.once.Do(func() { close(w.stop) })
}
