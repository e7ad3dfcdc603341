// Package supervise runs component goroutines with panic capture and an
// exactly-once termination signal, the minimal supervision surface the
// frontier router builds its liveness watches on. There is deliberately
// no restart policy: a supervised process runs once ("temporary"), and a
// crash is visible to whoever watches Done rather than papered over.
package supervise

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Handle tracks one supervised goroutine.
type Handle struct {
	name string

	once sync.Once
	done chan struct{}

	mu  sync.Mutex
	err error
}

// Start runs fn on its own goroutine. The returned handle's Done channel
// closes exactly once when fn returns or panics; a panic is recovered,
// logged, and surfaced through Err. The goroutine is never restarted.
func Start(name string, logger *zap.Logger, fn func() error) *Handle {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handle{
		name: name,
		done: make(chan struct{}),
	}
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				err := fmt.Errorf("supervised process %s panicked: %v", name, rec)
				logger.Error("supervised process crashed",
					zap.String("name", name),
					zap.Any("panic", rec),
				)
				h.finish(err)
				return
			}
		}()
		h.finish(fn())
	}()
	return h
}

// Name returns the identifier the handle was started with.
func (h *Handle) Name() string {
	return h.name
}

// Done returns a channel closed exactly once when the supervised
// goroutine has terminated, whether normally or by panic.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Err reports how the goroutine ended: nil for a clean return, otherwise
// the returned or panic-derived error. Only meaningful after Done closes.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

func (h *Handle) finish(err error) {
	h.once.Do(func() {
		h.mu.Lock()
		h.err = err
		h.mu.Unlock()
		close(h.done)
	})
}
