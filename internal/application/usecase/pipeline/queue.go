package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"xtrend/internal/domain"
)

// Overflow decides what happens when a symbol's queue is full.
type Overflow int

const (
	// DropOldest evicts the oldest queued sample to make room.
	DropOldest Overflow = iota
	// Block makes the producer wait until the worker catches up.
	Block
)

func (o Overflow) String() string {
	switch o {
	case DropOldest:
		return "drop_oldest"
	case Block:
		return "block"
	}
	return fmt.Sprintf("Overflow(%d)", int(o))
}

// ParseOverflow accepts "drop_oldest" (the default for "") or "block".
func ParseOverflow(s string) (Overflow, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "drop_oldest":
		return DropOldest, nil
	case "block":
		return Block, nil
	}
	return 0, fmt.Errorf("invalid overflow policy %q", s)
}

// router owns one bounded queue and one worker per symbol, so updates for a
// symbol are strictly sequential while symbols proceed in parallel.
type router struct {
	size     int
	overflow Overflow
	work     func(domain.PriceSample)

	mu     sync.Mutex
	queues map[string]chan domain.PriceSample
	closed bool
	wg     sync.WaitGroup

	dropped atomic.Uint64
}

func newRouter(size int, overflow Overflow, work func(domain.PriceSample)) *router {
	if size <= 0 {
		size = 256
	}
	return &router{
		size:     size,
		overflow: overflow,
		work:     work,
		queues:   make(map[string]chan domain.PriceSample),
	}
}

func (r *router) queue(symbol string) (chan domain.PriceSample, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, false
	}
	q, ok := r.queues[symbol]
	if !ok {
		q = make(chan domain.PriceSample, r.size)
		r.queues[symbol] = q
		r.wg.Add(1)
		go r.worker(symbol, q)
	}
	return q, true
}

func (r *router) worker(symbol string, q <-chan domain.PriceSample) {
	defer r.wg.Done()
	for s := range q {
		r.work(s)
	}
	log.Debug().Str("symbol", symbol).Msg("worker drained")
}

// push enqueues s. It returns false if the router is closed or ctx ended
// while blocked.
func (r *router) push(ctx context.Context, s domain.PriceSample) bool {
	q, ok := r.queue(s.Symbol)
	if !ok {
		return false
	}

	if r.overflow == Block {
		select {
		case q <- s:
			return true
		default:
		}
		select {
		case q <- s:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for {
		select {
		case q <- s:
			return true
		default:
		}
		select {
		case old := <-q:
			r.dropped.Add(1)
			log.Debug().
				Str("symbol", old.Symbol).
				Time("ts", old.Timestamp).
				Msg("queue full, dropped oldest sample")
		default:
		}
	}
}

// close stops accepting samples and waits for every worker to drain its queue.
// Callers must make sure no push is in flight.
func (r *router) close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	for _, q := range r.queues {
		close(q)
	}
	r.mu.Unlock()
	r.wg.Wait()
}

func (r *router) depth() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int, len(r.queues))
	for sym, q := range r.queues {
		out[sym] = len(q)
	}
	return out
}
