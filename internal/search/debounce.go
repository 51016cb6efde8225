package search

import (
	"context"
	"sync"
	"time"
)

// Debouncer collapses bursts of queries, such as keystrokes in a search box,
// into one search once input has been quiet for the wait period. A newer
// trigger cancels a search still in flight, so only the latest query's
// result is delivered.
type Debouncer struct {
	svc      *Service
	wait     time.Duration
	onResult func(Result, error)

	mu     sync.Mutex
	timer  *time.Timer
	cancel context.CancelFunc
	seq    uint64
	closed bool
}

func NewDebouncer(svc *Service, wait time.Duration, onResult func(Result, error)) *Debouncer {
	return &Debouncer{svc: svc, wait: wait, onResult: onResult}
}

func (d *Debouncer) Trigger(q Query) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.stopLocked()
	d.seq++
	seq := d.seq
	d.timer = time.AfterFunc(d.wait, func() { d.run(seq, q) })
}

func (d *Debouncer) run(seq uint64, q Query) {
	d.mu.Lock()
	if d.closed || seq != d.seq {
		d.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.mu.Unlock()

	res, err := d.svc.Search(ctx, q)
	cancel()

	d.mu.Lock()
	stale := d.closed || seq != d.seq
	d.mu.Unlock()
	if !stale && d.onResult != nil {
		d.onResult(res, err)
	}
}

func (d *Debouncer) stopLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
}

// Stop drops any pending or running search. Results are no longer delivered.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.stopLocked()
}
