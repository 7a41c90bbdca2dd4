package visibility

import (
	"sync"
	"time"
)

// Debouncer rate-limits a recomputation triggered by a stream of change
// events. The first event of a burst fires immediately; events arriving
// during the cooldown extend it and collapse into one trailing fire.
type Debouncer struct {
	window time.Duration
	fn     func()

	mu      sync.Mutex
	timer   *time.Timer
	gen     uint64
	pending bool
}

// NewDebouncer returns a Debouncer calling fn at most once per quiet window.
func NewDebouncer(window time.Duration, fn func()) *Debouncer {
	return &Debouncer{window: window, fn: fn}
}

// Trigger records a change event.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	if d.timer != nil {
		d.pending = true
		d.arm()
		d.mu.Unlock()
		return
	}
	d.arm()
	d.mu.Unlock()
	d.fn()
}

// Cancel drops a pending trailing fire and returns to idle.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pending = false
}

// arm (re)starts the cooldown. Callers hold d.mu.
func (d *Debouncer) arm() {
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = time.AfterFunc(d.window, func() { d.expire(gen) })
}

func (d *Debouncer) expire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen {
		d.mu.Unlock()
		return
	}
	if !d.pending {
		d.timer = nil
		d.mu.Unlock()
		return
	}
	d.pending = false
	d.arm()
	d.mu.Unlock()
	d.fn()
}
