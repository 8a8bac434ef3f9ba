package watcher

import (
	"context"
	"sync/atomic"
	"time"
)

// DefaultDebounce is the quiet period after the last event before a flush.
const DefaultDebounce = 100 * time.Millisecond

// State is the debouncer phase.
type State int32

// Debouncer states.
const (
	StateIdle State = iota
	StateArmed
	StateFlushing
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateArmed:
		return "armed"
	case StateFlushing:
		return "flushing"
	default:
		return "idle"
	}
}

// Debouncer coalesces events per path and emits one request per pending path
// once no event has arrived for the window. The window restarts on every
// event. Emission blocks while out is full.
type Debouncer struct {
	window time.Duration
	out    chan<- Request

	pending map[string]Op
	order   []string
	rescan  bool
	batch   uint64
	state   atomic.Int32
}

// NewDebouncer creates a debouncer writing to out.
func NewDebouncer(window time.Duration, out chan<- Request) *Debouncer {
	if window <= 0 {
		window = DefaultDebounce
	}

	return &Debouncer{
		window:  window,
		out:     out,
		pending: make(map[string]Op),
	}
}

// State returns the current phase.
func (d *Debouncer) State() State {
	return State(d.state.Load())
}

// Run consumes events until they close or ctx is done. Pending changes are
// flushed when events close; they are dropped when ctx is done.
func (d *Debouncer) Run(ctx context.Context, events <-chan Event) error {
	timer := time.NewTimer(d.window)
	stopTimer(timer)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return d.flush(ctx)
			}

			d.add(ev)
			stopTimer(timer)
			timer.Reset(d.window)
		case <-timer.C:
			if err := d.flush(ctx); err != nil {
				return err
			}
		}
	}
}

// add merges ev into the pending set. A removal overrides anything earlier;
// a create or write after a removal becomes a reanalysis.
func (d *Debouncer) add(ev Event) {
	d.state.Store(int32(StateArmed))

	if ev.Op == OpRescan {
		d.rescan = true
		clear(d.pending)
		d.order = d.order[:0]

		return
	}

	if _, seen := d.pending[ev.Path]; !seen {
		d.order = append(d.order, ev.Path)
	}

	d.pending[ev.Path] = ev.Op
}

func (d *Debouncer) flush(ctx context.Context) error {
	if !d.rescan && len(d.order) == 0 {
		d.state.Store(int32(StateIdle))

		return nil
	}

	d.state.Store(int32(StateFlushing))
	d.batch++

	reqs := make([]Request, 0, len(d.order)+1)

	if d.rescan {
		reqs = append(reqs, Request{Op: OpRescan, Batch: d.batch})
	}

	for _, p := range d.order {
		reqs = append(reqs, Request{Op: d.pending[p], Path: p, Batch: d.batch})
	}

	reqs[len(reqs)-1].Last = true

	clear(d.pending)
	d.order = d.order[:0]
	d.rescan = false

	for _, r := range reqs {
		select {
		case d.out <- r:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	d.state.Store(int32(StateIdle))

	return nil
}

func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}
