package watch

import (
	"sync"
	"time"
)

// debounceKey is (event kind, absolute path); a burst of same-key events
// within the window collapses to one fire.
type debounceKey struct {
	kind Kind
	path string
}

// debouncer coalesces per-(event,path) bursts into a single fire, cancelling
// and restarting the window's timer on every same-key arrival.
type debouncer struct {
	window time.Duration
	mu     sync.Mutex
	timers map[debounceKey]*time.Timer
	fire   func(kind Kind, path string)
}

func newDebouncer(window time.Duration, fire func(kind Kind, path string)) *debouncer {
	return &debouncer{
		window: window,
		timers: make(map[debounceKey]*time.Timer),
		fire:   fire,
	}
}

// Add (re)schedules the fire for key, cancelling any pending timer for the
// same (kind, path) so the window restarts.
func (d *debouncer) Add(kind Kind, path string) {
	key := debounceKey{kind: kind, path: path}

	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.timers[key]; ok {
		t.Stop()
	}
	d.timers[key] = time.AfterFunc(d.window, func() {
		d.mu.Lock()
		delete(d.timers, key)
		d.mu.Unlock()
		d.fire(kind, path)
	})
}

// Pending returns the number of debounce timers currently armed, exposed as
// the watcher-pending-ops counter.
func (d *debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.timers)
}

// Cancel stops every pending timer without firing, used when the watcher is
// disabled.
func (d *debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for k, t := range d.timers {
		t.Stop()
		delete(d.timers, k)
	}
}
