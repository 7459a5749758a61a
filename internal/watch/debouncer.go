package watch

import (
	"log/slog"
	"sync"
	"time"
)

// Debouncer coalesces rapid events per key. The callback fires for a key
// once no further event for that key arrived within the interval; events
// for different keys do not delay each other.
type Debouncer struct {
	interval time.Duration
	mu       sync.Mutex
	timers   map[string]*time.Timer
	callback func(key string)
}

// NewDebouncer creates a debouncer that waits for interval of quiet per key
// before firing callback with that key.
func NewDebouncer(interval time.Duration, callback func(key string)) *Debouncer {
	return &Debouncer{
		interval: interval,
		timers:   make(map[string]*time.Timer),
		callback: callback,
	}
}

// Trigger records an event for key and restarts its quiet period.
func (d *Debouncer) Trigger(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if t, ok := d.timers[key]; ok {
		t.Stop()
	}

	var timer *time.Timer

	timer = time.AfterFunc(d.interval, func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("debouncer callback panicked", slog.String("key", key), slog.Any("error", r))
			}
		}()

		d.mu.Lock()
		current := d.timers[key] == timer
		if current {
			delete(d.timers, key)
		}
		d.mu.Unlock()

		if current {
			d.callback(key)
		}
	})

	d.timers[key] = timer
}

// Pending returns the number of keys waiting for their quiet period.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.timers)
}

// Stop cancels all pending callbacks.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for key, t := range d.timers {
		t.Stop()
		delete(d.timers, key)
	}
}
