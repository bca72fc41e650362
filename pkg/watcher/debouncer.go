package watcher

import (
	"context"
	"sync"
	"time"

	"github.com/mhkang/flowscope/pkg/logging"
)

// Debouncer collapses a burst of file change events into one. An event is
// emitted after quietPeriod of silence, or after maxWait even if writes keep
// coming (an editor autosaving in a loop must not starve re-rendering).
type Debouncer struct {
	input       <-chan ChangeEvent
	output      chan ChangeEvent
	quietPeriod time.Duration
	maxWait     time.Duration
}

// NewDebouncer creates a debouncer over the given event stream.
func NewDebouncer(input <-chan ChangeEvent, quietPeriod, maxWait time.Duration) *Debouncer {
	return &Debouncer{
		input:       input,
		output:      make(chan ChangeEvent, 4),
		quietPeriod: quietPeriod,
		maxWait:     maxWait,
	}
}

// Start begins debouncing in the background.
func (d *Debouncer) Start(ctx context.Context) {
	go d.run(ctx)
}

func (d *Debouncer) run(ctx context.Context) {
	var (
		mu           sync.Mutex
		pending      *ChangeEvent
		quietTimer   *time.Timer
		maxWaitTimer *time.Timer
		count        int
	)

	flush := func() {
		mu.Lock()
		defer mu.Unlock()
		if pending == nil {
			return
		}
		logging.Debug("flushing change events", "collapsed", count)
		d.output <- *pending
		pending = nil
		count = 0
		if quietTimer != nil {
			quietTimer.Stop()
		}
		if maxWaitTimer != nil {
			maxWaitTimer.Stop()
			maxWaitTimer = nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			close(d.output)
			return

		case event, ok := <-d.input:
			if !ok {
				flush()
				close(d.output)
				return
			}

			mu.Lock()
			pending = &event
			count++
			if quietTimer == nil {
				quietTimer = time.AfterFunc(d.quietPeriod, flush)
			} else {
				quietTimer.Reset(d.quietPeriod)
			}
			if maxWaitTimer == nil {
				maxWaitTimer = time.AfterFunc(d.maxWait, flush)
			}
			mu.Unlock()
		}
	}
}

// Output returns the channel of debounced events.
func (d *Debouncer) Output() <-chan ChangeEvent {
	return d.output
}
