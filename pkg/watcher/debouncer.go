package watcher

import (
	"context"
	"slices"
	"time"

	"github.com/ritzau/fast-uptodate/pkg/logging"
)

// Debouncer merges bursts of change events into one. A batch is emitted after a quiet
// period with no new events, or after maxWait since the first event of the batch.
type Debouncer struct {
	input       <-chan ChangeEvent
	output      chan ChangeEvent
	quietPeriod time.Duration
	maxWait     time.Duration
}

// NewDebouncer creates a new event debouncer
func NewDebouncer(input <-chan ChangeEvent, quietPeriod, maxWait time.Duration) *Debouncer {
	if maxWait < quietPeriod {
		maxWait = quietPeriod
	}
	return &Debouncer{
		input:       input,
		output:      make(chan ChangeEvent, 10),
		quietPeriod: quietPeriod,
		maxWait:     maxWait,
	}
}

// Start begins processing events with debouncing
func (d *Debouncer) Start(ctx context.Context) {
	go d.run(ctx)
}

func (d *Debouncer) run(ctx context.Context) {
	defer close(d.output)

	var (
		pending  *ChangeEvent
		count    int
		quiet    <-chan time.Time
		deadline <-chan time.Time
	)

	flush := func() {
		if pending == nil {
			return
		}
		logging.Debug("flushing accumulated changes", "count", count, "paths", len(pending.Paths))
		pending.Timestamp = time.Now()
		select {
		case d.output <- *pending:
		case <-ctx.Done():
		}
		pending, count, quiet, deadline = nil, 0, nil, nil
	}

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-d.input:
			if !ok {
				flush()
				return
			}
			if pending == nil {
				pending = &ChangeEvent{}
				deadline = time.After(d.maxWait)
			}
			for _, t := range event.Types {
				if !slices.Contains(pending.Types, t) {
					pending.Types = append(pending.Types, t)
				}
			}
			for _, p := range event.Paths {
				if !slices.Contains(pending.Paths, p) {
					pending.Paths = append(pending.Paths, p)
				}
			}
			count++
			quiet = time.After(d.quietPeriod)

		case <-quiet:
			flush()

		case <-deadline:
			flush()
		}
	}
}

// Output returns the channel of debounced events
func (d *Debouncer) Output() <-chan ChangeEvent {
	return d.output
}
