package workers

import (
	"encoding/json"
	"io"
	"sync"
)

// Emitter writes NDJSON Events to an underlying writer (the worker
// subprocess's stdout). Safe for concurrent use, since a job may report
// progress from one goroutine while checking cancellation from another.
type Emitter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewEmitter wraps w (typically os.Stdout in the worker subprocess).
func NewEmitter(w io.Writer) *Emitter {
	return &Emitter{w: w}
}

func (e *Emitter) write(ev Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = e.w.Write(data)
	return err
}

// Message emits a free-text status line.
func (e *Emitter) Message(text string) error {
	return e.write(Event{Kind: KindMessage, Message: text})
}

// Progress emits a 0..100 completion percentage.
func (e *Emitter) Progress(percent int) error {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	return e.write(Event{Kind: KindProgress, Progress: percent})
}

// Result emits the job's final payload, marshalled to JSON.
func (e *Emitter) Result(result any) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return e.write(Event{Kind: KindResult, Result: raw})
}

// Error emits a terminal failure message.
func (e *Emitter) Error(err error) error {
	return e.write(Event{Kind: KindError, Error: err.Error()})
}

// CancelFlag is a process-local cooperative cancellation flag a task
// polls at its own safe points (spec §4.5: "the worker is expected to
// observe the flag at safe points but need not"). In the self-reexec
// model the flag is driven by the parent's Interrupt signal rather than
// shared memory; cmd/basiliskllm's worker subcommand sets one on os.Interrupt.
type CancelFlag struct {
	ch chan struct{}
}

// NewCancelFlag returns an unset CancelFlag.
func NewCancelFlag() *CancelFlag {
	return &CancelFlag{ch: make(chan struct{})}
}

// Set marks the flag as cancelled. Idempotent.
func (f *CancelFlag) Set() {
	select {
	case <-f.ch:
	default:
		close(f.ch)
	}
}

// Cancelled reports whether Set has been called.
func (f *CancelFlag) Cancelled() bool {
	select {
	case <-f.ch:
		return true
	default:
		return false
	}
}

// Done returns a channel closed when the flag is set, for use in select
// statements alongside other cancellation sources.
func (f *CancelFlag) Done() <-chan struct{} { return f.ch }
