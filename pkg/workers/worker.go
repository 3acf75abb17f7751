// Package workers runs long-running OCR/transcription jobs in a separate
// OS process (spec §4.5), isolating native SDK work from the caller's
// event loop. Workers are spawned as a self-reexec of the current binary
// with a hidden subcommand, mirroring how the teacher's own daemon mode
// is invoked (cmd/basiliskllm's "worker" subcommand).
package workers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync/atomic"
	"time"

	"github.com/sigmanight/basiliskllm/pkg/errs"
	"github.com/sigmanight/basiliskllm/pkg/logger"
)

// MessageKind tags one line of the worker's result stream (spec §4.5's
// tagged tuples: ("message", str), ("progress", int), ("result", any),
// ("error", str)).
type MessageKind string

const (
	KindMessage  MessageKind = "message"
	KindProgress MessageKind = "progress"
	KindResult   MessageKind = "result"
	KindError    MessageKind = "error"
)

// Event is one line of NDJSON written by the worker process to its
// stdout; the parent decodes each line as it arrives and forwards it on
// Events().
type Event struct {
	Kind     MessageKind     `json:"kind"`
	Message  string          `json:"message,omitempty"`
	Progress int             `json:"progress,omitempty"`
	Result   json.RawMessage `json:"result,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// pollInterval is the parent's queue-draining cadence (spec §4.5: "≈100ms").
const pollInterval = 100 * time.Millisecond

// terminateGrace is how long the parent waits after a graceful terminate
// request before escalating to a hard kill (spec §4.5: "join(timeout=1s)").
const terminateGrace = 1 * time.Second

// Handle tracks one running worker subprocess and its event stream.
type Handle struct {
	cmd      *exec.Cmd
	events   chan Event
	done     chan struct{}
	cancel   atomic.Bool
	exitErr  error
	finished atomic.Bool
}

// Spawn launches the current binary with args (typically ["worker",
// "ocr"] or ["worker", "transcribe"]) plus jobArgs appended, wiring its
// stdout as an NDJSON event stream. The subprocess is expected to emit
// one JSON-encoded Event per line and to observe os.Interrupt for
// cooperative cancellation (spec §4.5: "expected to observe the flag at
// safe points but need not").
func Spawn(ctx context.Context, args []string, jobArgs []string) (*Handle, error) {
	exePath, err := os.Executable()
	if err != nil {
		return nil, errs.New(errs.KindStorage, fmt.Errorf("resolving self-reexec path: %w", err))
	}

	fullArgs := append(append([]string{}, args...), jobArgs...)
	cmd := exec.CommandContext(ctx, exePath, fullArgs...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errs.New(errs.KindStorage, fmt.Errorf("opening worker stdout: %w", err))
	}
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return nil, errs.New(errs.KindStorage, fmt.Errorf("starting worker process: %w", err))
	}

	h := &Handle{
		cmd:    cmd,
		events: make(chan Event, 32),
		done:   make(chan struct{}),
	}

	go h.readEvents(stdout)
	go h.wait()

	return h, nil
}

func (h *Handle) readEvents(stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var ev Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			logger.WarnCF("workers", "malformed worker event line", map[string]any{"error": err.Error()})
			continue
		}
		h.events <- ev
	}
	close(h.events)
}

func (h *Handle) wait() {
	h.exitErr = h.cmd.Wait()
	h.finished.Store(true)
	close(h.done)
}

// Events returns the channel of decoded worker events, closed once the
// worker's stdout is exhausted.
func (h *Handle) Events() <-chan Event { return h.events }

// Cancel requests cooperative cancellation: terminate, wait up to
// terminateGrace, then kill if the process is still alive (spec §4.5).
func (h *Handle) Cancel() error {
	h.cancel.Store(true)

	if h.cmd.Process == nil {
		return nil
	}
	if err := h.cmd.Process.Signal(os.Interrupt); err != nil {
		// Interrupt isn't implemented on all platforms (notably Windows);
		// fall through to Kill rather than failing cancellation outright.
		logger.DebugCF("workers", "interrupt signal unsupported, killing directly", map[string]any{"error": err.Error()})
		return h.cmd.Process.Kill()
	}

	select {
	case <-h.done:
		return nil
	case <-time.After(terminateGrace):
		return h.cmd.Process.Kill()
	}
}

// Cancelled reports whether Cancel has been called.
func (h *Handle) Cancelled() bool { return h.cancel.Load() }

// Wait blocks until the worker process exits and returns its exit error,
// if any.
func (h *Handle) Wait() error {
	<-h.done
	return h.exitErr
}

// PollInterval exposes the parent-side drain cadence for callers that
// implement their own event loop integration instead of ranging over
// Events() directly.
func PollInterval() time.Duration { return pollInterval }
