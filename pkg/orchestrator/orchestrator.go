// Package orchestrator implements the Completion Orchestrator (spec §4.4):
// a per-conversation state machine that runs at most one in-flight
// completion at a time, streams deltas back through a Scheduler, and
// seals the draft block on success, cancellation, or error.
package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/sigmanight/basiliskllm/pkg/errs"
	"github.com/sigmanight/basiliskllm/pkg/logger"
	"github.com/sigmanight/basiliskllm/pkg/model"
	"github.com/sigmanight/basiliskllm/pkg/providers"
)

// State is one node of the orchestrator's per-conversation state machine.
type State string

const (
	StateIdle      State = "IDLE"
	StateSending   State = "SENDING"
	StateStreaming State = "STREAMING"
	StateFailed    State = "FAILED"
	StateCancelled State = "CANCELLED"
)

// Callbacks are invoked on the Scheduler's thread as a completion
// progresses. Any may be nil.
type Callbacks struct {
	OnDelta       func(text string)
	OnDone        func(block *model.MessageBlock)
	OnError       func(err error)
	OnStateChange func(State)
}

// RunHandle lets the caller cooperatively cancel a submitted completion.
type RunHandle struct {
	Cancel func()
}

// conversationRun tracks the single in-flight completion, if any, for one
// conversation. The atomic cancel flag and running-state pattern is
// adapted from the teacher's BaseChannel (sync.Map state + atomic.Bool
// running flag), repointed from "one inbound message per ID" to "one
// completion per conversation".
type conversationRun struct {
	mu              sync.Mutex
	state           State
	cancelRequested atomic.Bool
	handle          providers.Handle
}

// Orchestrator coordinates completions across conversations. One
// Orchestrator typically serves an entire application; conversations are
// distinguished by pointer identity.
type Orchestrator struct {
	mu        sync.Mutex
	runs      map[*model.Conversation]*conversationRun
	scheduler Scheduler
}

// New returns an Orchestrator that posts every callback through scheduler.
func New(scheduler Scheduler) *Orchestrator {
	if scheduler == nil {
		scheduler = InlineScheduler{}
	}
	return &Orchestrator{runs: make(map[*model.Conversation]*conversationRun), scheduler: scheduler}
}

// Submit starts a completion for newBlock against conv, running the
// engine call on a single dedicated goroutine (spec §4.4's "single
// dedicated worker thread per active completion"). It returns immediately
// with a RunHandle whose Cancel requests cooperative cancellation, or an
// error if conv already has a completion running ("busy → rejected").
func (o *Orchestrator) Submit(ctx context.Context, conv *model.Conversation, engine providers.Engine, system *model.SystemMessage, newBlock *model.MessageBlock, modelID string, opts providers.CompletionOptions, cb Callbacks) (*RunHandle, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	o.mu.Lock()
	if existing, ok := o.runs[conv]; ok {
		existing.mu.Lock()
		busy := existing.state != StateIdle
		existing.mu.Unlock()
		if busy {
			o.mu.Unlock()
			return nil, errs.Newf(errs.KindConfig, "completion already running for this conversation")
		}
	}
	run := &conversationRun{}
	o.runs[conv] = run
	o.mu.Unlock()

	run.setState(StateSending, cb.OnStateChange, o.scheduler)

	go o.runCompletion(ctx, conv, engine, system, newBlock, modelID, opts, run, cb)

	return &RunHandle{Cancel: run.requestCancel}, nil
}

func (o *Orchestrator) runCompletion(ctx context.Context, conv *model.Conversation, engine providers.Engine, system *model.SystemMessage, newBlock *model.MessageBlock, modelID string, opts providers.CompletionOptions, run *conversationRun, cb Callbacks) {
	defer func() {
		o.mu.Lock()
		delete(o.runs, conv)
		o.mu.Unlock()
	}()

	payload, err := engine.PrepareRequest(ctx, system, conv, newBlock, modelID, opts)
	if err != nil {
		o.fail(run, newBlock, "", err, cb)
		return
	}

	handle, err := engine.Completion(ctx, payload, opts)
	if err != nil {
		o.fail(run, newBlock, "", err, cb)
		return
	}
	run.setHandle(handle)

	var sb strings.Builder
	streaming := false

	for {
		if run.cancelRequested.Load() {
			_ = handle.Close()
			o.cancelRun(run, newBlock, sb.String(), cb)
			return
		}

		delta, err := engine.IterStream(ctx, handle)
		if err != nil {
			if errors.Is(err, errs.Cancelled) {
				o.cancelRun(run, newBlock, sb.String(), cb)
				return
			}
			o.fail(run, newBlock, sb.String(), err, cb)
			return
		}

		if !streaming && (delta.Text != "" || delta.Done) {
			streaming = true
			run.setState(StateStreaming, cb.OnStateChange, o.scheduler)
		}

		if delta.Text != "" {
			sb.WriteString(delta.Text)
			text := delta.Text
			o.scheduler.Post(func() {
				if cb.OnDelta != nil {
					cb.OnDelta(text)
				}
			})
		}

		if delta.Done {
			break
		}
	}

	sealed, err := engine.ExtractFinal(ctx, handle, newBlock)
	if err != nil {
		o.fail(run, newBlock, sb.String(), err, cb)
		return
	}

	run.setState(StateIdle, cb.OnStateChange, o.scheduler)
	o.scheduler.Post(func() {
		if cb.OnDone != nil {
			cb.OnDone(sealed)
		}
	})
}

// cancelRun seals the draft with whatever partial text was received,
// marking the conversation CANCELLED then back to IDLE (spec §4.4: "the
// draft block is sealed with whatever partial text was received").
func (o *Orchestrator) cancelRun(run *conversationRun, block *model.MessageBlock, partial string, cb Callbacks) {
	block.Seal(providers.NormaliseFinalText(partial), nil)
	run.setState(StateCancelled, cb.OnStateChange, o.scheduler)
	o.scheduler.Post(func() {
		if cb.OnDone != nil {
			cb.OnDone(block)
		}
		run.setState(StateIdle, cb.OnStateChange, o.scheduler)
	})
}

// fail seals the draft only if partial content survives the failure
// (spec §4.4: "the draft is discarded unless partial content was
// received, in which case it is preserved and the error is surfaced
// alongside").
func (o *Orchestrator) fail(run *conversationRun, block *model.MessageBlock, partial string, err error, cb Callbacks) {
	run.setState(StateFailed, cb.OnStateChange, o.scheduler)

	logger.WarnCF("orchestrator", "completion failed", map[string]any{
		"error":         err.Error(),
		"partial_chars": len(partial),
	})

	var sealed *model.MessageBlock
	if partial != "" {
		block.Seal(providers.NormaliseFinalText(partial), nil)
		sealed = block
	}

	o.scheduler.Post(func() {
		if cb.OnError != nil {
			cb.OnError(err)
		}
		if sealed != nil && cb.OnDone != nil {
			cb.OnDone(sealed)
		}
		run.setState(StateIdle, cb.OnStateChange, o.scheduler)
	})
}

func (r *conversationRun) setState(s State, onChange func(State), sched Scheduler) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
	if onChange != nil {
		sched.Post(func() { onChange(s) })
	}
}

func (r *conversationRun) setHandle(h providers.Handle) {
	r.mu.Lock()
	r.handle = h
	r.mu.Unlock()
}

func (r *conversationRun) requestCancel() {
	r.cancelRequested.Store(true)
}

// titlePromptText is the hidden prompt used by GenerateTitle (spec §4.4).
const titlePromptText = "Generate a concise, relevant title for this conversation. Max 70 characters."

// GenerateTitle reuses the orchestrator's completion path with a fresh,
// unappended MessageBlock holding the hidden title prompt, then trims the
// result of quotes/newlines and truncates it to 70 characters.
func (o *Orchestrator) GenerateTitle(ctx context.Context, conv *model.Conversation, engine providers.Engine, modelID string) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	hidden := &model.MessageBlock{Request: model.Message{Role: model.RoleUser, Content: titlePromptText}}

	payload, err := engine.PrepareRequest(ctx, nil, conv, hidden, modelID, providers.CompletionOptions{})
	if err != nil {
		return "", err
	}
	handle, err := engine.Completion(ctx, payload, providers.CompletionOptions{})
	if err != nil {
		return "", err
	}
	defer handle.Close()

	for {
		delta, err := engine.IterStream(ctx, handle)
		if err != nil {
			return "", err
		}
		if delta.Done {
			break
		}
	}

	sealed, err := engine.ExtractFinal(ctx, handle, hidden)
	if err != nil {
		return "", err
	}
	if sealed.Response == nil {
		return "", nil
	}

	return cleanTitle(sealed.Response.Content), nil
}

func cleanTitle(raw string) string {
	title := strings.ReplaceAll(raw, "\n", " ")
	title = strings.ReplaceAll(title, "\r", " ")
	title = strings.Trim(title, " \t\"'")
	title = strings.TrimSpace(title)
	runes := []rune(title)
	if len(runes) > 70 {
		title = string(runes[:70])
	}
	return title
}
