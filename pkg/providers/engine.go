package providers

import (
	"context"
	"sync"

	"github.com/sigmanight/basiliskllm/pkg/errs"
	"github.com/sigmanight/basiliskllm/pkg/model"
)

// CompletionOptions carries the per-call knobs PrepareRequest/Completion
// need beyond the conversation itself (spec §4.3).
type CompletionOptions struct {
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
	Stream      bool
	Reasoning   *ReasoningOptions
}

// Handle is what Completion returns: a single value in non-streaming mode,
// or a live stream consumable through IterStream (spec §4.3's "async
// iterable, otherwise a single value").
type Handle interface {
	// Close releases any underlying connection; best-effort, called on
	// cancellation per spec §4.4.
	Close() error
}

// Engine is the capability-gated contract every provider adapter
// implements. All operations are pure with respect to the conversation:
// none mutate the Conversation (spec §4.3). ExtractFinal does seal the
// newBlock it is given in place and returns that same block.
type Engine interface {
	ProviderID() string
	Capabilities() CapabilitySet
	Models(ctx context.Context) ([]ModelDescriptor, error)

	// PrepareRequest translates a conversation + new block into a
	// provider-native payload (opaque to the caller), applying role
	// translation, attachment inlining, and per-model transforms.
	PrepareRequest(ctx context.Context, system *model.SystemMessage, conv *model.Conversation, newBlock *model.MessageBlock, modelID string, opts CompletionOptions) (any, error)

	// Completion invokes the remote service with a payload built by
	// PrepareRequest and returns a Handle.
	Completion(ctx context.Context, payload any, opts CompletionOptions) (Handle, error)

	// IterStream returns the next delta from handle, or Done=true when
	// the stream is exhausted. Cooperative cancellation: callers stop
	// calling IterStream and call handle.Close().
	IterStream(ctx context.Context, handle Handle) (StreamDelta, error)

	// ExtractFinal normalises a completed (or final-chunk) handle into a
	// sealed MessageBlock, tolerating both chat- and responses-style
	// payload shapes.
	ExtractFinal(ctx context.Context, handle Handle, newBlock *model.MessageBlock) (*model.MessageBlock, error)
}

// OCREngine is the optional OCR extension an Engine may also implement
// (spec §4.3's handle_ocr, spec §4.5).
type OCREngine interface {
	HandleOCR(ctx context.Context, attachments []model.Attachment, progress chan<- OCRProgress, cancel <-chan struct{}) ([]OCRResult, error)
}

// TranscribeEngine is the optional audio transcription extension an Engine
// may also implement (spec §4.3's transcribe).
type TranscribeEngine interface {
	Transcribe(ctx context.Context, audioPath string, responseFormat string) (string, error)
}

// OCRProgress is one progress tick emitted while an OCR batch runs.
type OCRProgress struct {
	Percent int
	Message string
}

// OCRResult is one attachment's recognised text.
type OCRResult struct {
	AttachmentLocation string
	Text               string
	Err                error
}

// Registry catalogues available engines by provider ID (spec §4.3's
// "Provider Adapter Registry").
type Registry struct {
	mu      sync.RWMutex
	engines map[string]Engine
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{engines: make(map[string]Engine)}
}

// Register adds or replaces the engine for its ProviderID.
func (r *Registry) Register(e Engine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engines[e.ProviderID()] = e
}

// Get returns the engine registered under providerID, or a CapabilityError
// if none is registered.
func (r *Registry) Get(providerID string) (Engine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.engines[providerID]
	if !ok {
		return nil, errs.Newf(errs.KindCapability, "no engine registered for provider %q", providerID)
	}
	return e, nil
}

// RequireCapability returns a CapabilityError if e does not advertise cap,
// so callers can surface it before any network call (spec §7).
func RequireCapability(e Engine, cap Capability) error {
	if e.Capabilities().Has(cap) {
		return nil
	}
	return errs.Newf(errs.KindCapability, "provider %q does not support %s", e.ProviderID(), cap)
}

// IDs returns the registered provider IDs in no particular order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.engines))
	for id := range r.engines {
		ids = append(ids, id)
	}
	return ids
}
