// Package anthropic wraps github.com/anthropics/anthropic-sdk-go as a
// providers.Engine (spec §4.3), translating the provider-neutral message
// vocabulary into Anthropic's Messages API shape and back.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/sigmanight/basiliskllm/pkg/attachments"
	"github.com/sigmanight/basiliskllm/pkg/errs"
	"github.com/sigmanight/basiliskllm/pkg/logger"
	"github.com/sigmanight/basiliskllm/pkg/model"
	"github.com/sigmanight/basiliskllm/pkg/providers"
)

// Engine is the Anthropic adapter. One Engine per account: constructed
// with the account's API key, an optional base URL override (for
// Anthropic-compatible gateways), and the attachment store used to inline
// images/files into requests.
type Engine struct {
	client      anthropic.Client
	models      []providers.ModelDescriptor
	requestBldr *providers.RequestBuilder
	resolveOpts attachments.ResolveOptions
}

// New builds an Engine for the given API key. catalogue is the account's
// configured model list (spec §4.8 resolves which models an account may
// use; the engine itself just advertises them back through Models()).
func New(apiKey string, baseURL string, catalogue []providers.ModelDescriptor, store *attachments.Store) *Engine {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &Engine{
		client:      anthropic.NewClient(opts...),
		models:      catalogue,
		requestBldr: providers.NewRequestBuilder(store),
		resolveOpts: attachments.ResolveOptions{MaxWidth: 1568, MaxHeight: 1568, JPEGQuality: 85},
	}
}

func (e *Engine) ProviderID() string { return "anthropic" }

func (e *Engine) Capabilities() providers.CapabilitySet {
	return providers.NewCapabilitySet(
		providers.CapabilityText,
		providers.CapabilityImage,
		providers.CapabilityDocument,
	)
}

func (e *Engine) Models(ctx context.Context) ([]providers.ModelDescriptor, error) {
	return e.models, nil
}

// anthropicPayload is the opaque handle PrepareRequest hands to Completion.
type anthropicPayload struct {
	params anthropic.MessageNewParams
}

// PrepareRequest builds an anthropic.MessageNewParams from the
// provider-neutral message list, extracting the leading system message
// into the top-level System field (Anthropic has no "system" role turn)
// and mapping per-block cache_control onto System blocks.
func (e *Engine) PrepareRequest(ctx context.Context, system *model.SystemMessage, conv *model.Conversation, newBlock *model.MessageBlock, modelID string, opts providers.CompletionOptions) (any, error) {
	messages, err := e.requestBldr.BuildMessages(ctx, system, conv, newBlock, e.resolveOpts)
	if err != nil {
		return nil, err
	}
	return e.BuildRequest(messages, modelID, opts)
}

// BuildRequest is what PrepareRequest calls once the messages are
// assembled: messages is the provider-neutral sequence from
// providers.RequestBuilder.BuildMessages.
func (e *Engine) BuildRequest(messages []providers.Message, modelID string, opts providers.CompletionOptions) (any, error) {
	desc := e.descriptorFor(modelID)
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(modelID),
		MaxTokens: int64(maxTokensFor(desc, opts)),
	}

	for _, msg := range messages {
		switch msg.Role {
		case "system":
			params.System = systemBlocks(msg)
		case "user":
			params.Messages = append(params.Messages, anthropic.NewUserMessage(contentBlocks(msg)...))
		case "assistant":
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(contentBlocks(msg)...))
		}
	}

	if opts.Temperature != nil {
		params.Temperature = anthropic.Float(*opts.Temperature)
	}
	if opts.TopP != nil {
		params.TopP = anthropic.Float(*opts.TopP)
	}

	return &anthropicPayload{params: params}, nil
}

func systemBlocks(msg providers.Message) []anthropic.TextBlockParam {
	if len(msg.SystemParts) == 0 {
		return []anthropic.TextBlockParam{{Text: msg.Content}}
	}
	blocks := make([]anthropic.TextBlockParam, 0, len(msg.SystemParts))
	for _, part := range msg.SystemParts {
		block := anthropic.TextBlockParam{Text: part.Text}
		if part.CacheControl != nil {
			block.CacheControl = anthropic.NewCacheControlEphemeralParam()
		}
		blocks = append(blocks, block)
	}
	return blocks
}

func contentBlocks(msg providers.Message) []anthropic.ContentBlockParamUnion {
	blocks := make([]anthropic.ContentBlockParamUnion, 0, 1+len(msg.Images)+len(msg.Files))
	if strings.TrimSpace(msg.Content) != "" {
		blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
	}
	for _, img := range msg.Images {
		if strings.HasPrefix(img.Data, "http://") || strings.HasPrefix(img.Data, "https://") {
			blocks = append(blocks, anthropic.NewImageBlock(anthropic.URLImageSourceParam{URL: img.Data}))
			continue
		}
		blocks = append(blocks, anthropic.NewImageBlockBase64(img.MediaType, stripDataURIPrefix(img.Data)))
	}
	for _, file := range msg.Files {
		blocks = append(blocks, anthropic.NewDocumentBlock(anthropic.Base64PDFSourceParam{
			Data:      stripDataURIPrefix(file.Data),
			MediaType: anthropic.Base64PDFSourceMediaType(file.MediaType),
		}))
	}
	return blocks
}

func stripDataURIPrefix(s string) string {
	if idx := strings.Index(s, ","); idx >= 0 && strings.HasPrefix(s, "data:") {
		return s[idx+1:]
	}
	return s
}

func maxTokensFor(desc *providers.ModelDescriptor, opts providers.CompletionOptions) int {
	if opts.MaxTokens != nil {
		return *opts.MaxTokens
	}
	if desc != nil && desc.MaxOutputTokens > 0 {
		return desc.MaxOutputTokens
	}
	return 4096
}

func (e *Engine) descriptorFor(modelID string) *providers.ModelDescriptor {
	for i := range e.models {
		if e.models[i].ID == modelID {
			return &e.models[i]
		}
	}
	return nil
}

// streamHandle wraps a live or completed Anthropic response.
type streamHandle struct {
	stream *anthropic.Stream
	final  *anthropic.Message
	acc    anthropic.Message
}

func (h *streamHandle) Close() error {
	if h.stream != nil {
		return h.stream.Close()
	}
	return nil
}

// Completion invokes Anthropic's Messages API, streaming if opts.Stream.
func (e *Engine) Completion(ctx context.Context, payload any, opts providers.CompletionOptions) (providers.Handle, error) {
	p, ok := payload.(*anthropicPayload)
	if !ok {
		return nil, errs.Newf(errs.KindConfig, "anthropic engine received a non-anthropic payload %T", payload)
	}

	if opts.Stream {
		stream := e.client.Messages.NewStreaming(ctx, p.params)
		return &streamHandle{stream: stream}, nil
	}

	msg, err := e.client.Messages.New(ctx, p.params)
	if err != nil {
		return nil, classifyError(err)
	}
	return &streamHandle{final: msg}, nil
}

// IterStream pulls the next text delta off a streaming handle.
func (e *Engine) IterStream(ctx context.Context, handle providers.Handle) (providers.StreamDelta, error) {
	h, ok := handle.(*streamHandle)
	if !ok || h.stream == nil {
		return providers.StreamDelta{Done: true}, nil
	}

	if !h.stream.Next() {
		if err := h.stream.Err(); err != nil {
			return providers.StreamDelta{}, classifyError(err)
		}
		final := h.acc
		h.final = &final
		return providers.StreamDelta{Done: true}, nil
	}

	event := h.stream.Current()
	if err := h.acc.Accumulate(event); err != nil {
		logger.WarnCF("providers.anthropic", "stream accumulate failed", map[string]any{"error": err.Error()})
	}

	delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent)
	if !ok {
		return providers.StreamDelta{}, nil
	}
	if text := delta.Delta.Text; text != "" {
		return providers.StreamDelta{Text: text}, nil
	}
	return providers.StreamDelta{}, nil
}

// ExtractFinal normalises the completed message into a sealed MessageBlock.
func (e *Engine) ExtractFinal(ctx context.Context, handle providers.Handle, newBlock *model.MessageBlock) (*model.MessageBlock, error) {
	h, ok := handle.(*streamHandle)
	if !ok || h.final == nil {
		return nil, errs.Newf(errs.KindContent, "anthropic completion has no final message yet")
	}

	var sb strings.Builder
	var citations []map[string]any
	for _, block := range h.final.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(text.Text)
			for _, c := range text.Citations {
				citations = append(citations, map[string]any{"raw": fmt.Sprintf("%+v", c)})
			}
		}
	}

	content := providers.NormaliseFinalText(sb.String())
	newBlock.Seal(content, citations)
	return newBlock, nil
}

func classifyError(err error) error {
	var apiErr *anthropic.Error
	if ok := asAnthropicError(err, &apiErr); ok {
		switch apiErr.StatusCode {
		case 401, 403:
			return errs.New(errs.KindCredential, err)
		case 429:
			return errs.New(errs.KindTransport, err).WithURL("")
		}
	}
	return errs.New(errs.KindTransport, err)
}

func asAnthropicError(err error, target **anthropic.Error) bool {
	return errors.As(err, target)
}
