// Package openaicompat wraps github.com/openai/openai-go/v3 as a
// providers.Engine (spec §4.3), serving every account whose api_type is
// "openai" — OpenAI itself, MistralAI, and OpenRouter — by varying only
// the base URL and model catalogue, mirroring basilisk/provider.py's
// shared api_type dispatch.
package openaicompat

import (
	"context"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"
	"github.com/openai/openai-go/v3/packages/ssestream"
	"github.com/openai/openai-go/v3/shared"

	"github.com/sigmanight/basiliskllm/pkg/attachments"
	"github.com/sigmanight/basiliskllm/pkg/errs"
	"github.com/sigmanight/basiliskllm/pkg/logger"
	"github.com/sigmanight/basiliskllm/pkg/model"
	"github.com/sigmanight/basiliskllm/pkg/providers"
)

// Engine is the OpenAI-compatible adapter. providerID distinguishes
// OpenAI/MistralAI/OpenRouter accounts sharing this implementation so
// errors and logs can name the actual account, not just "openai".
type Engine struct {
	providerID  string
	client      openai.Client
	models      []providers.ModelDescriptor
	requestBldr *providers.RequestBuilder
	resolveOpts attachments.ResolveOptions
}

// New builds an Engine. providerID is one of "openai", "mistralai",
// "openrouter" (spec §4.8's account.api_type == "openai" family).
func New(providerID, apiKey, baseURL string, catalogue []providers.ModelDescriptor, store *attachments.Store) *Engine {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &Engine{
		providerID:  providerID,
		client:      openai.NewClient(opts...),
		models:      catalogue,
		requestBldr: providers.NewRequestBuilder(store),
		resolveOpts: attachments.ResolveOptions{MaxWidth: 2048, MaxHeight: 2048, JPEGQuality: 85, CanPassURL: true},
	}
}

func (e *Engine) ProviderID() string { return e.providerID }

func (e *Engine) Capabilities() providers.CapabilitySet {
	return providers.NewCapabilitySet(
		providers.CapabilityText,
		providers.CapabilityImage,
		providers.CapabilitySTT,
		providers.CapabilityTTS,
	)
}

func (e *Engine) Models(ctx context.Context) ([]providers.ModelDescriptor, error) {
	return e.models, nil
}

type openaiPayload struct {
	chatParams     openai.ChatCompletionNewParams
	responseParams openai.ResponseNewParams
	useResponses   bool
}

// ShouldUseResponsesAPI reports whether modelID is configured to use the
// responses endpoint rather than chat completions (spec §4.3's
// prefer_responses_api flag). Completion keeps the chat-completions payload
// around regardless, so it can fall back to it at runtime if the responses
// call itself fails.
func (e *Engine) ShouldUseResponsesAPI(modelID string) bool {
	desc := e.descriptorFor(modelID)
	return desc != nil && desc.PreferResponsesAPI
}

// PrepareRequest chooses between the chat-completions and responses
// endpoints per ShouldUseResponsesAPI, always building the chat payload too
// so Completion can fall back to it if the responses call fails.
func (e *Engine) PrepareRequest(ctx context.Context, system *model.SystemMessage, conv *model.Conversation, newBlock *model.MessageBlock, modelID string, opts providers.CompletionOptions) (any, error) {
	messages, err := e.requestBldr.BuildMessages(ctx, system, conv, newBlock, e.resolveOpts)
	if err != nil {
		return nil, err
	}

	desc := e.descriptorFor(modelID)
	if desc != nil {
		providers.ApplyReasoningDefaults(*desc, &opts)
	}

	chat := e.buildChatPayload(messages, modelID, opts)
	if !e.ShouldUseResponsesAPI(modelID) {
		return chat, nil
	}

	responses := e.buildResponsesPayload(messages, modelID, opts)
	responses.chatParams = chat.chatParams
	return responses, nil
}

func (e *Engine) buildChatPayload(messages []providers.Message, modelID string, opts providers.CompletionOptions) *openaiPayload {
	params := openai.ChatCompletionNewParams{Model: modelID}
	for _, msg := range messages {
		switch msg.Role {
		case "system":
			params.Messages = append(params.Messages, openai.SystemMessage(msg.Content))
		case "assistant":
			params.Messages = append(params.Messages, openai.AssistantMessage(msg.Content))
		case "user":
			params.Messages = append(params.Messages, openai.UserMessage(userParts(msg)))
		}
	}
	if opts.Temperature != nil {
		params.Temperature = openai.Float(*opts.Temperature)
	}
	if opts.TopP != nil {
		params.TopP = openai.Float(*opts.TopP)
	}
	if opts.MaxTokens != nil {
		params.MaxTokens = openai.Int(int64(*opts.MaxTokens))
	}
	return &openaiPayload{chatParams: params}
}

func (e *Engine) buildResponsesPayload(messages []providers.Message, modelID string, opts providers.CompletionOptions) *openaiPayload {
	params := openai.ResponseNewParams{Model: shared.ResponsesModel(modelID)}

	var instructions strings.Builder
	var input openai.ResponseInputParam
	for _, msg := range messages {
		switch msg.Role {
		case "system":
			if instructions.Len() > 0 {
				instructions.WriteString("\n\n")
			}
			instructions.WriteString(msg.Content)
		case "user", "assistant":
			input = append(input, openai.ResponseInputItemParamOfMessage(msg.Content, responsesRole(msg.Role)))
		}
	}
	if instructions.Len() > 0 {
		params.Instructions = param.NewOpt(instructions.String())
	}
	params.Input = openai.ResponseNewParamsInputUnion{OfInputItemList: input}

	if opts.Reasoning != nil {
		params.Reasoning = shared.ReasoningParam{Effort: shared.ReasoningEffort(opts.Reasoning.Effort)}
	}
	if opts.MaxTokens != nil {
		params.MaxOutputTokens = param.NewOpt(int64(*opts.MaxTokens))
	}

	return &openaiPayload{responseParams: params, useResponses: true}
}

func responsesRole(role string) string {
	if role == "assistant" {
		return "assistant"
	}
	return "user"
}

func userParts(msg providers.Message) []openai.ChatCompletionContentPartUnionParam {
	parts := make([]openai.ChatCompletionContentPartUnionParam, 0, 1+len(msg.Images))
	if strings.TrimSpace(msg.Content) != "" {
		parts = append(parts, openai.TextContentPart(msg.Content))
	}
	for _, img := range msg.Images {
		parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: img.Data}))
	}
	return parts
}

func (e *Engine) descriptorFor(modelID string) *providers.ModelDescriptor {
	for i := range e.models {
		if e.models[i].ID == modelID {
			return &e.models[i]
		}
	}
	return nil
}

// handle wraps whichever endpoint actually served the request. A responses
// call that fails — synchronously, or on its first streamed event — falls
// back to chat completions once; fallbackChatParams is nil once that has
// already happened (or was never applicable).
type handle struct {
	client openai.Client

	chatStream *ssestream.Stream[openai.ChatCompletionChunk]
	chatFinal  *openai.ChatCompletion
	chatAcc    strings.Builder

	responseStream *ssestream.Stream[openai.ResponseStreamEventUnion]
	responseFinal  *openai.Response
	responseAcc    strings.Builder

	fallbackChatParams *openai.ChatCompletionNewParams
}

func (h *handle) Close() error {
	if h.chatStream != nil {
		return h.chatStream.Close()
	}
	if h.responseStream != nil {
		return h.responseStream.Close()
	}
	return nil
}

// Completion invokes the chat-completions or responses endpoint depending
// on which payload PrepareRequest built. A responses-endpoint failure
// (AttributeError on older gateways that lack it, or any transport error)
// triggers one fallback attempt against the chat-completions payload built
// alongside it.
func (e *Engine) Completion(ctx context.Context, payload any, opts providers.CompletionOptions) (providers.Handle, error) {
	p, ok := payload.(*openaiPayload)
	if !ok {
		return nil, errs.Newf(errs.KindConfig, "openaicompat engine received a non-openaicompat payload %T", payload)
	}

	if !p.useResponses {
		return e.runChat(ctx, p.chatParams, opts.Stream)
	}

	if opts.Stream {
		stream := e.client.Responses.NewStreaming(ctx, p.responseParams)
		chatParams := p.chatParams
		return &handle{client: e.client, responseStream: stream, fallbackChatParams: &chatParams}, nil
	}

	resp, err := e.client.Responses.New(ctx, p.responseParams)
	if err != nil {
		logger.WarnCF("providers.openaicompat", "responses call failed, falling back to chat completions", map[string]any{"error": err.Error()})
		return e.runChat(ctx, p.chatParams, false)
	}
	return &handle{responseFinal: resp}, nil
}

func (e *Engine) runChat(ctx context.Context, params openai.ChatCompletionNewParams, stream bool) (providers.Handle, error) {
	if stream {
		return &handle{client: e.client, chatStream: e.client.Chat.Completions.NewStreaming(ctx, params)}, nil
	}
	chat, err := e.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, errs.New(errs.KindTransport, err)
	}
	return &handle{chatFinal: chat}, nil
}

// IterStream pulls the next text delta off a chat or responses stream,
// falling back from responses to chat mid-stream if the responses stream
// fails before yielding any content.
func (e *Engine) IterStream(ctx context.Context, h providers.Handle) (providers.StreamDelta, error) {
	hd, ok := h.(*handle)
	if !ok {
		return providers.StreamDelta{Done: true}, nil
	}

	if hd.responseStream != nil {
		return hd.iterResponseStream(ctx)
	}
	if hd.chatStream != nil {
		return hd.iterChatStream()
	}
	return providers.StreamDelta{Done: true}, nil
}

func (h *handle) iterChatStream() (providers.StreamDelta, error) {
	if !h.chatStream.Next() {
		if err := h.chatStream.Err(); err != nil {
			return providers.StreamDelta{}, errs.New(errs.KindTransport, err)
		}
		return providers.StreamDelta{Done: true}, nil
	}
	chunk := h.chatStream.Current()
	if len(chunk.Choices) == 0 {
		return providers.StreamDelta{}, nil
	}
	delta := chunk.Choices[0].Delta.Content
	if delta == "" {
		return providers.StreamDelta{}, nil
	}
	h.chatAcc.WriteString(delta)
	return providers.StreamDelta{Text: delta}, nil
}

// iterResponseStream handles the responses API's output_text.delta (text),
// output_item.added (new assistant turn, no text of its own), and completed
// (carries the authoritative final Response) events, per spec §4.3.
func (h *handle) iterResponseStream(ctx context.Context) (providers.StreamDelta, error) {
	if !h.responseStream.Next() {
		if err := h.responseStream.Err(); err != nil {
			if h.fallbackChatParams != nil && h.responseAcc.Len() == 0 {
				params := *h.fallbackChatParams
				h.fallbackChatParams = nil
				h.responseStream = nil
				h.chatStream = h.client.Chat.Completions.NewStreaming(ctx, params)
				return h.iterChatStream()
			}
			return providers.StreamDelta{}, errs.New(errs.KindTransport, err)
		}
		return providers.StreamDelta{Done: true}, nil
	}
	h.fallbackChatParams = nil

	event := h.responseStream.Current()
	switch ev := event.AsAny().(type) {
	case openai.ResponseTextDeltaEvent:
		h.responseAcc.WriteString(ev.Delta)
		return providers.StreamDelta{Text: ev.Delta}, nil
	case openai.ResponseCompletedEvent:
		resp := ev.Response
		h.responseFinal = &resp
		return providers.StreamDelta{}, nil
	case openai.ResponseOutputItemAddedEvent:
		return providers.StreamDelta{}, nil
	default:
		return providers.StreamDelta{}, nil
	}
}

// ExtractFinal tolerates both chat-style (choices[0].message.content) and
// responses-style (output_text / flattened output[*].content[*].text)
// payload shapes, per spec §4.3, whether the completion arrived as one
// response or was assembled from stream deltas.
func (e *Engine) ExtractFinal(ctx context.Context, h providers.Handle, newBlock *model.MessageBlock) (*model.MessageBlock, error) {
	hd, ok := h.(*handle)
	if !ok {
		return nil, errs.Newf(errs.KindContent, "openaicompat engine received an unexpected handle %T", h)
	}

	var content string
	switch {
	case hd.chatFinal != nil:
		if len(hd.chatFinal.Choices) > 0 {
			content = hd.chatFinal.Choices[0].Message.Content
		}
	case hd.responseFinal != nil:
		content = flattenResponseText(hd.responseFinal)
	case hd.chatStream != nil:
		content = hd.chatAcc.String()
	case hd.responseStream != nil:
		content = hd.responseAcc.String()
	default:
		return nil, errs.Newf(errs.KindContent, "openaicompat completion has no final response yet")
	}

	newBlock.Seal(providers.NormaliseFinalText(content), nil)
	return newBlock, nil
}

func flattenResponseText(resp *openai.Response) string {
	if text := resp.OutputText(); text != "" {
		return text
	}
	var sb strings.Builder
	for _, item := range resp.Output {
		msg := item.AsResponseOutputMessage()
		for _, c := range msg.Content {
			if text, ok := c.AsAny().(openai.ResponseOutputText); ok {
				sb.WriteString(text.Text)
			}
		}
	}
	return sb.String()
}
