package providers

import (
	"context"
	"runtime"
	"strings"

	"github.com/sigmanight/basiliskllm/pkg/attachments"
	"github.com/sigmanight/basiliskllm/pkg/logger"
	"github.com/sigmanight/basiliskllm/pkg/model"
)

// hostLineSeparator is the line separator NormaliseFinalText normalises to
// (spec §4.3: "normalised to the host's separator"). Only Windows uses
// something other than a bare "\n".
var hostLineSeparator = func() string {
	if runtime.GOOS == "windows" {
		return "\r\n"
	}
	return "\n"
}()

// RequestBuilder folds a Conversation's history and a new block into the
// provider-neutral []Message shape every Engine's PrepareRequest consumes,
// inlining attachments through an attachments.Store (spec §4.3's
// prepare_request(system, conversation, new_block, stream)).
type RequestBuilder struct {
	Store *attachments.Store
}

// NewRequestBuilder builds a RequestBuilder backed by store.
func NewRequestBuilder(store *attachments.Store) *RequestBuilder {
	return &RequestBuilder{Store: store}
}

// BuildMessages assembles the system message (if any), the sealed history,
// and the new block's request (plus its resolved attachments) into the
// sequence an Engine turns into a provider-native payload. newBlock may be
// a fresh draft that has not yet been appended to conv.
func (rb *RequestBuilder) BuildMessages(ctx context.Context, system *model.SystemMessage, conv *model.Conversation, newBlock *model.MessageBlock, resolveOpts attachments.ResolveOptions) ([]Message, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	messages := make([]Message, 0, len(conv.Messages)*2+2)

	if system != nil && strings.TrimSpace(system.Content) != "" {
		messages = append(messages, Message{
			Role:    "system",
			Content: system.Content,
			SystemParts: []ContentBlock{
				{Type: "text", Text: system.Content, CacheControl: &CacheControl{Type: "ephemeral"}},
			},
		})
	}

	for i := range conv.Messages {
		block := &conv.Messages[i]
		if block.IsDraft() {
			// Drafts belong to the caller, never to history, so they are
			// skipped here.
			continue
		}

		userMsg, err := rb.toProviderMessage(block.Request, resolveOpts)
		if err != nil {
			return nil, err
		}
		userMsg.Role = string(model.RoleUser)
		messages = append(messages, userMsg)

		if block.Response != nil {
			messages = append(messages, Message{
				Role:      string(model.RoleAssistant),
				Content:   block.Response.Content,
				Citations: block.Response.Citations,
			})
		}
	}

	if newBlock != nil {
		userMsg, err := rb.toProviderMessage(newBlock.Request, resolveOpts)
		if err != nil {
			return nil, err
		}
		userMsg.Role = string(model.RoleUser)
		messages = append(messages, userMsg)
	}

	logger.DebugCF("providers", "request built", map[string]any{
		"message_count": len(messages),
		"has_system":    system != nil,
	})

	return messages, nil
}

// toProviderMessage resolves msg's attachments (images inlined or passed as
// URLs, files inlined as base64) and folds them into a provider-neutral
// Message alongside its text content.
func (rb *RequestBuilder) toProviderMessage(msg model.Message, opts attachments.ResolveOptions) (Message, error) {
	out := Message{Content: msg.Content, Citations: msg.Citations}

	for _, att := range msg.Attachments {
		resolved, err := rb.Store.ResolveForRequest(att, opts)
		if err != nil {
			return Message{}, err
		}

		switch a := att.(type) {
		case model.ImageAttachment:
			if resolved.URL != "" {
				out.Images = append(out.Images, ImageBlock{MediaType: a.MIME, Data: resolved.URL})
				continue
			}
			out.Images = append(out.Images, ImageBlock{MediaType: a.MIME, Data: resolved.DataURI})
		case model.FileAttachment:
			name := a.Location
			if resolved.URL != "" {
				out.Files = append(out.Files, FileBlock{Name: name, MediaType: a.MIME, Data: resolved.URL})
				continue
			}
			out.Files = append(out.Files, FileBlock{Name: name, MediaType: a.MIME, Data: resolved.DataURI})
		}
	}

	return out, nil
}

// ApplyReasoningDefaults sets opts.Reasoning to the medium-effort default
// when desc advertises reasoning support and the caller did not already
// request a specific effort (spec §4.3's normalisation rule).
func ApplyReasoningDefaults(desc ModelDescriptor, opts *CompletionOptions) {
	if !desc.Reasoning {
		return
	}
	if opts.Reasoning != nil {
		return
	}
	opts.Reasoning = &ReasoningOptions{Effort: "medium"}
}

// NormaliseFinalText applies spec §4.3's final-content normalisation: line
// endings are collapsed to the host's separator and an empty result is
// permitted (never substituted with placeholder text).
func NormaliseFinalText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	if hostLineSeparator != "\n" {
		text = strings.ReplaceAll(text, "\n", hostLineSeparator)
	}
	return text
}
