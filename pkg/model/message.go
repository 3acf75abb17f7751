package model

import "encoding/json"

// MessageRole is the enum from spec §3.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// Message is an immutable (once appended) turn: role, text content,
// attachments, and optional provider citations (spec §3). The citation
// payload shape is left opaque per spec §9's open question — it is kept as
// a list of maps rather than a typed schema.
type Message struct {
	Role        MessageRole      `json:"role"`
	Content     string           `json:"content"`
	Attachments []Attachment     `json:"attachments,omitempty"`
	Citations   []map[string]any `json:"citations,omitempty"`
}

// messageWire is Message's on-disk shape: identical except Attachments is
// raw JSON, since encoding/json cannot (un)marshal the Attachment interface
// directly. See attachmentEnvelope in attachment.go.
type messageWire struct {
	Role        MessageRole      `json:"role"`
	Content     string           `json:"content"`
	Attachments json.RawMessage  `json:"attachments,omitempty"`
	Citations   []map[string]any `json:"citations,omitempty"`
}

// MarshalJSON omits a nil Attachments slice entirely (spec §3: serialised
// form omits default/None fields).
func (m Message) MarshalJSON() ([]byte, error) {
	wire := messageWire{Role: m.Role, Content: m.Content, Citations: m.Citations}
	if len(m.Attachments) > 0 {
		raw, err := MarshalAttachments(m.Attachments)
		if err != nil {
			return nil, err
		}
		wire.Attachments = raw
	}
	return json.Marshal(wire)
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var wire messageWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	m.Role = wire.Role
	m.Content = wire.Content
	m.Citations = wire.Citations
	if len(wire.Attachments) > 0 {
		atts, err := UnmarshalAttachments(wire.Attachments)
		if err != nil {
			return err
		}
		m.Attachments = atts
	} else {
		m.Attachments = nil
	}
	return nil
}

// SystemMessage is deduplicated across a Conversation: identical content
// shares one slot in Conversation.Systems.
type SystemMessage struct {
	Role    MessageRole `json:"role"`
	Content string      `json:"content"`
}

// NewSystemMessage builds a SystemMessage with Role fixed to RoleSystem.
func NewSystemMessage(content string) SystemMessage {
	return SystemMessage{Role: RoleSystem, Content: content}
}

// ModelRef identifies the (provider, model) pair a block was sent to.
type ModelRef struct {
	ProviderID string `json:"provider_id"`
	ModelID    string `json:"model_id"`
}

// MessageBlock is the unit of exchange (spec §3): a user request paired
// with an optional assistant response. A block with Response == nil is a
// draft — the only mutable block in a Conversation. SystemIndex, when
// non-nil, indexes into the owning Conversation's Systems slice.
type MessageBlock struct {
	Request     Message     `json:"request"`
	Response    *Message    `json:"response,omitempty"`
	Model       ModelRef    `json:"model"`
	Temperature *float64    `json:"temperature,omitempty"`
	TopP        *float64    `json:"top_p,omitempty"`
	MaxTokens   *int        `json:"max_tokens,omitempty"`
	Stream      bool        `json:"stream,omitempty"`
	SystemIndex *int        `json:"system_index,omitempty"`
}

// IsDraft reports whether the block has not yet received a response.
func (b *MessageBlock) IsDraft() bool { return b.Response == nil }

// Seal finalises a draft with the given response content, marking the
// block as no longer a draft. Used both on successful completion and on
// cancellation with partial content (spec §4.4).
func (b *MessageBlock) Seal(content string, citations []map[string]any) {
	b.Response = &Message{
		Role:      RoleAssistant,
		Content:   content,
		Citations: citations,
	}
}
