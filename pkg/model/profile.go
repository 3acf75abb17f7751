package model

// ConversationProfile is the named preset of provider/model/sampling
// defaults a new conversation is created from (spec §3). AccountRef and
// ModelRef may each be empty, meaning "use the configured default" —
// resolution of the four combinations is pkg/resolver's job (spec §4.8).
type ConversationProfile struct {
	Name         string   `json:"name"`
	SystemPrompt string   `json:"system_prompt,omitempty"`
	AccountRef   string   `json:"account_ref,omitempty"`
	ModelRef     string   `json:"model_ref,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"`
	TopP         *float64 `json:"top_p,omitempty"`
	MaxTokens    *int     `json:"max_tokens,omitempty"`
	StreamMode   bool     `json:"stream_mode,omitempty"`
}

// IsDefault reports whether this is the fallback profile used when no
// profile name is given (named "" or "default"). ResolveAccountAndModel
// does not consult it.
func (p ConversationProfile) IsDefault() bool {
	return p.Name == "" || p.Name == "default"
}
