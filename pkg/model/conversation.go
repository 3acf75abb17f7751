package model

import (
	"fmt"

	"github.com/google/uuid"
)

// CurrentArchiveVersion is the archive format version this build writes
// (spec §4.6/§6): "v2".
const CurrentArchiveVersion = 2

// Conversation is the append-only, block-structured history described in
// spec §3: shared system prompts plus heterogeneous message blocks.
type Conversation struct {
	// ID identifies the conversation in the Conversation Database (spec
	// §4.7). It has no place in the archive format's versioned JSON shape
	// (a .bskc file is identified by its path, not an embedded id), so it
	// is never serialised there.
	ID          string          `json:"-"`
	Version     int             `json:"version"`
	Title       *string         `json:"title"`
	Systems     []SystemMessage `json:"systems"`
	Messages    []MessageBlock  `json:"messages"`
	// Private conversations are excluded from full-text indexing by the
	// Conversation Database (spec §4.7); manual save still works. Nothing
	// in this module skips draft autosave for them. It is not part of the archive format's versioned shape, so it
	// marshals alongside the other fields but carries no migration burden.
	Private     bool   `json:"private,omitempty"`
	StorageRoot string `json:"-"` // never serialised: rebuilt on open (spec §3)
}

// New returns an empty Conversation at the current archive version, with
// the given storage root (an in-memory virtual filesystem root for brand
// new conversations, per spec §4.1).
func New(storageRoot string) *Conversation {
	return &Conversation{
		ID:          uuid.NewString(),
		Version:     CurrentArchiveVersion,
		Systems:     []SystemMessage{},
		Messages:    []MessageBlock{},
		StorageRoot: storageRoot,
	}
}

// AddBlock appends block to Messages. If system is non-nil, it is appended
// to Systems unless an equal SystemMessage already exists (dedup by
// content, spec §3); either way block.SystemIndex is set to the slot's
// index. This is spec §4.2's add_block operation.
func (c *Conversation) AddBlock(block MessageBlock, system *SystemMessage) {
	if system != nil {
		idx := c.internOrAppendSystem(*system)
		block.SystemIndex = &idx
	}
	c.Messages = append(c.Messages, block)
}

func (c *Conversation) internOrAppendSystem(sys SystemMessage) int {
	for i, existing := range c.Systems {
		if existing.Content == sys.Content {
			return i
		}
	}
	c.Systems = append(c.Systems, sys)
	return len(c.Systems) - 1
}

// RemoveBlock removes the first block in Messages that matches block by
// request content, model, and whether a response is present (MessageBlock
// has no identity field; response content is not compared). Orphaned systems are deliberately NOT garbage collected here —
// that is deferred to Save, per spec §4.2.
func (c *Conversation) RemoveBlock(block *MessageBlock) bool {
	for i := range c.Messages {
		if blocksEqual(&c.Messages[i], block) {
			c.Messages = append(c.Messages[:i], c.Messages[i+1:]...)
			return true
		}
	}
	return false
}

func blocksEqual(a, b *MessageBlock) bool {
	return a.Request.Content == b.Request.Content &&
		a.Model == b.Model &&
		((a.Response == nil) == (b.Response == nil))
}

// PopDraft detaches and returns the trailing draft block (Response == nil),
// if any, for restoration into the UI on open (spec §4.2). Returns nil if
// the conversation has no trailing draft.
func (c *Conversation) PopDraft() *MessageBlock {
	n := len(c.Messages)
	if n == 0 {
		return nil
	}
	last := &c.Messages[n-1]
	if !last.IsDraft() {
		return nil
	}
	draft := *last
	c.Messages = c.Messages[:n-1]
	return &draft
}

// HasTrailingDraft reports whether the last message block is an unanswered
// draft — used by the orchestrator safety invariant (spec §8): at most one
// draft exists at any instant.
func (c *Conversation) HasTrailingDraft() bool {
	n := len(c.Messages)
	return n > 0 && c.Messages[n-1].IsDraft()
}

// DraftCount returns the number of draft (response == nil) blocks, which
// spec §8 requires to always be 0 or 1.
func (c *Conversation) DraftCount() int {
	n := 0
	for i := range c.Messages {
		if c.Messages[i].IsDraft() {
			n++
		}
	}
	return n
}

// GCOrphanSystems removes any SystemMessage no longer referenced by any
// block's SystemIndex, re-numbering the remaining indices. Called from
// Save per spec §4.2 ("GC of orphaned systems is explicitly deferred to
// save").
func (c *Conversation) GCOrphanSystems() {
	if len(c.Systems) == 0 {
		return
	}
	referenced := make([]bool, len(c.Systems))
	for i := range c.Messages {
		if idx := c.Messages[i].SystemIndex; idx != nil && *idx >= 0 && *idx < len(referenced) {
			referenced[*idx] = true
		}
	}
	remap := make([]int, len(c.Systems))
	kept := make([]SystemMessage, 0, len(c.Systems))
	for i, sys := range c.Systems {
		if referenced[i] {
			remap[i] = len(kept)
			kept = append(kept, sys)
		} else {
			remap[i] = -1
		}
	}
	c.Systems = kept
	for i := range c.Messages {
		if idx := c.Messages[i].SystemIndex; idx != nil {
			c.Messages[i].SystemIndex = nil
			if newIdx := remap[*idx]; newIdx >= 0 {
				c.Messages[i].SystemIndex = &newIdx
			}
		}
	}
}

// Validate checks the load-time invariants of spec §3/§4.2: every
// system_index is in range, and (via resolveAttachment) every attachment
// path resolves. provider_ids are not checked at all, so the returned
// warnings slice is always empty.
func (c *Conversation) Validate(attachmentResolves func(Attachment) bool) (warnings []string, err error) {
	for i, block := range c.Messages {
		if block.SystemIndex != nil {
			idx := *block.SystemIndex
			if idx < 0 || idx >= len(c.Systems) {
				return nil, fmt.Errorf("message %d: system_index %d out of range [0,%d)", i, idx, len(c.Systems))
			}
		}
		if attachmentResolves != nil {
			for _, a := range block.Request.Attachments {
				if !attachmentResolves(a) {
					return nil, fmt.Errorf("message %d: attachment %q does not resolve", i, a.Loc())
				}
			}
		}
	}
	return warnings, nil
}
