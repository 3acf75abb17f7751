package model

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// AttachmentKind tags the sum type for Attachment, since Go has no native
// tagged unions. It is serialised as the "kind" discriminator field.
type AttachmentKind string

const (
	AttachmentKindImage AttachmentKind = "image"
	AttachmentKindFile  AttachmentKind = "file"
)

// Attachment is the sum type described in spec §3: an ImageAttachment or a
// FileAttachment, distinguished by Kind(). Both location handling rules
// (local path resolvable in the storage root, or URL/data: URI passed
// through verbatim) live on the concrete types.
type Attachment interface {
	Kind() AttachmentKind
	// Loc returns the attachment's location string as stored in the model:
	// an archive-relative path, an absolute host path, a URL, or a data:
	// URI. It is never mutated in place — Ingest returns a new Attachment.
	Loc() string
}

// ImageAttachment is an image attachment, optionally with known pixel
// dimensions (populated by Classify).
type ImageAttachment struct {
	Location    string `json:"location"`
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
	MIME        string `json:"mime,omitempty"`
	SizeBytes   int64  `json:"size_bytes,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Description string `json:"description,omitempty"`
}

func (a ImageAttachment) Kind() AttachmentKind { return AttachmentKindImage }
func (a ImageAttachment) Loc() string          { return a.Location }

// Dimensions returns (width, height); either may be zero if unknown.
func (a ImageAttachment) Dimensions() (int, int) { return a.Width, a.Height }

// FileAttachment is a non-image file attachment (document, audio, etc).
type FileAttachment struct {
	Location    string `json:"location"`
	MIME        string `json:"mime,omitempty"`
	SizeBytes   int64  `json:"size_bytes,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

func (a FileAttachment) Kind() AttachmentKind { return AttachmentKindFile }
func (a FileAttachment) Loc() string          { return a.Location }

// remoteLocationPattern is the URL routing pattern from spec §4.1, used to
// decide whether a pasted/given location string is a remote reference
// (URL or inlined data: URI) that must be passed through verbatim, as
// opposed to a local path that must resolve inside the storage root.
var remoteLocationPattern = regexp.MustCompile(`^(https?://\S+)|(data:[a-z]+/\S+)$`)

// IsRemoteLocation reports whether loc is a URL or a data: URI per the
// routing pattern of spec §4.1.
func IsRemoteLocation(loc string) bool {
	return remoteLocationPattern.MatchString(loc)
}

// ValidateAttachmentLocation enforces the invariant of spec §3: a local
// attachment's location must be resolvable either within storageRoot or as
// an absolute path; remote locations are exempt.
func ValidateAttachmentLocation(loc, storageRoot string, existsFn func(path string) bool) error {
	if IsRemoteLocation(loc) {
		return nil
	}
	if strings.HasPrefix(loc, "/") || hasWindowsDrivePrefix(loc) {
		if existsFn(loc) {
			return nil
		}
		return fmt.Errorf("attachment location %q does not resolve to an existing absolute path", loc)
	}
	candidate := storageRoot + "/" + strings.TrimPrefix(loc, "/")
	if existsFn(candidate) {
		return nil
	}
	return fmt.Errorf("attachment location %q does not resolve within storage root %q", loc, storageRoot)
}

func hasWindowsDrivePrefix(p string) bool {
	return len(p) >= 3 && p[1] == ':' && (p[2] == '\\' || p[2] == '/')
}

// attachmentEnvelope is the wire shape for an Attachment: a flat object
// carrying a "kind" discriminator plus the union of both concrete types'
// fields. encoding/json cannot marshal an interface-typed slice directly,
// so Message implements custom (Un)MarshalJSON using this envelope.
type attachmentEnvelope struct {
	Kind        AttachmentKind `json:"kind"`
	Location    string         `json:"location"`
	Width       int            `json:"width,omitempty"`
	Height      int            `json:"height,omitempty"`
	MIME        string         `json:"mime,omitempty"`
	SizeBytes   int64          `json:"size_bytes,omitempty"`
	DisplayName string         `json:"display_name,omitempty"`
	Description string         `json:"description,omitempty"`
}

func encodeAttachment(a Attachment) attachmentEnvelope {
	switch v := a.(type) {
	case ImageAttachment:
		return attachmentEnvelope{
			Kind: AttachmentKindImage, Location: v.Location, Width: v.Width,
			Height: v.Height, MIME: v.MIME, SizeBytes: v.SizeBytes,
			DisplayName: v.DisplayName, Description: v.Description,
		}
	case *ImageAttachment:
		return encodeAttachment(*v)
	case FileAttachment:
		return attachmentEnvelope{
			Kind: AttachmentKindFile, Location: v.Location, MIME: v.MIME,
			SizeBytes: v.SizeBytes, DisplayName: v.DisplayName,
		}
	case *FileAttachment:
		return encodeAttachment(*v)
	default:
		return attachmentEnvelope{Kind: AttachmentKindFile, Location: a.Loc()}
	}
}

func (e attachmentEnvelope) decode() Attachment {
	switch e.Kind {
	case AttachmentKindImage:
		return ImageAttachment{
			Location: e.Location, Width: e.Width, Height: e.Height,
			MIME: e.MIME, SizeBytes: e.SizeBytes, DisplayName: e.DisplayName,
			Description: e.Description,
		}
	default:
		return FileAttachment{
			Location: e.Location, MIME: e.MIME, SizeBytes: e.SizeBytes,
			DisplayName: e.DisplayName,
		}
	}
}

// MarshalAttachments encodes a slice of Attachment via the tagged envelope.
func MarshalAttachments(atts []Attachment) ([]byte, error) {
	envelopes := make([]attachmentEnvelope, len(atts))
	for i, a := range atts {
		envelopes[i] = encodeAttachment(a)
	}
	return json.Marshal(envelopes)
}

// UnmarshalAttachments decodes a tagged-envelope JSON array back into
// concrete Attachment values.
func UnmarshalAttachments(data []byte) ([]Attachment, error) {
	var envelopes []attachmentEnvelope
	if err := json.Unmarshal(data, &envelopes); err != nil {
		return nil, err
	}
	if len(envelopes) == 0 {
		return nil, nil
	}
	out := make([]Attachment, len(envelopes))
	for i, e := range envelopes {
		out[i] = e.decode()
	}
	return out, nil
}
