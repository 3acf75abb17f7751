// Package errs implements the BasiliskLLM error taxonomy (spec §7): a
// closed set of error kinds that the Completion Orchestrator, Archive
// Codec, and Conversation Database use to classify failures for the UI
// layer, without coupling to any particular UI toolkit.
package errs

import (
	"errors"
	"fmt"
	"regexp"
)

// Kind is one of the error taxonomy categories from spec §7.
type Kind string

const (
	// KindCredential: missing / invalid API key.
	KindCredential Kind = "credential"
	// KindCapability: requested operation not advertised by the engine.
	KindCapability Kind = "capability"
	// KindTransport: network or HTTP failure.
	KindTransport Kind = "transport"
	// KindContent: refusal, bad content, or empty response.
	KindContent Kind = "content"
	// KindCancelled: cooperative cancellation, never logged as a failure.
	KindCancelled Kind = "cancelled"
	// KindStorage: archive malformed, unknown version, zip corruption.
	KindStorage Kind = "storage"
	// KindConfig: invalid profile; auto-corrected where possible.
	KindConfig Kind = "config"
)

// Error is a Kind-tagged error. URL, when non-empty, is a transport
// endpoint the UI may render as a clickable link (spec §7, TransportError).
type Error struct {
	Kind Kind
	URL  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same Kind, so callers can
// write errors.Is(err, errs.Cancelled) against sentinel-style values built
// with New(kind, nil).
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// New wraps err (which may be nil) in an *Error of the given kind.
func New(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// Newf builds a new *Error of the given kind from a format string.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// WithURL attaches a transport URL to a TransportError for clickable
// rendering by the UI layer.
func (e *Error) WithURL(url string) *Error {
	return &Error{Kind: e.Kind, URL: url, Err: e.Err}
}

// KindOf extracts the Kind tag from err, or "" if err does not wrap an
// *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Sentinel values for errors.Is comparisons where no wrapped cause exists.
var (
	Cancelled = New(KindCancelled, errors.New("operation cancelled"))
)

// urlPattern matches the same class of strings as spec §4.1's attachment
// routing pattern, reused here to find URLs embedded in arbitrary error
// text so the UI can render them as links (spec §9, find_urls).
var urlPattern = regexp.MustCompile(`https?://[^\s)\]]+`)

// FindURLs returns every http(s) URL substring found in text, in order of
// appearance. It is a pure function with no UI coupling (spec §9).
func FindURLs(text string) []string {
	matches := urlPattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}
	out := make([]string, len(matches))
	copy(out, matches)
	return out
}
