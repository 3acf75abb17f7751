// Package attachments implements the Attachment Store (spec §4.1): classify,
// stage, and resolve image/file/URL attachments within a per-conversation
// storage root, mirroring the teacher's media-handling packages but against
// BasiliskLLM's Attachment sum type instead of a chat bot's outbound media.
package attachments

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sigmanight/basiliskllm/pkg/errs"
	"github.com/sigmanight/basiliskllm/pkg/logger"
	"github.com/sigmanight/basiliskllm/pkg/model"
)

// Store classifies, ingests, and resolves attachments against a single
// conversation's storage root (spec §4.1).
type Store struct {
	StorageRoot string
	// MaxDocumentBytes bounds extractable-document size; 0 selects a 4 MiB
	// default, matching the teacher's attachment size gate.
	MaxDocumentBytes int64
	MaxTextChars     int
}

const defaultMaxDocumentBytes = int64(4 * 1024 * 1024)

// NewStore builds a Store rooted at storageRoot (a plain path for local
// archives, or any URL the caller resolves attachments relative to).
func NewStore(storageRoot string) *Store {
	return &Store{StorageRoot: storageRoot}
}

func (s *Store) maxDocumentBytes() int64 {
	if s.MaxDocumentBytes > 0 {
		return s.MaxDocumentBytes
	}
	return defaultMaxDocumentBytes
}

func (s *Store) maxTextChars() int {
	if s.MaxTextChars > 0 {
		return s.MaxTextChars
	}
	return defaultMaxTextChars
}

// Classify sniffs location (a local path, URL, or data: URI) and returns
// the ImageAttachment or FileAttachment it represents, populating MIME,
// size, and (for images) pixel dimensions (spec §4.1's classify).
func (s *Store) Classify(location string) (model.Attachment, error) {
	if model.IsRemoteLocation(location) {
		return s.classifyRemote(location)
	}
	return s.classifyLocal(location)
}

func (s *Store) classifyRemote(location string) (model.Attachment, error) {
	name := filepath.Base(strings.SplitN(location, "?", 2)[0])
	mediaType := InferMediaTypeFromName(name)
	kind := classifyKind(mediaType, strings.ToLower(filepath.Ext(name)))

	if kind == model.AttachmentKindImage {
		return model.ImageAttachment{Location: location, MIME: mediaType, DisplayName: name}, nil
	}
	return model.FileAttachment{Location: location, MIME: mediaType, DisplayName: name}, nil
}

func (s *Store) classifyLocal(location string) (model.Attachment, error) {
	info, err := os.Stat(location)
	if err != nil {
		return nil, errs.New(errs.KindContent, fmt.Errorf("attachment %q is not readable: %w", location, err))
	}

	name := info.Name()
	ext := strings.ToLower(filepath.Ext(name))
	mediaType := detectMediaType(location, ext)
	kind := classifyKind(mediaType, ext)

	if kind == model.AttachmentKindImage {
		width, height := probeImageDimensions(location)
		return model.ImageAttachment{
			Location: location, Width: width, Height: height,
			MIME: mediaType, SizeBytes: info.Size(), DisplayName: name,
		}, nil
	}
	return model.FileAttachment{
		Location: location, MIME: mediaType, SizeBytes: info.Size(), DisplayName: name,
	}, nil
}

func probeImageDimensions(path string) (int, int) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0
	}
	return cfg.Width, cfg.Height
}

// Ingest ensures a locally-referenced attachment's bytes live under
// storage_root/attachments/ and returns a copy of the attachment with its
// Location rewritten to be storage-root-relative. Remote attachments
// (URL or data: URI) pass through untouched, since the spec explicitly
// leaves them unmaterialised (spec §4.1).
func (s *Store) Ingest(a model.Attachment) (model.Attachment, error) {
	if model.IsRemoteLocation(a.Loc()) {
		return a, nil
	}

	attachmentsDir := filepath.Join(s.StorageRoot, "attachments")
	if err := os.MkdirAll(attachmentsDir, 0o755); err != nil {
		return nil, errs.New(errs.KindStorage, fmt.Errorf("creating attachments directory: %w", err))
	}

	baseName := filepath.Base(a.Loc())
	destName := uniqueName(attachmentsDir, baseName)
	destPath := filepath.Join(attachmentsDir, destName)

	if err := copyFile(a.Loc(), destPath); err != nil {
		return nil, errs.New(errs.KindStorage, fmt.Errorf("staging attachment %q: %w", a.Loc(), err))
	}

	relLoc := filepath.ToSlash(filepath.Join("attachments", destName))
	logger.DebugCF("attachments", "ingested attachment", map[string]any{
		"source": a.Loc(), "dest": relLoc,
	})

	switch v := a.(type) {
	case model.ImageAttachment:
		v.Location = relLoc
		return v, nil
	case model.FileAttachment:
		v.Location = relLoc
		return v, nil
	default:
		return a, nil
	}
}

func uniqueName(dir, name string) string {
	candidate := name
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for i := 1; fileExists(filepath.Join(dir, candidate)); i++ {
		candidate = fmt.Sprintf("%s_%d%s", base, i, ext)
	}
	return candidate
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

// ResolveOptions parameterises ResolveForRequest's image rendering (spec
// §4.1's resize rule).
type ResolveOptions struct {
	MaxWidth    int
	MaxHeight   int
	JPEGQuality int
	// CanPassURL reports whether the target engine can accept a bare
	// remote URL/data URI directly rather than requiring inlined bytes.
	CanPassURL bool
}

// ResolvedContent is what an attachment renders to for the wire protocol:
// either a data: URI (DataURI) or a pass-through reference (URL).
type ResolvedContent struct {
	DataURI string
	URL     string
}

// ResolveForRequest renders a, per spec §4.1: images are resized and
// base64-inlined as data: URIs; remote URLs are passed through untouched
// when opts.CanPassURL is set (without it, a remote file is still returned
// as its URL, while a remote image fails with a KindCapability error);
// local file attachments are read and inlined as data: URIs so the caller
// can decide between upload and inline based on engine capability.
func (s *Store) ResolveForRequest(a model.Attachment, opts ResolveOptions) (ResolvedContent, error) {
	loc := s.absoluteLocation(a.Loc())

	if model.IsRemoteLocation(a.Loc()) && opts.CanPassURL {
		return ResolvedContent{URL: a.Loc()}, nil
	}

	switch v := a.(type) {
	case model.ImageAttachment:
		return s.resolveImage(loc, v, opts)
	case *model.ImageAttachment:
		return s.resolveImage(loc, *v, opts)
	default:
		return s.resolveFile(loc, a)
	}
}

func (s *Store) absoluteLocation(loc string) string {
	if model.IsRemoteLocation(loc) || filepath.IsAbs(loc) {
		return loc
	}
	return filepath.Join(s.StorageRoot, loc)
}

func (s *Store) resolveImage(loc string, img model.ImageAttachment, opts ResolveOptions) (ResolvedContent, error) {
	if model.IsRemoteLocation(loc) {
		// A remote image the engine cannot reference by URL must still be
		// fetched by the caller (pkg/attachments/remote.go) before it
		// reaches here; ResolveForRequest only handles local bytes.
		return ResolvedContent{}, errs.Newf(errs.KindCapability, "remote image %q requires prior fetch for inlining", loc)
	}

	data, err := os.ReadFile(loc)
	if err != nil {
		return ResolvedContent{}, errs.New(errs.KindStorage, fmt.Errorf("reading image attachment: %w", err))
	}

	quality := opts.JPEGQuality
	if quality <= 0 {
		quality = 85
	}

	resized, mime, err := ResizeImageBytes(data, opts.MaxWidth, opts.MaxHeight, quality)
	if err != nil {
		return ResolvedContent{}, errs.New(errs.KindContent, fmt.Errorf("resizing image attachment: %w", err))
	}

	return ResolvedContent{DataURI: toDataURI(mime, resized)}, nil
}

func (s *Store) resolveFile(loc string, a model.Attachment) (ResolvedContent, error) {
	if model.IsRemoteLocation(loc) {
		return ResolvedContent{URL: loc}, nil
	}

	data, err := os.ReadFile(loc)
	if err != nil {
		return ResolvedContent{}, errs.New(errs.KindStorage, fmt.Errorf("reading file attachment: %w", err))
	}

	mediaType := InferMediaTypeFromName(filepath.Base(loc))
	return ResolvedContent{DataURI: toDataURI(mediaType, data)}, nil
}

// ExtractDocumentText returns inlineable text for a FileAttachment whose
// type the DOCUMENT capability can digest (txt/md/csv, pdf, docx, xlsx),
// supplementing the distilled spec's resolve_for_request with the
// original's document-understanding path (spec §4.1 component notes).
func (s *Store) ExtractDocumentText(a model.Attachment) (string, error) {
	file, ok := a.(model.FileAttachment)
	if !ok {
		if p, ok2 := a.(*model.FileAttachment); ok2 {
			file = *p
		} else {
			return "", errs.Newf(errs.KindCapability, "attachment kind %s has no extractable text", a.Kind())
		}
	}

	loc := s.absoluteLocation(file.Location)
	if model.IsRemoteLocation(loc) {
		return "", errs.Newf(errs.KindCapability, "remote file %q requires prior fetch for text extraction", loc)
	}

	info, err := os.Stat(loc)
	if err != nil {
		return "", errs.New(errs.KindStorage, fmt.Errorf("stat attachment: %w", err))
	}
	if info.Size() > s.maxDocumentBytes() {
		return "", errs.Newf(errs.KindContent, "attachment %q (%s) exceeds the %s extraction limit",
			file.DisplayName, formatSizeHuman(info.Size()), formatSizeHuman(s.maxDocumentBytes()))
	}

	ext := strings.ToLower(filepath.Ext(loc))
	docType := detectDocumentType(file.MIME, ext)
	if docType == docTypeUnsupported {
		return "", errs.Newf(errs.KindCapability, "attachment %q type %q has no text extractor", file.DisplayName, file.MIME)
	}

	text, err := extractText(loc, docType, s.maxTextChars())
	if err != nil {
		return "", errs.New(errs.KindContent, fmt.Errorf("extracting text from %q: %w", file.DisplayName, err))
	}
	if text == "" {
		return "", errs.Newf(errs.KindContent, "attachment %q contains no extractable text", file.DisplayName)
	}
	return text, nil
}
