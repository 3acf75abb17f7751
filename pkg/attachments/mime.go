package attachments

import (
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"

	"github.com/sigmanight/basiliskllm/pkg/model"
)

// maxSniffBytes is how much of a file's head is read for content sniffing;
// 512 bytes covers http.DetectContentType's window and every filetype
// matcher used here.
const maxSniffBytes = 512

// detectMediaType sniffs path's content, falling back to an extension guess
// for unreadable or inconclusive files. It layers github.com/h2non/filetype
// on top of net/http.DetectContentType because the stdlib sniffer does not
// recognise container-based formats such as docx/xlsx-as-zip or webp.
func detectMediaType(path, ext string) string {
	f, err := os.Open(path)
	if err != nil {
		return mediaTypeFromExt(ext)
	}
	defer f.Close()

	buf := make([]byte, maxSniffBytes)
	n, _ := f.Read(buf)
	if n == 0 {
		return mediaTypeFromExt(ext)
	}
	return sniffMediaType(buf[:n], ext)
}

func sniffMediaType(head []byte, ext string) string {
	if kind, err := filetype.Match(head); err == nil && kind != filetype.Unknown {
		return kind.MIME.Value
	}

	contentType := http.DetectContentType(head)
	if len(head) >= 12 && string(head[:4]) == "RIFF" && string(head[8:12]) == "WEBP" {
		contentType = "image/webp"
	}
	if idx := strings.Index(contentType, ";"); idx > 0 {
		contentType = strings.TrimSpace(contentType[:idx])
	}

	if contentType == "" || contentType == "application/octet-stream" {
		return mediaTypeFromExt(ext)
	}

	// A zip-based Office document sniffs as application/zip or text/plain
	// depending on where the central directory lands; trust the extension
	// for the formats this store extracts text from.
	if extType := mediaTypeFromExt(ext); extType != "" {
		if contentType == "text/plain" && (ext == ".pdf" || ext == ".docx" || ext == ".xlsx") {
			return extType
		}
		if contentType == "application/zip" && (ext == ".docx" || ext == ".xlsx") {
			return extType
		}
	}

	return contentType
}

// InferMediaTypeFromName infers a MIME type from a file name extension
// alone, for callers (e.g. remote resolution) that never see file bytes.
func InferMediaTypeFromName(fileName string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	return mediaTypeFromExt(ext)
}

func mediaTypeFromExt(ext string) string {
	if ext == "" {
		return "application/octet-stream"
	}

	mt := mime.TypeByExtension(ext)
	if idx := strings.Index(mt, ";"); idx > 0 {
		mt = strings.TrimSpace(mt[:idx])
	}
	if mt != "" {
		return mt
	}

	switch ext {
	case ".doc":
		return "application/msword"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".pptx":
		return "application/vnd.openxmlformats-officedocument.presentationml.presentation"
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ".csv":
		return "text/csv"
	case ".md", ".txt", ".log":
		return "text/plain"
	case ".pdf":
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}

// classifyKind maps a media type/extension pair to the attachment kind this
// store models: image or generic file. Audio, video, and other non-image
// binaries all classify as FileAttachment — the provider layer decides
// whether it can do anything with them (spec capability gating).
func classifyKind(mediaType, ext string) model.AttachmentKind {
	if strings.HasPrefix(mediaType, "image/") {
		return model.AttachmentKindImage
	}
	switch ext {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp":
		return model.AttachmentKindImage
	}
	return model.AttachmentKindFile
}
