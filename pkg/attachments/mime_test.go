package attachments

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sigmanight/basiliskllm/pkg/model"
)

func TestDetectMediaType(t *testing.T) {
	tests := []struct {
		name     string
		header   []byte
		ext      string
		expected string
	}{
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F'}, ".jpg", "image/jpeg"},
		{"png", []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}, ".png", "image/png"},
		{"gif", []byte("GIF89a" + strings.Repeat("\x00", 100)), ".gif", "image/gif"},
		{"webp", func() []byte {
			payload := make([]byte, 100)
			data := append([]byte("RIFF"), byte(len(payload)+4), 0, 0, 0)
			data = append(data, []byte("WEBP")...)
			data = append(data, payload...)
			return data
		}(), ".webp", "image/webp"},
		{"plain_text", []byte("hello world, this is plain text"), ".txt", "text/plain"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmp := filepath.Join(t.TempDir(), "testfile"+tt.ext)
			if err := os.WriteFile(tmp, tt.header, 0o644); err != nil {
				t.Fatal(err)
			}
			got := detectMediaType(tmp, tt.ext)
			if got != tt.expected {
				t.Errorf("detectMediaType() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestDetectMediaTypeUnreadableFileFallsBackToExtension(t *testing.T) {
	got := detectMediaType("/nonexistent/path/image.jpg", ".jpg")
	if got != "image/jpeg" {
		t.Errorf("detectMediaType() = %q, want image/jpeg", got)
	}
}

func TestClassifyKind(t *testing.T) {
	tests := []struct {
		mediaType string
		ext       string
		want      model.AttachmentKind
	}{
		{"image/jpeg", ".jpg", model.AttachmentKindImage},
		{"image/png", ".png", model.AttachmentKindImage},
		{"", ".webp", model.AttachmentKindImage},
		{"application/pdf", ".pdf", model.AttachmentKindFile},
		{"text/plain", ".txt", model.AttachmentKindFile},
		{"application/octet-stream", "", model.AttachmentKindFile},
	}

	for _, tt := range tests {
		got := classifyKind(tt.mediaType, tt.ext)
		if got != tt.want {
			t.Errorf("classifyKind(%q, %q) = %q, want %q", tt.mediaType, tt.ext, got, tt.want)
		}
	}
}

func TestInferMediaTypeFromName(t *testing.T) {
	tests := map[string]string{
		"report.pdf":       "application/pdf",
		"notes.docx":       "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		"spreadsheet.xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		"photo.jpg":        "image/jpeg",
		"readme":           "application/octet-stream",
	}

	for name, want := range tests {
		if got := InferMediaTypeFromName(name); got != want {
			t.Errorf("InferMediaTypeFromName(%q) = %q, want %q", name, got, want)
		}
	}
}
