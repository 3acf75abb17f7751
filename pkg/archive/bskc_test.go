package archive

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/sigmanight/basiliskllm/pkg/model"
)

func TestSaveAndOpenRoundTrip(t *testing.T) {
	srcRoot := t.TempDir()
	conv := model.New(srcRoot)
	sys := model.NewSystemMessage("be nice")
	conv.AddBlock(model.MessageBlock{
		Request:  model.Message{Role: model.RoleUser, Content: "hello"},
		Response: &model.Message{Role: model.RoleAssistant, Content: "hi there"},
		Model:    model.ModelRef{ProviderID: "anthropic", ModelID: "claude"},
	}, &sys)

	archivePath := filepath.Join(t.TempDir(), "conv.bskc")
	if err := Save(conv, archivePath); err != nil {
		t.Fatalf("Save: %v", err)
	}

	destRoot := t.TempDir()
	got, draft, err := Open(archivePath, destRoot)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if draft != nil {
		t.Fatalf("expected no trailing draft, got %+v", draft)
	}
	if len(got.Messages) != 1 || got.Messages[0].Request.Content != "hello" {
		t.Fatalf("got.Messages = %+v", got.Messages)
	}
	if got.Messages[0].Response.Content != "hi there" {
		t.Fatalf("response content = %q", got.Messages[0].Response.Content)
	}
	if len(got.Systems) != 1 || got.Systems[0].Content != "be nice" {
		t.Fatalf("got.Systems = %+v", got.Systems)
	}
	if got.Version != model.CurrentArchiveVersion {
		t.Fatalf("got.Version = %d, want %d", got.Version, model.CurrentArchiveVersion)
	}
}

func TestSaveArchivesLocalAttachmentBytes(t *testing.T) {
	srcRoot := t.TempDir()
	if err := os.MkdirAll(filepath.Join(srcRoot, "attachments"), 0o755); err != nil {
		t.Fatal(err)
	}
	imgPath := filepath.Join(srcRoot, "attachments", "pic.png")
	if err := os.WriteFile(imgPath, []byte("fake-png-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	conv := model.New(srcRoot)
	conv.AddBlock(model.MessageBlock{
		Request: model.Message{
			Role:    model.RoleUser,
			Content: "look at this",
			Attachments: []model.Attachment{
				model.ImageAttachment{Location: "attachments/pic.png", MIME: "image/png"},
			},
		},
		Response: &model.Message{Role: model.RoleAssistant, Content: "nice picture"},
		Model:    model.ModelRef{ProviderID: "anthropic", ModelID: "claude"},
	}, nil)

	archivePath := filepath.Join(t.TempDir(), "conv.bskc")
	if err := Save(conv, archivePath); err != nil {
		t.Fatalf("Save: %v", err)
	}

	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		t.Fatalf("opening archive for inspection: %v", err)
	}
	defer zr.Close()
	var sawAttachment bool
	for _, f := range zr.File {
		if f.Name == "attachments/attachments/pic.png" {
			sawAttachment = true
			if f.Method != zip.Store {
				t.Fatalf("attachment entry method = %d, want Store", f.Method)
			}
		}
	}
	if !sawAttachment {
		t.Fatal("expected the attachment to be archived")
	}

	destRoot := t.TempDir()
	got, _, err := Open(archivePath, destRoot)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	materialised := filepath.Join(destRoot, "attachments", "pic.png")
	data, err := os.ReadFile(materialised)
	if err != nil {
		t.Fatalf("reading materialised attachment: %v", err)
	}
	if string(data) != "fake-png-bytes" {
		t.Fatalf("materialised attachment contents = %q", data)
	}
	_ = got
}

func TestOpenMigratesV0File(t *testing.T) {
	archivePath := filepath.Join(t.TempDir(), "v0.bskc")
	writeRawArchive(t, archivePath, `{
		"messages": [
			{"request": {"role":"user","content":"Test message"},
			 "response": {"role":"assistant","content":"Test response"},
			 "model": {"provider_id":"test","model_id":"model1"}}
		],
		"title": "Test V0 Conversation"
	}`)

	conv, _, err := Open(archivePath, t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if conv.Version != model.CurrentArchiveVersion {
		t.Fatalf("conv.Version = %d, want %d", conv.Version, model.CurrentArchiveVersion)
	}
	if *conv.Title != "Test V0 Conversation" {
		t.Fatalf("conv.Title = %v", conv.Title)
	}
	if len(conv.Messages) != 1 || conv.Messages[0].Request.Content != "Test message" {
		t.Fatalf("conv.Messages = %+v", conv.Messages)
	}
}

func TestOpenMigratesV1FileWithSystem(t *testing.T) {
	archivePath := filepath.Join(t.TempDir(), "v1.bskc")
	writeRawArchive(t, archivePath, `{
		"version": 1,
		"messages": [
			{"request": {"role":"user","content":"Test message"},
			 "response": {"role":"assistant","content":"Test response"},
			 "model": {"provider_id":"test","model_id":"model1"}}
		],
		"system": {"role":"system","content":"System instructions"},
		"title": "Test V1 Conversation"
	}`)

	conv, _, err := Open(archivePath, t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if len(conv.Systems) != 1 || conv.Systems[0].Content != "System instructions" {
		t.Fatalf("conv.Systems = %+v", conv.Systems)
	}
	if conv.Messages[0].SystemIndex == nil || *conv.Messages[0].SystemIndex != 0 {
		t.Fatalf("conv.Messages[0].SystemIndex = %v, want 0", conv.Messages[0].SystemIndex)
	}
}

func TestOpenRejectsVersionAboveCurrent(t *testing.T) {
	archivePath := filepath.Join(t.TempDir(), "bad.bskc")
	writeRawArchive(t, archivePath, `{"version":999,"messages":[],"title":"Invalid Version"}`)

	_, _, err := Open(archivePath, t.TempDir())
	if err == nil {
		t.Fatal("expected an error opening a future-versioned archive")
	}
}

func TestOpenDetachesTrailingDraft(t *testing.T) {
	srcRoot := t.TempDir()
	conv := model.New(srcRoot)
	conv.AddBlock(model.MessageBlock{
		Request: model.Message{Role: model.RoleUser, Content: "unanswered"},
		Model:   model.ModelRef{ProviderID: "anthropic", ModelID: "claude"},
	}, nil)

	archivePath := filepath.Join(t.TempDir(), "draft.bskc")
	if err := Save(conv, archivePath); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, draft, err := Open(archivePath, t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if len(got.Messages) != 0 {
		t.Fatalf("expected the draft to be detached, got %+v", got.Messages)
	}
	if draft == nil || draft.Request.Content != "unanswered" {
		t.Fatalf("draft = %+v", draft)
	}
}

func writeRawArchive(t *testing.T, path, conversationJSON string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	zw := zip.NewWriter(f)
	w, err := zw.CreateHeader(&zip.FileHeader{Name: conversationEntryName, Method: zip.Store})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte(conversationJSON)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
}
