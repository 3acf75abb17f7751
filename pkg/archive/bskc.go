// Package archive implements the `.bskc` archive codec (spec §4.6): a
// ZIP_STORED container holding conversation.json plus the conversation's
// local attachments, with a version migration chain run on open.
package archive

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/sigmanight/basiliskllm/pkg/errs"
	"github.com/sigmanight/basiliskllm/pkg/model"
)

const conversationEntryName = "conversation.json"
const attachmentsEntryPrefix = "attachments/"

// Save writes conv to path as a `.bskc` file: conversation.json (default
// and nil fields omitted, via model.Conversation's own JSON marshalling)
// plus every locally-stored attachment under attachments/, all stored
// uncompressed (spec §4.6: ZIP_STORED). Orphaned systems are garbage
// collected first, per spec §4.2.
func Save(conv *model.Conversation, path string) error {
	conv.GCOrphanSystems()

	f, err := os.Create(path)
	if err != nil {
		return errs.New(errs.KindStorage, fmt.Errorf("creating archive %q: %w", path, err))
	}
	defer f.Close()

	zw := zip.NewWriter(f)

	entryWriter, err := zw.CreateHeader(&zip.FileHeader{Name: conversationEntryName, Method: zip.Store})
	if err != nil {
		return errs.New(errs.KindStorage, err)
	}
	data, err := json.Marshal(conv)
	if err != nil {
		return errs.New(errs.KindStorage, fmt.Errorf("encoding conversation: %w", err))
	}
	if _, err := entryWriter.Write(data); err != nil {
		return errs.New(errs.KindStorage, err)
	}

	for _, block := range conv.Messages {
		if err := writeBlockAttachments(zw, conv.StorageRoot, block.Request.Attachments); err != nil {
			return err
		}
		if block.Response != nil {
			if err := writeBlockAttachments(zw, conv.StorageRoot, block.Response.Attachments); err != nil {
				return err
			}
		}
	}

	if err := zw.Close(); err != nil {
		return errs.New(errs.KindStorage, err)
	}
	return nil
}

func writeBlockAttachments(zw *zip.Writer, storageRoot string, atts []model.Attachment) error {
	for _, a := range atts {
		loc := a.Loc()
		if model.IsRemoteLocation(loc) || filepath.IsAbs(loc) {
			continue // remote references and absolute host paths are not archived
		}
		srcPath := filepath.Join(storageRoot, loc)
		if err := copyFileIntoZip(zw, srcPath, attachmentsEntryPrefix+loc); err != nil {
			return err
		}
	}
	return nil
}

func copyFileIntoZip(zw *zip.Writer, srcPath, entryName string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return errs.New(errs.KindStorage, fmt.Errorf("reading attachment %q: %w", srcPath, err))
	}
	defer src.Close()

	w, err := zw.CreateHeader(&zip.FileHeader{Name: entryName, Method: zip.Store})
	if err != nil {
		return errs.New(errs.KindStorage, err)
	}
	if _, err := io.Copy(w, src); err != nil {
		return errs.New(errs.KindStorage, err)
	}
	return nil
}

// Open reads a `.bskc` file at path, migrates its conversation.json to
// model.CurrentArchiveVersion if needed, rematerialises its attachments
// directly into storageRoot (created if missing), validates the result, and
// detaches any trailing draft block for restoration into the UI (spec
// §4.6). The returned draft is nil when the conversation has no trailing
// draft.
func Open(path, storageRoot string) (conv *model.Conversation, draft *model.MessageBlock, err error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, nil, errs.New(errs.KindStorage, fmt.Errorf("opening archive %q: %w", path, err))
	}
	defer zr.Close()

	var conversationEntry *zip.File
	attachmentFiles := map[string]*zip.File{}
	for _, f := range zr.File {
		switch {
		case f.Name == conversationEntryName:
			conversationEntry = f
		case strings.HasPrefix(f.Name, attachmentsEntryPrefix):
			rel := strings.TrimPrefix(f.Name, attachmentsEntryPrefix)
			attachmentFiles[rel] = f
		}
	}
	if conversationEntry == nil {
		return nil, nil, errs.Newf(errs.KindStorage, "archive %q has no conversation.json entry", path)
	}

	raw, err := readZipFile(conversationEntry)
	if err != nil {
		return nil, nil, err
	}

	migrated, err := migrateToCurrent(raw)
	if err != nil {
		return nil, nil, err
	}

	conv = &model.Conversation{}
	if err := json.Unmarshal(migrated, conv); err != nil {
		return nil, nil, errs.New(errs.KindStorage, fmt.Errorf("decoding conversation: %w", err))
	}
	conv.StorageRoot = storageRoot
	conv.ID = uuid.NewString()

	if err := os.MkdirAll(storageRoot, 0o755); err != nil {
		return nil, nil, errs.New(errs.KindStorage, fmt.Errorf("preparing storage root %q: %w", storageRoot, err))
	}
	for rel, f := range attachmentFiles {
		if err := materializeAttachment(f, storageRoot, rel); err != nil {
			return nil, nil, err
		}
	}

	if _, err := conv.Validate(func(a model.Attachment) bool {
		if model.IsRemoteLocation(a.Loc()) || filepath.IsAbs(a.Loc()) {
			return true
		}
		_, statErr := os.Stat(filepath.Join(storageRoot, a.Loc()))
		return statErr == nil
	}); err != nil {
		return nil, nil, errs.New(errs.KindStorage, err)
	}

	draft = conv.PopDraft()
	return conv, draft, nil
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, errs.New(errs.KindStorage, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, errs.New(errs.KindStorage, err)
	}
	return data, nil
}

func materializeAttachment(f *zip.File, storageRoot, rel string) error {
	destPath := filepath.Join(storageRoot, rel)
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return errs.New(errs.KindStorage, err)
	}
	rc, err := f.Open()
	if err != nil {
		return errs.New(errs.KindStorage, err)
	}
	defer rc.Close()

	dst, err := os.Create(destPath)
	if err != nil {
		return errs.New(errs.KindStorage, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, rc); err != nil {
		return errs.New(errs.KindStorage, err)
	}
	return nil
}
