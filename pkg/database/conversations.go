package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/sigmanight/basiliskllm/pkg/errs"
	"github.com/sigmanight/basiliskllm/pkg/model"
)

// Summary is the row shape returned by ListConversations (spec §4.7:
// "list<summary>"), cheap enough to build without loading every message.
type Summary struct {
	ID        string
	Title     string
	CreatedAt string
	UpdatedAt string
	Private   bool
}

// Save inserts or upserts conv by ID (spec §4.7's save(conversation) →
// id): existing rows for the conversation are replaced wholesale inside a
// single transaction, since a Conversation's messages/systems are always
// saved as a unit rather than patched incrementally. Private conversations
// are still written to the base tables (manual save always works) but are
// excluded from the full-text index.
func (db *DB) Save(ctx context.Context, conv *model.Conversation, createdAt, updatedAt string) (string, error) {
	if conv.ID == "" {
		return "", errs.Newf(errs.KindStorage, "cannot save a conversation with no id")
	}

	err := db.write(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var title sql.NullString
		if conv.Title != nil {
			title = sql.NullString{String: *conv.Title, Valid: true}
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO conversations (id, title, created_at, updated_at, private)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				title = excluded.title,
				updated_at = excluded.updated_at,
				private = excluded.private
		`, conv.ID, title, createdAt, updatedAt, conv.Private); err != nil {
			return errs.New(errs.KindStorage, err)
		}

		if err := clearConversationChildren(ctx, tx, conv.ID); err != nil {
			return err
		}

		for _, sys := range conv.Systems {
			if _, err := tx.ExecContext(ctx, `INSERT INTO systems (conversation_id, content) VALUES (?, ?)`, conv.ID, sys.Content); err != nil {
				return errs.New(errs.KindStorage, err)
			}
		}

		messages := conv.Messages
		if conv.HasTrailingDraft() {
			// The trailing draft is persisted separately by saveDraft, below.
			messages = messages[:len(messages)-1]
		}
		for ordinal, block := range messages {
			if err := insertMessage(ctx, tx, conv.ID, ordinal, block); err != nil {
				return err
			}
		}

		if err := saveDraft(ctx, tx, conv); err != nil {
			return err
		}

		if conv.Private {
			if _, err := tx.ExecContext(ctx, `DELETE FROM conversation_search WHERE conversation_id = ?`, conv.ID); err != nil {
				return errs.New(errs.KindStorage, err)
			}
			return nil
		}
		return reindexConversation(ctx, tx, conv)
	})
	if err != nil {
		return "", err
	}
	return conv.ID, nil
}

func clearConversationChildren(ctx context.Context, tx *sql.Tx, conversationID string) error {
	for _, stmt := range []string{
		`DELETE FROM attachments WHERE message_id IN (SELECT id FROM messages WHERE conversation_id = ?)`,
		`DELETE FROM messages WHERE conversation_id = ?`,
		`DELETE FROM systems WHERE conversation_id = ?`,
		`DELETE FROM drafts WHERE conversation_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, conversationID); err != nil {
			return errs.New(errs.KindStorage, err)
		}
	}
	return nil
}

func insertMessage(ctx context.Context, tx *sql.Tx, conversationID string, ordinal int, block model.MessageBlock) error {
	var responseContent sql.NullString
	if block.Response != nil {
		responseContent = sql.NullString{String: block.Response.Content, Valid: true}
	}
	var systemIndex sql.NullInt64
	if block.SystemIndex != nil {
		systemIndex = sql.NullInt64{Int64: int64(*block.SystemIndex), Valid: true}
	}
	var temperature, topP sql.NullFloat64
	if block.Temperature != nil {
		temperature = sql.NullFloat64{Float64: *block.Temperature, Valid: true}
	}
	if block.TopP != nil {
		topP = sql.NullFloat64{Float64: *block.TopP, Valid: true}
	}
	var maxTokens sql.NullInt64
	if block.MaxTokens != nil {
		maxTokens = sql.NullInt64{Int64: int64(*block.MaxTokens), Valid: true}
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO messages (conversation_id, role, ordinal, content, provider_id, model_id,
			temperature, top_p, max_tokens, stream, system_index, response_content)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, conversationID, block.Request.Role, ordinal, block.Request.Content,
		block.Model.ProviderID, block.Model.ModelID,
		temperature, topP, maxTokens, block.Stream, systemIndex, responseContent)
	if err != nil {
		return errs.New(errs.KindStorage, err)
	}
	messageID, err := res.LastInsertId()
	if err != nil {
		return errs.New(errs.KindStorage, err)
	}

	for _, a := range block.Request.Attachments {
		if err := insertAttachment(ctx, tx, messageID, a); err != nil {
			return err
		}
	}
	if block.Response != nil {
		for _, a := range block.Response.Attachments {
			if err := insertAttachment(ctx, tx, messageID, a); err != nil {
				return err
			}
		}
	}
	return nil
}

func insertAttachment(ctx context.Context, tx *sql.Tx, messageID int64, a model.Attachment) error {
	var mime string
	var sizeBytes int64
	var displayName string
	switch v := a.(type) {
	case model.ImageAttachment:
		mime, sizeBytes, displayName = v.MIME, v.SizeBytes, v.DisplayName
	case model.FileAttachment:
		mime, sizeBytes, displayName = v.MIME, v.SizeBytes, v.DisplayName
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO attachments (message_id, kind, location, mime, bytes, display_name)
		VALUES (?, ?, ?, ?, ?, ?)
	`, messageID, a.Kind(), a.Loc(), mime, sizeBytes, displayName)
	if err != nil {
		return errs.New(errs.KindStorage, err)
	}
	return nil
}

// saveDraft persists the conversation's trailing draft, if any, into the
// drafts table, distinct from the messages table's own notion of a draft
// block (response_content NULL): the drafts table exists specifically so
// an in-progress, unsent prompt survives an unclean shutdown (spec §4.7).
func saveDraft(ctx context.Context, tx *sql.Tx, conv *model.Conversation) error {
	if !conv.HasTrailingDraft() {
		return nil
	}
	draft := conv.Messages[len(conv.Messages)-1]

	var attachmentsJSON []byte
	if len(draft.Request.Attachments) > 0 {
		raw, err := model.MarshalAttachments(draft.Request.Attachments)
		if err != nil {
			return errs.New(errs.KindStorage, err)
		}
		attachmentsJSON = raw
	}
	paramsJSON, err := json.Marshal(struct {
		ProviderID  string   `json:"provider_id"`
		ModelID     string   `json:"model_id"`
		Temperature *float64 `json:"temperature,omitempty"`
		TopP        *float64 `json:"top_p,omitempty"`
		MaxTokens   *int     `json:"max_tokens,omitempty"`
		Stream      bool     `json:"stream,omitempty"`
	}{draft.Model.ProviderID, draft.Model.ModelID, draft.Temperature, draft.TopP, draft.MaxTokens, draft.Stream})
	if err != nil {
		return errs.New(errs.KindStorage, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO drafts (conversation_id, prompt_text, attachments_json, params_json)
		VALUES (?, ?, ?, ?)
	`, conv.ID, draft.Request.Content, string(attachmentsJSON), string(paramsJSON))
	if err != nil {
		return errs.New(errs.KindStorage, err)
	}
	return nil
}

func reindexConversation(ctx context.Context, tx *sql.Tx, conv *model.Conversation) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM conversation_search WHERE conversation_id = ?`, conv.ID); err != nil {
		return errs.New(errs.KindStorage, err)
	}
	title := ""
	if conv.Title != nil {
		title = *conv.Title
	}
	var contentParts []string
	for _, block := range conv.Messages {
		contentParts = append(contentParts, block.Request.Content)
		if block.Response != nil {
			contentParts = append(contentParts, block.Response.Content)
		}
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO conversation_search (conversation_id, title, content) VALUES (?, ?, ?)
	`, conv.ID, title, strings.Join(contentParts, "\n"))
	if err != nil {
		return errs.New(errs.KindStorage, err)
	}
	return nil
}

// Load reconstructs a Conversation from its saved rows (spec §4.7's load):
// a trailing draft, if one was saved, is materialised as an unresponded
// MessageBlock appended after the sealed history.
func (db *DB) Load(ctx context.Context, id string) (*model.Conversation, error) {
	var title sql.NullString
	var private bool
	err := db.sql.QueryRowContext(ctx, `SELECT title, private FROM conversations WHERE id = ?`, id).Scan(&title, &private)
	if err == sql.ErrNoRows {
		return nil, errs.Newf(errs.KindStorage, "no conversation with id %q", id)
	}
	if err != nil {
		return nil, errs.New(errs.KindStorage, err)
	}

	conv := &model.Conversation{ID: id, Version: model.CurrentArchiveVersion, Private: private}
	if title.Valid {
		conv.Title = &title.String
	}

	sysRows, err := db.sql.QueryContext(ctx, `SELECT content FROM systems WHERE conversation_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, errs.New(errs.KindStorage, err)
	}
	for sysRows.Next() {
		var content string
		if err := sysRows.Scan(&content); err != nil {
			sysRows.Close()
			return nil, errs.New(errs.KindStorage, err)
		}
		conv.Systems = append(conv.Systems, model.NewSystemMessage(content))
	}
	sysRows.Close()
	if err := sysRows.Err(); err != nil {
		return nil, errs.New(errs.KindStorage, err)
	}

	msgRows, err := db.sql.QueryContext(ctx, `
		SELECT id, role, content, provider_id, model_id, temperature, top_p, max_tokens,
			stream, system_index, response_content
		FROM messages WHERE conversation_id = ? ORDER BY ordinal
	`, id)
	if err != nil {
		return nil, errs.New(errs.KindStorage, err)
	}
	defer msgRows.Close()

	for msgRows.Next() {
		var messageID int64
		var role string
		var content string
		var providerID, modelID sql.NullString
		var temperature, topP sql.NullFloat64
		var maxTokens sql.NullInt64
		var stream bool
		var systemIndex sql.NullInt64
		var responseContent sql.NullString

		if err := msgRows.Scan(&messageID, &role, &content, &providerID, &modelID,
			&temperature, &topP, &maxTokens, &stream, &systemIndex, &responseContent); err != nil {
			return nil, errs.New(errs.KindStorage, err)
		}

		block := model.MessageBlock{
			Request: model.Message{Role: model.MessageRole(role), Content: content},
			Model:   model.ModelRef{ProviderID: providerID.String, ModelID: modelID.String},
			Stream:  stream,
		}
		if temperature.Valid {
			block.Temperature = &temperature.Float64
		}
		if topP.Valid {
			block.TopP = &topP.Float64
		}
		if maxTokens.Valid {
			v := int(maxTokens.Int64)
			block.MaxTokens = &v
		}
		if systemIndex.Valid {
			v := int(systemIndex.Int64)
			block.SystemIndex = &v
		}
		if responseContent.Valid {
			block.Response = &model.Message{Role: model.RoleAssistant, Content: responseContent.String}
		}

		atts, err := loadAttachments(ctx, db.sql, messageID)
		if err != nil {
			return nil, err
		}
		if len(atts) > 0 {
			block.Request.Attachments = atts
		}

		conv.Messages = append(conv.Messages, block)
	}
	if err := msgRows.Err(); err != nil {
		return nil, errs.New(errs.KindStorage, err)
	}

	draftBlock, err := loadDraft(ctx, db.sql, id)
	if err != nil {
		return nil, err
	}
	if draftBlock != nil {
		conv.Messages = append(conv.Messages, *draftBlock)
	}

	return conv, nil
}

func loadAttachments(ctx context.Context, q *sql.DB, messageID int64) ([]model.Attachment, error) {
	rows, err := q.QueryContext(ctx, `SELECT kind, location, mime, bytes, display_name FROM attachments WHERE message_id = ?`, messageID)
	if err != nil {
		return nil, errs.New(errs.KindStorage, err)
	}
	defer rows.Close()

	var atts []model.Attachment
	for rows.Next() {
		var kind, location string
		var mime, displayName sql.NullString
		var bytesCount sql.NullInt64
		if err := rows.Scan(&kind, &location, &mime, &bytesCount, &displayName); err != nil {
			return nil, errs.New(errs.KindStorage, err)
		}
		if model.AttachmentKind(kind) == model.AttachmentKindImage {
			atts = append(atts, model.ImageAttachment{
				Location: location, MIME: mime.String, SizeBytes: bytesCount.Int64, DisplayName: displayName.String,
			})
		} else {
			atts = append(atts, model.FileAttachment{
				Location: location, MIME: mime.String, SizeBytes: bytesCount.Int64, DisplayName: displayName.String,
			})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errs.New(errs.KindStorage, err)
	}
	return atts, nil
}

func loadDraft(ctx context.Context, q *sql.DB, conversationID string) (*model.MessageBlock, error) {
	var promptText string
	var attachmentsJSON, paramsJSON sql.NullString
	err := q.QueryRowContext(ctx, `SELECT prompt_text, attachments_json, params_json FROM drafts WHERE conversation_id = ?`, conversationID).
		Scan(&promptText, &attachmentsJSON, &paramsJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errs.New(errs.KindStorage, err)
	}

	block := &model.MessageBlock{Request: model.Message{Role: model.RoleUser, Content: promptText}}
	if attachmentsJSON.Valid && attachmentsJSON.String != "" {
		atts, err := model.UnmarshalAttachments([]byte(attachmentsJSON.String))
		if err != nil {
			return nil, errs.New(errs.KindStorage, err)
		}
		block.Request.Attachments = atts
	}
	if paramsJSON.Valid && paramsJSON.String != "" {
		var params struct {
			ProviderID  string   `json:"provider_id"`
			ModelID     string   `json:"model_id"`
			Temperature *float64 `json:"temperature,omitempty"`
			TopP        *float64 `json:"top_p,omitempty"`
			MaxTokens   *int     `json:"max_tokens,omitempty"`
			Stream      bool     `json:"stream,omitempty"`
		}
		if err := json.Unmarshal([]byte(paramsJSON.String), &params); err != nil {
			return nil, errs.New(errs.KindStorage, err)
		}
		block.Model = model.ModelRef{ProviderID: params.ProviderID, ModelID: params.ModelID}
		block.Temperature = params.Temperature
		block.TopP = params.TopP
		block.MaxTokens = params.MaxTokens
		block.Stream = params.Stream
	}
	return block, nil
}

// ListConversations returns conversation summaries ordered by most
// recently updated, optionally filtered by a full-text search term (spec
// §4.7's list_conversations(search?, limit, offset)).
func (db *DB) ListConversations(ctx context.Context, search string, limit, offset int) ([]Summary, error) {
	var rows *sql.Rows
	var err error
	if search == "" {
		rows, err = db.sql.QueryContext(ctx, `
			SELECT id, title, created_at, updated_at, private FROM conversations
			ORDER BY updated_at DESC LIMIT ? OFFSET ?
		`, limit, offset)
	} else {
		rows, err = db.sql.QueryContext(ctx, `
			SELECT c.id, c.title, c.created_at, c.updated_at, c.private
			FROM conversations c
			JOIN conversation_search s ON s.conversation_id = c.id
			WHERE conversation_search MATCH ?
			ORDER BY c.updated_at DESC LIMIT ? OFFSET ?
		`, search, limit, offset)
	}
	if err != nil {
		return nil, errs.New(errs.KindStorage, err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var s Summary
		var title sql.NullString
		if err := rows.Scan(&s.ID, &title, &s.CreatedAt, &s.UpdatedAt, &s.Private); err != nil {
			return nil, errs.New(errs.KindStorage, err)
		}
		s.Title = title.String
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.New(errs.KindStorage, err)
	}
	return out, nil
}

// Count returns the number of conversations matching an optional search
// term (spec §4.7's count(search?)).
func (db *DB) Count(ctx context.Context, search string) (int, error) {
	var n int
	var err error
	if search == "" {
		err = db.sql.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversations`).Scan(&n)
	} else {
		err = db.sql.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM conversation_search WHERE conversation_search MATCH ?
		`, search).Scan(&n)
	}
	if err != nil {
		return 0, errs.New(errs.KindStorage, err)
	}
	return n, nil
}

// Delete removes a conversation and all its child rows (spec §4.7's
// delete(id)). The child rows and the FTS row are deleted explicitly in
// the same transaction; nothing relies on the schema's ON DELETE CASCADE
// clauses.
func (db *DB) Delete(ctx context.Context, id string) error {
	return db.write(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM conversation_search WHERE conversation_id = ?`, id); err != nil {
			return errs.New(errs.KindStorage, err)
		}
		if err := clearConversationChildren(ctx, tx, id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
		if err != nil {
			return errs.New(errs.KindStorage, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return errs.New(errs.KindStorage, err)
		}
		if n == 0 {
			return errs.Newf(errs.KindStorage, "no conversation with id %q", id)
		}
		return nil
	})
}

// UpdateTitle renames a conversation and refreshes its FTS title (spec
// §4.7's update_title(id, title)).
func (db *DB) UpdateTitle(ctx context.Context, id, title string) error {
	return db.write(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE conversations SET title = ? WHERE id = ?`, title, id)
		if err != nil {
			return errs.New(errs.KindStorage, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return errs.New(errs.KindStorage, err)
		}
		if n == 0 {
			return errs.Newf(errs.KindStorage, "no conversation with id %q", id)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE conversation_search SET title = ? WHERE conversation_id = ?`, title, id); err != nil {
			return errs.New(errs.KindStorage, err)
		}
		return nil
	})
}
