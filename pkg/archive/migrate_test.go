package archive

import (
	"encoding/json"
	"testing"

	"github.com/tidwall/gjson"
)

func TestMigrateV0ToV1AddsVersion(t *testing.T) {
	v0 := []byte(`{"messages":[],"systems":[],"title":"Test Conversation"}`)
	out, err := migrateV0ToV1(v0)
	if err != nil {
		t.Fatalf("migrateV0ToV1: %v", err)
	}
	if gjson.GetBytes(out, "version").Int() != 1 {
		t.Fatalf("version = %s, want 1", gjson.GetBytes(out, "version").Raw)
	}
	if gjson.GetBytes(out, "title").String() != "Test Conversation" {
		t.Fatalf("title lost in migration: %s", out)
	}
}

func TestMigrateV1ToV2WithSystemMovesIntoSystemsList(t *testing.T) {
	v1 := []byte(`{
		"version": 1,
		"messages": [
			{"request": {"role":"user","content":"Test message"},
			 "response": {"role":"assistant","content":"Test response"},
			 "model": {"provider_id":"test","model_id":"model1"}}
		],
		"system": {"role":"system","content":"System instructions"},
		"title": "Test Conversation"
	}`)

	out, err := migrateV1ToV2(v1)
	if err != nil {
		t.Fatalf("migrateV1ToV2: %v", err)
	}

	if gjson.GetBytes(out, "system").Exists() {
		t.Fatal("system field should be removed")
	}
	systems := gjson.GetBytes(out, "systems")
	if !systems.IsArray() || len(systems.Array()) != 1 {
		t.Fatalf("systems = %s, want single-element array", systems.Raw)
	}
	if systems.Array()[0].Get("content").String() != "System instructions" {
		t.Fatalf("systems[0].content = %q", systems.Array()[0].Get("content").String())
	}

	messages := gjson.GetBytes(out, "messages")
	last := messages.Array()[len(messages.Array())-1]
	if last.Get("system_index").Int() != 0 {
		t.Fatalf("last message system_index = %s, want 0", last.Get("system_index").Raw)
	}
}

func TestMigrateV1ToV2WithoutSystemLeavesEmptySystemsList(t *testing.T) {
	v1 := []byte(`{
		"version": 1,
		"messages": [
			{"request": {"role":"user","content":"Test message"},
			 "response": {"role":"assistant","content":"Test response"},
			 "model": {"provider_id":"test","model_id":"model1"}}
		],
		"title": "Test Conversation"
	}`)

	out, err := migrateV1ToV2(v1)
	if err != nil {
		t.Fatalf("migrateV1ToV2: %v", err)
	}
	if gjson.GetBytes(out, "system").Exists() {
		t.Fatal("system field should be absent")
	}
	systems := gjson.GetBytes(out, "systems")
	if !systems.IsArray() || len(systems.Array()) != 0 {
		t.Fatalf("systems = %s, want empty array", systems.Raw)
	}
	messages := gjson.GetBytes(out, "messages")
	if messages.Array()[0].Get("system_index").Exists() {
		t.Fatal("message should not have gained a system_index")
	}
}

func TestMigrateV1ToV2EmptyMessagesStillMovesSystem(t *testing.T) {
	v1 := []byte(`{
		"version": 1,
		"messages": [],
		"system": {"role":"system","content":"System instructions"},
		"title": "Test Conversation"
	}`)

	out, err := migrateV1ToV2(v1)
	if err != nil {
		t.Fatalf("migrateV1ToV2: %v", err)
	}
	systems := gjson.GetBytes(out, "systems")
	if len(systems.Array()) != 1 {
		t.Fatalf("systems = %s, want single-element array", systems.Raw)
	}
	messages := gjson.GetBytes(out, "messages")
	if len(messages.Array()) != 0 {
		t.Fatalf("messages should remain empty, got %s", messages.Raw)
	}
}

func TestMigrateToCurrentFromV0RunsBothSteps(t *testing.T) {
	v0 := []byte(`{
		"messages": [
			{"request": {"role":"user","content":"Test message"},
			 "response": {"role":"assistant","content":"Test response"},
			 "model": {"provider_id":"test","model_id":"model1"}}
		],
		"title": "Test V0 Conversation"
	}`)

	out, err := migrateToCurrent(v0)
	if err != nil {
		t.Fatalf("migrateToCurrent: %v", err)
	}
	if gjson.GetBytes(out, "version").Int() != 2 {
		t.Fatalf("version = %s, want 2", gjson.GetBytes(out, "version").Raw)
	}

	var decoded struct {
		Version int `json:"version"`
		Title   string `json:"title"`
		Systems []any `json:"systems"`
	}
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("decoding migrated output: %v", err)
	}
	if decoded.Version != 2 || decoded.Title != "Test V0 Conversation" {
		t.Fatalf("decoded = %+v", decoded)
	}
}

func TestMigrateToCurrentRejectsVersionAboveCurrent(t *testing.T) {
	invalid := []byte(`{"version":999,"messages":[],"title":"Invalid Version"}`)
	_, err := migrateToCurrent(invalid)
	if err == nil {
		t.Fatal("expected an error for a version above current")
	}
}

func TestMigrateToCurrentIsNoOpAtCurrentVersion(t *testing.T) {
	v2 := []byte(`{
		"version": 2,
		"messages": [
			{"request": {"role":"user","content":"Test message"},
			 "response": {"role":"assistant","content":"Test response"},
			 "model": {"provider_id":"test","model_id":"model1"},
			 "system_index": 0}
		],
		"systems": [{"role":"system","content":"System instructions"}],
		"title": "Test V2 Conversation"
	}`)

	out, err := migrateToCurrent(v2)
	if err != nil {
		t.Fatalf("migrateToCurrent: %v", err)
	}
	if string(out) != string(v2) {
		t.Fatalf("v2 input should pass through unchanged, got %s", out)
	}
}
