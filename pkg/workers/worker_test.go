package workers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/sigmanight/basiliskllm/pkg/model"
	"github.com/sigmanight/basiliskllm/pkg/providers"
)

func TestEmitterRoundTripsEvents(t *testing.T) {
	var buf bytes.Buffer
	emitter := NewEmitter(&buf)

	if err := emitter.Message("starting"); err != nil {
		t.Fatalf("Message: %v", err)
	}
	if err := emitter.Progress(150); err != nil { // clamps to 100
		t.Fatalf("Progress: %v", err)
	}
	if err := emitter.Result(map[string]string{"text": "done"}); err != nil {
		t.Fatalf("Result: %v", err)
	}
	if err := emitter.Error(errors.New("boom")); err != nil {
		t.Fatalf("Error: %v", err)
	}

	decoder := json.NewDecoder(&buf)
	var events []Event
	for decoder.More() {
		var ev Event
		if err := decoder.Decode(&ev); err != nil {
			t.Fatalf("decoding emitted event: %v", err)
		}
		events = append(events, ev)
	}

	if len(events) != 4 {
		t.Fatalf("len(events) = %d, want 4", len(events))
	}
	if events[0].Kind != KindMessage || events[0].Message != "starting" {
		t.Errorf("events[0] = %+v", events[0])
	}
	if events[1].Kind != KindProgress || events[1].Progress != 100 {
		t.Errorf("events[1] = %+v, want progress clamped to 100", events[1])
	}
	if events[2].Kind != KindResult {
		t.Errorf("events[2].Kind = %q, want result", events[2].Kind)
	}
	var result map[string]string
	if err := json.Unmarshal(events[2].Result, &result); err != nil || result["text"] != "done" {
		t.Errorf("events[2].Result = %s, want {text: done}", events[2].Result)
	}
	if events[3].Kind != KindError || events[3].Error != "boom" {
		t.Errorf("events[3] = %+v", events[3])
	}
}

func TestCancelFlagSetIsIdempotentAndObservable(t *testing.T) {
	flag := NewCancelFlag()
	if flag.Cancelled() {
		t.Fatal("new flag should not be cancelled")
	}
	flag.Set()
	flag.Set() // must not panic on double-close
	if !flag.Cancelled() {
		t.Fatal("flag should report cancelled after Set")
	}
	select {
	case <-flag.Done():
	default:
		t.Fatal("Done() channel should be closed once cancelled")
	}
}

type fakeOCREngine struct {
	results []providers.OCRResult
	err     error
}

func (e *fakeOCREngine) HandleOCR(ctx context.Context, attachments []model.Attachment, progress chan<- providers.OCRProgress, cancel <-chan struct{}) ([]providers.OCRResult, error) {
	progress <- providers.OCRProgress{Percent: 50, Message: "halfway"}
	if e.err != nil {
		return nil, e.err
	}
	return e.results, nil
}

func TestOCRJobRunEmitsResult(t *testing.T) {
	var buf bytes.Buffer
	emitter := NewEmitter(&buf)
	cancel := NewCancelFlag()

	job := OCRJob{
		Engine:      &fakeOCREngine{results: []providers.OCRResult{{AttachmentLocation: "a.png", Text: "hello"}}},
		Attachments: []model.Attachment{model.ImageAttachment{Location: "a.png"}},
	}

	if err := job.Run(context.Background(), emitter, cancel); err != nil {
		t.Fatalf("Run: %v", err)
	}

	decoder := json.NewDecoder(&buf)
	var gotResult bool
	for decoder.More() {
		var ev Event
		if err := decoder.Decode(&ev); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if ev.Kind == KindResult {
			gotResult = true
			var results []providers.OCRResult
			if err := json.Unmarshal(ev.Result, &results); err != nil {
				t.Fatalf("unmarshal result: %v", err)
			}
			if len(results) != 1 || results[0].Text != "hello" {
				t.Fatalf("results = %+v", results)
			}
		}
	}
	if !gotResult {
		t.Fatal("expected a result event")
	}
}

func TestOCRJobRunWithoutEngineEmitsCapabilityError(t *testing.T) {
	var buf bytes.Buffer
	emitter := NewEmitter(&buf)

	job := OCRJob{}
	if err := job.Run(context.Background(), emitter, NewCancelFlag()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var ev Event
	if err := json.Unmarshal(buf.Bytes(), &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Kind != KindError {
		t.Fatalf("ev.Kind = %q, want error", ev.Kind)
	}
}
