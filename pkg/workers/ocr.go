package workers

import (
	"context"

	"github.com/sigmanight/basiliskllm/pkg/errs"
	"github.com/sigmanight/basiliskllm/pkg/model"
	"github.com/sigmanight/basiliskllm/pkg/providers"
)

// Job is anything a worker subprocess can run to completion, reporting
// progress and its result through emit and observing cancel at its own
// safe points (spec §4.5's task(*args, result_queue, cancel_flag,
// **kwargs)). OCRJob and TranscribeJob both implement it.
type Job interface {
	Run(ctx context.Context, emit *Emitter, cancel *CancelFlag) error
}

// OCRJob is the task contract a worker subprocess runs for an OCR batch
// (spec §4.5's task(*args, result_queue, cancel_flag, **kwargs)).
// The worker subcommand receives attachment locations as command-line
// strings and rebuilds the Attachment values from them, since the
// subprocess has its own copy of the storage root.
type OCRJob struct {
	Engine      providers.OCREngine
	Attachments []model.Attachment
}

// Run drives engine.HandleOCR, translating its progress/result channel
// into Emitter events until the engine returns or cancel is set.
func (j OCRJob) Run(ctx context.Context, emit *Emitter, cancel *CancelFlag) error {
	if j.Engine == nil {
		return emit.Error(errs.Newf(errs.KindCapability, "no OCR-capable engine configured"))
	}

	progress := make(chan providers.OCRProgress, 8)
	cancelCh := make(chan struct{})
	done := make(chan struct{})

	go func() {
		select {
		case <-cancel.Done():
			close(cancelCh)
		case <-done:
		}
	}()

	go func() {
		for p := range progress {
			_ = emit.Progress(p.Percent)
			if p.Message != "" {
				_ = emit.Message(p.Message)
			}
		}
	}()

	results, err := j.Engine.HandleOCR(ctx, j.Attachments, progress, cancelCh)
	close(done)
	close(progress)

	if err != nil {
		return emit.Error(err)
	}
	return emit.Result(results)
}

// TranscribeJob is the task contract for a single audio transcription.
type TranscribeJob struct {
	Engine         providers.TranscribeEngine
	AudioPath      string
	ResponseFormat string
}

// Run drives engine.Transcribe and emits its text as the job result.
func (j TranscribeJob) Run(ctx context.Context, emit *Emitter, cancel *CancelFlag) error {
	if j.Engine == nil {
		return emit.Error(errs.Newf(errs.KindCapability, "no transcription-capable engine configured"))
	}

	_ = emit.Message("transcribing " + j.AudioPath)

	text, err := j.Engine.Transcribe(ctx, j.AudioPath, j.ResponseFormat)
	if err != nil {
		return emit.Error(err)
	}
	if cancel.Cancelled() {
		return emit.Error(errs.Cancelled)
	}
	return emit.Result(map[string]string{"text": text})
}
