package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/sigmanight/basiliskllm/pkg/attachments"
	"github.com/sigmanight/basiliskllm/pkg/config"
	"github.com/sigmanight/basiliskllm/pkg/errs"
	"github.com/sigmanight/basiliskllm/pkg/model"
	"github.com/sigmanight/basiliskllm/pkg/providers"
	"github.com/sigmanight/basiliskllm/pkg/workers"
)

// newWorkerCmd builds the hidden "worker" subcommand pkg/workers.Spawn
// self-reexecs into. It is never invoked directly by a user.
func newWorkerCmd() *cobra.Command {
	var (
		accountID      string
		storageRoot    string
		locations      []string
		audioPath      string
		responseFormat string
	)

	worker := &cobra.Command{
		Use:    "worker",
		Hidden: true,
		Short:  "internal: runs one OCR or transcription job in a separate process",
	}
	worker.PersistentFlags().StringVar(&accountID, "account", "", "account id owning the engine to run the job with")
	worker.PersistentFlags().StringVar(&storageRoot, "storage-root", "", "conversation storage root for resolving local attachments")

	ocr := &cobra.Command{
		Use:   "ocr",
		Short: "internal: OCR a batch of attachments",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkerJob(accountID, storageRoot, func(engine providers.Engine, store *attachments.Store) workers.Job {
				atts := make([]model.Attachment, 0, len(locations))
				for _, loc := range locations {
					att, err := store.Classify(loc)
					if err != nil {
						continue
					}
					atts = append(atts, att)
				}
				ocrEngine, _ := engine.(providers.OCREngine)
				return workers.OCRJob{Engine: ocrEngine, Attachments: atts}
			})
		},
	}
	ocr.Flags().StringArrayVar(&locations, "attachment", nil, "attachment location to OCR (repeatable)")

	transcribe := &cobra.Command{
		Use:   "transcribe",
		Short: "internal: transcribe one audio file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkerJob(accountID, storageRoot, func(engine providers.Engine, store *attachments.Store) workers.Job {
				transcribeEngine, _ := engine.(providers.TranscribeEngine)
				return workers.TranscribeJob{Engine: transcribeEngine, AudioPath: audioPath, ResponseFormat: responseFormat}
			})
		},
	}
	transcribe.Flags().StringVar(&audioPath, "audio-path", "", "path to the audio file to transcribe")
	transcribe.Flags().StringVar(&responseFormat, "response-format", "text", "provider response format to request")

	worker.AddCommand(ocr, transcribe)
	return worker
}

// workerJobBuilder builds the job to run once the account's engine and
// attachment store are ready.
type workerJobBuilder func(engine providers.Engine, store *attachments.Store) workers.Job

func runWorkerJob(accountID, storageRoot string, build workerJobBuilder) error {
	if accountID == "" {
		return errs.Newf(errs.KindConfig, "worker invoked without --account")
	}

	configDir, err := config.Dir()
	if err != nil {
		return err
	}
	accountsCfg, err := config.LoadAccounts(configDir, false)
	if err != nil {
		return err
	}
	account, ok := accountsCfg.Manager.ByID(accountID)
	if !ok {
		return errs.Newf(errs.KindConfig, "worker: account %q not found", accountID)
	}

	store := attachments.NewStore(storageRoot)
	engine := buildEngine(account, store)
	job := build(engine, store)

	emit := workers.NewEmitter(os.Stdout)
	cancel := workers.NewCancelFlag()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go func() {
		<-sig
		cancel.Set()
		stop()
	}()

	if err := job.Run(ctx, emit, cancel); err != nil {
		return fmt.Errorf("worker job failed: %w", err)
	}
	return nil
}
