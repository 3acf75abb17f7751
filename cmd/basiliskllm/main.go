// Command basiliskllm is the process entrypoint hosting the conversation
// engine: config/account/profile loading, the single-instance guard, the
// provider registry, the conversation database, and (via the hidden
// "worker" subcommand) the self-reexec OCR/transcription workers.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sigmanight/basiliskllm/pkg/archive"
	"github.com/sigmanight/basiliskllm/pkg/attachments"
	"github.com/sigmanight/basiliskllm/pkg/config"
	"github.com/sigmanight/basiliskllm/pkg/database"
	"github.com/sigmanight/basiliskllm/pkg/logger"
	"github.com/sigmanight/basiliskllm/pkg/resolver"
)

var (
	flagLanguage     string
	flagLogLevel     string
	flagNoEnvAccount bool
	flagMinimize     bool
	flagNewInstance  bool
)

func main() {
	root := &cobra.Command{
		Use:           "basiliskllm [path.bskc]",
		Short:         "BasiliskLLM conversation engine",
		SilenceUsage:  true,
		SilenceErrors: false,
		Args:          cobra.MaximumNArgs(1),
		RunE:          runRoot,
	}
	root.PersistentFlags().StringVar(&flagLanguage, "language", "auto", "UI / provider locale hint")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "INFO", "DEBUG, INFO, WARNING, ERROR, or CRITICAL")
	root.PersistentFlags().BoolVar(&flagNoEnvAccount, "no-env-account", false, "skip loading accounts from environment variables")
	root.Flags().BoolVar(&flagMinimize, "minimize", false, "start minimized")
	root.Flags().BoolVarP(&flagNewInstance, "new-instance", "n", false, "open a new instance even if one is already running")

	root.AddCommand(newWorkerCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runRoot(cmd *cobra.Command, args []string) error {
	logger.Configure(os.Stderr, flagLogLevel)

	configDir, err := config.Dir()
	if err != nil {
		return fmt.Errorf("resolving config directory: %w", err)
	}

	var archivePath string
	if len(args) == 1 {
		archivePath = args[0]
	}

	if !flagNewInstance {
		var msg *ipcMessage
		if archivePath != "" {
			msg = &ipcMessage{Command: "open_file", Path: archivePath}
		} else {
			msg = &ipcMessage{Command: "focus"}
		}
		instance, err := Acquire(configDir, msg)
		if err != nil {
			return fmt.Errorf("acquiring single-instance lock: %w", err)
		}
		if !instance.Primary {
			logger.InfoCF("cmd", "another instance is already running, handed off", nil)
			return nil
		}
		defer instance.Release()
		return runPrimary(configDir, archivePath, instance)
	}

	return runPrimary(configDir, archivePath, nil)
}

func runPrimary(configDir, archivePath string, instance *SingleInstance) error {
	accountsCfg, err := config.LoadAccounts(configDir, flagNoEnvAccount)
	if err != nil {
		return fmt.Errorf("loading accounts: %w", err)
	}
	profilesCfg, err := config.LoadProfiles(configDir)
	if err != nil {
		return fmt.Errorf("loading profiles: %w", err)
	}
	for _, repair := range profilesCfg.RepairDanglingRefs(accountsCfg.Manager) {
		logger.WarnCF("config", "auto-corrected profile", map[string]any{"detail": repair})
	}
	settings, err := config.LoadSettings(configDir)
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}
	if flagLogLevel == "INFO" && settings.General.LogLevel != "" {
		logger.Configure(os.Stderr, settings.General.LogLevel)
	}

	if flagMinimize {
		logger.DebugCF("cmd", "starting minimized", nil)
	}

	storageRoot := filepath.Join(configDir, "storage")
	if err := os.MkdirAll(storageRoot, 0o755); err != nil {
		return fmt.Errorf("creating storage root: %w", err)
	}
	store := attachments.NewStore(storageRoot)

	cache := resolver.NewEngineCache()
	registry, err := buildRegistry(accountsCfg.Manager, cache, store)
	if err != nil {
		return fmt.Errorf("building provider registry: %w", err)
	}
	logger.InfoCF("cmd", "provider registry ready", map[string]any{"providers": registry.IDs()})

	db, err := database.Open(filepath.Join(configDir, "conversations.db"))
	if err != nil {
		return fmt.Errorf("opening conversation database: %w", err)
	}
	defer db.Close()

	if archivePath != "" {
		conv, draft, err := archive.Open(archivePath, storageRoot)
		if err != nil {
			return fmt.Errorf("opening %s: %w", archivePath, err)
		}
		logger.InfoCF("cmd", "opened archive", map[string]any{"path": archivePath, "messages": len(conv.Messages), "has_draft": draft != nil})
	}

	return waitForShutdown(instance)
}

// waitForShutdown blocks until SIGINT/SIGTERM, forwarding any inbound IPC
// messages from a second invocation to the log in the meantime. A GUI
// build would instead dispatch "focus" to raise its window and
// "open_file" to load another archive into the running session.
func waitForShutdown(instance *SingleInstance) error {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	var messages <-chan ipcMessage
	if instance != nil {
		messages = instance.Messages
	}

	for {
		select {
		case <-sig:
			logger.InfoCF("cmd", "shutting down", nil)
			return nil
		case msg, ok := <-messages:
			if !ok {
				messages = nil
				continue
			}
			logger.InfoCF("cmd", "received IPC message", map[string]any{"command": msg.Command, "path": msg.Path})
		}
	}
}
