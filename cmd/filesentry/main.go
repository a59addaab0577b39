package main

import (
	"context"
	_ "embed"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/Pirikara/filesentry/internal/config"
	"github.com/Pirikara/filesentry/internal/filter"
	"github.com/Pirikara/filesentry/internal/logging"
	"github.com/Pirikara/filesentry/internal/monitor"
	"github.com/Pirikara/filesentry/internal/pipeline"
	"github.com/Pirikara/filesentry/internal/quarantine"
	"github.com/Pirikara/filesentry/internal/record"
	"github.com/Pirikara/filesentry/internal/siem"
	"github.com/Pirikara/filesentry/internal/signature"
)

// Built-in signature table, embedded at build time
//go:embed signatures.yaml
var defaultSignaturesYAML []byte

var (
	// Global flags
	configPath     string
	signaturesPath string
	logLevel       string
	adapterName    string
	noQuarantine   bool
	quiet          bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "filesentry",
		Short: "FileSentry - File extension spoofing monitor",
		Long: `FileSentry watches user directories for files whose content does not
match the type their extension claims. Every mismatch is recorded as a
SIEM event in JSON Lines format and the file is moved to quarantine.`,
		Example: `  filesentry
  filesentry --adapter=poll --log-level=debug
  filesentry scan ~/Downloads /tmp/incoming
  filesentry quarantine list`,
		RunE: runAgent,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default: ~/.filesentry/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&signaturesPath, "signatures", "", "Path to signature table (default: ~/.filesentry/signatures.yaml or built-in)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")
	rootCmd.PersistentFlags().StringVar(&adapterName, "adapter", "", "Watch adapter: fsnotify or poll (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&noQuarantine, "no-quarantine", false, "Record detections without moving files")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "Suppress console output")

	// Subcommands
	rootCmd.AddCommand(newScanCmd())
	rootCmd.AddCommand(newCheckCmd())
	rootCmd.AddCommand(newPrintConfigCmd())
	rootCmd.AddCommand(newQuarantineCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runAgent(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logging.New(cfg.Logging.LogLevel)
	defer log.Sync()

	table, err := signature.LoadTable(signaturesPath, defaultSignaturesYAML)
	if err != nil {
		return fmt.Errorf("failed to load signature table: %w", err)
	}

	paths := cfg.ResolveWatchPaths()
	if len(paths) == 0 {
		return fmt.Errorf("no directories to monitor: set monitoring.watch_paths or enable auto_detect_paths")
	}

	events, err := siem.New(cfg.Logging.LogFile, cfg.Logging.ConsoleOutput)
	if err != nil {
		return fmt.Errorf("failed to open event log: %w", err)
	}
	defer events.Close()

	pipe, quar, err := assemble(cfg, table, newWatcher(cfg, paths, log), paths, cfg.Monitoring.Adapter, events, log)
	if err != nil {
		return err
	}
	if quar != nil {
		defer quar.Close()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Cancel instead of exiting so the pipeline drains and the
	// shutdown event reaches the log.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		if cfg.Logging.ConsoleOutput {
			fmt.Println("\nStopping FileSentry...")
		}
		cancel()
	}()

	if cfg.Logging.ConsoleOutput {
		for _, p := range paths {
			fmt.Printf("✓ Now monitoring: %s\n", p)
		}
		fmt.Printf("Events are logged to %s\n", cfg.Logging.LogFile)
		fmt.Println("Press Ctrl+C to stop.")
	}

	return pipe.Run(ctx)
}

func newScanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan [path...]",
		Short: "Inspect the given paths once instead of watching them",
		Long: `Scan walks the given files and directories once, inspects every regular
file through the same pipeline the agent runs, then exits. The exit
code is 1 when at least one mismatch was found.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runScan,
	}
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logging.New(cfg.Logging.LogLevel)
	defer log.Sync()

	table, err := signature.LoadTable(signaturesPath, defaultSignaturesYAML)
	if err != nil {
		return fmt.Errorf("failed to load signature table: %w", err)
	}

	// Collect the files up front. closed_write marks them at rest, so
	// the pipeline skips the settle delay it applies to fresh creates.
	var roots []string
	var found []monitor.Event
	for _, root := range args {
		root = filepath.Clean(root)
		roots = append(roots, root)

		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				if path == root {
					return walkErr
				}
				log.Warn("skipping unreadable path", zap.String("path", path), zap.Error(walkErr))
				return nil
			}
			if d.IsDir() || !d.Type().IsRegular() {
				return nil
			}
			found = append(found, monitor.Event{Kind: monitor.KindClosedWrite, Path: path})
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to scan %s: %w", root, err)
		}
	}

	events, err := siem.New(cfg.Logging.LogFile, cfg.Logging.ConsoleOutput)
	if err != nil {
		return fmt.Errorf("failed to open event log: %w", err)
	}
	defer events.Close()

	pipe, quar, err := assemble(cfg, table, monitor.NewStaticWatcher(found...), roots, "scan", events, log)
	if err != nil {
		return err
	}
	if quar != nil {
		defer quar.Close()
	}

	if err := pipe.Run(context.Background()); err != nil {
		return err
	}

	stats := pipe.Stats()
	fmt.Printf("Scanned %d files: %d mismatches, %d quarantined\n",
		len(found), stats.Mismatches, stats.Quarantined)
	if stats.Mismatches > 0 {
		os.Exit(1)
	}
	return nil
}

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check FileSentry installation and configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("FileSentry self-check")
			fmt.Println("=====================")

			cfg, err := loadConfig()
			if err != nil {
				fmt.Printf("❌ Failed to load config: %v\n", err)
				return err
			}

			fmt.Println("✅ Config loaded")

			table, err := signature.LoadTable(signaturesPath, defaultSignaturesYAML)
			if err != nil {
				fmt.Printf("❌ Failed to load signature table: %v\n", err)
				return err
			}

			fmt.Printf("✅ Signature table loaded: %d rules\n", table.Len())

			paths := cfg.ResolveWatchPaths()
			if len(paths) == 0 {
				fmt.Println("❌ No directories to monitor: set monitoring.watch_paths or enable auto_detect_paths")
				return fmt.Errorf("no directories to monitor")
			}

			fmt.Printf("✅ Watch paths: %d directories\n", len(paths))
			for _, p := range paths {
				fmt.Printf("   - %s\n", p)
			}

			if cfg.Quarantine.Enabled {
				quar := quarantine.NewManager(quarantine.Config{
					Root:      cfg.Quarantine.Path,
					IndexPath: cfg.Quarantine.IndexPath,
				}, zap.NewNop())
				if quar.Disabled() {
					fmt.Printf("⚠️  Quarantine root %s is not writable, detections will be recorded only\n", cfg.Quarantine.Path)
				} else {
					fmt.Printf("✅ Quarantine root: %s\n", cfg.Quarantine.Path)
				}
				quar.Close()
			} else {
				fmt.Println("⚠️  Quarantine disabled, detections will be recorded only")
			}

			events, err := siem.New(cfg.Logging.LogFile, false)
			if err != nil {
				fmt.Printf("❌ Event log is not writable: %v\n", err)
				return err
			}
			events.Close()

			fmt.Printf("✅ Event log: %s\n", cfg.Logging.LogFile)

			fmt.Println("\n✅ FileSentry is ready to use!")
			return nil
		},
	}
}

func newPrintConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "print-config",
		Short: "Print current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			out, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}

			fmt.Print(string(out))
			return nil
		},
	}
}

// loadConfig loads the configuration and applies command line overrides.
// Overrides go through the same validation as file values.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	if logLevel != "" {
		cfg.Logging.LogLevel = logLevel
	}
	if adapterName != "" {
		cfg.Monitoring.Adapter = adapterName
	}
	if noQuarantine {
		cfg.Quarantine.Enabled = false
	}
	if quiet {
		cfg.Logging.ConsoleOutput = false
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// assemble wires the inspection pipeline around the given event source.
func assemble(cfg *config.Config, table *signature.Table, watcher monitor.Watcher, paths []string, adapter string, events *siem.Logger, log *zap.Logger) (*pipeline.Pipeline, *quarantine.Manager, error) {
	deb := filter.NewDebounce(cfg.Detection.DebounceWindow.Std(), cfg.Detection.DebounceMaxEntries)

	excluded := cfg.Monitoring.ExcludedPaths
	if cfg.Quarantine.Enabled {
		// The quarantine area must never feed back into the pipeline.
		excluded = append(excluded, cfg.Quarantine.Path)
	}

	filt, err := filter.New(filter.Config{
		ExcludedRoots: excluded,
		ExcludeGlobs:  cfg.Monitoring.ExcludeGlobs,
		MaxFileSizeMB: cfg.Detection.MaxFileSizeMB,
		Debounce:      deb,
	}, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build filter: %w", err)
	}

	var quar *quarantine.Manager
	if cfg.Quarantine.Enabled {
		quar = quarantine.NewManager(quarantine.Config{
			Root:         cfg.Quarantine.Path,
			KeepOriginal: cfg.Quarantine.KeepOriginal,
			IndexPath:    cfg.Quarantine.IndexPath,
		}, log)
	}

	pipe := pipeline.New(pipeline.Config{
		Filter:  filt,
		Matcher: signature.NewMatcher(table, cfg.Detection.HeaderBytes),
		Enricher: record.NewEnricher(record.Config{
			CalculateHash: cfg.Detection.CalculateHash,
			ResolveOwner:  cfg.Detection.GetFileOwner,
		}, log),
		Quarantine:     quar,
		SIEM:           events,
		Watcher:        watcher,
		Debounce:       deb,
		Logger:         log,
		Workers:        cfg.Detection.Workers,
		SettleDelay:    cfg.Monitoring.SettleDelay.Std(),
		SweepInterval:  cfg.Detection.DebounceWindow.Std(),
		MonitoredPaths: paths,
		Adapter:        adapter,
	})

	return pipe, quar, nil
}

// newWatcher builds the filesystem event source named by the config.
func newWatcher(cfg *config.Config, paths []string, log *zap.Logger) monitor.Watcher {
	if cfg.Monitoring.Adapter == config.AdapterPoll {
		return monitor.NewPollWatcher(paths, cfg.Monitoring.PollInterval.Std(), log)
	}
	return monitor.NewFSNotifyWatcher(paths, log)
}
