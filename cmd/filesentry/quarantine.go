package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Pirikara/filesentry/internal/quarantine"
)

func newQuarantineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quarantine",
		Short: "Inspect and restore quarantined files",
	}
	cmd.AddCommand(newQuarantineListCmd())
	cmd.AddCommand(newQuarantineRestoreCmd())
	return cmd
}

func newQuarantineListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List quarantined files",
		RunE: func(cmd *cobra.Command, args []string) error {
			quar, err := openManager()
			if err != nil {
				return err
			}
			defer quar.Close()

			entries, err := quar.List()
			if err != nil {
				return fmt.Errorf("failed to read quarantine index: %w", err)
			}

			if len(entries) == 0 {
				fmt.Println("No quarantined files.")
				return nil
			}

			fmt.Printf("%-36s  %-25s  %s\n", "ID", "QUARANTINED AT", "ORIGINAL PATH")
			for _, e := range entries {
				fmt.Printf("%-36s  %-25s  %s\n",
					e.ID, e.RecordedAt.Local().Format(time.RFC3339), e.OriginalPath)
			}
			return nil
		},
	}
}

func newQuarantineRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore [id]",
		Short: "Move a quarantined file back to where it was taken from",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			quar, err := openManager()
			if err != nil {
				return err
			}
			defer quar.Close()

			restored, err := quar.Restore(args[0])
			if err != nil {
				return fmt.Errorf("failed to restore %s: %w", args[0], err)
			}

			fmt.Printf("✅ Restored to: %s\n", restored)
			return nil
		},
	}
}

// openManager opens the quarantine area for offline inspection. It
// works from the configured paths even when quarantine is disabled,
// so files captured earlier stay reachable.
func openManager() (*quarantine.Manager, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return quarantine.NewManager(quarantine.Config{
		Root:         cfg.Quarantine.Path,
		KeepOriginal: cfg.Quarantine.KeepOriginal,
		IndexPath:    cfg.Quarantine.IndexPath,
	}, zap.NewNop()), nil
}
