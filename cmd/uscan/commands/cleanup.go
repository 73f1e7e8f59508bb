package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/uscan-cli/uscan/internal/config"
	"github.com/uscan-cli/uscan/pkg/errors"
	"github.com/uscan-cli/uscan/pkg/journal"
)

var (
	cleanupFailed    bool
	cleanupOlderThan int
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Prune old or failed entries from the scan history",
	Long: `Prune scan history records:
  --failed            Remove failed and canceled scans
  --older-than <days> Remove scans older than the given number of days`,
	RunE: runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
	cleanupCmd.Flags().BoolVar(&cleanupFailed, "failed", false, "remove failed and canceled scans")
	cleanupCmd.Flags().IntVar(&cleanupOlderThan, "older-than", 0, "remove scans older than this many days")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	if !cleanupFailed && cleanupOlderThan <= 0 {
		return errors.E(errors.KindUsage, "must specify --failed and/or --older-than")
	}

	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}

	repo, err := journal.NewRepository(cfg.SQLitePath)
	if err != nil {
		return errors.Wrap(err, "journal init failed")
	}
	defer repo.Close()

	var removed int64

	if cleanupFailed {
		n, err := repo.PruneFailed()
		if err != nil {
			return errors.Wrap(err, "cleanup failed")
		}
		removed += n
	}

	if cleanupOlderThan > 0 {
		n, err := repo.PruneOlderThan(cleanupOlderThan)
		if err != nil {
			return errors.Wrap(err, "cleanup failed")
		}
		removed += n
	}

	fmt.Printf("✅ Removed %d record(s)\n", removed)
	return nil
}
