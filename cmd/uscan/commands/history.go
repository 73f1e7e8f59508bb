package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/uscan-cli/uscan/internal/config"
	"github.com/uscan-cli/uscan/pkg/errors"
	"github.com/uscan-cli/uscan/pkg/journal"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past scans and their outcome",
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}

	if err := ensureDirectories(cfg.SQLitePath, ""); err != nil {
		return err
	}

	repo, err := journal.NewRepository(cfg.SQLitePath)
	if err != nil {
		return errors.Wrap(err, "journal init failed")
	}
	defer repo.Close()

	scans, err := repo.List()
	if err != nil {
		return errors.Wrap(err, "history list failed")
	}

	if len(scans) == 0 {
		fmt.Println("No scans recorded")
		return nil
	}

	fmt.Printf("%-20s %-25s %-10s %-5s %-6s %-10s %s\n",
		"DATE", "DEVICE", "SOURCE", "DPI", "PAGES", "STATUS", "OUTPUT")
	fmt.Println("--------------------------------------------------------------------------------------------------------")

	for _, s := range scans {
		output := s.OutputPath
		if output == "" {
			output = "-"
		}

		fmt.Printf("%-20s %-25s %-10s %-5d %-6d %-10s %s\n",
			s.CreatedAt, truncate(s.Device, 25), s.Source, s.Resolution, s.Pages, s.Status, output)
	}

	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}
