package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/uscan-cli/uscan/internal/config"
	"github.com/uscan-cli/uscan/pkg/errors"
)

// LogLevel is the process-wide log level, wired into the handler by
// main and adjusted here once flags are parsed.
var LogLevel = new(slog.LevelVar)

var (
	quiet bool
	debug bool
)

var rootCmd = &cobra.Command{
	Use:   "uscan",
	Short: "uscan - scan documents from eSCL network scanners",
	Long: `Drives a network-attached document scanner over the eSCL protocol:
discovers the device, negotiates a scan job, retrieves the pages, and
assembles them into a PDF or JPEG output.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		switch {
		case debug:
			LogLevel.Set(slog.LevelDebug)
		case quiet:
			LogLevel.Set(slog.LevelError)
		}
	},
}

// Execute runs the CLI and maps the error surface onto process exit
// codes so scripts can distinguish failure classes.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	switch errors.KindOf(err) {
	case errors.KindUsage:
		return 2
	case errors.KindDeviceUnreachable:
		return 3
	case errors.KindDeviceTimeout:
		return 4
	case errors.KindMalformedCapabilities:
		return 5
	case errors.KindUnsupportedParameter:
		return 6
	case errors.KindJobCreationRejected:
		return 7
	case errors.KindPageFetchFailed:
		return 8
	case errors.KindAssemblyFailed:
		return 9
	case errors.KindCanceled:
		// Matches the shell convention for SIGINT.
		return 130
	default:
		return 1
	}
}

func init() {
	// Flag defaults mirror the config package defaults; viper treats a
	// bound flag's default as authoritative over SetDefault.
	stateDir := config.DefaultStateDir()

	rootCmd.PersistentFlags().String("device", "", "eSCL base URL of the scanner (default: resolve via mDNS)")
	rootCmd.PersistentFlags().Duration("timeout", 15*time.Second, "per-call device timeout")
	rootCmd.PersistentFlags().Duration("poll-interval", time.Second, "job status polling interval")
	rootCmd.PersistentFlags().Duration("discovery-wait", 10*time.Second, "how long to wait for mDNS discovery")
	rootCmd.PersistentFlags().String("sqlite-path", filepath.Join(stateDir, "history.db"), "scan history database path")
	rootCmd.PersistentFlags().String("fsm-db-path", filepath.Join(stateDir, "fsm"), "scan session state directory")
	rootCmd.PersistentFlags().String("s3-bucket", "", "S3 bucket for --upload")
	rootCmd.PersistentFlags().String("s3-region", "us-east-1", "S3 region for --upload")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "only log errors")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "log protocol traffic")

	viper.BindPFlag("device-url", rootCmd.PersistentFlags().Lookup("device"))
	viper.BindPFlag("timeout", rootCmd.PersistentFlags().Lookup("timeout"))
	viper.BindPFlag("poll-interval", rootCmd.PersistentFlags().Lookup("poll-interval"))
	viper.BindPFlag("discovery-wait", rootCmd.PersistentFlags().Lookup("discovery-wait"))
	viper.BindPFlag("sqlite-path", rootCmd.PersistentFlags().Lookup("sqlite-path"))
	viper.BindPFlag("fsm-db-path", rootCmd.PersistentFlags().Lookup("fsm-db-path"))
	viper.BindPFlag("s3-bucket", rootCmd.PersistentFlags().Lookup("s3-bucket"))
	viper.BindPFlag("s3-region", rootCmd.PersistentFlags().Lookup("s3-region"))
}
