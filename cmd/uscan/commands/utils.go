package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"github.com/input-output-hk/catalyst-forge-libs/executor"
	"github.com/uscan-cli/uscan/internal/config"
	"github.com/uscan-cli/uscan/pkg/discovery"
	"github.com/uscan-cli/uscan/pkg/errors"
)

// ensureDirectories creates the local state directories for the journal
// database and the session state store
func ensureDirectories(sqlitePath, fsmDBPath string) error {
	if err := os.MkdirAll(filepath.Dir(sqlitePath), 0755); err != nil {
		return errors.Wrap(err, "failed to create database directory")
	}

	if fsmDBPath != "" {
		if err := os.MkdirAll(fsmDBPath, 0755); err != nil {
			return errors.Wrap(err, "failed to create session state directory")
		}
	}

	return nil
}

// resolveEndpoint returns the device base URL: the configured one when
// given, otherwise the first scanner found via mDNS.
func resolveEndpoint(ctx context.Context, cfg *config.Config) (string, error) {
	if cfg.DeviceURL != "" {
		return cfg.DeviceURL, nil
	}

	ep, err := discovery.Resolve(ctx, cfg.DiscoveryWait)
	if err != nil {
		return "", err
	}
	if !quiet {
		fmt.Printf("Using %s\n", ep.Name)
	}
	return ep.URL, nil
}

// openViewer hands the finished document to the platform opener. A
// missing opener is not a scan failure, so trouble is only logged.
func openViewer(ctx context.Context, path string) {
	opener := "xdg-open"
	if runtime.GOOS == "darwin" {
		opener = "open"
	}

	if _, err := executor.New(opener, path).Execute(ctx); err != nil {
		slog.Warn("viewer_open_failed", "path", path, "error", err)
	}
}
