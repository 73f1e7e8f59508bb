// Package discovery resolves a network scanner's eSCL endpoint via
// mDNS. The first `_uscan._tcp` responder wins; this is a single-device
// convenience for the CLI, not a discovery service.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/uscan-cli/uscan/pkg/errors"
)

const service = "_uscan._tcp"

// Endpoint is one resolved scanner.
type Endpoint struct {
	// Name is the mDNS instance name, for user display.
	Name string

	// URL is the eSCL base URL, with the rs TXT path applied.
	URL string
}

// Resolve browses for the first scanner on the local network, waiting
// at most the given duration. The rs TXT record, when present, names
// the eSCL resource path (normalized to a leading slash); devices that
// omit it serve under /eSCL.
func Resolve(ctx context.Context, wait time.Duration) (*Endpoint, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create mDNS resolver")
	}

	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry, 4)
	if err := resolver.Browse(ctx, service, "local.", entries); err != nil {
		return nil, errors.Wrap(err, "mDNS browse failed")
	}

	slog.Info("scanner_discovery_started", "service", service, "wait", wait)

	select {
	case entry, ok := <-entries:
		if !ok || entry == nil {
			return nil, errors.E(errors.KindDeviceUnreachable, "no scanner found")
		}
		ep := fromEntry(entry)
		slog.Info("scanner_discovered", "name", ep.Name, "url", ep.URL)
		return ep, nil
	case <-ctx.Done():
		return nil, errors.E(errors.KindDeviceUnreachable, "no scanner found")
	}
}

// fromEntry builds the eSCL base URL from an mDNS answer.
func fromEntry(entry *zeroconf.ServiceEntry) *Endpoint {
	host := strings.TrimSuffix(entry.HostName, ".")
	if len(entry.AddrIPv4) > 0 {
		host = entry.AddrIPv4[0].String()
	}

	rs := "/eSCL"
	for _, txt := range entry.Text {
		if v, ok := strings.CutPrefix(txt, "rs="); ok && v != "" {
			rs = v
			if rs[0] != '/' {
				rs = "/" + rs
			}
		}
	}

	return &Endpoint{
		Name: entry.Instance,
		URL:  fmt.Sprintf("http://%s:%d%s", host, entry.Port, rs),
	}
}
