package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/uscan-cli/uscan/internal/config"
	"github.com/uscan-cli/uscan/pkg/errors"
	"github.com/uscan-cli/uscan/pkg/escl"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the scanner's advertised capabilities",
	RunE:  runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func runInfo(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "config invalid")
	}

	ctx := context.Background()

	endpoint, err := resolveEndpoint(ctx, cfg)
	if err != nil {
		return err
	}

	client, err := escl.NewClient(endpoint, cfg.Timeout)
	if err != nil {
		return errors.Wrap(err, "invalid device endpoint")
	}

	caps, err := client.Capabilities(ctx)
	if err != nil {
		return err
	}

	sources := make([]string, len(caps.Sources))
	for i, s := range caps.Sources {
		sources[i] = string(s)
	}
	modes := make([]string, len(caps.ColorModes))
	for i, m := range caps.ColorModes {
		modes[i] = string(m)
	}
	duplex := "no"
	if caps.DuplexSupported {
		duplex = "yes"
	}

	fmt.Printf("Device:       %s\n", caps.MakeAndModel)
	fmt.Printf("Endpoint:     %s\n", client.BaseURL())
	fmt.Printf("Sources:      %s\n", strings.Join(sources, ", "))
	fmt.Printf("Resolutions:  %s\n", strings.Trim(fmt.Sprint(caps.Resolutions), "[]"))
	fmt.Printf("Color modes:  %s\n", strings.Join(modes, ", "))
	fmt.Printf("Duplex:       %s\n", duplex)
	fmt.Printf("Max area:     %dx%d (1/300 inch units)\n", caps.MaxWidth, caps.MaxHeight)

	return nil
}
