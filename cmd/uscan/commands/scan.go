package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/spf13/cobra"
	"github.com/superfly/fsm"
	"github.com/uscan-cli/uscan/internal/config"
	"github.com/uscan-cli/uscan/pkg/assemble"
	"github.com/uscan-cli/uscan/pkg/errors"
	"github.com/uscan-cli/uscan/pkg/escl"
	"github.com/uscan-cli/uscan/pkg/journal"
	"github.com/uscan-cli/uscan/pkg/pipeline"
	"github.com/uscan-cli/uscan/pkg/storage"
)

var (
	scanSource     string
	scanFormat     string
	scanGrayscale  bool
	scanResolution int
	scanDuplex     bool
	scanRegion     string
	scanToday      bool
	scanNoOpen     bool
	scanUpload     bool
)

var scanCmd = &cobra.Command{
	Use:   "scan [flags] <filename>",
	Short: "Scan a document to a PDF or JPEG file",
	Args:  cobra.ExactArgs(1),
	RunE:  runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().StringVarP(&scanSource, "source", "S", "automatic", "input source: feeder, flatbed, or automatic")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "pdf", "output format: pdf or jpeg")
	scanCmd.Flags().BoolVarP(&scanGrayscale, "grayscale", "g", false, "scan in grayscale instead of color")
	scanCmd.Flags().IntVarP(&scanResolution, "resolution", "r", 200, "scan resolution in DPI (75, 100, 200, 300, 600)")
	scanCmd.Flags().BoolVarP(&scanDuplex, "duplex", "D", false, "scan both sides of each sheet")
	scanCmd.Flags().StringVarP(&scanRegion, "region", "R", "", "scan region: a paper size (a4, letter, ...) or Xoff:Yoff:Width:Height with units (e.g. 1cm:1.5cm:10cm:20cm)")
	scanCmd.Flags().BoolVarP(&scanToday, "today", "t", false, "prepend the date to the file name in ISO format")
	scanCmd.Flags().BoolVarP(&scanNoOpen, "no-open", "o", false, "do not open the result in a viewer")
	scanCmd.Flags().BoolVar(&scanUpload, "upload", false, "upload the result to S3 after scanning")
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "config invalid")
	}

	req, filename, err := resolveRequest(args[0])
	if err != nil {
		return err
	}
	if scanUpload && cfg.S3Bucket == "" {
		return errors.E(errors.KindUsage, "--upload requires an S3 bucket (--s3-bucket or USCAN_S3_BUCKET)")
	}

	// A user interrupt cancels the context; the controller then sends a
	// best-effort device-side cancel so the scanner is not left busy.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	endpoint, err := resolveEndpoint(ctx, cfg)
	if err != nil {
		return err
	}

	client, err := escl.NewClient(endpoint, cfg.Timeout)
	if err != nil {
		return errors.Wrap(err, "invalid device endpoint")
	}

	if err := ensureDirectories(cfg.SQLitePath, cfg.FSMDBPath); err != nil {
		return err
	}

	repo, err := journal.NewRepository(cfg.SQLitePath)
	if err != nil {
		return errors.Wrap(err, "journal init failed")
	}
	defer repo.Close()

	output, err := filepath.Abs(filename)
	if err != nil {
		return errors.Wrap(err, "invalid output path")
	}
	sink := newSink(osfs.New(filepath.Dir(output)), filepath.Base(output), req)

	manager, err := fsm.New(fsm.Config{DBPath: cfg.FSMDBPath})
	if err != nil {
		return errors.Wrap(err, "FSM manager failed")
	}
	defer manager.Shutdown(10 * time.Second)

	machine := pipeline.NewMachine(client, repo, sink, cfg.PollInterval)
	resp, err := machine.Run(ctx, manager, &pipeline.ScanRequest{
		Endpoint: endpoint,
		Request:  req,
		Output:   output,
	})
	if err != nil {
		return err
	}

	result := filepath.Join(filepath.Dir(output), resp.Output)
	if !quiet {
		fmt.Printf("✅ Scanned %d page(s) → %s\n", resp.Pages, result)
	}

	if scanUpload {
		if err := uploadResult(ctx, cfg, result); err != nil {
			return err
		}
	}

	if !scanNoOpen {
		openViewer(ctx, result)
	}
	return nil
}

// resolveRequest maps the scan flags onto the protocol request and the
// final file name, applying the date-prefix and suffix policies.
func resolveRequest(filename string) (escl.Request, string, error) {
	var req escl.Request

	switch scanSource {
	case "feeder":
		req.Source = escl.SourceFeeder
	case "flatbed":
		req.Source = escl.SourceFlatbed
	case "automatic":
		req.Source = escl.SourceAutomatic
	default:
		return req, "", errors.E(errors.KindUsage, "invalid source %q", scanSource)
	}

	switch scanFormat {
	case "pdf":
		req.Format = escl.FormatPDF
	case "jpeg":
		req.Format = escl.FormatJPEG
	default:
		return req, "", errors.E(errors.KindUsage, "invalid format %q", scanFormat)
	}

	req.ColorMode = escl.ColorModeColor
	if scanGrayscale {
		req.ColorMode = escl.ColorModeGrayscale
	}
	req.Resolution = scanResolution
	req.Duplex = scanDuplex

	if scanRegion != "" {
		region, err := parseRegion(scanRegion)
		if err != nil {
			return req, "", err
		}
		req.Region = region
	}

	if scanToday {
		filename = time.Now().Format("2006-01-02") + "-" + filename
	}

	if req.Format == escl.FormatJPEG {
		switch ext := strings.ToLower(filepath.Ext(filename)); ext {
		case ".jpg", ".jpeg":
		case "":
			filename += ".jpg"
		default:
			return req, "", errors.E(errors.KindUsage, "improper file suffix %q for jpeg output", ext)
		}
	}

	return req, filename, nil
}

// newSink picks the document sink for the negotiated format.
func newSink(fs billy.Filesystem, name string, req escl.Request) assemble.Sink {
	if req.Format == escl.FormatJPEG {
		return assemble.NewJPEGSink(fs, name)
	}
	return assemble.NewPDFSink(fs, name, req.Resolution)
}

// uploadResult pushes the finished document to the configured bucket,
// refusing to overwrite an existing object.
func uploadResult(ctx context.Context, cfg *config.Config, localPath string) error {
	client, err := storage.NewClient(ctx, cfg.S3Bucket, cfg.S3Region)
	if err != nil {
		return err
	}

	key := path.Join(cfg.S3Prefix, filepath.Base(localPath))
	exists, err := client.Exists(ctx, key)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("object %s already exists in bucket %s", key, cfg.S3Bucket)
	}

	contentType := "application/pdf"
	if scanFormat == "jpeg" {
		contentType = "image/jpeg"
	}
	if err := client.Upload(ctx, key, localPath, contentType); err != nil {
		return err
	}

	if !quiet {
		fmt.Printf("☁️  Uploaded → s3://%s/%s\n", cfg.S3Bucket, key)
	}
	return nil
}
