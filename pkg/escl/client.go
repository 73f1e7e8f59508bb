package escl

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/uscan-cli/uscan/pkg/errors"
)

// Client performs the HTTP operations of the eSCL protocol against a
// single device. Every call enforces the configured per-call timeout
// so a wedged device cannot hang the process.
type Client struct {
	base    *url.URL
	httpc   *http.Client
	timeout time.Duration
}

// NewClient creates a client for a device's eSCL base URL, for example
// http://192.168.1.50:8080/eSCL.
func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, errors.Wrap(err, "invalid device URL")
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("device URL %q lacks scheme or host", baseURL)
	}

	slog.Info("escl_client_init", "device_url", u.String(), "timeout", timeout)

	return &Client{
		base:    u,
		httpc:   &http.Client{},
		timeout: timeout,
	}, nil
}

// BaseURL returns the normalized device base URL.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// Capabilities fetches and parses the device's advertised capabilities.
func (c *Client) Capabilities(ctx context.Context) (*Capabilities, error) {
	body, status, err := c.get(ctx, c.resource("ScannerCapabilities"))
	if err != nil {
		return nil, c.classify(err, "capabilities fetch failed", errors.KindDeviceUnreachable)
	}
	if status != http.StatusOK {
		return nil, errors.E(errors.KindMalformedCapabilities,
			"capabilities fetch returned HTTP %d", status)
	}
	slog.Debug("capabilities_response", "body", string(body))

	caps, err := ParseCapabilities(body)
	if err != nil {
		slog.Error("capabilities_parse_failed", "error", err)
		return nil, err
	}

	slog.Info("capabilities_fetched",
		"make_and_model", caps.MakeAndModel,
		"sources", caps.Sources,
		"resolutions", caps.Resolutions,
		"duplex", caps.DuplexSupported,
	)
	return caps, nil
}

// Status fetches and parses the scanner status resource. A device that
// cannot report status is treated as unreachable for protocol purposes.
func (c *Client) Status(ctx context.Context) (*DeviceStatus, error) {
	body, status, err := c.get(ctx, c.resource("ScannerStatus"))
	if err != nil {
		return nil, c.classify(err, "status poll failed", errors.KindDeviceUnreachable)
	}
	if status != http.StatusOK {
		return nil, errors.E(errors.KindDeviceUnreachable,
			"status poll returned HTTP %d", status)
	}
	slog.Debug("status_response", "body", string(body))

	st, err := ParseStatus(body)
	if err != nil {
		return nil, errors.Tag(errors.KindDeviceUnreachable, err)
	}
	return st, nil
}

// CreateJob posts the settings document and returns the job URI from
// the Location header. A rejected submission is never retried here:
// re-submitting can trigger a duplicate physical scan.
func (c *Client) CreateJob(ctx context.Context, settings []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.resource("ScanJobs"), bytes.NewReader(settings))
	if err != nil {
		return "", errors.Wrap(err, "failed to build job request")
	}
	req.Header.Set("Content-Type", "text/xml")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", c.classify(err, "job submission failed", errors.KindDeviceUnreachable)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		slog.Error("scan_job_rejected", "http_status", resp.StatusCode)
		return "", errors.E(errors.KindJobCreationRejected,
			"device rejected scan job: HTTP %d", resp.StatusCode)
	}

	loc := resp.Header.Get("Location")
	if loc == "" {
		return "", errors.E(errors.KindJobCreationRejected,
			"device returned no job location")
	}
	return c.resolve(loc)
}

// NextDocument fetches the next ready page image for the job. The
// second return is false once the device reports no more documents,
// which is the normal end-of-feeder signal, not a failure.
func (c *Client) NextDocument(ctx context.Context, jobURI string) ([]byte, bool, error) {
	body, status, err := c.get(ctx, jobURI+"/NextDocument")
	if err != nil {
		// A transport drop mid-transfer is fatal to the job, not a
		// sign the device was never there.
		return nil, false, c.classify(err, "page fetch failed", errors.KindPageFetchFailed)
	}
	switch {
	case status == http.StatusNotFound:
		return nil, false, nil
	case status != http.StatusOK:
		return nil, false, errors.E(errors.KindPageFetchFailed,
			"page fetch returned HTTP %d", status)
	}
	return body, true, nil
}

// CancelJob asks the device to abandon the job. Callers treat the job
// as canceled locally regardless of the outcome.
func (c *Client) CancelJob(ctx context.Context, jobURI string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, jobURI, nil)
	if err != nil {
		return errors.Wrap(err, "failed to build cancel request")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return c.classify(err, "job cancel failed", errors.KindDeviceUnreachable)
	}
	resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("job cancel returned HTTP %d", resp.StatusCode)
	}
	return nil
}

// resource joins the eSCL base URL with a well-known resource name.
func (c *Client) resource(name string) string {
	return c.base.String() + "/" + name
}

// resolve turns a Location header value into an absolute job URI.
func (c *Client) resolve(loc string) (string, error) {
	u, err := url.Parse(loc)
	if err != nil {
		return "", errors.Wrap(err, "invalid job location")
	}
	return c.base.ResolveReference(u).String(), nil
}

// get issues a GET with the per-call timeout and returns body and status.
func (c *Client) get(ctx context.Context, rawURL string) ([]byte, int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}
	return body, resp.StatusCode, nil
}

// classify maps a transport failure onto the error surface. Timeout is
// kept distinct from an unreachable device, and a canceled context is
// the user's doing, not a device fault.
func (c *Client) classify(err error, msg string, fallback errors.Kind) error {
	wrapped := errors.Wrap(err, msg)
	switch {
	case stderrors.Is(err, context.Canceled):
		return errors.Tag(errors.KindCanceled, wrapped)
	case isTimeout(err):
		return errors.Tag(errors.KindDeviceTimeout, wrapped)
	default:
		return errors.Tag(fallback, wrapped)
	}
}

func isTimeout(err error) bool {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ue *url.Error
	return stderrors.As(err, &ue) && ue.Timeout()
}
