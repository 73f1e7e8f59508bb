package escl

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/uscan-cli/uscan/pkg/errors"
)

// Controller drives one scan job through its lifecycle: submission,
// status polling, page retrieval, and completion. A controller serves a
// single scan invocation; all device calls are sequential and blocking
// because the physical device scans one sheet at a time.
type Controller struct {
	client *Client
	req    Request
	poll   time.Duration
}

// NewController creates a controller for one scan session. The poll
// interval is a caller tunable, not a protocol constant.
func NewController(client *Client, req Request, pollInterval time.Duration) *Controller {
	return &Controller{client: client, req: req, poll: pollInterval}
}

// Submit checks that the scanner is idle, posts the job document, and
// returns the live job handle. A busy or rejecting device surfaces as
// a job-creation rejection and is never retried automatically.
func (c *Controller) Submit(ctx context.Context, settings []byte) (*Job, error) {
	st, err := c.client.Status(ctx)
	if err != nil {
		return nil, err
	}
	if st.State != DeviceIdle {
		return nil, errors.E(errors.KindJobCreationRejected,
			"scanner is not idle (state %s)", st.State)
	}

	uri, err := c.client.CreateJob(ctx, settings)
	if err != nil {
		return nil, err
	}

	job := &Job{
		URI:     uri,
		UUID:    NormalizeJobUUID(lastSegment(uri)),
		State:   JobPending,
		Trace:   []JobState{JobPending},
		duplex:  c.req.Duplex,
		flatbed: c.req.Source == SourceFlatbed,
	}

	slog.Info("scan_job_submitted", "job_uri", job.URI, "job_uuid", job.UUID)
	return job, nil
}

// PollStatus reads the device status and extracts this job's slice of
// it. A job that vanished from the status list means the device gave
// up on the running scan.
func (c *Controller) PollStatus(ctx context.Context, job *Job) (StatusSnapshot, error) {
	st, err := c.client.Status(ctx)
	if err != nil {
		return StatusSnapshot{}, err
	}
	snap, ok := st.Snapshot(job.UUID)
	if !ok {
		return StatusSnapshot{}, errors.E(errors.KindPageFetchFailed,
			"job %s no longer reported by scanner", job.UUID)
	}

	slog.Debug("status_poll",
		"job_uuid", job.UUID,
		"device_state", snap.DeviceState,
		"job_state", snap.JobState,
		"images_completed", snap.ImagesCompleted,
	)
	return snap, nil
}

// observe folds a status snapshot into the local job state. Terminal
// device states are authoritative. A stale Processing arriving after a
// page was already ready is ignored unless the device's completed-image
// counter shows a new page in flight; the counter itself is treated as
// a high-water mark since responses may arrive out of order.
func (c *Controller) observe(job *Job, snap StatusSnapshot) {
	if snap.ImagesCompleted > job.imagesSeen {
		job.imagesSeen = snap.ImagesCompleted
	}

	switch snap.JobState {
	case deviceJobCompleted:
		job.transition(JobCompleted)
	case deviceJobCanceled:
		job.transition(JobCanceled)
	case deviceJobAborted:
		job.transition(JobError)
	case deviceJobProcessing:
		switch job.State {
		case JobPending:
			job.transition(JobProcessing)
		case JobPageReady:
			if job.imagesSeen > len(job.Pages) {
				job.transition(JobProcessing)
			}
		}
	case deviceJobPending:
		// Job is queued; local state already reflects that.
	}
}

// FetchPage downloads one ready page and appends it to the job in
// retrieval order. A transport failure mid-acquisition is fatal to the
// whole job: silently emitting fewer pages than were scanned would
// corrupt the output.
func (c *Controller) FetchPage(ctx context.Context, job *Job) error {
	data, ok, err := c.client.NextDocument(ctx, job.URI)
	if err != nil {
		if errors.IsKind(err, errors.KindCanceled) {
			return err
		}
		job.transition(JobError)
		slog.Error("page_fetch_failed",
			"job_uuid", job.UUID, "page_number", len(job.Pages)+1, "error", err)
		return err
	}
	if !ok {
		job.noMoreDocs = true
		slog.Info("no_more_documents", "job_uuid", job.UUID, "pages", len(job.Pages))
		return nil
	}

	job.Pages = append(job.Pages, data)
	if job.duplex {
		job.backPending = !job.backPending
	}
	if job.flatbed {
		// A flatbed scan yields exactly one page; skip further fetches.
		job.noMoreDocs = true
	}
	job.transition(JobPageReady)

	slog.Info("page_fetched",
		"job_uuid", job.UUID, "page_number", len(job.Pages), "bytes", len(data))
	return nil
}

// IsMoreExpected reports whether another poll/fetch cycle should run:
// continue while the job is active and either the device has not
// signaled the end of documents or a duplex back side is still owed.
// Page parity is never inferred; the device's signaling is the truth.
func (c *Controller) IsMoreExpected(job *Job) bool {
	if !job.State.active() {
		return false
	}
	return !job.noMoreDocs || job.backPending
}

// Cancel abandons the job: best-effort DELETE on the device, local
// state becomes Canceled regardless of the outcome so shutdown never
// blocks waiting for a device acknowledgment.
func (c *Controller) Cancel(ctx context.Context, job *Job) {
	if err := c.client.CancelJob(ctx, job.URI); err != nil {
		slog.Warn("scan_job_cancel_failed", "job_uuid", job.UUID, "error", err)
	} else {
		slog.Info("scan_job_cancel_sent", "job_uuid", job.UUID)
	}
	job.transition(JobCanceled)
}

// Acquire runs the poll/fetch loop until the device signals the end of
// the job. On user interruption it attempts a device-side cancel before
// returning so the physical scanner is not left busy.
func (c *Controller) Acquire(ctx context.Context, job *Job) error {
	for {
		snap, err := c.PollStatus(ctx, job)
		if err != nil {
			return c.fail(ctx, job, err)
		}
		c.observe(job, snap)

		switch job.State {
		case JobCanceled:
			return errors.E(errors.KindCanceled, "scan job canceled by device")
		case JobError:
			return c.deviceFailure(snap)
		case JobCompleted:
			return c.finish(ctx, job)
		}

		if err := c.FetchPage(ctx, job); err != nil {
			return c.fail(ctx, job, err)
		}
		if !c.IsMoreExpected(job) {
			return c.finish(ctx, job)
		}

		select {
		case <-ctx.Done():
			return c.fail(ctx, job, errors.Tag(errors.KindCanceled, ctx.Err()))
		case <-time.After(c.poll):
		}
	}
}

// finish verifies the finished job against the device's own verdict.
// Only JobCompletedSuccessfully counts as success; a job that merely
// stopped is a failure even when pages were transferred.
func (c *Controller) finish(ctx context.Context, job *Job) error {
	snap, err := c.PollStatus(ctx, job)
	if err != nil {
		return c.fail(ctx, job, err)
	}
	c.observe(job, snap)

	switch {
	case job.State == JobCanceled:
		return errors.E(errors.KindCanceled, "scan job canceled by device")
	case snap.Reason == ReasonCompleted:
		job.transition(JobCompleted)
		slog.Info("scan_job_completed", "job_uuid", job.UUID, "pages", len(job.Pages))
		return nil
	default:
		job.transition(JobError)
		return c.deviceFailure(snap)
	}
}

// fail routes an acquisition failure: a user cancellation still gets a
// best-effort device-side cancel, anything else leaves the job in Error.
func (c *Controller) fail(ctx context.Context, job *Job, err error) error {
	if errors.IsKind(err, errors.KindCanceled) {
		cancelCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.client.timeout)
		defer cancel()
		c.Cancel(cancelCtx, job)
		return err
	}
	job.transition(JobError)
	return err
}

func (c *Controller) deviceFailure(snap StatusSnapshot) error {
	reason := snap.Reason
	if reason == "" {
		reason = snap.JobState
	}
	return errors.E(errors.KindPageFetchFailed, "device reported job failure: %s", reason)
}

func lastSegment(uri string) string {
	if i := strings.LastIndexByte(uri, '/'); i >= 0 {
		return uri[i+1:]
	}
	return uri
}
