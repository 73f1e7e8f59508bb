// Package pipeline orchestrates one scan invocation as a finite state
// machine: capability negotiation, job submission, page acquisition,
// and document assembly, with every run recorded in the scan journal.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/superfly/fsm"
	"github.com/uscan-cli/uscan/pkg/assemble"
	"github.com/uscan-cli/uscan/pkg/errors"
	"github.com/uscan-cli/uscan/pkg/escl"
	"github.com/uscan-cli/uscan/pkg/journal"
)

// Machine holds dependencies for FSM transitions. One machine serves a
// single scan invocation; the live protocol state (controller, job,
// settings) accumulates across states.
type Machine struct {
	client *escl.Client
	repo   *journal.Repository
	sink   assemble.Sink
	poll   time.Duration

	controller *escl.Controller
	settings   []byte
	job        *escl.Job

	// failure keeps the classified error across the fsm boundary so the
	// caller sees the original kind, not the library's wrapping.
	failure error
}

// NewMachine creates a scan machine. repo may be nil when no journal is
// wanted (the run is then not recorded).
func NewMachine(client *escl.Client, repo *journal.Repository, sink assemble.Sink, pollInterval time.Duration) *Machine {
	return &Machine{
		client: client,
		repo:   repo,
		sink:   sink,
		poll:   pollInterval,
	}
}

// Register registers the scan session FSM
func (m *Machine) Register(ctx context.Context, manager *fsm.Manager) (fsm.Start[ScanRequest, ScanResponse], fsm.Resume, error) {
	start, resume, err := fsm.Register[ScanRequest, ScanResponse](manager, "scan-session").
		Start(StateCapabilities, m.handleCapabilities).
		To(StateSubmit, m.handleSubmit).
		To(StateAcquire, m.handleAcquire).
		To(StateAssemble, m.handleAssemble).
		To(StateComplete, m.handleComplete).
		End(StateFailed).
		Build(ctx)

	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to register FSM")
	}

	return start, resume, nil
}

// Run drives one scan through the FSM and records the outcome in the
// journal. The returned response always carries the final status.
func (m *Machine) Run(ctx context.Context, manager *fsm.Manager, req *ScanRequest) (*ScanResponse, error) {
	start, _, err := m.Register(ctx, manager)
	if err != nil {
		return nil, err
	}

	resp := &ScanResponse{}
	version, err := start(ctx, uuid.New().String(), fsm.NewRequest(req, resp))
	if err != nil {
		return nil, errors.Wrap(err, "FSM start failed")
	}

	slog.Info("scan_session_started", "version", version)

	runErr := manager.Wait(ctx, version)
	if runErr != nil && m.failure != nil {
		// Surface the classified protocol error, not the fsm wrapping.
		runErr = m.failure
	}

	switch {
	case runErr == nil:
		resp.Status = journal.StatusCompleted
	case errors.IsKind(runErr, errors.KindCanceled):
		resp.Status = journal.StatusCanceled
		resp.ErrorMessage = runErr.Error()
	default:
		resp.Status = journal.StatusFailed
		resp.ErrorMessage = runErr.Error()
	}

	m.record(req, resp)
	return resp, runErr
}

// record writes the run's journal row. Journal trouble is logged, never
// allowed to overwrite the scan's own outcome.
func (m *Machine) record(req *ScanRequest, resp *ScanResponse) {
	if m.repo == nil {
		return
	}

	device := resp.MakeAndModel
	if device == "" {
		device = req.Endpoint
	}

	err := m.repo.Record(&journal.Scan{
		Device:       device,
		Source:       string(req.Request.Source),
		ColorMode:    string(req.Request.ColorMode),
		Resolution:   req.Request.Resolution,
		Duplex:       req.Request.Duplex,
		Format:       string(req.Request.Format),
		Pages:        resp.Pages,
		OutputPath:   resp.Output,
		Status:       resp.Status,
		ErrorMessage: resp.ErrorMessage,
	})
	if err != nil {
		slog.Error("journal_record_failed", "error", err)
	}
}

// fail remembers the classified error before handing it to the fsm. No
// scan state is retried: connectivity and protocol failures surface to
// the user, and re-submitting could trigger a duplicate physical scan.
func (m *Machine) fail(err error) error {
	if m.failure == nil {
		m.failure = err
	}
	return fsm.Abort(err)
}

// handleCapabilities fetches device capabilities and builds the job
// document. Any requested value the device does not support fails here.
func (m *Machine) handleCapabilities(ctx context.Context, req *fsm.Request[ScanRequest, ScanResponse]) (*fsm.Response[ScanResponse], error) {
	slog.Info("fsm_state_capabilities", "endpoint", req.Msg.Endpoint)

	resp := req.W.Msg
	if resp == nil {
		resp = &ScanResponse{}
	}

	caps, err := m.client.Capabilities(ctx)
	if err != nil {
		return nil, m.fail(err)
	}
	resp.MakeAndModel = caps.MakeAndModel

	settings, err := escl.BuildSettings(req.Msg.Request, caps)
	if err != nil {
		slog.Error("settings_build_failed", "error", err)
		return nil, m.fail(err)
	}
	m.settings = settings
	m.controller = escl.NewController(m.client, req.Msg.Request, m.poll)

	return fsm.NewResponse(resp), nil
}

// handleSubmit posts the job document and keeps the live job handle
func (m *Machine) handleSubmit(ctx context.Context, req *fsm.Request[ScanRequest, ScanResponse]) (*fsm.Response[ScanResponse], error) {
	slog.Info("fsm_state_submit", "endpoint", req.Msg.Endpoint)

	resp := req.W.Msg
	if resp == nil {
		return nil, m.fail(errors.E(errors.KindUnknown, "response not initialized"))
	}

	job, err := m.controller.Submit(ctx, m.settings)
	if err != nil {
		return nil, m.fail(err)
	}
	m.job = job
	resp.JobUUID = job.UUID

	return fsm.NewResponse(resp), nil
}

// handleAcquire runs the poll/fetch loop until the device signals the
// end of the job
func (m *Machine) handleAcquire(ctx context.Context, req *fsm.Request[ScanRequest, ScanResponse]) (*fsm.Response[ScanResponse], error) {
	slog.Info("fsm_state_acquire", "job_uuid", m.job.UUID)

	resp := req.W.Msg
	if resp == nil {
		return nil, m.fail(errors.E(errors.KindUnknown, "response not initialized"))
	}

	if err := m.controller.Acquire(ctx, m.job); err != nil {
		return nil, m.fail(err)
	}
	resp.Pages = len(m.job.Pages)

	return fsm.NewResponse(resp), nil
}

// handleAssemble writes the retrieved pages into the document sink.
// Partial page sets never reach this state: an acquisition failure
// aborts the FSM before assembly.
func (m *Machine) handleAssemble(ctx context.Context, req *fsm.Request[ScanRequest, ScanResponse]) (*fsm.Response[ScanResponse], error) {
	slog.Info("fsm_state_assemble", "pages", len(m.job.Pages))

	resp := req.W.Msg
	if resp == nil {
		return nil, m.fail(errors.E(errors.KindUnknown, "response not initialized"))
	}

	if err := assemble.Assemble(m.job.Pages, m.sink); err != nil {
		slog.Error("assembly_failed", "error", err)
		return nil, m.fail(err)
	}
	resp.Output = m.sink.OutputPath()

	return fsm.NewResponse(resp), nil
}

// handleComplete marks the session finished
func (m *Machine) handleComplete(ctx context.Context, req *fsm.Request[ScanRequest, ScanResponse]) (*fsm.Response[ScanResponse], error) {
	resp := req.W.Msg
	if resp == nil {
		resp = &ScanResponse{}
	}
	resp.Status = journal.StatusCompleted

	slog.Info("fsm_complete", "job_uuid", resp.JobUUID, "pages", resp.Pages, "output", resp.Output)

	return fsm.NewResponse(resp), nil
}
