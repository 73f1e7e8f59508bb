package escl

import (
	"bytes"
	"context"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/uscan-cli/uscan/pkg/errors"
	"github.com/uscan-cli/uscan/pkg/esclsim"
)

func newTestClient(t *testing.T, dev *esclsim.Device, timeout time.Duration) *Client {
	t.Helper()

	srv := httptest.NewServer(dev.Routes())
	t.Cleanup(srv.Close)

	client, err := NewClient(srv.URL+"/eSCL", timeout)
	if err != nil {
		t.Fatalf("client init failed: %v", err)
	}
	return client
}

func mustSettings(t *testing.T, client *Client, req Request) []byte {
	t.Helper()

	caps, err := client.Capabilities(context.Background())
	if err != nil {
		t.Fatalf("capabilities fetch failed: %v", err)
	}
	settings, err := BuildSettings(req, caps)
	if err != nil {
		t.Fatalf("settings build failed: %v", err)
	}
	return settings
}

func TestAcquireFlatbedSinglePage(t *testing.T) {
	dev := esclsim.NewDevice()
	dev.Pages = esclsim.Pages(1, 100, 150, false)
	dev.CompleteOnLastFetch = true

	client := newTestClient(t, dev, 2*time.Second)
	req := Request{Source: SourceFlatbed, ColorMode: ColorModeColor, Resolution: 300, Format: FormatPDF}
	ctrl := NewController(client, req, time.Millisecond)

	job, err := ctrl.Submit(context.Background(), mustSettings(t, client, req))
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if err := ctrl.Acquire(context.Background(), job); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	if len(job.Pages) != 1 {
		t.Fatalf("expected 1 page, got %d", len(job.Pages))
	}
	if job.State != JobCompleted {
		t.Errorf("job state = %s, want %s", job.State, JobCompleted)
	}

	want := []JobState{JobPending, JobProcessing, JobPageReady, JobCompleted}
	if !reflect.DeepEqual(job.Trace, want) {
		t.Errorf("trace = %v, want %v", job.Trace, want)
	}

	// A flatbed never has a second document; exactly one fetch happens.
	if got := dev.Count("next"); got != 1 {
		t.Errorf("next-document calls = %d, want 1", got)
	}
}

func TestAcquireDuplexFeeder(t *testing.T) {
	dev := esclsim.NewDevice()
	// Three sheets scanned on both sides.
	dev.Pages = make([][]byte, 6)
	for i := range dev.Pages {
		dev.Pages[i] = esclsim.JPEGPage(100+i, 150, false)
	}

	client := newTestClient(t, dev, 2*time.Second)
	req := Request{Source: SourceFeeder, ColorMode: ColorModeColor, Resolution: 300, Duplex: true, Format: FormatPDF}
	ctrl := NewController(client, req, time.Millisecond)

	job, err := ctrl.Submit(context.Background(), mustSettings(t, client, req))
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if err := ctrl.Acquire(context.Background(), job); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	if len(job.Pages) != 6 {
		t.Fatalf("expected 6 pages, got %d", len(job.Pages))
	}
	for i, page := range job.Pages {
		if !bytes.Equal(page, dev.Pages[i]) {
			t.Errorf("page %d not retrieved in device order", i+1)
		}
	}
	if job.State != JobCompleted {
		t.Errorf("job state = %s, want %s", job.State, JobCompleted)
	}
	// The feeder does not know its sheet count; the end is signaled by
	// one extra fetch coming back empty.
	if got := dev.Count("next"); got != 7 {
		t.Errorf("next-document calls = %d, want 7", got)
	}
}

func TestAcquirePageFetchFailure(t *testing.T) {
	dev := esclsim.NewDevice()
	dev.Pages = esclsim.Pages(4, 100, 150, true)
	dev.FailFetchAt = 2

	client := newTestClient(t, dev, 2*time.Second)
	req := Request{Source: SourceFeeder, ColorMode: ColorModeGrayscale, Resolution: 200, Format: FormatPDF}
	ctrl := NewController(client, req, time.Millisecond)

	job, err := ctrl.Submit(context.Background(), mustSettings(t, client, req))
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	err = ctrl.Acquire(context.Background(), job)
	if err == nil {
		t.Fatal("expected acquire to fail")
	}
	if !errors.IsKind(err, errors.KindPageFetchFailed) {
		t.Errorf("expected PAGE_FETCH_FAILED, got %s (%v)", errors.KindOf(err), err)
	}
	if job.State != JobError {
		t.Errorf("job state = %s, want %s", job.State, JobError)
	}
	if len(job.Pages) != 1 {
		t.Errorf("expected 1 page before the failure, got %d", len(job.Pages))
	}
}

func TestSubmitBusyScanner(t *testing.T) {
	dev := esclsim.NewDevice()
	dev.ForcedState = "Processing"

	client := newTestClient(t, dev, 2*time.Second)
	req := Request{Source: SourceFlatbed, ColorMode: ColorModeColor, Resolution: 300, Format: FormatPDF}
	ctrl := NewController(client, req, time.Millisecond)

	_, err := ctrl.Submit(context.Background(), mustSettings(t, client, req))
	if err == nil {
		t.Fatal("expected submit to fail against a busy scanner")
	}
	if !errors.IsKind(err, errors.KindJobCreationRejected) {
		t.Errorf("expected JOB_CREATION_REJECTED, got %s", errors.KindOf(err))
	}
	// No job document may be sent to a busy device.
	if got := dev.Count("submit"); got != 0 {
		t.Errorf("submit calls = %d, want 0", got)
	}
}

func TestSubmitRejected(t *testing.T) {
	dev := esclsim.NewDevice()
	dev.RejectSubmit = 503

	client := newTestClient(t, dev, 2*time.Second)
	req := Request{Source: SourceFlatbed, ColorMode: ColorModeColor, Resolution: 300, Format: FormatPDF}
	ctrl := NewController(client, req, time.Millisecond)

	_, err := ctrl.Submit(context.Background(), mustSettings(t, client, req))
	if err == nil {
		t.Fatal("expected submit to fail")
	}
	if !errors.IsKind(err, errors.KindJobCreationRejected) {
		t.Errorf("expected JOB_CREATION_REJECTED, got %s", errors.KindOf(err))
	}
}

func TestSubmitMissingLocation(t *testing.T) {
	dev := esclsim.NewDevice()
	dev.OmitLocation = true

	client := newTestClient(t, dev, 2*time.Second)
	req := Request{Source: SourceFlatbed, ColorMode: ColorModeColor, Resolution: 300, Format: FormatPDF}
	ctrl := NewController(client, req, time.Millisecond)

	_, err := ctrl.Submit(context.Background(), mustSettings(t, client, req))
	if err == nil {
		t.Fatal("expected submit to fail without a job location")
	}
	if !errors.IsKind(err, errors.KindJobCreationRejected) {
		t.Errorf("expected JOB_CREATION_REJECTED, got %s", errors.KindOf(err))
	}
}

func TestAcquireURNPrefixedJobUUIDs(t *testing.T) {
	dev := esclsim.NewDevice()
	dev.Pages = esclsim.Pages(1, 100, 150, true)
	dev.CompleteOnLastFetch = true
	dev.URNPrefixUUIDs = true

	client := newTestClient(t, dev, 2*time.Second)
	req := Request{Source: SourceFlatbed, ColorMode: ColorModeGrayscale, Resolution: 200, Format: FormatJPEG}
	ctrl := NewController(client, req, time.Millisecond)

	job, err := ctrl.Submit(context.Background(), mustSettings(t, client, req))
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if job.UUID != dev.JobID() {
		t.Errorf("job uuid = %s, want %s", job.UUID, dev.JobID())
	}
	if err := ctrl.Acquire(context.Background(), job); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	if job.State != JobCompleted {
		t.Errorf("job state = %s, want %s", job.State, JobCompleted)
	}
}

func TestAcquireUserCancel(t *testing.T) {
	dev := esclsim.NewDevice()
	dev.Pages = esclsim.Pages(3, 100, 150, false)

	client := newTestClient(t, dev, 2*time.Second)
	req := Request{Source: SourceFeeder, ColorMode: ColorModeColor, Resolution: 300, Format: FormatPDF}
	// A long poll interval parks the loop in its wait, where the
	// cancellation lands.
	ctrl := NewController(client, req, 5*time.Second)

	job, err := ctrl.Submit(context.Background(), mustSettings(t, client, req))
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	timer := time.AfterFunc(50*time.Millisecond, cancel)
	defer timer.Stop()

	err = ctrl.Acquire(ctx, job)
	if err == nil {
		t.Fatal("expected acquire to fail after cancellation")
	}
	if !errors.IsKind(err, errors.KindCanceled) {
		t.Errorf("expected CANCELED, got %s (%v)", errors.KindOf(err), err)
	}
	if job.State != JobCanceled {
		t.Errorf("job state = %s, want %s", job.State, JobCanceled)
	}
	// The device must be told to stop so the feeder is not left busy.
	if got := dev.Count("cancel"); got != 1 {
		t.Errorf("cancel calls = %d, want 1", got)
	}
}

func TestStatusTimeout(t *testing.T) {
	dev := esclsim.NewDevice()
	dev.StatusDelay = 500 * time.Millisecond

	client := newTestClient(t, dev, 50*time.Millisecond)
	req := Request{Source: SourceFlatbed, ColorMode: ColorModeColor, Resolution: 300, Format: FormatPDF}
	ctrl := NewController(client, req, time.Millisecond)

	_, err := ctrl.Submit(context.Background(), []byte("<scan:ScanSettings/>"))
	if err == nil {
		t.Fatal("expected submit to time out")
	}
	if !errors.IsKind(err, errors.KindDeviceTimeout) {
		t.Errorf("expected DEVICE_TIMEOUT, got %s (%v)", errors.KindOf(err), err)
	}
}

func TestObserveStaleProcessing(t *testing.T) {
	ctrl := &Controller{}
	job := &Job{
		State: JobPageReady,
		Pages: [][]byte{{0x01}},
		Trace: []JobState{JobPending, JobProcessing, JobPageReady},
	}

	// A stale Processing with no new image in flight must not regress
	// the local state.
	ctrl.observe(job, StatusSnapshot{JobState: deviceJobProcessing, ImagesCompleted: 1})
	if job.State != JobPageReady {
		t.Errorf("job state = %s, want %s after stale status", job.State, JobPageReady)
	}

	// A higher completed-image counter means another page is in flight.
	ctrl.observe(job, StatusSnapshot{JobState: deviceJobProcessing, ImagesCompleted: 2})
	if job.State != JobProcessing {
		t.Errorf("job state = %s, want %s once a new image is reported", job.State, JobProcessing)
	}
}
