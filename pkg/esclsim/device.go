// Package esclsim provides a scriptable in-process eSCL device for
// tests: it serves capabilities, status, job creation, and page
// delivery over HTTP, with injectable failures and state overrides.
package esclsim

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const (
	nsScan = "http://schemas.hp.com/imaging/escl/2011/05/03"
	nsPwg  = "http://www.pwg.org/schemas/2010/12/sm"
)

// CapsConfig controls the capabilities document the device advertises.
type CapsConfig struct {
	MakeAndModel string
	Flatbed      bool
	Feeder       bool
	Duplex       bool
	Resolutions  []int
	ColorModes   []string
	MaxWidth     int
	MaxHeight    int
}

// Device is one virtual scanner. Knobs are read at request time, so
// tests may adjust them between protocol calls.
type Device struct {
	Caps CapsConfig

	// Pages holds the page images served in order via NextDocument.
	Pages [][]byte

	// ForcedState overrides the reported pwg:State (for busy-device
	// scenarios). Empty means Idle before a job and Processing during one.
	ForcedState string

	// RejectSubmit, when non-zero, is the HTTP status returned for any
	// job creation attempt.
	RejectSubmit int

	// OmitLocation accepts job creation but drops the Location header.
	OmitLocation bool

	// FailFetchAt is the 1-based page number whose fetch returns a 500.
	FailFetchAt int

	// CompleteOnLastFetch reports JobState Completed as soon as the last
	// page was delivered. When false the device keeps reporting
	// Processing until a fetch has run into the end-of-documents 404,
	// mimicking feeders that do not know the sheet count up front.
	CompleteOnLastFetch bool

	// FinalReason is the JobStateReason reported once the job ends.
	FinalReason string

	// URNPrefixUUIDs reports JobUuid values as urn:uuid:<id>, as seen
	// on Brother devices.
	URNPrefixUUIDs bool

	// StatusDelay delays every status response, for timeout scenarios.
	StatusDelay time.Duration

	mu     sync.Mutex
	job    *jobSession
	counts map[string]int
}

type jobSession struct {
	id        string
	delivered int
	exhausted bool
	canceled  bool
}

// NewDevice creates a device with the capabilities of a typical office
// multifunction scanner: flatbed plus duplex feeder, the standard
// resolution ladder, color and grayscale.
func NewDevice() *Device {
	return &Device{
		Caps: CapsConfig{
			MakeAndModel: "Acme DuplexScan 3000",
			Flatbed:      true,
			Feeder:       true,
			Duplex:       true,
			Resolutions:  []int{75, 100, 200, 300, 600},
			ColorModes:   []string{"RGB24", "Grayscale8"},
			MaxWidth:     2550,
			MaxHeight:    3507,
		},
		FinalReason: "JobCompletedSuccessfully",
		counts:      make(map[string]int),
	}
}

// Routes returns the device's eSCL route tree, ready for httptest.
func (d *Device) Routes() chi.Router {
	r := chi.NewRouter()
	r.Route("/eSCL", func(r chi.Router) {
		r.Get("/ScannerCapabilities", d.handleCapabilities)
		r.Get("/ScannerStatus", d.handleStatus)
		r.Post("/ScanJobs", d.handleCreateJob)
		r.Get("/ScanJobs/{jobID}/NextDocument", d.handleNextDocument)
		r.Delete("/ScanJobs/{jobID}", d.handleCancel)
	})
	return r
}

// Count returns how many times the named operation was called. Names:
// capabilities, status, submit, next, cancel.
func (d *Device) Count(op string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.counts[op]
}

// JobID returns the identifier of the current job, if any.
func (d *Device) JobID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.job == nil {
		return ""
	}
	return d.job.id
}

func (d *Device) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	d.mu.Lock()
	d.counts["capabilities"]++
	d.mu.Unlock()

	w.Header().Set("Content-Type", "text/xml")
	fmt.Fprint(w, d.capabilitiesXML())
}

func (d *Device) handleStatus(w http.ResponseWriter, r *http.Request) {
	if d.StatusDelay > 0 {
		time.Sleep(d.StatusDelay)
	}

	d.mu.Lock()
	d.counts["status"]++
	body := d.statusXML()
	d.mu.Unlock()

	w.Header().Set("Content-Type", "text/xml")
	fmt.Fprint(w, body)
}

func (d *Device) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.counts["submit"]++

	if d.RejectSubmit != 0 {
		w.WriteHeader(d.RejectSubmit)
		return
	}

	d.job = &jobSession{id: uuid.New().String()}
	if !d.OmitLocation {
		w.Header().Set("Location", "/eSCL/ScanJobs/"+d.job.id)
	}
	w.WriteHeader(http.StatusCreated)
}

func (d *Device) handleNextDocument(w http.ResponseWriter, r *http.Request) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.counts["next"]++

	job := d.job
	if job == nil || job.id != chi.URLParam(r, "jobID") {
		http.NotFound(w, r)
		return
	}
	if d.FailFetchAt > 0 && job.delivered+1 == d.FailFetchAt {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if job.delivered >= len(d.Pages) {
		job.exhausted = true
		http.NotFound(w, r)
		return
	}

	page := d.Pages[job.delivered]
	job.delivered++
	w.Header().Set("Content-Type", "image/jpeg")
	w.Write(page)
}

func (d *Device) handleCancel(w http.ResponseWriter, r *http.Request) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.counts["cancel"]++

	if d.job == nil || d.job.id != chi.URLParam(r, "jobID") {
		http.NotFound(w, r)
		return
	}
	d.job.canceled = true
	w.WriteHeader(http.StatusOK)
}

func (d *Device) capabilitiesXML() string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	fmt.Fprintf(&b, `<scan:ScannerCapabilities xmlns:scan=%q xmlns:pwg=%q>`+"\n", nsScan, nsPwg)
	fmt.Fprintf(&b, "  <pwg:Version>2.63</pwg:Version>\n")
	fmt.Fprintf(&b, "  <pwg:MakeAndModel>%s</pwg:MakeAndModel>\n", d.Caps.MakeAndModel)

	if d.Caps.Flatbed {
		b.WriteString("  <scan:Platen>\n")
		d.writeInputCaps(&b, "PlatenInputCaps")
		b.WriteString("  </scan:Platen>\n")
	}
	if d.Caps.Feeder {
		b.WriteString("  <scan:Adf>\n")
		d.writeInputCaps(&b, "AdfSimplexInputCaps")
		if d.Caps.Duplex {
			d.writeInputCaps(&b, "AdfDuplexInputCaps")
		}
		b.WriteString("    <scan:FeederCapacity>35</scan:FeederCapacity>\n")
		b.WriteString("  </scan:Adf>\n")
	}

	b.WriteString("</scan:ScannerCapabilities>\n")
	return b.String()
}

func (d *Device) writeInputCaps(b *strings.Builder, name string) {
	fmt.Fprintf(b, "    <scan:%s>\n", name)
	fmt.Fprintf(b, "      <scan:MinWidth>8</scan:MinWidth>\n")
	fmt.Fprintf(b, "      <scan:MaxWidth>%d</scan:MaxWidth>\n", d.Caps.MaxWidth)
	fmt.Fprintf(b, "      <scan:MinHeight>8</scan:MinHeight>\n")
	fmt.Fprintf(b, "      <scan:MaxHeight>%d</scan:MaxHeight>\n", d.Caps.MaxHeight)
	b.WriteString("      <scan:SettingProfiles>\n        <scan:SettingProfile>\n")
	b.WriteString("          <scan:ColorModes>\n")
	for _, mode := range d.Caps.ColorModes {
		fmt.Fprintf(b, "            <scan:ColorMode>%s</scan:ColorMode>\n", mode)
	}
	b.WriteString("          </scan:ColorModes>\n")
	b.WriteString("          <scan:SupportedResolutions>\n            <scan:DiscreteResolutions>\n")
	for _, res := range d.Caps.Resolutions {
		fmt.Fprintf(b, "              <scan:DiscreteResolution>\n")
		fmt.Fprintf(b, "                <scan:XResolution>%d</scan:XResolution>\n", res)
		fmt.Fprintf(b, "                <scan:YResolution>%d</scan:YResolution>\n", res)
		fmt.Fprintf(b, "              </scan:DiscreteResolution>\n")
	}
	b.WriteString("            </scan:DiscreteResolutions>\n          </scan:SupportedResolutions>\n")
	b.WriteString("        </scan:SettingProfile>\n      </scan:SettingProfiles>\n")
	fmt.Fprintf(b, "    </scan:%s>\n", name)
}

func (d *Device) statusXML() string {
	state := d.ForcedState
	if state == "" {
		if d.job != nil && !d.jobDone(d.job) {
			state = "Processing"
		} else {
			state = "Idle"
		}
	}

	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	fmt.Fprintf(&b, `<scan:ScannerStatus xmlns:scan=%q xmlns:pwg=%q>`+"\n", nsScan, nsPwg)
	fmt.Fprintf(&b, "  <pwg:Version>2.63</pwg:Version>\n")
	fmt.Fprintf(&b, "  <pwg:State>%s</pwg:State>\n", state)

	if d.job != nil {
		jobUUID := d.job.id
		if d.URNPrefixUUIDs {
			jobUUID = "urn:uuid:" + jobUUID
		}
		jobState, reason := d.jobStateAndReason(d.job)

		b.WriteString("  <scan:Jobs>\n    <scan:JobInfo>\n")
		fmt.Fprintf(&b, "      <pwg:JobUri>/eSCL/ScanJobs/%s</pwg:JobUri>\n", d.job.id)
		fmt.Fprintf(&b, "      <pwg:JobUuid>%s</pwg:JobUuid>\n", jobUUID)
		fmt.Fprintf(&b, "      <pwg:ImagesCompleted>%d</pwg:ImagesCompleted>\n", d.job.delivered)
		fmt.Fprintf(&b, "      <pwg:ImagesToTransfer>%d</pwg:ImagesToTransfer>\n", len(d.Pages)-d.job.delivered)
		fmt.Fprintf(&b, "      <pwg:JobState>%s</pwg:JobState>\n", jobState)
		if reason != "" {
			fmt.Fprintf(&b, "      <pwg:JobStateReasons>\n        <pwg:JobStateReason>%s</pwg:JobStateReason>\n      </pwg:JobStateReasons>\n", reason)
		}
		b.WriteString("    </scan:JobInfo>\n  </scan:Jobs>\n")
	}

	b.WriteString("</scan:ScannerStatus>\n")
	return b.String()
}

func (d *Device) jobDone(job *jobSession) bool {
	if job.canceled {
		return true
	}
	if job.delivered < len(d.Pages) {
		return false
	}
	return d.CompleteOnLastFetch || job.exhausted
}

func (d *Device) jobStateAndReason(job *jobSession) (string, string) {
	switch {
	case job.canceled:
		return "Canceled", "JobCanceledByUser"
	case d.jobDone(job):
		return "Completed", d.FinalReason
	default:
		return "Processing", "JobScanning"
	}
}
