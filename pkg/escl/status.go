package escl

import (
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/uscan-cli/uscan/pkg/errors"
)

// Device-level pwg:State values.
const (
	DeviceIdle       = "Idle"
	DeviceProcessing = "Processing"
	DeviceStopped    = "Stopped"
)

// Device-reported pwg:JobState values.
const (
	deviceJobPending    = "Pending"
	deviceJobProcessing = "Processing"
	deviceJobCompleted  = "Completed"
	deviceJobCanceled   = "Canceled"
	deviceJobAborted    = "Aborted"
)

// ReasonCompleted is the pwg:JobStateReason a device reports for a
// fully successful job. Anything else on a finished job is a failure.
const ReasonCompleted = "JobCompletedSuccessfully"

// DeviceStatus is one parsed ScannerStatus response.
type DeviceStatus struct {
	State string
	jobs  []jobInfo
}

// StatusSnapshot is the per-job slice of a status response.
type StatusSnapshot struct {
	DeviceState      string
	JobState         string
	Reason           string
	ImagesCompleted  int
	ImagesToTransfer int
}

type statusDoc struct {
	XMLName xml.Name  `xml:"ScannerStatus"`
	State   string    `xml:"State"`
	Jobs    []jobInfo `xml:"Jobs>JobInfo"`
}

type jobInfo struct {
	URI              string   `xml:"JobUri"`
	UUID             string   `xml:"JobUuid"`
	State            string   `xml:"JobState"`
	Reasons          []string `xml:"JobStateReasons>JobStateReason"`
	ImagesCompleted  int      `xml:"ImagesCompleted"`
	ImagesToTransfer int      `xml:"ImagesToTransfer"`
}

// ParseStatus decodes a ScannerStatus document. Classification of a
// failed parse is left to the caller; mid-session it means the device
// is no longer answering sensibly.
func ParseStatus(body []byte) (*DeviceStatus, error) {
	var doc statusDoc
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, errors.Wrap(err, "status document unparsable")
	}
	if doc.State == "" {
		return nil, fmt.Errorf("status document reports no scanner state")
	}
	return &DeviceStatus{State: doc.State, jobs: doc.Jobs}, nil
}

// Snapshot looks up the job with the given UUID in the status response.
func (s *DeviceStatus) Snapshot(jobUUID string) (StatusSnapshot, bool) {
	for _, info := range s.jobs {
		if NormalizeJobUUID(info.UUID) != jobUUID {
			continue
		}
		snap := StatusSnapshot{
			DeviceState:      s.State,
			JobState:         info.State,
			ImagesCompleted:  info.ImagesCompleted,
			ImagesToTransfer: info.ImagesToTransfer,
		}
		if len(info.Reasons) > 0 {
			snap.Reason = info.Reasons[0]
		}
		return snap, true
	}
	return StatusSnapshot{}, false
}

// NormalizeJobUUID strips the urn:uuid: prefix some devices (seen on a
// Brother MFC) put in front of pwg:JobUuid, and canonicalizes the value
// when it is a well-formed UUID so lookups are case-insensitive.
func NormalizeJobUUID(raw string) string {
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "urn:uuid:")
	if id, err := uuid.Parse(trimmed); err == nil {
		return id.String()
	}
	return trimmed
}
