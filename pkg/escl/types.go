// Package escl implements the client side of the eSCL scan protocol:
// capability discovery, scan job submission, status polling, and page
// retrieval over plain HTTP/XML as served by network scanners.
package escl

// InputSource selects the scanner unit that feeds pages.
type InputSource string

const (
	// SourceAutomatic lets the device pick the unit; no source element is
	// emitted in the job document.
	SourceAutomatic InputSource = "Automatic"
	SourceFlatbed   InputSource = "Flatbed"
	SourceFeeder    InputSource = "Feeder"
)

// token returns the wire value for the job document. Automatic maps to
// the empty string, which omits the element entirely.
func (s InputSource) token() string {
	if s == SourceAutomatic {
		return ""
	}
	return string(s)
}

// ColorMode is the device color space token.
type ColorMode string

const (
	ColorModeColor     ColorMode = "RGB24"
	ColorModeGrayscale ColorMode = "Grayscale8"
)

// Format is the negotiated output MIME type.
type Format string

const (
	FormatPDF  Format = "application/pdf"
	FormatJPEG Format = "image/jpeg"
)

// Region is a scan area in device units (1/300 of an inch).
type Region struct {
	XOffset int
	YOffset int
	Width   int
	Height  int
}

// Request is a fully resolved scan intent. The CLI layer owns flag
// parsing and unit conversion; the protocol core only ever sees this.
type Request struct {
	Source     InputSource
	ColorMode  ColorMode
	Resolution int
	Duplex     bool
	Region     *Region
	Format     Format
}

// Capabilities holds the limits and options a device advertises.
// Fetched once per scan session and immutable afterwards.
type Capabilities struct {
	MakeAndModel string

	Sources     []InputSource
	Resolutions []int
	ColorModes  []ColorMode

	// Largest scannable area in device units, across all sources.
	MaxWidth  int
	MaxHeight int

	DuplexSupported bool
}

// HasSource reports whether the device supports the given input source.
// Automatic is supported whenever the device has any source at all.
func (c *Capabilities) HasSource(s InputSource) bool {
	if s == SourceAutomatic {
		return len(c.Sources) > 0
	}
	for _, have := range c.Sources {
		if have == s {
			return true
		}
	}
	return false
}

// HasResolution reports whether the device supports the given DPI value.
func (c *Capabilities) HasResolution(dpi int) bool {
	for _, have := range c.Resolutions {
		if have == dpi {
			return true
		}
	}
	return false
}

// HasColorMode reports whether the device supports the given color mode.
func (c *Capabilities) HasColorMode(m ColorMode) bool {
	for _, have := range c.ColorModes {
		if have == m {
			return true
		}
	}
	return false
}

// JobState is the local view of a scan job's lifecycle.
type JobState string

const (
	JobPending    JobState = "Pending"
	JobProcessing JobState = "Processing"
	JobPageReady  JobState = "PageReady"
	JobCompleted  JobState = "Completed"
	JobCanceled   JobState = "Canceled"
	JobError      JobState = "Error"
)

// terminal reports whether the state is absorbing.
func (s JobState) terminal() bool {
	return s == JobCompleted || s == JobCanceled || s == JobError
}

// active reports whether the job may still produce pages.
func (s JobState) active() bool {
	return !s.terminal()
}

// Job is a live scan session on the device. It is created by
// Controller.Submit and mutated only by the controller; Pages grows in
// retrieval order, which is also final document order.
type Job struct {
	URI  string
	UUID string

	State JobState
	Pages [][]byte

	// Trace records every state transition in order, so callers and
	// tests can assert on sequences rather than final state alone.
	Trace []JobState

	duplex  bool
	flatbed bool

	// backPending is set after a front side was fetched on a duplex
	// job and cleared once the matching back side arrives.
	backPending bool

	// noMoreDocs latches once the device signals that no further
	// documents are available for this job.
	noMoreDocs bool

	// imagesSeen is the high-water mark of the device's completed-image
	// counter; status responses may arrive out of order.
	imagesSeen int
}

// transition moves the job to a new state, recording it in the trace.
// Terminal states are absorbing and repeated states are not recorded.
func (j *Job) transition(next JobState) {
	if j.State == next || j.State.terminal() {
		return
	}
	j.State = next
	j.Trace = append(j.Trace, next)
}
