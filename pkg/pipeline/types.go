package pipeline

import "github.com/uscan-cli/uscan/pkg/escl"

// ScanRequest is the FSM input: the resolved scan intent plus where the
// result goes.
type ScanRequest struct {
	Endpoint string
	Request  escl.Request
	Output   string
}

// ScanResponse is the FSM output (accumulated across transitions)
type ScanResponse struct {
	// From Capabilities
	MakeAndModel string

	// From Submit
	JobUUID string

	// From Acquire
	Pages int

	// From Assemble
	Output string

	// From Complete/Failed
	Status       string
	ErrorMessage string
}

// State names
const (
	StateCapabilities = "capabilities"
	StateSubmit       = "submit"
	StateAcquire      = "acquire"
	StateAssemble     = "assemble"
	StateComplete     = "complete"
	StateFailed       = "failed"
)
