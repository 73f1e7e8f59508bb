package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind identifies a scan failure class. Kinds are string-based for
// debuggability and stable exit-code mapping.
type Kind string

const (
	// KindDeviceUnreachable indicates the scanner could not be reached at all.
	KindDeviceUnreachable Kind = "DEVICE_UNREACHABLE"

	// KindDeviceTimeout indicates the scanner was reached but did not answer in time.
	KindDeviceTimeout Kind = "DEVICE_TIMEOUT"

	// KindMalformedCapabilities indicates the capabilities document could not be parsed.
	KindMalformedCapabilities Kind = "MALFORMED_CAPABILITIES"

	// KindUnsupportedParameter indicates a requested setting the device does not support.
	KindUnsupportedParameter Kind = "UNSUPPORTED_PARAMETER"

	// KindJobCreationRejected indicates the device refused the scan job submission.
	KindJobCreationRejected Kind = "JOB_CREATION_REJECTED"

	// KindPageFetchFailed indicates a page transfer failed mid-job.
	KindPageFetchFailed Kind = "PAGE_FETCH_FAILED"

	// KindAssemblyFailed indicates the output document could not be produced.
	KindAssemblyFailed Kind = "ASSEMBLY_FAILED"

	// KindCanceled indicates the scan was canceled by the user.
	KindCanceled Kind = "CANCELED"

	// KindUsage indicates invalid command-line input.
	KindUsage Kind = "USAGE"

	// KindUnknown indicates an unclassified error.
	KindUnknown Kind = "UNKNOWN"
)

// kindError attaches a Kind to an underlying error.
type kindError struct {
	kind Kind
	err  error
}

func (e *kindError) Error() string { return e.err.Error() }

func (e *kindError) Unwrap() error { return e.err }

// E creates a new classified error from a format string.
func E(kind Kind, format string, args ...any) error {
	return &kindError{kind: kind, err: fmt.Errorf(format, args...)}
}

// Tag classifies an existing error.
// If err is nil, it returns nil without tagging.
func Tag(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: kind, err: err}
}

// KindOf returns the classification of err. The outermost tag in the
// chain wins, so re-tagging an error overrides earlier classification.
// Unclassified errors report KindUnknown.
func KindOf(err error) Kind {
	var ke *kindError
	if stderrors.As(err, &ke) {
		return ke.kind
	}
	return KindUnknown
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
