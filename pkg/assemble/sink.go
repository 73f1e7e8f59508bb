// Package assemble turns the ordered page images retrieved from a scan
// job into the final output document. Sinks buffer pages and write only
// on Finalize, so a failed scan never leaves a truncated document behind.
package assemble

import (
	"github.com/uscan-cli/uscan/pkg/errors"
)

// Sink is the output document being built. Exactly one of Finalize or
// Discard must be called on every exit path; nothing reaches the
// filesystem before Finalize.
type Sink interface {
	// AppendPage adds one page image, in order.
	AppendPage(data []byte) error

	// Finalize writes the buffered pages to their destination.
	Finalize() error

	// Discard drops the buffered pages without writing anything.
	Discard() error

	// OutputPath returns the primary output file name within the sink's
	// filesystem (the first page file for multi-file formats).
	OutputPath() string
}

// Assemble feeds the retrieved pages into the sink and finalizes it.
// An empty page sequence is an assembly failure and performs no write.
// Any sink error discards the buffered document.
func Assemble(pages [][]byte, sink Sink) error {
	if len(pages) == 0 {
		sink.Discard()
		return errors.E(errors.KindAssemblyFailed, "no pages were retrieved")
	}

	for _, page := range pages {
		if err := sink.AppendPage(page); err != nil {
			sink.Discard()
			return errors.Tag(errors.KindAssemblyFailed,
				errors.Wrap(err, "failed to append page"))
		}
	}

	if err := sink.Finalize(); err != nil {
		sink.Discard()
		return errors.Tag(errors.KindAssemblyFailed,
			errors.Wrap(err, "failed to finalize document"))
	}
	return nil
}
