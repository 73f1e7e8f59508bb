package assemble

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/uscan-cli/uscan/pkg/errors"
)

// JPEGSink writes scanned pages as JPEG files. A single page goes to
// exactly the requested file name. JPEG has no multi-page container, so
// additional pages become numbered sibling files (base-1.jpg, base-2.jpg,
// and so on), mirroring how feeder scans have always been delivered by
// this tool.
type JPEGSink struct {
	fs   billy.Filesystem
	path string

	pages   [][]byte
	written []string
}

// NewJPEGSink creates a JPEG sink writing to path within fs.
func NewJPEGSink(fs billy.Filesystem, path string) *JPEGSink {
	return &JPEGSink{fs: fs, path: path}
}

// AppendPage buffers one page image.
func (s *JPEGSink) AppendPage(data []byte) error {
	s.pages = append(s.pages, data)
	return nil
}

// Finalize writes the buffered pages out.
func (s *JPEGSink) Finalize() error {
	names := s.fileNames()
	for i, page := range s.pages {
		if err := s.writeFile(names[i], page); err != nil {
			return err
		}
		s.written = append(s.written, names[i])
	}

	slog.Info("jpeg_written", "files", len(s.written), "first", s.OutputPath())
	return nil
}

// Discard drops the buffered pages. Nothing was written yet.
func (s *JPEGSink) Discard() error {
	s.pages = nil
	return nil
}

// OutputPath returns the file the first page lands in.
func (s *JPEGSink) OutputPath() string {
	return s.fileNames()[0]
}

// Written lists every file produced by Finalize, in page order.
func (s *JPEGSink) Written() []string { return s.written }

// fileNames maps page index to output file. One page keeps the
// requested name; more than one gets numbered siblings.
func (s *JPEGSink) fileNames() []string {
	if len(s.pages) <= 1 {
		return []string{s.path}
	}

	base, ext := splitSuffix(s.path)
	names := make([]string, len(s.pages))
	for i := range s.pages {
		names[i] = fmt.Sprintf("%s-%d%s", base, i+1, ext)
	}
	return names
}

func (s *JPEGSink) writeFile(name string, data []byte) error {
	f, err := s.fs.Create(name)
	if err != nil {
		return errors.Wrap(err, "failed to create "+name)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return errors.Wrap(err, "failed to write "+name)
	}
	return errors.Wrap(f.Close(), "failed to flush "+name)
}

// splitSuffix splits a file name into base and extension, keeping the
// dot with the extension.
func splitSuffix(name string) (string, string) {
	if i := strings.LastIndexByte(name, '.'); i > 0 {
		return name[:i], name[i:]
	}
	return name, ""
}
