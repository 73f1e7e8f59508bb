package assemble

import (
	"bytes"
	"io"
	"os"
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/uscan-cli/uscan/pkg/errors"
	"github.com/uscan-cli/uscan/pkg/esclsim"
)

func readFile(t *testing.T, fs billy.Filesystem, name string) []byte {
	t.Helper()
	f, err := fs.Open(name)
	if err != nil {
		t.Fatalf("failed to open %s: %v", name, err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("failed to read %s: %v", name, err)
	}
	return data
}

func mustNotExist(t *testing.T, fs billy.Filesystem, name string) {
	t.Helper()
	if _, err := fs.Stat(name); !os.IsNotExist(err) {
		t.Errorf("%s should not exist, stat returned %v", name, err)
	}
}

func TestAssembleEmptyPages(t *testing.T) {
	fs := memfs.New()
	sink := NewPDFSink(fs, "out.pdf", 300)

	err := Assemble(nil, sink)
	if err == nil {
		t.Fatal("assembling zero pages must fail")
	}
	if !errors.IsKind(err, errors.KindAssemblyFailed) {
		t.Errorf("expected ASSEMBLY_FAILED, got %s (%v)", errors.KindOf(err), err)
	}
	mustNotExist(t, fs, "out.pdf")
}

func TestPDFSinkSinglePage(t *testing.T) {
	fs := memfs.New()
	sink := NewPDFSink(fs, "out.pdf", 300)
	page := esclsim.JPEGPage(100, 150, true)

	if err := Assemble([][]byte{page}, sink); err != nil {
		t.Fatalf("assemble failed: %v", err)
	}

	doc := readFile(t, fs, "out.pdf")
	if !bytes.HasPrefix(doc, []byte("%PDF-1.7")) {
		t.Error("output lacks PDF header")
	}
	if !bytes.HasSuffix(doc, []byte("%%EOF\n")) {
		t.Error("output lacks EOF marker")
	}
	for _, want := range []string{
		"/Count 1",
		"/Filter /DCTDecode",
		"/ColorSpace /DeviceGray",
		"/Width 100 /Height 150",
		// 100px at 300dpi is 24pt, 150px is 36pt.
		"/MediaBox [0 0 24.00 36.00]",
	} {
		if !bytes.Contains(doc, []byte(want)) {
			t.Errorf("output missing %q", want)
		}
	}
	if !bytes.Contains(doc, page) {
		t.Error("output does not embed the original JPEG bytes")
	}
}

func TestPDFSinkMultiPage(t *testing.T) {
	fs := memfs.New()
	sink := NewPDFSink(fs, "out.pdf", 200)
	pages := esclsim.Pages(3, 80, 120, false)

	if err := Assemble(pages, sink); err != nil {
		t.Fatalf("assemble failed: %v", err)
	}

	doc := readFile(t, fs, "out.pdf")
	if !bytes.Contains(doc, []byte("/Count 3")) {
		t.Error("page tree should count 3 pages")
	}
	if !bytes.Contains(doc, []byte("/ColorSpace /DeviceRGB")) {
		t.Error("color pages should embed as DeviceRGB")
	}
	for _, im := range []string{"/Im0 Do", "/Im1 Do", "/Im2 Do"} {
		if !bytes.Contains(doc, []byte(im)) {
			t.Errorf("output missing content stream draw %q", im)
		}
	}
}

func TestPDFSinkRejectsCorruptPage(t *testing.T) {
	fs := memfs.New()
	sink := NewPDFSink(fs, "out.pdf", 300)

	err := Assemble([][]byte{[]byte("not a jpeg")}, sink)
	if !errors.IsKind(err, errors.KindAssemblyFailed) {
		t.Errorf("expected ASSEMBLY_FAILED, got %s (%v)", errors.KindOf(err), err)
	}
	mustNotExist(t, fs, "out.pdf")
}

func TestJPEGSinkSinglePage(t *testing.T) {
	fs := memfs.New()
	sink := NewJPEGSink(fs, "scan.jpg")
	page := []byte("jpeg-bytes-1")

	if err := Assemble([][]byte{page}, sink); err != nil {
		t.Fatalf("assemble failed: %v", err)
	}

	if got := readFile(t, fs, "scan.jpg"); !bytes.Equal(got, page) {
		t.Error("single page should land in the requested file unchanged")
	}
	if sink.OutputPath() != "scan.jpg" {
		t.Errorf("output path mismatch: got %q", sink.OutputPath())
	}
	mustNotExist(t, fs, "scan-1.jpg")
}

func TestJPEGSinkMultiPage(t *testing.T) {
	fs := memfs.New()
	sink := NewJPEGSink(fs, "scan.jpg")
	pages := [][]byte{[]byte("page-one"), []byte("page-two"), []byte("page-three")}

	if err := Assemble(pages, sink); err != nil {
		t.Fatalf("assemble failed: %v", err)
	}

	want := []string{"scan-1.jpg", "scan-2.jpg", "scan-3.jpg"}
	for i, name := range want {
		if got := readFile(t, fs, name); !bytes.Equal(got, pages[i]) {
			t.Errorf("%s content mismatch", name)
		}
	}
	mustNotExist(t, fs, "scan.jpg")

	written := sink.Written()
	if len(written) != 3 {
		t.Fatalf("expected 3 written files, got %v", written)
	}
	for i, name := range want {
		if written[i] != name {
			t.Errorf("written[%d] = %q, want %q", i, written[i], name)
		}
	}
	if sink.OutputPath() != "scan-1.jpg" {
		t.Errorf("primary output should be the first page file, got %q", sink.OutputPath())
	}
}
