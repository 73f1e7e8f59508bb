package assemble

import (
	"bytes"
	"fmt"
	"image/color"
	"image/jpeg"
	"log/slog"

	"github.com/go-git/go-billy/v5"
	"github.com/uscan-cli/uscan/pkg/errors"
)

// pdfPage is one buffered page: the raw JPEG bytes straight off the
// scanner plus the decoded dimensions and color space.
type pdfPage struct {
	data       []byte
	width      int
	height     int
	colorSpace string
}

// PDFSink composes scanned JPEG pages into a single multi-page PDF, one
// image per page. Each page's MediaBox preserves the native pixel size
// at the scan resolution; images are embedded as DCTDecode XObjects so
// the scanner's own JPEG data is carried through unchanged.
type PDFSink struct {
	fs   billy.Filesystem
	path string
	dpi  int

	pages []pdfPage
}

// NewPDFSink creates a PDF sink writing to path within fs. The scan
// resolution determines the physical page size of each image.
func NewPDFSink(fs billy.Filesystem, path string, dpi int) *PDFSink {
	return &PDFSink{fs: fs, path: path, dpi: dpi}
}

// AppendPage buffers one JPEG page. The JPEG header is decoded up front
// so a corrupt page fails here rather than producing a broken document.
func (s *PDFSink) AppendPage(data []byte) error {
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return errors.Wrap(err, fmt.Sprintf("page %d is not a valid JPEG image", len(s.pages)+1))
	}

	s.pages = append(s.pages, pdfPage{
		data:       data,
		width:      cfg.Width,
		height:     cfg.Height,
		colorSpace: colorSpaceName(cfg.ColorModel),
	})
	return nil
}

// colorSpaceName picks the PDF color space matching the JPEG's own
// color model. Scanners emit single-component gray or YCbCr color.
func colorSpaceName(m color.Model) string {
	switch m {
	case color.GrayModel:
		return "DeviceGray"
	case color.CMYKModel:
		return "DeviceCMYK"
	default:
		return "DeviceRGB"
	}
}

// Finalize serializes the buffered pages into the PDF file.
func (s *PDFSink) Finalize() error {
	f, err := s.fs.Create(s.path)
	if err != nil {
		return errors.Wrap(err, "failed to create output file")
	}

	doc := s.render()
	if _, err := f.Write(doc); err != nil {
		f.Close()
		return errors.Wrap(err, "failed to write output file")
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, "failed to flush output file")
	}

	slog.Info("pdf_written", "path", s.path, "pages", len(s.pages), "bytes", len(doc))
	return nil
}

// Discard drops the buffered pages. Nothing was written yet.
func (s *PDFSink) Discard() error {
	s.pages = nil
	return nil
}

// OutputPath returns the target file name.
func (s *PDFSink) OutputPath() string { return s.path }

// render builds the complete PDF in memory: header, one image XObject
// plus content stream plus page dict per page, the page tree, catalog,
// xref table, and trailer.
func (s *PDFSink) render() []byte {
	// Object numbering: 1 catalog, 2 pages tree, then per page i
	// (0-based): 3+3i image, 4+3i content, 5+3i page.
	catalogNum := 1
	pagesNum := 2
	imageNum := func(i int) int { return 3 + 3*i }
	contentNum := func(i int) int { return 4 + 3*i }
	pageNum := func(i int) int { return 5 + 3*i }
	objCount := 2 + 3*len(s.pages)

	var buf bytes.Buffer
	offsets := make(map[int]int, objCount)

	buf.WriteString("%PDF-1.7\n%\xE2\xE3\xCF\xD3\n")

	writeObj := func(num int, body func()) {
		offsets[num] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n", num)
		body()
		buf.WriteString("endobj\n")
	}

	writeObj(catalogNum, func() {
		fmt.Fprintf(&buf, "<</Type /Catalog /Pages %d 0 R>>\n", pagesNum)
	})

	writeObj(pagesNum, func() {
		buf.WriteString("<</Type /Pages /Count ")
		fmt.Fprintf(&buf, "%d /Kids [", len(s.pages))
		for i := range s.pages {
			if i > 0 {
				buf.WriteByte(' ')
			}
			fmt.Fprintf(&buf, "%d 0 R", pageNum(i))
		}
		buf.WriteString("]>>\n")
	})

	for i, p := range s.pages {
		// Points at 72 per inch from pixels at the scan resolution.
		w := float64(p.width) * 72.0 / float64(s.dpi)
		h := float64(p.height) * 72.0 / float64(s.dpi)

		writeObj(imageNum(i), func() {
			fmt.Fprintf(&buf,
				"<</Type /XObject /Subtype /Image /Width %d /Height %d "+
					"/ColorSpace /%s /BitsPerComponent 8 /Filter /DCTDecode /Length %d>>\nstream\n",
				p.width, p.height, p.colorSpace, len(p.data))
			buf.Write(p.data)
			buf.WriteString("\nendstream\n")
		})

		content := fmt.Sprintf("q %.2f 0 0 %.2f 0 0 cm /Im%d Do Q", w, h, i)
		writeObj(contentNum(i), func() {
			fmt.Fprintf(&buf, "<</Length %d>>\nstream\n%s\nendstream\n", len(content), content)
		})

		writeObj(pageNum(i), func() {
			fmt.Fprintf(&buf,
				"<</Type /Page /Parent %d 0 R /MediaBox [0 0 %.2f %.2f] "+
					"/Resources <</XObject <</Im%d %d 0 R>>>> /Contents %d 0 R>>\n",
				pagesNum, w, h, i, imageNum(i), contentNum(i))
		})
	}

	xrefOffset := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", objCount+1)
	buf.WriteString("0000000000 65535 f \n")
	for num := 1; num <= objCount; num++ {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[num])
	}
	fmt.Fprintf(&buf, "trailer\n<</Size %d /Root %d 0 R>>\nstartxref\n%d\n%%%%EOF\n",
		objCount+1, catalogNum, xrefOffset)

	return buf.Bytes()
}
