package esclsim

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
)

// JPEGPage renders a flat-color JPEG of the given pixel size, standing
// in for a scanned page image. Gray pages encode as single-component
// JPEG, color pages as YCbCr, matching what real scanners emit.
func JPEGPage(width, height int, gray bool) []byte {
	var img image.Image
	if gray {
		g := image.NewGray(image.Rect(0, 0, width, height))
		for i := range g.Pix {
			g.Pix[i] = 0xE8
		}
		img = g
	} else {
		rgba := image.NewRGBA(image.Rect(0, 0, width, height))
		fill := color.RGBA{R: 0xF4, G: 0xF0, B: 0xE8, A: 0xFF}
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				rgba.SetRGBA(x, y, fill)
			}
		}
		img = rgba
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// Pages renders n identical JPEG pages.
func Pages(n, width, height int, gray bool) [][]byte {
	page := JPEGPage(width, height, gray)
	pages := make([][]byte, n)
	for i := range pages {
		pages[i] = page
	}
	return pages
}
