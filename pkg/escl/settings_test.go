package escl

import (
	"bytes"
	"strings"
	"testing"

	"github.com/uscan-cli/uscan/pkg/errors"
)

func testCaps() *Capabilities {
	return &Capabilities{
		MakeAndModel:    "Acme DuplexScan 3000",
		Sources:         []InputSource{SourceFlatbed, SourceFeeder},
		Resolutions:     []int{75, 100, 200, 300, 600},
		ColorModes:      []ColorMode{ColorModeColor, ColorModeGrayscale},
		MaxWidth:        2550,
		MaxHeight:       4200,
		DuplexSupported: true,
	}
}

func TestBuildSettingsResolvedValues(t *testing.T) {
	req := Request{
		Source:     SourceFlatbed,
		ColorMode:  ColorModeGrayscale,
		Resolution: 300,
		Format:     FormatPDF,
	}

	doc, err := BuildSettings(req, testCaps())
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	out := string(doc)
	for _, want := range []string{
		`<?xml version="1.0" encoding="UTF-8"?>`,
		"<pwg:Version>2.0</pwg:Version>",
		"<scan:Intent>TextAndGraphic</scan:Intent>",
		"<pwg:DocumentFormat>application/pdf</pwg:DocumentFormat>",
		"<pwg:InputSource>Flatbed</pwg:InputSource>",
		"<scan:ColorMode>Grayscale8</scan:ColorMode>",
		"<scan:XResolution>300</scan:XResolution>",
		"<scan:YResolution>300</scan:YResolution>",
		"<scan:Duplex>false</scan:Duplex>",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("document missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "ScanRegions") {
		t.Error("no region was requested, none may be emitted")
	}
}

func TestBuildSettingsAutomaticSourceOmitted(t *testing.T) {
	req := Request{
		Source:     SourceAutomatic,
		ColorMode:  ColorModeColor,
		Resolution: 200,
		Format:     FormatJPEG,
	}

	doc, err := BuildSettings(req, testCaps())
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if strings.Contains(string(doc), "InputSource") {
		t.Error("automatic source must omit the InputSource element")
	}
}

func TestBuildSettingsDuplexOnlyWhenSupported(t *testing.T) {
	caps := testCaps()
	caps.DuplexSupported = false

	req := Request{
		Source:     SourceFeeder,
		ColorMode:  ColorModeColor,
		Resolution: 200,
		Format:     FormatPDF,
	}

	doc, err := BuildSettings(req, caps)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if strings.Contains(string(doc), "Duplex") {
		t.Error("duplex element must not be emitted to a simplex device")
	}
}

func TestBuildSettingsRegion(t *testing.T) {
	req := Request{
		Source:     SourceFlatbed,
		ColorMode:  ColorModeColor,
		Resolution: 200,
		Format:     FormatPDF,
		Region:     &Region{XOffset: 118, YOffset: 177, Width: 1181, Height: 2362},
	}

	doc, err := BuildSettings(req, testCaps())
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	out := string(doc)
	for _, want := range []string{
		"<pwg:ContentRegionUnits>escl:ThreeHundredthsOfInches</pwg:ContentRegionUnits>",
		"<pwg:XOffset>118</pwg:XOffset>",
		"<pwg:YOffset>177</pwg:YOffset>",
		"<pwg:Width>1181</pwg:Width>",
		"<pwg:Height>2362</pwg:Height>",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("document missing %q", want)
		}
	}
}

func TestBuildSettingsDeterministic(t *testing.T) {
	req := Request{
		Source:     SourceFeeder,
		ColorMode:  ColorModeColor,
		Resolution: 600,
		Duplex:     true,
		Format:     FormatPDF,
		Region:     &Region{Width: 2480, Height: 3507},
	}

	first, err := BuildSettings(req, testCaps())
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	second, err := BuildSettings(req, testCaps())
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Error("identical inputs must produce byte-identical documents")
	}
}

func TestBuildSettingsUnsupportedParameters(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		caps func(*Capabilities)
	}{
		{
			name: "unsupported resolution",
			req:  Request{Source: SourceFlatbed, ColorMode: ColorModeColor, Resolution: 1200, Format: FormatPDF},
		},
		{
			name: "unsupported source",
			req:  Request{Source: SourceFeeder, ColorMode: ColorModeColor, Resolution: 200, Format: FormatPDF},
			caps: func(c *Capabilities) { c.Sources = []InputSource{SourceFlatbed} },
		},
		{
			name: "unsupported color mode",
			req:  Request{Source: SourceFlatbed, ColorMode: ColorMode("BlackAndWhite1"), Resolution: 200, Format: FormatPDF},
		},
		{
			name: "duplex without device support",
			req:  Request{Source: SourceFeeder, ColorMode: ColorModeColor, Resolution: 200, Duplex: true, Format: FormatPDF},
			caps: func(c *Capabilities) { c.DuplexSupported = false },
		},
		{
			name: "duplex on the flatbed",
			req:  Request{Source: SourceFlatbed, ColorMode: ColorModeColor, Resolution: 200, Duplex: true, Format: FormatPDF},
		},
		{
			name: "region exceeding the scan area",
			req: Request{Source: SourceFlatbed, ColorMode: ColorModeColor, Resolution: 200, Format: FormatPDF,
				Region: &Region{XOffset: 100, Width: 2550, Height: 3000}},
		},
		{
			name: "empty region",
			req: Request{Source: SourceFlatbed, ColorMode: ColorModeColor, Resolution: 200, Format: FormatPDF,
				Region: &Region{Width: 0, Height: 100}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			caps := testCaps()
			if tt.caps != nil {
				tt.caps(caps)
			}

			_, err := BuildSettings(tt.req, caps)
			if err == nil {
				t.Fatal("expected build to fail")
			}
			if !errors.IsKind(err, errors.KindUnsupportedParameter) {
				t.Errorf("expected UNSUPPORTED_PARAMETER, got %s (%v)", errors.KindOf(err), err)
			}
		})
	}
}
