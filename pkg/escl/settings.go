package escl

import (
	"encoding/xml"

	"github.com/uscan-cli/uscan/pkg/errors"
)

const (
	nsScan = "http://schemas.hp.com/imaging/escl/2011/05/03"
	nsPwg  = "http://www.pwg.org/schemas/2010/12/sm"

	settingsVersion = "2.0"
	settingsIntent  = "TextAndGraphic"

	regionUnits = "escl:ThreeHundredthsOfInches"
)

// scanSettings is marshaled with literal prefixed tag names so the
// output carries the exact namespace prefixes devices expect.
type scanSettings struct {
	XMLName   xml.Name     `xml:"scan:ScanSettings"`
	NSScan    string       `xml:"xmlns:scan,attr"`
	NSPwg     string       `xml:"xmlns:pwg,attr"`
	Version   string       `xml:"pwg:Version"`
	Intent    string       `xml:"scan:Intent"`
	Format    Format       `xml:"pwg:DocumentFormat"`
	Source    string       `xml:"pwg:InputSource,omitempty"`
	ColorMode ColorMode    `xml:"scan:ColorMode"`
	Duplex    *bool        `xml:"scan:Duplex,omitempty"`
	XRes      int          `xml:"scan:XResolution"`
	YRes      int          `xml:"scan:YResolution"`
	Regions   *scanRegions `xml:"pwg:ScanRegions,omitempty"`
}

type scanRegions struct {
	Region scanRegion `xml:"pwg:ScanRegion"`
}

type scanRegion struct {
	Units   string `xml:"pwg:ContentRegionUnits"`
	XOffset int    `xml:"pwg:XOffset"`
	YOffset int    `xml:"pwg:YOffset"`
	Width   int    `xml:"pwg:Width"`
	Height  int    `xml:"pwg:Height"`
}

// BuildSettings maps a resolved request and fetched capabilities into a
// ScanSettings job document. It is a pure mapping: identical inputs
// always produce byte-identical output. Any requested value the device
// does not support fails with an unsupported-parameter error; nothing
// is silently clamped or substituted.
func BuildSettings(req Request, caps *Capabilities) ([]byte, error) {
	if err := validateRequest(req, caps); err != nil {
		return nil, err
	}

	doc := scanSettings{
		NSScan:    nsScan,
		NSPwg:     nsPwg,
		Version:   settingsVersion,
		Intent:    settingsIntent,
		Format:    req.Format,
		Source:    req.Source.token(),
		ColorMode: req.ColorMode,
		XRes:      req.Resolution,
		YRes:      req.Resolution,
	}

	// The duplex indicator is only meaningful to devices that support
	// duplex; others may reject the unknown element.
	if caps.DuplexSupported {
		duplex := req.Duplex
		doc.Duplex = &duplex
	}

	if req.Region != nil {
		doc.Regions = &scanRegions{Region: scanRegion{
			Units:   regionUnits,
			XOffset: req.Region.XOffset,
			YOffset: req.Region.YOffset,
			Width:   req.Region.Width,
			Height:  req.Region.Height,
		}}
	}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal scan settings")
	}

	buf := make([]byte, 0, len(xml.Header)+len(out)+1)
	buf = append(buf, xml.Header...)
	buf = append(buf, out...)
	buf = append(buf, '\n')
	return buf, nil
}

// validateRequest re-checks every request field against the device
// capabilities. Upstream validation should already have happened; a
// mismatch here fails fast rather than letting the device guess.
func validateRequest(req Request, caps *Capabilities) error {
	if !caps.HasSource(req.Source) {
		return errors.E(errors.KindUnsupportedParameter,
			"source %s not supported by device", req.Source)
	}
	if !caps.HasResolution(req.Resolution) {
		return errors.E(errors.KindUnsupportedParameter,
			"resolution %d dpi not supported by device", req.Resolution)
	}
	if !caps.HasColorMode(req.ColorMode) {
		return errors.E(errors.KindUnsupportedParameter,
			"color mode %s not supported by device", req.ColorMode)
	}
	if req.Duplex {
		if !caps.DuplexSupported {
			return errors.E(errors.KindUnsupportedParameter,
				"duplex not supported by device")
		}
		if req.Source == SourceFlatbed {
			return errors.E(errors.KindUnsupportedParameter,
				"duplex requires the feeder")
		}
	}
	if req.Region != nil {
		if err := validateRegion(*req.Region, caps); err != nil {
			return err
		}
	}
	return nil
}

func validateRegion(r Region, caps *Capabilities) error {
	if r.Width <= 0 || r.Height <= 0 {
		return errors.E(errors.KindUnsupportedParameter,
			"region extent %dx%d is empty", r.Width, r.Height)
	}
	if r.XOffset < 0 || r.YOffset < 0 {
		return errors.E(errors.KindUnsupportedParameter,
			"region offset %d:%d is negative", r.XOffset, r.YOffset)
	}
	if r.XOffset+r.Width > caps.MaxWidth || r.YOffset+r.Height > caps.MaxHeight {
		return errors.E(errors.KindUnsupportedParameter,
			"region %d:%d:%d:%d exceeds scan area %dx%d",
			r.XOffset, r.YOffset, r.Width, r.Height, caps.MaxWidth, caps.MaxHeight)
	}
	return nil
}
