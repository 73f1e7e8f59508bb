package escl

import (
	"encoding/xml"
	"sort"

	"github.com/uscan-cli/uscan/pkg/errors"
)

// capabilitiesDoc mirrors the ScannerCapabilities XML. Field tags carry
// no namespace so they match both scan: and pwg: prefixed elements.
type capabilitiesDoc struct {
	XMLName      xml.Name   `xml:"ScannerCapabilities"`
	MakeAndModel string     `xml:"MakeAndModel"`
	Platen       *inputCaps `xml:"Platen>PlatenInputCaps"`
	AdfSimplex   *inputCaps `xml:"Adf>AdfSimplexInputCaps"`
	AdfDuplex    *inputCaps `xml:"Adf>AdfDuplexInputCaps"`
}

type inputCaps struct {
	MaxWidth    int                  `xml:"MaxWidth"`
	MaxHeight   int                  `xml:"MaxHeight"`
	ColorModes  []string             `xml:"SettingProfiles>SettingProfile>ColorModes>ColorMode"`
	Resolutions []discreteResolution `xml:"SettingProfiles>SettingProfile>SupportedResolutions>DiscreteResolutions>DiscreteResolution"`
}

type discreteResolution struct {
	X int `xml:"XResolution"`
	Y int `xml:"YResolution"`
}

// ParseCapabilities decodes a ScannerCapabilities document into the
// Capabilities model. Required fields that are absent or unparsable
// fail with a malformed-capabilities error; optional duplex support
// defaults to unsupported when the device does not advertise it.
func ParseCapabilities(body []byte) (*Capabilities, error) {
	var doc capabilitiesDoc
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, errors.Tag(errors.KindMalformedCapabilities,
			errors.Wrap(err, "capabilities document unparsable"))
	}

	caps := &Capabilities{MakeAndModel: doc.MakeAndModel}

	if doc.Platen != nil {
		caps.Sources = append(caps.Sources, SourceFlatbed)
		mergeInputCaps(caps, doc.Platen)
	}
	if doc.AdfSimplex != nil || doc.AdfDuplex != nil {
		caps.Sources = append(caps.Sources, SourceFeeder)
		mergeInputCaps(caps, doc.AdfSimplex)
		mergeInputCaps(caps, doc.AdfDuplex)
	}
	caps.DuplexSupported = doc.AdfDuplex != nil

	if len(caps.Sources) == 0 {
		return nil, errors.E(errors.KindMalformedCapabilities,
			"capabilities advertise no input source")
	}
	if len(caps.Resolutions) == 0 {
		return nil, errors.E(errors.KindMalformedCapabilities,
			"capabilities advertise no resolutions")
	}
	if len(caps.ColorModes) == 0 {
		return nil, errors.E(errors.KindMalformedCapabilities,
			"capabilities advertise no color modes")
	}
	if caps.MaxWidth <= 0 || caps.MaxHeight <= 0 {
		return nil, errors.E(errors.KindMalformedCapabilities,
			"capabilities advertise no scan area")
	}

	sort.Ints(caps.Resolutions)
	return caps, nil
}

// mergeInputCaps folds one source's limits into the flattened model.
func mergeInputCaps(caps *Capabilities, in *inputCaps) {
	if in == nil {
		return
	}
	if in.MaxWidth > caps.MaxWidth {
		caps.MaxWidth = in.MaxWidth
	}
	if in.MaxHeight > caps.MaxHeight {
		caps.MaxHeight = in.MaxHeight
	}
	for _, mode := range in.ColorModes {
		m := ColorMode(mode)
		if m != ColorModeColor && m != ColorModeGrayscale {
			// Depth variants like BlackAndWhite1 are not selectable here.
			continue
		}
		if !caps.HasColorMode(m) {
			caps.ColorModes = append(caps.ColorModes, m)
		}
	}
	for _, res := range in.Resolutions {
		if res.X != res.Y || res.X <= 0 {
			continue
		}
		if !caps.HasResolution(res.X) {
			caps.Resolutions = append(caps.Resolutions, res.X)
		}
	}
}
