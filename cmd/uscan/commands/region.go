package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/uscan-cli/uscan/pkg/errors"
	"github.com/uscan-cli/uscan/pkg/escl"
)

// unitsPerInch is the eSCL device length unit: 1/300 of an inch.
const unitsPerInch = 300.0

// paperSizes maps named sizes to width x height in millimeters.
var paperSizes = map[string][2]float64{
	"a3":     {297, 420},
	"a4":     {210, 297},
	"a5":     {148, 210},
	"a6":     {105, 148},
	"letter": {215.9, 279.4},
	"legal":  {215.9, 355.6},
}

// lengthUnits converts a unit suffix to device units per 1.0 of it.
var lengthUnits = map[string]float64{
	"mm": unitsPerInch / 25.4,
	"cm": unitsPerInch / 2.54,
	"in": unitsPerInch,
	"pt": unitsPerInch / 72.0,
}

// parseRegion turns the --region flag into a scan region in device
// units. Accepted forms: a named paper size (origin 0:0), or
// "Xoffset:Yoffset:Width:Height" where each length carries a unit
// suffix (mm, cm, in, pt; bare numbers are points).
func parseRegion(s string) (*escl.Region, error) {
	s = strings.ToLower(strings.TrimSpace(s))

	if size, ok := paperSizes[s]; ok {
		return &escl.Region{
			Width:  toUnits(size[0], "mm"),
			Height: toUnits(size[1], "mm"),
		}, nil
	}

	parts := strings.Split(s, ":")
	if len(parts) != 4 {
		return nil, errors.E(errors.KindUsage,
			"could not parse region %q: expected a paper size or Xoff:Yoff:Width:Height", s)
	}

	vals := make([]int, 4)
	for i, part := range parts {
		v, err := parseLength(part)
		if err != nil {
			return nil, errors.Tag(errors.KindUsage,
				errors.Wrap(err, fmt.Sprintf("could not parse region %q", s)))
		}
		vals[i] = v
	}

	return &escl.Region{
		XOffset: vals[0],
		YOffset: vals[1],
		Width:   vals[2],
		Height:  vals[3],
	}, nil
}

// parseLength converts one length like "1.5cm" or "10mm" to device units.
func parseLength(s string) (int, error) {
	s = strings.TrimSpace(s)

	unit := "pt"
	num := s
	for suffix := range lengthUnits {
		if strings.HasSuffix(s, suffix) {
			unit = suffix
			num = strings.TrimSuffix(s, suffix)
			break
		}
	}

	v, err := strconv.ParseFloat(strings.TrimSpace(num), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid length %q", s)
	}
	if v < 0 {
		return 0, fmt.Errorf("negative length %q", s)
	}
	return toUnits(v, unit), nil
}

// toUnits truncates like the historical behavior, with an epsilon so
// exact unit boundaries do not land one device unit short.
func toUnits(v float64, unit string) int {
	return int(v*lengthUnits[unit] + 1e-6)
}
