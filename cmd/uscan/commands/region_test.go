package commands

import (
	"testing"

	"github.com/uscan-cli/uscan/pkg/errors"
	"github.com/uscan-cli/uscan/pkg/escl"
)

func TestParseRegionPaperSizes(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want escl.Region
	}{
		// 210mm and 297mm in 1/300-inch units.
		{name: "a4", in: "a4", want: escl.Region{Width: 2480, Height: 3507}},
		{name: "a4 uppercase", in: "A4", want: escl.Region{Width: 2480, Height: 3507}},
		{name: "letter", in: "letter", want: escl.Region{Width: 2550, Height: 3300}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseRegion(tt.in)
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			if *got != tt.want {
				t.Errorf("region = %+v, want %+v", *got, tt.want)
			}
		})
	}
}

func TestParseRegionExplicit(t *testing.T) {
	got, err := parseRegion("1cm:1.5cm:10cm:20cm")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	want := escl.Region{XOffset: 118, YOffset: 177, Width: 1181, Height: 2362}
	if *got != want {
		t.Errorf("region = %+v, want %+v", *got, want)
	}
}

func TestParseRegionMixedUnits(t *testing.T) {
	got, err := parseRegion("0in:0in:8.5in:11in")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	want := escl.Region{Width: 2550, Height: 3300}
	if *got != want {
		t.Errorf("region = %+v, want %+v", *got, want)
	}
}

func TestParseRegionBareNumbersArePoints(t *testing.T) {
	got, err := parseRegion("0:0:72:144")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	// 72pt is one inch.
	want := escl.Region{Width: 300, Height: 600}
	if *got != want {
		t.Errorf("region = %+v, want %+v", *got, want)
	}
}

func TestParseRegionInvalid(t *testing.T) {
	for _, in := range []string{"b4", "1cm:2cm:3cm", "a:b:c:d", "1cm:1cm:-2cm:3cm", ""} {
		t.Run(in, func(t *testing.T) {
			_, err := parseRegion(in)
			if err == nil {
				t.Fatalf("expected %q to fail", in)
			}
			if !errors.IsKind(err, errors.KindUsage) {
				t.Errorf("expected USAGE, got %s", errors.KindOf(err))
			}
		})
	}
}
