package cloudshadow

import(
	"image"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/abworrall/cloudshadow/pkg/flags"
)

func TestGapFill(t *testing.T) {
	tests := []struct{
		name string
		in   []string
		want []string
	}{
		{
			name: "hole in a shadow",
			in: []string{
				".....",
				".SSS.",
				".S.S.",
				".SSS.",
				".....",
			},
			want: []string{
				".....",
				".SSS.",
				".SSS.",
				".SSS.",
				".....",
			},
		},
		{
			name: "hole in a cloud",
			in: []string{
				"CCC",
				"C.C",
				"CCC",
			},
			want: []string{
				"CCC",
				"CSC",
				"CCC",
			},
		},
		{
			name: "half surrounded stays clear",
			in: []string{
				"SSS",
				"...",
				"...",
			},
			want: []string{
				"SSS",
				"...",
				"...",
			},
		},
		{
			name: "invalid pixels are never filled",
			in: []string{
				"SSS",
				"SXS",
				"SSS",
			},
			want: []string{
				"SSS",
				"SXS",
				"SSS",
			},
		},
	}

	for _, test := range tests {
		fr := makeRaster(test.in...)
		GapFill(fr, 0.70)
		if diff := cmp.Diff(test.want, showRaster(fr, showShadow)); diff != "" {
			t.Errorf("%s (-want +got):\n%s", test.name, diff)
		}
		if n := GapFill(fr, 0.70); n != 0 {
			t.Errorf("%s: second GapFill changed %d pixels", test.name, n)
		}
	}
}

// Filling happens in place, and repeats until nothing changes
func TestGapFillReachesFixpoint(t *testing.T) {
	fr := makeRaster(
		"SSSSS",
		"S...S",
		"SSSSS",
	)
	n := GapFill(fr, 0.70)
	want := []string{
		"SSSSS",
		"SSSSS",
		"SSSSS",
	}
	if diff := cmp.Diff(want, showRaster(fr, showShadow)); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	if n != 3 {
		t.Errorf("filled %d, want 3", n)
	}
}

func TestBelt(t *testing.T) {
	fr := makeRaster(
		"......",
		"..SS..",
		"..SC..",
		"......",
		"......",
	)
	Belt(fr)
	want := []string{
		".bbbb.",
		".bSSb.",
		".bSCb.",
		".bbb..",
		"......",
	}
	if diff := cmp.Diff(want, showRaster(fr, showShadow)); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}

	before := fr.Copy()
	if n := Belt(fr); n != 0 {
		t.Errorf("second Belt changed %d pixels", n)
	}
	if diff := cmp.Diff(before.Pix, fr.Pix); diff != "" {
		t.Errorf("second Belt changed the raster (-before +after):\n%s", diff)
	}
}

func TestGate(t *testing.T) {
	tests := []struct{
		name          string
		size          int               // of the square scene
		region        image.Rectangle   // shifted shadow
		refl          float64           // reflectance under it
		gating        bool
		promoted      int
		discarded     int
		cloudShadow   int
	}{
		{"deep gap", 120, image.Rect(50, 70, 55, 75), testDark, true, 1, 0, 25},
		{"faint dip", 120, image.Rect(50, 70, 55, 75), 0.27, true, 0, 1, 0},
		{"fragment", 120, image.Rect(50, 70, 53, 71), testDark, true, 0, 1, 0},
		{"kernel bigger than the window", 60, image.Rect(20, 20, 25, 25), 0.27, false, 1, 0, 25},
		{"fragment, kernel bigger than the window", 60, image.Rect(20, 20, 23, 21), testDark, false, 0, 1, 0},
	}

	for _, test := range tests {
		s := flatScene(test.size, test.size, 30, 180)
		darken(s, test.region, test.refl)
		cfg := testConfig()
		tc := newTileContext(s, wholeSceneTile(s, cfg), cfg)
		for y:=test.region.Min.Y; y<test.region.Max.Y; y++ {
			for x:=test.region.Min.X; x<test.region.Max.X; x++ {
				tc.flags.Add(x, y, flags.PotentialCloudShadow | flags.ShiftedCloudShadow)
				tc.setCloudID(image.Pt(x, y), 7)
			}
		}

		tc.Gate()
		d := tc.diag
		if d.GatingApplied != test.gating || d.Promoted != test.promoted || d.Discarded != test.discarded {
			t.Errorf("%s: gating %v, promoted %d, discarded %d", test.name, d.GatingApplied, d.Promoted, d.Discarded)
		}
		if n := tc.flags.Count(flags.CloudShadow); n != test.cloudShadow {
			t.Errorf("%s: %d cloud shadow pixels, want %d", test.name, n, test.cloudShadow)
		}

		// Discarded shadow goes back to being only potential shadow
		if test.discarded > 0 {
			p := test.region.Min
			if got, want := tc.flags.At(p.X, p.Y), flags.Land | flags.PotentialCloudShadow; got != want {
				t.Errorf("%s: discarded pixel is %s, want %s", test.name, got, want)
			}
			if id := tc.cloudID(p); id != 0 {
				t.Errorf("%s: discarded pixel still attributed to cloud %d", test.name, id)
			}
		}
		if err := tc.flags.CheckInvariants(); err != nil {
			t.Errorf("%s: %v", test.name, err)
		}
	}
}
