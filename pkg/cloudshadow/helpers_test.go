package cloudshadow

import(
	"image"
	"strings"

	"github.com/abworrall/cloudshadow/pkg/emath"
	"github.com/abworrall/cloudshadow/pkg/flags"
)

// ASCII fixtures:  '.' land, '~' water, 'C' cloud, 'X' invalid,
// 'P' potential shadow, 'S' shifted (and potential) shadow
var fixtureFlags = map[rune]flags.Flag{
	'.': flags.Land,
	'~': flags.Water,
	'C': flags.Land | flags.Cloud,
	'X': flags.Invalid,
	'P': flags.Land | flags.PotentialCloudShadow,
	'S': flags.Land | flags.PotentialCloudShadow | flags.ShiftedCloudShadow,
}

func makeRaster(rows ...string) *flags.Raster {
	r := flags.NewRaster(image.Rect(0, 0, len(rows[0]), len(rows)))
	for y, row := range rows {
		for x, ch := range row {
			r.Set(x, y, fixtureFlags[ch])
		}
	}
	return r
}

// showRaster draws the raster back out, one rune per pixel
func showRaster(r *flags.Raster, show func(flags.Flag) rune) []string {
	rows := []string{}
	for y:=r.Rect.Min.Y; y<r.Rect.Max.Y; y++ {
		var sb strings.Builder
		for x:=r.Rect.Min.X; x<r.Rect.Max.X; x++ {
			sb.WriteRune(show(r.At(x, y)))
		}
		rows = append(rows, sb.String())
	}
	return rows
}

func showShadow(f flags.Flag) rune {
	switch {
	case f.Has(flags.Cloud):              return 'C'
	case f.Has(flags.CloudShadow):        return '#'
	case f.Has(flags.ShiftedCloudShadow): return 'S'
	case f.Has(flags.ShadowBelt):         return 'b'
	case f.Has(flags.Invalid):            return 'X'
	default:                              return '.'
	}
}

const(
	testBright = 0.30
	testDark   = 0.05
)

// flatScene is land at sea level everywhere, under a constant sun, at 20m/px
func flatScene(w, h int, zenith, azimuth float64) *Scene {
	fr := flags.NewRaster(image.Rect(0, 0, w, h))
	for i := range fr.Pix {
		fr.Pix[i] = flags.Land
	}
	s := NewScene(fr, 20)
	s.AddBand("B8A", emath.NewFilledGrid(w, h, testBright))
	s.AddBand("B3", emath.NewFilledGrid(w, h, testBright*0.4))
	s.SunZenith = grid(emath.NewFilledGrid(w, h, zenith))
	s.SunAzimuth = grid(emath.NewFilledGrid(w, h, azimuth))
	s.Elevation = grid(emath.NewFilledGrid(w, h, 0))
	return s
}

func grid(g emath.FloatGrid) *emath.FloatGrid { return &g }

func addCloud(s *Scene, r image.Rectangle) {
	for y:=r.Min.Y; y<r.Max.Y; y++ {
		for x:=r.Min.X; x<r.Max.X; x++ {
			s.Flags.Set(x, y, s.Flags.At(x, y) | flags.Cloud)
		}
	}
}

// darken sets the reflectance in every band to v over r
func darken(s *Scene, r image.Rectangle, v float64) {
	for _, g := range s.Bands {
		for y:=r.Min.Y; y<r.Max.Y; y++ {
			for x:=r.Min.X; x<r.Max.X; x++ {
				g.Set(x, y, v)
			}
		}
	}
}

// bitBounds is the box around every pixel carrying bits
func bitBounds(fr *flags.Raster, bits flags.Flag) image.Rectangle {
	b := image.Rectangle{}
	for y:=fr.Rect.Min.Y; y<fr.Rect.Max.Y; y++ {
		for x:=fr.Rect.Min.X; x<fr.Rect.Max.X; x++ {
			if fr.Has(x, y, bits) {
				b = GrowRectangle(b, image.Pt(x, y))
			}
		}
	}
	return b
}

func testConfig() Config {
	cfg := NewConfig()
	cfg.MaxCloudTop = 2000
	cfg.Workers = 4
	if err := cfg.Finalize(); err != nil {
		panic(err)
	}
	return cfg
}
