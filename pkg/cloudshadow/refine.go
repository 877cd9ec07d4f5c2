package cloudshadow

import(
	"image"
	"math"

	"github.com/abworrall/cloudshadow/pkg/emath"
	"github.com/abworrall/cloudshadow/pkg/flags"
)

// neighbourFractions is the fraction of the in-window 8-neighbours of
// (x,y) that are cloud, and that are shifted shadow.
func neighbourFractions(fr *flags.Raster, x, y int) (float64, float64) {
	n, nCloud, nShadow := 0, 0, 0
	for _, d := range neighbours8 {
		if !fr.In(x+d.X, y+d.Y) {
			continue
		}
		f := fr.At(x+d.X, y+d.Y)
		n++
		if f.Has(flags.Cloud)              { nCloud++ }
		if f.Has(flags.ShiftedCloudShadow) { nShadow++ }
	}
	if n == 0 {
		return 0, 0
	}
	return float64(nCloud)/float64(n), float64(nShadow)/float64(n)
}

// GapFill marks as shifted shadow the clear pixels that are mostly
// surrounded by cloud, or by shifted shadow. It repeats until nothing
// changes, so running it twice is the same as running it once.
func GapFill(fr *flags.Raster, threshold float64) int {
	filled := 0
	for {
		changed := 0
		r := fr.Rect
		for y:=r.Min.Y; y<r.Max.Y; y++ {
			for x:=r.Min.X; x<r.Max.X; x++ {
				f := fr.At(x, y)
				if f.Any(flags.Cloud | flags.Invalid | flags.ShiftedCloudShadow) {
					continue
				}
				cloud, shadow := neighbourFractions(fr, x, y)
				if cloud >= threshold || shadow >= threshold {
					if fr.Add(x, y, flags.ShiftedCloudShadow) {
						changed++
					}
				}
			}
		}
		if changed == 0 {
			return filled
		}
		filled += changed
	}
}

// Belt marks a one pixel ring around the shifted shadow. The ring has its
// own bit, so the shadow it was grown from doesn't grow with it.
func Belt(fr *flags.Raster) int {
	n := 0
	r := fr.Rect
	for y:=r.Min.Y; y<r.Max.Y; y++ {
		for x:=r.Min.X; x<r.Max.X; x++ {
			f := fr.At(x, y)
			if f.Any(flags.Cloud | flags.Invalid | flags.ShiftedCloudShadow) {
				continue
			}
			for _, d := range neighbours8 {
				if fr.In(x+d.X, y+d.Y) && fr.Has(x+d.X, y+d.Y, flags.ShiftedCloudShadow) {
					if fr.Add(x, y, flags.ShadowBelt) {
						n++
					}
					break
				}
			}
		}
	}
	return n
}

// GapKernel returns the gap detector's outer radius in pixels, and the
// size of the block it covers.
func GapKernel(cfg Config, res float64) (float64, int) {
	radius := cfg.GapKernelRadius / res
	return radius, 2*int(math.Ceil(radius)) + 1
}

// GapValues is, for every window pixel, its darkness-band reflectance less
// the mean of the clear pixels in a ring around it. Shadows come out well
// below zero. The grid is indexed from the window's top left corner.
func (tc *tileContext)GapValues() emath.FloatGrid {
	r := tc.flags.Rect
	refl := emath.NewFloatGrid(r.Dx(), r.Dy())
	for y:=r.Min.Y; y<r.Max.Y; y++ {
		for x:=r.Min.X; x<r.Max.X; x++ {
			v := math.NaN()
			if !tc.flags.At(x, y).Any(flags.Cloud | flags.Invalid) {
				v = tc.scene.Reflectance(image.Point{x, y}, tc.cfg)
			}
			refl.Set(x-r.Min.X, y-r.Min.Y, v)
		}
	}

	radius, _ := GapKernel(tc.cfg, tc.res)
	ring := refl.RingMean(tc.cfg.GapKernelInner*radius, radius, nil)

	gaps := refl.NewFromThis()
	for i, v := range refl.Values() {
		gaps.Values()[i] = v - ring.Values()[i]
	}
	return gaps
}

// Gate keeps the shifted shadow regions that are big enough, and that
// coincide with a real dark gap in the image, promoting their potential
// shadow pixels to cloud shadow. If the gap kernel doesn't fit inside the
// window, only the size test applies. A discarded region loses its shifted
// and belt bits and its cloud ids; its potential shadow stays.
func (tc *tileContext)Gate() {
	r := tc.flags.Rect
	_, block := GapKernel(tc.cfg, tc.res)
	tc.diag.GatingApplied = block < r.Dx() && block < r.Dy()

	var gaps emath.FloatGrid
	if tc.diag.GatingApplied {
		gaps = tc.GapValues()
	}

	regions := segment(r, tc.cfg.Connectivity, func(x, y int) bool {
		f := tc.flags.At(x, y)
		return f.Any(flags.ShiftedCloudShadow | flags.ShadowBelt) && !f.Any(flags.Cloud | flags.Invalid)
	}, nil)

	for _, region := range regions.Blobs {
		if len(region.Pixels) < tc.cfg.FragmentMinPixels {
			tc.discard(region)
			continue
		}
		coincides := !tc.diag.GatingApplied
		for _, p := range region.Pixels {
			if coincides {
				break
			}
			if v := gaps.Get(p.X-r.Min.X, p.Y-r.Min.Y); !math.IsNaN(v) && v < tc.cfg.GapThreshold {
				coincides = true
			}
		}
		if !coincides {
			tc.discard(region)
			continue
		}

		tc.diag.Promoted++
		for _, p := range region.Pixels {
			if tc.flags.Has(p.X, p.Y, flags.PotentialCloudShadow) {
				tc.flags.Add(p.X, p.Y, flags.CloudShadow | flags.ShiftedCloudShadowGaps)
			}
		}
	}
}

func (tc *tileContext)discard(region *Blob) {
	tc.diag.Discarded++
	for _, p := range region.Pixels {
		tc.flags.Clear(p.X, p.Y, flags.ShiftedCloudShadow | flags.ShadowBelt)
		tc.setCloudID(p, 0)
	}
}

// refine runs the morphological passes in order
func (tc *tileContext)refine() {
	tc.diag.GapFilled = GapFill(tc.flags, tc.cfg.GapFillThreshold)
	Belt(tc.flags)
	tc.Gate()
}
