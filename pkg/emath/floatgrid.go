package emath

import(
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/fogleman/gg"
	"gonum.org/v1/gonum/floats"
)

// A FloatGrid is a grid of floats, e.g. one band of reflectances, or an
// elevation model. NaN is the nodata value throughout; all the stats
// helpers skip it.
type FloatGrid struct {
	stride int
	values []float64
}

func NewFloatGrid(w, h int) FloatGrid {
	return FloatGrid{
		stride: w,
		values: make([]float64, w*h),
	}
}

// NewFilledGrid returns a grid with every cell set to v (e.g. math.NaN())
func NewFilledGrid(w, h int, v float64) FloatGrid {
	g := NewFloatGrid(w, h)
	for i := range g.values {
		g.values[i] = v
	}
	return g
}

// NewFloatGridFrom wraps an existing row-major slice; it does not copy.
func NewFloatGridFrom(w int, values []float64) (FloatGrid, error) {
	if w <= 0 || len(values) % w != 0 {
		return FloatGrid{}, fmt.Errorf("%d values can't be a grid of width %d", len(values), w)
	}
	return FloatGrid{stride: w, values: values}, nil
}

func (g1 *FloatGrid)NewFromThis() FloatGrid  { return NewFloatGrid(g1.Dx(), g1.Dy()) }
func (fg *FloatGrid)Set(x, y int, v float64) { fg.values[fg.stride*y + x] = v }
func (fg *FloatGrid)Get(x, y int) float64    { return fg.values[fg.stride*y + x] }
func (fg *FloatGrid)Dx() int                 { return fg.stride }
func (fg *FloatGrid)Values() []float64       { return fg.values }
func (fg *FloatGrid)Bounds() image.Rectangle { return image.Rect(0, 0, fg.Dx(), fg.Dy()) }

func (fg *FloatGrid)Dy() int {
	if fg.stride == 0 {
		return 0
	}
	return len(fg.values) / fg.stride
}

func (fg *FloatGrid)In(x, y int) bool {
	return x >= 0 && y >= 0 && x < fg.stride && y < fg.Dy()
}

// Sample is Get, but returns NaN for positions outside the grid
func (fg *FloatGrid)Sample(x, y int) float64 {
	if fg == nil || !fg.In(x, y) {
		return math.NaN()
	}
	return fg.Get(x, y)
}

func (g1 *FloatGrid)Copy() *FloatGrid {
	g2 := FloatGrid{stride: g1.stride, values:make([]float64, len(g1.values))}
	copy(g2.values, g1.values)
	return &g2
}

// Scale applies v*scale + offset to every cell, leaving NaNs alone.
func (fg *FloatGrid)Scale(scale, offset float64) {
	for i, v := range fg.values {
		if !math.IsNaN(v) {
			fg.values[i] = v*scale + offset
		}
	}
}

// FiniteValues returns a copy of all the non-NaN, non-Inf values
func (fg *FloatGrid)FiniteValues() []float64 {
	vals := make([]float64, 0, len(fg.values))
	for _, v := range fg.values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			vals = append(vals, v)
		}
	}
	return vals
}

// FiniteRange returns the min & max of the finite values, and how many there were. If there
// are none, min & max are NaN.
func (fg *FloatGrid)FiniteRange() (float64, float64, int) {
	vals := fg.FiniteValues()
	if len(vals) == 0 {
		return math.NaN(), math.NaN(), 0
	}
	return floats.Min(vals), floats.Max(vals), len(vals)
}

func (fg *FloatGrid)Stats() string {
	min, max, n := fg.FiniteRange()
	return fmt.Sprintf("fg[%dx%d, %d finite, vals{%f,%f}]", fg.Dx(), fg.Dy(), n, min, max)
}

// ToImg saves a simple grayscale, based on the range of values in the grid, and gamma scaling the
// gray to look normal for human vision. NaN cells come out red.
func (fg *FloatGrid)ToImg(title, filename string) error {
	min, max, _ := fg.FiniteRange()
	span := max - min
	if span <= 0 || math.IsNaN(span) {
		span = 1
	}

	img := image.NewRGBA64(image.Rectangle{Max:image.Point{fg.Dx(), fg.Dy()}})
	for x:=0; x<fg.Dx(); x++ {
		for y:=0; y<fg.Dy(); y++ {
			val := fg.Get(x,y)
			if math.IsNaN(val) {
				img.Set(x, y, color.RGBA64{0xFFFF, 0, 0, 0xFFFF})
				continue
			}
			gray := GammaExpand_F64 ((val - min) / span)
			col := color.RGBA64{uint16(gray * 65535.0), uint16(gray * 65535.0), uint16(gray * 65535.0), 0xFFFF}
			img.Set(x, y, col)
		}
	}

	dc := gg.NewContextForImage(img)
	dc.SetRGB(1,1,0)
	dc.DrawString(title, 10, 20)
	return dc.SavePNG(filename)
}
