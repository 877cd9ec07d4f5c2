package emath

import "math"

// Some functions that only operate on basic types, that are useful

func Deg2Rad(d float64) float64 { return d * math.Pi / 180.0 }
func Rad2Deg(r float64) float64 { return r * 180.0 / math.Pi }

func IsFinite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }

// https://www.sjbrown.co.uk/posts/gamma-correct-rendering/ - "linear RGB to sRGB"
// `f` is assumed to be in the range [0,1]
func GammaExpand_F64(f float64) float64 {
	if f <= 0.0031308 {
		return 12.92 * f
	}
	return 1.055 * math.Pow(f, 1.0/2.4) - 0.055
}
