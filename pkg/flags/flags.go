// Package flags holds the per-pixel classification bitmasks that the
// shadow engine reads and refines.
package flags

import(
	"fmt"
	"image"
	"strings"

	"go.uber.org/multierr"
)

// A Flag is a set of classification bits for one pixel.
type Flag uint16

// Bit positions are part of the output format, don't reorder.
const(
	Water Flag = 1 << iota
	Land
	Cloud
	Haze
	CloudShadow
	MountainShadow
	Invalid
	CloudBuffer
	PotentialCloudShadow
	ShiftedCloudShadow
	ShadowBelt
	ShiftedCloudShadowGaps
)

// Ingested are the bits that come from the upstream classification.
const Ingested = Water | Land | Cloud | Haze | CloudBuffer | Invalid

// Shadow bits are the ones this engine owns, and may never sit on a cloud.
const Shadow = CloudShadow | PotentialCloudShadow | ShiftedCloudShadow | ShadowBelt | ShiftedCloudShadowGaps

var names = []struct{
	F    Flag
	Name string
}{
	{Water, "water"},
	{Land, "land"},
	{Cloud, "cloud"},
	{Haze, "haze"},
	{CloudShadow, "cloud_shadow"},
	{MountainShadow, "mountain_shadow"},
	{Invalid, "invalid"},
	{CloudBuffer, "cloud_buffer"},
	{PotentialCloudShadow, "potential_cloud_shadow"},
	{ShiftedCloudShadow, "shifted_cloud_shadow"},
	{ShadowBelt, "shadow_belt"},
	{ShiftedCloudShadowGaps, "shifted_cloud_shadow_gaps"},
}

func (f Flag)Has(bits Flag) bool { return f & bits == bits }
func (f Flag)Any(bits Flag) bool { return f & bits != 0 }

func (f Flag)String() string {
	if f == 0 {
		return "clear"
	}
	strs := []string{}
	for _, n := range names {
		if f.Has(n.F) {
			strs = append(strs, n.Name)
		}
	}
	return strings.Join(strs, "|")
}

// ParseName maps a flag name (as used in manifests) to its bit
func ParseName(name string) (Flag, error) {
	for _, n := range names {
		if n.Name == strings.ToLower(name) {
			return n.F, nil
		}
	}
	return 0, fmt.Errorf("no flag named '%s'", name)
}

// Prepare applies the ingest rules to an upstream classification value:
// an invalid pixel carries nothing but Invalid, and shadow bits from
// upstream are dropped, since this engine computes them.
func Prepare(f Flag) Flag {
	if f.Has(Invalid) {
		return Invalid
	}
	return f & Ingested
}

// A Raster is a grid of flags positioned somewhere in scene coordinates;
// a tile window is just a Raster whose Rect doesn't start at the origin.
type Raster struct {
	Rect image.Rectangle
	Pix  []Flag
}

func NewRaster(r image.Rectangle) *Raster {
	return &Raster{Rect: r, Pix: make([]Flag, r.Dx()*r.Dy())}
}

func (r *Raster)Bounds() image.Rectangle { return r.Rect }
func (r *Raster)In(x, y int) bool        { return image.Pt(x, y).In(r.Rect) }
func (r *Raster)offset(x, y int) int     { return (y-r.Rect.Min.Y)*r.Rect.Dx() + (x-r.Rect.Min.X) }

// At returns the flags at scene position (x,y); outside the raster it
// reports Invalid, so callers never mistake the outside world for a clear pixel.
func (r *Raster)At(x, y int) Flag {
	if !r.In(x, y) {
		return Invalid
	}
	return r.Pix[r.offset(x,y)]
}

func (r *Raster)Has(x, y int, bits Flag) bool { return r.At(x,y).Has(bits) }

// Set overwrites the flags at (x,y)
func (r *Raster)Set(x, y int, f Flag) { r.Pix[r.offset(x,y)] = f }

// Add ORs in bits, but keeps the raster invariants: nothing joins an
// Invalid pixel, and shadow bits never join a cloud. It reports whether
// the pixel changed.
func (r *Raster)Add(x, y int, bits Flag) bool {
	if !r.In(x, y) {
		return false
	}
	i := r.offset(x,y)
	f := r.Pix[i]
	if f.Has(Invalid) {
		return false
	}
	if f.Has(Cloud) {
		bits &^= Shadow
	}
	if bits == Invalid {
		f = Invalid
	}
	if f | bits == f {
		return false
	}
	r.Pix[i] = f | bits
	return true
}

func (r *Raster)Clear(x, y int, bits Flag) {
	if r.In(x, y) {
		r.Pix[r.offset(x,y)] &^= bits
	}
}

func (r *Raster)Copy() *Raster {
	r2 := NewRaster(r.Rect)
	copy(r2.Pix, r.Pix)
	return r2
}

// Crop copies the part of the raster that lies inside `rect`. Cells of
// `rect` outside the source are Invalid.
func (r *Raster)Crop(rect image.Rectangle) *Raster {
	out := NewRaster(rect)
	for y:=rect.Min.Y; y<rect.Max.Y; y++ {
		for x:=rect.Min.X; x<rect.Max.X; x++ {
			out.Set(x, y, r.At(x, y))
		}
	}
	return out
}

// Paste copies the overlapping part of src into r.
func (r *Raster)Paste(src *Raster) {
	overlap := r.Rect.Intersect(src.Rect)
	for y:=overlap.Min.Y; y<overlap.Max.Y; y++ {
		for x:=overlap.Min.X; x<overlap.Max.X; x++ {
			r.Set(x, y, src.At(x, y))
		}
	}
}

// Count returns how many pixels carry all of `bits`
func (r *Raster)Count(bits Flag) int {
	n := 0
	for _, f := range r.Pix {
		if f.Has(bits) {
			n++
		}
	}
	return n
}

// All reports whether every pixel carries `bits`
func (r *Raster)All(bits Flag) bool {
	for _, f := range r.Pix {
		if !f.Has(bits) {
			return false
		}
	}
	return true
}

// CheckInvariants returns every pixel that breaks the raster invariants
func (r *Raster)CheckInvariants() error {
	var err error
	for y:=r.Rect.Min.Y; y<r.Rect.Max.Y; y++ {
		for x:=r.Rect.Min.X; x<r.Rect.Max.X; x++ {
			f := r.At(x,y)
			if f.Has(Invalid) && f != Invalid {
				err = multierr.Append(err, fmt.Errorf("(%d,%d) invalid but flagged %s", x, y, f))
			}
			if f.Has(Cloud) && f.Any(Shadow) {
				err = multierr.Append(err, fmt.Errorf("(%d,%d) cloud and shadow: %s", x, y, f))
			}
		}
	}
	return err
}

func (r *Raster)String() string {
	return fmt.Sprintf("Raster%s[cloud:%d, shadow:%d, invalid:%d]",
		r.Rect, r.Count(Cloud), r.Count(CloudShadow), r.Count(Invalid))
}
