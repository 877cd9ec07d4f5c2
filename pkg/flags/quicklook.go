package flags

import(
	"image"

	"github.com/fogleman/gg"
	"github.com/lucasb-eyer/go-colorful"
)

// Quicklook colors, in paint order; later entries are painted over earlier ones.
var palette = []struct{
	F   Flag
	Hex string
}{
	{Water,                "#1f4e9c"},
	{Land,                 "#5a8f3d"},
	{CloudBuffer,          "#c9c9a0"},
	{Haze,                 "#a8d8e0"},
	{MountainShadow,       "#d47fb0"},
	{PotentialCloudShadow, "#e8a33c"},
	{ShiftedCloudShadow,   "#c0502a"},
	{ShadowBelt,           "#b06a50"},
	{CloudShadow,          "#d01010"},
	{Cloud,                "#f5f570"},
	{Invalid,              "#404040"},
}

// ColorOf picks the quicklook color for a pixel. Overlay bits (potential,
// shifted, belt) are blended over the surface color rather than replacing it.
func ColorOf(f Flag) colorful.Color {
	col := colorful.Color{R: 0, G: 0, B: 0}
	for _, p := range palette {
		if !f.Has(p.F) {
			continue
		}
		c, err := colorful.Hex(p.Hex)
		if err != nil {
			continue
		}
		switch p.F {
		case PotentialCloudShadow, ShadowBelt:
			col = col.BlendRgb(c, 0.5)
		default:
			col = c
		}
	}
	return col
}

// Quicklook renders the raster as an RGBA image, with a title in the corner.
func (r *Raster)Quicklook(title string) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, r.Rect.Dx(), r.Rect.Dy()))
	for y:=r.Rect.Min.Y; y<r.Rect.Max.Y; y++ {
		for x:=r.Rect.Min.X; x<r.Rect.Max.X; x++ {
			img.Set(x-r.Rect.Min.X, y-r.Rect.Min.Y, ColorOf(r.At(x,y)))
		}
	}

	dc := gg.NewContextForRGBA(img)
	if title != "" {
		dc.SetRGB(1,1,1)
		dc.DrawString(title, 10, 20)
	}
	return dc.Image()
}

func (r *Raster)SaveQuicklook(title, filename string) error {
	return gg.NewContextForImage(r.Quicklook(title)).SavePNG(filename)
}
