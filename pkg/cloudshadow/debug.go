package cloudshadow

import(
	"fmt"
	"image"
	"math"
	"path/filepath"

	"github.com/abworrall/cloudshadow/pkg/emath"
	"github.com/abworrall/cloudshadow/pkg/flags"
)

// WriteDebugImages renders the grids the shadow search looks at as PNGs
// into dir: the profile reflectance, the gap values over the whole scene,
// and the elevation. It returns the files it wrote.
func WriteDebugImages(s *Scene, cfg Config, dir string) ([]string, error) {
	if err := cfg.Finalize(); err != nil {
		return nil, err
	}
	tc := newTileContext(s, Tile{Rect: s.Bounds(), BulkOffset: -1}, cfg)

	b := s.Bounds()
	refl := emath.NewFloatGrid(b.Dx(), b.Dy())
	for y:=0; y<b.Dy(); y++ {
		for x:=0; x<b.Dx(); x++ {
			v := math.NaN()
			if !tc.flags.At(x, y).Any(flags.Cloud | flags.Invalid) {
				v = s.Reflectance(image.Point{x, y}, cfg)
			}
			refl.Set(x, y, v)
		}
	}
	gaps := tc.GapValues()

	radius, _ := GapKernel(cfg, tc.res)
	grids := []struct{
		name  string
		title string
		g     *emath.FloatGrid
	}{
		{"reflectance", fmt.Sprintf("reflectance %v", cfg.ProfileBands), &refl},
		{"gaps", fmt.Sprintf("gap values, ring %.0f-%.0fpx", cfg.GapKernelInner*radius, radius), &gaps},
		{"elevation", "elevation", s.Elevation},
	}

	files := []string{}
	for _, grid := range grids {
		filename := filepath.Join(dir, grid.name + ".png")
		if err := grid.g.ToImg(grid.title, filename); err != nil {
			return files, fmt.Errorf("debug image %s: %w", grid.name, err)
		}
		files = append(files, filename)
	}
	return files, nil
}
