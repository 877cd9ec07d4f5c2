package cloudshadow

import(
	"image"
	"math"

	"github.com/abworrall/cloudshadow/pkg/emath"
	"github.com/abworrall/cloudshadow/pkg/flags"
)

// flagMountainShadow marches from every valid window pixel toward the sun
// over the elevation grid; if the terrain rises above the sun ray, the
// pixel is in mountain shadow. Elevations are read from the whole scene,
// so tiles agree along their edges.
func (tc *tileContext)flagMountainShadow() int {
	_, maxElev, n := tc.scene.Elevation.FiniteRange()
	if n == 0 {
		return 0
	}

	n = 0
	r := tc.flags.Rect
	for y:=r.Min.Y; y<r.Max.Y; y++ {
		for x:=r.Min.X; x<r.Max.X; x++ {
			p := image.Point{x, y}
			if tc.flags.At(x, y).Has(flags.Invalid) {
				continue
			}
			g, ok := tc.mountainGeometry(p)
			if !ok {
				continue
			}
			if tc.inTerrainShadow(p, g, maxElev) {
				tc.flags.Add(x, y, flags.MountainShadow)
				n++
			}
		}
	}
	return n
}

func (tc *tileContext)mountainGeometry(p image.Point) (Geometry, bool) {
	g, ok := tc.scene.PixelGeometry(p, tc.cfg)
	if !ok {
		return g, false
	}
	if tc.cfg.PathStrategy == "center" {
		c := tc.scene.CenterGeometry(tc.cfg)
		g.Zenith, g.Azimuth = c.Zenith, c.Azimuth
	}
	return g, g.Valid()
}

func (tc *tileContext)inTerrainShadow(p image.Point, g Geometry, maxElev float64) bool {
	rise := maxElev - g.Elevation
	if rise <= 0 {
		return false
	}
	tanZ := math.Tan(emath.Deg2Rad(g.Zenith))

	// No terrain further away than this can reach above the sun ray
	toSun := Displacement(g, -rise, tc.res)
	end := p.Add(roundVec(toSun))
	line := RasterizeLine(p, end)

	for _, q := range line[1:] {
		if !q.In(tc.scene.Bounds()) {
			break
		}
		elev := tc.scene.Elevation.Sample(q.X, q.Y)
		if !emath.IsFinite(elev) {
			continue
		}
		d := math.Hypot(float64(q.X-p.X), float64(q.Y-p.Y)) * tc.res
		if elev - g.Elevation > d / tanZ {
			return true
		}
	}
	return false
}
