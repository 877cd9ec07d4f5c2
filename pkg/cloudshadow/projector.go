package cloudshadow

import(
	"fmt"
	"image"
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/abworrall/cloudshadow/pkg/emath"
)

// Upper bound on the stepwise shortening of a path; each step is a
// fraction of a pixel, so this is far more than a clipped path needs.
const maxShortenSteps = 64

// Geometry is the sun position, and the surface elevation a shadow falls on.
type Geometry struct {
	Zenith    float64 // degrees
	Azimuth   float64 // degrees, clockwise from the raster's "up"
	Elevation float64 // meters
}

// Valid means the sun is above the horizon, and nothing is nodata
// Past this the sun is too low for shadows to be worth looking for, and
// the search border would be unbounded.
const MaxSunZenith = 89.9

func (g Geometry)Valid() bool {
	return emath.IsFinite(g.Zenith) && emath.IsFinite(g.Azimuth) && emath.IsFinite(g.Elevation) &&
		g.Zenith >= 0 && g.Zenith <= MaxSunZenith
}

func (g Geometry)String() string {
	return fmt.Sprintf("sza=%.2f saa=%.2f elev=%.1f", g.Zenith, g.Azimuth, g.Elevation)
}

// A ShadowPath is the list of pixel offsets, relative to a cloud pixel,
// where its shadow can fall: index 0 is for a cloud at the minimum cloud
// base, the last one for the highest cloud top that still fits the raster.
type ShadowPath struct {
	Offsets   []image.Point
	Geometry  Geometry // the geometry the path was projected with
	Truncated bool     // the endpoint was pulled in to fit the bounds
}

func (sp ShadowPath)Len() int { return len(sp.Offsets) }

func (sp ShadowPath)End() image.Point {
	if len(sp.Offsets) == 0 {
		return image.Point{}
	}
	return sp.Offsets[len(sp.Offsets)-1]
}

// ShadowDirection is the unit vector, in image axes (x right, y down),
// along which shadows are displaced for a given sun azimuth.
func ShadowDirection(azimuthDeg float64) r2.Vec {
	x, y := emath.Identity().Rotate(azimuthDeg - 90).Apply(1, 0)
	return r2.Vec{X: x, Y: y}
}

// Displacement is how far (in pixels) the shadow of something `height`
// meters above the surface lands from it.
func Displacement(g Geometry, height, res float64) r2.Vec {
	l := height * math.Tan(emath.Deg2Rad(g.Zenith)) / res
	return r2.Scale(l, ShadowDirection(g.Azimuth))
}

// ProjectPath builds the shadow path for clouds between `base` meters above
// the surface and `top` meters above sea level, as seen from `origin`. If
// the far end would land outside `bounds` it is pulled back toward the
// start in small steps; if nothing past the base fits, the path is empty.
func ProjectPath(g Geometry, base, top, res float64, origin image.Point, bounds image.Rectangle) ShadowPath {
	sp := ShadowPath{Geometry: g}
	if !g.Valid() || res <= 0 || !origin.In(bounds) {
		return sp
	}

	heightTop := top - g.Elevation
	if heightTop < base {
		return sp
	}

	start := Displacement(g, base, res)
	end := Displacement(g, heightTop, res)

	end, sp.Truncated = shortenToBounds(origin, start, end, bounds)
	if sp.Truncated && end == (r2.Vec{}) {
		return sp
	}

	sp.Offsets = RasterizeLine(roundVec(start), roundVec(end))
	return sp
}

// shortenToBounds returns the furthest point on the line toward `end`,
// sampled every 1/(2*max(|dx|,|dy|)) of its length, that lands inside the
// bounds and is no closer than `start`. The zero vector and true mean that
// there is no such point.
func shortenToBounds(origin image.Point, start, end r2.Vec, bounds image.Rectangle) (r2.Vec, bool) {
	inside := func(v r2.Vec) bool { return origin.Add(roundVec(v)).In(bounds) }
	if inside(end) {
		return end, false
	}

	divisor := math.Floor(math.Max(math.Abs(end.X), math.Abs(end.Y))*2 + 0.5)
	startLen := r2.Norm(start)

	// Jump straight to the last step that can be inside, then walk back over rounding
	k := math.Floor(clipFactor(origin, end, bounds) * divisor)
	for steps := 0; k > 0 && steps < maxShortenSteps; steps++ {
		cand := r2.Scale(k/divisor, end)
		if r2.Norm(cand) < startLen {
			break
		}
		if inside(cand) {
			return cand, true
		}
		k--
	}
	return r2.Vec{}, true
}

// clipFactor is the largest f in [0,1] for which origin + f*v rounds to a
// pixel inside the bounds.
func clipFactor(origin image.Point, v r2.Vec, bounds image.Rectangle) float64 {
	f := 1.0
	limit := func(o, min, max int, d float64) {
		switch {
		case d > 0: f = math.Min(f, (float64(max-1-o)+0.5)/d)
		case d < 0: f = math.Min(f, (float64(min-o)-0.5)/d)
		}
	}
	limit(origin.X, bounds.Min.X, bounds.Max.X, v.X)
	limit(origin.Y, bounds.Min.Y, bounds.Max.Y, v.Y)
	return math.Max(f, 0)
}

func roundVec(v r2.Vec) image.Point {
	return image.Point{int(math.Round(v.X)), int(math.Round(v.Y))}
}

// SearchBorder is the furthest any shadow in the scene can land from its
// cloud, in pixels: the highest cloud top under the lowest sun.
func SearchBorder(s *Scene, cfg Config) float64 {
	g := s.geometry()
	res := s.resolution(cfg)
	if math.IsNaN(g.MaxZenith) || math.IsNaN(g.RefElevation) || res <= 0 {
		return 0
	}
	zenith := math.Min(g.MaxZenith, MaxSunZenith)
	h := s.MaxCloudTop(cfg) - g.RefElevation
	if h <= 0 {
		return 0
	}
	return h * math.Tan(emath.Deg2Rad(zenith)) / res
}

// A PathSource hands out the shadow path for each cloud pixel
type PathSource interface {
	PathAt(p image.Point) (ShadowPath, bool)
}

// A PathStrategy decides how shadow paths are computed for a scene.
type PathStrategy interface {
	Name() string
	Paths(s *Scene, cfg Config) PathSource
}

// CenterPathStrategy computes one path from the scene-center sun geometry
// and the lowest surface in the scene, and uses it for every cloud pixel.
// It is cheap, and exact only for flat scenes with constant sun angles.
type CenterPathStrategy struct{}

func (CenterPathStrategy)Name() string { return "center" }

func (CenterPathStrategy)Paths(s *Scene, cfg Config) PathSource {
	g := s.CenterGeometry(cfg)
	bounds := s.Bounds()

	// Project from the corner facing the shadow, so the path is as long
	// as the scene allows in that direction.
	dir := ShadowDirection(g.Azimuth)
	origin := image.Point{bounds.Min.X, bounds.Min.Y}
	if dir.X < 0 { origin.X = bounds.Max.X-1 }
	if dir.Y < 0 { origin.Y = bounds.Max.Y-1 }

	path := ProjectPath(g, cfg.MinCloudBase, s.MaxCloudTop(cfg), s.resolution(cfg), origin, bounds)
	return sharedPath{path}
}

type sharedPath struct {
	path ShadowPath
}

func (sp sharedPath)PathAt(image.Point) (ShadowPath, bool) { return sp.path, sp.path.Len() > 0 }

// PixelPathStrategy projects a path per cloud pixel from that pixel's own
// sun angles and elevation. Pixels with nodata geometry get no path.
type PixelPathStrategy struct{}

func (PixelPathStrategy)Name() string { return "pixel" }

func (PixelPathStrategy)Paths(s *Scene, cfg Config) PathSource {
	return &pixelPaths{
		scene: s,
		cfg:   cfg,
		top:   s.MaxCloudTop(cfg),
		res:   s.resolution(cfg),
		cache: map[image.Point]ShadowPath{},
	}
}

// pixelPaths is used by a single tile; it is not safe for concurrent use.
type pixelPaths struct {
	scene *Scene
	cfg   Config
	top   float64
	res   float64
	cache map[image.Point]ShadowPath
}

func (pp *pixelPaths)PathAt(p image.Point) (ShadowPath, bool) {
	if sp, exists := pp.cache[p]; exists {
		return sp, sp.Len() > 0
	}
	sp := ShadowPath{}
	if g, ok := pp.scene.PixelGeometry(p, pp.cfg); ok {
		sp = ProjectPath(g, pp.cfg.MinCloudBase, pp.top, pp.res, p, pp.scene.Bounds())
	}
	pp.cache[p] = sp
	return sp, sp.Len() > 0
}
