package cloudshadow

import(
	"errors"
	"fmt"
	"image"
	"math"
	"sort"
	"sync"

	"go.uber.org/multierr"
	"gonum.org/v1/gonum/stat"

	"github.com/abworrall/cloudshadow/pkg/emath"
	"github.com/abworrall/cloudshadow/pkg/flags"
)

var ErrSceneMismatch = errors.New("scene rasters don't match")

// A Scene is the resident input bundle: the upstream classification plus
// everything the shadow geometry needs. All rasters are in scene pixel
// coordinates, starting at (0,0). The engine never mutates a Scene.
type Scene struct {
	Flags        *flags.Raster
	Bands        map[string]*emath.FloatGrid  // reflectances, typically [0,1]
	SunZenith    *emath.FloatGrid             // degrees
	SunAzimuth   *emath.FloatGrid             // degrees, clockwise from north
	ViewZenith   *emath.FloatGrid             // optional
	ViewAzimuth  *emath.FloatGrid             // optional
	Elevation    *emath.FloatGrid             // meters, NaN for no data
	Geocoding    Geocoding                    // optional
	Resolution   float64                      // meters/pixel

	once         sync.Once
	derived      sceneGeometry
}

// Scene-wide values, worked out once and shared by every tile so that
// tiling can't change them.
type sceneGeometry struct {
	CenterZenith   float64
	CenterAzimuth  float64
	CenterView     [2]float64  // zenith, azimuth
	RefElevation   float64     // lowest valid elevation; NaN if there is none
	MaxZenith      float64
	CenterLat      float64
	HasLat         bool
	GridNorth      float64
}

func NewScene(fr *flags.Raster, res float64) *Scene {
	return &Scene{
		Flags:      fr,
		Bands:      map[string]*emath.FloatGrid{},
		Resolution: res,
	}
}

func (s *Scene)Bounds() image.Rectangle { return s.Flags.Rect }

func (s *Scene)AddBand(name string, g emath.FloatGrid) { s.Bands[name] = &g }

func (s *Scene)String() string {
	return fmt.Sprintf("Scene[%s, %d bands, %.1fm/px]", s.Bounds(), len(s.Bands), s.Resolution)
}

// Validate checks that the rasters line up, and that everything the
// config asks for is there.
func (s *Scene)Validate(cfg Config) error {
	if s.Flags == nil {
		return fmt.Errorf("%w: no flag raster", ErrSceneMismatch)
	}
	if s.Flags.Rect.Min != (image.Point{}) {
		return fmt.Errorf("%w: flag raster must start at the origin, not %s", ErrSceneMismatch, s.Flags.Rect.Min)
	}

	var err error
	w, h := s.Flags.Rect.Dx(), s.Flags.Rect.Dy()
	check := func(name string, g *emath.FloatGrid, required bool) {
		if g == nil {
			if required {
				err = multierr.Append(err, fmt.Errorf("%s is missing", name))
			}
			return
		}
		if g.Dx() != w || g.Dy() != h {
			err = multierr.Append(err, fmt.Errorf("%s is %dx%d, flags are %dx%d", name, g.Dx(), g.Dy(), w, h))
		}
	}

	check("sun_zenith", s.SunZenith, true)
	check("sun_azimuth", s.SunAzimuth, true)
	check("elevation", s.Elevation, true)
	check("view_zenith", s.ViewZenith, false)
	check("view_azimuth", s.ViewAzimuth, false)
	if geo, ok := s.Geocoding.(GridGeocoding); ok {
		check("latitude", geo.Lat, true)
		check("longitude", geo.Lon, true)
	}

	names := append([]string{}, cfg.ProfileBands...)
	if cfg.Clustering {
		names = append(names, cfg.ClusterBands...)
	}
	for _, name := range names {
		check("band "+name, s.Bands[name], true)
	}

	if s.resolution(cfg) <= 0 {
		err = multierr.Append(err, fmt.Errorf("no spatial resolution (scene %.2f, config %.2f)", s.Resolution, cfg.Resolution))
	}
	if cfg.UseApparentAzimuth && (s.ViewZenith == nil || s.ViewAzimuth == nil) {
		err = multierr.Append(err, fmt.Errorf("apparent azimuth needs view_zenith and view_azimuth"))
	}

	if err != nil {
		return fmt.Errorf("%w: %v", ErrSceneMismatch, err)
	}
	return nil
}

func (s *Scene)resolution(cfg Config) float64 {
	if cfg.Resolution > 0 {
		return cfg.Resolution
	}
	return s.Resolution
}

func (s *Scene)geometry() sceneGeometry {
	s.once.Do(func() {
		b := s.Bounds()
		c := image.Point{b.Dx()/2, b.Dy()/2}

		s.derived.CenterZenith  = centerValue(s.SunZenith, c)
		s.derived.CenterAzimuth = centerValue(s.SunAzimuth, c)
		if s.ViewZenith != nil && s.ViewAzimuth != nil {
			s.derived.CenterView = [2]float64{centerValue(s.ViewZenith, c), centerValue(s.ViewAzimuth, c)}
		}

		s.derived.RefElevation, _, _ = s.Elevation.FiniteRange()
		s.derived.MaxZenith = math.NaN()
		if _, max, n := s.SunZenith.FiniteRange(); n > 0 {
			s.derived.MaxZenith = max
		}

		if s.Geocoding != nil {
			lat, _ := s.Geocoding.PixelToLatLon(float64(c.X)+0.5, float64(c.Y)+0.5)
			if !math.IsNaN(lat) {
				s.derived.CenterLat, s.derived.HasLat = lat, true
			}
			s.derived.GridNorth = GridNorth(s.Geocoding, c)
		}
	})
	return s.derived
}

// centerValue is the value at the center pixel; if that is nodata, the
// median of the grid stands in.
func centerValue(g *emath.FloatGrid, c image.Point) float64 {
	if g == nil {
		return math.NaN()
	}
	if v := g.Sample(c.X, c.Y); emath.IsFinite(v) {
		return v
	}
	vals := g.FiniteValues()
	if len(vals) == 0 {
		return math.NaN()
	}
	sort.Float64s(vals)
	return stat.Quantile(0.5, stat.Empirical, vals, nil)
}

// MaxCloudTop is the highest cloud top to consider, in meters above sea level.
func (s *Scene)MaxCloudTop(cfg Config) float64 {
	if cfg.LatitudeDependentTop {
		if g := s.geometry(); g.HasLat {
			return CloudTopForLatitude(g.CenterLat)
		}
	}
	return cfg.MaxCloudTop
}

// CenterGeometry is the sun geometry shared by the whole scene, and the
// reference surface elevation.
func (s *Scene)CenterGeometry(cfg Config) Geometry {
	g := s.geometry()
	az := g.CenterAzimuth
	if cfg.UseApparentAzimuth {
		az = ApparentSunAzimuth(az, g.CenterView[1], g.CenterView[0])
	}
	return Geometry{
		Zenith:    g.CenterZenith,
		Azimuth:   az - g.GridNorth,
		Elevation: g.RefElevation,
	}
}

// PixelGeometry is the sun geometry and elevation at one pixel; false if
// any of it is nodata.
func (s *Scene)PixelGeometry(p image.Point, cfg Config) (Geometry, bool) {
	geom := Geometry{
		Zenith:    s.SunZenith.Sample(p.X, p.Y),
		Azimuth:   s.SunAzimuth.Sample(p.X, p.Y),
		Elevation: s.Elevation.Sample(p.X, p.Y),
	}
	if cfg.UseApparentAzimuth {
		geom.Azimuth = ApparentSunAzimuth(geom.Azimuth, s.ViewAzimuth.Sample(p.X, p.Y), s.ViewZenith.Sample(p.X, p.Y))
	}
	geom.Azimuth -= s.geometry().GridNorth
	return geom, geom.Valid()
}

// Reflectance is the brightness used for the shadow profile at p, per the
// configured mode: the first profile band, or the mean of all of them for
// multiband. NaN if there's no valid data.
func (s *Scene)Reflectance(p image.Point, cfg Config) float64 {
	if cfg.Mode != "multiband" || len(cfg.ProfileBands) == 1 {
		return s.Bands[cfg.ProfileBands[0]].Sample(p.X, p.Y)
	}
	vals := make([]float64, 0, len(cfg.ProfileBands))
	for _, name := range cfg.ProfileBands {
		v := s.Bands[name].Sample(p.X, p.Y)
		if !emath.IsFinite(v) {
			return math.NaN()
		}
		vals = append(vals, v)
	}
	return stat.Mean(vals, nil)
}

// CloudTopForLatitude is the climatological upper bound for cloud tops:
// high in the tropics, lower toward the poles.
func CloudTopForLatitude(lat float64) float64 {
	d := 90.0 - math.Abs(lat)
	return math.Ceil(0.5*d*d + 25.0*d + 5000.0)
}

// ApparentSunAzimuth corrects the sun azimuth for an off-nadir view, all
// angles in degrees.
func ApparentSunAzimuth(saa, vaa, vza float64) float64 {
	if math.IsNaN(vaa) || math.IsNaN(vza) {
		return saa
	}
	diff := saa - vaa
	if diff < 0  { diff += 180 }
	if diff > 90 { diff -= 90 }
	diff *= math.Tan(emath.Deg2Rad(vza))
	if vaa > 180 {
		diff = -diff
	}
	return saa + diff
}
