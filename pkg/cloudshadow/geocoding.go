package cloudshadow

import(
	"fmt"
	"image"
	"math"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"github.com/abworrall/cloudshadow/pkg/emath"
)

// Earth radius used for cast distances; the height of the reference
// surface is added on top.
const shadowEarthRadius = 6372000.0

// A Geocoding maps between pixel positions and geographic coordinates.
// Pixel (x,y) covers [x,x+1)x[y,y+1); its center is (x+0.5, y+0.5).
type Geocoding interface {
	PixelToLatLon(x, y float64) (lat, lon float64)
	LatLonToPixel(lat, lon float64) (x, y float64, ok bool)
}

// AffineGeocoding is for rasters on a regular lat/lon grid.
type AffineGeocoding struct {
	ToGeo  emath.Aff3 // (x,y) -> (lon,lat)
	Width  int
	Height int
}

// NewAffineGeocoding builds a geocoding from the upper-left corner and the
// per-pixel steps; dLat is negative for the usual north-up raster.
func NewAffineGeocoding(ulLat, ulLon, dLat, dLon float64, width, height int) AffineGeocoding {
	return AffineGeocoding{
		ToGeo:  emath.Identity().Translate(ulLon, ulLat).Scale(dLon, dLat),
		Width:  width,
		Height: height,
	}
}

func (ag AffineGeocoding)PixelToLatLon(x, y float64) (float64, float64) {
	lon, lat := ag.ToGeo.Apply(x, y)
	return lat, lon
}

func (ag AffineGeocoding)LatLonToPixel(lat, lon float64) (float64, float64, bool) {
	inv, ok := ag.ToGeo.Invert()
	if !ok {
		return 0, 0, false
	}
	x, y := inv.Apply(lon, lat)
	in := x >= 0 && y >= 0 && x < float64(ag.Width) && y < float64(ag.Height)
	return x, y, in
}

// GridGeocoding carries a latitude and a longitude for every pixel, as
// delivered alongside swath data.
type GridGeocoding struct {
	Lat *emath.FloatGrid
	Lon *emath.FloatGrid
}

func (gg GridGeocoding)PixelToLatLon(x, y float64) (float64, float64) {
	ix, iy := int(math.Floor(x)), int(math.Floor(y))
	return gg.Lat.Sample(ix, iy), gg.Lon.Sample(ix, iy)
}

// LatLonToPixel returns the center of the pixel whose coordinates are
// closest; it is a full search, so don't call it per pixel.
func (gg GridGeocoding)LatLonToPixel(lat, lon float64) (float64, float64, bool) {
	best, bx, by := math.MaxFloat64, -1, -1
	target := orb.Point{lon, lat}
	for y:=0; y<gg.Lat.Dy(); y++ {
		for x:=0; x<gg.Lat.Dx(); x++ {
			p := orb.Point{gg.Lon.Get(x,y), gg.Lat.Get(x,y)}
			if math.IsNaN(p[0]) || math.IsNaN(p[1]) {
				continue
			}
			if d := geo.Distance(p, target); d < best {
				best, bx, by = d, x, y
			}
		}
	}
	if bx < 0 {
		return 0, 0, false
	}
	return float64(bx) + 0.5, float64(by) + 0.5, true
}

func pixelPoint(g Geocoding, p image.Point) orb.Point {
	lat, lon := g.PixelToLatLon(float64(p.X)+0.5, float64(p.Y)+0.5)
	return orb.Point{lon, lat}
}

// GridNorth is the compass bearing (degrees) of the raster's "up" direction
// at pixel p; 0 for a north-up raster, or when it can't be worked out.
func GridNorth(g Geocoding, p image.Point) float64 {
	if g == nil {
		return 0
	}
	latA, lonA := g.PixelToLatLon(float64(p.X)+0.5, float64(p.Y)+1.0)
	latB, lonB := g.PixelToLatLon(float64(p.X)+0.5, float64(p.Y))
	for _, v := range []float64{latA, lonA, latB, lonB} {
		if math.IsNaN(v) {
			return 0
		}
	}
	if latA == latB && lonA == lonB {
		return 0
	}
	return geo.Bearing(orb.Point{lonA, latA}, orb.Point{lonB, latB})
}

// GeoBounds is the lat/lon box around the corners and center of a pixel rectangle
func GeoBounds(g Geocoding, r image.Rectangle) orb.Bound {
	pts := []image.Point{r.Min, {r.Max.X-1, r.Min.Y}, {r.Min.X, r.Max.Y-1}, r.Max.Sub(image.Pt(1,1)), RectCenter(r)}
	b := pixelPoint(g, pts[0]).Bound()
	for _, p := range pts[1:] {
		b = b.Extend(pixelPoint(g, p))
	}
	return b
}

// groundDistance is the distance in meters between two pixel centers: great
// circle over a sphere raised to the reference surface when there is a
// geocoding, flat pixel distance otherwise.
func groundDistance(g Geocoding, p0, p1 image.Point, res, refElevation float64) float64 {
	if g != nil {
		a, b := pixelPoint(g, p0), pixelPoint(g, p1)
		if !math.IsNaN(a[0]) && !math.IsNaN(a[1]) && !math.IsNaN(b[0]) && !math.IsNaN(b[1]) {
			radius := shadowEarthRadius
			if !math.IsNaN(refElevation) {
				radius += refElevation
			}
			return geo.DistanceHaversine(a, b) * radius / orb.EarthRadius
		}
	}
	dx, dy := float64(p1.X-p0.X), float64(p1.Y-p0.Y)
	return math.Hypot(dx, dy) * res
}

func RectCenter(b image.Rectangle) image.Point {
	return image.Point{(b.Min.X + b.Max.X) / 2, (b.Min.Y + b.Max.Y) / 2}
}

// GrowRectangle extends r so that it contains the pixel p. The zero
// rectangle grows into the single pixel.
func GrowRectangle(r image.Rectangle, p image.Point) image.Rectangle {
	pix := image.Rectangle{Min: p, Max: p.Add(image.Pt(1,1))}
	if r.Empty() {
		return pix
	}
	return r.Union(pix)
}

// ParseLatLon parses "lat,lon" into a point.
func ParseLatLon(s string) (orb.Point, error) {
	var lat, lon float64
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%f,%f", &lat, &lon); err != nil {
		return orb.Point{}, fmt.Errorf("'%s' is not lat,lon: %v", s, err)
	}
	if math.Abs(lat) > 90 || math.Abs(lon) > 180 {
		return orb.Point{}, fmt.Errorf("'%s' is out of range", s)
	}
	return orb.Point{lon, lat}, nil
}
