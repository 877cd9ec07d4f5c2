// mkscene writes a synthetic scene (clouds over a hill, with their true
// shadows darkened into the reflectance bands) that cloudshadow can read.
package main

import(
	"flag"
	"image"
	"io/ioutil"
	"math"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/abworrall/cloudshadow/internal/log"
	"github.com/abworrall/cloudshadow/pkg/cloudshadow"
	"github.com/abworrall/cloudshadow/pkg/emath"
	"github.com/abworrall/cloudshadow/pkg/flags"
)

var(
	fOutputDir string
	fSize int
	fClouds int
	fSeed int64
	fZenith float64
	fAzimuth float64
	fResolution float64
	fHill float64
	fLat float64
	fLon float64
)

func init() {
	flag.StringVar(&fOutputDir, "o", "scene", "directory to write the scene into")
	flag.IntVar(&fSize, "size", 512, "width and height, in pixels")
	flag.IntVar(&fClouds, "clouds", 12, "how many clouds")
	flag.Int64Var(&fSeed, "seed", 1, "random seed")
	flag.Float64Var(&fZenith, "sza", 40, "sun zenith, degrees")
	flag.Float64Var(&fAzimuth, "saa", 150, "sun azimuth, degrees")
	flag.Float64Var(&fResolution, "res", 20, "meters per pixel")
	flag.Float64Var(&fHill, "hill", 800, "height of the hill in the middle, meters")
	flag.Float64Var(&fLat, "lat", 45, "latitude of the upper left corner")
	flag.Float64Var(&fLon, "lon", 7, "longitude of the upper left corner")
	flag.Parse()

	if err := log.Init(false); err != nil {
		panic(err)
	}
}

type cloud struct {
	center  image.Point
	rx, ry  float64
	height  float64
}

func (c cloud)contains(p image.Point) bool {
	dx, dy := float64(p.X-c.center.X)/c.rx, float64(p.Y-c.center.Y)/c.ry
	return dx*dx + dy*dy <= 1
}

func main() {
	defer log.Sync()
	rng := rand.New(rand.NewSource(fSeed))
	n := fSize
	bounds := image.Rect(0, 0, n, n)

	elev := emath.NewFloatGrid(n, n)
	for y:=0; y<n; y++ {
		for x:=0; x<n; x++ {
			dx, dy := float64(x-n/2), float64(y-n/2)
			sigma := float64(n) / 6
			elev.Set(x, y, 200 + fHill*math.Exp(-(dx*dx+dy*dy)/(2*sigma*sigma)))
		}
	}

	clouds := []cloud{}
	for i := 0; i < fClouds; i++ {
		clouds = append(clouds, cloud{
			center: image.Pt(rng.Intn(n), rng.Intn(n)),
			rx:     3 + rng.Float64()*12,
			ry:     3 + rng.Float64()*12,
			height: 800 + rng.Float64()*3000,
		})
	}

	fr := flags.NewRaster(bounds)
	b8a := emath.NewFloatGrid(n, n)
	b3 := emath.NewFloatGrid(n, n)
	for y:=0; y<n; y++ {
		for x:=0; x<n; x++ {
			f, r := flags.Land, 0.30
			if x < n/8 {
				f, r = flags.Water, 0.05
			}
			fr.Set(x, y, f)
			b8a.Set(x, y, r + rng.NormFloat64()*0.01)
			b3.Set(x, y, r*0.4 + rng.NormFloat64()*0.005)
		}
	}

	// Shadows first, so that clouds cover any shadow under them
	for _, c := range clouds {
		for y:=0; y<n; y++ {
			for x:=0; x<n; x++ {
				p := image.Pt(x, y)
				if !c.contains(p) {
					continue
				}
				g := cloudshadow.Geometry{Zenith: fZenith, Azimuth: fAzimuth, Elevation: elev.Get(x, y)}
				d := cloudshadow.Displacement(g, c.height, fResolution)
				q := p.Add(roundVec(d.X, d.Y))
				if q.In(bounds) {
					b8a.Set(q.X, q.Y, b8a.Get(q.X, q.Y) * 0.3)
					b3.Set(q.X, q.Y, b3.Get(q.X, q.Y) * 0.4)
				}
			}
		}
	}
	for _, c := range clouds {
		for y:=0; y<n; y++ {
			for x:=0; x<n; x++ {
				if c.contains(image.Pt(x, y)) {
					fr.Set(x, y, fr.At(x, y) | flags.Cloud)
					b8a.Set(x, y, 0.75 + rng.Float64()*0.1)
					b3.Set(x, y, 0.70 + rng.Float64()*0.1)
				}
			}
		}
	}

	sza := emath.NewFilledGrid(n, n, fZenith)
	saa := emath.NewFilledGrid(n, n, fAzimuth)

	if err := os.MkdirAll(fOutputDir, 0755); err != nil {
		log.Fatalf("%v", err)
	}
	out := func(f string) string { return filepath.Join(fOutputDir, f) }

	nodata := 0.0
	m := cloudshadow.SceneManifest{
		Resolution: fResolution,
		Flags:      cloudshadow.FlagFile{File: "flags.tif"},
		Bands: map[string]cloudshadow.RasterFile{
			"B8A": {File: "b8a.tif", Scale: 0.0001},
			"B3":  {File: "b3.tif", Scale: 0.0001},
		},
		SunZenith:  cloudshadow.RasterFile{File: "sza.tif", Scale: 0.01},
		SunAzimuth: cloudshadow.RasterFile{File: "saa.tif", Scale: 0.01},
		Elevation:  cloudshadow.RasterFile{File: "dem.tif", Scale: 1, Offset: -1000, NoData: &nodata},
		Geocoding:  &cloudshadow.ManifestGeocoding{ULLat: fLat, ULLon: fLon, DLat: -fResolution/111000, DLon: fResolution/(111000*math.Cos(emath.Deg2Rad(fLat)))},
	}

	if err := cloudshadow.WriteFlagsTIFF(fr, out(m.Flags.File)); err != nil {
		log.Fatalf("%v", err)
	}
	grids := []struct{
		g  *emath.FloatGrid
		rf cloudshadow.RasterFile
	}{
		{&b8a, m.Bands["B8A"]},
		{&b3, m.Bands["B3"]},
		{&sza, m.SunZenith},
		{&saa, m.SunAzimuth},
		{&elev, m.Elevation},
	}
	for _, gr := range grids {
		if err := cloudshadow.WriteGridTIFF(gr.g, gr.rf, out(gr.rf.File)); err != nil {
			log.Fatalf("%v", err)
		}
	}

	manifest := out("scene.yaml")
	if err := ioutil.WriteFile(manifest, []byte(m.AsYaml()), 0644); err != nil {
		log.Fatalf("%v", err)
	}
	log.Infow("scene written", "manifest", manifest, "size", n, "clouds", len(clouds))
	if err := fr.SaveQuicklook("input "+manifest, out("input.png")); err != nil {
		log.Warnf("quicklook: %v", err)
	}
}

func roundVec(x, y float64) image.Point { return image.Pt(int(math.Round(x)), int(math.Round(y))) }
