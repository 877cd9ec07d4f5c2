package cloudshadow

import(
	"fmt"
	"image"
	"image/color"
	"io/ioutil"
	"math"
	"os"
	"path/filepath"

	"golang.org/x/image/tiff"
	"gopkg.in/yaml.v2"

	"github.com/abworrall/cloudshadow/pkg/emath"
	"github.com/abworrall/cloudshadow/pkg/flags"
)

/* Example scene manifest; file paths are relative to the manifest ...

resolution: 20
flags:
  file: classif.tif
  bits: {water: 0, land: 1, cloud: 2, haze: 3, invalid: 6, cloud_buffer: 7}
bands:
  B8A: {file: b8a.tif, scale: 0.0001}
  B3:  {file: b3.tif, scale: 0.0001}
sunzenith:  {file: sza.tif, scale: 0.01}
sunazimuth: {file: saa.tif, scale: 0.01}
elevation:  {file: dem.tif, offset: -1000, nodata: 0}
geocoding:  {ullat: 45.0, ullon: 7.0, dlat: -0.00018, dlon: 0.00025}

Swath data comes with per pixel coordinates instead of a geocoding:

latitude:   {file: lat.tif, scale: 0.0001, offset: 40}
longitude:  {file: lon.tif, scale: 0.0001, offset: 5}

*/

// A RasterFile is a single band 8 or 16 bit TIFF; values are raw*scale + offset.
type RasterFile struct {
	File    string
	Scale   float64
	Offset  float64
	NoData  *float64  // raw value that means no data
}

// FlagFile maps flag names to the bit positions the upstream classifier used.
type FlagFile struct {
	File    string
	Bits    map[string]int
}

type ManifestGeocoding struct {
	ULLat, ULLon  float64
	DLat, DLon    float64
}

type SceneManifest struct {
	Resolution   float64
	Flags        FlagFile
	Bands        map[string]RasterFile
	SunZenith    RasterFile
	SunAzimuth   RasterFile
	ViewZenith   *RasterFile
	ViewAzimuth  *RasterFile
	Elevation    RasterFile
	Geocoding    *ManifestGeocoding
	Latitude     *RasterFile
	Longitude    *RasterFile
}

func (m SceneManifest)AsYaml() string {
	b, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Sprintf("# can't marshal manifest yaml: %v\n", err)
	}
	return string(b)
}

// LoadScene reads a manifest and every raster it names.
func LoadScene(filename string) (*Scene, error) {
	contents, err := ioutil.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("manifest read %s: %v", filename, err)
	}
	var m SceneManifest
	if err := yaml.Unmarshal(contents, &m); err != nil {
		return nil, fmt.Errorf("manifest parse %s: %v", filename, err)
	}
	return m.Load(filepath.Dir(filename))
}

// Load builds the scene, resolving raster paths against dir.
func (m SceneManifest)Load(dir string) (*Scene, error) {
	path := func(f string) string {
		if filepath.IsAbs(f) {
			return f
		}
		return filepath.Join(dir, f)
	}

	fr, err := loadFlags(path(m.Flags.File), m.Flags.Bits)
	if err != nil {
		return nil, err
	}
	s := NewScene(fr, m.Resolution)

	grid := func(rf RasterFile) (*emath.FloatGrid, error) {
		g, err := loadGrid(path(rf.File), rf)
		if err != nil {
			return nil, err
		}
		return &g, nil
	}

	for name, rf := range m.Bands {
		g, err := grid(rf)
		if err != nil {
			return nil, fmt.Errorf("band %s: %w", name, err)
		}
		s.Bands[name] = g
	}
	if s.SunZenith, err = grid(m.SunZenith); err != nil {
		return nil, fmt.Errorf("sunzenith: %w", err)
	}
	if s.SunAzimuth, err = grid(m.SunAzimuth); err != nil {
		return nil, fmt.Errorf("sunazimuth: %w", err)
	}
	if s.Elevation, err = grid(m.Elevation); err != nil {
		return nil, fmt.Errorf("elevation: %w", err)
	}
	if m.ViewZenith != nil {
		if s.ViewZenith, err = grid(*m.ViewZenith); err != nil {
			return nil, fmt.Errorf("viewzenith: %w", err)
		}
	}
	if m.ViewAzimuth != nil {
		if s.ViewAzimuth, err = grid(*m.ViewAzimuth); err != nil {
			return nil, fmt.Errorf("viewazimuth: %w", err)
		}
	}
	if (m.Latitude == nil) != (m.Longitude == nil) {
		return nil, fmt.Errorf("latitude and longitude come as a pair")
	}
	switch gc := m.Geocoding; {
	case gc != nil && m.Latitude != nil:
		return nil, fmt.Errorf("both a geocoding and latitude/longitude rasters")
	case gc != nil:
		b := fr.Bounds()
		s.Geocoding = NewAffineGeocoding(gc.ULLat, gc.ULLon, gc.DLat, gc.DLon, b.Dx(), b.Dy())
	case m.Latitude != nil:
		var gg GridGeocoding
		if gg.Lat, err = grid(*m.Latitude); err != nil {
			return nil, fmt.Errorf("latitude: %w", err)
		}
		if gg.Lon, err = grid(*m.Longitude); err != nil {
			return nil, fmt.Errorf("longitude: %w", err)
		}
		s.Geocoding = gg
	}

	return s, nil
}

func loadTIFF(filename string) (image.Image, error) {
	reader, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	img, err := tiff.Decode(reader)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %v", filename, err)
	}
	return img, nil
}

func rawValue(img image.Image, x, y int) uint16 {
	switch v := img.(type) {
	case *image.Gray16: return v.Gray16At(x, y).Y
	case *image.Gray:   return uint16(v.GrayAt(x, y).Y)
	default:            return color.Gray16Model.Convert(img.At(x, y)).(color.Gray16).Y
	}
}

func loadGrid(filename string, rf RasterFile) (emath.FloatGrid, error) {
	img, err := loadTIFF(filename)
	if err != nil {
		return emath.FloatGrid{}, err
	}
	scale := rf.Scale
	if scale == 0 {
		scale = 1
	}

	b := img.Bounds()
	g := emath.NewFloatGrid(b.Dx(), b.Dy())
	for y:=0; y<b.Dy(); y++ {
		for x:=0; x<b.Dx(); x++ {
			raw := rawValue(img, b.Min.X+x, b.Min.Y+y)
			if rf.NoData != nil && float64(raw) == *rf.NoData {
				g.Set(x, y, math.NaN())
				continue
			}
			g.Set(x, y, float64(raw)*scale + rf.Offset)
		}
	}
	return g, nil
}

// loadFlags reads an upstream classification raster, remaps its bits to
// ours, and applies the ingest rules.
func loadFlags(filename string, bits map[string]int) (*flags.Raster, error) {
	img, err := loadTIFF(filename)
	if err != nil {
		return nil, err
	}

	type mapping struct{ from uint16; to flags.Flag }
	mappings := []mapping{}
	if len(bits) == 0 {
		mappings = append(mappings, mapping{0xffff, 0xffff})
	}
	for name, bit := range bits {
		f, err := flags.ParseName(name)
		if err != nil {
			return nil, fmt.Errorf("flags %s: %v", filename, err)
		}
		if bit < 0 || bit > 15 {
			return nil, fmt.Errorf("flags %s: bit %d for %s out of range", filename, bit, name)
		}
		mappings = append(mappings, mapping{1 << uint(bit), f})
	}

	b := img.Bounds()
	fr := flags.NewRaster(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y:=0; y<b.Dy(); y++ {
		for x:=0; x<b.Dx(); x++ {
			raw := rawValue(img, b.Min.X+x, b.Min.Y+y)
			f := flags.Flag(0)
			for _, m := range mappings {
				if m.from == 0xffff {
					f = flags.Flag(raw)
				} else if raw & m.from != 0 {
					f |= m.to
				}
			}
			fr.Set(x, y, flags.Prepare(f))
		}
	}
	return fr, nil
}

// WriteFlagsTIFF writes the flags as a 16 bit grayscale TIFF, one bit per flag.
func WriteFlagsTIFF(fr *flags.Raster, filename string) error {
	b := fr.Bounds()
	img := image.NewGray16(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y:=b.Min.Y; y<b.Max.Y; y++ {
		for x:=b.Min.X; x<b.Max.X; x++ {
			img.SetGray16(x-b.Min.X, y-b.Min.Y, color.Gray16{Y: uint16(fr.At(x, y))})
		}
	}
	return writeTIFF(img, filename)
}

// WriteGridTIFF is the inverse of a RasterFile load: raw = (v-offset)/scale,
// with NaN written as the nodata value.
func WriteGridTIFF(g *emath.FloatGrid, rf RasterFile, filename string) error {
	scale := rf.Scale
	if scale == 0 {
		scale = 1
	}
	img := image.NewGray16(g.Bounds())
	for y:=0; y<g.Dy(); y++ {
		for x:=0; x<g.Dx(); x++ {
			v := g.Get(x, y)
			raw := 0.0
			if math.IsNaN(v) {
				if rf.NoData != nil {
					raw = *rf.NoData
				}
			} else {
				raw = math.Round((v - rf.Offset) / scale)
			}
			raw = math.Max(0, math.Min(raw, 0xffff))
			img.SetGray16(x, y, color.Gray16{Y: uint16(raw)})
		}
	}
	return writeTIFF(img, filename)
}

func writeTIFF(img image.Image, filename string) error {
	writer, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := tiff.Encode(writer, img, &tiff.Options{Compression: tiff.Deflate}); err != nil {
		writer.Close()
		return fmt.Errorf("encode %s: %v", filename, err)
	}
	return writer.Close()
}

// WriteCloudIDsTIFF writes the blob attribution per pixel, wrapped to 16 bits.
func WriteCloudIDsTIFF(ids []int, bounds image.Rectangle, filename string) error {
	img := image.NewGray16(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	for i, id := range ids {
		img.Pix[2*i]   = uint8(id >> 8)
		img.Pix[2*i+1] = uint8(id)
	}
	return writeTIFF(img, filename)
}
