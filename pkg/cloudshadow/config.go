package cloudshadow

import(
	"errors"
	"fmt"
	"io/ioutil"
	"runtime"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v2"
)

/* Example config file ...

mincloudbase: 100
maxcloudtop: 10000
latitudedependenttop: false
connectivity: 4
pathstrategy: center
shiftmode: blob
mode: landwater
clustering: true
clustercount: 4
profilebands: [B8A]
clusterbands: [B8A, B3]
tilesize: 256

*/

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Verbosity             int

	MinCloudBase          float64  // meters above the surface
	MaxCloudTop           float64  // meters above sea level
	LatitudeDependentTop  bool     // derive MaxCloudTop from the scene-center latitude
	Resolution            float64  // meters/pixel; 0 means use the scene's

	Connectivity          int      // 4 or 8, for clouds and for shadow regions
	PathStrategy          string   // center, pixel
	ShiftMode             string   // blob, bulk
	Mode                  string   // landwater, multiband, singleband
	UseApparentAzimuth    bool     // correct the sun azimuth for the viewing geometry

	ProfileBands          []string // bands used to find the darkest offset
	Clustering            bool
	ClusterCount          int
	ClusterIterations     int
	ClusterBands          []string

	GapFillThreshold      float64  // fraction of the 8 neighbours
	FragmentMinPixels     int
	GapKernelRadius       float64  // meters
	GapKernelInner        float64  // fraction of GapKernelRadius
	GapThreshold          float64  // reflectance difference vs. the ring that makes a gap

	ComputeMountainShadow bool
	SkipInvalidTiles      bool

	TileSize              int
	Workers               int

	// Values we figure out in Finalize
	pathStrategy          PathStrategy
}

func NewConfig() Config {
	return Config{
		MinCloudBase:      100,
		MaxCloudTop:       10000,
		Connectivity:      4,
		PathStrategy:      "center",
		ShiftMode:         "blob",
		Mode:              "landwater",
		ProfileBands:      []string{"B8A"},
		ClusterCount:      4,
		ClusterIterations: 30,
		ClusterBands:      []string{"B8A", "B3"},
		GapFillThreshold:  0.70,
		FragmentMinPixels: 4,
		GapKernelRadius:   1000,
		GapKernelInner:    0.8,
		GapThreshold:      -0.1,
		SkipInvalidTiles:  true,
		TileSize:          256,
		Workers:           runtime.NumCPU(),
	}
}

func newConfigFromYaml(b []byte) (Config, error) {
	c := NewConfig()
	if err := yaml.Unmarshal(b, &c); err != nil {
		return c, fmt.Errorf("parse config: %v", err)
	}
	return c, c.Finalize()
}

func LoadConfig(filename string) (Config, error) {
	contents, err := ioutil.ReadFile(filename)
	if err != nil {
		return NewConfig(), fmt.Errorf("config read %s: %v", filename, err)
	}
	return newConfigFromYaml(contents)
}

func (c Config)AsYaml() string {
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Sprintf("# can't marshal config yaml: %v\n", err)
	}
	return string(b)
}

// Finalize does sanity checks and other post-processing. Every problem is
// reported, not just the first; any of them is fatal for the run.
func (c *Config)Finalize() error {
	if c.PathStrategy == "" { c.PathStrategy = "center" }
	if c.ShiftMode == ""    { c.ShiftMode = "blob" }
	if c.Mode == ""         { c.Mode = "landwater" }
	if c.Workers <= 0       { c.Workers = runtime.NumCPU() }

	var err error
	bad := func(format string, args ...interface{}) {
		err = multierr.Append(err, fmt.Errorf(format, args...))
	}

	if c.MinCloudBase < 0 {
		bad("mincloudbase %.1f is negative", c.MinCloudBase)
	}
	if c.MaxCloudTop <= 0 && !c.LatitudeDependentTop {
		bad("maxcloudtop %.1f must be positive", c.MaxCloudTop)
	}
	if !c.LatitudeDependentTop && c.MinCloudBase > c.MaxCloudTop {
		bad("mincloudbase %.1f is above maxcloudtop %.1f", c.MinCloudBase, c.MaxCloudTop)
	}
	if top := CloudTopForLatitude(90); c.LatitudeDependentTop && c.MinCloudBase > top {
		bad("mincloudbase %.1f is above the lowest latitude cloud top %.1f", c.MinCloudBase, top)
	}
	if c.Resolution < 0 {
		bad("resolution %.2f is negative", c.Resolution)
	}
	if c.Connectivity != 4 && c.Connectivity != 8 {
		bad("connectivity must be 4 or 8, not %d", c.Connectivity)
	}
	if c.ClusterCount <= 0 {
		bad("clustercount must be positive, not %d", c.ClusterCount)
	}
	if c.ClusterIterations <= 0 {
		bad("clusteriterations must be positive, not %d", c.ClusterIterations)
	}
	if c.Clustering && len(c.ClusterBands) == 0 {
		bad("clustering needs at least one clusterbands entry")
	}
	if len(c.ProfileBands) == 0 {
		bad("profilebands is empty")
	}
	if c.GapFillThreshold <= 0 || c.GapFillThreshold > 1 {
		bad("gapfillthreshold %.2f outside (0,1]", c.GapFillThreshold)
	}
	if c.FragmentMinPixels < 0 {
		bad("fragmentminpixels %d is negative", c.FragmentMinPixels)
	}
	if c.GapKernelRadius <= 0 {
		bad("gapkernelradius %.1f must be positive", c.GapKernelRadius)
	}
	if c.GapKernelInner <= 0 || c.GapKernelInner >= 1 {
		bad("gapkernelinner %.2f outside (0,1)", c.GapKernelInner)
	}
	if c.TileSize <= 0 {
		bad("tilesize must be positive, not %d", c.TileSize)
	}

	switch c.ShiftMode {
	case "blob", "bulk":
	default:
		bad("no ShiftMode named '%s'", c.ShiftMode)
	}

	switch c.Mode {
	case "landwater", "multiband", "singleband":
	default:
		bad("no Mode named '%s'", c.Mode)
	}

	if ps, perr := c.GetPathStrategy(); perr != nil {
		err = multierr.Append(err, perr)
	} else {
		c.pathStrategy = ps
	}

	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

func (c Config)GetPathStrategy() (PathStrategy, error) {
	switch c.PathStrategy {
	case "center": return CenterPathStrategy{}, nil
	case "pixel":  return PixelPathStrategy{}, nil
	default:
		return nil, fmt.Errorf("no PathStrategy named '%s'", c.PathStrategy)
	}
}

// paths returns the finalized strategy, falling back to a lookup for
// configs that were built by hand and never finalized.
func (c Config)paths() PathStrategy {
	if c.pathStrategy != nil {
		return c.pathStrategy
	}
	if ps, err := c.GetPathStrategy(); err == nil {
		return ps
	}
	return CenterPathStrategy{}
}
