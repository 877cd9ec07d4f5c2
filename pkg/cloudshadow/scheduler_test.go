package cloudshadow

import(
	"context"
	"errors"
	"image"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/abworrall/cloudshadow/pkg/emath"
	"github.com/abworrall/cloudshadow/pkg/flags"
)

// Three clouds whose shadows cross tile boundaries at a tile size of 60
func tilingScene() *Scene {
	s := flatScene(240, 240, 30, 180)
	for _, r := range []image.Rectangle{
		image.Rect(40, 40, 46, 45),
		image.Rect(150, 100, 155, 107),
		image.Rect(100, 180, 104, 184),
	} {
		addCloud(s, r)
		darken(s, r.Add(image.Pt(0, 20)), testDark)
	}
	return s
}

func run(t *testing.T, s *Scene, cfg Config) *Result {
	t.Helper()
	p, err := NewProcessor(s, cfg)
	if err != nil {
		t.Fatalf("NewProcessor: %v", err)
	}
	res, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return res
}

func TestTilingInvariance(t *testing.T) {
	for _, strategy := range []string{"center", "pixel"} {
		cfg := testConfig()
		cfg.PathStrategy = strategy
		cfg.GapKernelRadius = 400

		cfg.TileSize = 1000
		whole := run(t, tilingScene(), cfg)
		if len(whole.Tiles) != 1 {
			t.Fatalf("expected a single tile, got %d", len(whole.Tiles))
		}
		if n := whole.Flags.Count(flags.CloudShadow); n == 0 {
			t.Fatalf("%s: no cloud shadow found at all", strategy)
		}

		for _, size := range []int{60, 77} {
			cfg.TileSize = size
			tiled := run(t, tilingScene(), cfg)
			if diff := cmp.Diff(whole.Flags.Pix, tiled.Flags.Pix); diff != "" {
				t.Errorf("%s, tile size %d: flags differ (-whole +tiled):\n%s", strategy, size, diff)
			}
			if diff := cmp.Diff(whole.CloudIDs, tiled.CloudIDs); diff != "" {
				t.Errorf("%s, tile size %d: cloud ids differ", strategy, size)
			}
		}
	}
}

func TestBulkMode(t *testing.T) {
	cfg := testConfig()
	cfg.ShiftMode = "bulk"
	cfg.GapKernelRadius = 400
	cfg.TileSize = 60

	res := run(t, tilingScene(), cfg)
	if got, want := res.Report.BulkOffset, 17; got != want {
		t.Errorf("bulk offset %d, want %d", got, want)
	}
	for _, r := range []image.Rectangle{
		image.Rect(40, 60, 46, 65),
		image.Rect(150, 120, 155, 127),
		image.Rect(100, 200, 104, 204),
	} {
		for y:=r.Min.Y; y<r.Max.Y; y++ {
			for x:=r.Min.X; x<r.Max.X; x++ {
				if !res.Flags.Has(x, y, flags.ShiftedCloudShadow | flags.CloudShadow) {
					t.Fatalf("(%d,%d) should be shadow, is %s", x, y, res.Flags.At(x, y))
				}
			}
		}
	}
	if err := res.Flags.CheckInvariants(); err != nil {
		t.Error(err)
	}
}

func TestBulkModeTilingInvariance(t *testing.T) {
	for _, strategy := range []string{"center", "pixel"} {
		cfg := testConfig()
		cfg.ShiftMode = "bulk"
		cfg.PathStrategy = strategy
		cfg.GapKernelRadius = 400

		cfg.TileSize = 1000
		whole := run(t, tilingScene(), cfg)
		if n := whole.Flags.Count(flags.ShiftedCloudShadow); n == 0 {
			t.Fatalf("%s: no shifted shadow found at all", strategy)
		}

		for _, size := range []int{50, 60, 77} {
			cfg.TileSize = size
			tiled := run(t, tilingScene(), cfg)
			if got, want := tiled.Report.BulkOffset, whole.Report.BulkOffset; got != want {
				t.Errorf("%s, tile size %d: bulk offset %d, whole scene %d", strategy, size, got, want)
			}
			if diff := cmp.Diff(whole.Flags.Pix, tiled.Flags.Pix); diff != "" {
				t.Errorf("%s, tile size %d: flags differ (-whole +tiled):\n%s", strategy, size, diff)
			}
			if diff := cmp.Diff(whole.CloudIDs, tiled.CloudIDs); diff != "" {
				t.Errorf("%s, tile size %d: cloud ids differ", strategy, size)
			}
		}
	}
}

func TestBulkModeWithoutMinimum(t *testing.T) {
	// Nothing dark anywhere: no tile may fall back to an offset of its own
	scene := func() *Scene {
		s := flatScene(240, 240, 30, 180)
		addCloud(s, image.Rect(40, 40, 46, 45))
		addCloud(s, image.Rect(150, 100, 155, 107))
		return s
	}
	cfg := testConfig()
	cfg.ShiftMode = "bulk"
	for _, size := range []int{1000, 60} {
		cfg.TileSize = size
		res := run(t, scene(), cfg)
		if res.Report.BulkOffset != -1 {
			t.Errorf("tile size %d: bulk offset %d, want -1", size, res.Report.BulkOffset)
		}
		for _, bit := range []flags.Flag{flags.ShiftedCloudShadow, flags.CloudShadow} {
			if n := res.Flags.Count(bit); n != 0 {
				t.Errorf("tile size %d: %d %s pixels, want none", size, n, bit)
			}
		}
	}
}

func TestRunReport(t *testing.T) {
	s := scenarioScene()
	s.Geocoding = NewAffineGeocoding(45, 7, -0.00018, 0.00025, 120, 120)
	cfg := testConfig()
	cfg.TileSize = 50

	res := run(t, s, cfg)
	r := res.Report
	if r.Tiles != 9 || r.PathLength == 0 || r.RunID == "" || len(r.GeoBounds) != 4 {
		t.Errorf("report: %+v", r)
	}
	if r.Counts.Cloud != 25 || r.Counts.CloudShadow == 0 {
		t.Errorf("counts: %+v", r.Counts)
	}
	if !strings.Contains(r.AsYaml(), "runid: "+r.RunID) {
		t.Errorf("yaml:\n%s", r.AsYaml())
	}
	if len(res.Tiles) != 9 {
		t.Errorf("%d tile diagnostics, want 9", len(res.Tiles))
	}
}

func TestRunCancelled(t *testing.T) {
	p, err := NewProcessor(scenarioScene(), testConfig())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}

func TestConfigValidation(t *testing.T) {
	cfg := NewConfig()
	cfg.Connectivity = 6
	cfg.PathStrategy = "diagonal"
	cfg.GapFillThreshold = 1.5

	err := cfg.Finalize()
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("got %v, want ErrInvalidConfig", err)
	}
	for _, want := range []string{"connectivity", "diagonal", "gapfillthreshold"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q doesn't mention %s", err, want)
		}
	}

	if _, err := NewProcessor(scenarioScene(), cfg); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("NewProcessor accepted a bad config: %v", err)
	}
}

func TestConfigValidationLatitudeTop(t *testing.T) {
	tests := []struct{
		base   float64
		wantOK bool
	}{
		{4000, true},
		{5000, true},
		{6000, false},
	}
	for _, test := range tests {
		cfg := NewConfig()
		cfg.LatitudeDependentTop = true
		cfg.MaxCloudTop = 0
		cfg.MinCloudBase = test.base
		err := cfg.Finalize()
		if (err == nil) != test.wantOK {
			t.Errorf("base %.0f: got %v", test.base, err)
		}
		if err != nil && !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("base %.0f: got %v, want ErrInvalidConfig", test.base, err)
		}
	}
}

func TestConfigFromYaml(t *testing.T) {
	cfg, err := newConfigFromYaml([]byte("pathstrategy: pixel\nmaxcloudtop: 3000\nprofilebands: [B4, B8A]\n"))
	if err != nil {
		t.Fatal(err)
	}
	got := []interface{}{cfg.PathStrategy, cfg.MaxCloudTop, cfg.ProfileBands, cfg.Connectivity}
	want := []interface{}{"pixel", 3000.0, []string{"B4", "B8A"}, 4}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	if _, ok := cfg.paths().(PixelPathStrategy); !ok {
		t.Errorf("path strategy is %T", cfg.paths())
	}

	if _, err := newConfigFromYaml([]byte("shiftmode: sideways\n")); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("got %v, want ErrInvalidConfig", err)
	}
}

func TestSceneValidation(t *testing.T) {
	s := scenarioScene()
	s.Elevation = grid(emath.NewFloatGrid(10, 10))
	delete(s.Bands, "B8A")

	err := s.Validate(testConfig())
	if !errors.Is(err, ErrSceneMismatch) {
		t.Fatalf("got %v, want ErrSceneMismatch", err)
	}
	for _, want := range []string{"elevation is 10x10", "band B8A is missing"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q doesn't mention %q", err, want)
		}
	}
}

func TestCollector(t *testing.T) {
	c := NewCollector(4)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			c.Submit(TileDiagnostics{TileID: id % 10, Blobs: id})
		}(i)
	}
	wg.Wait()

	diags, dups := c.Close()
	if len(diags) != 10 || dups != 10 {
		t.Errorf("got %d entries and %d duplicates", len(diags), dups)
	}
	for i, d := range diags {
		if d.TileID != i {
			t.Errorf("entry %d is for tile %d", i, d.TileID)
		}
	}
}

func TestLatitudeHelpers(t *testing.T) {
	if got := CloudTopForLatitude(90); got != 5000 {
		t.Errorf("pole: %f", got)
	}
	if got := CloudTopForLatitude(0); got != 11300 {
		t.Errorf("equator: %f", got)
	}
	if got := ApparentSunAzimuth(150, 100, 0); got != 150 {
		t.Errorf("nadir view changed the azimuth to %f", got)
	}
}
