package cloudshadow

import(
	"fmt"
	"io/ioutil"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/abworrall/cloudshadow/pkg/flags"
)

// A Report summarizes a run; it is written out as YAML next to the flags.
type Report struct {
	RunID         string
	Scene         string
	GeoBounds     []float64 `yaml:",flow"` // minlon, minlat, maxlon, maxlat; empty without a geocoding
	Tiles         int
	TileSize      int
	Halo          int
	SkippedTiles  int

	PathStrategy  string
	ShiftMode     string
	Mode          string
	Geometry      string   // center sun geometry and reference elevation
	CloudTop      float64
	SearchBorder  float64
	PathLength    int      // of the center path
	BulkOffset    int

	Counts        ReportCounts
	Elapsed       string
}

type ReportCounts struct {
	Cloud          int
	Potential      int
	Shifted        int
	Belt           int
	CloudShadow    int
	MountainShadow int
	Invalid        int

	Blobs          int
	EmptyPaths     int
	NoMinimum      int
	Unclustered    int
	Promoted       int
	Discarded      int
}

func (p *Processor)newReport(res *Result, tiles []Tile, halo, bulkOffset int, elapsed time.Duration) Report {
	s, cfg := p.Scene, p.Config
	g := s.CenterGeometry(cfg)
	centerPath := CenterPathStrategy{}.Paths(s, cfg).(sharedPath).path

	r := Report{
		RunID:        p.RunID,
		Scene:        s.String(),
		Tiles:        len(tiles),
		TileSize:     cfg.TileSize,
		Halo:         halo,
		PathStrategy: cfg.PathStrategy,
		ShiftMode:    cfg.ShiftMode,
		Mode:         cfg.Mode,
		Geometry:     g.String(),
		CloudTop:     s.MaxCloudTop(cfg),
		SearchBorder: SearchBorder(s, cfg),
		PathLength:   centerPath.Len(),
		BulkOffset:   bulkOffset,
		Elapsed:      elapsed.Round(time.Millisecond).String(),
	}
	if s.Geocoding != nil {
		b := GeoBounds(s.Geocoding, s.Bounds())
		r.GeoBounds = []float64{b.Min.Lon(), b.Min.Lat(), b.Max.Lon(), b.Max.Lat()}
	}

	fr := res.Flags
	r.Counts = ReportCounts{
		Cloud:          fr.Count(flags.Cloud),
		Potential:      fr.Count(flags.PotentialCloudShadow),
		Shifted:        fr.Count(flags.ShiftedCloudShadow),
		Belt:           fr.Count(flags.ShadowBelt),
		CloudShadow:    fr.Count(flags.CloudShadow),
		MountainShadow: fr.Count(flags.MountainShadow),
		Invalid:        fr.Count(flags.Invalid),
	}
	for _, d := range res.Tiles {
		if d.Skipped {
			r.SkippedTiles++
		}
		r.Counts.Blobs       += d.Blobs
		r.Counts.EmptyPaths  += d.EmptyPaths
		r.Counts.NoMinimum   += d.NoMinimum
		r.Counts.Unclustered += d.Unclustered
		r.Counts.Promoted    += d.Promoted
		r.Counts.Discarded   += d.Discarded
	}
	return r
}

func (r Report)AsYaml() string {
	b, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Sprintf("# can't marshal report yaml: %v\n", err)
	}
	return string(b)
}

func (r Report)Save(filename string) error {
	if err := ioutil.WriteFile(filename, []byte(r.AsYaml()), 0644); err != nil {
		return fmt.Errorf("report write %s: %v", filename, err)
	}
	return nil
}
