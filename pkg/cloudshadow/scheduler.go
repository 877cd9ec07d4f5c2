package cloudshadow

import(
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/abworrall/cloudshadow/internal/log"
	"github.com/abworrall/cloudshadow/pkg/flags"
)

// A Processor runs the shadow engine over a whole scene, tile by tile,
// with a pool of workers.
type Processor struct {
	Scene  *Scene
	Config Config
	RunID  string

	log    *zap.SugaredLogger
}

// NewProcessor validates the config and the scene together; any problem
// is fatal, and nothing has been computed yet.
func NewProcessor(s *Scene, cfg Config) (*Processor, error) {
	if err := cfg.Finalize(); err != nil {
		return nil, err
	}
	if err := s.Validate(cfg); err != nil {
		return nil, err
	}
	id := uuid.New().String()
	return &Processor{
		Scene:  s,
		Config: cfg,
		RunID:  id,
		log:    log.With("run", id),
	}, nil
}

// A Result is the stitched output of a run.
type Result struct {
	Flags    *flags.Raster
	CloudIDs []int       // per scene pixel, 0 where there is no shifted shadow
	Tiles    []TileDiagnostics
	Report   Report
}

// Run processes every tile. In bulk mode it first profiles every tile and
// reconciles a single offset for the scene, then runs the tiles with it.
func (p *Processor)Run(ctx context.Context) (*Result, error) {
	tStart := time.Now()
	cfg := p.Config
	bounds := p.Scene.Bounds()
	halo := HaloFor(p.Scene, cfg)
	tiles := PlanTiles(bounds, cfg.TileSize, halo)

	p.log.Infow("starting run", "scene", p.Scene.String(), "tiles", len(tiles), "halo", halo,
		"strategy", cfg.PathStrategy, "shiftmode", cfg.ShiftMode)

	bulkOffset, bulkFound := -1, false
	if cfg.ShiftMode == "bulk" {
		sums, err := p.profileTiles(ctx, tiles)
		if err != nil {
			return nil, err
		}
		bulkOffset, bulkFound = ReconcileProfiles(sums, cfg.Mode)
		p.log.Infow("bulk offset reconciled", "offset", bulkOffset, "found", bulkFound, "tiles", len(sums))
		if !bulkFound {
			bulkOffset = -1
		}
		for i := range tiles {
			tiles[i].BulkOffset = bulkOffset
		}
	}

	patches := make([]FlagPatch, len(tiles))
	coll := NewCollector(len(tiles))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for i := range tiles {
		i := i
		g.Go(func() error {
			patch, err := ProcessTile(gctx, p.Scene, tiles[i], cfg)
			if err != nil {
				return err
			}
			patches[i] = patch
			coll.Submit(patch.Diagnostics)
			p.log.Debugw("tile done", "tile", tiles[i].ID, "blobs", patch.Diagnostics.Blobs,
				"shifted", patch.Diagnostics.ShiftedPixels, "promoted", patch.Diagnostics.Promoted)
			return nil
		})
	}
	err := g.Wait()
	diags, dups := coll.Close()
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", p.RunID, err)
	}
	if dups > 0 {
		p.log.Warnw("duplicate tile diagnostics dropped", "count", dups)
	}

	res := &Result{
		Flags:    stitch(p.Scene, patches),
		CloudIDs: make([]int, bounds.Dx()*bounds.Dy()),
		Tiles:    diags,
	}
	for _, patch := range patches {
		r := patch.Tile.Rect
		for y:=r.Min.Y; y<r.Max.Y; y++ {
			copy(res.CloudIDs[y*bounds.Dx()+r.Min.X:y*bounds.Dx()+r.Max.X], patch.CloudIDs[(y-r.Min.Y)*r.Dx():(y-r.Min.Y+1)*r.Dx()])
		}
	}
	res.Report = p.newReport(res, tiles, halo, bulkOffset, time.Since(tStart))

	p.log.Infow("run done", "cloud_shadow", res.Report.Counts.CloudShadow, "elapsed", res.Report.Elapsed)
	return res, nil
}

// profileTiles is the first phase of a bulk run. The sums come back in
// tile order, so the merge is the same from run to run.
func (p *Processor)profileTiles(ctx context.Context, tiles []Tile) ([]*ProfileSums, error) {
	coll := NewCollector(len(tiles))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.Config.Workers)
	for i := range tiles {
		tile := tiles[i]
		g.Go(func() error {
			d, err := ProfileTile(gctx, p.Scene, tile, p.Config)
			if err != nil {
				return err
			}
			coll.Submit(d)
			return nil
		})
	}
	err := g.Wait()
	diags, _ := coll.Close()
	if err != nil {
		return nil, fmt.Errorf("run %s, profiling: %w", p.RunID, err)
	}

	sums := []*ProfileSums{}
	for _, d := range diags {
		if !d.Skipped && d.Sums != nil {
			sums = append(sums, d.Sums)
		}
	}
	return sums, nil
}

// stitch pastes the tile patches over the prepared input flags. Patches
// don't overlap, so the order doesn't matter.
func stitch(s *Scene, patches []FlagPatch) *flags.Raster {
	out := s.Flags.Copy()
	for i, f := range out.Pix {
		out.Pix[i] = flags.Prepare(f)
	}
	for _, patch := range patches {
		if patch.Flags != nil {
			out.Paste(patch.Flags)
		}
	}
	return out
}
