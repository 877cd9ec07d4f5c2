package cloudshadow

import(
	"context"
	"fmt"
	"image"
	"math"

	"github.com/abworrall/cloudshadow/pkg/flags"
)

// A Tile is one unit of work: the pixels it writes (Rect), and how far
// past them (Halo) it reads.
type Tile struct {
	ID         int
	Rect       image.Rectangle
	Halo       int
	BulkOffset int  // scene-wide offset for bulk mode; -1 if there isn't one
}

func (t Tile)String() string {
	return fmt.Sprintf("Tile[%d %s +%d]", t.ID, t.Rect, t.Halo)
}

// Window is the tile grown by its halo, clipped to the scene.
func (t Tile)Window(bounds image.Rectangle) image.Rectangle {
	return t.Rect.Inset(-t.Halo).Intersect(bounds)
}

// HaloFor is how many pixels a tile needs to see past its own edge for
// every cloud in the tile to find its shadow, and for the gap detector to
// see its whole ring.
func HaloFor(s *Scene, cfg Config) int {
	res := s.resolution(cfg)
	radius, _ := GapKernel(cfg, res)
	halo := int(math.Ceil(SearchBorder(s, cfg))) + int(math.Ceil(radius)) + 2

	b := s.Bounds()
	return min(halo, max(b.Dx(), b.Dy()))
}

// PlanTiles cuts the bounds into tiles of (at most) size x size, in raster order.
func PlanTiles(bounds image.Rectangle, size, halo int) []Tile {
	tiles := []Tile{}
	for y:=bounds.Min.Y; y<bounds.Max.Y; y+=size {
		for x:=bounds.Min.X; x<bounds.Max.X; x+=size {
			r := image.Rect(x, y, x+size, y+size).Intersect(bounds)
			tiles = append(tiles, Tile{ID: len(tiles), Rect: r, Halo: halo, BulkOffset: -1})
		}
	}
	return tiles
}

// TileDiagnostics is what a tile reports back besides its flags.
type TileDiagnostics struct {
	TileID         int
	Skipped        bool     // the whole window was invalid
	Blobs          int
	Aggregate      Profile  // over the cloud pixels of the tile proper
	Sums           *ProfileSums  // the raw sums behind Aggregate
	Offset         int      // bulk offset used; -1 in blob mode
	EmptyPaths     int
	NoMinimum      int
	ShiftedPixels  int
	Unclustered    int
	GapFilled      int
	GatingApplied  bool
	Promoted       int
	Discarded      int
	MountainShadow int
}

// A FlagPatch is the output of one tile: flags for the tile rect (not the
// halo), and the ID of the blob each shifted shadow pixel came from.
type FlagPatch struct {
	Tile        Tile
	Flags       *flags.Raster
	CloudIDs    []int
	Diagnostics TileDiagnostics
}

// tileContext is the working state of one tile; nothing in it is shared.
type tileContext struct {
	scene     *Scene
	cfg       Config
	tile      Tile
	res       float64
	top       float64

	flags     *flags.Raster  // the window
	cloudIDs  []int          // per window pixel
	seg       *Segmentation
	paths     PathSource
	aggregate *ProfileSums
	diag      TileDiagnostics
}

func newTileContext(s *Scene, tile Tile, cfg Config) *tileContext {
	win := tile.Window(s.Bounds())
	fr := s.Flags.Crop(win)
	for i, f := range fr.Pix {
		fr.Pix[i] = flags.Prepare(f)
	}
	return &tileContext{
		scene:     s,
		cfg:       cfg,
		tile:      tile,
		res:       s.resolution(cfg),
		top:       s.MaxCloudTop(cfg),
		flags:     fr,
		cloudIDs:  make([]int, win.Dx()*win.Dy()),
		aggregate: &ProfileSums{},
		diag:      TileDiagnostics{TileID: tile.ID, Offset: -1},
	}
}

// ProcessTile runs the whole shadow pipeline over one tile window, and
// returns the result for the tile rect. The context is checked between
// passes; a cancelled tile returns no patch.
func ProcessTile(ctx context.Context, s *Scene, tile Tile, cfg Config) (FlagPatch, error) {
	tc := newTileContext(s, tile, cfg)

	if cfg.SkipInvalidTiles && tc.flags.All(flags.Invalid) {
		tc.diag.Skipped = true
		return tc.patch(), nil
	}

	passes := []struct{
		name string
		run  func()
	}{
		{"mountain", func() {
			if cfg.ComputeMountainShadow {
				tc.diag.MountainShadow = tc.flagMountainShadow()
			}
		}},
		{"segment", func() {
			tc.seg = SegmentClouds(tc.flags, cfg.Connectivity)
			tc.diag.Blobs = len(tc.seg.Blobs)
			tc.paths = cfg.paths().Paths(s, cfg)
		}},
		{"assign", func() {
			if cfg.ShiftMode == "bulk" {
				tc.assignBulk()
			} else {
				tc.assignBlobs()
			}
			tc.diag.Aggregate = tc.aggregate.profile()
			tc.diag.Sums = tc.aggregate
		}},
		{"cluster", func() {
			if cfg.Clustering {
				for _, b := range tc.seg.Blobs {
					tc.diag.Unclustered += tc.clusterBlob(b)
				}
			}
		}},
		{"refine", tc.refine},
	}

	for _, pass := range passes {
		if err := ctx.Err(); err != nil {
			return FlagPatch{}, fmt.Errorf("tile %d, before %s: %w", tile.ID, pass.name, err)
		}
		pass.run()
	}

	return tc.patch(), nil
}

// ProfileTile is the first half of a bulk run: it only works out the
// sums over the cloud pixels of the tile rect, for ReconcileProfiles.
func ProfileTile(ctx context.Context, s *Scene, tile Tile, cfg Config) (TileDiagnostics, error) {
	tc := newTileContext(s, tile, cfg)
	if cfg.SkipInvalidTiles && tc.flags.All(flags.Invalid) {
		tc.diag.Skipped = true
		return tc.diag, nil
	}
	if err := ctx.Err(); err != nil {
		return tc.diag, fmt.Errorf("tile %d: %w", tile.ID, err)
	}

	tc.seg = SegmentClouds(tc.flags, cfg.Connectivity)
	tc.diag.Blobs = len(tc.seg.Blobs)
	tc.paths = cfg.paths().Paths(s, cfg)

	pixels := []image.Point{}
	for _, b := range tc.seg.Blobs {
		for _, p := range b.Pixels {
			if p.In(tile.Rect) {
				pixels = append(pixels, p)
			}
		}
	}
	tc.profilePixels(pixels)
	tc.diag.Aggregate = tc.aggregate.profile()
	tc.diag.Sums = tc.aggregate
	return tc.diag, nil
}

func (tc *tileContext)patch() FlagPatch {
	r := tc.tile.Rect
	ids := make([]int, r.Dx()*r.Dy())
	for y:=r.Min.Y; y<r.Max.Y; y++ {
		for x:=r.Min.X; x<r.Max.X; x++ {
			ids[(y-r.Min.Y)*r.Dx() + (x-r.Min.X)] = tc.cloudID(image.Point{x, y})
		}
	}
	return FlagPatch{
		Tile:        tc.tile,
		Flags:       tc.flags.Crop(r),
		CloudIDs:    ids,
		Diagnostics: tc.diag,
	}
}
