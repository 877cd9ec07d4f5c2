package cloudshadow

import(
	"image"
	"math"

	"github.com/abworrall/cloudshadow/pkg/emath"
	"github.com/abworrall/cloudshadow/pkg/flags"
)

// castHeight is how high (meters above the path's reference surface) a
// cloud at `cloud` has to be for its shadow to land on `target`. False if
// the target elevation is unknown, or the sun is overhead.
func (tc *tileContext)castHeight(cloud, target image.Point, g Geometry) (float64, bool) {
	tanZ := math.Tan(emath.Deg2Rad(g.Zenith))
	if tanZ < 1e-9 {
		return 0, false
	}
	elev := tc.scene.Elevation.Sample(target.X, target.Y)
	if !emath.IsFinite(elev) {
		return 0, false
	}
	d := groundDistance(tc.scene.Geocoding, cloud, target, tc.res, g.Elevation)
	return d/tanZ + (elev - g.Elevation), true
}

// heightOK says whether a shadow on `target` fits a cloud between the
// minimum base and the maximum top. Rasterizing the path moves a target by
// up to a pixel, so the range gets that much slack.
func (tc *tileContext)heightOK(cloud, target image.Point, g Geometry) bool {
	h, ok := tc.castHeight(cloud, target, g)
	if !ok {
		return false
	}
	slack := tc.res / math.Tan(emath.Deg2Rad(g.Zenith))
	return h >= tc.cfg.MinCloudBase - slack && h <= tc.top - g.Elevation + slack
}

// profilePixels shifts every cloud pixel along its shadow path, marks the
// places the shadow could fall, and averages their reflectance per offset.
// Cloud pixels inside the tile proper also feed the tile's aggregate.
func (tc *tileContext)profilePixels(pixels []image.Point) Profile {
	acc := &ProfileSums{}
	for _, p := range pixels {
		sp, ok := tc.paths.PathAt(p)
		if !ok {
			tc.diag.EmptyPaths++
			continue
		}

		cf := tc.flags.At(p.X, p.Y)
		acc.countCloud(cf)
		acc.reach(sp.Len())
		inTile := p.In(tc.tile.Rect)
		if inTile {
			tc.aggregate.countCloud(cf)
			tc.aggregate.reach(sp.Len())
		}

		for k, off := range sp.Offsets {
			q := p.Add(off)
			f := tc.flags.At(q.X, q.Y)
			if f.Any(flags.Cloud | flags.Invalid) {
				continue
			}
			if !tc.heightOK(p, q, sp.Geometry) {
				continue
			}
			tc.flags.Add(q.X, q.Y, flags.PotentialCloudShadow)

			v := tc.scene.Reflectance(q, tc.cfg)
			if !emath.IsFinite(v) {
				continue
			}
			acc.add(k, v, f)
			if inTile {
				tc.aggregate.add(k, v, f)
			}
		}
	}
	return acc.profile()
}

// shiftBlob flags the shadow of a blob, shifted by the chosen path offset,
// and attributes each shadow pixel to the blob.
func (tc *tileContext)shiftBlob(b *Blob, offset int) int {
	n := 0
	for _, p := range b.Pixels {
		sp, ok := tc.paths.PathAt(p)
		if !ok || offset >= sp.Len() {
			continue
		}
		q := p.Add(sp.Offsets[offset])
		if tc.flags.At(q.X, q.Y).Any(flags.Cloud | flags.Invalid) {
			continue
		}
		if !tc.heightOK(p, q, sp.Geometry) {
			continue
		}
		tc.flags.Add(q.X, q.Y, flags.ShiftedCloudShadow)
		tc.setCloudID(q, tc.cloudKey(b))
		b.GrowShadow(q)
		n++
	}
	return n
}

// cloudKey identifies a blob across tiles: one more than the scene pixel
// index of its first pixel in raster order.
func (tc *tileContext)cloudKey(b *Blob) int {
	p := b.Pixels[0]
	return p.Y*tc.scene.Bounds().Dx() + p.X + 1
}

func (tc *tileContext)setCloudID(p image.Point, id int) {
	r := tc.flags.Rect
	if p.In(r) {
		tc.cloudIDs[(p.Y-r.Min.Y)*r.Dx() + (p.X-r.Min.X)] = id
	}
}

func (tc *tileContext)cloudID(p image.Point) int {
	r := tc.flags.Rect
	if !p.In(r) {
		return 0
	}
	return tc.cloudIDs[(p.Y-r.Min.Y)*r.Dx() + (p.X-r.Min.X)]
}

// assignBlobs profiles each blob on its own, and shifts it by its own best offset.
func (tc *tileContext)assignBlobs() {
	for _, b := range tc.seg.Blobs {
		prof := tc.profilePixels(b.Pixels)
		offset, ok := BestOffset(prof, tc.cfg.Mode)
		if !ok {
			tc.diag.NoMinimum++
			continue
		}
		tc.diag.ShiftedPixels += tc.shiftBlob(b, offset)
	}
}

// assignBulk shifts all blobs by the scene-wide offset the scheduler
// reconciled. The window is still profiled, for the POTENTIAL marks and the
// tile's sums; without a scene offset nothing is shifted.
func (tc *tileContext)assignBulk() {
	pixels := []image.Point{}
	for _, b := range tc.seg.Blobs {
		pixels = append(pixels, b.Pixels...)
	}
	tc.profilePixels(pixels)

	offset := tc.tile.BulkOffset
	if offset < 0 {
		tc.diag.NoMinimum++
		return
	}
	tc.diag.Offset = offset
	for _, b := range tc.seg.Blobs {
		tc.diag.ShiftedPixels += tc.shiftBlob(b, offset)
	}
}
