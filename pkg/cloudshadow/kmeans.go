package cloudshadow

import(
	"image"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/abworrall/cloudshadow/pkg/emath"
	"github.com/abworrall/cloudshadow/pkg/flags"
)

// KMeans runs Lloyd's algorithm over the points, for at most maxIter
// rounds. Seeds are spread over the brightness quantiles, so a given input
// always clusters the same way. It returns each point's cluster, and the
// cluster centers.
func KMeans(points [][]float64, k, maxIter int) ([]int, [][]float64) {
	n := len(points)
	if n == 0 || k <= 0 {
		return nil, nil
	}
	if k > n {
		k = n
	}
	dim := len(points[0])

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return floats.Sum(points[order[i]]) < floats.Sum(points[order[j]])
	})
	centers := make([][]float64, k)
	for i := range centers {
		centers[i] = append([]float64{}, points[order[(2*i+1)*n/(2*k)]]...)
	}

	labels := make([]int, n)
	for i := range labels {
		labels[i] = -1
	}

	column := make([]float64, 0, n)
	for iter := 0; iter < maxIter; iter++ {
		changed := false
		for i, p := range points {
			best, bestDist := 0, floats.Distance(p, centers[0], 2)
			for c := 1; c < k; c++ {
				if d := floats.Distance(p, centers[c], 2); d < bestDist {
					best, bestDist = c, d
				}
			}
			if labels[i] != best {
				labels[i] = best
				changed = true
			}
		}
		if !changed {
			break
		}

		// An empty cluster keeps its old center
		for c := 0; c < k; c++ {
			for d := 0; d < dim; d++ {
				column = column[:0]
				for i, p := range points {
					if labels[i] == c {
						column = append(column, p[d])
					}
				}
				if len(column) > 0 {
					centers[c][d] = stat.Mean(column, nil)
				}
			}
		}
	}

	return labels, centers
}

// darkest is the cluster with the lowest summed center
func darkest(centers [][]float64) int {
	best := 0
	for c := 1; c < len(centers); c++ {
		if floats.Sum(centers[c]) < floats.Sum(centers[best]) {
			best = c
		}
	}
	return best
}

// clusterBlob clusters the potential shadow pixels around a blob's shadow,
// and takes the shifted flag away from the blob's own shadow pixels that
// didn't land in the darkest cluster.
func (tc *tileContext)clusterBlob(b *Blob) int {
	if b.ShadowBounds.Empty() {
		return 0
	}
	area := b.ShadowBounds.Intersect(tc.flags.Rect)

	pts := []image.Point{}
	features := [][]float64{}
	for y:=area.Min.Y; y<area.Max.Y; y++ {
		for x:=area.Min.X; x<area.Max.X; x++ {
			f := tc.flags.At(x, y)
			if !f.Has(flags.PotentialCloudShadow) || f.Any(flags.Cloud | flags.Invalid) {
				continue
			}
			fv := make([]float64, 0, len(tc.cfg.ClusterBands))
			for _, name := range tc.cfg.ClusterBands {
				v := tc.scene.Bands[name].Sample(x, y)
				if !emath.IsFinite(v) {
					break
				}
				fv = append(fv, v)
			}
			if len(fv) != len(tc.cfg.ClusterBands) {
				continue
			}
			pts = append(pts, image.Point{x, y})
			features = append(features, fv)
		}
	}

	if len(pts) < tc.cfg.ClusterCount {
		return 0
	}

	labels, centers := KMeans(features, tc.cfg.ClusterCount, tc.cfg.ClusterIterations)
	dark := darkest(centers)

	removed := 0
	for i, p := range pts {
		if labels[i] == dark || !b.CastShadow(p) {
			continue
		}
		if tc.flags.Has(p.X, p.Y, flags.ShiftedCloudShadow) {
			tc.flags.Clear(p.X, p.Y, flags.ShiftedCloudShadow)
			removed++
		}
	}
	return removed
}
