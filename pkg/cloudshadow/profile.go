package cloudshadow

import(
	"fmt"
	"math"

	"github.com/abworrall/cloudshadow/pkg/flags"
)

// A Profile is the mean reflectance at each shadow path offset, over all
// shifted pixels, and over the land and water ones separately. NaN means
// that no valid pixel landed on that offset: no information, not dark.
type Profile struct {
	All        []float64
	Land       []float64
	Water      []float64

	CloudLand  int  // cloud pixels over land that were shifted
	CloudWater int  // cloud pixels over water that were shifted
}

func (p Profile)String() string {
	return fmt.Sprintf("Profile[%d offsets, clouds land:%d water:%d]", len(p.All), p.CloudLand, p.CloudWater)
}

// Curves returns the all/land/water curves, in that order
func (p Profile)Curves() [3][]float64 { return [3][]float64{p.All, p.Land, p.Water} }

const(
	curveAll = iota
	curveLand
	curveWater
)

// ProfileSums holds the raw reflectance sums and counts per offset behind
// a Profile; it grows as longer paths turn up. Sums from disjoint sets of
// cloud pixels merge into the sums over their union.
type ProfileSums struct {
	sum        [3][]float64
	n          [3][]float64
	cloudLand  int
	cloudWater int
}

func (pa *ProfileSums)grow(k int) {
	for len(pa.sum[0]) <= k {
		for j := 0; j < 3; j++ {
			pa.sum[j] = append(pa.sum[j], 0)
			pa.n[j] = append(pa.n[j], 0)
		}
	}
}

// reach makes sure the profile covers offsets [0,k), even if none of them
// get a value
func (pa *ProfileSums)reach(k int) {
	if k > 0 {
		pa.grow(k-1)
	}
}

func (pa *ProfileSums)add(k int, v float64, target flags.Flag) {
	pa.grow(k)
	pa.sum[curveAll][k] += v
	pa.n[curveAll][k]++
	if target.Has(flags.Land) {
		pa.sum[curveLand][k] += v
		pa.n[curveLand][k]++
	}
	if target.Has(flags.Water) {
		pa.sum[curveWater][k] += v
		pa.n[curveWater][k]++
	}
}

func (pa *ProfileSums)countCloud(f flags.Flag) {
	if f.Has(flags.Land)  { pa.cloudLand++ }
	if f.Has(flags.Water) { pa.cloudWater++ }
}

// Merge adds o into pa
func (pa *ProfileSums)Merge(o *ProfileSums) {
	if o == nil {
		return
	}
	pa.reach(len(o.sum[0]))
	for j := 0; j < 3; j++ {
		for k := range o.sum[j] {
			pa.sum[j][k] += o.sum[j][k]
			pa.n[j][k] += o.n[j][k]
		}
	}
	pa.cloudLand += o.cloudLand
	pa.cloudWater += o.cloudWater
}

func (pa *ProfileSums)profile() Profile {
	var curves [3][]float64
	for j := 0; j < 3; j++ {
		curves[j] = make([]float64, len(pa.sum[j]))
		for k := range curves[j] {
			if pa.n[j][k] == 0 {
				curves[j][k] = math.NaN()
			} else {
				curves[j][k] = pa.sum[j][k] / pa.n[j][k]
			}
		}
	}
	return Profile{
		All:        curves[curveAll],
		Land:       curves[curveLand],
		Water:      curves[curveWater],
		CloudLand:  pa.cloudLand,
		CloudWater: pa.cloudWater,
	}
}

// Means of equal reflectances summed in different orders differ in the
// last bits; a minimum has to be deeper than this.
const minimumTolerance = 1e-9

// FirstInteriorMinimum returns the first strict local minimum of the curve,
// never its first or last sample. A NaN neighbour can't confirm a minimum.
func FirstInteriorMinimum(curve []float64) (int, bool) {
	for i := 1; i < len(curve)-1; i++ {
		a, b, c := curve[i-1], curve[i], curve[i+1]
		if math.IsNaN(a) || math.IsNaN(b) || math.IsNaN(c) {
			continue
		}
		if b < a-minimumTolerance && b < c-minimumTolerance {
			return i, true
		}
	}
	return 0, false
}

// chooseCurve picks land or water if the clouds are mostly (2:1) over one
// of them, else the combined curve.
func chooseCurve(cloudLand, cloudWater int) int {
	total := float64(cloudLand + cloudWater)
	if total == 0 {
		return curveAll
	}
	relLand, relWater := float64(cloudLand)/total, float64(cloudWater)/total
	switch {
	case relLand > 2*relWater:  return curveLand
	case relWater > 2*relLand:  return curveWater
	default:                    return curveAll
	}
}

// BestOffset picks the most likely shadow offset from a profile. In
// landwater mode the land or water curve may be used instead of the
// combined one. False means there is no interior minimum, so no shadow.
func BestOffset(p Profile, mode string) (int, bool) {
	curve := p.All
	if mode == "landwater" {
		curve = p.Curves()[chooseCurve(p.CloudLand, p.CloudWater)]
	}
	return FirstInteriorMinimum(curve)
}

// ReconcileProfiles merges the per-tile sums into the scene-wide profile,
// and picks its offset. Each tile only sums the cloud pixels of its own
// rect, so the merge is the same as profiling the whole scene at once.
func ReconcileProfiles(tiles []*ProfileSums, mode string) (int, bool) {
	scene := &ProfileSums{}
	for _, t := range tiles {
		scene.Merge(t)
	}
	return BestOffset(scene.profile(), mode)
}
