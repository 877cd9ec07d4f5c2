package cloudshadow

import(
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/abworrall/cloudshadow/pkg/flags"
)

var nan = math.NaN()

func TestFirstInteriorMinimum(t *testing.T) {
	tests := []struct{
		name   string
		curve  []float64
		want   int
		wantOK bool
	}{
		{"simple dip", []float64{3, 2, 1, 2, 3}, 2, true},
		{"first of two", []float64{3, 1, 3, 0, 3}, 1, true},
		{"monotonic", []float64{5, 4, 3, 2, 1}, 0, false},
		{"minimum at the start", []float64{0, 1, 2}, 0, false},
		{"plateau is not strict", []float64{3, 1, 1, 3}, 0, false},
		{"flat", []float64{1, 1, 1, 1}, 0, false},
		{"too short", []float64{1, 0}, 0, false},
		{"empty", nil, 0, false},
		{"all nan", []float64{nan, nan, nan, nan}, 0, false},
		{"nan next door", []float64{3, nan, 1, 2, 3}, 0, false},
		{"nan tail", []float64{3, 2, 1, 2, nan, nan}, 2, true},
		{"nan head", []float64{nan, nan, 4, 1, 4}, 3, true},
	}
	for _, test := range tests {
		got, ok := FirstInteriorMinimum(test.curve)
		if got != test.want || ok != test.wantOK {
			t.Errorf("%s: got %d,%v, want %d,%v", test.name, got, ok, test.want, test.wantOK)
		}
	}
}

func TestAccumulator(t *testing.T) {
	acc := &ProfileSums{}
	acc.reach(4)
	acc.add(0, 0.2, flags.Land)
	acc.add(0, 0.4, flags.Water)
	acc.add(2, 0.1, flags.Land)
	acc.countCloud(flags.Land | flags.Cloud)

	p := acc.profile()
	want := Profile{
		All:       []float64{0.3, nan, 0.1, nan},
		Land:      []float64{0.2, nan, 0.1, nan},
		Water:     []float64{0.4, nan, nan, nan},
		CloudLand: 1,
	}
	if diff := cmp.Diff(want, p, cmpopts.EquateNaNs(), cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Errorf("profile (-want +got):\n%s", diff)
	}
}

func TestBestOffset(t *testing.T) {
	p := Profile{
		All:   []float64{3, 2, 3, 1, 3},
		Land:  []float64{3, 3, 3, 1, 3},
		Water: []float64{3, 1, 3, 3, 3},
	}
	tests := []struct{
		name        string
		mode        string
		land, water int
		want        int
	}{
		{"mostly land", "landwater", 10, 2, 3},
		{"mostly water", "landwater", 2, 10, 1},
		{"mixed", "landwater", 5, 4, 1},
		{"singleband ignores the split", "singleband", 10, 0, 1},
	}
	for _, test := range tests {
		p.CloudLand, p.CloudWater = test.land, test.water
		got, ok := BestOffset(p, test.mode)
		if !ok || got != test.want {
			t.Errorf("%s: got %d,%v, want %d", test.name, got, ok, test.want)
		}
	}
}

func TestReconcileProfiles(t *testing.T) {
	// Two tiles, each seeing half of the dip; neither has a minimum on its own
	a, b, whole := &ProfileSums{}, &ProfileSums{}, &ProfileSums{}
	for _, v := range []struct{
		sums *ProfileSums
		k    int
		refl float64
	}{
		{a, 0, 0.3}, {a, 1, 0.2}, {a, 2, 0.1}, {a, 1, 0.2},
		{b, 2, 0.1}, {b, 3, 0.2}, {b, 4, 0.3}, {b, 4, 0.3},
	} {
		v.sums.add(v.k, v.refl, flags.Land)
		whole.add(v.k, v.refl, flags.Land)
	}
	a.countCloud(flags.Land)
	b.countCloud(flags.Land)
	whole.countCloud(flags.Land)
	whole.countCloud(flags.Land)

	for _, tile := range []*ProfileSums{a, b} {
		if _, ok := BestOffset(tile.profile(), "landwater"); ok {
			t.Errorf("tile on its own found a minimum: %v", tile.profile().All)
		}
	}

	merged := &ProfileSums{}
	merged.Merge(a)
	merged.Merge(b)
	merged.Merge(nil)
	if diff := cmp.Diff(whole.profile(), merged.profile(), cmpopts.EquateNaNs(), cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Errorf("merged sums differ from the whole (-whole +merged):\n%s", diff)
	}

	got, ok := ReconcileProfiles([]*ProfileSums{a, nil, b}, "landwater")
	if !ok || got != 2 {
		t.Errorf("got %d,%v, want 2", got, ok)
	}
	if _, ok := ReconcileProfiles(nil, "singleband"); ok {
		t.Errorf("no tiles should give no offset")
	}
	if _, ok := ReconcileProfiles([]*ProfileSums{a}, "singleband"); ok {
		t.Errorf("a curve with no minimum should give no offset")
	}
}

func TestMinimumIgnoresRounding(t *testing.T) {
	// 0.3 summed in a different order is not always exactly 0.3
	curve := []float64{0.3, 0.3 - 1e-16, 0.3, 0.1, 0.3}
	if got, ok := FirstInteriorMinimum(curve); !ok || got != 3 {
		t.Errorf("got %d,%v, want 3", got, ok)
	}
}

func TestKMeans(t *testing.T) {
	points := [][]float64{
		{0.05, 0.02}, {0.06, 0.03}, {0.04, 0.02},
		{0.30, 0.12}, {0.31, 0.13}, {0.29, 0.11}, {0.30, 0.12},
	}
	labels, centers := KMeans(points, 2, 30)

	want := []int{0, 0, 0, 1, 1, 1, 1}
	if diff := cmp.Diff(want, labels); diff != "" {
		t.Errorf("labels (-want +got):\n%s", diff)
	}
	if d := darkest(centers); d != 0 {
		t.Errorf("darkest cluster is %d", d)
	}

	// More clusters than points
	labels, centers = KMeans(points[:2], 4, 30)
	if len(centers) != 2 || len(labels) != 2 {
		t.Errorf("got %d centers for 2 points", len(centers))
	}
}
