package emath

import "math"

// DiscSums returns, for every cell, the sum and the count of the finite
// values within `radius` cells (Euclidean, inclusive) for which include
// returns true. Row prefix sums keep it at O(radius) per cell.
func (fg *FloatGrid)DiscSums(radius float64, include func(x, y int) bool) (FloatGrid, FloatGrid) {
	width, height := fg.Dx(), fg.Dy()
	sums   := fg.NewFromThis()
	counts := fg.NewFromThis()
	if radius < 0 {
		return sums, counts
	}

	// prefix[y][x+1] is the sum over row y of cells [0,x]
	prefix := make([][]float64, height)
	nPrefix := make([][]float64, height)
	for y:=0; y<height; y++ {
		prefix[y] = make([]float64, width+1)
		nPrefix[y] = make([]float64, width+1)
		for x:=0; x<width; x++ {
			v, n := 0.0, 0.0
			if val := fg.Get(x,y); IsFinite(val) && (include == nil || include(x,y)) {
				v, n = val, 1.0
			}
			prefix[y][x+1] = prefix[y][x] + v
			nPrefix[y][x+1] = nPrefix[y][x] + n
		}
	}

	r := int(math.Floor(radius))
	halfWidths := make([]int, r+1)
	for dy:=0; dy<=r; dy++ {
		halfWidths[dy] = int(math.Floor(math.Sqrt(radius*radius - float64(dy*dy))))
	}

	for y:=0; y<height; y++ {
		for x:=0; x<width; x++ {
			s, n := 0.0, 0.0
			for dy:=-r; dy<=r; dy++ {
				yy := y+dy
				if yy < 0 || yy >= height {
					continue
				}
				half := halfWidths[absInt(dy)]
				x0, x1 := x-half, x+half
				if x0 < 0        { x0 = 0 }
				if x1 >= width   { x1 = width-1 }
				s += prefix[yy][x1+1] - prefix[yy][x0]
				n += nPrefix[yy][x1+1] - nPrefix[yy][x0]
			}
			sums.Set(x, y, s)
			counts.Set(x, y, n)
		}
	}

	return sums, counts
}

// RingMean returns the mean of the included finite values in the annulus
// inner < d <= outer around each cell; NaN where the annulus has none.
func (fg *FloatGrid)RingMean(inner, outer float64, include func(x, y int) bool) FloatGrid {
	sOut, nOut := fg.DiscSums(outer, include)
	sIn, nIn   := fg.DiscSums(inner, include)

	out := fg.NewFromThis()
	for i := range out.values {
		n := nOut.values[i] - nIn.values[i]
		if n <= 0 {
			out.values[i] = math.NaN()
			continue
		}
		out.values[i] = (sOut.values[i] - sIn.values[i]) / n
	}
	return out
}

func absInt(i int) int {
	if i < 0 {
		return -i
	}
	return i
}
