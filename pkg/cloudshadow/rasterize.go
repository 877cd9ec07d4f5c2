package cloudshadow

import "image"

// RasterizeLine returns every pixel on the straight line from p0 to p1,
// in order, first p0 and last p1. Consecutive pixels are 8-neighbours.
//
// The line is always traced in one canonical direction and reversed if
// needed, so reverse(RasterizeLine(a,b)) == RasterizeLine(b,a) even where
// Bresenham would have to break a tie.
func RasterizeLine(p0, p1 image.Point) []image.Point {
	if p1.X < p0.X || (p1.X == p0.X && p1.Y < p0.Y) {
		pts := bresenham(p1, p0)
		for i, j := 0, len(pts)-1; i < j; i, j = i+1, j-1 {
			pts[i], pts[j] = pts[j], pts[i]
		}
		return pts
	}
	return bresenham(p0, p1)
}

func bresenham(p0, p1 image.Point) []image.Point {
	dx := absInt(p1.X - p0.X)
	dy := -absInt(p1.Y - p0.Y)
	sx, sy := 1, 1
	if p0.X > p1.X { sx = -1 }
	if p0.Y > p1.Y { sy = -1 }

	n := dx
	if -dy > n { n = -dy }
	pts := make([]image.Point, 0, n+1)

	x, y := p0.X, p0.Y
	e := dx + dy
	for {
		pts = append(pts, image.Point{x, y})
		if x == p1.X && y == p1.Y {
			break
		}
		e2 := 2*e
		if e2 >= dy {
			e += dy
			x += sx
		}
		if e2 <= dx {
			e += dx
			y += sy
		}
	}
	return pts
}

func absInt(i int) int {
	if i < 0 {
		return -i
	}
	return i
}
