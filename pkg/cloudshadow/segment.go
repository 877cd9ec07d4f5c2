package cloudshadow

import(
	"fmt"
	"image"

	"github.com/abworrall/cloudshadow/pkg/flags"
)

// A Blob is one connected patch of cloud.
type Blob struct {
	ID           int
	Pixels       []image.Point    // in raster-scan discovery order
	Bounds       image.Rectangle  // A box around the cloud
	ShadowBounds image.Rectangle  // A box around the shadow pixels attributed to this cloud

	LandPixels   int
	WaterPixels  int

	shadow       map[image.Point]bool  // shifted shadow pixels cast by this cloud
}

func (b Blob)String() string {
	return fmt.Sprintf("Blob[%d: %d px, %s, shadow %s]", b.ID, len(b.Pixels), b.Bounds, b.ShadowBounds)
}

func (b *Blob)Grow(p image.Point)       { b.Bounds = GrowRectangle(b.Bounds, p) }

// GrowShadow records p as shadow cast by this cloud
func (b *Blob)GrowShadow(p image.Point) {
	b.ShadowBounds = GrowRectangle(b.ShadowBounds, p)
	if b.shadow == nil {
		b.shadow = map[image.Point]bool{}
	}
	b.shadow[p] = true
}

// CastShadow reports whether this cloud's shifted shadow covers p, whatever
// other clouds shifted onto it too.
func (b *Blob)CastShadow(p image.Point) bool { return b.shadow[p] }

// A Segmentation labels every cloud pixel of a window with its blob ID
// (from 1); everything else is 0.
type Segmentation struct {
	Rect   image.Rectangle
	Labels []int
	Blobs  []*Blob
}

func (s *Segmentation)LabelAt(x, y int) int {
	if !image.Pt(x, y).In(s.Rect) {
		return 0
	}
	return s.Labels[(y-s.Rect.Min.Y)*s.Rect.Dx() + (x-s.Rect.Min.X)]
}

func (s *Segmentation)setLabel(p image.Point, id int) {
	s.Labels[(p.Y-s.Rect.Min.Y)*s.Rect.Dx() + (p.X-s.Rect.Min.X)] = id
}

var(
	neighbours4 = []image.Point{{-1, 0}, {0, -1}, {1, 0}, {0, 1}}
	neighbours8 = []image.Point{{-1, -1}, {0, -1}, {1, -1}, {-1, 0}, {1, 0}, {-1, 1}, {0, 1}, {1, 1}}
)

func neighbourhood(connectivity int) []image.Point {
	if connectivity == 8 {
		return neighbours8
	}
	return neighbours4
}

// SegmentClouds labels the connected cloud patches in a flag raster.
// Labels are handed out in raster-scan order of each blob's first pixel,
// so the same window always gets the same labels.
func SegmentClouds(fr *flags.Raster, connectivity int) *Segmentation {
	return segment(fr.Rect, connectivity, func(x, y int) bool {
		f := fr.At(x, y)
		return f.Has(flags.Cloud) && !f.Has(flags.Invalid)
	}, func(b *Blob, p image.Point) {
		f := fr.At(p.X, p.Y)
		if f.Has(flags.Land)  { b.LandPixels++ }
		if f.Has(flags.Water) { b.WaterPixels++ }
	})
}

// segment floodfills out from every unlabelled member pixel.
func segment(r image.Rectangle, connectivity int, member func(x, y int) bool, visit func(*Blob, image.Point)) *Segmentation {
	s := &Segmentation{
		Rect:   r,
		Labels: make([]int, r.Dx()*r.Dy()),
		Blobs:  []*Blob{},
	}
	nbrs := neighbourhood(connectivity)

	for y:=r.Min.Y; y<r.Max.Y; y++ {
		for x:=r.Min.X; x<r.Max.X; x++ {
			if !member(x, y) || s.LabelAt(x, y) != 0 {
				continue
			}

			b := &Blob{ID: len(s.Blobs)+1}
			s.Blobs = append(s.Blobs, b)

			p := image.Point{x, y}
			s.setLabel(p, b.ID)
			toVisit := []image.Point{p}
			for len(toVisit) > 0 {
				p, toVisit = toVisit[0], toVisit[1:]
				b.Pixels = append(b.Pixels, p)
				b.Grow(p)
				if visit != nil {
					visit(b, p)
				}

				for _, d := range nbrs {
					q := p.Add(d)
					if q.In(r) && s.LabelAt(q.X, q.Y) == 0 && member(q.X, q.Y) {
						s.setLabel(q, b.ID)
						toVisit = append(toVisit, q)
					}
				}
			}
		}
	}

	return s
}
