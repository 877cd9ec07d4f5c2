package cloudshadow

import(
	"sort"
	"sync"
)

// A Collector gathers tile diagnostics from many workers. Entries are only
// ever added; a second entry for the same tile is dropped and counted.
type Collector struct {
	in         chan TileDiagnostics
	wg         sync.WaitGroup
	byTile     map[int]TileDiagnostics
	duplicates int
}

func NewCollector(buffer int) *Collector {
	c := &Collector{
		in:     make(chan TileDiagnostics, buffer),
		byTile: map[int]TileDiagnostics{},
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for d := range c.in {
			if _, exists := c.byTile[d.TileID]; exists {
				c.duplicates++
				continue
			}
			c.byTile[d.TileID] = d
		}
	}()
	return c
}

// Submit hands over one tile's diagnostics; safe from any goroutine, but
// not after Close.
func (c *Collector)Submit(d TileDiagnostics) { c.in <- d }

// Close waits for everything submitted, and returns it in tile order,
// along with the number of duplicates that were dropped.
func (c *Collector)Close() ([]TileDiagnostics, int) {
	close(c.in)
	c.wg.Wait()

	out := make([]TileDiagnostics, 0, len(c.byTile))
	for _, d := range c.byTile {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TileID < out[j].TileID })
	return out, c.duplicates
}
