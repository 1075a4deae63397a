package canvas

import (
	"fmt"
	"strconv"
	"strings"
)

const GridSize = 24

type Cell struct {
	X int
	Y int
}

// Key is the child name of the cell under liveCanvas/{pairId}/pixels.
func (c Cell) Key() string {
	return strconv.Itoa(c.X) + "_" + strconv.Itoa(c.Y)
}

func (c Cell) MarshalText() ([]byte, error) {
	return []byte(c.Key()), nil
}

func (c *Cell) UnmarshalText(b []byte) error {
	parsed, ok := ParseCellKey(string(b))
	if !ok {
		return fmt.Errorf("invalid cell %q", string(b))
	}
	*c = parsed
	return nil
}

func (c Cell) InBounds() bool {
	return c.X >= 0 && c.X < GridSize && c.Y >= 0 && c.Y < GridSize
}

func ParseCellKey(key string) (Cell, bool) {
	xs, ys, ok := strings.Cut(key, "_")
	if !ok {
		return Cell{}, false
	}
	x, err := strconv.Atoi(xs)
	if err != nil {
		return Cell{}, false
	}
	y, err := strconv.Atoi(ys)
	if err != nil {
		return Cell{}, false
	}
	c := Cell{X: x, Y: y}
	if !c.InBounds() {
		return Cell{}, false
	}
	return c, true
}

// Pixels is a sparse grid. Absent cells are empty; "" is never stored.
type Pixels map[Cell]string

// Changes maps cells to their new color. "" erases the cell.
type Changes map[Cell]string

func (p Pixels) Clone() Pixels {
	out := make(Pixels, len(p))
	for c, color := range p {
		out[c] = color
	}
	return out
}

func (p Pixels) Apply(changes Changes) {
	for c, color := range changes {
		if color == "" {
			delete(p, c)
			continue
		}
		p[c] = color
	}
}

func (ch Changes) merge(other Changes) {
	for c, color := range other {
		ch[c] = color
	}
}

// FloodFill returns the changes that paint the 4-connected region of start's
// color with color. Empty cells form a region of their own. Filling a region
// that already has the target color returns no changes.
func FloodFill(pixels Pixels, start Cell, color string) Changes {
	changes := Changes{}
	if !start.InBounds() {
		return changes
	}

	original := pixels[start]
	if original == color {
		return changes
	}

	visited := map[Cell]bool{start: true}
	queue := []Cell{start}
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]
		changes[c] = color

		for _, n := range [4]Cell{{c.X + 1, c.Y}, {c.X - 1, c.Y}, {c.X, c.Y + 1}, {c.X, c.Y - 1}} {
			if !n.InBounds() || visited[n] || pixels[n] != original {
				continue
			}
			visited[n] = true
			queue = append(queue, n)
		}
	}
	return changes
}

// Footprint is the square of brush x brush cells anchored at c, clipped to
// the grid.
func Footprint(c Cell, brush int) []Cell {
	cells := make([]Cell, 0, brush*brush)
	for dx := 0; dx < brush; dx++ {
		for dy := 0; dy < brush; dy++ {
			n := Cell{X: c.X + dx, Y: c.Y + dy}
			if n.InBounds() {
				cells = append(cells, n)
			}
		}
	}
	return cells
}
