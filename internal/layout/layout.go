// Package layout computes deterministic window-grid geometry: which grid a
// given number of windows gets, the pixel rectangle of every slot, the moves
// needed to grow a grid by one window, and where to drop a window when no
// grid applies. All functions are pure; callers supply the work area and get
// rectangles back.
package layout

// MaxTiled is the largest window count the grid layouts support. Beyond it
// callers fall back to free-space placement.
const MaxTiled = 8

// Rect is a screen rectangle in pixels. X,Y is the top-left corner.
type Rect struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Right returns the exclusive right edge.
func (r Rect) Right() int { return r.X + r.W }

// Bottom returns the exclusive bottom edge.
func (r Rect) Bottom() int { return r.Y + r.H }

// Empty reports whether the rectangle has no area.
func (r Rect) Empty() bool { return r.W <= 0 || r.H <= 0 }

// Overlap returns the intersection area of a and b in square pixels,
// zero when they do not intersect.
func Overlap(a, b Rect) int {
	w := min(a.Right(), b.Right()) - max(a.X, b.X)
	h := min(a.Bottom(), b.Bottom()) - max(a.Y, b.Y)
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// Slot is one cell of a computed grid, identified by its column and row.
type Slot struct {
	Rect   Rect `json:"rect"`
	Column int  `json:"column"`
	Row    int  `json:"row"`
}

// GridSpec returns the columns-per-row arrangement for n windows: a single
// row up to three windows, two rows beyond that with the wider row on top.
// The returned slice always sums to n. Nil for n <= 0.
func GridSpec(n int) []int {
	switch {
	case n <= 0:
		return nil
	case n == 1:
		return []int{1}
	case n == 2:
		return []int{2}
	case n == 3:
		return []int{3}
	default:
		return []int{(n + 1) / 2, n / 2}
	}
}

// CalculateAllSlots splits workArea into the grid for n windows and returns
// the slots in column-major order: columns left to right, rows top to bottom
// within each column. Rows split the height evenly with the last row
// absorbing the remainder; each row splits the width across its own column
// count, last column absorbing the remainder. Rows may therefore have
// different column widths.
//
// The ordering is load-bearing: transition plans pair old and new slots by
// index, so it must stay stable.
func CalculateAllSlots(workArea Rect, n int) []Slot {
	return CalculateSlotsForGrid(workArea, GridSpec(n))
}

// CalculateSlotsForGrid lays out an explicit columns-per-row arrangement,
// for callers overriding the default GridSpec. Same geometry and ordering
// rules as CalculateAllSlots.
func CalculateSlotsForGrid(workArea Rect, grid []int) []Slot {
	if len(grid) == 0 {
		return nil
	}
	n := 0
	for _, c := range grid {
		if c <= 0 {
			return nil
		}
		n += c
	}

	rows := len(grid)
	rowHeight := workArea.H / rows

	// rects[row][col]
	rects := make([][]Rect, rows)
	for row := 0; row < rows; row++ {
		cols := grid[row]
		colWidth := workArea.W / cols

		y := workArea.Y + row*rowHeight
		h := rowHeight
		if row == rows-1 {
			h = workArea.H - row*rowHeight
		}

		rects[row] = make([]Rect, cols)
		for col := 0; col < cols; col++ {
			x := workArea.X + col*colWidth
			w := colWidth
			if col == cols-1 {
				w = workArea.W - col*colWidth
			}
			rects[row][col] = Rect{X: x, Y: y, W: w, H: h}
		}
	}

	maxCols := 0
	for _, c := range grid {
		if c > maxCols {
			maxCols = c
		}
	}

	slots := make([]Slot, 0, n)
	for col := 0; col < maxCols; col++ {
		for row := 0; row < rows; row++ {
			if col < grid[row] {
				slots = append(slots, Slot{Rect: rects[row][col], Column: col, Row: row})
			}
		}
	}
	return slots
}
