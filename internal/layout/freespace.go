package layout

// Free-space scan resolution: candidate origins form an 8x4 grid spanning
// the work area, columns scanned in the outer loop so ties resolve
// column-by-column.
const (
	scanColumns = 8
	scanRows    = 4
)

// FindFreeSpace picks a rectangle of a quarter of the work-area width and
// half its height (rounded) whose total pixel overlap with the given
// existing windows is minimal. Candidates are scanned column-first across
// the work area; the first zero-overlap candidate wins immediately, and
// ties keep the earliest candidate in scan order.
func FindFreeSpace(workArea Rect, existing []Rect) Rect {
	cw := divRound(workArea.W, 4)
	ch := divRound(workArea.H, 2)

	spanX := workArea.W - cw
	if spanX < 0 {
		spanX = 0
	}
	spanY := workArea.H - ch
	if spanY < 0 {
		spanY = 0
	}

	best := Rect{X: workArea.X, Y: workArea.Y, W: cw, H: ch}
	bestOverlap := -1

	for ix := 0; ix < scanColumns; ix++ {
		x := workArea.X + ix*spanX/(scanColumns-1)
		for iy := 0; iy < scanRows; iy++ {
			y := workArea.Y + iy*spanY/(scanRows-1)
			candidate := Rect{X: x, Y: y, W: cw, H: ch}

			total := 0
			for _, win := range existing {
				total += Overlap(candidate, win)
			}
			if total == 0 {
				return candidate
			}
			if bestOverlap < 0 || total < bestOverlap {
				best = candidate
				bestOverlap = total
			}
		}
	}
	return best
}

// divRound divides a by b rounding half up. Both must be positive.
func divRound(a, b int) int {
	return (a + b/2) / b
}
