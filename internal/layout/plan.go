package layout

// Reposition moves the existing window at Index to a new rectangle.
type Reposition struct {
	Index int  `json:"index"`
	From  Rect `json:"from"`
	To    Rect `json:"to"`
}

// TransitionPlan describes how to grow an n-window grid to n+1: which
// existing windows move, and where the new window lands.
type TransitionPlan struct {
	Repositions []Reposition `json:"repositions"`
	NewRect     Rect         `json:"newRect"`
	NewColumn   int          `json:"newColumn"`
	NewRow      int          `json:"newRow"`
	NewGrid     []int        `json:"newGrid"`
}

// PlanTransition computes the moves needed to make room for one more window
// in workArea. Existing slots keep their relative order: slot i of the old
// grid becomes slot i of the new grid, and only slots whose rectangle
// actually changes produce a reposition. The new window takes the last slot.
//
// Returns nil when the grid is already at capacity (MaxTiled windows).
func PlanTransition(existing []Slot, workArea Rect) *TransitionPlan {
	n := len(existing)
	if n+1 > MaxTiled {
		return nil
	}

	next := CalculateAllSlots(workArea, n+1)

	var moves []Reposition
	for i, cur := range existing {
		if cur.Rect != next[i].Rect {
			moves = append(moves, Reposition{Index: i, From: cur.Rect, To: next[i].Rect})
		}
	}

	last := next[n]
	return &TransitionPlan{
		Repositions: moves,
		NewRect:     last.Rect,
		NewColumn:   last.Column,
		NewRow:      last.Row,
		NewGrid:     GridSpec(n + 1),
	}
}
