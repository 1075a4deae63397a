package canvas

const MaxUndo = 20

// UndoStack holds pre-images of committed strokes and fills, newest last.
type UndoStack struct {
	max     int
	entries []Changes
}

func NewUndoStack(max int) *UndoStack {
	return &UndoStack{max: max}
}

func (u *UndoStack) Push(preimage Changes) {
	if len(preimage) == 0 {
		return
	}
	u.entries = append(u.entries, preimage)
	if len(u.entries) > u.max {
		u.entries = append([]Changes(nil), u.entries[len(u.entries)-u.max:]...)
	}
}

func (u *UndoStack) Pop() (Changes, bool) {
	if len(u.entries) == 0 {
		return nil, false
	}
	last := u.entries[len(u.entries)-1]
	u.entries = u.entries[:len(u.entries)-1]
	return last, true
}

func (u *UndoStack) Len() int {
	return len(u.entries)
}

func (u *UndoStack) Reset() {
	u.entries = nil
}
