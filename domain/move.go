package domain

import "fmt"

// Move is a drag and drop gesture: the card at SourceIndex of SourceStatus is
// dropped at DestIndex of DestStatus.
type Move struct {
	SourceStatus TaskStatus `json:"sourceStatus"`
	SourceIndex  int        `json:"sourceIndex"`
	DestStatus   TaskStatus `json:"destStatus"`
	DestIndex    int        `json:"destIndex"`
}

// PositionUpdate is a pending write of a task's column and position.
type PositionUpdate struct {
	ID       string     `json:"id"`
	Status   TaskStatus `json:"status"`
	Position int        `json:"position"`
}

// Apply moves a card and renumbers the destination column. It returns the new
// board together with the writes needed to persist it: the moved task always,
// plus every other destination task whose position changed. Every entry
// carries the destination status, including tasks that stayed in place, so
// the writes can be replayed safely. The source column keeps its positions.
//
// b is not modified. An index outside the board yields ErrInconsistentBoard.
func Apply(b Board, m Move) (Board, []PositionUpdate, error) {
	if !m.SourceStatus.Valid() || !m.DestStatus.Valid() {
		return b, nil, fmt.Errorf("%w: unknown column in move %+v", ErrInconsistentBoard, m)
	}
	if m.SourceStatus == m.DestStatus && m.SourceIndex == m.DestIndex {
		return b, nil, nil
	}

	src := b.columns[m.SourceStatus]
	if m.SourceIndex < 0 || m.SourceIndex >= len(src) {
		return b, nil, fmt.Errorf("%w: no task at %s[%d]", ErrInconsistentBoard, m.SourceStatus, m.SourceIndex)
	}

	moved := src[m.SourceIndex]
	remaining := make([]Task, 0, len(src)-1)
	remaining = append(remaining, src[:m.SourceIndex]...)
	remaining = append(remaining, src[m.SourceIndex+1:]...)

	var dest []Task
	if m.SourceStatus == m.DestStatus {
		dest = remaining
	} else {
		moved.Status = m.DestStatus
		dest = b.columns[m.DestStatus]
	}
	if m.DestIndex < 0 || m.DestIndex > len(dest) {
		return b, nil, fmt.Errorf("%w: cannot insert at %s[%d]", ErrInconsistentBoard, m.DestStatus, m.DestIndex)
	}

	column := make([]Task, 0, len(dest)+1)
	column = append(column, dest[:m.DestIndex]...)
	column = append(column, moved)
	column = append(column, dest[m.DestIndex:]...)

	var diff diffSet
	diff.put(PositionUpdate{ID: moved.ID, Status: m.DestStatus, Position: SlotPosition(m.DestIndex)})
	for i := range column {
		pos := SlotPosition(i)
		if i != m.DestIndex && column[i].Position != pos {
			diff.put(PositionUpdate{ID: column[i].ID, Status: m.DestStatus, Position: pos})
		}
		column[i].Position = pos
	}

	next := b.clone()
	if m.SourceStatus != m.DestStatus {
		next.columns[m.SourceStatus] = remaining
	}
	next.columns[m.DestStatus] = column
	return next, diff.entries, nil
}

// diffSet keeps one entry per task id in first-seen order; a later put for the
// same id overwrites the earlier value.
type diffSet struct {
	entries []PositionUpdate
	index   map[string]int
}

func (d *diffSet) put(u PositionUpdate) {
	if d.index == nil {
		d.index = make(map[string]int)
	}
	if i, ok := d.index[u.ID]; ok {
		d.entries[i] = u
		return
	}
	d.index[u.ID] = len(d.entries)
	d.entries = append(d.entries, u)
}
