package domain

import "sort"

// Board holds the display order of a loaded set of tasks, one column per
// status. A Board is a value: every operation returns a new one and leaves
// the receiver untouched.
type Board struct {
	columns map[TaskStatus][]Task
}

// Build partitions tasks by status and orders each column by ascending
// position. Equal positions keep their input order. Tasks with an unknown
// status are left off the board.
func Build(tasks []Task) Board {
	b := Board{columns: make(map[TaskStatus][]Task, len(Statuses))}
	for _, s := range Statuses {
		b.columns[s] = []Task{}
	}
	for _, t := range tasks {
		if !t.Status.Valid() {
			continue
		}
		b.columns[t.Status] = append(b.columns[t.Status], t)
	}
	for _, s := range Statuses {
		col := b.columns[s]
		sort.SliceStable(col, func(i, j int) bool { return col[i].Position < col[j].Position })
	}
	return b
}

// Column returns a copy of the tasks in status s, in display order.
func (b Board) Column(s TaskStatus) []Task {
	col := b.columns[s]
	out := make([]Task, len(col))
	copy(out, col)
	return out
}

// Len returns the number of tasks in status s.
func (b Board) Len(s TaskStatus) int {
	return len(b.columns[s])
}

// IDs returns the task identifiers of status s in display order.
func (b Board) IDs(s TaskStatus) []string {
	col := b.columns[s]
	ids := make([]string, len(col))
	for i, t := range col {
		ids[i] = t.ID
	}
	return ids
}

// Order returns the identifiers of every column.
func (b Board) Order() map[TaskStatus][]string {
	out := make(map[TaskStatus][]string, len(Statuses))
	for _, s := range Statuses {
		out[s] = b.IDs(s)
	}
	return out
}

// Columns returns a copy of every column, keyed by status.
func (b Board) Columns() map[TaskStatus][]Task {
	out := make(map[TaskStatus][]Task, len(Statuses))
	for _, s := range Statuses {
		out[s] = b.Column(s)
	}
	return out
}

// Tasks flattens the board back into a task list, column by column.
func (b Board) Tasks() []Task {
	var out []Task
	for _, s := range Statuses {
		out = append(out, b.columns[s]...)
	}
	return out
}

func (b Board) clone() Board {
	c := Board{columns: make(map[TaskStatus][]Task, len(b.columns))}
	for s, col := range b.columns {
		c.columns[s] = col
	}
	return c
}
