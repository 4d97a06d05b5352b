package domain

import (
	"errors"
	"fmt"
	"reflect"
	"testing"
)

func TestApplySameSlotIsNoop(t *testing.T) {
	b := Build([]Task{task("a", StatusTodo, 1000), task("b", StatusTodo, 2000)})
	next, diff, err := Apply(b, Move{SourceStatus: StatusTodo, SourceIndex: 1, DestStatus: StatusTodo, DestIndex: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(diff) != 0 {
		t.Fatalf("expected empty diff, got %v", diff)
	}
	if !reflect.DeepEqual(next.Order(), b.Order()) {
		t.Fatalf("board changed on no-op move")
	}
}

func TestApplyReorderWithinColumn(t *testing.T) {
	b := Build([]Task{task("A", StatusTodo, 1000), task("B", StatusTodo, 2000), task("C", StatusTodo, 3000)})
	next, diff, err := Apply(b, Move{SourceStatus: StatusTodo, SourceIndex: 2, DestStatus: StatusTodo, DestIndex: 0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := next.IDs(StatusTodo); !reflect.DeepEqual(got, []string{"C", "A", "B"}) {
		t.Fatalf("unexpected order %v", got)
	}
	want := []PositionUpdate{
		{ID: "C", Status: StatusTodo, Position: 1000},
		{ID: "A", Status: StatusTodo, Position: 2000},
		{ID: "B", Status: StatusTodo, Position: 3000},
	}
	if !reflect.DeepEqual(diff, want) {
		t.Fatalf("unexpected diff %+v", diff)
	}
}

func TestApplyAcrossColumns(t *testing.T) {
	b := Build([]Task{task("X", StatusTodo, 1000), task("Y", StatusTodo, 2000)})
	next, diff, err := Apply(b, Move{SourceStatus: StatusTodo, SourceIndex: 0, DestStatus: StatusDone, DestIndex: 0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []PositionUpdate{{ID: "X", Status: StatusDone, Position: 1000}}
	if !reflect.DeepEqual(diff, want) {
		t.Fatalf("unexpected diff %+v", diff)
	}
	if got := next.IDs(StatusTodo); !reflect.DeepEqual(got, []string{"Y"}) {
		t.Fatalf("source column %v", got)
	}
	// source positions are not compacted
	if next.Column(StatusTodo)[0].Position != 2000 {
		t.Fatalf("source column renumbered")
	}
	if got := next.Column(StatusDone); len(got) != 1 || got[0].Status != StatusDone {
		t.Fatalf("moved task not in destination: %+v", got)
	}
}

func TestApplyInsertInMiddleOfOtherColumn(t *testing.T) {
	b := Build([]Task{
		task("X", StatusTodo, 1000),
		task("D1", StatusDone, 1000),
		task("D2", StatusDone, 2000),
	})
	_, diff, err := Apply(b, Move{SourceStatus: StatusTodo, SourceIndex: 0, DestStatus: StatusDone, DestIndex: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []PositionUpdate{
		{ID: "X", Status: StatusDone, Position: 2000},
		{ID: "D2", Status: StatusDone, Position: 3000},
	}
	if !reflect.DeepEqual(diff, want) {
		t.Fatalf("unexpected diff %+v", diff)
	}
}

func TestApplyDiffRebuildsSameBoard(t *testing.T) {
	tasks := []Task{
		task("a", StatusBacklog, 1000),
		task("b", StatusBacklog, 1500),
		task("c", StatusBacklog, 7000),
		task("d", StatusInReview, 1000),
		task("e", StatusInReview, 1000),
	}
	b := Build(tasks)
	next, diff, err := Apply(b, Move{SourceStatus: StatusBacklog, SourceIndex: 2, DestStatus: StatusInReview, DestIndex: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	byID := map[string]PositionUpdate{}
	for _, u := range diff {
		byID[u.ID] = u
	}
	flat := make([]Task, len(tasks))
	copy(flat, tasks)
	for i := range flat {
		if u, ok := byID[flat[i].ID]; ok {
			flat[i].Status = u.Status
			flat[i].Position = u.Position
		}
	}
	if got := Build(flat).Order(); !reflect.DeepEqual(got, next.Order()) {
		t.Fatalf("rebuilt board %v differs from %v", got, next.Order())
	}
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	b := Build([]Task{task("A", StatusTodo, 1000), task("B", StatusTodo, 2000), task("C", StatusTodo, 3000)})
	before := b.Columns()
	if _, _, err := Apply(b, Move{SourceStatus: StatusTodo, SourceIndex: 0, DestStatus: StatusDone, DestIndex: 0}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, _, err := Apply(b, Move{SourceStatus: StatusTodo, SourceIndex: 2, DestStatus: StatusTodo, DestIndex: 0}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(before, b.Columns()) {
		t.Fatalf("input board was mutated")
	}
}

func TestApplyOutOfBounds(t *testing.T) {
	b := Build([]Task{task("A", StatusTodo, 1000)})
	moves := []Move{
		{SourceStatus: StatusTodo, SourceIndex: 3, DestStatus: StatusDone, DestIndex: 0},
		{SourceStatus: StatusTodo, SourceIndex: -1, DestStatus: StatusDone, DestIndex: 0},
		{SourceStatus: StatusTodo, SourceIndex: 0, DestStatus: StatusDone, DestIndex: 2},
		{SourceStatus: StatusTodo, SourceIndex: 0, DestStatus: StatusTodo, DestIndex: 1},
		{SourceStatus: "ARCHIVED", SourceIndex: 0, DestStatus: StatusTodo, DestIndex: 0},
	}
	for _, m := range moves {
		if _, _, err := Apply(b, m); !errors.Is(err, ErrInconsistentBoard) {
			t.Fatalf("move %+v: expected ErrInconsistentBoard, got %v", m, err)
		}
	}
}

func TestApplyLongColumnCollapsesAtCap(t *testing.T) {
	var tasks []Task
	for i := 0; i < 1001; i++ {
		tasks = append(tasks, task(fmt.Sprintf("t%04d", i), StatusTodo, SlotPosition(i)))
	}
	b := Build(tasks)
	next, diff, err := Apply(b, Move{SourceStatus: StatusTodo, SourceIndex: 1000, DestStatus: StatusTodo, DestIndex: 0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(diff) == 0 || diff[0].ID != "t1000" || diff[0].Position != MinPosition {
		t.Fatalf("moved task should lead the diff, got %+v", diff[:1])
	}
	capped := 0
	for _, tk := range next.Column(StatusTodo) {
		if tk.Position == MaxPosition {
			capped++
		}
		if tk.Position > MaxPosition {
			t.Fatalf("position %d above cap", tk.Position)
		}
	}
	if capped < 2 {
		t.Fatalf("expected at least two tasks at the cap, got %d", capped)
	}
}
