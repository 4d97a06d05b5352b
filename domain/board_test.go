package domain

import (
	"reflect"
	"testing"
)

func TestBuildOrdersByPosition(t *testing.T) {
	b := Build([]Task{
		task("c", StatusTodo, 3000),
		task("a", StatusTodo, 1000),
		task("x", StatusDone, 1000),
		task("b", StatusTodo, 2000),
	})
	if got := b.IDs(StatusTodo); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("unexpected todo order %v", got)
	}
	if got := b.IDs(StatusDone); !reflect.DeepEqual(got, []string{"x"}) {
		t.Fatalf("unexpected done order %v", got)
	}
	for _, s := range Statuses {
		if b.Column(s) == nil {
			t.Fatalf("column %s should be empty, not nil", s)
		}
	}
}

func TestBuildKeepsInputOrderOnTies(t *testing.T) {
	b := Build([]Task{
		task("first", StatusBacklog, 1000),
		task("second", StatusBacklog, 1000),
		task("third", StatusBacklog, 1000),
	})
	if got := b.IDs(StatusBacklog); !reflect.DeepEqual(got, []string{"first", "second", "third"}) {
		t.Fatalf("ties must keep input order, got %v", got)
	}
}

func TestBuildSkipsUnknownStatus(t *testing.T) {
	b := Build([]Task{task("a", "ARCHIVED", 1000), task("b", StatusTodo, 1000)})
	if n := len(b.Tasks()); n != 1 {
		t.Fatalf("expected 1 task on board, got %d", n)
	}
}

func TestBoardColumnIsCopy(t *testing.T) {
	b := Build([]Task{task("a", StatusTodo, 1000)})
	col := b.Column(StatusTodo)
	col[0].Name = "changed"
	if b.Column(StatusTodo)[0].Name != "a" {
		t.Fatalf("board mutated through Column")
	}
}
