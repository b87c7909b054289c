package buffer

import (
	"reflect"
	"testing"
)

func TestRing_EvictsOldest(t *testing.T) {
	r := NewRing[int](3)
	for i := 1; i <= 5; i++ {
		r.Push(i)
	}

	if got := r.Last(0); !reflect.DeepEqual(got, []int{3, 4, 5}) {
		t.Errorf("Last(0) = %v, want [3 4 5]", got)
	}
	if r.Len() != 3 {
		t.Errorf("Len() = %d, want 3", r.Len())
	}
	if r.Total() != 5 {
		t.Errorf("Total() = %d, want 5", r.Total())
	}
}

func TestRing_LastLimit(t *testing.T) {
	r := NewRing[string](5)
	r.Push("a")
	r.Push("b")
	r.Push("c")

	tests := []struct {
		limit int
		want  []string
	}{
		{0, []string{"a", "b", "c"}},
		{2, []string{"b", "c"}},
		{10, []string{"a", "b", "c"}},
		{-1, []string{"a", "b", "c"}},
	}
	for _, tt := range tests {
		if got := r.Last(tt.limit); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Last(%d) = %v, want %v", tt.limit, got, tt.want)
		}
	}
}

func TestRing_Reset(t *testing.T) {
	r := NewRing[int](2)
	r.Push(1)
	r.Push(2)
	r.Reset()

	if r.Len() != 0 || r.Total() != 0 {
		t.Errorf("after Reset Len=%d Total=%d, want 0 0", r.Len(), r.Total())
	}
	if got := r.Last(0); len(got) != 0 {
		t.Errorf("Last(0) after Reset = %v, want empty", got)
	}

	r.Push(7)
	if got := r.Last(0); !reflect.DeepEqual(got, []int{7}) {
		t.Errorf("Last(0) = %v, want [7]", got)
	}
}

func TestNewRing_MinSize(t *testing.T) {
	if got := NewRing[int](0).Cap(); got != 1 {
		t.Errorf("Cap() = %d, want 1", got)
	}
}
