package ring

import "testing"

func TestBufferKeepsMostRecent(t *testing.T) {
	b := New[int](3)
	for i := 1; i <= 5; i++ {
		b.Push(i)
	}
	got := b.Items()
	want := []int{3, 4, 5}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("items[%d] = %d, want %d", i, got[i], want[i])
		}
	}
	last, ok := b.Last()
	if !ok || last != 5 {
		t.Fatalf("last = %d,%v want 5,true", last, ok)
	}
}

func TestBufferCloneIsIndependent(t *testing.T) {
	b := New[string](2)
	b.Push("a")
	c := b.Clone()
	c.Push("b")
	c.Push("c")
	if b.Len() != 1 {
		t.Fatalf("original mutated: len=%d", b.Len())
	}
	if got := c.Items(); got[0] != "b" || got[1] != "c" {
		t.Fatalf("unexpected clone items: %v", got)
	}
}

func TestBufferZeroCapacity(t *testing.T) {
	b := New[int](0)
	b.Push(1)
	b.Push(2)
	if b.Cap() != 1 || b.Items()[0] != 2 {
		t.Fatalf("unexpected buffer state: cap=%d items=%v", b.Cap(), b.Items())
	}
	if _, ok := New[int](4).Last(); ok {
		t.Fatal("expected empty buffer to report no last item")
	}
}
