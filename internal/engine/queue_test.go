package engine

import "testing"

func TestQueueFIFOWithHeadInsertion(t *testing.T) {
	q := newSignalQueue()
	a := &Signal{ID: "a"}
	b := &Signal{ID: "b"}
	c := &Signal{ID: "c"}

	q.Push(a)
	q.Push(b)
	q.PushFront(c)

	if got := q.Len(); got != 3 {
		t.Fatalf("len=%d, expected 3", got)
	}
	drained := q.DrainN(10)
	want := []string{"c", "a", "b"}
	if len(drained) != len(want) {
		t.Fatalf("drained %d signals, expected %d", len(drained), len(want))
	}
	for i, sig := range drained {
		if sig.ID != want[i] {
			t.Fatalf("position %d: got %s, expected %s", i, sig.ID, want[i])
		}
	}
	if q.Len() != 0 {
		t.Fatal("queue should be empty after drain")
	}
}

func TestQueueDrainRespectsBatchSize(t *testing.T) {
	q := newSignalQueue()
	for _, id := range []string{"1", "2", "3", "4", "5"} {
		q.Push(&Signal{ID: id})
	}
	first := q.DrainN(3)
	if len(first) != 3 || first[0].ID != "1" || first[2].ID != "3" {
		t.Fatalf("first batch wrong: %v", ids(first))
	}
	second := q.DrainN(3)
	if len(second) != 2 || second[0].ID != "4" {
		t.Fatalf("second batch wrong: %v", ids(second))
	}
}

func ids(sigs []*Signal) []string {
	out := make([]string, len(sigs))
	for i, s := range sigs {
		out[i] = s.ID
	}
	return out
}
