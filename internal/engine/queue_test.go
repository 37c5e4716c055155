package engine

import (
	"testing"

	"github.com/nvandessel/cellnet/internal/network"
)

func TestEventQueue_OrdersByTickThenSequence(t *testing.T) {
	a := &network.Connection{Index: 0}
	b := &network.Connection{Index: 1}
	c := &network.Connection{Index: 2}

	var q eventQueue
	q.push(40, 0, a)
	q.push(10, 0, b)
	q.push(10, 0, c)
	q.push(25, 0, a)

	due := q.popDue(9, nil)
	if len(due) != 0 {
		t.Fatalf("popDue(9) = %d events, want 0", len(due))
	}

	due = q.popDue(25, nil)
	want := []struct {
		tick int
		conn *network.Connection
	}{{10, b}, {10, c}, {25, a}}
	if len(due) != len(want) {
		t.Fatalf("popDue(25) = %d events, want %d", len(due), len(want))
	}
	for i, w := range want {
		if due[i].tick != w.tick || due[i].conn != w.conn {
			t.Errorf("event %d = tick %d conn %d, want tick %d conn %d",
				i, due[i].tick, due[i].conn.Index, w.tick, w.conn.Index)
		}
	}
	if q.len() != 1 {
		t.Errorf("remaining = %d, want 1", q.len())
	}

	q.reset()
	if q.len() != 0 {
		t.Errorf("len after reset = %d", q.len())
	}
}
