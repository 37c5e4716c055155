package engine

import (
	"container/heap"

	"github.com/nvandessel/cellnet/internal/network"
)

// event is one pending synaptic delivery.
type event struct {
	tick    int // delivery tick
	seq     uint64
	emitted float64
	conn    *network.Connection
}

// eventHeap orders events by delivery tick, then by scheduling order, so that
// events due on the same tick are delivered in the order their spikes were
// processed.
type eventHeap []event

func (h eventHeap) Len() int { return len(h) }
func (h eventHeap) Less(i, j int) bool {
	if h[i].tick != h[j].tick {
		return h[i].tick < h[j].tick
	}
	return h[i].seq < h[j].seq
}
func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *eventHeap) Push(x any)   { *h = append(*h, x.(event)) }
func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	ev := old[n-1]
	old[n-1] = event{}
	*h = old[:n-1]
	return ev
}

// eventQueue is a min-time-ordered queue of deliveries on the tick grid.
type eventQueue struct {
	h   eventHeap
	seq uint64
}

func (q *eventQueue) push(tick int, emitted float64, conn *network.Connection) {
	heap.Push(&q.h, event{tick: tick, seq: q.seq, emitted: emitted, conn: conn})
	q.seq++
}

// popDue removes and returns every event whose tick is at or before tick.
func (q *eventQueue) popDue(tick int, out []event) []event {
	for q.h.Len() > 0 && q.h[0].tick <= tick {
		out = append(out, heap.Pop(&q.h).(event))
	}
	return out
}

func (q *eventQueue) len() int { return q.h.Len() }

func (q *eventQueue) reset() {
	q.h = q.h[:0]
	q.seq = 0
}
