package scheduler

import "container/heap"

// startHeap implements container/heap.Interface for StartEvent,
// sorted by TriggerAt (earliest first — min-heap).
type startHeap []StartEvent

func (h startHeap) Len() int           { return len(h) }
func (h startHeap) Less(i, j int) bool { return h[i].TriggerAt.Before(h[j].TriggerAt) }
func (h startHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *startHeap) Push(x any) {
	*h = append(*h, x.(StartEvent))
}

func (h *startHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// heapPush adds a StartEvent to the heap, maintaining heap invariant.
func heapPush(h *startHeap, e StartEvent) {
	heap.Push(h, e)
}

// heapPop removes and returns the StartEvent with the earliest TriggerAt.
// Panics if the heap is empty.
func heapPop(h *startHeap) StartEvent {
	return heap.Pop(h).(StartEvent)
}

// heapRemoveByID removes the first StartEvent with the given schedule ID.
// Returns true if the event was found and removed, false otherwise.
func heapRemoveByID(h *startHeap, id string) bool {
	for i, e := range *h {
		if e.ID == id {
			heap.Remove(h, i)
			return true
		}
	}
	return false
}
