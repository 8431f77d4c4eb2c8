package engine

import "container/heap"

// readyItem is one entry in the ready queue: an instance key, the priority
// score it was queued with, and the order it was pushed in. Lower priority
// values run first, matching a min-heap over calculate_task_priority's
// ascending-urgency convention (more negative / smaller is more urgent).
// seq breaks ties between equal priorities so that identical inputs always
// produce the same pop order regardless of container/heap's internal
// sift path.
type readyItem struct {
	key      string
	priority float64
	seq      int
}

type readyQueue struct {
	items []readyItem
	next  int
}

func (q *readyQueue) Len() int { return len(q.items) }
func (q *readyQueue) Less(i, j int) bool {
	if q.items[i].priority != q.items[j].priority {
		return q.items[i].priority < q.items[j].priority
	}
	return q.items[i].seq < q.items[j].seq
}
func (q *readyQueue) Swap(i, j int)       { q.items[i], q.items[j] = q.items[j], q.items[i] }
func (q *readyQueue) Push(x interface{}) { q.items = append(q.items, x.(readyItem)) }
func (q *readyQueue) Pop() interface{} {
	old := q.items
	n := len(old)
	item := old[n-1]
	q.items = old[:n-1]
	return item
}

func newReadyQueue() *readyQueue {
	q := &readyQueue{}
	heap.Init(q)
	return q
}

// push enqueues key with the given priority, stamping it with the next
// insertion sequence number so equal-priority ties resolve in push order.
func (q *readyQueue) push(key string, priority float64) {
	heap.Push(q, readyItem{key: key, priority: priority, seq: q.next})
	q.next++
}

func (q *readyQueue) pop() (string, float64, bool) {
	if q.Len() == 0 {
		return "", 0, false
	}
	item := heap.Pop(q).(readyItem)
	return item.key, item.priority, true
}
