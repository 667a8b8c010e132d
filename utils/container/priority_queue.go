package container

import "container/heap"

type entry[T any] struct {
	value    T
	priority float64
	seq      uint64 // 入队序号，同优先级先进先出
}

// entries 最小堆，实现heap.Interface
type entries[T any] []entry[T]

func (h entries[T]) Len() int { return len(h) }

func (h entries[T]) Less(i, j int) bool {
	if h[i].priority == h[j].priority {
		return h[i].seq < h[j].seq
	}
	return h[i].priority < h[j].priority
}

func (h entries[T]) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *entries[T]) Push(x any) { *h = append(*h, x.(entry[T])) }

func (h *entries[T]) Pop() any {
	old := *h
	last := old[len(old)-1]
	old[len(old)-1] = entry[T]{}
	*h = old[:len(old)-1]
	return last
}

// PriorityQueue 优先队列
// 功能：按优先级数值从小到大出队，数值相同时按入队顺序出队，保证同一仿真时刻的事件顺序确定
type PriorityQueue[T any] struct {
	heap entries[T]
	seq  uint64
}

func NewPriorityQueue[T any]() *PriorityQueue[T] {
	return &PriorityQueue[T]{}
}

func (q *PriorityQueue[T]) Len() int {
	return len(q.heap)
}

// Push 入队
func (q *PriorityQueue[T]) Push(value T, priority float64) {
	q.seq++
	heap.Push(&q.heap, entry[T]{value: value, priority: priority, seq: q.seq})
}

// Peek 查看队首元素及其优先级，队列为空时ok为false
func (q *PriorityQueue[T]) Peek() (value T, priority float64, ok bool) {
	if len(q.heap) == 0 {
		return value, 0, false
	}
	return q.heap[0].value, q.heap[0].priority, true
}

// Pop 出队，队列为空时panic
func (q *PriorityQueue[T]) Pop() (T, float64) {
	e := heap.Pop(&q.heap).(entry[T])
	return e.value, e.priority
}
