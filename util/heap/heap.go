// Package heap is a typed min-heap over container/heap.
package heap

import "container/heap"

// Heap pops the item the comparator orders first.
type Heap[T any] struct {
	items items[T]
}

func NewHeap[T any](comparator func(a, b T) int, initial ...T) Heap[T] {
	out := Heap[T]{
		items: items[T]{
			comparator: comparator,
			list:       initial,
		},
	}
	heap.Init(&out.items)
	return out
}

func (me *Heap[T]) Size() int {
	return len(me.items.list)
}

func (me *Heap[T]) Peek() T {
	return me.items.list[0]
}

func (me *Heap[T]) Pop() T {
	return heap.Pop(&me.items).(T)
}

func (me *Heap[T]) Push(value T) {
	heap.Push(&me.items, value)
}

var _ heap.Interface = (*items[any])(nil)

type items[T any] struct {
	comparator func(a, b T) int
	list       []T
}

func (me *items[T]) Len() int           { return len(me.list) }
func (me *items[T]) Swap(i, j int)      { me.list[i], me.list[j] = me.list[j], me.list[i] }
func (me *items[T]) Less(i, j int) bool { return me.comparator(me.list[i], me.list[j]) < 0 }

func (me *items[T]) Push(x any) {
	me.list = append(me.list, x.(T))
}

func (me *items[T]) Pop() any {
	last := len(me.list) - 1
	out := me.list[last]
	var zero T
	me.list[last] = zero
	me.list = me.list[:last]
	return out
}
