package container

import (
	"fmt"
	"log"
	"slices"
)

// Node 有序链表节点，S为排序键（通常是车道上的位置）
type Node[T any] struct {
	S     float64
	Value T

	owner      *SortedList[T]
	prev, next *Node[T]
}

func (n *Node[T]) String() string {
	return fmt.Sprintf("Node{S:%v, Value:%+v}", n.S, n.Value)
}

func (n *Node[T]) Next() *Node[T] {
	return n.next
}

func (n *Node[T]) Prev() *Node[T] {
	return n.prev
}

// SortedList 按键值升序排列的双向链表
// 功能：支持有序插入、删除，以及键值被外部修改后的局部重排
// 说明：键值相同的节点按插入先后排列
type SortedList[T any] struct {
	ID         string
	head, tail *Node[T]
	n          int
}

func (l *SortedList[T]) String() string {
	return fmt.Sprintf("SortedList{ID:%v, Len:%d}", l.ID, l.n)
}

func (l *SortedList[T]) Len() int {
	return l.n
}

func (l *SortedList[T]) First() *Node[T] {
	return l.head
}

func (l *SortedList[T]) Last() *Node[T] {
	return l.tail
}

// Keys 按链表顺序返回所有键值
func (l *SortedList[T]) Keys() []float64 {
	keys := make([]float64, 0, l.n)
	for node := l.head; node != nil; node = node.next {
		keys = append(keys, node.S)
	}
	return keys
}

// Values 按链表顺序返回所有值
func (l *SortedList[T]) Values() []T {
	values := make([]T, 0, l.n)
	for node := l.head; node != nil; node = node.next {
		values = append(values, node.Value)
	}
	return values
}

// link 将add接在after之后，after为nil时接到表头
func (l *SortedList[T]) link(after, add *Node[T]) {
	if add.owner != nil {
		log.Panicf("container: node %v already in list %v", add, add.owner)
	}
	add.owner = l
	add.prev = after
	if after == nil {
		add.next = l.head
		l.head = add
	} else {
		add.next = after.next
		after.next = add
	}
	if add.next == nil {
		l.tail = add
	} else {
		add.next.prev = add
	}
	l.n++
}

// InsertSorted 有序插入，从表尾向前查找第一个键值不大于add的节点
func (l *SortedList[T]) InsertSorted(add *Node[T]) {
	after := l.tail
	for after != nil && after.S > add.S {
		after = after.prev
	}
	l.link(after, add)
}

// Remove 删除节点，节点不属于该链表时panic
func (l *SortedList[T]) Remove(node *Node[T]) {
	if node.owner != l {
		log.Panicf("container: node %v is not in list %v", node, l)
	}
	if node.prev == nil {
		l.head = node.next
	} else {
		node.prev.next = node.next
	}
	if node.next == nil {
		l.tail = node.prev
	} else {
		node.next.prev = node.prev
	}
	node.owner, node.prev, node.next = nil, nil, nil
	l.n--
}

// PopUnsorted 摘除键值小于其前驱的节点
// 说明：摘除后剩余节点保持升序
func (l *SortedList[T]) PopUnsorted() (unsorted []*Node[T]) {
	for node := l.head; node != nil; {
		next := node.next
		if node.prev != nil && node.prev.S > node.S {
			l.Remove(node)
			unsorted = append(unsorted, node)
		}
		node = next
	}
	return unsorted
}

// Merge 将一批节点按键值归并进链表，adds无需有序
func (l *SortedList[T]) Merge(adds []*Node[T]) {
	slices.SortStableFunc(adds, func(a, b *Node[T]) int {
		switch {
		case a.S < b.S:
			return -1
		case a.S > b.S:
			return 1
		}
		return 0
	})
	var after *Node[T]
	next := l.head
	for _, add := range adds {
		for next != nil && next.S <= add.S {
			after, next = next, next.next
		}
		l.link(after, add)
		after = add
	}
}
