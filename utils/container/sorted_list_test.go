package container_test

import (
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/tsinghua-fib-lab/lanesim/utils/container"
)

func node(s float64, v string) *container.Node[string] {
	return &container.Node[string]{S: s, Value: v}
}

func TestSortedListEmpty(t *testing.T) {
	l := &container.SortedList[string]{}
	assert.Nil(t, l.First())
	assert.Nil(t, l.Last())
	assert.Equal(t, 0, l.Len())
	assert.Empty(t, l.Values())
}

func TestSortedListInsertSorted(t *testing.T) {
	l := &container.SortedList[string]{}
	for i, s := range []float64{5, 1, 3, 3, 9} {
		l.InsertSorted(node(s, string(rune('a'+i))))
	}
	assert.Equal(t, []float64{1, 3, 3, 5, 9}, l.Keys())
	// 键值相同按插入先后
	assert.Equal(t, []string{"b", "c", "d", "a", "e"}, l.Values())

	n := node(3, "f")
	l.InsertSorted(n)
	assert.Equal(t, n, l.First().Next().Next().Next())
	assert.Equal(t, "e", l.Last().Value)
	assert.Equal(t, n, l.Last().Prev().Prev())
}

func TestSortedListRemove(t *testing.T) {
	l := &container.SortedList[string]{}
	a, b, c := node(1, "a"), node(2, "b"), node(3, "c")
	for _, n := range []*container.Node[string]{a, b, c} {
		l.InsertSorted(n)
	}
	l.Remove(c)
	assert.Equal(t, b, l.Last())
	l.Remove(a)
	assert.Equal(t, b, l.First())
	assert.Equal(t, 1, l.Len())
	assert.Nil(t, b.Prev())
	assert.Nil(t, b.Next())

	// 节点不能重复加入或从其他链表删除
	other := &container.SortedList[string]{ID: "other"}
	assert.Panics(t, func() { other.Remove(b) })
	assert.Panics(t, func() { other.InsertSorted(b) })
}

func TestSortedListReorder(t *testing.T) {
	l := &container.SortedList[string]{}
	nodes := map[string]*container.Node[string]{}
	for i, v := range []string{"a", "b", "c", "d", "e"} {
		nodes[v] = node(float64(i), v)
		l.InsertSorted(nodes[v])
	}
	// 外部修改键值：b超过d，e退到a之前
	nodes["b"].S = 3.5
	nodes["e"].S = -1

	unsorted := l.PopUnsorted()
	// b之后的c、d、e都小于b
	assert.Equal(t, []string{"c", "d", "e"}, lo.Map(unsorted, func(n *container.Node[string], _ int) string {
		return n.Value
	}))
	assert.Equal(t, []string{"a", "b"}, l.Values())

	l.Merge(unsorted)
	assert.Equal(t, []string{"e", "a", "c", "d", "b"}, l.Values())
	assert.Equal(t, []float64{-1, 0, 2, 3, 3.5}, l.Keys())
	assert.Equal(t, "b", l.Last().Value)
	assert.Empty(t, l.PopUnsorted())
}
