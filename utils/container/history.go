package container

import (
	"log"
	"sort"
)

// snapshot 历史记录中的一个快照
type snapshot[T any] struct {
	time  float64 // 快照生效时间
	value T       // 快照值
}

// History 按时间索引的历史值
// 功能：以追加写日志的形式记录值随仿真时间的变化，支持按时间二分查找历史值
// 说明：写入时间必须单调不减；同一时刻的多次写入覆盖最后一个快照；
// 值本身应视为不可变，修改时写入新的副本
type History[T any] struct {
	log     []snapshot[T]
	horizon float64 // 保留的历史时长，<=0表示不裁剪
}

// NewHistory 创建历史记录
// 参数：horizon-保留的历史时长（秒），<=0表示永久保留
func NewHistory[T any](horizon float64) *History[T] {
	return &History[T]{horizon: horizon}
}

// Set 写入时刻t的值
// 功能：在时刻t记录新值，并裁剪超出保留时长的旧快照
// 参数：t-生效时间，value-新值
// 说明：t早于最后一个快照时panic，这意味着调用方时间倒流
func (h *History[T]) Set(t float64, value T) {
	n := len(h.log)
	if n > 0 {
		last := h.log[n-1].time
		if t < last {
			log.Panicf("history: set at %v before last snapshot %v", t, last)
		}
		if t == last {
			h.log[n-1].value = value
			return
		}
	}
	h.log = append(h.log, snapshot[T]{time: t, value: value})
	h.prune(t)
}

// prune 裁剪过旧的快照，始终保留在horizon边界处仍然有效的那一个
func (h *History[T]) prune(now float64) {
	if h.horizon <= 0 {
		return
	}
	cut := sort.Search(len(h.log), func(i int) bool {
		return h.log[i].time > now-h.horizon
	}) - 1
	if cut > 0 {
		h.log = append(h.log[:0], h.log[cut:]...)
	}
}

// At 获取时刻t有效的值
// 返回：值与是否存在（t早于第一个快照时不存在）
func (h *History[T]) At(t float64) (T, bool) {
	i := sort.Search(len(h.log), func(i int) bool {
		return h.log[i].time > t
	}) - 1
	if i < 0 {
		var zero T
		return zero, false
	}
	return h.log[i].value, true
}

// Latest 获取最新值
func (h *History[T]) Latest() (T, bool) {
	if len(h.log) == 0 {
		var zero T
		return zero, false
	}
	return h.log[len(h.log)-1].value, true
}

// Len 获取快照数量
func (h *History[T]) Len() int {
	return len(h.log)
}
