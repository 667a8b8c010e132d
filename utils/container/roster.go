package container

import "sync"

// RosterMember 可加入花名册的元素，记录自己在花名册中的槽位
type RosterMember interface {
	comparable
	Slot() int
	SetSlot(slot int)
}

// RosterSlot 槽位记录，嵌入元素结构体即可实现RosterMember
type RosterSlot struct {
	slot int
}

func (s *RosterSlot) Slot() int {
	return s.slot
}

func (s *RosterSlot) SetSlot(slot int) {
	s.slot = slot
}

// Roster 花名册
// 功能：以连续数组保存成员，加入与离开先登记，Commit时统一生效
// 说明：离开通过与末尾成员交换实现，成员顺序不稳定；同一批次中先加入后离开的成员不会出现在数组中
type Roster[T RosterMember] struct {
	mu      sync.Mutex
	members []T
	joining []T
	leaving []T
}

func NewRoster[T RosterMember]() *Roster[T] {
	return &Roster[T]{}
}

// Len 已生效的成员数
func (r *Roster[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// Members 已生效的成员，返回的切片在下次Commit前有效
func (r *Roster[T]) Members() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.members
}

// Join 登记加入
func (r *Roster[T]) Join(m T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.joining = append(r.joining, m)
}

// Leave 登记离开
func (r *Roster[T]) Leave(m T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaving = append(r.leaving, m)
}

// Commit 依次执行已登记的加入与离开
// 说明：离开的成员不在花名册中（或已离开）时忽略
func (r *Roster[T]) Commit() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.joining {
		m.SetSlot(len(r.members))
		r.members = append(r.members, m)
	}
	for _, m := range r.leaving {
		i := m.Slot()
		if i < 0 || i >= len(r.members) || r.members[i] != m {
			continue
		}
		last := len(r.members) - 1
		moved := r.members[last]
		r.members[i] = moved
		moved.SetSlot(i)
		var zero T
		r.members[last] = zero
		r.members = r.members[:last]
		m.SetSlot(-1)
	}
	r.joining = nil
	r.leaving = nil
}
