package lane

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/lanesim/entity"
	"github.com/tsinghua-fib-lab/lanesim/utils/geometry"
)

// LaneManager Lane管理器
// 功能：管理所有路段与车道实体，提供创建、连接、查找、登记表刷新等功能
type LaneManager struct {
	links    map[string]*Link
	linkList []*Link
	data     map[string]*Lane
	lanes    []*Lane
}

// NewManager 创建Lane管理器实例
func NewManager() *LaneManager {
	return &LaneManager{
		links: make(map[string]*Link),
		data:  make(map[string]*Lane),
	}
}

// AddLink 创建路段及其车道
// 功能：根据参考线点列创建路段，车道ID为"{路段ID}.{索引}"
// 参数：id-路段ID，points-参考线点列，laneCount-车道数，laneWidth-车道宽度，allowedTypes-允许车辆类型
// 返回：路段与错误（ID重复、几何退化、车道数非法时返回错误）
func (m *LaneManager) AddLink(id string, points []orb.Point, laneCount int, laneWidth float64, allowedTypes []string) (*Link, error) {
	if _, ok := m.links[id]; ok {
		return nil, fmt.Errorf("duplicate link id %s", id)
	}
	if laneCount <= 0 || laneWidth <= 0 {
		return nil, fmt.Errorf("link %s: bad lane count %d or width %v", id, laneCount, laneWidth)
	}
	line, err := geometry.NewPolyline(points...)
	if err != nil {
		return nil, fmt.Errorf("link %s: %w", id, err)
	}
	k := newLink(id, line, laneCount, laneWidth, allowedTypes)
	m.links[id] = k
	m.linkList = append(m.linkList, k)
	for _, l := range k.lanes {
		m.data[l.id] = l
		m.lanes = append(m.lanes, l)
	}
	return k, nil
}

// Connect 连接两个路段
// 功能：按车道索引一一配对连接上下游车道，车道数不同时多出的车道连接到对侧最近的车道
// 参数：from-上游路段ID，to-下游路段ID
func (m *LaneManager) Connect(from, to string) error {
	a, ok := m.links[from]
	if !ok {
		return fmt.Errorf("connect: no link %s", from)
	}
	b, ok := m.links[to]
	if !ok {
		return fmt.Errorf("connect: no link %s", to)
	}
	n := lo.Max([]int{len(a.lanes), len(b.lanes)})
	for i := 0; i < n; i++ {
		connectLanes(
			a.lanes[lo.Min([]int{i, len(a.lanes) - 1})],
			b.lanes[lo.Min([]int{i, len(b.lanes) - 1})],
		)
	}
	return nil
}

// ConnectLanes 连接两条车道（同时建立路段级连接）
func (m *LaneManager) ConnectLanes(from, to string) error {
	a, ok := m.data[from]
	if !ok {
		return fmt.Errorf("connect: no lane %s", from)
	}
	b, ok := m.data[to]
	if !ok {
		return fmt.Errorf("connect: no lane %s", to)
	}
	connectLanes(a, b)
	return nil
}

func connectLanes(a, b *Lane) {
	if !lo.Contains(a.successors, b) {
		a.successors = append(a.successors, b)
		b.predecessors = append(b.predecessors, a)
	}
	a.link.connect(b.link)
}

// SetLaneChange 设置从车道id向dir一侧是否允许合法变道
func (m *LaneManager) SetLaneChange(id string, dir entity.LateralDirection, allowed bool) error {
	l, ok := m.data[id]
	if !ok {
		return fmt.Errorf("lane change rule: no lane %s", id)
	}
	if dir != entity.DirectionLeft && dir != entity.DirectionRight {
		return fmt.Errorf("lane change rule on %s: bad direction %v", id, dir)
	}
	l.changeLegal[dir] = allowed
	return nil
}

// Get 根据ID获取Lane实例，如果不存在则panic
func (m *LaneManager) Get(id string) entity.ILane {
	if lane, ok := m.data[id]; !ok {
		log.Panicf("no id %s in lane data", id)
		return nil
	} else {
		return lane
	}
}

// GetOrError 根据ID获取Lane实例，如果不存在则返回错误
func (m *LaneManager) GetOrError(id string) (entity.ILane, error) {
	if lane, ok := m.data[id]; !ok {
		return nil, fmt.Errorf("no id %s in lane data", id)
	} else {
		return lane, nil
	}
}

// GetLink 根据ID获取路段
func (m *LaneManager) GetLink(id string) (entity.ILink, error) {
	if link, ok := m.links[id]; !ok {
		return nil, fmt.Errorf("no id %s in link data", id)
	} else {
		return link, nil
	}
}

func (m *LaneManager) Lanes() []entity.ILane {
	return lo.Map(m.lanes, func(l *Lane, _ int) entity.ILane { return l })
}

func (m *LaneManager) Links() []entity.ILink {
	return lo.Map(m.linkList, func(l *Link, _ int) entity.ILink { return l })
}

// Refresh 刷新所有车道的车辆登记表顺序
// 功能：以now时刻车辆参考点在各车道上的位置重新排序，供按位置遍历车辆的感知查询使用
func (m *LaneManager) Refresh(now float64) {
	for _, l := range m.lanes {
		l.refresh(now)
	}
}
