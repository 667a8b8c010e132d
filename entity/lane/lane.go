package lane

import (
	"fmt"
	"sort"
	"sync"

	"github.com/paulmach/orb"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/lanesim/entity"
	"github.com/tsinghua-fib-lab/lanesim/utils/geometry"
)

// Lane 车道实体
// 功能：表示路段中的一条车道，包含中心线几何、上下游与左右相邻关系、
// 车辆登记表与按位置排序的检测器索引
type Lane struct {
	id           string
	link         *Link
	offsetInLink int                // 在路段中的索引，0为最左侧车道，1为左数第二侧车道，以此类推
	line         *geometry.Polyline // 中心线
	width        float64            // 车道宽度

	allowedTypes map[string]struct{} // 允许通行的车辆类型，nil表示全部允许

	predecessors []*Lane     // 上游车道
	successors   []*Lane     // 下游车道
	sideLanes    [2]*Lane    // 左/右侧物理相邻车道
	changeLegal  [2]bool     // 是否允许向左/右合法变道
	gtus         gtuList     // 车道上的车辆
	sensorMutex  sync.RWMutex
	sensors      []entity.ISensor // 按位置升序排列的检测器
}

// newLane 创建车道
// 参数：link-所在路段，offset-在路段中的索引，line-中心线，width-车道宽度
func newLane(link *Link, offset int, line *geometry.Polyline, width float64) *Lane {
	id := fmt.Sprintf("%s.%d", link.id, offset)
	l := &Lane{
		id:           id,
		link:         link,
		offsetInLink: offset,
		line:         line,
		width:        width,
		changeLegal:  [2]bool{true, true},
		gtus:         newGTUList(fmt.Sprintf("lane %s gtus", id)),
	}
	if len(link.allowedTypes) > 0 {
		l.allowedTypes = lo.SliceToMap(link.allowedTypes, func(t string) (string, struct{}) {
			return t, struct{}{}
		})
	}
	return l
}

// 获取Lane ID
func (l *Lane) ID() string {
	return l.id
}

func (l *Lane) String() string {
	return "Lane " + l.id
}

// 获取所在路段
func (l *Lane) Link() entity.ILink {
	return l.link
}

// 获取Lane长度
func (l *Lane) Length() float64 {
	return l.line.Length()
}

// 获取Lane宽度
func (l *Lane) Width() float64 {
	return l.width
}

// 获取在路段中的索引
func (l *Lane) OffsetInLink() int {
	return l.offsetInLink
}

// 获取中心线
func (l *Lane) CenterLine() *geometry.Polyline {
	return l.line
}

// 车辆类型typ是否可以使用该车道
func (l *Lane) Allows(typ string) bool {
	if l.allowedTypes == nil {
		return true
	}
	_, ok := l.allowedTypes[typ]
	return ok
}

// LocationAt 获取中心线上s处的点，s超出[0, Length]时沿首末段延长
func (l *Lane) LocationAt(s float64) geometry.DirectedPoint {
	return l.line.LocationAt(s)
}

// ProjectFractional 将世界坐标投影到车道中心线上，返回比例位置
// 参数：p-世界坐标，fallback-越界策略（NaN或钳制到端点）
func (l *Lane) ProjectFractional(p orb.Point, fallback geometry.Fallback) float64 {
	return l.line.ProjectFractional(p, fallback)
}

func filterLanes(lanes []*Lane, typ string) []entity.ILane {
	return lo.FilterMap(lanes, func(l *Lane, _ int) (entity.ILane, bool) {
		return l, l.Allows(typ)
	})
}

// 获取车辆类型typ可用的下游车道
func (l *Lane) NextLanes(typ string) []entity.ILane {
	return filterLanes(l.successors, typ)
}

// 获取车辆类型typ可用的上游车道
func (l *Lane) PrevLanes(typ string) []entity.ILane {
	return filterLanes(l.predecessors, typ)
}

// AdjacentLane 获取相邻车道
// 功能：返回dir一侧的相邻车道
// 参数：dir-方向，typ-车辆类型，legal-是否要求合法变道（否则只要求物理相邻）
// 返回：相邻车道，不存在时返回nil
func (l *Lane) AdjacentLane(dir entity.LateralDirection, typ string, legal bool) entity.ILane {
	if dir != entity.DirectionLeft && dir != entity.DirectionRight {
		return nil
	}
	side := l.sideLanes[dir]
	if side == nil || !side.Allows(typ) {
		return nil
	}
	if legal && !l.changeLegal[dir] {
		return nil
	}
	return side
}

// AddGTU 在位置s注册车辆
// 返回：是否新注册；重复注册不改变登记表并记录警告
func (l *Lane) AddGTU(g entity.IGTU, s float64) bool {
	if !l.gtus.add(g, s) {
		log.Warnf("%v: GTU %s registered twice, ignored", l, g.ID())
		return false
	}
	return true
}

// RemoveGTU 注销车辆
// 返回：车辆未在本车道注册时返回错误
func (l *Lane) RemoveGTU(g entity.IGTU) error {
	if !l.gtus.remove(g) {
		return fmt.Errorf("%v: GTU %s is not registered", l, g.ID())
	}
	return nil
}

// 车辆是否在本车道注册
func (l *Lane) HasGTU(g entity.IGTU) bool {
	return l.gtus.has(g)
}

// 按位置顺序获取车道上的车辆快照
func (l *Lane) GTUs() []entity.IGTU {
	return l.gtus.values()
}

// 获取车道上的车辆数
func (l *Lane) GTUCount() int {
	return l.gtus.len()
}

// refresh 以车辆在本车道上的当前参考位置重新排序登记表
func (l *Lane) refresh(now float64) {
	l.gtus.refresh(func(g entity.IGTU) (float64, bool) {
		s, err := g.Position(l, entity.REFERENCE, now)
		return s, err == nil
	})
}

// AddSensor 按位置有序加入检测器
func (l *Lane) AddSensor(s entity.ISensor) {
	l.sensorMutex.Lock()
	defer l.sensorMutex.Unlock()
	i := sort.Search(len(l.sensors), func(i int) bool {
		return l.sensors[i].Position() > s.Position()
	})
	l.sensors = append(l.sensors, nil)
	copy(l.sensors[i+1:], l.sensors[i:])
	l.sensors[i] = s
}

// Sensors 获取位置位于[min, max]内的检测器
func (l *Lane) Sensors(min, max float64) []entity.ISensor {
	l.sensorMutex.RLock()
	defer l.sensorMutex.RUnlock()
	from := sort.Search(len(l.sensors), func(i int) bool {
		return l.sensors[i].Position() >= min
	})
	to := sort.Search(len(l.sensors), func(i int) bool {
		return l.sensors[i].Position() > max
	})
	if from >= to {
		return nil
	}
	return append([]entity.ISensor(nil), l.sensors[from:to]...)
}
