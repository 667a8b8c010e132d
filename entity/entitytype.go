package entity

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/tsinghua-fib-lab/lanesim/clock"
	"github.com/tsinghua-fib-lab/lanesim/utils/geometry"
)

// 方位常量
const (
	LEFT   = 0 // 左侧
	RIGHT  = 1 // 右侧
	BEFORE = 0 // 后方，等价于prev/upstream
	AFTER  = 1 // 前方，等价于next/downstream
)

// LateralDirection 横向方向
type LateralDirection int

const (
	DirectionNone  LateralDirection = -1
	DirectionLeft  LateralDirection = LEFT
	DirectionRight LateralDirection = RIGHT
)

func (d LateralDirection) String() string {
	switch d {
	case DirectionLeft:
		return "LEFT"
	case DirectionRight:
		return "RIGHT"
	default:
		return "NONE"
	}
}

// 获取相反方向
func (d LateralDirection) Flip() LateralDirection {
	switch d {
	case DirectionLeft:
		return DirectionRight
	case DirectionRight:
		return DirectionLeft
	default:
		return DirectionNone
	}
}

// RelativePositionType 车辆上的命名相对位置
type RelativePositionType int

const (
	REFERENCE RelativePositionType = iota // 参考点
	FRONT                                 // 车头
	REAR                                  // 车尾
	CENTER                                // 车辆中心
)

func (t RelativePositionType) String() string {
	switch t {
	case REFERENCE:
		return "REFERENCE"
	case FRONT:
		return "FRONT"
	case REAR:
		return "REAR"
	case CENTER:
		return "CENTER"
	default:
		return fmt.Sprintf("RelativePositionType(%d)", int(t))
	}
}

// RelativePosition 相对参考点的偏移，Dx沿行驶方向，Dy向左为正
type RelativePosition struct {
	Type RelativePositionType
	Dx   float64
	Dy   float64
}

func (p RelativePosition) String() string {
	return fmt.Sprintf("%v(dx=%.3f, dy=%.3f)", p.Type, p.Dx, p.Dy)
}

// TurnIndicator 转向灯状态
type TurnIndicator int

const (
	IndicatorNone TurnIndicator = iota
	IndicatorLeft
	IndicatorRight
	IndicatorHazard
)

func (t TurnIndicator) String() string {
	return [...]string{"NONE", "LEFT", "RIGHT", "HAZARD"}[t]
}

// LanePosition 车道上的纵向位置
type LanePosition struct {
	Lane     ILane
	Position float64
}

func (p LanePosition) String() string {
	return fmt.Sprintf("%v@%.3f", p.Lane, p.Position)
}

// entity/lane/link.go的依赖倒置
type ILink interface {
	ID() string
	Length() float64
	Lanes() []ILane
	StartLine() geometry.Line // 路段起始横断线
	EndLine() geometry.Line   // 路段终止横断线
	NextLinks() []ILink
	PrevLinks() []ILink
}

// entity/lane/lane.go的依赖倒置
type ILane interface {
	ID() string
	String() string
	Link() ILink        // 所在路段
	Length() float64    // 车道长度
	Width() float64     // 车道宽度
	OffsetInLink() int  // 在路段中的序号，0为最左侧车道
	Allows(typ string) bool

	CenterLine() *geometry.Polyline                                    // 中心线
	LocationAt(s float64) geometry.DirectedPoint                        // 中心线上s处的点（可延长）
	ProjectFractional(p orb.Point, fallback geometry.Fallback) float64 // 投影得到比例位置

	NextLanes(typ string) []ILane // 下游车道
	PrevLanes(typ string) []ILane // 上游车道
	// 相邻车道，legal=true时要求允许合法变道，false时只要求物理相邻
	AdjacentLane(dir LateralDirection, typ string, legal bool) ILane

	AddGTU(g IGTU, position float64) bool // 注册车辆，重复注册返回false
	RemoveGTU(g IGTU) error               // 注销车辆，未注册时返回错误
	HasGTU(g IGTU) bool
	GTUs() []IGTU // 按注册位置排序的车辆快照
	GTUCount() int

	AddSensor(s ISensor)
	Sensors(min, max float64) []ISensor // 位置位于[min, max]内的检测器
}

// entity/sensor的依赖倒置
type ISensor interface {
	ID() string
	Lane() ILane
	Position() float64
	TriggerPosition() RelativePositionType // 触发检测的车辆相对位置
	Line() geometry.Line                   // 检测线
	Fire(g IGTU)                           // 车辆相应位置越过检测线时调用
}

// entity/gtu的依赖倒置
type IGTU interface {
	ID() string
	Type() string
	V() float64      // 当前速度
	Length() float64 // 车长
	Width() float64
	RelativePosition(t RelativePositionType) RelativePosition
	Position(lane ILane, rel RelativePositionType, when float64) (float64, error)
	ReferencePosition() (LanePosition, error)
	Destroy()
	IsDestroyed() bool
}

// 离散事件调度器（clock.Clock）的依赖倒置
type IScheduler interface {
	Now() float64
	ScheduleAbs(t float64, name string, fn func()) (*clock.Event, error)
	ScheduleNow(name string, fn func()) *clock.Event
	Cancel(e *clock.Event)
}

// 车辆的路段级路径
type IRoute interface {
	Destination() string
	NextLink(link string) (string, bool)
}
