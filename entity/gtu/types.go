package gtu

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/tsinghua-fib-lab/lanesim/entity"
	"github.com/tsinghua-fib-lab/lanesim/entity/gtu/plan"
	"github.com/tsinghua-fib-lab/lanesim/utils/geometry"
)

var log = logrus.WithField("module", "gtu")

var (
	ErrNotOnLane            = errors.New("GTU is not registered on lane")
	ErrReferencePosition    = errors.New("reference position cannot be resolved")
	ErrNoAdjacentLane       = errors.New("no adjacent lane for lane change")
	ErrLaneChangeInProgress = errors.New("lane change in progress")
	ErrNoLaneChange         = errors.New("no lane change in progress")
	ErrDestroyed            = errors.New("GTU is destroyed")
	ErrInitialized          = errors.New("GTU is already initialized")
)

// Bookkeeping 变道时车道登记的策略
type Bookkeeping int

const (
	// INSTANT 决定变道时立即整体切换到目标车道，不经过双车道占用阶段
	INSTANT Bookkeeping = iota
	// START 变道开始时登记到目标车道，横向移动结束时注销原车道
	START
	// EDGE 变道开始时登记到目标车道，参考点越过车道边线（横向移动过半）时注销原车道
	EDGE
)

func (b Bookkeeping) String() string {
	switch b {
	case INSTANT:
		return "INSTANT"
	case START:
		return "START"
	case EDGE:
		return "EDGE"
	default:
		return fmt.Sprintf("Bookkeeping(%d)", int(b))
	}
}

// ParseBookkeeping 解析配置中的登记策略名（instant/start/edge）
func ParseBookkeeping(s string) (Bookkeeping, error) {
	switch s {
	case "instant", "INSTANT":
		return INSTANT, nil
	case "start", "START":
		return START, nil
	case "edge", "EDGE", "":
		return EDGE, nil
	default:
		return EDGE, fmt.Errorf("unknown bookkeeping %q", s)
	}
}

// finalizeAt 两阶段变道的完成时刻
func (b Bookkeeping) finalizeAt(start, duration float64) float64 {
	switch b {
	case START:
		return start + duration
	case EDGE:
		return start + duration/2
	default:
		return start
	}
}

// State 交给战术层的车辆状态快照
type State struct {
	ID                 string
	Type               string
	Time               float64
	Length             float64
	Front              float64 // 车头相对参考点的偏移
	Location           geometry.DirectedPoint
	Speed              float64
	Acceleration       float64
	Reference          entity.LanePosition
	ReferenceLaneIndex int
	CrossSections      []CrossSection
	LaneChange         entity.LateralDirection // 进行中的变道方向
	Route              entity.IRoute
}

// LaneChange 战术层发起的变道
type LaneChange struct {
	Direction entity.LateralDirection // DirectionNone表示不发起变道
	Duration  float64                 // 横向移动时长（秒）
}

// Decision 战术层的决策结果
type Decision struct {
	Plan          *plan.OperationalPlan
	LaneChange    LaneChange
	TurnIndicator entity.TurnIndicator // 非IndicatorNone时覆盖车辆的转向灯状态
}

// ITacticalPlanner 战术层
type ITacticalPlanner interface {
	// Decide 根据当前状态生成从state.Time开始的运行计划
	Decide(state State) (Decision, error)
	// ChooseLaneAtSplit 在分叉处从候选下游车道中选择一条
	ChooseLaneAtSplit(gtuID string, from entity.ILane, candidates []entity.ILane) entity.ILane
}
