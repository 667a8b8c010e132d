// 自由行驶战术层：向期望速度加速，沿车道链生成路径，按脚本执行变道
package tactical

import (
	"fmt"
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"github.com/tsinghua-fib-lab/lanesim/entity"
	"github.com/tsinghua-fib-lab/lanesim/entity/gtu"
	"github.com/tsinghua-fib-lab/lanesim/entity/gtu/plan"
	"github.com/tsinghua-fib-lab/lanesim/utils/geometry"
)

var log = logrus.WithField("module", "tactical")

const (
	pathSamples = 10  // 路径采样数
	pathTail    = 2.0 // 路径在计划行驶距离之外的延长长度
)

// ScriptedLaneChange 脚本化变道
type ScriptedLaneChange struct {
	At        float64                 // 最早开始时间
	Direction entity.LateralDirection // 方向
	Duration  float64                 // 横向移动时长
}

// Params 自由行驶参数
type Params struct {
	DesiredSpeed    float64
	MaxAcceleration float64
	PlanDuration    float64 // 运行计划时长
	LaneChanges     []ScriptedLaneChange
}

// maneuver 进行中的横向移动
type maneuver struct {
	dir      entity.LateralDirection
	start    float64
	duration float64
}

func (m *maneuver) end() float64 {
	return m.start + m.duration
}

// FreeDriving 自由行驶战术层，每辆车一个实例
// 功能：不考虑前车，以最大加速度向期望速度调整；路径沿参考车道及其按路径选择的下游车道生成，
// 变道时路径按时间线性横移到目标车道中心
type FreeDriving struct {
	params   Params
	route    entity.IRoute        // 可为nil
	script   []ScriptedLaneChange // 按时间排序的待执行变道
	maneuver *maneuver
}

// New 创建自由行驶战术层
// 参数：params-行驶参数，route-车辆路径（可为nil，此时分叉处取最左侧车道）
func New(params Params, route entity.IRoute) *FreeDriving {
	if params.PlanDuration <= 0 {
		log.Panicf("free driving: bad plan duration %v", params.PlanDuration)
	}
	script := append([]ScriptedLaneChange(nil), params.LaneChanges...)
	sort.SliceStable(script, func(i, j int) bool { return script[i].At < script[j].At })
	return &FreeDriving{params: params, route: route, script: script}
}

// acceleration 朝期望速度调整的加速度，计划结束时不越过期望速度
func (f *FreeDriving) acceleration(v float64) float64 {
	a := (f.params.DesiredSpeed - v) / f.params.PlanDuration
	return lo.Clamp(a, -f.params.MaxAcceleration, f.params.MaxAcceleration)
}

// Decide 生成运行计划
// 功能：给出从state.Time开始、时长为PlanDuration的匀加速计划，必要时发起脚本中的变道
// 算法说明：
// 1. 脚本中已到时刻的变道：车辆未在变道且存在合法相邻车道时发起，否则丢弃并记录
// 2. 横向目标：变道进行中（参考车道仍为原车道）时为相邻车道中心，否则为参考车道中心
// 3. 按时间采样行驶距离与横向偏移，沿车道链取点生成路径，末端再延长一段
// 4. 静止且不加速时生成原地等待计划
func (f *FreeDriving) Decide(state gtu.State) (gtu.Decision, error) {
	now := state.Time
	ref := state.Reference
	decision := gtu.Decision{LaneChange: gtu.LaneChange{Direction: entity.DirectionNone}}

	issued := false
	for len(f.script) > 0 && f.script[0].At <= now && state.LaneChange == entity.DirectionNone &&
		(f.maneuver == nil || f.maneuver.end() <= now) {
		lc := f.script[0]
		f.script = f.script[1:]
		if ref.Lane.AdjacentLane(lc.Direction, state.Type, true) == nil {
			log.Warnf("GTU %s: no lane %v of %v at %v, scripted lane change dropped", state.ID, lc.Direction, ref.Lane, now)
			continue
		}
		f.maneuver = &maneuver{dir: lc.Direction, start: now, duration: lc.Duration}
		decision.LaneChange = gtu.LaneChange{Direction: lc.Direction, Duration: lc.Duration}
		issued = true
		break
	}

	a := f.acceleration(state.Speed)
	if state.Speed < plan.DRIFTING_SPEED && a <= 0 {
		decision.Plan = plan.NewWait(state.Location, now, f.params.PlanDuration)
		return decision, nil
	}

	current := ref.Lane.CenterLine().SignedOffset(state.Location.Point)
	target := 0.0
	remaining := 0.0
	if m := f.maneuver; m != nil && m.end() > now {
		remaining = m.end() - now
		if issued || state.LaneChange != entity.DirectionNone {
			target = laneSpacing(ref.Lane, m.dir, state.Type)
		}
	}

	T := f.params.PlanDuration
	points := []orb.Point{state.Location.Point}
	distance := 0.0
	lateral := current
	for k := 1; k <= pathSamples; k++ {
		tau := T * float64(k) / pathSamples
		distance = state.Speed*tau + 0.5*a*tau*tau
		lateral = interpolate(current, target, tau, remaining)
		points = append(points, f.chainPoint(state, ref.Position+distance, lateral))
	}
	points = append(points, f.chainPoint(state, ref.Position+distance+pathTail, lateral))
	path, err := geometry.NewPolyline(points...)
	if err != nil {
		return decision, fmt.Errorf("free driving path for GTU %s: %w", state.ID, err)
	}
	p, err := plan.NewAcceleration(path, now, state.Speed, a, T)
	if err != nil {
		return decision, fmt.Errorf("free driving plan for GTU %s: %w", state.ID, err)
	}
	decision.Plan = p
	return decision, nil
}

// interpolate 横向偏移从current线性移动到target，剩余时间remaining，tau为计划内时间
func interpolate(current, target, tau, remaining float64) float64 {
	if remaining <= 0 {
		return target
	}
	return current + (target-current)*math.Min(1, tau/remaining)
}

// laneSpacing 参考车道中心到dir一侧相邻车道中心的带符号横向距离（左侧为正）
func laneSpacing(lane entity.ILane, dir entity.LateralDirection, typ string) float64 {
	w := lane.Width()
	if adj := lane.AdjacentLane(dir, typ, false); adj != nil {
		w = (w + adj.Width()) / 2
	}
	return lo.Ternary(dir == entity.DirectionLeft, w, -w)
}

// chainPoint 参考车道链上距参考车道起点s、横向偏移lateral处的点
func (f *FreeDriving) chainPoint(state gtu.State, s float64, lateral float64) orb.Point {
	lane := state.Reference.Lane
	for s > lane.Length() {
		next := f.next(state, lane)
		if next == nil {
			break
		}
		s -= lane.Length()
		lane = next
	}
	loc := lane.LocationAt(s)
	return orb.Point{
		loc.Point[0] - lateral*math.Sin(loc.Dir),
		loc.Point[1] + lateral*math.Cos(loc.Dir),
	}
}

// next 路径上的下游车道
func (f *FreeDriving) next(state gtu.State, lane entity.ILane) entity.ILane {
	candidates := lane.NextLanes(state.Type)
	switch len(candidates) {
	case 0:
		return nil
	case 1:
		return candidates[0]
	}
	return f.ChooseLaneAtSplit(state.ID, lane, candidates)
}

// ChooseLaneAtSplit 分叉处选择车道：优先路径的下一路段，否则取最左侧（序号最小）的车道
func (f *FreeDriving) ChooseLaneAtSplit(gtuID string, from entity.ILane, candidates []entity.ILane) entity.ILane {
	if len(candidates) == 0 {
		return nil
	}
	if f.route != nil {
		if link, ok := f.route.NextLink(from.Link().ID()); ok {
			if l, ok := lo.Find(candidates, func(l entity.ILane) bool { return l.Link().ID() == link }); ok {
				return l
			}
		}
	}
	return lo.MinBy(candidates, func(a, b entity.ILane) bool {
		return a.OffsetInLink() < b.OffsetInLink()
	})
}
