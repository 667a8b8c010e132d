package gtu

import (
	"fmt"
	"math"

	"github.com/paulmach/orb/planar"
	"github.com/tsinghua-fib-lab/lanesim/clock"
	"github.com/tsinghua-fib-lab/lanesim/entity"
	"github.com/tsinghua-fib-lab/lanesim/entity/gtu/plan"
	"github.com/tsinghua-fib-lab/lanesim/utils/geometry"
)

const crossingTolerance = 1e-9

// 事件类型（事件名后缀与事件计数器的kind属性）
const (
	kindMove     = "move"
	kindEnter    = "enter"
	kindLeave    = "leave"
	kindFinalize = "finalize"
	kindTrigger  = "trigger"
)

// schedule 调度车辆事件
// 说明：早于当前时刻的时间是数值误差造成的，记录异常并修正为当前时刻
func (g *GTU) schedule(t float64, kind string, fn func()) *clock.Event {
	now := g.clock.Now()
	if t < now {
		log.Warnf("GTU %s: %s event at %v before now %v, scheduled now", g.id, kind, t, now)
		meters.anomaly(anomalyPastEvent)
		t = now
	}
	e, err := g.clock.ScheduleAbs(t, g.id+" "+kind, fn)
	if err != nil {
		log.Errorf("GTU %s: %v", g.id, err)
		return nil
	}
	meters.event(kind)
	return e
}

// remainingEventDistance 当前计划剩余行驶距离加安全余量，超出该距离的线在本计划内一定不会被越过
func (g *GTU) remainingEventDistance() float64 {
	p := g.currentPlan()
	traveled, err := p.TraveledDistance(g.clock.Now())
	if err != nil {
		traveled = p.TotalLength()
	}
	return p.TotalLength() - traveled + g.eventMargin
}

// timeAtLine 预测车辆相对位置rel越过线段line的时刻
// 功能：进入/离开/检测器事件共用的越线预测
// 参数：line-两点线段，rel-越线的相对位置
// 返回：越线时刻与是否越线（已越过或本计划内不会越过时返回false）
// 算法说明：
// 1. 将计划路径按rel的纵向偏移平移，即截取路径上[dx, 总行驶距离+dx]一段（越出路径时沿首末段延长）
// 2. 逐段求与line的交点，累计弧长，累计弧长即参考点的行驶距离
// 3. 越线的行驶距离取(0, 总行驶距离]：计划起点恰在线上的不算，计划终点恰在线上的算
// 4. 行驶距离超出计划总行驶距离时返回false，否则由计划的距离-时间映射得到时刻
func (g *GTU) timeAtLine(line geometry.Line, rel entity.RelativePositionType) (float64, bool) {
	p := g.currentPlan()
	return timeAtLine(p, line, g.relPositions[rel].Dx)
}

func timeAtLine(p *plan.OperationalPlan, line geometry.Line, dx float64) (float64, bool) {
	total := p.TotalLength()
	if total <= crossingTolerance {
		return math.NaN(), false
	}
	path, err := p.Path().Extract(dx, total+dx)
	if err != nil {
		return math.NaN(), false
	}
	pts := path.Points()
	cumul := 0.0
	for i := 0; i+1 < len(pts); i++ {
		seg := planar.Distance(pts[i], pts[i+1])
		x, ok := geometry.SegmentIntersection(pts[i], pts[i+1], line.A, line.B)
		if !ok {
			cumul += seg
			continue
		}
		d := cumul + planar.Distance(pts[i], x)
		// 计划起点已在线上：已由上一计划在其终点越过
		if d <= crossingTolerance {
			cumul += seg
			continue
		}
		if d > total+crossingTolerance {
			return math.NaN(), false
		}
		t := p.TimeAtDistance(math.Min(total, d))
		if math.IsNaN(t) {
			return math.NaN(), false
		}
		return t, true
	}
	return math.NaN(), false
}

// ScheduleEnterEvent 调度进入下一横断面事件
func (g *GTU) ScheduleEnterEvent() error {
	var err error
	g.locked(func() { err = g.scheduleEnterEvent() })
	return err
}

// scheduleEnterEvent 调度进入下一横断面事件
// 功能：车头到最下游车道终点的距离小于剩余事件距离时，预测车头越过路段终止线的时刻并调度事件
// 说明：至多存在一个待执行的进入事件，重复调度会替换已有事件
func (g *GTU) scheduleEnterEvent() error {
	css := g.currentCrossSections()
	if len(css) == 0 {
		return nil
	}
	lane := css[len(css)-1].laneOr(g.referenceLaneIndex)
	front, err := g.position(lane, entity.FRONT, g.clock.Now())
	if err != nil {
		return err
	}
	g.clock.Cancel(g.pendingEnter)
	g.pendingEnter = nil
	if lane.Length()-front >= g.remainingEventDistance() {
		return nil
	}
	if t, ok := g.timeAtLine(lane.Link().EndLine(), entity.FRONT); ok {
		g.pendingEnter = g.schedule(t, kindEnter, g.onEnter)
		return nil
	}
	// 车头恰在终止线上（如初始化时）不构成越线，存在下游车道时立即进入
	if front >= lane.Length() && len(lane.NextLanes(g.typ)) > 0 {
		log.Warnf("GTU %s: front at %.6f on end of %v without crossing, forcing enter", g.id, front, lane)
		meters.anomaly(anomalyForcedEnter)
		g.pendingEnter = g.schedule(g.clock.Now(), kindEnter, g.onEnter)
	}
	return nil
}

func (g *GTU) onEnter() {
	g.locked(func() {
		g.pendingEnter = nil
		if err := g.enterCrossSection(); err != nil {
			g.fail(err)
		}
	})
}

// EnterCrossSection 立即进入下一横断面
func (g *GTU) EnterCrossSection() error {
	var err error
	g.locked(func() { err = g.enterCrossSection() })
	return err
}

// enterCrossSection 进入下一横断面
// 功能：为最下游横断面的每条车道确定下游车道，追加新的横断面并登记
// 算法说明：
// 1. 参考车道的下游车道由路径确定，不存在时强制完成变道后重试
// 2. 其余车道：唯一下游车道直接采用；否则选择与参考下游车道同路段且物理相邻的那一条；
// 找不到时强制完成变道后重试
// 3. 追加横断面，在各新车道位置0处登记车辆
// 4. 重新调度进入事件与新车道上的检测器事件
func (g *GTU) enterCrossSection() error {
	if g.destroyed {
		return nil
	}
	css := g.currentCrossSections()
	if len(css) == 0 {
		return nil
	}
	last := css[len(css)-1]
	refLane := last.laneOr(g.referenceLaneIndex)
	nextRef := g.nextLane(refLane)
	if nextRef == nil {
		return g.forceLaneChangeFinalization()
	}
	next := make([]entity.ILane, last.Width())
	for i := range next {
		lane := last.Lane(i)
		switch {
		case lane == nil:
		case lane == refLane:
			next[i] = nextRef
		default:
			n := g.adjacentSuccessor(lane, nextRef, i)
			if n == nil {
				return g.forceLaneChangeFinalization()
			}
			next[i] = n
		}
	}
	cs := NewCrossSection(next...)
	g.setCrossSections(append(append([]CrossSection(nil), css...), cs))
	for _, l := range allLanes([]CrossSection{cs}) {
		l.AddGTU(g, 0)
	}
	g.pendingEnter = nil
	log.Debugf("GTU %s entered %v at %v", g.id, cs, g.clock.Now())
	if err := g.scheduleEnterEvent(); err != nil {
		return err
	}
	for _, l := range allLanes([]CrossSection{cs}) {
		if err := g.scheduleTriggers(l); err != nil {
			return err
		}
	}
	return nil
}

// adjacentSuccessor 非参考车道lane的下游车道，须与参考下游车道nextRef同路段且在参考一侧物理相邻
func (g *GTU) adjacentSuccessor(lane, nextRef entity.ILane, index int) entity.ILane {
	successors := lane.NextLanes(g.typ)
	if len(successors) == 1 {
		return successors[0]
	}
	toward := entity.DirectionRight
	if index > g.referenceLaneIndex {
		toward = entity.DirectionLeft
	}
	for _, n := range successors {
		if n.Link() == nextRef.Link() && n.AdjacentLane(toward, g.typ, false) == nextRef {
			return n
		}
	}
	return nil
}

// nextLane 按路径选择lane的下游车道
// 说明：唯一下游车道直接采用；否则取路径下一路段上的车道，仍不唯一时优先已登记的车道，最后询问战术层
func (g *GTU) nextLane(lane entity.ILane) entity.ILane {
	next := lane.NextLanes(g.typ)
	switch len(next) {
	case 0:
		return nil
	case 1:
		return next[0]
	}
	candidates := next
	if g.route != nil {
		if link, ok := g.route.NextLink(lane.Link().ID()); ok {
			onRoute := make([]entity.ILane, 0, len(next))
			for _, l := range next {
				if l.Link().ID() == link {
					onRoute = append(onRoute, l)
				}
			}
			if len(onRoute) == 1 {
				return onRoute[0]
			}
			if len(onRoute) > 0 {
				candidates = onRoute
			}
		}
	}
	for _, l := range candidates {
		if l.HasGTU(g) {
			return l
		}
	}
	return g.tactical.ChooseLaneAtSplit(g.id, lane, candidates)
}

// forceLaneChangeFinalization 强制完成变道后重新进入横断面
// 说明：变道完成事件排在队列靠后位置而横断面需要先行收敛时调用；原变道完成事件被取消
func (g *GTU) forceLaneChangeFinalization() error {
	if g.lcDirection == entity.DirectionNone {
		// 没有下游车道且未在变道，由路网末端的检测器（如Sink）处理
		log.Debugf("GTU %s: no next lane after %v", g.id, g.currentCrossSections()[len(g.currentCrossSections())-1])
		return nil
	}
	saved := g.finalizeEvent
	dir := entity.DirectionLeft
	if g.referenceLaneIndex == 0 {
		dir = entity.DirectionRight
	}
	if err := g.finalizeLaneChange(dir); err != nil {
		return err
	}
	g.clock.Cancel(saved)
	return g.enterCrossSection()
}

// ScheduleLeaveEvent 调度离开最上游横断面事件
func (g *GTU) ScheduleLeaveEvent() error {
	var err error
	g.locked(func() { err = g.scheduleLeaveEvent() })
	return err
}

// scheduleLeaveEvent 调度离开最上游横断面事件
// 功能：参考点已不在最上游横断面，或车尾到其终点的距离小于剩余事件距离时，预测车尾越过路段终止线的时刻并调度事件
// 说明：无法预测越线时刻但车尾已越过车道终点时立即离开，避免残留登记
func (g *GTU) scheduleLeaveEvent() error {
	css := g.currentCrossSections()
	if len(css) == 0 {
		return nil
	}
	now := g.clock.Now()
	g.clock.Cancel(g.pendingLeave)
	g.pendingLeave = nil
	lane := css[0].laneOr(g.referenceLaneIndex)
	ref, err := g.referencePosition(now)
	if err != nil {
		return err
	}
	possible := ref.Lane != lane
	if !possible {
		rear, err := g.position(lane, entity.REAR, now)
		if err != nil {
			return err
		}
		possible = lane.Length()-rear < g.remainingEventDistance()
	}
	if !possible {
		return nil
	}
	if t, ok := g.timeAtLine(lane.Link().EndLine(), entity.REAR); ok {
		g.pendingLeave = g.schedule(t, kindLeave, g.onLeave)
		return nil
	}
	rear, err := g.position(lane, entity.REAR, now)
	if err != nil {
		return err
	}
	if rear > lane.Length() {
		log.Warnf("GTU %s: rear at %.6f past end of %v without crossing, forcing leave", g.id, rear, lane)
		meters.anomaly(anomalyForcedLeave)
		g.pendingLeave = g.schedule(now, kindLeave, g.onLeave)
	}
	return nil
}

func (g *GTU) onLeave() {
	g.locked(func() {
		g.pendingLeave = nil
		if err := g.leaveCrossSection(); err != nil {
			g.fail(err)
		}
	})
}

// LeaveCrossSection 立即离开最上游横断面
func (g *GTU) LeaveCrossSection() error {
	var err error
	g.locked(func() { err = g.leaveCrossSection() })
	return err
}

// leaveCrossSection 注销最上游横断面各车道上的登记并移除该横断面
// 返回：车辆未在其中某条车道登记时返回错误
func (g *GTU) leaveCrossSection() error {
	if g.destroyed {
		return nil
	}
	css := g.currentCrossSections()
	if len(css) == 0 {
		return nil
	}
	first := css[0]
	for _, l := range allLanes([]CrossSection{first}) {
		if err := l.RemoveGTU(g); err != nil {
			return fmt.Errorf("GTU %s leaving %v: %w", g.id, first, err)
		}
	}
	g.setCrossSections(append([]CrossSection(nil), css[1:]...))
	g.pendingLeave = nil
	log.Debugf("GTU %s left %v at %v", g.id, first, g.clock.Now())
	if len(css) > 1 {
		return g.scheduleLeaveEvent()
	}
	return nil
}

// ScheduleTriggers 调度车道上的检测器触发事件
func (g *GTU) ScheduleTriggers(lane entity.ILane) error {
	var err error
	g.locked(func() { err = g.scheduleTriggers(lane) })
	return err
}

// scheduleTriggers 调度车道上的检测器触发事件
// 功能：对位置位于[车尾位置, 车尾位置+剩余事件距离+车长]内的检测器，预测其触发位置越过检测线的时刻并调度一次性触发
func (g *GTU) scheduleTriggers(lane entity.ILane) error {
	rear, err := g.position(lane, entity.REAR, g.clock.Now())
	if err != nil {
		return err
	}
	upper := rear + g.remainingEventDistance() + g.length
	for _, s := range lane.Sensors(rear, upper) {
		t, ok := g.timeAtLine(s.Line(), s.TriggerPosition())
		if !ok {
			continue
		}
		s := s
		var e *clock.Event
		e = g.schedule(t, kindTrigger, func() { g.fireSensor(e, s) })
		if e != nil {
			g.sensorEvents[e] = struct{}{}
		}
	}
	return nil
}

// fireSensor 检测器触发事件回调，检测器在释放车辆锁之后执行
func (g *GTU) fireSensor(e *clock.Event, s entity.ISensor) {
	g.mu.Lock()
	delete(g.sensorEvents, e)
	destroyed := g.destroyed
	g.mu.Unlock()
	if !destroyed {
		s.Fire(g)
	}
}

// cancelAllEvents 取消所有待执行的进入、离开、变道完成与检测器事件
func (g *GTU) cancelAllEvents() {
	g.clock.Cancel(g.pendingEnter)
	g.clock.Cancel(g.pendingLeave)
	g.clock.Cancel(g.finalizeEvent)
	g.pendingEnter, g.pendingLeave, g.finalizeEvent = nil, nil, nil
	for e := range g.sensorEvents {
		g.clock.Cancel(e)
	}
	clear(g.sensorEvents)
}
