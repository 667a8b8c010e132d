package gtu

import (
	"fmt"
	"math"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/lanesim/entity"
	"github.com/tsinghua-fib-lab/lanesim/utils/geometry"
)

// applyLaneChange 执行战术层决策中的变道并调度变道完成事件
// 说明：INSTANT策略立即整体切换车道；其余策略进入双车道占用阶段，
// 每个运行周期按策略重新调度变道完成事件（已过期时在当前时刻完成）
func (g *GTU) applyLaneChange(lc LaneChange, now float64) error {
	if lc.Direction != entity.DirectionNone {
		if g.bookkeeping == INSTANT {
			if err := g.changeLaneInstantaneously(lc.Direction); err != nil {
				return err
			}
		} else {
			if err := g.initiateLaneChange(lc.Direction); err != nil {
				return err
			}
			g.lcStart, g.lcDuration = now, math.Max(0, lc.Duration)
		}
	}
	if g.lcDirection != entity.DirectionNone && g.bookkeeping != INSTANT {
		g.scheduleFinalize(math.Max(now, g.bookkeeping.finalizeAt(g.lcStart, g.lcDuration)))
	}
	return nil
}

// ScheduleFinalize 在时刻t调度变道完成事件，替换已有的变道完成事件
func (g *GTU) ScheduleFinalize(t float64) error {
	var err error
	g.locked(func() {
		if g.lcDirection == entity.DirectionNone {
			err = fmt.Errorf("GTU %s: %w", g.id, ErrNoLaneChange)
			return
		}
		g.scheduleFinalize(t)
	})
	return err
}

func (g *GTU) scheduleFinalize(t float64) {
	g.clock.Cancel(g.finalizeEvent)
	dir := g.lcDirection
	g.finalizeEvent = g.schedule(t, kindFinalize, func() {
		g.locked(func() {
			g.finalizeEvent = nil
			if g.destroyed || g.lcDirection == entity.DirectionNone {
				return
			}
			if err := g.finalizeLaneChange(dir); err != nil {
				g.fail(err)
			}
		})
	})
}

// InitiateLaneChange 开始向dir一侧变道
func (g *GTU) InitiateLaneChange(dir entity.LateralDirection) error {
	var err error
	g.locked(func() {
		if err = g.initiateLaneChange(dir); err == nil {
			g.lcStart, g.lcDuration = g.clock.Now(), 0
		}
	})
	return err
}

// initiateLaneChange 开始变道（STABLE→CHANGING）
// 功能：把每个横断面加宽为2条车道，并登记到新增的相邻车道上
// 参数：dir-变道方向
// 返回：错误（已在变道、任何横断面都没有可合法变入的相邻车道时返回错误，此时横断面序列不变）
// 算法说明：
// 1. 新车道的横向下标：向左为0，向右为1；参考车道下标指向原车道
// 2. 对每个横断面查找合法相邻车道，没有时该位置为空
// 3. 新车道上的登记位置由当前参考点世界坐标正交投影得到；投影无定义时按车辆更靠近原车道的哪一端放在0或车道末端
func (g *GTU) initiateLaneChange(dir entity.LateralDirection) error {
	if dir != entity.DirectionLeft && dir != entity.DirectionRight {
		return fmt.Errorf("GTU %s: bad lane change direction %v", g.id, dir)
	}
	if g.lcDirection != entity.DirectionNone {
		return fmt.Errorf("GTU %s changing %v: %w", g.id, g.lcDirection, ErrLaneChangeInProgress)
	}
	now := g.clock.Now()
	loc, err := g.currentPlan().Location(now)
	if err != nil {
		return err
	}
	index := 0
	if dir == entity.DirectionRight {
		index = 1
	}
	css := g.currentCrossSections()
	widened := make([]CrossSection, len(css))
	added := make([]entity.LanePosition, 0, len(css))
	for i, cs := range css {
		old := cs.Lane(0)
		adj := old.AdjacentLane(dir, g.typ, true)
		lanes := make([]entity.ILane, 2)
		lanes[index], lanes[1-index] = adj, old
		widened[i] = NewCrossSection(lanes...)
		if adj == nil {
			continue
		}
		f := adj.ProjectFractional(loc.Point, geometry.FallbackNaN)
		if math.IsNaN(f) {
			s, err := g.position(old, entity.REFERENCE, now)
			if err != nil {
				return err
			}
			f = lo.Ternary(s < old.Length()/2, 0.0, 1.0)
		}
		added = append(added, entity.LanePosition{Lane: adj, Position: f * adj.Length()})
	}
	if len(added) == 0 {
		return fmt.Errorf("GTU %s %v of %v: %w", g.id, dir, css, ErrNoAdjacentLane)
	}
	g.setCrossSections(widened)
	for _, p := range added {
		p.Lane.AddGTU(g, p.Position)
	}
	g.referenceLaneIndex = 1 - index
	g.lcDirection = dir
	g.turnIndicator.Set(now, lo.Ternary(dir == entity.DirectionLeft, entity.IndicatorLeft, entity.IndicatorRight))
	log.Debugf("GTU %s initiated %v lane change at %v", g.id, dir, now)
	return nil
}

// FinalizeLaneChange 立即完成变道，并取消已调度的变道完成事件
func (g *GTU) FinalizeLaneChange() error {
	var err error
	g.locked(func() {
		if g.lcDirection == entity.DirectionNone {
			err = fmt.Errorf("GTU %s: %w", g.id, ErrNoLaneChange)
			return
		}
		saved := g.finalizeEvent
		err = g.finalizeLaneChange(g.lcDirection)
		g.clock.Cancel(saved)
	})
	return err
}

// finalizeLaneChange 完成变道（CHANGING→STABLE）
// 功能：注销原车道（参考下标所指车道）上的登记，每个横断面收缩为新车道，参考车道下标重置为0
// 说明：某个横断面上没有新车道时保留原车道并记录异常；发布LANE_CHANGE通知，From*为参考点所在的原车道
func (g *GTU) finalizeLaneChange(dir entity.LateralDirection) error {
	now := g.clock.Now()
	css := g.currentCrossSections()
	collapsed := make([]CrossSection, len(css))
	var from entity.LanePosition
	var leave []entity.ILane
	for i, cs := range css {
		old := cs.Lane(g.referenceLaneIndex)
		target := cs.Lane(1 - g.referenceLaneIndex)
		if target == nil {
			log.Warnf("GTU %s: no target lane next to %v when finalizing %v lane change, keeping it", g.id, old, dir)
			meters.anomaly(anomalyLaneGap)
			collapsed[i] = NewCrossSection(old)
			continue
		}
		collapsed[i] = NewCrossSection(target)
		if old == nil {
			continue
		}
		s, err := g.position(old, entity.REFERENCE, now)
		if err != nil {
			return err
		}
		if s >= 0 && s <= old.Length() {
			from = entity.LanePosition{Lane: old, Position: s}
		}
		leave = append(leave, old)
	}
	for _, l := range leave {
		if err := l.RemoveGTU(g); err != nil {
			return fmt.Errorf("GTU %s finalizing lane change: %w", g.id, err)
		}
	}
	g.setCrossSections(collapsed)
	g.referenceLaneIndex = 0
	g.lcDirection = entity.DirectionNone
	g.finalizeEvent = nil
	g.turnIndicator.Set(now, entity.IndicatorNone)
	n := LaneChangeNotification{T: now, ID: g.id, Direction: dir, FromPosition: math.NaN()}
	if from.Lane != nil {
		n.FromLinkID, n.FromLaneID, n.FromPosition = from.Lane.Link().ID(), from.Lane.ID(), from.Position
	} else {
		log.Warnf("GTU %s: no from lane for %v lane change at %v", g.id, dir, now)
	}
	g.notify(n)
	log.Debugf("GTU %s finalized %v lane change at %v", g.id, dir, now)
	return nil
}

// ChangeLaneInstantaneously 立即整体切换到dir一侧的相邻车道
func (g *GTU) ChangeLaneInstantaneously(dir entity.LateralDirection) error {
	var err error
	g.locked(func() {
		if err = g.changeLaneInstantaneously(dir); err != nil {
			return
		}
		g.cancelAllEvents()
		err = g.scheduleAll()
	})
	return err
}

// changeLaneInstantaneously 瞬时变道
// 功能：离开所有已占用车道，从参考车道相邻车道上的对应位置出发向上下游递归重建横断面序列
// 说明：位置按比例位置映射到相邻车道；上下游遇到多个候选车道时的处理见pickUpstream
func (g *GTU) changeLaneInstantaneously(dir entity.LateralDirection) error {
	if g.lcDirection != entity.DirectionNone {
		return fmt.Errorf("GTU %s changing %v: %w", g.id, g.lcDirection, ErrLaneChangeInProgress)
	}
	now := g.clock.Now()
	from, err := g.referencePosition(now)
	if err != nil {
		return err
	}
	adj := from.Lane.AdjacentLane(dir, g.typ, false)
	if adj == nil {
		return fmt.Errorf("GTU %s %v of %v: %w", g.id, dir, from.Lane, ErrNoAdjacentLane)
	}
	s := adj.Length() * from.Position / from.Lane.Length()
	old := g.currentCrossSections()
	for _, l := range allLanes(old) {
		if err := l.RemoveGTU(g); err != nil {
			return fmt.Errorf("GTU %s leaving lanes: %w", g.id, err)
		}
	}
	css := g.enterLaneRecursive(nil, old, adj, s, 0)
	g.setCrossSections(css)
	g.notify(LaneChangeNotification{
		T:            now,
		ID:           g.id,
		Direction:    dir,
		FromLinkID:   from.Lane.Link().ID(),
		FromLaneID:   from.Lane.ID(),
		FromPosition: from.Position,
	})
	log.Debugf("GTU %s changed %v instantaneously to %v at %v", g.id, dir, adj, now)
	return nil
}

// enterLaneRecursive 以参考点在lane上的位置s登记车辆，并沿车尾、车头越出的方向继续登记
// 参数：css-已建立的横断面序列，old-变道前的横断面序列，side-小于0只向上游，大于0只向下游，0为两个方向
// 返回：新的横断面序列（上游到下游）
func (g *GTU) enterLaneRecursive(css, old []CrossSection, lane entity.ILane, s float64, side int) []CrossSection {
	cs := NewCrossSection(lane)
	if side > 0 {
		css = append(css, cs)
	} else {
		css = append([]CrossSection{cs}, css...)
	}
	lane.AddGTU(g, s)

	if side <= 0 {
		rear := s + g.relPositions[entity.REAR].Dx
		if rear < 0 {
			if up := g.pickUpstream(lane, old); up != nil {
				css = g.enterLaneRecursive(css, old, up, up.Length()+s, -1)
			}
		}
	}
	if side >= 0 {
		front := s + g.relPositions[entity.FRONT].Dx
		if front > lane.Length() {
			if down := g.nextLane(lane); down != nil {
				css = g.enterLaneRecursive(css, old, down, s-lane.Length(), 1)
			}
		}
	}
	return css
}

// pickUpstream 瞬时变道时选择上游车道
// 说明：优先选择所在路段在变道前已占用过的上游车道；否则任取一条。
// 汇入处多个上游车道的取舍是有意保留的近似，由冲突处理层负责，这里不做进一步判断
func (g *GTU) pickUpstream(lane entity.ILane, old []CrossSection) entity.ILane {
	upstream := lane.PrevLanes(g.typ)
	if len(upstream) == 0 {
		return nil
	}
	for _, up := range upstream {
		for _, l := range allLanes(old) {
			if l.Link() == up.Link() {
				return up
			}
		}
	}
	return upstream[0]
}
