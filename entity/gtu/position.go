package gtu

import (
	"fmt"
	"math"
	"strings"

	"github.com/tsinghua-fib-lab/lanesim/entity"
	"github.com/tsinghua-fib-lab/lanesim/entity/gtu/plan"
	"github.com/tsinghua-fib-lab/lanesim/utils/geometry"
)

const fractionTolerance = 1e-9

func inRange(f float64) bool {
	return !math.IsNaN(f) && f >= -fractionTolerance && f <= 1+fractionTolerance
}

// Position 获取时刻when车辆相对位置rel在车道lane上的纵向位置
// 功能：位置查询的对外入口，持锁调用position
// 参数：lane-车辆在when时刻占用的车道，rel-相对位置，when-查询时刻（当前、过去或当前计划有效期内的未来）
// 返回：沿车道中心线的距离（横断面边界附近可以为负或超过车道长度）与错误
func (g *GTU) Position(lane entity.ILane, rel entity.RelativePositionType, when float64) (float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.position(lane, rel, when)
}

// PositionNow 获取当前时刻的纵向位置
func (g *GTU) PositionNow(lane entity.ILane, rel entity.RelativePositionType) (float64, error) {
	return g.Position(lane, rel, g.clock.Now())
}

// position 位置解析
// 功能：由运行计划给出的世界坐标反推车辆在指定车道上的纵向位置，结果按(时刻, 计划)缓存
// 算法说明：
// 1. 取when时刻有效的运行计划，命中缓存时直接返回
// 2. 取when时刻的横断面序列，定位lane所在横断面与横向下标，不存在时返回ErrNotOnLane
// 3. 由计划求相对位置的世界坐标，投影到lane中心线得到比例位置
// 4. 比例位置越界时，沿同一横向下标向上游、下游逐个横断面投影，并累计车道长度
// 5. 所有横断面都无法投影时退化为端点钳制，记录异常
func (g *GTU) position(lane entity.ILane, rel entity.RelativePositionType, when float64) (float64, error) {
	p, ok := g.plans.At(when)
	if !ok {
		return math.NaN(), fmt.Errorf("GTU %s has no plan at %v: %w", g.id, when, plan.ErrOutsideValidity)
	}
	key := cacheKey{lane: lane, rel: rel}
	if g.cache.values != nil && g.cache.time == when && g.cache.plan == p {
		if v, ok := g.cache.values[key]; ok {
			g.cacheHits++
			meters.hit()
			return v, nil
		}
	}
	g.cacheMisses++
	meters.miss()

	css, _ := g.crossSections.At(when)
	i, j := locate(css, lane)
	if i < 0 {
		return math.NaN(), fmt.Errorf("GTU %s, lane %v at %v: %w", g.id, lane, when, ErrNotOnLane)
	}
	loc, err := p.LocationOf(when, g.relPositions[rel])
	if err != nil {
		return math.NaN(), fmt.Errorf("GTU %s location at %v: %w", g.id, when, err)
	}
	s, ok := resolve(css, i, j, lane, loc)
	if !ok {
		f := lane.ProjectFractional(loc.Point, geometry.FallbackEndpoint)
		s = f * lane.Length()
		log.Warnf("GTU %s: %v of %v not within any cross section at %v, clamped to %.3f on %v",
			g.id, rel, loc.Point, when, s, lane)
		meters.anomaly(anomalyEndpointClamp)
	}

	if g.cache.values == nil || g.cache.time != when || g.cache.plan != p {
		g.cache = positionCache{time: when, plan: p, values: make(map[cacheKey]float64)}
	}
	g.cache.values[key] = s
	return s, nil
}

// resolve 求世界坐标loc在第i个横断面第j条车道上的纵向位置
// 说明：loc不在该车道范围内时，沿同一横向下标在上下游横断面中查找，位置按车道长度累计；
// 该下标上出现空缺即停止查找，由调用方退化为端点钳制
func resolve(css []CrossSection, i, j int, lane entity.ILane, loc geometry.DirectedPoint) (float64, bool) {
	f := lane.ProjectFractional(loc.Point, geometry.FallbackNaN)
	if inRange(f) {
		return f * lane.Length(), true
	}
	// 上游
	dist := 0.0
	for k := i - 1; k >= 0; k-- {
		l := css[k].Lane(j)
		if l == nil {
			break
		}
		if fk := l.ProjectFractional(loc.Point, geometry.FallbackNaN); inRange(fk) {
			return dist - (1-fk)*l.Length(), true
		}
		dist -= l.Length()
	}
	// 下游
	dist = lane.Length()
	for k := i + 1; k < len(css); k++ {
		l := css[k].Lane(j)
		if l == nil {
			break
		}
		if fk := l.ProjectFractional(loc.Point, geometry.FallbackNaN); inRange(fk) {
			return dist + fk*l.Length(), true
		}
		dist += l.Length()
	}
	return math.NaN(), false
}

// Positions 获取时刻when车辆相对位置rel在所有占用车道上的纵向位置
func (g *GTU) Positions(rel entity.RelativePositionType, when float64) (map[entity.ILane]float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	css, _ := g.crossSections.At(when)
	out := make(map[entity.ILane]float64)
	for _, l := range allLanes(css) {
		s, err := g.position(l, rel, when)
		if err != nil {
			return nil, err
		}
		out[l] = s
	}
	return out, nil
}

// FractionalPositions 获取时刻when车辆相对位置rel在所有占用车道上的比例位置
func (g *GTU) FractionalPositions(rel entity.RelativePositionType, when float64) (map[entity.ILane]float64, error) {
	positions, err := g.Positions(rel, when)
	if err != nil {
		return nil, err
	}
	for l, s := range positions {
		positions[l] = s / l.Length()
	}
	return positions, nil
}

// ReferencePosition 当前参考位置
func (g *GTU) ReferencePosition() (entity.LanePosition, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.referencePosition(g.clock.Now())
}

// referencePosition 参考位置
// 功能：在参考横向下标的各车道中找到参考点比例位置位于[0,1]的那一条，结果仅对当前时刻缓存
// 返回：车道与位置；找不到时返回ErrReferencePosition，并以错误级别记录各车道的比例位置
func (g *GTU) referencePosition(now float64) (entity.LanePosition, error) {
	if g.refCache.valid && g.refCache.time == now {
		return g.refCache.pos, nil
	}
	css := g.currentCrossSections()
	var diag []string
	for _, cs := range css {
		l := cs.laneOr(g.referenceLaneIndex)
		if l == nil {
			continue
		}
		s, err := g.position(l, entity.REFERENCE, now)
		if err != nil {
			return entity.LanePosition{}, err
		}
		f := s / l.Length()
		if f >= -fractionTolerance && f <= 1+fractionTolerance {
			pos := entity.LanePosition{Lane: l, Position: s}
			g.refCache = referenceCache{valid: true, time: now, pos: pos}
			return pos, nil
		}
		diag = append(diag, fmt.Sprintf("%v: %.6f", l, f))
	}
	err := fmt.Errorf("GTU %s at %v, lane index %d, fractions [%s]: %w",
		g.id, now, g.referenceLaneIndex, strings.Join(diag, "; "), ErrReferencePosition)
	log.Error(err)
	return entity.LanePosition{}, err
}

// LateralPosition 参考点相对车道中心线的横向偏移，左侧为正
func (g *GTU) LateralPosition(lane entity.ILane) (float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.clock.Now()
	css := g.currentCrossSections()
	if i, _ := locate(css, lane); i < 0 {
		return math.NaN(), fmt.Errorf("GTU %s, lane %v: %w", g.id, lane, ErrNotOnLane)
	}
	loc, err := g.currentPlan().Location(now)
	if err != nil {
		return math.NaN(), err
	}
	return lane.CenterLine().SignedOffset(loc.Point), nil
}
