package gtu

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/lanesim/clock"
	"github.com/tsinghua-fib-lab/lanesim/entity"
	"github.com/tsinghua-fib-lab/lanesim/entity/gtu/plan"
	"github.com/tsinghua-fib-lab/lanesim/utils/container"
	"github.com/tsinghua-fib-lab/lanesim/utils/geometry"
)

const (
	initialPlanDuration      = 1e-6  // 初始化运行计划时长（秒）
	initialLocationThreshold = 0.001 // 初始位置在各车道上对应世界坐标的允许偏差
	defaultEventMargin       = 50.0  // 事件预测的安全余量
)

// Params 车辆静态参数
type Params struct {
	ID          string
	Type        string
	Length      float64 // 车长
	Width       float64 // 车宽
	Front       float64 // 车头相对参考点的纵向偏移
	Bookkeeping Bookkeeping
	EventMargin float64 // 事件预测的安全余量，<=0时取默认值
	History     float64 // 横断面与运行计划的历史保留时长（秒），<=0表示永久保留
}

// positionCache 位置缓存，仅在(time, plan)不变时有效
type positionCache struct {
	time   float64
	plan   *plan.OperationalPlan
	values map[cacheKey]float64
}

type cacheKey struct {
	lane entity.ILane
	rel  entity.RelativePositionType
}

// referenceCache 参考位置缓存，仅对当前时刻有效
type referenceCache struct {
	valid bool
	time  float64
	pos   entity.LanePosition
}

// GTU 基于车道的车辆
// 功能：持有车辆的横断面序列，驱动运行周期，维护车道登记并调度进入/离开/变道完成/检测器触发事件，
// 对外提供任意时刻在任一占用车道上的位置查询
// 说明：所有状态由每车一把互斥锁保护；事件回调、位置查询与外部调用均持锁执行，
// 通知发布与检测器触发在释放锁之后进行
type GTU struct {
	container.RosterSlot

	mu sync.Mutex

	id           string
	typ          string
	length       float64
	width        float64
	relPositions map[entity.RelativePositionType]entity.RelativePosition

	clock       entity.IScheduler
	tactical    ITacticalPlanner
	route       entity.IRoute
	bookkeeping Bookkeeping
	eventMargin float64
	publisher   *Publisher
	onDestroy   func(g *GTU)

	plans              *container.History[*plan.OperationalPlan]
	crossSections      *container.History[[]CrossSection]
	turnIndicator      *container.History[entity.TurnIndicator]
	referenceLaneIndex int

	// 进行中的变道
	lcDirection entity.LateralDirection
	lcStart     float64
	lcDuration  float64

	odometer float64 // 当前运行计划开始前的累计行驶距离

	cache       positionCache
	refCache    referenceCache
	cacheHits   int
	cacheMisses int

	pendingEnter  *clock.Event
	pendingLeave  *clock.Event
	finalizeEvent *clock.Event
	nextMove      *clock.Event
	sensorEvents  map[*clock.Event]struct{}

	deferred    []func() // 释放锁之后执行的动作（通知发布、销毁回调）
	initialized bool
	destroyed   bool
}

// New 创建车辆
// 功能：创建尚未放置到路网上的车辆，需调用Init完成初始化
// 参数：params-静态参数，sched-事件调度器，tactical-战术层，route-路径（可为nil），publisher-通知发布器（可为nil）
// 返回：车辆实例
func New(params Params, sched entity.IScheduler, tactical ITacticalPlanner, route entity.IRoute, publisher *Publisher) *GTU {
	if params.Length <= 0 || params.Width <= 0 {
		log.Panicf("GTU %s: bad size length=%v width=%v", params.ID, params.Length, params.Width)
	}
	if params.Front < 0 || params.Front > params.Length {
		log.Panicf("GTU %s: front %v outside vehicle of length %v", params.ID, params.Front, params.Length)
	}
	margin := params.EventMargin
	if margin <= 0 {
		margin = defaultEventMargin
	}
	g := &GTU{
		id:     params.ID,
		typ:    params.Type,
		length: params.Length,
		width:  params.Width,
		relPositions: map[entity.RelativePositionType]entity.RelativePosition{
			entity.REFERENCE: {Type: entity.REFERENCE},
			entity.FRONT:     {Type: entity.FRONT, Dx: params.Front},
			entity.REAR:      {Type: entity.REAR, Dx: params.Front - params.Length},
			entity.CENTER:    {Type: entity.CENTER, Dx: params.Front - params.Length/2},
		},
		clock:              sched,
		tactical:           tactical,
		route:              route,
		bookkeeping:        params.Bookkeeping,
		eventMargin:        margin,
		publisher:          publisher,
		plans:              container.NewHistory[*plan.OperationalPlan](params.History),
		crossSections:      container.NewHistory[[]CrossSection](params.History),
		turnIndicator:      container.NewHistory[entity.TurnIndicator](params.History),
		referenceLaneIndex: 0,
		lcDirection:        entity.DirectionNone,
		sensorEvents:       make(map[*clock.Event]struct{}),
	}
	return g
}

// SetOnDestroy 设置销毁回调（在释放车辆锁之后调用）
func (g *GTU) SetOnDestroy(fn func(g *GTU)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onDestroy = fn
}

// locked 持锁执行fn，释放锁后执行期间积累的延迟动作
func (g *GTU) locked(fn func()) {
	g.mu.Lock()
	fn()
	deferred := g.deferred
	g.deferred = nil
	g.mu.Unlock()
	for _, d := range deferred {
		d()
	}
}

// notify 在释放锁之后发布通知
func (g *GTU) notify(n Notification) {
	if g.publisher == nil {
		return
	}
	g.deferred = append(g.deferred, func() { g.publisher.Publish(n) })
}

// fail 车辆级致命错误：记录并销毁车辆
func (g *GTU) fail(err error) {
	log.Errorf("GTU %s at %v: %v, destroying", g.id, g.clock.Now(), err)
	g.destroy()
}

func (g *GTU) ID() string {
	return g.id
}

func (g *GTU) Type() string {
	return g.typ
}

func (g *GTU) Length() float64 {
	return g.length
}

func (g *GTU) Width() float64 {
	return g.width
}

func (g *GTU) String() string {
	return "GTU " + g.id
}

// RelativePosition 获取命名相对位置
func (g *GTU) RelativePosition(t entity.RelativePositionType) entity.RelativePosition {
	return g.relPositions[t]
}

// 获取车道登记策略
func (g *GTU) Bookkeeping() Bookkeeping {
	return g.bookkeeping
}

// 获取路径
func (g *GTU) Route() entity.IRoute {
	return g.route
}

// Init 将车辆放置到路网上
// 功能：以参考点在若干车道上的初始位置初始化横断面序列、车道登记与初始运行计划，并在当前时刻调度第一次运行周期
// 参数：positions-参考点在其占用的各车道上的位置（车道位置可以为负或超过车道长度），speed-初始速度
// 返回：错误（已初始化、位置为空、各位置对应的世界坐标不一致、无法确定参考位置时返回错误）
// 算法说明：
// 1. 按车道上下游关系排序，每条车道构成一个宽度为1的横断面
// 2. 检查各位置对应的世界坐标相差不超过1毫米
// 3. 初始计划：速度低于DRIFTING_SPEED时为原地等待，否则为极短的匀速计划
// 4. 登记到各车道，校验参考位置，失败时回滚
// 5. 发布INIT通知并在当前时刻调度运行周期
func (g *GTU) Init(positions []entity.LanePosition, speed float64) error {
	var err error
	g.locked(func() {
		err = g.init(positions, speed)
	})
	return err
}

func (g *GTU) init(positions []entity.LanePosition, speed float64) error {
	if g.initialized {
		return ErrInitialized
	}
	if len(positions) == 0 {
		return fmt.Errorf("GTU %s: no initial position", g.id)
	}
	ordered := orderUpstream(positions, g.typ)
	first := ordered[0].Lane.LocationAt(ordered[0].Position)
	for _, p := range ordered[1:] {
		loc := p.Lane.LocationAt(p.Position)
		if d := planar.Distance(first.Point, loc.Point); d > initialLocationThreshold {
			return fmt.Errorf("GTU %s: initial location %v on %v differs %.6f from %v on %v",
				g.id, loc.Point, p.Lane, d, first.Point, ordered[0].Lane)
		}
	}
	// 参考车道为参考点位于车道范围内的那一条
	refLoc := first
	for _, p := range ordered {
		if p.Position >= 0 && p.Position <= p.Lane.Length() {
			refLoc = p.Lane.LocationAt(p.Position)
			break
		}
	}

	now := g.clock.Now()
	var initial *plan.OperationalPlan
	if speed < plan.DRIFTING_SPEED {
		initial = plan.NewWait(refLoc, now, initialPlanDuration)
	} else {
		length := speed*initialPlanDuration + 1e-6
		end := orb.Point{refLoc.Point[0] + length*math.Cos(refLoc.Dir), refLoc.Point[1] + length*math.Sin(refLoc.Dir)}
		path, err := geometry.NewPolyline(refLoc.Point, end)
		if err != nil {
			return fmt.Errorf("GTU %s initial path: %w", g.id, err)
		}
		if initial, err = plan.NewConstantSpeed(path, now, speed, initialPlanDuration); err != nil {
			return fmt.Errorf("GTU %s initial plan: %w", g.id, err)
		}
	}

	css := make([]CrossSection, 0, len(ordered))
	for _, p := range ordered {
		css = append(css, NewCrossSection(p.Lane))
	}
	g.plans.Set(now, initial)
	g.crossSections.Set(now, css)
	g.turnIndicator.Set(now, entity.IndicatorNone)
	g.invalidate()
	for _, p := range ordered {
		p.Lane.AddGTU(g, p.Position)
	}
	ref, err := g.referencePosition(now)
	if err != nil {
		for _, p := range ordered {
			if e := p.Lane.RemoveGTU(g); e != nil {
				log.Warnf("GTU %s rollback: %v", g.id, e)
			}
		}
		g.crossSections.Set(now, nil)
		g.invalidate()
		return err
	}
	g.initialized = true
	g.notify(InitNotification{
		T:         now,
		ID:        g.id,
		Location:  refLoc.Point,
		Direction: refLoc.Dir,
		Length:    g.length,
		Width:     g.width,
		LinkID:    ref.Lane.Link().ID(),
		LaneID:    ref.Lane.ID(),
		Position:  ref.Position,
		GTUType:   g.typ,
	})
	g.nextMove = g.clock.ScheduleNow(g.id+" "+kindMove, g.onMove)
	return nil
}

// orderUpstream 将初始位置按车道上下游关系排序，上游在前
func orderUpstream(positions []entity.LanePosition, typ string) []entity.LanePosition {
	rest := append([]entity.LanePosition(nil), positions...)
	ordered := make([]entity.LanePosition, 0, len(rest))
	for len(rest) > 0 {
		pick := 0
	search:
		for i, p := range rest {
			for j, q := range rest {
				if i != j && lo.Contains(q.Lane.NextLanes(typ), p.Lane) {
					continue search
				}
			}
			pick = i
			break
		}
		ordered = append(ordered, rest[pick])
		rest = append(rest[:pick], rest[pick+1:]...)
	}
	return ordered
}

// invalidate 使位置缓存与参考位置缓存失效
func (g *GTU) invalidate() {
	g.cache.values = nil
	g.refCache.valid = false
}

// currentCrossSections 当前横断面序列（不可修改，修改时写入新副本）
func (g *GTU) currentCrossSections() []CrossSection {
	css, _ := g.crossSections.Latest()
	return css
}

// setCrossSections 写入新的横断面序列
func (g *GTU) setCrossSections(css []CrossSection) {
	g.crossSections.Set(g.clock.Now(), css)
	g.invalidate()
}

// currentPlan 当前运行计划
func (g *GTU) currentPlan() *plan.OperationalPlan {
	p, _ := g.plans.Latest()
	return p
}

// onMove 运行周期事件回调
func (g *GTU) onMove() {
	g.locked(func() {
		g.nextMove = nil
		g.move()
	})
}

// Move 立即执行一次运行周期
func (g *GTU) Move() {
	g.locked(func() {
		g.clock.Cancel(g.nextMove)
		g.nextMove = nil
		g.move()
	})
}

// move 运行周期
// 功能：向战术层请求新的运行计划，并据此重新调度所有车道事件
// 算法说明：
// 1. 横断面序列为空时销毁车辆（车辆已离开路网）
// 2. 取消所有待执行的进入/离开/变道完成/检测器事件
// 3. 累计里程，向战术层请求从当前时刻开始的运行计划，失败时销毁车辆
// 4. 执行决策中的变道，按登记策略调度变道完成事件
// 5. 重新计算参考位置，调度进入、离开与各车道的检测器事件
// 6. 在计划结束时刻调度下一次运行周期，发布MOVE通知
func (g *GTU) move() {
	if g.destroyed {
		return
	}
	if len(g.currentCrossSections()) == 0 {
		g.destroy()
		return
	}
	g.cancelAllEvents()

	now := g.clock.Now()
	if old := g.currentPlan(); old != nil {
		if d, err := old.TraveledDistance(now); err == nil {
			g.odometer += d
		} else {
			g.odometer += old.TotalLength()
		}
	}
	state, err := g.state(now)
	if err != nil {
		g.fail(err)
		return
	}
	decision, err := g.tactical.Decide(state)
	if err != nil {
		g.fail(fmt.Errorf("tactical planner: %w", err))
		return
	}
	if decision.Plan == nil {
		g.fail(errors.New("tactical planner returned no plan"))
		return
	}
	if math.Abs(decision.Plan.StartTime()-now) > 1e-9 {
		g.fail(fmt.Errorf("plan starts at %v instead of %v", decision.Plan.StartTime(), now))
		return
	}
	g.plans.Set(now, decision.Plan)
	g.invalidate()
	if decision.TurnIndicator != entity.IndicatorNone {
		g.turnIndicator.Set(now, decision.TurnIndicator)
	}

	if err := g.applyLaneChange(decision.LaneChange, now); err != nil {
		g.fail(err)
		return
	}
	ref, err := g.referencePosition(now)
	if err != nil {
		g.fail(err)
		return
	}
	if err := g.scheduleAll(); err != nil {
		g.fail(err)
		return
	}
	g.nextMove = g.schedule(decision.Plan.EndTime(), kindMove, g.onMove)

	loc, _ := decision.Plan.Location(now)
	indicator, _ := g.turnIndicator.Latest()
	g.notify(MoveNotification{
		T:             now,
		ID:            g.id,
		Location:      loc.Point,
		Direction:     loc.Dir,
		Speed:         decision.Plan.StartSpeed(),
		Acceleration:  valueOf(decision.Plan.Acceleration(now)),
		TurnIndicator: indicator,
		Odometer:      g.odometer,
		LinkID:        ref.Lane.Link().ID(),
		LaneID:        ref.Lane.ID(),
		Position:      ref.Position,
	})
}

// valueOf 忽略错误取值
func valueOf(v float64, _ error) float64 {
	return v
}

// scheduleAll 调度进入、离开与所有占用车道上的检测器事件
func (g *GTU) scheduleAll() error {
	if err := g.scheduleEnterEvent(); err != nil {
		return err
	}
	if err := g.scheduleLeaveEvent(); err != nil {
		return err
	}
	for _, l := range allLanes(g.currentCrossSections()) {
		if err := g.scheduleTriggers(l); err != nil {
			return err
		}
	}
	return nil
}

// state 构造交给战术层的状态快照
func (g *GTU) state(now float64) (State, error) {
	ref, err := g.referencePosition(now)
	if err != nil {
		return State{}, err
	}
	p := g.currentPlan()
	loc, err := p.Location(now)
	if err != nil {
		return State{}, fmt.Errorf("GTU %s location: %w", g.id, err)
	}
	v, _ := p.Speed(now)
	a, _ := p.Acceleration(now)
	return State{
		ID:                 g.id,
		Type:               g.typ,
		Time:               now,
		Length:             g.length,
		Front:              g.relPositions[entity.FRONT].Dx,
		Location:           loc,
		Speed:              v,
		Acceleration:       a,
		Reference:          ref,
		ReferenceLaneIndex: g.referenceLaneIndex,
		CrossSections:      append([]CrossSection(nil), g.currentCrossSections()...),
		LaneChange:         g.lcDirection,
		Route:              g.route,
	}, nil
}

// Destroy 销毁车辆
// 功能：注销所有车道登记，取消所有事件，发布DESTROY通知
// 说明：重复销毁为空操作；注销失败只记录警告
func (g *GTU) Destroy() {
	g.locked(g.destroy)
}

func (g *GTU) destroy() {
	if g.destroyed {
		return
	}
	now := g.clock.Now()
	n := DestroyNotification{T: now, ID: g.id, Position: math.NaN(), Odometer: g.odometer}
	if p := g.currentPlan(); p != nil {
		if loc, err := p.Location(now); err == nil {
			n.Location, n.Direction = loc.Point, loc.Dir
		}
		if d, err := p.TraveledDistance(now); err == nil {
			n.Odometer += d
		}
	}
	if len(g.currentCrossSections()) > 0 {
		if ref, err := g.referencePosition(now); err == nil {
			n.LinkID, n.LaneID, n.Position = ref.Lane.Link().ID(), ref.Lane.ID(), ref.Position
		}
	}
	for _, l := range allLanes(g.currentCrossSections()) {
		if err := l.RemoveGTU(g); err != nil {
			log.Warnf("GTU %s destroy: %v", g.id, err)
		}
	}
	if g.initialized {
		g.setCrossSections(nil)
	}
	g.cancelAllEvents()
	g.clock.Cancel(g.nextMove)
	g.nextMove = nil
	g.odometer = n.Odometer
	g.destroyed = true
	g.notify(n)
	if g.onDestroy != nil {
		fn := g.onDestroy
		g.deferred = append(g.deferred, func() { fn(g) })
	}
	log.Debugf("GTU %s destroyed at %v", g.id, now)
}

// 车辆是否已销毁
func (g *GTU) IsDestroyed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.destroyed
}

// V 当前速度
func (g *GTU) V() float64 {
	v, _ := g.Speed()
	return v
}

// Speed 当前速度
func (g *GTU) Speed() (float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p := g.currentPlan()
	if p == nil {
		return 0, nil
	}
	return p.Speed(g.clock.Now())
}

// Acceleration 当前加速度
func (g *GTU) Acceleration() (float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p := g.currentPlan()
	if p == nil {
		return 0, nil
	}
	return p.Acceleration(g.clock.Now())
}

// Location 当前参考点位置与朝向
func (g *GTU) Location() (geometry.DirectedPoint, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p := g.currentPlan()
	if p == nil {
		return geometry.DirectedPoint{}, fmt.Errorf("GTU %s has no plan", g.id)
	}
	return p.Location(g.clock.Now())
}

// Odometer 累计行驶距离
func (g *GTU) Odometer() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	o := g.odometer
	if g.destroyed {
		return o
	}
	if p := g.currentPlan(); p != nil {
		if d, err := p.TraveledDistance(g.clock.Now()); err == nil {
			o += d
		}
	}
	return o
}

// OperationalPlan 当前运行计划
func (g *GTU) OperationalPlan() *plan.OperationalPlan {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.currentPlan()
}

// TurnIndicator 时刻when的转向灯状态
func (g *GTU) TurnIndicator(when float64) entity.TurnIndicator {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, _ := g.turnIndicator.At(when)
	return t
}

// LaneChangeDirection 进行中的变道方向，未变道时为DirectionNone
func (g *GTU) LaneChangeDirection() entity.LateralDirection {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lcDirection
}

// 是否正在变道
func (g *GTU) IsChanging() bool {
	return g.LaneChangeDirection() != entity.DirectionNone
}

// ReferenceLaneIndex 宽度为2的横断面中参考车道的下标
func (g *GTU) ReferenceLaneIndex() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.referenceLaneIndex
}

// CrossSections 当前横断面序列副本
func (g *GTU) CrossSections() []CrossSection {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]CrossSection(nil), g.currentCrossSections()...)
}

// CrossSectionsAt 时刻when的横断面序列
func (g *GTU) CrossSectionsAt(when float64) []CrossSection {
	g.mu.Lock()
	defer g.mu.Unlock()
	css, _ := g.crossSections.At(when)
	return append([]CrossSection(nil), css...)
}

// Lanes 当前占用的所有车道（上游到下游，左到右）
func (g *GTU) Lanes() []entity.ILane {
	g.mu.Lock()
	defer g.mu.Unlock()
	return allLanes(g.currentCrossSections())
}

// CacheStats 位置缓存命中与未命中次数
func (g *GTU) CacheStats() (hits, misses int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cacheHits, g.cacheMisses
}

// PendingEvents 待执行的进入、离开、变道完成事件与检测器事件数
func (g *GTU) PendingEvents() (enter, leave, finalize *clock.Event, sensors int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pendingEnter, g.pendingLeave, g.finalizeEvent, len(g.sensorEvents)
}
