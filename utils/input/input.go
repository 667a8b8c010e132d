package input

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"github.com/tsinghua-fib-lab/lanesim/entity"
	"github.com/tsinghua-fib-lab/lanesim/entity/gtu"
	"github.com/tsinghua-fib-lab/lanesim/entity/gtu/tactical"
	"github.com/tsinghua-fib-lab/lanesim/entity/lane"
	"github.com/tsinghua-fib-lab/lanesim/entity/route"
	"github.com/tsinghua-fib-lab/lanesim/entity/sensor"
	"github.com/tsinghua-fib-lab/lanesim/utils"
	"github.com/tsinghua-fib-lab/lanesim/utils/config"
)

var log = logrus.WithField("module", "input")

// 初始位置一致性检查阈值（米），与车辆初始化的阈值相同
const locationThreshold = 0.001

// Network 由配置构建的路网
// 功能：持有车道管理器、路径规划器与各类检测器
type Network struct {
	Lanes  *lane.LaneManager
	Router *route.Planner

	Sinks     map[string]*sensor.Sink
	detectors map[string]*sensor.Detector
	order     []*sensor.Detector // 按配置顺序
}

// Build 构建路网
// 功能：根据配置创建路段与车道、建立连接、应用变道规则并放置检测器
// 参数：c-路网配置，sched-检测器使用的时钟
// 返回：路网与错误（ID重复、引用不存在的路段或车道、几何非法时返回错误）
// 算法说明：
// 1. 路段：参考线点列转为orb.Point，按车道数与车道宽度生成车道
// 2. 连接：给出from/to时为路段级连接，给出from_lane/to_lane时为车道级连接
// 3. 变道规则：只修改合法变道标记，物理相邻关系不变
// 4. 检测器：sink在触发时销毁车辆，detector记录通过
// 5. 路径规划器：在全部连接建立后构建路段图
func Build(c config.Network, sched entity.IScheduler) (*Network, error) {
	n := &Network{
		Lanes:     lane.NewManager(),
		Sinks:     make(map[string]*sensor.Sink),
		detectors: make(map[string]*sensor.Detector),
	}
	for _, l := range c.Links {
		points := lo.Map(l.Line, func(p []float64, _ int) orb.Point { return orb.Point{p[0], p[1]} })
		if _, err := n.Lanes.AddLink(l.ID, points, l.Lanes, l.LaneWidth, l.AllowedTypes); err != nil {
			return nil, err
		}
	}
	for i, conn := range c.Connections {
		var err error
		switch {
		case conn.From != "" && conn.To != "":
			err = n.Lanes.Connect(conn.From, conn.To)
		case conn.FromLane != "" && conn.ToLane != "":
			err = n.Lanes.ConnectLanes(conn.FromLane, conn.ToLane)
		default:
			err = fmt.Errorf("connection #%d: need from/to or from_lane/to_lane", i)
		}
		if err != nil {
			return nil, err
		}
	}
	for _, r := range c.LaneChange {
		dir, err := ParseDirection(r.Side)
		if err != nil {
			return nil, err
		}
		if err := n.Lanes.SetLaneChange(r.Lane, dir, r.Allowed); err != nil {
			return nil, err
		}
	}
	for _, s := range c.Sensors {
		if err := n.addSensor(s, sched); err != nil {
			return nil, err
		}
	}
	n.Router = route.NewPlanner(n.Lanes)
	log.Infof("network: %d links, %d lanes, %d sinks, %d detectors",
		len(c.Links), len(n.Lanes.Lanes()), len(n.Sinks), len(n.detectors))
	return n, nil
}

func (n *Network) addSensor(s config.Sensor, sched entity.IScheduler) error {
	if _, ok := n.Sinks[s.ID]; ok {
		return fmt.Errorf("duplicate sensor id %s", s.ID)
	}
	if _, ok := n.detectors[s.ID]; ok {
		return fmt.Errorf("duplicate sensor id %s", s.ID)
	}
	l, err := n.Lanes.GetOrError(s.Lane)
	if err != nil {
		return fmt.Errorf("sensor %s: %w", s.ID, err)
	}
	if s.Position < 0 || s.Position > l.Length() {
		return fmt.Errorf("sensor %s: position %v outside %v of length %v", s.ID, s.Position, l, l.Length())
	}
	trigger, err := ParseTrigger(s.Trigger, s.Kind)
	if err != nil {
		return fmt.Errorf("sensor %s: %w", s.ID, err)
	}
	switch s.Kind {
	case "sink":
		n.Sinks[s.ID] = sensor.NewSink(s.ID, l, s.Position, trigger)
	case "detector":
		d := sensor.NewDetector(s.ID, l, s.Position, trigger, sched)
		n.detectors[s.ID] = d
		n.order = append(n.order, d)
	default:
		return fmt.Errorf("sensor %s: unknown kind %q", s.ID, s.Kind)
	}
	return nil
}

// Detectors 按ID获取计数检测器，ids为空时按配置顺序返回全部
// 返回：找到的检测器与不存在的ID
func (n *Network) Detectors(ids ...string) ([]*sensor.Detector, []string) {
	return utils.Find(n.detectors, n.order, ids)
}

// ParseDirection 解析横向方向left/right
func ParseDirection(s string) (entity.LateralDirection, error) {
	switch s {
	case "left":
		return entity.DirectionLeft, nil
	case "right":
		return entity.DirectionRight, nil
	default:
		return entity.DirectionNone, fmt.Errorf("bad direction %q, want left or right", s)
	}
}

// ParseTrigger 解析检测器触发的车辆相对位置
// 说明：缺省时sink由车头触发（车辆开始驶出路网），detector由参考点触发
func ParseTrigger(s, kind string) (entity.RelativePositionType, error) {
	switch s {
	case "":
		return lo.Ternary(kind == "sink", entity.FRONT, entity.REFERENCE), nil
	case "front":
		return entity.FRONT, nil
	case "rear":
		return entity.REAR, nil
	case "reference":
		return entity.REFERENCE, nil
	case "center":
		return entity.CENTER, nil
	default:
		return entity.REFERENCE, fmt.Errorf("bad trigger %q", s)
	}
}

// InitialPositions 车辆参考点在其占用的各车道上的位置
// 功能：从参考车道上的位置s出发，车尾越过车道起点时沿上游车道、车头越过车道终点时沿下游车道补充位置
// 参数：l-参考车道，s-参考点位置，front/rear-车头与车尾相对参考点的纵向偏移（rear<=0），typ-车辆类型，route-分叉处使用的路径（可为nil）
// 说明：上下游车道上的位置是同一个参考点的延长坐标；与参考车道上的点不重合（连接处几何不连续）时跳过该车道
func InitialPositions(l entity.ILane, s, front, rear float64, typ string, r entity.IRoute) []entity.LanePosition {
	positions := []entity.LanePosition{{Lane: l, Position: s}}
	origin := l.LocationAt(s).Point
	agrees := func(p entity.LanePosition) bool {
		d := planar.Distance(origin, p.Lane.LocationAt(p.Position).Point)
		if d > locationThreshold {
			log.Warnf("initial position %v is %.4f away from %v@%.3f, skipped", p, d, l, s)
			return false
		}
		return true
	}
	// 上游：位置为上游车道长度+s
	for cur, pos := l, s; pos+rear < 0; {
		ups := cur.PrevLanes(typ)
		if len(ups) == 0 {
			break
		}
		up := ups[0]
		pos += up.Length()
		p := entity.LanePosition{Lane: up, Position: pos}
		if !agrees(p) {
			break
		}
		positions = append([]entity.LanePosition{p}, positions...)
		cur = up
	}
	// 下游：位置为s-当前车道长度
	for cur, pos := l, s; pos+front > cur.Length(); {
		next := downstream(cur, typ, r)
		if next == nil {
			break
		}
		pos -= cur.Length()
		p := entity.LanePosition{Lane: next, Position: pos}
		if !agrees(p) {
			break
		}
		positions = append(positions, p)
		cur = next
	}
	return positions
}

// downstream 沿路径选择下游车道，没有路径或路径不经过时取序号最小的车道
func downstream(l entity.ILane, typ string, r entity.IRoute) entity.ILane {
	nexts := l.NextLanes(typ)
	if len(nexts) == 0 {
		return nil
	}
	if r != nil {
		if link, ok := r.NextLink(l.Link().ID()); ok {
			if next, ok := lo.Find(nexts, func(n entity.ILane) bool { return n.Link().ID() == link }); ok {
				return next
			}
		}
	}
	return lo.MinBy(nexts, func(a, b entity.ILane) bool { return a.OffsetInLink() < b.OffsetInLink() })
}

// GTUBuilder 由配置创建车辆
type GTUBuilder struct {
	net     *Network
	control config.Control
}

// NewGTUBuilder 创建车辆构建器
func NewGTUBuilder(net *Network, control config.Control) *GTUBuilder {
	return &GTUBuilder{net: net, control: control}
}

// Params 车辆参数
func (b *GTUBuilder) Params(c config.GTU, id string) (gtu.Params, error) {
	bk, err := gtu.ParseBookkeeping(c.Bookkeeping)
	if err != nil {
		return gtu.Params{}, fmt.Errorf("GTU %s: %w", id, err)
	}
	return gtu.Params{
		ID:          id,
		Type:        c.Type,
		Length:      c.Length,
		Width:       c.Width,
		Front:       c.Front,
		Bookkeeping: bk,
		EventMargin: b.control.EventMargin,
		History:     b.control.History,
	}, nil
}

// Route 车辆路径，未配置目的路段时为nil
func (b *GTUBuilder) Route(c config.GTU, from entity.ILane) (entity.IRoute, error) {
	if c.Destination == "" {
		return nil, nil
	}
	return b.net.Router.Route(from.Link().ID(), c.Destination)
}

// Tactical 车辆的自由行驶战术层
func (b *GTUBuilder) Tactical(c config.GTU, r entity.IRoute) (*tactical.FreeDriving, error) {
	script := make([]tactical.ScriptedLaneChange, 0, len(c.LaneChanges))
	for _, lc := range c.LaneChanges {
		dir, err := ParseDirection(lc.Direction)
		if err != nil {
			return nil, err
		}
		script = append(script, tactical.ScriptedLaneChange{At: lc.At, Direction: dir, Duration: lc.Duration})
	}
	return tactical.New(tactical.Params{
		DesiredSpeed:    c.DesiredSpeed,
		MaxAcceleration: c.MaxAcceleration,
		PlanDuration:    c.PlanDuration,
		LaneChanges:     script,
	}, r), nil
}

// Create 按配置创建车辆并放置到路网上
// 参数：m-车辆管理器，c-车辆配置，id-车辆ID（为空时使用配置中的ID）
// 返回：车辆与错误
func (b *GTUBuilder) Create(m *gtu.Manager, c config.GTU, id string) (*gtu.GTU, error) {
	if id == "" {
		id = c.ID
	}
	l, err := b.net.Lanes.GetOrError(c.Lane)
	if err != nil {
		return nil, fmt.Errorf("GTU %s: %w", id, err)
	}
	params, err := b.Params(c, id)
	if err != nil {
		return nil, err
	}
	r, err := b.Route(c, l)
	if err != nil {
		return nil, fmt.Errorf("GTU %s: %w", id, err)
	}
	t, err := b.Tactical(c, r)
	if err != nil {
		return nil, fmt.Errorf("GTU %s: %w", id, err)
	}
	positions := InitialPositions(l, c.Position, c.Front, c.Front-c.Length, c.Type, r)
	return m.Create(params, t, r, positions, math.Max(0, c.Speed))
}
