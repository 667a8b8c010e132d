package gtu_test

import (
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/lanesim/clock"
	"github.com/tsinghua-fib-lab/lanesim/entity"
	"github.com/tsinghua-fib-lab/lanesim/entity/gtu"
	"github.com/tsinghua-fib-lab/lanesim/entity/gtu/plan"
	"github.com/tsinghua-fib-lab/lanesim/entity/lane"
	"github.com/tsinghua-fib-lab/lanesim/utils/config"
	"github.com/tsinghua-fib-lab/lanesim/utils/geometry"
)

var errPlanner = errors.New("planner failure")

// constantPlanner 匀速直行的测试战术层，可在第n次决策时发起变道
type constantPlanner struct {
	speed    float64
	duration float64
	changes  map[int]gtu.LaneChange
	calls    int
	fail     bool
}

func (p *constantPlanner) Decide(state gtu.State) (gtu.Decision, error) {
	d := gtu.Decision{LaneChange: gtu.LaneChange{Direction: entity.DirectionNone}}
	if lc, ok := p.changes[p.calls]; ok {
		d.LaneChange = lc
	}
	p.calls++
	if p.fail {
		return d, errPlanner
	}
	if p.speed < plan.DRIFTING_SPEED {
		d.Plan = plan.NewWait(state.Location, state.Time, p.duration)
		return d, nil
	}
	length := p.speed*p.duration + 10
	loc := state.Location
	end := orb.Point{loc.X() + length*math.Cos(loc.Dir), loc.Y() + length*math.Sin(loc.Dir)}
	path, err := geometry.NewPolyline(loc.Point, end)
	if err != nil {
		return d, err
	}
	d.Plan, err = plan.NewConstantSpeed(path, state.Time, p.speed, p.duration)
	return d, err
}

func (p *constantPlanner) ChooseLaneAtSplit(_ string, _ entity.ILane, candidates []entity.ILane) entity.ILane {
	return candidates[0]
}

// collector 收集车辆通知
type collector struct {
	mu sync.Mutex
	ns []gtu.Notification
}

func (c *collector) record(n gtu.Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ns = append(c.ns, n)
}

func (c *collector) all() []gtu.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]gtu.Notification(nil), c.ns...)
}

func (c *collector) laneChanges() []gtu.LaneChangeNotification {
	var r []gtu.LaneChangeNotification
	for _, n := range c.all() {
		if lc, ok := n.(gtu.LaneChangeNotification); ok {
			r = append(r, lc)
		}
	}
	return r
}

func (c *collector) destroys() []gtu.DestroyNotification {
	var r []gtu.DestroyNotification
	for _, n := range c.all() {
		if d, ok := n.(gtu.DestroyNotification); ok {
			r = append(r, d)
		}
	}
	return r
}

// world 沿x轴首尾相接的直线路网
type world struct {
	clock     *clock.Clock
	lanes     *lane.LaneManager
	publisher *gtu.Publisher
	events    *collector
	x         float64
}

func newWorld() *world {
	w := &world{
		clock:     clock.New(config.Control{Start: 0, End: 10000}),
		lanes:     lane.NewManager(),
		publisher: gtu.NewPublisher(),
		events:    &collector{},
	}
	w.publisher.Subscribe(w.events.record)
	return w
}

// link 在上一个路段终点之后追加一个路段，车道宽3米
func (w *world) link(t *testing.T, id string, length float64, lanes int) {
	_, err := w.lanes.AddLink(id, []orb.Point{{w.x, 0}, {w.x + length, 0}}, lanes, 3, nil)
	require.NoError(t, err)
	w.x += length
}

func params(id string, bk gtu.Bookkeeping) gtu.Params {
	return gtu.Params{ID: id, Type: "car", Length: 4, Width: 2, Front: 1, Bookkeeping: bk}
}

// place 在车道laneID的位置s以速度10创建车辆，并执行当前时刻的运行周期
func (w *world) place(t *testing.T, id, laneID string, s float64, bk gtu.Bookkeeping, p gtu.ITacticalPlanner) *gtu.GTU {
	g := gtu.New(params(id, bk), w.clock, p, nil, w.publisher)
	require.NoError(t, g.Init([]entity.LanePosition{{Lane: w.lanes.Get(laneID), Position: s}}, 10))
	w.clock.RunUntil(w.clock.Now())
	return g
}

// laneIDs 横断面序列中各车道的ID，空位为"-"
func laneIDs(css []gtu.CrossSection) [][]string {
	out := make([][]string, 0, len(css))
	for _, cs := range css {
		ids := make([]string, 0, cs.Width())
		for _, l := range cs.Lanes() {
			if l == nil {
				ids = append(ids, "-")
			} else {
				ids = append(ids, l.ID())
			}
		}
		out = append(out, ids)
	}
	return out
}

// requireConservation 车辆横断面中的车道与登记了该车辆的车道一致
func requireConservation(t *testing.T, w *world, g *gtu.GTU) {
	t.Helper()
	held := map[entity.ILane]bool{}
	for _, l := range g.Lanes() {
		held[l] = true
	}
	for _, l := range w.lanes.Lanes() {
		require.Equal(t, held[l], l.HasGTU(g), "%v at %v", l, w.clock.Now())
	}
}
