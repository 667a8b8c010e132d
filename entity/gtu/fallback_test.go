package gtu_test

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/lanesim/entity"
	"github.com/tsinghua-fib-lab/lanesim/entity/gtu"
	"github.com/tsinghua-fib-lab/lanesim/entity/sensor"
)

// 1秒一个计划：参考点在t=1越过20、t=4越过50，恰为计划边界，只触发一次
func TestDetectorOnPlanBoundaryFiresOnce(t *testing.T) {
	w := newWorld()
	w.link(t, "A", 100, 1)
	a := w.lanes.Get("A.0")
	at20 := sensor.NewDetector("d20", a, 20, entity.REFERENCE, w.clock)
	at50 := sensor.NewDetector("d50", a, 50, entity.REFERENCE, w.clock)
	at55 := sensor.NewDetector("d55", a, 55, entity.REFERENCE, w.clock)
	w.place(t, "g", "A.0", 10, gtu.EDGE, &constantPlanner{speed: 10, duration: 1})

	w.clock.RunUntil(8)
	for d, want := range map[*sensor.Detector]float64{at20: 1, at50: 4, at55: 4.5} {
		passages := d.Passages()
		require.Len(t, passages, 1, "%v", want)
		assert.InDelta(t, want, passages[0].Time, 1e-9)
		assert.Equal(t, 1, d.Count())
	}
}

// 车头恰在终止线上时没有越线可预测，立即进入下游横断面
func TestFrontOnEndLineEntersImmediately(t *testing.T) {
	w := newWorld()
	w.link(t, "A", 1000, 1)
	w.link(t, "B", 1000, 1)
	require.NoError(t, w.lanes.Connect("A", "B"))
	a, b := w.lanes.Get("A.0"), w.lanes.Get("B.0")
	g := gtu.New(params("g", gtu.EDGE), w.clock, &constantPlanner{speed: 0, duration: 1}, nil, w.publisher)
	require.NoError(t, g.Init([]entity.LanePosition{{Lane: a, Position: 999}}, 0))

	require.True(t, w.clock.Step())
	enter, _, _, _ := g.PendingEvents()
	require.NotNil(t, enter)
	assert.Zero(t, enter.Time())

	w.clock.RunUntil(0)
	assert.Equal(t, [][]string{{"A.0"}, {"B.0"}}, laneIDs(g.CrossSections()))
	assert.True(t, b.HasGTU(g))
	front, err := g.PositionNow(b, entity.FRONT)
	require.NoError(t, err)
	assert.InDelta(t, 0, front, 1e-9)
	requireConservation(t, w, g)
}

// A.0末端没有下游车道，超出末端的位置钳制到车道端点
func TestPositionBeyondLaneEndIsClamped(t *testing.T) {
	w := newWorld()
	w.link(t, "A", 1000, 1)
	a := w.lanes.Get("A.0")
	g := w.place(t, "g", "A.0", 995, gtu.EDGE, &constantPlanner{speed: 10, duration: 1})

	inside, err := g.Position(a, entity.REFERENCE, 0.3)
	require.NoError(t, err)
	assert.InDelta(t, 998, inside, 1e-6)
	beyond, err := g.Position(a, entity.REFERENCE, 0.8)
	require.NoError(t, err)
	assert.InDelta(t, 1000, beyond, 1e-6)
	assert.Equal(t, [][]string{{"A.0"}}, laneIDs(g.CrossSections()))
}

// 车尾已在A.0终点之后而停车计划无法预测越线：离开事件调度在当前时刻
func TestRearPastEndLeavesImmediately(t *testing.T) {
	w := newWorld()
	w.link(t, "A", 1000, 1)
	w.link(t, "B", 1000, 1)
	require.NoError(t, w.lanes.Connect("A", "B"))
	a, b := w.lanes.Get("A.0"), w.lanes.Get("B.0")
	g := gtu.New(params("g", gtu.EDGE), w.clock, &constantPlanner{speed: 0, duration: 1}, nil, w.publisher)
	require.NoError(t, g.Init([]entity.LanePosition{{Lane: a, Position: 1010}, {Lane: b, Position: 10}}, 0))
	assert.Equal(t, [][]string{{"A.0"}, {"B.0"}}, laneIDs(g.CrossSections()))

	require.True(t, w.clock.Step())
	_, leave, _, _ := g.PendingEvents()
	require.NotNil(t, leave)
	assert.True(t, leave.Pending())
	assert.Zero(t, leave.Time())
	assert.True(t, a.HasGTU(g))

	w.clock.RunUntil(0)
	assert.True(t, leave.Fired())
	assert.Equal(t, [][]string{{"B.0"}}, laneIDs(g.CrossSections()))
	assert.False(t, a.HasGTU(g))
	assert.True(t, b.HasGTU(g))
	requireConservation(t, w, g)
}

// 检测器在车辆越过之后才加入：越线时刻早于当前时刻，触发修正到当前时刻
func TestLateTriggerFiresNow(t *testing.T) {
	w := newWorld()
	w.link(t, "A", 1000, 1)
	a := w.lanes.Get("A.0")
	g := w.place(t, "g", "A.0", 100, gtu.EDGE, &constantPlanner{speed: 10, duration: 10})
	w.clock.RunUntil(0.5)

	late := sensor.NewDetector("late", a, 103, entity.REFERENCE, w.clock)
	require.NoError(t, g.ScheduleTriggers(a))
	_, _, _, sensors := g.PendingEvents()
	assert.Equal(t, 1, sensors)

	w.clock.RunUntil(0.5)
	passages := late.Passages()
	require.Len(t, passages, 1)
	assert.InDelta(t, 0.5, passages[0].Time, 1e-9)
	_, _, _, sensors = g.PendingEvents()
	assert.Zero(t, sensors)
}

// 只有A.1接到单车道路段B：向左变道时下游横断面的左侧为空，
// 该下标上的位置不借用右侧车道，完成变道时该横断面保留原车道
func TestLaneChangeWithGapDownstream(t *testing.T) {
	w := newWorld()
	w.link(t, "A", 1000, 2)
	_, err := w.lanes.AddLink("B", []orb.Point{{1000, -1.5}, {2000, -1.5}}, 1, 3, nil)
	require.NoError(t, err)
	require.NoError(t, w.lanes.ConnectLanes("A.1", "B.0"))
	a0, a1, b := w.lanes.Get("A.0"), w.lanes.Get("A.1"), w.lanes.Get("B.0")
	g := gtu.New(params("g", gtu.EDGE), w.clock, &constantPlanner{speed: 0, duration: 1}, nil, w.publisher)
	require.NoError(t, g.Init([]entity.LanePosition{{Lane: a1, Position: 999.5}, {Lane: b, Position: -0.5}}, 0))
	w.clock.RunUntil(0)

	require.NoError(t, g.InitiateLaneChange(entity.DirectionLeft))
	assert.Equal(t, [][]string{{"A.0", "A.1"}, {"-", "B.0"}}, laneIDs(g.CrossSections()))
	requireConservation(t, w, g)

	front, err := g.PositionNow(a1, entity.FRONT)
	require.NoError(t, err)
	assert.InDelta(t, 1000.5, front, 1e-6)
	front, err = g.PositionNow(a0, entity.FRONT)
	require.NoError(t, err)
	assert.InDelta(t, 1000, front, 1e-6)

	require.NoError(t, g.FinalizeLaneChange())
	assert.Equal(t, [][]string{{"A.0"}, {"B.0"}}, laneIDs(g.CrossSections()))
	assert.False(t, g.IsChanging())
	assert.False(t, a1.HasGTU(g))
	assert.True(t, b.HasGTU(g))
	requireConservation(t, w, g)

	changes := w.events.laneChanges()
	require.Len(t, changes, 1)
	assert.Equal(t, "A.1", changes[0].FromLaneID)
	assert.InDelta(t, 999.5, changes[0].FromPosition, 1e-6)
}
