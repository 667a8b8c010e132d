package tactical_test

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/lanesim/entity"
	"github.com/tsinghua-fib-lab/lanesim/entity/gtu"
	"github.com/tsinghua-fib-lab/lanesim/entity/gtu/tactical"
	"github.com/tsinghua-fib-lab/lanesim/entity/lane"
	"github.com/tsinghua-fib-lab/lanesim/entity/route"
)

func state(l entity.ILane, s, speed, now float64) gtu.State {
	return gtu.State{
		ID:         "g",
		Type:       "car",
		Time:       now,
		Length:     4,
		Front:      1,
		Location:   l.LocationAt(s),
		Speed:      speed,
		Reference:  entity.LanePosition{Lane: l, Position: s},
		LaneChange: entity.DirectionNone,
	}
}

func straight(t *testing.T, lanes int) *lane.LaneManager {
	m := lane.NewManager()
	_, err := m.AddLink("A", []orb.Point{{0, 0}, {1000, 0}}, lanes, 3, nil)
	require.NoError(t, err)
	return m
}

func TestAccelerateTowardDesiredSpeed(t *testing.T) {
	m := straight(t, 1)
	f := tactical.New(tactical.Params{DesiredSpeed: 10, MaxAcceleration: 2, PlanDuration: 1}, nil)

	d, err := f.Decide(state(m.Get("A.0"), 100, 0, 3))
	require.NoError(t, err)
	assert.Equal(t, entity.DirectionNone, d.LaneChange.Direction)
	assert.InDelta(t, 3, d.Plan.StartTime(), 1e-12)
	assert.InDelta(t, 2, d.Plan.EndSpeed(), 1e-9)
	assert.InDelta(t, 1, d.Plan.TotalLength(), 1e-9)
	end, err := d.Plan.Location(4)
	require.NoError(t, err)
	assert.InDelta(t, 101, end.X(), 1e-6)
	assert.InDelta(t, 0, end.Y(), 1e-9)

	// 接近期望速度时不越过
	d, err = f.Decide(state(m.Get("A.0"), 100, 9.5, 3))
	require.NoError(t, err)
	assert.InDelta(t, 10, d.Plan.EndSpeed(), 1e-9)
}

func TestStandstillWaits(t *testing.T) {
	m := straight(t, 1)
	f := tactical.New(tactical.Params{DesiredSpeed: 0, MaxAcceleration: 2, PlanDuration: 1}, nil)
	d, err := f.Decide(state(m.Get("A.0"), 100, 0, 0))
	require.NoError(t, err)
	assert.True(t, d.Plan.IsWait())
	assert.Zero(t, d.Plan.TotalLength())
}

func TestScriptedLaneChange(t *testing.T) {
	m := straight(t, 2)
	f := tactical.New(tactical.Params{
		DesiredSpeed:    10,
		MaxAcceleration: 2,
		PlanDuration:    1,
		LaneChanges: []tactical.ScriptedLaneChange{
			{At: 5, Direction: entity.DirectionLeft, Duration: 2},
		},
	}, nil)
	a1 := m.Get("A.1")

	d, err := f.Decide(state(a1, 100, 10, 4))
	require.NoError(t, err)
	assert.Equal(t, entity.DirectionNone, d.LaneChange.Direction)

	d, err = f.Decide(state(a1, 100, 10, 5))
	require.NoError(t, err)
	assert.Equal(t, gtu.LaneChange{Direction: entity.DirectionLeft, Duration: 2}, d.LaneChange)
	// 1秒后横移了半个车道间距：从y=-1.5到y=0
	pts := d.Plan.Path().Points()
	assert.InDelta(t, 110, pts[10].X(), 1e-6)
	assert.InDelta(t, 0, pts[10].Y(), 1e-6)

	// 变道已发起，脚本为空
	s := state(a1, 110, 10, 6)
	s.LaneChange = entity.DirectionLeft
	d, err = f.Decide(s)
	require.NoError(t, err)
	assert.Equal(t, entity.DirectionNone, d.LaneChange.Direction)
	pts = d.Plan.Path().Points()
	assert.InDelta(t, 1.5, pts[len(pts)-1].Y(), 1e-6)
}

func TestScriptedLaneChangeWithoutLaneIsDropped(t *testing.T) {
	m := straight(t, 2)
	f := tactical.New(tactical.Params{
		DesiredSpeed:    10,
		MaxAcceleration: 2,
		PlanDuration:    1,
		LaneChanges: []tactical.ScriptedLaneChange{
			{At: 0, Direction: entity.DirectionLeft, Duration: 2},
			{At: 0, Direction: entity.DirectionRight, Duration: 2},
		},
	}, nil)
	d, err := f.Decide(state(m.Get("A.0"), 100, 10, 1))
	require.NoError(t, err)
	assert.Equal(t, entity.DirectionRight, d.LaneChange.Direction)
}

func TestPathFollowsLaneChain(t *testing.T) {
	m := lane.NewManager()
	_, err := m.AddLink("A", []orb.Point{{0, 0}, {100, 0}}, 1, 3, nil)
	require.NoError(t, err)
	_, err = m.AddLink("B", []orb.Point{{100, 0}, {100, 100}}, 1, 3, nil)
	require.NoError(t, err)
	require.NoError(t, m.Connect("A", "B"))
	f := tactical.New(tactical.Params{DesiredSpeed: 10, MaxAcceleration: 2, PlanDuration: 1}, nil)

	d, err := f.Decide(state(m.Get("A.0"), 95, 10, 0))
	require.NoError(t, err)
	last := d.Plan.Path().Last()
	assert.InDelta(t, 100, last.X(), 1e-6)
	assert.InDelta(t, 7, last.Y(), 1e-6)
}

func TestChooseLaneAtSplit(t *testing.T) {
	m := lane.NewManager()
	_, err := m.AddLink("A", []orb.Point{{0, 0}, {100, 0}}, 1, 3, nil)
	require.NoError(t, err)
	_, err = m.AddLink("L", []orb.Point{{100, 0}, {200, 50}}, 1, 3, nil)
	require.NoError(t, err)
	_, err = m.AddLink("R", []orb.Point{{100, 0}, {200, -50}}, 2, 3, nil)
	require.NoError(t, err)
	candidates := []entity.ILane{m.Get("R.1"), m.Get("L.0"), m.Get("R.0")}
	from := m.Get("A.0")

	f := tactical.New(tactical.Params{DesiredSpeed: 10, PlanDuration: 1}, route.NewRoute([]string{"A", "L"}))
	assert.Equal(t, "L.0", f.ChooseLaneAtSplit("g", from, candidates).ID())

	f = tactical.New(tactical.Params{DesiredSpeed: 10, PlanDuration: 1}, nil)
	assert.Equal(t, 0, f.ChooseLaneAtSplit("g", from, candidates).OffsetInLink())
	assert.Nil(t, f.ChooseLaneAtSplit("g", from, nil))
}

func TestNewRejectsBadDuration(t *testing.T) {
	assert.Panics(t, func() { tactical.New(tactical.Params{DesiredSpeed: 10}, nil) })
}
