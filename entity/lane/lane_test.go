package lane_test

import (
	"errors"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/lanesim/entity"
	"github.com/tsinghua-fib-lab/lanesim/entity/lane"
	"github.com/tsinghua-fib-lab/lanesim/utils/geometry"
)

// stubGTU 只提供登记表需要的接口
type stubGTU struct {
	id  string
	pos map[entity.ILane]float64
}

func (g *stubGTU) ID() string      { return g.id }
func (g *stubGTU) Type() string    { return "car" }
func (g *stubGTU) V() float64      { return 0 }
func (g *stubGTU) Length() float64 { return 4 }
func (g *stubGTU) Width() float64  { return 2 }
func (g *stubGTU) RelativePosition(t entity.RelativePositionType) entity.RelativePosition {
	return entity.RelativePosition{Type: t}
}
func (g *stubGTU) Position(l entity.ILane, _ entity.RelativePositionType, _ float64) (float64, error) {
	if s, ok := g.pos[l]; ok {
		return s, nil
	}
	return 0, errors.New("not on lane")
}
func (g *stubGTU) ReferencePosition() (entity.LanePosition, error) { return entity.LanePosition{}, nil }
func (g *stubGTU) Destroy()                                        {}
func (g *stubGTU) IsDestroyed() bool                               { return false }

type stubSensor struct {
	id   string
	lane entity.ILane
	pos  float64
}

func (s *stubSensor) ID() string                                   { return s.id }
func (s *stubSensor) Lane() entity.ILane                           { return s.lane }
func (s *stubSensor) Position() float64                            { return s.pos }
func (s *stubSensor) TriggerPosition() entity.RelativePositionType { return entity.FRONT }
func (s *stubSensor) Line() geometry.Line                          { return geometry.Line{} }
func (s *stubSensor) Fire(entity.IGTU)                             {}

func straightLink(t *testing.T, m *lane.LaneManager, id string, x0, x1 float64, lanes int) *lane.Link {
	k, err := m.AddLink(id, []orb.Point{{x0, 0}, {x1, 0}}, lanes, 3, nil)
	require.NoError(t, err)
	return k
}

func TestAddLinkGeometry(t *testing.T) {
	m := lane.NewManager()
	k := straightLink(t, m, "A", 0, 100, 3)
	lanes := k.Lanes()
	require.Len(t, lanes, 3)
	assert.Equal(t, "A.0", lanes[0].ID())
	// 0号车道在最左侧
	assert.InDelta(t, 3, lanes[0].LocationAt(10).Y(), 1e-9)
	assert.InDelta(t, 0, lanes[1].LocationAt(10).Y(), 1e-9)
	assert.InDelta(t, -3, lanes[2].LocationAt(10).Y(), 1e-9)
	assert.InDelta(t, 100, lanes[2].Length(), 1e-9)

	assert.Equal(t, lanes[1], lanes[0].AdjacentLane(entity.DirectionRight, "car", true))
	assert.Equal(t, lanes[0], lanes[1].AdjacentLane(entity.DirectionLeft, "car", true))
	assert.Nil(t, lanes[0].AdjacentLane(entity.DirectionLeft, "car", false))
	assert.Nil(t, lanes[0].AdjacentLane(entity.DirectionNone, "car", false))

	_, err := m.AddLink("A", []orb.Point{{0, 0}, {1, 0}}, 1, 3, nil)
	assert.Error(t, err)
	_, err = m.AddLink("B", []orb.Point{{0, 0}}, 1, 3, nil)
	assert.ErrorIs(t, err, geometry.ErrDegenerate)
	_, err = m.AddLink("C", []orb.Point{{0, 0}, {1, 0}}, 0, 3, nil)
	assert.Error(t, err)
}

func TestLegalVersusPhysicalAdjacency(t *testing.T) {
	m := lane.NewManager()
	straightLink(t, m, "A", 0, 100, 2)
	require.NoError(t, m.SetLaneChange("A.1", entity.DirectionLeft, false))
	l1 := m.Get("A.1")
	assert.Nil(t, l1.AdjacentLane(entity.DirectionLeft, "car", true))
	assert.Equal(t, m.Get("A.0"), l1.AdjacentLane(entity.DirectionLeft, "car", false))
	// 反方向不受影响
	assert.Equal(t, l1, m.Get("A.0").AdjacentLane(entity.DirectionRight, "car", true))

	assert.Error(t, m.SetLaneChange("X.0", entity.DirectionLeft, false))
	assert.Error(t, m.SetLaneChange("A.0", entity.DirectionNone, false))
}

func TestAllowedTypes(t *testing.T) {
	m := lane.NewManager()
	_, err := m.AddLink("A", []orb.Point{{0, 0}, {100, 0}}, 1, 3, nil)
	require.NoError(t, err)
	_, err = m.AddLink("B", []orb.Point{{100, 0}, {200, 0}}, 1, 3, []string{"bus"})
	require.NoError(t, err)
	require.NoError(t, m.Connect("A", "B"))
	a := m.Get("A.0")
	assert.Empty(t, a.NextLanes("car"))
	assert.Len(t, a.NextLanes("bus"), 1)
	assert.False(t, m.Get("B.0").Allows("car"))
	assert.True(t, a.Allows("car"))
}

func TestConnect(t *testing.T) {
	m := lane.NewManager()
	straightLink(t, m, "A", 0, 100, 3)
	straightLink(t, m, "B", 100, 200, 2)
	require.NoError(t, m.Connect("A", "B"))
	// 多出的车道连接到对侧最近的车道
	assert.Equal(t, []entity.ILane{m.Get("B.0")}, m.Get("A.0").NextLanes("car"))
	assert.Equal(t, []entity.ILane{m.Get("B.1")}, m.Get("A.1").NextLanes("car"))
	assert.Equal(t, []entity.ILane{m.Get("B.1")}, m.Get("A.2").NextLanes("car"))
	assert.Len(t, m.Get("B.1").PrevLanes("car"), 2)

	link, err := m.GetLink("A")
	require.NoError(t, err)
	require.Len(t, link.NextLinks(), 1)
	assert.Equal(t, "B", link.NextLinks()[0].ID())

	// 重复连接幂等
	require.NoError(t, m.ConnectLanes("A.0", "B.0"))
	assert.Len(t, m.Get("A.0").NextLanes("car"), 1)

	assert.Error(t, m.Connect("A", "X"))
	assert.Error(t, m.ConnectLanes("A.9", "B.0"))
	_, err = m.GetOrError("X.0")
	assert.Error(t, err)
	assert.Panics(t, func() { m.Get("X.0") })
}

func TestEndLine(t *testing.T) {
	m := lane.NewManager()
	k := straightLink(t, m, "A", 0, 100, 2)
	end := k.EndLine()
	assert.InDelta(t, 100, end.A.X(), 1e-9)
	assert.InDelta(t, 100, end.B.X(), 1e-9)
	// 横断线覆盖所有车道
	assert.Greater(t, end.Length(), 6.0)
}

func TestGTURegistration(t *testing.T) {
	m := lane.NewManager()
	straightLink(t, m, "A", 0, 100, 1)
	l := m.Get("A.0")
	a := &stubGTU{id: "a", pos: map[entity.ILane]float64{}}
	b := &stubGTU{id: "b", pos: map[entity.ILane]float64{}}

	assert.True(t, l.AddGTU(a, 30))
	assert.True(t, l.AddGTU(b, 10))
	// 重复注册被忽略
	assert.False(t, l.AddGTU(a, 50))
	assert.Equal(t, 2, l.GTUCount())
	assert.Equal(t, []entity.IGTU{b, a}, l.GTUs())
	assert.True(t, l.HasGTU(a))

	require.NoError(t, l.RemoveGTU(a))
	assert.False(t, l.HasGTU(a))
	assert.Error(t, l.RemoveGTU(a))
	assert.Equal(t, 1, l.GTUCount())
}

func TestRefreshReorders(t *testing.T) {
	m := lane.NewManager()
	straightLink(t, m, "A", 0, 100, 1)
	l := m.Get("A.0")
	a := &stubGTU{id: "a", pos: map[entity.ILane]float64{}}
	b := &stubGTU{id: "b", pos: map[entity.ILane]float64{}}
	l.AddGTU(a, 10)
	l.AddGTU(b, 20)
	a.pos[l] = 40
	b.pos[l] = 25
	m.Refresh(1)
	assert.Equal(t, []entity.IGTU{b, a}, l.GTUs())
}

func TestSensorRange(t *testing.T) {
	m := lane.NewManager()
	straightLink(t, m, "A", 0, 100, 1)
	l := m.Get("A.0")
	for i, p := range []float64{50, 10, 90, 30} {
		l.AddSensor(&stubSensor{id: string(rune('a' + i)), lane: l, pos: p})
	}
	got := l.Sensors(10, 50)
	require.Len(t, got, 3)
	assert.Equal(t, 10.0, got[0].Position())
	assert.Equal(t, 30.0, got[1].Position())
	assert.Equal(t, 50.0, got[2].Position())
	assert.Empty(t, l.Sensors(91, 200))
	assert.Len(t, l.Sensors(-10, 1000), 4)
}
