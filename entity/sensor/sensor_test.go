package sensor_test

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/lanesim/clock"
	"github.com/tsinghua-fib-lab/lanesim/entity"
	"github.com/tsinghua-fib-lab/lanesim/entity/lane"
	"github.com/tsinghua-fib-lab/lanesim/entity/sensor"
	"github.com/tsinghua-fib-lab/lanesim/utils/config"
)

type stubGTU struct {
	id        string
	v         float64
	destroyed int
}

func (g *stubGTU) ID() string      { return g.id }
func (g *stubGTU) Type() string    { return "car" }
func (g *stubGTU) V() float64      { return g.v }
func (g *stubGTU) Length() float64 { return 4 }
func (g *stubGTU) Width() float64  { return 2 }
func (g *stubGTU) RelativePosition(t entity.RelativePositionType) entity.RelativePosition {
	return entity.RelativePosition{Type: t}
}
func (g *stubGTU) Position(entity.ILane, entity.RelativePositionType, float64) (float64, error) {
	return 0, nil
}
func (g *stubGTU) ReferencePosition() (entity.LanePosition, error) { return entity.LanePosition{}, nil }
func (g *stubGTU) Destroy()                                        { g.destroyed++ }
func (g *stubGTU) IsDestroyed() bool                               { return g.destroyed > 0 }

func testLane(t *testing.T) entity.ILane {
	m := lane.NewManager()
	_, err := m.AddLink("A", []orb.Point{{0, 0}, {100, 0}}, 1, 3, nil)
	require.NoError(t, err)
	return m.Get("A.0")
}

func TestSensorLine(t *testing.T) {
	l := testLane(t)
	s := sensor.NewSink("exit", l, 40, entity.FRONT)
	assert.Equal(t, "exit", s.ID())
	assert.Equal(t, l, s.Lane())
	assert.Equal(t, 40.0, s.Position())
	assert.Equal(t, entity.FRONT, s.TriggerPosition())
	line := s.Line()
	assert.InDelta(t, 40, line.A.X(), 1e-9)
	assert.InDelta(t, 40, line.B.X(), 1e-9)
	assert.InDelta(t, 3, line.Length(), 1e-9)
	assert.Len(t, l.Sensors(0, 100), 1)
}

func TestSensorOutsideLanePanics(t *testing.T) {
	l := testLane(t)
	assert.Panics(t, func() { sensor.NewSink("bad", l, 101, entity.FRONT) })
	assert.Panics(t, func() { sensor.NewDetector("bad", l, -1, entity.FRONT, nil) })
}

func TestSinkDestroys(t *testing.T) {
	s := sensor.NewSink("exit", testLane(t), 90, entity.FRONT)
	g := &stubGTU{id: "g"}
	s.Fire(g)
	assert.True(t, g.IsDestroyed())
}

func TestDetector(t *testing.T) {
	c := clock.New(config.Control{Start: 0, End: 100})
	d := sensor.NewDetector("d", testLane(t), 50, entity.REFERENCE, c)
	assert.Zero(t, d.Count())
	assert.Equal(t, -1.0, d.LastPassage())
	assert.Zero(t, d.MeanSpeed())

	c.RunUntil(3)
	d.Fire(&stubGTU{id: "a", v: 10})
	c.RunUntil(5)
	d.Fire(&stubGTU{id: "b", v: 20})

	assert.Equal(t, 2, d.Count())
	assert.Equal(t, 5.0, d.LastPassage())
	assert.InDelta(t, 15, d.MeanSpeed(), 1e-9)
	assert.Equal(t, []sensor.Passage{
		{GTU: "a", Time: 3, Speed: 10},
		{GTU: "b", Time: 5, Speed: 20},
	}, d.Passages())
}
