package plan_test

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/lanesim/entity"
	"github.com/tsinghua-fib-lab/lanesim/entity/gtu/plan"
	"github.com/tsinghua-fib-lab/lanesim/utils/geometry"
)

func straight(length float64) *geometry.Polyline {
	return geometry.MustPolyline(orb.Point{0, 0}, orb.Point{length, 0})
}

func TestConstantSpeed(t *testing.T) {
	p, err := plan.NewConstantSpeed(straight(100), 10, 5, 4)
	require.NoError(t, err)
	assert.Equal(t, 14.0, p.EndTime())
	assert.InDelta(t, 20, p.TotalLength(), 1e-12)

	d, err := p.TraveledDistance(12)
	require.NoError(t, err)
	assert.InDelta(t, 10, d, 1e-12)
	v, err := p.Speed(13)
	require.NoError(t, err)
	assert.InDelta(t, 5, v, 1e-12)
	assert.InDelta(t, 12, p.TimeAtDistance(10), 1e-12)

	loc, err := p.Location(12)
	require.NoError(t, err)
	assert.InDelta(t, 10, loc.X(), 1e-9)

	_, err = p.Location(14.5)
	assert.ErrorIs(t, err, plan.ErrOutsideValidity)
	_, err = p.Speed(9)
	assert.ErrorIs(t, err, plan.ErrOutsideValidity)
}

func TestAccelerationTimeAtDistance(t *testing.T) {
	p, err := plan.NewAcceleration(straight(100), 0, 2, 1, 4)
	require.NoError(t, err)
	// d = 2t + t²/2
	assert.InDelta(t, 16, p.TotalLength(), 1e-12)
	assert.InDelta(t, 6, p.EndSpeed(), 1e-12)
	for _, tt := range []float64{0.5, 1, 2.5, 4} {
		d, err := p.TraveledDistance(tt)
		require.NoError(t, err)
		assert.InDelta(t, tt, p.TimeAtDistance(d), 1e-9)
	}
	assert.True(t, math.IsNaN(p.TimeAtDistance(-1)))
	assert.True(t, math.IsNaN(p.TimeAtDistance(17)))
	a, err := p.Acceleration(1)
	require.NoError(t, err)
	assert.Equal(t, 1.0, a)
}

func TestMultiSegment(t *testing.T) {
	p, err := plan.New(straight(100), 0, 10, []plan.Segment{
		plan.AccelerationSegment(2, -2),
		plan.SpeedSegment(3),
	})
	require.NoError(t, err)
	// 16 + 18
	assert.InDelta(t, 34, p.TotalLength(), 1e-12)
	v, err := p.Speed(3)
	require.NoError(t, err)
	assert.InDelta(t, 6, v, 1e-12)
	assert.InDelta(t, 3, p.TimeAtDistance(22), 1e-9)
}

func TestPlanErrors(t *testing.T) {
	_, err := plan.NewAcceleration(straight(100), 0, 1, -1, 2)
	assert.ErrorIs(t, err, plan.ErrNegativeSpeed)
	_, err = plan.NewConstantSpeed(straight(10), 0, 10, 2)
	assert.ErrorIs(t, err, plan.ErrPathTooShort)
	_, err = plan.New(straight(10), 0, 1, nil)
	assert.Error(t, err)
}

func TestWait(t *testing.T) {
	p := plan.NewWait(geometry.DirectedPoint{Point: orb.Point{3, 4}, Dir: math.Pi / 2}, 1, 2)
	assert.True(t, p.IsWait())
	assert.Equal(t, 0.0, p.TotalLength())
	loc, err := p.Location(2)
	require.NoError(t, err)
	assert.InDelta(t, 3, loc.X(), 1e-9)
	assert.InDelta(t, 4, loc.Y(), 1e-9)
	assert.InDelta(t, math.Pi/2, loc.Dir, 1e-9)
	assert.True(t, math.IsNaN(p.TimeAtDistance(1)))
}

func TestLocationOf(t *testing.T) {
	p, err := plan.NewConstantSpeed(straight(100), 0, 10, 1)
	require.NoError(t, err)
	front, err := p.LocationOf(0.5, entity.RelativePosition{Dx: 2})
	require.NoError(t, err)
	assert.InDelta(t, 7, front.X(), 1e-9)
	rear, err := p.LocationOf(0.5, entity.RelativePosition{Dx: -3, Dy: 1})
	require.NoError(t, err)
	assert.InDelta(t, 2, rear.X(), 1e-9)
	assert.InDelta(t, 1, rear.Y(), 1e-9)
	// 路径起点之前沿延长线
	back, err := p.LocationOf(0, entity.RelativePosition{Dx: -4})
	require.NoError(t, err)
	assert.InDelta(t, -4, back.X(), 1e-9)
}
