package route_test

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/lanesim/entity/lane"
	"github.com/tsinghua-fib-lab/lanesim/entity/route"
)

// 路网：A分叉到B（短）与C（长），二者汇入D；E孤立
func network(t *testing.T) *lane.LaneManager {
	m := lane.NewManager()
	add := func(id string, pts ...orb.Point) {
		_, err := m.AddLink(id, pts, 1, 3, nil)
		require.NoError(t, err)
	}
	add("A", orb.Point{0, 0}, orb.Point{100, 0})
	add("B", orb.Point{100, 0}, orb.Point{200, 0})
	add("C", orb.Point{100, 0}, orb.Point{150, 100}, orb.Point{200, 0})
	add("D", orb.Point{200, 0}, orb.Point{300, 0})
	add("E", orb.Point{0, 50}, orb.Point{10, 50})
	for _, c := range [][2]string{{"A", "B"}, {"A", "C"}, {"B", "D"}, {"C", "D"}} {
		require.NoError(t, m.Connect(c[0], c[1]))
	}
	return m
}

func TestShortestRoute(t *testing.T) {
	p := route.NewPlanner(network(t))
	r, err := p.Route("A", "D")
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "D"}, r.(*route.Route).Links())
	assert.Equal(t, "D", r.Destination())

	next, ok := r.NextLink("A")
	assert.True(t, ok)
	assert.Equal(t, "B", next)
	_, ok = r.NextLink("D")
	assert.False(t, ok)
	_, ok = r.NextLink("C")
	assert.False(t, ok)
}

func TestRouteErrors(t *testing.T) {
	p := route.NewPlanner(network(t))
	_, err := p.Route("A", "E")
	assert.Error(t, err)
	_, err = p.Route("X", "D")
	assert.Error(t, err)
	_, err = p.Route("D", "A")
	assert.Error(t, err)
}

func TestRouteSameLink(t *testing.T) {
	p := route.NewPlanner(network(t))
	r, err := p.Route("B", "B")
	require.NoError(t, err)
	assert.Equal(t, "B", r.Destination())
}

func TestNewRoute(t *testing.T) {
	r := route.NewRoute([]string{"x", "y", "z"})
	assert.Equal(t, "z", r.Destination())
	next, ok := r.NextLink("y")
	assert.True(t, ok)
	assert.Equal(t, "z", next)
	assert.Equal(t, "", route.NewRoute(nil).Destination())
}
