package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/lanesim/utils/config"
)

const minimal = `
control:
  start: 0
  end: 60
network:
  links:
    - id: A
      line: [[0, 0], [100, 0]]
      lanes: 2
gtus:
  - lane: A.1
    position: 10
generators:
  - id: in
    lane: A.0
    rate: 0.5
`

func TestLoadDefaults(t *testing.T) {
	c, err := config.Load([]byte(minimal))
	require.NoError(t, err)
	assert.Equal(t, config.DefaultHeartbeatInterval, c.Control.HeartbeatInterval)
	assert.Equal(t, config.DefaultHistory, c.Control.History)
	assert.Equal(t, config.DefaultEventMargin, c.Control.EventMargin)
	assert.Equal(t, config.DefaultLaneWidth, c.Network.Links[0].LaneWidth)

	g := c.GTUs[0]
	assert.Equal(t, config.DefaultGTUType, g.Type)
	assert.Equal(t, config.DefaultGTULength, g.Length)
	assert.Equal(t, config.DefaultGTUWidth, g.Width)
	assert.Equal(t, config.DefaultDesiredSpeed, g.DesiredSpeed)
	assert.Equal(t, config.DefaultPlanDuration, g.PlanDuration)
	assert.Equal(t, config.DefaultBookkeeping, g.Bookkeeping)

	gen := c.Generators[0]
	assert.Equal(t, config.DefaultMinGap, gen.MinGap)
	assert.Equal(t, "A.0", gen.GTU.Lane)
	assert.Equal(t, config.DefaultGTULength, gen.GTU.Length)
}

func TestLoadFull(t *testing.T) {
	data := `
control:
  start: 10
  end: 20
  heartbeat_interval: 1
  seed: 7
network:
  links:
    - id: A
      line: [[0, 0], [100, 0]]
      lanes: 1
      lane_width: 3
      allowed_types: [car]
    - id: B
      line: [[100, 0], [200, 0]]
      lanes: 1
  connections:
    - from: A
      to: B
    - from_lane: A.0
      to_lane: B.0
  lane_change:
    - lane: A.0
      side: left
      allowed: false
  sensors:
    - id: exit
      lane: B.0
      position: 90
      kind: sink
    - id: d
      lane: A.0
      position: 50
      kind: detector
      trigger: rear
gtus:
  - id: g
    lane: A.0
    position: 5
    front: 1
    bookkeeping: start
    destination: B
    lane_changes:
      - at: 1
        direction: left
        duration: 2
`
	c, err := config.Load([]byte(data))
	require.NoError(t, err)
	assert.Equal(t, uint64(7), c.Control.Seed)
	assert.Equal(t, 1.0, c.Control.HeartbeatInterval)
	assert.Equal(t, [][]float64{{0, 0}, {100, 0}}, c.Network.Links[0].Line)
	assert.Equal(t, []string{"car"}, c.Network.Links[0].AllowedTypes)
	assert.Len(t, c.Network.Connections, 2)
	assert.False(t, c.Network.LaneChange[0].Allowed)
	assert.Equal(t, "rear", c.Network.Sensors[1].Trigger)
	assert.Equal(t, "start", c.GTUs[0].Bookkeeping)
	assert.Equal(t, "B", c.GTUs[0].Destination)
	assert.Equal(t, []config.LaneChange{{At: 1, Direction: "left", Duration: 2}}, c.GTUs[0].LaneChanges)
}

func TestLoadErrors(t *testing.T) {
	cases := map[string]string{
		"unknown field": minimal + "extra: 1\n",
		"bad time range": `
control: {start: 10, end: 10}
network:
  links: [{id: A, line: [[0, 0], [1, 0]], lanes: 1}]
`,
		"no links": `
control: {end: 10}
`,
		"short line": `
control: {end: 10}
network:
  links: [{id: A, line: [[0, 0]], lanes: 1}]
`,
		"bad point": `
control: {end: 10}
network:
  links: [{id: A, line: [[0, 0], [1, 0, 2]], lanes: 1}]
`,
		"no lanes": `
control: {end: 10}
network:
  links: [{id: A, line: [[0, 0], [1, 0]], lanes: 0}]
`,
		"bad side": `
control: {end: 10}
network:
  links: [{id: A, line: [[0, 0], [1, 0]], lanes: 1}]
  lane_change: [{lane: A.0, side: up}]
`,
		"bad sensor kind": `
control: {end: 10}
network:
  links: [{id: A, line: [[0, 0], [1, 0]], lanes: 1}]
  sensors: [{id: s, lane: A.0, position: 0, kind: camera}]
`,
		"bad trigger": `
control: {end: 10}
network:
  links: [{id: A, line: [[0, 0], [1, 0]], lanes: 1}]
  sensors: [{id: s, lane: A.0, position: 0, kind: sink, trigger: roof}]
`,
		"GTU without lane": `
control: {end: 10}
network:
  links: [{id: A, line: [[0, 0], [1, 0]], lanes: 1}]
gtus: [{position: 0}]
`,
		"front outside": `
control: {end: 10}
network:
  links: [{id: A, line: [[0, 0], [1, 0]], lanes: 1}]
gtus: [{lane: A.0, position: 0, length: 4, front: 5}]
`,
		"bad bookkeeping": `
control: {end: 10}
network:
  links: [{id: A, line: [[0, 0], [1, 0]], lanes: 1}]
gtus: [{lane: A.0, position: 0, bookkeeping: late}]
`,
		"bad lane change": `
control: {end: 10}
network:
  links: [{id: A, line: [[0, 0], [1, 0]], lanes: 1}]
gtus: [{lane: A.0, position: 0, lane_changes: [{at: 1, direction: left, duration: 0}]}]
`,
		"bad rate": `
control: {end: 10}
network:
  links: [{id: A, line: [[0, 0], [1, 0]], lanes: 1}]
generators: [{id: in, lane: A.0, rate: 0}]
`,
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := config.Load([]byte(data))
			assert.Error(t, err)
		})
	}
}
