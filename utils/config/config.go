package config

import (
	"errors"
	"fmt"

	"github.com/samber/lo"
	"gopkg.in/yaml.v2"
)

// 默认参数
const (
	DefaultHeartbeatInterval = 10.0
	DefaultHistory           = 10.0
	DefaultEventMargin       = 50.0
	DefaultLaneWidth         = 3.5
	DefaultGTULength         = 4.0
	DefaultGTUWidth          = 2.0
	DefaultGTUType           = "car"
	DefaultDesiredSpeed      = 15.0
	DefaultMaxAcceleration   = 1.5
	DefaultPlanDuration      = 0.5
	DefaultBookkeeping       = "edge"
	DefaultMinGap            = 2.0
)

var (
	sides        = []string{"left", "right"}
	sensorKinds  = []string{"sink", "detector"}
	triggers     = []string{"", "front", "rear", "reference", "center"}
	bookkeepings = []string{"instant", "start", "edge"}
)

// Load 解析YAML配置并校验
// 功能：严格解析配置数据（未知字段报错），填充默认值并检查一致性
// 参数：data-YAML数据
// 返回：配置与错误
func Load(data []byte) (Config, error) {
	var c Config
	if err := yaml.UnmarshalStrict(data, &c); err != nil {
		return c, fmt.Errorf("config parse: %w", err)
	}
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

// Validate 填充默认值并校验配置
// 功能：对缺省项填入默认值，检查时间范围、枚举值、几何数据的合法性
// 返回：第一个发现的错误
func (c *Config) Validate() error {
	ctl := &c.Control
	if ctl.End <= ctl.Start {
		return fmt.Errorf("control: end %v must be after start %v", ctl.End, ctl.Start)
	}
	if ctl.HeartbeatInterval <= 0 {
		ctl.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if ctl.History <= 0 {
		ctl.History = DefaultHistory
	}
	if ctl.EventMargin <= 0 {
		ctl.EventMargin = DefaultEventMargin
	}
	if len(c.Network.Links) == 0 {
		return errors.New("network: no links")
	}
	for i := range c.Network.Links {
		l := &c.Network.Links[i]
		if l.ID == "" {
			return fmt.Errorf("network: link #%d has no id", i)
		}
		if len(l.Line) < 2 {
			return fmt.Errorf("network: link %s needs at least two points", l.ID)
		}
		for _, p := range l.Line {
			if len(p) != 2 {
				return fmt.Errorf("network: link %s has point %v, want [x, y]", l.ID, p)
			}
		}
		if l.Lanes <= 0 {
			return fmt.Errorf("network: link %s has %d lanes", l.ID, l.Lanes)
		}
		if l.LaneWidth <= 0 {
			l.LaneWidth = DefaultLaneWidth
		}
	}
	for _, r := range c.Network.LaneChange {
		if !lo.Contains(sides, r.Side) {
			return fmt.Errorf("network: lane change rule on %s has side %q, want one of %v", r.Lane, r.Side, sides)
		}
	}
	for _, s := range c.Network.Sensors {
		if !lo.Contains(sensorKinds, s.Kind) {
			return fmt.Errorf("network: sensor %s has kind %q, want one of %v", s.ID, s.Kind, sensorKinds)
		}
		if !lo.Contains(triggers, s.Trigger) {
			return fmt.Errorf("network: sensor %s has trigger %q, want one of %v", s.ID, s.Trigger, triggers[1:])
		}
	}
	for i := range c.GTUs {
		if err := c.GTUs[i].validate(); err != nil {
			return fmt.Errorf("gtus[%d]: %w", i, err)
		}
	}
	for i := range c.Generators {
		g := &c.Generators[i]
		if g.Rate <= 0 {
			return fmt.Errorf("generator %s: rate %v must be positive", g.ID, g.Rate)
		}
		if g.MinGap <= 0 {
			g.MinGap = DefaultMinGap
		}
		g.GTU.Lane = g.Lane
		if err := g.GTU.validate(); err != nil {
			return fmt.Errorf("generator %s: %w", g.ID, err)
		}
	}
	return nil
}

func (g *GTU) validate() error {
	if g.Lane == "" {
		return errors.New("no lane")
	}
	if g.Type == "" {
		g.Type = DefaultGTUType
	}
	if g.Length <= 0 {
		g.Length = DefaultGTULength
	}
	if g.Width <= 0 {
		g.Width = DefaultGTUWidth
	}
	if g.Front < 0 || g.Front > g.Length {
		return fmt.Errorf("front offset %v outside [0, length %v]", g.Front, g.Length)
	}
	if g.DesiredSpeed <= 0 {
		g.DesiredSpeed = DefaultDesiredSpeed
	}
	if g.MaxAcceleration <= 0 {
		g.MaxAcceleration = DefaultMaxAcceleration
	}
	if g.PlanDuration <= 0 {
		g.PlanDuration = DefaultPlanDuration
	}
	if g.Bookkeeping == "" {
		g.Bookkeeping = DefaultBookkeeping
	}
	if !lo.Contains(bookkeepings, g.Bookkeeping) {
		return fmt.Errorf("bookkeeping %q, want one of %v", g.Bookkeeping, bookkeepings)
	}
	for _, lc := range g.LaneChanges {
		if !lo.Contains(sides, lc.Direction) {
			return fmt.Errorf("lane change at %v has direction %q, want one of %v", lc.At, lc.Direction, sides)
		}
		if lc.Duration <= 0 {
			return fmt.Errorf("lane change at %v has duration %v", lc.At, lc.Duration)
		}
	}
	return nil
}
