package task

import (
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/lanesim/entity/sensor"
)

// Summary 一次运行的汇总
type Summary struct {
	RunID          string         `yaml:"run_id"`
	End            float64        `yaml:"end"`
	Events         int            `yaml:"events"`          // 已执行的事件数
	Live           int            `yaml:"live"`            // 结束时仍在路网上的车辆数
	Destroyed      int            `yaml:"destroyed"`       // 已离开路网的车辆数
	TravelDistance float64        `yaml:"travel_distance"` // 已离开路网车辆的总行驶距离
	Generated      int            `yaml:"generated"`       // 生成器生成的车辆数
	Detectors      map[string]int `yaml:"detectors"`       // 各检测器的通过次数
}

// scheduleHeartbeat 在时刻t调度心跳
func (ctx *Context) scheduleHeartbeat(t float64) {
	if t > ctx.clock.END {
		return
	}
	if _, err := ctx.clock.ScheduleAbs(t, "heartbeat", ctx.heartbeat); err != nil {
		log.Warnf("heartbeat at %v: %v", t, err)
	}
}

// heartbeat 心跳
// 功能：更新存活车辆数组，按当前位置刷新各车道登记表，输出心跳日志，并调度下一次心跳
func (ctx *Context) heartbeat() {
	now := ctx.clock.Now()
	ctx.gtuManager.Prepare()
	ctx.network.Lanes.Refresh(now)
	hour, minute, second := ctx.clock.GetHourMinuteSecond()
	log.Infof(
		"T: %v(%d:%d:%.2f) GTUs: %d destroyed: %d pending events: %d",
		now, hour, minute, second,
		ctx.gtuManager.Len(), ctx.gtuManager.Runtime().Destroyed, ctx.clock.Pending(),
	)
	ctx.scheduleHeartbeat(now + ctx.config.Control.HeartbeatInterval)
}

// Run 运行
// 功能：初始化后执行事件直到结束时间，输出并返回汇总
func (ctx *Context) Run() (Summary, error) {
	if err := ctx.Init(); err != nil {
		return Summary{}, err
	}
	ctx.clock.RunUntil(ctx.clock.END)
	ctx.gtuManager.Prepare()
	s := ctx.summary()
	log.Infof("run %s finished at %v: %d events, %d live GTUs, %d destroyed (%.1f m), %d generated",
		s.RunID, s.End, s.Events, s.Live, s.Destroyed, s.TravelDistance, s.Generated)
	for id, n := range s.Detectors {
		log.Infof("detector %s: %d passages", id, n)
	}
	return s, nil
}

func (ctx *Context) summary() Summary {
	rt := ctx.gtuManager.Runtime()
	detectors, _ := ctx.network.Detectors()
	return Summary{
		RunID:          ctx.runID,
		End:            ctx.clock.Now(),
		Events:         ctx.clock.Fired(),
		Live:           ctx.gtuManager.Len(),
		Destroyed:      rt.Destroyed,
		TravelDistance: rt.TravelDistance,
		Generated: lo.SumBy(ctx.generators, func(g *Generator) int {
			return g.Generated()
		}),
		Detectors: lo.SliceToMap(detectors, func(d *sensor.Detector) (string, int) {
			return d.ID(), d.Count()
		}),
	}
}
