package task

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/tsinghua-fib-lab/lanesim/entity"
	"github.com/tsinghua-fib-lab/lanesim/utils/config"
)

// 入口被占用或车辆创建失败时的重试间隔（秒）
const retryInterval = 0.5

// Generator 泊松车辆生成器
// 功能：在车道起点按指数分布的车头时距生成车辆；入口空间（车长+最小间距）被占用时推迟重试，
// 推迟期间到达的车辆依次排队
type Generator struct {
	ctx  *Context
	cfg  config.Generator
	lane entity.ILane
	end  float64

	queued    int // 已到达但尚未进入路网的车辆数
	generated int
	failures  int // 创建车辆失败的次数
	retrying  bool
}

// NewGenerator 创建车辆生成器
func NewGenerator(ctx *Context, cfg config.Generator) (*Generator, error) {
	l, err := ctx.network.Lanes.GetOrError(cfg.Lane)
	if err != nil {
		return nil, fmt.Errorf("generator %s: %w", cfg.ID, err)
	}
	if cfg.GTU.Length-cfg.GTU.Front > l.Length() {
		return nil, fmt.Errorf("generator %s: GTU of length %v does not fit %v", cfg.ID, cfg.GTU.Length, l)
	}
	end := cfg.End
	if end <= 0 || end > ctx.clock.END {
		end = ctx.clock.END
	}
	return &Generator{ctx: ctx, cfg: cfg, lane: l, end: end}, nil
}

func (g *Generator) ID() string {
	return g.cfg.ID
}

// 已生成的车辆数
func (g *Generator) Generated() int {
	return g.generated
}

// 排队等待进入路网的车辆数
func (g *Generator) Queued() int {
	return g.queued
}

// 创建车辆失败的次数
func (g *Generator) Failures() int {
	return g.failures
}

// Start 调度第一次到达
func (g *Generator) Start() {
	g.scheduleArrival(max(g.cfg.Start, g.ctx.clock.Now()))
}

func (g *Generator) scheduleArrival(from float64) {
	t := from + g.ctx.rng.Headway(g.cfg.Rate)
	if t > g.end {
		return
	}
	if _, err := g.ctx.clock.ScheduleAbs(t, g.cfg.ID+" arrival", g.arrive); err != nil {
		log.Warnf("generator %s: %v", g.cfg.ID, err)
	}
}

func (g *Generator) arrive() {
	g.queued++
	g.scheduleArrival(g.ctx.clock.Now())
	g.release()
}

// release 入口空闲时放入一辆排队车辆，否则稍后重试
func (g *Generator) release() {
	if g.queued == 0 {
		return
	}
	if g.occupied() {
		g.scheduleRetry()
		return
	}
	id, err := uuid.NewRandomFromReader(g.ctx.rng)
	if err != nil {
		log.Errorf("generator %s: GTU id: %v", g.cfg.ID, err)
		g.failures++
		g.scheduleRetry()
		return
	}
	c := g.cfg.GTU
	c.Lane = g.lane.ID()
	c.Position = c.Length - c.Front // 车尾位于车道起点
	if _, err := g.ctx.builder.Create(g.ctx.gtuManager, c, g.cfg.ID+"-"+id.String()); err != nil {
		log.Errorf("generator %s: %v", g.cfg.ID, err)
		g.failures++
		g.scheduleRetry()
		return
	}
	g.queued--
	g.generated++
	if g.queued > 0 {
		g.release()
	}
}

// scheduleRetry 稍后再次尝试放入排队车辆，至多存在一个待执行的重试
func (g *Generator) scheduleRetry() {
	if g.retrying {
		return
	}
	_, err := g.ctx.clock.ScheduleAbs(g.ctx.clock.Now()+retryInterval, g.cfg.ID+" retry", func() {
		g.retrying = false
		g.release()
	})
	if err != nil {
		log.Warnf("generator %s: retry: %v", g.cfg.ID, err)
		return
	}
	g.retrying = true
}

// occupied 车道入口[0, 车长+最小间距]内是否有车辆车尾
func (g *Generator) occupied() bool {
	now := g.ctx.clock.Now()
	limit := g.cfg.GTU.Length + g.cfg.MinGap
	for _, other := range g.lane.GTUs() {
		rear, err := other.Position(g.lane, entity.REAR, now)
		if err != nil {
			log.Warnf("generator %s: position of %s: %v", g.cfg.ID, other.ID(), err)
			return true
		}
		if rear < limit {
			return true
		}
	}
	return false
}
