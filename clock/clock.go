package clock

import (
	"errors"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
	"github.com/tsinghua-fib-lab/lanesim/utils/config"
	"github.com/tsinghua-fib-lab/lanesim/utils/container"
)

var log = logrus.WithField("module", "clock")

// ErrPastEvent 事件时间早于当前仿真时间
var ErrPastEvent = errors.New("event time is before current simulation time")

// Event 已调度的离散事件句柄
// 功能：表示一次已调度的回调，可通过Clock.Cancel取消
// 说明：取消已执行或已取消的事件是空操作
type Event struct {
	name      string
	time      float64
	fn        func()
	cancelled bool
	fired     bool
}

// 获取事件名
func (e *Event) Name() string {
	return e.name
}

// 获取事件的计划执行时间
func (e *Event) Time() float64 {
	return e.time
}

// 事件是否已被取消
func (e *Event) Cancelled() bool {
	return e.cancelled
}

// 事件是否已执行
func (e *Event) Fired() bool {
	return e.fired
}

// 事件是否仍在等待执行
func (e *Event) Pending() bool {
	return e != nil && !e.cancelled && !e.fired
}

func (e *Event) String() string {
	return fmt.Sprintf("Event{%s@%.6f}", e.name, e.time)
}

// Clock 离散事件仿真时钟
// 功能：维护当前仿真时间与待执行事件队列，按时间顺序逐个执行回调
// 说明：同一时刻的事件按调度顺序执行；所有回调在同一条时间线上串行执行，
// 一个回调执行完毕后才会执行下一个
type Clock struct {
	START float64 // 起始时间（秒）
	END   float64 // 结束时间（秒），模拟区间[START, END]

	T float64 // 当前时间（秒）

	queue   *container.PriorityQueue[*Event]
	pending int // 队列中未取消的事件数
	fired   int // 已执行的事件数
}

// New 根据配置创建新的时钟实例
// 参数：control-模拟过程控制配置
// 返回：时间位于起始时刻、事件队列为空的时钟
func New(control config.Control) *Clock {
	c := &Clock{
		START: control.Start,
		END:   control.End,
	}
	c.Init()
	return c
}

// Init 重置时钟状态
// 说明：清空事件队列，当前时间回到起始时刻
func (c *Clock) Init() {
	c.T = c.START
	c.queue = container.NewPriorityQueue[*Event]()
	c.pending = 0
	c.fired = 0
}

// 获取当前仿真时间
func (c *Clock) Now() float64 {
	return c.T
}

// ScheduleAbs 在绝对时间t调度回调
// 功能：将回调加入事件队列，到达时间t时执行
// 参数：t-执行时间，name-事件名（用于日志），fn-回调
// 返回：事件句柄与错误（t早于当前时间或为NaN时返回ErrPastEvent）
func (c *Clock) ScheduleAbs(t float64, name string, fn func()) (*Event, error) {
	if math.IsNaN(t) || t < c.T {
		return nil, fmt.Errorf("schedule %s at %v (now %v): %w", name, t, c.T, ErrPastEvent)
	}
	e := &Event{name: name, time: t, fn: fn}
	c.queue.Push(e, t)
	c.pending++
	return e, nil
}

// ScheduleNow 在当前时刻调度回调
// 说明：回调排在当前时刻所有已调度事件之后执行
func (c *Clock) ScheduleNow(name string, fn func()) *Event {
	e, _ := c.ScheduleAbs(c.T, name, fn)
	return e
}

// Cancel 取消事件
// 说明：nil、已执行或已取消的事件直接忽略
func (c *Clock) Cancel(e *Event) {
	if !e.Pending() {
		return
	}
	e.cancelled = true
	c.pending--
}

// Pending 获取等待执行的事件数
func (c *Clock) Pending() int {
	return c.pending
}

// Fired 获取已执行的事件数
func (c *Clock) Fired() int {
	return c.fired
}

// NextTime 获取下一个待执行事件的时间，队列为空时返回+Inf
func (c *Clock) NextTime() float64 {
	c.dropCancelled()
	if _, t, ok := c.queue.Peek(); ok {
		return t
	}
	return math.Inf(1)
}

func (c *Clock) dropCancelled() {
	for {
		e, _, ok := c.queue.Peek()
		if !ok || !e.cancelled {
			return
		}
		c.queue.Pop()
	}
}

// Step 执行下一个事件
// 功能：弹出时间最早的未取消事件，推进当前时间并执行回调
// 返回：是否执行了事件（队列为空时返回false）
func (c *Clock) Step() bool {
	c.dropCancelled()
	if c.queue.Len() == 0 {
		return false
	}
	e, t := c.queue.Pop()
	c.T = t
	c.pending--
	e.fired = true
	c.fired++
	log.Debugf("%v: fire %v", c, e)
	e.fn()
	return true
}

// RunUntil 执行所有时间不晚于t的事件，随后将当前时间推进到t
func (c *Clock) RunUntil(t float64) {
	for c.NextTime() <= t {
		c.Step()
	}
	if t > c.T {
		c.T = t
	}
}

// String 获取时钟的字符串表示
// 功能：将当前时间格式化为HH:MM:SS.mmm
func (c *Clock) String() string {
	h, m, s := c.GetHourMinuteSecond()
	return fmt.Sprintf("%02d:%02d:%06.3f", h, m, s)
}

// GetHourMinuteSecond 获取当前时间的小时、分钟、秒
// 返回：小时、分钟、秒（秒为浮点数，支持亚秒级精度）
func (c *Clock) GetHourMinuteSecond() (int, int, float64) {
	hour := int(c.T) / 3600
	minute := int(c.T) % 3600 / 60
	second := c.T - float64(hour*3600+minute*60)
	return hour, minute, second
}
