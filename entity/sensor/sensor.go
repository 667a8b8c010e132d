// 车道上的点状检测器：车辆指定相对位置越过检测线时由车辆调度触发
package sensor

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/tsinghua-fib-lab/lanesim/entity"
	"github.com/tsinghua-fib-lab/lanesim/utils/geometry"
)

var log = logrus.WithField("module", "sensor")

// Base 检测器基类，提供位置与检测线
type Base struct {
	id       string
	lane     entity.ILane
	position float64
	trigger  entity.RelativePositionType
	line     geometry.Line
}

// newBase 创建检测器基类
// 说明：检测线垂直于车道中心线，长度为车道宽度
func newBase(id string, lane entity.ILane, position float64, trigger entity.RelativePositionType) Base {
	if position < 0 || position > lane.Length() {
		log.Panicf("sensor %s: position %v outside %v of length %v", id, position, lane, lane.Length())
	}
	return Base{
		id:       id,
		lane:     lane,
		position: position,
		trigger:  trigger,
		line:     geometry.PerpendicularLine(lane.LocationAt(position), lane.Width()/2),
	}
}

func (b *Base) ID() string {
	return b.id
}

func (b *Base) Lane() entity.ILane {
	return b.lane
}

func (b *Base) Position() float64 {
	return b.position
}

func (b *Base) TriggerPosition() entity.RelativePositionType {
	return b.trigger
}

func (b *Base) Line() geometry.Line {
	return b.line
}

func (b *Base) String() string {
	return fmt.Sprintf("Sensor %s(%v@%.3f, %v)", b.id, b.lane, b.position, b.trigger)
}

// Sink 路网出口，车辆越过时销毁车辆
type Sink struct {
	Base
}

// NewSink 创建出口检测器并加入车道
func NewSink(id string, lane entity.ILane, position float64, trigger entity.RelativePositionType) *Sink {
	s := &Sink{Base: newBase(id, lane, position, trigger)}
	lane.AddSensor(s)
	return s
}

func (s *Sink) Fire(g entity.IGTU) {
	log.Debugf("%v: destroying GTU %s", s, g.ID())
	g.Destroy()
}

// Passage 一次车辆通过记录
type Passage struct {
	GTU   string
	Time  float64
	Speed float64
}

// Detector 计数检测器
// 功能：记录车辆通过次数、最近一次通过时刻与通过速度
type Detector struct {
	Base

	clock entity.IScheduler

	mu       sync.Mutex
	count    int
	last     float64
	speedSum float64
	passages []Passage
}

// NewDetector 创建计数检测器并加入车道
func NewDetector(id string, lane entity.ILane, position float64, trigger entity.RelativePositionType, clock entity.IScheduler) *Detector {
	d := &Detector{Base: newBase(id, lane, position, trigger), clock: clock, last: -1}
	lane.AddSensor(d)
	return d
}

func (d *Detector) Fire(g entity.IGTU) {
	now := d.clock.Now()
	v := g.V()
	d.mu.Lock()
	defer d.mu.Unlock()
	d.count++
	d.last = now
	d.speedSum += v
	d.passages = append(d.passages, Passage{GTU: g.ID(), Time: now, Speed: v})
	log.Debugf("%v: GTU %s passed at %.3f with speed %.3f", d, g.ID(), now, v)
}

// 通过次数
func (d *Detector) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.count
}

// 最近一次通过时刻，没有通过时为-1
func (d *Detector) LastPassage() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

// MeanSpeed 平均通过速度
func (d *Detector) MeanSpeed() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.count == 0 {
		return 0
	}
	return d.speedSum / float64(d.count)
}

// Passages 通过记录副本
func (d *Detector) Passages() []Passage {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Passage(nil), d.passages...)
}
