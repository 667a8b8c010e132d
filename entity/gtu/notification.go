package gtu

import (
	"sync"

	"github.com/paulmach/orb"
	"github.com/tsinghua-fib-lab/lanesim/entity"
)

// Notification 车辆对外发布的带时间戳通知
// 说明：字段顺序与类型是下游消费者（如轨迹记录）依赖的格式，只能追加不能调整
type Notification interface {
	Time() float64
	GTUID() string
	isNotification()
}

// InitNotification 车辆初始化
type InitNotification struct {
	T         float64
	ID        string
	Location  orb.Point
	Direction float64
	Length    float64
	Width     float64
	LinkID    string
	LaneID    string
	Position  float64
	GTUType   string
}

// MoveNotification 车辆开始新的运行计划
type MoveNotification struct {
	T             float64
	ID            string
	Location      orb.Point
	Direction     float64
	Speed         float64
	Acceleration  float64
	TurnIndicator entity.TurnIndicator
	Odometer      float64
	LinkID        string
	LaneID        string
	Position      float64
}

// DestroyNotification 车辆销毁；参考位置无法确定时LinkID与LaneID为空，Position为NaN
type DestroyNotification struct {
	T         float64
	ID        string
	Location  orb.Point
	Direction float64
	Odometer  float64
	LinkID    string
	LaneID    string
	Position  float64
}

// LaneChangeNotification 变道完成，From*为离开的车道
type LaneChangeNotification struct {
	T            float64
	ID           string
	Direction    entity.LateralDirection
	FromLinkID   string
	FromLaneID   string
	FromPosition float64
}

func (n InitNotification) Time() float64       { return n.T }
func (n MoveNotification) Time() float64       { return n.T }
func (n DestroyNotification) Time() float64    { return n.T }
func (n LaneChangeNotification) Time() float64 { return n.T }

func (n InitNotification) GTUID() string       { return n.ID }
func (n MoveNotification) GTUID() string       { return n.ID }
func (n DestroyNotification) GTUID() string    { return n.ID }
func (n LaneChangeNotification) GTUID() string { return n.ID }

func (InitNotification) isNotification()       {}
func (MoveNotification) isNotification()       {}
func (DestroyNotification) isNotification()    {}
func (LaneChangeNotification) isNotification() {}

// Subscriber 通知订阅回调
type Subscriber func(n Notification)

// Publisher 通知发布器
// 功能：把车辆通知按发布顺序同步分发给所有订阅者
// 说明：车辆在释放自身锁之后才发布通知，订阅者可以安全地回查车辆状态
type Publisher struct {
	mu   sync.RWMutex
	subs []Subscriber
}

func NewPublisher() *Publisher {
	return &Publisher{}
}

// 订阅通知
func (p *Publisher) Subscribe(s Subscriber) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subs = append(p.subs, s)
}

// 发布通知，nil发布器直接忽略
func (p *Publisher) Publish(n Notification) {
	if p == nil {
		return
	}
	p.mu.RLock()
	subs := p.subs
	p.mu.RUnlock()
	for _, s := range subs {
		s(n)
	}
}
