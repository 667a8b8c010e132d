// 运行计划（operational plan）：一个规划周期内车辆沿路径的连续时间轨迹
package plan

import (
	"errors"
	"fmt"
	"math"

	"github.com/tsinghua-fib-lab/lanesim/entity"
	"github.com/tsinghua-fib-lab/lanesim/utils/geometry"
	"gonum.org/v1/gonum/spatial/r2"
)

const (
	DRIFTING_SPEED = 1e-4 // 低于该速度视为静止
	timeEpsilon    = 1e-9 // 有效期判定的时间容差
	lengthEpsilon  = 1e-6 // 路径长度判定的容差
	waitPathLength = 1e-6 // 等待计划的占位路径长度
)

var (
	ErrOutsideValidity = errors.New("time outside plan validity window")
	ErrNegativeSpeed   = errors.New("plan speed becomes negative")
	ErrPathTooShort    = errors.New("plan travels beyond its path")
)

// Segment 运行计划中的一段匀加速（加速度为0时为匀速）运动
type Segment struct {
	Duration     float64 // 时长（秒）
	Acceleration float64 // 加速度（米/秒²）
}

// SpeedSegment 匀速段
func SpeedSegment(duration float64) Segment {
	return Segment{Duration: duration}
}

// AccelerationSegment 匀加速段
func AccelerationSegment(duration, a float64) Segment {
	return Segment{Duration: duration, Acceleration: a}
}

// OperationalPlan 运行计划
// 功能：给出有效期[StartTime, EndTime]内任意时刻车辆参考点沿路径的行驶距离、速度、加速度与位置，
// 以及行驶距离到时间的反向映射
// 说明：创建后不可变，以指针身份作为位置缓存的键
type OperationalPlan struct {
	path       *geometry.Polyline
	startTime  float64
	startSpeed float64
	segments   []Segment

	segStartTime  []float64 // 各段相对起始时间
	segStartSpeed []float64 // 各段起始速度
	segStartDist  []float64 // 各段起始距离

	totalDuration float64
	totalLength   float64
	endSpeed      float64
	wait          bool
}

// New 创建运行计划
// 功能：由路径、起始时间、起始速度与运动段序列创建运行计划
// 参数：path-参考点路径（从当前参考点位置开始），startTime-起始时间，startSpeed-起始速度，segments-运动段
// 返回：运行计划与错误（速度变负、行驶距离超出路径长度、无运动段时返回错误）
// 算法说明：
// 1. 逐段累计起始时间、速度与距离：d=v0·t+½·a·t²
// 2. 检查每段末速度非负
// 3. 检查总行驶距离不超过路径长度
func New(path *geometry.Polyline, startTime, startSpeed float64, segments []Segment) (*OperationalPlan, error) {
	if len(segments) == 0 {
		return nil, errors.New("plan without segments")
	}
	p := &OperationalPlan{
		path:       path,
		startTime:  startTime,
		startSpeed: startSpeed,
		segments:   segments,
	}
	t, v, d := 0.0, startSpeed, 0.0
	for _, s := range segments {
		if s.Duration <= 0 {
			return nil, fmt.Errorf("plan segment with duration %v", s.Duration)
		}
		p.segStartTime = append(p.segStartTime, t)
		p.segStartSpeed = append(p.segStartSpeed, v)
		p.segStartDist = append(p.segStartDist, d)
		d += v*s.Duration + 0.5*s.Acceleration*s.Duration*s.Duration
		v += s.Acceleration * s.Duration
		t += s.Duration
		if v < -lengthEpsilon {
			return nil, fmt.Errorf("speed %v at %v: %w", v, startTime+t, ErrNegativeSpeed)
		}
	}
	p.totalDuration = t
	p.totalLength = d
	p.endSpeed = math.Max(0, v)
	if d > path.Length()+lengthEpsilon {
		return nil, fmt.Errorf("travels %v on path of length %v: %w", d, path.Length(), ErrPathTooShort)
	}
	return p, nil
}

// NewConstantSpeed 匀速运行计划
func NewConstantSpeed(path *geometry.Polyline, startTime, speed, duration float64) (*OperationalPlan, error) {
	return New(path, startTime, speed, []Segment{SpeedSegment(duration)})
}

// NewAcceleration 匀加速运行计划
func NewAcceleration(path *geometry.Polyline, startTime, startSpeed, a, duration float64) (*OperationalPlan, error) {
	return New(path, startTime, startSpeed, []Segment{AccelerationSegment(duration, a)})
}

// NewWait 原地等待的运行计划
// 功能：车辆在p处静止duration时长，路径为沿朝向的极短占位线，总行驶距离为0
func NewWait(p geometry.DirectedPoint, startTime, duration float64) *OperationalPlan {
	end := geometry.DirectedPoint{Point: p.Point, Dir: p.Dir}
	end.Point[0] += waitPathLength * math.Cos(p.Dir)
	end.Point[1] += waitPathLength * math.Sin(p.Dir)
	plan, err := New(geometry.MustPolyline(p.Point, end.Point), startTime, 0, []Segment{SpeedSegment(duration)})
	if err != nil {
		panic(err)
	}
	plan.wait = true
	return plan
}

// 获取参考点路径
func (p *OperationalPlan) Path() *geometry.Polyline {
	return p.path
}

func (p *OperationalPlan) StartTime() float64 {
	return p.startTime
}

func (p *OperationalPlan) EndTime() float64 {
	return p.startTime + p.totalDuration
}

func (p *OperationalPlan) TotalDuration() float64 {
	return p.totalDuration
}

// 获取计划总行驶距离
func (p *OperationalPlan) TotalLength() float64 {
	return p.totalLength
}

func (p *OperationalPlan) StartSpeed() float64 {
	return p.startSpeed
}

func (p *OperationalPlan) EndSpeed() float64 {
	return p.endSpeed
}

// 是否为等待计划
func (p *OperationalPlan) IsWait() bool {
	return p.wait
}

func (p *OperationalPlan) String() string {
	return fmt.Sprintf("OperationalPlan{t=[%.3f, %.3f], v0=%.3f, length=%.3f}",
		p.startTime, p.EndTime(), p.startSpeed, p.totalLength)
}

// segmentAt 查找时刻t所在的运动段
// 返回：段索引、段内经过时间与错误（t超出有效期时返回ErrOutsideValidity）
func (p *OperationalPlan) segmentAt(t float64) (int, float64, error) {
	rel := t - p.startTime
	if rel < -timeEpsilon || rel > p.totalDuration+timeEpsilon {
		return 0, 0, fmt.Errorf("t=%v, plan [%v, %v]: %w", t, p.startTime, p.EndTime(), ErrOutsideValidity)
	}
	rel = math.Max(0, math.Min(p.totalDuration, rel))
	i := len(p.segments) - 1
	for i > 0 && p.segStartTime[i] > rel {
		i--
	}
	return i, rel - p.segStartTime[i], nil
}

// TraveledDistance 获取从计划开始到时刻t的行驶距离
func (p *OperationalPlan) TraveledDistance(t float64) (float64, error) {
	i, dt, err := p.segmentAt(t)
	if err != nil {
		return 0, err
	}
	return p.segStartDist[i] + p.segStartSpeed[i]*dt + 0.5*p.segments[i].Acceleration*dt*dt, nil
}

// Speed 获取时刻t的速度
func (p *OperationalPlan) Speed(t float64) (float64, error) {
	i, dt, err := p.segmentAt(t)
	if err != nil {
		return 0, err
	}
	return math.Max(0, p.segStartSpeed[i]+p.segments[i].Acceleration*dt), nil
}

// Acceleration 获取时刻t的加速度
func (p *OperationalPlan) Acceleration(t float64) (float64, error) {
	i, _, err := p.segmentAt(t)
	if err != nil {
		return 0, err
	}
	return p.segments[i].Acceleration, nil
}

// TimeAtDistance 获取行驶距离达到d的时刻
// 功能：行驶距离到时间的反向映射
// 参数：d-从计划开始起的行驶距离
// 返回：绝对时刻；d为负、超出总行驶距离或永远无法到达时返回NaN
// 算法说明：
// 1. 逐段查找d所在的运动段
// 2. 段内解d'=v0·t+½·a·t²，取最小非负根，使用数值稳定形式t=2d'/(v0+√(v0²+2a·d'))
func (p *OperationalPlan) TimeAtDistance(d float64) float64 {
	if d < 0 || d > p.totalLength+lengthEpsilon {
		return math.NaN()
	}
	for i, s := range p.segments {
		segDist := p.segStartSpeed[i]*s.Duration + 0.5*s.Acceleration*s.Duration*s.Duration
		if d > p.segStartDist[i]+segDist+lengthEpsilon && i < len(p.segments)-1 {
			continue
		}
		rem := d - p.segStartDist[i]
		if rem <= 0 {
			return p.startTime + p.segStartTime[i]
		}
		v0 := p.segStartSpeed[i]
		disc := v0*v0 + 2*s.Acceleration*rem
		if disc < 0 {
			disc = 0
		}
		denom := v0 + math.Sqrt(disc)
		if denom <= 0 {
			return math.NaN()
		}
		dt := math.Min(2*rem/denom, s.Duration)
		return p.startTime + p.segStartTime[i] + dt
	}
	return math.NaN()
}

// Location 获取时刻t参考点的位置与朝向
func (p *OperationalPlan) Location(t float64) (geometry.DirectedPoint, error) {
	d, err := p.TraveledDistance(t)
	if err != nil {
		return geometry.DirectedPoint{}, err
	}
	return p.path.LocationAt(d), nil
}

// LocationOf 获取时刻t车辆上相对位置rel的位置与朝向
// 说明：纵向偏移沿路径量取（超出路径首末端时沿延长线），横向偏移沿该点的左法向量取
func (p *OperationalPlan) LocationOf(t float64, rel entity.RelativePosition) (geometry.DirectedPoint, error) {
	d, err := p.TraveledDistance(t)
	if err != nil {
		return geometry.DirectedPoint{}, err
	}
	loc := p.path.LocationAt(d + rel.Dx)
	if rel.Dy != 0 {
		left := r2.Vec{X: -math.Sin(loc.Dir), Y: math.Cos(loc.Dir)}
		loc.Point[0] += rel.Dy * left.X
		loc.Point[1] += rel.Dy * left.Y
	}
	return loc, nil
}
