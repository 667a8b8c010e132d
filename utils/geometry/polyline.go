// 折线几何工具，基于orb的点与折线类型以及gonum的平面向量运算
package geometry

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"gonum.org/v1/gonum/spatial/r2"
)

const (
	epsilon = 1e-9 // 判定重合点与投影越界的数值容差
)

// Fallback 投影越界时的处理策略
type Fallback int

const (
	FallbackNaN      Fallback = iota // 越界时返回NaN
	FallbackEndpoint                 // 越界时钳制到最近端点（0或1）
)

func (f Fallback) String() string {
	switch f {
	case FallbackNaN:
		return "NaN"
	case FallbackEndpoint:
		return "ENDPOINT"
	default:
		return fmt.Sprintf("Fallback(%d)", int(f))
	}
}

var ErrDegenerate = errors.New("polyline needs at least two distinct points")

// DirectedPoint 带朝向的点
type DirectedPoint struct {
	orb.Point
	Dir float64 // 朝向（atan2，弧度）
}

// Polyline 折线
// 功能：保存折线点列与累计长度，提供按距离取点、投影、截取、平移等操作
// 说明：创建后不可变，可在多个车辆之间并发读取
type Polyline struct {
	points  orb.LineString
	lengths []float64 // 折线点对应的累计长度，lengths[0]=0
}

// NewPolyline 创建折线
// 功能：根据点列创建折线，去除连续重复点并计算累计长度
// 参数：points-折线点列
// 返回：折线与错误（去重后不足两点时返回ErrDegenerate）
func NewPolyline(points ...orb.Point) (*Polyline, error) {
	ls := make(orb.LineString, 0, len(points))
	for _, p := range points {
		if len(ls) > 0 && planar.Distance(ls[len(ls)-1], p) < epsilon {
			continue
		}
		ls = append(ls, p)
	}
	if len(ls) < 2 {
		return nil, ErrDegenerate
	}
	lengths := make([]float64, len(ls))
	for i := 1; i < len(ls); i++ {
		lengths[i] = lengths[i-1] + planar.Distance(ls[i-1], ls[i])
	}
	return &Polyline{points: ls, lengths: lengths}, nil
}

// MustPolyline 创建折线，失败时panic
func MustPolyline(points ...orb.Point) *Polyline {
	l, err := NewPolyline(points...)
	if err != nil {
		panic(err)
	}
	return l
}

// 获取折线长度
func (l *Polyline) Length() float64 {
	return l.lengths[len(l.lengths)-1]
}

// 获取折线点数
func (l *Polyline) Size() int {
	return len(l.points)
}

// 获取折线点列的副本
func (l *Polyline) Points() []orb.Point {
	return append([]orb.Point(nil), l.points...)
}

// 获取orb折线类型
func (l *Polyline) LineString() orb.LineString {
	return l.points.Clone()
}

func (l *Polyline) First() orb.Point {
	return l.points[0]
}

func (l *Polyline) Last() orb.Point {
	return l.points[len(l.points)-1]
}

func (l *Polyline) String() string {
	return fmt.Sprintf("Polyline%v", l.points)
}

func vec(p orb.Point) r2.Vec {
	return r2.Vec{X: p[0], Y: p[1]}
}

func point(v r2.Vec) orb.Point {
	return orb.Point{v.X, v.Y}
}

func heading(v r2.Vec) float64 {
	return math.Atan2(v.Y, v.X)
}

// segment 返回第i段的起点与单位方向
func (l *Polyline) segment(i int) (r2.Vec, r2.Vec) {
	a, b := vec(l.points[i]), vec(l.points[i+1])
	return a, r2.Unit(r2.Sub(b, a))
}

// LocationAt 获取折线上距离起点d处的位置与朝向
// 功能：沿折线按弧长取点，d超出[0, Length]时沿首段/末段方向延长
// 参数：d-距折线起点的弧长，可以为负或超过折线长度
// 返回：带朝向的点
// 算法说明：
// 1. d<=0：沿第一段方向从起点向后延长
// 2. d>=Length：沿最后一段方向从终点向前延长
// 3. 否则二分查找d所在折线段并线性插值
func (l *Polyline) LocationAt(d float64) DirectedPoint {
	n := len(l.points)
	if d <= 0 {
		a, dir := l.segment(0)
		return DirectedPoint{Point: point(r2.Add(a, r2.Scale(d, dir))), Dir: heading(dir)}
	}
	if d >= l.Length() {
		_, dir := l.segment(n - 2)
		end := vec(l.points[n-1])
		return DirectedPoint{Point: point(r2.Add(end, r2.Scale(d-l.Length(), dir))), Dir: heading(dir)}
	}
	i := sort.SearchFloat64s(l.lengths, d)
	a, dir := l.segment(i - 1)
	return DirectedPoint{Point: point(r2.Add(a, r2.Scale(d-l.lengths[i-1], dir))), Dir: heading(dir)}
}

// LocationAtFraction 获取折线上比例位置f处的点
func (l *Polyline) LocationAtFraction(f float64) DirectedPoint {
	return l.LocationAt(f * l.Length())
}

// project 计算点在折线上的最近垂足
// 返回：垂足对应弧长、垂足所在段的单位方向、垂足坐标、是否位于折线上游或下游之外
func (l *Polyline) project(p orb.Point) (s float64, dir r2.Vec, foot r2.Vec, outside bool) {
	q := vec(p)
	best := math.Inf(1)
	for i := 0; i+1 < len(l.points); i++ {
		a, d := l.segment(i)
		segLen := l.lengths[i+1] - l.lengths[i]
		t := r2.Dot(r2.Sub(q, a), d)
		out := (i == 0 && t < -epsilon) || (i == len(l.points)-2 && t > segLen+epsilon)
		tc := math.Max(0, math.Min(segLen, t))
		f := r2.Add(a, r2.Scale(tc, d))
		dist := r2.Norm(r2.Sub(q, f))
		if out {
			// 越界端点的距离按延长线上的垂距比较，使正侧方的点不会被判为越界
			dist = math.Abs(r2.Cross(d, r2.Sub(q, a)))
		}
		if dist < best-epsilon {
			best = dist
			s, dir, foot, outside = l.lengths[i]+tc, d, f, out
		}
	}
	return
}

// ProjectFractional 将点投影到折线上，返回比例位置
// 功能：求点在折线上的正交投影位置，并以折线长度归一化
// 参数：p-世界坐标点，fallback-投影越界时的处理策略
// 返回：[0,1]内的比例位置；越界时按策略返回NaN或0/1
// 说明：点位于折线起点之前或终点之后（沿首末段方向）视为越界
func (l *Polyline) ProjectFractional(p orb.Point, fallback Fallback) float64 {
	s, _, _, outside := l.project(p)
	if outside {
		if fallback == FallbackNaN {
			return math.NaN()
		}
		if s <= 0 {
			return 0
		}
		return 1
	}
	return s / l.Length()
}

// SignedOffset 点到折线的带符号横向距离，左侧为正
func (l *Polyline) SignedOffset(p orb.Point) float64 {
	_, dir, foot, _ := l.project(p)
	return r2.Cross(dir, r2.Sub(vec(p), foot))
}

// Extract 截取折线上[from, to]区间
// 功能：返回弧长区间对应的子折线，区间端点可超出折线范围（按延长线取点）
// 参数：from-起点弧长，to-终点弧长（须大于from）
// 返回：子折线与错误
func (l *Polyline) Extract(from, to float64) (*Polyline, error) {
	if to <= from {
		return nil, fmt.Errorf("extract [%v, %v] from polyline of length %v: empty range", from, to, l.Length())
	}
	pts := []orb.Point{l.LocationAt(from).Point}
	for i, s := range l.lengths {
		if s > from && s < to {
			pts = append(pts, l.points[i])
		}
	}
	pts = append(pts, l.LocationAt(to).Point)
	return NewPolyline(pts...)
}

// Offset 横向平移折线
// 功能：生成与原折线平行、横向偏移d的折线（左侧为正）
// 参数：d-偏移距离
// 返回：平移后的折线
// 算法说明：
// 1. 端点沿所在段的左法向平移
// 2. 中间点沿相邻两段法向的角平分线方向平移，距离按夹角放大（斜接）
func (l *Polyline) Offset(d float64) *Polyline {
	n := len(l.points)
	normals := make([]r2.Vec, n-1)
	for i := range normals {
		_, dir := l.segment(i)
		normals[i] = r2.Vec{X: -dir.Y, Y: dir.X}
	}
	pts := make([]orb.Point, n)
	for i := range l.points {
		var shift r2.Vec
		switch i {
		case 0:
			shift = r2.Scale(d, normals[0])
		case n - 1:
			shift = r2.Scale(d, normals[n-2])
		default:
			m := r2.Unit(r2.Add(normals[i-1], normals[i]))
			shift = r2.Scale(d/r2.Dot(m, normals[i]), m)
		}
		pts[i] = point(r2.Add(vec(l.points[i]), shift))
	}
	return MustPolyline(pts...)
}

// Concatenate 首尾相接多条折线
func Concatenate(lines ...*Polyline) (*Polyline, error) {
	pts := make([]orb.Point, 0)
	for _, l := range lines {
		pts = append(pts, l.points...)
	}
	return NewPolyline(pts...)
}
