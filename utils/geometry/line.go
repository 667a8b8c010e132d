package geometry

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"gonum.org/v1/gonum/spatial/r2"
)

// Line 两点确定的线段（车道边界线、检测器线）
type Line struct {
	A, B orb.Point
}

func (l Line) String() string {
	return fmt.Sprintf("Line[%v -> %v]", l.A, l.B)
}

// 获取线段长度
func (l Line) Length() float64 {
	return planar.Distance(l.A, l.B)
}

// 获取线段中点
func (l Line) Mid() orb.Point {
	return orb.Point{(l.A[0] + l.B[0]) / 2, (l.A[1] + l.B[1]) / 2}
}

// PerpendicularLine 构造经过p且垂直于其朝向的线段
// 参数：p-带朝向的点，halfWidth-线段半长
// 返回：从p左侧到右侧的线段
func PerpendicularLine(p DirectedPoint, halfWidth float64) Line {
	left := r2.Vec{X: -math.Sin(p.Dir), Y: math.Cos(p.Dir)}
	c := vec(p.Point)
	return Line{
		A: point(r2.Add(c, r2.Scale(halfWidth, left))),
		B: point(r2.Sub(c, r2.Scale(halfWidth, left))),
	}
}

// SegmentIntersection 计算线段p1p2与线段q1q2的交点
// 功能：求两条线段的精确交点
// 返回：交点与是否相交（平行或不相交时返回false）
// 算法说明：
// 1. r=p2-p1，s=q2-q1，denom=r×s，平行时无交点
// 2. t=(q1-p1)×s/denom，u=(q1-p1)×r/denom
// 3. t与u均在[0,1]内时相交，交点为p1+t·r
func SegmentIntersection(p1, p2, q1, q2 orb.Point) (orb.Point, bool) {
	r := r2.Sub(vec(p2), vec(p1))
	s := r2.Sub(vec(q2), vec(q1))
	denom := r2.Cross(r, s)
	if math.Abs(denom) < 1e-12 {
		return orb.Point{}, false
	}
	qp := r2.Sub(vec(q1), vec(p1))
	t := r2.Cross(qp, s) / denom
	u := r2.Cross(qp, r) / denom
	if t < -epsilon || t > 1+epsilon || u < -epsilon || u > 1+epsilon {
		return orb.Point{}, false
	}
	return point(r2.Add(vec(p1), r2.Scale(t, r))), true
}
