package gtu

import (
	"strings"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/lanesim/entity"
)

// CrossSection 横断面
// 功能：车辆在其路径某一纵向位置上同时占用的1或2条并排车道
// 说明：宽度为2时下标0为左侧、1为右侧；变道过程中某一横断面上可能不存在目标车道，
// 此时对应位置为nil
type CrossSection struct {
	lanes []entity.ILane
}

// NewCrossSection 创建横断面
func NewCrossSection(lanes ...entity.ILane) CrossSection {
	return CrossSection{lanes: append([]entity.ILane(nil), lanes...)}
}

// 获取车道列表副本
func (c CrossSection) Lanes() []entity.ILane {
	return append([]entity.ILane(nil), c.lanes...)
}

// 获取横断面宽度（车道数）
func (c CrossSection) Width() int {
	return len(c.lanes)
}

// Lane 获取第i条车道，越界时返回nil
func (c CrossSection) Lane(i int) entity.ILane {
	if i < 0 || i >= len(c.lanes) {
		return nil
	}
	return c.lanes[i]
}

// laneOr 获取第i条车道，不存在时退而使用横断面中的另一条车道
func (c CrossSection) laneOr(i int) entity.ILane {
	if l := c.Lane(i); l != nil {
		return l
	}
	l, _ := lo.Find(c.lanes, func(l entity.ILane) bool { return l != nil })
	return l
}

// IndexOf 获取车道在横断面中的下标，不存在时返回-1
func (c CrossSection) IndexOf(lane entity.ILane) int {
	return lo.IndexOf(c.lanes, lane)
}

func (c CrossSection) String() string {
	return "[" + strings.Join(lo.Map(c.lanes, func(l entity.ILane, _ int) string {
		if l == nil {
			return "-"
		}
		return l.ID()
	}), ", ") + "]"
}

// locate 在横断面序列中查找车道
// 返回：横断面下标与横向下标，不存在时均为-1
func locate(css []CrossSection, lane entity.ILane) (int, int) {
	for i, cs := range css {
		if j := cs.IndexOf(lane); j >= 0 {
			return i, j
		}
	}
	return -1, -1
}

// allLanes 横断面序列中的所有车道（上游到下游，左到右）
func allLanes(css []CrossSection) []entity.ILane {
	lanes := make([]entity.ILane, 0, len(css)*2)
	for _, cs := range css {
		for _, l := range cs.lanes {
			if l != nil {
				lanes = append(lanes, l)
			}
		}
	}
	return lanes
}
