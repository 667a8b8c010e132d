package lane

import (
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/lanesim/entity"
	"github.com/tsinghua-fib-lab/lanesim/utils/geometry"
)

// Link 路段实体
// 功能：一组并排车道的容器，提供路段起止横断线用于车辆进出路段的事件预测
type Link struct {
	id           string
	line         *geometry.Polyline // 参考线（路段中线）
	lanes        []*Lane            // 从左到右排列的车道
	allowedTypes []string
	startLine    geometry.Line // 起始横断线
	endLine      geometry.Line // 终止横断线
	successors   []*Link
	predecessors []*Link
}

// newLink 创建路段及其车道
// 功能：按参考线横向平移生成各车道中心线，建立车道左右相邻关系，计算起止横断线
// 参数：id-路段ID，line-参考线，laneCount-车道数，laneWidth-车道宽度，allowedTypes-允许车辆类型
// 返回：路段
// 算法说明：
// 1. 第i条车道（0为最左侧）相对参考线的横向偏移为((n-1)/2-i)*width，向左为正
// 2. 相邻车道互为左右物理相邻，默认允许合法变道
// 3. 起止横断线垂直于参考线首末端，半长为路段半宽再加一条车道宽度的余量
func newLink(id string, line *geometry.Polyline, laneCount int, laneWidth float64, allowedTypes []string) *Link {
	k := &Link{
		id:           id,
		line:         line,
		allowedTypes: allowedTypes,
	}
	for i := 0; i < laneCount; i++ {
		offset := (float64(laneCount-1)/2 - float64(i)) * laneWidth
		center := line
		if offset != 0 {
			center = line.Offset(offset)
		}
		k.lanes = append(k.lanes, newLane(k, i, center, laneWidth))
	}
	for i := 1; i < laneCount; i++ {
		k.lanes[i-1].sideLanes[entity.RIGHT] = k.lanes[i]
		k.lanes[i].sideLanes[entity.LEFT] = k.lanes[i-1]
	}
	halfWidth := float64(laneCount)*laneWidth/2 + laneWidth
	k.startLine = geometry.PerpendicularLine(line.LocationAt(0), halfWidth)
	k.endLine = geometry.PerpendicularLine(line.LocationAt(line.Length()), halfWidth)
	return k
}

// 获取路段ID
func (k *Link) ID() string {
	return k.id
}

func (k *Link) String() string {
	return "Link " + k.id
}

// 获取参考线长度
func (k *Link) Length() float64 {
	return k.line.Length()
}

// 获取参考线
func (k *Link) Line() *geometry.Polyline {
	return k.line
}

// 获取从左到右排列的车道
func (k *Link) Lanes() []entity.ILane {
	return lo.Map(k.lanes, func(l *Lane, _ int) entity.ILane { return l })
}

func (k *Link) StartLine() geometry.Line {
	return k.startLine
}

func (k *Link) EndLine() geometry.Line {
	return k.endLine
}

func (k *Link) NextLinks() []entity.ILink {
	return lo.Map(k.successors, func(l *Link, _ int) entity.ILink { return l })
}

func (k *Link) PrevLinks() []entity.ILink {
	return lo.Map(k.predecessors, func(l *Link, _ int) entity.ILink { return l })
}

// connect 建立到下游路段的连接（幂等）
func (k *Link) connect(to *Link) {
	if !lo.Contains(k.successors, to) {
		k.successors = append(k.successors, to)
		to.predecessors = append(to.predecessors, k)
	}
}
