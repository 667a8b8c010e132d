// 路段级路径规划：在路段有向图上求最短路径，为车辆在分叉处选择下游车道提供依据
package route

import (
	"fmt"
	"math"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"github.com/tsinghua-fib-lab/lanesim/entity"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
)

var log = logrus.WithField("module", "route")

// Route 路段序列
type Route struct {
	links []string
	next  map[string]string
}

// NewRoute 由路段序列创建路径
func NewRoute(links []string) *Route {
	r := &Route{links: links, next: make(map[string]string, len(links))}
	for i := 0; i+1 < len(links); i++ {
		r.next[links[i]] = links[i+1]
	}
	return r
}

// 获取路段序列
func (r *Route) Links() []string {
	return r.links
}

// 获取目的路段
func (r *Route) Destination() string {
	if len(r.links) == 0 {
		return ""
	}
	return r.links[len(r.links)-1]
}

// NextLink 获取路径上link的下一个路段
// 返回：下一个路段与是否存在（link不在路径上或已是终点时返回false）
func (r *Route) NextLink(link string) (string, bool) {
	next, ok := r.next[link]
	return next, ok
}

func (r *Route) String() string {
	return fmt.Sprintf("Route%v", r.links)
}

// Planner 路段图最短路规划器
// 功能：以路段为节点、路段连接为边（权重为下游路段长度）构建有向图，使用Dijkstra求最短路径
type Planner struct {
	graph *simple.WeightedDirectedGraph
	ids   map[string]int64
	names map[int64]string
}

// NewPlanner 根据路网创建规划器
func NewPlanner(m entity.ILaneManager) *Planner {
	p := &Planner{
		graph: simple.NewWeightedDirectedGraph(0, math.Inf(1)),
		ids:   make(map[string]int64),
		names: make(map[int64]string),
	}
	links := m.Links()
	for i, k := range links {
		id := int64(i)
		p.ids[k.ID()] = id
		p.names[id] = k.ID()
		p.graph.AddNode(simple.Node(id))
	}
	for _, k := range links {
		for _, next := range k.NextLinks() {
			if next.ID() == k.ID() {
				continue
			}
			p.graph.SetWeightedEdge(p.graph.NewWeightedEdge(
				simple.Node(p.ids[k.ID()]),
				simple.Node(p.ids[next.ID()]),
				next.Length(),
			))
		}
	}
	return p
}

// Route 规划从路段from到路段to的最短路径
// 返回：路径与错误（路段不存在或不可达时返回错误）
func (p *Planner) Route(from, to string) (entity.IRoute, error) {
	u, ok := p.ids[from]
	if !ok {
		return nil, fmt.Errorf("route: no link %s", from)
	}
	v, ok := p.ids[to]
	if !ok {
		return nil, fmt.Errorf("route: no link %s", to)
	}
	shortest := path.DijkstraFrom(simple.Node(u), p.graph)
	nodes, weight := shortest.To(v)
	if len(nodes) == 0 {
		return nil, fmt.Errorf("route: %s is unreachable from %s", to, from)
	}
	links := lo.Map(nodes, func(n graph.Node, _ int) string {
		return p.names[n.ID()]
	})
	log.Debugf("route %s -> %s: %v (%.1f)", from, to, links, weight)
	return NewRoute(links), nil
}
