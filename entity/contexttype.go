package entity

import (
	"github.com/tsinghua-fib-lab/lanesim/clock"
)

// 导航模块接口
type IRouter interface {
	// 路段级最短路径
	Route(fromLink, toLink string) (IRoute, error)
}

type ITaskContext interface {
	Clock() *clock.Clock
	LaneManager() ILaneManager
	Router() IRouter
	RunID() string
}
