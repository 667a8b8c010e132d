package entity

// entity/lane/manager.go的依赖倒置
type ILaneManager interface {
	Get(id string) ILane                // 按ID获取车道，不存在时panic
	GetOrError(id string) (ILane, error) // 按ID获取车道
	GetLink(id string) (ILink, error)    // 按ID获取路段
	Lanes() []ILane
	Links() []ILink
}
