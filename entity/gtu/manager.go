package gtu

import (
	"fmt"
	"sort"
	"sync"

	"github.com/tsinghua-fib-lab/lanesim/entity"
	"github.com/tsinghua-fib-lab/lanesim/utils/container"
)

// Runtime 已销毁车辆的累计统计
type Runtime struct {
	Destroyed      int     // 已销毁（离开路网）的车辆数
	TravelDistance float64 // 已销毁车辆的总行驶距离
}

// Manager GTU管理器
// 功能：管理所有车辆实体，提供创建、查找、销毁登记与统计功能
// 说明：车辆销毁时自动从管理器中移除；存活车辆数组在Prepare时统一更新
type Manager struct {
	sched     entity.IScheduler
	publisher *Publisher

	mu   sync.Mutex
	data map[string]*GTU

	// 存活车辆，Prepare时统一增删
	gtus *container.Roster[*GTU]

	runtime Runtime
}

// NewManager 创建GTU管理器
// 参数：sched-事件调度器，publisher-车辆通知发布器
func NewManager(sched entity.IScheduler, publisher *Publisher) *Manager {
	return &Manager{
		sched:     sched,
		publisher: publisher,
		data:      make(map[string]*GTU),
		gtus:      container.NewRoster[*GTU](),
	}
}

// 获取车辆通知发布器
func (m *Manager) Publisher() *Publisher {
	return m.publisher
}

// Create 创建车辆并放置到路网上
// 功能：按参数创建车辆，加入管理器，并以初始位置和速度初始化
// 参数：params-车辆参数，tactical-战术层，route-路径，positions-参考点初始位置，speed-初始速度
// 返回：车辆与错误（ID重复或初始化失败时返回错误，此时车辆不加入管理器）
func (m *Manager) Create(params Params, tactical ITacticalPlanner, route entity.IRoute, positions []entity.LanePosition, speed float64) (*GTU, error) {
	m.mu.Lock()
	if _, ok := m.data[params.ID]; ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("GTU ID %s already exists", params.ID)
	}
	m.mu.Unlock()

	g := New(params, m.sched, tactical, route, m.publisher)
	g.SetOnDestroy(m.onDestroy)
	if err := g.Init(positions, speed); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[g.id] = g
	m.gtus.Join(g)
	return g, nil
}

// onDestroy 车辆销毁回调
func (m *Manager) onDestroy(g *GTU) {
	odometer := g.Odometer()
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[g.id]; !ok {
		return
	}
	delete(m.data, g.id)
	m.gtus.Leave(g)
	m.runtime.Destroyed++
	m.runtime.TravelDistance += odometer
}

// Prepare 更新存活车辆数组
func (m *Manager) Prepare() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gtus.Commit()
}

// Get 根据ID获取车辆，不存在时panic
func (m *Manager) Get(id string) *GTU {
	if g, err := m.GetOrError(id); err != nil {
		log.Panic(err)
		return nil
	} else {
		return g
	}
}

// GetOrError 根据ID获取存活车辆
func (m *Manager) GetOrError(id string) (*GTU, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g, ok := m.data[id]; !ok {
		return nil, fmt.Errorf("no id %s in GTU data", id)
	} else {
		return g, nil
	}
}

// Len 存活车辆数
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

// GTUs 上次Prepare时的存活车辆，按ID排序
func (m *Manager) GTUs() []*GTU {
	m.mu.Lock()
	defer m.mu.Unlock()
	gtus := append([]*GTU(nil), m.gtus.Members()...)
	sort.Slice(gtus, func(i, j int) bool { return gtus[i].id < gtus[j].id })
	return gtus
}

// Runtime 已销毁车辆的累计统计
func (m *Manager) Runtime() Runtime {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runtime
}
