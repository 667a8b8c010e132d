package lane

import (
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/tsinghua-fib-lab/lanesim/entity"
	"github.com/tsinghua-fib-lab/lanesim/utils/container"
)

var log = logrus.WithField("module", "lane")

type gtuNode = container.Node[entity.IGTU]

// gtuList 车道上的车辆登记表
// 功能：按注册位置有序保存车道上的车辆，支持并发读取
// 说明：注册与注销立即生效（车辆的横断面登记必须与车道登记一一对应），
// 写操作持有写锁，其他车辆的感知查询持有读锁
type gtuList struct {
	mu    sync.RWMutex
	list  *container.SortedList[entity.IGTU]
	nodes map[entity.IGTU]*gtuNode
}

// newGTUList 创建车辆登记表
// 参数：id-列表标识符，用于调试和日志
func newGTUList(id string) gtuList {
	return gtuList{
		list:  &container.SortedList[entity.IGTU]{ID: id},
		nodes: make(map[entity.IGTU]*gtuNode),
	}
}

// add 在位置s注册车辆，已注册时返回false
func (l *gtuList) add(g entity.IGTU, s float64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.nodes[g]; ok {
		return false
	}
	node := &gtuNode{S: s, Value: g}
	l.list.InsertSorted(node)
	l.nodes[g] = node
	return true
}

// remove 注销车辆，未注册时返回false
func (l *gtuList) remove(g entity.IGTU) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	node, ok := l.nodes[g]
	if !ok {
		return false
	}
	l.list.Remove(node)
	delete(l.nodes, g)
	return true
}

func (l *gtuList) has(g entity.IGTU) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.nodes[g]
	return ok
}

func (l *gtuList) len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.list.Len()
}

// values 按位置顺序返回车辆快照
func (l *gtuList) values() []entity.IGTU {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.list.Values()
}

// refresh 刷新车辆位置并重新排序
// 功能：用key给出的最新位置更新节点键值，移除逆序节点后重新归并
// 参数：key-位置计算函数，返回false时保留原键值
// 说明：key在读锁外计算，避免与车辆自身的锁形成环
func (l *gtuList) refresh(key func(g entity.IGTU) (float64, bool)) {
	gtus := l.values()
	keys := make(map[entity.IGTU]float64, len(gtus))
	for _, g := range gtus {
		if s, ok := key(g); ok {
			keys[g] = s
		}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for g, s := range keys {
		if node, ok := l.nodes[g]; ok {
			node.S = s
		}
	}
	l.list.Merge(l.list.PopUnsorted())
}
