package task

import (
	"sync"

	"github.com/paulmach/orb"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/lanesim/entity/gtu"
)

// Sample 轨迹采样点
type Sample struct {
	T        float64
	Location orb.Point
	Speed    float64
	LaneID   string
	Position float64
}

// Trajectory 单车轨迹
type Trajectory struct {
	GTU         string
	Samples     []Sample
	LaneChanges []gtu.LaneChangeNotification
	Destroyed   bool
	Odometer    float64 // 销毁时的行驶距离
}

// Recorder 轨迹记录器
// 功能：订阅车辆通知，按车辆记录运行周期开始时的状态与变道
type Recorder struct {
	mu           sync.RWMutex
	trajectories map[string]*Trajectory
	counts       map[string]int // 按通知类型计数
}

func NewRecorder() *Recorder {
	return &Recorder{
		trajectories: make(map[string]*Trajectory),
		counts:       make(map[string]int),
	}
}

func (r *Recorder) trajectory(id string) *Trajectory {
	t, ok := r.trajectories[id]
	if !ok {
		t = &Trajectory{GTU: id}
		r.trajectories[id] = t
	}
	return t
}

// Record 处理一条车辆通知
func (r *Recorder) Record(n gtu.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := r.trajectory(n.GTUID())
	switch n := n.(type) {
	case gtu.InitNotification:
		r.counts["init"]++
		t.Samples = append(t.Samples, Sample{T: n.T, Location: n.Location, LaneID: n.LaneID, Position: n.Position})
		log.Debugf("GTU %s init on %s@%.3f at %v", n.ID, n.LaneID, n.Position, n.T)
	case gtu.MoveNotification:
		r.counts["move"]++
		t.Samples = append(t.Samples, Sample{T: n.T, Location: n.Location, Speed: n.Speed, LaneID: n.LaneID, Position: n.Position})
	case gtu.LaneChangeNotification:
		r.counts["lane_change"]++
		t.LaneChanges = append(t.LaneChanges, n)
		log.Debugf("GTU %s changed %v from %s@%.3f at %v", n.ID, n.Direction, n.FromLaneID, n.FromPosition, n.T)
	case gtu.DestroyNotification:
		r.counts["destroy"]++
		t.Destroyed = true
		t.Odometer = n.Odometer
		log.Debugf("GTU %s destroyed on %s at %v after %.3f m", n.ID, n.LaneID, n.T, n.Odometer)
	}
}

// Trajectory 获取车辆轨迹副本
func (r *Recorder) Trajectory(id string) (Trajectory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.trajectories[id]
	if !ok {
		return Trajectory{}, false
	}
	c := *t
	c.Samples = append([]Sample(nil), t.Samples...)
	c.LaneChanges = append([]gtu.LaneChangeNotification(nil), t.LaneChanges...)
	return c, true
}

// GTUs 记录过的车辆ID
func (r *Recorder) GTUs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Keys(r.trajectories)
}

// Count 某类通知（init/move/lane_change/destroy）的数量
func (r *Recorder) Count(kind string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.counts[kind]
}

// LanesVisited 车辆各采样点所在车道（去除相邻重复）
func (r *Recorder) LanesVisited(id string) []string {
	t, ok := r.Trajectory(id)
	if !ok {
		return nil
	}
	var lanes []string
	for _, s := range t.Samples {
		if len(lanes) == 0 || lanes[len(lanes)-1] != s.LaneID {
			lanes = append(lanes, s.LaneID)
		}
	}
	return lanes
}
