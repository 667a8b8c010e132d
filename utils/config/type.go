package config

// Control 模拟器控制配置
// 功能：定义仿真时间范围与核心参数
type Control struct {
	Start             float64 `yaml:"start"`                        // 开始时间（秒）
	End               float64 `yaml:"end"`                          // 结束时间（秒）
	HeartbeatInterval float64 `yaml:"heartbeat_interval,omitempty"` // 心跳日志间隔（秒）
	History           float64 `yaml:"history,omitempty"`            // 车辆横断面历史保留时长（秒）
	EventMargin       float64 `yaml:"event_margin,omitempty"`       // 进出事件预测的安全余量（米）
	Seed              uint64  `yaml:"seed,omitempty"`               // 随机数种子
}

// Link 路段配置
// 功能：以参考线与车道数描述一个路段，车道中心线由参考线横向平移得到
type Link struct {
	ID           string      `yaml:"id"`
	Line         [][]float64 `yaml:"line"`                    // 参考线点列[[x,y],...]
	Lanes        int         `yaml:"lanes"`                   // 车道数，0号为最左侧车道
	LaneWidth    float64     `yaml:"lane_width,omitempty"`    // 车道宽度（米）
	AllowedTypes []string    `yaml:"allowed_types,omitempty"` // 允许通行的车辆类型，为空表示全部允许
}

// Connection 路段连接
// 功能：给出路段级连接（按车道序号配对）或车道级连接
type Connection struct {
	From     string `yaml:"from,omitempty"`      // 上游路段
	To       string `yaml:"to,omitempty"`        // 下游路段
	FromLane string `yaml:"from_lane,omitempty"` // 上游车道（车道级连接）
	ToLane   string `yaml:"to_lane,omitempty"`   // 下游车道（车道级连接）
}

// LaneChangeRule 变道规则
// 功能：禁止或允许从某车道向某侧合法变道（物理相邻关系不变）
type LaneChangeRule struct {
	Lane    string `yaml:"lane"`
	Side    string `yaml:"side"` // left/right
	Allowed bool   `yaml:"allowed"`
}

// Sensor 检测器配置
type Sensor struct {
	ID       string  `yaml:"id"`
	Lane     string  `yaml:"lane"`
	Position float64 `yaml:"position"`          // 在车道上的位置（米）
	Kind     string  `yaml:"kind"`              // sink/detector
	Trigger  string  `yaml:"trigger,omitempty"` // 触发的车辆相对位置：front/rear/reference/center
}

// Network 路网配置
type Network struct {
	Links       []Link           `yaml:"links"`
	Connections []Connection     `yaml:"connections,omitempty"`
	LaneChange  []LaneChangeRule `yaml:"lane_change,omitempty"`
	Sensors     []Sensor         `yaml:"sensors,omitempty"`
}

// LaneChange 脚本化变道
type LaneChange struct {
	At        float64 `yaml:"at"`        // 开始时间（秒）
	Direction string  `yaml:"direction"` // left/right
	Duration  float64 `yaml:"duration"`  // 横向移动时长（秒）
}

// GTU 车辆配置
type GTU struct {
	ID              string       `yaml:"id,omitempty"`
	Type            string       `yaml:"type,omitempty"`
	Length          float64      `yaml:"length,omitempty"`
	Width           float64      `yaml:"width,omitempty"`
	Front           float64      `yaml:"front,omitempty"` // 车头相对参考点的纵向偏移
	Lane            string       `yaml:"lane"`
	Position        float64      `yaml:"position"` // 参考点在车道上的初始位置
	Speed           float64      `yaml:"speed,omitempty"`
	DesiredSpeed    float64      `yaml:"desired_speed,omitempty"`
	MaxAcceleration float64      `yaml:"max_acceleration,omitempty"`
	PlanDuration    float64      `yaml:"plan_duration,omitempty"` // 每个运行计划的时长（秒）
	Bookkeeping     string       `yaml:"bookkeeping,omitempty"`   // instant/start/edge
	Destination     string       `yaml:"destination,omitempty"`   // 目的路段，为空表示不使用路径
	LaneChanges     []LaneChange `yaml:"lane_changes,omitempty"`
}

// Generator 车辆生成器（泊松到达）
type Generator struct {
	ID     string  `yaml:"id"`
	Lane   string  `yaml:"lane"`
	Rate   float64 `yaml:"rate"`              // 平均到达率（辆/秒）
	Start  float64 `yaml:"start,omitempty"`   // 开始时间
	End    float64 `yaml:"end,omitempty"`     // 结束时间，0表示持续到仿真结束
	MinGap float64 `yaml:"min_gap,omitempty"` // 入口处与前车的最小间距（米）
	GTU    GTU     `yaml:"gtu"`               // 车辆模板，Lane与Position由生成器覆盖
}

// Config YAML配置文件的根结构
type Config struct {
	Control    Control     `yaml:"control"`
	Network    Network     `yaml:"network"`
	GTUs       []GTU       `yaml:"gtus,omitempty"`
	Generators []Generator `yaml:"generators,omitempty"`
}
