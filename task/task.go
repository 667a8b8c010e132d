package task

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/tsinghua-fib-lab/lanesim/clock"
	"github.com/tsinghua-fib-lab/lanesim/entity"
	"github.com/tsinghua-fib-lab/lanesim/entity/gtu"
	"github.com/tsinghua-fib-lab/lanesim/utils/config"
	"github.com/tsinghua-fib-lab/lanesim/utils/input"
	"github.com/tsinghua-fib-lab/lanesim/utils/randengine"
)

var log = logrus.WithField("module", "task")

// Context 仿真任务上下文
// 功能：包含一次仿真运行的所有变量和状态
// 说明：管理时钟、路网、车辆管理器、车辆生成器与轨迹记录器
type Context struct {
	// 运行ID，每次运行唯一
	runID string
	// 配置
	config config.Config

	// 时钟
	clock *clock.Clock
	// 随机数引擎
	rng *randengine.Engine

	// 路网（车道管理器、路径规划器、检测器）
	network *input.Network
	// 车辆管理器
	gtuManager *gtu.Manager
	// 车辆构建器
	builder *input.GTUBuilder

	// 车辆生成器
	generators []*Generator
	// 轨迹记录器
	recorder *Recorder
}

// NewContext 创建新的仿真任务上下文
// 功能：根据配置初始化仿真系统的所有组件
// 参数：c-已校验的配置
// 返回：上下文与错误（路网构建失败时返回错误）
// 算法说明：
// 1. 创建时钟与随机数引擎
// 2. 构建路网（车道、连接、变道规则、检测器、路径规划器）
// 3. 创建车辆通知发布器、车辆管理器，记录器订阅车辆通知
// 4. 按配置创建车辆生成器
func NewContext(c config.Config) (*Context, error) {
	ctx := &Context{
		runID:  uuid.NewString(),
		config: c,
		clock:  clock.New(c.Control),
		rng:    randengine.New(c.Control.Seed),
	}
	network, err := input.Build(c.Network, ctx.clock)
	if err != nil {
		return nil, fmt.Errorf("build network: %w", err)
	}
	ctx.network = network
	publisher := gtu.NewPublisher()
	ctx.gtuManager = gtu.NewManager(ctx.clock, publisher)
	ctx.builder = input.NewGTUBuilder(network, c.Control)
	ctx.recorder = NewRecorder()
	publisher.Subscribe(ctx.recorder.Record)
	for _, gc := range c.Generators {
		g, err := NewGenerator(ctx, gc)
		if err != nil {
			return nil, err
		}
		ctx.generators = append(ctx.generators, g)
	}
	log.Infof("run %s: [%v, %v], %d GTUs, %d generators",
		ctx.runID, c.Control.Start, c.Control.End, len(c.GTUs), len(ctx.generators))
	return ctx, nil
}

func (ctx *Context) Clock() *clock.Clock {
	return ctx.clock
}

func (ctx *Context) LaneManager() entity.ILaneManager {
	return ctx.network.Lanes
}

func (ctx *Context) Router() entity.IRouter {
	return ctx.network.Router
}

func (ctx *Context) RunID() string {
	return ctx.runID
}

func (ctx *Context) Network() *input.Network {
	return ctx.network
}

func (ctx *Context) GTUManager() *gtu.Manager {
	return ctx.gtuManager
}

func (ctx *Context) Recorder() *Recorder {
	return ctx.recorder
}

func (ctx *Context) Generators() []*Generator {
	return ctx.generators
}

// Init 初始化运行
// 功能：重置时钟，创建配置中的车辆，启动车辆生成器与心跳
// 返回：错误（任一配置车辆创建失败时返回错误）
func (ctx *Context) Init() error {
	ctx.clock.Init()
	for _, c := range ctx.config.GTUs {
		if _, err := ctx.builder.Create(ctx.gtuManager, c, ""); err != nil {
			return fmt.Errorf("create GTU %s: %w", c.ID, err)
		}
	}
	for _, g := range ctx.generators {
		g.Start()
	}
	ctx.scheduleHeartbeat(ctx.clock.START + ctx.config.Control.HeartbeatInterval)
	return nil
}

var _ entity.ITaskContext = (*Context)(nil)
