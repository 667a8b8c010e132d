// 随机数引擎，包装golang.org/x/exp/rand，提供仿真所需的分布
package randengine

import (
	"flag"
	"log"

	"golang.org/x/exp/rand"
)

var (
	seedOffset = flag.Uint64("rand.seed_offset", 0, "seed offset") // 在不修改配置的情况下改变随机序列
)

// Engine 随机数引擎（非线程安全，由仿真主循环独占）
// 说明：嵌入的*rand.Rand同时作为io.Reader，用于生成可复现的车辆ID
type Engine struct {
	*rand.Rand
}

// New 以seed（加上种子偏移量）创建随机数引擎
func New(seed uint64) *Engine {
	return &Engine{Rand: rand.New(rand.NewSource(seed + *seedOffset))}
}

// Headway 到达率为rate（次/秒）的泊松过程的车头时距，rate必须为正
func (e *Engine) Headway(rate float64) float64 {
	if rate <= 0 {
		log.Panicf("randengine: headway rate %v must be positive", rate)
	}
	return e.ExpFloat64() / rate
}
