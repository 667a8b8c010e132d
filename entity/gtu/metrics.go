package gtu

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const instrumentationName = "github.com/tsinghua-fib-lab/lanesim/entity/gtu"

// 异常类型（anomaly计数器的kind属性）
const (
	anomalyPastEvent     = "past_event"     // 预测的越线时间早于当前时间
	anomalyEndpointClamp = "endpoint_clamp" // 位置投影退化为端点钳制
	anomalyForcedEnter   = "forced_enter"   // 车头停在终止线上而立即进入下游横断面
	anomalyForcedLeave   = "forced_leave"   // 无法预测越线时间而立即离开横断面
	anomalyLaneGap       = "lane_gap"       // 变道完成时某横断面上没有目标车道
)

// instruments 车辆模块的诊断计数器，与车辆行为无关
type instruments struct {
	cacheHits   metric.Int64Counter
	cacheMisses metric.Int64Counter
	events      metric.Int64Counter
	anomalies   metric.Int64Counter
}

var meters = newInstruments()

func newInstruments() *instruments {
	m := otel.Meter(instrumentationName)
	counter := func(name, desc string) metric.Int64Counter {
		c, err := m.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			log.Warnf("creating counter %s: %v", name, err)
			return noop.Int64Counter{}
		}
		return c
	}
	return &instruments{
		cacheHits:   counter("gtu.position.cache.hits", "Position queries served from cache"),
		cacheMisses: counter("gtu.position.cache.misses", "Position queries computed from the plan"),
		events:      counter("gtu.events.scheduled", "Bookkeeping events scheduled by kind"),
		anomalies:   counter("gtu.anomalies", "Degraded bookkeeping paths taken by kind"),
	}
}

func (i *instruments) hit() {
	i.cacheHits.Add(context.Background(), 1)
}

func (i *instruments) miss() {
	i.cacheMisses.Add(context.Background(), 1)
}

func (i *instruments) event(kind string) {
	i.events.Add(context.Background(), 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (i *instruments) anomaly(kind string) {
	i.anomalies.Add(context.Background(), 1, metric.WithAttributes(attribute.String("kind", kind)))
}
