// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector 对话调度指标收集器.
type Collector struct {
	sessionsStarted  prometheus.Counter
	sessionsFinished *prometheus.CounterVec
	turnsTotal       *prometheus.CounterVec
	turnDuration     *prometheus.HistogramVec
	tokensTotal      *prometheus.CounterVec
	costTotal        prometheus.Counter
	compressions     prometheus.Counter
}

// NewCollector 创建指标收集器, 注册到指定的 registerer.
// registerer 为 nil 时使用 prometheus 默认注册表.
func NewCollector(namespace string, registerer prometheus.Registerer) *Collector {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)

	return &Collector{
		sessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Total number of sessions started",
		}),
		sessionsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_finished_total",
			Help:      "Total number of sessions reaching a terminal status",
		}, []string{"status"}),
		turnsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Total number of participant turns by outcome",
		}, []string{"provider", "outcome"}),
		turnDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Turn duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"provider"}),
		tokensTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_total",
			Help:      "Total number of tokens consumed",
		}, []string{"direction"}),
		costTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cost_total",
			Help:      "Total generation cost in USD",
		}),
		compressions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcript_compressions_total",
			Help:      "Total number of transcript compression passes",
		}),
	}
}

// SessionStarted 记录一次会话启动.
func (c *Collector) SessionStarted() {
	c.sessionsStarted.Inc()
}

// SessionFinished 记录一次会话终态迁移.
func (c *Collector) SessionFinished(status string) {
	c.sessionsFinished.WithLabelValues(status).Inc()
}

// TurnObserved 记录一次参与者回合.
func (c *Collector) TurnObserved(provider, outcome string, seconds float64) {
	c.turnsTotal.WithLabelValues(provider, outcome).Inc()
	c.turnDuration.WithLabelValues(provider).Observe(seconds)
}

// UsageObserved 记录一条已持久化消息的用量.
func (c *Collector) UsageObserved(tokensIn, tokensOut int, cost float64) {
	c.tokensTotal.WithLabelValues("in").Add(float64(tokensIn))
	c.tokensTotal.WithLabelValues("out").Add(float64(tokensOut))
	c.costTotal.Add(cost)
}

// CompressionObserved 记录一次压缩.
func (c *Collector) CompressionObserved() {
	c.compressions.Inc()
}
