package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var generationTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "bioforge",
		Subsystem: "generation",
		Name:      "requests_total",
		Help:      "简介生成请求总数，按结果分类。",
	},
	[]string{"provider", "outcome"},
)

// OutcomeUpstream 表示上游 LLM 调用失败，解析阶段未执行。
// 其余取值来自解析阶段：parsed / fallback / failed。
const OutcomeUpstream = "upstream_error"

// ObserveGeneration 记录一次生成请求的最终结果。
func ObserveGeneration(provider, outcome string) {
	generationTotal.WithLabelValues(provider, outcome).Inc()
}
