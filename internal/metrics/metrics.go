// Package metrics 提供 eidos-yield 服务的 Prometheus 监控指标
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "eidos_yield"

// 执行器指标
var (
	// OperationsTotal 状态变更操作总数
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "状态变更操作总数",
		},
		[]string{"operation", "result"}, // result: ok, rejected, error
	)

	// OperationDuration 操作耗时 (含排队)
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "状态变更操作耗时(秒)",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"operation"},
	)

	// LedgerHeight 当前执行高度
	LedgerHeight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ledger_height",
			Help:      "已提交的执行高度",
		},
	)
)

// 业务指标
var (
	// TransfersTotal 跨链转账数
	TransfersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfers_total",
			Help:      "跨链转账数",
		},
		[]string{"domain", "kind"},
	)

	// ReplayRejectedTotal 重复消息被拒次数
	ReplayRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replay_rejected_total",
			Help:      "重复消息被拒次数",
		},
		[]string{"scope"},
	)

	// SettlementsTotal 结算状态迁移数
	SettlementsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlements_total",
			Help:      "结算状态迁移数",
		},
		[]string{"status"},
	)

	// StrategyQueryFailures 策略查询失败次数
	StrategyQueryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "strategy_query_failures_total",
			Help:      "策略查询失败次数 (按零计入)",
		},
		[]string{"strategy", "method"},
	)

	// WeightedYieldGauge 最近一次快照的加权收益率
	WeightedYieldGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "weighted_yield",
			Help:      "最近一次快照的加权收益率",
		},
	)
)

// 基础设施指标
var (
	// OutboxPending 待投递 outbox 消息数
	OutboxPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "outbox_pending_total",
			Help:      "待投递 outbox 消息数",
		},
	)

	// KafkaMessagesProduced 发送的 Kafka 消息数
	KafkaMessagesProduced = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_messages_produced_total",
			Help:      "发送的 Kafka 消息数",
		},
		[]string{"topic", "status"},
	)

	// KafkaMessagesConsumed 消费的 Kafka 消息数
	KafkaMessagesConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_messages_consumed_total",
			Help:      "消费的 Kafka 消息数",
		},
		[]string{"topic", "status"},
	)

	// HTTPRequestsTotal HTTP 请求数
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP 请求数",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration HTTP 请求耗时
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP 请求耗时(秒)",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// JobRunsTotal 定时任务执行次数
	JobRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "定时任务执行次数",
		},
		[]string{"job", "status"},
	)
)

// RecordOperation 记录一次执行器操作
func RecordOperation(operation, result string, durationSeconds float64) {
	OperationsTotal.WithLabelValues(operation, result).Inc()
	OperationDuration.WithLabelValues(operation).Observe(durationSeconds)
}

// RecordTransfer 记录跨链转账
func RecordTransfer(domain, kind string) {
	TransfersTotal.WithLabelValues(domain, kind).Inc()
}

// RecordReplayRejected 记录重复消息
func RecordReplayRejected(scope string) {
	ReplayRejectedTotal.WithLabelValues(scope).Inc()
}

// RecordSettlement 记录结算状态迁移
func RecordSettlement(status string) {
	SettlementsTotal.WithLabelValues(status).Inc()
}

// RecordStrategyQueryFailure 记录策略查询失败
func RecordStrategyQueryFailure(strategy, method string) {
	StrategyQueryFailures.WithLabelValues(strategy, method).Inc()
}

// RecordKafkaMessage 记录 Kafka 消息
func RecordKafkaMessage(topic string, produced bool, ok bool) {
	status := "success"
	if !ok {
		status = "failed"
	}
	if produced {
		KafkaMessagesProduced.WithLabelValues(topic, status).Inc()
	} else {
		KafkaMessagesConsumed.WithLabelValues(topic, status).Inc()
	}
}

// RecordJob 记录定时任务
func RecordJob(job string, ok bool) {
	status := "success"
	if !ok {
		status = "failed"
	}
	JobRunsTotal.WithLabelValues(job, status).Inc()
}

// RecordHTTPRequest 记录 HTTP 请求
func RecordHTTPRequest(method, path, status string, durationSeconds float64) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(durationSeconds)
}
