// Package metrics exposes the process-wide Prometheus collectors callcore
// scrapes via /metrics. Collectors are promauto-registered package
// globals, matching the gateway pattern in the reference pack.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CallsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "callcore_calls_active",
		Help: "Currently active call sessions",
	})

	CallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "callcore_calls_total",
		Help: "Total calls started, by carrier",
	}, []string{"carrier"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "callcore_pipeline_stage_duration_seconds",
		Help:    "Per-stage latency (stt, llm, tts)",
		Buckets: []float64{0.02, 0.05, 0.1, 0.2, 0.3, 0.5, 0.8, 1.0, 2.0, 5.0},
	}, []string{"stage"})

	BargeInLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "callcore_barge_in_latency_seconds",
		Help:    "Time from ControlChannel.send(INTERRUPT) to AudioManager queue clear",
		Buckets: []float64{0.005, 0.01, 0.02, 0.05, 0.075, 0.1, 0.15, 0.2, 0.5},
	})

	CodecOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "callcore_codec_operations_total",
		Help: "Codec encode/decode operations by direction and format",
	}, []string{"direction", "format"})

	ToolInvocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "callcore_tool_invocations_total",
		Help: "Tool invocations by name and outcome",
	}, []string{"tool", "outcome"})

	ControlSignalsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "callcore_control_signals_sent_total",
		Help: "ControlChannel sends by kind",
	}, []string{"kind"})

	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "callcore_errors_total",
		Help: "Error counts by component and kind",
	}, []string{"component", "kind"})
)
