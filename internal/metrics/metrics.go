// Package metrics provides Prometheus metrics for admission, delivery and
// pipeline outcomes. No request or session ids are used as labels.
package metrics

import (
	"errors"
	"time"

	"food-search-be/pkg/failure"
	"food-search-be/pkg/pipeline"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Admission

	AdmissionAdmitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "foodsearch_admission_admit_total",
		Help: "Total number of admitted searches, by whether they waited in the queue.",
	}, []string{"queued"})

	AdmissionRejectTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "foodsearch_admission_reject_total",
		Help: "Total number of searches never admitted, by reason.",
	}, []string{"reason"})

	AdmissionQueueWait = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "foodsearch_admission_queue_wait_seconds",
		Help:    "Time spent waiting for an admission slot.",
		Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})

	AdmissionActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "foodsearch_admission_active",
		Help: "Current number of running searches.",
	})

	AdmissionCapacity = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "foodsearch_admission_capacity",
		Help: "Configured maximum number of concurrent searches.",
	})

	// Delivery

	DeliveryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "foodsearch_delivery_total",
		Help: "Pub/sub deliveries, by result (sent/failed).",
	}, []string{"result"})

	Subscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "foodsearch_ws_subscribers",
		Help: "Current number of websocket subscribers.",
	})

	// Pipeline

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "foodsearch_stage_duration_seconds",
		Help:    "Pipeline stage latency, by stage and result.",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage", "result"})

	StageFailureTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "foodsearch_stage_failure_total",
		Help: "Pipeline stage failures, by stage and classified kind.",
	}, []string{"stage", "kind"})

	SearchOutcomeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "foodsearch_search_outcome_total",
		Help: "Searches reaching STOP or CLARIFY, by status and outcome.",
	}, []string{"status", "outcome"})
)

// AdmissionObserver feeds backpressure events into the admission metrics.
type AdmissionObserver struct{}

func (AdmissionObserver) Admitted(queued time.Duration) {
	label := "false"
	if queued > 0 {
		label = "true"
	}
	AdmissionAdmitTotal.WithLabelValues(label).Inc()
	AdmissionQueueWait.Observe(queued.Seconds())
}

func (AdmissionObserver) Rejected(reason string) {
	AdmissionRejectTotal.WithLabelValues(reason).Inc()
}

func (AdmissionObserver) Active(active, capacity int) {
	AdmissionActive.Set(float64(active))
	AdmissionCapacity.Set(float64(capacity))
}

// DeliveryObserver feeds hub events into the delivery metrics.
type DeliveryObserver struct{}

func (DeliveryObserver) Published(res pipeline.PublishResult) {
	DeliveryTotal.WithLabelValues("sent").Add(float64(res.Sent))
	DeliveryTotal.WithLabelValues("failed").Add(float64(res.Failed))
}

func (DeliveryObserver) Subscribers(n int) {
	Subscribers.Set(float64(n))
}

// PipelineObserver feeds orchestrator events into the pipeline metrics.
type PipelineObserver struct{}

func (PipelineObserver) StageCompleted(stage string, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
		kind := string(failure.KindUnknown)
		var pe *failure.PipelineError
		if errors.As(err, &pe) {
			kind = string(pe.Kind())
		} else {
			kind = string(failure.Classify(err, stage).Kind())
		}
		StageFailureTotal.WithLabelValues(stage, kind).Inc()
	}
	StageDuration.WithLabelValues(stage, result).Observe(d.Seconds())
}

func (PipelineObserver) Finished(status, outcome string) {
	if outcome == "" {
		outcome = "none"
	}
	SearchOutcomeTotal.WithLabelValues(status, outcome).Inc()
}
