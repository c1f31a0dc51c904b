package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "gasless"

// Failure stages.
const (
	StageValidation    = "validation"
	StageAccount       = "account"
	StageFees          = "fees"
	StagePreflight     = "preflight"
	StageAuthorization = "authorization"
	StageCompose       = "compose"
	StageSubmit        = "submit"
	StageReceipt       = "receipt"
	StageExecution     = "execution"
)

var durationBuckets = []float64{0.5, 1, 2, 4, 6, 8, 10, 15, 20, 30, 45, 60, 90, 120, 180}

// Metrics instruments the orchestration pipeline. The zero value and a nil
// *Metrics are no-ops.
type Metrics struct {
	submitted          *prometheus.CounterVec
	failed             *prometheus.CounterVec
	preflightRejected  *prometheus.CounterVec
	receiptPollAttempt prometheus.Counter
	duration           *prometheus.HistogramVec
}

// New creates the collectors and registers them on reg when it is not nil.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		submitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "userops_submitted_total",
				Help:      "User operations accepted by the bundler",
			}, []string{"usecase"}),
		failed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "userops_failed_total",
				Help:      "Operations that failed, by pipeline stage",
			}, []string{"usecase", "stage"}),
		preflightRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "preflight_rejections_total",
				Help:      "Operations rejected by the affordability preflight",
			}, []string{"kind"}),
		receiptPollAttempt: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "receipt_poll_attempts_total",
				Help:      "eth_getUserOperationReceipt requests issued while polling",
			}),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Wall time of a use case from validation to decided receipt",
				Buckets:   durationBuckets,
			}, []string{"usecase"}),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{m.submitted, m.failed, m.preflightRejected, m.receiptPollAttempt, m.duration} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Metrics) Submitted(usecase string) {
	if m == nil || m.submitted == nil {
		return
	}
	m.submitted.WithLabelValues(usecase).Inc()
}

func (m *Metrics) Failed(usecase, stage string) {
	if m == nil || m.failed == nil {
		return
	}
	m.failed.WithLabelValues(usecase, stage).Inc()
}

func (m *Metrics) PreflightRejected(kind string) {
	if m == nil || m.preflightRejected == nil {
		return
	}
	m.preflightRejected.WithLabelValues(kind).Inc()
}

func (m *Metrics) ReceiptPollAttempt() {
	if m == nil || m.receiptPollAttempt == nil {
		return
	}
	m.receiptPollAttempt.Inc()
}

func (m *Metrics) ObserveDuration(usecase string, d time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(usecase).Observe(d.Seconds())
}
