package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Recorder owns a registry holding the run metrics. A nil Recorder is a
// valid no-op.
type Recorder struct {
	registry *prometheus.Registry

	OrgsTotal           *prometheus.CounterVec
	FlowVersionsDeleted *prometheus.CounterVec
	DeleteBatches       *prometheus.CounterVec
	AuthDuration        *prometheus.HistogramVec
	PlanSize            *prometheus.GaugeVec
	MailSends           *prometheus.CounterVec
	LastRun             prometheus.Gauge
}

func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		OrgsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowctl_orgs_total",
			Help: "Orgs processed, by outcome (success, skipped, failed)",
		}, []string{"outcome"}),
		FlowVersionsDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowctl_flow_versions_deleted_total",
			Help: "Flow version delete attempts, by result (succeeded, failed)",
		}, []string{"result"}),
		DeleteBatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowctl_delete_batches_total",
			Help: "Composite delete requests, by result (ok, error)",
		}, []string{"result"}),
		AuthDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "flowctl_auth_duration_seconds",
			Help:    "Time from starting the login to holding a token, by result",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
		}, []string{"result"}),
		PlanSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "flowctl_plan_size",
			Help: "Flow versions selected for deletion in the last plan, per instance",
		}, []string{"instance"}),
		MailSends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowctl_mail_send_total",
			Help: "Run report mails, by result (success, failure)",
		}, []string{"result"}),
		LastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "flowctl_last_run_timestamp_seconds",
			Help: "Unix time the last run completed",
		}),
	}
	r.registry.MustRegister(
		r.OrgsTotal,
		r.FlowVersionsDeleted,
		r.DeleteBatches,
		r.AuthDuration,
		r.PlanSize,
		r.MailSends,
		r.LastRun,
	)
	return r
}

func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

func (r *Recorder) OrgCompleted(outcome string) {
	if r == nil {
		return
	}
	r.OrgsTotal.WithLabelValues(outcome).Inc()
}

func (r *Recorder) BatchCompleted(succeeded, failed int, err error) {
	if r == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.DeleteBatches.WithLabelValues(result).Inc()
	r.FlowVersionsDeleted.WithLabelValues("succeeded").Add(float64(succeeded))
	r.FlowVersionsDeleted.WithLabelValues("failed").Add(float64(failed))
}

func (r *Recorder) AuthObserved(d time.Duration, err error) {
	if r == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	r.AuthDuration.WithLabelValues(result).Observe(d.Seconds())
}

func (r *Recorder) PlanCreated(instance string, size int) {
	if r == nil {
		return
	}
	r.PlanSize.WithLabelValues(instance).Set(float64(size))
}

func (r *Recorder) MailSent(err error) {
	if r == nil {
		return
	}
	if err != nil {
		r.MailSends.WithLabelValues("failure").Inc()
		return
	}
	r.MailSends.WithLabelValues("success").Inc()
}

func (r *Recorder) RunCompleted(at time.Time) {
	if r == nil {
		return
	}
	r.LastRun.Set(float64(at.Unix()))
}

// WriteTextfile writes the registry in the text exposition format for the
// node-exporter textfile collector. The file is replaced atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}

// Push sends the registry to a Pushgateway, grouped by run id.
func (r *Recorder) Push(ctx context.Context, url, job, runID string) error {
	if r == nil {
		return nil
	}
	pusher := push.New(url, job).Gatherer(r.registry)
	if runID != "" {
		pusher = pusher.Grouping("run_id", runID)
	}
	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics: %w", err)
	}
	return nil
}
