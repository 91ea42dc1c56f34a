// Package telemetry exposes training progress as Prometheus metrics. All
// methods are safe on a nil *Collectors so the trainer can run without an
// exporter.
package telemetry

import (
	"math"
	"net/http"

	"github.com/danielpatrickdp/universal-perturbation/go-trainer/internal/metrics"
	"github.com/danielpatrickdp/universal-perturbation/go-trainer/internal/schedule"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "uap"

// #region collectors
// Collectors groups the trainer's metrics on a private registry.
type Collectors struct {
	reg *prometheus.Registry

	samples     *prometheus.CounterVec
	steps       prometheus.Counter
	transitions *prometheus.CounterVec
	rates       *prometheus.GaugeVec
	norms       *prometheus.GaugeVec
	scale       prometheus.Gauge
	epoch       *prometheus.GaugeVec
}

// New registers the trainer's collectors on a fresh registry.
func New() *Collectors {
	c := &Collectors{
		reg: prometheus.NewRegistry(),
		samples: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Subsystem: "attack", Name: "samples_total", Help: "Samples seen by outcome."},
			[]string{"phase", "outcome"},
		),
		steps: prometheus.NewCounter(
			prometheus.CounterOpts{Namespace: namespace, Subsystem: "optim", Name: "steps_total", Help: "Generator optimizer steps."},
		),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Subsystem: "schedule", Name: "transitions_total", Help: "Scale scheduler decisions by action."},
			[]string{"action"},
		),
		rates: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Namespace: namespace, Subsystem: "epoch", Name: "rate", Help: "Latest epoch rates (success, skip)."},
			[]string{"phase", "rate"},
		),
		norms: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Namespace: namespace, Subsystem: "epoch", Name: "norm", Help: "Latest epoch mean perturbation norms."},
			[]string{"phase", "norm"},
		),
		scale: prometheus.NewGauge(
			prometheus.GaugeOpts{Namespace: namespace, Subsystem: "schedule", Name: "scale", Help: "Current perturbation scale."},
		),
		epoch: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Namespace: namespace, Subsystem: "epoch", Name: "current", Help: "Last finished epoch."},
			[]string{"phase"},
		),
	}
	c.reg.MustRegister(c.samples, c.steps, c.transitions, c.rates, c.norms, c.scale, c.epoch)
	return c
}

// Registry returns the registry the collectors live on.
func (c *Collectors) Registry() *prometheus.Registry { return c.reg }

// Handler serves the registry in the Prometheus text format.
func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}

// #endregion collectors

// #region observe
// ObserveBatch counts one batch's samples.
func (c *Collectors) ObserveBatch(phase string, skipped, fooled, notFooled int, stepped bool) {
	if c == nil {
		return
	}
	c.samples.WithLabelValues(phase, "skipped").Add(float64(skipped))
	c.samples.WithLabelValues(phase, "fooled").Add(float64(fooled))
	c.samples.WithLabelValues(phase, "not_fooled").Add(float64(notFooled))
	if stepped {
		c.steps.Inc()
	}
}

// ObserveEpoch publishes a finished epoch. NaN values leave the gauge unchanged.
func (c *Collectors) ObserveEpoch(s metrics.Summary, scale float64) {
	if c == nil {
		return
	}
	set(c.rates, s.SuccessRate, s.Phase, "success")
	set(c.rates, s.SkipRate, s.Phase, "skip")
	set(c.norms, s.LInf, s.Phase, "linf")
	set(c.norms, s.Dist, s.Phase, "l2_ratio")
	set(c.norms, s.ClassifierLoss, s.Phase, "classifier_loss")
	c.epoch.WithLabelValues(s.Phase).Set(float64(s.Epoch))
	c.scale.Set(scale)
}

// ObserveTransition counts a scheduler decision and publishes the new scale.
func (c *Collectors) ObserveTransition(t schedule.Transition) {
	if c == nil {
		return
	}
	c.transitions.WithLabelValues(string(t.Action)).Inc()
	c.scale.Set(t.After.Scale)
}

func set(g *prometheus.GaugeVec, v float64, labels ...string) {
	if math.IsNaN(v) {
		return
	}
	g.WithLabelValues(labels...).Set(v)
}

// #endregion observe
