package telemetry

import (
	"math"
	"net/http/httptest"
	"testing"

	"github.com/danielpatrickdp/universal-perturbation/go-trainer/internal/metrics"
	"github.com/danielpatrickdp/universal-perturbation/go-trainer/internal/schedule"
	"github.com/stretchr/testify/assert"
)

func scrape(t *testing.T, c *Collectors) string {
	t.Helper()
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	return rec.Body.String()
}

func TestNilCollectorsAreNoOps(t *testing.T) {
	var c *Collectors
	c.ObserveBatch("train", 1, 2, 3, true)
	c.ObserveEpoch(metrics.Summary{}, 0.1)
	c.ObserveTransition(schedule.Transition{})
}

func TestObserveBatchCounts(t *testing.T) {
	c := New()
	c.ObserveBatch("train", 2, 3, 1, true)
	c.ObserveBatch("train", 0, 1, 0, false)

	body := scrape(t, c)
	assert.Contains(t, body, `uap_attack_samples_total{outcome="fooled",phase="train"} 4`)
	assert.Contains(t, body, `uap_attack_samples_total{outcome="skipped",phase="train"} 2`)
	assert.Contains(t, body, "uap_optim_steps_total 1")
}

func TestObserveEpochSkipsNaN(t *testing.T) {
	c := New()
	s := metrics.Summary{Epoch: 2, Phase: "train"}
	s.SuccessRate = 0.75
	s.SkipRate = 0.5
	s.LInf = math.NaN()
	s.Dist = math.NaN()
	s.ClassifierLoss = math.NaN()
	c.ObserveEpoch(s, 0.02)

	body := scrape(t, c)
	assert.Contains(t, body, `uap_epoch_rate{phase="train",rate="success"} 0.75`)
	assert.NotContains(t, body, `norm="linf"`)
	assert.Contains(t, body, `uap_epoch_current{phase="train"} 2`)
	assert.Contains(t, body, "uap_schedule_scale 0.02")
}

func TestObserveTransition(t *testing.T) {
	c := New()
	c.ObserveTransition(schedule.Transition{Action: schedule.ActionIncrease, After: schedule.State{Scale: 0.03}})

	body := scrape(t, c)
	assert.Contains(t, body, `uap_schedule_transitions_total{action="increase"} 1`)
	assert.Contains(t, body, "uap_schedule_scale 0.03")
}
