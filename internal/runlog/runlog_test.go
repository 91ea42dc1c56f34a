package runlog

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/danielpatrickdp/universal-perturbation/go-trainer/internal/checkpoint"
	"github.com/danielpatrickdp/universal-perturbation/go-trainer/internal/metrics"
	"github.com/danielpatrickdp/universal-perturbation/go-trainer/internal/schedule"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempStore(t *testing.T) *checkpoint.Store {
	t.Helper()
	s, err := checkpoint.NewStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLogEpochRoundTripsNaNAsNull(t *testing.T) {
	s := tempStore(t)

	var m metrics.RunMetrics
	m.AddFilter(4, 0)
	sum := m.Summary(1, "train")
	require.NoError(t, LogEpoch(s.DB(), EpochEntry{
		RunID: "r1", Epoch: 1, Phase: "train", Scale: 0.01, Summary: FromSummary(sum),
	}))

	got, err := ListEpochs(s.DB(), "r1", "train")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Nil(t, got[0].Summary.SuccessRate)
	require.NotNil(t, got[0].Summary.SkipRate)
	assert.Equal(t, 1.0, *got[0].Summary.SkipRate)
	assert.True(t, math.IsNaN(got[0].Summary.Metrics().LInf))
}

func TestLogTransition(t *testing.T) {
	s := tempStore(t)
	m := schedule.EpochMetrics{SuccessRate: 0.5, LInf: math.NaN(), Dist: math.NaN()}
	tr := schedule.Transition{
		Epoch: 3, Phase: schedule.PhaseSteady, Action: schedule.ActionIncrease,
		Reason: "plateau", Before: schedule.State{Scale: 0.01}, After: schedule.State{Scale: 0.02},
	}
	require.NoError(t, LogTransition(s.DB(), FromTransition("r1", tr, m)))

	got, err := ListTransitions(s.DB(), "r1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "increase", got[0].Action)
	assert.Equal(t, 0.02, got[0].ScaleAfter)
	require.NotNil(t, got[0].Metric)
	assert.Equal(t, 0.5, *got[0].Metric)
}

func TestListRuns(t *testing.T) {
	s := tempStore(t)
	for _, id := range []string{"a", "b"} {
		require.NoError(t, LogEpoch(s.DB(), EpochEntry{RunID: id, Epoch: 1, Phase: "train"}))
	}
	runs, err := ListRuns(s.DB())
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, runs)
}
