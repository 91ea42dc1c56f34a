package report

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danielpatrickdp/universal-perturbation/go-trainer/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stringer string

func (s stringer) String() string { return string(s) }

func snapshot() metrics.Snapshot {
	return metrics.Snapshot{
		ClassifierLoss: 0.123456,
		SuccessRate:    0.5,
		SkipRate:       0.25,
		LInf:           0.03,
		Dist:           0.02,
		PertNorm:       1.234,
		AdvNorm:        20.5,
		CleanNorm:      20.25,
	}
}

func TestLineFormats(t *testing.T) {
	s := snapshot()
	assert.Equal(t,
		"Tr E3, C_L 0.12346 A_Succ 0.50000 L_inf 0.03000 L2 0.02000 (Pert 1.23, Adv 20.50, Clean 20.25) C 0.020000 Skipped 25.0%",
		ProgressLine(PhaseTrain, 3, s, 0.02))
	assert.Equal(t,
		"Val Epoch 3 batch_idx 7 A_Succ 0.50000 L_inf 0.03000 L2 0.02000 (Pert 1.23, Adv 20.50, Clean 20.25) C 0.020000 Skipped 25.0%",
		LogLine(PhaseEval, 3, 7, s, 0.02))
}

func TestLineFormatsNaN(t *testing.T) {
	s := snapshot()
	s.SuccessRate = math.NaN()
	assert.Contains(t, ProgressLine(PhaseEval, 1, s, 0.01), "A_Succ NaN")
}

func TestReporterWritesLogAndArchive(t *testing.T) {
	dir := t.TempDir()
	var stdout bytes.Buffer
	r, err := Open(dir, &stdout, 3, 2)
	require.NoError(t, err)

	require.NoError(t, r.Config(stringer("config line")))
	require.NoError(t, r.Batch(PhaseTrain, 1, 0, 4, snapshot(), 0.01))

	f := FooledSample{
		Index:     0,
		Clean:     []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11},
		Adv:       []float64{1, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 12},
		CleanPred: 3,
		AdvPred:   5,
	}
	require.NoError(t, r.TrainSample(1, f))
	require.NoError(t, r.EvalSample(2, f))
	require.NoError(t, r.Close())

	logBytes, err := os.ReadFile(filepath.Join(dir, "log"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(logBytes)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "config line", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "Tr Epoch 1 batch_idx 0 C_L"))
	assert.Contains(t, stdout.String(), "[1/4] Tr E1,")

	for _, p := range []string{
		"1_0.png",
		"classifications/2_0_clean.png",
		"classifications/2_0_perturbed.png",
		"classifications/2_0_combined.png",
	} {
		_, err := os.Stat(filepath.Join(dir, p))
		assert.NoError(t, err, p)
	}

	classes, err := os.ReadFile(filepath.Join(dir, "classifications.log"))
	require.NoError(t, err)
	assert.Contains(t, string(classes), "predicted class 5")
}

func TestTileScalesEachImage(t *testing.T) {
	img := Tile([]float64{-1, 0, 0.5, 1}, 1, 2)
	assert.Equal(t, uint8(0), img.RGBAAt(0, 0).R)
	assert.Equal(t, uint8(255), img.RGBAAt(1, 1).R)
	assert.Equal(t, img.RGBAAt(1, 0).R, img.RGBAAt(1, 0).B, "grey for one channel")

	flat := Tile([]float64{2, 2, 2, 2}, 1, 2)
	assert.Equal(t, uint8(0), flat.RGBAAt(0, 0).G)
}
