package checkpoint

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempDB(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sample(epoch int) Checkpoint {
	return Checkpoint{
		RunID:      "run-1",
		Epoch:      epoch,
		Latent:     2,
		OutputSize: 3,
		Params:     []float64{0.1, -0.2, 0.3, 0.4, -0.5, 0.6, 0, 1e-9, -3.25},
		Scale:      0.01 * float64(epoch),
	}
}

func TestGetCurrentEmpty(t *testing.T) {
	s := tempDB(t)
	_, err := s.GetCurrent()
	if !errors.Is(err, ErrNoCheckpoint) {
		t.Fatalf("expected ErrNoCheckpoint, got %v", err)
	}
}

func TestSaveAndGetCurrent(t *testing.T) {
	s := tempDB(t)

	saved, err := s.Save(sample(1))
	require.NoError(t, err)
	require.NotEmpty(t, saved.ID)

	cur, err := s.GetCurrent()
	require.NoError(t, err)
	assert.Equal(t, saved.ID, cur.ID)
	assert.Equal(t, 1, cur.Epoch)
	assert.Equal(t, saved.Params, cur.Params, "params round-trip bit-exact")
	assert.InDelta(t, 0.01, cur.Scale, 1e-15)
	assert.Empty(t, cur.ParentID)
}

func TestParentChainAndActivate(t *testing.T) {
	s := tempDB(t)

	v1, err := s.Save(sample(1))
	require.NoError(t, err)
	next := sample(2)
	next.ParentID = v1.ID
	next.MetricsJSON = `{"success_rate":0.5}`
	v2, err := s.Save(next)
	require.NoError(t, err)

	cur, _ := s.GetCurrent()
	assert.Equal(t, v2.ID, cur.ID)
	assert.Equal(t, v1.ID, cur.ParentID)
	assert.Equal(t, `{"success_rate":0.5}`, cur.MetricsJSON)

	require.NoError(t, s.Activate(v1.ID))
	cur, _ = s.GetCurrent()
	assert.Equal(t, v1.ID, cur.ID)

	assert.Error(t, s.Activate("missing"))
}

func TestSaveRejectsShapeMismatch(t *testing.T) {
	s := tempDB(t)
	ck := sample(1)
	ck.Params = ck.Params[:4]
	_, err := s.Save(ck)
	assert.Error(t, err)
}

func TestListNewestFirst(t *testing.T) {
	s := tempDB(t)
	for e := 1; e <= 3; e++ {
		_, err := s.Save(sample(e))
		require.NoError(t, err)
	}

	list, err := s.List(2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, 3, list[0].Epoch)
	assert.Equal(t, 2, list[1].Epoch)
	assert.Empty(t, list[0].Params)
}
