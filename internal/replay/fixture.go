package replay

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/danielpatrickdp/universal-perturbation/go-trainer/internal/schedule"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture.
type Fixture struct {
	Description     string                  `json:"description"`
	StartScale      *float64                `json:"start_scale,omitempty"`
	Config          FixtureConfig           `json:"config"`
	Epochs          []FixtureEpoch          `json:"epochs"`
	ExpectedResults []FixtureExpectedResult `json:"expected_results"`
}

// FixtureConfig mirrors schedule.Config with JSON tags.
type FixtureConfig struct {
	Shrink    float64 `json:"shrink"`
	ShrinkInc float64 `json:"shrink_inc"`
	MaxNorm   float64 `json:"max_norm"`
}

// FixtureEpoch is one recorded epoch. Null metrics stand for NaN.
type FixtureEpoch struct {
	Epoch       int      `json:"epoch"`
	SuccessRate *float64 `json:"success_rate"`
	LInf        *float64 `json:"linf"`
	Dist        *float64 `json:"dist"`
}

// FixtureExpectedResult captures the expected decision per epoch.
type FixtureExpectedResult struct {
	Epoch  int     `json:"epoch"`
	Action string  `json:"action"`
	Scale  float64 `json:"scale"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// ToConfig converts the fixture config.
func (fc FixtureConfig) ToConfig() schedule.Config {
	return schedule.Config{Shrink: fc.Shrink, ShrinkInc: fc.ShrinkInc, MaxNorm: fc.MaxNorm}
}

// StartState is the scheduler state the fixture begins from: the configured
// shrink unless start_scale overrides it.
func (f *Fixture) StartState() schedule.State {
	s := schedule.NewState(f.Config.ToConfig())
	if f.StartScale != nil {
		s.Scale = *f.StartScale
	}
	return s
}

// ToEpochRecords converts the recorded epochs.
func (f *Fixture) ToEpochRecords() []EpochRecord {
	out := make([]EpochRecord, len(f.Epochs))
	for i, e := range f.Epochs {
		out[i] = EpochRecord{
			Epoch: e.Epoch,
			Metrics: schedule.EpochMetrics{
				SuccessRate: nanIfNil(e.SuccessRate),
				LInf:        nanIfNil(e.LInf),
				Dist:        nanIfNil(e.Dist),
			},
		}
	}
	return out
}

// #endregion fixture-loader
