package schedule

// #region config
// Config holds the scale schedule and the global stop thresholds.
type Config struct {
	Shrink    float64 // initial scale
	ShrinkInc float64 // added to the scale on a plateau
	MaxNorm   float64 // perturbation budget for mean L-inf and mean L2 ratio
}

// DefaultConfig returns the defaults of the training script.
func DefaultConfig() Config {
	return Config{
		Shrink:    0.01,
		ShrinkInc: 0.01,
		MaxNorm:   0.04,
	}
}

// #endregion config

// #region phase
// Phase is the scheduler's coarse state.
type Phase string

const (
	PhaseProbing Phase = "probing" // epochs 1–2: history is still filling
	PhaseSteady  Phase = "steady"  // epoch 3 on: plateaus raise the scale
)

// PhaseOf returns the phase an epoch runs in.
func PhaseOf(epoch int) Phase {
	if epoch <= 2 {
		return PhaseProbing
	}
	return PhaseSteady
}

// #endregion phase

// #region state
// State is the scale and the two-slot success-rate history. It is passed into
// and returned from Advance; nothing else mutates it.
type State struct {
	Scale      float64
	PrevMetric float64
	CurrMetric float64
	HasPrev    bool
	HasCurr    bool
}

// NewState starts a run at the configured initial scale.
func NewState(cfg Config) State {
	return State{Scale: cfg.Shrink}
}

// #endregion state

// #region epoch-metrics
// EpochMetrics is what the scheduler reads from a finished training epoch.
type EpochMetrics struct {
	SuccessRate float64
	LInf        float64 // mean L-inf over fooled samples
	Dist        float64 // mean perturbation/clean L2 ratio over fooled samples
}

// #endregion epoch-metrics

// #region transition
// Action is the scheduler's decision for an epoch.
type Action string

const (
	ActionHold     Action = "hold"
	ActionIncrease Action = "increase"
	ActionStop     Action = "stop"
)

// Transition records one Advance call.
type Transition struct {
	Epoch  int
	Phase  Phase
	Action Action
	Reason string
	Before State
	After  State
}

// Stopped reports whether training must end after this epoch.
func (t Transition) Stopped() bool { return t.Action == ActionStop }

// #endregion transition
