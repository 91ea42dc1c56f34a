package metrics

// #region sample-norms
// SampleNorm holds the distances of one fooled sample, measured in raw pixel space.
type SampleNorm struct {
	LInf      float64 // max |adv − clean|
	PertNorm  float64 // ‖adv − clean‖₂
	CleanNorm float64 // ‖clean‖₂
	AdvNorm   float64 // ‖adv‖₂
	Ratio     float64 // PertNorm / CleanNorm
}

// #endregion sample-norms

// #region snapshot
// Snapshot is the running state of an epoch after some batches. Means over an
// empty set and rates with a zero denominator are NaN.
type Snapshot struct {
	ClassifierLoss float64
	SuccessRate    float64
	SkipRate       float64
	LInf           float64
	Dist           float64
	PertNorm       float64
	AdvNorm        float64
	CleanNorm      float64

	Total   int // samples attacked
	Success int // samples fooled
	Skipped int // samples dropped by the eligibility filters
	Kept    int // samples that passed the filters
	Steps   int // optimizer steps taken
}

// Summary is the final snapshot of an epoch.
type Summary struct {
	Epoch int
	Phase string // "train" | "eval"
	Snapshot
}

// #endregion snapshot
