package checkpoint

import "time"

// #region checkpoint-record
// Checkpoint is a versioned snapshot of the generator parameters and the
// perturbation scale at the end of an epoch.
type Checkpoint struct {
	ID          string
	ParentID    string
	RunID       string
	Epoch       int
	Latent      int
	OutputSize  int
	Params      []float64
	Scale       float64
	CreatedAt   time.Time
	MetricsJSON string
}

// #endregion checkpoint-record
