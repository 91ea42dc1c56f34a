package schedule

import "fmt"

// #region advance
// Advance applies one finished training epoch to the scheduler state.
//
// Stop conditions are checked first and leave the state untouched: mean L-inf
// above MaxNorm, mean L2 ratio above MaxNorm, or a success rate of 100%.
// NaN metrics (no fooled samples yet) never stop a run.
//
// Otherwise the history advances on a two-epoch cadence: epoch 1 records the
// success rate, every even epoch rolls current into previous and records the
// new rate. From epoch 3 on, a non-improving rate (prev − curr ≥ 0) raises
// the scale by ShrinkInc.
func Advance(s State, epoch int, m EpochMetrics, cfg Config) Transition {
	t := Transition{
		Epoch:  epoch,
		Phase:  PhaseOf(epoch),
		Before: s,
		After:  s,
	}

	switch {
	case m.LInf > cfg.MaxNorm:
		t.Action = ActionStop
		t.Reason = fmt.Sprintf("mean L-inf %.5f exceeds max norm %.5f", m.LInf, cfg.MaxNorm)
		return t
	case m.Dist > cfg.MaxNorm:
		t.Action = ActionStop
		t.Reason = fmt.Sprintf("mean L2 ratio %.5f exceeds max norm %.5f", m.Dist, cfg.MaxNorm)
		return t
	case m.SuccessRate >= 1.0:
		t.Action = ActionStop
		t.Reason = "all samples fooled"
		return t
	}

	next := s
	if epoch == 1 {
		next.CurrMetric, next.HasCurr = m.SuccessRate, true
	}
	if epoch%2 == 0 {
		next.PrevMetric, next.HasPrev = next.CurrMetric, next.HasCurr
		next.CurrMetric, next.HasCurr = m.SuccessRate, true
	}

	t.Action = ActionHold
	t.Reason = "success rate improved"
	if epoch <= 2 {
		t.Reason = "collecting history"
	}
	if epoch > 2 && next.HasPrev && next.HasCurr && next.PrevMetric-next.CurrMetric >= 0 {
		next.Scale += cfg.ShrinkInc
		t.Action = ActionIncrease
		t.Reason = fmt.Sprintf("success rate plateaued (prev %.5f, curr %.5f)", next.PrevMetric, next.CurrMetric)
	}
	t.After = next
	return t
}

// #endregion advance
