package data

// #region normalization
// Normalization holds per-channel mean and std of a normalized CHW image.
type Normalization struct {
	Mean []float64
	Std  []float64
}

// CIFAR10 is the normalization the classifier was trained with.
var CIFAR10 = Normalization{
	Mean: []float64{0.4914, 0.4822, 0.4465},
	Std:  []float64{0.2023, 0.1994, 0.2010},
}

// Channels returns the number of channels described.
func (n Normalization) Channels() int { return len(n.Mean) }

// Normalize maps a raw [0,1] CHW row to (x − mean_c) / std_c.
func (n Normalization) Normalize(raw []float64) []float64 {
	out := make([]float64, len(raw))
	plane := len(raw) / n.Channels()
	for i, v := range raw {
		c := i / plane
		out[i] = (v - n.Mean[c]) / n.Std[c]
	}
	return out
}

// Denormalize maps a normalized CHW row back to raw pixel space: x·std_c + mean_c.
func (n Normalization) Denormalize(x []float64) []float64 {
	out := make([]float64, len(x))
	plane := len(x) / n.Channels()
	for i, v := range x {
		c := i / plane
		out[i] = v*n.Std[c] + n.Mean[c]
	}
	return out
}

// Range returns the extremes a normalized element can take when raw pixels
// lie in [0, 1].
func (n Normalization) Range() (lo, hi float64) {
	for c := range n.Mean {
		l := (0 - n.Mean[c]) / n.Std[c]
		h := (1 - n.Mean[c]) / n.Std[c]
		if c == 0 || l < lo {
			lo = l
		}
		if c == 0 || h > hi {
			hi = h
		}
	}
	return lo, hi
}

// #endregion normalization
