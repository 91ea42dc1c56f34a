package tensor

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// #region index-set
// IndexSet is an ordered list of row positions within a batch.
// Stages produce new sets instead of mutating the batch they describe.
type IndexSet []int

// Range returns {0, 1, ..., n-1}.
func Range(n int) IndexSet {
	s := make(IndexSet, n)
	for i := range s {
		s[i] = i
	}
	return s
}

// Len returns the number of positions in the set.
func (s IndexSet) Len() int { return len(s) }

// Empty reports whether the set has no positions.
func (s IndexSet) Empty() bool { return len(s) == 0 }

// Contains reports whether position i is in the set.
func (s IndexSet) Contains(i int) bool {
	for _, v := range s {
		if v == i {
			return true
		}
	}
	return false
}

// #endregion index-set

// #region batch
// Batch is a block of images (one flattened CHW image per row) with their labels.
type Batch struct {
	Images *mat.Dense
	Labels []int
}

// Len returns the number of samples in the batch.
func (b Batch) Len() int { return len(b.Labels) }

// Select copies the rows named by idx into a new batch.
func (b Batch) Select(idx IndexSet) Batch {
	return Batch{
		Images: SelectRows(b.Images, idx),
		Labels: SelectInts(b.Labels, idx),
	}
}

// SelectRows copies the rows of m named by idx. Returns nil for an empty set
// because gonum does not allow zero-row matrices.
func SelectRows(m *mat.Dense, idx IndexSet) *mat.Dense {
	if m == nil || len(idx) == 0 {
		return nil
	}
	_, c := m.Dims()
	out := mat.NewDense(len(idx), c, nil)
	for k, i := range idx {
		out.SetRow(k, m.RawRowView(i))
	}
	return out
}

// SelectInts picks the entries of v named by idx.
func SelectInts(v []int, idx IndexSet) []int {
	out := make([]int, len(idx))
	for k, i := range idx {
		out[k] = v[i]
	}
	return out
}

// #endregion batch

// #region row-ops
// ArgMax returns the column of the largest value in every row.
func ArgMax(m *mat.Dense) []int {
	if m == nil {
		return nil
	}
	r, _ := m.Dims()
	out := make([]int, r)
	for i := 0; i < r; i++ {
		out[i] = floats.MaxIdx(m.RawRowView(i))
	}
	return out
}

// Softmax returns the numerically stable softmax of a logit row.
func Softmax(logits []float64) []float64 {
	out := make([]float64, len(logits))
	if len(logits) == 0 {
		return out
	}
	peak := floats.Max(logits)
	var sum float64
	for i, z := range logits {
		out[i] = math.Exp(z - peak)
		sum += out[i]
	}
	floats.Scale(1/sum, out)
	return out
}

// LogSoftmax returns log(softmax(logits)) without underflowing small probabilities.
func LogSoftmax(logits []float64) []float64 {
	out := make([]float64, len(logits))
	if len(logits) == 0 {
		return out
	}
	peak := floats.Max(logits)
	var sum float64
	for _, z := range logits {
		sum += math.Exp(z - peak)
	}
	lse := peak + math.Log(sum)
	for i, z := range logits {
		out[i] = z - lse
	}
	return out
}

// TopTwo returns the most and second-most probable classes of a row.
// Ties keep the lower index first.
func TopTwo(row []float64) (first, second int) {
	first, second = -1, -1
	for i, v := range row {
		switch {
		case first < 0 || v > row[first]:
			second = first
			first = i
		case second < 0 || v > row[second]:
			second = i
		}
	}
	return first, second
}

// #endregion row-ops
