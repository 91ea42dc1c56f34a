package data

import (
	"math/rand/v2"

	"github.com/danielpatrickdp/universal-perturbation/go-trainer/internal/config"
	"github.com/danielpatrickdp/universal-perturbation/go-trainer/internal/tensor"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// #region stream
// Stream yields an ordered, restartable sequence of batches.
type Stream interface {
	// Reset rewinds the stream; shuffling streams draw a new order.
	Reset()
	Next() (tensor.Batch, bool)
	// Len returns the number of batches per pass.
	Len() int
}

// #endregion stream

// #region slice-stream
// SliceStream batches an in-memory sample set.
type SliceStream struct {
	rows      [][]float64
	labels    []int
	batchSize int
	rng       *rand.Rand // nil keeps file order
	order     []int
	pos       int
}

// NewSliceStream batches rows/labels. A non-nil rng reshuffles on every Reset.
func NewSliceStream(rows [][]float64, labels []int, batchSize int, rng *rand.Rand) *SliceStream {
	s := &SliceStream{
		rows:      rows,
		labels:    labels,
		batchSize: batchSize,
		rng:       rng,
		order:     make([]int, len(rows)),
	}
	s.Reset()
	return s
}

// Samples returns the number of samples in the stream.
func (s *SliceStream) Samples() int { return len(s.rows) }

func (s *SliceStream) Reset() {
	for i := range s.order {
		s.order[i] = i
	}
	if s.rng != nil {
		s.rng.Shuffle(len(s.order), func(i, j int) {
			s.order[i], s.order[j] = s.order[j], s.order[i]
		})
	}
	s.pos = 0
}

func (s *SliceStream) Next() (tensor.Batch, bool) {
	if s.pos >= len(s.order) {
		return tensor.Batch{}, false
	}
	end := min(s.pos+s.batchSize, len(s.order))
	idx := s.order[s.pos:end]
	s.pos = end

	cols := len(s.rows[idx[0]])
	images := mat.NewDense(len(idx), cols, nil)
	labels := make([]int, len(idx))
	for k, i := range idx {
		images.SetRow(k, s.rows[i])
		labels[k] = s.labels[i]
	}
	return tensor.Batch{Images: images, Labels: labels}, true
}

func (s *SliceStream) Len() int {
	if s.batchSize <= 0 {
		return 0
	}
	return (len(s.rows) + s.batchSize - 1) / s.batchSize
}

// #endregion slice-stream

// #region boundaries
// FindBoundaries makes one pass over the stream and returns the smallest and
// largest element seen. The stream is rewound afterwards.
func FindBoundaries(s Stream) (lo, hi float64, err error) {
	s.Reset()
	defer s.Reset()
	seen := false
	for {
		b, ok := s.Next()
		if !ok {
			break
		}
		if b.Len() == 0 {
			continue
		}
		data := b.Images.RawMatrix().Data
		bl, bh := floats.Min(data), floats.Max(data)
		if !seen || bl < lo {
			lo = bl
		}
		if !seen || bh > hi {
			hi = bh
		}
		seen = true
	}
	if !seen {
		return 0, 0, &config.ConfigurationError{Field: "bounds", Reason: "training stream is empty"}
	}
	return lo, hi, nil
}

// #endregion boundaries
