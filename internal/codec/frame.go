package codec

import (
	"encoding/binary"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// #region frame
// A frame is one little-endian float32 matrix: rows uint32, cols uint32, then
// rows·cols values in row-major order. Payloads carry one or more frames back
// to back.
const frameHeader = 8

// EncodeFrames serializes matrices into one payload.
func EncodeFrames(ms ...*mat.Dense) []byte {
	size := 0
	for _, m := range ms {
		r, c := m.Dims()
		size += frameHeader + 4*r*c
	}
	buf := make([]byte, 0, size)
	for _, m := range ms {
		r, c := m.Dims()
		buf = binary.LittleEndian.AppendUint32(buf, uint32(r))
		buf = binary.LittleEndian.AppendUint32(buf, uint32(c))
		for i := 0; i < r; i++ {
			for _, v := range m.RawRowView(i) {
				buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(float32(v)))
			}
		}
	}
	return buf
}

// DecodeFrames parses a payload produced by EncodeFrames.
func DecodeFrames(b []byte) ([]*mat.Dense, error) {
	var out []*mat.Dense
	for len(b) > 0 {
		if len(b) < frameHeader {
			return nil, fmt.Errorf("frame %d: truncated header (%d bytes)", len(out), len(b))
		}
		r := int(binary.LittleEndian.Uint32(b))
		c := int(binary.LittleEndian.Uint32(b[4:]))
		b = b[frameHeader:]
		if r == 0 || c == 0 {
			return nil, fmt.Errorf("frame %d: empty %dx%d matrix", len(out), r, c)
		}
		n := r * c
		if len(b) < 4*n {
			return nil, fmt.Errorf("frame %d: want %d values, have %d bytes", len(out), n, len(b))
		}
		data := make([]float64, n)
		for i := range data {
			data[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:])))
		}
		out = append(out, mat.NewDense(r, c, data))
		b = b[4*n:]
	}
	return out, nil
}

// #endregion frame
