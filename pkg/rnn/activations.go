// Package rnn implements forward and backward propagation for two recurrent
// sequence cells: a simple recurrent cell and an LSTM cell. Each cell exposes
// a single-step operation pair (CellForward/CellBackward) and a sequence
// driver pair (Forward/Backward) that threads recurrent state across time and
// accumulates gradients via backpropagation through time.
package rnn

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Sigmoid applies the logistic function 1 / (1 + exp(-z)) elementwise and
// returns a new matrix. Every output entry lies in (0, 1).
func Sigmoid(z mat.Matrix) *mat.Dense {
	r, c := z.Dims()
	out := mat.NewDense(r, c, nil)
	out.Apply(func(_, _ int, v float64) float64 {
		return 1.0 / (1.0 + math.Exp(-v))
	}, z)
	return out
}

// Tanh applies the hyperbolic tangent elementwise and returns a new matrix.
// Every output entry lies in (-1, 1).
func Tanh(z mat.Matrix) *mat.Dense {
	r, c := z.Dims()
	out := mat.NewDense(r, c, nil)
	out.Apply(func(_, _ int, v float64) float64 {
		return math.Tanh(v)
	}, z)
	return out
}

// Softmax normalizes each batch column independently to a probability
// distribution: out[i,j] = exp(z[i,j]) / sum_k exp(z[k,j]). Columns of the
// result sum to 1.
func Softmax(z mat.Matrix) *mat.Dense {
	r, c := z.Dims()
	out := mat.NewDense(r, c, nil)
	for j := 0; j < c; j++ {
		var sum float64
		for i := 0; i < r; i++ {
			e := math.Exp(z.At(i, j))
			out.Set(i, j, e)
			sum += e
		}
		for i := 0; i < r; i++ {
			out.Set(i, j, out.At(i, j)/sum)
		}
	}
	return out
}

// Supporting helpers

// addBias adds b to every batch column of z in place.
func addBias(z *mat.Dense, b *mat.VecDense) {
	r, c := z.Dims()
	for j := 0; j < c; j++ {
		for i := 0; i < r; i++ {
			z.Set(i, j, z.At(i, j)+b.AtVec(i))
		}
	}
}

// rowSums sums m across the batch axis, returning one entry per row.
func rowSums(m *mat.Dense) *mat.VecDense {
	r, c := m.Dims()
	out := mat.NewVecDense(r, nil)
	for i := 0; i < r; i++ {
		var sum float64
		for j := 0; j < c; j++ {
			sum += m.At(i, j)
		}
		out.SetVec(i, sum)
	}
	return out
}
