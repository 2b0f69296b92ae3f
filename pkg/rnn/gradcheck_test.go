package rnn

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/inferloop/recurrent/pkg/models"
)

// Central-difference gradient checking shared by the simple and LSTM tests.

const (
	gradEps = 1e-6
	gradTol = 1e-5
)

// centralDiff estimates df/dv at v0 by evaluating f at v0±eps and restoring
// v0 afterwards.
func centralDiff(f func() float64, set func(v float64), v0 float64) float64 {
	set(v0 + gradEps)
	plus := f()
	set(v0 - gradEps)
	minus := f()
	set(v0)
	return (plus - minus) / (2 * gradEps)
}

// checkGrad compares a numerical and an analytic gradient entry within
// gradTol, relative to the gradient magnitude.
func checkGrad(t *testing.T, name string, numerical, analytic float64) {
	t.Helper()
	diff := math.Abs(numerical - analytic)
	scale := math.Max(1.0, math.Abs(analytic))
	require.LessOrEqualf(t, diff/scale, gradTol,
		"%s: numerical %v vs analytic %v", name, numerical, analytic)
}

// checkDenseGrad runs centralDiff over every entry of param against the
// matching entry of analytic.
func checkDenseGrad(t *testing.T, name string, loss func() float64, param, analytic *mat.Dense) {
	t.Helper()
	r, c := param.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			i, j := i, j
			num := centralDiff(loss, func(v float64) { param.Set(i, j, v) }, param.At(i, j))
			checkGrad(t, name, num, analytic.At(i, j))
		}
	}
}

// checkVecGrad runs centralDiff over every entry of param against analytic.
func checkVecGrad(t *testing.T, name string, loss func() float64, param, analytic *mat.VecDense) {
	t.Helper()
	for i := 0; i < param.Len(); i++ {
		i := i
		num := centralDiff(loss, func(v float64) { param.SetVec(i, v) }, param.AtVec(i))
		checkGrad(t, name, num, analytic.AtVec(i))
	}
}

// checkSeqGrad runs centralDiff over every entry of seq against analytic.
func checkSeqGrad(t *testing.T, name string, loss func() float64, seq, analytic *models.Sequence) {
	t.Helper()
	for ts := 0; ts < seq.Len(); ts++ {
		for i := 0; i < seq.Rows(); i++ {
			for j := 0; j < seq.Cols(); j++ {
				i, j, ts := i, j, ts
				num := centralDiff(loss, func(v float64) { seq.Set(i, j, ts, v) }, seq.At(i, j, ts))
				checkGrad(t, name, num, analytic.At(i, j, ts))
			}
		}
	}
}

// weightedSum returns sum(m ⊙ w).
func weightedSum(m, w *mat.Dense) float64 {
	r, c := m.Dims()
	var sum float64
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			sum += m.At(i, j) * w.At(i, j)
		}
	}
	return sum
}

// onesDense builds an all-ones matrix.
func onesDense(r, c int) *mat.Dense {
	out := mat.NewDense(r, c, nil)
	out.Apply(func(_, _ int, _ float64) float64 { return 1.0 }, out)
	return out
}

// onesSequence builds an all-ones sequence.
func onesSequence(t *testing.T, rows, cols, length int) *models.Sequence {
	t.Helper()
	seq, err := models.NewSequence(rows, cols, length)
	require.NoError(t, err)
	for ts := 0; ts < length; ts++ {
		require.NoError(t, seq.SetStep(ts, onesDense(rows, cols)))
	}
	return seq
}
