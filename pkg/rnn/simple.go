package rnn

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"github.com/inferloop/recurrent/pkg/errors"
	"github.com/inferloop/recurrent/pkg/models"
)

// SimpleRNN implements the simple recurrent cell: a single tanh-gated hidden
// state with a softmax output head. Parameters are validated once at
// construction and treated as read-only afterwards.
type SimpleRNN struct {
	logger *logrus.Logger
	params *models.SimpleParameters
}

// NewSimpleRNN creates a simple recurrent cell over the given parameter set.
func NewSimpleRNN(params *models.SimpleParameters, logger *logrus.Logger) (*SimpleRNN, error) {
	if params == nil {
		return nil, errors.NewValidationError(errors.CodeMissingParameter, "parameter set is required")
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &SimpleRNN{
		logger: logger,
		params: params,
	}, nil
}

// Params returns the parameter set the cell was built over.
func (r *SimpleRNN) Params() *models.SimpleParameters {
	return r.params
}

// CellForward runs a single forward step:
//
//	a_next = tanh(Wax·xt + Waa·a_prev + ba)
//	y_pred = softmax(Wya·a_next + by)
//
// xt has shape (input × batch) and aPrev (hidden × batch). It returns the
// next hidden state, the per-step prediction, and the cache consumed by
// CellBackward.
func (r *SimpleRNN) CellForward(xt, aPrev *mat.Dense) (*mat.Dense, *mat.Dense, *models.SimpleStepCache, error) {
	nA := r.params.HiddenSize()
	nX := r.params.InputSize()
	nY := r.params.OutputSize()

	xr, m := xt.Dims()
	if xr != nX {
		return nil, nil, nil, errors.NewShapeError("xt", nX, m, xr, m)
	}
	if err := checkDims("a_prev", aPrev, nA, m); err != nil {
		return nil, nil, nil, err
	}

	z := mat.NewDense(nA, m, nil)
	z.Mul(r.params.Wax, xt)
	var recur mat.Dense
	recur.Mul(r.params.Waa, aPrev)
	z.Add(z, &recur)
	addBias(z, r.params.Ba)
	aNext := Tanh(z)

	zy := mat.NewDense(nY, m, nil)
	zy.Mul(r.params.Wya, aNext)
	addBias(zy, r.params.By)
	ytPred := Softmax(zy)

	cache := &models.SimpleStepCache{
		ANext:  aNext,
		APrev:  aPrev,
		Xt:     xt,
		Params: r.params,
	}

	return aNext, ytPred, cache, nil
}

// CellBackward runs a single backward step. Given the upstream gradient
// w.r.t. this step's next hidden state and the cache recorded by CellForward,
// it returns gradients w.r.t. the input slice, the previous hidden state, and
// this step's contribution to each weight and bias. The tanh derivative is
// (1 - a_next²); each linear term back-propagates independently through
// matrix-transpose products.
func (r *SimpleRNN) CellBackward(daNext *mat.Dense, cache *models.SimpleStepCache) (*models.SimpleCellGradients, error) {
	if cache == nil || cache.ANext == nil || cache.APrev == nil || cache.Xt == nil || cache.Params == nil {
		return nil, errors.NewValidationError(errors.CodeInvalidInput, "step cache is incomplete")
	}
	nA, m := cache.ANext.Dims()
	if err := checkDims("da_next", daNext, nA, m); err != nil {
		return nil, err
	}

	// dtanh = (1 - a_next²) ⊙ da_next
	dtanh := mat.NewDense(nA, m, nil)
	dtanh.Apply(func(i, j int, v float64) float64 {
		a := cache.ANext.At(i, j)
		return (1 - a*a) * v
	}, daNext)

	var dxt, dWax, daPrev, dWaa mat.Dense
	dxt.Mul(cache.Params.Wax.T(), dtanh)
	dWax.Mul(dtanh, cache.Xt.T())
	daPrev.Mul(cache.Params.Waa.T(), dtanh)
	dWaa.Mul(dtanh, cache.APrev.T())
	dba := rowSums(dtanh)

	return &models.SimpleCellGradients{
		DXt:    &dxt,
		DAPrev: &daPrev,
		DWax:   &dWax,
		DWaa:   &dWaa,
		DBa:    dba,
	}, nil
}

// Forward runs the cell over every time step of x, threading the hidden state
// strictly in increasing time order: step t consumes exactly step t-1's
// output, and step 0 consumes a0. It returns the full hidden-state sequence,
// the full prediction sequence, and the sequence cache consumed by Backward.
func (r *SimpleRNN) Forward(ctx context.Context, x *models.Sequence, a0 *mat.Dense) (*models.Sequence, *models.Sequence, *models.SimpleCache, error) {
	if x == nil || x.Len() == 0 {
		return nil, nil, nil, errors.NewValidationError(errors.CodeEmptySequence, "input sequence is required")
	}
	nA := r.params.HiddenSize()
	nY := r.params.OutputSize()
	m := x.Cols()
	if x.Rows() != r.params.InputSize() {
		return nil, nil, nil, errors.NewShapeError("x", r.params.InputSize(), m, x.Rows(), m)
	}
	if a0 == nil {
		return nil, nil, nil, errors.NewValidationError(errors.CodeInvalidInput, "initial hidden state is required")
	}
	if err := checkDims("a0", a0, nA, m); err != nil {
		return nil, nil, nil, err
	}

	start := time.Now()
	T := x.Len()

	a, err := models.NewSequence(nA, m, T)
	if err != nil {
		return nil, nil, nil, err
	}
	yPred, err := models.NewSequence(nY, m, T)
	if err != nil {
		return nil, nil, nil, err
	}
	steps := make([]models.SimpleStepCache, 0, T)

	aNext := a0
	for t := 0; t < T; t++ {
		select {
		case <-ctx.Done():
			return nil, nil, nil, ctx.Err()
		default:
		}

		next, yt, cache, err := r.CellForward(x.Step(t), aNext)
		if err != nil {
			return nil, nil, nil, errors.WrapError(err, errors.ErrorTypeComputation, errors.CodeForwardFailed,
				fmt.Sprintf("forward step %d failed", t))
		}
		aNext = next

		if err := a.SetStep(t, aNext); err != nil {
			return nil, nil, nil, err
		}
		if err := yPred.SetStep(t, yt); err != nil {
			return nil, nil, nil, err
		}
		steps = append(steps, *cache)
	}

	r.logger.WithFields(logrus.Fields{
		"cell":        "simple",
		"time_steps":  T,
		"batch_size":  m,
		"hidden_size": nA,
		"duration":    time.Since(start),
	}).Debug("Completed sequence forward pass")

	return a, yPred, &models.SimpleCache{Steps: steps, Input: x}, nil
}

// Backward runs backpropagation through time. da holds the upstream gradient
// w.r.t. every time step's hidden state; its length must match the cache
// exactly. Walking time in reverse, the effective upstream gradient at step t
// is da[t] plus the previous iteration's propagated hidden-state gradient,
// since the hidden state at t feeds both the output at t and the cell at t+1.
// Parameter gradients accumulate additively over all steps; the gradient left
// after step 0 becomes the initial-state gradient.
func (r *SimpleRNN) Backward(ctx context.Context, da *models.Sequence, cache *models.SimpleCache) (*models.SimpleGradients, error) {
	if cache == nil || cache.Len() == 0 || cache.Input == nil {
		return nil, errors.NewValidationError(errors.CodeInvalidInput, "sequence cache is required")
	}
	if da == nil {
		return nil, errors.NewValidationError(errors.CodeInvalidInput, "upstream gradient sequence is required")
	}
	if da.Len() != cache.Len() {
		return nil, errors.NewValidationError(errors.CodeLengthMismatch,
			fmt.Sprintf("upstream gradient has %d time steps, cache has %d", da.Len(), cache.Len()))
	}
	nA := r.params.HiddenSize()
	nX := cache.Input.Rows()
	m := cache.Input.Cols()
	if da.Rows() != nA || da.Cols() != m {
		return nil, errors.NewShapeError("da", nA, m, da.Rows(), da.Cols())
	}

	start := time.Now()
	T := cache.Len()

	dx, err := models.NewSequence(nX, m, T)
	if err != nil {
		return nil, err
	}
	dWax := mat.NewDense(nA, nX, nil)
	dWaa := mat.NewDense(nA, nA, nil)
	dba := mat.NewVecDense(nA, nil)
	daPrev := mat.NewDense(nA, m, nil)

	for t := T - 1; t >= 0; t-- {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		// Sum the externally supplied gradient for step t with the hidden
		// gradient propagated back from step t+1.
		daT := mat.NewDense(nA, m, nil)
		daT.Add(da.Step(t), daPrev)

		grads, err := r.CellBackward(daT, &cache.Steps[t])
		if err != nil {
			return nil, errors.WrapError(err, errors.ErrorTypeComputation, errors.CodeBackwardFailed,
				fmt.Sprintf("backward step %d failed", t))
		}

		if err := dx.SetStep(t, grads.DXt); err != nil {
			return nil, err
		}
		dWax.Add(dWax, grads.DWax)
		dWaa.Add(dWaa, grads.DWaa)
		dba.AddVec(dba, grads.DBa)
		daPrev = grads.DAPrev
	}

	r.logger.WithFields(logrus.Fields{
		"cell":        "simple",
		"time_steps":  T,
		"batch_size":  m,
		"hidden_size": nA,
		"duration":    time.Since(start),
	}).Debug("Completed sequence backward pass")

	return &models.SimpleGradients{
		DX:   dx,
		DA0:  daPrev,
		DWax: dWax,
		DWaa: dWaa,
		DBa:  dba,
	}, nil
}

// checkDims verifies that m has exactly the expected shape.
func checkDims(name string, m *mat.Dense, wantRows, wantCols int) error {
	r, c := m.Dims()
	if r != wantRows || c != wantCols {
		return errors.NewShapeError(name, wantRows, wantCols, r, c)
	}
	return nil
}
