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

// LSTM implements the long-short-term-memory cell: four sigmoid/tanh gates
// over the concatenation of the previous hidden state and the current input,
// an additive cell state carried alongside the hidden state, and a softmax
// output head.
type LSTM struct {
	logger *logrus.Logger
	params *models.LSTMParameters
}

// NewLSTM creates an LSTM cell over the given parameter set.
func NewLSTM(params *models.LSTMParameters, logger *logrus.Logger) (*LSTM, error) {
	if params == nil {
		return nil, errors.NewValidationError(errors.CodeMissingParameter, "parameter set is required")
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &LSTM{
		logger: logger,
		params: params,
	}, nil
}

// Params returns the parameter set the cell was built over.
func (l *LSTM) Params() *models.LSTMParameters {
	return l.params
}

// CellForward runs a single forward step:
//
//	ft = sigmoid(Wf·[a_prev; xt] + bf)      forget gate
//	it = sigmoid(Wi·[a_prev; xt] + bi)      update gate
//	cct = tanh(Wc·[a_prev; xt] + bc)        candidate
//	ot = sigmoid(Wo·[a_prev; xt] + bo)      output gate
//	c_next = ft ⊙ c_prev + it ⊙ cct
//	a_next = ot ⊙ tanh(c_next)
//	y_pred = softmax(Wy·a_next + by)
//
// It returns the next hidden state, next cell state, per-step prediction, and
// the cache consumed by CellBackward.
func (l *LSTM) CellForward(xt, aPrev, cPrev *mat.Dense) (*mat.Dense, *mat.Dense, *mat.Dense, *models.LSTMStepCache, error) {
	nA := l.params.HiddenSize()
	nX := l.params.InputSize()
	nY := l.params.OutputSize()

	xr, m := xt.Dims()
	if xr != nX {
		return nil, nil, nil, nil, errors.NewShapeError("xt", nX, m, xr, m)
	}
	if err := checkDims("a_prev", aPrev, nA, m); err != nil {
		return nil, nil, nil, nil, err
	}
	if err := checkDims("c_prev", cPrev, nA, m); err != nil {
		return nil, nil, nil, nil, err
	}

	concat := concatRows(aPrev, xt)

	ft := l.gate(l.params.Wf, l.params.Bf, concat, Sigmoid)
	it := l.gate(l.params.Wi, l.params.Bi, concat, Sigmoid)
	cct := l.gate(l.params.Wc, l.params.Bc, concat, Tanh)
	ot := l.gate(l.params.Wo, l.params.Bo, concat, Sigmoid)

	cNext := mat.NewDense(nA, m, nil)
	cNext.MulElem(ft, cPrev)
	var update mat.Dense
	update.MulElem(it, cct)
	cNext.Add(cNext, &update)

	aNext := mat.NewDense(nA, m, nil)
	aNext.MulElem(ot, Tanh(cNext))

	zy := mat.NewDense(nY, m, nil)
	zy.Mul(l.params.Wy, aNext)
	addBias(zy, l.params.By)
	ytPred := Softmax(zy)

	cache := &models.LSTMStepCache{
		ANext:  aNext,
		CNext:  cNext,
		APrev:  aPrev,
		CPrev:  cPrev,
		Ft:     ft,
		It:     it,
		Cct:    cct,
		Ot:     ot,
		Xt:     xt,
		Params: l.params,
	}

	return aNext, cNext, ytPred, cache, nil
}

// CellBackward runs a single backward step. Given the upstream gradients
// w.r.t. this step's next hidden state and next cell state plus the cache
// recorded by CellForward, it returns gradients w.r.t. the input slice, both
// previous states, and each gate's weights and bias.
//
// The gradient flowing into the cell state combines both upstream paths:
// dc = dc_next + da_next ⊙ ot ⊙ (1 - tanh(c_next)²). Each gate's
// pre-activation gradient then back-propagates through its linear layer over
// the concatenated (a_prev, xt) input; hidden-state and input gradients are
// recovered by splitting each gate weight matrix into its hidden and input
// column blocks and summing the four gates' contributions.
func (l *LSTM) CellBackward(daNext, dcNext *mat.Dense, cache *models.LSTMStepCache) (*models.LSTMCellGradients, error) {
	if cache == nil || cache.ANext == nil || cache.CNext == nil || cache.APrev == nil ||
		cache.CPrev == nil || cache.Ft == nil || cache.It == nil || cache.Cct == nil ||
		cache.Ot == nil || cache.Xt == nil || cache.Params == nil {
		return nil, errors.NewValidationError(errors.CodeInvalidInput, "step cache is incomplete")
	}
	nA, m := cache.ANext.Dims()
	if err := checkDims("da_next", daNext, nA, m); err != nil {
		return nil, err
	}
	if err := checkDims("dc_next", dcNext, nA, m); err != nil {
		return nil, err
	}
	nX, _ := cache.Xt.Dims()

	tanhC := Tanh(cache.CNext)

	// dc = dc_next + da_next ⊙ ot ⊙ (1 - tanh(c_next)²), the total gradient
	// reaching the cell state through both the direct and the hidden path.
	dc := mat.NewDense(nA, m, nil)
	dc.Apply(func(i, j int, v float64) float64 {
		tc := tanhC.At(i, j)
		return v + daNext.At(i, j)*cache.Ot.At(i, j)*(1-tc*tc)
	}, dcNext)

	dOt := mat.NewDense(nA, m, nil)
	dOt.Apply(func(i, j int, v float64) float64 {
		o := cache.Ot.At(i, j)
		return v * tanhC.At(i, j) * o * (1 - o)
	}, daNext)

	dCct := mat.NewDense(nA, m, nil)
	dCct.Apply(func(i, j int, v float64) float64 {
		cc := cache.Cct.At(i, j)
		return v * cache.It.At(i, j) * (1 - cc*cc)
	}, dc)

	dIt := mat.NewDense(nA, m, nil)
	dIt.Apply(func(i, j int, v float64) float64 {
		g := cache.It.At(i, j)
		return v * cache.Cct.At(i, j) * g * (1 - g)
	}, dc)

	dFt := mat.NewDense(nA, m, nil)
	dFt.Apply(func(i, j int, v float64) float64 {
		g := cache.Ft.At(i, j)
		return v * cache.CPrev.At(i, j) * g * (1 - g)
	}, dc)

	dcPrev := mat.NewDense(nA, m, nil)
	dcPrev.MulElem(dc, cache.Ft)

	concat := concatRows(cache.APrev, cache.Xt)

	var dWf, dWi, dWc, dWo mat.Dense
	dWf.Mul(dFt, concat.T())
	dWi.Mul(dIt, concat.T())
	dWc.Mul(dCct, concat.T())
	dWo.Mul(dOt, concat.T())

	dbf := rowSums(dFt)
	dbi := rowSums(dIt)
	dbc := rowSums(dCct)
	dbo := rowSums(dOt)

	// Split each gate weight matrix into hidden columns [:, :nA] and input
	// columns [:, nA:] and sum the four gates' contributions.
	daPrev := mat.NewDense(nA, m, nil)
	dxt := mat.NewDense(nX, m, nil)
	gates := []struct {
		w *mat.Dense
		d *mat.Dense
	}{
		{cache.Params.Wf, dFt},
		{cache.Params.Wi, dIt},
		{cache.Params.Wc, dCct},
		{cache.Params.Wo, dOt},
	}
	for _, g := range gates {
		var contribA, contribX mat.Dense
		contribA.Mul(g.w.Slice(0, nA, 0, nA).T(), g.d)
		contribX.Mul(g.w.Slice(0, nA, nA, nA+nX).T(), g.d)
		daPrev.Add(daPrev, &contribA)
		dxt.Add(dxt, &contribX)
	}

	return &models.LSTMCellGradients{
		DXt:    dxt,
		DAPrev: daPrev,
		DCPrev: dcPrev,
		DWf:    &dWf,
		DWi:    &dWi,
		DWc:    &dWc,
		DWo:    &dWo,
		DBf:    dbf,
		DBi:    dbi,
		DBc:    dbc,
		DBo:    dbo,
	}, nil
}

// Forward runs the cell over every time step of x, threading both recurrent
// states in increasing time order. The cell state starts at zero regardless
// of the supplied initial hidden state. It returns the hidden-state sequence,
// the prediction sequence, the cell-state sequence, and the sequence cache
// consumed by Backward.
func (l *LSTM) Forward(ctx context.Context, x *models.Sequence, a0 *mat.Dense) (*models.Sequence, *models.Sequence, *models.Sequence, *models.LSTMCache, error) {
	if x == nil || x.Len() == 0 {
		return nil, nil, nil, nil, errors.NewValidationError(errors.CodeEmptySequence, "input sequence is required")
	}
	nA := l.params.HiddenSize()
	nY := l.params.OutputSize()
	m := x.Cols()
	if x.Rows() != l.params.InputSize() {
		return nil, nil, nil, nil, errors.NewShapeError("x", l.params.InputSize(), m, x.Rows(), m)
	}
	if a0 == nil {
		return nil, nil, nil, nil, errors.NewValidationError(errors.CodeInvalidInput, "initial hidden state is required")
	}
	if err := checkDims("a0", a0, nA, m); err != nil {
		return nil, nil, nil, nil, err
	}

	start := time.Now()
	T := x.Len()

	a, err := models.NewSequence(nA, m, T)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	yPred, err := models.NewSequence(nY, m, T)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	c, err := models.NewSequence(nA, m, T)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	steps := make([]models.LSTMStepCache, 0, T)

	aNext := a0
	cNext := mat.NewDense(nA, m, nil)
	for t := 0; t < T; t++ {
		select {
		case <-ctx.Done():
			return nil, nil, nil, nil, ctx.Err()
		default:
		}

		nextA, nextC, yt, cache, err := l.CellForward(x.Step(t), aNext, cNext)
		if err != nil {
			return nil, nil, nil, nil, errors.WrapError(err, errors.ErrorTypeComputation, errors.CodeForwardFailed,
				fmt.Sprintf("forward step %d failed", t))
		}
		aNext, cNext = nextA, nextC

		if err := a.SetStep(t, aNext); err != nil {
			return nil, nil, nil, nil, err
		}
		if err := yPred.SetStep(t, yt); err != nil {
			return nil, nil, nil, nil, err
		}
		if err := c.SetStep(t, cNext); err != nil {
			return nil, nil, nil, nil, err
		}
		steps = append(steps, *cache)
	}

	l.logger.WithFields(logrus.Fields{
		"cell":        "lstm",
		"time_steps":  T,
		"batch_size":  m,
		"hidden_size": nA,
		"duration":    time.Since(start),
	}).Debug("Completed sequence forward pass")

	return a, yPred, c, &models.LSTMCache{Steps: steps, Input: x}, nil
}

// Backward runs backpropagation through time. da holds the upstream gradient
// w.r.t. every time step's hidden state; its length must match the cache
// exactly. Two quantities are carried backward across the time boundary: the
// propagated hidden-state gradient and the propagated cell-state gradient.
// The cell-state gradient entering the last step is zero, since no step
// beyond the sequence end contributes one. The hidden-state gradient passed
// to each step is the externally supplied da[t]; the propagated hidden
// gradient of the final (t=0) call becomes the initial-state gradient.
func (l *LSTM) Backward(ctx context.Context, da *models.Sequence, cache *models.LSTMCache) (*models.LSTMGradients, error) {
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
	nA := l.params.HiddenSize()
	nX := cache.Input.Rows()
	m := cache.Input.Cols()
	if da.Rows() != nA || da.Cols() != m {
		return nil, errors.NewShapeError("da", nA, m, da.Rows(), da.Cols())
	}

	start := time.Now()
	T := cache.Len()
	nConcat := nA + nX

	dx, err := models.NewSequence(nX, m, T)
	if err != nil {
		return nil, err
	}
	dWf := mat.NewDense(nA, nConcat, nil)
	dWi := mat.NewDense(nA, nConcat, nil)
	dWc := mat.NewDense(nA, nConcat, nil)
	dWo := mat.NewDense(nA, nConcat, nil)
	dbf := mat.NewVecDense(nA, nil)
	dbi := mat.NewVecDense(nA, nil)
	dbc := mat.NewVecDense(nA, nil)
	dbo := mat.NewVecDense(nA, nil)

	daPrev := mat.NewDense(nA, m, nil)
	dcPrev := mat.NewDense(nA, m, nil)

	for t := T - 1; t >= 0; t-- {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		grads, err := l.CellBackward(da.Step(t), dcPrev, &cache.Steps[t])
		if err != nil {
			return nil, errors.WrapError(err, errors.ErrorTypeComputation, errors.CodeBackwardFailed,
				fmt.Sprintf("backward step %d failed", t))
		}

		if err := dx.SetStep(t, grads.DXt); err != nil {
			return nil, err
		}
		dWf.Add(dWf, grads.DWf)
		dWi.Add(dWi, grads.DWi)
		dWc.Add(dWc, grads.DWc)
		dWo.Add(dWo, grads.DWo)
		dbf.AddVec(dbf, grads.DBf)
		dbi.AddVec(dbi, grads.DBi)
		dbc.AddVec(dbc, grads.DBc)
		dbo.AddVec(dbo, grads.DBo)

		daPrev = grads.DAPrev
		dcPrev = grads.DCPrev
	}

	l.logger.WithFields(logrus.Fields{
		"cell":        "lstm",
		"time_steps":  T,
		"batch_size":  m,
		"hidden_size": nA,
		"duration":    time.Since(start),
	}).Debug("Completed sequence backward pass")

	return &models.LSTMGradients{
		DX:  dx,
		DA0: daPrev,
		DWf: dWf,
		DWi: dWi,
		DWc: dWc,
		DWo: dWo,
		DBf: dbf,
		DBi: dbi,
		DBc: dbc,
		DBo: dbo,
	}, nil
}

// gate computes activate(W·concat + b).
func (l *LSTM) gate(w *mat.Dense, b *mat.VecDense, concat *mat.Dense, activate func(mat.Matrix) *mat.Dense) *mat.Dense {
	nA := l.params.HiddenSize()
	_, m := concat.Dims()
	z := mat.NewDense(nA, m, nil)
	z.Mul(w, concat)
	addBias(z, b)
	return activate(z)
}

// concatRows stacks a on top of x, matching the gate weight column layout:
// hidden rows first, input rows below.
func concatRows(a, x *mat.Dense) *mat.Dense {
	ar, m := a.Dims()
	xr, _ := x.Dims()
	concat := mat.NewDense(ar+xr, m, nil)
	concat.Slice(0, ar, 0, m).(*mat.Dense).Copy(a)
	concat.Slice(ar, ar+xr, 0, m).(*mat.Dense).Copy(x)
	return concat
}
