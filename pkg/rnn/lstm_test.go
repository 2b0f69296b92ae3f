package rnn

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	apperrors "github.com/inferloop/recurrent/pkg/errors"
	"github.com/inferloop/recurrent/pkg/models"
)

func lstmTestConfig() *Config {
	return &Config{
		InputSize:  3,
		HiddenSize: 5,
		OutputSize: 2,
		BatchSize:  10,
		TimeSteps:  7,
		Seed:       1,
	}
}

func newLSTMFixture(t *testing.T, cfg *Config) (*LSTM, *models.Sequence, *mat.Dense) {
	t.Helper()
	params, err := NewLSTMParameters(cfg)
	require.NoError(t, err)
	cell, err := NewLSTM(params, logrus.New())
	require.NoError(t, err)
	x, err := NewRandomSequence(cfg.InputSize, cfg.BatchSize, cfg.TimeSteps, cfg.Seed+1)
	require.NoError(t, err)
	a0, err := NewRandomState(cfg.HiddenSize, cfg.BatchSize, cfg.Seed+2)
	require.NoError(t, err)
	return cell, x, a0
}

func TestNewLSTM(t *testing.T) {
	params, err := NewLSTMParameters(lstmTestConfig())
	require.NoError(t, err)

	cell, err := NewLSTM(params, nil)
	require.NoError(t, err)
	assert.NotNil(t, cell)
	assert.Equal(t, params, cell.Params())

	_, err = NewLSTM(nil, nil)
	require.Error(t, err)

	params.Wc = nil
	_, err = NewLSTM(params, nil)
	require.Error(t, err)
	var appErr *apperrors.AppError
	require.True(t, stderrors.As(err, &appErr))
	assert.Equal(t, apperrors.CodeMissingParameter, appErr.Code)
}

func TestLSTMCellForwardFormula(t *testing.T) {
	// The recorded gate activations must reconstruct both next states:
	// c_next = ft ⊙ c_prev + it ⊙ cct and a_next = ot ⊙ tanh(c_next).
	cfg := lstmTestConfig()
	cell, x, a0 := newLSTMFixture(t, cfg)
	c0, err := NewRandomState(cfg.HiddenSize, cfg.BatchSize, cfg.Seed+3)
	require.NoError(t, err)

	aNext, cNext, ytPred, cache, err := cell.CellForward(x.Step(0), a0, c0)
	require.NoError(t, err)

	wantC := mat.NewDense(cfg.HiddenSize, cfg.BatchSize, nil)
	wantC.MulElem(cache.Ft, c0)
	var update mat.Dense
	update.MulElem(cache.It, cache.Cct)
	wantC.Add(wantC, &update)
	require.True(t, mat.Equal(wantC, cNext))

	wantA := mat.NewDense(cfg.HiddenSize, cfg.BatchSize, nil)
	wantA.MulElem(cache.Ot, Tanh(cNext))
	require.True(t, mat.Equal(wantA, aNext))

	zy := mat.NewDense(cfg.OutputSize, cfg.BatchSize, nil)
	zy.Mul(cell.Params().Wy, aNext)
	addBias(zy, cell.Params().By)
	require.True(t, mat.Equal(Softmax(zy), ytPred))

	// Gate equations against the concatenated (a_prev, xt) input
	concat := concatRows(a0, x.Step(0))
	wantFt := cell.gate(cell.Params().Wf, cell.Params().Bf, concat, Sigmoid)
	require.True(t, mat.Equal(wantFt, cache.Ft))
	wantCct := cell.gate(cell.Params().Wc, cell.Params().Bc, concat, Tanh)
	require.True(t, mat.Equal(wantCct, cache.Cct))
}

func TestLSTMCellForwardGuarantees(t *testing.T) {
	cfg := lstmTestConfig()
	cell, x, a0 := newLSTMFixture(t, cfg)
	c0, err := NewRandomState(cfg.HiddenSize, cfg.BatchSize, cfg.Seed+3)
	require.NoError(t, err)

	aNext, _, ytPred, cache, err := cell.CellForward(x.Step(0), a0, c0)
	require.NoError(t, err)

	for i := 0; i < cfg.HiddenSize; i++ {
		for j := 0; j < cfg.BatchSize; j++ {
			for _, gate := range []*mat.Dense{cache.Ft, cache.It, cache.Ot} {
				v := gate.At(i, j)
				assert.Greater(t, v, 0.0)
				assert.Less(t, v, 1.0)
			}
			assert.Greater(t, cache.Cct.At(i, j), -1.0)
			assert.Less(t, cache.Cct.At(i, j), 1.0)
			assert.Greater(t, aNext.At(i, j), -1.0)
			assert.Less(t, aNext.At(i, j), 1.0)
		}
	}

	for j := 0; j < cfg.BatchSize; j++ {
		var sum float64
		for i := 0; i < cfg.OutputSize; i++ {
			sum += ytPred.At(i, j)
		}
		assert.InDelta(t, 1.0, sum, 1e-12)
	}
}

func TestLSTMCellForwardShapeMismatch(t *testing.T) {
	cfg := lstmTestConfig()
	cell, x, a0 := newLSTMFixture(t, cfg)

	badC := mat.NewDense(cfg.HiddenSize+1, cfg.BatchSize, nil)
	_, _, _, _, err := cell.CellForward(x.Step(0), a0, badC)
	require.Error(t, err)
	var appErr *apperrors.AppError
	require.True(t, stderrors.As(err, &appErr))
	assert.Equal(t, apperrors.CodeShapeMismatch, appErr.Code)
}

func TestLSTMForwardShapeInvariants(t *testing.T) {
	cfg := lstmTestConfig()
	cell, x, a0 := newLSTMFixture(t, cfg)

	a, yPred, c, cache, err := cell.Forward(context.Background(), x, a0)
	require.NoError(t, err)

	for _, seq := range []*models.Sequence{a, c} {
		assert.Equal(t, cfg.HiddenSize, seq.Rows())
		assert.Equal(t, cfg.BatchSize, seq.Cols())
		assert.Equal(t, cfg.TimeSteps, seq.Len())
	}
	assert.Equal(t, cfg.OutputSize, yPred.Rows())
	assert.Equal(t, cfg.BatchSize, yPred.Cols())
	assert.Equal(t, cfg.TimeSteps, yPred.Len())
	require.Equal(t, cfg.TimeSteps, cache.Len())
}

func TestLSTMForwardZeroInitialCellState(t *testing.T) {
	// The cell state always starts at zero, whatever the caller supplies as
	// the initial hidden state.
	cfg := lstmTestConfig()
	cell, x, a0 := newLSTMFixture(t, cfg)

	_, _, _, cache, err := cell.Forward(context.Background(), x, a0)
	require.NoError(t, err)

	zero := mat.NewDense(cfg.HiddenSize, cfg.BatchSize, nil)
	require.True(t, mat.Equal(zero, cache.Steps[0].CPrev))
	assert.True(t, mat.Equal(a0, cache.Steps[0].APrev))

	// And both states thread across the time boundary.
	for ts := 1; ts < cfg.TimeSteps; ts++ {
		require.True(t, mat.Equal(cache.Steps[ts-1].ANext, cache.Steps[ts].APrev))
		require.True(t, mat.Equal(cache.Steps[ts-1].CNext, cache.Steps[ts].CPrev))
	}
}

func TestLSTMCellBackwardNumerical(t *testing.T) {
	// Scalar loss: upstream-weighted sums of both next states. Every gate
	// weight, gate bias, input, and previous-state gradient must match
	// central differences.
	cfg := &Config{InputSize: 3, HiddenSize: 4, OutputSize: 2, BatchSize: 2, TimeSteps: 1, Seed: 17}
	cell, x, a0 := newLSTMFixture(t, cfg)
	xt := x.Step(0)
	c0, err := NewRandomState(cfg.HiddenSize, cfg.BatchSize, cfg.Seed+3)
	require.NoError(t, err)

	daNext, err := NewRandomState(cfg.HiddenSize, cfg.BatchSize, cfg.Seed+4)
	require.NoError(t, err)
	dcNext, err := NewRandomState(cfg.HiddenSize, cfg.BatchSize, cfg.Seed+5)
	require.NoError(t, err)

	_, _, _, cache, err := cell.CellForward(xt, a0, c0)
	require.NoError(t, err)
	grads, err := cell.CellBackward(daNext, dcNext, cache)
	require.NoError(t, err)

	loss := func() float64 {
		aNext, cNext, _, _, err := cell.CellForward(xt, a0, c0)
		require.NoError(t, err)
		return weightedSum(aNext, daNext) + weightedSum(cNext, dcNext)
	}

	p := cell.Params()
	checkDenseGrad(t, "dWf", loss, p.Wf, grads.DWf)
	checkDenseGrad(t, "dWi", loss, p.Wi, grads.DWi)
	checkDenseGrad(t, "dWc", loss, p.Wc, grads.DWc)
	checkDenseGrad(t, "dWo", loss, p.Wo, grads.DWo)
	checkVecGrad(t, "dbf", loss, p.Bf, grads.DBf)
	checkVecGrad(t, "dbi", loss, p.Bi, grads.DBi)
	checkVecGrad(t, "dbc", loss, p.Bc, grads.DBc)
	checkVecGrad(t, "dbo", loss, p.Bo, grads.DBo)
	checkDenseGrad(t, "dxt", loss, xt, grads.DXt)
	checkDenseGrad(t, "da_prev", loss, a0, grads.DAPrev)
	checkDenseGrad(t, "dc_prev", loss, c0, grads.DCPrev)
}

func TestLSTMSequenceSingleStepNumerical(t *testing.T) {
	// With one time step the driver's gradient is the full gradient of the
	// scalar loss sum(a), so it must match central differences end to end.
	cfg := &Config{InputSize: 3, HiddenSize: 4, OutputSize: 2, BatchSize: 2, TimeSteps: 1, Seed: 19}
	cell, x, a0 := newLSTMFixture(t, cfg)
	ctx := context.Background()

	da := onesSequence(t, cfg.HiddenSize, cfg.BatchSize, 1)

	_, _, _, cache, err := cell.Forward(ctx, x, a0)
	require.NoError(t, err)
	grads, err := cell.Backward(ctx, da, cache)
	require.NoError(t, err)

	loss := func() float64 {
		a, _, _, _, err := cell.Forward(ctx, x, a0)
		require.NoError(t, err)
		return sumSequence(a)
	}

	p := cell.Params()
	checkDenseGrad(t, "dWf", loss, p.Wf, grads.DWf)
	checkDenseGrad(t, "dWi", loss, p.Wi, grads.DWi)
	checkDenseGrad(t, "dWc", loss, p.Wc, grads.DWc)
	checkDenseGrad(t, "dWo", loss, p.Wo, grads.DWo)
	checkVecGrad(t, "dbf", loss, p.Bf, grads.DBf)
	checkVecGrad(t, "dbi", loss, p.Bi, grads.DBi)
	checkVecGrad(t, "dbc", loss, p.Bc, grads.DBc)
	checkVecGrad(t, "dbo", loss, p.Bo, grads.DBo)
	checkDenseGrad(t, "da0", loss, a0, grads.DA0)
	checkSeqGrad(t, "dx", loss, x, grads.DX)
}

func TestLSTMBackwardAccumulation(t *testing.T) {
	// The sequence result must equal the sum of independent per-step cell
	// backward calls with the cell-state gradient threaded by hand, starting
	// from zero at the last step.
	cfg := lstmTestConfig()
	cell, x, a0 := newLSTMFixture(t, cfg)
	ctx := context.Background()

	da, err := NewRandomSequence(cfg.HiddenSize, cfg.BatchSize, cfg.TimeSteps, cfg.Seed+4)
	require.NoError(t, err)

	_, _, _, cache, err := cell.Forward(ctx, x, a0)
	require.NoError(t, err)
	grads, err := cell.Backward(ctx, da, cache)
	require.NoError(t, err)

	nConcat := cfg.HiddenSize + cfg.InputSize
	dWf := mat.NewDense(cfg.HiddenSize, nConcat, nil)
	dWi := mat.NewDense(cfg.HiddenSize, nConcat, nil)
	dWc := mat.NewDense(cfg.HiddenSize, nConcat, nil)
	dWo := mat.NewDense(cfg.HiddenSize, nConcat, nil)
	dbf := mat.NewVecDense(cfg.HiddenSize, nil)
	dbi := mat.NewVecDense(cfg.HiddenSize, nil)
	dbc := mat.NewVecDense(cfg.HiddenSize, nil)
	dbo := mat.NewVecDense(cfg.HiddenSize, nil)
	daPrev := mat.NewDense(cfg.HiddenSize, cfg.BatchSize, nil)
	dcPrev := mat.NewDense(cfg.HiddenSize, cfg.BatchSize, nil)

	for ts := cfg.TimeSteps - 1; ts >= 0; ts-- {
		step, err := cell.CellBackward(da.Step(ts), dcPrev, &cache.Steps[ts])
		require.NoError(t, err)

		assert.True(t, mat.EqualApprox(step.DXt, grads.DX.Step(ts), 1e-12))
		dWf.Add(dWf, step.DWf)
		dWi.Add(dWi, step.DWi)
		dWc.Add(dWc, step.DWc)
		dWo.Add(dWo, step.DWo)
		dbf.AddVec(dbf, step.DBf)
		dbi.AddVec(dbi, step.DBi)
		dbc.AddVec(dbc, step.DBc)
		dbo.AddVec(dbo, step.DBo)
		daPrev = step.DAPrev
		dcPrev = step.DCPrev
	}

	assert.True(t, mat.EqualApprox(dWf, grads.DWf, 1e-12))
	assert.True(t, mat.EqualApprox(dWi, grads.DWi, 1e-12))
	assert.True(t, mat.EqualApprox(dWc, grads.DWc, 1e-12))
	assert.True(t, mat.EqualApprox(dWo, grads.DWo, 1e-12))
	assert.True(t, mat.EqualApprox(dbf, grads.DBf, 1e-12))
	assert.True(t, mat.EqualApprox(dbi, grads.DBi, 1e-12))
	assert.True(t, mat.EqualApprox(dbc, grads.DBc, 1e-12))
	assert.True(t, mat.EqualApprox(dbo, grads.DBo, 1e-12))
	assert.True(t, mat.EqualApprox(daPrev, grads.DA0, 1e-12))
}

func TestLSTMBackwardLengthMismatch(t *testing.T) {
	cfg := lstmTestConfig()
	cell, x, a0 := newLSTMFixture(t, cfg)
	ctx := context.Background()

	_, _, _, cache, err := cell.Forward(ctx, x, a0)
	require.NoError(t, err)

	short, err := NewRandomSequence(cfg.HiddenSize, cfg.BatchSize, cfg.TimeSteps-3, cfg.Seed)
	require.NoError(t, err)

	_, err = cell.Backward(ctx, short, cache)
	require.Error(t, err)
	var appErr *apperrors.AppError
	require.True(t, stderrors.As(err, &appErr))
	assert.Equal(t, apperrors.CodeLengthMismatch, appErr.Code)
}

func TestLSTMForwardContextCancelled(t *testing.T) {
	cell, x, a0 := newLSTMFixture(t, lstmTestConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, _, _, err := cell.Forward(ctx, x, a0)
	require.ErrorIs(t, err, context.Canceled)
}
