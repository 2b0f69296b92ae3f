package models

import (
	"gonum.org/v1/gonum/mat"
)

// SimpleCellGradients is the immutable result of one simple-cell backward
// step. The sequence driver owns accumulation across time; cell backward has
// no side effects.
type SimpleCellGradients struct {
	DXt    *mat.Dense    // gradient w.r.t. this step's input slice, shape (input × batch)
	DAPrev *mat.Dense    // gradient w.r.t. the previous hidden state, shape (hidden × batch)
	DWax   *mat.Dense    // contribution to the input projection gradient
	DWaa   *mat.Dense    // contribution to the recurrent projection gradient
	DBa    *mat.VecDense // contribution to the hidden bias gradient
}

// SimpleGradients is the accumulated result of simple-cell backpropagation
// through time. Parameter gradients are summed over all steps; input
// gradients are written per step.
type SimpleGradients struct {
	DX   *Sequence     // gradient w.r.t. the full input tensor
	DA0  *mat.Dense    // gradient w.r.t. the initial hidden state
	DWax *mat.Dense    // gradient w.r.t. the input projection
	DWaa *mat.Dense    // gradient w.r.t. the recurrent projection
	DBa  *mat.VecDense // gradient w.r.t. the hidden bias
}

// LSTMCellGradients is the immutable result of one LSTM backward step.
type LSTMCellGradients struct {
	DXt    *mat.Dense // gradient w.r.t. this step's input slice, shape (input × batch)
	DAPrev *mat.Dense // gradient w.r.t. the previous hidden state, shape (hidden × batch)
	DCPrev *mat.Dense // gradient w.r.t. the previous cell state, shape (hidden × batch)

	DWf *mat.Dense // forget gate weight gradient, shape (hidden × hidden+input)
	DWi *mat.Dense // update gate weight gradient
	DWc *mat.Dense // candidate weight gradient
	DWo *mat.Dense // output gate weight gradient

	DBf *mat.VecDense // forget gate bias gradient
	DBi *mat.VecDense // update gate bias gradient
	DBc *mat.VecDense // candidate bias gradient
	DBo *mat.VecDense // output gate bias gradient
}

// LSTMGradients is the accumulated result of LSTM backpropagation through
// time.
type LSTMGradients struct {
	DX  *Sequence  // gradient w.r.t. the full input tensor
	DA0 *mat.Dense // gradient w.r.t. the initial hidden state

	DWf *mat.Dense
	DWi *mat.Dense
	DWc *mat.Dense
	DWo *mat.Dense

	DBf *mat.VecDense
	DBi *mat.VecDense
	DBc *mat.VecDense
	DBo *mat.VecDense
}
