package models

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/inferloop/recurrent/pkg/errors"
)

// SimpleParameters holds the weights and biases of the simple recurrent cell.
// Parameters are read-only inputs owned by the caller; the forward and
// backward operations never mutate them.
type SimpleParameters struct {
	Wax *mat.Dense    // input projection, shape (hidden × input)
	Waa *mat.Dense    // recurrent projection, shape (hidden × hidden)
	Wya *mat.Dense    // output projection, shape (output × hidden)
	Ba  *mat.VecDense // hidden bias, length hidden
	By  *mat.VecDense // output bias, length output
}

// HiddenSize returns the hidden dimension n_a.
func (p *SimpleParameters) HiddenSize() int {
	r, _ := p.Wax.Dims()
	return r
}

// InputSize returns the input dimension n_x.
func (p *SimpleParameters) InputSize() int {
	_, c := p.Wax.Dims()
	return c
}

// OutputSize returns the output dimension n_y.
func (p *SimpleParameters) OutputSize() int {
	r, _ := p.Wya.Dims()
	return r
}

// Validate checks that every tensor is present and that the inner dimensions
// agree: Wax and Waa share the hidden row count, Wya's column count equals the
// hidden size, and the biases match their projections.
func (p *SimpleParameters) Validate() error {
	switch {
	case p.Wax == nil:
		return errors.NewMissingParameterError("Wax")
	case p.Waa == nil:
		return errors.NewMissingParameterError("Waa")
	case p.Wya == nil:
		return errors.NewMissingParameterError("Wya")
	case p.Ba == nil:
		return errors.NewMissingParameterError("ba")
	case p.By == nil:
		return errors.NewMissingParameterError("by")
	}

	nA, _ := p.Wax.Dims()
	if r, c := p.Waa.Dims(); r != nA || c != nA {
		return errors.NewShapeError("Waa", nA, nA, r, c)
	}
	nY, c := p.Wya.Dims()
	if c != nA {
		return errors.NewShapeError("Wya", nY, nA, nY, c)
	}
	if p.Ba.Len() != nA {
		return errors.NewShapeError("ba", nA, 1, p.Ba.Len(), 1)
	}
	if p.By.Len() != nY {
		return errors.NewShapeError("by", nY, 1, p.By.Len(), 1)
	}

	return nil
}

// LSTMParameters holds the weights and biases of the LSTM cell. Each gate
// weight matrix multiplies the concatenation of the previous hidden state and
// the current input slice, so all four share the shape (hidden × hidden+input).
type LSTMParameters struct {
	Wf *mat.Dense    // forget gate weights, shape (hidden × hidden+input)
	Wi *mat.Dense    // update gate weights, shape (hidden × hidden+input)
	Wc *mat.Dense    // candidate weights, shape (hidden × hidden+input)
	Wo *mat.Dense    // output gate weights, shape (hidden × hidden+input)
	Wy *mat.Dense    // output projection, shape (output × hidden)
	Bf *mat.VecDense // forget gate bias, length hidden
	Bi *mat.VecDense // update gate bias, length hidden
	Bc *mat.VecDense // candidate bias, length hidden
	Bo *mat.VecDense // output gate bias, length hidden
	By *mat.VecDense // output bias, length output
}

// HiddenSize returns the hidden dimension n_a.
func (p *LSTMParameters) HiddenSize() int {
	r, _ := p.Wf.Dims()
	return r
}

// InputSize returns the input dimension n_x.
func (p *LSTMParameters) InputSize() int {
	r, c := p.Wf.Dims()
	return c - r
}

// OutputSize returns the output dimension n_y.
func (p *LSTMParameters) OutputSize() int {
	r, _ := p.Wy.Dims()
	return r
}

// Validate checks that every tensor is present, that all four gate weight
// matrices share the same (hidden × hidden+input) shape, and that the biases
// and output projection agree with the gate dimensions.
func (p *LSTMParameters) Validate() error {
	weights := []struct {
		name string
		m    *mat.Dense
	}{
		{"Wf", p.Wf}, {"Wi", p.Wi}, {"Wc", p.Wc}, {"Wo", p.Wo}, {"Wy", p.Wy},
	}
	for _, w := range weights {
		if w.m == nil {
			return errors.NewMissingParameterError(w.name)
		}
	}
	biases := []struct {
		name string
		v    *mat.VecDense
	}{
		{"bf", p.Bf}, {"bi", p.Bi}, {"bc", p.Bc}, {"bo", p.Bo}, {"by", p.By},
	}
	for _, b := range biases {
		if b.v == nil {
			return errors.NewMissingParameterError(b.name)
		}
	}

	nA, nConcat := p.Wf.Dims()
	if nConcat <= nA {
		return errors.NewValidationError(errors.CodeShapeMismatch,
			fmt.Sprintf("gate weights must have more columns than rows (hidden+input > hidden), got (%d, %d)", nA, nConcat))
	}
	for _, w := range []struct {
		name string
		m    *mat.Dense
	}{{"Wi", p.Wi}, {"Wc", p.Wc}, {"Wo", p.Wo}} {
		if r, c := w.m.Dims(); r != nA || c != nConcat {
			return errors.NewShapeError(w.name, nA, nConcat, r, c)
		}
	}
	nY, c := p.Wy.Dims()
	if c != nA {
		return errors.NewShapeError("Wy", nY, nA, nY, c)
	}
	for _, b := range []struct {
		name string
		v    *mat.VecDense
		want int
	}{{"bf", p.Bf, nA}, {"bi", p.Bi, nA}, {"bc", p.Bc, nA}, {"bo", p.Bo, nA}, {"by", p.By, nY}} {
		if b.v.Len() != b.want {
			return errors.NewShapeError(b.name, b.want, 1, b.v.Len(), 1)
		}
	}

	return nil
}
