package models

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/inferloop/recurrent/pkg/errors"
)

// Sequence is a time-ordered batch tensor: an ordered list of time slices,
// each a dense matrix of fixed shape (rows × cols). It plays the role of the
// (n, m, T) tensors threaded through the sequence drivers: rows is the
// feature dimension, cols the batch dimension, and Len() the number of
// time steps.
type Sequence struct {
	rows  int
	cols  int
	steps []*mat.Dense
}

// NewSequence creates a zero-filled sequence of the given shape.
func NewSequence(rows, cols, length int) (*Sequence, error) {
	if rows <= 0 || cols <= 0 {
		return nil, errors.NewValidationError(errors.CodeInvalidDimension,
			fmt.Sprintf("sequence slice shape must be positive, got (%d, %d)", rows, cols))
	}
	if length <= 0 {
		return nil, errors.NewValidationError(errors.CodeEmptySequence,
			"sequence must have at least one time step")
	}

	steps := make([]*mat.Dense, length)
	for t := range steps {
		steps[t] = mat.NewDense(rows, cols, nil)
	}

	return &Sequence{rows: rows, cols: cols, steps: steps}, nil
}

// Rows returns the feature dimension of each time slice.
func (s *Sequence) Rows() int { return s.rows }

// Cols returns the batch dimension of each time slice.
func (s *Sequence) Cols() int { return s.cols }

// Len returns the number of time steps.
func (s *Sequence) Len() int { return len(s.steps) }

// Step returns the time slice at step t.
func (s *Sequence) Step(t int) *mat.Dense {
	return s.steps[t]
}

// SetStep copies m into the slice at step t. The stored slice is a copy so
// later mutation of m cannot alias recorded state across time steps.
func (s *Sequence) SetStep(t int, m *mat.Dense) error {
	if t < 0 || t >= len(s.steps) {
		return errors.NewValidationError(errors.CodeInvalidInput,
			fmt.Sprintf("time step %d out of range [0, %d)", t, len(s.steps)))
	}
	r, c := m.Dims()
	if r != s.rows || c != s.cols {
		return errors.NewShapeError(fmt.Sprintf("time slice %d", t), s.rows, s.cols, r, c)
	}
	s.steps[t].Copy(m)
	return nil
}

// At returns the entry at feature i, batch column j, time step t.
func (s *Sequence) At(i, j, t int) float64 {
	return s.steps[t].At(i, j)
}

// Set writes the entry at feature i, batch column j, time step t.
func (s *Sequence) Set(i, j, t int, v float64) {
	s.steps[t].Set(i, j, v)
}
