package models

import (
	"gonum.org/v1/gonum/mat"
)

// SimpleStepCache captures the values a single simple-cell backward step needs
// to reconstruct its local derivatives without recomputation. It is produced
// by the cell forward operation and consumed exactly once by the matching
// backward call.
type SimpleStepCache struct {
	ANext  *mat.Dense // hidden state produced at this step, shape (hidden × batch)
	APrev  *mat.Dense // hidden state fed into this step, shape (hidden × batch)
	Xt     *mat.Dense // input slice consumed at this step, shape (input × batch)
	Params *SimpleParameters
}

// SimpleCache is the sequence-level cache: the ordered per-step caches plus
// the full input tensor, which the backward driver uses to recover shapes.
type SimpleCache struct {
	Steps []SimpleStepCache
	Input *Sequence
}

// Len returns the number of cached time steps.
func (c *SimpleCache) Len() int { return len(c.Steps) }

// LSTMStepCache captures a single LSTM step: both next and previous recurrent
// states, the four gate activations, the consumed input slice, and the
// parameter record used.
type LSTMStepCache struct {
	ANext  *mat.Dense // next hidden state, shape (hidden × batch)
	CNext  *mat.Dense // next cell state, shape (hidden × batch)
	APrev  *mat.Dense // previous hidden state, shape (hidden × batch)
	CPrev  *mat.Dense // previous cell state, shape (hidden × batch)
	Ft     *mat.Dense // forget gate activation, in (0,1)
	It     *mat.Dense // update gate activation, in (0,1)
	Cct    *mat.Dense // candidate activation, in (-1,1)
	Ot     *mat.Dense // output gate activation, in (0,1)
	Xt     *mat.Dense // input slice, shape (input × batch)
	Params *LSTMParameters
}

// LSTMCache is the sequence-level LSTM cache.
type LSTMCache struct {
	Steps []LSTMStepCache
	Input *Sequence
}

// Len returns the number of cached time steps.
func (c *LSTMCache) Len() int { return len(c.Steps) }
