package rnn

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/inferloop/recurrent/pkg/errors"
	"github.com/inferloop/recurrent/pkg/models"
)

// Config describes the network dimensions used by the deterministic parameter
// and input builders. The builders exist for reproducible scenarios: golden
// regression tests, gradient checks, and the self-check CLI all draw their
// tensors from a fixed seed.
type Config struct {
	InputSize  int   `json:"input_size"`  // Input dimension n_x
	HiddenSize int   `json:"hidden_size"` // Hidden dimension n_a
	OutputSize int   `json:"output_size"` // Output dimension n_y
	BatchSize  int   `json:"batch_size"`  // Batch dimension m
	TimeSteps  int   `json:"time_steps"`  // Sequence length T
	Seed       int64 `json:"seed"`        // Random seed
}

// Validate checks that all dimensions are positive.
func (c *Config) Validate() error {
	dims := []struct {
		name string
		v    int
	}{
		{"input_size", c.InputSize},
		{"hidden_size", c.HiddenSize},
		{"output_size", c.OutputSize},
		{"batch_size", c.BatchSize},
		{"time_steps", c.TimeSteps},
	}
	for _, d := range dims {
		if d.v <= 0 {
			return errors.NewValidationError(errors.CodeInvalidDimension,
				fmt.Sprintf("%s must be positive, got %d", d.name, d.v))
		}
	}
	return nil
}

// NewSimpleParameters builds a simple-cell parameter set with Gaussian
// entries drawn from the config seed. Identical configs yield identical
// parameters.
func NewSimpleParameters(cfg *Config) (*models.SimpleParameters, error) {
	if cfg == nil {
		return nil, errors.NewValidationError(errors.CodeInvalidInput, "config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	randSource := rand.New(rand.NewSource(cfg.Seed))
	params := &models.SimpleParameters{
		Wax: randomDense(cfg.HiddenSize, cfg.InputSize, randSource),
		Waa: randomDense(cfg.HiddenSize, cfg.HiddenSize, randSource),
		Wya: randomDense(cfg.OutputSize, cfg.HiddenSize, randSource),
		Ba:  randomVec(cfg.HiddenSize, randSource),
		By:  randomVec(cfg.OutputSize, randSource),
	}
	return params, nil
}

// NewLSTMParameters builds an LSTM parameter set with Gaussian entries drawn
// from the config seed.
func NewLSTMParameters(cfg *Config) (*models.LSTMParameters, error) {
	if cfg == nil {
		return nil, errors.NewValidationError(errors.CodeInvalidInput, "config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	randSource := rand.New(rand.NewSource(cfg.Seed))
	nConcat := cfg.HiddenSize + cfg.InputSize
	params := &models.LSTMParameters{
		Wf: randomDense(cfg.HiddenSize, nConcat, randSource),
		Bf: randomVec(cfg.HiddenSize, randSource),
		Wi: randomDense(cfg.HiddenSize, nConcat, randSource),
		Bi: randomVec(cfg.HiddenSize, randSource),
		Wc: randomDense(cfg.HiddenSize, nConcat, randSource),
		Bc: randomVec(cfg.HiddenSize, randSource),
		Wo: randomDense(cfg.HiddenSize, nConcat, randSource),
		Bo: randomVec(cfg.HiddenSize, randSource),
		Wy: randomDense(cfg.OutputSize, cfg.HiddenSize, randSource),
		By: randomVec(cfg.OutputSize, randSource),
	}
	return params, nil
}

// NewRandomSequence builds a sequence of the given shape with Gaussian
// entries drawn from seed.
func NewRandomSequence(rows, cols, length int, seed int64) (*models.Sequence, error) {
	seq, err := models.NewSequence(rows, cols, length)
	if err != nil {
		return nil, err
	}
	randSource := rand.New(rand.NewSource(seed))
	for t := 0; t < length; t++ {
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				seq.Set(i, j, t, randSource.NormFloat64())
			}
		}
	}
	return seq, nil
}

// NewRandomState builds a (rows × cols) state matrix with Gaussian entries
// drawn from seed, for use as an initial hidden state or upstream gradient.
func NewRandomState(rows, cols int, seed int64) (*mat.Dense, error) {
	if rows <= 0 || cols <= 0 {
		return nil, errors.NewValidationError(errors.CodeInvalidDimension,
			fmt.Sprintf("state shape must be positive, got (%d, %d)", rows, cols))
	}
	randSource := rand.New(rand.NewSource(seed))
	return randomDense(rows, cols, randSource), nil
}

func randomDense(rows, cols int, randSource *rand.Rand) *mat.Dense {
	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = randSource.NormFloat64()
	}
	return mat.NewDense(rows, cols, data)
}

func randomVec(n int, randSource *rand.Rand) *mat.VecDense {
	data := make([]float64, n)
	for i := range data {
		data[i] = randSource.NormFloat64()
	}
	return mat.NewVecDense(n, data)
}
