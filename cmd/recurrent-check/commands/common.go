package commands

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"

	"github.com/inferloop/recurrent/pkg/errors"
	"github.com/inferloop/recurrent/pkg/models"
	"github.com/inferloop/recurrent/pkg/rnn"
)

// ScenarioOptions holds the flags shared by every subcommand. The defaults
// reproduce the standard diagnostic scenario: n_x=3, n_a=5, n_y=2, m=10,
// with T=4 for the simple cell and T=7 for the LSTM.
type ScenarioOptions struct {
	Cell       string
	InputSize  int
	HiddenSize int
	OutputSize int
	BatchSize  int
	TimeSteps  int
	Seed       int64
}

func addScenarioFlags(cmd *cobra.Command, opts *ScenarioOptions) {
	cmd.Flags().StringVarP(&opts.Cell, "cell", "c", "simple", "Cell type (simple, lstm)")
	cmd.Flags().IntVar(&opts.InputSize, "input-size", 3, "Input dimension per time step")
	cmd.Flags().IntVar(&opts.HiddenSize, "hidden-size", 5, "Hidden state dimension")
	cmd.Flags().IntVar(&opts.OutputSize, "output-size", 2, "Output dimension per time step")
	cmd.Flags().IntVar(&opts.BatchSize, "batch-size", 10, "Number of sequences per batch")
	cmd.Flags().IntVar(&opts.TimeSteps, "time-steps", 0, "Sequence length (default 4 for simple, 7 for lstm)")
	cmd.Flags().Int64Var(&opts.Seed, "seed", 1, "Random seed for parameters and inputs")
}

// config resolves the options into an rnn.Config, filling the cell-specific
// default sequence length when none was given.
func (o *ScenarioOptions) config() (*rnn.Config, error) {
	cell := strings.ToLower(o.Cell)
	if cell != "simple" && cell != "lstm" {
		return nil, errors.NewValidationError(errors.CodeInvalidInput,
			fmt.Sprintf("unknown cell type %q (expected simple or lstm)", o.Cell))
	}
	o.Cell = cell
	steps := o.TimeSteps
	if steps == 0 {
		steps = 4
		if cell == "lstm" {
			steps = 7
		}
	}
	cfg := &rnn.Config{
		InputSize:  o.InputSize,
		HiddenSize: o.HiddenSize,
		OutputSize: o.OutputSize,
		BatchSize:  o.BatchSize,
		TimeSteps:  steps,
		Seed:       o.Seed,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// buildInputs draws the input sequence and initial hidden state from offsets
// of the scenario seed so each tensor gets an independent stream.
func buildInputs(cfg *rnn.Config) (*models.Sequence, *mat.Dense, error) {
	x, err := rnn.NewRandomSequence(cfg.InputSize, cfg.BatchSize, cfg.TimeSteps, cfg.Seed+1)
	if err != nil {
		return nil, nil, err
	}
	a0, err := rnn.NewRandomState(cfg.HiddenSize, cfg.BatchSize, cfg.Seed+2)
	if err != nil {
		return nil, nil, err
	}
	return x, a0, nil
}

func newLogger(verbose bool) *logrus.Logger {
	logger := logrus.New()
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	return logger
}

func printSeqShape(name string, s *models.Sequence) {
	fmt.Printf("%s.shape = (%d, %d, %d)\n", name, s.Rows(), s.Cols(), s.Len())
}

func printMatShape(name string, m *mat.Dense) {
	r, c := m.Dims()
	fmt.Printf("%s.shape = (%d, %d)\n", name, r, c)
}

// printSeqRow prints one (feature, batch) trace across all time steps.
func printSeqRow(name string, s *models.Sequence, i, j int) {
	vals := make([]string, s.Len())
	for t := 0; t < s.Len(); t++ {
		vals[t] = fmt.Sprintf("%.8f", s.At(i, j, t))
	}
	fmt.Printf("%s[%d][%d] = [%s]\n", name, i, j, strings.Join(vals, " "))
}

func printMatRow(name string, m *mat.Dense, i int) {
	_, c := m.Dims()
	vals := make([]string, c)
	for j := 0; j < c; j++ {
		vals[j] = fmt.Sprintf("%.8f", m.At(i, j))
	}
	fmt.Printf("%s[%d] = [%s]\n", name, i, strings.Join(vals, " "))
}

func printVecEntry(name string, v *mat.VecDense, i int) {
	fmt.Printf("%s[%d] = %.8f\n", name, i, v.AtVec(i))
}
