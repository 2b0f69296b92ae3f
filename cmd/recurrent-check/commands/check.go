package commands

import (
	"context"
	"fmt"
	"math"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"

	"github.com/inferloop/recurrent/pkg/errors"
	"github.com/inferloop/recurrent/pkg/models"
	"github.com/inferloop/recurrent/pkg/rnn"
)

// CheckOptions holds gradient-check specific flags on top of the scenario.
type CheckOptions struct {
	ScenarioOptions
	Epsilon   float64
	Tolerance float64
}

// NewCheckCmd creates the check command.
func NewCheckCmd() *cobra.Command {
	opts := &CheckOptions{}

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify analytic gradients against numerical differentiation",
		Long: `Runs backpropagation through time on a seeded scenario and compares every
analytic parameter and input gradient against a central-difference estimate.
The loss is the sum of all hidden-state entries over the sequence.

The LSTM check always runs on a single time step, where the sequence gradient
is exact; multi-step LSTM hidden gradients deliberately exclude cross-step
hidden chaining and would not match a numerical estimate.`,
		Example: `  # Check the simple cell over the default 4-step scenario
  recurrent-check check --cell simple

  # Check the LSTM with a tighter tolerance
  recurrent-check check --cell lstm --tolerance 1e-6`,
		RunE: func(cmd *cobra.Command, args []string) error {
			verbose, _ := cmd.Flags().GetBool("verbose")
			return runCheck(cmd.Context(), opts, verbose)
		},
	}

	addScenarioFlags(cmd, &opts.ScenarioOptions)
	cmd.Flags().Float64Var(&opts.Epsilon, "epsilon", 1e-6, "Perturbation size for central differences")
	cmd.Flags().Float64Var(&opts.Tolerance, "tolerance", 1e-5, "Maximum allowed relative deviation")

	return cmd
}

func runCheck(ctx context.Context, opts *CheckOptions, verbose bool) error {
	cfg, err := opts.config()
	if err != nil {
		return err
	}
	if opts.Cell == "lstm" && cfg.TimeSteps != 1 {
		fmt.Printf("Note: LSTM check runs on a single time step (requested %d)\n", cfg.TimeSteps)
		cfg.TimeSteps = 1
	}
	logger := newLogger(verbose)

	fmt.Printf("Checking %s gradients...\n", opts.Cell)
	fmt.Printf("Dimensions: input=%d hidden=%d output=%d batch=%d steps=%d seed=%d\n",
		cfg.InputSize, cfg.HiddenSize, cfg.OutputSize, cfg.BatchSize, cfg.TimeSteps, cfg.Seed)
	fmt.Printf("Epsilon: %g  Tolerance: %g\n\n", opts.Epsilon, opts.Tolerance)

	x, a0, err := buildInputs(cfg)
	if err != nil {
		return err
	}
	da, err := onesSequence(cfg.HiddenSize, cfg.BatchSize, cfg.TimeSteps)
	if err != nil {
		return err
	}

	var results []checkResult
	switch opts.Cell {
	case "lstm":
		params, err := rnn.NewLSTMParameters(cfg)
		if err != nil {
			return err
		}
		cell, err := rnn.NewLSTM(params, logger)
		if err != nil {
			return err
		}
		loss := func() (float64, error) {
			a, _, _, _, err := cell.Forward(ctx, x, a0)
			if err != nil {
				return 0, err
			}
			return sumSequence(a), nil
		}
		_, _, _, cache, err := cell.Forward(ctx, x, a0)
		if err != nil {
			return err
		}
		grads, err := cell.Backward(ctx, da, cache)
		if err != nil {
			return err
		}

		checks := []struct {
			name     string
			param    *mat.Dense
			analytic *mat.Dense
		}{
			{"dWf", params.Wf, grads.DWf},
			{"dWi", params.Wi, grads.DWi},
			{"dWc", params.Wc, grads.DWc},
			{"dWo", params.Wo, grads.DWo},
			{"da0", a0, grads.DA0},
		}
		for _, c := range checks {
			res, err := checkDense(c.name, c.param, c.analytic, opts.Epsilon, loss)
			if err != nil {
				return err
			}
			results = append(results, res)
		}
		biases := []struct {
			name     string
			param    *mat.VecDense
			analytic *mat.VecDense
		}{
			{"dbf", params.Bf, grads.DBf},
			{"dbi", params.Bi, grads.DBi},
			{"dbc", params.Bc, grads.DBc},
			{"dbo", params.Bo, grads.DBo},
		}
		for _, c := range biases {
			res, err := checkVec(c.name, c.param, c.analytic, opts.Epsilon, loss)
			if err != nil {
				return err
			}
			results = append(results, res)
		}
		res, err := checkSeq("dx", x, grads.DX, opts.Epsilon, loss)
		if err != nil {
			return err
		}
		results = append(results, res)
	default:
		params, err := rnn.NewSimpleParameters(cfg)
		if err != nil {
			return err
		}
		cell, err := rnn.NewSimpleRNN(params, logger)
		if err != nil {
			return err
		}
		loss := func() (float64, error) {
			a, _, _, err := cell.Forward(ctx, x, a0)
			if err != nil {
				return 0, err
			}
			return sumSequence(a), nil
		}
		_, _, cache, err := cell.Forward(ctx, x, a0)
		if err != nil {
			return err
		}
		grads, err := cell.Backward(ctx, da, cache)
		if err != nil {
			return err
		}

		checks := []struct {
			name     string
			param    *mat.Dense
			analytic *mat.Dense
		}{
			{"dWax", params.Wax, grads.DWax},
			{"dWaa", params.Waa, grads.DWaa},
			{"da0", a0, grads.DA0},
		}
		for _, c := range checks {
			res, err := checkDense(c.name, c.param, c.analytic, opts.Epsilon, loss)
			if err != nil {
				return err
			}
			results = append(results, res)
		}
		res, err := checkVec("dba", params.Ba, grads.DBa, opts.Epsilon, loss)
		if err != nil {
			return err
		}
		results = append(results, res)
		res, err = checkSeq("dx", x, grads.DX, opts.Epsilon, loss)
		if err != nil {
			return err
		}
		results = append(results, res)
	}

	failed := 0
	for _, res := range results {
		status := "ok"
		if res.maxRelDiff > opts.Tolerance {
			status = "FAIL"
			failed++
		}
		fmt.Printf("%-6s entries=%-4d max relative deviation=%.3e  %s\n",
			res.name, res.entries, res.maxRelDiff, status)
	}

	if failed > 0 {
		return errors.NewComputationError(errors.CodeBackwardFailed,
			fmt.Sprintf("%d gradient tensor(s) exceeded tolerance %g", failed, opts.Tolerance))
	}
	fmt.Printf("\nAll gradients within tolerance!\n")
	return nil
}

type checkResult struct {
	name       string
	entries    int
	maxRelDiff float64
}

// relDiff compares a central-difference estimate with the analytic value,
// normalizing by the analytic magnitude (floored at 1 to keep tiny gradients
// from inflating the ratio).
func relDiff(numeric, analytic float64) float64 {
	return math.Abs(numeric-analytic) / math.Max(1, math.Abs(analytic))
}

func checkDense(name string, param, analytic *mat.Dense, eps float64, loss func() (float64, error)) (checkResult, error) {
	r, c := param.Dims()
	res := checkResult{name: name, entries: r * c}
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := param.At(i, j)
			param.Set(i, j, v+eps)
			plus, err := loss()
			if err != nil {
				return res, err
			}
			param.Set(i, j, v-eps)
			minus, err := loss()
			if err != nil {
				return res, err
			}
			param.Set(i, j, v)
			d := relDiff((plus-minus)/(2*eps), analytic.At(i, j))
			if d > res.maxRelDiff {
				res.maxRelDiff = d
			}
		}
	}
	return res, nil
}

func checkVec(name string, param, analytic *mat.VecDense, eps float64, loss func() (float64, error)) (checkResult, error) {
	n := param.Len()
	res := checkResult{name: name, entries: n}
	for i := 0; i < n; i++ {
		v := param.AtVec(i)
		param.SetVec(i, v+eps)
		plus, err := loss()
		if err != nil {
			return res, err
		}
		param.SetVec(i, v-eps)
		minus, err := loss()
		if err != nil {
			return res, err
		}
		param.SetVec(i, v)
		d := relDiff((plus-minus)/(2*eps), analytic.AtVec(i))
		if d > res.maxRelDiff {
			res.maxRelDiff = d
		}
	}
	return res, nil
}

func checkSeq(name string, param, analytic *models.Sequence, eps float64, loss func() (float64, error)) (checkResult, error) {
	res := checkResult{name: name, entries: param.Rows() * param.Cols() * param.Len()}
	for t := 0; t < param.Len(); t++ {
		for i := 0; i < param.Rows(); i++ {
			for j := 0; j < param.Cols(); j++ {
				v := param.At(i, j, t)
				param.Set(i, j, t, v+eps)
				plus, err := loss()
				if err != nil {
					return res, err
				}
				param.Set(i, j, t, v-eps)
				minus, err := loss()
				if err != nil {
					return res, err
				}
				param.Set(i, j, t, v)
				d := relDiff((plus-minus)/(2*eps), analytic.At(i, j, t))
				if d > res.maxRelDiff {
					res.maxRelDiff = d
				}
			}
		}
	}
	return res, nil
}

func onesSequence(rows, cols, length int) (*models.Sequence, error) {
	seq, err := models.NewSequence(rows, cols, length)
	if err != nil {
		return nil, err
	}
	for t := 0; t < length; t++ {
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				seq.Set(i, j, t, 1)
			}
		}
	}
	return seq, nil
}

func sumSequence(s *models.Sequence) float64 {
	total := 0.0
	for t := 0; t < s.Len(); t++ {
		total += mat.Sum(s.Step(t))
	}
	return total
}
