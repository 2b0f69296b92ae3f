package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/inferloop/recurrent/pkg/rnn"
)

// NewBackwardCmd creates the backward command.
func NewBackwardCmd() *cobra.Command {
	opts := &ScenarioOptions{}

	cmd := &cobra.Command{
		Use:   "backward",
		Short: "Run backpropagation through time on a deterministic scenario",
		Long: `Builds seeded parameters and inputs, runs the forward pass to record the
sequence cache, then backpropagates a seeded upstream gradient through every
time step and prints sampled gradient values and shapes.`,
		Example: `  # Simple cell on the default scenario
  recurrent-check backward --cell simple

  # LSTM with a longer sequence
  recurrent-check backward --cell lstm --time-steps 12`,
		RunE: func(cmd *cobra.Command, args []string) error {
			verbose, _ := cmd.Flags().GetBool("verbose")
			return runBackward(cmd.Context(), opts, verbose)
		},
	}

	addScenarioFlags(cmd, opts)

	return cmd
}

func runBackward(ctx context.Context, opts *ScenarioOptions, verbose bool) error {
	cfg, err := opts.config()
	if err != nil {
		return err
	}
	logger := newLogger(verbose)

	fmt.Printf("Running %s backward pass...\n", opts.Cell)
	fmt.Printf("Dimensions: input=%d hidden=%d output=%d batch=%d steps=%d seed=%d\n\n",
		cfg.InputSize, cfg.HiddenSize, cfg.OutputSize, cfg.BatchSize, cfg.TimeSteps, cfg.Seed)

	x, a0, err := buildInputs(cfg)
	if err != nil {
		return err
	}
	da, err := rnn.NewRandomSequence(cfg.HiddenSize, cfg.BatchSize, cfg.TimeSteps, cfg.Seed+3)
	if err != nil {
		return err
	}

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
		_, _, _, cache, err := cell.Forward(ctx, x, a0)
		if err != nil {
			return err
		}
		grads, err := cell.Backward(ctx, da, cache)
		if err != nil {
			return err
		}
		printSeqRow("dx", grads.DX, cfg.InputSize-1, cfg.BatchSize/2)
		printSeqShape("dx", grads.DX)
		printMatRow("da0", grads.DA0, cfg.HiddenSize-1)
		printMatShape("da0", grads.DA0)
		printMatRow("dWf", grads.DWf, cfg.HiddenSize-1)
		printMatShape("dWf", grads.DWf)
		printMatRow("dWi", grads.DWi, cfg.HiddenSize-1)
		printMatRow("dWc", grads.DWc, cfg.HiddenSize-1)
		printMatRow("dWo", grads.DWo, cfg.HiddenSize-1)
		printVecEntry("dbf", grads.DBf, cfg.HiddenSize-1)
		printVecEntry("dbi", grads.DBi, cfg.HiddenSize-1)
		printVecEntry("dbc", grads.DBc, cfg.HiddenSize-1)
		printVecEntry("dbo", grads.DBo, cfg.HiddenSize-1)
	default:
		params, err := rnn.NewSimpleParameters(cfg)
		if err != nil {
			return err
		}
		cell, err := rnn.NewSimpleRNN(params, logger)
		if err != nil {
			return err
		}
		_, _, cache, err := cell.Forward(ctx, x, a0)
		if err != nil {
			return err
		}
		grads, err := cell.Backward(ctx, da, cache)
		if err != nil {
			return err
		}
		printSeqRow("dx", grads.DX, cfg.InputSize-1, cfg.BatchSize/2)
		printSeqShape("dx", grads.DX)
		printMatRow("da0", grads.DA0, cfg.HiddenSize-1)
		printMatShape("da0", grads.DA0)
		printMatRow("dWax", grads.DWax, cfg.HiddenSize-1)
		printMatShape("dWax", grads.DWax)
		printMatRow("dWaa", grads.DWaa, cfg.HiddenSize-1)
		printMatShape("dWaa", grads.DWaa)
		printVecEntry("dba", grads.DBa, cfg.HiddenSize-1)
	}

	fmt.Printf("\nBackward pass completed successfully!\n")
	return nil
}
