package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mtzanidakis/storecrew/internal/crew"
	"github.com/mtzanidakis/storecrew/internal/pipeline"
	"github.com/mtzanidakis/storecrew/internal/telegram"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the crew once with the configured inputs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			c, err := a.newCrew(ctx, "run", nil)
			if err != nil {
				return err
			}
			report, err := c.Run(ctx)
			printReport(cmd.OutOrStdout(), report)
			a.notify(ctx, report)
			return err
		},
	}
}

func newTrainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "train <iterations>",
		Short: "Run the crew repeatedly, collecting feedback after every task",
		Long: `train runs the crew the given number of times. After each task of a
successful run the operator may type feedback; it is stored and added to
that task's prompt in every later run.`,
		Args: func(cmd *cobra.Command, args []string) error {
			_, err := parseIterations(args)
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			n, _ := parseIterations(args)
			ctx := cmd.Context()

			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			c, err := a.newCrew(ctx, "train", nil)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			sum, err := c.Train(ctx, n, crew.NewPrompter(cmd.InOrStdin(), out))
			if sum != nil {
				for _, r := range sum.Reports {
					printReport(out, r)
				}
				fmt.Fprintf(out, "\nTraining finished: %d of %d iterations, %d feedback notes stored.\n", sum.Iterations, n, sum.Feedback)
			}
			return err
		},
	}
}

// parseIterations reads the training iteration count, which must be a
// positive integer.
func parseIterations(args []string) (int, error) {
	if len(args) != 1 {
		return 0, &usageError{msg: "train takes exactly one argument: the number of iterations"}
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, &usageError{msg: fmt.Sprintf("invalid number of iterations %q: not an integer", args[0])}
	}
	if n < 1 {
		return 0, &usageError{msg: fmt.Sprintf("invalid number of iterations %d: must be at least 1", n)}
	}
	return n, nil
}

func printReport(w io.Writer, report *pipeline.Report) {
	if report == nil {
		return
	}
	fmt.Fprintln(w, telegram.FormatReport(report))
}
