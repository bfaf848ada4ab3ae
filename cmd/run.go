package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/weblog-normalizer/internal/pipeline"
)

// newRunCmd creates the 'run' subcommand, which performs one pipeline run.
// The command fails (exit status 1) only when the run fails; an empty run is
// a success.
func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Normalize the newest input store",
		Args:  cobra.NoArgs,
		RunE:  runPipelineCommand,
	}
}

func runPipelineCommand(cmd *cobra.Command, _ []string) error {
	a, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	res, err := a.Run(cmd.Context())
	fields := []zap.Field{
		zap.Stringer("run_id", res.RunID),
		zap.String("status", string(res.Status)),
		zap.String("input", res.Input),
		zap.Int64("rows", res.Rows),
		zap.Int("batches", res.Batches),
		zap.Duration("duration", res.Duration),
	}
	if err != nil {
		a.Logger().Error("run failed", append(fields, zap.Error(err))...)
		return err
	}
	for _, derr := range res.DeleteErrors {
		a.Logger().Warn("input not deleted", zap.Error(derr))
	}
	a.Logger().Info("run finished", fields...)
	if res.Status == pipeline.StatusEmpty {
		fmt.Fprintln(cmd.OutOrStdout(), "no input store found")
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d rows from %s into %s\n", res.Status, res.Rows, res.Input, res.Output)
	return nil
}
