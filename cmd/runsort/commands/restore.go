package commands

import (
	"context"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/runsort/pkg/snapshot"
)

func newRestoreCommand(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "restore <snapshot>",
		Short: "Print the values stored in a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: a.wrap(func(_ context.Context, cmd *cobra.Command, args []string) error {
			err := validateOutput(output, outputText, outputJSON, outputYAML)
			if err != nil {
				return err
			}

			values, err := snapshot.ReadFile(args[0])
			if err != nil {
				return err
			}

			if output != outputText {
				return writeStructured(cmd.OutOrStdout(), output, values)
			}

			lines := make([]string, len(values))
			for idx, v := range values {
				lines[idx] = strconv.FormatUint(uint64(v), 10)
			}

			return writeLines(cmd.OutOrStdout(), lines)
		}),
	}

	cmd.Flags().StringVarP(&output, "output", "o", outputText, "Output format: text, json, yaml")

	return cmd
}
