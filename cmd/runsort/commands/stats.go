package commands

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/runsort/internal/input"
)

// StatsCommand holds the flags of the stats command.
type StatsCommand struct {
	app *app

	valueType   string
	inputFormat string
	blockSize   int
	format      string
	plot        string
}

func newStatsCommand(a *app) *cobra.Command {
	sc := &StatsCommand{app: a}

	cmd := &cobra.Command{
		Use:   "stats [file]",
		Short: "Show the run structure of a sorted input",
		Args:  cobra.MaximumNArgs(1),
		RunE:  a.wrap(sc.run),
	}

	cmd.Flags().StringVarP(&sc.valueType, "type", "t", string(input.TypeInt), "Value type: int, float, string")
	cmd.Flags().StringVarP(&sc.inputFormat, "input", "i", string(input.FormatText), "Input format: text, json")
	cmd.Flags().IntVar(&sc.blockSize, "block-size", 0, "Elements per run block (0 = config value)")
	cmd.Flags().StringVarP(&sc.format, "format", "f", outputTable, "Output format: table, yaml")
	cmd.Flags().StringVar(&sc.plot, "plot", "", "Write an HTML bar chart of run lengths to this path")

	return cmd
}

func (sc *StatsCommand) run(ctx context.Context, cmd *cobra.Command, args []string) error {
	err := validateOutput(sc.format, outputTable, outputYAML)
	if err != nil {
		return err
	}

	opts, err := resolveOptions(cmd, sc.app, sc.valueType, sc.inputFormat, false, false, sc.blockSize)
	if err != nil {
		return err
	}

	source := stdinName
	if len(args) == 1 {
		source = args[0]
	}

	outcome, err := sc.app.sortSource(ctx, source, cmd.InOrStdin(), opts)
	if err != nil {
		return err
	}

	switch sc.format {
	case outputYAML:
		err = writeStructured(cmd.OutOrStdout(), outputYAML, statsDocument{
			File:  outcome.Name,
			Items: outcome.Items,
			Runs:  outcome.Runs,
		})
	default:
		_, err = fmt.Fprintln(cmd.OutOrStdout(), renderRunTable(outcome))
	}

	if err != nil {
		return err
	}

	if sc.plot != "" {
		err = writeRunPlot(sc.plot, outcome)
		if err != nil {
			return err
		}

		sc.app.status(cmd, color.FgGreen, "plot written: %s", sc.plot)
	}

	return nil
}
