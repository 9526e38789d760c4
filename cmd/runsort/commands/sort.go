package commands

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Sumatoshi-tech/runsort/internal/input"
	"github.com/Sumatoshi-tech/runsort/pkg/snapshot"
)

var (
	// ErrSnapshotType is returned when --snapshot is used with non-integer values.
	ErrSnapshotType = errors.New("--snapshot requires --type int")
	// ErrSnapshotSources is returned when --snapshot is used with several inputs.
	ErrSnapshotSources = errors.New("--snapshot requires a single input")
	// ErrSnapshotDescending is returned when --snapshot is combined with --desc.
	ErrSnapshotDescending = errors.New("--snapshot stores ascending values only")
	// ErrSnapshotRange is returned when a value does not fit a snapshot.
	ErrSnapshotRange = errors.New("snapshot values must be within [0, 4294967295]")
	// ErrStdinTwice is returned when "-" is given more than once.
	ErrStdinTwice = errors.New("standard input can only be read once")
)

// SortCommand holds the flags of the sort command.
type SortCommand struct {
	app *app

	valueType   string
	inputFormat string
	descending  bool
	blockSize   int
	strict      bool
	output      string
	snapshot    string
	stats       bool
}

func newSortCommand(a *app) *cobra.Command {
	sc := &SortCommand{app: a}

	cmd := &cobra.Command{
		Use:   "sort [files...]",
		Short: "Sort one or more inputs",
		Long: `Sort values read from files, or from standard input when no file or "-"
is given. Several files are sorted concurrently and printed in argument order.`,
		RunE: a.wrap(sc.run),
	}

	cmd.Flags().StringVarP(&sc.valueType, "type", "t", string(input.TypeInt), "Value type: int, float, string")
	cmd.Flags().StringVarP(&sc.inputFormat, "input", "i", string(input.FormatText), "Input format: text (one value per line), json (array)")
	cmd.Flags().BoolVarP(&sc.descending, "desc", "d", false, "Sort in descending order")
	cmd.Flags().IntVar(&sc.blockSize, "block-size", 0, "Elements per run block (0 = config value)")
	cmd.Flags().BoolVar(&sc.strict, "strict", false, "Fail on incomparable values such as NaN")
	cmd.Flags().StringVarP(&sc.output, "output", "o", outputText, "Output format: text, json, yaml")
	cmd.Flags().StringVar(&sc.snapshot, "snapshot", "", "Also write the sorted values to a compressed snapshot (int only)")
	cmd.Flags().BoolVar(&sc.stats, "stats", false, "Print per-input sort statistics to stderr")
	cmd.Flags().StringVar(&a.metricsTextfile, "metrics-textfile", "", "Write Prometheus metrics to this file on exit")

	return cmd
}

// resolveOptions merges config values with explicitly set flags.
func resolveOptions(cmd *cobra.Command, a *app, valueType, format string, descending, strict bool, blockSize int) (sortOptions, error) {
	typ, err := input.ParseType(valueType)
	if err != nil {
		return sortOptions{}, err
	}

	f, err := input.ParseFormat(format)
	if err != nil {
		return sortOptions{}, err
	}

	opts := sortOptions{
		valueType:  typ,
		format:     f,
		descending: a.cfg.Sort.Descending,
		strict:     a.cfg.Sort.Strict,
		blockSize:  a.cfg.Sort.BlockSize,
	}

	if cmd.Flags().Changed("desc") {
		opts.descending = descending
	}

	if cmd.Flags().Changed("strict") {
		opts.strict = strict
	}

	if blockSize > 0 {
		opts.blockSize = blockSize
	}

	return opts, nil
}

func (sc *SortCommand) run(ctx context.Context, cmd *cobra.Command, args []string) error {
	err := validateOutput(sc.output, outputText, outputJSON, outputYAML)
	if err != nil {
		return err
	}

	opts, err := resolveOptions(cmd, sc.app, sc.valueType, sc.inputFormat, sc.descending, sc.strict, sc.blockSize)
	if err != nil {
		return err
	}

	sources := args
	if len(sources) == 0 {
		sources = []string{stdinName}
	}

	err = sc.checkSnapshot(opts, sources)
	if err != nil {
		return err
	}

	outcomes, err := sc.sortAll(ctx, cmd, sources, opts)
	if err != nil {
		return err
	}

	if sc.stats {
		for _, outcome := range outcomes {
			sc.app.status(cmd, color.FgCyan, "%s: sorted %s items into %d run(s) in %s",
				outcome.Name, humanize.Comma(int64(outcome.Items)), len(outcome.Runs), outcome.Elapsed)
		}
	}

	err = writeOutcomes(cmd.OutOrStdout(), sc.output, outcomes)
	if err != nil {
		return err
	}

	if sc.snapshot != "" {
		return sc.writeSnapshot(cmd, outcomes[0])
	}

	return nil
}

// sortAll sorts every source concurrently, one sorter per source.
func (sc *SortCommand) sortAll(ctx context.Context, cmd *cobra.Command, sources []string, opts sortOptions) ([]sortOutcome, error) {
	stdinSeen := false

	for _, name := range sources {
		if name != stdinName {
			continue
		}

		if stdinSeen {
			return nil, ErrStdinTwice
		}

		stdinSeen = true
	}

	outcomes := make([]sortOutcome, len(sources))
	g, gctx := errgroup.WithContext(ctx)

	for idx, name := range sources {
		g.Go(func() error {
			err := gctx.Err()
			if err != nil {
				return err
			}

			outcome, err := sc.app.sortSource(gctx, name, cmd.InOrStdin(), opts)
			if err != nil {
				return err
			}

			outcomes[idx] = outcome

			return nil
		})
	}

	err := g.Wait()
	if err != nil {
		return nil, err
	}

	return outcomes, nil
}

func (sc *SortCommand) checkSnapshot(opts sortOptions, sources []string) error {
	if sc.snapshot == "" {
		return nil
	}

	switch {
	case opts.valueType != input.TypeInt:
		return ErrSnapshotType
	case len(sources) != 1:
		return ErrSnapshotSources
	case opts.descending:
		return ErrSnapshotDescending
	}

	return nil
}

func (sc *SortCommand) writeSnapshot(cmd *cobra.Command, outcome sortOutcome) error {
	values, ok := outcome.Values.([]int64)
	if !ok {
		return ErrSnapshotType
	}

	packed := make([]uint32, len(values))

	for idx, v := range values {
		if v < 0 || v > math.MaxUint32 {
			return fmt.Errorf("%w: %d", ErrSnapshotRange, v)
		}

		packed[idx] = uint32(v)
	}

	err := snapshot.WriteFile(sc.snapshot, packed)
	if err != nil {
		return err
	}

	sc.app.status(cmd, color.FgGreen, "snapshot written: %s (%s values)", sc.snapshot, humanize.Comma(int64(len(packed))))

	return nil
}
