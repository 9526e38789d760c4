package commands

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/Sumatoshi-tech/runsort/internal/input"
	"github.com/Sumatoshi-tech/runsort/pkg/observability"
	"github.com/Sumatoshi-tech/runsort/pkg/sorter"
)

// stdinName selects standard input as a source.
const stdinName = "-"

// sortOptions are the per-invocation sorter settings after config and flags
// have been merged.
type sortOptions struct {
	valueType  input.Type
	format     input.Format
	descending bool
	strict     bool
	blockSize  int
}

// runRow describes one run of a finished sort.
type runRow struct {
	Start  string `json:"start"  yaml:"start"`
	End    string `json:"end"    yaml:"end"`
	Len    int    `json:"len"    yaml:"len"`
	Blocks int    `json:"blocks" yaml:"blocks"`
}

// sortOutcome is the result of sorting one source.
type sortOutcome struct {
	Name    string
	Values  any
	Lines   []string
	Runs    []runRow
	Items   int
	Elapsed time.Duration
}

// sortSource reads one source and sorts it with its own sorter instance.
func (a *app) sortSource(ctx context.Context, name string, stdin io.Reader, opts sortOptions) (_ sortOutcome, err error) {
	r, err := openSource(name, stdin)
	if err != nil {
		return sortOutcome{}, err
	}
	defer closeSource(&err, name, r)

	ctx = observability.ContextWithSession(ctx, uuid.NewString())

	var outcome sortOutcome

	switch opts.valueType {
	case input.TypeInt:
		values, readErr := input.ReadInts(r, opts.format)
		if readErr != nil {
			return sortOutcome{}, fmt.Errorf("%s: %w", name, readErr)
		}

		outcome, err = sortTyped(ctx, a, values, opts, func(v int64) string { return strconv.FormatInt(v, 10) })
	case input.TypeFloat:
		values, readErr := input.ReadFloats(r, opts.format)
		if readErr != nil {
			return sortOutcome{}, fmt.Errorf("%s: %w", name, readErr)
		}

		outcome, err = sortTyped(ctx, a, values, opts, func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) })
	case input.TypeString:
		values, readErr := input.ReadStrings(r, opts.format)
		if readErr != nil {
			return sortOutcome{}, fmt.Errorf("%s: %w", name, readErr)
		}

		outcome, err = sortTyped(ctx, a, values, opts, func(v string) string { return v })
	default:
		return sortOutcome{}, fmt.Errorf("%w: type %q", input.ErrUnknownFormat, opts.valueType)
	}

	if err != nil {
		return sortOutcome{}, fmt.Errorf("%s: %w", name, err)
	}

	outcome.Name = name

	return outcome, nil
}

func sortTyped[T cmp.Ordered](
	ctx context.Context, a *app, values []T, opts sortOptions, format func(T) string,
) (sortOutcome, error) {
	inst := observability.Instrument[T](ctx, a.providers, a.metrics)

	sorterOpts := []sorter.Option[T]{
		sorter.WithBlockSize[T](opts.blockSize),
		sorter.WithStrict[T](opts.strict),
		sorter.WithObserver[T](inst),
	}

	var s *sorter.Sorter[T, T]
	if opts.descending {
		s = sorter.NewFunc(
			func(v T) T { return v },
			sorter.Reverse(sorter.Ordered[T]),
			func(x, y T) int { return cmp.Compare(y, x) },
			sorterOpts...,
		)
	} else {
		s = sorter.New[T](sorterOpts...)
	}

	started := time.Now()

	out, err := s.Sort(values)
	if err != nil {
		inst.Abort(err)

		return sortOutcome{}, fmt.Errorf("sort: %w", err)
	}

	lines := make([]string, len(out))
	for idx, v := range out {
		lines[idx] = format(v)
	}

	summary := s.Summary()
	runs := make([]runRow, len(summary))

	for idx, rs := range summary {
		runs[idx] = runRow{Start: format(rs.Start), End: format(rs.End), Len: rs.Len, Blocks: rs.Blocks}
	}

	return sortOutcome{
		Values:  out,
		Lines:   lines,
		Runs:    runs,
		Items:   len(out),
		Elapsed: time.Since(started),
	}, nil
}

// openSource opens a named input. Stdin is never closed.
func openSource(name string, stdin io.Reader) (io.ReadCloser, error) {
	if name == stdinName {
		return io.NopCloser(stdin), nil
	}

	f, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}

	return f, nil
}

// closeSource closes c and joins a close failure into *errp.
func closeSource(errp *error, name string, c io.Closer) {
	closeErr := c.Close()
	if closeErr != nil {
		*errp = errors.Join(*errp, fmt.Errorf("close %s: %w", name, closeErr))
	}
}
