package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/jedib0t/go-pretty/v6/table"
	"gopkg.in/yaml.v3"
)

// Output formats.
const (
	outputText  = "text"
	outputJSON  = "json"
	outputYAML  = "yaml"
	outputTable = "table"
)

const (
	plotFilePerm  = 0o600
	plotHeight    = "500px"
	plotRotate    = 60
	plotMaxLabels = 500
)

// ErrUnknownOutput is returned for an unsupported --output or --format value.
var ErrUnknownOutput = errors.New("unknown output format")

// namedValues is the structured form of one sorted source when several are printed.
type namedValues struct {
	File   string `json:"file"   yaml:"file"`
	Values any    `json:"values" yaml:"values"`
}

func validateOutput(format string, allowed ...string) error {
	for _, a := range allowed {
		if format == a {
			return nil
		}
	}

	return fmt.Errorf("%w: %q", ErrUnknownOutput, format)
}

// writeOutcomes prints sorted values in argument order. Text output separates
// several sources with a "==> name <==" header.
func writeOutcomes(w io.Writer, format string, outcomes []sortOutcome) error {
	switch format {
	case outputText:
		for idx, outcome := range outcomes {
			if len(outcomes) > 1 {
				if idx > 0 {
					fmt.Fprintln(w)
				}

				fmt.Fprintf(w, "==> %s <==\n", outcome.Name)
			}

			err := writeLines(w, outcome.Lines)
			if err != nil {
				return err
			}
		}

		return nil
	case outputJSON, outputYAML:
		if len(outcomes) == 1 {
			return writeStructured(w, format, outcomes[0].Values)
		}

		docs := make([]namedValues, len(outcomes))
		for idx, outcome := range outcomes {
			docs[idx] = namedValues{File: outcome.Name, Values: outcome.Values}
		}

		return writeStructured(w, format, docs)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownOutput, format)
	}
}

func writeLines(w io.Writer, lines []string) error {
	for _, line := range lines {
		_, err := fmt.Fprintln(w, line)
		if err != nil {
			return fmt.Errorf("write output: %w", err)
		}
	}

	return nil
}

func writeStructured(w io.Writer, format string, v any) error {
	switch format {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		err := enc.Encode(v)
		if err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
	case outputYAML:
		enc := yaml.NewEncoder(w)

		err := enc.Encode(v)
		if err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}

		err = enc.Close()
		if err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownOutput, format)
	}

	return nil
}

// renderRunTable renders the run structure as a go-pretty table.
func renderRunTable(outcome sortOutcome) string {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.SeparateRows = false

	tbl.AppendHeader(table.Row{"#", "Start", "End", "Length", "Blocks"})

	for idx, r := range outcome.Runs {
		tbl.AppendRow(table.Row{idx + 1, r.Start, r.End, humanize.Comma(int64(r.Len)), r.Blocks})
	}

	tbl.AppendFooter(table.Row{
		"", "", "Total",
		humanize.Comma(int64(outcome.Items)),
		fmt.Sprintf("%s runs", humanize.Comma(int64(len(outcome.Runs)))),
	})

	return tbl.Render()
}

// statsDocument is the YAML form of stats output.
type statsDocument struct {
	File  string   `yaml:"file"`
	Items int      `yaml:"items"`
	Runs  []runRow `yaml:"runs"`
}

// writeRunPlot writes an HTML bar chart of run lengths to path.
func writeRunPlot(path string, outcome sortOutcome) error {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: plotHeight}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Run lengths",
			Subtitle: fmt.Sprintf("%s: %s items in %d runs", outcome.Name, humanize.Comma(int64(outcome.Items)), len(outcome.Runs)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{
			Name:      "Run",
			AxisLabel: &opts.AxisLabel{Rotate: plotRotate},
		}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Length"}),
	)

	runs := outcome.Runs
	if len(runs) > plotMaxLabels {
		runs = runs[:plotMaxLabels]
	}

	labels := make([]string, len(runs))
	data := make([]opts.BarData, len(runs))

	for idx, r := range runs {
		labels[idx] = strconv.Itoa(idx+1) + ": " + r.Start
		data[idx] = opts.BarData{Value: r.Len}
	}

	bar.SetXAxis(labels)
	bar.AddSeries("Length", data)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, plotFilePerm)
	if err != nil {
		return fmt.Errorf("create plot: %w", err)
	}

	renderErr := bar.Render(f)
	closeErr := f.Close()

	return errors.Join(renderErr, closeErr)
}
