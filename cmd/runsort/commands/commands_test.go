package commands

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/Sumatoshi-tech/runsort/internal/input"
	"github.com/Sumatoshi-tech/runsort/pkg/config"
	"github.com/Sumatoshi-tech/runsort/pkg/observability"
	"github.com/Sumatoshi-tech/runsort/pkg/snapshot"
	"github.com/Sumatoshi-tech/runsort/pkg/sorter"
)

func execute(t *testing.T, stdin string, args ...string) (stdout, stderr string, err error) {
	t.Helper()

	return executeWith(t, observability.Init, stdin, args...)
}

func executeWith(t *testing.T, initObs observabilityInit, stdin string, args ...string) (stdout, stderr string, err error) {
	t.Helper()

	var outBuf, errBuf bytes.Buffer

	cmd := newRootCommandWithDeps(initObs)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&outBuf)
	cmd.SetErr(&errBuf)
	cmd.SetArgs(args)

	err = cmd.Execute()

	return outBuf.String(), errBuf.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestSortStdinText(t *testing.T) {
	t.Parallel()

	out, _, err := execute(t, "3\n1\n2\n3\n", "sort")
	require.NoError(t, err)
	assert.Equal(t, "1\n2\n3\n3\n", out)
}

func TestSortDashReadsStdin(t *testing.T) {
	t.Parallel()

	out, _, err := execute(t, "b\na\n", "sort", "--type", "string", "-")
	require.NoError(t, err)
	assert.Equal(t, "a\nb\n", out)
}

func TestSortDescending(t *testing.T) {
	t.Parallel()

	out, _, err := execute(t, "2\n9\n4\n9\n", "sort", "--desc")
	require.NoError(t, err)
	assert.Equal(t, "9\n9\n4\n2\n", out)
}

func TestSortJSONInputAndOutput(t *testing.T) {
	t.Parallel()

	out, _, err := execute(t, `[5, 1, 4, "2"]`, "sort", "--input", "json", "--output", "json")
	require.NoError(t, err)
	assert.JSONEq(t, `[1, 2, 4, 5]`, out)
}

func TestSortFloats(t *testing.T) {
	t.Parallel()

	out, _, err := execute(t, "2.5\n-1\n1e2\n", "sort", "--type", "float")
	require.NoError(t, err)
	assert.Equal(t, "-1\n2.5\n100\n", out)
}

func TestSortStrictRejectsNaN(t *testing.T) {
	t.Parallel()

	_, _, err := execute(t, "1\nNaN\n", "sort", "--type", "float", "--strict")
	require.ErrorIs(t, err, sorter.ErrIncomparable)
}

func TestSortMultipleFiles(t *testing.T) {
	t.Parallel()

	first := writeFile(t, "a.txt", "3\n1\n")
	second := writeFile(t, "b.txt", "20\n10\n")

	out, _, err := execute(t, "", "sort", first, second)
	require.NoError(t, err)
	assert.Equal(t, "==> "+first+" <==\n1\n3\n\n==> "+second+" <==\n10\n20\n", out)
}

func TestSortMultipleFilesYAML(t *testing.T) {
	t.Parallel()

	first := writeFile(t, "a.txt", "b\na\n")
	second := writeFile(t, "b.txt", "d\nc\n")

	out, _, err := execute(t, "", "sort", "--type", "string", "--output", "yaml", first, second)
	require.NoError(t, err)

	var docs []struct {
		File   string   `yaml:"file"`
		Values []string `yaml:"values"`
	}

	require.NoError(t, yaml.Unmarshal([]byte(out), &docs))
	require.Len(t, docs, 2)
	assert.Equal(t, first, docs[0].File)
	assert.Equal(t, []string{"a", "b"}, docs[0].Values)
	assert.Equal(t, []string{"c", "d"}, docs[1].Values)
}

func TestSortErrors(t *testing.T) {
	t.Parallel()

	missing := filepath.Join(t.TempDir(), "missing.txt")

	tests := []struct {
		name    string
		stdin   string
		args    []string
		wantErr error
	}{
		{"unknown type", "1\n", []string{"sort", "--type", "complex"}, input.ErrUnknownFormat},
		{"unknown input", "1\n", []string{"sort", "--input", "csv"}, input.ErrUnknownFormat},
		{"unknown output", "1\n", []string{"sort", "--output", "xml"}, ErrUnknownOutput},
		{"bad value", "1\nx\n", []string{"sort"}, input.ErrParse},
		{"schema", `{"a": 1}`, []string{"sort", "--input", "json"}, input.ErrSchema},
		{"stdin twice", "1\n", []string{"sort", "-", "-"}, ErrStdinTwice},
		{"missing file", "", []string{"sort", missing}, os.ErrNotExist},
		{"snapshot float", "1\n", []string{"sort", "--type", "float", "--snapshot", "x.rsnp"}, ErrSnapshotType},
		{"snapshot desc", "1\n", []string{"sort", "--desc", "--snapshot", "x.rsnp"}, ErrSnapshotDescending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, _, err := execute(t, tt.stdin, tt.args...)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestSortSnapshotRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.rsnp")

	out, stderr, err := execute(t, "30\n10\n20\n10\n", "sort", "--snapshot", path)
	require.NoError(t, err)
	assert.Equal(t, "10\n10\n20\n30\n", out)
	assert.Contains(t, stderr, "snapshot written")

	values, err := snapshot.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []uint32{10, 10, 20, 30}, values)

	restored, _, err := execute(t, "", "restore", path)
	require.NoError(t, err)
	assert.Equal(t, out, restored)

	asJSON, _, err := execute(t, "", "restore", "--output", "json", path)
	require.NoError(t, err)
	assert.JSONEq(t, `[10, 10, 20, 30]`, asJSON)
}

func TestSortSnapshotRange(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.rsnp")

	_, _, err := execute(t, "-1\n5\n", "sort", "--snapshot", path)
	require.ErrorIs(t, err, ErrSnapshotRange)

	_, statErr := os.Stat(path)
	assert.True(t, errors.Is(statErr, os.ErrNotExist))
}

func TestRestoreRejectsGarbage(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "bad.rsnp", "not a snapshot")

	_, _, err := execute(t, "", "restore", path)
	require.ErrorIs(t, err, snapshot.ErrBadMagic)
}

func TestSortStatsAndQuiet(t *testing.T) {
	t.Parallel()

	_, stderr, err := execute(t, "2\n1\n", "sort", "--stats")
	require.NoError(t, err)
	assert.Contains(t, stderr, "sorted 2 items into 1 run(s)")

	_, stderr, err = execute(t, "2\n1\n", "--quiet", "sort", "--stats")
	require.NoError(t, err)
	assert.NotContains(t, stderr, "sorted")
}

func TestSortMetricsTextfile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "runsort.prom")

	_, _, err := execute(t, "3\n1\n2\n", "sort", "--metrics-textfile", path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "runsort_items")
}

func TestSortVerboseLogsDecisions(t *testing.T) {
	t.Parallel()

	_, stderr, err := execute(t, "2\n1\n", "--verbose", "--log-json", "sort")
	require.NoError(t, err)
	assert.Contains(t, stderr, `"decision":"extend_left"`)
	assert.Contains(t, stderr, `"session_id"`)
}

func TestStatsTable(t *testing.T) {
	t.Parallel()

	out, _, err := execute(t, "5\n3\n4\n1\n", "stats")
	require.NoError(t, err)

	lower := strings.ToLower(out)
	assert.Contains(t, lower, "start")
	assert.Contains(t, lower, "total")
	assert.Contains(t, lower, "1 runs")
}

func TestStatsYAMLAndPlot(t *testing.T) {
	t.Parallel()

	file := writeFile(t, "values.txt", "5\n3\n4\n1\n")
	plot := filepath.Join(t.TempDir(), "runs.html")

	out, stderr, err := execute(t, "", "stats", "--format", "yaml", "--plot", plot, file)
	require.NoError(t, err)
	assert.Contains(t, stderr, "plot written")

	var doc statsDocument

	require.NoError(t, yaml.Unmarshal([]byte(out), &doc))
	assert.Equal(t, file, doc.File)
	assert.Equal(t, 4, doc.Items)
	require.Len(t, doc.Runs, 1)
	assert.Equal(t, runRow{Start: "1", End: "5", Len: 4, Blocks: 1}, doc.Runs[0])

	html, err := os.ReadFile(plot)
	require.NoError(t, err)
	assert.Contains(t, string(html), "Run lengths")
}

func TestVersion(t *testing.T) {
	t.Parallel()

	out, _, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "runsort "))
}

func TestConfigFileApplies(t *testing.T) {
	t.Parallel()

	cfgPath := writeFile(t, "runsort.yaml", "sort:\n  descending: true\n")

	out, _, err := execute(t, "1\n3\n2\n", "--config", cfgPath, "sort")
	require.NoError(t, err)
	assert.Equal(t, "3\n2\n1\n", out)

	// An explicit flag wins over the file.
	out, _, err = execute(t, "1\n3\n2\n", "--config", cfgPath, "sort", "--desc=false")
	require.NoError(t, err)
	assert.Equal(t, "1\n2\n3\n", out)
}

func TestInvalidConfigFails(t *testing.T) {
	t.Parallel()

	cfgPath := writeFile(t, "runsort.yaml", "sort:\n  block_size: 2\n")

	_, _, err := execute(t, "1\n", "--config", cfgPath, "sort")
	require.ErrorIs(t, err, config.ErrInvalidBlockSize)
}

func TestObservabilityInitFailure(t *testing.T) {
	t.Parallel()

	errBoom := errors.New("boom")

	_, _, err := executeWith(t, func(observability.Config) (observability.Providers, error) {
		return observability.Providers{}, errBoom
	}, "1\n", "sort")
	require.ErrorIs(t, err, errBoom)
}

func TestObservabilityConfigFromFlags(t *testing.T) {
	t.Parallel()

	var got observability.Config

	initCalled := false

	_, _, err := executeWith(t, func(cfg observability.Config) (observability.Providers, error) {
		initCalled = true
		got = cfg

		return observability.Init(observability.DefaultConfig())
	}, "1\n", "--verbose", "--log-json", "sort", "--metrics-textfile", "")
	require.NoError(t, err)
	require.True(t, initCalled, "observability.Init should be called")

	assert.True(t, got.LogJSON)
	assert.Equal(t, "runsort", got.ServiceName)
	assert.Equal(t, observability.ModeCLI, got.Mode)
	assert.Equal(t, -4, int(got.LogLevel))
}

type failingCloser struct{}

func (failingCloser) Close() error { return os.ErrClosed }

func TestCloseSourceJoinsError(t *testing.T) {
	t.Parallel()

	var err error

	closeSource(&err, "numbers.txt", failingCloser{})
	require.ErrorIs(t, err, os.ErrClosed)
	assert.Contains(t, err.Error(), "close numbers.txt")

	readErr := errors.New("bad line")
	err = readErr

	closeSource(&err, "numbers.txt", failingCloser{})
	require.ErrorIs(t, err, readErr)
	require.ErrorIs(t, err, os.ErrClosed)
}

func TestOpenSourceLeavesStdinOpen(t *testing.T) {
	t.Parallel()

	stdin := strings.NewReader("1\n")

	r, err := openSource(stdinName, stdin)
	require.NoError(t, err)
	require.NoError(t, r.Close())

	rest, err := stdin.ReadByte()
	require.NoError(t, err)
	assert.Equal(t, byte('1'), rest)
}

func TestOpenSourceClosesFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "in.txt")
	require.NoError(t, os.WriteFile(path, []byte("2\n1\n"), 0o600))

	r, err := openSource(path, nil)
	require.NoError(t, err)

	var closeErr error

	closeSource(&closeErr, path, r)
	require.NoError(t, closeErr)

	closeSource(&closeErr, path, r)
	require.ErrorIs(t, closeErr, os.ErrClosed)
}
