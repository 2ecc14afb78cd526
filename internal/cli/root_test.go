package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/matzehuels/topofeat/pkg/config"
	"github.com/matzehuels/topofeat/pkg/diagram"
	"github.com/matzehuels/topofeat/pkg/engine"
	"github.com/matzehuels/topofeat/pkg/errors"
	topoio "github.com/matzehuels/topofeat/pkg/io"
	"github.com/matzehuels/topofeat/pkg/observability"
	"github.com/matzehuels/topofeat/pkg/pipeline"
)

// harness runs CLI commands against an isolated home and working directory.
type harness struct {
	t    *testing.T
	home string
	data string
	save string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{t: t, home: t.TempDir(), data: t.TempDir()}
	h.save = filepath.Join(t.TempDir(), "out")
	t.Setenv("HOME", h.home)
	t.Setenv(config.EnvVar, "")
	t.Chdir(t.TempDir())

	coll := diagram.Collection{
		Dimension: 1,
		Diagrams: []diagram.Diagram{
			{{Birth: 0.1, Death: 0.3}, {Birth: 0.05, Death: 0.2}},
			{{Birth: 0.0, Death: 0.4}},
			{},
		},
	}
	if _, err := topoio.SaveDiagrams(h.data, coll); err != nil {
		t.Fatal(err)
	}
	return h
}

// run executes the root command with args and returns everything printed.
func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()
	var buf bytes.Buffer
	oldOut, oldErr := out, errOut
	out, errOut = &buf, &buf
	defer func() { out, errOut = oldOut, oldErr }()
	defer observability.Reset()

	root := New(io.Discard, LogInfo).RootCommand()
	root.SetArgs(append([]string{"-v"}, args...))
	root.SetOut(&buf)
	root.SetErr(&buf)
	err := root.ExecuteContext(context.Background())
	return buf.String(), err
}

func (h *harness) features() (rows, cols int) {
	h.t.Helper()
	f, err := os.Open(filepath.Join(h.save, topoio.FeaturesFile(1)))
	if err != nil {
		h.t.Fatal(err)
	}
	defer f.Close()
	m, err := topoio.ReadMatrixNPY(f)
	if err != nil {
		h.t.Fatal(err)
	}
	return m.Dims()
}

func TestRootCommandSubcommands(t *testing.T) {
	root := New(io.Discard, LogInfo).RootCommand()
	want := []string{"landscape", "distance", "diagrams", "serve", "cache", "completion"}
	for _, name := range want {
		if cmd, _, err := root.Find([]string{name}); err != nil || cmd.Name() != name {
			t.Errorf("subcommand %q not registered", name)
		}
	}
	for _, flag := range []string{"verbose", "config"} {
		if root.PersistentFlags().Lookup(flag) == nil {
			t.Errorf("persistent flag --%s missing", flag)
		}
	}
}

func TestLandscapeCommand(t *testing.T) {
	h := newHarness(t)

	output, err := h.run("landscape", "--dim", "1", "--dgms", h.data, "--save", h.save)
	if err != nil {
		t.Fatalf("landscape: %v\n%s", err, output)
	}
	want := fmt.Sprintf("Successfully saved in %s!", filepath.Join(h.save, "persistence_landscapes_1dim.npy"))
	if !strings.Contains(output, want) {
		t.Errorf("output %q should contain %q", output, want)
	}
	if rows, cols := h.features(); rows != 3 || cols != 1000 {
		t.Errorf("features are %dx%d, want 3x1000", rows, cols)
	}

	output, err = h.run("landscape", "--dim", "1", "--dgms", h.data, "--save", h.save,
		"--n-nodes", "10", "--n-ld", "2", "--xmax", "0.5", "--workers", "2")
	if err != nil {
		t.Fatalf("landscape with grid flags: %v\n%s", err, output)
	}
	if rows, cols := h.features(); rows != 3 || cols != 20 {
		t.Errorf("features are %dx%d, want 3x20", rows, cols)
	}
}

func TestLandscapeCommandConfig(t *testing.T) {
	h := newHarness(t)
	cfgPath := filepath.Join(h.home, "topofeat.toml")
	cfg := "[grid]\nxmin = 0.0\nxmax = 1.0\nn_nodes = 10\nn_layers = 2\n\n[cache]\nbackend = \"none\"\n"
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}

	if output, err := h.run("--config", cfgPath, "landscape", "--dim", "1", "--dgms", h.data, "--save", h.save); err != nil {
		t.Fatalf("landscape: %v\n%s", err, output)
	}
	if _, cols := h.features(); cols != 20 {
		t.Errorf("config grid not applied: cols = %d, want 20", cols)
	}

	// Explicit flags win over the config file.
	if output, err := h.run("--config", cfgPath, "landscape", "--dim", "1", "--dgms", h.data, "--save", h.save, "--n-ld", "3"); err != nil {
		t.Fatalf("landscape: %v\n%s", err, output)
	}
	if _, cols := h.features(); cols != 30 {
		t.Errorf("flag did not override config: cols = %d, want 30", cols)
	}
	if _, err := os.Stat(filepath.Join(h.home, ".cache", appName)); err == nil {
		t.Error("backend none should not create the cache directory")
	}
}

func TestCommandErrors(t *testing.T) {
	tests := []struct {
		name string
		args func(h *harness) []string
		code errors.Code
	}{
		{"invalid dimension", func(h *harness) []string {
			return []string{"landscape", "--dim", "2", "--dgms", h.data, "--save", h.save}
		}, errors.ErrCodeInvalidDimension},
		{"missing dimension data", func(h *harness) []string {
			return []string{"landscape", "--dim", "0", "--dgms", h.data, "--save", h.save}
		}, errors.ErrCodeDimensionMismatch},
		{"missing input dir", func(h *harness) []string {
			return []string{"landscape", "--dim", "1", "--dgms", filepath.Join(h.data, "nope"), "--save", h.save}
		}, errors.ErrCodeFileNotFound},
		{"inverted grid", func(h *harness) []string {
			return []string{"landscape", "--dim", "1", "--dgms", h.data, "--save", h.save, "--xmin", "1", "--xmax", "0"}
		}, errors.ErrCodeInvalidGrid},
		{"grid wider than max width", func(h *harness) []string {
			return []string{"landscape", "--dim", "1", "--dgms", h.data, "--save", h.save, "--n-nodes", "1000000000"}
		}, errors.ErrCodeInvalidGrid},
		{"overflowing grid", func(h *harness) []string {
			return []string{"landscape", "--dim", "1", "--dgms", h.data, "--save", h.save, "--n-ld", "4611686018427387904"}
		}, errors.ErrCodeInvalidGrid},
		{"unknown metric", func(h *harness) []string {
			return []string{"distance", "--dim", "1", "--dgms", h.data, "--save", h.save, "--metric", "wasserstein"}
		}, errors.ErrCodeUnsupportedMetric},
		{"exec metric without command", func(h *harness) []string {
			return []string{"distance", "--dim", "1", "--dgms", h.data, "--save", h.save, "--metric", "exec"}
		}, errors.ErrCodeInvalidInput},
		{"diagrams without engine", func(h *harness) []string {
			return []string{"diagrams", "--dim", "1", "--raw-data", filepath.Join(h.data, "x.json"), "--save", h.save}
		}, errors.ErrCodeInvalidInput},
		{"missing config file", func(h *harness) []string {
			return []string{"--config", filepath.Join(h.home, "none.toml"), "cache", "path"}
		}, errors.ErrCodeFileNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			output, err := h.run(tt.args(h)...)
			if !errors.Is(err, tt.code) {
				t.Errorf("error = %v, want %s\n%s", err, tt.code, output)
			}
			if _, statErr := os.Stat(filepath.Join(h.save, topoio.FeaturesFile(1))); statErr == nil {
				t.Error("no output should be written on failure")
			}
		})
	}
}

func TestExecMetricVersion(t *testing.T) {
	c := New(io.Discard, LogInfo)
	c.Config.Distance.Metric = config.MetricExec
	c.Config.Distance.MetricCmd = os.Args[0]
	c.Config.Distance.MetricVersion = "1.0"

	metricID := func(args ...string) string {
		t.Helper()
		cmd := c.distanceCommand()
		if err := cmd.ParseFlags(args); err != nil {
			t.Fatalf("ParseFlags: %v", err)
		}
		var df distanceFlags
		df.metricVer, _ = cmd.Flags().GetString("metric-version")
		opts := pipeline.DefaultOptions()
		if err := c.applyDistanceFlags(cmd, &df, &opts); err != nil {
			t.Fatalf("applyDistanceFlags: %v", err)
		}
		m, ok := opts.Metric.(*engine.ExecMetric)
		if !ok {
			t.Fatalf("metric = %T, want *engine.ExecMetric", opts.Metric)
		}
		return m.ID()
	}

	fromConfig := metricID()
	if !strings.HasSuffix(fromConfig, "@1.0") {
		t.Errorf("ID from config = %q, want the configured version", fromConfig)
	}
	fromFlag := metricID("--metric-version", "2.0")
	if !strings.HasSuffix(fromFlag, "@2.0") {
		t.Errorf("ID from flag = %q, want the flag version", fromFlag)
	}
}

func TestMissingRequiredFlag(t *testing.T) {
	h := newHarness(t)
	if _, err := h.run("landscape", "--dim", "1", "--save", h.save); err == nil {
		t.Error("landscape without --dgms should fail")
	}
}

func TestDistanceCommand(t *testing.T) {
	h := newHarness(t)

	output, err := h.run("distance", "--dim", "1", "--dgms", h.data, "--save", h.save, "--p", "1")
	if err != nil {
		t.Fatalf("distance: %v\n%s", err, output)
	}
	path := filepath.Join(h.save, "pairwise_btnck_dist_dim1.csv")
	if !strings.Contains(output, "Successfully saved in "+path+"!") {
		t.Errorf("unexpected output %q", output)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 4 || lines[0] != ",0,1,2" || !strings.HasPrefix(lines[1], "0,0.0,") {
		t.Errorf("unexpected csv:\n%s", data)
	}
}

func TestCacheCommands(t *testing.T) {
	h := newHarness(t)
	dir := filepath.Join(h.home, ".cache", appName)

	output, err := h.run("cache", "path")
	if err != nil || strings.TrimSpace(output) != dir {
		t.Errorf("cache path = %q, %v; want %q", output, err, dir)
	}

	if output, _ := h.run("cache", "clear"); !strings.Contains(output, "Cache is empty") {
		t.Errorf("clear on missing dir: %q", output)
	}

	if _, err := h.run("landscape", "--dim", "1", "--dgms", h.data, "--save", h.save); err != nil {
		t.Fatal(err)
	}
	if output, _ := h.run("landscape", "--dim", "1", "--dgms", h.data, "--save", h.save); !strings.Contains(output, iconCached) {
		t.Errorf("second run should report a cache hit: %q", output)
	}
	output, err = h.run("cache", "clear")
	if err != nil || !strings.Contains(output, "Cleared 1 cached entries") {
		t.Errorf("cache clear = %q, %v", output, err)
	}
}

func TestDiagramsCommand(t *testing.T) {
	h := newHarness(t)
	t.Setenv(helperEnv, "1")

	raw := filepath.Join(h.data, "clouds.json")
	if err := os.WriteFile(raw, []byte(`{"clouds": [[[0,0,0],[1,0,0]], [[0,1,0]]]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	engineCmd := os.Args[0] + " -test.run=TestHelperProcess --"

	output, err := h.run("diagrams", "--dim", "1", "--raw-data", raw, "--save", h.save, "--engine-cmd", engineCmd)
	if err != nil {
		t.Fatalf("diagrams: %v\n%s", err, output)
	}
	path := filepath.Join(h.save, "persistence_diagrams_1dim.json")
	if !strings.Contains(output, "Successfully saved in "+path+"!") {
		t.Errorf("unexpected output %q", output)
	}

	coll, err := topoio.LoadDiagrams(h.save, 1)
	if err != nil {
		t.Fatal(err)
	}
	if coll.Len() != 2 || len(coll.Diagrams[0]) != 1 || coll.Diagrams[0][0] != (diagram.Pair{Birth: 0.2, Death: 0.5}) {
		t.Errorf("diagrams = %v", coll.Diagrams)
	}
}

const helperEnv = "TOPOFEAT_TEST_HELPER"

// TestHelperProcess acts as a persistence engine when re-executed by
// TestDiagramsCommand. It reports one interval in each dimension.
func TestHelperProcess(t *testing.T) {
	if os.Getenv(helperEnv) != "1" {
		return
	}
	var req struct {
		Points [][3]float64 `json:"points"`
	}
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	fmt.Fprint(os.Stdout, `[[0, [0, "inf"]], [1, [0.2, 0.5]]]`)
	os.Exit(0)
}
