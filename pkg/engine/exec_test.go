package engine

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/matzehuels/topofeat/pkg/diagram"
	"github.com/matzehuels/topofeat/pkg/distance"
	"github.com/matzehuels/topofeat/pkg/errors"
)

func TestExecPersistence(t *testing.T) {
	eng := NewExec(helperCommand("engine"))
	cloud := PointCloud{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}}

	got, err := eng.Persistence(context.Background(), cloud, 0.125)
	if err != nil {
		t.Fatalf("Persistence: %v", err)
	}

	want := []diagram.Interval{
		{Dimension: 0, Pair: diagram.Pair{Birth: 0, Death: DefaultMaxAlphaSquare}},
		{Dimension: 0, Pair: diagram.Pair{Birth: 0, Death: 3}},
		{Dimension: 1, Pair: diagram.Pair{Birth: 0.125, Death: DefaultMaxAlphaSquare}},
		{Dimension: 1, Pair: diagram.Pair{Birth: 0.5, Death: 0.75}},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d intervals, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("interval %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestExecClipsToMaxAlphaSquare(t *testing.T) {
	eng := NewExec(helperCommand("engine"))
	eng.MaxAlphaSquare = 2.5

	got, err := eng.Persistence(context.Background(), PointCloud{{0, 0, 0}}, 0)
	if err != nil {
		t.Fatalf("Persistence: %v", err)
	}
	if got[0].Pair.Death != 2.5 || got[2].Pair.Death != 2.5 {
		t.Errorf("infinite deaths not clipped: %+v", got)
	}
}

func TestExecErrors(t *testing.T) {
	tests := []struct {
		name    string
		eng     *Exec
		code    errors.Code
		message string
	}{
		{
			name:    "non-zero exit",
			eng:     NewExec(helperCommand("fail")),
			code:    errors.ErrCodeEngine,
			message: "engine exploded",
		},
		{
			name: "invalid output",
			eng:  NewExec(helperCommand("garbage")),
			code: errors.ErrCodeEngine,
		},
		{
			name: "timeout",
			eng:  &Exec{Command: helperCommand("sleep"), MaxAlphaSquare: 1, Timeout: 50 * time.Millisecond},
			code: errors.ErrCodeTimeout,
		},
		{
			name: "invalid bound",
			eng:  &Exec{Command: helperCommand("engine")},
			code: errors.ErrCodeInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.eng.Persistence(context.Background(), PointCloud{{0, 0, 0}}, 0)
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, tt.code) {
				t.Errorf("error code = %s, want %s (%v)", errors.GetCode(err), tt.code, err)
			}
			if tt.message != "" && !strings.Contains(err.Error(), tt.message) {
				t.Errorf("error %q does not contain %q", err, tt.message)
			}
		})
	}
}

func TestExecMetric(t *testing.T) {
	m := &ExecMetric{Command: helperCommand("metric")}

	a := diagram.Diagram{{Birth: 0, Death: 1}, {Birth: 0.5, Death: 1}}
	d, err := m.Distance(context.Background(), a, nil)
	if err != nil {
		t.Fatalf("Distance: %v", err)
	}
	if d != 2 {
		t.Errorf("Distance = %g, want 2", d)
	}
}

func TestExecMetricInBuild(t *testing.T) {
	m := &ExecMetric{Command: helperCommand("metric")}
	dgms := []diagram.Diagram{
		{{Birth: 0, Death: 1}},
		{{Birth: 0, Death: 1}},
		{},
	}

	dm, err := distance.Build(context.Background(), dgms, m, distance.WithWorkers(2))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	want := [][]float64{{0, 0, 1}, {0, 0, 1}, {1, 1, 0}}
	got := dm.Rows()
	for i := range want {
		for j := range want[i] {
			if got[i][j] != want[i][j] {
				t.Errorf("D[%d][%d] = %g, want %g", i, j, got[i][j], want[i][j])
			}
		}
	}
}

func TestExecMetricFailureBestEffort(t *testing.T) {
	m := &ExecMetric{Command: helperCommand("fail")}
	dm, err := distance.Build(context.Background(), make([]diagram.Diagram, 3), m,
		distance.WithPolicy(distance.BestEffort))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(dm.Failures) != 3 {
		t.Fatalf("got %d failures, want 3", len(dm.Failures))
	}
	if !math.IsNaN(dm.At(0, 2)) {
		t.Errorf("D[0][2] = %g, want NaN", dm.At(0, 2))
	}
}

func TestExecMetricID(t *testing.T) {
	cmd := Command{Path: "bottleneck", Args: []string{"--delta", "0.01"}}
	tests := []struct {
		name    string
		version string
		want    string
	}{
		{"unversioned", "", "exec:bottleneck --delta 0.01"},
		{"versioned", "2.1", "exec:bottleneck --delta 0.01@2.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &ExecMetric{Command: cmd, Version: tt.version}
			if got := m.ID(); got != tt.want {
				t.Errorf("ID() = %q, want %q", got, tt.want)
			}
		})
	}

	v1 := &ExecMetric{Command: cmd, Version: "1.0"}
	v2 := &ExecMetric{Command: cmd, Version: "2.0"}
	if v1.ID() == v2.ID() {
		t.Error("upgrading the solver version must change the cache identity")
	}
}

func TestNumberUnmarshal(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{"1.5", 1.5, false},
		{"0", 0, false},
		{"null", math.Inf(1), false},
		{`"inf"`, math.Inf(1), false},
		{`"Infinity"`, math.Inf(1), false},
		{`"nan"`, 0, true},
		{`true`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var n number
			err := n.UnmarshalJSON([]byte(tt.in))
			if (err != nil) != tt.wantErr {
				t.Fatalf("UnmarshalJSON(%s) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && float64(n) != tt.want {
				t.Errorf("UnmarshalJSON(%s) = %g, want %g", tt.in, float64(n), tt.want)
			}
		})
	}
}

func TestParseCommand(t *testing.T) {
	cmd, err := ParseCommand("  python3 bottleneck.py --delta 0.01 ")
	if err != nil {
		t.Fatalf("ParseCommand: %v", err)
	}
	if cmd.Path != "python3" || len(cmd.Args) != 3 || cmd.Args[0] != "bottleneck.py" {
		t.Errorf("ParseCommand = %+v", cmd)
	}
	if cmd.String() != "python3 bottleneck.py --delta 0.01" {
		t.Errorf("String() = %q", cmd.String())
	}

	if _, err := ParseCommand("   "); !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("ParseCommand(blank) error = %v", err)
	}
}

func TestCommandValidate(t *testing.T) {
	if err := helperCommand("engine").Validate(); err != nil {
		t.Errorf("Validate(test binary) = %v", err)
	}
	missing := Command{Path: "topofeat-no-such-binary"}
	if err := missing.Validate(); !errors.Is(err, errors.ErrCodeEngine) {
		t.Errorf("Validate(missing) = %v", err)
	}
}
