package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"testing"
	"time"
)

const helperEnv = "TOPOFEAT_TEST_HELPER"

// helperCommand re-executes the test binary as a fake external tool.
func helperCommand(mode string) Command {
	return Command{
		Path: os.Args[0],
		Args: []string{"-test.run=TestHelperProcess", "--", mode},
		Env:  []string{helperEnv + "=1"},
	}
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv(helperEnv) != "1" {
		return
	}
	defer os.Exit(0)

	mode := ""
	for i, arg := range os.Args {
		if arg == "--" && i+1 < len(os.Args) {
			mode = os.Args[i+1]
		}
	}

	switch mode {
	case "engine":
		var req engineRequest
		if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		fmt.Printf(`[[0, [0, "inf"]], [0, [0, %d]], [1, [%g, null]], [1, [0.5, 0.75]]]`,
			len(req.Points), req.MinPersistence)
	case "metric":
		var req metricRequest
		if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		d := len(req.A) - len(req.B)
		if d < 0 {
			d = -d
		}
		fmt.Print(d)
	case "fail":
		fmt.Fprint(os.Stderr, "engine exploded")
		os.Exit(3)
	case "garbage":
		fmt.Print("this is not json")
	case "sleep":
		time.Sleep(10 * time.Second)
	default:
		fmt.Fprintf(os.Stderr, "unknown helper mode %q", mode)
		os.Exit(2)
	}
}
