package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/matzehuels/topofeat/pkg/errors"
)

// Command is an external program invocation.
type Command struct {
	Path string
	Args []string

	// Env is appended to the environment of the current process.
	Env []string
}

// ParseCommand splits a command line on whitespace. Quoting is not
// supported; use a wrapper script for arguments containing spaces.
func ParseCommand(line string) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}, errors.New(errors.ErrCodeInvalidInput, "empty command")
	}
	return Command{Path: fields[0], Args: fields[1:]}, nil
}

// String returns the command line.
func (c Command) String() string {
	return strings.Join(append([]string{c.Path}, c.Args...), " ")
}

// Validate checks that the program can be found.
func (c Command) Validate() error {
	if c.Path == "" {
		return errors.New(errors.ErrCodeInvalidInput, "empty command")
	}
	if _, err := exec.LookPath(c.Path); err != nil {
		return errors.Wrap(errors.ErrCodeEngine, err, "command %q not found", c.Path)
	}
	return nil
}

// run encodes in as JSON on the command's stdin and decodes its stdout
// into out. A zero timeout means no bound beyond ctx.
func (c Command) run(ctx context.Context, timeout time.Duration, in, out any) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	payload, err := json.Marshal(in)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "encode request")
	}

	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	cmd.Stdin = bytes.NewReader(payload)
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if ctxErr == context.DeadlineExceeded {
				return errors.Wrap(errors.ErrCodeTimeout, ctxErr, "%s timed out", c.Path)
			}
			return ctxErr
		}
		return errors.Wrap(errors.ErrCodeEngine, err, "%s: %s", c.Path, strings.TrimSpace(stderr.String()))
	}
	if err := json.Unmarshal(stdout.Bytes(), out); err != nil {
		return errors.Wrap(errors.ErrCodeEngine, err, "%s: invalid output", c.Path)
	}
	return nil
}

// number is a float64 that also accepts the spellings engines use for an
// unbounded value: "inf", "infinity" and null.
type number float64

func (n *number) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*n = number(math.Inf(1))
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		switch strings.ToLower(str) {
		case "inf", "+inf", "infinity", "+infinity":
			*n = number(math.Inf(1))
			return nil
		}
		return fmt.Errorf("invalid number %q", str)
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*n = number(f)
	return nil
}
