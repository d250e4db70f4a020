package simulation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"time"

	"github.com/ghodss/yaml"
	"go.uber.org/zap"
)

const outputTail = 4096

// ExecRunner runs the solver as a child process in the scenario folder and
// then reads ResultsFile from that folder
type ExecRunner struct {
	Command     []string
	Env         map[string]string
	Timeout     time.Duration // zero means no limit
	ResultsFile string
	Logger      *zap.Logger
}

var _ Runner = &ExecRunner{}

func (er *ExecRunner) Run(ctx context.Context, dir string) (o *Outcome, err error) {
	var (
		logger = er.Logger
		start  = time.Now()
		out    bytes.Buffer
	)
	if len(er.Command) == 0 {
		return nil, fmt.Errorf("no simulation command configured")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if er.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, er.Timeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, er.Command[0], er.Command[1:]...)
	cmd.Dir = dir
	cmd.Env = er.environ()
	cmd.Stdout = &out
	cmd.Stderr = &out
	setProcessGroup(cmd)

	logger.Debug("running simulation", zap.Strings("command", er.Command), zap.String("dir", dir))
	err = cmd.Run()
	elapsed := time.Since(start)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("simulation in %s cancelled after %v: %w", dir, elapsed, ctxErr)
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, &RunError{Dir: dir, ExitCode: exitErr.ExitCode(), Output: tail(out.Bytes(), outputTail)}
		}
		return nil, fmt.Errorf("starting simulation in %s: %w", dir, err)
	}
	elements, err := ReadResults(filepath.Join(dir, er.ResultsFile))
	if err != nil {
		return nil, err
	}
	logger.Debug("simulation finished",
		zap.String("dir", dir), zap.Duration("elapsed", elapsed), zap.Int("elements", len(elements)))
	return &Outcome{Elements: elements, Duration: elapsed, Output: tail(out.Bytes(), outputTail)}, nil
}

func (er *ExecRunner) environ() []string {
	env := os.Environ()
	keys := make([]string, 0, len(er.Env))
	for k := range er.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+er.Env[k])
	}
	return env
}

type resultsFile struct {
	Elements []ElementState `json:"elements"`
}

// ReadResults reads the element states written by the solver, e.g.
//
//	{"elements": [{"id": 1, "pipe_active": true}, {"id": 2, "pipe_active": false}]}
func ReadResults(path string) ([]ElementState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading simulation results: %w", err)
	}
	var rf resultsFile
	if err = yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parsing simulation results %s: %w", path, err)
	}
	return rf.Elements, nil
}

func tail(b []byte, n int) []byte {
	if len(b) > n {
		b = b[len(b)-n:]
	}
	return append([]byte(nil), b...)
}
