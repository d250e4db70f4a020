package codegen

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"go.uber.org/zap"

	"github.com/notargets/geodrive/InputParameters"
)

var ErrStaleOutput = errors.New("external generator left the output unchanged")

// ExternalGenerator hands the parameter file to an outside generator program,
// e.g. a symbolic generator script, and checks that it produced the output
type ExternalGenerator struct {
	Params    *InputParameters.GeneratorParameters
	ParamFile string
	Logger    *zap.Logger

	generated bool
	// modification time of an output left from an earlier run, zero if none
	staleModTime time.Time
}

var _ Generator = &ExternalGenerator{}

func (eg *ExternalGenerator) Generate(ctx context.Context) error {
	var (
		command = eg.Params.Generator.Command
		args    = append(append([]string{}, command[1:]...), eg.ParamFile)
	)
	eg.staleModTime = time.Time{}
	if fi, err := os.Stat(eg.Params.OutputFilename); err == nil {
		eg.staleModTime = fi.ModTime()
	}
	cmd := exec.CommandContext(ctx, command[0], args...)
	cmd.Dir = eg.Params.BaseDir
	eg.Logger.Debug("running external generator", zap.Strings("command", cmd.Args), zap.String("dir", cmd.Dir))
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("external generator %s failed: %w\n%s", command[0], err, tail(out, 2048))
	}
	if eg.Params.EchoLevel > 1 {
		eg.Logger.Info("external generator output", zap.ByteString("output", out))
	}
	eg.generated = true
	return nil
}

func (eg *ExternalGenerator) Write() error {
	if !eg.generated {
		return ErrNotGenerated
	}
	fi, err := os.Stat(eg.Params.OutputFilename)
	if err != nil {
		return fmt.Errorf("external generator did not produce %s: %w", eg.Params.OutputFilename, err)
	}
	if !eg.staleModTime.IsZero() && fi.ModTime().Equal(eg.staleModTime) {
		return fmt.Errorf("%s: %w", eg.Params.OutputFilename, ErrStaleOutput)
	}
	return nil
}

func tail(b []byte, n int) []byte {
	if len(b) > n {
		return b[len(b)-n:]
	}
	return b
}
