// Package simulation runs the external solver on a scenario folder and reads
// back the per element piping state it reports.
package simulation

import (
	"context"
	"fmt"
	"time"
)

// Runner executes one simulation in dir and reports the element states
type Runner interface {
	Run(ctx context.Context, dir string) (*Outcome, error)
}

// ElementState is the reported state of one piping element
type ElementState struct {
	ID         int  `json:"id"`
	PipeActive bool `json:"pipe_active"`
}

type Outcome struct {
	Elements []ElementState
	Duration time.Duration
	Output   []byte
}

// PipeActive returns the activation flag of every element in reported order
func (o *Outcome) PipeActive() (flags []bool) {
	flags = make([]bool, len(o.Elements))
	for i, e := range o.Elements {
		flags[i] = e.PipeActive
	}
	return
}

// RunError reports a solver process that exited with a non zero status
type RunError struct {
	Dir      string
	ExitCode int
	Output   []byte
}

func (e *RunError) Error() string {
	return fmt.Sprintf("simulation in %s exited with code %d\n%s", e.Dir, e.ExitCode, e.Output)
}
