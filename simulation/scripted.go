package simulation

import (
	"context"
	"fmt"
	"sync"
)

// ScriptedRunner replays a fixed sequence of activation patterns, one per
// call, per folder. It stands in for the solver in dry runs and tests.
type ScriptedRunner struct {
	// Script maps a folder to the pipe active flags returned by successive runs.
	// The key "" is used for folders without an entry.
	Script map[string][][]bool
	// Errors injects a failure at a given call index of a folder
	Errors map[string]map[int]error

	mu    sync.Mutex
	calls map[string]int
}

var _ Runner = &ScriptedRunner{}

func (sr *ScriptedRunner) Run(ctx context.Context, dir string) (*Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sr.mu.Lock()
	defer sr.mu.Unlock()
	if sr.calls == nil {
		sr.calls = make(map[string]int)
	}
	n := sr.calls[dir]
	sr.calls[dir]++
	if err, ok := sr.Errors[dir][n]; ok {
		return nil, err
	}
	script, ok := sr.Script[dir]
	if !ok {
		script = sr.Script[""]
	}
	if n >= len(script) {
		return nil, fmt.Errorf("scripted runner: no outcome %d for %q", n, dir)
	}
	o := &Outcome{Elements: make([]ElementState, len(script[n]))}
	for i, active := range script[n] {
		o.Elements[i] = ElementState{ID: i + 1, PipeActive: active}
	}
	return o, nil
}

// Calls returns how often dir was run
func (sr *ScriptedRunner) Calls(dir string) int {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	return sr.calls[dir]
}
