package piping

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/notargets/geodrive/InputParameters"
	"github.com/notargets/geodrive/projectparams"
	"github.com/notargets/geodrive/simulation"
)

const scenarioParameters = `{
    "problem_data": {"problem_name": "pipe"},
    "processes": {
        "constraints_process_list": [
            {"Parameters": {"model_part_name": "PorousDomain.Left_head", "reference_coordinate": 0.0}},
            {"Parameters": {"model_part_name": "PorousDomain.Right_head", "reference_coordinate": 0.0}}
        ]
    }
}`

func makeScenarios(t *testing.T, root string, names ...string) {
	t.Helper()
	for _, name := range names {
		dir := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(dir, 0755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "ProjectParameters.json"), []byte(scenarioParameters), 0644))
	}
}

// headRunner reads the head written into the parameter file and activates
// all elements from onset on, the way a piping model would
type headRunner struct {
	onset map[string]float64
	mu    sync.Mutex
	runs  map[string][]float64
}

func (hr *headRunner) Run(ctx context.Context, dir string) (*simulation.Outcome, error) {
	d, err := projectparams.Load(filepath.Join(dir, "ProjectParameters.json"))
	if err != nil {
		return nil, err
	}
	cs, err := d.Constraints()
	if err != nil {
		return nil, err
	}
	head := *cs[0].ReferenceCoordinate
	name := filepath.Base(dir)
	hr.mu.Lock()
	if hr.runs == nil {
		hr.runs = make(map[string][]float64)
	}
	hr.runs[name] = append(hr.runs[name], head)
	hr.mu.Unlock()
	active := head >= hr.onset[name]
	return &simulation.Outcome{Elements: []simulation.ElementState{
		{ID: 1, PipeActive: active}, {ID: 2, PipeActive: active},
	}}, nil
}

type memRecorder struct {
	mu      sync.Mutex
	probes  []ProbeEvent
	results []CriticalHead
}

func (mr *memRecorder) RecordProbe(ctx context.Context, ev ProbeEvent) error {
	mr.mu.Lock()
	defer mr.mu.Unlock()
	mr.probes = append(mr.probes, ev)
	return nil
}

func (mr *memRecorder) RecordResult(ctx context.Context, res CriticalHead) error {
	mr.mu.Lock()
	defer mr.mu.Unlock()
	mr.results = append(mr.results, res)
	return nil
}

func sweepParameters(t *testing.T, root string, doc string) *InputParameters.SweepParameters {
	t.Helper()
	sp := InputParameters.NewSweepParameters()
	require.NoError(t, sp.Parse([]byte(doc)))
	sp.Resolve(root)
	return sp
}

func TestSweep(t *testing.T) {
	defer goleak.VerifyNone(t)
	root := t.TempDir()
	names := []string{"soil1", "soil2", "soil1_soil2", "never"}
	makeScenarios(t, root, names...)
	runner := &headRunner{onset: map[string]float64{
		"soil1": 1.7, "soil2": 1.85, "soil1_soil2": 0.95, "never": 100,
	}}

	for _, strategy := range []string{"linear", "bisect"} {
		for _, jobs := range []string{"1", "3"} {
			t.Run(strategy+"/"+jobs, func(t *testing.T) {
				sp := sweepParameters(t, root, `{command: [solver], strategy: `+strategy+`, jobs: `+jobs+`, `+
					`scenarios: [soil1, soil2, soil1_soil2, never]}`)
				rec := &memRecorder{}
				sweep, scenarios := NewSweep(sp, runner, nil)
				sweep.Recorder = rec
				results, err := sweep.Run(context.Background(), scenarios)
				require.NoError(t, err)
				require.Len(t, results, 4)
				for i, name := range names {
					assert.Equal(t, name, results[i].Scenario)
				}
				heads := sp.HeadSequence()
				assert.Equal(t, heads[16], results[0].Head)
				assert.Equal(t, heads[18], results[1].Head)
				assert.Equal(t, heads[9], results[2].Head)
				assert.True(t, math.IsNaN(results[3].Head))
				assert.Equal(t, NeverActive, results[3].Reason)

				assert.Len(t, rec.results, 4)
				probes := 0
				for _, r := range results {
					probes += r.Probes
				}
				assert.Len(t, rec.probes, probes)
			})
		}
	}
	// Linear search probes every head of a scenario that never activates
	runner.mu.Lock()
	defer runner.mu.Unlock()
	step := 0.1
	assert.Contains(t, runner.runs["never"], float64(119)*step)
}

func TestSweepPatchesTargetedConstraints(t *testing.T) {
	root := t.TempDir()
	makeScenarios(t, root, "case")
	sp := sweepParameters(t, root, `{command: [solver], scenarios: [case], heads: {start: 0, step: 0.5, count: 4}}`)
	runner := &simulation.ScriptedRunner{Script: map[string][][]bool{
		filepath.Join(root, "case"): {{false}, {true}},
	}}
	sweep, scenarios := NewSweep(sp, runner, nil)
	results, err := sweep.Run(context.Background(), scenarios)
	require.NoError(t, err)
	assert.Equal(t, 0., results[0].Head)
	assert.Equal(t, 2, runner.Calls(filepath.Join(root, "case")))

	// The last probed head stays in the file, other constraints are untouched
	d, err := projectparams.Load(filepath.Join(root, "case", "ProjectParameters.json"))
	require.NoError(t, err)
	cs, err := d.Constraints()
	require.NoError(t, err)
	assert.Equal(t, 0.5, *cs[0].ReferenceCoordinate)
	assert.Equal(t, 0., *cs[1].ReferenceCoordinate)
}

func TestSweepErrors(t *testing.T) {
	defer goleak.VerifyNone(t)
	root := t.TempDir()
	makeScenarios(t, root, "a", "b")
	ctx := context.Background()

	t.Run("no elements", func(t *testing.T) {
		// Only the scenario without elements fails, the other one completes
		sp := sweepParameters(t, root, `{command: [solver], jobs: 2, scenarios: [a, b]}`)
		runner := &simulation.ScriptedRunner{Script: map[string][][]bool{
			filepath.Join(root, "a"): {{false}, {}},
			filepath.Join(root, "b"): {{false}, {false}, {true}},
		}}
		rec := &memRecorder{}
		sweep, scenarios := NewSweep(sp, runner, nil)
		sweep.Recorder = rec
		results, err := sweep.Run(ctx, scenarios)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, NoPipeElements, results[0].Reason)
		assert.True(t, math.IsNaN(results[0].Head))
		assert.Equal(t, 2, results[0].Probes)
		assert.Equal(t, Found, results[1].Reason)
		assert.Equal(t, sp.HeadSequence()[1], results[1].Head)
		assert.Len(t, rec.results, 2)
		for _, ev := range rec.probes {
			if ev.Scenario == "a" && ev.Err != nil {
				assert.ErrorIs(t, ev.Err, ErrNoPipeElements)
			}
		}
	})
	t.Run("solver failure", func(t *testing.T) {
		boom := &simulation.RunError{Dir: "b", ExitCode: 1}
		sp := sweepParameters(t, root, `{command: [solver], jobs: 2, scenarios: [a, b]}`)
		inactive := make([][]bool, 120)
		for i := range inactive {
			inactive[i] = []bool{false}
		}
		runner := &simulation.ScriptedRunner{
			Script: map[string][][]bool{"": inactive},
			Errors: map[string]map[int]error{filepath.Join(root, "b"): {1: boom}},
		}
		sweep, scenarios := NewSweep(sp, runner, nil)
		_, err := sweep.Run(ctx, scenarios)
		var runErr *simulation.RunError
		assert.True(t, errors.As(err, &runErr))
		assert.Contains(t, err.Error(), "scenario b")
	})
	t.Run("shared folder", func(t *testing.T) {
		runner := &simulation.ScriptedRunner{Script: map[string][][]bool{"": {{true}}}}
		sweep := &Sweep{Runner: runner, ParameterFile: "ProjectParameters.json", Jobs: 2,
			Selector: projectparams.Selector{PatchFirst: true}, Heads: []float64{0, 1}}
		_, err := sweep.Run(ctx, []Scenario{
			{Name: "a", Dir: filepath.Join(root, "a")},
			{Name: "a again", Dir: filepath.Join(root, "a") + "/"},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "share folder")
		assert.Zero(t, runner.Calls(filepath.Join(root, "a")))
	})
	t.Run("missing scenario folder", func(t *testing.T) {
		sp := sweepParameters(t, root, `{command: [solver], scenarios: [missing]}`)
		sweep, scenarios := NewSweep(sp, &simulation.ScriptedRunner{}, nil)
		_, err := sweep.Run(ctx, scenarios)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
	t.Run("cancelled", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		sp := sweepParameters(t, root, `{command: [solver], scenarios: [a]}`)
		sweep, scenarios := NewSweep(sp, &simulation.ScriptedRunner{Script: map[string][][]bool{"": {{true}}}}, nil)
		_, err := sweep.Run(cctx, scenarios)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
