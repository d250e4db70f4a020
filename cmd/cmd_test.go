package cmd

import (
	"bytes"
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/geodrive/history"
	"github.com/notargets/geodrive/piping"
	"github.com/notargets/geodrive/projectparams"
	"github.com/notargets/geodrive/simulation"
)

const projectParameters = `{
    "processes": {
        "constraints_process_list": [
            {"Parameters": {"model_part_name": "PorousDomain.Left_head", "reference_coordinate": 0.0}}
        ]
    }
}`

func writeSweep(t *testing.T, doc string, scenarios ...string) (paramFile string) {
	t.Helper()
	root := t.TempDir()
	for _, name := range scenarios {
		dir := filepath.Join(root, "cases", name)
		require.NoError(t, os.MkdirAll(dir, 0755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "ProjectParameters.json"), []byte(projectParameters), 0644))
	}
	paramFile = filepath.Join(root, "sweep.yaml")
	require.NoError(t, os.WriteFile(paramFile, []byte(doc), 0644))
	return
}

// onsetAt activates every element from the n-th run on
func onsetAt(n int) [][]bool {
	script := make([][]bool, n+1)
	for i := range script {
		script[i] = []bool{i == n, i == n}
	}
	return script
}

// headRunner activates the elements once the head written to the parameter
// file reaches onset
type headRunner float64

func (hr headRunner) Run(ctx context.Context, dir string) (*simulation.Outcome, error) {
	d, err := projectparams.Load(filepath.Join(dir, "ProjectParameters.json"))
	if err != nil {
		return nil, err
	}
	cs, err := d.Constraints()
	if err != nil {
		return nil, err
	}
	active := *cs[0].ReferenceCoordinate >= float64(hr)
	return &simulation.Outcome{Elements: []simulation.ElementState{{ID: 1, PipeActive: active}}}, nil
}

func TestRunSweep(t *testing.T) {
	paramFile := writeSweep(t, `
title: consecutive pipe lines
command: [solver]
scenario_root: cases
heads: {start: 0, step: 0.1, count: 10}
scenarios: [soil1, soil2]
expected:
  soil1: 0.2
`, "soil1", "soil2")
	dir := filepath.Dir(paramFile)
	runner := &simulation.ScriptedRunner{Script: map[string][][]bool{
		filepath.Join(dir, "cases", "soil1"): onsetAt(3),
		filepath.Join(dir, "cases", "soil2"): onsetAt(0),
	}}
	opts := SweepOptions{
		ParamFile: paramFile,
		CSVFile:   filepath.Join(dir, "out.csv"),
		History:   filepath.Join(dir, "history.db"),
	}
	var out bytes.Buffer
	results, err := RunSweep(context.Background(), opts, runner, &out, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.InDelta(t, 0.2, results[0].Head, 1e-12)
	assert.True(t, math.IsNaN(results[1].Head))
	assert.Equal(t, piping.ActiveAtFirstHead, results[1].Reason)
	assert.Contains(t, out.String(), "soil1")

	f, err := os.Open(opts.CSVFile)
	require.NoError(t, err)
	defer f.Close()
	heads, order, err := piping.ReadCSV(f)
	require.NoError(t, err)
	assert.Equal(t, []string{"soil1", "soil2"}, order)
	assert.InDelta(t, 0.2, heads["soil1"], 1e-12)

	store, err := history.Open(context.Background(), opts.History)
	require.NoError(t, err)
	defer store.Close()
	id, err := store.LatestSweep(context.Background())
	require.NoError(t, err)
	stored, err := store.Results(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, "soil1", stored[0].Scenario)
	assert.Equal(t, 4, stored[0].Probes)
	n, err := store.ProbeCount(context.Background(), id, "soil2")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRunSweepMismatch(t *testing.T) {
	paramFile := writeSweep(t, `{command: [solver], scenario_root: cases, heads: {start: 1, step: 0.5, count: 4}, scenarios: [a], expected: {a: 2.0}}`, "a")
	runner := &simulation.ScriptedRunner{Script: map[string][][]bool{"": onsetAt(1)}}
	var out bytes.Buffer
	results, err := RunSweep(context.Background(), SweepOptions{ParamFile: paramFile}, runner, &out, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 1 expected")
	require.Len(t, results, 1)
	assert.Equal(t, 1., results[0].Head)
	assert.Contains(t, out.String(), "MISMATCH a: got 1, expected 2")
}

func TestRunSweepNoPipeElements(t *testing.T) {
	paramFile := writeSweep(t, `{command: [solver], scenario_root: cases, heads: {start: 0, step: 1, count: 4}, scenarios: [a, b]}`, "a", "b")
	dir := filepath.Dir(paramFile)
	runner := &simulation.ScriptedRunner{Script: map[string][][]bool{
		filepath.Join(dir, "cases", "a"): {{}},
		filepath.Join(dir, "cases", "b"): onsetAt(2),
	}}
	csvFile := filepath.Join(dir, "out.csv")
	var out bytes.Buffer
	results, err := RunSweep(context.Background(), SweepOptions{ParamFile: paramFile, CSVFile: csvFile}, runner, &out, nil)
	assert.ErrorIs(t, err, piping.ErrNoPipeElements)
	assert.Contains(t, err.Error(), "[a]")
	require.Len(t, results, 2)
	assert.Equal(t, 1., results[1].Head)
	data, err := os.ReadFile(csvFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "a,NaN,false,no pipe elements,1")
}

func TestRunSweepOverrides(t *testing.T) {
	paramFile := writeSweep(t, `{command: [solver], scenario_root: cases, heads: {start: 0, step: 1, count: 16}, scenarios: [a, b]}`, "a", "b")
	runner := headRunner(14.5)
	results, err := RunSweep(context.Background(),
		SweepOptions{ParamFile: paramFile, Strategy: "bisect", Jobs: 2}, runner, &bytes.Buffer{}, nil)
	require.NoError(t, err)
	for _, r := range results {
		assert.Equal(t, 14., r.Head)
		assert.LessOrEqual(t, r.Probes, 5)
	}

	_, err = RunSweep(context.Background(),
		SweepOptions{ParamFile: paramFile, Strategy: "golden"}, runner, &bytes.Buffer{}, nil)
	assert.Error(t, err)
	_, err = RunSweep(context.Background(),
		SweepOptions{ParamFile: filepath.Join(t.TempDir(), "missing.yaml")}, runner, &bytes.Buffer{}, nil)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestGenerateCommand(t *testing.T) {
	dir := t.TempDir()
	tmpl := "// element\nnamespace kernel {\n    //substitute_constants_2D3N\n}\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "element.cpp"), []byte(tmpl), 0644))
	paramFile := filepath.Join(dir, "element.json")
	require.NoError(t, os.WriteFile(paramFile, []byte(`{
    "geometry": "triangle",
    "template_filename": "element.cpp",
    "output_filename": "generated/triangle.cpp",
    "echo_level": 0
}`), 0644))

	rootCmd.SetArgs([]string{"generate", "-p", paramFile})
	require.NoError(t, rootCmd.ExecuteContext(context.Background()))

	src, err := os.ReadFile(filepath.Join(dir, "generated", "triangle.cpp"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(src), "// element\nnamespace kernel {\n"))
	assert.Contains(t, string(src), "    constexpr std::size_t NumGauss = 3;\n")
	assert.NotContains(t, string(src), "//substitute_")
}

func TestRunGenerateErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := runGenerate(context.Background(), filepath.Join(dir, "missing.json"), nil)
	assert.ErrorIs(t, err, os.ErrNotExist)

	paramFile := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(paramFile, []byte(`{"geometry": "hexahedron", "output_filename": "o.cpp"}`), 0644))
	_, err = runGenerate(context.Background(), paramFile, nil)
	assert.ErrorContains(t, err, "hexahedron")
}
