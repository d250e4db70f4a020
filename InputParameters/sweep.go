package InputParameters

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/ghodss/yaml"
)

const (
	StrategyLinear = "linear"
	StrategyBisect = "bisect"
)

// HeadRange describes the candidate head sequence: value i is Start + i*Step
type HeadRange struct {
	Start float64 `json:"start"`
	Step  float64 `json:"step"`
	Count int     `json:"count"`
}

// Parameters obtained from the sweep input file
type SweepParameters struct {
	Title                string             `json:"title"`
	ParameterFile        string             `json:"parameter_file"`
	ResultsFile          string             `json:"results_file"`
	Command              []string           `json:"command"`
	Env                  map[string]string  `json:"env"`
	Timeout              string             `json:"timeout"`
	Heads                HeadRange          `json:"heads"`
	TargetModelPart      string             `json:"target_model_part"`
	PatchFirstConstraint bool               `json:"patch_first_constraint"`
	Strategy             string             `json:"strategy"`
	ScenarioRoot         string             `json:"scenario_root"`
	Scenarios            []string           `json:"scenarios"`
	Expected             map[string]float64 `json:"expected"`
	Tolerance            float64            `json:"tolerance"`
	Jobs                 int                `json:"jobs"`
}

func NewSweepParameters() *SweepParameters {
	return &SweepParameters{
		ParameterFile:        "ProjectParameters.json",
		ResultsFile:          "pipe_active.json",
		Heads:                HeadRange{Start: 0, Step: 0.1, Count: 120},
		TargetModelPart:      "Left_head",
		PatchFirstConstraint: true,
		Strategy:             StrategyLinear,
		Tolerance:            1e-9,
		Jobs:                 1,
	}
}

func (sp *SweepParameters) Parse(data []byte) error {
	if err := yaml.Unmarshal(data, sp); err != nil {
		return fmt.Errorf("parsing sweep parameters: %w", err)
	}
	return sp.Validate()
}

func (sp *SweepParameters) Validate() error {
	if len(sp.Command) == 0 {
		return fmt.Errorf("command is required")
	}
	if len(sp.Scenarios) == 0 {
		return fmt.Errorf("at least one scenario is required")
	}
	seen := make(map[string]bool, len(sp.Scenarios))
	// Scenarios naming the same folder would rewrite one parameter file
	for _, s := range sp.Scenarios {
		dir := filepath.Clean(s)
		if seen[dir] {
			return fmt.Errorf("duplicate scenario %q", s)
		}
		seen[dir] = true
	}
	if sp.Heads.Count < 0 {
		return fmt.Errorf("heads.count must not be negative, got %d", sp.Heads.Count)
	}
	if sp.Heads.Count > 1 && sp.Heads.Step <= 0 {
		return fmt.Errorf("heads.step must be positive, got %v", sp.Heads.Step)
	}
	switch sp.Strategy {
	case StrategyLinear, StrategyBisect:
	default:
		return fmt.Errorf("unknown strategy %q", sp.Strategy)
	}
	if sp.Jobs < 1 {
		return fmt.Errorf("jobs must be at least 1, got %d", sp.Jobs)
	}
	if sp.Tolerance < 0 {
		return fmt.Errorf("tolerance must not be negative")
	}
	if _, err := sp.TimeoutDuration(); err != nil {
		return err
	}
	return nil
}

// TimeoutDuration is zero when no timeout is configured
func (sp *SweepParameters) TimeoutDuration() (time.Duration, error) {
	if len(sp.Timeout) == 0 {
		return 0, nil
	}
	d, err := time.ParseDuration(sp.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q: %w", sp.Timeout, err)
	}
	return d, nil
}

// HeadSequence returns the ascending candidate heads
func (sp *SweepParameters) HeadSequence() (heads []float64) {
	heads = make([]float64, sp.Heads.Count)
	for i := range heads {
		heads[i] = sp.Heads.Start + float64(i)*sp.Heads.Step
	}
	return
}

// ScenarioDir returns the folder of a named scenario
func (sp *SweepParameters) ScenarioDir(name string) string {
	return resolvePath(sp.ScenarioRoot, name)
}

// Resolve anchors a relative scenario root at baseDir
func (sp *SweepParameters) Resolve(baseDir string) {
	if len(sp.ScenarioRoot) == 0 {
		sp.ScenarioRoot = baseDir
		return
	}
	if !filepath.IsAbs(sp.ScenarioRoot) {
		sp.ScenarioRoot = filepath.Join(baseDir, sp.ScenarioRoot)
	}
}

func (sp *SweepParameters) Print() {
	fmt.Printf("\"%s\"\t\t= Title\n", sp.Title)
	fmt.Printf("\"%s\"\t= Parameter File\n", sp.ParameterFile)
	fmt.Printf("%v\t= Command\n", sp.Command)
	fmt.Printf("[%s]\t\t\t= Strategy\n", sp.Strategy)
	fmt.Printf("%8.5f, %8.5f, [%d]\t= Heads (start, step, count)\n",
		sp.Heads.Start, sp.Heads.Step, sp.Heads.Count)
	fmt.Printf("[%s]\t\t= Target Model Part\n", sp.TargetModelPart)
	fmt.Printf("[%d]\t\t\t\t= Jobs\n", sp.Jobs)
	for i, s := range sp.Scenarios {
		fmt.Printf("Scenario[%d] = %s\n", i, s)
	}
	for _, key := range sortedKeys(sp.Expected) {
		fmt.Printf("Expected[%s] = %v\n", key, sp.Expected[key])
	}
}
