package piping

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/notargets/geodrive/InputParameters"
	"github.com/notargets/geodrive/projectparams"
	"github.com/notargets/geodrive/simulation"
)

var ErrNoPipeElements = errors.New("simulation reported no piping elements")

type Scenario struct {
	Name string
	Dir  string
}

// CriticalHead is the search result of one scenario
type CriticalHead struct {
	Scenario string
	Search
}

// ProbeEvent describes one simulation run of a sweep
type ProbeEvent struct {
	Scenario string
	Head     float64
	Active   bool
	Elements int
	Elapsed  time.Duration
	Err      error
}

// Recorder receives every probe and every final result of a sweep
type Recorder interface {
	RecordProbe(ctx context.Context, ev ProbeEvent) error
	RecordResult(ctx context.Context, res CriticalHead) error
}

type SearchFunc func(ctx context.Context, heads []float64, probe Probe) (Search, error)

func SearchFor(strategy string) SearchFunc {
	if strategy == InputParameters.StrategyBisect {
		return BisectSearch
	}
	return LinearSearch
}

// Sweep runs the critical head search for a list of scenarios. Each scenario
// owns its folder and parameter file, so different scenarios may run
// concurrently; the runs of one scenario are always sequential.
type Sweep struct {
	Runner        simulation.Runner
	ParameterFile string
	Selector      projectparams.Selector
	Heads         []float64
	Search        SearchFunc
	Jobs          int
	Recorder      Recorder
	Logger        *zap.Logger
}

// NewSweep wires a sweep from parameters; scenario folders are resolved
// against the parameters' scenario root
func NewSweep(sp *InputParameters.SweepParameters, runner simulation.Runner, logger *zap.Logger) (s *Sweep, scenarios []Scenario) {
	s = &Sweep{
		Runner:        runner,
		ParameterFile: sp.ParameterFile,
		Selector: projectparams.Selector{
			TargetModelPart: sp.TargetModelPart,
			PatchFirst:      sp.PatchFirstConstraint,
		},
		Heads:  sp.HeadSequence(),
		Search: SearchFor(sp.Strategy),
		Jobs:   sp.Jobs,
		Logger: logger,
	}
	scenarios = make([]Scenario, len(sp.Scenarios))
	for i, name := range sp.Scenarios {
		scenarios[i] = Scenario{Name: name, Dir: sp.ScenarioDir(name)}
	}
	return
}

// Run returns one result per scenario in input order
func (s *Sweep) Run(ctx context.Context, scenarios []Scenario) (results []CriticalHead, err error) {
	if s.Logger == nil {
		s.Logger = zap.NewNop()
	}
	if s.Search == nil {
		s.Search = LinearSearch
	}
	dirs := make(map[string]string, len(scenarios))
	for _, sc := range scenarios {
		dir := filepath.Clean(sc.Dir)
		if other, ok := dirs[dir]; ok {
			return nil, fmt.Errorf("scenarios %s and %s share folder %s", other, sc.Name, dir)
		}
		dirs[dir] = sc.Name
	}
	results = make([]CriticalHead, len(scenarios))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(s.Jobs, 1))
	for i, sc := range scenarios {
		g.Go(func() error {
			res, err := s.RunScenario(gctx, sc)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err = g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Sweep) RunScenario(ctx context.Context, sc Scenario) (res CriticalHead, err error) {
	logger := s.Logger.With(zap.String("scenario", sc.Name))
	logger.Info("searching critical head", zap.Int("candidates", len(s.Heads)))
	var (
		probes int
		probe  = s.probe(sc, logger)
	)
	search, err := s.Search(ctx, s.Heads, func(ctx context.Context, head float64) (bool, error) {
		probes++
		return probe(ctx, head)
	})
	switch {
	case errors.Is(err, ErrNoPipeElements):
		// Fails this scenario only, the others keep running
		logger.Error("simulation reported no pipe elements", zap.Error(err))
		search = notFound(NoPipeElements, probes, -1)
	case err != nil:
		return res, fmt.Errorf("scenario %s: %w", sc.Name, err)
	}
	res = CriticalHead{Scenario: sc.Name, Search: search}
	if search.Found() {
		logger.Info("critical head found", zap.Float64("head", search.Head), zap.Int("probes", search.Probes))
	} else {
		logger.Warn("critical head not found", zap.Stringer("reason", search.Reason), zap.Int("probes", search.Probes))
	}
	if s.Recorder != nil {
		if err = s.Recorder.RecordResult(ctx, res); err != nil {
			return res, fmt.Errorf("recording result of %s: %w", sc.Name, err)
		}
	}
	return res, nil
}

func (s *Sweep) probe(sc Scenario, logger *zap.Logger) Probe {
	paramFile := filepath.Join(sc.Dir, s.ParameterFile)
	return func(ctx context.Context, head float64) (active bool, err error) {
		ev := ProbeEvent{Scenario: sc.Name, Head: head}
		defer func() {
			if s.Recorder == nil {
				return
			}
			ev.Err = err
			if rerr := s.Recorder.RecordProbe(ctx, ev); rerr != nil && err == nil {
				err = fmt.Errorf("recording probe: %w", rerr)
			}
		}()
		if _, err = projectparams.PatchHead(paramFile, s.Selector, head); err != nil {
			return false, err
		}
		o, err := s.Runner.Run(ctx, sc.Dir)
		if err != nil {
			return false, fmt.Errorf("head %v: %w", head, err)
		}
		flags := o.PipeActive()
		if len(flags) == 0 {
			return false, fmt.Errorf("head %v: %w", head, ErrNoPipeElements)
		}
		active = allTrue(flags)
		ev.Active, ev.Elements, ev.Elapsed = active, len(flags), o.Duration
		logger.Debug("probe", zap.Float64("head", head), zap.Bool("active", active), zap.Int("elements", len(flags)))
		return active, nil
	}
}

func allTrue(flags []bool) bool {
	for _, f := range flags {
		if !f {
			return false
		}
	}
	return true
}
