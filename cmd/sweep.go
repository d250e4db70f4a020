/*
Copyright © 2020 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/notargets/geodrive/InputParameters"
	"github.com/notargets/geodrive/history"
	"github.com/notargets/geodrive/piping"
	"github.com/notargets/geodrive/simulation"
)

type SweepOptions struct {
	ParamFile string
	Jobs      int    // overrides the parameters when > 0
	Strategy  string // overrides the parameters when set
	CSVFile   string
	History   string
}

// SweepCmd represents the sweep command
var SweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Search the critical piping head of a set of scenarios",
	Long: `
For every scenario folder, writes increasing heads into the boundary
constraints of the parameter file, runs the solver and reports the last head
at which no piping element is active.

geodrive sweep -p sweep.yaml --jobs 4 --csv critical_heads.csv`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := SweepOptions{
			ParamFile: viper.GetString("sweep.parameters"),
			Jobs:      viper.GetInt("sweep.jobs"),
			Strategy:  viper.GetString("sweep.strategy"),
			CSVFile:   viper.GetString("sweep.csv"),
			History:   viper.GetString("sweep.history"),
		}
		if len(opts.ParamFile) == 0 {
			fmt.Printf("Example File:%s\n", exampleSweepFile)
			return fmt.Errorf("must supply a sweep parameters file (-p, --parameters)")
		}
		_, err := RunSweep(cmd.Context(), opts, nil, os.Stdout, logger)
		return err
	},
}

const exampleSweepFile = `
########################################
title: consecutive pipe lines
command: [python3, run_simulation.py]
timeout: 30m
heads: {start: 0, step: 0.1, count: 120}
target_model_part: Left_head
scenarios:
  - split_geometry_permeability_soil1_e10
  - split_geometry_pipe2_D70_3e4
expected:
  split_geometry_permeability_soil1_e10: 1.6
########################################
`

func init() {
	rootCmd.AddCommand(SweepCmd)
	SweepCmd.Flags().StringP("parameters", "p", "", "sweep parameters file (YAML or JSON)")
	SweepCmd.Flags().IntP("jobs", "j", 0, "scenarios run concurrently, overrides the parameters file")
	SweepCmd.Flags().StringP("strategy", "s", "", "head search strategy: linear or bisect")
	SweepCmd.Flags().String("csv", "", "write the results to a CSV file")
	SweepCmd.Flags().String("history", "", "record runs and results in a SQLite database")
	for _, name := range []string{"parameters", "jobs", "strategy", "csv", "history"} {
		_ = viper.BindPFlag("sweep."+name, SweepCmd.Flags().Lookup(name))
	}
}

// RunSweep loads the sweep parameters and runs every scenario. A nil runner
// runs the configured solver command. Results are printed to out; an error is
// returned when expected heads are configured and any of them does not match.
func RunSweep(ctx context.Context, opts SweepOptions, runner simulation.Runner, out io.Writer,
	logger *zap.Logger) (results []piping.CriticalHead, err error) {
	var (
		data []byte
		sp   = InputParameters.NewSweepParameters()
	)
	if logger == nil {
		logger = zap.NewNop()
	}
	if data, err = os.ReadFile(opts.ParamFile); err != nil {
		return nil, err
	}
	if err = sp.Parse(data); err != nil {
		return nil, fmt.Errorf("%s: %w", opts.ParamFile, err)
	}
	// Command line overrides win over the file
	if opts.Jobs > 0 {
		sp.Jobs = opts.Jobs
	}
	if len(opts.Strategy) != 0 {
		sp.Strategy = opts.Strategy
		if err = sp.Validate(); err != nil {
			return nil, err
		}
	}
	sp.Resolve(filepath.Dir(opts.ParamFile))

	if runner == nil {
		timeout, err := sp.TimeoutDuration()
		if err != nil {
			return nil, err
		}
		runner = &simulation.ExecRunner{
			Command:     sp.Command,
			Env:         sp.Env,
			Timeout:     timeout,
			ResultsFile: sp.ResultsFile,
			Logger:      logger,
		}
	}

	sweep, scenarios := piping.NewSweep(sp, runner, logger)
	if len(opts.History) != 0 {
		store, err := history.Open(ctx, opts.History)
		if err != nil {
			return nil, err
		}
		defer store.Close()
		id, err := store.BeginSweep(ctx, sp.Title)
		if err != nil {
			return nil, err
		}
		logger.Info("recording history", zap.String("db", opts.History), zap.String("sweep", id))
		sweep.Recorder = store
	}

	if results, err = sweep.Run(ctx, scenarios); err != nil {
		return nil, err
	}
	piping.Print(out, results)

	if len(opts.CSVFile) != 0 {
		if err = writeCSVFile(opts.CSVFile, results); err != nil {
			return results, err
		}
	}
	mismatches := piping.Compare(results, sp.Expected, sp.Tolerance)
	for _, m := range mismatches {
		fmt.Fprintf(out, "MISMATCH %s: got %v, expected %v\n", m.Scenario, m.Got, m.Expected)
	}
	var failed []string
	for _, r := range results {
		if r.Reason == piping.NoPipeElements {
			failed = append(failed, r.Scenario)
		}
	}
	switch {
	case len(failed) != 0:
		return results, fmt.Errorf("scenarios %v: %w", failed, piping.ErrNoPipeElements)
	case len(mismatches) != 0:
		return results, fmt.Errorf("%d of %d expected critical heads do not match", len(mismatches), len(sp.Expected))
	}
	return results, nil
}

func writeCSVFile(path string, results []piping.CriticalHead) (err error) {
	var f *os.File
	if f, err = os.Create(path); err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return piping.WriteCSV(f, results)
}
