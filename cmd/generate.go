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
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/notargets/geodrive/InputParameters"
	"github.com/notargets/geodrive/codegen"
)

// GenerateCmd represents the generate command
var GenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate an element kernel source file from a template",
	Long: `
Reads generator parameters (JSON or YAML), evaluates the reference element of
the requested geometry and fills the //substitute_<block>_<tag> markers of the
template, or delegates to an external generator command.

geodrive generate -p element.json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		paramFile, _ := cmd.Flags().GetString("parameters")
		if len(paramFile) == 0 {
			fmt.Printf("Example File:%s\n", exampleGeneratorFile)
			return fmt.Errorf("must supply a generator parameters file (-p, --parameters)")
		}
		gp, err := runGenerate(cmd.Context(), paramFile, logger)
		if err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", gp.OutputFilename)
		return nil
	},
}

const exampleGeneratorFile = `
########################################
{
    "geometry": "quadrilateral",
    "template_filename": "element_template.cpp",
    "output_filename": "generated/compressible_navier_stokes_explicit_2D4N.cpp",
    "shock_capturing": true,
    "stabilization": true
}
########################################
`

func init() {
	rootCmd.AddCommand(GenerateCmd)
	GenerateCmd.Flags().StringP("parameters", "p", "", "generator parameters file")
}

func runGenerate(ctx context.Context, paramFile string, logger *zap.Logger) (gp *InputParameters.GeneratorParameters, err error) {
	var data []byte
	if data, err = os.ReadFile(paramFile); err != nil {
		return nil, err
	}
	gp = InputParameters.NewGeneratorParameters()
	if err = gp.Parse(data); err != nil {
		return nil, fmt.Errorf("%s: %w", paramFile, err)
	}
	gp.Resolve(filepath.Dir(paramFile))
	if gp.EchoLevel > 1 {
		gp.Print()
	}
	gen, err := codegen.NewGenerator(gp, paramFile, logger)
	if err != nil {
		return nil, err
	}
	if err = gen.Generate(ctx); err != nil {
		return nil, err
	}
	if err = gen.Write(); err != nil {
		return nil, err
	}
	return gp, nil
}
