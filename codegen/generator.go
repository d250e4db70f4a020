package codegen

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/notargets/geodrive/InputParameters"
)

var ErrNotGenerated = errors.New("generate must be called before write")

// Generator produces an element kernel source file. Generate does the work,
// Write puts the result on disk.
type Generator interface {
	Generate(ctx context.Context) error
	Write() error
}

// NewGenerator returns the backend selected in the parameters. paramFile is
// the path the parameters were read from; external generators receive it.
func NewGenerator(gp *InputParameters.GeneratorParameters, paramFile string, logger *zap.Logger) (Generator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := gp.Validate(); err != nil {
		return nil, err
	}
	switch gp.Generator.Kind {
	case InputParameters.GeneratorExternal:
		// The generator runs in BaseDir, so a relative path would no longer resolve
		abs, err := filepath.Abs(paramFile)
		if err != nil {
			return nil, err
		}
		return &ExternalGenerator{Params: gp, ParamFile: abs, Logger: logger}, nil
	default:
		geom, err := LookupGeometry(gp.Geometry)
		if err != nil {
			return nil, err
		}
		return &NativeGenerator{Params: gp, Geometry: geom, Logger: logger}, nil
	}
}

// markerRE matches a template line like //substitute_shape_functions_2D4N
var markerRE = regexp.MustCompile(`^//substitute_([a-z_]+)_(\d+D\d+N)$`)

// NativeGenerator evaluates the reference element and fills the template markers
type NativeGenerator struct {
	Params   *InputParameters.GeneratorParameters
	Geometry *Geometry
	Logger   *zap.Logger

	kernel *Kernel
	blocks map[string]string
}

var _ Generator = &NativeGenerator{}

func (ng *NativeGenerator) Generate(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ng.kernel = ng.Geometry.NewKernel()
	ng.blocks = map[string]string{
		BlockConstants:        ng.kernel.generateConstants(ng.Params.ShockCapturing, ng.Params.Stabilization),
		BlockGaussPoints:      ng.kernel.generateGaussPoints(),
		BlockShapeFunctions:   ng.kernel.generateShapeFunctions(),
		BlockShapeDerivatives: ng.kernel.generateShapeDerivatives(),
	}
	if ng.Params.EchoLevel > 0 {
		ng.Logger.Info("generated element kernel",
			zap.String("geometry", ng.Geometry.Name),
			zap.String("tag", ng.Geometry.Tag),
			zap.Int("gauss_points", ng.kernel.NumGauss()))
	}
	return nil
}

// Kernel is nil until Generate has run
func (ng *NativeGenerator) Kernel() *Kernel { return ng.kernel }

func (ng *NativeGenerator) Write() error {
	if ng.blocks == nil {
		return ErrNotGenerated
	}
	tmpl, err := os.ReadFile(ng.Params.TemplateFilename)
	if err != nil {
		return fmt.Errorf("reading template: %w", err)
	}
	out, used, err := Substitute(tmpl, ng.Geometry.Tag, ng.blocks)
	if err != nil {
		return fmt.Errorf("template %s: %w", ng.Params.TemplateFilename, err)
	}
	for name := range ng.blocks {
		if !used[name] {
			ng.Logger.Warn("template has no marker for generated block",
				zap.String("block", name), zap.String("template", ng.Params.TemplateFilename))
		}
	}
	if err = writeFile(ng.Params.OutputFilename, out); err != nil {
		return err
	}
	if ng.Params.EchoLevel > 0 {
		ng.Logger.Info("wrote element kernel", zap.String("output", ng.Params.OutputFilename))
	}
	return nil
}

// Substitute replaces every marker line with its block, indented like the marker
func Substitute(tmpl []byte, tag string, blocks map[string]string) (out []byte, used map[string]bool, err error) {
	var (
		buf     bytes.Buffer
		scanner = bufio.NewScanner(bytes.NewReader(tmpl))
		lineNo  int
	)
	used = make(map[string]bool)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<24)
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		m := markerRE.FindStringSubmatch(trimmed)
		if m == nil {
			buf.WriteString(line)
			buf.WriteByte('\n')
			continue
		}
		name, markerTag := m[1], m[2]
		if markerTag != tag {
			return nil, nil, fmt.Errorf("line %d: marker for %s does not match geometry %s", lineNo, markerTag, tag)
		}
		block, ok := blocks[name]
		if !ok {
			return nil, nil, fmt.Errorf("line %d: no generated block named %q", lineNo, name)
		}
		used[name] = true
		indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
		for _, bl := range strings.Split(strings.TrimRight(block, "\n"), "\n") {
			if len(bl) > 0 {
				buf.WriteString(indent)
				buf.WriteString(bl)
			}
			buf.WriteByte('\n')
		}
	}
	if err = scanner.Err(); err != nil {
		return nil, nil, err
	}
	return buf.Bytes(), used, nil
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	return nil
}
