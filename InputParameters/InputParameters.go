package InputParameters

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/ghodss/yaml"
)

const (
	GeometryTriangle      = "triangle"
	GeometryQuadrilateral = "quadrilateral"
	GeometryTetrahedron   = "tetrahedron"

	GeneratorNative   = "native"
	GeneratorExternal = "external"
)

// GeneratorBackend selects who produces the kernel: the built in generator
// or an external program invoked once with the parameter file
type GeneratorBackend struct {
	Kind    string   `json:"kind"`
	Command []string `json:"command"`
}

// Parameters obtained from the element generator input file (JSON or YAML)
type GeneratorParameters struct {
	Geometry         string           `json:"geometry"`
	TemplateFilename string           `json:"template_filename"`
	OutputFilename   string           `json:"output_filename"`
	EchoLevel        int              `json:"echo_level"`
	ShockCapturing   bool             `json:"shock_capturing"`
	Stabilization    bool             `json:"stabilization"`
	Generator        GeneratorBackend `json:"generator"`
	// Directory of the parameter file, set by Resolve
	BaseDir string `json:"-"`
}

func NewGeneratorParameters() *GeneratorParameters {
	return &GeneratorParameters{
		EchoLevel:      1,
		ShockCapturing: true,
		Stabilization:  true,
		Generator:      GeneratorBackend{Kind: GeneratorNative},
	}
}

func (gp *GeneratorParameters) Parse(data []byte) error {
	if err := yaml.Unmarshal(data, gp); err != nil {
		return fmt.Errorf("parsing generator parameters: %w", err)
	}
	if len(gp.Generator.Kind) == 0 {
		gp.Generator.Kind = GeneratorNative
	}
	return gp.Validate()
}

func (gp *GeneratorParameters) Validate() error {
	switch gp.Geometry {
	case GeometryTriangle, GeometryQuadrilateral, GeometryTetrahedron:
	case "":
		return fmt.Errorf("geometry is required")
	default:
		return fmt.Errorf("unsupported geometry %q", gp.Geometry)
	}
	if len(gp.TemplateFilename) == 0 && gp.Generator.Kind == GeneratorNative {
		return fmt.Errorf("template_filename is required")
	}
	if len(gp.OutputFilename) == 0 {
		return fmt.Errorf("output_filename is required")
	}
	switch gp.Generator.Kind {
	case GeneratorNative:
	case GeneratorExternal:
		if len(gp.Generator.Command) == 0 {
			return fmt.Errorf("external generator needs a command")
		}
	default:
		return fmt.Errorf("unknown generator kind %q", gp.Generator.Kind)
	}
	return nil
}

// Resolve makes relative template and output paths relative to baseDir
func (gp *GeneratorParameters) Resolve(baseDir string) {
	gp.BaseDir = baseDir
	gp.TemplateFilename = resolvePath(baseDir, gp.TemplateFilename)
	gp.OutputFilename = resolvePath(baseDir, gp.OutputFilename)
}

func (gp *GeneratorParameters) Print() {
	fmt.Printf("[%s]\t\t= Geometry\n", gp.Geometry)
	fmt.Printf("\"%s\"\t= Template\n", gp.TemplateFilename)
	fmt.Printf("\"%s\"\t= Output\n", gp.OutputFilename)
	fmt.Printf("[%d]\t\t\t= Echo Level\n", gp.EchoLevel)
	fmt.Printf("[%v]\t\t\t= Shock Capturing\n", gp.ShockCapturing)
	fmt.Printf("[%v]\t\t\t= Stabilization\n", gp.Stabilization)
	fmt.Printf("[%s]\t\t= Generator\n", gp.Generator.Kind)
}

func resolvePath(baseDir, p string) string {
	if len(p) == 0 || filepath.IsAbs(p) || len(baseDir) == 0 {
		return p
	}
	return filepath.Join(baseDir, p)
}

func sortedKeys[T any](m map[string]T) (keys []string) {
	keys = make([]string, len(m))
	i := 0
	for k := range m {
		keys[i] = k
		i++
	}
	sort.Strings(keys)
	return
}
