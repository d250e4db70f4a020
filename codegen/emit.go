package codegen

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"
)

const (
	BlockConstants        = "constants"
	BlockGaussPoints      = "gauss_points"
	BlockShapeFunctions   = "shape_functions"
	BlockShapeDerivatives = "shape_derivatives"
)

// generateConstants emits the compile time element sizes and options
func (k *Kernel) generateConstants(shockCapturing, stabilization bool) string {
	var sb strings.Builder
	g := k.Geometry

	sb.WriteString(fmt.Sprintf("constexpr std::size_t Dim = %d;\n", g.Dim))
	sb.WriteString(fmt.Sprintf("constexpr std::size_t NumNodes = %d;\n", g.NumNodes))
	sb.WriteString(fmt.Sprintf("constexpr std::size_t NumGauss = %d;\n", k.NumGauss()))
	sb.WriteString(fmt.Sprintf("constexpr std::size_t BlockSize = %d;\n", g.BlockSize()))
	sb.WriteString(fmt.Sprintf("constexpr std::size_t DofSize = %d;\n", g.NumNodes*g.BlockSize()))
	sb.WriteString(fmt.Sprintf("constexpr bool ShockCapturing = %v;\n", shockCapturing))
	sb.WriteString(fmt.Sprintf("constexpr bool Stabilization = %v;\n", stabilization))

	return sb.String()
}

func (k *Kernel) generateGaussPoints() string {
	var sb strings.Builder

	sb.WriteString(formatStaticMatrix("gauss_points", k.Points))
	sb.WriteString(formatStaticVector("gauss_weights", k.Weights))

	return sb.String()
}

func (k *Kernel) generateShapeFunctions() string {
	return formatStaticMatrix("N", k.N)
}

// generateShapeDerivatives emits DN_DE[gauss][node][dir]
func (k *Kernel) generateShapeDerivatives() string {
	var sb strings.Builder
	g := k.Geometry
	ng := k.NumGauss()

	sb.WriteString(fmt.Sprintf("const double DN_DE[%d][%d][%d] = {\n", ng, g.NumNodes, g.Dim))
	for gp, dn := range k.DNDe {
		sb.WriteString("    {\n")
		rows, _ := dn.Dims()
		for a := 0; a < rows; a++ {
			sb.WriteString("        ")
			sb.WriteString(formatRow(mat.Row(nil, a, dn)))
			if a < rows-1 {
				sb.WriteString(",")
			}
			sb.WriteString("\n")
		}
		sb.WriteString("    }")
		if gp < ng-1 {
			sb.WriteString(",")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("};\n")

	return sb.String()
}

// formatStaticMatrix formats a single matrix as a static C array
func formatStaticMatrix(name string, m mat.Matrix) string {
	rows, cols := m.Dims()
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("const double %s[%d][%d] = {\n", name, rows, cols))
	for i := 0; i < rows; i++ {
		sb.WriteString("    ")
		sb.WriteString(formatRow(mat.Row(nil, i, m)))
		if i < rows-1 {
			sb.WriteString(",")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("};\n")

	return sb.String()
}

func formatStaticVector(name string, v []float64) string {
	return fmt.Sprintf("const double %s[%d] = %s;\n", name, len(v), formatRow(v))
}

func formatRow(row []float64) string {
	var sb strings.Builder
	sb.WriteString("{")
	for j, val := range row {
		if j > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(fmt.Sprintf("%.15e", val))
	}
	sb.WriteString("}")
	return sb.String()
}
