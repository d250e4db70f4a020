package codegen

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/integrate/quad"
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/geodrive/InputParameters"
)

// Geometry describes a linear reference element and its integration rule
type Geometry struct {
	Name     string
	Tag      string // e.g. 2D4N, used in template markers
	Dim      int
	NumNodes int
	// shape returns the shape functions and their local derivatives dN[node][dir] at xi
	shape func(xi []float64) (N []float64, dN [][]float64)
	// rule returns the gauss point coordinates and weights
	rule func() (points [][]float64, weights []float64)
}

var geometries = map[string]*Geometry{
	InputParameters.GeometryTriangle: {
		Name: InputParameters.GeometryTriangle, Tag: "2D3N", Dim: 2, NumNodes: 3,
		shape: triangleShape, rule: triangleRule,
	},
	InputParameters.GeometryQuadrilateral: {
		Name: InputParameters.GeometryQuadrilateral, Tag: "2D4N", Dim: 2, NumNodes: 4,
		shape: quadrilateralShape, rule: quadrilateralRule,
	},
	InputParameters.GeometryTetrahedron: {
		Name: InputParameters.GeometryTetrahedron, Tag: "3D4N", Dim: 3, NumNodes: 4,
		shape: tetrahedronShape, rule: tetrahedronRule,
	},
}

func LookupGeometry(name string) (*Geometry, error) {
	g, ok := geometries[name]
	if !ok {
		return nil, fmt.Errorf("unsupported geometry %q", name)
	}
	return g, nil
}

// BlockSize is the number of conserved variables per node: density, momentum, total energy
func (g *Geometry) BlockSize() int { return g.Dim + 2 }

// Kernel holds the evaluated reference element data emitted into the generated source
type Kernel struct {
	Geometry *Geometry
	Points   *mat.Dense   // NumGauss x Dim
	Weights  []float64    // NumGauss
	N        *mat.Dense   // NumGauss x NumNodes
	DNDe     []*mat.Dense // NumGauss entries of NumNodes x Dim
}

func (g *Geometry) NewKernel() (k *Kernel) {
	points, weights := g.rule()
	ng := len(points)
	k = &Kernel{
		Geometry: g,
		Points:   mat.NewDense(ng, g.Dim, nil),
		Weights:  weights,
		N:        mat.NewDense(ng, g.NumNodes, nil),
		DNDe:     make([]*mat.Dense, ng),
	}
	for gp, xi := range points {
		k.Points.SetRow(gp, xi)
		N, dN := g.shape(xi)
		k.N.SetRow(gp, N)
		k.DNDe[gp] = mat.NewDense(g.NumNodes, g.Dim, nil)
		for a := range dN {
			k.DNDe[gp].SetRow(a, dN[a])
		}
	}
	return
}

func (k *Kernel) NumGauss() int {
	r, _ := k.Points.Dims()
	return r
}

func triangleShape(xi []float64) (N []float64, dN [][]float64) {
	x, y := xi[0], xi[1]
	N = []float64{1 - x - y, x, y}
	dN = [][]float64{{-1, -1}, {1, 0}, {0, 1}}
	return
}

func triangleRule() (points [][]float64, weights []float64) {
	points = [][]float64{
		{1. / 6., 1. / 6.},
		{2. / 3., 1. / 6.},
		{1. / 6., 2. / 3.},
	}
	weights = []float64{1. / 6., 1. / 6., 1. / 6.}
	return
}

var quadNodes = [4][2]float64{{-1, -1}, {1, -1}, {1, 1}, {-1, 1}}

func quadrilateralShape(xi []float64) (N []float64, dN [][]float64) {
	x, y := xi[0], xi[1]
	N = make([]float64, 4)
	dN = make([][]float64, 4)
	for a, node := range quadNodes {
		N[a] = 0.25 * (1 + x*node[0]) * (1 + y*node[1])
		dN[a] = []float64{
			0.25 * node[0] * (1 + y*node[1]),
			0.25 * node[1] * (1 + x*node[0]),
		}
	}
	return
}

// quadrilateralRule is the 2x2 tensor Gauss-Legendre rule on [-1,1]^2, ordered
// counterclockwise like the element nodes
func quadrilateralRule() (points [][]float64, weights []float64) {
	x, w := gaussLegendre(2, -1, 1)
	for _, ij := range [4][2]int{{0, 0}, {1, 0}, {1, 1}, {0, 1}} {
		points = append(points, []float64{x[ij[0]], x[ij[1]]})
		weights = append(weights, w[ij[0]]*w[ij[1]])
	}
	return
}

func tetrahedronShape(xi []float64) (N []float64, dN [][]float64) {
	x, y, z := xi[0], xi[1], xi[2]
	N = []float64{1 - x - y - z, x, y, z}
	dN = [][]float64{{-1, -1, -1}, {1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	return
}

func tetrahedronRule() (points [][]float64, weights []float64) {
	const (
		a = 0.58541019662496845446
		b = 0.13819660112501051518
	)
	points = [][]float64{{b, b, b}, {a, b, b}, {b, a, b}, {b, b, a}}
	weights = []float64{1. / 24., 1. / 24., 1. / 24., 1. / 24.}
	return
}

// gaussLegendre returns n points in ascending order with their weights on [min,max]
func gaussLegendre(n int, min, max float64) (x, w []float64) {
	x, w = make([]float64, n), make([]float64, n)
	quad.Legendre{}.FixedLocations(x, w, min, max)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(i, j int) bool { return x[idx[i]] < x[idx[j]] })
	xs, ws := make([]float64, n), make([]float64, n)
	for i, k := range idx {
		xs[i], ws[i] = x[k], w[k]
	}
	return xs, ws
}
