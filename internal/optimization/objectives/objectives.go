// Package objectives provides loss-and-gradient functions that the service and
// the CLI can optimize by name.
package objectives

import (
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/functions"

	"github.com/copyleftdev/gdopt/internal/optimization"
)

// Names of the registered objectives
const (
	QuadraticName    = "quadratic"
	RosenbrockName   = "rosenbrock"
	BealeName        = "beale"
	LeastSquaresName = "least_squares"
)

// Spec selects an objective. A and B are only read by least_squares.
type Spec struct {
	Name string      `json:"name"`
	A    [][]float64 `json:"a,omitempty"`
	B    []float64   `json:"b,omitempty"`
}

type entry struct {
	description string
	// minDim and maxDim bound the candidate length; maxDim 0 means unbounded
	minDim, maxDim int
	build          func(spec Spec, dim int) (optimization.LossGradsFunc, error)
}

var registry = map[string]entry{
	QuadraticName: {
		description: "sum of squares, f(x) = Σ x_i², minimum 0 at the origin",
		minDim:      1,
		build: func(Spec, int) (optimization.LossGradsFunc, error) {
			return Quadratic(), nil
		},
	},
	RosenbrockName: {
		description: "extended Rosenbrock valley, minimum 0 at (1, ..., 1)",
		minDim:      2,
		build: func(Spec, int) (optimization.LossGradsFunc, error) {
			return Rosenbrock(), nil
		},
	},
	BealeName: {
		description: "Beale function, minimum 0 at (3, 0.5)",
		minDim:      2,
		maxDim:      2,
		build: func(Spec, int) (optimization.LossGradsFunc, error) {
			return Beale(), nil
		},
	},
	LeastSquaresName: {
		description: "linear least squares ‖Ax - b‖² for caller supplied A and b",
		minDim:      1,
		build: func(spec Spec, dim int) (optimization.LossGradsFunc, error) {
			a, b, err := denseProblem(spec.A, spec.B)
			if err != nil {
				return nil, err
			}
			if _, c := a.Dims(); c != dim {
				return nil, optimization.WrapErrorf(optimization.ErrDimension,
					"least_squares: A has %d columns, candidate has %d elements", c, dim).
					WithOperation("build")
			}
			return LeastSquares(a, b), nil
		},
	},
}

// Names returns the registered objective names in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Describe returns a one-line description of a registered objective.
func Describe(name string) (string, bool) {
	e, ok := registry[name]
	return e.description, ok
}

// Lookup returns the named objective for candidates of length dim.
func Lookup(name string, dim int) (optimization.LossGradsFunc, error) {
	return Build(Spec{Name: name}, dim)
}

// Build returns the objective described by spec for candidates of length dim.
func Build(spec Spec, dim int) (optimization.LossGradsFunc, error) {
	e, ok := registry[spec.Name]
	if !ok {
		return nil, optimization.WrapErrorf(optimization.ErrUnknownObjective, "%q", spec.Name).
			WithOperation("lookup")
	}
	if dim < e.minDim || (e.maxDim > 0 && dim > e.maxDim) {
		return nil, optimization.WrapErrorf(optimization.ErrDimension, "%s: %d", spec.Name, dim).
			WithOperation("lookup")
	}
	return e.build(spec, dim)
}

// Quadratic returns f(x) = Σ x_i² with gradient 2x.
func Quadratic() optimization.LossGradsFunc {
	return func(x []float64) (float64, []float64, error) {
		grad := make([]float64, len(x))
		floats.AddScaled(grad, 2, x)
		return floats.Dot(x, x), grad, nil
	}
}

// Rosenbrock returns the extended Rosenbrock function.
func Rosenbrock() optimization.LossGradsFunc {
	f := functions.ExtendedRosenbrock{}
	return func(x []float64) (float64, []float64, error) {
		if len(x) < 2 {
			return 0, nil, optimization.WrapErrorf(optimization.ErrDimension, "rosenbrock: %d", len(x))
		}
		grad := make([]float64, len(x))
		f.Grad(grad, x)
		return f.Func(x), grad, nil
	}
}

// Beale returns the two-dimensional Beale function.
func Beale() optimization.LossGradsFunc {
	f := functions.Beale{}
	return func(x []float64) (float64, []float64, error) {
		if len(x) != 2 {
			return 0, nil, optimization.WrapErrorf(optimization.ErrDimension, "beale: %d", len(x))
		}
		grad := make([]float64, 2)
		f.Grad(grad, x)
		return f.Func(x), grad, nil
	}
}

// LeastSquares returns f(x) = ‖Ax - b‖² with gradient 2Aᵀ(Ax - b).
func LeastSquares(a *mat.Dense, b *mat.VecDense) optimization.LossGradsFunc {
	r, c := a.Dims()
	return func(x []float64) (float64, []float64, error) {
		if len(x) != c {
			return 0, nil, optimization.WrapErrorf(optimization.ErrDimension,
				"least_squares: A has %d columns, candidate has %d elements", c, len(x))
		}

		residual := mat.NewVecDense(r, nil)
		residual.MulVec(a, mat.NewVecDense(c, x))
		residual.SubVec(residual, b)

		grad := mat.NewVecDense(c, nil)
		grad.MulVec(a.T(), residual)
		grad.ScaleVec(2, grad)

		return mat.Dot(residual, residual), grad.RawVector().Data, nil
	}
}

// denseProblem converts row-major A and b into gonum types, checking that
// they agree on the number of rows.
func denseProblem(rows [][]float64, b []float64) (*mat.Dense, *mat.VecDense, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, nil, optimization.NewErrorf("least_squares: A must be a non-empty matrix").
			WithOperation("build")
	}
	if len(b) != len(rows) {
		return nil, nil, optimization.WrapErrorf(optimization.ErrShapeMismatch,
			"least_squares: A has %d rows, b has %d", len(rows), len(b)).WithOperation("build")
	}

	cols := len(rows[0])
	data := make([]float64, 0, len(rows)*cols)
	for i, row := range rows {
		if len(row) != cols {
			return nil, nil, optimization.WrapErrorf(optimization.ErrShapeMismatch,
				"least_squares: row %d has %d columns, want %d", i, len(row), cols).WithOperation("build")
		}
		data = append(data, row...)
	}

	return mat.NewDense(len(rows), cols, data), mat.NewVecDense(len(b), append([]float64(nil), b...)), nil
}
