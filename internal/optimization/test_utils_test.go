package optimization

import (
	"math"
	"testing"
)

// testLossGrads is f(x) = Σ x_i² with gradient 2x
func testLossGrads(x []float64) (float64, []float64, error) {
	sum := 0.0
	grad := make([]float64, len(x))
	for i, v := range x {
		sum += v * v
		grad[i] = 2 * v
	}
	return sum, grad, nil
}

// assertFloat64SlicesEqual checks if two float64 slices are approximately equal
func assertFloat64SlicesEqual(t *testing.T, got, want []float64, tol float64) {
	t.Helper()

	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}

	for i := range got {
		if math.Abs(got[i]-want[i]) > tol {
			t.Fatalf("at index %d: got %v, want %v (tolerance %v)", i, got[i], want[i], tol)
		}
	}
}
