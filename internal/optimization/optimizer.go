package optimization

import (
	"context"
)

// Optimizer defines the interface for first-order optimization algorithms
type Optimizer interface {
	// Run performs iterations optimization steps on x in place and returns x.
	Run(ctx context.Context, x []float64, shape Shape, lossGrads LossGradsFunc, iterations int, callback Callback) ([]float64, error)

	// LossHistory returns the losses observed during the most recent run
	LossHistory() []float64

	// LearningRate returns the step size applied to every gradient
	LearningRate() float64

	// String returns a human-readable, re-constructible form of the optimizer
	String() string
}

// Shape describes the logical dimensions of a flat candidate array.
// Optimizers carry it through to reporters and never reshape the data.
type Shape []int

// Size returns the number of elements a candidate of this shape holds.
// An empty shape describes a scalar.
func (s Shape) Size() int {
	n := 1
	for _, d := range s {
		n *= d
	}
	return n
}

// LossGradsFunc evaluates the objective at x. The returned gradient must
// have the same length as x.
type LossGradsFunc func(x []float64) (loss float64, grad []float64, err error)

// Callback observes the candidate after each completed step. Returning an
// error aborts the run and the error is handed back to the caller as is.
type Callback func(x []float64, iteration int) error

// ProgressReporter receives iteration-by-iteration progress of a run
type ProgressReporter interface {
	// Start is called once before the first step
	Start(total int, shape Shape)

	// Step is called after every completed iteration
	Step(iteration int, loss float64)

	// Finish is called once when the run ends, with the error that ended it
	Finish(err error)
}
