// Package descent implements plain gradient descent over flat float64 arrays.
//
// Update rule:
//
//	x = x - learningRate * grad
//
// There is no momentum, no adaptive step size and no convergence check: a run
// always performs the requested number of iterations unless the objective,
// the callback or the context stops it.
package descent

import (
	"context"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/copyleftdev/gdopt/internal/logging"
	"github.com/copyleftdev/gdopt/internal/optimization"
)

const (
	// DefaultLearningRate is the step size used by NewDefault.
	DefaultLearningRate = 1e-4
	// DefaultIterations is the step count callers use when none is given.
	DefaultIterations = 1000
)

var _ optimization.Optimizer = (*GradientDescent)(nil)

// GradientDescent is a basic gradient descent optimizer.
//
// A GradientDescent may run any number of times but not concurrently: each
// run discards the loss history of the previous one.
type GradientDescent struct {
	learningRate float64

	// Losses observed during the most recent run, one per completed step
	lossHistory []float64

	progress optimization.ProgressReporter
}

// Option configures a GradientDescent.
type Option func(*GradientDescent)

// WithProgress attaches a progress reporter that observes every run.
func WithProgress(p optimization.ProgressReporter) Option {
	return func(gd *GradientDescent) {
		gd.progress = p
	}
}

// New creates a gradient descent optimizer with the given learning rate.
// The rate is not validated; non-positive or non-finite values simply
// produce runs that do not converge.
func New(learningRate float64, opts ...Option) *GradientDescent {
	gd := &GradientDescent{
		learningRate: learningRate,
		lossHistory:  []float64{},
	}
	for _, opt := range opts {
		opt(gd)
	}
	return gd
}

// NewDefault creates a gradient descent optimizer with DefaultLearningRate.
func NewDefault(opts ...Option) *GradientDescent {
	return New(DefaultLearningRate, opts...)
}

// NewValidated is like New but rejects learning rates that are not
// positive and finite.
func NewValidated(learningRate float64, opts ...Option) (*GradientDescent, error) {
	if !(learningRate > 0) || math.IsInf(learningRate, 0) {
		return nil, optimization.WrapErrorf(optimization.ErrInvalidLearningRate, "got %v", learningRate).
			WithComponent("gradient_descent").
			WithOperation("new")
	}
	return New(learningRate, opts...), nil
}

// LearningRate returns the step size applied to every gradient.
func (gd *GradientDescent) LearningRate() float64 {
	return gd.learningRate
}

// LossHistory returns a copy of the losses recorded by the most recent run.
func (gd *GradientDescent) LossHistory() []float64 {
	return append([]float64{}, gd.lossHistory...)
}

// String returns an executable representation such as
// GradientDescent(learning_rate=0.0001).
func (gd *GradientDescent) String() string {
	return "GradientDescent(learning_rate=" + formatFloat(gd.learningRate) + ")"
}

// Run reduces the loss of x by repeatedly moving it against its gradient.
//
// x is updated in place and the same slice is returned. shape is passed to
// the progress reporter untouched. callback may be nil; when set it sees x
// after every step, with iteration indices 0, 1, ..., iterations-1.
//
// Errors returned by lossGrads or callback end the run and are returned
// unchanged, leaving x and the loss history as they were after the last
// completed step. A cancelled ctx ends the run with ctx.Err() before the
// next step begins.
func (gd *GradientDescent) Run(
	ctx context.Context,
	x []float64,
	shape optimization.Shape,
	lossGrads optimization.LossGradsFunc,
	iterations int,
	callback optimization.Callback,
) (result []float64, err error) {
	gd.lossHistory = make([]float64, 0, max(iterations, 0))

	logger := logging.FromContext(ctx)
	logger.Debug("Starting gradient descent", map[string]interface{}{
		"learning_rate": gd.learningRate,
		"iterations":    iterations,
		"shape":         []int(shape),
		"shape_size":    shape.Size(),
		"size":          len(x),
	})

	if gd.progress != nil {
		gd.progress.Start(max(iterations, 0), shape)
		defer func() { gd.progress.Finish(err) }()
	}

	for i := 0; i < iterations; i++ {
		if err := ctx.Err(); err != nil {
			return x, err
		}

		loss, grad, err := lossGrads(x)
		if err != nil {
			return x, err
		}

		if len(grad) != len(x) {
			return x, optimization.WrapErrorf(optimization.ErrShapeMismatch,
				"iteration %d: gradient has %d elements, candidate has %d", i, len(grad), len(x)).
				WithComponent("gradient_descent").
				WithOperation("update")
		}
		floats.AddScaled(x, -gd.learningRate, grad)

		gd.lossHistory = append(gd.lossHistory, loss)

		if gd.progress != nil {
			gd.progress.Step(i, loss)
		}

		if callback != nil {
			if err := callback(x, i); err != nil {
				return x, err
			}
		}
	}

	logger.Debug("Gradient descent finished", map[string]interface{}{
		"iterations": len(gd.lossHistory),
	})

	return x, nil
}

// formatFloat renders v the way a Python float repr would, so String output
// can be pasted back as a constructor call.
func formatFloat(v float64) string {
	switch {
	case math.IsNaN(v):
		return "nan"
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}

	abs := math.Abs(v)
	var s string
	if abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		s = strconv.FormatFloat(v, 'e', -1, 64)
	} else {
		s = strconv.FormatFloat(v, 'f', -1, 64)
		if !strings.Contains(s, ".") {
			s += ".0"
		}
	}
	return s
}
