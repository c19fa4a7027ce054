package progress

import (
	"time"

	"go.uber.org/zap"

	"github.com/copyleftdev/gdopt/internal/optimization"
)

// LogReporter logs the start and end of a run and every Nth step.
type LogReporter struct {
	logger *zap.Logger
	every  int

	total int
	start time.Time
	last  float64
	steps int
}

var _ optimization.ProgressReporter = (*LogReporter)(nil)

// NewLogReporter creates a LogReporter that logs one step out of every.
// every <= 0 logs only start and finish.
func NewLogReporter(logger *zap.Logger, every int) *LogReporter {
	return &LogReporter{
		logger: logger,
		every:  every,
	}
}

// Start implements optimization.ProgressReporter.
func (r *LogReporter) Start(total int, shape optimization.Shape) {
	r.total = total
	r.steps = 0
	r.start = time.Now()
	r.logger.Info("optimization started",
		zap.Int("iterations", total),
		zap.Ints("shape", shape),
	)
}

// Step implements optimization.ProgressReporter.
func (r *LogReporter) Step(iteration int, loss float64) {
	r.steps = iteration + 1
	r.last = loss
	if r.every > 0 && r.steps%r.every == 0 {
		r.logger.Info("optimization progress",
			zap.Int("iteration", iteration),
			zap.Int("total", r.total),
			zap.Float64("loss", loss),
		)
	}
}

// Finish implements optimization.ProgressReporter.
func (r *LogReporter) Finish(err error) {
	fields := []zap.Field{
		zap.Int("iterations", r.steps),
		zap.Duration("elapsed", time.Since(r.start)),
	}
	if r.steps > 0 {
		fields = append(fields, zap.Float64("loss", r.last))
	}
	if err != nil {
		r.logger.Warn("optimization stopped", append(fields, zap.Error(err))...)
		return
	}
	r.logger.Info("optimization finished", fields...)
}

// Multi forwards every event to each non-nil reporter in order.
type Multi []optimization.ProgressReporter

var _ optimization.ProgressReporter = Multi(nil)

// Start implements optimization.ProgressReporter.
func (m Multi) Start(total int, shape optimization.Shape) {
	for _, r := range m {
		if r != nil {
			r.Start(total, shape)
		}
	}
}

// Step implements optimization.ProgressReporter.
func (m Multi) Step(iteration int, loss float64) {
	for _, r := range m {
		if r != nil {
			r.Step(iteration, loss)
		}
	}
}

// Finish implements optimization.ProgressReporter.
func (m Multi) Finish(err error) {
	for _, r := range m {
		if r != nil {
			r.Finish(err)
		}
	}
}
