// Package progress provides optimization.ProgressReporter implementations:
// a terminal progress bar, a zap log reporter and a fan-out.
package progress

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/copyleftdev/gdopt/internal/optimization"
)

const (
	// DefaultBarWidth is the number of cells drawn between the bar ends
	DefaultBarWidth    = 20
	defaultMinInterval = 100 * time.Millisecond
)

// Bar draws a single-line iteration progress indicator on out, redrawn in
// place, with the latest loss as its description:
//
//	loss=0.1234  42% |████████            | (420/1000, 350 it/s) [1s:2s]
type Bar struct {
	out         io.Writer
	width       int
	minInterval time.Duration

	mu  sync.Mutex
	bar *progressbar.ProgressBar
}

var _ optimization.ProgressReporter = (*Bar)(nil)

// BarOption configures a Bar.
type BarOption func(*Bar)

// WithWidth sets the number of cells in the bar.
func WithWidth(width int) BarOption {
	return func(b *Bar) {
		if width > 0 {
			b.width = width
		}
	}
}

// WithMinInterval limits how often the bar is redrawn. Zero redraws on every
// step. The final state is always drawn.
func WithMinInterval(d time.Duration) BarOption {
	return func(b *Bar) {
		b.minInterval = d
	}
}

// NewBar creates a Bar writing to out.
func NewBar(out io.Writer, opts ...BarOption) *Bar {
	b := &Bar{
		out:         out,
		width:       DefaultBarWidth,
		minInterval: defaultMinInterval,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Start implements optimization.ProgressReporter. A run of zero iterations
// draws nothing.
func (b *Bar) Start(total int, _ optimization.Shape) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.bar = nil
	if total <= 0 {
		return
	}
	b.bar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(b.out),
		progressbar.OptionSetWidth(b.width),
		progressbar.OptionThrottle(b.minInterval),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// Step implements optimization.ProgressReporter.
func (b *Bar) Step(iteration int, loss float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.bar == nil {
		return
	}
	b.bar.Describe(fmt.Sprintf("loss=%.4g ", loss))
	_ = b.bar.Set(iteration + 1)
}

// Finish implements optimization.ProgressReporter. A successful run fills
// the bar; a failed one keeps its last state and appends the error.
func (b *Bar) Finish(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		if b.bar != nil {
			_ = b.bar.Exit()
			fmt.Fprint(b.out, " ")
		}
		fmt.Fprintf(b.out, "error: %v\n", err)
		b.bar = nil
		return
	}

	if b.bar != nil {
		_ = b.bar.Finish()
		fmt.Fprintln(b.out)
	}
	b.bar = nil
}
