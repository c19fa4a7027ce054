package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/floats"

	"github.com/copyleftdev/gdopt/internal/config"
	"github.com/copyleftdev/gdopt/internal/logging"
	"github.com/copyleftdev/gdopt/internal/optimization"
	"github.com/copyleftdev/gdopt/internal/optimization/descent"
	"github.com/copyleftdev/gdopt/internal/optimization/objectives"
	"github.com/copyleftdev/gdopt/internal/progress"
)

type runOptions struct {
	objective    string
	dim          int
	x0           string
	dataPath     string
	learningRate float64
	iterations   int
	quiet        bool
	barWidth     int
}

func newRunCmd(root *rootOptions) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Minimize an objective once",
		Long: `Runs gradient descent on a built-in objective and prints the final
candidate, its loss and the optimizer used.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOptimization(cmd, root, opts)
		},
	}

	cmd.Flags().StringVar(&opts.objective, "objective", objectives.QuadraticName, "Objective name (see 'gdopt objectives')")
	cmd.Flags().IntVar(&opts.dim, "dim", 2, "Dimension of the candidate when --x0 is not given")
	cmd.Flags().StringVar(&opts.x0, "x0", "", "Comma separated starting point, defaults to all ones")
	cmd.Flags().StringVar(&opts.dataPath, "data", "", `JSON file {"a": [[...]], "b": [...]} for least_squares`)
	cmd.Flags().Float64Var(&opts.learningRate, "lr", config.GetEnvAsFloat("GD_LEARNING_RATE", descent.DefaultLearningRate), "Learning rate")
	cmd.Flags().IntVar(&opts.iterations, "iterations", config.GetEnvAsInt("GD_ITERATIONS", descent.DefaultIterations), "Number of iterations")
	cmd.Flags().BoolVar(&opts.quiet, "quiet", config.GetEnvAsBool("GD_QUIET", false), "Disable the progress bar")
	cmd.Flags().IntVar(&opts.barWidth, "bar-width", progress.DefaultBarWidth, "Progress bar width in cells")
	return cmd
}

func runOptimization(cmd *cobra.Command, root *rootOptions, opts *runOptions) error {
	x, err := startPoint(opts.x0, opts.dim)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("dim") && opts.x0 != "" && opts.dim != len(x) {
		return fmt.Errorf("--dim %d does not match --x0 of length %d", opts.dim, len(x))
	}
	if opts.iterations < 0 {
		return fmt.Errorf("--iterations must be non-negative, got %d", opts.iterations)
	}

	spec := objectives.Spec{Name: opts.objective}
	if opts.dataPath != "" {
		if spec.A, spec.B, err = loadData(opts.dataPath); err != nil {
			return err
		}
	}
	lossGrads, err := objectives.Build(spec, len(x))
	if err != nil {
		return err
	}

	var reporters progress.Multi
	if !opts.quiet {
		reporters = append(reporters, progress.NewBar(cmd.ErrOrStderr(), progress.WithWidth(opts.barWidth)))
	}
	if root.logger != nil && root.logger.Level() == logging.DebugLevel {
		reporters = append(reporters, progress.NewLogReporter(logging.NewZapLogger(root.logger), opts.iterations/10))
	}

	gd, err := descent.NewValidated(opts.learningRate, descent.WithProgress(reporters))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	x, err = gd.Run(ctx, x, optimization.Shape{len(x)}, lossGrads, opts.iterations, nil)
	if err != nil {
		return err
	}

	loss, _, err := lossGrads(x)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "x         = %s\n", formatVector(x))
	fmt.Fprintf(out, "loss      = %s\n", strconv.FormatFloat(loss, 'g', 8, 64))
	fmt.Fprintf(out, "optimizer = %s\n", gd)
	return nil
}

// startPoint parses a comma separated vector, or returns dim ones when s is empty.
func startPoint(s string, dim int) ([]float64, error) {
	if strings.TrimSpace(s) == "" {
		if dim < 1 {
			return nil, fmt.Errorf("--dim must be positive, got %d", dim)
		}
		x := make([]float64, dim)
		floats.AddConst(1, x)
		return x, nil
	}

	parts := strings.Split(s, ",")
	x := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid --x0 component %d %q: %w", i, p, err)
		}
		x[i] = v
	}
	return x, nil
}

func loadData(path string) ([][]float64, []float64, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read data: %w", err)
	}
	var data struct {
		A [][]float64 `json:"a"`
		B []float64   `json:"b"`
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, nil, fmt.Errorf("decode data %s: %w", path, err)
	}
	return data.A, data.B, nil
}

func formatVector(x []float64) string {
	parts := make([]string, len(x))
	for i, v := range x {
		parts[i] = strconv.FormatFloat(v, 'g', 8, 64)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
