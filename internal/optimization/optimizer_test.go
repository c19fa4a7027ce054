package optimization

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShapeSize(t *testing.T) {
	tests := []struct {
		shape Shape
		want  int
	}{
		{shape: nil, want: 1},
		{shape: Shape{4}, want: 4},
		{shape: Shape{2, 3}, want: 6},
		{shape: Shape{1, 28, 28, 3}, want: 2352},
		{shape: Shape{5, 0}, want: 0},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint([]int(tt.shape)), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.shape.Size())
		})
	}
}

func TestLossGradsFuncContract(t *testing.T) {
	var f LossGradsFunc = testLossGrads

	loss, grad, err := f([]float64{1, -2, 3})
	require.NoError(t, err)
	assert.Equal(t, 14.0, loss)
	assertFloat64SlicesEqual(t, grad, []float64{2, -4, 6}, 1e-12)
}

func TestErrorString(t *testing.T) {
	base := errors.New("boom")

	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{name: "message", err: NewErrorf("bad %s", "thing"), want: "bad thing"},
		{name: "op only", err: NewErrorf("bad").WithOperation("update"), want: "update: bad"},
		{name: "component only", err: NewErrorf("bad").WithComponent("gradient_descent"), want: "gradient_descent: bad"},
		{name: "component and op", err: NewErrorf("bad").WithComponent("gradient_descent").WithOperation("update"), want: "gradient_descent: update: bad"},
		{name: "wrapped", err: WrapErrorf(base, "step %d", 3), want: "step 3: boom"},
		{name: "wrapped with op", err: WrapErrorf(base, "step %d", 3).WithOperation("update"), want: "update: step 3: boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestErrorUnwrap(t *testing.T) {
	err := WrapErrorf(ErrShapeMismatch, "gradient has %d elements", 2)
	assert.True(t, errors.Is(err, ErrShapeMismatch))
	assert.Nil(t, WrapErrorf(nil, "nothing"))

	var nilErr *Error
	assert.Equal(t, "<nil>", nilErr.Error())
	assert.Nil(t, nilErr.Unwrap())
}

func TestIsOptimizationError(t *testing.T) {
	e, ok := IsOptimizationError(fmt.Errorf("outer: %w", NewErrorf("inner")))
	require.True(t, ok)
	assert.Equal(t, "inner", e.Message)

	_, ok = IsOptimizationError(errors.New("plain"))
	assert.False(t, ok)

	_, ok = IsOptimizationError(nil)
	assert.False(t, ok)
}
