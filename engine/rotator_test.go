package engine

import (
	"testing"

	"github.com/flowkit/flowkit/flow"
	"github.com/flowkit/flowkit/model"
	"github.com/stretchr/testify/require"
)

func TestRotator(t *testing.T) {
	for scenario, fn := range map[string]func(
		t *testing.T, e *Engine,
	){
		"test sequential rotation round robins":      testSequentialRotation,
		"test sequential cursor survives round trip": testSequentialCursorRoundTrip,
		"test weighted rotation follows weights":     testWeightedRotation,
		"test non positive weights count as one":     testNonPositiveWeights,
	} {
		t.Run(scenario, func(t *testing.T) {
			fn(t, New(nil, 10))
		})
	}
}

func rotatorStep(t *testing.T, mode string, options []map[string]any) *flow.Step {
	g := flow.Convert(&model.FlowDef{
		Id: "f1",
		Steps: []model.StepDef{
			step("r", model.STEP_TYPE_ROTATOR, map[string]any{"mode": mode, "options": options}),
		},
	})
	s := g.Step("r")
	require.NoError(t, s.Err)
	return s
}

func testSequentialRotation(t *testing.T, e *Engine) {
	s := rotatorStep(t, "sequential", []map[string]any{
		{"handle": "a"},
		{"handle": "b"},
	})
	session := &model.Session{Variables: map[string]any{}}

	require.Equal(t, "a", e.selectRotation(session, s))
	require.Equal(t, "b", e.selectRotation(session, s))
	require.Equal(t, "a", e.selectRotation(session, s))
}

func testSequentialCursorRoundTrip(t *testing.T, e *Engine) {
	s := rotatorStep(t, "sequential", []map[string]any{
		{"handle": "a"},
		{"handle": "b"},
	})
	// json decoding turns the stored cursor into a float64
	session := &model.Session{Variables: map[string]any{"__rotator_r": float64(1)}}

	require.Equal(t, "b", e.selectRotation(session, s))
}

func testWeightedRotation(t *testing.T, e *Engine) {
	s := rotatorStep(t, "random", []map[string]any{
		{"handle": "a", "weight": 3},
		{"handle": "b", "weight": 1},
	})
	session := &model.Session{Variables: map[string]any{}}

	e.randFn = func(n int) int {
		require.Equal(t, 4, n)
		return 2
	}
	require.Equal(t, "a", e.selectRotation(session, s))

	e.randFn = func(n int) int { return 3 }
	require.Equal(t, "b", e.selectRotation(session, s))
}

func testNonPositiveWeights(t *testing.T, e *Engine) {
	s := rotatorStep(t, "random", []map[string]any{
		{"handle": "a", "weight": 0},
		{"handle": "b", "weight": -2},
	})
	session := &model.Session{Variables: map[string]any{}}

	e.randFn = func(n int) int {
		require.Equal(t, 2, n)
		return 1
	}
	require.Equal(t, "b", e.selectRotation(session, s))
}
