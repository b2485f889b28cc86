package flow

import (
	"testing"

	"github.com/flowkit/flowkit/model"
	"github.com/stretchr/testify/require"
)

func validDef() *model.FlowDef {
	return &model.FlowDef{
		Id:     "f1",
		Name:   "welcome",
		Active: true,
		Steps: []model.StepDef{
			{Id: "start", Type: "start", Config: map[string]any{"matchMode": "contains", "keywords": []string{"hola"}}},
			{Id: "m1", Type: "send_message", Config: map[string]any{"text": "Hi"}},
			{Id: "q", Type: "multipleChoice", Config: map[string]any{
				"text": "Pick one",
				"options": []map[string]any{
					{"id": "opt-1", "label": "Soporte"},
					{"id": "opt-2", "label": "Ventas"},
				},
			}},
			{Id: "a", Type: "send_message", Config: map[string]any{"text": "support"}},
			{Id: "b", Type: "send_message", Config: map[string]any{"text": "sales"}},
		},
		Connections: []model.Connection{
			{Id: "c1", Source: "start", Target: "m1"},
			{Id: "c2", Source: "m1", Target: "q"},
			{Id: "c3", Source: "q", Target: "a", SourceHandle: "opt-1"},
			{Id: "c4", Source: "q", Target: "b", SourceHandle: "opt-2"},
		},
	}
}

func TestValidate(t *testing.T) {
	for scenario, fn := range map[string]func(t *testing.T){
		"test valid flow passes":             testValidFlow,
		"test duplicate step id rejected":    testDuplicateStepId,
		"test missing start rejected":        testMissingStart,
		"test two starts rejected":           testTwoStarts,
		"test unknown connection rejected":   testUnknownConnection,
		"test duplicate handle rejected":     testDuplicateHandle,
		"test malformed config rejected":     testMalformedConfig,
		"test choice without options fails":  testChoiceWithoutOptions,
		"test wait with bad unit fails":      testWaitBadUnit,
		"test condition needs predicates":    testConditionNeedsPredicates,
		"test unknown predicate kind fails":  testUnknownPredicateKind,
		"test rotator needs handles":         testRotatorNeedsHandles,
		"test assign with wrong type fails":  testAssignWrongType,
		"test automation needs flow id":      testAutomationNeedsFlowId,
	} {
		t.Run(scenario, fn)
	}
}

func testValidFlow(t *testing.T) {
	require.NoError(t, Validate(validDef()))
}

func testDuplicateStepId(t *testing.T) {
	def := validDef()
	def.Steps = append(def.Steps, model.StepDef{Id: "m1", Type: "send_message", Config: map[string]any{"text": "x"}})
	require.Error(t, Validate(def))
}

func testMissingStart(t *testing.T) {
	def := validDef()
	def.Steps = def.Steps[1:]
	def.Connections = def.Connections[1:]
	require.Error(t, Validate(def))
}

func testTwoStarts(t *testing.T) {
	def := validDef()
	def.Steps = append(def.Steps, model.StepDef{Id: "start2", Type: "start", Config: nil})
	require.Error(t, Validate(def))
}

func testUnknownConnection(t *testing.T) {
	def := validDef()
	def.Connections = append(def.Connections, model.Connection{Id: "c5", Source: "b", Target: "ghost"})
	require.Error(t, Validate(def))
}

func testDuplicateHandle(t *testing.T) {
	def := validDef()
	def.Connections[3].SourceHandle = "opt-1"
	require.Error(t, Validate(def))
}

func testMalformedConfig(t *testing.T) {
	def := validDef()
	def.Steps = append(def.Steps, model.StepDef{Id: "w", Type: "wait", Config: map[string]any{"value": "soon"}})
	require.Error(t, Validate(def))
}

func testChoiceWithoutOptions(t *testing.T) {
	def := validDef()
	def.Steps[2].Config = map[string]any{"text": "Pick one"}
	require.Error(t, Validate(def))
}

func testWaitBadUnit(t *testing.T) {
	def := validDef()
	def.Steps = append(def.Steps, model.StepDef{Id: "w", Type: "wait", Config: map[string]any{"value": 5, "unit": "fortnights"}})
	require.Error(t, Validate(def))
}

func testConditionNeedsPredicates(t *testing.T) {
	def := validDef()
	def.Steps = append(def.Steps, model.StepDef{Id: "c", Type: "condition", Config: map[string]any{}})
	require.Error(t, Validate(def))
}

func testUnknownPredicateKind(t *testing.T) {
	def := validDef()
	def.Steps = append(def.Steps, model.StepDef{Id: "c", Type: "condition", Config: map[string]any{
		"predicates": []map[string]any{{"kind": "moon_phase"}},
	}})
	require.Error(t, Validate(def))
}

func testRotatorNeedsHandles(t *testing.T) {
	def := validDef()
	def.Steps = append(def.Steps, model.StepDef{Id: "r", Type: "rotator", Config: map[string]any{
		"mode":    "random",
		"options": []map[string]any{{"weight": 1}},
	}})
	require.Error(t, Validate(def))
}

func testAssignWrongType(t *testing.T) {
	def := validDef()
	def.Steps = append(def.Steps, model.StepDef{Id: "as", Type: "assign_conversation", Config: map[string]any{
		"type": "robot", "id": "x",
	}})
	require.Error(t, Validate(def))
}

func testAutomationNeedsFlowId(t *testing.T) {
	def := validDef()
	def.Steps = append(def.Steps, model.StepDef{Id: "sa", Type: "start_automation", Config: map[string]any{}})
	require.Error(t, Validate(def))
}

func TestConvert(t *testing.T) {
	t.Run("test editor choice alias normalized", func(t *testing.T) {
		g := Convert(validDef())
		require.Equal(t, model.STEP_TYPE_QUESTION_MULTIPLE, g.Step("q").Type)
		require.True(t, g.Step("q").IsQuestion())
	})

	t.Run("test trigger defaults applied", func(t *testing.T) {
		g := Convert(validDef())
		trigger := g.Trigger()
		require.NotNil(t, trigger)
		require.Equal(t, model.EVENT_MESSAGE_RECEIVED, trigger.Kind)
		require.Equal(t, model.MATCH_MODE_CONTAINS, trigger.MatchMode)
	})

	t.Run("test malformed step kept with error", func(t *testing.T) {
		def := validDef()
		def.Steps = append(def.Steps, model.StepDef{Id: "w", Type: "wait", Config: map[string]any{"value": "soon"}})
		g := Convert(def)
		require.Error(t, g.Step("w").Err)
		require.NoError(t, g.Step("m1").Err)
	})

	t.Run("test connections kept in declaration order", func(t *testing.T) {
		g := Convert(validDef())
		conns := g.Connections("q")
		require.Len(t, conns, 2)
		require.Equal(t, "opt-1", conns[0].SourceHandle)
		require.Equal(t, "opt-2", conns[1].SourceHandle)

		next, ok := g.ByHandle("q", "opt-2")
		require.True(t, ok)
		require.Equal(t, "b", next)
	})
}
