package trigger

import (
	"testing"

	"github.com/flowkit/flowkit/flow"
	"github.com/flowkit/flowkit/model"
	"github.com/stretchr/testify/require"
)

type fakeLookup struct {
	sessions []*model.Session
}

func (f *fakeLookup) Find(address string) ([]*model.Session, error) {
	return f.sessions, nil
}

func triggerFlow(id string, config map[string]any) *flow.Graph {
	return flow.Convert(&model.FlowDef{
		Id:     id,
		Active: true,
		Steps: []model.StepDef{
			{Id: "start", Type: string(model.STEP_TYPE_START), Config: config},
			{Id: "m1", Type: string(model.STEP_TYPE_SEND_MESSAGE), Config: map[string]any{"text": "hi"}},
		},
		Connections: []model.Connection{
			{Id: "c1", Source: "start", Target: "m1"},
		},
	})
}

func messageEvent(text string) model.InboundEvent {
	return model.InboundEvent{Kind: model.EVENT_MESSAGE_RECEIVED, Address: "555", Text: text}
}

func TestMatcher(t *testing.T) {
	for scenario, fn := range map[string]func(
		t *testing.T, m *Matcher,
	){
		"test contains keyword matches":            testContainsMatch,
		"test exact keyword match":                 testExactMatch,
		"test match all matches anything":          testMatchAll,
		"test no keywords never matches":           testNoKeywords,
		"test once per contact blocks second run":  testOncePerContact,
		"test inactive flow never matches":         testInactiveFlow,
		"test tag trigger matches tag event":       testTagTrigger,
		"test trigger text detection":              testIsTriggerText,
		"test device scope fallback when disabled": testDeviceScopeFallback,
	} {
		t.Run(scenario, func(t *testing.T) {
			fn(t, NewMatcher(false))
		})
	}
}

func testContainsMatch(t *testing.T, m *Matcher) {
	graphs := []*flow.Graph{triggerFlow("f1", map[string]any{
		"matchMode": "contains",
		"keywords":  []string{"hola"},
	})}

	matches := m.Match(messageEvent("Hola, buenas"), graphs, &fakeLookup{})
	require.Len(t, matches, 1)
	require.Equal(t, "f1", matches[0].Graph.Id)
	require.Equal(t, "start", matches[0].StartId)

	matches = m.Match(messageEvent("adios"), graphs, &fakeLookup{})
	require.Empty(t, matches)
}

func testExactMatch(t *testing.T, m *Matcher) {
	graphs := []*flow.Graph{triggerFlow("f1", map[string]any{
		"matchMode": "exact",
		"keywords":  []string{"hola"},
	})}

	require.Empty(t, m.Match(messageEvent("Hola, buenas"), graphs, &fakeLookup{}))
	require.Len(t, m.Match(messageEvent("  HOLA "), graphs, &fakeLookup{}), 1)
}

func testMatchAll(t *testing.T, m *Matcher) {
	graphs := []*flow.Graph{triggerFlow("f1", map[string]any{"matchMode": "all"})}

	require.Len(t, m.Match(messageEvent("anything at all"), graphs, &fakeLookup{}), 1)
}

func testNoKeywords(t *testing.T, m *Matcher) {
	graphs := []*flow.Graph{triggerFlow("f1", map[string]any{"matchMode": "contains"})}

	require.Empty(t, m.Match(messageEvent("hola"), graphs, &fakeLookup{}))
}

func testOncePerContact(t *testing.T, m *Matcher) {
	graphs := []*flow.Graph{triggerFlow("f1", map[string]any{
		"matchMode":      "contains",
		"keywords":       []string{"hola"},
		"oncePerContact": true,
	})}

	lookup := &fakeLookup{}
	require.Len(t, m.Match(messageEvent("hola"), graphs, lookup), 1)

	lookup.sessions = []*model.Session{{FlowId: "f1", Address: "555", Status: model.SESSION_COMPLETED}}
	require.Empty(t, m.Match(messageEvent("hola"), graphs, lookup))

	// a prior session of another flow does not block
	lookup.sessions = []*model.Session{{FlowId: "other", Address: "555"}}
	require.Len(t, m.Match(messageEvent("hola"), graphs, lookup), 1)
}

func testInactiveFlow(t *testing.T, m *Matcher) {
	g := triggerFlow("f1", map[string]any{"matchMode": "all"})
	g.Active = false

	require.Empty(t, m.Match(messageEvent("hola"), []*flow.Graph{g}, &fakeLookup{}))
}

func testTagTrigger(t *testing.T, m *Matcher) {
	graphs := []*flow.Graph{triggerFlow("f1", map[string]any{
		"kind": "tag_added",
		"tag":  "vip",
	})}

	event := model.InboundEvent{Kind: model.EVENT_TAG_ADDED, Address: "555", Tag: "VIP"}
	require.Len(t, m.Match(event, graphs, &fakeLookup{}), 1)

	event.Tag = "lead"
	require.Empty(t, m.Match(event, graphs, &fakeLookup{}))
}

func testIsTriggerText(t *testing.T, m *Matcher) {
	graphs := []*flow.Graph{
		triggerFlow("f1", map[string]any{"matchMode": "contains", "keywords": []string{"hola"}}),
		triggerFlow("f2", map[string]any{"matchMode": "all"}),
	}

	require.True(t, m.IsTriggerText("buenas, hola", graphs))
	// match-all flows do not make every reply a restart
	require.False(t, m.IsTriggerText("whatever", graphs))
}

func testDeviceScopeFallback(t *testing.T, m *Matcher) {
	graphs := []*flow.Graph{triggerFlow("f1", map[string]any{
		"matchMode": "contains",
		"keywords":  []string{"hola"},
		"deviceId":  "device-1",
	})}

	event := messageEvent("hola")
	event.DeviceId = "device-2"

	// unenforced scope logs and lets the event through
	require.Len(t, m.Match(event, graphs, &fakeLookup{}), 1)

	strict := NewMatcher(true)
	require.Empty(t, strict.Match(event, graphs, &fakeLookup{}))

	event.DeviceId = "device-1"
	require.Len(t, strict.Match(event, graphs, &fakeLookup{}), 1)
}
