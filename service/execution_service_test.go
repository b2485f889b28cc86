package service

import (
	"context"
	"testing"
	"time"

	"github.com/flowkit/flowkit/delegate"
	"github.com/flowkit/flowkit/engine"
	"github.com/flowkit/flowkit/metadata"
	"github.com/flowkit/flowkit/model"
	"github.com/flowkit/flowkit/persistence/inmem"
	"github.com/flowkit/flowkit/trigger"
	"github.com/stretchr/testify/require"
)

type captureDispatcher struct {
	actions []model.Action
}

func (d *captureDispatcher) Dispatch(ctx context.Context, action model.Action) error {
	d.actions = append(d.actions, action)
	return nil
}

func (d *captureDispatcher) texts() []string {
	texts := make([]string, 0, len(d.actions))
	for _, action := range d.actions {
		texts = append(texts, action.Text)
	}
	return texts
}

type scriptedCompletions struct {
	reply string
}

func (c *scriptedCompletions) Complete(ctx context.Context, req delegate.CompletionRequest) (*delegate.CompletionResponse, error) {
	return &delegate.CompletionResponse{Reply: c.reply, AgentName: "Eva"}, nil
}

type countingNotifier struct {
	calls int
}

func (n *countingNotifier) NotifyHandoff(ctx context.Context, address string, payload map[string]any, raw string) error {
	n.calls++
	return nil
}

type pipeline struct {
	service     *ExecutionService
	metadata    metadata.Service
	sessions    *inmem.SessionStorage
	resumes     *inmem.ResumeQueue
	dispatcher  *captureDispatcher
	completions *scriptedCompletions
	notifier    *countingNotifier
}

func newPipeline(t *testing.T) *pipeline {
	sessions := inmem.NewSessionStorage()
	resumes := inmem.NewResumeQueue()
	dispatcher := &captureDispatcher{}
	completions := &scriptedCompletions{reply: "How can I help?"}
	notifier := &countingNotifier{}
	metadataService := metadata.NewMetadataService(inmem.NewMetadataStorage(), inmem.NewMetadataStorage())
	svc := NewExecutionService(
		metadataService,
		sessions,
		resumes,
		nil,
		dispatcher,
		trigger.NewMatcher(false),
		engine.New(nil, 0),
		delegate.New(completions, notifier),
	)
	return &pipeline{
		service:     svc,
		metadata:    metadataService,
		sessions:    sessions,
		resumes:     resumes,
		dispatcher:  dispatcher,
		completions: completions,
		notifier:    notifier,
	}
}

func welcomeFlow() model.FlowDef {
	return model.FlowDef{
		Id:     "welcome",
		Name:   "welcome",
		Active: true,
		Steps: []model.StepDef{
			{Id: "start", Type: "start", Config: map[string]any{"matchMode": "contains", "keywords": []string{"hola"}}},
			{Id: "m1", Type: "send_message", Config: map[string]any{"text": "Hi {{contact}}"}},
			{Id: "q", Type: "question_multiple", Config: map[string]any{
				"text":     "Pick one",
				"variable": "topic",
				"options": []map[string]any{
					{"id": "opt-1", "label": "Soporte"},
					{"id": "opt-2", "label": "Ventas"},
				},
			}},
			{Id: "a", Type: "send_message", Config: map[string]any{"text": "Support here"}},
			{Id: "b", Type: "send_message", Config: map[string]any{"text": "Sales here"}},
		},
		Connections: []model.Connection{
			{Id: "c1", Source: "start", Target: "m1"},
			{Id: "c2", Source: "m1", Target: "q"},
			{Id: "c3", Source: "q", Target: "a", SourceHandle: "opt-1", Label: "Soporte"},
			{Id: "c4", Source: "q", Target: "b", SourceHandle: "opt-2", Label: "Ventas"},
		},
	}
}

func event(text string) model.InboundEvent {
	return model.InboundEvent{Kind: model.EVENT_MESSAGE_RECEIVED, Address: "555", Text: text, ContactName: "Ana"}
}

func TestExecutionService(t *testing.T) {
	for scenario, fn := range map[string]func(
		t *testing.T, p *pipeline,
	){
		"test trigger starts flow and parks at question": testTriggerStartsFlow,
		"test numeric reply follows option branch":       testReplyFollowsBranch,
		"test unmatched reply stays put":                 testUnmatchedReplyStaysPut,
		"test reset command clears sessions":             testResetCommand,
		"test trigger keyword restarts mid flow":         testRestartMidFlow,
		"test wait resume advances session":              testWaitResume,
		"test stale resume dropped":                      testStaleResume,
		"test start automation chains flows":             testStartAutomationChain,
		"test ai assignment routes to delegate":          testDelegateRouting,
		"test handoff resumes flow behind assign":        testHandoffResumesFlow,
	} {
		t.Run(scenario, func(t *testing.T) {
			p := newPipeline(t)
			require.NoError(t, p.metadata.SaveFlow(welcomeFlow()))
			fn(t, p)
		})
	}
}

func testTriggerStartsFlow(t *testing.T, p *pipeline) {
	require.NoError(t, p.service.HandleEvent(context.Background(), event("Hola, buenas")))

	require.Equal(t, []string{"Hi Ana", "Pick one"}, p.dispatcher.texts())
	require.Equal(t, model.ACTION_SEND_INTERACTIVE, p.dispatcher.actions[1].Type)

	session, err := p.sessions.FindActive("555")
	require.NoError(t, err)
	require.NotNil(t, session)
	require.Equal(t, "q", session.CurrentStepId)
}

func testReplyFollowsBranch(t *testing.T, p *pipeline) {
	require.NoError(t, p.service.HandleEvent(context.Background(), event("hola")))
	p.dispatcher.actions = nil

	require.NoError(t, p.service.HandleEvent(context.Background(), event("1")))

	require.Equal(t, []string{"Support here"}, p.dispatcher.texts())
	session, err := p.sessions.Get("555", "welcome")
	require.NoError(t, err)
	require.Equal(t, model.SESSION_COMPLETED, session.Status)
	require.Equal(t, "1", session.Variables["topic"])
	require.Equal(t, "1", session.Variables["last_reply"])
}

func testUnmatchedReplyStaysPut(t *testing.T, p *pipeline) {
	require.NoError(t, p.service.HandleEvent(context.Background(), event("hola")))
	p.dispatcher.actions = nil

	require.NoError(t, p.service.HandleEvent(context.Background(), event("no idea")))

	require.Empty(t, p.dispatcher.actions)
	session, err := p.sessions.FindActive("555")
	require.NoError(t, err)
	require.NotNil(t, session)
	require.Equal(t, "q", session.CurrentStepId)

	// the next reply still resolves
	require.NoError(t, p.service.HandleEvent(context.Background(), event("Ventas")))
	require.Equal(t, []string{"Sales here"}, p.dispatcher.texts())
}

func testResetCommand(t *testing.T, p *pipeline) {
	require.NoError(t, p.service.HandleEvent(context.Background(), event("hola")))

	require.NoError(t, p.service.HandleEvent(context.Background(), event("reset chat")))

	sessions, err := p.sessions.Find("555")
	require.NoError(t, err)
	require.Empty(t, sessions)
}

func testRestartMidFlow(t *testing.T, p *pipeline) {
	require.NoError(t, p.service.HandleEvent(context.Background(), event("hola")))
	p.dispatcher.actions = nil

	// the trigger keyword restarts instead of being treated as a reply
	require.NoError(t, p.service.HandleEvent(context.Background(), event("hola")))

	require.Equal(t, []string{"Hi Ana", "Pick one"}, p.dispatcher.texts())
	session, err := p.sessions.FindActive("555")
	require.NoError(t, err)
	require.NotNil(t, session)
	require.Equal(t, "q", session.CurrentStepId)
}

func waitFlow() model.FlowDef {
	return model.FlowDef{
		Id:     "drip",
		Name:   "drip",
		Active: true,
		Steps: []model.StepDef{
			{Id: "start", Type: "start", Config: map[string]any{"matchMode": "exact", "keywords": []string{"drip"}}},
			{Id: "w", Type: "wait", Config: map[string]any{"value": 1, "unit": "seconds"}},
			{Id: "m1", Type: "send_message", Config: map[string]any{"text": "follow up"}},
		},
		Connections: []model.Connection{
			{Id: "c1", Source: "start", Target: "w"},
			{Id: "c2", Source: "w", Target: "m1"},
		},
	}
}

func testWaitResume(t *testing.T, p *pipeline) {
	require.NoError(t, p.metadata.SaveFlow(waitFlow()))
	require.NoError(t, p.service.HandleEvent(context.Background(), event("drip")))

	session, err := p.sessions.Get("555", "drip")
	require.NoError(t, err)
	require.Equal(t, "w", session.CurrentStepId)

	time.Sleep(1100 * time.Millisecond)
	due, err := p.resumes.PopDue()
	require.NoError(t, err)
	require.Len(t, due, 1)

	require.NoError(t, p.service.HandleResume(context.Background(), due[0]))

	require.Equal(t, []string{"follow up"}, p.dispatcher.texts())
	session, err = p.sessions.Get("555", "drip")
	require.NoError(t, err)
	require.Equal(t, model.SESSION_COMPLETED, session.Status)
}

func testStaleResume(t *testing.T, p *pipeline) {
	require.NoError(t, p.metadata.SaveFlow(waitFlow()))
	require.NoError(t, p.service.HandleEvent(context.Background(), event("drip")))
	p.dispatcher.actions = nil

	stale := model.Resume{Address: "555", FlowId: "drip", StepId: "some-old-step", Due: time.Now()}
	require.NoError(t, p.service.HandleResume(context.Background(), stale))

	require.Empty(t, p.dispatcher.actions)
	session, err := p.sessions.Get("555", "drip")
	require.NoError(t, err)
	require.Equal(t, "w", session.CurrentStepId)
}

func testStartAutomationChain(t *testing.T, p *pipeline) {
	first := model.FlowDef{
		Id:     "first",
		Active: true,
		Steps: []model.StepDef{
			{Id: "start", Type: "start", Config: map[string]any{"matchMode": "exact", "keywords": []string{"go"}}},
			{Id: "sa", Type: "start_automation", Config: map[string]any{"flowId": "second"}},
		},
		Connections: []model.Connection{{Id: "c1", Source: "start", Target: "sa"}},
	}
	second := model.FlowDef{
		Id:     "second",
		Active: true,
		Steps: []model.StepDef{
			{Id: "start", Type: "start", Config: map[string]any{"kind": "third_party"}},
			{Id: "m1", Type: "send_message", Config: map[string]any{"text": "chained"}},
		},
		Connections: []model.Connection{{Id: "c1", Source: "start", Target: "m1"}},
	}
	require.NoError(t, p.metadata.SaveFlow(first))
	require.NoError(t, p.metadata.SaveFlow(second))

	require.NoError(t, p.service.HandleEvent(context.Background(), event("go")))

	require.Equal(t, []string{"chained"}, p.dispatcher.texts())
	session, err := p.sessions.Get("555", "first")
	require.NoError(t, err)
	require.Equal(t, model.SESSION_COMPLETED, session.Status)
}

func assignFlow() model.FlowDef {
	return model.FlowDef{
		Id:     "support",
		Active: true,
		Steps: []model.StepDef{
			{Id: "start", Type: "start", Config: map[string]any{"matchMode": "exact", "keywords": []string{"agent"}}},
			{Id: "as", Type: "assign_conversation", Config: map[string]any{"type": "ai", "id": "agent-1"}},
			{Id: "m1", Type: "send_message", Config: map[string]any{"text": "back to the flow"}},
		},
		Connections: []model.Connection{
			{Id: "c1", Source: "start", Target: "as"},
			{Id: "c2", Source: "as", Target: "m1"},
		},
	}
}

func testDelegateRouting(t *testing.T, p *pipeline) {
	require.NoError(t, p.metadata.SaveFlow(assignFlow()))
	require.NoError(t, p.metadata.SaveAgent(model.AgentDef{Id: "agent-1", Name: "Eva", SystemPrompt: "Help."}))
	require.NoError(t, p.service.HandleEvent(context.Background(), event("agent")))
	p.dispatcher.actions = nil

	require.NoError(t, p.service.HandleEvent(context.Background(), event("my order is late")))

	require.Equal(t, []string{"How can I help?"}, p.dispatcher.texts())
	session, err := p.sessions.Get("555", "support")
	require.NoError(t, err)
	require.Equal(t, 1, session.AiTurns)
	require.True(t, session.AssignedToAi())
}

func testHandoffResumesFlow(t *testing.T, p *pipeline) {
	require.NoError(t, p.metadata.SaveFlow(assignFlow()))
	require.NoError(t, p.metadata.SaveAgent(model.AgentDef{Id: "agent-1", Name: "Eva", SystemPrompt: "Help."}))
	require.NoError(t, p.service.HandleEvent(context.Background(), event("agent")))
	p.dispatcher.actions = nil
	p.completions.reply = "Passing you on." + delegate.HandoffMarker + `{"reason":"complex"}`

	require.NoError(t, p.service.HandleEvent(context.Background(), event("this is complicated")))

	require.Equal(t, []string{"Passing you on.", "back to the flow"}, p.dispatcher.texts())
	require.Equal(t, 1, p.notifier.calls)
	session, err := p.sessions.Get("555", "support")
	require.NoError(t, err)
	require.Nil(t, session.Assignee)
	require.Equal(t, model.SESSION_COMPLETED, session.Status)
}
