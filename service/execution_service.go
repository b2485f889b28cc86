package service

import (
	"context"
	"strings"
	"time"

	"github.com/flowkit/flowkit/delegate"
	"github.com/flowkit/flowkit/dispatch"
	"github.com/flowkit/flowkit/engine"
	"github.com/flowkit/flowkit/flow"
	"github.com/flowkit/flowkit/logger"
	"github.com/flowkit/flowkit/metadata"
	"github.com/flowkit/flowkit/model"
	"github.com/flowkit/flowkit/persistence"
	"github.com/flowkit/flowkit/trigger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Administrative phrases that clear a session instead of being routed
// through the interpreter. Checked before anything else.
var resetCommands = []string{"reset chat", "/reset"}

// maxFlowChain bounds how many flows a start_automation chain may start
// within one inbound event, so two flows referencing each other cannot
// trigger-loop forever.
const maxFlowChain int = 5

const casRetries int = 3

// ContactWriter is the slice of the contact store the pipeline writes to.
type ContactWriter interface {
	Upsert(ctx context.Context, contact *model.Contact) error
	AddTag(ctx context.Context, address string, tag string) error
}

// ExecutionService runs the per-event pipeline: reset side channel, session
// lookup, delegate/resolver/trigger routing, interpreter run, optimistic
// session write, action dispatch. Each inbound event is one independent,
// stateless invocation; invocations for the same address serialize on the
// session store's compare-and-swap.
type ExecutionService struct {
	metadata   metadata.Service
	sessions   persistence.SessionStorage
	resumes    persistence.ResumeQueue
	contacts   ContactWriter
	dispatcher dispatch.Dispatcher
	matcher    *trigger.Matcher
	engine     *engine.Engine
	delegate   *delegate.Delegate
}

func NewExecutionService(
	metadataService metadata.Service,
	sessions persistence.SessionStorage,
	resumes persistence.ResumeQueue,
	contacts ContactWriter,
	dispatcher dispatch.Dispatcher,
	matcher *trigger.Matcher,
	eng *engine.Engine,
	del *delegate.Delegate,
) *ExecutionService {
	return &ExecutionService{
		metadata:   metadataService,
		sessions:   sessions,
		resumes:    resumes,
		contacts:   contacts,
		dispatcher: dispatcher,
		matcher:    matcher,
		engine:     eng,
		delegate:   del,
	}
}

func (s *ExecutionService) HandleEvent(ctx context.Context, event model.InboundEvent) error {
	if event.Kind == "" {
		event.Kind = model.EVENT_MESSAGE_RECEIVED
	}
	if event.Kind == model.EVENT_MESSAGE_RECEIVED && isResetCommand(event.Text) {
		logger.Info("reset command received", zap.String("address", event.Address))
		return s.sessions.Reset(event.Address)
	}
	if s.contacts != nil {
		if err := s.contacts.Upsert(ctx, &model.Contact{Address: event.Address, Name: event.ContactName}); err != nil {
			logger.Error("contact upsert failed", zap.String("address", event.Address), zap.Error(err))
		}
	}
	graphs, err := s.metadata.ListActiveFlows()
	if err != nil {
		return err
	}
	active, err := s.sessions.FindActive(event.Address)
	if err != nil {
		return err
	}
	restart := event.Kind == model.EVENT_MESSAGE_RECEIVED && s.matcher.IsTriggerText(event.Text, graphs)
	if active != nil && event.Kind == model.EVENT_MESSAGE_RECEIVED && !restart {
		if active.AssignedToAi() {
			return s.handleDelegate(ctx, active, event)
		}
		return s.continueSession(ctx, event)
	}
	if active != nil && restart {
		s.forceComplete(active)
	}
	matches := s.matcher.Match(event, graphs, s.sessions)
	if len(matches) == 0 {
		logger.Debug("no trigger matched", zap.String("address", event.Address), zap.String("kind", string(event.Kind)))
		return nil
	}
	for _, match := range matches {
		// fresh variable bag per session, sessions must not share memory
		s.startSession(ctx, match.Graph, event.Address, seedVariables(event), 0)
	}
	return nil
}

// continueSession resumes an active session with a reply. On a concurrent
// update the whole continuation is re-read and re-resolved, bounded by
// casRetries.
func (s *ExecutionService) continueSession(ctx context.Context, event model.InboundEvent) error {
	for attempt := 0; attempt < casRetries; attempt++ {
		session, err := s.sessions.FindActive(event.Address)
		if err != nil {
			return err
		}
		if session == nil {
			return nil
		}
		g, err := s.metadata.GetFlow(session.FlowId)
		if err != nil {
			logger.Error("flow for active session not found, completing", zap.String("flowId", session.FlowId), zap.Error(err))
			s.forceComplete(session)
			return nil
		}
		next, ok := engine.Resolve(g, session, event.Text)
		if !ok {
			logger.Debug("reply matched no branch, session stays put", zap.String("address", event.Address), zap.String("step", session.CurrentStepId))
			return nil
		}
		expected := session.CurrentStepId
		recordReply(g, session, event.Text)
		result := s.engine.Run(ctx, g, session, next)
		committed, err := s.commit(ctx, session, expected, result)
		if err != nil {
			return err
		}
		if committed {
			return nil
		}
		logger.Warn("session changed concurrently, retrying continuation", zap.String("address", event.Address))
	}
	logger.Error("continuation dropped after retries", zap.String("address", event.Address))
	return nil
}

// handleDelegate forwards the message of an AI-assigned session to the
// completion delegate and, when the assignment ends, hands the session back
// to normal flow execution from the assign step's outgoing connection.
func (s *ExecutionService) handleDelegate(ctx context.Context, session *model.Session, event model.InboundEvent) error {
	expected := session.CurrentStepId
	agentDef, err := s.metadata.GetAgent(session.Assignee.Id)
	if err != nil {
		logger.Error("agent definition not found, releasing assignment", zap.String("agent", session.Assignee.Id), zap.Error(err))
		return s.releaseAssignment(ctx, session, expected, nil)
	}
	actions, released, err := s.delegate.Handle(ctx, session, agentDef, event.Text)
	if err != nil {
		return err
	}
	if released {
		return s.releaseAssignment(ctx, session, expected, actions)
	}
	committed, err := s.commit(ctx, session, expected, &engine.Result{Actions: actions})
	if err != nil {
		return err
	}
	if !committed {
		logger.Warn("session changed concurrently, dropping delegate turn", zap.String("address", session.Address))
	}
	return nil
}

// releaseAssignment ends AI assignment and resumes the flow behind the
// assign step.
func (s *ExecutionService) releaseAssignment(ctx context.Context, session *model.Session, expected string, actions []model.Action) error {
	session.Assignee = nil
	result := &engine.Result{Actions: actions}
	g, err := s.metadata.GetFlow(session.FlowId)
	if err != nil {
		session.Status = model.SESSION_COMPLETED
		session.CurrentStepId = ""
	} else if next, ok := g.Single(session.CurrentStepId); ok {
		run := s.engine.Run(ctx, g, session, next)
		result.Actions = append(result.Actions, run.Actions...)
		result.Resume = run.Resume
		result.StartFlows = run.StartFlows
	} else {
		session.Status = model.SESSION_COMPLETED
		session.CurrentStepId = ""
	}
	committed, err := s.commit(ctx, session, expected, result)
	if err != nil {
		return err
	}
	if !committed {
		logger.Warn("session changed concurrently, dropping release", zap.String("address", session.Address))
	}
	return nil
}

// HandleResume re-enters a session that was parked at a wait step. A resume
// whose step no longer matches the session's current step is stale and is
// dropped, so late or duplicate timer fires are no-ops.
func (s *ExecutionService) HandleResume(ctx context.Context, resume model.Resume) error {
	session, err := s.sessions.Get(resume.Address, resume.FlowId)
	if err != nil {
		if _, ok := err.(persistence.SessionNotFoundError); ok {
			return nil
		}
		return err
	}
	if !session.IsActive() || session.CurrentStepId != resume.StepId {
		logger.Debug("dropping stale resume", zap.String("address", resume.Address), zap.String("step", resume.StepId))
		return nil
	}
	g, err := s.metadata.GetFlow(resume.FlowId)
	if err != nil {
		s.forceComplete(session)
		return nil
	}
	next, ok := g.Single(resume.StepId)
	if !ok {
		s.forceComplete(session)
		return nil
	}
	result := s.engine.Run(ctx, g, session, next)
	committed, err := s.commit(ctx, session, resume.StepId, result)
	if err != nil {
		return err
	}
	if !committed {
		logger.Debug("session advanced before resume, dropping", zap.String("address", resume.Address))
	}
	return nil
}

// HandleTagAdded records the tag and feeds a tag_added event through the
// normal trigger pipeline.
func (s *ExecutionService) HandleTagAdded(ctx context.Context, address string, tag string) error {
	if s.contacts != nil {
		if err := s.contacts.AddTag(ctx, address, tag); err != nil {
			return err
		}
	}
	return s.HandleEvent(ctx, model.InboundEvent{
		Kind:    model.EVENT_TAG_ADDED,
		Address: address,
		Tag:     tag,
	})
}

func (s *ExecutionService) ResetSession(address string) error {
	return s.sessions.Reset(address)
}

// StartFlow starts a flow for an address without trigger evaluation, the
// path start_automation directives and manual starts take.
func (s *ExecutionService) StartFlow(ctx context.Context, flowId string, address string) error {
	g, err := s.metadata.GetFlow(flowId)
	if err != nil {
		return err
	}
	s.startSession(ctx, g, address, map[string]any{"address": address}, 0)
	return nil
}

func (s *ExecutionService) startSession(ctx context.Context, g *flow.Graph, address string, variables map[string]any, depth int) {
	if depth >= maxFlowChain {
		logger.Error("flow chain too deep, not starting flow", zap.String("flow", g.Id), zap.String("address", address))
		return
	}
	if g.StartId == "" {
		logger.Error("flow has no start step", zap.String("flow", g.Id))
		return
	}
	session := &model.Session{
		Id:            uuid.New().String(),
		FlowId:        g.Id,
		Address:       address,
		CurrentStepId: g.StartId,
		Variables:     variables,
		Status:        model.SESSION_ACTIVE,
		CreatedAt:     time.Now(),
	}
	if err := s.sessions.Create(session); err != nil {
		logger.Error("error creating session", zap.String("flow", g.Id), zap.String("address", address), zap.Error(err))
		return
	}
	result := s.engine.Run(ctx, g, session, g.StartId)
	committed, err := s.commitAtDepth(ctx, session, g.StartId, result, depth)
	if err != nil || !committed {
		logger.Warn("could not commit new session", zap.String("flow", g.Id), zap.String("address", address), zap.Error(err))
	}
}

func (s *ExecutionService) commit(ctx context.Context, session *model.Session, expectedStepId string, result *engine.Result) (bool, error) {
	return s.commitAtDepth(ctx, session, expectedStepId, result, 0)
}

// commitAtDepth persists the session with a compare-and-swap and, only if
// the write won, performs the run's side effects: action dispatch, resume
// scheduling and chained flow starts.
func (s *ExecutionService) commitAtDepth(ctx context.Context, session *model.Session, expectedStepId string, result *engine.Result, depth int) (bool, error) {
	swapped, err := s.sessions.CompareAndSwap(session, expectedStepId)
	if err != nil {
		return false, err
	}
	if !swapped {
		return false, nil
	}
	s.dispatchActions(ctx, result.Actions)
	if result.Resume != nil {
		if err := s.resumes.Push(*result.Resume); err != nil {
			logger.Error("error scheduling resume", zap.String("address", session.Address), zap.Error(err))
		}
	}
	for _, flowId := range result.StartFlows {
		g, err := s.metadata.GetFlow(flowId)
		if err != nil {
			logger.Error("chained flow not found", zap.String("flowId", flowId), zap.Error(err))
			continue
		}
		s.startSession(ctx, g, session.Address, map[string]any{"address": session.Address}, depth+1)
	}
	return true, nil
}

// dispatchActions performs the emitted actions in order. A failed action is
// logged and the rest of the batch still runs; the session advancement is
// already committed.
func (s *ExecutionService) dispatchActions(ctx context.Context, actions []model.Action) {
	for _, action := range actions {
		if err := s.dispatcher.Dispatch(ctx, action); err != nil {
			logger.Error("action dispatch failed", zap.String("type", string(action.Type)), zap.String("address", action.Address), zap.Error(err))
		}
	}
}

func (s *ExecutionService) forceComplete(session *model.Session) {
	expected := session.CurrentStepId
	session.Status = model.SESSION_COMPLETED
	session.CurrentStepId = ""
	if _, err := s.sessions.CompareAndSwap(session, expected); err != nil {
		logger.Error("error completing session", zap.String("address", session.Address), zap.Error(err))
	}
}

func recordReply(g *flow.Graph, session *model.Session, reply string) {
	if session.Variables == nil {
		session.Variables = make(map[string]any)
	}
	session.LastReply = reply
	session.Variables["last_reply"] = reply
	step := g.Step(session.CurrentStepId)
	if step != nil && step.Question != nil && len(step.Question.Variable) > 0 {
		session.Variables[step.Question.Variable] = reply
	}
}

func seedVariables(event model.InboundEvent) map[string]any {
	variables := map[string]any{
		"address": event.Address,
	}
	if len(event.ContactName) > 0 {
		variables["contact"] = event.ContactName
	}
	if len(event.Text) > 0 {
		variables["last_message"] = event.Text
	}
	if len(event.Tag) > 0 {
		variables["tag"] = event.Tag
	}
	if event.Payload != nil {
		variables["payload"] = event.Payload
	}
	return variables
}

func isResetCommand(text string) bool {
	normalized := strings.ToLower(strings.TrimSpace(text))
	for _, command := range resetCommands {
		if normalized == command {
			return true
		}
	}
	return false
}
