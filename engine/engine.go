package engine

import (
	"context"
	"math/rand"
	"time"

	"github.com/flowkit/flowkit/flow"
	"github.com/flowkit/flowkit/logger"
	"github.com/flowkit/flowkit/model"
	"go.uber.org/zap"
)

// DIAG_STEP_CAP marks a session force-completed because one run advanced
// more steps than the configured cap (a cycle in the graph).
const DIAG_STEP_CAP string = "step_cap_exceeded"
const DIAG_BAD_STEP string = "malformed_step"
const DIAG_DANGLING string = "dangling_step_reference"

const DEFAULT_STEP_CAP int = 64

// ContactReader is the slice of the contact store the interpreter needs
// for condition predicates.
type ContactReader interface {
	HasTag(ctx context.Context, address string, tag string) (bool, error)
}

// Result is the output of one interpreter invocation: the ordered actions
// to dispatch, an optional scheduled resume for a wait step, and flows to
// start fresh for the same address.
type Result struct {
	Actions    []model.Action
	Resume     *model.Resume
	StartFlows []string
}

type Engine struct {
	contacts ContactReader
	stepCap  int
	now      func() time.Time
	randFn   func(n int) int
}

func New(contacts ContactReader, stepCap int) *Engine {
	if stepCap <= 0 {
		stepCap = DEFAULT_STEP_CAP
	}
	return &Engine{
		contacts: contacts,
		stepCap:  stepCap,
		now:      time.Now,
		randFn:   rand.Intn,
	}
}

// Run walks the graph from fromStepId, emitting actions until a step blocks
// the run (question, wait, AI assignment), the graph ends, or the step cap
// is hit. The session is mutated in place; the caller persists it with a
// compare-and-swap and performs the emitted actions afterwards.
func (e *Engine) Run(ctx context.Context, g *flow.Graph, session *model.Session, fromStepId string) *Result {
	result := &Result{}
	current := fromStepId
	for steps := 0; ; steps++ {
		if steps >= e.stepCap {
			logger.Error("step cap exceeded, completing session", zap.String("flow", g.Id), zap.String("address", session.Address))
			e.complete(session, DIAG_STEP_CAP)
			return result
		}
		step := g.Step(current)
		if step == nil {
			logger.Error("step not found, completing session", zap.String("flow", g.Id), zap.String("step", current))
			e.complete(session, DIAG_DANGLING)
			return result
		}
		if step.Err != nil {
			logger.Error("malformed step configuration, completing session", zap.String("flow", g.Id), zap.String("step", current), zap.Error(step.Err))
			e.complete(session, DIAG_BAD_STEP)
			return result
		}
		var stop bool
		current, stop = e.executeStep(ctx, g, session, step, result)
		if stop {
			return result
		}
	}
}

// executeStep runs one step and returns the next step id, or stop=true when
// the run must not continue.
func (e *Engine) executeStep(ctx context.Context, g *flow.Graph, session *model.Session, step *flow.Step, result *Result) (string, bool) {
	switch step.Type {
	case model.STEP_TYPE_START:
		return e.advance(g, session, step, result)
	case model.STEP_TYPE_SEND_MESSAGE, model.STEP_TYPE_SEND_MEDIA:
		result.Actions = append(result.Actions, e.messageAction(session, step))
		return e.advance(g, session, step, result)
	case model.STEP_TYPE_QUESTION_SIMPLE, model.STEP_TYPE_QUESTION_MULTIPLE:
		result.Actions = append(result.Actions, e.questionAction(session, step))
		session.CurrentStepId = step.Id
		return "", true
	case model.STEP_TYPE_WAIT:
		return e.executeWait(g, session, step, result)
	case model.STEP_TYPE_CONDITION:
		return e.executeCondition(ctx, g, session, step, result)
	case model.STEP_TYPE_ASSIGN:
		return e.executeAssign(g, session, step, result)
	case model.STEP_TYPE_ROTATOR:
		return e.executeRotator(g, session, step, result)
	case model.STEP_TYPE_START_AUTOMATION:
		e.complete(session, "")
		result.StartFlows = append(result.StartFlows, step.StartAutomation.FlowId)
		return "", true
	default:
		logger.Error("unknown step type, completing session", zap.String("step", step.Id), zap.String("type", string(step.Type)))
		e.complete(session, DIAG_BAD_STEP)
		return "", true
	}
}

func (e *Engine) messageAction(session *model.Session, step *flow.Step) model.Action {
	actionType := model.ACTION_SEND_MESSAGE
	if step.Type == model.STEP_TYPE_SEND_MEDIA || len(step.Message.MediaUrl) > 0 {
		actionType = model.ACTION_SEND_MEDIA
	}
	return model.Action{
		Type:         actionType,
		Address:      session.Address,
		Text:         Render(step.Message.Text, session.Variables),
		MediaUrl:     step.Message.MediaUrl,
		MediaType:    step.Message.MediaType,
		DelaySeconds: step.Message.DelaySeconds,
	}
}

func (e *Engine) questionAction(session *model.Session, step *flow.Step) model.Action {
	if step.Type == model.STEP_TYPE_QUESTION_MULTIPLE {
		return model.Action{
			Type:    model.ACTION_SEND_INTERACTIVE,
			Address: session.Address,
			Text:    Render(step.Question.Text, session.Variables),
			Options: step.Question.Options,
		}
	}
	return model.Action{
		Type:    model.ACTION_SEND_MESSAGE,
		Address: session.Address,
		Text:    Render(step.Question.Text, session.Variables),
	}
}

func (e *Engine) executeWait(g *flow.Graph, session *model.Session, step *flow.Step, result *Result) (string, bool) {
	if _, ok := g.Single(step.Id); !ok {
		e.complete(session, "")
		return "", true
	}
	session.CurrentStepId = step.Id
	result.Resume = &model.Resume{
		Address: session.Address,
		FlowId:  session.FlowId,
		StepId:  step.Id,
		Due:     e.now().Add(waitDuration(step.Wait)),
	}
	return "", true
}

func (e *Engine) executeCondition(ctx context.Context, g *flow.Graph, session *model.Session, step *flow.Step, result *Result) (string, bool) {
	handle := model.HANDLE_NO_MATCH
	if e.evaluatePredicates(ctx, session, step.Condition.Predicates) {
		handle = model.HANDLE_MATCH
	}
	next, ok := g.ByHandle(step.Id, handle)
	if !ok {
		// branch not connected: the flow author left this side open
		e.complete(session, "")
		return "", true
	}
	session.CurrentStepId = next
	return next, false
}

func (e *Engine) executeAssign(g *flow.Graph, session *model.Session, step *flow.Step, result *Result) (string, bool) {
	assignee := &model.Assignee{Type: step.Assign.Type, Id: step.Assign.Id}
	session.Assignee = assignee
	result.Actions = append(result.Actions, model.Action{
		Type:     model.ACTION_ASSIGN,
		Address:  session.Address,
		Assignee: assignee,
	})
	if assignee.Type == model.ASSIGNEE_AI {
		// AI takes over; subsequent inbound events go to the delegate
		session.CurrentStepId = step.Id
		session.AiTurns = 0
		return "", true
	}
	return e.advance(g, session, step, result)
}

func (e *Engine) executeRotator(g *flow.Graph, session *model.Session, step *flow.Step, result *Result) (string, bool) {
	handle := e.selectRotation(session, step)
	next, ok := g.ByHandle(step.Id, handle)
	if !ok {
		logger.Error("rotator selection has no connection", zap.String("step", step.Id), zap.String("handle", handle))
		e.complete(session, "")
		return "", true
	}
	session.CurrentStepId = next
	return next, false
}

// advance follows the step's single outgoing connection; a terminal step
// completes the session.
func (e *Engine) advance(g *flow.Graph, session *model.Session, step *flow.Step, result *Result) (string, bool) {
	next, ok := g.Single(step.Id)
	if !ok {
		e.complete(session, "")
		return "", true
	}
	session.CurrentStepId = next
	return next, false
}

func (e *Engine) complete(session *model.Session, diagnostic string) {
	session.Status = model.SESSION_COMPLETED
	session.CurrentStepId = ""
	session.Diagnostic = diagnostic
}

func waitDuration(cfg *flow.WaitConfig) time.Duration {
	switch cfg.Unit {
	case "minutes":
		return time.Duration(cfg.Value) * time.Minute
	case "hours":
		return time.Duration(cfg.Value) * time.Hour
	case "days":
		return time.Duration(cfg.Value) * 24 * time.Hour
	default:
		return time.Duration(cfg.Value) * time.Second
	}
}
