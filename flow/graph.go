package flow

import (
	"fmt"
	"strings"

	"github.com/flowkit/flowkit/logger"
	"github.com/flowkit/flowkit/model"
	"go.uber.org/zap"
)

// Step is a runtime node: the typed configuration matching its declared
// type, decoded once at load. A step whose configuration failed to decode
// carries Err and is never executed; the interpreter completes the session
// when it reaches one.
type Step struct {
	Id              string
	Type            model.StepType
	Trigger         *model.TriggerConfig
	Message         *MessageConfig
	Question        *QuestionConfig
	Wait            *WaitConfig
	Condition       *ConditionConfig
	Assign          *AssignConfig
	Rotator         *RotatorConfig
	StartAutomation *StartAutomationConfig
	Err             error
}

func (s *Step) IsQuestion() bool {
	return s.Type == model.STEP_TYPE_QUESTION_SIMPLE || s.Type == model.STEP_TYPE_QUESTION_MULTIPLE
}

type Graph struct {
	Id       string
	Name     string
	Active   bool
	StartId  string
	steps    map[string]*Step
	outgoing map[string][]model.Connection
}

func (g *Graph) Step(id string) *Step {
	return g.steps[id]
}

// Start returns the start step; nil only for a graph converted from a
// definition that failed validation.
func (g *Graph) Start() *Step {
	return g.steps[g.StartId]
}

func (g *Graph) Trigger() *model.TriggerConfig {
	start := g.Start()
	if start == nil {
		return nil
	}
	return start.Trigger
}

// Connections returns the outgoing connections of a step in declaration
// order.
func (g *Graph) Connections(stepId string) []model.Connection {
	return g.outgoing[stepId]
}

// Single returns the target of the step's single outgoing connection. When
// a step has several outputs the first is taken; labeled steps resolve
// their branch through ByHandle instead.
func (g *Graph) Single(stepId string) (string, bool) {
	conns := g.outgoing[stepId]
	if len(conns) == 0 {
		return "", false
	}
	return conns[0].Target, true
}

// ByHandle returns the target of the outgoing connection whose source
// handle equals handle.
func (g *Graph) ByHandle(stepId string, handle string) (string, bool) {
	for _, conn := range g.outgoing[stepId] {
		if conn.SourceHandle == handle {
			return conn.Target, true
		}
	}
	return "", false
}

func toStepType(t string) model.StepType {
	// the editor historically emitted "multipleChoice" for choice steps
	if strings.EqualFold(t, "multipleChoice") {
		return model.STEP_TYPE_QUESTION_MULTIPLE
	}
	return model.StepType(t)
}

// Convert builds the runtime graph for a flow definition. Malformed step
// configuration is a recoverable per-step failure: the step is kept with
// its decode error and the interpreter terminates the session if it is ever
// reached.
func Convert(def *model.FlowDef) *Graph {
	steps := make(map[string]*Step)
	outgoing := make(map[string][]model.Connection)
	startId := ""
	for _, stepDef := range def.Steps {
		step := convertStep(stepDef)
		steps[step.Id] = step
		if step.Type == model.STEP_TYPE_START {
			startId = step.Id
		}
	}
	for _, conn := range def.Connections {
		outgoing[conn.Source] = append(outgoing[conn.Source], conn)
	}
	return &Graph{
		Id:       def.Id,
		Name:     def.Name,
		Active:   def.Active,
		StartId:  startId,
		steps:    steps,
		outgoing: outgoing,
	}
}

func convertStep(def model.StepDef) *Step {
	step := &Step{
		Id:   def.Id,
		Type: toStepType(def.Type),
	}
	var err error
	switch step.Type {
	case model.STEP_TYPE_START:
		step.Trigger, err = decodeConfig[model.TriggerConfig](def.Config)
		if err == nil && step.Trigger.Kind == "" {
			step.Trigger.Kind = model.EVENT_MESSAGE_RECEIVED
		}
		if err == nil && step.Trigger.MatchMode == "" {
			step.Trigger.MatchMode = model.MATCH_MODE_CONTAINS
		}
	case model.STEP_TYPE_SEND_MESSAGE, model.STEP_TYPE_SEND_MEDIA:
		step.Message, err = decodeConfig[MessageConfig](def.Config)
	case model.STEP_TYPE_QUESTION_SIMPLE, model.STEP_TYPE_QUESTION_MULTIPLE:
		step.Question, err = decodeConfig[QuestionConfig](def.Config)
	case model.STEP_TYPE_WAIT:
		step.Wait, err = decodeConfig[WaitConfig](def.Config)
	case model.STEP_TYPE_CONDITION:
		step.Condition, err = decodeConfig[ConditionConfig](def.Config)
	case model.STEP_TYPE_ASSIGN:
		step.Assign, err = decodeConfig[AssignConfig](def.Config)
	case model.STEP_TYPE_ROTATOR:
		step.Rotator, err = decodeConfig[RotatorConfig](def.Config)
	case model.STEP_TYPE_START_AUTOMATION:
		step.StartAutomation, err = decodeConfig[StartAutomationConfig](def.Config)
	default:
		err = fmt.Errorf("stepId=%s, unknown step type %q", def.Id, def.Type)
	}
	step.Err = err
	return step
}

// Validate rejects definitions the interpreter could not run safely. It is
// called on save; Convert itself never fails. Unreachable steps are a
// warning, not an error.
func Validate(def *model.FlowDef) error {
	validStepId := make(map[string]any)
	startCount := 0
	for _, stepDef := range def.Steps {
		if _, ok := validStepId[stepDef.Id]; ok {
			return fmt.Errorf("step id %s is duplicate", stepDef.Id)
		}
		validStepId[stepDef.Id] = ""
		if toStepType(stepDef.Type) == model.STEP_TYPE_START {
			startCount++
		}
	}
	if startCount != 1 {
		return fmt.Errorf("flow must have exactly one start step, has %d", startCount)
	}
	handles := make(map[string]map[string]any)
	for _, conn := range def.Connections {
		if _, ok := validStepId[conn.Source]; !ok {
			return fmt.Errorf("connection %s has unknown source %s", conn.Id, conn.Source)
		}
		if _, ok := validStepId[conn.Target]; !ok {
			return fmt.Errorf("connection %s has unknown target %s", conn.Id, conn.Target)
		}
		if len(conn.SourceHandle) > 0 {
			if _, ok := handles[conn.Source]; !ok {
				handles[conn.Source] = make(map[string]any)
			}
			if _, ok := handles[conn.Source][conn.SourceHandle]; ok {
				return fmt.Errorf("step %s has duplicate source handle %s", conn.Source, conn.SourceHandle)
			}
			handles[conn.Source][conn.SourceHandle] = ""
		}
	}
	g := Convert(def)
	for _, stepDef := range def.Steps {
		step := g.Step(stepDef.Id)
		if step.Err != nil {
			return step.Err
		}
		if err := validateStep(step); err != nil {
			return err
		}
	}
	warnUnreachable(g)
	return nil
}

func validateStep(step *Step) error {
	switch step.Type {
	case model.STEP_TYPE_SEND_MESSAGE, model.STEP_TYPE_SEND_MEDIA:
		return step.Message.validate(step.Id)
	case model.STEP_TYPE_QUESTION_SIMPLE:
		return step.Question.validate(step.Id, false)
	case model.STEP_TYPE_QUESTION_MULTIPLE:
		return step.Question.validate(step.Id, true)
	case model.STEP_TYPE_WAIT:
		return step.Wait.validate(step.Id)
	case model.STEP_TYPE_CONDITION:
		return step.Condition.validate(step.Id)
	case model.STEP_TYPE_ASSIGN:
		return step.Assign.validate(step.Id)
	case model.STEP_TYPE_ROTATOR:
		return step.Rotator.validate(step.Id)
	case model.STEP_TYPE_START_AUTOMATION:
		return step.StartAutomation.validate(step.Id)
	}
	return nil
}

func warnUnreachable(g *Graph) {
	visited := make(map[string]bool)
	stack := []string{g.StartId}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[id] {
			continue
		}
		visited[id] = true
		for _, conn := range g.Connections(id) {
			stack = append(stack, conn.Target)
		}
	}
	for id := range g.steps {
		if !visited[id] {
			logger.Warn("step not reachable from start", zap.String("flow", g.Id), zap.String("step", id))
		}
	}
}
