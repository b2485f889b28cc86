package flow

import (
	"encoding/json"
	"fmt"

	"github.com/flowkit/flowkit/model"
)

type MessageConfig struct {
	Text         string `json:"text"`
	MediaUrl     string `json:"mediaUrl"`
	MediaType    string `json:"mediaType"`
	DelaySeconds int    `json:"delaySeconds"`
}

type QuestionConfig struct {
	Text     string         `json:"text"`
	Variable string         `json:"variable"`
	Options  []model.Option `json:"options"`
}

type WaitConfig struct {
	Value int    `json:"value"`
	Unit  string `json:"unit"`
}

type PredicateKind string

const PREDICATE_TAG PredicateKind = "tag"
const PREDICATE_WEEKDAY PredicateKind = "weekday"
const PREDICATE_TIME_OF_DAY PredicateKind = "time_of_day"
const PREDICATE_VARIABLE PredicateKind = "variable"
const PREDICATE_EXPRESSION PredicateKind = "expression"

type Predicate struct {
	Kind       PredicateKind `json:"kind"`
	Tag        string        `json:"tag"`
	Weekdays   []string      `json:"weekdays"`
	From       string        `json:"from"`
	To         string        `json:"to"`
	Var        string        `json:"var"`
	Value      string        `json:"value"`
	Expression string        `json:"expression"`
}

type ConditionConfig struct {
	Predicates []Predicate `json:"predicates"`
}

type AssignConfig struct {
	Type model.AssigneeType `json:"type"`
	Id   string             `json:"id"`
}

type RotatorOption struct {
	Handle string `json:"handle"`
	Weight int    `json:"weight"`
}

type RotatorConfig struct {
	Mode    string          `json:"mode"` // "random" | "sequential"
	Options []RotatorOption `json:"options"`
}

type StartAutomationConfig struct {
	FlowId string `json:"flowId"`
}

func decodeConfig[T any](raw map[string]any) (*T, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var cfg T
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *MessageConfig) validate(stepId string) error {
	if len(c.Text) == 0 && len(c.MediaUrl) == 0 {
		return fmt.Errorf("stepId=%s, message step needs text or media", stepId)
	}
	return nil
}

func (c *QuestionConfig) validate(stepId string, multiple bool) error {
	if len(c.Text) == 0 {
		return fmt.Errorf("stepId=%s, question step needs text", stepId)
	}
	if multiple && len(c.Options) == 0 {
		return fmt.Errorf("stepId=%s, choice step needs options", stepId)
	}
	seen := make(map[string]any)
	for _, opt := range c.Options {
		if len(opt.Id) == 0 {
			return fmt.Errorf("stepId=%s, option without id", stepId)
		}
		if _, ok := seen[opt.Id]; ok {
			return fmt.Errorf("stepId=%s, option id %s is duplicate", stepId, opt.Id)
		}
		seen[opt.Id] = ""
	}
	return nil
}

func (c *WaitConfig) validate(stepId string) error {
	if c.Value <= 0 {
		return fmt.Errorf("stepId=%s, wait value %d wrong", stepId, c.Value)
	}
	switch c.Unit {
	case "seconds", "minutes", "hours", "days":
	default:
		return fmt.Errorf("stepId=%s, wait unit %q wrong", stepId, c.Unit)
	}
	return nil
}

func (c *ConditionConfig) validate(stepId string) error {
	if len(c.Predicates) == 0 {
		return fmt.Errorf("stepId=%s, condition step needs predicates", stepId)
	}
	for _, p := range c.Predicates {
		switch p.Kind {
		case PREDICATE_TAG:
			if len(p.Tag) == 0 {
				return fmt.Errorf("stepId=%s, tag predicate needs tag", stepId)
			}
		case PREDICATE_WEEKDAY:
			if len(p.Weekdays) == 0 {
				return fmt.Errorf("stepId=%s, weekday predicate needs weekdays", stepId)
			}
		case PREDICATE_TIME_OF_DAY:
			if len(p.From) == 0 || len(p.To) == 0 {
				return fmt.Errorf("stepId=%s, time predicate needs from/to", stepId)
			}
		case PREDICATE_VARIABLE:
			if len(p.Var) == 0 {
				return fmt.Errorf("stepId=%s, variable predicate needs var", stepId)
			}
		case PREDICATE_EXPRESSION:
			if len(p.Expression) == 0 {
				return fmt.Errorf("stepId=%s, expression predicate needs expression", stepId)
			}
		default:
			return fmt.Errorf("stepId=%s, unknown predicate kind %q", stepId, p.Kind)
		}
	}
	return nil
}

func (c *AssignConfig) validate(stepId string) error {
	if c.Type != model.ASSIGNEE_HUMAN && c.Type != model.ASSIGNEE_AI {
		return fmt.Errorf("stepId=%s, assignee type %q wrong", stepId, c.Type)
	}
	if len(c.Id) == 0 {
		return fmt.Errorf("stepId=%s, assign step needs assignee id", stepId)
	}
	return nil
}

func (c *RotatorConfig) validate(stepId string) error {
	if c.Mode != "random" && c.Mode != "sequential" {
		return fmt.Errorf("stepId=%s, rotator mode %q wrong", stepId, c.Mode)
	}
	if len(c.Options) == 0 {
		return fmt.Errorf("stepId=%s, rotator step needs options", stepId)
	}
	for _, opt := range c.Options {
		if len(opt.Handle) == 0 {
			return fmt.Errorf("stepId=%s, rotator option without handle", stepId)
		}
	}
	return nil
}

func (c *StartAutomationConfig) validate(stepId string) error {
	if len(c.FlowId) == 0 {
		return fmt.Errorf("stepId=%s, start_automation step needs flowId", stepId)
	}
	return nil
}
