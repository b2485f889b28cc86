package model

type StepType string

const STEP_TYPE_START StepType = "start"
const STEP_TYPE_SEND_MESSAGE StepType = "send_message"
const STEP_TYPE_SEND_MEDIA StepType = "send_media"
const STEP_TYPE_QUESTION_SIMPLE StepType = "question_simple"
const STEP_TYPE_QUESTION_MULTIPLE StepType = "question_multiple"
const STEP_TYPE_WAIT StepType = "wait"
const STEP_TYPE_CONDITION StepType = "condition"
const STEP_TYPE_ASSIGN StepType = "assign_conversation"
const STEP_TYPE_START_AUTOMATION StepType = "start_automation"
const STEP_TYPE_ROTATOR StepType = "rotator"

// Connection handles emitted by condition steps.
const HANDLE_MATCH string = "cumple"
const HANDLE_NO_MATCH string = "no_cumple"

type FlowDef struct {
	Id          string       `json:"id"`
	Name        string       `json:"name"`
	Active      bool         `json:"active"`
	Steps       []StepDef    `json:"steps"`
	Connections []Connection `json:"connections"`
}

// StepDef carries the raw, type-shaped configuration as stored by the
// editor. It is decoded into a typed config once, at graph load.
type StepDef struct {
	Id     string         `json:"id"`
	Type   string         `json:"type"`
	Config map[string]any `json:"config"`
}

type Connection struct {
	Id           string `json:"id"`
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"sourceHandle,omitempty"`
	Label        string `json:"label,omitempty"`
}

type MatchMode string

const MATCH_MODE_ALL MatchMode = "all"
const MATCH_MODE_EXACT MatchMode = "exact"
const MATCH_MODE_CONTAINS MatchMode = "contains"

// TriggerConfig is the start step configuration: what makes an inbound
// event start this flow.
type TriggerConfig struct {
	Kind           EventKind `json:"kind"`
	MatchMode      MatchMode `json:"matchMode"`
	Keywords       []string  `json:"keywords"`
	OncePerContact bool      `json:"oncePerContact"`
	DeviceId       string    `json:"deviceId"`
	Tag            string    `json:"tag"`
}

type AgentDef struct {
	Id           string `json:"id"`
	Name         string `json:"name"`
	SystemPrompt string `json:"systemPrompt"`
	MaxTurns     int    `json:"maxTurns"`
}
