package model

import "time"

type SessionStatus string

const SESSION_ACTIVE SessionStatus = "active"
const SESSION_COMPLETED SessionStatus = "completed"

type AssigneeType string

const ASSIGNEE_HUMAN AssigneeType = "human"
const ASSIGNEE_AI AssigneeType = "ai"

type Assignee struct {
	Type AssigneeType `json:"type"`
	Id   string       `json:"id"`
}

// Session is the persisted execution cursor for one (address, flow) pair.
// It is owned exclusively by the interpreter/session-store pairing.
type Session struct {
	Id            string         `json:"id"`
	FlowId        string         `json:"flowId"`
	Address       string         `json:"address"`
	CurrentStepId string         `json:"currentStepId"`
	Variables     map[string]any `json:"variables"`
	Status        SessionStatus  `json:"status"`
	Assignee      *Assignee      `json:"assignee,omitempty"`
	AiTurns       int            `json:"aiTurns"`
	LastReply     string         `json:"lastReply"`
	Diagnostic    string         `json:"diagnostic,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

func (s *Session) IsActive() bool {
	return s.Status == SESSION_ACTIVE && s.CurrentStepId != ""
}

func (s *Session) AssignedToAi() bool {
	return s.Assignee != nil && s.Assignee.Type == ASSIGNEE_AI
}

// Resume is a scheduled re-entry into a waiting session. StepId is the wait
// step the resume was scheduled from; a resume whose StepId no longer equals
// the session's current step is stale and must be dropped.
type Resume struct {
	Address string    `json:"address"`
	FlowId  string    `json:"flowId"`
	StepId  string    `json:"stepId"`
	Due     time.Time `json:"due"`
}
