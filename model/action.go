package model

type ActionType string

const ACTION_SEND_MESSAGE ActionType = "send_message"
const ACTION_SEND_MEDIA ActionType = "send_media"
const ACTION_SEND_INTERACTIVE ActionType = "send_interactive"
const ACTION_ASSIGN ActionType = "assign_conversation"

type Option struct {
	Id    string `json:"id"`
	Label string `json:"label"`
}

// Action is an interpreter output record: a side effect the dispatcher
// performs after the run. Actions are transient, never persisted.
type Action struct {
	Type         ActionType `json:"type"`
	Address      string     `json:"address"`
	DeviceId     string     `json:"deviceId,omitempty"`
	Text         string     `json:"text,omitempty"`
	MediaUrl     string     `json:"mediaUrl,omitempty"`
	MediaType    string     `json:"mediaType,omitempty"`
	Options      []Option   `json:"options,omitempty"`
	Assignee     *Assignee  `json:"assignee,omitempty"`
	DelaySeconds int        `json:"delaySeconds,omitempty"`
}
