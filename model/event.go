package model

type EventKind string

const EVENT_MESSAGE_RECEIVED EventKind = "message_received"
const EVENT_TAG_ADDED EventKind = "tag_added"
const EVENT_THIRD_PARTY EventKind = "third_party"

// InboundEvent is one externally-triggered invocation of the pipeline,
// normally an inbound message on the conversational channel.
type InboundEvent struct {
	Kind        EventKind      `json:"kind"`
	Address     string         `json:"address"`
	Text        string         `json:"text"`
	ReplyId     string         `json:"replyId,omitempty"`
	DeviceId    string         `json:"deviceId,omitempty"`
	ContactName string         `json:"contactName,omitempty"`
	Tag         string         `json:"tag,omitempty"`
	Payload     map[string]any `json:"payload,omitempty"`
}

type Contact struct {
	Address string   `json:"address"`
	Name    string   `json:"name"`
	Tags    []string `json:"tags"`
}
