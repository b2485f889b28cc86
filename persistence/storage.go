package persistence

import (
	"fmt"

	"github.com/flowkit/flowkit/model"
)

type StorageLayerError struct {
	Message string
}

func (e StorageLayerError) Error() string {
	return fmt.Sprintf("storage layer error %s", e.Message)
}

type SessionNotFoundError struct {
	Address string
	FlowId  string
}

func (e SessionNotFoundError) Error() string {
	return fmt.Sprintf("no session for address %s flow %s", e.Address, e.FlowId)
}

type FlowNotFoundError struct {
	Id string
}

func (e FlowNotFoundError) Error() string {
	return fmt.Sprintf("flow %s not found", e.Id)
}

type AgentNotFoundError struct {
	Id string
}

func (e AgentNotFoundError) Error() string {
	return fmt.Sprintf("agent %s not found", e.Id)
}

// SessionStorage is the session store contract. Sessions are keyed by the
// composite (address, flowId); completed sessions are kept so that
// once-per-contact triggers can see prior executions. CompareAndSwap is the
// per-address serialization point: the write succeeds only if the stored
// current step id still equals expectedStepId.
type SessionStorage interface {
	Get(address string, flowId string) (*model.Session, error)
	Find(address string) ([]*model.Session, error)
	FindActive(address string) (*model.Session, error)
	Create(session *model.Session) error
	CompareAndSwap(session *model.Session, expectedStepId string) (bool, error)
	Reset(address string) error
}

// ResumeQueue holds scheduled wait-step resumes ordered by due time.
type ResumeQueue interface {
	Push(resume model.Resume) error
	PopDue() ([]model.Resume, error)
}

type FlowStorage interface {
	SaveFlowDefinition(def model.FlowDef) error
	GetFlowDefinition(id string) (*model.FlowDef, error)
	DeleteFlowDefinition(id string) error
	ListFlowDefinitions() ([]*model.FlowDef, error)
}

type AgentStorage interface {
	SaveAgentDefinition(def model.AgentDef) error
	GetAgentDefinition(id string) (*model.AgentDef, error)
	DeleteAgentDefinition(id string) error
}
