package inmem

import (
	"sync"

	"github.com/flowkit/flowkit/model"
	"github.com/flowkit/flowkit/persistence"
)

var _ persistence.FlowStorage = new(MetadataStorage)
var _ persistence.AgentStorage = new(MetadataStorage)

type MetadataStorage struct {
	mu     sync.RWMutex
	flows  map[string]model.FlowDef
	agents map[string]model.AgentDef
}

func NewMetadataStorage() *MetadataStorage {
	return &MetadataStorage{
		flows:  make(map[string]model.FlowDef),
		agents: make(map[string]model.AgentDef),
	}
}

func (ms *MetadataStorage) SaveFlowDefinition(def model.FlowDef) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.flows[def.Id] = def
	return nil
}

func (ms *MetadataStorage) GetFlowDefinition(id string) (*model.FlowDef, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	def, ok := ms.flows[id]
	if !ok {
		return nil, persistence.FlowNotFoundError{Id: id}
	}
	return &def, nil
}

func (ms *MetadataStorage) DeleteFlowDefinition(id string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	delete(ms.flows, id)
	return nil
}

func (ms *MetadataStorage) ListFlowDefinitions() ([]*model.FlowDef, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	defs := make([]*model.FlowDef, 0, len(ms.flows))
	for _, def := range ms.flows {
		d := def
		defs = append(defs, &d)
	}
	return defs, nil
}

func (ms *MetadataStorage) SaveAgentDefinition(def model.AgentDef) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.agents[def.Id] = def
	return nil
}

func (ms *MetadataStorage) GetAgentDefinition(id string) (*model.AgentDef, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	def, ok := ms.agents[id]
	if !ok {
		return nil, persistence.AgentNotFoundError{Id: id}
	}
	return &def, nil
}

func (ms *MetadataStorage) DeleteAgentDefinition(id string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	delete(ms.agents, id)
	return nil
}
