package metadata

import (
	"time"

	"github.com/flowkit/flowkit/flow"
	"github.com/flowkit/flowkit/model"
	"github.com/flowkit/flowkit/persistence"
	"github.com/patrickmn/go-cache"
)

// Service serves flow and agent definitions with a read-through cache in
// front of the metadata storage. Converted graphs are cached by flow id and
// invalidated on save and delete.
type Service interface {
	SaveFlow(def model.FlowDef) error
	GetFlowDefinition(id string) (*model.FlowDef, error)
	GetFlow(id string) (*flow.Graph, error)
	DeleteFlow(id string) error
	ListActiveFlows() ([]*flow.Graph, error)
	SaveAgent(def model.AgentDef) error
	GetAgent(id string) (*model.AgentDef, error)
	DeleteAgent(id string) error
}

type metadataService struct {
	flows      persistence.FlowStorage
	agents     persistence.AgentStorage
	graphCache *cache.Cache
}

func NewMetadataService(flows persistence.FlowStorage, agents persistence.AgentStorage) Service {
	return &metadataService{
		flows:      flows,
		agents:     agents,
		graphCache: cache.New(5*time.Minute, 10*time.Minute),
	}
}

func (ms *metadataService) SaveFlow(def model.FlowDef) error {
	if err := flow.Validate(&def); err != nil {
		return err
	}
	if err := ms.flows.SaveFlowDefinition(def); err != nil {
		return err
	}
	ms.graphCache.Delete(def.Id)
	return nil
}

func (ms *metadataService) GetFlowDefinition(id string) (*model.FlowDef, error) {
	return ms.flows.GetFlowDefinition(id)
}

func (ms *metadataService) GetFlow(id string) (*flow.Graph, error) {
	if cached, ok := ms.graphCache.Get(id); ok {
		return cached.(*flow.Graph), nil
	}
	def, err := ms.flows.GetFlowDefinition(id)
	if err != nil {
		return nil, err
	}
	g := flow.Convert(def)
	ms.graphCache.Set(id, g, cache.DefaultExpiration)
	return g, nil
}

func (ms *metadataService) DeleteFlow(id string) error {
	if err := ms.flows.DeleteFlowDefinition(id); err != nil {
		return err
	}
	ms.graphCache.Delete(id)
	return nil
}

func (ms *metadataService) ListActiveFlows() ([]*flow.Graph, error) {
	defs, err := ms.flows.ListFlowDefinitions()
	if err != nil {
		return nil, err
	}
	graphs := make([]*flow.Graph, 0, len(defs))
	for _, def := range defs {
		if !def.Active {
			continue
		}
		g, err := ms.GetFlow(def.Id)
		if err != nil {
			return nil, err
		}
		graphs = append(graphs, g)
	}
	return graphs, nil
}

func (ms *metadataService) SaveAgent(def model.AgentDef) error {
	return ms.agents.SaveAgentDefinition(def)
}

func (ms *metadataService) GetAgent(id string) (*model.AgentDef, error) {
	return ms.agents.GetAgentDefinition(id)
}

func (ms *metadataService) DeleteAgent(id string) error {
	return ms.agents.DeleteAgentDefinition(id)
}
