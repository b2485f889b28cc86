package redis

import (
	"context"
	"errors"

	rd "github.com/go-redis/redis/v9"
	"github.com/flowkit/flowkit/logger"
	"github.com/flowkit/flowkit/model"
	"github.com/flowkit/flowkit/persistence"
	"github.com/flowkit/flowkit/util"
	"go.uber.org/zap"
)

const FLOW_DEF_KEY string = "FLOWDEF"
const AGENT_DEF_KEY string = "AGENTDEF"

var _ persistence.FlowStorage = new(redisMetadataStorage)
var _ persistence.AgentStorage = new(redisMetadataStorage)

type redisMetadataStorage struct {
	baseDao
	flowEncDec  util.EncoderDecoder[model.FlowDef]
	agentEncDec util.EncoderDecoder[model.AgentDef]
}

func NewRedisMetadataStorage(conf Config) *redisMetadataStorage {
	return &redisMetadataStorage{
		baseDao:     *newBaseDao(conf),
		flowEncDec:  util.NewJsonEncoderDecoder[model.FlowDef](),
		agentEncDec: util.NewJsonEncoderDecoder[model.AgentDef](),
	}
}

func (rm *redisMetadataStorage) SaveFlowDefinition(def model.FlowDef) error {
	key := rm.getNamespaceKey(FLOW_DEF_KEY)
	ctx := context.Background()
	data, err := rm.flowEncDec.Encode(def)
	if err != nil {
		return err
	}
	if err := rm.redisClient.HSet(ctx, key, []string{def.Id, string(data)}).Err(); err != nil {
		logger.Error("error in saving flow definition", zap.String("flow", def.Id), zap.Error(err))
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (rm *redisMetadataStorage) GetFlowDefinition(id string) (*model.FlowDef, error) {
	key := rm.getNamespaceKey(FLOW_DEF_KEY)
	ctx := context.Background()
	data, err := rm.redisClient.HGet(ctx, key, id).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, persistence.FlowNotFoundError{Id: id}
		}
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return rm.flowEncDec.Decode([]byte(data))
}

func (rm *redisMetadataStorage) DeleteFlowDefinition(id string) error {
	key := rm.getNamespaceKey(FLOW_DEF_KEY)
	ctx := context.Background()
	if err := rm.redisClient.HDel(ctx, key, id).Err(); err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (rm *redisMetadataStorage) ListFlowDefinitions() ([]*model.FlowDef, error) {
	key := rm.getNamespaceKey(FLOW_DEF_KEY)
	ctx := context.Background()
	all, err := rm.redisClient.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	defs := make([]*model.FlowDef, 0, len(all))
	for _, data := range all {
		def, err := rm.flowEncDec.Decode([]byte(data))
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func (rm *redisMetadataStorage) SaveAgentDefinition(def model.AgentDef) error {
	key := rm.getNamespaceKey(AGENT_DEF_KEY)
	ctx := context.Background()
	data, err := rm.agentEncDec.Encode(def)
	if err != nil {
		return err
	}
	if err := rm.redisClient.HSet(ctx, key, []string{def.Id, string(data)}).Err(); err != nil {
		logger.Error("error in saving agent definition", zap.String("agent", def.Id), zap.Error(err))
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (rm *redisMetadataStorage) GetAgentDefinition(id string) (*model.AgentDef, error) {
	key := rm.getNamespaceKey(AGENT_DEF_KEY)
	ctx := context.Background()
	data, err := rm.redisClient.HGet(ctx, key, id).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, persistence.AgentNotFoundError{Id: id}
		}
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return rm.agentEncDec.Decode([]byte(data))
}

func (rm *redisMetadataStorage) DeleteAgentDefinition(id string) error {
	key := rm.getNamespaceKey(AGENT_DEF_KEY)
	ctx := context.Background()
	if err := rm.redisClient.HDel(ctx, key, id).Err(); err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}
