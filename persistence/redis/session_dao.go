package redis

import (
	"context"
	"errors"
	"time"

	rd "github.com/go-redis/redis/v9"
	"github.com/flowkit/flowkit/logger"
	"github.com/flowkit/flowkit/model"
	"github.com/flowkit/flowkit/persistence"
	"github.com/flowkit/flowkit/util"
	"go.uber.org/zap"
)

const SESSION_KEY string = "SESSION"

var _ persistence.SessionStorage = new(redisSessionDao)

// redisSessionDao stores one hash per channel address, field per flow id.
// CompareAndSwap runs under WATCH so that two concurrent invocations for
// the same address cannot both advance the session.
type redisSessionDao struct {
	baseDao
	encoderDecoder util.EncoderDecoder[model.Session]
}

func NewRedisSessionStorage(conf Config) *redisSessionDao {
	return &redisSessionDao{
		baseDao:        *newBaseDao(conf),
		encoderDecoder: util.NewJsonEncoderDecoder[model.Session](),
	}
}

func (rs *redisSessionDao) Get(address string, flowId string) (*model.Session, error) {
	key := rs.getNamespaceKey(SESSION_KEY, address)
	ctx := context.Background()
	data, err := rs.redisClient.HGet(ctx, key, flowId).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, persistence.SessionNotFoundError{Address: address, FlowId: flowId}
		}
		logger.Error("error in getting session", zap.String("address", address), zap.String("flowId", flowId), zap.Error(err))
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return rs.encoderDecoder.Decode([]byte(data))
}

func (rs *redisSessionDao) Find(address string) ([]*model.Session, error) {
	key := rs.getNamespaceKey(SESSION_KEY, address)
	ctx := context.Background()
	all, err := rs.redisClient.HGetAll(ctx, key).Result()
	if err != nil {
		logger.Error("error in listing sessions", zap.String("address", address), zap.Error(err))
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	sessions := make([]*model.Session, 0, len(all))
	for _, data := range all {
		session, err := rs.encoderDecoder.Decode([]byte(data))
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, nil
}

func (rs *redisSessionDao) FindActive(address string) (*model.Session, error) {
	sessions, err := rs.Find(address)
	if err != nil {
		return nil, err
	}
	for _, session := range sessions {
		if session.IsActive() {
			return session, nil
		}
	}
	return nil, nil
}

func (rs *redisSessionDao) Create(session *model.Session) error {
	return rs.save(session)
}

func (rs *redisSessionDao) save(session *model.Session) error {
	key := rs.getNamespaceKey(SESSION_KEY, session.Address)
	ctx := context.Background()
	session.UpdatedAt = time.Now()
	data, err := rs.encoderDecoder.Encode(*session)
	if err != nil {
		return err
	}
	if err := rs.redisClient.HSet(ctx, key, []string{session.FlowId, string(data)}).Err(); err != nil {
		logger.Error("error in saving session", zap.String("address", session.Address), zap.String("flowId", session.FlowId), zap.Error(err))
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (rs *redisSessionDao) CompareAndSwap(session *model.Session, expectedStepId string) (bool, error) {
	key := rs.getNamespaceKey(SESSION_KEY, session.Address)
	ctx := context.Background()
	swapped := false
	txf := func(tx *rd.Tx) error {
		data, err := tx.HGet(ctx, key, session.FlowId).Result()
		if err != nil && !errors.Is(err, rd.Nil) {
			return err
		}
		if err == nil {
			stored, err := rs.encoderDecoder.Decode([]byte(data))
			if err != nil {
				return err
			}
			if stored.CurrentStepId != expectedStepId {
				return nil
			}
		}
		session.UpdatedAt = time.Now()
		encoded, err := rs.encoderDecoder.Encode(*session)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe rd.Pipeliner) error {
			pipe.HSet(ctx, key, []string{session.FlowId, string(encoded)})
			return nil
		})
		if err == nil {
			swapped = true
		}
		return err
	}
	err := rs.redisClient.Watch(ctx, txf, key)
	if err != nil {
		if errors.Is(err, rd.TxFailedErr) {
			return false, nil
		}
		logger.Error("error in session compare and swap", zap.String("address", session.Address), zap.String("flowId", session.FlowId), zap.Error(err))
		return false, persistence.StorageLayerError{Message: err.Error()}
	}
	return swapped, nil
}

func (rs *redisSessionDao) Reset(address string) error {
	key := rs.getNamespaceKey(SESSION_KEY, address)
	ctx := context.Background()
	if err := rs.redisClient.Del(ctx, key).Err(); err != nil {
		logger.Error("error in resetting sessions", zap.String("address", address), zap.Error(err))
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}
