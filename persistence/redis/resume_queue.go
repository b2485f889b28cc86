package redis

import (
	"context"
	"errors"
	"strconv"
	"time"

	rd "github.com/go-redis/redis/v9"
	"github.com/flowkit/flowkit/logger"
	"github.com/flowkit/flowkit/model"
	"github.com/flowkit/flowkit/persistence"
	"github.com/flowkit/flowkit/util"
	"go.uber.org/zap"
)

const RESUME_KEY string = "RESUME"

var _ persistence.ResumeQueue = new(redisResumeQueue)

// redisResumeQueue keeps scheduled wait resumes in a sorted set scored by
// due time in unix millis.
type redisResumeQueue struct {
	baseDao
	encoderDecoder util.EncoderDecoder[model.Resume]
}

func NewRedisResumeQueue(conf Config) *redisResumeQueue {
	return &redisResumeQueue{
		baseDao:        *newBaseDao(conf),
		encoderDecoder: util.NewJsonEncoderDecoder[model.Resume](),
	}
}

func (rq *redisResumeQueue) Push(resume model.Resume) error {
	key := rq.getNamespaceKey(RESUME_KEY)
	ctx := context.Background()
	data, err := rq.encoderDecoder.Encode(resume)
	if err != nil {
		return err
	}
	member := rd.Z{
		Score:  float64(resume.Due.UnixMilli()),
		Member: data,
	}
	if err := rq.redisClient.ZAdd(ctx, key, member).Err(); err != nil {
		logger.Error("error while push to resume queue", zap.Error(err))
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (rq *redisResumeQueue) PopDue() ([]model.Resume, error) {
	key := rq.getNamespaceKey(RESUME_KEY)
	ctx := context.Background()
	currentTime := time.Now().UnixMilli()
	pipe := rq.redisClient.Pipeline()
	opt := &rd.ZRangeBy{
		Min: strconv.Itoa(0),
		Max: strconv.FormatInt(currentTime, 10),
	}
	zr := pipe.ZRangeByScore(ctx, key, opt)
	pipe.ZRemRangeByScore(ctx, key, strconv.Itoa(0), strconv.FormatInt(currentTime, 10))
	_, err := pipe.Exec(ctx)
	if err != nil {
		logger.Error("error while pop from resume queue", zap.Error(err))
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	res, err := zr.Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return []model.Resume{}, nil
		}
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	resumes := make([]model.Resume, 0, len(res))
	for _, item := range res {
		resume, err := rq.encoderDecoder.Decode([]byte(item))
		if err != nil {
			logger.Error("dropping undecodable resume record", zap.Error(err))
			continue
		}
		resumes = append(resumes, *resume)
	}
	return resumes, nil
}
