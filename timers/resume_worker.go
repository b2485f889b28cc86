package timers

import (
	"context"
	"sync"
	"time"

	"github.com/flowkit/flowkit/logger"
	"github.com/flowkit/flowkit/persistence"
	"github.com/flowkit/flowkit/service"
	"github.com/flowkit/flowkit/util"
	"go.uber.org/zap"
)

// ResumeWorker polls the resume queue and re-invokes the pipeline for every
// due wait resume. The pipeline drops stale records, so the worker may be
// late or fire a record twice without advancing a session twice.
type ResumeWorker struct {
	resumes  persistence.ResumeQueue
	executor *service.ExecutionService
	tick     *util.TickWorker
}

func NewResumeWorker(resumes persistence.ResumeQueue, executor *service.ExecutionService, interval time.Duration, wg *sync.WaitGroup) *ResumeWorker {
	rw := &ResumeWorker{
		resumes:  resumes,
		executor: executor,
	}
	rw.tick = util.NewTickWorker("resume-worker", interval, rw.poll, wg)
	return rw
}

func (rw *ResumeWorker) Start() {
	rw.tick.Start()
}

func (rw *ResumeWorker) Stop() error {
	rw.tick.Stop()
	return nil
}

func (rw *ResumeWorker) poll() {
	due, err := rw.resumes.PopDue()
	if err != nil {
		logger.Error("error polling resume queue", zap.Error(err))
		return
	}
	for _, resume := range due {
		if err := rw.executor.HandleResume(context.Background(), resume); err != nil {
			logger.Error("error handling resume", zap.String("address", resume.Address), zap.String("step", resume.StepId), zap.Error(err))
		}
	}
}
