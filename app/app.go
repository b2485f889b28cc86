package app

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/flowkit/flowkit/config"
	"github.com/flowkit/flowkit/contact"
	"github.com/flowkit/flowkit/delegate"
	"github.com/flowkit/flowkit/dispatch"
	"github.com/flowkit/flowkit/engine"
	"github.com/flowkit/flowkit/logger"
	"github.com/flowkit/flowkit/metadata"
	"github.com/flowkit/flowkit/persistence"
	"github.com/flowkit/flowkit/persistence/inmem"
	"github.com/flowkit/flowkit/persistence/redis"
	"github.com/flowkit/flowkit/rest"
	"github.com/flowkit/flowkit/service"
	"github.com/flowkit/flowkit/timers"
	"github.com/flowkit/flowkit/trigger"
)

// App wires storage, metadata, the trigger matcher, the interpreter, the
// delegate and the REST surface into one runnable process.
type App struct {
	Config config.Config

	sessions     persistence.SessionStorage
	resumes      persistence.ResumeQueue
	flows        persistence.FlowStorage
	agents       persistence.AgentStorage
	contactStore *contact.Store

	metadataService  metadata.Service
	executionService *service.ExecutionService
	resumeWorker     *timers.ResumeWorker
	httpServer       *rest.Server

	shutdown     bool
	shutdownLock sync.Mutex
	wg           sync.WaitGroup
}

func New(conf config.Config) (*App, error) {
	a := &App{
		Config: conf,
	}
	setup := []func() error{
		a.setupStorage,
		a.setupContactStore,
		a.setupMetadataService,
		a.setupExecutionService,
		a.setupResumeWorker,
		a.setupHttpServer,
	}
	for _, fn := range setup {
		if err := fn(); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *App) setupStorage() error {
	switch a.Config.StorageType {
	case config.STORAGE_TYPE_REDIS:
		rconf := redis.Config{
			Addrs:     a.Config.RedisConfig.Addrs,
			Namespace: a.Config.RedisConfig.Namespace,
		}
		a.sessions = redis.NewRedisSessionStorage(rconf)
		a.resumes = redis.NewRedisResumeQueue(rconf)
		metaStorage := redis.NewRedisMetadataStorage(rconf)
		a.flows = metaStorage
		a.agents = metaStorage
	case config.STORAGE_TYPE_INMEM:
		a.sessions = inmem.NewSessionStorage()
		a.resumes = inmem.NewResumeQueue()
		metaStorage := inmem.NewMetadataStorage()
		a.flows = metaStorage
		a.agents = metaStorage
	default:
		return fmt.Errorf("unknown storage type %s", a.Config.StorageType)
	}
	return nil
}

func (a *App) setupContactStore() error {
	store, err := contact.NewStore(a.Config.SqlitePath)
	if err != nil {
		return err
	}
	a.contactStore = store
	return nil
}

func (a *App) setupMetadataService() error {
	a.metadataService = metadata.NewMetadataService(a.flows, a.agents)
	return nil
}

func (a *App) setupExecutionService() error {
	var dispatcher dispatch.Dispatcher
	switch a.Config.DispatcherType {
	case config.DISPATCHER_TYPE_HTTP:
		dispatcher = dispatch.NewHttpDispatcher(a.Config.ChannelEndpoint)
	case config.DISPATCHER_TYPE_LOG:
		dispatcher = dispatch.NewLogDispatcher()
	default:
		return fmt.Errorf("unknown dispatcher type %s", a.Config.DispatcherType)
	}

	var notifier delegate.Notifier
	if len(a.Config.HandoffEndpoint) > 0 {
		notifier = delegate.NewHttpNotifier(a.Config.HandoffEndpoint)
	} else {
		notifier = &delegate.LogNotifier{}
	}
	if len(a.Config.AgentEndpoint) == 0 {
		logger.Warn("no agent endpoint configured, assigned agents will answer with the fallback message")
	}
	del := delegate.New(delegate.NewHttpCompletionService(a.Config.AgentEndpoint), notifier)

	matcher := trigger.NewMatcher(a.Config.EnforceDeviceScope)
	eng := engine.New(a.contactStore, a.Config.StepCap)
	a.executionService = service.NewExecutionService(a.metadataService, a.sessions, a.resumes, a.contactStore, dispatcher, matcher, eng, del)
	return nil
}

func (a *App) setupResumeWorker() error {
	interval := time.Duration(a.Config.ResumeTickSeconds) * time.Second
	a.resumeWorker = timers.NewResumeWorker(a.resumes, a.executionService, interval, &a.wg)
	a.resumeWorker.Start()
	return nil
}

func (a *App) setupHttpServer() error {
	var err error
	a.httpServer, err = rest.NewServer(a.Config.HttpPort, a.metadataService, a.executionService, a.sessions, a.contactStore)
	if err != nil {
		return err
	}
	return nil
}

func (a *App) Start() error {
	go func() {
		if err := a.httpServer.Start(); err != nil && err != http.ErrServerClosed {
			_ = a.Shutdown()
			panic(err)
		}
	}()
	return nil
}

func (a *App) Shutdown() error {
	logger.Info("shutting down server")
	a.shutdownLock.Lock()
	defer a.shutdownLock.Unlock()
	if a.shutdown {
		return nil
	}
	a.shutdown = true

	shutdown := []func() error{
		a.resumeWorker.Stop,
		a.httpServer.Stop,
		a.contactStore.Close,
	}
	for _, fn := range shutdown {
		if err := fn(); err != nil {
			return err
		}
	}
	logger.Info("waiting for all services to shutdown...")
	a.wg.Wait()
	return nil
}
