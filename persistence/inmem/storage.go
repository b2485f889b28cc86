package inmem

import (
	"sync"
	"time"

	"github.com/flowkit/flowkit/model"
	"github.com/flowkit/flowkit/persistence"
	"github.com/flowkit/flowkit/util"
)

var _ persistence.SessionStorage = new(SessionStorage)

// SessionStorage is the in-memory store used in tests and single-node dev
// setups. Records are cloned through the JSON codec on every read and write
// so callers never share memory with the store.
type SessionStorage struct {
	mu             sync.Mutex
	sessions       map[string]map[string]*model.Session
	encoderDecoder util.EncoderDecoder[model.Session]
}

func NewSessionStorage() *SessionStorage {
	return &SessionStorage{
		sessions:       make(map[string]map[string]*model.Session),
		encoderDecoder: util.NewJsonEncoderDecoder[model.Session](),
	}
}

func (ss *SessionStorage) clone(session *model.Session) (*model.Session, error) {
	data, err := ss.encoderDecoder.Encode(*session)
	if err != nil {
		return nil, err
	}
	return ss.encoderDecoder.Decode(data)
}

func (ss *SessionStorage) Get(address string, flowId string) (*model.Session, error) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	session, ok := ss.sessions[address][flowId]
	if !ok {
		return nil, persistence.SessionNotFoundError{Address: address, FlowId: flowId}
	}
	return ss.clone(session)
}

func (ss *SessionStorage) Find(address string) ([]*model.Session, error) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	sessions := make([]*model.Session, 0, len(ss.sessions[address]))
	for _, session := range ss.sessions[address] {
		cloned, err := ss.clone(session)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, cloned)
	}
	return sessions, nil
}

func (ss *SessionStorage) FindActive(address string) (*model.Session, error) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	for _, session := range ss.sessions[address] {
		if session.IsActive() {
			return ss.clone(session)
		}
	}
	return nil, nil
}

func (ss *SessionStorage) Create(session *model.Session) error {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	cloned, err := ss.clone(session)
	if err != nil {
		return err
	}
	cloned.UpdatedAt = time.Now()
	if _, ok := ss.sessions[session.Address]; !ok {
		ss.sessions[session.Address] = make(map[string]*model.Session)
	}
	ss.sessions[session.Address][session.FlowId] = cloned
	return nil
}

func (ss *SessionStorage) CompareAndSwap(session *model.Session, expectedStepId string) (bool, error) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	stored, ok := ss.sessions[session.Address][session.FlowId]
	if ok && stored.CurrentStepId != expectedStepId {
		return false, nil
	}
	cloned, err := ss.clone(session)
	if err != nil {
		return false, err
	}
	cloned.UpdatedAt = time.Now()
	if _, ok := ss.sessions[session.Address]; !ok {
		ss.sessions[session.Address] = make(map[string]*model.Session)
	}
	ss.sessions[session.Address][session.FlowId] = cloned
	return true, nil
}

func (ss *SessionStorage) Reset(address string) error {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	delete(ss.sessions, address)
	return nil
}

var _ persistence.ResumeQueue = new(ResumeQueue)

type ResumeQueue struct {
	mu      sync.Mutex
	resumes []model.Resume
}

func NewResumeQueue() *ResumeQueue {
	return &ResumeQueue{}
}

func (rq *ResumeQueue) Push(resume model.Resume) error {
	rq.mu.Lock()
	defer rq.mu.Unlock()
	rq.resumes = append(rq.resumes, resume)
	return nil
}

func (rq *ResumeQueue) PopDue() ([]model.Resume, error) {
	rq.mu.Lock()
	defer rq.mu.Unlock()
	now := time.Now()
	due := make([]model.Resume, 0)
	pending := rq.resumes[:0]
	for _, resume := range rq.resumes {
		if !resume.Due.After(now) {
			due = append(due, resume)
		} else {
			pending = append(pending, resume)
		}
	}
	rq.resumes = pending
	return due, nil
}
