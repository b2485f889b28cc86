package inmem

import (
	"testing"
	"time"

	"github.com/flowkit/flowkit/model"
	"github.com/flowkit/flowkit/persistence"
	"github.com/stretchr/testify/require"
)

func TestSessionStorage(t *testing.T) {
	for scenario, fn := range map[string]func(
		t *testing.T, storage *SessionStorage,
	){
		"test create and get":             testCreateGet,
		"test get missing returns error":  testGetMissing,
		"test find active skips finished": testFindActive,
		"test swap fails on stale cursor": testCompareAndSwap,
		"test reset clears address":       testReset,
		"test callers never share memory": testIsolation,
	} {
		t.Run(scenario, func(t *testing.T) {
			fn(t, NewSessionStorage())
		})
	}
}

func activeSession(flowId string, stepId string) *model.Session {
	return &model.Session{
		Id:            "s-" + flowId,
		FlowId:        flowId,
		Address:       "555",
		CurrentStepId: stepId,
		Variables:     map[string]any{},
		Status:        model.SESSION_ACTIVE,
	}
}

func testCreateGet(t *testing.T, storage *SessionStorage) {
	require.NoError(t, storage.Create(activeSession("f1", "q")))

	session, err := storage.Get("555", "f1")
	require.NoError(t, err)
	require.Equal(t, "q", session.CurrentStepId)
	require.True(t, session.IsActive())
}

func testGetMissing(t *testing.T, storage *SessionStorage) {
	_, err := storage.Get("555", "f1")
	require.Error(t, err)
	_, ok := err.(persistence.SessionNotFoundError)
	require.True(t, ok)
}

func testFindActive(t *testing.T, storage *SessionStorage) {
	done := activeSession("f1", "")
	done.Status = model.SESSION_COMPLETED
	require.NoError(t, storage.Create(done))
	require.NoError(t, storage.Create(activeSession("f2", "q")))

	session, err := storage.FindActive("555")
	require.NoError(t, err)
	require.NotNil(t, session)
	require.Equal(t, "f2", session.FlowId)

	sessions, err := storage.Find("555")
	require.NoError(t, err)
	require.Len(t, sessions, 2)
}

func testCompareAndSwap(t *testing.T, storage *SessionStorage) {
	require.NoError(t, storage.Create(activeSession("f1", "q")))

	session, err := storage.Get("555", "f1")
	require.NoError(t, err)
	session.CurrentStepId = "m2"

	swapped, err := storage.CompareAndSwap(session, "q")
	require.NoError(t, err)
	require.True(t, swapped)

	// second writer still expects the old cursor and must lose
	stale, err := storage.Get("555", "f1")
	require.NoError(t, err)
	stale.CurrentStepId = "m3"
	swapped, err = storage.CompareAndSwap(stale, "q")
	require.NoError(t, err)
	require.False(t, swapped)

	current, err := storage.Get("555", "f1")
	require.NoError(t, err)
	require.Equal(t, "m2", current.CurrentStepId)
}

func testReset(t *testing.T, storage *SessionStorage) {
	require.NoError(t, storage.Create(activeSession("f1", "q")))
	require.NoError(t, storage.Reset("555"))

	sessions, err := storage.Find("555")
	require.NoError(t, err)
	require.Empty(t, sessions)
}

func testIsolation(t *testing.T, storage *SessionStorage) {
	session := activeSession("f1", "q")
	session.Variables["name"] = "Ana"
	require.NoError(t, storage.Create(session))

	session.Variables["name"] = "changed after create"

	stored, err := storage.Get("555", "f1")
	require.NoError(t, err)
	require.Equal(t, "Ana", stored.Variables["name"])
}

func TestResumeQueue(t *testing.T) {
	t.Run("test pop returns only due resumes", func(t *testing.T) {
		queue := NewResumeQueue()
		past := model.Resume{Address: "555", FlowId: "f1", StepId: "w", Due: time.Now().Add(-time.Second)}
		future := model.Resume{Address: "555", FlowId: "f1", StepId: "w2", Due: time.Now().Add(time.Hour)}
		require.NoError(t, queue.Push(past))
		require.NoError(t, queue.Push(future))

		due, err := queue.PopDue()
		require.NoError(t, err)
		require.Len(t, due, 1)
		require.Equal(t, "w", due[0].StepId)

		// the future record stays queued
		due, err = queue.PopDue()
		require.NoError(t, err)
		require.Empty(t, due)
	})
}
