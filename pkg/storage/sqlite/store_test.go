package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LENAX/workflow-engine/pkg/core/saga"
	"github.com/LENAX/workflow-engine/pkg/core/workflow"
	"github.com/LENAX/workflow-engine/pkg/storage"
	"github.com/LENAX/workflow-engine/pkg/storage/sqlstore"
)

// setupStore 创建临时文件数据库
func setupStore(t *testing.T) *sqlstore.Store {
	dsn := filepath.Join(t.TempDir(), "workflow.db")
	s, err := NewStoreFromDSN(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_DefinitionsAndVersions(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	def := workflow.NewDefinition("onboarding", "开户流程", "")
	require.NoError(t, s.SaveDefinition(ctx, def))

	loaded, err := s.GetDefinitionByCode(ctx, "onboarding")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, def.ID, loaded.ID)

	missing, err := s.GetDefinitionByCode(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	n, err := s.NextVersionNumber(ctx, def.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	v1 := workflow.NewDefinitionVersion(def.ID, 1, `{"startAt":"a","steps":[]}`, "初始版本")
	require.NoError(t, s.SaveVersion(ctx, v1))
	v2 := workflow.NewDefinitionVersion(def.ID, 2, `{"startAt":"b","steps":[]}`, "")
	require.NoError(t, s.SaveVersion(ctx, v2))

	n, err = s.NextVersionNumber(ctx, def.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// 尚未发布
	latest, err := s.GetLatestPublishedVersion(ctx, def.ID)
	require.NoError(t, err)
	assert.Nil(t, latest)

	v1.Publish()
	require.NoError(t, s.SaveVersion(ctx, v1))
	latest, err = s.GetLatestPublishedVersion(ctx, def.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, 1, latest.VersionNumber)
	assert.True(t, latest.IsPublished)
	assert.NotNil(t, latest.PublishedAt)

	versions, err := s.ListVersions(ctx, def.ID)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, 2, versions[1].VersionNumber)

	got, err := s.GetVersion(ctx, def.ID, 2)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, `{"startAt":"b","steps":[]}`, got.DslJSON)
	assert.False(t, got.IsPublished)
}

func TestStore_RunStateAndOptimisticLock(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	run := workflow.NewRun("onboarding", 1, `{"a":1}`, "corr-9")
	require.NoError(t, s.CreateRun(ctx, run))

	step := workflow.NewRunStep(run.ID, "first", "PassStep", 1)
	require.NoError(t, s.InsertRunStep(ctx, step))

	count, err := s.CountRunSteps(ctx, run.ID, "first")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// 另一份过期副本
	stale, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)

	step.Complete()
	require.NoError(t, run.MergeContext(map[string]any{"b": 2}))
	require.NoError(t, run.Pause("second"))
	transition := workflow.NewTransition(run.ID, "first", "second", "Success")
	require.NoError(t, s.SaveRunState(ctx, run, []*workflow.RunStep{step}, transition))
	assert.Equal(t, int64(1), run.Version)

	require.NoError(t, stale.Fail("late writer"))
	err = s.UpdateRun(ctx, stale)
	assert.True(t, errors.Is(err, storage.ErrConcurrentUpdate))

	loaded, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.RunStatusPaused, loaded.Status)
	assert.Equal(t, "second", loaded.CurrentStepID)
	assert.JSONEq(t, `{"a":1,"b":2}`, loaded.ContextJSON)

	steps, err := s.ListRunSteps(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, workflow.StepStatusCompleted, steps[0].Status)
	assert.NotNil(t, steps[0].EndedAt)

	transitions, err := s.ListTransitions(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, transitions, 1)
	assert.Equal(t, "second", transitions[0].ToStepID)

	active, err := s.FindLatestActiveRunByCorrelation(ctx, "corr-9")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, run.ID, active.ID)

	paused, err := s.ListRunsByStatus(ctx, workflow.RunStatusPaused)
	require.NoError(t, err)
	assert.Len(t, paused, 1)

	listed, err := s.ListRuns(ctx, storage.RunFilter{DefinitionCode: "onboarding"})
	require.NoError(t, err)
	assert.Len(t, listed, 1)
}

func TestStore_SaveRunStateRollsBackOnConflict(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	run := workflow.NewRun("wf", 1, "{}", "")
	require.NoError(t, s.CreateRun(ctx, run))
	step := workflow.NewRunStep(run.ID, "a", "PassStep", 1)
	require.NoError(t, s.InsertRunStep(ctx, step))

	run.Version = 42
	step.Complete()
	err := s.SaveRunState(ctx, run, []*workflow.RunStep{step}, workflow.NewTransition(run.ID, "a", "b", "Success"))
	require.True(t, errors.Is(err, storage.ErrConcurrentUpdate))

	steps, err := s.ListRunSteps(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StepStatusRunning, steps[0].Status)
	transitions, err := s.ListTransitions(ctx, run.ID)
	require.NoError(t, err)
	assert.Empty(t, transitions)
}

func TestStore_SignalsForUnknownRun(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendSignal(ctx, workflow.NewSignal("ghost", "Ping", "")))
	signals, err := s.ListSignals(ctx, "ghost")
	require.NoError(t, err)
	require.Len(t, signals, 1)
	assert.Equal(t, "{}", signals[0].PayloadJSON)
}

func TestStore_ClaimDueTimersOnce(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	due := workflow.NewTimer("run-1", "wait", "Paid.Timeout", now.Add(-time.Minute))
	later := workflow.NewTimer("run-1", "wait", "Paid.Timeout", now.Add(time.Hour))
	require.NoError(t, s.ScheduleTimer(ctx, due))
	require.NoError(t, s.ScheduleTimer(ctx, later))

	claimed, err := s.ClaimDueTimers(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, due.ID, claimed[0].ID)
	assert.NotNil(t, claimed[0].FiredAt)

	again, err := s.ClaimDueTimers(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestStore_IdempotencyAndLedger(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	rec := &workflow.IdempotencyRecord{Route: "ServiceTaskStep", Key: "r:s:1", StatusCode: 200, ResponseJSON: `{"ok":true}`}
	require.NoError(t, s.Save(ctx, rec))
	rec.ResponseJSON = `{"ok":false}`
	require.NoError(t, s.Save(ctx, rec))

	got, err := s.Lookup(ctx, "ServiceTaskStep", "r:s:1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, `{"ok":false}`, got.ResponseJSON)

	past := time.Now().Add(-time.Hour)
	require.NoError(t, s.Save(ctx, &workflow.IdempotencyRecord{Route: "POST /runs", Key: "k", ResponseJSON: "{}", ExpiresAt: &past}))
	expired, err := s.Lookup(ctx, "POST /runs", "k")
	require.NoError(t, err)
	assert.Nil(t, expired)
	deleted, err := s.DeleteExpired(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	entry := &saga.LedgerEntry{ExecutionKey: "r:s:1:comp:0", RunID: "r", StepID: "s", ActionType: "apicall", Status: saga.CompensationStatePending}
	require.NoError(t, entry.TransitionTo(saga.CompensationStateFailed))
	entry.Attempts = 1
	require.NoError(t, s.SaveLedgerEntry(ctx, entry))
	require.NoError(t, entry.TransitionTo(saga.CompensationStatePending))
	require.NoError(t, entry.TransitionTo(saga.CompensationStateSucceeded))
	entry.Attempts = 2
	require.NoError(t, s.SaveLedgerEntry(ctx, entry))

	loaded, err := s.GetLedgerEntry(ctx, "r:s:1:comp:0")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, saga.CompensationStateSucceeded, loaded.Status)
	assert.Equal(t, 2, loaded.Attempts)

	entries, err := s.ListLedgerEntries(ctx, "r")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
