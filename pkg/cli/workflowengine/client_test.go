package workflowengine

import (
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LENAX/workflow-engine/pkg/api"
	"github.com/LENAX/workflow-engine/pkg/api/dto"
	"github.com/LENAX/workflow-engine/pkg/core/definition"
	"github.com/LENAX/workflow-engine/pkg/core/engine"
	"github.com/LENAX/workflow-engine/pkg/storage/sqlite"
)

const approvalDsl = `{
  "startAt": "approve",
  "steps": [
    {"id": "approve", "type": "WaitForEvent", "config": {"eventName": "Approved"}, "transitions": [{"to": "done"}]},
    {"id": "done", "type": "EndStep"}
  ]
}`

func setupClient(t *testing.T) *Client {
	t.Helper()
	s, err := sqlite.NewStoreFromDSN(filepath.Join(t.TempDir(), "client.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	eng, err := engine.New(engine.Options{Store: s})
	require.NoError(t, err)
	router := api.SetupRouter(api.Services{
		Engine: eng,
		Admin:  definition.NewAdminService(s, eng.Registry().HasStepType),
	}, api.DefaultServerConfig(), "client-test")

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return New(server.URL)
}

func TestClient_DefinitionAndRunFlow(t *testing.T) {
	c := setupClient(t)

	def, err := c.CreateDefinition("approval", "审批", "")
	require.NoError(t, err)
	assert.Equal(t, "approval", def.Code)

	v, err := c.CreateVersion("approval", approvalDsl, "init")
	require.NoError(t, err)
	assert.Equal(t, 1, v.VersionNumber)

	report, err := c.DryRun("approval", 1, `{"amount": 10}`)
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.Equal(t, "approve", report.StartAt)

	published, err := c.PublishVersion("approval", 1)
	require.NoError(t, err)
	assert.True(t, published.Version.IsPublished)

	run, err := c.StartRun(dto.StartRunRequest{DefinitionCode: "approval", CorrelationID: "req-7"}, "idem-1")
	require.NoError(t, err)
	assert.Equal(t, "Paused", run.Status)

	again, err := c.StartRun(dto.StartRunRequest{DefinitionCode: "approval", CorrelationID: "req-7"}, "idem-1")
	require.NoError(t, err)
	assert.Equal(t, run.ID, again.ID)

	require.NoError(t, c.SignalByCorrelation("req-7", "Approved", map[string]any{"by": "alice"}))
	got, err := c.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, "Completed", got.Status)
	assert.Equal(t, "alice", got.Context["by"])

	history, err := c.GetHistory(run.ID)
	require.NoError(t, err)
	assert.Len(t, history.Steps, 2)

	list, err := c.ListRuns("approval", "Completed", "", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, list.Total)

	types, err := c.ListStepTypes()
	require.NoError(t, err)
	assert.NotZero(t, types.Total)

	health, err := c.Health()
	require.NoError(t, err)
	assert.Equal(t, "client-test", health.Version)
}

func TestClient_ErrorsCarryServerMessage(t *testing.T) {
	c := setupClient(t)

	_, err := c.GetRun("missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "运行实例不存在")

	_, err = c.CreateDefinition("bad", "", "")
	require.NoError(t, err)
	_, err = c.CreateVersion("bad", `{"startAt": "a", "steps": [{"id": "a", "type": "Mystery"}]}`, "")
	require.NoError(t, err)
	_, err = c.PublishVersion("bad", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Mystery")

	// 未注册同步执行路由
	_, err = c.RunSync("bad", dto.SyncRunRequest{})
	assert.Error(t, err)
}
