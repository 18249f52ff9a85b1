package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LENAX/workflow-engine/pkg/api/middleware"
	"github.com/LENAX/workflow-engine/pkg/core/definition"
	"github.com/LENAX/workflow-engine/pkg/core/engine"
	"github.com/LENAX/workflow-engine/pkg/core/runner"
	"github.com/LENAX/workflow-engine/pkg/storage/sqlite"
)

const formDsl = `{
  "startAt": "step1",
  "steps": [
    {"id": "step1", "type": "WaitForEvent", "config": {"eventName": "FormSubmitted"}, "transitions": [{"to": "step2"}]},
    {"id": "step2", "type": "EndStep"}
  ]
}`

func setupRouter(t *testing.T) *gin.Engine {
	t.Helper()
	s, err := sqlite.NewStoreFromDSN(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	eng, err := engine.New(engine.Options{Store: s})
	require.NoError(t, err)

	admin := definition.NewAdminService(s, definition.AnyOf(eng.Registry().HasStepType, runner.SupportsStepType))
	config := DefaultServerConfig()
	config.IdempotencyTTL = time.Hour
	return SetupRouter(Services{
		Engine: eng,
		Admin:  admin,
		Runner: runner.New(s, nil, nil, 0),
	}, config, "test")
}

type apiResult struct {
	Status  int
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Header  http.Header
}

func (r *apiResult) data(t *testing.T) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(r.Data, &m))
	return m
}

func call(t *testing.T, router *gin.Engine, method, path string, body any, headers ...string) *apiResult {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	res := &apiResult{Status: w.Code, Header: w.Header()}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), res), w.Body.String())
	return res
}

func publishForm(t *testing.T, router *gin.Engine) {
	t.Helper()
	res := call(t, router, http.MethodPost, "/api/v1/definitions", map[string]any{"code": "form"})
	require.Equal(t, http.StatusCreated, res.Status, res.Message)
	res = call(t, router, http.MethodPost, "/api/v1/definitions/form/versions", map[string]any{"dsl": formDsl})
	require.Equal(t, http.StatusCreated, res.Status, res.Message)
	res = call(t, router, http.MethodPost, "/api/v1/definitions/form/versions/1/publish", nil)
	require.Equal(t, http.StatusOK, res.Status, res.Message)
}

func TestRouter_RunLifecycle(t *testing.T) {
	router := setupRouter(t)
	publishForm(t, router)

	res := call(t, router, http.MethodPost, "/api/v1/runs", map[string]any{
		"definition_code": "form",
		"context":         map[string]any{"orderId": "o-1"},
		"correlation_id":  "corr-1",
	})
	require.Equal(t, http.StatusCreated, res.Status, res.Message)
	run := res.data(t)
	runID := run["id"].(string)
	assert.Equal(t, "Paused", run["status"])
	assert.Equal(t, "step1", run["current_step_id"])

	res = call(t, router, http.MethodPost, "/api/v1/runs/"+runID+"/signals", map[string]any{
		"name":    "FormSubmitted",
		"payload": map[string]any{"submissionId": "sub-1"},
	})
	require.Equal(t, http.StatusOK, res.Status, res.Message)
	run = res.data(t)
	assert.Equal(t, "Completed", run["status"])
	assert.Equal(t, "sub-1", run["context"].(map[string]any)["submissionId"])

	res = call(t, router, http.MethodGet, "/api/v1/runs/"+runID+"/history", nil)
	require.Equal(t, http.StatusOK, res.Status)
	history := res.data(t)
	assert.Len(t, history["steps"], 2)
	assert.Len(t, history["signals"], 1)
	assert.Len(t, history["transitions"], 1)

	res = call(t, router, http.MethodGet, "/api/v1/runs?definition_code=form&status=Completed", nil)
	require.Equal(t, http.StatusOK, res.Status)
	list := res.data(t)
	assert.EqualValues(t, 1, list["total"])
	assert.Equal(t, false, list["has_more"])

	// 已结束的运行取消无效果
	res = call(t, router, http.MethodPost, "/api/v1/runs/"+runID+"/cancel", map[string]any{"reason": "late"})
	require.Equal(t, http.StatusOK, res.Status)
	assert.Equal(t, "Completed", res.data(t)["status"])
}

func TestRouter_CancelAndCorrelationSignal(t *testing.T) {
	router := setupRouter(t)
	publishForm(t, router)

	res := call(t, router, http.MethodPost, "/api/v1/runs", map[string]any{"definition_code": "form", "correlation_id": "corr-9"})
	require.Equal(t, http.StatusCreated, res.Status)
	runID := res.data(t)["id"].(string)

	res = call(t, router, http.MethodPost, "/api/v1/signals/correlation", map[string]any{
		"correlation_id": "corr-9",
		"name":           "FormSubmitted",
	})
	assert.Equal(t, http.StatusAccepted, res.Status)
	res = call(t, router, http.MethodGet, "/api/v1/runs/"+runID, nil)
	assert.Equal(t, "Completed", res.data(t)["status"])

	// 没有活跃运行的相关ID静默忽略
	res = call(t, router, http.MethodPost, "/api/v1/signals/correlation", map[string]any{
		"correlation_id": "nobody",
		"name":           "FormSubmitted",
	})
	assert.Equal(t, http.StatusAccepted, res.Status)

	res = call(t, router, http.MethodPost, "/api/v1/runs", map[string]any{"definition_code": "form"})
	runID = res.data(t)["id"].(string)
	res = call(t, router, http.MethodPost, "/api/v1/runs/"+runID+"/cancel", map[string]any{"reason": "user"})
	require.Equal(t, http.StatusOK, res.Status)
	run := res.data(t)
	assert.Equal(t, "Cancelled", run["status"])
	assert.Equal(t, "user", run["cancel_reason"])
}

func TestRouter_ErrorStatuses(t *testing.T) {
	router := setupRouter(t)
	publishForm(t, router)

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{"运行不存在", http.MethodGet, "/api/v1/runs/missing", nil, http.StatusNotFound},
		{"信号投递到不存在的运行", http.MethodPost, "/api/v1/runs/missing/signals", map[string]any{"name": "X"}, http.StatusNotFound},
		{"缺少信号名", http.MethodPost, "/api/v1/runs/missing/signals", map[string]any{}, http.StatusBadRequest},
		{"定义不存在", http.MethodPost, "/api/v1/runs", map[string]any{"definition_code": "nope"}, http.StatusNotFound},
		{"缺少定义编码", http.MethodPost, "/api/v1/runs", map[string]any{}, http.StatusBadRequest},
		{"重复定义", http.MethodPost, "/api/v1/definitions", map[string]any{"code": "form"}, http.StatusConflict},
		{"DSL无法解析", http.MethodPost, "/api/v1/definitions/form/versions", map[string]any{"dsl": "{oops"}, http.StatusBadRequest},
		{"版本号无效", http.MethodPost, "/api/v1/definitions/form/versions/abc/publish", nil, http.StatusBadRequest},
		{"版本不存在", http.MethodGet, "/api/v1/definitions/form/versions/9", nil, http.StatusNotFound},
		{"步骤类型不存在", http.MethodGet, "/api/v1/step-types/Mystery", nil, http.StatusNotFound},
		{"状态过滤无效", http.MethodGet, "/api/v1/runs?status=Sleeping", nil, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := call(t, router, tc.method, tc.path, tc.body)
			assert.Equal(t, tc.status, res.Status, res.Message)
			assert.NotZero(t, res.Code)
		})
	}
}

func TestRouter_PublishValidationAndUnpublished(t *testing.T) {
	router := setupRouter(t)
	publishForm(t, router)

	res := call(t, router, http.MethodPost, "/api/v1/definitions/form/versions", map[string]any{
		"dsl": `{"startAt": "a", "steps": [{"id": "a", "type": "Mystery"}]}`,
	})
	require.Equal(t, http.StatusCreated, res.Status)

	res = call(t, router, http.MethodPost, "/api/v1/definitions/form/versions/2/publish", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, res.Status)
	assert.NotEmpty(t, res.data(t)["errors"])

	// 未发布版本不能启动
	res = call(t, router, http.MethodPost, "/api/v1/runs", map[string]any{"definition_code": "form", "version_number": 2})
	assert.Equal(t, http.StatusUnprocessableEntity, res.Status)

	res = call(t, router, http.MethodPost, "/api/v1/definitions/form/versions/1/unpublish", nil)
	require.Equal(t, http.StatusOK, res.Status)
	assert.Equal(t, false, res.data(t)["is_published"])
	res = call(t, router, http.MethodPost, "/api/v1/runs", map[string]any{"definition_code": "form"})
	assert.Equal(t, http.StatusUnprocessableEntity, res.Status)

	res = call(t, router, http.MethodPost, "/api/v1/definitions/form/versions/1/dry-run", map[string]any{"input": `{"a": 1}`})
	require.Equal(t, http.StatusOK, res.Status)
	assert.Equal(t, true, res.data(t)["valid"])
}

func TestRouter_IdempotentStart(t *testing.T) {
	router := setupRouter(t)
	publishForm(t, router)

	body := map[string]any{"definition_code": "form", "context": map[string]any{"n": 1}}
	first := call(t, router, http.MethodPost, "/api/v1/runs", body, middleware.IdempotencyHeader, "key-1")
	require.Equal(t, http.StatusCreated, first.Status)

	second := call(t, router, http.MethodPost, "/api/v1/runs", body, middleware.IdempotencyHeader, "key-1")
	assert.Equal(t, http.StatusCreated, second.Status)
	assert.Equal(t, "true", second.Header.Get(middleware.ReplayedHeader))
	assert.Equal(t, first.data(t)["id"], second.data(t)["id"])

	conflict := call(t, router, http.MethodPost, "/api/v1/runs",
		map[string]any{"definition_code": "form", "context": map[string]any{"n": 2}},
		middleware.IdempotencyHeader, "key-1")
	assert.Equal(t, http.StatusConflict, conflict.Status)

	// 失败响应不保存，同一个键可以重试
	failed := call(t, router, http.MethodPost, "/api/v1/runs", map[string]any{"definition_code": "nope"}, middleware.IdempotencyHeader, "key-2")
	assert.Equal(t, http.StatusNotFound, failed.Status)
	retried := call(t, router, http.MethodPost, "/api/v1/runs", map[string]any{"definition_code": "form"}, middleware.IdempotencyHeader, "key-2")
	assert.Equal(t, http.StatusCreated, retried.Status)

	res := call(t, router, http.MethodGet, "/api/v1/runs", nil)
	assert.EqualValues(t, 2, res.data(t)["total"])
}

func TestRouter_CatalogAndHealth(t *testing.T) {
	router := setupRouter(t)

	res := call(t, router, http.MethodGet, "/api/v1/step-types", nil)
	require.Equal(t, http.StatusOK, res.Status)
	items := res.data(t)["items"].([]any)
	require.NotEmpty(t, items)
	var names []string
	for _, item := range items {
		names = append(names, item.(map[string]any)["type"].(string))
	}
	assert.IsIncreasing(t, names)
	assert.Contains(t, names, "WaitForEvent")

	res = call(t, router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, res.Status)
	assert.Equal(t, "test", res.data(t)["version"])

	res = call(t, router, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, res.Status)

	res = call(t, router, http.MethodPost, "/api/v1/runner/unknown/run", map[string]any{})
	assert.Equal(t, http.StatusNotFound, res.Status)
	assert.Equal(t, runner.CodeWorkflowNotFound, res.data(t)["errorCode"])
}
