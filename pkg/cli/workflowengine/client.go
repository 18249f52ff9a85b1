// Package workflowengine 工作流引擎HTTP API客户端
package workflowengine

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/LENAX/workflow-engine/pkg/api/dto"
	"github.com/LENAX/workflow-engine/pkg/core/definition"
	"github.com/LENAX/workflow-engine/pkg/core/runner"
)

// Client HTTP API客户端
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New 创建客户端
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ========== Run API ==========

// StartRun 启动运行，idempotencyKey为空时不携带幂等键
func (c *Client) StartRun(req dto.StartRunRequest, idempotencyKey string) (*dto.RunDetail, error) {
	var headers map[string]string
	if idempotencyKey != "" {
		headers = map[string]string{"Idempotency-Key": idempotencyKey}
	}
	var resp dto.APIResponse[dto.RunDetail]
	if err := c.send(http.MethodPost, "/api/v1/runs", req, headers, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, check(resp.Code, resp.Message)
}

// GetRun 获取运行详情
func (c *Client) GetRun(id string) (*dto.RunDetail, error) {
	var resp dto.APIResponse[dto.RunDetail]
	if err := c.get("/api/v1/runs/"+url.PathEscape(id), &resp); err != nil {
		return nil, err
	}
	return &resp.Data, check(resp.Code, resp.Message)
}

// ListRuns 列出运行实例
func (c *Client) ListRuns(definitionCode, status, correlationID string, limit, offset int) (*dto.ListResponse[dto.RunSummary], error) {
	params := url.Values{}
	if definitionCode != "" {
		params.Set("definition_code", definitionCode)
	}
	if status != "" {
		params.Set("status", status)
	}
	if correlationID != "" {
		params.Set("correlation_id", correlationID)
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		params.Set("offset", strconv.Itoa(offset))
	}
	path := "/api/v1/runs"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var resp dto.APIResponse[dto.ListResponse[dto.RunSummary]]
	if err := c.get(path, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, check(resp.Code, resp.Message)
}

// GetHistory 查询运行完整轨迹
func (c *Client) GetHistory(id string) (*dto.RunHistoryResponse, error) {
	var resp dto.APIResponse[dto.RunHistoryResponse]
	if err := c.get("/api/v1/runs/"+url.PathEscape(id)+"/history", &resp); err != nil {
		return nil, err
	}
	return &resp.Data, check(resp.Code, resp.Message)
}

// Resume 恢复运行
func (c *Client) Resume(id string, input map[string]any) (*dto.RunDetail, error) {
	return c.runAction(id, "resume", dto.ResumeRequest{Input: input})
}

// Signal 投递信号
func (c *Client) Signal(id, name string, payload map[string]any) (*dto.RunDetail, error) {
	return c.runAction(id, "signals", dto.SignalRequest{Name: name, Payload: payload})
}

// SignalByCorrelation 按业务相关ID投递信号
func (c *Client) SignalByCorrelation(correlationID, name string, payload map[string]any) error {
	var resp dto.APIResponse[any]
	req := dto.CorrelationSignalRequest{CorrelationID: correlationID, Name: name, Payload: payload}
	if err := c.post("/api/v1/signals/correlation", req, &resp); err != nil {
		return err
	}
	return check(resp.Code, resp.Message)
}

// Cancel 取消运行
func (c *Client) Cancel(id, reason string) (*dto.RunDetail, error) {
	return c.runAction(id, "cancel", dto.CancelRequest{Reason: reason})
}

func (c *Client) runAction(id, action string, body any) (*dto.RunDetail, error) {
	var resp dto.APIResponse[dto.RunDetail]
	if err := c.post("/api/v1/runs/"+url.PathEscape(id)+"/"+action, body, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, check(resp.Code, resp.Message)
}

// ========== Definition API ==========

// ListDefinitions 列出工作流定义
func (c *Client) ListDefinitions() (*dto.ListResponse[dto.DefinitionDetail], error) {
	var resp dto.APIResponse[dto.ListResponse[dto.DefinitionDetail]]
	if err := c.get("/api/v1/definitions", &resp); err != nil {
		return nil, err
	}
	return &resp.Data, check(resp.Code, resp.Message)
}

// CreateDefinition 创建工作流定义
func (c *Client) CreateDefinition(code, name, description string) (*dto.DefinitionDetail, error) {
	var resp dto.APIResponse[dto.DefinitionDetail]
	req := dto.CreateDefinitionRequest{Code: code, Name: name, Description: description}
	if err := c.post("/api/v1/definitions", req, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, check(resp.Code, resp.Message)
}

// ListVersions 列出定义版本
func (c *Client) ListVersions(code string) (*dto.ListResponse[dto.VersionDetail], error) {
	var resp dto.APIResponse[dto.ListResponse[dto.VersionDetail]]
	if err := c.get(versionsPath(code), &resp); err != nil {
		return nil, err
	}
	return &resp.Data, check(resp.Code, resp.Message)
}

// CreateVersion 上传DSL创建草稿版本
func (c *Client) CreateVersion(code, dslJSON, changelog string) (*dto.VersionDetail, error) {
	var resp dto.APIResponse[dto.VersionDetail]
	req := dto.CreateVersionRequest{Dsl: dslJSON, Changelog: changelog}
	if err := c.post(versionsPath(code), req, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, check(resp.Code, resp.Message)
}

// PublishResult 发布结果
type PublishResult struct {
	Version    dto.VersionDetail `json:"version"`
	Validation json.RawMessage   `json:"validation"`
}

// PublishVersion 发布版本；校验失败时错误信息包含全部问题
func (c *Client) PublishVersion(code string, version int) (*PublishResult, error) {
	var resp dto.APIResponse[json.RawMessage]
	if err := c.post(versionsPath(code)+"/"+strconv.Itoa(version)+"/publish", nil, &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, errors.New(resp.Message)
	}
	var result PublishResult
	if err := json.Unmarshal(resp.Data, &result); err != nil {
		return nil, fmt.Errorf("解析发布结果失败: %w", err)
	}
	return &result, nil
}

// UnpublishVersion 取消发布
func (c *Client) UnpublishVersion(code string, version int) (*dto.VersionDetail, error) {
	var resp dto.APIResponse[dto.VersionDetail]
	if err := c.post(versionsPath(code)+"/"+strconv.Itoa(version)+"/unpublish", nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, check(resp.Code, resp.Message)
}

// DryRun 试运行
func (c *Client) DryRun(code string, version int, inputJSON string) (*definition.DryRunReport, error) {
	var resp dto.APIResponse[definition.DryRunReport]
	req := dto.DryRunRequest{Input: inputJSON}
	if err := c.post(versionsPath(code)+"/"+strconv.Itoa(version)+"/dry-run", req, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, check(resp.Code, resp.Message)
}

func versionsPath(code string) string {
	return "/api/v1/definitions/" + url.PathEscape(code) + "/versions"
}

// ========== Catalog / Runner API ==========

// ListStepTypes 列出步骤类型
func (c *Client) ListStepTypes() (*dto.ListResponse[dto.StepTypeDetail], error) {
	var resp dto.APIResponse[dto.ListResponse[dto.StepTypeDetail]]
	if err := c.get("/api/v1/step-types", &resp); err != nil {
		return nil, err
	}
	return &resp.Data, check(resp.Code, resp.Message)
}

// RunSync 同步执行
func (c *Client) RunSync(code string, req dto.SyncRunRequest) (*runner.RunResult, error) {
	var resp dto.APIResponse[runner.RunResult]
	if err := c.post("/api/v1/runner/"+url.PathEscape(code)+"/run", req, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, check(resp.Code, resp.Message)
}

// ========== Health API ==========

// Health 健康检查
func (c *Client) Health() (*dto.HealthResponse, error) {
	var resp dto.APIResponse[dto.HealthResponse]
	if err := c.get("/health", &resp); err != nil {
		return nil, err
	}
	return &resp.Data, check(resp.Code, resp.Message)
}

// ========== HTTP Methods ==========

func check(code int, message string) error {
	if code != 0 {
		return errors.New(message)
	}
	return nil
}

func (c *Client) get(path string, result any) error {
	return c.send(http.MethodGet, path, nil, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.send(http.MethodPost, path, body, nil, result)
}

func (c *Client) send(method, path string, body any, headers map[string]string, result any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("序列化请求体失败: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("创建请求失败: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP请求失败: %w", err)
	}
	defer resp.Body.Close()
	return c.parseResponse(resp, result)
}

func (c *Client) parseResponse(resp *http.Response, result any) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("读取响应体失败: %w", err)
	}
	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("解析响应失败: %w, body: %s", err, string(body))
	}
	return nil
}
