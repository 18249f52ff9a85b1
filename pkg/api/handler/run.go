package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/LENAX/workflow-engine/pkg/api/dto"
	"github.com/LENAX/workflow-engine/pkg/core/engine"
	"github.com/LENAX/workflow-engine/pkg/core/workflow"
	"github.com/LENAX/workflow-engine/pkg/storage"
)

// RunHandler 运行实例API处理器
type RunHandler struct {
	executor *engine.Executor
}

// NewRunHandler 创建RunHandler
func NewRunHandler(executor *engine.Executor) *RunHandler {
	return &RunHandler{executor: executor}
}

// Start 启动运行
// POST /api/v1/runs
func (h *RunHandler) Start(c *gin.Context) {
	var req dto.StartRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	run, err := h.executor.StartRun(c.Request.Context(), engine.StartRunRequest{
		DefinitionCode: req.DefinitionCode,
		VersionNumber:  req.VersionNumber,
		Context:        req.Context,
		CorrelationID:  req.CorrelationID,
	})
	// 运行已创建但推进出错时仍返回运行实例
	if err != nil && run == nil {
		respondError(c, err)
		return
	}
	if err != nil {
		c.JSON(StatusOf(err), dto.APIResponse[dto.RunDetail]{
			Code:    StatusOf(err),
			Message: err.Error(),
			Data:    dto.NewRunDetail(run),
		})
		return
	}
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(dto.NewRunDetail(run)))
}

// Get 获取运行详情
// GET /api/v1/runs/:id
func (h *RunHandler) Get(c *gin.Context) {
	run, err := h.executor.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.NewRunDetail(run)))
}

// List 列出运行实例
// GET /api/v1/runs
func (h *RunHandler) List(c *gin.Context) {
	var query dto.RunListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		badRequest(c, err)
		return
	}

	limit := query.GetDefaultLimit()
	// 多取一条用于判断是否还有更多
	runs, err := h.executor.ListRuns(c.Request.Context(), storage.RunFilter{
		DefinitionCode: query.DefinitionCode,
		Status:         workflow.RunStatus(query.Status),
		CorrelationID:  query.CorrelationID,
		Limit:          limit + 1,
		Offset:         query.Offset,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	hasMore := len(runs) > limit
	if hasMore {
		runs = runs[:limit]
	}
	items := make([]dto.RunSummary, 0, len(runs))
	for _, run := range runs {
		items = append(items, dto.NewRunSummary(run))
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.ListResponse[dto.RunSummary]{
		Total:   len(items),
		Items:   items,
		HasMore: hasMore,
	}))
}

// History 运行完整轨迹
// GET /api/v1/runs/:id/history
func (h *RunHandler) History(c *gin.Context) {
	history, err := h.executor.GetHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.NewRunHistoryResponse(history)))
}

// Resume 恢复暂停的运行
// POST /api/v1/runs/:id/resume
func (h *RunHandler) Resume(c *gin.Context) {
	var req dto.ResumeRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		badRequest(c, err)
		return
	}
	h.respondWithRun(c, h.executor.Resume(c.Request.Context(), c.Param("id"), req.Input))
}

// Signal 向运行投递信号
// POST /api/v1/runs/:id/signals
func (h *RunHandler) Signal(c *gin.Context) {
	var req dto.SignalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	h.respondWithRun(c, h.executor.Signal(c.Request.Context(), c.Param("id"), req.Name, req.Payload))
}

// SignalByCorrelation 按业务相关ID投递信号，没有活跃运行时静默忽略
// POST /api/v1/signals/correlation
func (h *RunHandler) SignalByCorrelation(c *gin.Context) {
	var req dto.CorrelationSignalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.executor.SignalByCorrelation(c.Request.Context(), req.CorrelationID, req.Name, req.Payload); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, dto.NewSuccessResponse(map[string]string{
		"correlation_id": req.CorrelationID,
		"name":           req.Name,
	}))
}

// Cancel 取消运行
// POST /api/v1/runs/:id/cancel
func (h *RunHandler) Cancel(c *gin.Context) {
	var req dto.CancelRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		badRequest(c, err)
		return
	}
	h.respondWithRun(c, h.executor.Cancel(c.Request.Context(), c.Param("id"), req.Reason))
}

// respondWithRun 操作成功后返回运行的最新状态
func (h *RunHandler) respondWithRun(c *gin.Context, opErr error) {
	if opErr != nil {
		respondError(c, opErr)
		return
	}
	run, err := h.executor.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.NewRunDetail(run)))
}

// bindOptionalJSON 请求体为空时不报错
func bindOptionalJSON(c *gin.Context, obj any) error {
	if c.Request.ContentLength == 0 {
		return nil
	}
	return c.ShouldBindJSON(obj)
}
