package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/LENAX/workflow-engine/pkg/api/dto"
	"github.com/LENAX/workflow-engine/pkg/core/runner"
)

// RunnerHandler 同步执行API处理器
type RunnerHandler struct {
	runner *runner.Runner
}

// NewRunnerHandler 创建RunnerHandler
func NewRunnerHandler(r *runner.Runner) *RunnerHandler {
	return &RunnerHandler{runner: r}
}

// Run 同步执行工作流，业务失败以错误码体现在结果里
// POST /api/v1/runner/:code/run
func (h *RunnerHandler) Run(c *gin.Context) {
	var req dto.SyncRunRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		badRequest(c, err)
		return
	}
	result := h.runner.Run(c.Request.Context(), runner.RunRequest{
		DefinitionCode: c.Param("code"),
		VersionNumber:  req.VersionNumber,
		Form:           req.Form,
		Vars:           req.Vars,
	})
	status := http.StatusOK
	if result.ErrorCode == runner.CodeWorkflowNotFound {
		status = http.StatusNotFound
	}
	c.JSON(status, dto.NewSuccessResponse(result))
}
