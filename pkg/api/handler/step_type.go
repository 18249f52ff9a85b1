package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/LENAX/workflow-engine/pkg/api/dto"
	"github.com/LENAX/workflow-engine/pkg/core/step"
)

// StepTypeHandler 步骤类型目录
type StepTypeHandler struct {
	registry *step.Registry
}

// NewStepTypeHandler 创建StepTypeHandler
func NewStepTypeHandler(registry *step.Registry) *StepTypeHandler {
	return &StepTypeHandler{registry: registry}
}

// List 全部步骤类型，按类型名排序
// GET /api/v1/step-types
func (h *StepTypeHandler) List(c *gin.Context) {
	descs := h.registry.GetAllStepTypes()
	items := make([]dto.StepTypeDetail, 0, len(descs))
	for _, d := range descs {
		items = append(items, dto.NewStepTypeDetail(d))
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.ListResponse[dto.StepTypeDetail]{
		Total: len(items),
		Items: items,
	}))
}

// Get 单个步骤类型
// GET /api/v1/step-types/:type
func (h *StepTypeHandler) Get(c *gin.Context) {
	d, ok := h.registry.GetStepType(c.Param("type"))
	if !ok {
		c.JSON(http.StatusNotFound, dto.NewErrorResponse(404, "步骤类型不存在: "+c.Param("type")))
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.NewStepTypeDetail(d)))
}
