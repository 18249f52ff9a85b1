package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/LENAX/workflow-engine/pkg/api/dto"
	"github.com/LENAX/workflow-engine/pkg/core/definition"
	"github.com/LENAX/workflow-engine/pkg/core/dsl"
	"github.com/LENAX/workflow-engine/pkg/core/engine"
	"github.com/LENAX/workflow-engine/pkg/storage"
)

// StatusOf 业务错误对应的HTTP状态码
func StatusOf(err error) int {
	switch {
	case errors.Is(err, engine.ErrRunNotFound),
		errors.Is(err, engine.ErrDefinitionNotFound),
		errors.Is(err, definition.ErrDefinitionNotFound),
		errors.Is(err, definition.ErrVersionNotFound):
		return http.StatusNotFound
	case errors.Is(err, definition.ErrDefinitionExists),
		errors.Is(err, storage.ErrConcurrentUpdate):
		return http.StatusConflict
	case errors.Is(err, engine.ErrVersionNotPublished),
		errors.Is(err, engine.ErrStepNotFound),
		errors.Is(err, definition.ErrInvalidDsl):
		return http.StatusUnprocessableEntity
	case errors.Is(err, dsl.ErrParse),
		errors.Is(err, definition.ErrInvalidArgument):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondError 按错误类型写入错误响应
func respondError(c *gin.Context, err error) {
	status := StatusOf(err)
	c.JSON(status, dto.NewErrorResponse(status, err.Error()))
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, dto.NewErrorResponse(400, "请求参数错误: "+err.Error()))
}
