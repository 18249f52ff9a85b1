package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/LENAX/workflow-engine/pkg/api/dto"
	"github.com/LENAX/workflow-engine/pkg/core/definition"
)

// DefinitionHandler 工作流定义管理API处理器
type DefinitionHandler struct {
	admin *definition.AdminService
}

// NewDefinitionHandler 创建DefinitionHandler
func NewDefinitionHandler(admin *definition.AdminService) *DefinitionHandler {
	return &DefinitionHandler{admin: admin}
}

// List 列出工作流定义
// GET /api/v1/definitions
func (h *DefinitionHandler) List(c *gin.Context) {
	defs, err := h.admin.ListDefinitions(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	items := make([]dto.DefinitionDetail, 0, len(defs))
	for _, def := range defs {
		items = append(items, dto.NewDefinitionDetail(def))
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.ListResponse[dto.DefinitionDetail]{
		Total: len(items),
		Items: items,
	}))
}

// Create 创建工作流定义
// POST /api/v1/definitions
func (h *DefinitionHandler) Create(c *gin.Context) {
	var req dto.CreateDefinitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	def, err := h.admin.CreateDefinition(c.Request.Context(), req.Code, req.Name, req.Description)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(dto.NewDefinitionDetail(def)))
}

// Get 获取工作流定义
// GET /api/v1/definitions/:code
func (h *DefinitionHandler) Get(c *gin.Context) {
	def, err := h.admin.GetDefinition(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.NewDefinitionDetail(def)))
}

// ListVersions 列出定义的版本
// GET /api/v1/definitions/:code/versions
func (h *DefinitionHandler) ListVersions(c *gin.Context) {
	versions, err := h.admin.ListVersions(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondError(c, err)
		return
	}
	items := make([]dto.VersionDetail, 0, len(versions))
	for _, v := range versions {
		items = append(items, dto.NewVersionDetail(v, false))
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.ListResponse[dto.VersionDetail]{
		Total: len(items),
		Items: items,
	}))
}

// CreateVersion 创建草稿版本
// POST /api/v1/definitions/:code/versions
func (h *DefinitionHandler) CreateVersion(c *gin.Context) {
	var req dto.CreateVersionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	v, err := h.admin.CreateVersion(c.Request.Context(), c.Param("code"), req.Dsl, req.Changelog)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(dto.NewVersionDetail(v, false)))
}

// GetVersion 获取版本详情（含DSL）
// GET /api/v1/definitions/:code/versions/:version
func (h *DefinitionHandler) GetVersion(c *gin.Context) {
	n, ok := versionParam(c)
	if !ok {
		return
	}
	v, err := h.admin.GetVersion(c.Request.Context(), c.Param("code"), n)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.NewVersionDetail(v, true)))
}

// Publish 校验并发布版本，校验失败时返回全部问题
// POST /api/v1/definitions/:code/versions/:version/publish
func (h *DefinitionHandler) Publish(c *gin.Context) {
	n, ok := versionParam(c)
	if !ok {
		return
	}
	v, result, err := h.admin.PublishVersion(c.Request.Context(), c.Param("code"), n)
	var verr *definition.ValidationError
	if errors.As(err, &verr) {
		c.JSON(http.StatusUnprocessableEntity, dto.APIResponse[any]{
			Code:    http.StatusUnprocessableEntity,
			Message: err.Error(),
			Data:    verr.Result,
		})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(map[string]any{
		"version":    dto.NewVersionDetail(v, false),
		"validation": result,
	}))
}

// Unpublish 取消发布
// POST /api/v1/definitions/:code/versions/:version/unpublish
func (h *DefinitionHandler) Unpublish(c *gin.Context) {
	n, ok := versionParam(c)
	if !ok {
		return
	}
	v, err := h.admin.UnpublishVersion(c.Request.Context(), c.Param("code"), n)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.NewVersionDetail(v, false)))
}

// DryRun 试运行：只解析与校验
// POST /api/v1/definitions/:code/versions/:version/dry-run
func (h *DefinitionHandler) DryRun(c *gin.Context) {
	n, ok := versionParam(c)
	if !ok {
		return
	}
	var req dto.DryRunRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		badRequest(c, err)
		return
	}
	report, err := h.admin.DryRun(c.Request.Context(), c.Param("code"), n, req.Input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(report))
}

func versionParam(c *gin.Context) (int, bool) {
	n, err := strconv.Atoi(c.Param("version"))
	if err != nil || n <= 0 {
		badRequest(c, fmt.Errorf("版本号无效: %s", c.Param("version")))
		return 0, false
	}
	return n, true
}
