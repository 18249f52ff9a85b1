package engine

import (
	"errors"

	"github.com/LENAX/workflow-engine/pkg/core/dsl"
)

// 结构性错误，调用方用 errors.Is 判断；步骤处理失败不会以错误返回
var (
	ErrRunNotFound         = errors.New("运行实例不存在")
	ErrDefinitionNotFound  = errors.New("工作流定义或版本不存在")
	ErrVersionNotPublished = errors.New("工作流版本未发布")
	ErrStepNotFound        = errors.New("DSL中不存在该步骤")
	ErrDslParse            = dsl.ErrParse
)
