package mapping

import (
	"context"
	"fmt"
	"log"

	"github.com/LENAX/workflow-engine/pkg/core/types"
	"github.com/LENAX/workflow-engine/pkg/core/workflow"
)

// Mapper 基于目录的映射服务，实现 types.Mapper
type Mapper struct {
	catalog *Catalog
}

var _ types.Mapper = (*Mapper)(nil)

// NewMapper 创建映射服务
func NewMapper(catalog *Catalog) *Mapper {
	return &Mapper{catalog: catalog}
}

// Apply 依次执行映射集中的映射项，并把最终输出拆分为请求部件或变量补丁
func (m *Mapper) Apply(ctx context.Context, mappingID string, input map[string]any) (*types.MappingResult, error) {
	set, ok := m.catalog.Get(mappingID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSetNotFound, mappingID)
	}

	current := input
	for i := range set.Items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		current = Transform(&set.Items[i], current)
	}
	return Split(current), nil
}

// Transform 执行单个映射项
func Transform(item *Item, input map[string]any) map[string]any {
	output := make(map[string]any)
	if len(item.Template) > 0 {
		resolved, missing := workflow.ResolveTemplate(item.Template, input)
		if len(missing) > 0 {
			log.Printf("⚠️ [Mapping] 模板占位符未解析: Item=%s, Missing=%v", item.Name, missing)
		}
		if m, ok := resolved.(map[string]any); ok {
			output = m
		}
	}
	for _, rule := range item.Rules {
		if value := Evaluate(rule.Expression, input); value != nil {
			SetPath(output, rule.Target, value)
		}
	}
	return output
}

// Split 输出含 headers/query/body/varsPatch 任一键时按结构拆分，否则整体作为变量补丁
func Split(output map[string]any) *types.MappingResult {
	result := &types.MappingResult{}
	_, hasHeaders := output["headers"]
	_, hasQuery := output["query"]
	_, hasBody := output["body"]
	_, hasPatch := output["varsPatch"]
	if !hasHeaders && !hasQuery && !hasBody && !hasPatch {
		result.VarsPatch = output
		return result
	}
	result.Headers = stringMap(output["headers"])
	result.Query = stringMap(output["query"])
	result.Body = output["body"]
	if patch, ok := output["varsPatch"].(map[string]any); ok {
		result.VarsPatch = patch
	}
	return result
}

func stringMap(v any) map[string]string {
	m, ok := v.(map[string]any)
	if !ok || len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, val := range m {
		out[k] = toString(val)
	}
	return out
}
