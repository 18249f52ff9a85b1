package workflow

import (
	"encoding/json"
	"fmt"
)

// DecodeContext 解析上下文JSON，空串视为空对象
func DecodeContext(contextJSON string) (map[string]any, error) {
	ctx := make(map[string]any)
	if contextJSON == "" {
		return ctx, nil
	}
	if err := json.Unmarshal([]byte(contextJSON), &ctx); err != nil {
		return nil, fmt.Errorf("解析上下文JSON失败: %w", err)
	}
	if ctx == nil {
		ctx = make(map[string]any)
	}
	return ctx, nil
}

// EncodeContext 序列化上下文
func EncodeContext(ctx map[string]any) (string, error) {
	if ctx == nil {
		return "{}", nil
	}
	data, err := json.Marshal(ctx)
	if err != nil {
		return "", fmt.Errorf("序列化上下文失败: %w", err)
	}
	return string(data), nil
}

// MergeContext 顶层key覆盖合并，只新增或覆盖，从不删除
func MergeContext(contextJSON string, patch map[string]any) (string, error) {
	current, err := DecodeContext(contextJSON)
	if err != nil {
		return "", err
	}
	for k, v := range patch {
		current[k] = v
	}
	return EncodeContext(current)
}
