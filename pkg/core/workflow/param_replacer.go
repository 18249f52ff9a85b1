package workflow

import (
	"fmt"
	"strings"
)

// LookupPath 按点分路径读取嵌套值，例如 vars.customer.id
func LookupPath(data map[string]any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}
	var current any = data
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// ReplacePlaceholder 替换字符串中的 ${path} 占位符
// 整个字符串只是一个占位符时保留原始类型，否则按字符串拼接
// 返回替换结果和未找到的占位符列表
func ReplacePlaceholder(value string, params map[string]any) (any, []string) {
	if !strings.Contains(value, "${") {
		return value, nil
	}

	// 单个占位符，保留原始类型
	if strings.HasPrefix(value, "${") && strings.HasSuffix(value, "}") && strings.Count(value, "${") == 1 {
		paramName := strings.TrimSuffix(strings.TrimPrefix(value, "${"), "}")
		if actual, ok := LookupPath(params, paramName); ok {
			return actual, nil
		}
		return value, []string{paramName}
	}

	var (
		sb         strings.Builder
		unreplaced []string
		rest       = value
	)
	for {
		start := strings.Index(rest, "${")
		if start < 0 {
			sb.WriteString(rest)
			break
		}
		end := strings.Index(rest[start:], "}")
		if end < 0 {
			sb.WriteString(rest)
			break
		}
		end += start
		sb.WriteString(rest[:start])
		paramName := rest[start+2 : end]
		if actual, ok := LookupPath(params, paramName); ok {
			sb.WriteString(stringify(actual))
		} else {
			unreplaced = append(unreplaced, paramName)
			sb.WriteString(rest[start : end+1])
		}
		rest = rest[end+1:]
	}
	return sb.String(), unreplaced
}

// ResolveTemplate 递归替换map/slice/string中的占位符
func ResolveTemplate(tmpl any, params map[string]any) (any, []string) {
	switch v := tmpl.(type) {
	case string:
		return ReplacePlaceholder(v, params)
	case map[string]any:
		out := make(map[string]any, len(v))
		var unreplaced []string
		for key, item := range v {
			resolved, missing := ResolveTemplate(item, params)
			out[key] = resolved
			unreplaced = append(unreplaced, missing...)
		}
		return out, unreplaced
	case []any:
		out := make([]any, len(v))
		var unreplaced []string
		for i, item := range v {
			resolved, missing := ResolveTemplate(item, params)
			out[i] = resolved
			unreplaced = append(unreplaced, missing...)
		}
		return out, unreplaced
	default:
		return tmpl, nil
	}
}

// ResolveStringMap 替换字符串map（headers/query）中的占位符
func ResolveStringMap(tmpl map[string]string, params map[string]any) (map[string]string, []string) {
	if len(tmpl) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(tmpl))
	var unreplaced []string
	for key, value := range tmpl {
		resolved, missing := ReplacePlaceholder(value, params)
		out[key] = stringify(resolved)
		unreplaced = append(unreplaced, missing...)
	}
	return out, unreplaced
}

func stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", val)
	}
}
