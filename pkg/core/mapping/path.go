package mapping

import (
	"strconv"
	"strings"
)

// splitPath 将 orders[0].name 规范为 [orders 0 name]
func splitPath(path string) []string {
	normalized := strings.NewReplacer("[", ".", "]", "").Replace(path)
	raw := strings.Split(normalized, ".")
	parts := make([]string, 0, len(raw))
	for _, p := range raw {
		p = strings.Trim(p, `'"`)
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

// GetPath 按路径读取嵌套值，支持数组下标
func GetPath(data map[string]any, path string) (any, bool) {
	parts := splitPath(path)
	if len(parts) == 0 {
		return nil, false
	}
	var current any = data
	for _, part := range parts {
		switch node := current.(type) {
		case map[string]any:
			next, ok := node[part]
			if !ok {
				return nil, false
			}
			current = next
		case []any:
			idx, err := strconv.Atoi(part)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			current = node[idx]
		default:
			return nil, false
		}
	}
	return current, true
}

// SetPath 按路径写入值，中间节点不存在或类型不符时按下一段是否为下标创建对象或数组
func SetPath(root map[string]any, path string, value any) {
	parts := splitPath(path)
	if len(parts) == 0 {
		return
	}
	root[parts[0]] = setNode(root[parts[0]], parts[1:], value)
}

func setNode(node any, parts []string, value any) any {
	if len(parts) == 0 {
		return value
	}
	part := parts[0]
	idx, err := strconv.Atoi(part)
	if err == nil && idx >= 0 {
		list, _ := node.([]any)
		for len(list) <= idx {
			list = append(list, nil)
		}
		list[idx] = setNode(list[idx], parts[1:], value)
		return list
	}
	m, ok := node.(map[string]any)
	if !ok {
		m = make(map[string]any)
	}
	m[part] = setNode(m[part], parts[1:], value)
	return m
}
