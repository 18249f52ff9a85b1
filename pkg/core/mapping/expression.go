package mapping

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var funcPattern = regexp.MustCompile(`^(\w+)\((.*)\)$`)

// Evaluate 求值单个表达式，无法求值时返回nil
//
// 支持的形式：
//
//	'literal'            字符串字面量
//	$.a.b[0].c           从输入读取
//	${a.b}               同上，兼容步骤配置中的占位符写法
//	func(arg, ...)       内置函数，参数为字面量、路径或数字/布尔
func Evaluate(expression string, input map[string]any) any {
	expr := strings.TrimSpace(expression)
	if expr == "" {
		return nil
	}
	if isQuoted(expr) {
		return unquote(expr)
	}
	if strings.HasPrefix(expr, "$.") {
		v, _ := GetPath(input, expr[2:])
		return v
	}
	if strings.HasPrefix(expr, "${") && strings.HasSuffix(expr, "}") {
		v, _ := GetPath(input, expr[2:len(expr)-1])
		return v
	}
	if m := funcPattern.FindStringSubmatch(expr); m != nil {
		return callFunction(strings.ToLower(m[1]), splitArgs(m[2]), input)
	}
	return nil
}

func isQuoted(s string) bool {
	return len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\''
}

func unquote(s string) string {
	return s[1 : len(s)-1]
}

// splitArgs 按逗号切分参数，忽略单引号内的逗号
func splitArgs(raw string) []string {
	var (
		args    []string
		current strings.Builder
		quoted  bool
	)
	for _, r := range raw {
		switch {
		case r == '\'':
			quoted = !quoted
			current.WriteRune(r)
		case r == ',' && !quoted:
			args = append(args, strings.TrimSpace(current.String()))
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}
	if strings.TrimSpace(raw) != "" {
		args = append(args, strings.TrimSpace(current.String()))
	}
	return args
}

func argValue(arg string, input map[string]any) any {
	switch {
	case isQuoted(arg):
		return unquote(arg)
	case strings.HasPrefix(arg, "$."):
		v, _ := GetPath(input, arg[2:])
		return v
	case arg == "null":
		return nil
	}
	if f, err := strconv.ParseFloat(arg, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(arg); err == nil {
		return b
	}
	return arg
}

func callFunction(name string, args []string, input map[string]any) any {
	values := make([]any, len(args))
	for i, arg := range args {
		values[i] = argValue(arg, input)
	}

	switch name {
	case "concat":
		var sb strings.Builder
		for _, v := range values {
			if v != nil {
				sb.WriteString(toString(v))
			}
		}
		return sb.String()
	case "coalesce":
		for _, v := range values {
			if v != nil {
				return v
			}
		}
		return nil
	case "toint":
		if len(values) == 0 {
			return nil
		}
		if n, err := strconv.Atoi(strings.TrimSpace(toString(values[0]))); err == nil {
			return n
		}
		if f, ok := toFloat(values[0]); ok && f == math.Trunc(f) {
			return int(f)
		}
		return nil
	case "todecimal":
		if len(values) == 0 {
			return nil
		}
		if f, ok := toFloat(values[0]); ok {
			return f
		}
		return nil
	case "add", "sub":
		if len(values) < 2 {
			return nil
		}
		a, okA := toFloat(values[0])
		b, okB := toFloat(values[1])
		if !okA || !okB {
			return nil
		}
		if name == "add" {
			return a + b
		}
		return a - b
	case "round":
		if len(values) == 0 {
			return nil
		}
		f, ok := toFloat(values[0])
		if !ok {
			return nil
		}
		decimals := 0
		if len(values) > 1 {
			if d, ok := toFloat(values[1]); ok {
				decimals = int(d)
			}
		}
		pow := math.Pow(10, float64(decimals))
		return math.Round(f*pow) / pow
	case "todate":
		if len(values) == 0 {
			return nil
		}
		if t, ok := parseTime(toString(values[0])); ok {
			return t.Format(time.RFC3339)
		}
		return nil
	case "formatdate":
		if len(values) < 2 {
			return nil
		}
		t, ok := parseTime(toString(values[0]))
		layout, isStr := values[1].(string)
		if !ok || !isStr {
			return nil
		}
		return t.Format(layout)
	case "regex_replace":
		if len(values) < 3 {
			return nil
		}
		src, ok1 := values[0].(string)
		pattern, ok2 := values[1].(string)
		repl, ok3 := values[2].(string)
		if !ok1 || !ok2 || !ok3 {
			return nil
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return src
		}
		return re.ReplaceAllString(src, repl)
	case "if":
		if len(values) < 3 {
			return nil
		}
		cond, ok := values[0].(bool)
		if !ok {
			return nil
		}
		if cond {
			return values[1]
		}
		return values[2]
	case "lookup":
		if len(values) < 2 {
			return nil
		}
		key, ok := values[0].(string)
		if !ok {
			return nil
		}
		if dict, ok := values[1].(map[string]any); ok {
			return dict[key]
		}
		return nil
	default:
		return nil
	}
}

var timeLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"}

func parseTime(s string) (time.Time, bool) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func toString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", val)
	}
}
