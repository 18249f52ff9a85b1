// Package apiproxy 出站API代理，按方法ID调用目录中登记的HTTP接口
package apiproxy

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrMethodNotFound 方法ID未登记
var ErrMethodNotFound = errors.New("API方法未登记")

// 响应解析方式
const (
	ResponseAuto = "auto"
	ResponseJSON = "json"
	ResponseHTML = "html"
	ResponseText = "text"
)

// Method 一个可调用的外部接口
type Method struct {
	ID      string            `yaml:"id"`
	Method  string            `yaml:"method"`
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout time.Duration     `yaml:"timeout,omitempty"`
	// Response 响应解析方式: auto/json/html/text，默认auto按Content-Type判断
	Response string `yaml:"response,omitempty"`
	// Extract HTML响应的字段提取规则：字段名 -> CSS选择器
	Extract map[string]string `yaml:"extract,omitempty"`
}

// Catalog API方法目录
type Catalog struct {
	Methods []*Method `yaml:"methods"`

	index map[string]*Method
}

// LoadCatalog 从YAML文件加载方法目录，加载前展开 ${ENV} 变量
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取API方法目录失败: %w", err)
	}
	return ParseCatalog([]byte(os.ExpandEnv(string(data))))
}

// ParseCatalog 解析YAML方法目录
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("解析API方法目录失败: %w", err)
	}
	if err := c.reindex(); err != nil {
		return nil, err
	}
	return &c, nil
}

// NewCatalog 由内存中的方法构建目录
func NewCatalog(methods ...*Method) (*Catalog, error) {
	c := &Catalog{Methods: methods}
	if err := c.reindex(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Catalog) reindex() error {
	c.index = make(map[string]*Method, len(c.Methods))
	for _, m := range c.Methods {
		if m == nil || m.ID == "" {
			return fmt.Errorf("API方法ID不能为空")
		}
		if m.URL == "" {
			return fmt.Errorf("API方法 %s 缺少url", m.ID)
		}
		if _, dup := c.index[m.ID]; dup {
			return fmt.Errorf("API方法ID重复: %s", m.ID)
		}
		m.Method = strings.ToUpper(m.Method)
		if m.Method == "" {
			m.Method = http.MethodPost
		}
		switch m.Response {
		case "":
			m.Response = ResponseAuto
		case ResponseAuto, ResponseJSON, ResponseHTML, ResponseText:
		default:
			return fmt.Errorf("API方法 %s 的响应解析方式无效: %s", m.ID, m.Response)
		}
		c.index[m.ID] = m
	}
	return nil
}

// Get 按ID获取方法
func (c *Catalog) Get(id string) (*Method, bool) {
	if c == nil {
		return nil, false
	}
	m, ok := c.index[id]
	return m, ok
}
