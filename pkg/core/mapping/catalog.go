// Package mapping 基于规则的数据映射，提供默认的 Mapper 实现
package mapping

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrSetNotFound 映射集不存在
var ErrSetNotFound = errors.New("映射集不存在")

// Rule 单条映射规则：求值 Expression 并写入输出的 Target 路径
type Rule struct {
	Target     string `yaml:"target" json:"target"`
	Expression string `yaml:"expression" json:"expression"`
}

// Item 映射项，一组规则；Template 不为空时按占位符模板生成输出并叠加规则结果
type Item struct {
	Name     string         `yaml:"name,omitempty" json:"name,omitempty"`
	Template map[string]any `yaml:"template,omitempty" json:"template,omitempty"`
	Rules    []Rule         `yaml:"rules,omitempty" json:"rules,omitempty"`
}

// Set 映射集，由多个映射项串联，前一项的输出是后一项的输入
type Set struct {
	ID          string `yaml:"id" json:"id"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Items       []Item `yaml:"items" json:"items"`
}

// Catalog 映射集目录（对外导出）
type Catalog struct {
	Sets []*Set `yaml:"mapping_sets"`

	index map[string]*Set
}

// LoadCatalog 从YAML文件加载映射集目录
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取映射集文件失败: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog 解析YAML映射集目录
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("解析映射集失败: %w", err)
	}
	if err := c.reindex(); err != nil {
		return nil, err
	}
	return &c, nil
}

// NewCatalog 由内存中的映射集构建目录
func NewCatalog(sets ...*Set) (*Catalog, error) {
	c := &Catalog{Sets: sets}
	if err := c.reindex(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Catalog) reindex() error {
	c.index = make(map[string]*Set, len(c.Sets))
	for _, s := range c.Sets {
		if s == nil || strings.TrimSpace(s.ID) == "" {
			return fmt.Errorf("映射集ID不能为空")
		}
		if _, dup := c.index[s.ID]; dup {
			return fmt.Errorf("映射集ID重复: %s", s.ID)
		}
		for i, item := range s.Items {
			for j, rule := range item.Rules {
				if strings.TrimSpace(rule.Target) == "" {
					return fmt.Errorf("映射集 %s 第%d项第%d条规则缺少target", s.ID, i+1, j+1)
				}
			}
		}
		c.index[s.ID] = s
	}
	return nil
}

// Get 按ID获取映射集
func (c *Catalog) Get(id string) (*Set, bool) {
	if c == nil {
		return nil, false
	}
	s, ok := c.index[id]
	return s, ok
}

// IDs 全部映射集ID
func (c *Catalog) IDs() []string {
	if c == nil {
		return nil
	}
	ids := make([]string, 0, len(c.Sets))
	for _, s := range c.Sets {
		ids = append(ids, s.ID)
	}
	return ids
}
