// Package output 命令行输出：彩色提示、表格与JSON
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
)

// Printer 输出目标，JSON为true时只输出JSON
type Printer struct {
	Out  io.Writer
	JSON bool
}

// NewPrinter 创建输出器，out为nil时写到标准输出
func NewPrinter(out io.Writer, asJSON bool) *Printer {
	if out == nil {
		out = os.Stdout
	}
	return &Printer{Out: out, JSON: asJSON}
}

// PrintJSON 输出缩进的JSON
func (p *Printer) PrintJSON(data any) error {
	encoder := json.NewEncoder(p.Out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// Success 输出成功消息
func (p *Printer) Success(format string, args ...any) {
	color.New(color.FgGreen, color.Bold).Fprintf(p.Out, "✅ "+format+"\n", args...)
}

// Error 输出错误消息
func (p *Printer) Error(format string, args ...any) {
	color.New(color.FgRed, color.Bold).Fprintf(p.Out, "❌ "+format+"\n", args...)
}

// Info 输出信息
func (p *Printer) Info(format string, args ...any) {
	color.New(color.FgCyan).Fprintf(p.Out, "ℹ️  "+format+"\n", args...)
}

// Warning 输出警告
func (p *Printer) Warning(format string, args ...any) {
	color.New(color.FgYellow).Fprintf(p.Out, "⚠️  "+format+"\n", args...)
}

// Field 输出一行 key: value
func (p *Printer) Field(key string, value any) {
	fmt.Fprintf(p.Out, "  %-16s %v\n", key+":", value)
}

// Status 运行/步骤状态加图标和颜色
func Status(status string) string {
	switch status {
	case "Completed", "Succeeded":
		return color.GreenString("✅ " + status)
	case "Failed":
		return color.RedString("❌ " + status)
	case "Running":
		return color.CyanString("🔄 " + status)
	case "Paused", "Pending":
		return color.YellowString("⏸️  " + status)
	case "Cancelled", "Skipped":
		return color.HiBlackString("🛑 " + status)
	default:
		return status
	}
}
