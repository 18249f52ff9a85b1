package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/LENAX/workflow-engine/pkg/cli/output"
	"github.com/LENAX/workflow-engine/pkg/cli/workflowengine"
)

var (
	// 全局变量
	serverURL  string
	outputJSON bool
)

// rootCmd 根命令
var rootCmd = &cobra.Command{
	Use:   "workflow-cli",
	Short: "Workflow Engine CLI - 工作流引擎命令行工具",
	Long: `Workflow Engine CLI 通过HTTP API管理工作流引擎。

支持的功能：
  - 管理工作流定义与版本（创建、上传DSL、发布、取消发布、试运行）
  - 管理运行实例（启动、查看、轨迹、恢复、信号、取消）
  - 查看步骤类型目录

使用示例：
  # 创建定义并发布第一个版本
  workflow-cli definition create order --name 订单审批
  workflow-cli definition version order --file order.json
  workflow-cli definition publish order 1

  # 启动运行并投递信号
  workflow-cli run start order --data '{"orderId":"o-1"}'
  workflow-cli run signal <run-id> FormSubmitted --data '{"approved":true}'`,
	SilenceUsage: true,
}

// Execute 执行根命令
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	// 全局参数
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "http://localhost:8080", "Workflow Engine服务器地址")
	rootCmd.PersistentFlags().BoolVarP(&outputJSON, "json", "j", false, "使用JSON格式输出")

	// 添加子命令
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(definitionCmd)
	rootCmd.AddCommand(stepTypesCmd)
	rootCmd.AddCommand(versionCmd)
}

func newClient() *workflowengine.Client {
	return workflowengine.New(strings.TrimRight(serverURL, "/"))
}

func newPrinter(cmd *cobra.Command) *output.Printer {
	return output.NewPrinter(cmd.OutOrStdout(), outputJSON)
}

// parseObject 解析 --data 参数，空字符串返回nil
func parseObject(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("--data 不是合法的JSON对象: %w", err)
	}
	return m, nil
}

// fail 输出错误并返回，交给cobra设置退出码
func fail(p *output.Printer, action string, err error) error {
	if !p.JSON {
		p.Error("%s失败: %v", action, err)
	}
	return err
}
