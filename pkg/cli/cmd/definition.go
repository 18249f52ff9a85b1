package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/LENAX/workflow-engine/pkg/cli/output"
)

var (
	defName        string
	defDescription string
	defFile        string
	defChangelog   string
	defInput       string
)

// definitionCmd definition子命令
var definitionCmd = &cobra.Command{
	Use:     "definition",
	Aliases: []string{"def"},
	Short:   "工作流定义管理命令",
	Long:    `创建工作流定义、上传DSL版本、发布与取消发布、试运行。`,
}

// definitionListCmd 列出定义
var definitionListCmd = &cobra.Command{
	Use:   "list",
	Short: "列出工作流定义",
	RunE: func(cmd *cobra.Command, args []string) error {
		p := newPrinter(cmd)
		result, err := newClient().ListDefinitions()
		if err != nil {
			return fail(p, "查询定义", err)
		}
		if p.JSON {
			return p.PrintJSON(result)
		}
		if len(result.Items) == 0 {
			p.Info("暂无工作流定义")
			return nil
		}
		table := output.NewTable("CODE", "NAME", "DESCRIPTION", "CREATED")
		for _, def := range result.Items {
			table.AddRow(def.Code, def.Name, dash(def.Description), def.CreatedAt.Local().Format(time.DateTime))
		}
		table.Render(p.Out)
		return nil
	},
}

// definitionCreateCmd 创建定义
var definitionCreateCmd = &cobra.Command{
	Use:   "create <code>",
	Short: "创建工作流定义",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p := newPrinter(cmd)
		def, err := newClient().CreateDefinition(args[0], defName, defDescription)
		if err != nil {
			return fail(p, "创建定义", err)
		}
		if p.JSON {
			return p.PrintJSON(def)
		}
		p.Success("定义已创建: %s (%s)", def.Code, def.Name)
		return nil
	},
}

// definitionVersionsCmd 列出版本
var definitionVersionsCmd = &cobra.Command{
	Use:   "versions <code>",
	Short: "列出定义的全部版本",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p := newPrinter(cmd)
		result, err := newClient().ListVersions(args[0])
		if err != nil {
			return fail(p, "查询版本", err)
		}
		if p.JSON {
			return p.PrintJSON(result)
		}
		table := output.NewTable("VERSION", "PUBLISHED", "CHANGELOG", "CREATED")
		for _, v := range result.Items {
			published := "-"
			if v.IsPublished && v.PublishedAt != nil {
				published = v.PublishedAt.Local().Format(time.DateTime)
			}
			table.AddRow(strconv.Itoa(v.VersionNumber), published, dash(v.Changelog), v.CreatedAt.Local().Format(time.DateTime))
		}
		table.Render(p.Out)
		return nil
	},
}

// definitionVersionCmd 上传DSL创建版本
var definitionVersionCmd = &cobra.Command{
	Use:   "version <code>",
	Short: "上传DSL文件创建草稿版本",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p := newPrinter(cmd)
		if defFile == "" {
			return fail(p, "创建版本", fmt.Errorf("请通过 --file 指定DSL文件"))
		}
		content, err := os.ReadFile(defFile)
		if err != nil {
			return fail(p, "读取DSL文件", err)
		}
		v, err := newClient().CreateVersion(args[0], string(content), defChangelog)
		if err != nil {
			return fail(p, "创建版本", err)
		}
		if p.JSON {
			return p.PrintJSON(v)
		}
		p.Success("版本已创建: %s v%d（草稿，需发布后才能启动运行）", args[0], v.VersionNumber)
		return nil
	},
}

// definitionPublishCmd 发布版本
var definitionPublishCmd = &cobra.Command{
	Use:   "publish <code> <version>",
	Short: "校验并发布版本",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		p := newPrinter(cmd)
		n, err := parseVersionArg(args[1])
		if err != nil {
			return fail(p, "发布版本", err)
		}
		result, err := newClient().PublishVersion(args[0], n)
		if err != nil {
			if !p.JSON {
				p.Error("发布版本失败:")
				for _, issue := range strings.Split(strings.TrimPrefix(err.Error(), "DSL校验失败: "), "; ") {
					fmt.Fprintf(p.Out, "  - %s\n", issue)
				}
			}
			return err
		}
		if p.JSON {
			return p.PrintJSON(result)
		}
		p.Success("版本已发布: %s v%d", args[0], result.Version.VersionNumber)
		return nil
	},
}

// definitionUnpublishCmd 取消发布
var definitionUnpublishCmd = &cobra.Command{
	Use:   "unpublish <code> <version>",
	Short: "取消发布版本，已有运行不受影响",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		p := newPrinter(cmd)
		n, err := parseVersionArg(args[1])
		if err != nil {
			return fail(p, "取消发布", err)
		}
		v, err := newClient().UnpublishVersion(args[0], n)
		if err != nil {
			return fail(p, "取消发布", err)
		}
		if p.JSON {
			return p.PrintJSON(v)
		}
		p.Success("已取消发布: %s v%d", args[0], v.VersionNumber)
		return nil
	},
}

// definitionDryRunCmd 试运行
var definitionDryRunCmd = &cobra.Command{
	Use:   "dry-run <code> <version>",
	Short: "解析并校验版本，不执行",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		p := newPrinter(cmd)
		n, err := parseVersionArg(args[1])
		if err != nil {
			return fail(p, "试运行", err)
		}
		report, err := newClient().DryRun(args[0], n, defInput)
		if err != nil {
			return fail(p, "试运行", err)
		}
		if p.JSON {
			return p.PrintJSON(report)
		}
		p.Field("Start At", report.StartAt)
		p.Field("Steps", report.StepCount)
		p.Field("Step Types", strings.Join(report.StepTypes, ", "))
		if report.Validation != nil {
			for _, issue := range report.Validation.Errors {
				p.Error("%s", issue.String())
			}
			for _, issue := range report.Validation.Warnings {
				p.Warning("%s", issue.String())
			}
		}
		if report.Valid {
			p.Success("校验通过")
		}
		return nil
	},
}

func parseVersionArg(raw string) (int, error) {
	n, err := strconv.Atoi(strings.TrimPrefix(raw, "v"))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("版本号无效: %s", raw)
	}
	return n, nil
}

func init() {
	definitionCreateCmd.Flags().StringVarP(&defName, "name", "n", "", "显示名称，默认与编码相同")
	definitionCreateCmd.Flags().StringVar(&defDescription, "description", "", "描述")
	definitionVersionCmd.Flags().StringVarP(&defFile, "file", "f", "", "DSL文件路径（JSON）")
	definitionVersionCmd.Flags().StringVarP(&defChangelog, "changelog", "m", "", "变更说明")
	definitionDryRunCmd.Flags().StringVarP(&defInput, "input", "i", "", "试运行输入（JSON对象）")

	definitionCmd.AddCommand(definitionListCmd, definitionCreateCmd, definitionVersionsCmd, definitionVersionCmd,
		definitionPublishCmd, definitionUnpublishCmd, definitionDryRunCmd)
}
