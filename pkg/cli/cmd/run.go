package cmd

import (
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/LENAX/workflow-engine/pkg/api/dto"
	"github.com/LENAX/workflow-engine/pkg/cli/output"
)

var (
	runVersion        int
	runData           string
	runCorrelationID  string
	runIdempotencyKey string
	runStatus         string
	runLimit          int
	runReason         string
	runByCorrelation  bool
)

// runCmd run子命令
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "运行实例管理命令",
	Long:  `启动、查看、恢复、投递信号和取消工作流运行。`,
}

// runStartCmd 启动运行
var runStartCmd = &cobra.Command{
	Use:   "start <definition-code>",
	Short: "启动运行（默认使用最新发布版本）",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p := newPrinter(cmd)
		data, err := parseObject(runData)
		if err != nil {
			return fail(p, "启动运行", err)
		}
		run, err := newClient().StartRun(dto.StartRunRequest{
			DefinitionCode: args[0],
			VersionNumber:  runVersion,
			Context:        data,
			CorrelationID:  runCorrelationID,
		}, runIdempotencyKey)
		if err != nil {
			return fail(p, "启动运行", err)
		}
		if p.JSON {
			return p.PrintJSON(run)
		}
		p.Success("运行已启动: %s", run.ID)
		printRun(p, run)
		return nil
	},
}

// runGetCmd 查看运行
var runGetCmd = &cobra.Command{
	Use:   "get <run-id>",
	Short: "查看运行详情",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p := newPrinter(cmd)
		run, err := newClient().GetRun(args[0])
		if err != nil {
			return fail(p, "查询运行", err)
		}
		if p.JSON {
			return p.PrintJSON(run)
		}
		printRun(p, run)
		return nil
	},
}

// runListCmd 列出运行
var runListCmd = &cobra.Command{
	Use:   "list [definition-code]",
	Short: "列出运行实例",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p := newPrinter(cmd)
		code := ""
		if len(args) == 1 {
			code = args[0]
		}
		result, err := newClient().ListRuns(code, runStatus, runCorrelationID, runLimit, 0)
		if err != nil {
			return fail(p, "查询运行列表", err)
		}
		if p.JSON {
			return p.PrintJSON(result)
		}
		if len(result.Items) == 0 {
			p.Info("暂无运行实例")
			return nil
		}
		table := output.NewTable("RUN_ID", "DEFINITION", "VERSION", "STATUS", "STEP", "CREATED")
		for _, run := range result.Items {
			table.AddRow(run.ID, run.DefinitionCode, strconv.Itoa(run.VersionNumber),
				output.Status(run.Status), dash(run.CurrentStepID), run.CreatedAt.Local().Format(time.DateTime))
		}
		table.Render(p.Out)
		if result.HasMore {
			p.Info("还有更多结果，使用 --limit 调整数量")
		}
		return nil
	},
}

// runHistoryCmd 查看运行轨迹
var runHistoryCmd = &cobra.Command{
	Use:   "history <run-id>",
	Short: "查看运行的步骤、信号、流转和补偿记录",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p := newPrinter(cmd)
		history, err := newClient().GetHistory(args[0])
		if err != nil {
			return fail(p, "查询运行轨迹", err)
		}
		if p.JSON {
			return p.PrintJSON(history)
		}
		printRun(p, &history.Run)

		p.Info("步骤 (%d)", len(history.Steps))
		steps := output.NewTable("STEP", "TYPE", "STATUS", "ATTEMPT", "STARTED", "ERROR")
		for _, s := range history.Steps {
			steps.AddRow(s.StepID, s.StepType, output.Status(s.Status), strconv.Itoa(s.Attempts),
				s.StartedAt.Local().Format(time.DateTime), dash(s.Error))
		}
		steps.Render(p.Out)

		if len(history.Transitions) > 0 {
			p.Info("流转 (%d)", len(history.Transitions))
			transitions := output.NewTable("FROM", "TO", "REASON")
			for _, t := range history.Transitions {
				transitions.AddRow(t.FromStepID, t.ToStepID, dash(t.Reason))
			}
			transitions.Render(p.Out)
		}
		if len(history.Signals) > 0 {
			p.Info("信号 (%d)", len(history.Signals))
			signals := output.NewTable("NAME", "RECEIVED")
			for _, s := range history.Signals {
				signals.AddRow(s.Name, s.HandledAt.Local().Format(time.DateTime))
			}
			signals.Render(p.Out)
		}
		if len(history.Compensations) > 0 {
			p.Info("补偿 (%d)", len(history.Compensations))
			comps := output.NewTable("STEP", "ACTION", "TYPE", "STATUS", "ATTEMPTS", "ERROR")
			for _, c := range history.Compensations {
				comps.AddRow(c.StepID, strconv.Itoa(c.ActionIndex), c.ActionType, output.Status(c.Status),
					strconv.Itoa(c.Attempts), dash(c.Error))
			}
			comps.Render(p.Out)
		}
		return nil
	},
}

// runResumeCmd 恢复运行
var runResumeCmd = &cobra.Command{
	Use:   "resume <run-id>",
	Short: "以输入数据恢复暂停的运行",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p := newPrinter(cmd)
		data, err := parseObject(runData)
		if err != nil {
			return fail(p, "恢复运行", err)
		}
		run, err := newClient().Resume(args[0], data)
		if err != nil {
			return fail(p, "恢复运行", err)
		}
		return printRunResult(p, "已提交恢复", run)
	},
}

// runSignalCmd 投递信号
var runSignalCmd = &cobra.Command{
	Use:   "signal <run-id|correlation-id> <signal-name>",
	Short: "向运行投递信号",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		p := newPrinter(cmd)
		data, err := parseObject(runData)
		if err != nil {
			return fail(p, "投递信号", err)
		}
		client := newClient()
		if runByCorrelation {
			if err := client.SignalByCorrelation(args[0], args[1], data); err != nil {
				return fail(p, "投递信号", err)
			}
			if p.JSON {
				return p.PrintJSON(map[string]string{"correlation_id": args[0], "name": args[1]})
			}
			p.Success("信号已投递: CorrelationID=%s, Name=%s", args[0], args[1])
			return nil
		}
		run, err := client.Signal(args[0], args[1], data)
		if err != nil {
			return fail(p, "投递信号", err)
		}
		return printRunResult(p, "信号已投递", run)
	},
}

// runCancelCmd 取消运行
var runCancelCmd = &cobra.Command{
	Use:   "cancel <run-id>",
	Short: "取消运行并执行补偿",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p := newPrinter(cmd)
		run, err := newClient().Cancel(args[0], runReason)
		if err != nil {
			return fail(p, "取消运行", err)
		}
		return printRunResult(p, "已提交取消", run)
	},
}

// runSyncCmd 同步执行
var runSyncCmd = &cobra.Command{
	Use:   "sync <definition-code>",
	Short: "同步执行apiCall/return工作流并返回输出",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p := newPrinter(cmd)
		form, err := parseObject(runData)
		if err != nil {
			return fail(p, "同步执行", err)
		}
		result, err := newClient().RunSync(args[0], dto.SyncRunRequest{VersionNumber: runVersion, Form: form})
		if err != nil {
			return fail(p, "同步执行", err)
		}
		if p.JSON {
			return p.PrintJSON(result)
		}
		if !result.Success {
			p.Error("同步执行失败: [%s] %s (已执行 %d 步)", result.ErrorCode, result.ErrorMessage, result.StepsExecuted)
			return nil
		}
		p.Success("同步执行完成，已执行 %d 步", result.StepsExecuted)
		return p.PrintJSON(result.Output)
	},
}

func printRunResult(p *output.Printer, message string, run *dto.RunDetail) error {
	if p.JSON {
		return p.PrintJSON(run)
	}
	p.Success("%s: %s", message, run.ID)
	printRun(p, run)
	return nil
}

func printRun(p *output.Printer, run *dto.RunDetail) {
	p.Field("Run ID", run.ID)
	p.Field("Definition", run.DefinitionCode+" v"+strconv.Itoa(run.VersionNumber))
	p.Field("Status", output.Status(run.Status))
	if run.CurrentStepID != "" {
		p.Field("Current Step", run.CurrentStepID)
	}
	if run.CorrelationID != "" {
		p.Field("Correlation ID", run.CorrelationID)
	}
	if run.ResumeSignal != "" {
		p.Field("Resume Signal", run.ResumeSignal)
	}
	if run.Error != "" {
		p.Field("Error", run.Error)
	}
	if run.CancelReason != "" {
		p.Field("Cancel Reason", run.CancelReason)
	}
	p.Field("Created", run.CreatedAt.Local().Format(time.DateTime))
	if run.CompletedAt != nil {
		p.Field("Completed", run.CompletedAt.Local().Format(time.DateTime))
	}
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func init() {
	runStartCmd.Flags().IntVarP(&runVersion, "version", "v", 0, "定义版本号，0表示最新发布版本")
	runStartCmd.Flags().StringVarP(&runData, "data", "d", "", "初始上下文（JSON对象）")
	runStartCmd.Flags().StringVar(&runCorrelationID, "correlation-id", "", "业务相关ID")
	runStartCmd.Flags().StringVar(&runIdempotencyKey, "idempotency-key", "", "幂等键，重复提交返回首次结果")

	runListCmd.Flags().StringVar(&runStatus, "status", "", "按状态过滤 (Running/Paused/Completed/Failed/Cancelled)")
	runListCmd.Flags().StringVar(&runCorrelationID, "correlation-id", "", "按业务相关ID过滤")
	runListCmd.Flags().IntVarP(&runLimit, "limit", "l", 20, "返回数量限制")

	runResumeCmd.Flags().StringVarP(&runData, "data", "d", "", "恢复输入（JSON对象）")
	runSignalCmd.Flags().StringVarP(&runData, "data", "d", "", "信号负载（JSON对象）")
	runSignalCmd.Flags().BoolVar(&runByCorrelation, "correlation", false, "第一个参数按业务相关ID处理")
	runCancelCmd.Flags().StringVarP(&runReason, "reason", "r", "", "取消原因")
	runSyncCmd.Flags().IntVarP(&runVersion, "version", "v", 0, "定义版本号，0表示最新发布版本")
	runSyncCmd.Flags().StringVarP(&runData, "data", "d", "", "表单数据（JSON对象）")

	runCmd.AddCommand(runStartCmd, runGetCmd, runListCmd, runHistoryCmd, runResumeCmd, runSignalCmd, runCancelCmd, runSyncCmd)
}
