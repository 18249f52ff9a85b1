package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/LENAX/workflow-engine/pkg/cli/output"
)

// stepTypesCmd 列出步骤类型
var stepTypesCmd = &cobra.Command{
	Use:   "step-types",
	Short: "列出服务端注册的步骤类型",
	RunE: func(cmd *cobra.Command, args []string) error {
		p := newPrinter(cmd)
		result, err := newClient().ListStepTypes()
		if err != nil {
			return fail(p, "查询步骤类型", err)
		}
		if p.JSON {
			return p.PrintJSON(result)
		}
		table := output.NewTable("TYPE", "NAME", "PAUSE_SIGNALS", "DESCRIPTION")
		for _, st := range result.Items {
			table.AddRow(st.Type, dash(st.DisplayName), dash(strings.Join(st.PauseSignals, ",")), dash(st.Description))
		}
		table.Render(p.Out)
		return nil
	},
}
