package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wentf9/xops-underlay/pkg/runner"
)

func NewCmdSteps() *cobra.Command {
	var label string
	cmd := &cobra.Command{
		Use:   "steps <file.yaml>",
		Short: "按顺序执行步骤文件中的命令",
		Long: `步骤文件是一个 YAML 列表，每一项包含:
  cmd          要执行的命令 (必填)
  node_name    节点名，或使用 host 指定IP
  address_pool 地址池
  description  日志中显示的说明
  retry        {count: 尝试次数, delay: 失败后等待的秒数}
  skip_fail    用完重试次数后继续执行后面的步骤
  sudo         使用sudo执行`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, err := runner.LoadSteps(args[0])
			if err != nil {
				return err
			}
			m, err := loadManager(cmd.Context())
			if err != nil {
				return err
			}
			if err := m.ExecuteCommands(cmd.Context(), steps, label); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d 个步骤执行完成\n", len(steps))
			return nil
		},
	}
	cmd.Flags().StringVarP(&label, "label", "l", runner.DefaultLabel, "日志中的序列名称")
	return cmd
}

func init() {
	rootCmd.AddCommand(NewCmdSteps())
}
