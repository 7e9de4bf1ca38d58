package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wentf9/xops-underlay/pkg/models"
	"github.com/wentf9/xops-underlay/pkg/runner"
	"github.com/wentf9/xops-underlay/pkg/underlay"
)

type ExecOptions struct {
	NodeName    string
	Host        string
	AddressPool string
	Command     string
	Sudo        bool
	Expect      []int
	NoRaise     bool
	All         bool
	Parallel    uint
}

func NewExecOptions() *ExecOptions {
	return &ExecOptions{
		Expect:   []int{0},
		Parallel: 5,
	}
}

func NewCmdExec() *cobra.Command {
	o := NewExecOptions()
	cmd := &cobra.Command{
		Use:   "exec [flags] [command]",
		Short: "在一个或所有节点上执行命令",
		Long: `在节点上执行命令，退出码不在 --expect 中时返回错误。
用法示例:
underlay exec -n cfg01 -c "salt-key -L"
underlay exec -H 10.0.0.3 -s -- apt-get update
underlay exec --all --parallel 10 -c uptime`,
		RunE: func(cmd *cobra.Command, args []string) error {
			o.Complete(args)
			if err := o.Validate(); err != nil {
				return err
			}
			return o.Run(cmd.Context(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&o.NodeName, "node", "n", "", "节点名")
	cmd.Flags().StringVarP(&o.Host, "host", "H", "", "节点IP")
	cmd.Flags().StringVar(&o.AddressPool, "pool", "", "地址池")
	cmd.Flags().StringVarP(&o.Command, "cmd", "c", "", "要执行的命令")
	cmd.Flags().BoolVarP(&o.Sudo, "sudo", "s", false, "使用sudo执行")
	cmd.Flags().IntSliceVar(&o.Expect, "expect", o.Expect, "可接受的退出码")
	cmd.Flags().BoolVar(&o.NoRaise, "no-raise", false, "退出码不符合预期时只打印警告")
	cmd.Flags().BoolVar(&o.All, "all", false, "在所有节点上执行")
	cmd.Flags().UintVar(&o.Parallel, "parallel", o.Parallel, "并行执行的节点数")

	cmd.MarkFlagsMutuallyExclusive("node", "host", "all")
	return cmd
}

func (o *ExecOptions) Complete(args []string) {
	if o.Command == "" && len(args) > 0 {
		o.Command = strings.Join(args, " ")
	}
}

func (o *ExecOptions) Validate() error {
	if o.Command == "" {
		return errors.New("必须指定要执行的命令")
	}
	if o.NodeName == "" && o.Host == "" && !o.All {
		return errors.New("必须指定节点名、IP或 --all")
	}
	return nil
}

func (o *ExecOptions) runOptions() []runner.RunOption {
	opts := []runner.RunOption{runner.Expect(o.Expect...)}
	if o.Sudo {
		opts = append(opts, runner.WithSudo())
	}
	if o.NoRaise {
		opts = append(opts, runner.NoRaise())
	}
	return opts
}

func (o *ExecOptions) Run(ctx context.Context, out io.Writer) error {
	m, err := loadManager(ctx)
	if err != nil {
		return err
	}
	if o.All {
		return o.runAll(ctx, m, out)
	}

	target := models.Target{NodeName: o.NodeName, Host: o.Host, AddressPool: o.AddressPool}
	res, err := m.Runner().Run(ctx, o.Command, target, o.runOptions()...)
	printResult(out, target, res, err)
	return err
}

func (o *ExecOptions) runAll(ctx context.Context, m *underlay.Manager, out io.Writer) error {
	var targets []models.Target
	for _, name := range m.NodeNames() {
		targets = append(targets, models.Target{NodeName: name, AddressPool: o.AddressPool})
	}
	failed := 0
	for r := range m.Runner().RunAll(ctx, o.Command, targets, o.Parallel, o.runOptions()...) {
		printResult(out, r.Target, r.Result, r.Error)
		if r.Error != nil {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d/%d 个节点执行失败", failed, len(targets))
	}
	return nil
}

func printResult(out io.Writer, target models.Target, res models.Result, err error) {
	switch {
	case err != nil:
		fmt.Fprintf(out, "[ERROR] %s\n------------\n%s\n错误: %v\n", target, res.StdoutString(), err)
	case res.Failure != nil:
		fmt.Fprintf(out, "[WARNING] %s (exit %d)\n------------\n%s\n", target, res.ExitCode, res.StdoutString())
	default:
		fmt.Fprintf(out, "[SUCCESS] %s\n------------\n%s\n", target, res.StdoutString())
	}
}

func init() {
	rootCmd.AddCommand(NewCmdExec())
}
