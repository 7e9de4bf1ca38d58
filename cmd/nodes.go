package cmd

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"
)

func NewCmdNodes() *cobra.Command {
	var showRoles bool
	cmd := &cobra.Command{
		Use:   "nodes",
		Short: "列出所有节点名",
		Long:  `按注册顺序列出配置中的节点名，同名节点只显示一次。`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := loadRegistry(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, name := range r.NodeNames() {
				if !showRoles {
					fmt.Fprintln(out, name)
					continue
				}
				var roles []string
				for _, e := range r.Entries() {
					if e.NodeName != name {
						continue
					}
					for _, role := range e.Roles {
						if !slices.Contains(roles, role) {
							roles = append(roles, role)
						}
					}
				}
				fmt.Fprintf(out, "%s\t%s\n", name, strings.Join(roles, ","))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showRoles, "roles", false, "同时显示节点的角色")
	return cmd
}

func NewCmdHost() *cobra.Command {
	var pool string
	cmd := &cobra.Command{
		Use:   "host <node_name>",
		Short: "显示节点的IP",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := loadRegistry(cmd.Context())
			if err != nil {
				return err
			}
			host, err := r.HostByNodeName(args[0], pool)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), host)
			return nil
		},
	}
	cmd.Flags().StringVar(&pool, "pool", "", "地址池")
	return cmd
}

func init() {
	rootCmd.AddCommand(NewCmdNodes())
	rootCmd.AddCommand(NewCmdHost())
}
