package cmd

import (
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/wentf9/xops-underlay/pkg/sftp"
)

func NewCmdUpload() *cobra.Command {
	var quiet bool
	cmd := &cobra.Command{
		Use:   "upload <node_name> <local_path> <remote_path>",
		Short: "上传本地文件或目录到节点",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			node, local, remote := args[0], args[1], args[2]
			size, err := sftp.LocalSize(local)
			if err != nil {
				return fmt.Errorf("读取本地路径失败: %w", err)
			}
			m, err := loadManager(cmd.Context())
			if err != nil {
				return err
			}

			var progress sftp.ProgressCallback
			if !quiet {
				bar := progressbar.DefaultBytes(size, "Uploading")
				defer bar.Finish()
				progress = func(n int) {
					bar.Add(n)
				}
			}
			return m.DirUpload(cmd.Context(), node, local, remote, progress)
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "不显示进度条")
	return cmd
}

func init() {
	rootCmd.AddCommand(NewCmdUpload())
}
