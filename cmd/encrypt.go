package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	cmdutils "github.com/wentf9/xops-underlay/cmd/utils"
	"github.com/wentf9/xops-underlay/pkg/crypto"
)

func NewCmdEncrypt() *cobra.Command {
	var write bool
	cmd := &cobra.Command{
		Use:   "encrypt [--write]",
		Short: "加密密码",
		Long: `不带参数时从终端读取一个密码，输出可以写入配置文件的 ENC: 密文。
使用 --write 时加密配置文件中所有明文密码并写回文件。
密钥文件不存在时会自动生成。`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if write {
				store := openStore()
				cfg, err := store.LoadRaw()
				if err != nil {
					return fmt.Errorf("加载配置文件失败: %w", err)
				}
				plain := 0
				for _, e := range cfg.Underlay.SSH {
					if e.Password != "" && !crypto.IsEncrypted(e.Password) {
						plain++
					}
				}
				if err := store.Save(cfg); err != nil {
					return err
				}
				fmt.Fprintf(out, "已加密 %d 个密码\n", plain)
				return nil
			}

			secret, err := cmdutils.ReadPasswordFromTerminal("请输入要加密的密码: ")
			if err != nil {
				return err
			}
			if secret == "" {
				return errors.New("密码不能为空")
			}
			_, keyPath := cmdutils.GetConfigFilePath(configFile)
			key, err := crypto.LoadOrGenerateKey(keyPath)
			if err != nil {
				return err
			}
			c, err := crypto.NewCrypter(key)
			if err != nil {
				return err
			}
			enc, err := c.Encrypt(secret)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, enc)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&write, "write", "w", false, "加密配置文件中的明文密码")
	return cmd
}

func init() {
	rootCmd.AddCommand(NewCmdEncrypt())
}
