package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	cmdutils "github.com/wentf9/xops-underlay/cmd/utils"
	"github.com/wentf9/xops-underlay/pkg/config"
	"github.com/wentf9/xops-underlay/pkg/logger"
	"github.com/wentf9/xops-underlay/pkg/models"
	"github.com/wentf9/xops-underlay/pkg/underlay"
)

var (
	configFile string
	debugMode  bool
	logFormat  string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "underlay [command] [flags]",
	Short: "underlay 管理测试环境节点的登录信息，并在节点上执行命令",
	Long: `underlay 读取节点登录信息列表(节点名、地址池、IP、用户、密码、私钥)，
按节点名或IP建立SSH会话，执行单条命令或带重试的命令序列，
并对 salt 的常见问题(退出码为0但有失败的state、服务崩溃)做兼容处理。`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initLogger("")
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	logger.Default().Sync()
	if err != nil {
		os.Exit(1)
	}
}

func initLogger(level string) {
	cfg := logger.Config{Level: level, Format: logFormat}
	if debugMode {
		cfg.Level = "debug"
	}
	logger.Init(cfg)
}

func openStore() config.Store {
	configPath, keyPath := cmdutils.GetConfigFilePath(configFile)
	return config.NewDefaultStore(configPath, keyPath)
}

func loadConfig() (*config.Configuration, error) {
	cfg, err := openStore().Load()
	if err != nil {
		return nil, fmt.Errorf("加载配置文件失败: %w", err)
	}
	if cfg.Log.Format != "" && logFormat == "" {
		logFormat = cfg.Log.Format
	}
	initLogger(cfg.Log.Level)
	return cfg, nil
}

// loadManager 加载配置并注册所有节点，需要复制密钥的节点会在这里建立连接
func loadManager(ctx context.Context) (*underlay.Manager, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return underlay.New(ctx, cfg)
}

// loadRegistry 只读的注册表，不复制密钥，不会连接任何节点
func loadRegistry(ctx context.Context) (*config.Registry, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	entries := make([]models.CredentialEntry, 0, len(cfg.Underlay.SSH))
	for _, e := range cfg.Underlay.SSH {
		e.KeysSourceHost = ""
		entries = append(entries, e)
	}
	r := config.NewRegistry()
	if err := r.Add(ctx, entries...); err != nil {
		return nil, err
	}
	return r, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "配置文件路径 (默认 $HOME/.underlay/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "开启调试模式")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "日志格式: console 或 json")
}
