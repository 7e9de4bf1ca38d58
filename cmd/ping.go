package cmd

import (
	"context"
	"fmt"
	"net"
	"slices"
	"strconv"
	"time"

	ping "github.com/prometheus-community/pro-bing"
	"github.com/spf13/cobra"

	cmdutils "github.com/wentf9/xops-underlay/cmd/utils"
	"github.com/wentf9/xops-underlay/pkg/models"
	"github.com/wentf9/xops-underlay/pkg/utils"
)

type PingOptions struct {
	AddressPool string
	TCP         bool
	Count       int
	Timeout     time.Duration
	Privileged  bool
	Parallel    uint
}

type pingResult struct {
	entry models.CredentialEntry
	ok    bool
	info  string
}

func NewCmdPing() *cobra.Command {
	o := &PingOptions{Count: 3, Timeout: 5 * time.Second, Parallel: 10}
	cmd := &cobra.Command{
		Use:   "ping [node_name|host[:port]]",
		Short: "检查节点是否可达",
		Long: `该命令有两种工作模式:
1. ICMP Ping (默认):
   向节点的IP发送ICMP请求，在 Linux 上使用raw socket需要root权限，
   没有权限时使用 --privileged=false 走UDP方式。
2. TCP端口检查 (--tcp):
   尝试连接节点的SSH端口。

不指定节点名时检查所有节点；参数不是已注册的节点名时按 host[:port] 地址检查。`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := loadRegistry(cmd.Context())
			if err != nil {
				return err
			}
			var target string
			if len(args) == 1 {
				target = args[0]
			}
			entries := o.selectTargets(r.Entries(), target)
			if len(entries) == 0 {
				return fmt.Errorf("没有匹配的节点")
			}
			return o.Run(cmd.Context(), cmd, entries)
		},
	}
	cmd.Flags().StringVar(&o.AddressPool, "pool", "", "只检查指定地址池")
	cmd.Flags().BoolVar(&o.TCP, "tcp", false, "检查SSH端口而不是ICMP")
	cmd.Flags().IntVar(&o.Count, "count", o.Count, "ICMP包数量")
	cmd.Flags().DurationVar(&o.Timeout, "timeout", o.Timeout, "每个节点的超时时间")
	cmd.Flags().BoolVar(&o.Privileged, "privileged", true, "使用raw socket发送ICMP")
	cmd.Flags().UintVar(&o.Parallel, "parallel", o.Parallel, "并行检查的节点数")
	return cmd
}

// selectTargets 按节点名和地址池过滤，节点名不存在时把参数当作地址
func (o *PingOptions) selectTargets(all []models.CredentialEntry, target string) []models.CredentialEntry {
	var entries []models.CredentialEntry
	for _, e := range all {
		if target != "" && e.NodeName != target {
			continue
		}
		if o.AddressPool != "" && e.AddressPool != o.AddressPool {
			continue
		}
		entries = append(entries, e)
	}
	if target != "" && !slices.ContainsFunc(all, func(e models.CredentialEntry) bool { return e.NodeName == target }) {
		host, port := cmdutils.ParseAddr(target, models.DefaultPort)
		entries = append(entries, models.CredentialEntry{NodeName: "-", Host: host, Port: port})
	}
	return entries
}

func (o *PingOptions) Run(ctx context.Context, cmd *cobra.Command, entries []models.CredentialEntry) error {
	results := make([]pingResult, len(entries))
	wp := utils.NewWorkerPool(o.Parallel)
	for i, e := range entries {
		wp.Execute(func() {
			if o.TCP {
				results[i] = o.tcpCheck(ctx, e)
			} else {
				results[i] = o.icmpCheck(ctx, e)
			}
		})
	}
	wp.Wait()

	out := cmd.OutOrStdout()
	down := 0
	for _, r := range results {
		state := "UP"
		if !r.ok {
			state = "DOWN"
			down++
		}
		fmt.Fprintf(out, "%-6s %-20s %-15s %s\n", state, r.entry.NodeName, r.entry.Host, r.info)
	}
	if down > 0 {
		return fmt.Errorf("%d/%d 个节点不可达", down, len(results))
	}
	return nil
}

func (o *PingOptions) tcpCheck(ctx context.Context, e models.CredentialEntry) pingResult {
	address := net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
	d := net.Dialer{Timeout: o.Timeout}
	start := time.Now()
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return pingResult{entry: e, info: err.Error()}
	}
	conn.Close()
	return pingResult{entry: e, ok: true, info: fmt.Sprintf("port %d open (%v)", e.Port, time.Since(start).Round(time.Millisecond))}
}

func (o *PingOptions) icmpCheck(ctx context.Context, e models.CredentialEntry) pingResult {
	pinger, err := ping.NewPinger(e.Host)
	if err != nil {
		return pingResult{entry: e, info: fmt.Sprintf("创建pinger失败: %v", err)}
	}
	pinger.SetPrivileged(o.Privileged)
	pinger.Count = o.Count
	pinger.Interval = 200 * time.Millisecond
	pinger.Timeout = o.Timeout
	if err := pinger.RunWithContext(ctx); err != nil {
		return pingResult{entry: e, info: err.Error()}
	}
	stats := pinger.Statistics()
	info := fmt.Sprintf("%d/%d received, %.0f%% loss, avg %v",
		stats.PacketsRecv, stats.PacketsSent, stats.PacketLoss, stats.AvgRtt)
	return pingResult{entry: e, ok: stats.PacketsRecv > 0, info: info}
}

func init() {
	rootCmd.AddCommand(NewCmdPing())
}
