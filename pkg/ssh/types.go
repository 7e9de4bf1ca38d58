package ssh

import (
	"context"
	"io"

	"github.com/wentf9/xops-underlay/pkg/models"
	"github.com/wentf9/xops-underlay/pkg/sftp"
)

// Params 建立会话所需的连接参数
type Params struct {
	Host     string
	Port     int
	Login    string
	Password string
	Keys     []string // PEM 私钥
}

// Session 一个已认证的远程执行通道，使用完必须 Close
type Session interface {
	// Execute 执行命令，非 0 退出码不算错误，只有传输层失败才返回 error
	Execute(ctx context.Context, cmd string) (models.Result, error)
	// ExecuteSudo 以 sudo 执行，登录密码从 stdin 传入
	ExecuteSudo(ctx context.Context, cmd string) (models.Result, error)
	Upload(ctx context.Context, localPath, remotePath string, progress sftp.ProgressCallback) error
	Exists(path string) (bool, error)
	Open(path string) (io.ReadCloser, error)
	Close() error
}

// Transport 负责真正的网络连接
type Transport interface {
	Connect(ctx context.Context, p Params) (Session, error)
}
