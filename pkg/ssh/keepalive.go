package ssh

import (
	"time"

	"golang.org/x/crypto/ssh"
)

// StartKeepAlive 定期向 SSH Server 发送心跳，失败时关闭连接
// done 关闭后协程退出
func StartKeepAlive(client *ssh.Client, interval time.Duration, done <-chan struct{}, fallback func(err error)) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
			}
			// keepalive@openssh.com 是 OpenSSH 标准的心跳请求类型
			if _, _, err := client.SendRequest("keepalive@openssh.com", true, nil); err != nil {
				// 关闭 Client，正在执行的命令会收到错误
				client.Close()
				if fallback != nil {
					fallback(err)
				}
				return
			}
		}
	}()
}
