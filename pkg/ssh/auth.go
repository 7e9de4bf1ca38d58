package ssh

import (
	"fmt"

	"golang.org/x/crypto/ssh"
)

// AuthMethod 定义获取 SSH 认证方法的接口
type AuthMethod interface {
	GetMethod() (ssh.AuthMethod, error)
}

// PasswordAuth 实现密码认证
type PasswordAuth struct {
	Password string
}

func (p *PasswordAuth) GetMethod() (ssh.AuthMethod, error) {
	return ssh.Password(p.Password), nil
}

// KeyAuth 实现私钥认证，Keys 为 PEM 内容
type KeyAuth struct {
	Keys []string
}

func (k *KeyAuth) GetMethod() (ssh.AuthMethod, error) {
	signers := make([]ssh.Signer, 0, len(k.Keys))
	for i, pem := range k.Keys {
		signer, err := ssh.ParsePrivateKey([]byte(pem))
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key #%d: %w", i+1, err)
		}
		signers = append(signers, signer)
	}
	return ssh.PublicKeys(signers...), nil
}

// authMethods 私钥优先，其次密码，和 OpenSSH 客户端的默认顺序一致
func authMethods(p Params) ([]ssh.AuthMethod, error) {
	var auths []AuthMethod
	if len(p.Keys) > 0 {
		auths = append(auths, &KeyAuth{Keys: p.Keys})
	}
	if p.Password != "" {
		auths = append(auths, &PasswordAuth{Password: p.Password})
	}
	if len(auths) == 0 {
		return nil, fmt.Errorf("no password or keys for %s@%s", p.Login, p.Host)
	}
	methods := make([]ssh.AuthMethod, 0, len(auths))
	for _, a := range auths {
		m, err := a.GetMethod()
		if err != nil {
			return nil, err
		}
		methods = append(methods, m)
	}
	return methods, nil
}

// ValidatePrivateKey 确认内容是可解析的私钥
func ValidatePrivateKey(pem []byte) error {
	_, err := ssh.ParseRawPrivateKey(pem)
	return err
}
