package utils

import (
	"fmt"
	"net"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/term"
)

const (
	ConfigDir      = ".underlay"
	ConfigFileName = "config.yaml"
	ConfigKeyName  = "key"
)

// GetConfigFilePath 返回配置文件和密钥文件路径
// 指定了配置文件时，密钥文件放在同一目录下
func GetConfigFilePath(override string) (configPath, keyPath string) {
	if override != "" {
		return override, filepath.Join(filepath.Dir(override), ConfigKeyName)
	}
	u, err := user.Current()
	if err != nil {
		return ConfigFileName, ConfigKeyName
	}
	dir := filepath.Join(u.HomeDir, ConfigDir)
	return filepath.Join(dir, ConfigFileName), filepath.Join(dir, ConfigKeyName)
}

// ParseAddr 解析 host[:port] 格式的字符串，端口缺省时返回 defaultPort
func ParseAddr(input string, defaultPort int) (string, int) {
	input = strings.TrimSpace(input)
	host, portStr, err := net.SplitHostPort(input)
	if err != nil {
		return strings.Trim(input, "[]"), defaultPort
	}
	p, err := strconv.Atoi(portStr)
	if err != nil || p <= 0 || p > 65535 {
		return input, defaultPort
	}
	return host, p
}

// ReadPasswordFromTerminal 从终端安全地读取密码
func ReadPasswordFromTerminal(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("stdin is not a terminal")
	}
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr) // ReadPassword 不会打印换行符
	if err != nil {
		return "", err
	}
	return string(password), nil
}
