package crypto

import (
	"crypto/rand"
	"fmt"
	"os"

	"github.com/wentf9/xops-underlay/pkg/utils/file"
)

const KeySize = 32 // AES-256

// LoadKey 读取已有的密钥文件
func LoadKey(path string) ([]byte, error) {
	key, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("invalid key file size in '%s': expected %d, got %d", path, KeySize, len(key))
	}
	return key, nil
}

// LoadOrGenerateKey 密钥文件不存在时生成一个新的随机密钥，权限 0600
func LoadOrGenerateKey(path string) ([]byte, error) {
	key, err := LoadKey(path)
	if err == nil {
		return key, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	key = make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate random key: %w", err)
	}
	if err := file.WriteFileRecursive(path, key, 0600); err != nil {
		return nil, fmt.Errorf("failed to save key file: %w", err)
	}
	return key, nil
}
