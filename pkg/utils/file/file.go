package file

import (
	"os"
	"path/filepath"
)

// WriteFileRecursive 创建父目录(权限 0700)后写入文件，已存在的文件会被截断
// 文件的权限始终是 perm，即使文件之前已经存在
func WriteFileRecursive(filePath string, content []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(filePath), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(filePath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := f.Write(content); err != nil {
		f.Close()
		return err
	}
	if err := f.Chmod(perm); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
