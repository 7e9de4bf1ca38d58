package sftp

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"
)

// Upload 上传文件或目录
// remotePath 为已存在的目录时，单个文件上传到该目录下
func (c *Client) Upload(ctx context.Context, localPath, remotePath string, progress ProgressCallback) error {
	info, err := os.Stat(localPath)
	if err != nil {
		return fmt.Errorf("stat local path failed: %w", err)
	}
	if info.IsDir() {
		return c.uploadDirectory(ctx, localPath, remotePath, progress)
	}
	if remoteStat, err := c.sftpClient.Stat(remotePath); err == nil && remoteStat.IsDir() {
		remotePath = c.JoinPath(remotePath, filepath.Base(localPath))
	}
	return c.uploadFile(ctx, localPath, remotePath, info.Size(), info.Mode(), progress)
}

// LocalSize 统计本地文件或目录的总字节数，用于显示进度
func LocalSize(localPath string) (int64, error) {
	var total int64
	err := filepath.Walk(localPath, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	return total, err
}

func (c *Client) uploadFile(ctx context.Context, localPath, remotePath string, size int64, mode os.FileMode, progress ProgressCallback) error {
	srcFile, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	dstFile, err := c.sftpClient.Create(remotePath)
	if err != nil {
		return fmt.Errorf("create remote file '%s': %w", remotePath, err)
	}
	defer dstFile.Close()

	if err := c.sftpClient.Chmod(remotePath, mode.Perm()); err != nil {
		return fmt.Errorf("chmod remote file '%s': %w", remotePath, err)
	}

	// 单线程或小文件直接流式传输
	if c.config.ThreadsPerFile <= 1 || size < c.config.ChunkSize {
		return streamTransfer(srcFile, dstFile, progress)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.config.ThreadsPerFile)
	chunkSize := c.config.ChunkSize

	for offset := int64(0); offset < size; offset += chunkSize {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			n := min(chunkSize, size-offset)
			buf := make([]byte, n)
			// ReadAt / WriteAt 都是并发安全的
			read, err := srcFile.ReadAt(buf, offset)
			if err != nil && err != io.EOF {
				return fmt.Errorf("read local at %d failed: %w", offset, err)
			}
			if read == 0 {
				return nil
			}
			if _, err := dstFile.WriteAt(buf[:read], offset); err != nil {
				return fmt.Errorf("write remote at %d failed: %w", offset, err)
			}
			if progress != nil {
				progress(read)
			}
			return nil
		})
	}
	return g.Wait()
}

func streamTransfer(r io.Reader, w io.Writer, progress ProgressCallback) error {
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if _, wErr := w.Write(buf[:n]); wErr != nil {
				return wErr
			}
			if progress != nil {
				progress(n)
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// uploadDirectory 目录顺序创建，文件按 ConcurrentFiles 并发上传
func (c *Client) uploadDirectory(ctx context.Context, localDir, remoteDir string, progress ProgressCallback) error {
	if err := c.MkdirAll(remoteDir); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.config.ConcurrentFiles)

	err := filepath.Walk(localDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		relPath, err := filepath.Rel(localDir, path)
		if err != nil {
			return err
		}
		remoteDest := c.JoinPath(remoteDir, filepath.ToSlash(relPath))
		if info.IsDir() {
			return c.MkdirAll(remoteDest)
		}
		g.Go(func() error {
			return c.uploadFile(ctx, path, remoteDest, info.Size(), info.Mode(), progress)
		})
		return nil
	})
	if waitErr := g.Wait(); err == nil {
		err = waitErr
	}
	return err
}
