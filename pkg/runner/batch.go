package runner

import (
	"context"

	"github.com/wentf9/xops-underlay/pkg/models"
	"github.com/wentf9/xops-underlay/pkg/utils"
)

type TaskFunc func(target models.Target) (models.Result, error)

// NodeResult 单个节点的执行结果
type NodeResult struct {
	Target models.Target
	Result models.Result
	Error  error
}

// RunParallel 在多个节点上并发执行 task，所有任务结束后关闭通道
func RunParallel(targets []models.Target, concurrency uint, task TaskFunc) <-chan NodeResult {
	wp := utils.NewWorkerPool(concurrency)
	// 缓冲区大小设为节点数量，防止阻塞 worker
	results := make(chan NodeResult, len(targets))
	go func() {
		for _, target := range targets {
			wp.Execute(func() {
				res, err := task(target)
				results <- NodeResult{Target: target, Result: res, Error: err}
			})
		}
		wp.Wait()
		close(results)
	}()
	return results
}

// RunAll 在多个节点上并发执行同一条命令，每个节点使用独立的会话
func (r *Runner) RunAll(ctx context.Context, cmd string, targets []models.Target, concurrency uint, opts ...RunOption) <-chan NodeResult {
	return RunParallel(targets, concurrency, func(target models.Target) (models.Result, error) {
		return r.Run(ctx, cmd, target, opts...)
	})
}
