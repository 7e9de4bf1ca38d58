package utils

import (
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/wentf9/xops-underlay/pkg/logger"
)

// DefaultConcurrency 未指定并发数时同时操作的节点数
const DefaultConcurrency = 5

// WorkerPool 控制并发任务的执行
type WorkerPool interface {
	Execute(task func())
	Wait()
}

type defaultWorkerPool struct {
	limit        chan struct{}
	wg           sync.WaitGroup
	panicHandler func(any)
}

type Option func(*defaultWorkerPool)

// WithPanicHandler 自定义 panic 处理逻辑，默认记录日志后继续执行其他任务
func WithPanicHandler(handler func(any)) Option {
	return func(wp *defaultWorkerPool) {
		if handler != nil {
			wp.panicHandler = handler
		}
	}
}

func NewWorkerPool(maxConcurrent uint, options ...Option) WorkerPool {
	if maxConcurrent == 0 {
		maxConcurrent = DefaultConcurrency
	}
	wp := &defaultWorkerPool{
		limit: make(chan struct{}, maxConcurrent),
		panicHandler: func(r any) {
			logger.Default().Error("worker task panicked",
				logger.String("panic", fmt.Sprint(r)),
				logger.String("stack", string(debug.Stack())))
		},
	}
	for _, option := range options {
		option(wp)
	}
	return wp
}

// Execute 提交一个任务到工作池，和 sync.WaitGroup.Go() 用法一致
func (wp *defaultWorkerPool) Execute(task func()) {
	wp.wg.Go(func() {
		wp.limit <- struct{}{}
		defer func() { <-wp.limit }()
		defer func() {
			if r := recover(); r != nil {
				wp.panicHandler(r)
			}
		}()
		task()
	})
}

func (wp *defaultWorkerPool) Wait() {
	wp.wg.Wait()
}
