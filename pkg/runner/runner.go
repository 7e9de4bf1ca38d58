// Package runner 在节点上执行命令和带重试的命令序列
package runner

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/wentf9/xops-underlay/pkg/logger"
	"github.com/wentf9/xops-underlay/pkg/models"
	"github.com/wentf9/xops-underlay/pkg/ssh"
)

// DefaultSettle 每次执行前的等待时间
const DefaultSettle = 3 * time.Second

// Opener 根据查找条件打开会话，由 ssh.Connector 实现
type Opener interface {
	Open(ctx context.Context, target models.Target) (ssh.Session, error)
}

// Runner 执行命令并按预期退出码判断结果
type Runner struct {
	opener    Opener
	log       logger.Logger
	settle    time.Duration
	predicate Predicate
	checks    []HealthCheck
}

type Option func(*Runner)

func WithLogger(l logger.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.log = l
		}
	}
}

// WithSettle 设置序列中每次尝试前的等待时间
func WithSettle(d time.Duration) Option {
	return func(r *Runner) {
		if d >= 0 {
			r.settle = d
		}
	}
}

// WithPredicate 退出码为 0 时额外判断输出，返回错误视为本次尝试失败
func WithPredicate(p Predicate) Option {
	return func(r *Runner) {
		r.predicate = p
	}
}

// WithHealthChecks 每个步骤成功后执行的检查
func WithHealthChecks(checks ...HealthCheck) Option {
	return func(r *Runner) {
		r.checks = append(r.checks, checks...)
	}
}

func New(opener Opener, opts ...Option) *Runner {
	r := &Runner{
		opener: opener,
		log:    logger.Default(),
		settle: DefaultSettle,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type runOptions struct {
	sudo      bool
	expected  []int
	raise     bool
	errorInfo string
}

// RunOption 单次执行的选项
type RunOption func(*runOptions)

// WithSudo 以 root 身份执行
func WithSudo() RunOption {
	return func(o *runOptions) { o.sudo = true }
}

// Expect 设置可接受的退出码，默认只有 0
func Expect(codes ...int) RunOption {
	return func(o *runOptions) {
		if len(codes) > 0 {
			o.expected = slices.Clone(codes)
		}
	}
}

// NoRaise 退出码不符合预期时不返回错误，而是写入 Result.Failure
func NoRaise() RunOption {
	return func(o *runOptions) { o.raise = false }
}

// WithErrorInfo 附加到 UnexpectedExitCodeError 中的说明
func WithErrorInfo(info string) RunOption {
	return func(o *runOptions) { o.errorInfo = info }
}

func newRunOptions(opts []RunOption) runOptions {
	o := runOptions{expected: []int{0}, raise: true}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Run 在 target 上执行一条命令，会话在返回前关闭
// 查找失败和连接失败原样返回，退出码不在预期内返回 *UnexpectedExitCodeError
func (r *Runner) Run(ctx context.Context, cmd string, target models.Target, opts ...RunOption) (models.Result, error) {
	o := newRunOptions(opts)
	sess, err := r.opener.Open(ctx, target)
	if err != nil {
		return models.Result{}, err
	}
	defer sess.Close()
	return r.exec(ctx, sess, cmd, target, o)
}

// Sudo 等同于 Run(ctx, cmd, target, WithSudo(), ...)
func (r *Runner) Sudo(ctx context.Context, cmd string, target models.Target, opts ...RunOption) (models.Result, error) {
	return r.Run(ctx, cmd, target, append([]RunOption{WithSudo()}, opts...)...)
}

func (r *Runner) exec(ctx context.Context, sess ssh.Session, cmd string, target models.Target, o runOptions) (models.Result, error) {
	log := r.log.With(logger.String("target", target.String()), logger.Bool("sudo", o.sudo))
	log.Info("executing command", logger.String("cmd", cmd))

	var (
		res models.Result
		err error
	)
	if o.sudo {
		res, err = sess.ExecuteSudo(ctx, cmd)
	} else {
		res, err = sess.Execute(ctx, cmd)
	}
	if err != nil {
		return res, fmt.Errorf("execute %q on %s: %w", cmd, target, err)
	}
	log.Debug("command finished",
		logger.Int("exit_code", res.ExitCode),
		logger.Strings("stdout", res.Stdout),
		logger.Strings("stderr", res.Stderr))

	if slices.Contains(o.expected, res.ExitCode) {
		return res, nil
	}
	uerr := &UnexpectedExitCodeError{
		Cmd:      cmd,
		Target:   target,
		Expected: o.expected,
		Result:   res,
		Info:     o.errorInfo,
	}
	if o.raise {
		return res, uerr
	}
	log.Warn("unexpected exit code", logger.Int("exit_code", res.ExitCode), logger.Any("expected", o.expected))
	res.Failure = uerr
	return res, nil
}
