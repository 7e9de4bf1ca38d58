package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/wentf9/xops-underlay/pkg/logger"
	"github.com/wentf9/xops-underlay/pkg/models"
	"github.com/wentf9/xops-underlay/pkg/ssh"
)

// DefaultLabel 未指定标签时横幅中使用的名称
const DefaultLabel = "Command"

// Retry 步骤的重试策略
// Count 是总尝试次数，小于 1 按 1 处理
// Delay 是两次尝试之间的间隔，零值表示立即重试。步骤文件里省略 delay 时
// 取 DefaultRetry.Delay，在代码里构造 Retry 需要显式设置
type Retry struct {
	Count int
	Delay time.Duration
}

// DefaultRetry 未配置重试时只执行一次，步骤文件中 delay 的缺省值也取自这里
var DefaultRetry = Retry{Count: 1, Delay: time.Second}

// Step 命令序列中的一个步骤
type Step struct {
	Cmd         string
	Target      models.Target
	Description string
	Retry       *Retry
	// SkipFail 用完重试次数后记录错误并继续执行后面的步骤
	SkipFail bool
	Sudo     bool
}

func (s Step) describe() string {
	if s.Description != "" {
		return s.Description
	}
	return s.Cmd
}

func (s Step) retry() Retry {
	if s.Retry == nil {
		return DefaultRetry
	}
	r := *s.Retry
	if r.Count < 1 {
		r.Count = 1
	}
	if r.Delay < 0 {
		r.Delay = 0
	}
	return r
}

// retryPolicy 固定间隔，最多 Count 次尝试
func retryPolicy(ctx context.Context, rt Retry) backoff.BackOffContext {
	// WithMaxRetries(0) 不限制次数，只尝试一次时直接停止
	var b backoff.BackOff = &backoff.StopBackOff{}
	if rt.Count > 1 {
		b = backoff.WithMaxRetries(backoff.NewConstantBackOff(rt.Delay), uint64(rt.Count-1))
	}
	return backoff.WithContext(b, ctx)
}

// RunSequence 依次执行步骤
// 失败的步骤按各自的策略重试，用完次数后 SkipFail 的步骤被跳过，
// 否则返回 *StepFailedError 并不再执行后面的步骤
// 查找失败、连接失败和传输错误不重试，直接返回
func (r *Runner) RunSequence(ctx context.Context, steps []Step, label string) error {
	if label == "" {
		label = DefaultLabel
	}
	log := r.log.With(logger.String("run_id", uuid.NewString()), logger.String("label", label))

	failed := 0
	for i, step := range steps {
		err := r.runStep(ctx, log, label, i+1, step)
		if err == nil {
			continue
		}
		var sf *StepFailedError
		if step.SkipFail && errors.As(err, &sf) {
			failed++
			log.Error(fmt.Sprintf(" === SKIP FAILED STEP [ %s #%d ] ===", label, i+1), logger.Err(err))
			continue
		}
		return err
	}
	log.Info("sequence finished", logger.Int("steps", len(steps)), logger.Int("skipped", failed))
	return nil
}

func (r *Runner) runStep(ctx context.Context, log logger.Logger, label string, index int, step Step) error {
	desc := step.describe()
	log.Info(fmt.Sprintf(" === [ %s #%d ] %s ===", label, index, desc),
		logger.String("target", step.Target.String()),
		logger.String("cmd", step.Cmd))

	sess, err := r.opener.Open(ctx, step.Target)
	if err != nil {
		return err
	}
	defer sess.Close()

	rt := step.retry()
	o := runOptions{expected: []int{0}, raise: false, sudo: step.Sudo}
	var (
		last     models.Result
		attempts int
		fatal    error
	)
	op := func() error {
		attempts++
		if err := sleepCtx(ctx, r.settle); err != nil {
			fatal = err
			return backoff.Permanent(err)
		}
		res, err := r.exec(ctx, sess, step.Cmd, step.Target, o)
		if err != nil {
			fatal = err
			return backoff.Permanent(err)
		}
		last = res
		if res.Failure != nil {
			return res.Failure
		}
		if r.predicate != nil {
			if err := r.predicate(res); err != nil {
				log.Error("command reported failure despite zero exit code",
					logger.String("cmd", step.Cmd), logger.Err(err))
				return err
			}
		}
		return nil
	}
	notify := func(err error, delay time.Duration) {
		log.Info(fmt.Sprintf(" === RETRY (%d/%d) ===", rt.Count-attempts, rt.Count),
			logger.String("reason", err.Error()),
			logger.Duration("delay", delay))
	}

	err = backoff.RetryNotify(op, retryPolicy(ctx, rt), notify)
	if fatal != nil {
		return fatal
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &StepFailedError{
			Label:       label,
			Index:       index,
			Description: desc,
			Attempts:    attempts,
			Result:      last,
			Err:         err,
		}
	}

	for _, hc := range r.checks {
		if err := hc.Check(ctx, r.opener); err != nil {
			return &StepFailedError{
				Label:       label,
				Index:       index,
				Description: desc,
				Attempts:    attempts,
				Result:      last,
				Err:         fmt.Errorf("health check: %w", err),
			}
		}
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

var _ Opener = (*ssh.Connector)(nil)
