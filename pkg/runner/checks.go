package runner

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/wentf9/xops-underlay/pkg/logger"
	"github.com/wentf9/xops-underlay/pkg/models"
)

// Predicate 判断一次退出码为 0 的执行是否真的成功，返回 nil 表示成功
type Predicate func(res models.Result) error

// HealthCheck 步骤成功后执行的检查，例如服务崩溃后的恢复
type HealthCheck interface {
	Check(ctx context.Context, open Opener) error
}

// All 依次执行所有判断，返回第一个失败
func All(preds ...Predicate) Predicate {
	return func(res models.Result) error {
		for _, p := range preds {
			if p == nil {
				continue
			}
			if err := p(res); err != nil {
				return err
			}
		}
		return nil
	}
}

// MarkerPredicate 任意一行输出匹配 re 即视为失败
func MarkerPredicate(re *regexp.Regexp) Predicate {
	return func(res models.Result) error {
		for _, lines := range [][]string{res.Stdout, res.Stderr} {
			for _, l := range lines {
				if re.MatchString(l) {
					return fmt.Errorf("output contains failure marker: %q", l)
				}
			}
		}
		return nil
	}
}

const saltFailedPrefix = "Failed:"

// SaltFailedPredicate salt 在有 state 失败时也可能返回 0，
// 累加 stdout 中 "Failed:    N" 行的数字，大于 0 视为失败
func SaltFailedPredicate() Predicate {
	return func(res models.Result) error {
		failed := 0
		for _, l := range res.Stdout {
			if !strings.HasPrefix(l, saltFailedPrefix) {
				continue
			}
			n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(l, saltFailedPrefix)))
			if err != nil {
				return fmt.Errorf("unparsable salt summary line %q", l)
			}
			failed += n
		}
		if failed != 0 {
			return fmt.Errorf("salt returned exit code 0 while %d state(s) failed", failed)
		}
		return nil
	}
}

// ServiceCheck 检查服务是否在运行，不在运行则 stop/kill/start 后再次确认
type ServiceCheck struct {
	Service string
	Target  models.Target
	// RunningState 出现在 "service <name> status" 输出中表示服务正常，例如 "active (running)"
	RunningState string
	// VerifyCmd 重启后执行的命令，用于唤醒服务
	VerifyCmd string
	Log       logger.Logger
}

func (c ServiceCheck) statusCmd() string {
	return fmt.Sprintf("service %s status | grep -q '%s'", c.Service, c.RunningState)
}

func (c ServiceCheck) restartCmd() string {
	return fmt.Sprintf("service %[1]s stop; sleep 3; killall -9 %[1]s; service %[1]s start; sleep 5;", c.Service)
}

func (c ServiceCheck) Check(ctx context.Context, open Opener) error {
	if c.Service == "" || c.RunningState == "" {
		return errors.New("service check needs a service name and running state")
	}
	log := c.Log
	if log == nil {
		log = logger.Default()
	}
	sess, err := open.Open(ctx, c.Target)
	if err != nil {
		return err
	}
	defer sess.Close()

	res, err := sess.Execute(ctx, c.statusCmd())
	if err != nil {
		return err
	}
	if res.ExitCode == 0 {
		return nil
	}

	log.Info(fmt.Sprintf("%s is not in running state on the node %s, trying to start", c.Service, c.Target))
	if _, err := sess.Execute(ctx, c.restartCmd()); err != nil {
		return err
	}
	if c.VerifyCmd != "" {
		if res, err := sess.Execute(ctx, c.VerifyCmd); err != nil {
			return err
		} else if res.ExitCode != 0 {
			log.Warn("verify command failed after restart",
				logger.String("service", c.Service),
				logger.Int("exit_code", res.ExitCode))
		}
	}
	res, err = sess.Execute(ctx, c.statusCmd())
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("service %s is still not running on %s after restart", c.Service, c.Target)
	}
	return nil
}
