package runner

import (
	"fmt"

	"github.com/wentf9/xops-underlay/pkg/models"
)

// UnexpectedExitCodeError 单条命令的退出码不在预期范围内
type UnexpectedExitCodeError struct {
	Cmd      string
	Target   models.Target
	Expected []int
	Result   models.Result
	// Info 调用方附加的说明
	Info string
}

func (e *UnexpectedExitCodeError) Error() string {
	msg := fmt.Sprintf("command %q on %s exited with code %d, expected %v", e.Cmd, e.Target, e.Result.ExitCode, e.Expected)
	if e.Info != "" {
		msg += ": " + e.Info
	}
	if len(e.Result.Stderr) > 0 {
		msg += "\nstderr:\n" + e.Result.StderrString()
	}
	return msg
}

// StepFailedError 步骤用完重试次数仍未成功
type StepFailedError struct {
	Label       string
	Index       int // 从 1 开始
	Description string
	Attempts    int
	Result      models.Result // 最后一次执行的结果
	Err         error
}

func (e *StepFailedError) Error() string {
	return fmt.Sprintf("[ %s #%d ] step '%s' failed after %d attempt(s): %v",
		e.Label, e.Index, e.Description, e.Attempts, e.Err)
}

func (e *StepFailedError) Unwrap() error {
	return e.Err
}
