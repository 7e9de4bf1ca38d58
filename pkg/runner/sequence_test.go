package runner_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wentf9/xops-underlay/internal/fakessh"
	"github.com/wentf9/xops-underlay/pkg/config"
	"github.com/wentf9/xops-underlay/pkg/models"
	"github.com/wentf9/xops-underlay/pkg/runner"
)

func TestSequenceFailsAfterExactlyCountAttempts(t *testing.T) {
	r, tr := setup(t)
	tr.AddHost("10.0.0.2").Reply("false", fakessh.Exit(1))

	steps := []runner.Step{
		{Cmd: "false", Target: models.Node("cfg01"), Description: "always fails", Retry: &runner.Retry{Count: 3}},
		{Cmd: "never", Target: models.Node("cfg01")},
	}
	err := r.RunSequence(context.Background(), steps, "Deploy")
	var sf *runner.StepFailedError
	require.ErrorAs(t, err, &sf)
	assert.Equal(t, 3, sf.Attempts)
	assert.Equal(t, 1, sf.Index)
	assert.Equal(t, "Deploy", sf.Label)
	assert.Equal(t, "always fails", sf.Description)
	assert.Equal(t, 1, sf.Result.ExitCode)

	assert.Equal(t, []string{"false", "false", "false"}, tr.Commands("10.0.0.2"))
	assert.Equal(t, 0, tr.OpenSessions())
	assert.Equal(t, 1, tr.ClosedSessions())
}

func TestSequenceWaitsSettleAndDelay(t *testing.T) {
	assert.Equal(t, runner.Retry{Count: 1, Delay: time.Second}, runner.DefaultRetry)

	const settle, delay = 20 * time.Millisecond, 30 * time.Millisecond
	r, tr := setup(t, runner.WithSettle(settle))
	tr.AddHost("10.0.0.2").Reply("false", fakessh.Exit(1))

	steps := []runner.Step{{Cmd: "false", Target: models.Node("cfg01"), Retry: &runner.Retry{Count: 3, Delay: delay}}}
	start := time.Now()
	err := r.RunSequence(context.Background(), steps, "")
	elapsed := time.Since(start)

	var sf *runner.StepFailedError
	require.ErrorAs(t, err, &sf)
	assert.Equal(t, 3, sf.Attempts)
	// 每次尝试前等待 settle，两次尝试之间再等待 delay
	assert.GreaterOrEqual(t, elapsed, 3*settle+2*delay)
}

func TestSequenceZeroDelayRetriesImmediately(t *testing.T) {
	r, tr := setup(t)
	tr.AddHost("10.0.0.2").Reply("false", fakessh.Exit(1))

	steps := []runner.Step{{Cmd: "false", Target: models.Node("cfg01"), Retry: &runner.Retry{Count: 3}}}
	start := time.Now()
	require.Error(t, r.RunSequence(context.Background(), steps, ""))
	assert.Less(t, time.Since(start), runner.DefaultRetry.Delay)
	assert.Len(t, tr.Commands("10.0.0.2"), 3)
}

func TestSequenceDefaultsToSingleAttempt(t *testing.T) {
	r, tr := setup(t)
	tr.AddHost("10.0.0.2").Reply("false", fakessh.Exit(1))

	err := r.RunSequence(context.Background(), []runner.Step{{Cmd: "false", Target: models.Node("cfg01")}}, "")
	var sf *runner.StepFailedError
	require.ErrorAs(t, err, &sf)
	assert.Equal(t, 1, sf.Attempts)
	assert.Equal(t, runner.DefaultLabel, sf.Label)
	assert.Equal(t, "false", sf.Description)
	assert.Len(t, tr.Commands("10.0.0.2"), 1)
}

func TestSequenceSkipFailContinues(t *testing.T) {
	r, tr := setup(t)
	tr.AddHost("10.0.0.2").Reply("false", fakessh.Exit(1))
	tr.AddHost("10.0.0.3")

	steps := []runner.Step{
		{Cmd: "false", Target: models.Node("cfg01"), Retry: &runner.Retry{Count: 2}, SkipFail: true},
		{Cmd: "true", Target: models.Node("ctl01"), Sudo: true},
	}
	require.NoError(t, r.RunSequence(context.Background(), steps, "Deploy"))
	assert.Equal(t, []fakessh.Call{
		{Host: "10.0.0.2", Cmd: "false"},
		{Host: "10.0.0.2", Cmd: "false"},
		{Host: "10.0.0.3", Cmd: "true", Sudo: true},
	}, tr.Calls())
	assert.Equal(t, 0, tr.OpenSessions())
}

func TestSequenceSucceedsOnRetry(t *testing.T) {
	r, tr := setup(t)
	tr.AddHost("10.0.0.2").Reply("flaky", fakessh.Exit(1), fakessh.Ok())

	steps := []runner.Step{{Cmd: "flaky", Target: models.Node("cfg01"), Retry: &runner.Retry{Count: 5}}}
	require.NoError(t, r.RunSequence(context.Background(), steps, "Deploy"))
	assert.Len(t, tr.Commands("10.0.0.2"), 2)
}

func TestSequenceSaltFailedMarker(t *testing.T) {
	r, tr := setup(t, runner.WithPredicate(runner.SaltFailedPredicate()))
	cmd := "salt-call state.apply"
	tr.AddHost("10.0.0.2").Reply(cmd,
		fakessh.Ok("Succeeded: 10", "Failed:    1"),
		fakessh.Ok("Succeeded: 11", "Failed:    0"),
	)

	// 退出码为 0 但有失败的 state
	err := r.RunSequence(context.Background(), []runner.Step{{Cmd: cmd, Target: models.Node("cfg01")}}, "Salt")
	var sf *runner.StepFailedError
	require.ErrorAs(t, err, &sf)
	assert.Equal(t, 0, sf.Result.ExitCode)

	steps := []runner.Step{{Cmd: cmd, Target: models.Node("cfg01"), Retry: &runner.Retry{Count: 2}}}
	require.NoError(t, r.RunSequence(context.Background(), steps, "Salt"))
}

func TestSequenceLookupAndTransportErrorsAreFatal(t *testing.T) {
	r, tr := setup(t)
	broken := errors.New("channel closed")
	tr.AddHost("10.0.0.2").Fail("true", broken)
	ctx := context.Background()

	// SkipFail 不影响查找失败
	err := r.RunSequence(ctx, []runner.Step{{Cmd: "true", Target: models.Node("cmp01"), SkipFail: true}}, "")
	var nf *config.NotFoundError
	require.ErrorAs(t, err, &nf)

	steps := []runner.Step{{Cmd: "true", Target: models.Node("cfg01"), Retry: &runner.Retry{Count: 3}, SkipFail: true}}
	err = r.RunSequence(ctx, steps, "")
	assert.ErrorIs(t, err, broken)
	assert.Len(t, tr.Commands("10.0.0.2"), 1)
	assert.Equal(t, 0, tr.OpenSessions())
}

func TestSequenceCancelled(t *testing.T) {
	r, tr := setup(t)
	tr.AddHost("10.0.0.2")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := r.RunSequence(ctx, []runner.Step{{Cmd: "true", Target: models.Node("cfg01")}}, "")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, tr.Commands("10.0.0.2"))
	assert.Equal(t, 0, tr.OpenSessions())
}

func TestSequenceHealthCheck(t *testing.T) {
	check := runner.ServiceCheck{
		Service:      "salt-master",
		Target:       models.HostTarget("10.0.0.2"),
		RunningState: "active (running)",
		VerifyCmd:    "salt-call pillar.items",
	}
	status := "service salt-master status | grep -q 'active (running)'"
	restart := "service salt-master stop; sleep 3; killall -9 salt-master; service salt-master start; sleep 5;"

	t.Run("recovered", func(t *testing.T) {
		r, tr := setup(t, runner.WithHealthChecks(check))
		tr.AddHost("10.0.0.2").Reply(status, fakessh.Exit(1), fakessh.Ok())

		require.NoError(t, r.RunSequence(context.Background(), []runner.Step{{Cmd: "true", Target: models.Node("cfg01")}}, ""))
		assert.Equal(t, []string{"true", status, restart, "salt-call pillar.items", status}, tr.Commands("10.0.0.2"))
		assert.Equal(t, 0, tr.OpenSessions())
	})

	t.Run("still down", func(t *testing.T) {
		r, tr := setup(t, runner.WithHealthChecks(check))
		tr.AddHost("10.0.0.2").Reply(status, fakessh.Exit(1))

		err := r.RunSequence(context.Background(), []runner.Step{{Cmd: "true", Target: models.Node("cfg01")}}, "")
		var sf *runner.StepFailedError
		require.ErrorAs(t, err, &sf)
		assert.ErrorContains(t, err, "still not running")

		// SkipFail 同样适用于健康检查失败
		steps := []runner.Step{{Cmd: "true", Target: models.Node("cfg01"), SkipFail: true}}
		assert.NoError(t, r.RunSequence(context.Background(), steps, ""))
	})
}
