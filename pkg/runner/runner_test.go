package runner_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wentf9/xops-underlay/internal/fakessh"
	"github.com/wentf9/xops-underlay/pkg/config"
	"github.com/wentf9/xops-underlay/pkg/logger"
	"github.com/wentf9/xops-underlay/pkg/models"
	"github.com/wentf9/xops-underlay/pkg/runner"
	"github.com/wentf9/xops-underlay/pkg/ssh"
)

func setup(t *testing.T, opts ...runner.Option) (*runner.Runner, *fakessh.Transport) {
	t.Helper()
	tr := fakessh.New()
	reg := config.NewRegistry(config.WithRegistryLogger(logger.Discard))
	require.NoError(t, reg.Add(context.Background(),
		models.CredentialEntry{NodeName: "cfg01", Host: "10.0.0.2", Login: "root", Password: "r00tme"},
		models.CredentialEntry{NodeName: "ctl01", Host: "10.0.0.3", Login: "ubuntu", Password: "ubuntu"},
	))
	conn := ssh.NewConnector(reg, tr, ssh.WithLogger(logger.Discard))
	opts = append([]runner.Option{runner.WithLogger(logger.Discard), runner.WithSettle(0)}, opts...)
	return runner.New(conn, opts...), tr
}

func TestRun(t *testing.T) {
	r, tr := setup(t)
	tr.AddHost("10.0.0.2").Reply("hostname", fakessh.Ok("cfg01"))

	res, err := r.Run(context.Background(), "hostname", models.Node("cfg01"))
	require.NoError(t, err)
	assert.Equal(t, []string{"cfg01"}, res.Stdout)
	assert.Nil(t, res.Failure)
	assert.Equal(t, 0, tr.OpenSessions())
	assert.Equal(t, 1, tr.ClosedSessions())
	assert.Equal(t, []fakessh.Call{{Host: "10.0.0.2", Cmd: "hostname"}}, tr.Calls())
}

func TestRunExitCodes(t *testing.T) {
	r, tr := setup(t)
	tr.AddHost("10.0.0.2").Reply("grep x /etc/hosts", fakessh.Exit(1))
	ctx := context.Background()
	target := models.Node("cfg01")

	_, err := r.Run(ctx, "grep x /etc/hosts", target, runner.WithErrorInfo("no entry"))
	var ue *runner.UnexpectedExitCodeError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, 1, ue.Result.ExitCode)
	assert.Equal(t, []int{0}, ue.Expected)
	assert.ErrorContains(t, err, "no entry")

	res, err := r.Run(ctx, "grep x /etc/hosts", target, runner.Expect(0, 1))
	require.NoError(t, err)
	assert.Nil(t, res.Failure)

	res, err = r.Run(ctx, "grep x /etc/hosts", target, runner.NoRaise())
	require.NoError(t, err)
	require.ErrorAs(t, res.Failure, &ue)
	assert.Equal(t, 1, res.ExitCode)

	assert.Equal(t, 0, tr.OpenSessions())
	assert.Equal(t, 3, tr.ClosedSessions())
}

func TestRunSudo(t *testing.T) {
	r, tr := setup(t)
	tr.AddHost("10.0.0.3")

	_, err := r.Sudo(context.Background(), "id -u", models.Node("ctl01"))
	require.NoError(t, err)
	assert.Equal(t, []fakessh.Call{{Host: "10.0.0.3", Cmd: "id -u", Sudo: true}}, tr.Calls())
}

func TestRunErrors(t *testing.T) {
	r, tr := setup(t)
	ctx := context.Background()

	_, err := r.Run(ctx, "true", models.Node("cmp01"))
	var nf *config.NotFoundError
	require.ErrorAs(t, err, &nf)

	_, err = r.Run(ctx, "true", models.Node("ctl01"))
	var ce *ssh.ConnectionError
	require.ErrorAs(t, err, &ce)

	broken := errors.New("channel closed")
	tr.AddHost("10.0.0.2").Fail("true", broken)
	_, err = r.Run(ctx, "true", models.Node("cfg01"))
	assert.ErrorIs(t, err, broken)
	assert.Equal(t, 0, tr.OpenSessions())
}

func TestRunAll(t *testing.T) {
	r, tr := setup(t)
	tr.AddHost("10.0.0.2").Reply("uptime", fakessh.Ok("up"))
	tr.AddHost("10.0.0.3").Reply("uptime", fakessh.Exit(1))

	got := map[string]runner.NodeResult{}
	for nr := range r.RunAll(context.Background(), "uptime", []models.Target{models.Node("cfg01"), models.Node("ctl01")}, 2) {
		got[nr.Target.NodeName] = nr
	}
	require.Len(t, got, 2)
	assert.NoError(t, got["cfg01"].Error)
	assert.Equal(t, []string{"up"}, got["cfg01"].Result.Stdout)
	var ue *runner.UnexpectedExitCodeError
	assert.ErrorAs(t, got["ctl01"].Error, &ue)
	assert.Equal(t, 0, tr.OpenSessions())
}
