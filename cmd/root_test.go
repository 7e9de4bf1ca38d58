package cmd

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wentf9/xops-underlay/pkg/config"
	"github.com/wentf9/xops-underlay/pkg/crypto"
	"github.com/wentf9/xops-underlay/pkg/models"
)

const testYAML = `
log: {level: error}
underlay:
  ssh:
    - {node_name: cfg01, address_pool: admin-pool01, host: 10.0.0.2, login: root, password: r00tme, roles: [salt_master]}
    - {node_name: cfg01, address_pool: public-pool01, host: 172.16.0.2, login: root, password: r00tme}
    - {node_name: ctl01, host: 10.0.0.3, login: root, keys_source_host: cfg01, roles: [controller, salt_minion]}
`

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeTestConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testYAML), 0600))
	return path
}

func TestNodesCommand(t *testing.T) {
	path := writeTestConfig(t)

	out, err := run(t, "nodes", "--config", path)
	require.NoError(t, err)
	assert.Equal(t, "cfg01\nctl01\n", out)

	out, err = run(t, "nodes", "--config", path, "--roles")
	require.NoError(t, err)
	assert.Equal(t, "cfg01\tsalt_master\nctl01\tcontroller,salt_minion\n", out)
}

func TestHostCommand(t *testing.T) {
	path := writeTestConfig(t)

	out, err := run(t, "host", "cfg01", "--config", path, "--pool", "public-pool01")
	require.NoError(t, err)
	assert.Equal(t, "172.16.0.2\n", out)

	_, err = run(t, "host", "cmp01", "--config", path, "--pool", "")
	assert.Error(t, err)
}

func TestEncryptWrite(t *testing.T) {
	path := writeTestConfig(t)

	out, err := run(t, "encrypt", "--config", path, "--write")
	require.NoError(t, err)
	assert.Contains(t, out, "已加密 2 个密码")

	store := config.NewDefaultStore(path, filepath.Join(filepath.Dir(path), "key"))
	raw, err := store.LoadRaw()
	require.NoError(t, err)
	assert.True(t, crypto.IsEncrypted(raw.Underlay.SSH[0].Password))

	cfg, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "r00tme", cfg.Underlay.SSH[1].Password)
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "Version:    dev")
}

func TestExecOptionsValidate(t *testing.T) {
	o := NewExecOptions()
	o.Complete([]string{"salt-key", "-L"})
	assert.Equal(t, "salt-key -L", o.Command)
	assert.Error(t, o.Validate())

	o.NodeName = "cfg01"
	assert.NoError(t, o.Validate())
	assert.Len(t, o.runOptions(), 1)

	o.Sudo, o.NoRaise = true, true
	assert.Len(t, o.runOptions(), 3)

	assert.Error(t, NewExecOptions().Validate())
}

func TestPingSelectTargets(t *testing.T) {
	all := []models.CredentialEntry{
		{NodeName: "cfg01", AddressPool: "admin-pool01", Host: "10.0.0.2", Port: 22},
		{NodeName: "cfg01", AddressPool: "public-pool01", Host: "172.16.0.2", Port: 22},
		{NodeName: "ctl01", Host: "10.0.0.3", Port: 22},
	}
	o := &PingOptions{}
	assert.Len(t, o.selectTargets(all, ""), 3)
	assert.Len(t, o.selectTargets(all, "cfg01"), 2)

	got := o.selectTargets(all, "10.0.0.9:2222")
	require.Len(t, got, 1)
	assert.Equal(t, models.CredentialEntry{NodeName: "-", Host: "10.0.0.9", Port: 2222}, got[0])

	o.AddressPool = "public-pool01"
	got = o.selectTargets(all, "cfg01")
	require.Len(t, got, 1)
	assert.Equal(t, "172.16.0.2", got[0].Host)
}

func TestPingAddressTCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			c.Close()
		}
	}()

	out, err := run(t, "ping", ln.Addr().String(), "--tcp", "--config", writeTestConfig(t))
	require.NoError(t, err)
	assert.Contains(t, out, "UP")
	assert.Contains(t, out, "127.0.0.1")
}
