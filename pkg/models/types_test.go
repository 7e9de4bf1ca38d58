package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	in := CredentialEntry{
		NodeName:       "cfg01",
		Host:           "10.0.0.2",
		Login:          "root",
		KeysSourceHost: "ctl01",
		Roles:          []string{"salt_master", "salt_master", "ctl"},
	}
	n := in.Normalize()

	assert.Equal(t, DefaultPort, n.Port)
	assert.Empty(t, n.KeysSourceHost)
	assert.NotNil(t, n.Keys)
	assert.Empty(t, n.Keys)
	assert.Equal(t, []string{"salt_master", "ctl"}, n.Roles)
	// 输入不被修改
	assert.Equal(t, "ctl01", in.KeysSourceHost)
	assert.Len(t, in.Roles, 3)
}

func TestEqual(t *testing.T) {
	a := CredentialEntry{NodeName: "n1", Host: "h1", Login: "u", Roles: []string{"a", "b"}}.Normalize()
	b := CredentialEntry{NodeName: "n1", Host: "h1", Port: 22, Login: "u", Roles: []string{"b", "a"}}.Normalize()
	assert.True(t, a.Equal(b))

	c := b.Clone()
	c.Keys = append(c.Keys, "key")
	assert.False(t, a.Equal(c))

	d := b.Clone()
	d.AddressPool = "public"
	assert.False(t, a.Equal(d))
}

func TestTargetString(t *testing.T) {
	assert.Equal(t, "10.0.0.1", Target{NodeName: "n", Host: "10.0.0.1"}.String())
	assert.Equal(t, "n/pool", Target{NodeName: "n", AddressPool: "pool"}.String())
	assert.True(t, Target{AddressPool: "pool"}.IsZero())
}

func TestSplitLines(t *testing.T) {
	assert.Equal(t, []string{}, SplitLines(""))
	assert.Equal(t, []string{"a", "b"}, SplitLines("a\r\nb\n\n"))
	assert.Equal(t, []string{"a", "", "b"}, SplitLines("a\n\nb"))
}
