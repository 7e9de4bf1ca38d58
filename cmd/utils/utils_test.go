package utils

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetConfigFilePath(t *testing.T) {
	cfg, key := GetConfigFilePath("/etc/underlay/lab.yaml")
	assert.Equal(t, "/etc/underlay/lab.yaml", cfg)
	assert.Equal(t, "/etc/underlay/key", key)

	cfg, key = GetConfigFilePath("")
	assert.Equal(t, ConfigFileName, filepath.Base(cfg))
	assert.Equal(t, filepath.Dir(cfg), filepath.Dir(key))
}

func TestParseAddr(t *testing.T) {
	tests := []struct {
		in   string
		host string
		port int
	}{
		{"10.0.0.2", "10.0.0.2", 22},
		{"10.0.0.2:2222", "10.0.0.2", 2222},
		{"[fe80::1]:2022", "fe80::1", 2022},
		{"cfg01.local:abc", "cfg01.local:abc", 22},
		{"fe80::1", "fe80::1", 22},
	}
	for _, tt := range tests {
		host, port := ParseAddr(tt.in, 22)
		assert.Equal(t, tt.host, host, tt.in)
		assert.Equal(t, tt.port, port, tt.in)
	}
}
