package crypto

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecrypt(t *testing.T) {
	key, err := LoadOrGenerateKey(filepath.Join(t.TempDir(), "sub", "key"))
	require.NoError(t, err)
	c, err := NewCrypter(key)
	require.NoError(t, err)

	enc, err := c.Encrypt("r00tme")
	require.NoError(t, err)
	assert.True(t, IsEncrypted(enc))

	again, err := c.Encrypt(enc)
	require.NoError(t, err)
	assert.Equal(t, enc, again)

	plain, err := c.Decrypt(enc)
	require.NoError(t, err)
	assert.Equal(t, "r00tme", plain)

	revealed, err := c.Reveal("plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", revealed)

	_, err = c.Decrypt("plain")
	assert.Error(t, err)
	_, err = c.Decrypt(Prefix + "AAAA")
	assert.Error(t, err)
}

func TestLoadOrGenerateKeyReusesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key")
	first, err := LoadOrGenerateKey(path)
	require.NoError(t, err)
	second, err := LoadOrGenerateKey(path)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	require.NoError(t, os.WriteFile(path, []byte("short"), 0600))
	_, err = LoadKey(path)
	assert.Error(t, err)
	_, err = NewCrypter([]byte("short"))
	assert.Error(t, err)
}
