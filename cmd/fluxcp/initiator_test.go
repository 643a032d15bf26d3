package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxcp/fluxcp/internal/config"
	"github.com/fluxcp/fluxcp/internal/crypto"
)

func TestSplitTarget(t *testing.T) {
	host, dest, err := splitTarget("box1:/data/out")
	require.NoError(t, err)
	assert.Equal(t, "box1", host)
	assert.Equal(t, "/data/out", dest)

	_, _, err = splitTarget("no-colon-here")
	assert.Error(t, err)

	_, _, err = splitTarget(":nodhost")
	assert.Error(t, err)
}

func TestRemoteCommandLineMirrorsEncryptionFlags(t *testing.T) {
	cfg := &config.Config{
		Port:          9100,
		Encrypt:       true,
		CryptoThreads: 4,
		Cipher:        crypto.AES256CFB,
	}
	args := remoteCommandLine(cfg, "/data/out")
	assert.Contains(t, args, "-n")
	assert.Contains(t, args, "--crypto-threads")
	assert.Contains(t, args, "4")
	assert.Contains(t, args, "--cipher")
	assert.Contains(t, args, cfg.Cipher.String())
}

func TestRemoteCommandLineOmitsEncryptionWhenDisabled(t *testing.T) {
	cfg := &config.Config{Port: 9100}
	args := remoteCommandLine(cfg, "/data/out")
	assert.NotContains(t, args, "-n")
}
