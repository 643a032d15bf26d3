package config

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/fluxcp/fluxcp/internal/crypto"
)

func TestValidateRejectsOutOfRangeCryptoThreads(t *testing.T) {
	cfg := &Config{Port: 9000, Encrypt: true, CryptoThreads: 0, Cipher: crypto.AES128CFB}
	assert.Error(t, cfg.Validate())

	cfg.CryptoThreads = crypto.MaxWorkers + 1
	assert.Error(t, cfg.Validate())

	cfg.CryptoThreads = 4
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsBadPort(t *testing.T) {
	cfg := &Config{Port: 0}
	assert.Error(t, cfg.Validate())

	cfg.Port = 70000
	assert.Error(t, cfg.Validate())
}

func TestLoggerAddsComponentField(t *testing.T) {
	var buf bytes.Buffer
	log := logrus.New()
	log.SetOutput(&buf)
	cfg := &Config{Port: 9000, Log: log}

	entry := cfg.Logger("sender")
	assert.Equal(t, "sender", entry.Data["component"])
}
