// Package config holds the explicit configuration record that replaces
// the source's process-wide option singletons (spec §9, SPEC_FULL.md
// §2.3): every constructor in the tree takes a *Config (or the fields it
// needs) instead of reaching into package-level state.
package config

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fluxcp/fluxcp/internal/crypto"
)

// Role is which side of the transfer this process plays (spec §2, §4.8).
type Role int

const (
	// Initiator spawns the remote peer and, with encryption enabled,
	// receives the session key over the bootstrap channel before the
	// transport opens.
	Initiator Role = iota
	// Responder is the spawned side; with encryption enabled it generates
	// the session key.
	Responder
)

// Config is built once from parsed CLI flags and passed to every
// constructor by value or reference.
type Config struct {
	Role Role

	// Host/Dest apply to the initiator ("-r host:dest"); Dest alone
	// applies to the responder's listen destination ("-l [dest_dir]").
	Host string
	Dest string

	Port int

	// CheckpointLog is the "-k <log>" path, empty when resume is disabled.
	CheckpointLog string

	Encrypt       bool
	CryptoThreads int
	Cipher        crypto.Suite

	FullRoot bool
	AllFiles bool

	Timeout time.Duration

	Log *logrus.Logger

	// MetricsAddr, when non-empty, enables the Prometheus monitor thread
	// on that address (SPEC_FULL.md §2.5).
	MetricsAddr string
}

// Validate checks the invariants the CLI layer must enforce before
// building any component (spec §6): crypto thread count in range (when
// encryption is on) and a valid port. It does not check that exactly one
// of initiator/listen mode is selected; the CLI layer does that itself.
func (c *Config) Validate() error {
	if c.Encrypt {
		if c.CryptoThreads < 1 || c.CryptoThreads > crypto.MaxWorkers {
			return fmt.Errorf("config: --crypto-threads must be in [1,%d], got %d", crypto.MaxWorkers, c.CryptoThreads)
		}
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: invalid port %d", c.Port)
	}
	return nil
}

// Logger returns a component-scoped entry, matching SPEC_FULL.md §2.2's
// logging field convention.
func (c *Config) Logger(component string) *logrus.Entry {
	return c.Log.WithField("component", component)
}
