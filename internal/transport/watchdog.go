package transport

import (
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fluxcp/fluxcp/internal/registry"
)

// Sentinel is the progress flag the receiver raises on every successful
// read and the watchdog clears on every tick (spec §4.4). A freshly
// constructed Sentinel is in the "pre-connection" state, which suppresses
// a timeout on the watchdog's first tick.
type Sentinel struct {
	raised        atomic.Bool
	preConnection atomic.Bool
}

// NewSentinel returns a Sentinel in the pre-connection state.
func NewSentinel() *Sentinel {
	s := &Sentinel{}
	s.preConnection.Store(true)
	return s
}

// Raise marks that progress was made since the last watchdog tick.
func (s *Sentinel) Raise() {
	s.raised.Store(true)
	s.preConnection.Store(false)
}

// checkAndReset reports whether progress was raised since the last tick
// (or this is the pre-connection tick, which never trips the watchdog) and
// clears the flag for the next interval.
func (s *Sentinel) checkAndReset() (ok bool) {
	if s.preConnection.Swap(false) {
		return true
	}
	return s.raised.Swap(false)
}

// Watchdog wakes every timeout and converts "no receiver progress since
// the last tick" into a shutdown request (spec §4.4, §5). It registers as
// a Control-plane worker: it only flips the shutdown flag, it never
// touches transport buffers directly.
func Watchdog(reg *registry.Registry, log *logrus.Entry, sentinel *Sentinel, timeout time.Duration) {
	if timeout <= 0 {
		return
	}
	h, err := reg.Spawn("watchdog", registry.Control)
	if err != nil {
		log.WithError(err).Error("watchdog: failed to register")
		return
	}
	defer reg.Unregister(h)

	ticker := time.NewTicker(timeout)
	defer ticker.Stop()

	for {
		if reg.ShouldExit(registry.Control) {
			return
		}
		<-ticker.C
		if !sentinel.checkAndReset() {
			log.Errorf("watchdog: no progress in %s, requesting shutdown", timeout)
			reg.BeginShutdown()
			return
		}
	}
}
