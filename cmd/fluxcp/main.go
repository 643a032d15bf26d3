// Command fluxcp streams a directory tree between two hosts over a
// reliable UDP transport, with optional symmetric encryption (spec §1,
// §6). It is the binary entry point; see internal/session for the
// orchestration this command wires up.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/fluxcp/fluxcp/internal/config"
	"github.com/fluxcp/fluxcp/internal/crypto"
)

var (
	listenDest    string
	remoteTarget  string
	checkpointLog string
	encrypt       bool
	cryptoThreads int
	port          int
	verbose       bool
	quiet         bool
	fullRoot      bool
	allFiles      bool
	timeoutSecs   int
	cipherName    string
	metricsAddr   string
)

var rootCmd = &cobra.Command{
	Use:   "fluxcp [source...]",
	Short: "Stream a directory tree to or from a remote host over a reliable UDP transport",
	Long: `fluxcp copies a directory tree between two hosts over a congestion-controlled
UDP transport, with optional symmetric encryption and resumable checkpointing.

One side listens for an incoming transfer (-l); the other initiates one (-r).`,
	RunE: runRoot,
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVarP(&listenDest, "listen", "l", "", "listen for an incoming transfer into dest_dir")
	flags.StringVarP(&remoteTarget, "remote", "r", "", "initiate a transfer to host:dest")
	flags.StringVarP(&checkpointLog, "checkpoint", "k", "", "restart from and append to <log>")
	flags.BoolVarP(&encrypt, "encrypt", "n", false, "enable encryption")
	flags.IntVar(&cryptoThreads, "crypto-threads", 1, "number of crypto worker threads (1-32)")
	flags.IntVarP(&port, "port", "p", 9000, "transport port")
	flags.BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
	flags.BoolVar(&quiet, "quiet", false, "suppress warnings")
	flags.BoolVar(&fullRoot, "full-root", false, "send absolute paths")
	flags.BoolVar(&allFiles, "all-files", false, "send character devices and FIFOs")
	flags.IntVar(&timeoutSecs, "timeout", 0, "watchdog timeout in seconds (0 disables it)")
	flags.StringVar(&cipherName, "cipher", "aes-128", "cipher suite (aes-128, aes-192, aes-256, aes-128-ctr, aes-192-ctr, aes-256-ctr, 3des, blowfish)")
	flags.StringVar(&metricsAddr, "metrics-addr", "", "expose Prometheus metrics on this address (disabled if empty)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// secondsToDuration turns the --timeout flag's plain integer seconds into
// the time.Duration config.Config and the watchdog expect. Zero means
// "disabled" all the way through (spec §4.4).
func secondsToDuration(s int) time.Duration {
	return time.Duration(s) * time.Second
}

func newLogger() *logrus.Logger {
	log := logrus.New()
	switch {
	case verbose:
		log.SetLevel(logrus.DebugLevel)
	case quiet:
		log.SetLevel(logrus.ErrorLevel)
	default:
		log.SetLevel(logrus.InfoLevel)
	}
	return log
}

func buildConfig() (*config.Config, error) {
	suite, err := crypto.ParseSuite(cipherName)
	if err != nil {
		return nil, fmt.Errorf("fluxcp: %w", err)
	}

	cfg := &config.Config{
		Port:          port,
		CheckpointLog: checkpointLog,
		Encrypt:       encrypt,
		CryptoThreads: cryptoThreads,
		Cipher:        suite,
		FullRoot:      fullRoot,
		AllFiles:      allFiles,
		Timeout:       secondsToDuration(timeoutSecs),
		Log:           newLogger(),
		MetricsAddr:   metricsAddr,
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("fluxcp: %w", err)
	}
	return cfg, nil
}

func runRoot(cmd *cobra.Command, args []string) error {
	switch {
	case listenDest != "" && remoteTarget != "":
		return fmt.Errorf("fluxcp: -l and -r are mutually exclusive")
	case listenDest != "":
		cfg, err := buildConfig()
		if err != nil {
			return err
		}
		return runListener(cfg, listenDest)
	case remoteTarget != "":
		cfg, err := buildConfig()
		if err != nil {
			return err
		}
		return runInitiator(cfg, remoteTarget, args)
	default:
		return fmt.Errorf("fluxcp: exactly one of -l or -r is required")
	}
}
