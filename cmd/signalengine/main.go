// Command signalengine is the single binary exposing every subcommand
// spec.md §6 names: historical ingestion, curation, backtest
// campaigns, sensitivity analysis, preflight auditing, SL/TP
// fulfillment validation, alert checking, and the production job
// scheduler.
//
// Grounded on the teacher's cmd/cryptorun: a cobra root command with
// one file per subcommand, each registering itself via init(), plus
// the teacher's zerolog ConsoleWriter bootstrap in main(). Exit codes
// follow spec.md §6: 0 success, 1 recoverable failure, 2 transport
// failure.
package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const (
	appName = "signalengine"
	version = "v0.1.0"
)

const (
	exitSuccess  = 0
	exitFailure  = 1
	exitTransport = 2
)

var rootCmd = &cobra.Command{
	Use:     appName,
	Short:   "Crypto signal engine: ingestion, curation, backtesting, and publication",
	Version: version,
}

func main() {
	// CLI runs non-interactively and is frequently piped/cron-invoked, so
	// stderr carries structured JSON lines (spec.md §6) rather than the
	// teacher's TTY-oriented ConsoleWriter.
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(exitFailure)
	}
}
