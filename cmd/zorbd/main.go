// main.go - zorbd, the shielded pool daemon.
//
// zorbd owns the pool's canonical state: the commitment tree, the indexed
// nullifier set, and the reward epoch ledger. It verifies spend proofs at
// submission, serves roots and witness material over HTTP, and snapshots
// state to disk on shutdown.
//
// Usage:
//
//	zorbd -config zorbd.json

package main

import (
	"context"
	"flag"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"

	"github.com/zorb-labs/zorbcore/internal/field"
	"github.com/zorb-labs/zorbcore/internal/ledger"
	"github.com/zorb-labs/zorbcore/internal/prover"
	"github.com/zorb-labs/zorbcore/internal/statement"
)

var version = "dev"

// disabledVerifier rejects every submission; used when the daemon runs as a
// read-only observer without Groth16 keys.
type disabledVerifier struct{}

func (disabledVerifier) Verify(*prover.Proof, statement.PublicInputs) error {
	return errors.New("verifier is disabled in this configuration")
}

func main() {
	configPath := flag.String("config", "zorbd.json", "path to config file")
	flag.Parse()

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	log, closeLog, err := newLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger error:", err)
		os.Exit(1)
	}
	defer closeLog()
	log.Info().Str("version", version).Str("config", *configPath).Msg("zorbd starting")

	h := field.NewMiMC()

	var verifier prover.Verifier = disabledVerifier{}
	if cfg.EnableVerifier {
		if err := os.MkdirAll(cfg.KeyDir, 0755); err != nil {
			log.Fatal().Err(err).Msg("create key directory")
		}
		backend, err := prover.NewGroth16Backend(cfg.KeyDir, log)
		if err != nil {
			log.Fatal().Err(err).Msg("initialize groth16 backend")
		}
		verifier = backend
	} else {
		log.Warn().Msg("verifier disabled, all submissions will be rejected")
	}

	var pool *ledger.Ledger
	if _, err := os.Stat(cfg.SnapshotPath); err == nil {
		pool, err = ledger.LoadFromFile(cfg.SnapshotPath, h, verifier, log)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.SnapshotPath).Msg("load snapshot")
		}
	} else {
		rate, _ := new(big.Int).SetString(cfg.InitialRate, 10)
		pool, err = ledger.New(h, cfg.TreeDepth, rate, verifier, log)
		if err != nil {
			log.Fatal().Err(err).Msg("initialize ledger")
		}
		log.Info().Int("depth", cfg.TreeDepth).Msg("fresh ledger initialized")
	}

	metrics := NewMetricsCollector()
	health := NewHealthChecker(version)
	health.RegisterComponent("ledger", func() error {
		st := pool.Stats()
		if st.Commitments >= st.Capacity {
			return errors.New("commitment tree is at capacity")
		}
		return nil
	})
	health.RegisterComponent("epoch", func() error {
		pool.CurrentEpoch()
		return nil
	})

	srv := &server{
		ledger:  pool,
		metrics: metrics,
		health:  health,
		limiter: NewClientRateLimiter(cfg.SubmitBurst, cfg.SubmitPerSecond, time.Second),
		log:     log,
	}
	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      srv.routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if err := pool.SaveToFile(cfg.SnapshotPath); err != nil {
		log.Error().Err(err).Str("path", cfg.SnapshotPath).Msg("snapshot save failed")
		os.Exit(1)
	}
	log.Info().Str("path", cfg.SnapshotPath).Msg("snapshot saved")
}
