// main.go - Relayer daemon entrypoint.
//
// relayd runs the relay-commit service: it accepts pre-signed commit
// requests over HTTP, submits them to the ledger under the relayer's own
// identity, and serves the share-link API backed by the local token store.
//
// Usage:
//   relayd --config relayd.json
//
// On first run the default config is written to the given path and the
// relayer keypair is generated if the keypair file does not exist.

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"flexanon/internal/flexanon"
	"flexanon/internal/ledger"
	"flexanon/internal/ownership"
	"flexanon/internal/portfolio"
	"flexanon/internal/relay"
	"flexanon/internal/share"
)

const version = "1.0.0"

func main() {
	var configPath string

	root := &cobra.Command{
		Use:   "relayd",
		Short: "Anonymous portfolio commitment relayer",
		Long: "relayd accepts pre-signed portfolio commitment requests, relays them " +
			"to the ledger under its own identity, and serves the share-link API.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
		SilenceUsage: true,
	}
	root.Flags().StringVarP(&configPath, "config", "c", "relayd.json", "path to the config file")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(configPath string) error {
	config, err := LoadConfig(configPath)
	if err != nil {
		return err
	}
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log := NewLogger(config.LogLevel, config.LogFile)
	log.Info().Str("version", version).Str("config", configPath).Msg("relayd starting")

	relayer, err := loadOrCreateRelayerKeypair(config.RelayerKeypairPath)
	if err != nil {
		return err
	}
	log.Info().Str("relayer", relayer.Address()).Msg("relayer identity loaded")

	oracle, err := ledger.LoadFileLedger(config.LedgerPath, log)
	if err != nil {
		return err
	}

	store, err := share.OpenStore(filepath.Join(config.DataDir, "tokens"), log)
	if err != nil {
		return err
	}
	defer store.Close()

	limiter := relay.NewMemoryRateLimiter(config.RateLimitWindow())
	coordinator := relay.NewCoordinator(oracle, relayer, limiter, config.MinRelayerBalance, log)
	shares := share.NewService(store, oracle, log)
	svc := flexanon.NewService(&portfolio.MockProvider{}, coordinator, shares, oracle, config.Chain, log)

	health := NewHealthChecker(version)
	health.RegisterComponent("ledger", func() error {
		_, err := oracle.Balance(context.Background(), relayer.Address())
		return err
	})
	health.RegisterComponent("token_store", func() error {
		_, err := store.ViewCount("health-probe")
		return err
	})
	health.RegisterComponent("relayer_balance", func() error {
		balance, err := oracle.Balance(context.Background(), relayer.Address())
		if err != nil {
			return err
		}
		relay.RelayerBalance.Set(float64(balance))
		if balance < ledger.SubmissionFee {
			return fmt.Errorf("relayer balance %d cannot cover a single submission", balance)
		}
		return nil
	})

	server := NewServer(svc, coordinator, oracle, limiter, health, log)
	httpServer := &http.Server{
		Addr:         config.ListenAddr,
		Handler:      server.Router(),
		ReadTimeout:  config.RequestTimeout(),
		WriteTimeout: config.RequestTimeout(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", config.ListenAddr).Msg("listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	log.Info().Msg("relayd stopped")
	return nil
}

// loadOrCreateRelayerKeypair loads the relayer identity, generating and
// persisting a fresh one on first run. RELAYER_PRIVATE_KEY (base58) takes
// precedence over the keypair file.
func loadOrCreateRelayerKeypair(path string) (*ownership.Keypair, error) {
	if secret := os.Getenv("RELAYER_PRIVATE_KEY"); secret != "" {
		return ownership.KeypairFromBase58(secret)
	}
	if _, err := os.Stat(path); err == nil {
		return ownership.LoadKeypair(path)
	}
	keypair, err := ownership.GenerateKeypair()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create keypair directory: %w", err)
	}
	if err := keypair.Save(path); err != nil {
		return nil, err
	}
	return keypair, nil
}
