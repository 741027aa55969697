package main

import (
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	container "github.com/thehyperflames/dicontainer-go"
	"github.com/thehyperflames/yellowstone"

	"github.com/solstream/trade-engine/internal/adapters/blockchain"
	"github.com/solstream/trade-engine/internal/adapters/persistence"
	"github.com/solstream/trade-engine/internal/config"
	"github.com/solstream/trade-engine/internal/engine"
	"github.com/solstream/trade-engine/internal/http"
)

// @title Solstream Trade Engine API
// @version 1.0
// @description Solana trade execution pipeline: aggregator quotes, versioned
// @description transaction assembly, measured compute sizing, direct or bundled
// @description broadcast, bounded confirmation and ledger reconciliation.
// @description
// @description ## Usage
// @description - Amounts are integer base units (lamports for the native asset)
// @description - Default slippage is 50 bps (0.5%)
// @description - A swap response is a terminal outcome: finalized, failed or expired
// @description - Open a session to register a signing key, or configure a server default
// @description
// @description ## Rate Limit
// @description 10 requests/second per IP (burst: 20)
// @BasePath /
// @schemes http
// @tag.name swap
// @tag.description Execute swaps and preview aggregator quotes
// @tag.name ledger
// @tag.description Cached wallet balances rebuilt from on-chain state
// @tag.name session
// @tag.description In-memory signing sessions with idle eviction
func main() {
	// load env
	err := godotenv.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load env")
		return
	}

	// di container config
	conf := container.NewConf(
		&config.GeneralConfig{},
		&config.RPCConfig{},
		&yellowstone.Config{},
		&config.AggregatorConfig{},
		&config.RelayConfig{},
		&config.LedgerConfig{},
		&config.EngineConfig{},
	)

	// di container
	dic, err := container.New(
		conf,

		// services
		&yellowstone.Service{},
		&blockchain.CheckpointCacheService{},
		&persistence.LedgerStoreService{},
		&engine.Service{},

		&http.HTTPService{},
	)
	if err != nil {
		log.Error().Err(err).Msg("failed to create di container")
		return
	}

	if err := dic.Run(); err != nil {
		log.Error().Err(err).Msg("failed to run di container")
		return
	}

	log.Info().Msg("Shutting down services...")
	if err := dic.Stop(); err != nil {
		log.Error().Err(err).Msg("error during shutdown")
	}
	log.Info().Msg("Shutdown complete")
}
