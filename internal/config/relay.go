package config

import (
	"time"

	"github.com/andrew-solarstorm/go-packages/common"
)

// RelayConfig describes the atomic bundling relay used by the bundled
// broadcast path. When Enabled is false the engine broadcasts directly.
type RelayConfig struct {
	Enabled bool

	// URL is the relay JSON-RPC endpoint.
	URL string

	// TipAccount receives the relay tip appended to bundled transactions.
	TipAccount string

	// TipLamports is the tip size in base units.
	TipLamports uint64

	HTTPTimeout time.Duration
}

func (c *RelayConfig) Key() string {
	return RELAY_CONFIG_KEY
}

func (c *RelayConfig) Load() error {
	c.Enabled = common.GetEnvOrDefault("RELAY_ENABLED", "false") == "true"
	c.URL = common.GetEnvOrDefault("RELAY_URL", "https://mainnet.block-engine.jito.wtf/api/v1/bundles")
	c.TipAccount = common.GetEnvOrDefault("RELAY_TIP_ACCOUNT", "")
	c.TipLamports = uint64(common.GetEnvOrDefaultInt("RELAY_TIP_LAMPORTS", 10_000))
	c.HTTPTimeout = time.Duration(common.GetEnvOrDefaultInt("RELAY_TIMEOUT_MS", 10_000)) * time.Millisecond
	return nil
}

func (c *RelayConfig) Validate() error {
	return nil
}
