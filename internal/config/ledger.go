package config

import (
	"github.com/andrew-solarstorm/go-packages/common"
)

// LedgerConfig configures the BoltDB-backed wallet balance cache.
type LedgerConfig struct {
	// DBPath is the path to the BoltDB file.
	DBPath string
}

func (c *LedgerConfig) Key() string {
	return LEDGER_CONFIG_KEY
}

func (c *LedgerConfig) Load() error {
	c.DBPath = common.GetEnvOrDefault("LEDGER_DB_PATH", "./data/trade-engine.db")
	return nil
}

func (c *LedgerConfig) Validate() error {
	return nil
}
