package config

import (
	"errors"
	"time"

	"github.com/andrew-solarstorm/go-packages/common"
)

// AggregatorConfig points at the external swap aggregator (quote and
// instruction endpoints).
type AggregatorConfig struct {
	// QuoteURL is the base URL of the quote endpoint.
	QuoteURL string

	// SwapInstructionsURL is the base URL of the instruction endpoint.
	SwapInstructionsURL string

	// HTTPTimeout bounds each aggregator call.
	HTTPTimeout time.Duration

	// PlatformFeeBps, when non-zero, is attached to every quote request.
	PlatformFeeBps uint16
}

func (c *AggregatorConfig) Key() string {
	return AGGREGATOR_CONFIG_KEY
}

func (c *AggregatorConfig) Load() error {
	c.QuoteURL = common.GetEnvOrDefault("AGGREGATOR_QUOTE_URL", "https://api.jup.ag/swap/v1/quote")
	c.SwapInstructionsURL = common.GetEnvOrDefault("AGGREGATOR_SWAP_URL", "https://api.jup.ag/swap/v1/swap-instructions")
	c.HTTPTimeout = time.Duration(common.GetEnvOrDefaultInt("AGGREGATOR_TIMEOUT_MS", 10_000)) * time.Millisecond
	c.PlatformFeeBps = uint16(common.GetEnvOrDefaultInt("AGGREGATOR_PLATFORM_FEE_BPS", 0))
	return nil
}

func (c *AggregatorConfig) Validate() error {
	if c.QuoteURL == "" || c.SwapInstructionsURL == "" {
		return errors.New("invalid aggregator config")
	}
	return nil
}
