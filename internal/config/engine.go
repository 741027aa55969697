package config

import (
	"errors"
	"time"

	"github.com/andrew-solarstorm/go-packages/common"
)

// EngineConfig tunes the execution pipeline. Timeouts are structural:
// bounded attempt counts with fixed delays, so worst-case latency is
// deterministic given these values.
type EngineConfig struct {
	// PipelineAttempts bounds full restarts from the quote stage.
	PipelineAttempts int

	// SimulationAttempts bounds compute-unit simulation retries.
	SimulationAttempts int

	// SimulationDelay is the fixed delay between simulation retries.
	SimulationDelay time.Duration

	// ConfirmAttempts bounds confirmation polls per submission.
	ConfirmAttempts int

	// ConfirmInterval is the fixed poll interval.
	ConfirmInterval time.Duration

	// CheckpointMaxAge is the local lifetime of a validity checkpoint; a
	// prepared transaction older than this is rebuilt, never resent.
	CheckpointMaxAge time.Duration

	// SessionTTL evicts idle owner sessions.
	SessionTTL time.Duration

	// DefaultSlippageBps applies when a request omits slippage.
	DefaultSlippageBps uint16
}

func (c *EngineConfig) Key() string {
	return ENGINE_CONFIG_KEY
}

func (c *EngineConfig) Load() error {
	c.PipelineAttempts = common.GetEnvOrDefaultInt("ENGINE_PIPELINE_ATTEMPTS", 3)
	c.SimulationAttempts = common.GetEnvOrDefaultInt("ENGINE_SIMULATION_ATTEMPTS", 5)
	c.SimulationDelay = time.Duration(common.GetEnvOrDefaultInt("ENGINE_SIMULATION_DELAY_MS", 1000)) * time.Millisecond
	c.ConfirmAttempts = common.GetEnvOrDefaultInt("ENGINE_CONFIRM_ATTEMPTS", 10)
	c.ConfirmInterval = time.Duration(common.GetEnvOrDefaultInt("ENGINE_CONFIRM_INTERVAL_MS", 1000)) * time.Millisecond
	c.CheckpointMaxAge = time.Duration(common.GetEnvOrDefaultInt("ENGINE_CHECKPOINT_MAX_AGE_MS", 60_000)) * time.Millisecond
	c.SessionTTL = time.Duration(common.GetEnvOrDefaultInt("ENGINE_SESSION_TTL_S", 1800)) * time.Second
	c.DefaultSlippageBps = uint16(common.GetEnvOrDefaultInt("ENGINE_DEFAULT_SLIPPAGE_BPS", 50))
	return nil
}

func (c *EngineConfig) Validate() error {
	if c.PipelineAttempts < 1 || c.SimulationAttempts < 1 || c.ConfirmAttempts < 1 {
		return errors.New("invalid engine config: attempt bounds must be >= 1")
	}
	return nil
}
