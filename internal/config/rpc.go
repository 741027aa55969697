package config

import (
	"errors"
	"os"
)

type RPCConfig struct {
	RPCUrl string
	WSUrl  string
	// SignerKey is the base58-encoded private key used to sign swap
	// transactions when the front end does not supply one per request.
	SignerKey string
}

func (r *RPCConfig) Key() string {
	return RPC_CONFIG_KEY
}

func (r *RPCConfig) Load() error {
	r.RPCUrl = os.Getenv("RPC_URL")
	r.WSUrl = os.Getenv("WS_URL")
	r.SignerKey = os.Getenv("SIGNER_KEY")
	return nil
}

func (r *RPCConfig) Validate() error {
	if r.RPCUrl == "" {
		return errors.New("invalid rpc config")
	}
	return nil
}
