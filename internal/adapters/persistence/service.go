package persistence

import (
	container "github.com/thehyperflames/dicontainer-go"

	"github.com/solstream/trade-engine/internal/config"
	"github.com/solstream/trade-engine/internal/services"
)

const LEDGER_STORE_SERVICE = "ledger-store-svc"

// LedgerStoreService owns the ledger store's lifecycle inside the
// container. The store opens during Configure so dependents can grab it
// before any Start runs.
type LedgerStoreService struct {
	container.BaseDIInstance
	logger *services.ServiceLogger

	store *LedgerStore
}

func (svc *LedgerStoreService) ID() string {
	return LEDGER_STORE_SERVICE
}

func (svc *LedgerStoreService) Configure(c container.IContainer) error {
	svc.logger = services.NewServiceLogger(svc)
	conf := c.GetConfig(config.LEDGER_CONFIG_KEY).(*config.LedgerConfig)

	store, err := NewLedgerStore(conf.DBPath)
	if err != nil {
		return err
	}
	svc.store = store
	svc.logger.Info().Str("path", conf.DBPath).Msg("[LedgerStoreService] opened ledger database")
	return nil
}

func (svc *LedgerStoreService) Start() error {
	return nil
}

func (svc *LedgerStoreService) Stop() error {
	return svc.store.Close()
}

// Store exposes the underlying store to dependent services.
func (svc *LedgerStoreService) Store() *LedgerStore {
	return svc.store
}
