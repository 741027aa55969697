package http

import (
	"github.com/gin-gonic/gin"

	"github.com/solstream/trade-engine/internal/engine"
	"github.com/solstream/trade-engine/internal/http/httputil"
)

// LedgerHandler serves the cached wallet balance view.
type LedgerHandler struct {
	engineSvc *engine.Service
}

func NewLedgerHandler(engineSvc *engine.Service) *LedgerHandler {
	return &LedgerHandler{engineSvc: engineSvc}
}

func (h *LedgerHandler) Root() string {
	return "/ledger"
}

func (h *LedgerHandler) SetRoutes(pub *gin.RouterGroup, private *gin.RouterGroup, admin *gin.RouterGroup) {
	pub.GET("/:owner", h.getLedger)
	admin.GET("", h.listLedgers)
	admin.POST("/:owner/rebuild", h.rebuildLedger)
}

// @Summary Get wallet ledger
// @Description Return the cached balance entry for an owner: native balance and
// @Description token holdings with measured unit costs. The cache mutates only
// @Description from finalized, reconciled transactions.
// @Tags ledger
// @Produce json
// @Param owner path string true "Owner ID"
// @Success 200 {object} httputil.Response{data=domain.WalletLedgerEntry}
// @Failure 404 {object} httputil.Response "Owner has no ledger entry"
// @Router /api/v1/ledger/{owner} [get]
func (h *LedgerHandler) getLedger(c *gin.Context) {
	entry, err := h.engineSvc.Ledger(c.Request.Context(), c.Param("owner"))
	if err != nil {
		httputil.InternalError(c, err.Error())
		return
	}
	if entry == nil {
		httputil.NotFound(c, "no ledger entry for owner")
		return
	}
	httputil.Success(c, entry)
}

// @Summary List wallet ledgers
// @Description Return every cached ledger entry.
// @Tags ledger
// @Produce json
// @Success 200 {object} httputil.Response{data=[]domain.WalletLedgerEntry}
// @Router /api/v1/admin/ledger [get]
func (h *LedgerHandler) listLedgers(c *gin.Context) {
	entries, err := h.engineSvc.Ledgers(c.Request.Context())
	if err != nil {
		httputil.InternalError(c, err.Error())
		return
	}
	httputil.Success(c, entries)
}

// @Summary Rebuild wallet ledger
// @Description Discard the cached entry and rebuild it from on-chain state:
// @Description native balance plus every non-empty token account of the owner.
// @Tags ledger
// @Produce json
// @Param owner path string true "Owner ID"
// @Success 200 {object} httputil.Response{data=domain.WalletLedgerEntry}
// @Failure 404 {object} httputil.Response "Owner key cannot be resolved"
// @Router /api/v1/admin/ledger/{owner}/rebuild [post]
func (h *LedgerHandler) rebuildLedger(c *gin.Context) {
	entry, err := h.engineSvc.RebuildLedger(c.Request.Context(), c.Param("owner"))
	if err != nil {
		httputil.NotFound(c, err.Error())
		return
	}
	httputil.Success(c, entry)
}
