package http

import (
	"github.com/gin-gonic/gin"

	"github.com/solstream/trade-engine/internal/engine"
	"github.com/solstream/trade-engine/internal/http/httputil"
)

// SessionHandler manages owner signing sessions.
type SessionHandler struct {
	engineSvc *engine.Service
}

func NewSessionHandler(engineSvc *engine.Service) *SessionHandler {
	return &SessionHandler{engineSvc: engineSvc}
}

func (h *SessionHandler) Root() string {
	return "/session"
}

func (h *SessionHandler) SetRoutes(pub *gin.RouterGroup, private *gin.RouterGroup, admin *gin.RouterGroup) {
	private.POST("", h.openSession)
	private.DELETE("/:owner", h.closeSession)
}

type SessionOpenRequest struct {
	OwnerID string `json:"ownerId" binding:"required" example:"user-42"`

	// SignerKey is the base58 private key this owner trades with. Held in
	// memory only and evicted after the configured idle TTL.
	SignerKey string `json:"signerKey" binding:"required"`
}

// @Summary Open a signing session
// @Description Register the signer an owner trades with. Sessions live in
// @Description memory, never persist, and expire after the configured idle TTL.
// @Tags session
// @Accept json
// @Produce json
// @Param request body SessionOpenRequest true "Session request"
// @Success 200 {object} httputil.Response
// @Failure 400 {object} httputil.Response "Malformed signer key"
// @Router /api/v1/session [post]
func (h *SessionHandler) openSession(c *gin.Context) {
	var req SessionOpenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	if err := h.engineSvc.OpenSession(req.OwnerID, req.SignerKey); err != nil {
		httputil.BadRequest(c, err.Error())
		return
	}
	httputil.Success(c, gin.H{"ownerId": req.OwnerID})
}

// @Summary Close a signing session
// @Description Drop the owner's signer immediately.
// @Tags session
// @Produce json
// @Param owner path string true "Owner ID"
// @Success 200 {object} httputil.Response
// @Router /api/v1/session/{owner} [delete]
func (h *SessionHandler) closeSession(c *gin.Context) {
	owner := c.Param("owner")
	h.engineSvc.CloseSession(owner)
	httputil.Success(c, gin.H{"ownerId": owner})
}
