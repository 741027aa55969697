package http

import (
	"errors"
	"strconv"

	"github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"

	"github.com/solstream/trade-engine/internal/common"
	"github.com/solstream/trade-engine/internal/domain"
	"github.com/solstream/trade-engine/internal/engine"
	"github.com/solstream/trade-engine/internal/http/httputil"
)

// SwapHandler exposes trade execution and quote previews.
type SwapHandler struct {
	engineSvc *engine.Service
}

func NewSwapHandler(engineSvc *engine.Service) *SwapHandler {
	return &SwapHandler{engineSvc: engineSvc}
}

func (h *SwapHandler) Root() string {
	return "/swap"
}

func (h *SwapHandler) SetRoutes(pub *gin.RouterGroup, private *gin.RouterGroup, admin *gin.RouterGroup) {
	pub.POST("", h.executeSwap)
	pub.GET("/quote", h.previewQuote)
}

// SwapExecuteRequest is the body of an execution request.
type SwapExecuteRequest struct {
	// OwnerID identifies the trading wallet session.
	OwnerID string `json:"ownerId" binding:"required" example:"user-42"`

	// Direction is "buy" (native -> token) or "sell" (token -> native).
	Direction string `json:"direction" binding:"required" enums:"buy,sell" example:"buy"`

	// InputMint is the base58 mint spent.
	InputMint string `json:"inputMint" binding:"required" example:"So11111111111111111111111111111111111111112"`

	// OutputMint is the base58 mint received.
	OutputMint string `json:"outputMint" binding:"required" example:"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"`

	// Amount in smallest token units (lamports for the native asset).
	Amount string `json:"amount" binding:"required" example:"1000000000"`

	// SlippageBps in basis points; the configured default applies when omitted.
	SlippageBps uint16 `json:"slippageBps" example:"50"`
}

// @Summary Execute a swap
// @Description Run a swap through the full execution pipeline: quote, instruction
// @Description assembly, compute and fee sizing, build, broadcast, confirmation and
// @Description ledger settlement. The response is a terminal outcome; a "failed" or
// @Description "expired" state is a valid result carrying the broadcast signature.
// @Description
// @Description Amounts are integer base units. The owner must have an open session
// @Description or the server must be configured with a default signer.
// @Tags swap
// @Accept json
// @Produce json
// @Param request body SwapExecuteRequest true "Swap execution request"
// @Success 200 {object} httputil.Response{data=domain.SwapResult}
// @Failure 400 {object} httputil.Response "Invalid parameters or no viable route"
// @Failure 500 {object} httputil.Response "Pipeline failure before broadcast"
// @Router /api/v1/swap [post]
func (h *SwapHandler) executeSwap(c *gin.Context) {
	var req SwapExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	swapReq, err := h.toDomain(&req)
	if err != nil {
		httputil.BadRequest(c, err.Error())
		return
	}

	result, err := h.engineSvc.ExecuteSwap(c.Request.Context(), swapReq)
	if result != nil {
		// Terminal states, success or not, are results, not transport errors.
		httputil.Success(c, result)
		return
	}
	if err != nil {
		writeSwapError(c, err)
		return
	}
	httputil.InternalError(c, "pipeline returned no result")
}

// @Summary Preview a quote
// @Description Fetch the current route for a pair without executing it.
// @Tags swap
// @Produce json
// @Param inputMint query string true "Input mint (base58)"
// @Param outputMint query string true "Output mint (base58)"
// @Param amount query string true "Amount in base units"
// @Param slippageBps query int false "Slippage tolerance in basis points"
// @Success 200 {object} httputil.Response{data=domain.Quote}
// @Failure 400 {object} httputil.Response
// @Failure 404 {object} httputil.Response "No viable route"
// @Router /api/v1/swap/quote [get]
func (h *SwapHandler) previewQuote(c *gin.Context) {
	inputMint, err := solana.PublicKeyFromBase58(c.Query("inputMint"))
	if err != nil {
		httputil.BadRequest(c, "invalid inputMint address")
		return
	}
	outputMint, err := solana.PublicKeyFromBase58(c.Query("outputMint"))
	if err != nil {
		httputil.BadRequest(c, "invalid outputMint address")
		return
	}
	amount, err := strconv.ParseUint(c.Query("amount"), 10, 64)
	if err != nil || amount == 0 {
		httputil.BadRequest(c, "invalid amount: must be a positive integer in base units")
		return
	}
	var slippage uint64
	if raw := c.Query("slippageBps"); raw != "" {
		if slippage, err = strconv.ParseUint(raw, 10, 16); err != nil {
			httputil.BadRequest(c, "invalid slippageBps")
			return
		}
	}

	quote, err := h.engineSvc.PreviewQuote(c.Request.Context(), inputMint, outputMint, amount, uint16(slippage))
	if err != nil {
		if errors.Is(err, common.ErrRouteUnavailable) {
			httputil.NotFound(c, "no viable route for pair")
			return
		}
		httputil.InternalError(c, err.Error())
		return
	}
	httputil.Success(c, quote)
}

func (h *SwapHandler) toDomain(req *SwapExecuteRequest) (*domain.SwapRequest, error) {
	var direction domain.Direction
	switch req.Direction {
	case "buy":
		direction = domain.DirectionBuy
	case "sell":
		direction = domain.DirectionSell
	default:
		return nil, errors.New("invalid direction: must be buy or sell")
	}

	inputMint, err := solana.PublicKeyFromBase58(req.InputMint)
	if err != nil {
		return nil, errors.New("invalid inputMint address")
	}
	outputMint, err := solana.PublicKeyFromBase58(req.OutputMint)
	if err != nil {
		return nil, errors.New("invalid outputMint address")
	}
	amount, err := strconv.ParseUint(req.Amount, 10, 64)
	if err != nil || amount == 0 {
		return nil, errors.New("invalid amount: must be a positive integer in base units")
	}

	return &domain.SwapRequest{
		OwnerID:     req.OwnerID,
		Direction:   direction,
		InputMint:   inputMint,
		OutputMint:  outputMint,
		Amount:      amount,
		SlippageBps: req.SlippageBps,
	}, nil
}

func writeSwapError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, common.ErrInvalidAmount):
		httputil.BadRequest(c, err.Error())
	case errors.Is(err, common.ErrRouteUnavailable), errors.Is(err, common.ErrRouteExpired):
		httputil.NotFound(c, err.Error())
	case errors.Is(err, common.ErrInsufficientFundsForRent):
		httputil.BadRequest(c, err.Error())
	default:
		httputil.InternalError(c, err.Error())
	}
}
