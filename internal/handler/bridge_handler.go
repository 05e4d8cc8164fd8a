package handler

import (
	"context"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/eidos-exchange/eidos/eidos-yield/internal/config"
	"github.com/eidos-exchange/eidos/eidos-yield/internal/dto"
	"github.com/eidos-exchange/eidos/eidos-yield/internal/model"
	"github.com/eidos-exchange/eidos/eidos-yield/internal/repository"
	"github.com/eidos-exchange/eidos/eidos-yield/internal/service"
	apperrors "github.com/eidos-exchange/eidos/eidos-yield/pkg/errors"
)

// BridgeService 跨链桥服务接口
type BridgeService interface {
	Lock(ctx context.Context, caller, token common.Address, amount decimal.Decimal, dstChainID int64, dstAddress []byte) (*model.CrossChainTransfer, error)
	Mint(ctx context.Context, caller, to common.Address, amount decimal.Decimal, srcChainID int64, srcTxRef, messageID string) error
	Burn(ctx context.Context, caller common.Address, amount decimal.Decimal, dstChainID int64, dstAddress []byte) (*model.CrossChainTransfer, error)
	Release(ctx context.Context, caller, token, to common.Address, amount decimal.Decimal, srcChainID int64, srcTxRef, messageID string) error
	CompleteTransfer(ctx context.Context, caller common.Address, transferID, messageID string, success bool) error
	Protocol(ctx context.Context) (string, error)
	SetProtocol(ctx context.Context, caller common.Address, protocol string) error
	SupportedChains() []config.ChainEntry
	SupportedTokens(ctx context.Context) ([]*model.SupportedAsset, error)
	SetTokenSupported(ctx context.Context, caller, token common.Address, enabled bool) error
	ValidateTransfer(ctx context.Context, req *service.TransferRequest) error
	QuoteFee(ctx context.Context, srcChainID, dstChainID int64) (*service.FeeQuote, error)
	GetTransfer(ctx context.Context, transferID string) (*model.CrossChainTransfer, error)
	History(ctx context.Context, user common.Address, page *repository.Pagination) ([]*model.CrossChainTransfer, error)
	Health(ctx context.Context) (*service.BridgeHealth, error)
}

// BridgeHandler 跨链桥接口
type BridgeHandler struct {
	svc BridgeService
}

// NewBridgeHandler 创建跨链桥处理器
func NewBridgeHandler(svc BridgeService) *BridgeHandler {
	return &BridgeHandler{svc: svc}
}

// GetProtocol GET /api/v1/bridge/protocol
func (h *BridgeHandler) GetProtocol(c *gin.Context) {
	protocol, err := h.svc.Protocol(c.Request.Context())
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, gin.H{"protocol": protocol, "available": service.BridgeProtocols()})
}

// SetProtocol PUT /api/v1/bridge/protocol
func (h *BridgeHandler) SetProtocol(c *gin.Context) {
	from, ok := caller(c)
	if !ok {
		return
	}
	var req dto.SetProtocolRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.svc.SetProtocol(c.Request.Context(), from, req.Protocol); err != nil {
		Fail(c, err)
		return
	}
	Success(c, gin.H{"protocol": req.Protocol})
}

// Chains GET /api/v1/bridge/chains
func (h *BridgeHandler) Chains(c *gin.Context) {
	Success(c, h.svc.SupportedChains())
}

// Tokens GET /api/v1/bridge/tokens
func (h *BridgeHandler) Tokens(c *gin.Context) {
	tokens, err := h.svc.SupportedTokens(c.Request.Context())
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, tokens)
}

// SetToken PUT /api/v1/bridge/tokens/:token
func (h *BridgeHandler) SetToken(c *gin.Context) {
	from, ok := caller(c)
	if !ok {
		return
	}
	token, ok := pathAddress(c, "token")
	if !ok {
		return
	}
	var req struct {
		Enabled *bool `json:"enabled" binding:"required"`
	}
	if !bindJSON(c, &req) {
		return
	}
	if err := h.svc.SetTokenSupported(c.Request.Context(), from, token, *req.Enabled); err != nil {
		Fail(c, err)
		return
	}
	Success(c, gin.H{"token": token.Hex(), "enabled": *req.Enabled})
}

// Health GET /api/v1/bridge/health
func (h *BridgeHandler) Health(c *gin.Context) {
	health, err := h.svc.Health(c.Request.Context())
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, health)
}

// Lock POST /api/v1/bridge/lock
func (h *BridgeHandler) Lock(c *gin.Context) {
	from, ok := caller(c)
	if !ok {
		return
	}
	var req dto.LockRequest
	if !bindJSON(c, &req) {
		return
	}
	token, err := dto.ParseAddress("token", req.Token)
	if err != nil {
		Fail(c, err)
		return
	}
	amount, err := dto.ParseAmount("amount", req.Amount)
	if err != nil {
		Fail(c, err)
		return
	}
	dst, err := dto.ParseHexBytes("destination_address", req.DestinationAddress)
	if err != nil {
		Fail(c, err)
		return
	}

	t, err := h.svc.Lock(c.Request.Context(), from, token, amount, req.DestinationChainID, dst)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, t)
}

// Burn POST /api/v1/bridge/burn
func (h *BridgeHandler) Burn(c *gin.Context) {
	from, ok := caller(c)
	if !ok {
		return
	}
	var req dto.BurnRequest
	if !bindJSON(c, &req) {
		return
	}
	amount, err := dto.ParseAmount("amount", req.Amount)
	if err != nil {
		Fail(c, err)
		return
	}
	dst, err := dto.ParseHexBytes("destination_address", req.DestinationAddress)
	if err != nil {
		Fail(c, err)
		return
	}

	t, err := h.svc.Burn(c.Request.Context(), from, amount, req.DestinationChainID, dst)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, t)
}

// Mint POST /api/v1/bridge/mint
func (h *BridgeHandler) Mint(c *gin.Context) {
	from, ok := caller(c)
	if !ok {
		return
	}
	var req dto.MintRequest
	if !bindJSON(c, &req) {
		return
	}
	to, err := dto.ParseAddress("to", req.To)
	if err != nil {
		Fail(c, err)
		return
	}
	amount, err := dto.ParseAmount("amount", req.Amount)
	if err != nil {
		Fail(c, err)
		return
	}

	if err := h.svc.Mint(c.Request.Context(), from, to, amount, req.SourceChainID, req.SourceTxRef, req.MessageID); err != nil {
		Fail(c, err)
		return
	}
	Success(c, gin.H{"message_id": req.MessageID})
}

// Release POST /api/v1/bridge/release
func (h *BridgeHandler) Release(c *gin.Context) {
	from, ok := caller(c)
	if !ok {
		return
	}
	var req dto.ReleaseRequest
	if !bindJSON(c, &req) {
		return
	}
	token, err := dto.ParseAddress("token", req.Token)
	if err != nil {
		Fail(c, err)
		return
	}
	to, err := dto.ParseAddress("to", req.To)
	if err != nil {
		Fail(c, err)
		return
	}
	amount, err := dto.ParseAmount("amount", req.Amount)
	if err != nil {
		Fail(c, err)
		return
	}

	if err := h.svc.Release(c.Request.Context(), from, token, to, amount, req.SourceChainID, req.SourceTxRef, req.MessageID); err != nil {
		Fail(c, err)
		return
	}
	Success(c, gin.H{"message_id": req.MessageID})
}

// CompleteTransfer POST /api/v1/bridge/transfers/:id/complete
func (h *BridgeHandler) CompleteTransfer(c *gin.Context) {
	from, ok := caller(c)
	if !ok {
		return
	}
	var req dto.CompleteTransferRequest
	if !bindJSON(c, &req) {
		return
	}
	id := c.Param("id")
	if err := h.svc.CompleteTransfer(c.Request.Context(), from, id, req.MessageID, *req.Success); err != nil {
		Fail(c, err)
		return
	}
	t, err := h.svc.GetTransfer(c.Request.Context(), id)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, t)
}

// GetTransfer GET /api/v1/bridge/transfers/:id
func (h *BridgeHandler) GetTransfer(c *gin.Context) {
	t, err := h.svc.GetTransfer(c.Request.Context(), c.Param("id"))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, t)
}

// History GET /api/v1/bridge/history/:address
func (h *BridgeHandler) History(c *gin.Context) {
	user, ok := pathAddress(c, "address")
	if !ok {
		return
	}
	page := pagination(c)
	list, err := h.svc.History(c.Request.Context(), user, page)
	if err != nil {
		Fail(c, err)
		return
	}
	SuccessPaged(c, list, page)
}

// Validate POST /api/v1/bridge/validate
func (h *BridgeHandler) Validate(c *gin.Context) {
	from, ok := caller(c)
	if !ok {
		return
	}
	var req dto.ValidateTransferRequest
	if !bindJSON(c, &req) {
		return
	}
	amount, err := dto.ParseAmount("amount", req.Amount)
	if err != nil {
		Fail(c, err)
		return
	}
	tr := &service.TransferRequest{
		Kind:               model.TransferKindLock,
		Caller:             from,
		Amount:             amount,
		DestinationChainID: req.DestinationChainID,
	}
	switch model.TransferKind(req.Kind) {
	case "", model.TransferKindLock:
		token, err := dto.ParseAddress("token", req.Token)
		if err != nil {
			Fail(c, err)
			return
		}
		tr.Token = token
	case model.TransferKindBurn:
		tr.Kind = model.TransferKindBurn
	default:
		Fail(c, apperrors.ErrInvalidRequest.WithMessagef("unknown transfer kind %q", req.Kind))
		return
	}

	if err := h.svc.ValidateTransfer(c.Request.Context(), tr); err != nil {
		Fail(c, err)
		return
	}
	Success(c, gin.H{"valid": true})
}

// Fees GET /api/v1/bridge/fees/:src/:dst
func (h *BridgeHandler) Fees(c *gin.Context) {
	src, err := strconv.ParseInt(c.Param("src"), 10, 64)
	if err != nil {
		Fail(c, apperrors.ErrInvalidRequest.WithMessage("invalid source chain id"))
		return
	}
	dst, err := strconv.ParseInt(c.Param("dst"), 10, 64)
	if err != nil {
		Fail(c, apperrors.ErrInvalidRequest.WithMessage("invalid destination chain id"))
		return
	}
	quote, err := h.svc.QuoteFee(c.Request.Context(), src, dst)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, quote)
}
