// Package middleware HTTP 中间件
package middleware

import (
	"context"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/eidos-exchange/eidos/eidos-yield/internal/dto"
	"github.com/eidos-exchange/eidos/eidos-yield/pkg/crypto"
	apperrors "github.com/eidos-exchange/eidos/eidos-yield/pkg/errors"
	"github.com/eidos-exchange/eidos/eidos-yield/pkg/logger"
)

const (
	// AuthScheme EIP-712 认证方案
	AuthScheme = "EIP712"
	// AuthHeader 认证头名称
	AuthHeader = "Authorization"
	// WalletKey context 中的钱包地址键名
	WalletKey = "wallet"
)

// ReplayChecker 签名防重放
type ReplayChecker interface {
	CheckAndMark(ctx context.Context, wallet, timestamp, signature string) (bool, error)
}

// AuthConfig 认证中间件配置
type AuthConfig struct {
	Domain             crypto.Domain
	TimestampTolerance time.Duration
	ReplayGuard        ReplayChecker // 可为空
	Now                func() time.Time
}

// Auth 返回 EIP-712 认证中间件
//
// 格式: Authorization: EIP712 {wallet}:{timestamp}:{signature}
// 签名内容为 (wallet, method, path, timestamp) 的 EIP-712 结构化哈希.
// 域的 verifying_contract 为零地址时进入 mock 模式, 只解析不验签.
func Auth(cfg *AuthConfig) gin.HandlerFunc {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	tolerance := cfg.TimestampTolerance.Milliseconds()
	if tolerance <= 0 {
		tolerance = (5 * time.Minute).Milliseconds()
	}
	mock := cfg.Domain.IsMock()
	if mock {
		logger.Warn("eip712 auth running in mock mode, signatures are not verified")
	}

	return func(c *gin.Context) {
		header := c.GetHeader(AuthHeader)
		if header == "" {
			abort(c, apperrors.ErrUnauthorized.WithMessage("missing authorization header"))
			return
		}

		wallet, timestamp, signature, ok := parseAuthHeader(header)
		if !ok {
			abort(c, apperrors.ErrUnauthorized.WithMessage("invalid authorization format"))
			return
		}
		if !common.IsHexAddress(wallet) || !strings.HasPrefix(wallet, "0x") {
			abort(c, apperrors.ErrInvalidAddress.WithMessage("invalid wallet address"))
			return
		}
		ts, err := strconv.ParseInt(timestamp, 10, 64)
		if err != nil {
			abort(c, apperrors.ErrUnauthorized.WithMessage("invalid timestamp"))
			return
		}

		diff := now().UnixMilli() - ts
		if diff > tolerance || -diff > tolerance {
			logger.Warn("signature expired",
				zap.String("wallet", wallet),
				zap.Int64("timestamp", ts),
				zap.Int64("diff_ms", diff))
			abort(c, apperrors.ErrSignatureExpired)
			return
		}

		addr := common.HexToAddress(wallet)
		if !mock {
			sig, err := decodeSignature(signature)
			if err != nil {
				abort(c, apperrors.ErrInvalidSignature)
				return
			}
			req := crypto.Request{
				Wallet:    addr,
				Method:    c.Request.Method,
				Path:      c.Request.URL.Path,
				Timestamp: ts,
			}
			valid, err := crypto.VerifyRequest(cfg.Domain, req, sig)
			if err != nil || !valid {
				logger.Warn("signature verification failed",
					zap.String("wallet", wallet),
					zap.Error(err))
				abort(c, apperrors.ErrInvalidSignature)
				return
			}
		}

		// 验签通过后才占用签名
		if cfg.ReplayGuard != nil {
			first, err := cfg.ReplayGuard.CheckAndMark(c.Request.Context(), strings.ToLower(wallet), timestamp, signature)
			if err != nil {
				logger.Error("replay guard check failed", zap.Error(err))
			} else if !first {
				logger.Warn("signature replay detected",
					zap.String("wallet", wallet),
					zap.String("timestamp", timestamp))
				abort(c, apperrors.ErrSignatureReused)
				return
			}
		}

		c.Set(WalletKey, addr)
		c.Next()
	}
}

// Wallet 已认证的调用方地址
func Wallet(c *gin.Context) (common.Address, bool) {
	v, ok := c.Get(WalletKey)
	if !ok {
		return common.Address{}, false
	}
	addr, ok := v.(common.Address)
	return addr, ok
}

func parseAuthHeader(header string) (wallet, timestamp, signature string, ok bool) {
	payload, found := strings.CutPrefix(header, AuthScheme+" ")
	if !found {
		return "", "", "", false
	}
	parts := strings.SplitN(payload, ":", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", false
	}
	return parts[0], parts[1], parts[2], true
}

func decodeSignature(sig string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(sig, "0x"))
}

func abort(c *gin.Context, err *apperrors.Error) {
	status := err.HTTPStatus
	if status == 0 {
		status = http.StatusUnauthorized
	}
	c.AbortWithStatusJSON(status, dto.NewErrorResponse(err))
}
