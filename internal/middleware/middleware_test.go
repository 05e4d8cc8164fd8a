package middleware

import (
	"crypto/ecdsa"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eidos-exchange/eidos/eidos-yield/internal/cache"
	"github.com/eidos-exchange/eidos/eidos-yield/internal/dto"
	"github.com/eidos-exchange/eidos/eidos-yield/pkg/crypto"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var (
	testNow    = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	testDomain = crypto.Domain{
		Name:              "EidosYield",
		Version:           "1",
		ChainID:           31337,
		VerifyingContract: "0x00000000000000000000000000000000000000aa",
	}
)

func newAuthRouter(t *testing.T, domain crypto.Domain) *gin.Engine {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	r := gin.New()
	r.Use(Auth(&AuthConfig{
		Domain:             domain,
		TimestampTolerance: 5 * time.Minute,
		ReplayGuard:        cache.NewReplayGuard(rdb),
		Now:                func() time.Time { return testNow },
	}))
	r.POST("/api/v1/deposits", func(c *gin.Context) {
		wallet, ok := Wallet(c)
		require.True(t, ok)
		c.JSON(http.StatusOK, dto.NewSuccessResponse(wallet.Hex()))
	})
	return r
}

func signHeader(t *testing.T, key *ecdsa.PrivateKey, method, path string, ts int64) string {
	wallet := ethcrypto.PubkeyToAddress(key.PublicKey)
	req := crypto.Request{Wallet: wallet, Method: method, Path: path, Timestamp: ts}
	sig, err := ethcrypto.Sign(crypto.TypedDataHash(testDomain, req.StructHash()), key)
	require.NoError(t, err)
	return fmt.Sprintf("%s %s:%d:0x%s", AuthScheme, wallet.Hex(), ts, hex.EncodeToString(sig))
}

func do(r *gin.Engine, header string) (*httptest.ResponseRecorder, *dto.Response) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/deposits", nil)
	if header != "" {
		req.Header.Set(AuthHeader, header)
	}
	r.ServeHTTP(w, req)
	var resp dto.Response
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return w, &resp
}

func TestAuth_ValidSignature(t *testing.T) {
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	r := newAuthRouter(t, testDomain)

	header := signHeader(t, key, http.MethodPost, "/api/v1/deposits", testNow.UnixMilli())
	w, resp := do(r, header)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, dto.CodeSuccess, resp.Code)
	assert.Equal(t, ethcrypto.PubkeyToAddress(key.PublicKey).Hex(), resp.Data)

	// 同一签名第二次使用
	w, resp = do(r, header)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "SIGNATURE_REUSED", resp.Code)
}

func TestAuth_WrongPathSignature(t *testing.T) {
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	r := newAuthRouter(t, testDomain)

	header := signHeader(t, key, http.MethodPost, "/api/v1/transfers", testNow.UnixMilli())
	w, resp := do(r, header)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "INVALID_SIGNATURE", resp.Code)
}

func TestAuth_Expired(t *testing.T) {
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	r := newAuthRouter(t, testDomain)

	old := testNow.Add(-6 * time.Minute).UnixMilli()
	w, resp := do(r, signHeader(t, key, http.MethodPost, "/api/v1/deposits", old))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "SIGNATURE_EXPIRED", resp.Code)

	future := testNow.Add(6 * time.Minute).UnixMilli()
	_, resp = do(r, signHeader(t, key, http.MethodPost, "/api/v1/deposits", future))
	assert.Equal(t, "SIGNATURE_EXPIRED", resp.Code)
}

func TestAuth_MalformedHeaders(t *testing.T) {
	r := newAuthRouter(t, testDomain)
	ts := testNow.UnixMilli()

	tests := []struct {
		name   string
		header string
		code   string
	}{
		{"missing", "", "UNAUTHORIZED"},
		{"wrong scheme", fmt.Sprintf("Bearer 0x00000000000000000000000000000000000000b1:%d:0xab", ts), "UNAUTHORIZED"},
		{"missing parts", "EIP712 0x00000000000000000000000000000000000000b1", "UNAUTHORIZED"},
		{"bad wallet", fmt.Sprintf("EIP712 0xnothex:%d:0xab", ts), "INVALID_ADDRESS"},
		{"bad timestamp", "EIP712 0x00000000000000000000000000000000000000b1:abc:0xab", "UNAUTHORIZED"},
		{"bad signature hex", fmt.Sprintf("EIP712 0x00000000000000000000000000000000000000b1:%d:0xzz", ts), "INVALID_SIGNATURE"},
		{"short signature", fmt.Sprintf("EIP712 0x00000000000000000000000000000000000000b1:%d:0xabcd", ts), "INVALID_SIGNATURE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, resp := do(r, tt.header)
			assert.GreaterOrEqual(t, w.Code, 400)
			assert.Equal(t, tt.code, resp.Code)
		})
	}
}

func TestAuth_MockMode(t *testing.T) {
	mockDomain := testDomain
	mockDomain.VerifyingContract = ""
	r := newAuthRouter(t, mockDomain)

	wallet := "0x00000000000000000000000000000000000000b1"
	header := fmt.Sprintf("EIP712 %s:%d:0xdeadbeef", wallet, testNow.UnixMilli())
	w, resp := do(r, header)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, common.HexToAddress(wallet).Hex(), resp.Data)

	// mock 模式仍然防重放
	_, resp = do(r, header)
	assert.Equal(t, "SIGNATURE_REUSED", resp.Code)
}

func TestRecovery(t *testing.T) {
	r := gin.New()
	r.Use(Recovery(), Logger(), Metrics())
	r.GET("/panic", func(c *gin.Context) { panic("boom") })
	r.GET("/ok", func(c *gin.Context) { c.JSON(http.StatusOK, dto.NewSuccessResponse(nil)) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "INTERNAL_ERROR", resp.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
