// Package crypto EIP-712 请求签名的哈希与验签
package crypto

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Domain EIP-712 域
type Domain struct {
	Name              string `yaml:"name" json:"name"`
	Version           string `yaml:"version" json:"version"`
	ChainID           int64  `yaml:"chain_id" json:"chainId"`
	VerifyingContract string `yaml:"verifying_contract" json:"verifyingContract"`
}

// IsMock 零地址合约视为开发模式, 不校验签名
func (d Domain) IsMock() bool {
	return common.HexToAddress(d.VerifyingContract) == (common.Address{})
}

var (
	domainTypeHash  = ethcrypto.Keccak256([]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"))
	requestTypeHash = ethcrypto.Keccak256([]byte("Request(address wallet,string method,string path,uint256 timestamp)"))
)

// Separator 域分隔哈希
func (d Domain) Separator() []byte {
	return ethcrypto.Keccak256(
		domainTypeHash,
		ethcrypto.Keccak256([]byte(d.Name)),
		ethcrypto.Keccak256([]byte(d.Version)),
		math.U256Bytes(big.NewInt(d.ChainID)),
		common.LeftPadBytes(common.HexToAddress(d.VerifyingContract).Bytes(), 32),
	)
}

// Request 需要签名的 API 请求
type Request struct {
	Wallet    common.Address
	Method    string
	Path      string
	Timestamp int64 // 毫秒
}

// StructHash Request 结构哈希
func (r Request) StructHash() []byte {
	return ethcrypto.Keccak256(
		requestTypeHash,
		common.LeftPadBytes(r.Wallet.Bytes(), 32),
		ethcrypto.Keccak256([]byte(r.Method)),
		ethcrypto.Keccak256([]byte(r.Path)),
		math.U256Bytes(big.NewInt(r.Timestamp)),
	)
}

// TypedDataHash \x19\x01 ‖ domainSeparator ‖ structHash
func TypedDataHash(domain Domain, structHash []byte) []byte {
	return ethcrypto.Keccak256([]byte{0x19, 0x01}, domain.Separator(), structHash)
}

// RecoverAddress 从 65 字节签名恢复签名者, v 取 0/1 或 27/28
func RecoverAddress(hash, signature []byte) (common.Address, error) {
	if len(signature) != 65 {
		return common.Address{}, fmt.Errorf("invalid signature length: %d", len(signature))
	}
	sig := make([]byte, 65)
	copy(sig, signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	pub, err := ethcrypto.SigToPub(hash, sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("recover public key: %w", err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}

// VerifyRequest 校验请求签名是否来自 req.Wallet
func VerifyRequest(domain Domain, req Request, signature []byte) (bool, error) {
	signer, err := RecoverAddress(TypedDataHash(domain, req.StructHash()), signature)
	if err != nil {
		return false, err
	}
	return signer == req.Wallet, nil
}
