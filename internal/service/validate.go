package service

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"

	"github.com/eidos-exchange/eidos/eidos-yield/internal/model"
	apperrors "github.com/eidos-exchange/eidos/eidos-yield/pkg/errors"
)

var bpsDenominator = decimal.NewFromInt(model.BpsDenominator)

// requirePositive 金额必须为正整数
func requirePositive(field string, amount decimal.Decimal) error {
	if !amount.IsPositive() || !model.IsWholeAmount(amount) {
		return apperrors.ErrInvalidAmount.WithMessagef("%s must be a positive integer, got %s", field, amount)
	}
	return nil
}

// requireNonNegative 金额必须为非负整数
func requireNonNegative(field string, amount decimal.Decimal) error {
	if !model.IsWholeAmount(amount) {
		return apperrors.ErrInvalidAmount.WithMessagef("%s must be a non-negative integer, got %s", field, amount)
	}
	return nil
}

// mulDivFloor floor(a * b / d), 参数均为非负整数
func mulDivFloor(a, b, d decimal.Decimal) decimal.Decimal {
	q, _ := a.Mul(b).QuoRem(d, 0)
	return q
}

// deriveTransferID keccak256(user, token, amount, srcChain, dstChain, timestamp, sequence)
func deriveTransferID(user, token common.Address, amount decimal.Decimal, srcChain, dstChain, timestamp, sequence int64) string {
	return crypto.Keccak256Hash(
		user.Bytes(),
		token.Bytes(),
		common.BigToHash(amount.BigInt()).Bytes(),
		common.BigToHash(big.NewInt(srcChain)).Bytes(),
		common.BigToHash(big.NewInt(dstChain)).Bytes(),
		common.BigToHash(big.NewInt(timestamp)).Bytes(),
		common.BigToHash(big.NewInt(sequence)).Bytes(),
	).Hex()
}
