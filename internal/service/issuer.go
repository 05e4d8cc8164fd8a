package service

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/eidos-exchange/eidos/eidos-yield/internal/model"
	"github.com/eidos-exchange/eidos/eidos-yield/internal/repository"
	apperrors "github.com/eidos-exchange/eidos/eidos-yield/pkg/errors"
)

// WrappedAssetIssuer 合成资产发行方, 只有登记的 minter 可以增发和销毁
type WrappedAssetIssuer struct {
	assets repository.WrappedAssetRepository
	ledger *TokenLedger
	token  common.Address
}

// NewWrappedAssetIssuer 创建发行方
func NewWrappedAssetIssuer(assets repository.WrappedAssetRepository, ledger *TokenLedger, token common.Address) *WrappedAssetIssuer {
	return &WrappedAssetIssuer{assets: assets, ledger: ledger, token: token}
}

// Token 合成资产地址
func (i *WrappedAssetIssuer) Token() common.Address {
	return i.token
}

// Init 登记合成资产, 已登记时保持原 minter
func (i *WrappedAssetIssuer) Init(ctx context.Context, name, symbol string, minter common.Address) error {
	return i.assets.Ensure(ctx, &model.WrappedAsset{
		Token:       model.AddressKey(i.token),
		Name:        name,
		Symbol:      symbol,
		Minter:      model.AddressKey(minter),
		TotalSupply: decimal.Zero,
	})
}

// Asset 合成资产信息
func (i *WrappedAssetIssuer) Asset(ctx context.Context) (*model.WrappedAsset, error) {
	asset, err := i.assets.Get(ctx, model.AddressKey(i.token), nil)
	return asset, translate(err)
}

func (i *WrappedAssetIssuer) authorize(ctx context.Context, caller common.Address) (*model.WrappedAsset, error) {
	asset, err := i.assets.Get(ctx, model.AddressKey(i.token), repository.ForUpdate)
	if err != nil {
		return nil, err
	}
	if common.HexToAddress(asset.Minter) != caller {
		return nil, apperrors.ErrForbidden.
			WithMessage("only the bridge may mint or burn the wrapped asset").
			WithDetail("caller", caller.Hex())
	}
	return asset, nil
}

// Mint 增发给 to, 需在执行器内调用
func (i *WrappedAssetIssuer) Mint(ctx context.Context, caller, to common.Address, amount decimal.Decimal) error {
	asset, err := i.authorize(ctx, caller)
	if err != nil {
		return err
	}
	if err := i.ledger.Credit(ctx, i.token, to, amount); err != nil {
		return err
	}
	return i.assets.UpdateSupply(ctx, asset.Token, asset.TotalSupply.Add(amount))
}

// Burn 从 from 销毁, 余额不足返回 ErrInsufficientBalance
func (i *WrappedAssetIssuer) Burn(ctx context.Context, caller, from common.Address, amount decimal.Decimal) error {
	asset, err := i.authorize(ctx, caller)
	if err != nil {
		return err
	}
	if err := i.ledger.Debit(ctx, i.token, from, amount); err != nil {
		return err
	}
	return i.assets.UpdateSupply(ctx, asset.Token, asset.TotalSupply.Sub(amount))
}
