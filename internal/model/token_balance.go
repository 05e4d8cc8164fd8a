package model

import "github.com/shopspring/decimal"

// TokenBalance 账户的代币托管余额
type TokenBalance struct {
	ID        int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	Token     string          `gorm:"column:token;type:varchar(42);not null;uniqueIndex:uk_token_account" json:"token"`
	Account   string          `gorm:"column:account;type:varchar(42);not null;uniqueIndex:uk_token_account;index" json:"account"`
	Balance   decimal.Decimal `gorm:"column:balance;type:decimal(36,0);not null;default:0" json:"balance"`
	CreatedAt int64           `gorm:"column:created_at;type:bigint;not null" json:"created_at"`
	UpdatedAt int64           `gorm:"column:updated_at;type:bigint;not null" json:"updated_at"`
}

// TableName 返回表名
func (TokenBalance) TableName() string {
	return "yield_token_balances"
}

// WrappedAsset 跨链桥发行的合成资产, 仅 Minter 可增发或销毁
type WrappedAsset struct {
	ID          int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	Token       string          `gorm:"column:token;type:varchar(42);uniqueIndex;not null" json:"token"`
	Name        string          `gorm:"column:name;type:varchar(64);not null" json:"name"`
	Symbol      string          `gorm:"column:symbol;type:varchar(16);not null" json:"symbol"`
	Minter      string          `gorm:"column:minter;type:varchar(42);not null" json:"minter"`
	TotalSupply decimal.Decimal `gorm:"column:total_supply;type:decimal(36,0);not null;default:0" json:"total_supply"`
	CreatedAt   int64           `gorm:"column:created_at;type:bigint;not null" json:"created_at"`
	UpdatedAt   int64           `gorm:"column:updated_at;type:bigint;not null" json:"updated_at"`
}

// TableName 返回表名
func (WrappedAsset) TableName() string {
	return "yield_wrapped_assets"
}
