package auth

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/eidos-exchange/eidos/eidos-yield/internal/config"
	"github.com/eidos-exchange/eidos/eidos-yield/internal/model"
	"github.com/eidos-exchange/eidos/eidos-yield/internal/repository"
	apperrors "github.com/eidos-exchange/eidos/eidos-yield/pkg/errors"
)

var (
	owner    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	operator = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	stranger = common.HexToAddress("0x00000000000000000000000000000000000000c3")
)

func newTestAuthorizer(t *testing.T) *Authorizer {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&model.RoleBinding{}))
	return NewAuthorizer(repository.NewRoleRepository(db))
}

func TestAuthorizer_BootstrapAndRequire(t *testing.T) {
	a := newTestAuthorizer(t)
	ctx := context.Background()

	require.NoError(t, a.Bootstrap(ctx, config.RolesConfig{
		Owner:          owner.Hex(),
		BridgeOperator: operator.Hex(),
	}))

	assert.NoError(t, a.Require(ctx, model.ComponentBridge, owner, model.RoleOperator, model.RoleOwner))
	assert.NoError(t, a.Require(ctx, model.ComponentBridge, operator, model.RoleOperator, model.RoleOwner))

	err := a.Require(ctx, model.ComponentBridge, stranger, model.RoleOperator, model.RoleOwner)
	assert.True(t, apperrors.IsForbidden(err))

	// settlement 没有配置 validator
	err = a.Require(ctx, model.ComponentSettlement, operator, model.RoleValidator)
	assert.True(t, apperrors.IsForbidden(err))

	// 零地址永远无权限
	err = a.Require(ctx, model.ComponentSettlement, common.Address{}, model.RoleValidator)
	assert.True(t, apperrors.IsForbidden(err))
}

func TestAuthorizer_BootstrapKeepsExisting(t *testing.T) {
	a := newTestAuthorizer(t)
	ctx := context.Background()

	require.NoError(t, a.Grant(ctx, model.ComponentBridge, model.RoleOperator, stranger, owner))
	require.NoError(t, a.Bootstrap(ctx, config.RolesConfig{BridgeOperator: operator.Hex()}))

	holder, ok, err := a.Holder(ctx, model.ComponentBridge, model.RoleOperator)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, stranger, holder)
}

func TestAuthorizer_Grant(t *testing.T) {
	a := newTestAuthorizer(t)
	ctx := context.Background()

	require.NoError(t, a.Grant(ctx, model.ComponentSettlement, model.RoleValidator, operator, owner))
	require.NoError(t, a.Grant(ctx, model.ComponentSettlement, model.RoleValidator, stranger, owner))

	holder, ok, err := a.Holder(ctx, model.ComponentSettlement, model.RoleValidator)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, stranger, holder)

	err = a.Grant(ctx, model.ComponentSettlement, model.Role("admin"), operator, owner)
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidRequest))

	err = a.Grant(ctx, model.ComponentSettlement, model.RoleValidator, common.Address{}, owner)
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidAddress))
}
