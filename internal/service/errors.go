package service

import (
	"errors"

	"github.com/eidos-exchange/eidos/eidos-yield/internal/repository"
	apperrors "github.com/eidos-exchange/eidos/eidos-yield/pkg/errors"
)

// translate 将仓储层哨兵错误转换为业务错误码
func translate(err error) error {
	if err == nil {
		return nil
	}
	var bizErr *apperrors.Error
	if errors.As(err, &bizErr) {
		return err
	}
	switch {
	case errors.Is(err, repository.ErrInsufficientBalance):
		return apperrors.Wrap(apperrors.ErrInsufficientBalance, err)
	case errors.Is(err, repository.ErrInvalidDelta):
		return apperrors.Wrap(apperrors.ErrInvalidAmount, err)
	case errors.Is(err, repository.ErrMessageAlreadyProcessed):
		return apperrors.Wrap(apperrors.ErrMessageProcessed, err)
	case errors.Is(err, repository.ErrTransferNotFound):
		return apperrors.Wrap(apperrors.ErrTransferNotFound, err)
	case errors.Is(err, repository.ErrTransferAlreadyCompleted):
		return apperrors.Wrap(apperrors.ErrTransferCompleted, err)
	case errors.Is(err, repository.ErrSettlementNotFound):
		return apperrors.Wrap(apperrors.ErrSettlementNotFound, err)
	case errors.Is(err, repository.ErrSettlementStatusConflict):
		return apperrors.Wrap(apperrors.ErrInvalidStatus, err)
	case errors.Is(err, repository.ErrStrategyNotFound), errors.Is(err, repository.ErrWeightNotFound):
		return apperrors.Wrap(apperrors.ErrStrategyNotFound, err)
	case errors.Is(err, repository.ErrDepositNotFound):
		return apperrors.Wrap(apperrors.ErrDepositNotFound, err)
	case errors.Is(err, repository.ErrSnapshotNotFound), errors.Is(err, repository.ErrWrappedAssetNotFound),
		errors.Is(err, repository.ErrSettingsNotFound), errors.Is(err, repository.ErrRoleNotFound):
		return apperrors.Wrap(apperrors.ErrNotFound, err)
	default:
		return apperrors.Wrap(apperrors.ErrInternal, err)
	}
}
