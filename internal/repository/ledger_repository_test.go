package repository

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eidos-exchange/eidos/eidos-yield/internal/model"
)

func balanceColumns() []string {
	return []string{"id", "token", "account", "balance", "created_at", "updated_at"}
}

func TestBalanceRepository_Debit(t *testing.T) {
	db, mock, cleanup := setupMockDB(t)
	defer cleanup()
	repo := NewBalanceRepository(db)

	mock.ExpectQuery(`SELECT \* FROM "yield_token_balances" WHERE token = \$1 AND account = \$2 .* FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows(balanceColumns()).AddRow(1, "0xt", "0xa", "100", 1, 1))
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "yield_token_balances" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	left, err := repo.Debit(context.Background(), "0xt", "0xa", decimal.NewFromInt(40))
	require.NoError(t, err)
	assert.Equal(t, "60", left.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBalanceRepository_Debit_Insufficient(t *testing.T) {
	db, mock, cleanup := setupMockDB(t)
	defer cleanup()
	repo := NewBalanceRepository(db)

	mock.ExpectQuery(`SELECT \* FROM "yield_token_balances"`).
		WillReturnRows(sqlmock.NewRows(balanceColumns()).AddRow(1, "0xt", "0xa", "10", 1, 1))

	_, err := repo.Debit(context.Background(), "0xt", "0xa", decimal.NewFromInt(40))
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	mock.ExpectQuery(`SELECT \* FROM "yield_token_balances"`).
		WillReturnRows(sqlmock.NewRows(balanceColumns()))
	_, err = repo.Debit(context.Background(), "0xt", "0xb", decimal.NewFromInt(1))
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	_, err = repo.Debit(context.Background(), "0xt", "0xb", decimal.NewFromInt(-1))
	assert.ErrorIs(t, err, ErrInvalidDelta)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBalanceRepository_Credit_NewAccount(t *testing.T) {
	db, mock, cleanup := setupMockDB(t)
	defer cleanup()
	repo := NewBalanceRepository(db)

	mock.ExpectQuery(`SELECT \* FROM "yield_token_balances"`).
		WillReturnRows(sqlmock.NewRows(balanceColumns()))
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "yield_token_balances"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(5))
	mock.ExpectCommit()

	bal, err := repo.Credit(context.Background(), "0xt", "0xa", decimal.NewFromInt(25))
	require.NoError(t, err)
	assert.Equal(t, "25", bal.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransferRepository_MarkCompleted(t *testing.T) {
	db, mock, cleanup := setupMockDB(t)
	defer cleanup()
	repo := NewTransferRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "yield_cross_chain_transfers" SET .* WHERE id = \$\d+ AND is_completed = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	require.NoError(t, repo.MarkCompleted(context.Background(), 1, "msg-1", true))

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "yield_cross_chain_transfers"`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	err := repo.MarkCompleted(context.Background(), 1, "msg-2", true)
	assert.ErrorIs(t, err, ErrTransferAlreadyCompleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageRepository_Mark(t *testing.T) {
	db, mock, cleanup := setupMockDB(t)
	defer cleanup()
	repo := NewMessageRepository(db)

	mock.ExpectQuery(`SELECT count\(\*\) FROM "yield_processed_messages" WHERE scope = \$1 AND message_id = \$2`).
		WithArgs(model.MessageScopeBridge, "msg-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "yield_processed_messages"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()
	require.NoError(t, repo.Mark(context.Background(), model.MessageScopeBridge, "msg-1", 3))

	mock.ExpectQuery(`SELECT count\(\*\) FROM "yield_processed_messages"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	err := repo.Mark(context.Background(), model.MessageScopeBridge, "msg-1", 4)
	assert.ErrorIs(t, err, ErrMessageAlreadyProcessed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCounterRepository_Next(t *testing.T) {
	db, mock, cleanup := setupMockDB(t)
	defer cleanup()
	repo := NewCounterRepository(db)
	cols := []string{"id", "name", "value", "updated_at"}

	mock.ExpectQuery(`SELECT \* FROM "yield_ledger_counters" WHERE name = \$1 .* FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows(cols))
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "yield_ledger_counters"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()

	n, err := repo.Next(context.Background(), model.CounterLedgerHeight)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	mock.ExpectQuery(`SELECT \* FROM "yield_ledger_counters"`).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(1, model.CounterLedgerHeight, 41, 1))
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "yield_ledger_counters" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	n, err = repo.Next(context.Background(), model.CounterLedgerHeight)
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSnapshotRepository_ListRecentChronological(t *testing.T) {
	db, mock, cleanup := setupMockDB(t)
	defer cleanup()
	repo := NewSnapshotRepository(db)
	cols := []string{"id", "total_value", "total_yield", "average_apy", "strategies", "block_height", "timestamp", "created_at"}

	mock.ExpectQuery(`SELECT \* FROM "yield_snapshots" ORDER BY id DESC LIMIT \$1`).
		WithArgs(2).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(3, "30", "3", "300", "[]", 3, 3000, 3000).
			AddRow(2, "20", "2", "200", "[]", 2, 2000, 2000))

	list, err := repo.ListRecent(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, int64(2), list[0].ID)
	assert.Equal(t, int64(3), list[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSnapshotRepository_ListSince(t *testing.T) {
	db, mock, cleanup := setupMockDB(t)
	defer cleanup()
	repo := NewSnapshotRepository(db)
	cols := []string{"id", "total_value", "total_yield", "average_apy", "strategies", "block_height", "timestamp", "created_at"}

	mock.ExpectQuery(`SELECT \* FROM "yield_snapshots" WHERE timestamp >= \$1 ORDER BY timestamp ASC, id ASC`).
		WithArgs(int64(2000)).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(2, "20", "2", "200", "[]", 2, 2000, 2000).
			AddRow(3, "30", "3", "300", "[]", 3, 3000, 3000))

	list, err := repo.ListSince(context.Background(), 2000)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, int64(2000), list[0].Timestamp)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDepositRepository_RecordWithdrawalNotFound(t *testing.T) {
	db, mock, cleanup := setupMockDB(t)
	defer cleanup()
	repo := NewDepositRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "yield_user_deposits" SET .*"fees_paid"=fees_paid \+ \$\d`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := repo.RecordWithdrawal(context.Background(), 9, decimal.NewFromInt(10), decimal.NewFromInt(1))
	assert.ErrorIs(t, err, ErrDepositNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxRepository_MarkFailed(t *testing.T) {
	db, mock, cleanup := setupMockDB(t)
	defer cleanup()
	repo := NewOutboxRepository(db)

	mock.ExpectExec(`UPDATE yield_outbox_messages\s+SET retry_count = retry_count \+ 1`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkFailed(context.Background(), 1, assert.AnError))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxRepository_FetchAndClaim_Empty(t *testing.T) {
	db, mock, cleanup := setupMockDB(t)
	defer cleanup()
	repo := NewOutboxRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM yield_outbox_messages`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectCommit()

	msgs, err := repo.FetchAndClaim(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.NoError(t, mock.ExpectationsWereMet())
}
