package service

import (
	"context"
	"testing"
	"time"

	"ticketledger/internal/model"
	"ticketledger/internal/repository"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func personRow(id int64, role string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{"id", "name", "email", "role", "role_data", "created_at", "updated_at"}).
		AddRow(id, "Ada", "ada@example.com", role, "{}", now, now)
}

func TestAccountService_GetBalance(t *testing.T) {
	ctx := context.Background()

	t.Run("returns current balance", func(t *testing.T) {
		gdb, mock := newMockDB(t)
		svc := NewAccountService(gdb)

		mock.ExpectQuery("SELECT .+ FROM `ticket_account` WHERE student_id = .+").
			WithArgs(int64(7)).
			WillReturnRows(accountRow(sqlmock.NewRows(accountColumns()), 1, 7, 42, 3))

		balance, err := svc.GetBalance(ctx, 7)
		require.NoError(t, err)
		assert.Equal(t, int64(42), balance)
	})

	t.Run("unknown student has no account", func(t *testing.T) {
		gdb, mock := newMockDB(t)
		svc := NewAccountService(gdb)

		mock.ExpectQuery("SELECT .+ FROM `ticket_account` WHERE student_id = .+").
			WithArgs(int64(99)).
			WillReturnRows(sqlmock.NewRows(accountColumns()))

		_, err := svc.GetBalance(ctx, 99)
		assert.ErrorIs(t, err, repository.ErrAccountNotFound)
	})
}

func TestAccountService_GetOrCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("creates account on first need", func(t *testing.T) {
		gdb, mock := newMockDB(t)
		svc := NewAccountService(gdb)

		mock.ExpectQuery("SELECT .+ FROM `person` WHERE id = .+").
			WithArgs(int64(7)).
			WillReturnRows(personRow(7, model.RoleStudent))
		mock.ExpectQuery("SELECT .+ FROM `ticket_account` WHERE student_id = .+").
			WithArgs(int64(7)).
			WillReturnRows(sqlmock.NewRows(accountColumns()))
		mock.ExpectExec("INSERT INTO `ticket_account`").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectQuery("SELECT .+ FROM `ticket_account` WHERE student_id = .+").
			WithArgs(int64(7)).
			WillReturnRows(accountRow(sqlmock.NewRows(accountColumns()), 1, 7, 0, 0))

		account, err := svc.GetOrCreate(ctx, 7)
		require.NoError(t, err)
		assert.Equal(t, int64(0), account.Balance)
		assert.Equal(t, int64(7), account.StudentID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("existing account is returned as is", func(t *testing.T) {
		gdb, mock := newMockDB(t)
		svc := NewAccountService(gdb)

		mock.ExpectQuery("SELECT .+ FROM `person` WHERE id = .+").
			WithArgs(int64(7)).
			WillReturnRows(personRow(7, model.RoleStudent))
		mock.ExpectQuery("SELECT .+ FROM `ticket_account` WHERE student_id = .+").
			WithArgs(int64(7)).
			WillReturnRows(accountRow(sqlmock.NewRows(accountColumns()), 1, 7, 42, 3))

		account, err := svc.GetOrCreate(ctx, 7)
		require.NoError(t, err)
		assert.Equal(t, int64(42), account.Balance)
	})

	t.Run("tutors do not own ticket accounts", func(t *testing.T) {
		gdb, mock := newMockDB(t)
		svc := NewAccountService(gdb)

		mock.ExpectQuery("SELECT .+ FROM `person` WHERE id = .+").
			WithArgs(int64(8)).
			WillReturnRows(personRow(8, model.RoleTutor))

		_, err := svc.GetOrCreate(ctx, 8)
		assert.ErrorIs(t, err, ErrNotAStudent)
	})

	t.Run("unknown person", func(t *testing.T) {
		gdb, mock := newMockDB(t)
		svc := NewAccountService(gdb)

		mock.ExpectQuery("SELECT .+ FROM `person` WHERE id = .+").
			WithArgs(int64(99)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "role", "role_data", "created_at", "updated_at"}))

		_, err := svc.GetOrCreate(ctx, 99)
		assert.ErrorIs(t, err, repository.ErrPersonNotFound)
	})
}

func TestAccountService_GetTransaction(t *testing.T) {
	ctx := context.Background()

	t.Run("finds by number", func(t *testing.T) {
		gdb, mock := newMockDB(t)
		svc := NewAccountService(gdb)

		now := time.Now()
		mock.ExpectQuery("SELECT .+ FROM `ticket_transaction` WHERE transaction_no = .+").
			WithArgs("TXN1").
			WillReturnRows(sqlmock.NewRows(transactionColumns()).
				AddRow(1, "TXN1", 1, 7, model.TransactionTypeCredit, 50, nil, "RCH1", 0, 50, "", now))

		trans, err := svc.GetTransaction(ctx, "TXN1")
		require.NoError(t, err)
		assert.Equal(t, int64(50), trans.BalanceAfter)
	})

	t.Run("unknown number", func(t *testing.T) {
		gdb, mock := newMockDB(t)
		svc := NewAccountService(gdb)

		mock.ExpectQuery("SELECT .+ FROM `ticket_transaction` WHERE transaction_no = .+").
			WithArgs("TXN404").
			WillReturnRows(sqlmock.NewRows(transactionColumns()))

		_, err := svc.GetTransaction(ctx, "TXN404")
		assert.ErrorIs(t, err, repository.ErrTransactionNotFound)
	})
}

func TestAccountService_ListTransactions(t *testing.T) {
	ctx := context.Background()
	gdb, mock := newMockDB(t)
	svc := NewAccountService(gdb)

	now := time.Now()
	mock.ExpectQuery("SELECT .+ FROM `ticket_account` WHERE student_id = .+").
		WithArgs(int64(7)).
		WillReturnRows(accountRow(sqlmock.NewRows(accountColumns()), 1, 7, 40, 2))
	mock.ExpectQuery("SELECT count(.+) FROM `ticket_transaction`").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery("SELECT .+ FROM `ticket_transaction` WHERE student_id = .+ ORDER BY created_at DESC").
		WillReturnRows(sqlmock.NewRows(transactionColumns()).
			AddRow(2, "TXN2", 1, 7, model.TransactionTypeDebit, 10, "L1", nil, 50, 40, "", now).
			AddRow(1, "TXN1", 1, 7, model.TransactionTypeCredit, 50, nil, "RCH1", 0, 50, "", now.Add(-time.Minute)))

	transactions, total, err := svc.ListTransactions(ctx, 7, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, transactions, 2)
	// Newest first: the debit chains off the credit.
	assert.Equal(t, transactions[1].BalanceAfter, transactions[0].BalanceBefore)
}
