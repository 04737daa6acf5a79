package wallet

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"learncode/internal/apperr"
)

var walletCols = []string{"id", "user_id", "balance_cents", "currency", "created_at", "updated_at"}

var purchaseCols = []string{"id", "user_id", "item_id", "price_cents", "created_at"}

const (
	upsertSQL   = "INSERT INTO wallets (user_id) VALUES ($1) ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id RETURNING id, user_id, balance_cents, currency, created_at, updated_at"
	creditSQL   = "INSERT INTO wallets (user_id, balance_cents) VALUES ($1, $2) ON CONFLICT (user_id) DO UPDATE SET balance_cents = wallets.balance_cents + EXCLUDED.balance_cents, updated_at = NOW() RETURNING id, user_id, balance_cents, currency, created_at, updated_at"
	debitSQL    = "UPDATE wallets SET balance_cents = balance_cents - $1, updated_at = NOW() WHERE user_id = $2 AND balance_cents >= $1 RETURNING id, user_id, balance_cents, currency, created_at, updated_at"
	journalSQL  = "INSERT INTO wallet_transactions (wallet_id, amount_cents, type, reference, balance_after) VALUES ($1, $2, $3, $4, $5)"
	getPurSQL   = "SELECT id, user_id, item_id, price_cents, created_at FROM purchases WHERE user_id = $1 AND item_id = $2"
	insertPuSQL = "INSERT INTO purchases (user_id, item_id, price_cents) VALUES ($1, $2, $3) ON CONFLICT (user_id, item_id) DO NOTHING RETURNING id, user_id, item_id, price_cents, created_at"
)

func setupWalletMock(t *testing.T) (Repository, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	sqlxDB := sqlx.NewDb(db, "sqlmock")
	repo := NewRepository(sqlxDB, time.Second)

	closer := func() { sqlxDB.Close() }
	return repo, mock, closer
}

func walletRow(id, userID int, balance int64) *sqlmock.Rows {
	return sqlmock.NewRows(walletCols).AddRow(id, userID, balance, "INR", time.Now(), time.Now())
}

func TestUpsertWallet(t *testing.T) {
	repo, mock, close := setupWalletMock(t)
	defer close()

	mock.ExpectQuery(regexp.QuoteMeta(upsertSQL)).
		WithArgs(10).
		WillReturnRows(walletRow(5, 10, 0))

	w, err := repo.UpsertWallet(context.Background(), 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, w.ID)
	assert.Equal(t, int64(0), w.BalanceCents)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertWallet_RejectsInitialBalance(t *testing.T) {
	repo, mock, close := setupWalletMock(t)
	defer close()

	_, err := repo.UpsertWallet(context.Background(), 10, 50)
	assert.True(t, apperr.IsKind(err, apperr.InvalidAmount))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetWallet_NotFound(t *testing.T) {
	repo, mock, close := setupWalletMock(t)
	defer close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, user_id, balance_cents, currency, created_at, updated_at FROM wallets WHERE user_id = $1")).
		WithArgs(3).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetWallet(context.Background(), 3)
	assert.True(t, apperr.IsKind(err, apperr.NotFound))
}

func TestCredit_UpsertsAndJournals(t *testing.T) {
	repo, mock, close := setupWalletMock(t)
	defer close()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(creditSQL)).
		WithArgs(20, 550).
		WillReturnRows(walletRow(7, 20, 550))
	mock.ExpectExec(regexp.QuoteMeta(journalSQL)).
		WithArgs(7, 550, EntryPaymentCredit, "order_1", 550).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	w, err := repo.Credit(context.Background(), 20, 550, Entry{Type: EntryPaymentCredit, Reference: "order_1"})
	require.NoError(t, err)
	assert.Equal(t, int64(550), w.BalanceCents)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCredit_InvalidAmount(t *testing.T) {
	repo, mock, close := setupWalletMock(t)
	defer close()

	for _, amount := range []int64{0, -5} {
		_, err := repo.Credit(context.Background(), 20, amount, Entry{Type: EntryAdminCredit})
		assert.True(t, apperr.IsKind(err, apperr.InvalidAmount))
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCredit_DuplicateReferenceRollsBack(t *testing.T) {
	repo, mock, close := setupWalletMock(t)
	defer close()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(creditSQL)).
		WithArgs(20, 550).
		WillReturnRows(walletRow(7, 20, 1100))
	mock.ExpectExec(regexp.QuoteMeta(journalSQL)).
		WithArgs(7, 550, EntryPaymentCredit, "order_1", 1100).
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	_, err := repo.Credit(context.Background(), 20, 550, Entry{Type: EntryPaymentCredit, Reference: "order_1"})
	assert.True(t, apperr.IsKind(err, apperr.Conflict))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDebit_Success(t *testing.T) {
	repo, mock, close := setupWalletMock(t)
	defer close()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(debitSQL)).
		WithArgs(500, 20).
		WillReturnRows(walletRow(7, 20, 1500))
	mock.ExpectExec(regexp.QuoteMeta(journalSQL)).
		WithArgs(7, -500, EntryAdminCredit, nil, 1500).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	w, err := repo.Debit(context.Background(), 20, 500, Entry{Type: EntryAdminCredit})
	require.NoError(t, err)
	assert.Equal(t, int64(1500), w.BalanceCents)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDebit_InsufficientBalance(t *testing.T) {
	repo, mock, close := setupWalletMock(t)
	defer close()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(debitSQL)).
		WithArgs(5000, 20).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := repo.Debit(context.Background(), 20, 5000, Entry{Type: EntryPurchase})
	assert.True(t, apperr.IsKind(err, apperr.InsufficientBalance))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDebit_InvalidAmount(t *testing.T) {
	repo, _, close := setupWalletMock(t)
	defer close()

	_, err := repo.Debit(context.Background(), 20, 0, Entry{Type: EntryPurchase})
	assert.True(t, apperr.IsKind(err, apperr.InvalidAmount))
}

func TestRecordPurchase_Idempotent(t *testing.T) {
	repo, mock, close := setupWalletMock(t)
	defer close()

	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(insertPuSQL)).
		WithArgs(1, 9, 100).
		WillReturnRows(sqlmock.NewRows(purchaseCols).AddRow(3, 1, 9, 100, now))

	p, owned, err := repo.RecordPurchase(context.Background(), 1, 9, 100)
	require.NoError(t, err)
	assert.False(t, owned)
	assert.Equal(t, 3, p.ID)

	mock.ExpectQuery(regexp.QuoteMeta(insertPuSQL)).
		WithArgs(1, 9, 100).
		WillReturnRows(sqlmock.NewRows(purchaseCols))
	mock.ExpectQuery(regexp.QuoteMeta(getPurSQL)).
		WithArgs(1, 9).
		WillReturnRows(sqlmock.NewRows(purchaseCols).AddRow(3, 1, 9, 100, now))

	again, owned, err := repo.RecordPurchase(context.Background(), 1, 9, 100)
	require.NoError(t, err)
	assert.True(t, owned)
	assert.Equal(t, p.ID, again.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettlePurchase(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name      string
		setup     func(mock sqlmock.Sqlmock)
		wantOwned bool
		wantKind  apperr.Kind
	}{
		{
			name: "debits and grants",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery(regexp.QuoteMeta(getPurSQL)).WithArgs(1, 9).WillReturnError(sql.ErrNoRows)
				mock.ExpectQuery(regexp.QuoteMeta(debitSQL)).WithArgs(100, 1).WillReturnRows(walletRow(4, 1, 0))
				mock.ExpectQuery(regexp.QuoteMeta(insertPuSQL)).WithArgs(1, 9, 100).
					WillReturnRows(sqlmock.NewRows(purchaseCols).AddRow(3, 1, 9, 100, now))
				mock.ExpectExec(regexp.QuoteMeta(journalSQL)).
					WithArgs(4, -100, EntryPurchase, "purchase:1:9", 0).
					WillReturnResult(sqlmock.NewResult(1, 1))
				mock.ExpectCommit()
			},
		},
		{
			name: "existing grant leaves balance alone",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery(regexp.QuoteMeta(getPurSQL)).WithArgs(1, 9).
					WillReturnRows(sqlmock.NewRows(purchaseCols).AddRow(3, 1, 9, 100, now))
				mock.ExpectCommit()
			},
			wantOwned: true,
		},
		{
			name: "insufficient balance",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery(regexp.QuoteMeta(getPurSQL)).WithArgs(1, 9).WillReturnError(sql.ErrNoRows)
				mock.ExpectQuery(regexp.QuoteMeta(debitSQL)).WithArgs(100, 1).WillReturnError(sql.ErrNoRows)
				mock.ExpectRollback()
			},
			wantKind: apperr.InsufficientBalance,
		},
		{
			name: "concurrent grant wins",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery(regexp.QuoteMeta(getPurSQL)).WithArgs(1, 9).WillReturnError(sql.ErrNoRows)
				mock.ExpectQuery(regexp.QuoteMeta(debitSQL)).WithArgs(100, 1).WillReturnRows(walletRow(4, 1, 0))
				mock.ExpectQuery(regexp.QuoteMeta(insertPuSQL)).WithArgs(1, 9, 100).
					WillReturnRows(sqlmock.NewRows(purchaseCols))
				mock.ExpectRollback()
				mock.ExpectQuery(regexp.QuoteMeta(getPurSQL)).WithArgs(1, 9).
					WillReturnRows(sqlmock.NewRows(purchaseCols).AddRow(3, 1, 9, 100, now))
			},
			wantOwned: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock, close := setupWalletMock(t)
			defer close()

			tt.setup(mock)

			p, owned, err := repo.SettlePurchase(context.Background(), 1, 9, 100)
			if tt.wantKind != "" {
				assert.True(t, apperr.IsKind(err, tt.wantKind), "got %v", err)
				assert.Nil(t, p)
			} else {
				require.NoError(t, err)
				assert.Equal(t, 3, p.ID)
				assert.Equal(t, tt.wantOwned, owned)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestCredit_WithinCallerTx(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "sqlmock")
	defer sqlxDB.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(creditSQL)).
		WithArgs(1, 300).
		WillReturnRows(walletRow(4, 1, 300))
	mock.ExpectExec(regexp.QuoteMeta(journalSQL)).
		WithArgs(4, 300, EntryPaymentCredit, "order_9", 300).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	tx, err := sqlxDB.Beginx()
	require.NoError(t, err)

	repo := NewRepository(sqlxDB, 0).WithTx(tx)
	_, err = repo.Credit(context.Background(), 1, 300, Entry{Type: EntryPaymentCredit, Reference: "order_9"})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHasPurchased(t *testing.T) {
	repo, mock, close := setupWalletMock(t)
	defer close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM purchases WHERE user_id = $1 AND item_id = $2)")).
		WithArgs(1, 9).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := repo.HasPurchased(context.Background(), 1, 9)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestListTransactions(t *testing.T) {
	repo, mock, close := setupWalletMock(t)
	defer close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM wallets WHERE user_id = $1")).
		WithArgs(20).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, wallet_id, amount_cents, type, reference, balance_after, created_at FROM wallet_transactions WHERE wallet_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3")).
		WithArgs(7, 50, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "wallet_id", "amount_cents", "type", "reference", "balance_after", "created_at"}).
			AddRow(2, 7, -100, EntryPurchase, "purchase:20:9", 400, time.Now()).
			AddRow(1, 7, 500, EntryPaymentCredit, nil, 500, time.Now()))

	txs, err := repo.ListTransactions(context.Background(), 20, 0, -1)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, "purchase:20:9", txs[0].ToResponse().Reference)
	assert.Empty(t, txs[1].ToResponse().Reference)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListTransactions_NoWallet(t *testing.T) {
	repo, mock, close := setupWalletMock(t)
	defer close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM wallets WHERE user_id = $1")).
		WithArgs(20).
		WillReturnError(sql.ErrNoRows)

	txs, err := repo.ListTransactions(context.Background(), 20, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestStoreErrorClassifiesTransient(t *testing.T) {
	repo, mock, close := setupWalletMock(t)
	defer close()

	mock.ExpectQuery(regexp.QuoteMeta(upsertSQL)).
		WithArgs(10).
		WillReturnError(&pq.Error{Code: "08006"})

	_, err := repo.UpsertWallet(context.Background(), 10, 0)
	assert.True(t, apperr.Retryable(err))
}
