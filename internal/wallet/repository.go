package wallet

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"learncode/internal/apperr"
	"learncode/internal/db"
	"learncode/internal/metrics"
)

const walletColumns = `id, user_id, balance_cents, currency, created_at, updated_at`

const purchaseColumns = `id, user_id, item_id, price_cents, created_at`

var errAlreadyOwned = errors.New("purchase already recorded")

type repository struct {
	db      *sqlx.DB
	tx      *sqlx.Tx
	timeout time.Duration
}

func NewRepository(conn *sqlx.DB, timeout time.Duration) Repository {
	if timeout <= 0 {
		timeout = db.DefaultTimeout
	}
	return &repository{db: conn, timeout: timeout}
}

func (r *repository) WithTx(tx *sqlx.Tx) Repository {
	return &repository{db: r.db, tx: tx, timeout: r.timeout}
}

func (r *repository) ext() sqlx.ExtContext {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

// inTx runs fn in the bound transaction, or in a fresh one.
func (r *repository) inTx(ctx context.Context, fn func(q sqlx.ExtContext) error) error {
	if r.tx != nil {
		return fn(r.tx)
	}
	return db.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		return fn(tx)
	})
}

func (r *repository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout)
}

func (r *repository) UpsertWallet(ctx context.Context, userID int, initialCents int64) (*Wallet, error) {
	if initialCents != 0 {
		return nil, apperr.New(apperr.InvalidAmount, "initial balance must be zero")
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	w := &Wallet{}
	err := sqlx.GetContext(ctx, r.ext(), w,
		`INSERT INTO wallets (user_id) VALUES ($1)
		 ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		 RETURNING `+walletColumns,
		userID,
	)
	if err != nil {
		return nil, db.StoreError(ctx, "upsert wallet", err)
	}
	return w, nil
}

func (r *repository) GetWallet(ctx context.Context, userID int) (*Wallet, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	w := &Wallet{}
	err := sqlx.GetContext(ctx, r.ext(), w, `SELECT `+walletColumns+` FROM wallets WHERE user_id = $1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "wallet not found")
	}
	if err != nil {
		return nil, db.StoreError(ctx, "get wallet", err)
	}
	return w, nil
}

// Credit adds amountCents in one upsert so a missing wallet is created on the
// fly, then journals the entry in the same transaction.
func (r *repository) Credit(ctx context.Context, userID int, amountCents int64, entry Entry) (*Wallet, error) {
	if amountCents <= 0 {
		return nil, apperr.New(apperr.InvalidAmount, "credit amount must be positive")
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	w := &Wallet{}
	err := r.inTx(ctx, func(q sqlx.ExtContext) error {
		err := sqlx.GetContext(ctx, q, w,
			`INSERT INTO wallets (user_id, balance_cents) VALUES ($1, $2)
			 ON CONFLICT (user_id) DO UPDATE SET balance_cents = wallets.balance_cents + EXCLUDED.balance_cents, updated_at = NOW()
			 RETURNING `+walletColumns,
			userID, amountCents,
		)
		if err != nil {
			return err
		}
		return insertJournal(ctx, q, w, amountCents, entry)
	})
	if err != nil {
		return nil, db.StoreError(ctx, "credit wallet", err)
	}

	metrics.RecordLedgerEntry(entry.Type, amountCents)
	return w, nil
}

// Debit subtracts amountCents only if the balance covers it. The check and
// the decrement are a single statement, so concurrent debits serialize on the
// wallet row and the balance never goes negative.
func (r *repository) Debit(ctx context.Context, userID int, amountCents int64, entry Entry) (*Wallet, error) {
	if amountCents <= 0 {
		return nil, apperr.New(apperr.InvalidAmount, "debit amount must be positive")
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	w := &Wallet{}
	err := r.inTx(ctx, func(q sqlx.ExtContext) error {
		if err := debit(ctx, q, w, userID, amountCents); err != nil {
			return err
		}
		return insertJournal(ctx, q, w, -amountCents, entry)
	})
	if err != nil {
		return nil, db.StoreError(ctx, "debit wallet", err)
	}

	metrics.RecordLedgerEntry(entry.Type, -amountCents)
	return w, nil
}

func (r *repository) RecordPurchase(ctx context.Context, userID, itemID int, priceCents int64) (*Purchase, bool, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	p := &Purchase{}
	err := insertPurchase(ctx, r.ext(), p, userID, itemID, priceCents)
	if errors.Is(err, errAlreadyOwned) {
		existing, err := r.getPurchase(ctx, r.ext(), userID, itemID)
		if err != nil {
			return nil, false, err
		}
		return existing, true, nil
	}
	if err != nil {
		return nil, false, db.StoreError(ctx, "record purchase", err)
	}
	return p, false, nil
}

// SettlePurchase debits the price and records the grant atomically. An
// existing grant is returned untouched.
func (r *repository) SettlePurchase(ctx context.Context, userID, itemID int, priceCents int64) (*Purchase, bool, error) {
	if priceCents < 0 {
		return nil, false, apperr.New(apperr.InvalidAmount, "price must not be negative")
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	p := &Purchase{}
	alreadyOwned := false
	err := r.inTx(ctx, func(q sqlx.ExtContext) error {
		existing, err := r.getPurchase(ctx, q, userID, itemID)
		if err == nil {
			*p = *existing
			alreadyOwned = true
			return nil
		}
		if !apperr.IsKind(err, apperr.NotFound) {
			return err
		}

		w := &Wallet{}
		if priceCents > 0 {
			if err := debit(ctx, q, w, userID, priceCents); err != nil {
				return err
			}
		}

		if err := insertPurchase(ctx, q, p, userID, itemID, priceCents); err != nil {
			return err
		}

		if priceCents > 0 {
			return insertJournal(ctx, q, w, -priceCents, Entry{
				Type:      EntryPurchase,
				Reference: PurchaseReference(userID, itemID),
			})
		}
		return nil
	})

	// A concurrent settle won the grant insert; our debit rolled back with it.
	if errors.Is(err, errAlreadyOwned) {
		if r.tx != nil {
			return nil, false, apperr.Wrap(apperr.Conflict, "purchase recorded concurrently", err)
		}
		existing, err := r.getPurchase(ctx, r.db, userID, itemID)
		if err != nil {
			return nil, false, err
		}
		return existing, true, nil
	}
	if err != nil {
		if apperr.IsKind(err, apperr.InsufficientBalance) {
			metrics.RecordInsufficientBalance()
		}
		return nil, false, db.StoreError(ctx, "settle purchase", err)
	}

	if !alreadyOwned && priceCents > 0 {
		metrics.RecordLedgerEntry(EntryPurchase, -priceCents)
	}
	return p, alreadyOwned, nil
}

func (r *repository) GetPurchase(ctx context.Context, userID, itemID int) (*Purchase, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	return r.getPurchase(ctx, r.ext(), userID, itemID)
}

func (r *repository) getPurchase(ctx context.Context, q sqlx.QueryerContext, userID, itemID int) (*Purchase, error) {
	p := &Purchase{}
	err := sqlx.GetContext(ctx, q, p,
		`SELECT `+purchaseColumns+` FROM purchases WHERE user_id = $1 AND item_id = $2`,
		userID, itemID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "purchase not found")
	}
	if err != nil {
		return nil, db.StoreError(ctx, "get purchase", err)
	}
	return p, nil
}

func (r *repository) HasPurchased(ctx context.Context, userID, itemID int) (bool, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	ok, err := db.Exists(ctx, r.ext(),
		`SELECT EXISTS(SELECT 1 FROM purchases WHERE user_id = $1 AND item_id = $2)`,
		userID, itemID,
	)
	if err != nil {
		return false, db.StoreError(ctx, "check purchase", err)
	}
	return ok, nil
}

func (r *repository) ListPurchases(ctx context.Context, userID int) ([]Purchase, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	purchases := []Purchase{}
	err := sqlx.SelectContext(ctx, r.ext(), &purchases,
		`SELECT `+purchaseColumns+` FROM purchases WHERE user_id = $1 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, db.StoreError(ctx, "list purchases", err)
	}
	return purchases, nil
}

func (r *repository) ListTransactions(ctx context.Context, userID int, limit, offset int) ([]Transaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var walletID int
	err := sqlx.GetContext(ctx, r.ext(), &walletID, `SELECT id FROM wallets WHERE user_id = $1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return []Transaction{}, nil
	}
	if err != nil {
		return nil, db.StoreError(ctx, "list transactions", err)
	}

	txs := []Transaction{}
	err = sqlx.SelectContext(ctx, r.ext(), &txs,
		`SELECT id, wallet_id, amount_cents, type, reference, balance_after, created_at
		 FROM wallet_transactions
		 WHERE wallet_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2 OFFSET $3`,
		walletID, limit, offset,
	)
	if err != nil {
		return nil, db.StoreError(ctx, "list transactions", err)
	}
	return txs, nil
}

func debit(ctx context.Context, q sqlx.QueryerContext, w *Wallet, userID int, amountCents int64) error {
	err := sqlx.GetContext(ctx, q, w,
		`UPDATE wallets SET balance_cents = balance_cents - $1, updated_at = NOW()
		 WHERE user_id = $2 AND balance_cents >= $1
		 RETURNING `+walletColumns,
		amountCents, userID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.New(apperr.InsufficientBalance, "insufficient balance")
	}
	return err
}

func insertPurchase(ctx context.Context, q sqlx.QueryerContext, p *Purchase, userID, itemID int, priceCents int64) error {
	err := sqlx.GetContext(ctx, q, p,
		`INSERT INTO purchases (user_id, item_id, price_cents) VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, item_id) DO NOTHING
		 RETURNING `+purchaseColumns,
		userID, itemID, priceCents,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return errAlreadyOwned
	}
	return err
}

func insertJournal(ctx context.Context, q sqlx.ExecerContext, w *Wallet, amountCents int64, entry Entry) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO wallet_transactions (wallet_id, amount_cents, type, reference, balance_after)
		 VALUES ($1, $2, $3, $4, $5)`,
		w.ID, amountCents, entry.Type, nullString(entry.Reference), w.BalanceCents,
	)
	if db.IsUniqueViolation(err) {
		return apperr.Wrap(apperr.Conflict, "ledger entry already recorded", err)
	}
	return err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
