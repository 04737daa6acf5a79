package wallet

import (
	"context"

	"github.com/jmoiron/sqlx"
)

type Repository interface {
	UpsertWallet(ctx context.Context, userID int, initialCents int64) (*Wallet, error)
	GetWallet(ctx context.Context, userID int) (*Wallet, error)
	Credit(ctx context.Context, userID int, amountCents int64, entry Entry) (*Wallet, error)
	Debit(ctx context.Context, userID int, amountCents int64, entry Entry) (*Wallet, error)

	// RecordPurchase and SettlePurchase report alreadyOwned=true when the
	// grant existed before the call; no balance moves in that case.
	RecordPurchase(ctx context.Context, userID, itemID int, priceCents int64) (p *Purchase, alreadyOwned bool, err error)
	SettlePurchase(ctx context.Context, userID, itemID int, priceCents int64) (p *Purchase, alreadyOwned bool, err error)
	GetPurchase(ctx context.Context, userID, itemID int) (*Purchase, error)
	HasPurchased(ctx context.Context, userID, itemID int) (bool, error)
	ListPurchases(ctx context.Context, userID int) ([]Purchase, error)

	ListTransactions(ctx context.Context, userID int, limit, offset int) ([]Transaction, error)

	// WithTx returns a repository whose writes join tx instead of opening
	// their own transaction.
	WithTx(tx *sqlx.Tx) Repository
}
