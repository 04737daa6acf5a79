package wallet

import (
	"database/sql"
	"fmt"
	"time"
)

const (
	EntryPaymentCredit = "payment_credit"
	EntryAdminCredit   = "admin_credit"
	EntryPurchase      = "purchase"
)

type Wallet struct {
	ID           int       `db:"id" json:"id"`
	UserID       int       `db:"user_id" json:"user_id"`
	BalanceCents int64     `db:"balance_cents" json:"balance_cents"`
	Currency     string    `db:"currency" json:"currency"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Transaction is one append-only journal row. Debits carry a negative amount.
type Transaction struct {
	ID           int            `db:"id" json:"id"`
	WalletID     int            `db:"wallet_id" json:"wallet_id"`
	AmountCents  int64          `db:"amount_cents" json:"amount_cents"`
	Type         string         `db:"type" json:"type"`
	Reference    sql.NullString `db:"reference" json:"-"`
	BalanceAfter int64          `db:"balance_after" json:"balance_after"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
}

// Entry describes why the balance moved. A non-empty Reference is unique per
// Type, so the same payment can never be journaled twice.
type Entry struct {
	Type      string
	Reference string
}

// Purchase is a permanent access grant for one item.
type Purchase struct {
	ID         int       `db:"id" json:"id"`
	UserID     int       `db:"user_id" json:"user_id"`
	ItemID     int       `db:"item_id" json:"item_id"`
	PriceCents int64     `db:"price_cents" json:"price_cents"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

type TransactionResponse struct {
	ID           int       `json:"id"`
	AmountCents  int64     `json:"amount_cents"`
	Type         string    `json:"type"`
	Reference    string    `json:"reference,omitempty"`
	BalanceAfter int64     `json:"balance_after"`
	CreatedAt    time.Time `json:"created_at"`
}

func (t Transaction) ToResponse() TransactionResponse {
	return TransactionResponse{
		ID:           t.ID,
		AmountCents:  t.AmountCents,
		Type:         t.Type,
		Reference:    t.Reference.String,
		BalanceAfter: t.BalanceAfter,
		CreatedAt:    t.CreatedAt,
	}
}

func PurchaseReference(userID, itemID int) string {
	return fmt.Sprintf("purchase:%d:%d", userID, itemID)
}
