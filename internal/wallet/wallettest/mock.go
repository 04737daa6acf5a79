// Package wallettest provides a testify mock of wallet.Repository for
// packages that settle money through the wallet.
package wallettest

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/mock"

	"learncode/internal/wallet"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) UpsertWallet(ctx context.Context, userID int, initialCents int64) (*wallet.Wallet, error) {
	args := m.Called(ctx, userID, initialCents)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*wallet.Wallet), args.Error(1)
}

func (m *MockRepository) GetWallet(ctx context.Context, userID int) (*wallet.Wallet, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*wallet.Wallet), args.Error(1)
}

func (m *MockRepository) Credit(ctx context.Context, userID int, amountCents int64, entry wallet.Entry) (*wallet.Wallet, error) {
	args := m.Called(ctx, userID, amountCents, entry)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*wallet.Wallet), args.Error(1)
}

func (m *MockRepository) Debit(ctx context.Context, userID int, amountCents int64, entry wallet.Entry) (*wallet.Wallet, error) {
	args := m.Called(ctx, userID, amountCents, entry)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*wallet.Wallet), args.Error(1)
}

func (m *MockRepository) RecordPurchase(ctx context.Context, userID, itemID int, priceCents int64) (*wallet.Purchase, bool, error) {
	args := m.Called(ctx, userID, itemID, priceCents)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*wallet.Purchase), args.Bool(1), args.Error(2)
}

func (m *MockRepository) SettlePurchase(ctx context.Context, userID, itemID int, priceCents int64) (*wallet.Purchase, bool, error) {
	args := m.Called(ctx, userID, itemID, priceCents)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*wallet.Purchase), args.Bool(1), args.Error(2)
}

func (m *MockRepository) GetPurchase(ctx context.Context, userID, itemID int) (*wallet.Purchase, error) {
	args := m.Called(ctx, userID, itemID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*wallet.Purchase), args.Error(1)
}

func (m *MockRepository) HasPurchased(ctx context.Context, userID, itemID int) (bool, error) {
	args := m.Called(ctx, userID, itemID)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) ListPurchases(ctx context.Context, userID int) ([]wallet.Purchase, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]wallet.Purchase), args.Error(1)
}

func (m *MockRepository) ListTransactions(ctx context.Context, userID int, limit, offset int) ([]wallet.Transaction, error) {
	args := m.Called(ctx, userID, limit, offset)
	return args.Get(0).([]wallet.Transaction), args.Error(1)
}

func (m *MockRepository) WithTx(tx *sqlx.Tx) wallet.Repository {
	return m
}
