package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"learncode/internal/apperr"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) UpsertWallet(ctx context.Context, userID int, initialCents int64) (*Wallet, error) {
	args := m.Called(ctx, userID, initialCents)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Wallet), args.Error(1)
}

func (m *MockRepository) GetWallet(ctx context.Context, userID int) (*Wallet, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Wallet), args.Error(1)
}

func (m *MockRepository) Credit(ctx context.Context, userID int, amountCents int64, entry Entry) (*Wallet, error) {
	args := m.Called(ctx, userID, amountCents, entry)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Wallet), args.Error(1)
}

func (m *MockRepository) Debit(ctx context.Context, userID int, amountCents int64, entry Entry) (*Wallet, error) {
	args := m.Called(ctx, userID, amountCents, entry)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Wallet), args.Error(1)
}

func (m *MockRepository) RecordPurchase(ctx context.Context, userID, itemID int, priceCents int64) (*Purchase, bool, error) {
	args := m.Called(ctx, userID, itemID, priceCents)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*Purchase), args.Bool(1), args.Error(2)
}

func (m *MockRepository) SettlePurchase(ctx context.Context, userID, itemID int, priceCents int64) (*Purchase, bool, error) {
	args := m.Called(ctx, userID, itemID, priceCents)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*Purchase), args.Bool(1), args.Error(2)
}

func (m *MockRepository) GetPurchase(ctx context.Context, userID, itemID int) (*Purchase, error) {
	args := m.Called(ctx, userID, itemID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Purchase), args.Error(1)
}

func (m *MockRepository) HasPurchased(ctx context.Context, userID, itemID int) (bool, error) {
	args := m.Called(ctx, userID, itemID)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) ListPurchases(ctx context.Context, userID int) ([]Purchase, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]Purchase), args.Error(1)
}

func (m *MockRepository) ListTransactions(ctx context.Context, userID int, limit, offset int) ([]Transaction, error) {
	args := m.Called(ctx, userID, limit, offset)
	return args.Get(0).([]Transaction), args.Error(1)
}

func (m *MockRepository) WithTx(tx *sqlx.Tx) Repository {
	return m
}

func newRouter(h *Handler, userID int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("user_id", userID)
		c.Next()
	})
	r.GET("/wallet", h.GetWallet)
	r.GET("/wallet/transactions", h.ListTransactions)
	r.POST("/admin/wallets/:userID/top-up", h.AdminTopUp)
	return r
}

func TestGetWallet_CreatesOnFirstAccess(t *testing.T) {
	repo := new(MockRepository)
	repo.On("GetWallet", mock.Anything, 5).Return(nil, apperr.New(apperr.NotFound, "wallet not found"))
	repo.On("UpsertWallet", mock.Anything, 5, int64(0)).Return(&Wallet{ID: 1, UserID: 5}, nil)

	w := httptest.NewRecorder()
	newRouter(NewHandler(repo), 5).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/wallet", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var got Wallet
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, 5, got.UserID)
	repo.AssertExpectations(t)
}

func TestListTransactions_Handler(t *testing.T) {
	repo := new(MockRepository)
	repo.On("ListTransactions", mock.Anything, 5, 10, 20).
		Return([]Transaction{{ID: 1, AmountCents: 500, Type: EntryPaymentCredit, BalanceAfter: 500}}, nil)

	w := httptest.NewRecorder()
	newRouter(NewHandler(repo), 5).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/wallet/transactions?limit=10&offset=20", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var got []TransactionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, int64(500), got[0].AmountCents)
}

func TestAdminTopUp(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		body       string
		setup      func(repo *MockRepository)
		wantStatus int
	}{
		{
			name: "credits wallet",
			path: "/admin/wallets/9/top-up",
			body: `{"amount_cents": 1000}`,
			setup: func(repo *MockRepository) {
				repo.On("Credit", mock.Anything, 9, int64(1000), Entry{Type: EntryAdminCredit}).
					Return(&Wallet{UserID: 9, BalanceCents: 1000}, nil)
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "non-positive amount",
			path: "/admin/wallets/9/top-up",
			body: `{"amount_cents": -5}`,
			setup: func(repo *MockRepository) {
				repo.On("Credit", mock.Anything, 9, int64(-5), Entry{Type: EntryAdminCredit}).
					Return(nil, apperr.New(apperr.InvalidAmount, "credit amount must be positive"))
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "bad user id",
			path:       "/admin/wallets/abc/top-up",
			body:       `{"amount_cents": 1000}`,
			setup:      func(repo *MockRepository) {},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockRepository)
			tt.setup(repo)

			req := httptest.NewRequest(http.MethodPost, tt.path, bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			newRouter(NewHandler(repo), 1).ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			repo.AssertExpectations(t)
		})
	}
}
