package purchase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"learncode/internal/apperr"
	"learncode/internal/catalog"
	"learncode/internal/events"
	"learncode/internal/wallet"
	"learncode/internal/wallet/wallettest"
)

type MockCatalog struct {
	mock.Mock
}

func (m *MockCatalog) CreateItem(ctx context.Context, req catalog.CreateItemRequest) (*catalog.Item, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalog.Item), args.Error(1)
}

func (m *MockCatalog) GetItem(ctx context.Context, id int) (*catalog.Item, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalog.Item), args.Error(1)
}

func (m *MockCatalog) ListItems(ctx context.Context, onlyApproved bool) ([]catalog.Item, error) {
	args := m.Called(ctx, onlyApproved)
	return args.Get(0).([]catalog.Item), args.Error(1)
}

type capturePublisher struct {
	events []events.Event
}

func (p *capturePublisher) Publish(ctx context.Context, e events.Event) error {
	p.events = append(p.events, e)
	return nil
}

func (p *capturePublisher) Close() error { return nil }

func TestPurchase(t *testing.T) {
	priced := &catalog.Item{ID: 7, Title: "Go Concurrency", PriceCents: 100, Approved: true}

	t.Run("first purchase debits, second returns the same grant", func(t *testing.T) {
		items := new(MockCatalog)
		wallets := new(wallettest.MockRepository)
		pub := &capturePublisher{}
		svc := NewService(items, wallets, pub)

		grant := &wallet.Purchase{ID: 11, UserID: 5, ItemID: 7, PriceCents: 100}
		items.On("GetItem", mock.Anything, 7).Return(priced, nil)
		wallets.On("SettlePurchase", mock.Anything, 5, 7, int64(100)).Return(grant, false, nil).Once()
		wallets.On("SettlePurchase", mock.Anything, 5, 7, int64(100)).Return(grant, true, nil).Once()

		first, owned, err := svc.Purchase(context.Background(), 5, 7)
		require.NoError(t, err)
		assert.False(t, owned)
		assert.Equal(t, 11, first.ID)

		second, owned, err := svc.Purchase(context.Background(), 5, 7)
		require.NoError(t, err)
		assert.True(t, owned)
		assert.Equal(t, first.ID, second.ID)

		require.Len(t, pub.events, 1)
		assert.Equal(t, events.PurchaseSettled, pub.events[0].Type)
		assert.Equal(t, "purchase:5:7", pub.events[0].Reference)
		wallets.AssertExpectations(t)
	})

	t.Run("free item cannot be bought", func(t *testing.T) {
		items := new(MockCatalog)
		wallets := new(wallettest.MockRepository)
		svc := NewService(items, wallets, nil)

		items.On("GetItem", mock.Anything, 8).Return(&catalog.Item{ID: 8, PriceCents: 0}, nil)

		_, _, err := svc.Purchase(context.Background(), 5, 8)

		assert.True(t, apperr.IsKind(err, apperr.ItemNotPriced))
		wallets.AssertNotCalled(t, "SettlePurchase", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("unknown item", func(t *testing.T) {
		items := new(MockCatalog)
		svc := NewService(items, new(wallettest.MockRepository), nil)

		items.On("GetItem", mock.Anything, 9).Return(nil, apperr.New(apperr.NotFound, "item not found"))

		_, _, err := svc.Purchase(context.Background(), 5, 9)

		assert.True(t, apperr.IsKind(err, apperr.NotFound))
	})

	t.Run("insufficient balance", func(t *testing.T) {
		items := new(MockCatalog)
		wallets := new(wallettest.MockRepository)
		pub := &capturePublisher{}
		svc := NewService(items, wallets, pub)

		items.On("GetItem", mock.Anything, 7).Return(priced, nil)
		wallets.On("SettlePurchase", mock.Anything, 5, 7, int64(100)).
			Return(nil, false, apperr.New(apperr.InsufficientBalance, "insufficient wallet balance"))

		_, _, err := svc.Purchase(context.Background(), 5, 7)

		assert.True(t, apperr.IsKind(err, apperr.InsufficientBalance))
		assert.Empty(t, pub.events)
	})
}

func TestHasAccess(t *testing.T) {
	tests := []struct {
		name      string
		item      *catalog.Item
		purchased bool
		want      bool
	}{
		{name: "free item", item: &catalog.Item{ID: 1, PriceCents: 0}, want: true},
		{name: "priced and owned", item: &catalog.Item{ID: 1, PriceCents: 100}, purchased: true, want: true},
		{name: "priced not owned", item: &catalog.Item{ID: 1, PriceCents: 100}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items := new(MockCatalog)
			wallets := new(wallettest.MockRepository)
			svc := NewService(items, wallets, nil)

			items.On("GetItem", mock.Anything, 1).Return(tt.item, nil)
			wallets.On("HasPurchased", mock.Anything, 5, 1).Return(tt.purchased, nil)

			got, err := svc.HasAccess(context.Background(), 5, 1)

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
