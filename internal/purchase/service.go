package purchase

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"learncode/internal/apperr"
	"learncode/internal/catalog"
	"learncode/internal/events"
	"learncode/internal/logger"
	"learncode/internal/metrics"
	"learncode/internal/tracing"
	"learncode/internal/wallet"
)

type Service interface {
	// Purchase buys itemID with the wallet balance. alreadyOwned is true
	// when the grant existed before the call; nothing is charged then.
	Purchase(ctx context.Context, userID, itemID int) (grant *wallet.Purchase, alreadyOwned bool, err error)
	HasAccess(ctx context.Context, userID, itemID int) (bool, error)
	ListPurchases(ctx context.Context, userID int) ([]wallet.Purchase, error)
}

type service struct {
	items     catalog.Service
	wallets   wallet.Repository
	publisher events.Publisher
}

func NewService(items catalog.Service, wallets wallet.Repository, publisher events.Publisher) Service {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &service{items: items, wallets: wallets, publisher: publisher}
}

func (s *service) Purchase(ctx context.Context, userID, itemID int) (*wallet.Purchase, bool, error) {
	ctx, span := tracing.Start(ctx, "purchase.settle")
	span.SetAttributes(attribute.Int("user.id", userID), attribute.Int("item.id", itemID))

	grant, owned, err := s.purchase(ctx, userID, itemID)
	tracing.End(span, err)
	return grant, owned, err
}

func (s *service) purchase(ctx context.Context, userID, itemID int) (*wallet.Purchase, bool, error) {
	item, err := s.items.GetItem(ctx, itemID)
	if err != nil {
		metrics.RecordPurchase("not_found")
		return nil, false, err
	}
	if item.IsFree() {
		metrics.RecordPurchase("not_priced")
		return nil, false, apperr.New(apperr.ItemNotPriced, "item is free and cannot be purchased")
	}

	grant, owned, err := s.wallets.SettlePurchase(ctx, userID, itemID, item.PriceCents)
	if err != nil {
		if apperr.IsKind(err, apperr.InsufficientBalance) {
			metrics.RecordPurchase("insufficient_balance")
		} else {
			metrics.RecordPurchase("error")
		}
		return nil, false, err
	}

	if owned {
		metrics.RecordPurchase("already_owned")
		return grant, true, nil
	}

	metrics.RecordPurchase("settled")
	events.Emit(ctx, s.publisher, events.Event{
		Type:        events.PurchaseSettled,
		UserID:      userID,
		Reference:   wallet.PurchaseReference(userID, itemID),
		AmountCents: item.PriceCents,
	})
	logger.Info("item purchased", "user_id", userID, "item_id", itemID, "price_cents", item.PriceCents)
	return grant, false, nil
}

// HasAccess reports whether userID may watch itemID: free items are open to
// everyone, priced ones need a grant.
func (s *service) HasAccess(ctx context.Context, userID, itemID int) (bool, error) {
	item, err := s.items.GetItem(ctx, itemID)
	if err != nil {
		return false, err
	}
	if item.IsFree() {
		return true, nil
	}
	return s.wallets.HasPurchased(ctx, userID, itemID)
}

func (s *service) ListPurchases(ctx context.Context, userID int) ([]wallet.Purchase, error) {
	return s.wallets.ListPurchases(ctx, userID)
}
