package catalog

import "context"

type Repository interface {
	CreateItem(ctx context.Context, title string, creatorID int, priceCents int64, approved bool) (*Item, error)
	GetItemByID(ctx context.Context, id int) (*Item, error)
	ListItems(ctx context.Context, onlyApproved bool) ([]Item, error)
}
