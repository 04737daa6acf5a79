package catalog

import (
	"context"
	"strings"

	"learncode/internal/apperr"
)

type Service interface {
	CreateItem(ctx context.Context, req CreateItemRequest) (*Item, error)
	GetItem(ctx context.Context, id int) (*Item, error)
	ListItems(ctx context.Context, onlyApproved bool) ([]Item, error)
}

type service struct {
	repo Repository
}

func NewService(repo Repository) Service {
	return &service{
		repo: repo,
	}
}

func (s *service) CreateItem(ctx context.Context, req CreateItemRequest) (*Item, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, apperr.New(apperr.Invalid, "title is required")
	}
	if req.PriceCents < 0 {
		return nil, apperr.New(apperr.InvalidAmount, "price must not be negative")
	}
	return s.repo.CreateItem(ctx, title, req.CreatorID, req.PriceCents, req.Approved)
}

func (s *service) GetItem(ctx context.Context, id int) (*Item, error) {
	if id <= 0 {
		return nil, apperr.New(apperr.NotFound, "item not found")
	}
	return s.repo.GetItemByID(ctx, id)
}

func (s *service) ListItems(ctx context.Context, onlyApproved bool) ([]Item, error) {
	return s.repo.ListItems(ctx, onlyApproved)
}
