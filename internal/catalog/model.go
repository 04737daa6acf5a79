package catalog

import "time"

// Item is a purchasable video. PriceCents of zero means the item is free to
// watch and cannot be bought.
type Item struct {
	ID         int       `db:"id" json:"id"`
	Title      string    `db:"title" json:"title"`
	CreatorID  int       `db:"creator_id" json:"creator_id"`
	PriceCents int64     `db:"price_cents" json:"price_cents"`
	Approved   bool      `db:"approved" json:"approved"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

func (i Item) IsFree() bool {
	return i.PriceCents == 0
}

type CreateItemRequest struct {
	Title      string `json:"title" binding:"required" validate:"min=1,max=200"`
	CreatorID  int    `json:"creator_id" binding:"required,min=1"`
	PriceCents int64  `json:"price_cents" binding:"min=0"`
	Approved   bool   `json:"approved"`
}
