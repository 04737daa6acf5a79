package purchase

import "learncode/internal/wallet"

type BuyRequest struct {
	ItemID int `json:"item_id" binding:"required,min=1"`
}

type BuyResponse struct {
	Purchase     wallet.Purchase `json:"purchase"`
	AlreadyOwned bool            `json:"already_owned"`
}

type AccessResponse struct {
	ItemID    int  `json:"item_id"`
	HasAccess bool `json:"has_access"`
}
