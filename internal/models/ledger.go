package models

import (
	"time"
)

// Purchase is the immutable ledger record of a completed purchase.
// PricePaid is a snapshot taken at purchase time; later price edits on the
// listing do not touch it. At most one row ever exists per (buyer, prompt).
type Purchase struct {
	ID        string    `json:"id" db:"id"`
	BuyerID   string    `json:"buyerId" db:"buyer_id"`
	SellerID  string    `json:"sellerId" db:"seller_id"`
	PromptID  string    `json:"promptId" db:"prompt_id"`
	PricePaid int64     `json:"pricePaid" db:"price_paid"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// PointEventType identifies what moved an account balance.
type PointEventType string

const (
	PointEventSignup   PointEventType = "SIGNUP"
	PointEventReferral PointEventType = "REFERRAL"
	PointEventPurchase PointEventType = "PURCHASE"
	PointEventSale     PointEventType = "SALE"
)

// PointEvent is an append-only audit row written for every balance
// mutation. Amount is signed; Balance is the account balance after the
// mutation applied.
type PointEvent struct {
	ID        int64          `json:"id" db:"id"`
	AccountID string         `json:"accountId" db:"account_id"`
	Type      PointEventType `json:"type" db:"event_type"`
	Amount    int64          `json:"amount" db:"amount"`
	Balance   int64          `json:"balance" db:"balance"`
	RelatedID *string        `json:"relatedId,omitempty" db:"related_id"`
	CreatedAt time.Time      `json:"createdAt" db:"created_at"`
}
