package models

import "time"

// Tier is the rank label derived from an account's cumulative
// transaction count (total_sales + total_purchases).
type Tier string

const (
	TierBronze   Tier = "BRONZE"
	TierSilver   Tier = "SILVER"
	TierGold     Tier = "GOLD"
	TierPlatinum Tier = "PLATINUM"
)

type Account struct {
	ID             string    `json:"id" db:"id"`
	Email          string    `json:"email" db:"email"`
	Nickname       string    `json:"nickname" db:"nickname"`
	AvatarURL      *string   `json:"avatarUrl,omitempty" db:"avatar_url"`
	Points         int64     `json:"points" db:"points"` // whole points, never negative
	ReferralCode   string    `json:"referralCode" db:"referral_code"`
	ReferredBy     *string   `json:"referredBy,omitempty" db:"referred_by"`
	Tier           Tier      `json:"tier" db:"tier"`
	TotalSales     int       `json:"totalSales" db:"total_sales"`
	TotalPurchases int       `json:"totalPurchases" db:"total_purchases"`
	Version        int       `json:"-" db:"version"` // for optimistic locking
	CreatedAt      time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time `json:"updatedAt" db:"updated_at"`
}

// SellerSummary is the slice of account data embedded in listing responses.
type SellerSummary struct {
	ID        string  `json:"id" db:"id"`
	Nickname  string  `json:"nickname" db:"nickname"`
	AvatarURL *string `json:"avatarUrl,omitempty" db:"avatar_url"`
	Tier      Tier    `json:"tier" db:"tier"`
}
