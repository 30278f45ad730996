package models

import "time"

type Category string

const (
	CategoryWriting       Category = "WRITING"
	CategoryCoding        Category = "CODING"
	CategoryDesign        Category = "DESIGN"
	CategoryMarketing     Category = "MARKETING"
	CategoryEducation     Category = "EDUCATION"
	CategoryEntertainment Category = "ENTERTAINMENT"
	CategoryEtc           Category = "ETC"
)

// Categories lists every valid listing category in display order.
var Categories = []Category{
	CategoryWriting,
	CategoryCoding,
	CategoryDesign,
	CategoryMarketing,
	CategoryEducation,
	CategoryEntertainment,
	CategoryEtc,
}

func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

type ListingStatus string

const (
	ListingActive  ListingStatus = "ACTIVE"
	ListingSoldOut ListingStatus = "SOLD_OUT"
	ListingDeleted ListingStatus = "DELETED"
)

// Listing is a prompt offered for sale. Content is only returned to the
// seller or to buyers holding a matching purchase record.
type Listing struct {
	ID            string        `json:"id" db:"id"`
	SellerID      string        `json:"sellerId" db:"seller_id"`
	Title         string        `json:"title" db:"title"`
	Description   string        `json:"description" db:"description"`
	Content       string        `json:"content,omitempty" db:"content"`
	Preview       string        `json:"preview" db:"preview"`
	Category      Category      `json:"category" db:"category"`
	Price         int64         `json:"price" db:"price"`
	Tags          []string      `json:"tags" db:"tags"`
	ThumbnailURL  *string       `json:"thumbnailUrl,omitempty" db:"thumbnail_url"`
	ViewCount     int64         `json:"viewCount" db:"view_count"`
	PurchaseCount int64         `json:"purchaseCount" db:"purchase_count"`
	Status        ListingStatus `json:"status" db:"status"`
	CreatedAt     time.Time     `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time     `json:"updatedAt" db:"updated_at"`

	Seller *SellerSummary `json:"seller,omitempty" db:"-"`
}
