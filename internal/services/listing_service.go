package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/fompt/backend/internal/config"
	"github.com/fompt/backend/internal/models"
)

// ListingService is the catalog store. Reads are plain snapshot reads;
// the only mutation that must be exact (purchase_count) happens inside
// the purchase engine, never here. View counting is best-effort by
// design and shares no lock with the purchase path.
type ListingService struct {
	db        *sql.DB
	redis     *redis.Client
	cfg       *config.MarketplaceConfig
	purchases *PurchaseService
}

func NewListingService(db *sql.DB, redisClient *redis.Client, cfg *config.MarketplaceConfig, purchases *PurchaseService) *ListingService {
	return &ListingService{
		db:        db,
		redis:     redisClient,
		cfg:       cfg,
		purchases: purchases,
	}
}

// CreateListingRequest carries the seller-supplied fields.
type CreateListingRequest struct {
	Title        string          `json:"title" validate:"required,min=5,max=100"`
	Description  string          `json:"description" validate:"required,min=10,max=500"`
	Content      string          `json:"content" validate:"required,min=20,max=5000"`
	Preview      string          `json:"preview" validate:"required,min=10,max=200"`
	Category     models.Category `json:"category" validate:"required"`
	Price        int64           `json:"price" validate:"required"`
	Tags         []string        `json:"tags" validate:"omitempty,max=5,dive,min=1,max=30"`
	ThumbnailURL *string         `json:"thumbnailUrl,omitempty" validate:"omitempty,url"`
}

// UpdateListingRequest carries owner edits; nil fields are left alone.
// Price edits never touch existing ledger rows, which hold a snapshot.
type UpdateListingRequest struct {
	Title       *string          `json:"title,omitempty" validate:"omitempty,min=5,max=100"`
	Description *string          `json:"description,omitempty" validate:"omitempty,min=10,max=500"`
	Content     *string          `json:"content,omitempty" validate:"omitempty,min=20,max=5000"`
	Preview     *string          `json:"preview,omitempty" validate:"omitempty,min=10,max=200"`
	Category    *models.Category `json:"category,omitempty"`
	Price       *int64           `json:"price,omitempty"`
	Tags        []string         `json:"tags,omitempty" validate:"omitempty,max=5,dive,min=1,max=30"`
}

// ListFilter selects and orders a listings page.
type ListFilter struct {
	Category string
	Search   string
	Sort     string // latest | popular | price_asc | price_desc
	Page     int
}

func (s *ListingService) CreateListing(ctx context.Context, sellerID string, req *CreateListingRequest) (*models.Listing, error) {
	if !req.Category.Valid() {
		return nil, validationError("unknown category")
	}
	if req.Price < s.cfg.MinPrice || req.Price > s.cfg.MaxPrice {
		return nil, validationError(fmt.Sprintf("price must be between %d and %d", s.cfg.MinPrice, s.cfg.MaxPrice))
	}
	if len(req.Tags) > s.cfg.MaxTags {
		return nil, validationError(fmt.Sprintf("at most %d tags", s.cfg.MaxTags))
	}

	listing := &models.Listing{
		ID:           uuid.NewString(),
		SellerID:     sellerID,
		Title:        req.Title,
		Description:  req.Description,
		Content:      req.Content,
		Preview:      req.Preview,
		Category:     req.Category,
		Price:        req.Price,
		Tags:         normalizeTags(req.Tags),
		ThumbnailURL: req.ThumbnailURL,
		Status:       models.ListingActive,
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO prompts (id, seller_id, title, description, content, preview,
		                     category, price, tags, thumbnail_url, view_count,
		                     purchase_count, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 0, 0, $11, NOW(), NOW())
		RETURNING created_at, updated_at`,
		listing.ID, listing.SellerID, listing.Title, listing.Description,
		listing.Content, listing.Preview, string(listing.Category), listing.Price,
		tagsToText(listing.Tags), listing.ThumbnailURL, string(listing.Status)).
		Scan(&listing.CreatedAt, &listing.UpdatedAt)
	if err != nil {
		return nil, storageError("insert listing", err)
	}

	return listing, nil
}

// GetListing returns one listing with a seller summary. Content is
// redacted unless the viewer is the seller or holds a purchase row.
func (s *ListingService) GetListing(ctx context.Context, id, viewerID string) (*models.Listing, error) {
	listing, err := s.fetchListing(ctx, id)
	if err != nil {
		return nil, err
	}

	if viewerID != listing.SellerID {
		owned := false
		if viewerID != "" {
			owned, err = s.purchases.HasPurchased(ctx, viewerID, id)
			if err != nil {
				return nil, err
			}
		}
		if !owned {
			listing.Content = ""
		}
	}

	return listing, nil
}

// ListListings returns one page with seller summaries. Finite and
// restartable: the same filter and page always addresses the same slice
// of the ordering.
func (s *ListingService) ListListings(ctx context.Context, filter ListFilter) ([]models.Listing, error) {
	var conditions []string
	var args []interface{}
	argIndex := 1

	conditions = append(conditions, "p.status != 'DELETED'")

	if filter.Category != "" {
		if !models.Category(filter.Category).Valid() {
			return nil, validationError("unknown category")
		}
		conditions = append(conditions, fmt.Sprintf("p.category = $%d", argIndex))
		args = append(args, filter.Category)
		argIndex++
	}

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(p.title ILIKE $%d OR p.description ILIKE $%d)", argIndex, argIndex))
		args = append(args, "%"+filter.Search+"%")
		argIndex++
	}

	orderBy := "p.created_at DESC"
	switch filter.Sort {
	case "", "latest":
	case "popular":
		orderBy = "p.purchase_count DESC, p.created_at DESC"
	case "price_asc":
		orderBy = "p.price ASC, p.created_at DESC"
	case "price_desc":
		orderBy = "p.price DESC, p.created_at DESC"
	default:
		return nil, validationError("unknown sort")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	limit := s.cfg.ListingsPerPage
	offset := (page - 1) * limit

	query := fmt.Sprintf(`
		SELECT p.id, p.seller_id, p.title, p.description, p.preview, p.category,
		       p.price, p.tags, p.thumbnail_url, p.view_count, p.purchase_count,
		       p.status, p.created_at, p.updated_at,
		       u.id, u.nickname, u.avatar_url, u.tier
		FROM prompts p
		INNER JOIN users u ON p.seller_id = u.id
		WHERE %s
		ORDER BY %s
		LIMIT $%d OFFSET $%d`,
		strings.Join(conditions, " AND "), orderBy, argIndex, argIndex+1)
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageError("list listings", err)
	}
	defer rows.Close()

	listings := []models.Listing{}
	for rows.Next() {
		var l models.Listing
		var seller models.SellerSummary
		var tags string
		err := rows.Scan(&l.ID, &l.SellerID, &l.Title, &l.Description, &l.Preview,
			&l.Category, &l.Price, &tags, &l.ThumbnailURL, &l.ViewCount,
			&l.PurchaseCount, &l.Status, &l.CreatedAt, &l.UpdatedAt,
			&seller.ID, &seller.Nickname, &seller.AvatarURL, &seller.Tier)
		if err != nil {
			return nil, storageError("scan listing", err)
		}
		l.Tags = textToTags(tags)
		l.Seller = &seller
		listings = append(listings, l)
	}

	return listings, rows.Err()
}

func (s *ListingService) UpdateListing(ctx context.Context, id, sellerID string, req *UpdateListingRequest) (*models.Listing, error) {
	if req.Category != nil && !req.Category.Valid() {
		return nil, validationError("unknown category")
	}
	if req.Price != nil && (*req.Price < s.cfg.MinPrice || *req.Price > s.cfg.MaxPrice) {
		return nil, validationError(fmt.Sprintf("price must be between %d and %d", s.cfg.MinPrice, s.cfg.MaxPrice))
	}
	if len(req.Tags) > s.cfg.MaxTags {
		return nil, validationError(fmt.Sprintf("at most %d tags", s.cfg.MaxTags))
	}

	current, err := s.fetchListing(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.SellerID != sellerID {
		return nil, ErrForbidden
	}

	apply := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	apply(&current.Title, req.Title)
	apply(&current.Description, req.Description)
	apply(&current.Content, req.Content)
	apply(&current.Preview, req.Preview)
	if req.Category != nil {
		current.Category = *req.Category
	}
	if req.Price != nil {
		current.Price = *req.Price
	}
	if req.Tags != nil {
		current.Tags = normalizeTags(req.Tags)
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE prompts
		SET title = $1, description = $2, content = $3, preview = $4,
		    category = $5, price = $6, tags = $7, updated_at = NOW()
		WHERE id = $8 AND seller_id = $9 AND status != 'DELETED'`,
		current.Title, current.Description, current.Content, current.Preview,
		string(current.Category), current.Price, tagsToText(current.Tags), id, sellerID)
	if err != nil {
		return nil, storageError("update listing", err)
	}
	current.UpdatedAt = time.Now()
	return current, nil
}

// DeleteListing soft-deletes via the status flag; ledger rows referencing
// the listing stay intact.
func (s *ListingService) DeleteListing(ctx context.Context, id, sellerID string) error {
	current, err := s.fetchListing(ctx, id)
	if err != nil {
		return err
	}
	if current.SellerID != sellerID {
		return ErrForbidden
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE prompts
		SET status = 'DELETED', updated_at = NOW()
		WHERE id = $1 AND seller_id = $2`, id, sellerID)
	if err != nil {
		return storageError("delete listing", err)
	}
	return nil
}

// RecordView bumps the view counter, best effort. Repeat views by the
// same viewer inside the dedup window are dropped via Redis; the counter
// update is a single statement that never runs inside, or waits on, a
// purchase transaction. Losing a view under contention is acceptable;
// errors are logged and swallowed.
func (s *ListingService) RecordView(listingID, viewerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if s.redis != nil && viewerID != "" {
		key := fmt.Sprintf("viewed:%s:%s", listingID, viewerID)
		first, err := s.redis.SetNX(ctx, key, "1", s.cfg.ViewDedupWindow).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			log.Printf("[VIEWS] dedup check failed for %s: %v", listingID, err)
		} else if err == nil && !first {
			return
		}
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE prompts
		SET view_count = view_count + 1
		WHERE id = $1 AND status != 'DELETED'`, listingID)
	if err != nil {
		log.Printf("[VIEWS] increment failed for %s: %v", listingID, err)
	}
}

func (s *ListingService) fetchListing(ctx context.Context, id string) (*models.Listing, error) {
	var l models.Listing
	var seller models.SellerSummary
	var tags string
	err := s.db.QueryRowContext(ctx, `
		SELECT p.id, p.seller_id, p.title, p.description, p.content, p.preview,
		       p.category, p.price, p.tags, p.thumbnail_url, p.view_count,
		       p.purchase_count, p.status, p.created_at, p.updated_at,
		       u.id, u.nickname, u.avatar_url, u.tier
		FROM prompts p
		INNER JOIN users u ON p.seller_id = u.id
		WHERE p.id = $1`, id).Scan(
		&l.ID, &l.SellerID, &l.Title, &l.Description, &l.Content, &l.Preview,
		&l.Category, &l.Price, &tags, &l.ThumbnailURL, &l.ViewCount,
		&l.PurchaseCount, &l.Status, &l.CreatedAt, &l.UpdatedAt,
		&seller.ID, &seller.Nickname, &seller.AvatarURL, &seller.Tier)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, storageError("fetch listing", err)
	}

	if l.Status == models.ListingDeleted {
		return nil, ErrNotFound
	}

	l.Tags = textToTags(tags)
	l.Seller = &seller
	return &l, nil
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := map[string]bool{}
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// Tags are stored as a comma-joined text column to keep the scan paths
// on database/sql plain strings.
func tagsToText(tags []string) string {
	return strings.Join(tags, ",")
}

func textToTags(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.Split(s, ",")
}
