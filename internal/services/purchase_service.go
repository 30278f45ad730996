package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"
	"github.com/oklog/ulid/v2"

	"github.com/fompt/backend/internal/audit"
	"github.com/fompt/backend/internal/models"
)

// PurchaseService is the transaction engine. ExecutePurchase is the only
// path that mutates balances, transaction counters and the purchase
// ledger, and it does all of it inside a single database transaction.
type PurchaseService struct {
	db    *sql.DB
	audit *audit.Logger
}

func NewPurchaseService(db *sql.DB) *PurchaseService {
	return &PurchaseService{
		db:    db,
		audit: audit.NewLogger(),
	}
}

// lockedAccount is an account row held under FOR UPDATE for the duration
// of a purchase transaction.
type lockedAccount struct {
	ID             string
	Points         int64
	Version        int
	TotalSales     int
	TotalPurchases int
}

// ExecutePurchase performs the atomic purchase mutation: debit buyer,
// credit seller, bump both transaction counters and tiers, bump the
// listing purchase counter and append the ledger row with a price
// snapshot. Everything commits together or not at all.
func (s *PurchaseService) ExecutePurchase(ctx context.Context, buyerID, listingID string) (*models.Purchase, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageError("begin purchase transaction", err)
	}
	defer tx.Rollback()

	listing, err := s.lockListing(tx, listingID)
	if err != nil {
		return nil, err
	}

	if listing.SellerID == buyerID {
		return nil, ErrSelfPurchase
	}

	purchased, err := s.alreadyPurchased(tx, buyerID, listingID)
	if err != nil {
		return nil, err
	}
	if purchased {
		return nil, ErrAlreadyPurchased
	}

	// Lock buyer and seller in consistent order to prevent deadlocks
	// between purchases that touch the same pair of accounts.
	firstLock, secondLock := buyerID, listing.SellerID
	if buyerID > listing.SellerID {
		firstLock, secondLock = listing.SellerID, buyerID
	}

	first, err := s.lockAccount(tx, firstLock)
	if err != nil {
		return nil, err
	}
	second, err := s.lockAccount(tx, secondLock)
	if err != nil {
		return nil, err
	}

	buyer, seller := first, second
	if firstLock != buyerID {
		buyer, seller = second, first
	}

	if buyer.Points < listing.Price {
		return nil, ErrInsufficientBalance
	}

	purchase := &models.Purchase{
		ID:        ulid.Make().String(),
		BuyerID:   buyer.ID,
		SellerID:  seller.ID,
		PromptID:  listing.ID,
		PricePaid: listing.Price,
		CreatedAt: time.Now(),
	}

	buyerBalance := buyer.Points - listing.Price
	sellerBalance := seller.Points + listing.Price

	if err := s.updateAccount(tx, buyer.ID, buyerBalance, buyer.TotalSales, buyer.TotalPurchases+1, buyer.Version); err != nil {
		return nil, err
	}
	if err := s.updateAccount(tx, seller.ID, sellerBalance, seller.TotalSales+1, seller.TotalPurchases, seller.Version); err != nil {
		return nil, err
	}

	if err := s.bumpPurchaseCount(tx, listing.ID); err != nil {
		return nil, err
	}

	if err := s.insertPurchase(tx, purchase); err != nil {
		return nil, err
	}

	if err := s.appendPointEvent(tx, buyer.ID, models.PointEventPurchase, -listing.Price, buyerBalance, purchase.ID); err != nil {
		return nil, err
	}
	if err := s.appendPointEvent(tx, seller.ID, models.PointEventSale, listing.Price, sellerBalance, purchase.ID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		s.audit.LogError(purchase.ID, buyerID, err)
		return nil, storageError("commit purchase transaction", err)
	}

	s.audit.LogPurchase(purchase.ID, buyer.ID, seller.ID, listing.ID, listing.Price, "SUCCESS")
	return purchase, nil
}

// GetPurchases returns the buyer's purchase history, newest first.
func (s *PurchaseService) GetPurchases(ctx context.Context, buyerID string, limit int) ([]models.Purchase, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, buyer_id, seller_id, prompt_id, price_paid, created_at
		FROM purchases
		WHERE buyer_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, buyerID, limit)
	if err != nil {
		return nil, storageError("fetch purchases", err)
	}
	defer rows.Close()

	purchases := []models.Purchase{}
	for rows.Next() {
		var p models.Purchase
		if err := rows.Scan(&p.ID, &p.BuyerID, &p.SellerID, &p.PromptID, &p.PricePaid, &p.CreatedAt); err != nil {
			return nil, storageError("scan purchase", err)
		}
		purchases = append(purchases, p)
	}
	return purchases, rows.Err()
}

// HasPurchased reports whether a ledger row exists for (buyer, prompt).
// Snapshot read, used by the catalog redaction check.
func (s *PurchaseService) HasPurchased(ctx context.Context, buyerID, promptID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM purchases
			WHERE buyer_id = $1 AND prompt_id = $2
		)`, buyerID, promptID).Scan(&exists)
	if err != nil {
		return false, storageError("check purchase existence", err)
	}
	return exists, nil
}

type lockedListing struct {
	ID       string
	SellerID string
	Price    int64
	Status   models.ListingStatus
}

func (s *PurchaseService) lockListing(tx *sql.Tx, listingID string) (*lockedListing, error) {
	var l lockedListing
	err := tx.QueryRow(`
		SELECT id, seller_id, price, status
		FROM prompts
		WHERE id = $1
		FOR UPDATE`, listingID).Scan(&l.ID, &l.SellerID, &l.Price, &l.Status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, storageError("lock listing", err)
	}

	if l.Status == models.ListingDeleted {
		return nil, ErrNotFound
	}
	return &l, nil
}

func (s *PurchaseService) alreadyPurchased(tx *sql.Tx, buyerID, promptID string) (bool, error) {
	var exists bool
	err := tx.QueryRow(`
		SELECT EXISTS(
			SELECT 1 FROM purchases
			WHERE buyer_id = $1 AND prompt_id = $2
		)`, buyerID, promptID).Scan(&exists)
	if err != nil {
		return false, storageError("check existing purchase", err)
	}
	return exists, nil
}

func (s *PurchaseService) lockAccount(tx *sql.Tx, accountID string) (*lockedAccount, error) {
	var account lockedAccount
	err := tx.QueryRow(`
		SELECT id, points, version, total_sales, total_purchases
		FROM users
		WHERE id = $1
		FOR UPDATE`, accountID).Scan(&account.ID, &account.Points, &account.Version,
		&account.TotalSales, &account.TotalPurchases)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, storageError("lock account", err)
	}
	return &account, nil
}

// updateAccount writes the new balance and counters and recomputes the
// tier from the counters. The version check is a secondary guard on top
// of the row lock.
func (s *PurchaseService) updateAccount(tx *sql.Tx, accountID string, points int64, totalSales, totalPurchases, version int) error {
	tier := CalculateTier(totalSales + totalPurchases)

	result, err := tx.Exec(`
		UPDATE users
		SET points = $1, total_sales = $2, total_purchases = $3, tier = $4,
		    version = version + 1, updated_at = NOW()
		WHERE id = $5 AND version = $6`,
		points, totalSales, totalPurchases, string(tier), accountID, version)
	if err != nil {
		return storageError("update account", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return storageError("update account", err)
	}
	if rowsAffected == 0 {
		return storageError("update account", errors.New("optimistic lock failed for account "+accountID))
	}
	return nil
}

func (s *PurchaseService) bumpPurchaseCount(tx *sql.Tx, promptID string) error {
	_, err := tx.Exec(`
		UPDATE prompts
		SET purchase_count = purchase_count + 1, updated_at = NOW()
		WHERE id = $1`, promptID)
	if err != nil {
		return storageError("bump listing purchase count", err)
	}
	return nil
}

func (s *PurchaseService) insertPurchase(tx *sql.Tx, p *models.Purchase) error {
	_, err := tx.Exec(`
		INSERT INTO purchases (id, buyer_id, seller_id, prompt_id, price_paid, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.BuyerID, p.SellerID, p.PromptID, p.PricePaid, p.CreatedAt)
	if err != nil {
		// The unique (buyer_id, prompt_id) index is the backstop for two
		// concurrent attempts on the same pair: the loser surfaces as a
		// duplicate, not a second ledger row.
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrAlreadyPurchased
		}
		return storageError("insert purchase", err)
	}
	return nil
}

func (s *PurchaseService) appendPointEvent(tx *sql.Tx, accountID string, eventType models.PointEventType, amount, balance int64, relatedID string) error {
	_, err := tx.Exec(`
		INSERT INTO point_events (account_id, event_type, amount, balance, related_id, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())`,
		accountID, string(eventType), amount, balance, relatedID)
	if err != nil {
		return storageError("append point event", err)
	}
	return nil
}
