package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/fompt/backend/internal/audit"
	"github.com/fompt/backend/internal/config"
	"github.com/fompt/backend/internal/models"
)

// AccountService owns account creation and the one-time bonus issuance
// that goes with it. Accounts are only ever created here; the signup and
// referral bonuses cannot be re-issued for an existing account.
type AccountService struct {
	db    *sql.DB
	cfg   *config.MarketplaceConfig
	audit *audit.Logger
}

func NewAccountService(db *sql.DB, cfg *config.MarketplaceConfig) *AccountService {
	return &AccountService{
		db:    db,
		cfg:   cfg,
		audit: audit.NewLogger(),
	}
}

// Identity is a verified identity handed in by the auth collaborator,
// either a direct signup or a first OAuth login.
type Identity struct {
	ID           string // external subject id; a fresh UUID when empty
	Email        string
	Nickname     string // user-chosen; derived from FullName/Email when empty
	FullName     string
	AvatarURL    *string
	PasswordHash string // empty for OAuth identities
}

// CreateAccount creates the account and issues the signup bonus, plus the
// referral bonus on both sides when a referral code resolves. One
// transaction; a failure anywhere leaves no account and no credits.
func (s *AccountService) CreateAccount(ctx context.Context, identity Identity, referralCode string) (*models.Account, error) {
	if identity.Email == "" {
		return nil, validationError("email is required")
	}

	referralCode = strings.ToUpper(strings.TrimSpace(referralCode))
	if referralCode != "" && !referralCodeRegex.MatchString(referralCode) {
		return nil, ErrInvalidReferralCode
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageError("begin signup transaction", err)
	}
	defer tx.Rollback()

	var referrer *lockedAccount
	if referralCode != "" {
		referrer, err = s.lockReferrer(tx, referralCode)
		if err != nil {
			return nil, err
		}
	}

	nickname := identity.Nickname
	if nickname == "" {
		nickname, err = s.resolveUniqueNickname(tx, deriveNickname(identity.Email, identity.FullName))
		if err != nil {
			return nil, err
		}
	} else {
		if len(nickname) < 2 || len(nickname) > 20 || !nicknameRegex.MatchString(nickname) {
			return nil, validationError("nickname must be 2-20 letters, digits or underscores")
		}
		taken, err := s.nicknameTaken(tx, nickname)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, &DomainError{Category: CategoryConflict, Code: CodeValidationFailed, Message: "nickname already in use"}
		}
	}

	ownCode, err := s.uniqueReferralCode(tx)
	if err != nil {
		return nil, err
	}

	account := &models.Account{
		ID:           identity.ID,
		Email:        strings.ToLower(identity.Email),
		Nickname:     nickname,
		AvatarURL:    identity.AvatarURL,
		Points:       s.cfg.SignupBonus,
		ReferralCode: ownCode,
		Tier:         models.TierBronze,
	}
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	if referrer != nil {
		account.Points += s.cfg.ReferralBonus
		account.ReferredBy = &referralCode
	}

	var referredBy any
	if account.ReferredBy != nil {
		referredBy = *account.ReferredBy
	}

	err = tx.QueryRow(`
		INSERT INTO users (id, email, nickname, avatar_url, password_hash, points,
		                   referral_code, referred_by, tier, total_sales, total_purchases,
		                   version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0, 0, 1, NOW(), NOW())
		RETURNING created_at, updated_at`,
		account.ID, account.Email, account.Nickname, account.AvatarURL,
		identity.PasswordHash, account.Points, account.ReferralCode, referredBy,
		string(account.Tier)).Scan(&account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		// The unique indexes are the backstop for races past the
		// existence pre-checks; the loser surfaces as a conflict.
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			switch pqErr.Constraint {
			case "users_email_key":
				return nil, ErrEmailTaken
			case "users_nickname_key":
				return nil, ErrNicknameExhausted
			default:
				return nil, &DomainError{Category: CategoryConflict, Code: CodeValidationFailed, Message: "account conflicts with an existing user"}
			}
		}
		return nil, storageError("insert account", err)
	}

	signupBalance := s.cfg.SignupBonus
	if err := s.appendPointEvent(tx, account.ID, models.PointEventSignup, s.cfg.SignupBonus, signupBalance); err != nil {
		return nil, err
	}

	if referrer != nil {
		if err := s.appendPointEvent(tx, account.ID, models.PointEventReferral, s.cfg.ReferralBonus, account.Points); err != nil {
			return nil, err
		}

		referrerBalance := referrer.Points + s.cfg.ReferralBonus
		if err := s.creditReferrer(tx, referrer, referrerBalance); err != nil {
			return nil, err
		}
		if err := s.appendPointEvent(tx, referrer.ID, models.PointEventReferral, s.cfg.ReferralBonus, referrerBalance); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, storageError("commit signup transaction", err)
	}

	s.audit.LogBonus(account.ID, string(models.PointEventSignup), s.cfg.SignupBonus)
	if referrer != nil {
		s.audit.LogBonus(referrer.ID, string(models.PointEventReferral), s.cfg.ReferralBonus)
	}
	return account, nil
}

// GetAccountByID fetches the current account profile. Snapshot read.
func (s *AccountService) GetAccountByID(ctx context.Context, id string) (*models.Account, error) {
	return s.fetchAccount(ctx, "id", id)
}

// GetAccountByEmail fetches an account by email, used by the login path.
func (s *AccountService) GetAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	return s.fetchAccount(ctx, "email", strings.ToLower(email))
}

// PasswordHash returns the stored hash for a login check.
func (s *AccountService) PasswordHash(ctx context.Context, email string) (string, string, error) {
	var id, hash string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, password_hash FROM users WHERE email = $1`,
		strings.ToLower(email)).Scan(&id, &hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", "", ErrNotFound
		}
		return "", "", storageError("fetch credentials", err)
	}
	return id, hash, nil
}

func (s *AccountService) fetchAccount(ctx context.Context, column, value string) (*models.Account, error) {
	var a models.Account
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT id, email, nickname, avatar_url, points, referral_code, referred_by,
		       tier, total_sales, total_purchases, version, created_at, updated_at
		FROM users
		WHERE %s = $1`, column), value).Scan(
		&a.ID, &a.Email, &a.Nickname, &a.AvatarURL, &a.Points, &a.ReferralCode,
		&a.ReferredBy, &a.Tier, &a.TotalSales, &a.TotalPurchases, &a.Version,
		&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, storageError("fetch account", err)
	}
	return &a, nil
}

func (s *AccountService) lockReferrer(tx *sql.Tx, code string) (*lockedAccount, error) {
	var account lockedAccount
	err := tx.QueryRow(`
		SELECT id, points, version, total_sales, total_purchases
		FROM users
		WHERE referral_code = $1
		FOR UPDATE`, code).Scan(&account.ID, &account.Points, &account.Version,
		&account.TotalSales, &account.TotalPurchases)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidReferralCode
		}
		return nil, storageError("resolve referral code", err)
	}
	return &account, nil
}

func (s *AccountService) creditReferrer(tx *sql.Tx, referrer *lockedAccount, newBalance int64) error {
	result, err := tx.Exec(`
		UPDATE users
		SET points = $1, version = version + 1, updated_at = NOW()
		WHERE id = $2 AND version = $3`,
		newBalance, referrer.ID, referrer.Version)
	if err != nil {
		return storageError("credit referrer", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return storageError("credit referrer", err)
	}
	if rowsAffected == 0 {
		return storageError("credit referrer", errors.New("optimistic lock failed for account "+referrer.ID))
	}
	return nil
}

func (s *AccountService) appendPointEvent(tx *sql.Tx, accountID string, eventType models.PointEventType, amount, balance int64) error {
	_, err := tx.Exec(`
		INSERT INTO point_events (account_id, event_type, amount, balance, related_id, created_at)
		VALUES ($1, $2, $3, $4, NULL, NOW())`,
		accountID, string(eventType), amount, balance)
	if err != nil {
		return storageError("append point event", err)
	}
	return nil
}

func (s *AccountService) nicknameTaken(tx *sql.Tx, nickname string) (bool, error) {
	var exists bool
	err := tx.QueryRow(`SELECT EXISTS(SELECT 1 FROM users WHERE nickname = $1)`, nickname).Scan(&exists)
	if err != nil {
		return false, storageError("check nickname", err)
	}
	return exists, nil
}

// resolveUniqueNickname tries the base name, then a bounded number of
// random-suffix candidates, then falls back to a time-derived token that
// cannot collide with the suffix pattern again.
func (s *AccountService) resolveUniqueNickname(tx *sql.Tx, base string) (string, error) {
	taken, err := s.nicknameTaken(tx, base)
	if err != nil {
		return "", err
	}
	if !taken {
		return base, nil
	}

	for i := 0; i < s.cfg.NicknameMaxAttempts; i++ {
		candidate := fmt.Sprintf("%s_%04d", truncate(base, 15), rand.Intn(10000))
		taken, err := s.nicknameTaken(tx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}

	return fmt.Sprintf("%s_%s", truncate(base, 12), strconv.FormatInt(time.Now().UnixNano(), 36)), nil
}

// uniqueReferralCode generates a fresh 8-char code, retrying on the rare
// collision. The unique index on referral_code is the final guard.
func (s *AccountService) uniqueReferralCode(tx *sql.Tx) (string, error) {
	for i := 0; i < 5; i++ {
		code := generateReferralCode(s.cfg.ReferralCodeLength)
		var exists bool
		err := tx.QueryRow(`SELECT EXISTS(SELECT 1 FROM users WHERE referral_code = $1)`, code).Scan(&exists)
		if err != nil {
			return "", storageError("check referral code", err)
		}
		if !exists {
			return code, nil
		}
	}
	return "", storageError("generate referral code", errors.New("referral code space exhausted"))
}

func generateReferralCode(length int) string {
	const chars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, length)
	for i := range b {
		b[i] = chars[rand.Intn(len(chars))]
	}
	return string(b)
}

func deriveNickname(email, fullName string) string {
	if name := strings.TrimSpace(fullName); len(name) >= 2 {
		return sanitizeNickname(truncate(name, 20))
	}

	local := "fompt_user"
	if at := strings.Index(email, "@"); at > 0 {
		local = email[:at]
	}
	return sanitizeNickname(truncate(local, 20))
}

// sanitizeNickname keeps the derived name inside the allowed charset.
func sanitizeNickname(s string) string {
	var b strings.Builder
	for _, c := range s {
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' {
			b.WriteRune(c)
		} else {
			b.WriteByte('_')
		}
	}
	out := b.String()
	if len(out) < 2 {
		out = "fompt_user"
	}
	return out
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
