package services

import (
	"context"
	cryptorand "crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"
	"golang.org/x/crypto/argon2"
)

// AuthService is the boundary with the identity collaborator. It turns a
// signup or verified external identity into an account (via
// AccountService, which issues the bonuses) and hands out tokens the
// middleware can verify. Everything below the token is UI plumbing; the
// core contract is "supply a verified user id, read the account back".
type AuthService struct {
	redis    *redis.Client
	accounts *AccountService
	helper   *ValidationHelper
}

// RegisterRequest represents the direct-signup payload
// @Description Registration request structure
type RegisterRequest struct {
	Email        string `json:"email" validate:"required,email" example:"user@example.com"`
	Password     string `json:"password" validate:"required,min=8,max=50" example:"password123"`
	Nickname     string `json:"nickname" validate:"required,min=2,max=20,nickname" example:"prompt_writer"`
	ReferralCode string `json:"referralCode,omitempty" validate:"omitempty,refcode" example:"AB12CD34"`
}

// LoginRequest represents the login payload
// @Description Login request structure
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email" example:"user@example.com"`
	Password string `json:"password" validate:"required" example:"password123"`
}

// SyncIdentityRequest carries a verified external (OAuth) identity.
// @Description Identity sync request structure
type SyncIdentityRequest struct {
	Subject   string  `json:"subject" validate:"required" example:"google-oauth2|1234567890"`
	Email     string  `json:"email" validate:"required,email" example:"user@example.com"`
	FullName  string  `json:"fullName,omitempty" example:"Jane Doe"`
	AvatarURL *string `json:"avatarUrl,omitempty"`
}

// AuthResponse represents the authentication response
// @Description Authentication response structure
type AuthResponse struct {
	Token   string      `json:"token"`
	Account interface{} `json:"account"`
}

func NewAuthService(redisClient *redis.Client, accounts *AccountService) *AuthService {
	return &AuthService{
		redis:    redisClient,
		accounts: accounts,
		helper:   NewValidationHelper(),
	}
}

// Register handles direct signup
// @Summary Register a new account
// @Description Create an account with email, password, nickname and optional referral code
// @Tags auth
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Registration request"
// @Success 200 {object} AuthResponse "Registration successful"
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /auth/register [post]
func (s *AuthService) Register(w http.ResponseWriter, r *http.Request) {
	log.Printf("[AUTH] Registration attempt from IP: %s", r.RemoteAddr)

	var req RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := s.helper.ValidateStruct(&req); err != nil {
		log.Printf("[AUTH] Registration validation failed: %v", err)
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	hashedPassword, err := hashPassword(req.Password)
	if err != nil {
		log.Printf("[AUTH] Password hashing failed for %s: %v", req.Email, err)
		SendErrorResponse(w, "An internal error occurred", http.StatusInternalServerError, nil)
		return
	}

	account, err := s.accounts.CreateAccount(r.Context(), Identity{
		Email:        req.Email,
		Nickname:     req.Nickname,
		PasswordHash: hashedPassword,
	}, req.ReferralCode)
	if err != nil {
		log.Printf("[AUTH] Account creation failed for %s: %v", req.Email, err)
		SendDomainError(w, err)
		return
	}

	token, err := generateJWT(account.ID)
	if err != nil {
		log.Printf("[AUTH] JWT generation failed for %s: %v", account.ID, err)
		SendErrorResponse(w, "Failed to generate token", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[AUTH] Registration successful for account %s", account.ID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(AuthResponse{Token: token, Account: account})
}

// Login handles authentication
// @Summary Login
// @Description Authenticate with email and password
// @Tags auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login request"
// @Success 200 {object} AuthResponse "Login successful"
// @Failure 401 {object} ErrorResponse
// @Router /auth/login [post]
func (s *AuthService) Login(w http.ResponseWriter, r *http.Request) {
	log.Printf("[AUTH] Login attempt from IP: %s", r.RemoteAddr)

	var req LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := s.helper.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	accountID, hashedPassword, err := s.accounts.PasswordHash(r.Context(), req.Email)
	if err != nil || hashedPassword == "" || !verifyPassword(req.Password, hashedPassword) {
		log.Printf("[AUTH] Invalid credentials for %s", req.Email)
		SendErrorResponse(w, "Invalid credentials", http.StatusUnauthorized, nil)
		return
	}

	account, err := s.accounts.GetAccountByID(r.Context(), accountID)
	if err != nil {
		SendDomainError(w, err)
		return
	}

	token, err := generateJWT(account.ID)
	if err != nil {
		log.Printf("[AUTH] JWT generation failed for %s: %v", account.ID, err)
		SendErrorResponse(w, "Failed to generate token", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[AUTH] Login successful for account %s", account.ID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(AuthResponse{Token: token, Account: account})
}

// SyncIdentity handles the first login through an external provider.
// Existing accounts are fetched; unseen identities get an account with a
// derived, collision-free nickname and the signup bonus.
// @Summary Sync external identity
// @Description Fetch or create the account for a verified OAuth identity
// @Tags auth
// @Accept json
// @Produce json
// @Param request body SyncIdentityRequest true "Verified identity"
// @Success 200 {object} AuthResponse
// @Failure 400 {object} ErrorResponse
// @Router /auth/identity/sync [post]
func (s *AuthService) SyncIdentity(w http.ResponseWriter, r *http.Request) {
	var req SyncIdentityRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := s.helper.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	account, err := s.accounts.GetAccountByID(r.Context(), req.Subject)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			SendDomainError(w, err)
			return
		}
		account, err = s.accounts.CreateAccount(r.Context(), Identity{
			ID:        req.Subject,
			Email:     req.Email,
			FullName:  req.FullName,
			AvatarURL: req.AvatarURL,
		}, "")
		if err != nil {
			log.Printf("[AUTH] Identity sync failed for %s: %v", req.Subject, err)
			SendDomainError(w, err)
			return
		}
		log.Printf("[AUTH] Created account %s for external identity", account.ID)
	}

	token, err := generateJWT(account.ID)
	if err != nil {
		SendErrorResponse(w, "Failed to generate token", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(AuthResponse{Token: token, Account: account})
}

// Logout blacklists the presented token
// @Summary Logout
// @Description Logout and blacklist the token
// @Tags auth
// @Produce json
// @Success 200 {object} map[string]string "Logout successful"
// @Router /auth/logout [post]
func (s *AuthService) Logout(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("Authorization")
	if token != "" && len(token) > 7 {
		token = token[7:] // strip "Bearer "

		if s.redis != nil {
			ctx := context.Background()
			key := fmt.Sprintf("blacklist:%s", token)
			expiry := time.Duration(viper.GetInt("jwt.expiry_hours")) * time.Hour
			if err := s.redis.Set(ctx, key, "1", expiry).Err(); err != nil {
				log.Printf("[AUTH] Failed to blacklist token: %v", err)
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Logout successful"})
}

// GetUserAccount returns the authenticated account
// @Summary Get current account
// @Description Get the authenticated user's account, balance and tier
// @Tags auth
// @Produce json
// @Success 200 {object} map[string]interface{} "Account details"
// @Failure 401 {object} ErrorResponse
// @Router /auth/account [get]
func (s *AuthService) GetUserAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	account, err := s.accounts.GetAccountByID(r.Context(), userID)
	if err != nil {
		log.Printf("[AUTH] Failed to fetch account %s: %v", userID, err)
		SendDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(account)
}

// decodeJSON applies the shared body handling: size cap, unknown-field
// rejection, single-object enforcement.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return false
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return false
	}

	return true
}

func generateJWT(userID string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"exp":     time.Now().Add(time.Duration(viper.GetInt("jwt.expiry_hours")) * time.Hour).Unix(),
	})

	return token.SignedString([]byte(viper.GetString("jwt.secret_key")))
}

func hashPassword(password string) (string, error) {
	salt := make([]byte, viper.GetInt("argon2.salt_length"))
	if _, err := cryptorand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(password), salt,
		uint32(viper.GetInt("argon2.time")),
		uint32(viper.GetInt("argon2.memory")),
		uint8(viper.GetInt("argon2.threads")),
		uint32(viper.GetInt("argon2.key_length")))
	return fmt.Sprintf("%s$%s", base64.StdEncoding.EncodeToString(salt), base64.StdEncoding.EncodeToString(hash)), nil
}

func verifyPassword(password, hashedPassword string) bool {
	parts := strings.Split(hashedPassword, "$")
	if len(parts) != 2 {
		return false
	}

	salt, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return false
	}

	hash, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return false
	}

	computedHash := argon2.IDKey([]byte(password), salt,
		uint32(viper.GetInt("argon2.time")),
		uint32(viper.GetInt("argon2.memory")),
		uint8(viper.GetInt("argon2.threads")),
		uint32(viper.GetInt("argon2.key_length")))
	return string(hash) == string(computedHash)
}
