package services

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v8"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func setupAuthViper() {
	viper.Set("argon2.salt_length", 16)
	viper.Set("argon2.time", 1)
	viper.Set("argon2.memory", 64*1024)
	viper.Set("argon2.threads", 4)
	viper.Set("argon2.key_length", 32)
	viper.Set("jwt.secret_key", "test-secret")
	viper.Set("jwt.expiry_hours", 24)
}

func accountFetchRows(id, email, nickname string, points int64) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "email", "nickname", "avatar_url", "points", "referral_code",
		"referred_by", "tier", "total_sales", "total_purchases", "version",
		"created_at", "updated_at"}).
		AddRow(id, email, nickname, nil, points, "ABCD1234", nil, "BRONZE", 0, 0, 1, now, now)
}

func TestAuthService_Register(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	setupAuthViper()

	service := NewAuthService(nil, NewAccountService(db, testMarketplaceConfig()))

	t.Run("successful registration issues token and bonus", func(t *testing.T) {
		req := RegisterRequest{
			Email:    "test@example.com",
			Password: "password123",
			Nickname: "prompt_writer",
		}

		mock.ExpectBegin()
		mock.ExpectQuery(nicknameExistsQuery).
			WithArgs("prompt_writer").
			WillReturnRows(existsRows(false))
		mock.ExpectQuery(refcodeExistsQuery).
			WithArgs(sqlmock.AnyArg()).
			WillReturnRows(existsRows(false))
		mock.ExpectQuery(insertUserQuery).
			WithArgs(sqlmock.AnyArg(), req.Email, req.Nickname, nil, sqlmock.AnyArg(),
				int64(100), sqlmock.AnyArg(), nil, "BRONZE").
			WillReturnRows(timestampRows())
		mock.ExpectExec(signupEventQuery).
			WithArgs(sqlmock.AnyArg(), "SIGNUP", int64(100), int64(100)).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		body, _ := json.Marshal(req)
		r := httptest.NewRequest("POST", "/auth/register", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Register(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		var response AuthResponse
		json.Unmarshal(w.Body.Bytes(), &response)
		assert.NotEmpty(t, response.Token)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("invalid request body", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/auth/register", bytes.NewBuffer([]byte("invalid")))
		w := httptest.NewRecorder()

		service.Register(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown fields are rejected", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/auth/register",
			bytes.NewBufferString(`{"email":"a@b.com","password":"password123","nickname":"ok_name","admin":true}`))
		w := httptest.NewRecorder()

		service.Register(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("malformed referral code fails validation", func(t *testing.T) {
		body, _ := json.Marshal(RegisterRequest{
			Email:        "test@example.com",
			Password:     "password123",
			Nickname:     "prompt_writer",
			ReferralCode: "not-a-code",
		})
		r := httptest.NewRequest("POST", "/auth/register", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Register(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		var resp ErrorResponse
		json.Unmarshal(w.Body.Bytes(), &resp)
		assert.Contains(t, resp.Details, "ReferralCode")
	})

	t.Run("nickname with spaces fails validation", func(t *testing.T) {
		body, _ := json.Marshal(RegisterRequest{
			Email:    "test@example.com",
			Password: "password123",
			Nickname: "bad name",
		})
		r := httptest.NewRequest("POST", "/auth/register", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Register(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestAuthService_Login(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	setupAuthViper()

	service := NewAuthService(nil, NewAccountService(db, testMarketplaceConfig()))

	t.Run("successful login", func(t *testing.T) {
		hashedPassword, _ := hashPassword("password123")

		mock.ExpectQuery("SELECT id, password_hash FROM users WHERE email = \\$1").
			WithArgs("test@example.com").
			WillReturnRows(sqlmock.NewRows([]string{"id", "password_hash"}).
				AddRow("user1", hashedPassword))
		mock.ExpectQuery("SELECT id, email, nickname, .* FROM users WHERE id = \\$1").
			WithArgs("user1").
			WillReturnRows(accountFetchRows("user1", "test@example.com", "alice", 100))

		body, _ := json.Marshal(LoginRequest{Email: "test@example.com", Password: "password123"})
		r := httptest.NewRequest("POST", "/auth/login", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Login(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		var response AuthResponse
		json.Unmarshal(w.Body.Bytes(), &response)
		assert.NotEmpty(t, response.Token)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("wrong password", func(t *testing.T) {
		hashedPassword, _ := hashPassword("password123")

		mock.ExpectQuery("SELECT id, password_hash FROM users WHERE email = \\$1").
			WithArgs("test@example.com").
			WillReturnRows(sqlmock.NewRows([]string{"id", "password_hash"}).
				AddRow("user1", hashedPassword))

		body, _ := json.Marshal(LoginRequest{Email: "test@example.com", Password: "wrongpassword"})
		r := httptest.NewRequest("POST", "/auth/login", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Login(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("user not found", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, password_hash FROM users WHERE email = \\$1").
			WithArgs("nonexistent@example.com").
			WillReturnRows(sqlmock.NewRows([]string{"id", "password_hash"}))

		body, _ := json.Marshal(LoginRequest{Email: "nonexistent@example.com", Password: "password123"})
		r := httptest.NewRequest("POST", "/auth/login", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Login(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("oauth account has no password", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, password_hash FROM users WHERE email = \\$1").
			WithArgs("oauth@example.com").
			WillReturnRows(sqlmock.NewRows([]string{"id", "password_hash"}).
				AddRow("user2", ""))

		body, _ := json.Marshal(LoginRequest{Email: "oauth@example.com", Password: "password123"})
		r := httptest.NewRequest("POST", "/auth/login", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Login(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestAuthService_SyncIdentity(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	setupAuthViper()

	service := NewAuthService(nil, NewAccountService(db, testMarketplaceConfig()))

	t.Run("existing identity is fetched, no second bonus", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, email, nickname, .* FROM users WHERE id = \\$1").
			WithArgs("google-oauth2|123").
			WillReturnRows(accountFetchRows("google-oauth2|123", "jane@example.com", "jane", 250))

		body, _ := json.Marshal(SyncIdentityRequest{
			Subject: "google-oauth2|123",
			Email:   "jane@example.com",
		})
		r := httptest.NewRequest("POST", "/auth/identity/sync", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.SyncIdentity(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("first login creates the account with a derived nickname", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, email, nickname, .* FROM users WHERE id = \\$1").
			WithArgs("google-oauth2|456").
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		mock.ExpectBegin()
		mock.ExpectQuery(nicknameExistsQuery).
			WithArgs("Jane_Doe").
			WillReturnRows(existsRows(false))
		mock.ExpectQuery(refcodeExistsQuery).
			WithArgs(sqlmock.AnyArg()).
			WillReturnRows(existsRows(false))
		mock.ExpectQuery(insertUserQuery).
			WithArgs("google-oauth2|456", "jane.doe@example.com", "Jane_Doe", nil, "",
				int64(100), sqlmock.AnyArg(), nil, "BRONZE").
			WillReturnRows(timestampRows())
		mock.ExpectExec(signupEventQuery).
			WithArgs("google-oauth2|456", "SIGNUP", int64(100), int64(100)).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		body, _ := json.Marshal(SyncIdentityRequest{
			Subject:  "google-oauth2|456",
			Email:    "Jane.Doe@example.com",
			FullName: "Jane Doe",
		})
		r := httptest.NewRequest("POST", "/auth/identity/sync", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.SyncIdentity(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		var response AuthResponse
		json.Unmarshal(w.Body.Bytes(), &response)
		assert.NotEmpty(t, response.Token)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAuthService_Logout(t *testing.T) {
	setupAuthViper()

	redisClient, redisMock := redismock.NewClientMock()
	service := NewAuthService(redisClient, nil)

	redisMock.ExpectSet("blacklist:sometoken", "1", 24*time.Hour).SetVal("OK")

	r := httptest.NewRequest("POST", "/auth/logout", nil)
	r.Header.Set("Authorization", "Bearer sometoken")
	w := httptest.NewRecorder()

	service.Logout(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NoError(t, redisMock.ExpectationsWereMet())
}

func TestAuthService_GetUserAccount(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewAuthService(nil, NewAccountService(db, testMarketplaceConfig()))

	t.Run("returns the account for the token's user", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, email, nickname, .* FROM users WHERE id = \\$1").
			WithArgs("user1").
			WillReturnRows(accountFetchRows("user1", "a@example.com", "alice", 150))

		r := httptest.NewRequest("GET", "/auth/account", nil)
		r = r.WithContext(context.WithValue(r.Context(), "userID", "user1"))
		w := httptest.NewRecorder()

		service.GetUserAccount(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing identity", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/auth/account", nil)
		w := httptest.NewRecorder()

		service.GetUserAccount(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestPasswordHashing(t *testing.T) {
	setupAuthViper()

	password := "testpassword"

	hashed, err := hashPassword(password)
	assert.NoError(t, err)
	assert.NotEmpty(t, hashed)

	assert.True(t, verifyPassword(password, hashed))
	assert.False(t, verifyPassword("wrongpassword", hashed))
	assert.False(t, verifyPassword(password, "not-a-hash"))
}

func TestGenerateJWT(t *testing.T) {
	setupAuthViper()

	token, err := generateJWT("user123")
	assert.NoError(t, err)
	assert.NotEmpty(t, token)
}
