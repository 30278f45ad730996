package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"github.com/fompt/backend/internal/config"
	"github.com/fompt/backend/internal/models"
	"github.com/fompt/backend/internal/services"
)

func newListingHandler(t *testing.T) (*ListingHandler, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := &config.MarketplaceConfig{
		SignupBonus:         100,
		ReferralBonus:       50,
		MinPrice:            10,
		MaxPrice:            10000,
		ReferralCodeLength:  8,
		NicknameMaxAttempts: 10,
		ViewDedupWindow:     24 * time.Hour,
		ListingsPerPage:     20,
		MaxTags:             5,
	}
	service := services.NewListingService(db, nil, cfg, services.NewPurchaseService(db))
	return NewListingHandler(service), mock
}

func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestListingHandler_CreateListing(t *testing.T) {
	handler, mock := newListingHandler(t)

	validBody := `{
		"title": "Editor rewrite prompt",
		"description": "Turns rough notes into polished prose",
		"content": "You are an expert editor. Rewrite the following text to be clear and concise.",
		"preview": "You are an expert editor.",
		"category": "WRITING",
		"price": 60,
		"tags": ["editing"]
	}`

	t.Run("unauthorized without identity", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.CreateListing(w, authedRequest("POST", "/prompts", []byte(validBody), ""))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("short title fails validation", func(t *testing.T) {
		body := `{
			"title": "Hi",
			"description": "Turns rough notes into polished prose",
			"content": "You are an expert editor. Rewrite the following text.",
			"preview": "You are an expert editor.",
			"category": "WRITING",
			"price": 60
		}`
		w := httptest.NewRecorder()
		handler.CreateListing(w, authedRequest("POST", "/prompts", []byte(body), "seller1"))
		assert.Equal(t, http.StatusBadRequest, w.Code)

		var resp services.ErrorResponse
		json.Unmarshal(w.Body.Bytes(), &resp)
		assert.Contains(t, resp.Details, "Title")
	})

	t.Run("creates and returns 201", func(t *testing.T) {
		now := time.Now()
		mock.ExpectQuery("INSERT INTO prompts").
			WithArgs(sqlmock.AnyArg(), "seller1", "Editor rewrite prompt",
				"Turns rough notes into polished prose", sqlmock.AnyArg(),
				"You are an expert editor.", "WRITING", int64(60), "editing",
				nil, "ACTIVE").
			WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

		w := httptest.NewRecorder()
		handler.CreateListing(w, authedRequest("POST", "/prompts", []byte(validBody), "seller1"))

		assert.Equal(t, http.StatusCreated, w.Code)
		var listing models.Listing
		json.Unmarshal(w.Body.Bytes(), &listing)
		assert.Equal(t, "seller1", listing.SellerID)
		assert.Equal(t, models.ListingActive, listing.Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestListingHandler_GetListing(t *testing.T) {
	handler, mock := newListingHandler(t)

	t.Run("missing listing", func(t *testing.T) {
		mock.ExpectQuery("SELECT p.id, p.seller_id, .* FROM prompts p").
			WithArgs("ghost").
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		w := httptest.NewRecorder()
		r := withURLParam(authedRequest("GET", "/prompts/ghost", nil, ""), "id", "ghost")
		handler.GetListing(w, r)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestListingHandler_DeleteListing(t *testing.T) {
	handler, mock := newListingHandler(t)

	t.Run("non-owner gets 403", func(t *testing.T) {
		now := time.Now()
		mock.ExpectQuery("SELECT p.id, p.seller_id, .* FROM prompts p").
			WithArgs("listing1").
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "seller_id", "title", "description", "content", "preview",
				"category", "price", "tags", "thumbnail_url", "view_count",
				"purchase_count", "status", "created_at", "updated_at",
				"u_id", "nickname", "avatar_url", "tier"}).
				AddRow("listing1", "seller1", "Title here ok", "Description text here",
					"content", "preview ok", "WRITING", 60, "", nil, 0, 0,
					"ACTIVE", now, now, "seller1", "wordsmith", nil, "BRONZE"))

		w := httptest.NewRecorder()
		r := withURLParam(authedRequest("DELETE", "/prompts/listing1", nil, "intruder"), "id", "listing1")
		handler.DeleteListing(w, r)

		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
