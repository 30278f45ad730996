package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/fompt/backend/internal/services"
)

type ListingHandler struct {
	service   *services.ListingService
	validator *services.ValidationHelper
}

func NewListingHandler(service *services.ListingService) *ListingHandler {
	return &ListingHandler{
		service:   service,
		validator: services.NewValidationHelper(),
	}
}

// CreateListing creates a listing
// @Summary Create listing
// @Description List a prompt for sale
// @Tags catalog
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body services.CreateListingRequest true "Listing fields"
// @Success 201 {object} models.Listing
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse
// @Router /prompts [post]
func (h *ListingHandler) CreateListing(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req services.CreateListingRequest

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	listing, err := h.service.CreateListing(r.Context(), userID, &req)
	if err != nil {
		services.SendDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(listing)
}

// ListListings returns a listings page
// @Summary Browse listings
// @Description Get a page of listings with optional category, search and sort
// @Tags catalog
// @Produce json
// @Param category query string false "Filter by category"
// @Param search query string false "Search in title and description"
// @Param sort query string false "latest | popular | price_asc | price_desc"
// @Param page query int false "Page number, starting at 1"
// @Success 200 {object} object{listings=[]models.Listing,count=int,page=int}
// @Failure 400 {object} services.ErrorResponse
// @Router /prompts [get]
func (h *ListingHandler) ListListings(w http.ResponseWriter, r *http.Request) {
	page := 1
	if pageStr := r.URL.Query().Get("page"); pageStr != "" {
		if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
			page = p
		}
	}

	filter := services.ListFilter{
		Category: r.URL.Query().Get("category"),
		Search:   r.URL.Query().Get("search"),
		Sort:     r.URL.Query().Get("sort"),
		Page:     page,
	}

	listings, err := h.service.ListListings(r.Context(), filter)
	if err != nil {
		services.SendDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"listings": listings,
		"count":    len(listings),
		"page":     page,
	})
}

// GetListing returns one listing
// @Summary Get listing
// @Description Get a single listing; content is redacted unless the viewer is the seller or a purchaser
// @Tags catalog
// @Produce json
// @Param id path string true "Listing ID"
// @Success 200 {object} models.Listing
// @Failure 404 {object} services.ErrorResponse
// @Router /prompts/{id} [get]
func (h *ListingHandler) GetListing(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	viewerID, _ := r.Context().Value("userID").(string)

	listing, err := h.service.GetListing(r.Context(), id, viewerID)
	if err != nil {
		services.SendDomainError(w, err)
		return
	}

	// Out-of-band so a counter race never delays the response.
	go h.service.RecordView(id, viewerID)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(listing)
}

// UpdateListing edits a listing
// @Summary Update listing
// @Description Edit an owned listing; existing ledger rows keep their price snapshot
// @Tags catalog
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Listing ID"
// @Param request body services.UpdateListingRequest true "Fields to change"
// @Success 200 {object} models.Listing
// @Failure 403 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /prompts/{id} [put]
func (h *ListingHandler) UpdateListing(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req services.UpdateListingRequest

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	listing, err := h.service.UpdateListing(r.Context(), chi.URLParam(r, "id"), userID, &req)
	if err != nil {
		services.SendDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(listing)
}

// DeleteListing soft-deletes a listing
// @Summary Delete listing
// @Description Mark an owned listing DELETED; the purchase ledger is untouched
// @Tags catalog
// @Produce json
// @Security BearerAuth
// @Param id path string true "Listing ID"
// @Success 200 {object} map[string]string
// @Failure 403 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /prompts/{id} [delete]
func (h *ListingHandler) DeleteListing(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	if err := h.service.DeleteListing(r.Context(), chi.URLParam(r, "id"), userID); err != nil {
		services.SendDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Listing deleted"})
}
