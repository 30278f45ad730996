package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/fompt/backend/internal/services"
)

type PurchaseHandler struct {
	service   *services.PurchaseService
	validator *services.ValidationHelper
}

func NewPurchaseHandler(service *services.PurchaseService) *PurchaseHandler {
	return &PurchaseHandler{
		service:   service,
		validator: services.NewValidationHelper(),
	}
}

// CreatePurchase executes a purchase
// @Summary Purchase a prompt
// @Description Atomically debit the buyer, credit the seller and append the ledger entry
// @Tags purchases
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{promptId=string} true "Purchase request"
// @Success 201 {object} models.Purchase
// @Failure 400 {object} services.ErrorResponse "Validation failed, self purchase or insufficient balance"
// @Failure 404 {object} services.ErrorResponse "Listing not found"
// @Failure 409 {object} services.ErrorResponse "Already purchased"
// @Router /purchases [post]
func (h *PurchaseHandler) CreatePurchase(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		PromptID string `json:"promptId" validate:"required"`
	}

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

	purchase, err := h.service.ExecutePurchase(r.Context(), userID, req.PromptID)
	if err != nil {
		services.SendDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{
		"success":  true,
		"purchase": purchase,
	})
}

// ListPurchases returns the caller's purchase history
// @Summary List purchases
// @Description Get the authenticated buyer's purchases, newest first
// @Tags purchases
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Number of purchases to return (default 50, max 100)"
// @Success 200 {object} object{purchases=[]models.Purchase,count=int}
// @Failure 401 {object} services.ErrorResponse
// @Router /purchases [get]
func (h *PurchaseHandler) ListPurchases(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil {
			limit = l
		}
	}

	purchases, err := h.service.GetPurchases(r.Context(), userID, limit)
	if err != nil {
		services.SendDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"purchases": purchases,
		"count":     len(purchases),
	})
}
