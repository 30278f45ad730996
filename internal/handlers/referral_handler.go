package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/fompt/backend/internal/services"
)

type ReferralHandler struct {
	service *services.ReferralQRService
}

func NewReferralHandler(service *services.ReferralQRService) *ReferralHandler {
	return &ReferralHandler{service: service}
}

// GetReferralQR returns the caller's referral share QR
// @Summary Referral share QR
// @Description Get the referral code, signup URL and QR image for sharing
// @Tags referral
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{referralCode=string,shareUrl=string,qrImage=string}
// @Failure 401 {object} services.ErrorResponse
// @Router /referral/qr [get]
func (h *ReferralHandler) GetReferralQR(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	code, shareURL, image, err := h.service.GenerateReferralQR(r.Context(), userID)
	if err != nil {
		services.SendDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"referralCode": code,
		"shareUrl":     shareURL,
		"qrImage":      image,
	})
}
