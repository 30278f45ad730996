package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"

	"github.com/go-playground/validator/v10"
)

var (
	referralCodeRegex = regexp.MustCompile(`^[A-Z0-9]{8}$`)
	nicknameRegex     = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
)

// ErrorResponse represents error response structure
type ErrorResponse struct {
	Error   string            `json:"error"`             // Error message
	Code    string            `json:"code,omitempty"`    // Stable domain error code
	Details map[string]string `json:"details,omitempty"` // Validation details
}

// ValidationHelper provides shared validation functionality
type ValidationHelper struct {
	validator *validator.Validate
}

// NewValidationHelper creates a validation helper with the marketplace
// custom tags registered.
func NewValidationHelper() *ValidationHelper {
	v := validator.New()
	v.RegisterValidation("refcode", func(fl validator.FieldLevel) bool {
		return referralCodeRegex.MatchString(fl.Field().String())
	})
	v.RegisterValidation("nickname", func(fl validator.FieldLevel) bool {
		return nicknameRegex.MatchString(fl.Field().String())
	})
	return &ValidationHelper{validator: v}
}

// ValidateStruct validates a struct and returns validation errors
func (vh *ValidationHelper) ValidateStruct(s any) error {
	return vh.validator.Struct(s)
}

// SendErrorResponse sends a JSON error response
func SendErrorResponse(w http.ResponseWriter, message string, statusCode int, validationErr error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	errorResp := ErrorResponse{Error: message}
	if validationErr != nil {
		if fieldErrs, ok := validationErr.(validator.ValidationErrors); ok {
			errorResp.Details = make(map[string]string)
			for _, err := range fieldErrs {
				errorResp.Details[err.Field()] = fmt.Sprintf("Field Validation Failed on '%s' tag", err.Tag())
			}
		}
	}

	json.NewEncoder(w).Encode(errorResp)
}

// SendDomainError maps a service error onto the wire format.
func SendDomainError(w http.ResponseWriter, err error) {
	var de *DomainError
	if errors.As(err, &de) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(de.HTTPStatus())
		json.NewEncoder(w).Encode(ErrorResponse{Error: de.Message, Code: de.Code})
		return
	}
	SendErrorResponse(w, "Internal server error", http.StatusInternalServerError, nil)
}
