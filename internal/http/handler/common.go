package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/clearbill/billing-api/internal/domain"
	"github.com/clearbill/billing-api/internal/service"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// respondValidationError sends a standardized validation error response with specific field messages
func respondValidationError(w http.ResponseWriter, err error) {
	fieldErrors := make(map[string]string)
	if ve, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range ve {
			fieldName := toJSONFieldName(fe.Field())
			fieldErrors[fieldName] = formatValidationError(fe)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(domain.APIError{
		Type:   domain.ErrorTypeValidation,
		Title:  "Validation Error",
		Status: http.StatusBadRequest,
		Detail: "One or more fields failed validation",
		Errors: fieldErrors,
	})
}

// formatValidationError creates a human-readable validation error message
func formatValidationError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", toJSONFieldName(fe.Field()))
	case "email":
		return "Must be a valid email address"
	case "max":
		return fmt.Sprintf("Must be at most %s characters", fe.Param())
	case "min":
		return fmt.Sprintf("Must be at least %s characters", fe.Param())
	case "len":
		return fmt.Sprintf("Must be exactly %s characters", fe.Param())
	case "uuid":
		return "Must be a valid UUID"
	case "oneof":
		return fmt.Sprintf("Must be one of: %s", fe.Param())
	default:
		return "Invalid value"
	}
}

// toJSONFieldName converts a Go struct field name to its JSON equivalent (camelCase)
func toJSONFieldName(field string) string {
	if len(field) == 0 {
		return field
	}
	return strings.ToLower(field[:1]) + field[1:]
}

// respondWithError sends a standardized JSON error response
func respondWithError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(domain.APIError{
		Type:   getErrorType(status),
		Title:  http.StatusText(status),
		Status: status,
		Detail: message,
	})
}

// getErrorType returns the appropriate error type for an HTTP status code
func getErrorType(status int) string {
	switch status {
	case http.StatusBadRequest:
		return domain.ErrorTypeBadRequest
	case http.StatusUnauthorized:
		return domain.ErrorTypeUnauthorized
	case http.StatusForbidden:
		return domain.ErrorTypeForbidden
	case http.StatusNotFound:
		return domain.ErrorTypeNotFound
	case http.StatusConflict:
		return domain.ErrorTypeConflict
	case http.StatusBadGateway:
		return domain.ErrorTypeDependency
	default:
		return domain.ErrorTypeInternal
	}
}

// respondServiceError translates service-layer errors into HTTP responses.
// End-user messages are German; the taxonomy error stays machine-readable
// in the type field.
func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		respondWithError(w, http.StatusUnauthorized, "E-Mail-Adresse oder Passwort ist falsch.")
	case errors.Is(err, service.ErrUnauthorized):
		respondWithError(w, http.StatusUnauthorized, "Anmeldung erforderlich.")
	case errors.Is(err, service.ErrAccountDisabled):
		respondWithError(w, http.StatusForbidden, "Dieses Konto ist deaktiviert.")
	case errors.Is(err, service.ErrNotDraft):
		respondWithError(w, http.StatusForbidden, "Positionen können nur bei Entwürfen bearbeitet werden.")
	case errors.Is(err, service.ErrAlreadyConverted):
		respondWithError(w, http.StatusForbidden, "Das Angebot wurde bereits in eine Rechnung umgewandelt.")
	case errors.Is(err, service.ErrInvalidStatusTransition):
		respondWithError(w, http.StatusForbidden, "Dieser Statuswechsel ist nicht zulässig.")
	case errors.Is(err, service.ErrPermissionDenied):
		respondWithError(w, http.StatusForbidden, "Keine Berechtigung für diese Aktion.")
	case errors.Is(err, service.ErrNotFound), errors.Is(err, service.ErrUserNotFound):
		respondWithError(w, http.StatusNotFound, "Der angeforderte Datensatz wurde nicht gefunden.")
	case errors.Is(err, service.ErrConflict):
		respondWithError(w, http.StatusConflict, "Der Datensatz existiert bereits oder verletzt eine Eindeutigkeitsregel.")
	case errors.Is(err, service.ErrInvalidInput):
		respondWithError(w, http.StatusBadRequest, "Die Eingabe ist ungültig oder unvollständig.")
	case errors.Is(err, service.ErrDelivery):
		respondWithError(w, http.StatusBadGateway, "Das Dokument wurde gespeichert, konnte aber nicht zugestellt werden.")
	default:
		respondWithError(w, http.StatusInternalServerError, "Ein unerwarteter Fehler ist aufgetreten.")
	}
}
