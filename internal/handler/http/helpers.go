package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
)

// respondWithError writes a plain-text error body.
func respondWithError(w http.ResponseWriter, code int, message string) {
	http.Error(w, message, code)
}

func respondWithText(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	if _, err := w.Write([]byte(message)); err != nil {
		log.Error().Err(err).Msg("Failed to write text response")
	}
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal JSON response")
		respondWithError(w, http.StatusInternalServerError, "Failed to marshal JSON response")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write(response); err != nil {
		log.Error().Err(err).Msg("Failed to write JSON response")
	}
}

func formatValidationErrors(errs validator.ValidationErrors) string {
	details := make([]string, 0, len(errs))
	for _, fe := range errs {
		switch fe.Tag() {
		case "required":
			details = append(details, fmt.Sprintf("Field '%s' is required", fe.Field()))
		case "min":
			details = append(details, fmt.Sprintf("Field '%s' must not be empty", fe.Field()))
		default:
			details = append(details, fmt.Sprintf("Field '%s' failed on '%s'", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(details, "; ")
}
