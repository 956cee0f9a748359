package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/accounts-service/internal/user"
)

const maxRequestBodyBytes = 1 << 20

type RegisterRequest struct {
	Name     string `json:"name" validate:"required"`
	Phone    string `json:"phone" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginRequest struct {
	Phone    string `json:"phone" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// UpdateUserRequest fields are optional; a present field must not be empty.
type UpdateUserRequest struct {
	Name     *string `json:"name,omitempty" validate:"omitnil,min=1"`
	Phone    *string `json:"phone,omitempty" validate:"omitnil,min=1"`
	Password *string `json:"password,omitempty" validate:"omitnil,min=1"`
}

// UserResponse is the wire form of a user. Password carries the stored
// bcrypt digest only when the handler is built WithPasswordHash.
type UserResponse struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Phone    string    `json:"phone"`
	Password string    `json:"password,omitempty"`
}

type UserHandler struct {
	service        user.Service
	validate       *validator.Validate
	exposePassword bool
}

type Option func(*UserHandler)

// WithPasswordHash includes the stored password digest in user responses.
func WithPasswordHash(expose bool) Option {
	return func(h *UserHandler) {
		h.exposePassword = expose
	}
}

func NewUserHandler(service user.Service, opts ...Option) *UserHandler {
	h := &UserHandler{
		service:  service,
		validate: validator.New(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *UserHandler) RegisterRoutes(router chi.Router) {
	router.Post("/register", h.handleRegister)
	router.Post("/login", h.handleLogin)
	router.Get("/users", h.handleListUsers)
	router.Put("/users/{id}", h.handleUpdateUser)
	router.Delete("/users/{id}", h.handleDeleteUser)
}

func (h *UserHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var requestPayload RegisterRequest
	if !h.decodeAndValidate(w, r, &requestPayload) {
		return
	}

	created, err := h.service.Register(r.Context(), user.NewUser{
		Name:     requestPayload.Name,
		Phone:    requestPayload.Phone,
		Password: requestPayload.Password,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to register user via service")

		switch {
		case errors.Is(err, user.ErrPhoneExists):
			respondWithError(w, http.StatusConflict, "Phone already exists")
		case errors.Is(err, user.ErrHashPassword):
			respondWithError(w, http.StatusInternalServerError, "Failed to hash password")
		default:
			respondWithError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	respondWithJSON(w, http.StatusOK, h.toResponse(created))
}

func (h *UserHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var requestPayload LoginRequest
	if !h.decodeAndValidate(w, r, &requestPayload) {
		return
	}

	found, err := h.service.Login(r.Context(), user.LoginRequest{
		Phone:    requestPayload.Phone,
		Password: requestPayload.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, user.ErrNotFound):
			respondWithError(w, http.StatusNotFound, "User not found")
		case errors.Is(err, user.ErrInvalidPassword):
			respondWithError(w, http.StatusUnauthorized, "Invalid password")
		default:
			log.Error().Err(err).Msg("Failed to login via service")
			respondWithError(w, http.StatusInternalServerError, "Failed to login")
		}
		return
	}

	respondWithJSON(w, http.StatusOK, h.toResponse(found))
}

func (h *UserHandler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list users via service")
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}

	responsePayload := make([]UserResponse, 0, len(users))
	for i := range users {
		responsePayload = append(responsePayload, h.toResponse(&users[i]))
	}

	respondWithJSON(w, http.StatusOK, responsePayload)
}

func (h *UserHandler) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseUserID(w, r)
	if !ok {
		return
	}

	var requestPayload UpdateUserRequest
	if !h.decodeAndValidate(w, r, &requestPayload) {
		return
	}

	err := h.service.UpdateUser(r.Context(), userID, user.UpdateUser{
		Name:     requestPayload.Name,
		Phone:    requestPayload.Phone,
		Password: requestPayload.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, user.ErrNotFound):
			respondWithError(w, http.StatusNotFound, "User not found")
		case errors.Is(err, user.ErrPhoneExists):
			respondWithError(w, http.StatusConflict, "Phone already exists")
		case errors.Is(err, user.ErrHashPassword):
			respondWithError(w, http.StatusInternalServerError, "Failed to hash password")
		default:
			log.Error().Err(err).Stringer("user_id", userID).Msg("Failed to update user via service")
			respondWithError(w, http.StatusInternalServerError, "Failed to update user")
		}
		return
	}

	respondWithText(w, http.StatusOK, "User updated successfully")
}

func (h *UserHandler) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteUser(r.Context(), userID); err != nil {
		log.Error().Err(err).Stringer("user_id", userID).Msg("Failed to delete user via service")
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondWithText(w, http.StatusOK, "User deleted")
}

// decodeAndValidate writes a 400 and returns false when the body is not
// valid JSON for dst or fails validation.
func (h *UserHandler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		log.Warn().Err(err).Msg("Failed to decode request body")
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondWithError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return false
		}
		respondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return false
	}

	err := h.validate.Struct(dst)
	if err == nil {
		return true
	}

	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		respondWithError(w, http.StatusBadRequest, "Validation failed: "+formatValidationErrors(validationErrors))
	} else {
		log.Error().Err(err).Type("validation_error_type", err).Msg("Unexpected error type during validation")
		respondWithError(w, http.StatusInternalServerError, "Internal validation error")
	}
	return false
}

func (h *UserHandler) toResponse(u *user.User) UserResponse {
	resp := UserResponse{
		ID:    u.ID,
		Name:  u.Name,
		Phone: u.Phone,
	}
	if h.exposePassword {
		resp.Password = u.PasswordHash
	}
	return resp
}

// parseUserID accepts only the canonical 36-character hyphenated form.
func parseUserID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	idParam := chi.URLParam(r, "id")

	userID, err := uuid.FromString(idParam)
	if err == nil && len(idParam) != 36 {
		err = errors.New("id must be a canonical uuid")
	}
	if err != nil {
		log.Warn().Err(err).Str("user_id", idParam).Msg("Failed to parse id parameter from URL")
		respondWithError(w, http.StatusBadRequest, "Invalid id parameter")
		return uuid.Nil, false
	}

	return userID, true
}
