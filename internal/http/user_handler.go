package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/church-pickups/internal/application"
)

type userService interface {
	Signup(ctx context.Context, params application.SignupParams) (application.User, error)
	ApproveUser(ctx context.Context, principal application.Principal, userID string) (application.User, error)
	ListUsers(ctx context.Context, params application.ListUsersParams) ([]application.User, error)
	AddAddress(ctx context.Context, params application.AddAddressParams) (application.Address, error)
	ListAddresses(ctx context.Context, principal application.Principal, userID string) ([]application.Address, error)
}

type UserHandler struct {
	service   userService
	responder responder
	logger    *slog.Logger
}

func NewUserHandler(service userService, logger *slog.Logger) *UserHandler {
	base := defaultLogger(logger)
	return &UserHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *UserHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(ctx, h.logger, "UserHandler", operation, attrs...)
}

// Signup registers a member awaiting approval. It is served without authentication.
func (h *UserHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.responder.handleDecodeError(r.Context(), w, err)
		return
	}
	logger := h.log(r.Context(), "Signup", "organization_id", req.OrganizationID)

	user, err := h.service.Signup(r.Context(), application.SignupParams{
		OrganizationID: strings.TrimSpace(req.OrganizationID),
		Name:           req.Name,
		Email:          req.Email,
		Phone:          req.Phone,
		Role:           application.Role(strings.ToUpper(strings.TrimSpace(req.Role))),
	})
	if err != nil {
		logFailure(r.Context(), logger, "signup failed", err)
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "user signed up", "user_id", user.ID)
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, userResponse{User: toUserDTO(user)})
}

func (h *UserHandler) Approve(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	id := r.PathValue("id")
	logger := h.log(r.Context(), "Approve", "user_id", id)

	user, err := h.service.ApproveUser(r.Context(), principal, id)
	if err != nil {
		logFailure(r.Context(), logger, "user approval failed", err)
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "user approved")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, userResponse{User: toUserDTO(user)})
}

// List accepts optional ?status= and ?role= filters.
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	query := r.URL.Query()

	params := application.ListUsersParams{Principal: principal}
	if raw := strings.TrimSpace(query.Get("status")); raw != "" {
		status := application.UserStatus(strings.ToUpper(raw))
		params.Status = &status
	}
	if raw := strings.TrimSpace(query.Get("role")); raw != "" {
		role := application.Role(strings.ToUpper(raw))
		params.Role = &role
	}

	users, err := h.service.ListUsers(r.Context(), params)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]userDTO, 0, len(users))
	for _, user := range users {
		out = append(out, toUserDTO(user))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listUsersResponse{Users: out})
}

func (h *UserHandler) AddAddress(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	userID := r.PathValue("id")
	logger := h.log(r.Context(), "AddAddress", "user_id", userID)

	var req addressRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.responder.handleDecodeError(r.Context(), w, err)
		return
	}

	address, err := h.service.AddAddress(r.Context(), application.AddAddressParams{
		Principal:  principal,
		UserID:     userID,
		Street:     req.Street,
		City:       req.City,
		PostalCode: req.PostalCode,
	})
	if err != nil {
		logFailure(r.Context(), logger, "address creation failed", err)
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "address added", "address_id", address.ID)
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, addressResponse{Address: toAddressDTO(address)})
}

func (h *UserHandler) ListAddresses(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	addresses, err := h.service.ListAddresses(r.Context(), principal, r.PathValue("id"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]addressDTO, 0, len(addresses))
	for _, address := range addresses {
		out = append(out, toAddressDTO(address))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listAddressesResponse{Addresses: out})
}

type signupRequest struct {
	OrganizationID string `json:"organization_id" validate:"required"`
	Name           string `json:"name" validate:"required,max=100"`
	Email          string `json:"email" validate:"required,email"`
	Phone          string `json:"phone" validate:"max=32"`
	Role           string `json:"role" validate:"omitempty,oneof=USER DRIVER user driver"`
}

type addressRequest struct {
	Street     string `json:"street" validate:"required,max=200"`
	City       string `json:"city" validate:"required,max=100"`
	PostalCode string `json:"postal_code" validate:"max=20"`
}

type userDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`
	Role      string `json:"role"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

func toUserDTO(user application.User) userDTO {
	return userDTO{
		ID:        user.ID,
		Name:      user.Name,
		Email:     user.Email,
		Phone:     user.Phone,
		Role:      string(user.Role),
		Status:    string(user.Status),
		CreatedAt: user.CreatedAt.UTC().Format(time.RFC3339),
	}
}

type addressDTO struct {
	ID         string  `json:"id"`
	UserID     string  `json:"user_id"`
	Street     string  `json:"street"`
	City       string  `json:"city"`
	PostalCode string  `json:"postal_code,omitempty"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
}

func toAddressDTO(address application.Address) addressDTO {
	return addressDTO{
		ID:         address.ID,
		UserID:     address.UserID,
		Street:     address.Street,
		City:       address.City,
		PostalCode: address.PostalCode,
		Latitude:   address.Latitude,
		Longitude:  address.Longitude,
	}
}

type userResponse struct {
	User userDTO `json:"user"`
}

type listUsersResponse struct {
	Users []userDTO `json:"users"`
}

type addressResponse struct {
	Address addressDTO `json:"address"`
}

type listAddressesResponse struct {
	Addresses []addressDTO `json:"addresses"`
}
