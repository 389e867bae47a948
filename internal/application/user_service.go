package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"sort"
	"strings"
	"time"

	"github.com/example/church-pickups/internal/geo"
)

// UserService manages member accounts and their pickup addresses.
type UserService struct {
	users       UserRepository
	addresses   AddressRepository
	geocoder    geo.Geocoder
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewUserService wires dependencies for the user service.
func NewUserService(users UserRepository, addresses AddressRepository, geocoder geo.Geocoder, idGenerator func() string, now func() time.Time) *UserService {
	return NewUserServiceWithLogger(users, addresses, geocoder, idGenerator, now, nil)
}

// NewUserServiceWithLogger wires dependencies and a base logger.
func NewUserServiceWithLogger(users UserRepository, addresses AddressRepository, geocoder geo.Geocoder, idGenerator func() string, now func() time.Time, logger *slog.Logger) *UserService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &UserService{
		users:       users,
		addresses:   addresses,
		geocoder:    geocoder,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

// Signup registers a member awaiting administrator approval.
func (s *UserService) Signup(ctx context.Context, params SignupParams) (User, error) {
	if s == nil {
		return User{}, fmt.Errorf("UserService is nil")
	}
	logger := serviceLogger(ctx, s.logger, "UserService", "Signup", "organization_id", params.OrganizationID)

	normalized := normalizeSignup(params)
	if vErr := validateSignup(normalized); vErr.HasErrors() {
		logOutcome(logger, vErr, "signup")
		return User{}, vErr
	}

	createdAt := s.now()
	user := User{
		ID:             s.idGenerator(),
		OrganizationID: normalized.OrganizationID,
		Name:           normalized.Name,
		Email:          normalized.Email,
		Phone:          normalized.Phone,
		Role:           normalized.Role,
		Status:         UserStatusPendingApproval,
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
	}

	if s.users == nil {
		return user, nil
	}

	persisted, err := s.users.CreateUser(ctx, user)
	if err != nil {
		err = mapRepoError(err)
		if errors.Is(err, ErrAlreadyExists) {
			err = fmt.Errorf("%w: email %s is already registered", ErrAlreadyExists, user.Email)
		}
		logOutcome(logger, err, "signup")
		return User{}, err
	}

	logOutcome(logger, nil, "user signed up", "user_id", persisted.ID, "role", string(persisted.Role))
	return persisted, nil
}

// ApproveUser activates a pending or disabled account.
func (s *UserService) ApproveUser(ctx context.Context, principal Principal, userID string) (User, error) {
	if s == nil {
		return User{}, fmt.Errorf("UserService is nil")
	}
	logger := serviceLogger(ctx, s.logger, "UserService", "ApproveUser",
		"organization_id", principal.OrganizationID, "user_id", userID)

	if !principal.IsAdmin() {
		logOutcome(logger, ErrUnauthorized, "approve user")
		return User{}, ErrUnauthorized
	}
	if s.users == nil {
		return User{}, fmt.Errorf("user repository not configured")
	}

	user, err := s.users.GetUser(ctx, principal.OrganizationID, userID)
	if err != nil {
		err = mapRepoError(err)
		logOutcome(logger, err, "approve user")
		return User{}, err
	}
	if user.Status == UserStatusActive {
		return user, nil
	}

	user.Status = UserStatusActive
	user.UpdatedAt = s.now()
	persisted, err := s.users.UpdateUser(ctx, user)
	if err != nil {
		err = mapRepoError(err)
		logOutcome(logger, err, "approve user")
		return User{}, err
	}

	logOutcome(logger, nil, "user approved")
	return persisted, nil
}

// ListUsers returns the organization's users for administrators, ordered by name.
func (s *UserService) ListUsers(ctx context.Context, params ListUsersParams) ([]User, error) {
	if s == nil {
		return nil, fmt.Errorf("UserService is nil")
	}
	if !params.Principal.IsAdmin() {
		return nil, ErrUnauthorized
	}
	if s.users == nil {
		return nil, nil
	}

	users, err := s.users.ListUsers(ctx, params.Principal.OrganizationID, UserRepositoryFilter{Status: params.Status, Role: params.Role})
	if err != nil {
		return nil, mapRepoError(err)
	}

	out := make([]User, len(users))
	copy(out, users)

	sort.Slice(out, func(i, j int) bool {
		if strings.EqualFold(out[i].Name, out[j].Name) {
			return out[i].Email < out[j].Email
		}
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})

	return out, nil
}

// AddAddress geocodes and stores a pickup address for a user.
func (s *UserService) AddAddress(ctx context.Context, params AddAddressParams) (Address, error) {
	if s == nil {
		return Address{}, fmt.Errorf("UserService is nil")
	}
	principal := params.Principal
	userID := params.UserID
	if userID == "" {
		userID = principal.UserID
	}
	logger := serviceLogger(ctx, s.logger, "UserService", "AddAddress",
		"organization_id", principal.OrganizationID, "user_id", userID)

	if userID != principal.UserID && !principal.IsAdmin() {
		logOutcome(logger, ErrUnauthorized, "add address")
		return Address{}, ErrUnauthorized
	}

	address := Address{
		OrganizationID: principal.OrganizationID,
		UserID:         userID,
		Street:         strings.TrimSpace(params.Street),
		City:           strings.TrimSpace(params.City),
		PostalCode:     strings.TrimSpace(params.PostalCode),
	}

	vErr := &ValidationError{}
	if address.Street == "" {
		vErr.add("street", "street is required")
	}
	if address.City == "" {
		vErr.add("city", "city is required")
	}
	if vErr.HasErrors() {
		logOutcome(logger, vErr, "add address")
		return Address{}, vErr
	}

	if s.users == nil || s.addresses == nil || s.geocoder == nil {
		return Address{}, fmt.Errorf("user service dependencies not configured")
	}

	if _, err := s.users.GetUser(ctx, principal.OrganizationID, userID); err != nil {
		err = mapRepoError(err)
		logOutcome(logger, err, "add address")
		return Address{}, err
	}

	point, err := s.geocoder.Geocode(ctx, formatAddress(address))
	if err != nil {
		err = fmt.Errorf("geocode address: %w", err)
		logOutcome(logger, err, "add address")
		return Address{}, err
	}
	if point == nil || !point.Valid() {
		vErr := newValidationError("address", "address could not be located")
		logOutcome(logger, vErr, "add address")
		return Address{}, vErr
	}

	address.ID = s.idGenerator()
	address.Latitude = point.Latitude
	address.Longitude = point.Longitude
	address.CreatedAt = s.now()

	persisted, err := s.addresses.CreateAddress(ctx, address)
	if err != nil {
		err = mapRepoError(err)
		logOutcome(logger, err, "add address")
		return Address{}, err
	}

	logOutcome(logger, nil, "address added", "address_id", persisted.ID)
	return persisted, nil
}

// ListAddresses returns the addresses of a user to the user or an administrator.
func (s *UserService) ListAddresses(ctx context.Context, principal Principal, userID string) ([]Address, error) {
	if s == nil {
		return nil, fmt.Errorf("UserService is nil")
	}
	if userID == "" {
		userID = principal.UserID
	}
	if userID != principal.UserID && !principal.IsAdmin() {
		return nil, ErrUnauthorized
	}
	if s.addresses == nil {
		return nil, nil
	}
	addresses, err := s.addresses.ListAddressesForUser(ctx, principal.OrganizationID, userID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return addresses, nil
}

func formatAddress(address Address) string {
	parts := []string{address.Street}
	if address.PostalCode != "" {
		parts = append(parts, address.PostalCode+" "+address.City)
	} else {
		parts = append(parts, address.City)
	}
	return strings.Join(parts, ", ")
}

func normalizeSignup(params SignupParams) SignupParams {
	role := Role(strings.ToUpper(strings.TrimSpace(string(params.Role))))
	if role == "" {
		role = RoleUser
	}
	return SignupParams{
		OrganizationID: strings.TrimSpace(params.OrganizationID),
		Name:           strings.TrimSpace(params.Name),
		Email:          strings.ToLower(strings.TrimSpace(params.Email)),
		Phone:          strings.TrimSpace(params.Phone),
		Role:           role,
	}
}

func validateSignup(params SignupParams) *ValidationError {
	vErr := &ValidationError{}

	if params.OrganizationID == "" {
		vErr.add("organization_id", "organization is required")
	}
	if params.Name == "" {
		vErr.add("name", "name is required")
	}
	if params.Email == "" {
		vErr.add("email", "email is required")
	} else if _, err := mail.ParseAddress(params.Email); err != nil {
		vErr.add("email", "email is invalid")
	}
	switch params.Role {
	case RoleUser, RoleDriver:
	default:
		vErr.add("role", "role must be USER or DRIVER")
	}

	return vErr
}
