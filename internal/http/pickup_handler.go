package http

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/church-pickups/internal/application"
	"github.com/example/church-pickups/internal/pickup"
)

type pickupService interface {
	CreateRequest(ctx context.Context, params application.CreatePickupRequestParams) (application.CreatePickupRequestResult, error)
	UpdateRequest(ctx context.Context, params application.UpdatePickupRequestParams) (application.PickupRequest, error)
	AcceptRequest(ctx context.Context, params application.TransitionParams) (application.PickupRequest, error)
	ReleaseRequest(ctx context.Context, params application.TransitionParams) (application.PickupRequest, error)
	CancelRequest(ctx context.Context, params application.TransitionParams) (application.PickupRequest, error)
	CompleteRequest(ctx context.Context, params application.TransitionParams) (application.PickupRequest, error)
	CancelSeries(ctx context.Context, params application.CancelSeriesParams) (application.CancelSeriesResult, error)
	ListRequests(ctx context.Context, params application.ListPickupRequestsParams) ([]application.PickupRequest, error)
	GetRequest(ctx context.Context, principal application.Principal, requestID string) (application.PickupRequest, error)
	ListEvents(ctx context.Context, principal application.Principal, requestID string) ([]application.PickupEvent, error)
}

// PickupHandler serves /pickup-requests and /pickup-series.
type PickupHandler struct {
	service   pickupService
	location  *time.Location
	responder responder
	logger    *slog.Logger
}

// NewPickupHandler constructs the handler. Calendar dates in requests are read in loc.
func NewPickupHandler(service pickupService, loc *time.Location, logger *slog.Logger) *PickupHandler {
	if loc == nil {
		loc = time.UTC
	}
	base := defaultLogger(logger)
	return &PickupHandler{service: service, location: loc, responder: newResponder(base), logger: base}
}

func (h *PickupHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(ctx, h.logger, "PickupHandler", operation, attrs...)
}

func (h *PickupHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	logger := h.log(r.Context(), "Create")

	var req createPickupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.responder.handleDecodeError(r.Context(), w, err)
		return
	}
	input, vErr := req.toInput(h.location)
	if vErr != nil {
		h.responder.writeValidationError(r.Context(), w, vErr)
		return
	}

	result, err := h.service.CreateRequest(r.Context(), application.CreatePickupRequestParams{Principal: principal, Input: input})
	if err != nil {
		logFailure(r.Context(), logger, "pickup request creation failed", err)
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]pickupRequestDTO, 0, len(result.Requests))
	for _, request := range result.Requests {
		out = append(out, h.toDTO(request))
	}
	logger.InfoContext(r.Context(), "pickup requests created", "count", len(out))
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, createPickupResponse{SeriesID: result.SeriesID, Requests: out})
}

func (h *PickupHandler) Update(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	id := r.PathValue("id")
	logger := h.log(r.Context(), "Update", "request_id", id)

	var req updatePickupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.responder.handleDecodeError(r.Context(), w, err)
		return
	}

	request, err := h.service.UpdateRequest(r.Context(), application.UpdatePickupRequestParams{
		Principal: principal,
		RequestID: id,
		AddressID: req.AddressID,
		Pickup:    req.Pickup,
		DropOff:   req.DropOff,
		GroupRide: req.GroupRide,
		GroupSize: req.GroupSize,
		Notes:     req.Notes,
	})
	if err != nil {
		logFailure(r.Context(), logger, "pickup request update failed", err)
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "pickup request updated")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, pickupRequestResponse{Request: h.toDTO(request)})
}

type transitionFunc func(ctx context.Context, params application.TransitionParams) (application.PickupRequest, error)

func (h *PickupHandler) Accept(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "Accept", h.service.AcceptRequest)
}

func (h *PickupHandler) Release(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "Release", h.service.ReleaseRequest)
}

func (h *PickupHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "Cancel", h.service.CancelRequest)
}

func (h *PickupHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "Complete", h.service.CompleteRequest)
}

func (h *PickupHandler) transition(w http.ResponseWriter, r *http.Request, operation string, apply transitionFunc) {
	principal, _ := PrincipalFromContext(r.Context())
	id := r.PathValue("id")
	logger := h.log(r.Context(), operation, "request_id", id)

	// The body is optional.
	var req transitionRequest
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		h.responder.handleDecodeError(r.Context(), w, err)
		return
	}

	request, err := apply(r.Context(), application.TransitionParams{
		Principal: principal,
		RequestID: id,
		DriverID:  strings.TrimSpace(req.DriverID),
		Note:      strings.TrimSpace(req.Note),
	})
	if err != nil {
		logFailure(r.Context(), logger, "pickup transition failed", err)
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "pickup transition applied", "status", request.Status)
	h.responder.writeJSON(r.Context(), w, http.StatusOK, pickupRequestResponse{Request: h.toDTO(request)})
}

func (h *PickupHandler) CancelSeries(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	id := r.PathValue("id")
	logger := h.log(r.Context(), "CancelSeries", "series_id", id)

	result, err := h.service.CancelSeries(r.Context(), application.CancelSeriesParams{Principal: principal, SeriesID: id})
	if err != nil {
		logFailure(r.Context(), logger, "series cancellation failed", err)
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "series cancelled", "cancelled", result.Cancelled, "skipped", result.Skipped)
	h.responder.writeJSON(r.Context(), w, http.StatusOK, cancelSeriesResponse{Cancelled: result.Cancelled, Skipped: result.Skipped})
}

func (h *PickupHandler) Get(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	request, err := h.service.GetRequest(r.Context(), principal, r.PathValue("id"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, pickupRequestResponse{Request: h.toDTO(request)})
}

func (h *PickupHandler) Events(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	id := r.PathValue("id")
	events, err := h.service.ListEvents(r.Context(), principal, id)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]pickupEventDTO, 0, len(events))
	for _, event := range events {
		out = append(out, pickupEventDTO{
			ID:        event.ID,
			Kind:      string(event.Kind),
			ActorID:   event.ActorID,
			Note:      event.Note,
			CreatedAt: event.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listEventsResponse{RequestID: id, Events: out})
}

// List filters by ?status=A,B&service_day_id=&series_id= and at most one of
// ?day=YYYY-MM-DD, ?week=YYYY-MM-DD or ?month=YYYY-MM.
func (h *PickupHandler) List(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	params, vErr := h.listParams(principal, r)
	if vErr != nil {
		h.responder.writeValidationError(r.Context(), w, vErr)
		return
	}

	requests, err := h.service.ListRequests(r.Context(), params)
	if err != nil {
		logFailure(r.Context(), h.log(r.Context(), "List"), "pickup listing failed", err)
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]pickupRequestDTO, 0, len(requests))
	for _, request := range requests {
		out = append(out, h.toDTO(request))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listPickupsResponse{Requests: out})
}

func (h *PickupHandler) listParams(principal application.Principal, r *http.Request) (application.ListPickupRequestsParams, *application.ValidationError) {
	query := r.URL.Query()
	params := application.ListPickupRequestsParams{Principal: principal}
	vErr := &application.ValidationError{FieldErrors: map[string]string{}}

	for _, raw := range parseCSV(query.Get("status")) {
		status, err := pickup.ParseStatus(raw)
		if err != nil {
			vErr.FieldErrors["status"] = "status must be one of PENDING, ACCEPTED, COMPLETED, CANCELLED"
			break
		}
		params.Statuses = append(params.Statuses, status)
	}
	if value := strings.TrimSpace(query.Get("service_day_id")); value != "" {
		params.ServiceDayID = &value
	}
	if value := strings.TrimSpace(query.Get("series_id")); value != "" {
		params.SeriesID = &value
	}

	presets := 0
	for _, key := range []string{"day", "week", "month"} {
		raw := strings.TrimSpace(query.Get(key))
		if raw == "" {
			continue
		}
		presets++
		layout := time.DateOnly
		if key == "month" {
			layout = "2006-01"
		}
		reference, err := time.ParseInLocation(layout, raw, h.location)
		if err != nil {
			vErr.FieldErrors[key] = key + " must use the " + layout + " format"
			continue
		}
		params.Period = application.ListPeriod(key)
		params.PeriodReference = reference
	}
	if presets > 1 {
		vErr.FieldErrors["period"] = "only one of day, week or month may be given"
	}

	if len(vErr.FieldErrors) > 0 {
		return application.ListPickupRequestsParams{}, vErr
	}
	return params, nil
}

func (h *PickupHandler) toDTO(request application.PickupRequest) pickupRequestDTO {
	return pickupRequestDTO{
		ID:           request.ID,
		UserID:       request.UserID,
		ServiceDayID: request.ServiceDayID,
		AddressID:    request.AddressID,
		RequestDate:  request.RequestDate.In(h.location).Format(time.RFC3339),
		ServiceDate:  request.ServiceDate,
		Status:       string(request.Status),
		DriverID:     request.DriverID,
		DistanceKm:   request.DistanceKm,
		SeriesID:     request.SeriesID,
		Pickup:       request.Pickup,
		DropOff:      request.DropOff,
		GroupRide:    request.GroupRide,
		GroupSize:    request.GroupSize,
		Notes:        request.Notes,
		CreatedAt:    request.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:    request.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

type createPickupRequest struct {
	UserID       string `json:"user_id"`
	ServiceDayID string `json:"service_day_id"`
	AddressID    string `json:"address_id"`
	RequestDate  string `json:"request_date" validate:"omitempty,datetime=2006-01-02"`
	// Pickup defaults to true when omitted.
	Pickup    *bool  `json:"pickup"`
	DropOff   bool   `json:"drop_off"`
	GroupRide bool   `json:"group_ride"`
	GroupSize int    `json:"group_size" validate:"gte=0"`
	Notes     string `json:"notes"`
	Recurring bool   `json:"recurring"`
	EndDate   string `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
}

func (r createPickupRequest) toInput(loc *time.Location) (application.PickupRequestInput, *application.ValidationError) {
	requestDate, vErr := parseOptionalDate("request_date", r.RequestDate, loc)
	if vErr != nil {
		return application.PickupRequestInput{}, vErr
	}
	endDate, vErr := parseOptionalDate("end_date", r.EndDate, loc)
	if vErr != nil {
		return application.PickupRequestInput{}, vErr
	}

	input := application.PickupRequestInput{
		UserID:       strings.TrimSpace(r.UserID),
		ServiceDayID: r.ServiceDayID,
		AddressID:    r.AddressID,
		Pickup:       true,
		DropOff:      r.DropOff,
		GroupRide:    r.GroupRide,
		GroupSize:    r.GroupSize,
		Notes:        r.Notes,
		Recurring:    r.Recurring,
		EndDate:      endDate,
	}
	if r.Pickup != nil {
		input.Pickup = *r.Pickup
	}
	if requestDate != nil {
		input.RequestDate = *requestDate
	}
	return input, nil
}

type updatePickupRequest struct {
	AddressID *string `json:"address_id"`
	Pickup    *bool   `json:"pickup"`
	DropOff   *bool   `json:"drop_off"`
	GroupRide *bool   `json:"group_ride"`
	GroupSize *int    `json:"group_size" validate:"omitempty,gte=1"`
	Notes     *string `json:"notes"`
}

type transitionRequest struct {
	DriverID string `json:"driver_id"`
	Note     string `json:"note" validate:"max=500"`
}

type pickupRequestDTO struct {
	ID           string   `json:"id"`
	UserID       string   `json:"user_id"`
	ServiceDayID string   `json:"service_day_id"`
	AddressID    string   `json:"address_id"`
	RequestDate  string   `json:"request_date"`
	ServiceDate  string   `json:"service_date"`
	Status       string   `json:"status"`
	DriverID     *string  `json:"driver_id,omitempty"`
	DistanceKm   *float64 `json:"distance_km,omitempty"`
	SeriesID     *string  `json:"series_id,omitempty"`
	Pickup       bool     `json:"pickup"`
	DropOff      bool     `json:"drop_off"`
	GroupRide    bool     `json:"group_ride"`
	GroupSize    int      `json:"group_size"`
	Notes        string   `json:"notes,omitempty"`
	CreatedAt    string   `json:"created_at"`
	UpdatedAt    string   `json:"updated_at"`
}

type pickupEventDTO struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	ActorID   string `json:"actor_id"`
	Note      string `json:"note,omitempty"`
	CreatedAt string `json:"created_at"`
}

type createPickupResponse struct {
	SeriesID *string            `json:"series_id"`
	Requests []pickupRequestDTO `json:"requests"`
}

type pickupRequestResponse struct {
	Request pickupRequestDTO `json:"request"`
}

type listPickupsResponse struct {
	Requests []pickupRequestDTO `json:"requests"`
}

type listEventsResponse struct {
	RequestID string           `json:"request_id"`
	Events    []pickupEventDTO `json:"events"`
}

type cancelSeriesResponse struct {
	Cancelled int `json:"cancelled"`
	Skipped   int `json:"skipped"`
}
