package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/example/church-pickups/internal/application"
)

type serviceDayService interface {
	CreateServiceDay(ctx context.Context, params application.CreateServiceDayParams) (application.ServiceDay, error)
	UpdateServiceDay(ctx context.Context, params application.UpdateServiceDayParams) (application.ServiceDay, error)
	DeactivateServiceDay(ctx context.Context, principal application.Principal, serviceDayID string) error
	GetServiceDay(ctx context.Context, principal application.Principal, serviceDayID string) (application.ServiceDay, error)
	ListServiceDays(ctx context.Context, principal application.Principal, includeInactive bool) ([]application.ServiceDay, error)
	PreviewOccurrences(ctx context.Context, params application.PreviewOccurrencesParams) ([]time.Time, error)
}

// ServiceDayHandler serves /service-days.
type ServiceDayHandler struct {
	service   serviceDayService
	location  *time.Location
	responder responder
	logger    *slog.Logger
}

// NewServiceDayHandler constructs the handler. Calendar dates in requests are read in loc.
func NewServiceDayHandler(service serviceDayService, loc *time.Location, logger *slog.Logger) *ServiceDayHandler {
	if loc == nil {
		loc = time.UTC
	}
	base := defaultLogger(logger)
	return &ServiceDayHandler{service: service, location: loc, responder: newResponder(base), logger: base}
}

func (h *ServiceDayHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(ctx, h.logger, "ServiceDayHandler", operation, attrs...)
}

func (h *ServiceDayHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	logger := h.log(r.Context(), "Create")

	var req serviceDayRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.responder.handleDecodeError(r.Context(), w, err)
		return
	}
	input, vErr := req.toInput(h.location)
	if vErr != nil {
		h.responder.writeValidationError(r.Context(), w, vErr)
		return
	}

	day, err := h.service.CreateServiceDay(r.Context(), application.CreateServiceDayParams{Principal: principal, Input: input})
	if err != nil {
		logFailure(r.Context(), logger, "service day creation failed", err)
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "service day created", "service_day_id", day.ID)
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, serviceDayResponse{ServiceDay: toServiceDayDTO(day)})
}

func (h *ServiceDayHandler) Update(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	id := r.PathValue("id")
	logger := h.log(r.Context(), "Update", "service_day_id", id)

	var req serviceDayRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.responder.handleDecodeError(r.Context(), w, err)
		return
	}
	input, vErr := req.toInput(h.location)
	if vErr != nil {
		h.responder.writeValidationError(r.Context(), w, vErr)
		return
	}

	day, err := h.service.UpdateServiceDay(r.Context(), application.UpdateServiceDayParams{
		Principal:    principal,
		ServiceDayID: id,
		Input:        input,
	})
	if err != nil {
		logFailure(r.Context(), logger, "service day update failed", err)
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "service day updated")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, serviceDayResponse{ServiceDay: toServiceDayDTO(day)})
}

func (h *ServiceDayHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	id := r.PathValue("id")
	logger := h.log(r.Context(), "Deactivate", "service_day_id", id)

	if err := h.service.DeactivateServiceDay(r.Context(), principal, id); err != nil {
		logFailure(r.Context(), logger, "service day deactivation failed", err)
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "service day deactivated")
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *ServiceDayHandler) Get(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	day, err := h.service.GetServiceDay(r.Context(), principal, r.PathValue("id"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, serviceDayResponse{ServiceDay: toServiceDayDTO(day)})
}

func (h *ServiceDayHandler) List(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	includeInactive, _ := strconv.ParseBool(r.URL.Query().Get("include_inactive"))

	days, err := h.service.ListServiceDays(r.Context(), principal, includeInactive)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]serviceDayDTO, 0, len(days))
	for _, day := range days {
		out = append(out, toServiceDayDTO(day))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listServiceDaysResponse{ServiceDays: out})
}

// Occurrences previews upcoming service starts: ?from=YYYY-MM-DD&count=N.
func (h *ServiceDayHandler) Occurrences(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	id := r.PathValue("id")
	query := r.URL.Query()

	params := application.PreviewOccurrencesParams{Principal: principal, ServiceDayID: id}
	if from, vErr := parseOptionalDate("from", query.Get("from"), h.location); vErr != nil {
		h.responder.writeValidationError(r.Context(), w, vErr)
		return
	} else if from != nil {
		params.From = *from
	}
	if raw := strings.TrimSpace(query.Get("count")); raw != "" {
		count, err := strconv.Atoi(raw)
		if err != nil || count <= 0 {
			h.responder.writeValidationError(r.Context(), w, &application.ValidationError{
				FieldErrors: map[string]string{"count": "count must be a positive integer"},
			})
			return
		}
		params.Count = count
	}

	starts, err := h.service.PreviewOccurrences(r.Context(), params)
	if err != nil {
		logFailure(r.Context(), h.log(r.Context(), "Occurrences", "service_day_id", id), "occurrence preview failed", err)
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]string, 0, len(starts))
	for _, start := range starts {
		out = append(out, start.Format(time.RFC3339))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, occurrencesResponse{ServiceDayID: id, Occurrences: out})
}

type serviceDayRequest struct {
	Name       string `json:"name" validate:"required,max=100"`
	Time       string `json:"time" validate:"required"`
	Weekdays   []int  `json:"weekdays" validate:"required,min=1,dive,min=0,max=6"`
	Frequency  string `json:"frequency"`
	Ordinal    string `json:"ordinal"`
	StartDate  string `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate    string `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
	CycleCount *int   `json:"cycle_count" validate:"omitempty,gt=0"`
}

func (r serviceDayRequest) toInput(loc *time.Location) (application.ServiceDayInput, *application.ValidationError) {
	start, vErr := parseOptionalDate("start_date", r.StartDate, loc)
	if vErr != nil {
		return application.ServiceDayInput{}, vErr
	}
	end, vErr := parseOptionalDate("end_date", r.EndDate, loc)
	if vErr != nil {
		return application.ServiceDayInput{}, vErr
	}

	weekdays := make([]time.Weekday, 0, len(r.Weekdays))
	for _, day := range r.Weekdays {
		weekdays = append(weekdays, time.Weekday(day))
	}
	return application.ServiceDayInput{
		Name:       r.Name,
		Time:       r.Time,
		Weekdays:   weekdays,
		Frequency:  r.Frequency,
		Ordinal:    r.Ordinal,
		StartDate:  start,
		EndDate:    end,
		CycleCount: r.CycleCount,
	}, nil
}

type serviceDayResponse struct {
	ServiceDay serviceDayDTO `json:"service_day"`
}

type listServiceDaysResponse struct {
	ServiceDays []serviceDayDTO `json:"service_days"`
}

type occurrencesResponse struct {
	ServiceDayID string   `json:"service_day_id"`
	Occurrences  []string `json:"occurrences"`
}

type serviceDayDTO struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Time       string  `json:"time"`
	Weekdays   []int   `json:"weekdays"`
	Frequency  string  `json:"frequency"`
	Ordinal    string  `json:"ordinal"`
	StartDate  *string `json:"start_date,omitempty"`
	EndDate    *string `json:"end_date,omitempty"`
	CycleCount *int    `json:"cycle_count,omitempty"`
	Active     bool    `json:"active"`
	CreatedAt  string  `json:"created_at"`
	UpdatedAt  string  `json:"updated_at"`
}

func toServiceDayDTO(day application.ServiceDay) serviceDayDTO {
	weekdays := make([]int, 0, len(day.Weekdays))
	for _, weekday := range day.Weekdays {
		weekdays = append(weekdays, int(weekday))
	}
	return serviceDayDTO{
		ID:         day.ID,
		Name:       day.Name,
		Time:       day.Time,
		Weekdays:   weekdays,
		Frequency:  string(day.Frequency),
		Ordinal:    string(day.Ordinal),
		StartDate:  formatDatePtr(day.StartDate),
		EndDate:    formatDatePtr(day.EndDate),
		CycleCount: day.CycleCount,
		Active:     day.Active,
		CreatedAt:  day.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:  day.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func formatDatePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	value := t.Format(time.DateOnly)
	return &value
}
