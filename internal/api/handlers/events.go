package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Togather-Foundation/agenda/internal/api/middleware"
	"github.com/Togather-Foundation/agenda/internal/api/problem"
	"github.com/Togather-Foundation/agenda/internal/auth"
	"github.com/Togather-Foundation/agenda/internal/domain/events"
)

const dateLayout = "2006-01-02"

type EventService interface {
	List(ctx context.Context, caller auth.Principal, filter events.Filter) ([]events.Event, error)
	Get(ctx context.Context, caller auth.Principal, id int64) (events.Event, error)
	Create(ctx context.Context, caller auth.Principal, input events.Input) (int64, error)
	Update(ctx context.Context, caller auth.Principal, id int64, input events.Input) error
	Delete(ctx context.Context, caller auth.Principal, id int64) error
}

type EventsHandler struct {
	Service EventService
	Env     string
}

func NewEventsHandler(service EventService, env string) *EventsHandler {
	return &EventsHandler{Service: service, Env: env}
}

// responsibleRef is one assignee in a request. Clients send either {"id": n}
// objects or bare ids.
type responsibleRef struct {
	ID flexID `json:"id"`
}

func (ref *responsibleRef) UnmarshalJSON(data []byte) error {
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '{' {
		var obj struct {
			ID flexID `json:"id"`
		}
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return err
		}
		ref.ID = obj.ID
		return nil
	}
	return ref.ID.UnmarshalJSON(data)
}

type eventRequest struct {
	ID          flexID           `json:"id"`
	Title       string           `json:"title"`
	Type        string           `json:"type"`
	Date        string           `json:"date"`
	Time        string           `json:"time"`
	EndTime     *string          `json:"endTime"`
	EndDate     *string          `json:"endDate"`
	Location    *string          `json:"location"`
	VKSLink     *string          `json:"vksLink"`
	Description *string          `json:"description"`
	Status      string           `json:"status"`
	RegionName  *string          `json:"regionName"`
	IsMultiDay  bool             `json:"isMultiDay"`
	Responsible []responsibleRef `json:"responsible"`
	Reminders   []string         `json:"reminders"`
}

func (req eventRequest) input() events.Input {
	input := events.Input{
		Title:       req.Title,
		Type:        req.Type,
		Date:        req.Date,
		Time:        req.Time,
		EndTime:     deref(req.EndTime),
		EndDate:     deref(req.EndDate),
		Location:    deref(req.Location),
		VKSLink:     deref(req.VKSLink),
		Description: deref(req.Description),
		Status:      req.Status,
		RegionName:  deref(req.RegionName),
		IsMultiDay:  req.IsMultiDay,
		Reminders:   req.Reminders,
	}
	if req.Responsible != nil {
		input.Responsible = make([]int64, 0, len(req.Responsible))
		for _, ref := range req.Responsible {
			input.Responsible = append(input.Responsible, int64(ref.ID))
		}
	}
	return input
}

type responsibleResponse struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Position string `json:"position"`
}

type eventResponse struct {
	ID          string                `json:"id"`
	Title       string                `json:"title"`
	Type        string                `json:"type"`
	Date        string                `json:"date"`
	Time        *string               `json:"time"`
	EndTime     *string               `json:"endTime"`
	EndDate     *string               `json:"endDate"`
	Location    *string               `json:"location"`
	VKSLink     *string               `json:"vksLink"`
	Description *string               `json:"description"`
	Status      string                `json:"status"`
	RegionName  *string               `json:"regionName"`
	IsMultiDay  bool                  `json:"isMultiDay"`
	Responsible []responsibleResponse `json:"responsible"`
	Reminders   []string              `json:"reminders"`
	CreatedBy   *int64                `json:"createdBy,omitempty"`
	CreatedAt   string                `json:"createdAt"`
}

type listEventsResponse struct {
	Events []eventResponse `json:"events"`
}

func toEventResponse(e events.Event) eventResponse {
	resp := eventResponse{
		ID:          strconv.FormatInt(e.ID, 10),
		Title:       e.Title,
		Type:        e.Type,
		Date:        e.Date.Format(dateLayout),
		Time:        nonEmpty(e.Time),
		EndTime:     e.EndTime,
		Location:    nonEmpty(e.Location),
		VKSLink:     nonEmpty(e.VKSLink),
		Description: nonEmpty(e.Description),
		Status:      e.Status,
		RegionName:  nonEmpty(e.RegionName),
		IsMultiDay:  e.IsMultiDay,
		Responsible: make([]responsibleResponse, 0, len(e.Responsible)),
		Reminders:   e.Reminders,
		CreatedBy:   e.CreatedBy,
	}
	if e.EndDate != nil {
		endDate := e.EndDate.Format(dateLayout)
		resp.EndDate = &endDate
	}
	for _, r := range e.Responsible {
		resp.Responsible = append(resp.Responsible, responsibleResponse{ID: r.UserID, Name: r.FullName, Position: r.Position})
	}
	if resp.Reminders == nil {
		resp.Reminders = []string{}
	}
	if !e.CreatedAt.IsZero() {
		resp.CreatedAt = e.CreatedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

// ServeHTTP handles /api/v1/events. GET lists or, with ?id=, fetches one
// event; PUT carries the id in the body; DELETE takes ?id=.
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Service == nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServer, "Server error", errors.New("event service not configured"), "")
		return
	}
	caller, ok := middleware.PrincipalFromRequest(r)
	if !ok {
		unauthenticated(w, r, h.Env)
		return
	}

	switch r.Method {
	case http.MethodGet:
		if r.URL.Query().Has("id") {
			h.get(w, r, caller)
			return
		}
		h.list(w, r, caller)
	case http.MethodPost:
		h.create(w, r, caller)
	case http.MethodPut:
		h.update(w, r, caller)
	case http.MethodDelete:
		h.delete(w, r, caller)
	default:
		methodNotAllowed(w, r, h.Env, "GET, POST, PUT, DELETE, OPTIONS")
	}
}

func (h *EventsHandler) list(w http.ResponseWriter, r *http.Request, caller auth.Principal) {
	query := r.URL.Query()
	list, err := h.Service.List(r.Context(), caller, events.Filter{
		From:   strings.TrimSpace(query.Get("from")),
		To:     strings.TrimSpace(query.Get("to")),
		Type:   strings.TrimSpace(query.Get("type")),
		Status: strings.TrimSpace(query.Get("status")),
	})
	if err != nil {
		writeError(w, r, err, h.Env, "events")
		return
	}
	resp := listEventsResponse{Events: make([]eventResponse, 0, len(list))}
	for _, e := range list {
		resp.Events = append(resp.Events, toEventResponse(e))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *EventsHandler) get(w http.ResponseWriter, r *http.Request, caller auth.Principal) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, r, err, h.Env, "events")
		return
	}
	event, err := h.Service.Get(r.Context(), caller, id)
	if err != nil {
		writeError(w, r, err, h.Env, "events")
		return
	}
	writeJSON(w, http.StatusOK, toEventResponse(event))
}

func (h *EventsHandler) create(w http.ResponseWriter, r *http.Request, caller auth.Principal) {
	var req eventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err, h.Env, "events")
		return
	}
	id, err := h.Service.Create(r.Context(), caller, req.input())
	if err != nil {
		writeError(w, r, err, h.Env, "events")
		return
	}
	writeJSON(w, http.StatusCreated, createdResponse{ID: id, Message: "Event created"})
}

func (h *EventsHandler) update(w http.ResponseWriter, r *http.Request, caller auth.Principal) {
	var req eventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err, h.Env, "events")
		return
	}
	if req.ID <= 0 {
		writeError(w, r, auth.ValidationError{Field: "id", Message: "is required"}, h.Env, "events")
		return
	}
	if err := h.Service.Update(r.Context(), caller, int64(req.ID), req.input()); err != nil {
		writeError(w, r, err, h.Env, "events")
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Event updated"})
}

func (h *EventsHandler) delete(w http.ResponseWriter, r *http.Request, caller auth.Principal) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, r, err, h.Env, "events")
		return
	}
	if err := h.Service.Delete(r.Context(), caller, id); err != nil {
		writeError(w, r, err, h.Env, "events")
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Event deleted"})
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
