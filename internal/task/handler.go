package task

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/taskfabric/backbone/internal/api"
	"github.com/taskfabric/backbone/internal/recurrence"
)

// Handler serves the task CRUD surface over HTTP.
type Handler struct {
	service *Service
}

// NewHandler creates a task Handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes mounts the task endpoints. Callers wrap this with
// api.RequireOwnerID so every handler below can trust api.GetOwnerID.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/overdue", h.ListOverdue)
	r.Get("/{id}", h.GetByID)
	r.Put("/{id}", h.Update)
	r.Post("/{id}/complete", h.Complete)
	r.Post("/{id}/reopen", h.Reopen)
	r.Delete("/{id}", h.Delete)

	return r
}

func ownerID(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(api.GetOwnerID(r.Context()))
	return id, err == nil
}

// createTaskBody is the wire shape of a create request.
type createTaskBody struct {
	Title       string     `json:"title"`
	Description *string    `json:"description,omitempty"`
	Priority    Priority   `json:"priority"`
	Tags        []string   `json:"tags,omitempty"`
	DueAt       *time.Time `json:"due_at,omitempty"`
	Recurrence  *struct {
		Pattern    recurrence.Pattern `json:"pattern"`
		Interval   int                `json:"interval"`
		DaysOfWeek []int              `json:"days_of_week,omitempty"`
		DayOfMonth int                `json:"day_of_month,omitempty"`
	} `json:"recurrence,omitempty"`
	Reminders []struct {
		Offset   string   `json:"offset"`
		Channels []string `json:"channels"`
	} `json:"reminders,omitempty"`
}

// Create creates a task owned by the authenticated caller.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(r)
	if !ok {
		api.Unauthorized(w, "missing or invalid owner")
		return
	}

	var body createTaskBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		api.BadRequest(w, "invalid request body")
		return
	}

	req := CreateRequest{
		OwnerID:     owner,
		Title:       body.Title,
		Description: body.Description,
		Priority:    body.Priority,
		Tags:        body.Tags,
		DueAt:       body.DueAt,
	}
	if body.Recurrence != nil {
		req.Recurrence = &RecurrenceSpec{
			Pattern:    body.Recurrence.Pattern,
			Interval:   body.Recurrence.Interval,
			DaysOfWeek: body.Recurrence.DaysOfWeek,
			DayOfMonth: body.Recurrence.DayOfMonth,
		}
	}
	for _, rem := range body.Reminders {
		req.Reminders = append(req.Reminders, ReminderSpec{Offset: rem.Offset, Channels: rem.Channels})
	}

	created, err := h.service.CreateTask(r.Context(), req)
	if err != nil {
		if errors.Is(err, ErrValidation) {
			api.BadRequest(w, err.Error())
			return
		}
		api.InternalError(w)
		return
	}

	api.JSONResponse(w, http.StatusCreated, created)
}

// List returns the caller's tasks, optionally filtered by completion.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(r)
	if !ok {
		api.Unauthorized(w, "missing or invalid owner")
		return
	}

	opts := ListOptions{}
	if v := r.URL.Query().Get("completed"); v != "" {
		completed := v == "true"
		opts.Completed = &completed
	}
	if limit, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && limit > 0 && limit <= 100 {
		opts.Limit = limit
	} else {
		opts.Limit = 50
	}
	if offset, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && offset > 0 {
		opts.Offset = offset
	}

	tasks, total, err := h.service.Repository().List(r.Context(), owner, opts)
	if err != nil {
		api.InternalError(w)
		return
	}

	api.JSONResponse(w, http.StatusOK, map[string]any{
		"tasks":  tasks,
		"total":  total,
		"limit":  opts.Limit,
		"offset": opts.Offset,
	})
}

// ListOverdue returns the caller's incomplete, past-due tasks.
func (h *Handler) ListOverdue(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(r)
	if !ok {
		api.Unauthorized(w, "missing or invalid owner")
		return
	}

	tasks, err := h.service.Repository().ListOverdue(r.Context(), owner)
	if err != nil {
		api.InternalError(w)
		return
	}

	api.JSONResponse(w, http.StatusOK, map[string]any{"tasks": tasks})
}

// GetByID returns one of the caller's tasks.
func (h *Handler) GetByID(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(r)
	if !ok {
		api.Unauthorized(w, "missing or invalid owner")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		api.BadRequest(w, "invalid task id")
		return
	}

	t, err := h.service.Repository().GetByID(r.Context(), id, owner)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			api.NotFound(w, "task not found")
			return
		}
		api.InternalError(w)
		return
	}

	api.JSONResponse(w, http.StatusOK, t)
}

// updateTaskBody mirrors UpdateRequest's distinguish-unset-from-null
// semantics at the wire level for description and due_at: a field
// absent from the JSON object leaves the task unchanged, a field present
// with null clears it, and a field present with a value sets it. For
// title, priority and tags, null is treated the same as absent.
type updateTaskBody struct {
	Title       *string         `json:"title"`
	Description json.RawMessage `json:"description"`
	Priority    *Priority       `json:"priority"`
	Tags        *[]string       `json:"tags"`
	DueAt       json.RawMessage `json:"due_at"`
}

// Update applies a partial update to one of the caller's tasks.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(r)
	if !ok {
		api.Unauthorized(w, "missing or invalid owner")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		api.BadRequest(w, "invalid task id")
		return
	}

	var body updateTaskBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		api.BadRequest(w, "invalid request body")
		return
	}

	req := UpdateRequest{Title: body.Title, Priority: body.Priority, Tags: body.Tags}

	if len(body.Description) > 0 {
		var desc *string
		if err := json.Unmarshal(body.Description, &desc); err != nil {
			api.BadRequest(w, "invalid description")
			return
		}
		req.Description = &desc
	}
	if len(body.DueAt) > 0 {
		var dueAt *time.Time
		if err := json.Unmarshal(body.DueAt, &dueAt); err != nil {
			api.BadRequest(w, "invalid due_at")
			return
		}
		req.DueAt = &dueAt
	}

	updated, err := h.service.UpdateTask(r.Context(), id, owner, req)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			api.NotFound(w, "task not found")
			return
		}
		api.InternalError(w)
		return
	}

	api.JSONResponse(w, http.StatusOK, updated)
}

// Complete marks a task completed.
func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	h.setCompleted(w, r, true)
}

// Reopen marks a completed task pending again.
func (h *Handler) Reopen(w http.ResponseWriter, r *http.Request) {
	h.setCompleted(w, r, false)
}

func (h *Handler) setCompleted(w http.ResponseWriter, r *http.Request, completed bool) {
	owner, ok := ownerID(r)
	if !ok {
		api.Unauthorized(w, "missing or invalid owner")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		api.BadRequest(w, "invalid task id")
		return
	}

	t, err := h.service.CompleteTask(r.Context(), id, owner, completed)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			api.NotFound(w, "task not found")
			return
		}
		api.InternalError(w)
		return
	}

	api.JSONResponse(w, http.StatusOK, t)
}

// Delete removes one of the caller's tasks. Deleting an already-deleted
// task is a no-op 204, matching Service.DeleteTask's idempotent
// contract.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(r)
	if !ok {
		api.Unauthorized(w, "missing or invalid owner")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		api.BadRequest(w, "invalid task id")
		return
	}

	if _, err := h.service.DeleteTask(r.Context(), id, owner); err != nil {
		api.InternalError(w)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
