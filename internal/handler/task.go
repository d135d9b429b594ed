package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/task-manager/internal/apperror"
	"github.com/sakif/task-manager/internal/model"
	"github.com/sakif/task-manager/internal/service"
)

// TaskHandler serves the /tasks endpoints. Every method runs behind the
// Guard and receives the authenticated user explicitly; the owner of every
// operation is that user, never a value from the request body.
type TaskHandler struct {
	tasks  *service.TaskService
	logger *slog.Logger
}

func NewTaskHandler(tasks *service.TaskService, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{tasks: tasks, logger: logger}
}

// taskRequest is the body of POST /tasks and PUT /tasks/{id}.
//
// Optional records whether each key was present, so PUT can tell
// "leave description alone" ({}) from "clear it" ({"description": null}).
// Unknown keys such as user_id are ignored.
type taskRequest struct {
	Title       model.Optional[string]  `json:"title"`
	Description model.Optional[*string] `json:"description"`
	Status      model.Optional[string]  `json:"status"`
	DueDate     model.Optional[*string] `json:"due_date"`
}

type taskResponse struct {
	Task *model.Task `json:"task"`
}

type taskListResponse struct {
	Tasks []model.Task `json:"tasks"`
	Count int          `json:"count"`
}

// HandleList returns the caller's tasks, newest first.
//
// HTTP: GET /tasks?status=pending|done
func (h *TaskHandler) HandleList(w http.ResponseWriter, r *http.Request, user *model.User) {
	tasks, err := h.tasks.List(r.Context(), user.ID, r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeSuccess(w, h.logger, http.StatusOK, "", taskListResponse{Tasks: tasks, Count: len(tasks)})
}

// HandleStats returns task counts for the dashboard.
//
// HTTP: GET /tasks/stats
func (h *TaskHandler) HandleStats(w http.ResponseWriter, r *http.Request, user *model.User) {
	stats, err := h.tasks.Stats(r.Context(), user.ID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeSuccess(w, h.logger, http.StatusOK, "", map[string]any{"stats": stats})
}

// HandleCreate creates a task owned by the caller. Any status in the body is
// ignored: new tasks are always pending.
//
// HTTP: POST /tasks {"title", "description"?, "due_date"?}
func (h *TaskHandler) HandleCreate(w http.ResponseWriter, r *http.Request, user *model.User) {
	var req taskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	dueDate, err := parseDueDate(req.DueDate.Value)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	task, err := h.tasks.Create(r.Context(), user.ID, service.CreateTaskInput{
		Title:       req.Title.Value,
		Description: req.Description.Value,
		DueDate:     dueDate,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeSuccess(w, h.logger, http.StatusCreated, "task created", taskResponse{Task: task})
}

// HandleGet returns one task.
//
// HTTP: GET /tasks/{id}
func (h *TaskHandler) HandleGet(w http.ResponseWriter, r *http.Request, user *model.User) {
	task, err := h.tasks.Get(r.Context(), user.ID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeSuccess(w, h.logger, http.StatusOK, "", taskResponse{Task: task})
}

// HandleUpdate applies a partial update.
//
// HTTP: PUT /tasks/{id} {"title"?, "description"?, "status"?, "due_date"?}
func (h *TaskHandler) HandleUpdate(w http.ResponseWriter, r *http.Request, user *model.User) {
	var req taskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	patch := model.TaskPatch{
		Title:       req.Title,
		Description: req.Description,
	}
	if req.Status.Set {
		patch.Status = model.Some(model.TaskStatus(req.Status.Value))
	}
	if req.DueDate.Set {
		dueDate, err := parseDueDate(req.DueDate.Value)
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		patch.DueDate = model.Some(dueDate)
	}

	task, err := h.tasks.Update(r.Context(), user.ID, chi.URLParam(r, "id"), patch)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeSuccess(w, h.logger, http.StatusOK, "task updated", taskResponse{Task: task})
}

// HandleMarkDone completes a task. Safe to repeat.
//
// HTTP: PATCH /tasks/{id}/done
func (h *TaskHandler) HandleMarkDone(w http.ResponseWriter, r *http.Request, user *model.User) {
	task, err := h.tasks.MarkDone(r.Context(), user.ID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeSuccess(w, h.logger, http.StatusOK, "task marked as done", taskResponse{Task: task})
}

// HandleDelete removes a task permanently.
//
// HTTP: DELETE /tasks/{id}
func (h *TaskHandler) HandleDelete(w http.ResponseWriter, r *http.Request, user *model.User) {
	if err := h.tasks.Delete(r.Context(), user.ID, chi.URLParam(r, "id")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeSuccess(w, h.logger, http.StatusOK, "task deleted", nil)
}

// dueDateLayouts are tried in order. The mobile date picker sends a bare
// date; anything else should be a full RFC 3339 timestamp.
var dueDateLayouts = []string{time.DateOnly, time.RFC3339}

// parseDueDate turns the wire value into a UTC time. nil and "" mean no
// due date.
func parseDueDate(raw *string) (*time.Time, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}

	s := strings.TrimSpace(*raw)
	for _, layout := range dueDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}

	return nil, apperror.ValidationFailed("due_date", "due_date must be YYYY-MM-DD or an RFC 3339 timestamp")
}
