// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces rules, orchestrates
//	Repository (Data layer)  → reads/writes to the database
//
// Services accept plain Go values and return apperror values, never HTTP
// status codes. They depend on repository interfaces, so tests pass
// hand-written fakes and production passes SQLite or Postgres.
//
// THE DEPENDENCY CHAIN:
//
//	server.New creates: Store → Service → Handler
//	At runtime:         Handler calls Service calls Repository calls DB
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sakif/task-manager/internal/apperror"
	"github.com/sakif/task-manager/internal/model"
	"github.com/sakif/task-manager/internal/repository"
)

// Validation limits, counted in characters.
const (
	MaxTitleLength       = 255
	MaxDescriptionLength = 10000
)

// TaskService handles business logic for tasks. Every method takes the
// caller's user id as ownerID and only ever touches that user's tasks.
type TaskService struct {
	repo     repository.TaskRepository
	logger   *slog.Logger
	recorder Recorder
}

// NewTaskService creates a TaskService. recorder may be nil.
func NewTaskService(repo repository.TaskRepository, logger *slog.Logger, recorder Recorder) *TaskService {
	return &TaskService{
		repo:     repo,
		logger:   logger,
		recorder: recorderOrNop(recorder),
	}
}

// CreateTaskInput carries the client-settable fields of a new task.
// Status and owner are not part of it: a new task is always pending and
// always belongs to the caller.
type CreateTaskInput struct {
	Title       string
	Description *string
	DueDate     *time.Time
}

// Create validates and saves a new task for ownerID.
func (s *TaskService) Create(ctx context.Context, ownerID string, in CreateTaskInput) (*model.Task, error) {
	title, err := validateTitle(in.Title)
	if err != nil {
		return nil, err
	}
	if err := validateDescription(in.Description); err != nil {
		return nil, err
	}

	task := &model.Task{
		UserID:      ownerID,
		Title:       title,
		Description: in.Description,
		Status:      model.TaskStatusPending,
		DueDate:     utcPtr(in.DueDate),
	}

	if err := s.repo.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("service/task: creating task: %w", err)
	}

	s.recorder.TaskEvent("create")
	s.logger.Info("task created",
		slog.String("taskID", task.ID),
		slog.String("userID", ownerID),
	)

	return task, nil
}

// List returns the owner's tasks, newest first. status is optional; when
// non-empty it must be a known status.
func (s *TaskService) List(ctx context.Context, ownerID string, status string) ([]model.Task, error) {
	filter := repository.TaskFilter{Status: model.TaskStatus(status)}
	if status != "" && !filter.Status.Valid() {
		return nil, apperror.ValidationFailed("status", "status must be one of: pending, done")
	}

	tasks, err := s.repo.ListByOwner(ctx, ownerID, filter)
	if err != nil {
		return nil, fmt.Errorf("service/task: listing tasks: %w", err)
	}
	return tasks, nil
}

// Get returns one of the owner's tasks. A task owned by someone else is
// reported as not found.
func (s *TaskService) Get(ctx context.Context, ownerID, id string) (*model.Task, error) {
	task, err := s.repo.GetByIDAndOwner(ctx, id, ownerID)
	if err != nil {
		return nil, wrapRepoErr("getting task", err)
	}
	return task, nil
}

// Update applies a partial update.
//
// PATCH SEMANTICS:
//   - field omitted          → unchanged
//   - description/due_date null → cleared
//   - title ""               → rejected, a task always has a title
//   - status                 → must be valid; a done task cannot go back to pending
func (s *TaskService) Update(ctx context.Context, ownerID, id string, patch model.TaskPatch) (*model.Task, error) {
	if patch.Title.Set {
		title, err := validateTitle(patch.Title.Value)
		if err != nil {
			return nil, err
		}
		patch.Title.Value = title
	}
	if patch.Description.Set {
		if err := validateDescription(patch.Description.Value); err != nil {
			return nil, err
		}
	}
	if patch.Status.Set && !patch.Status.Value.Valid() {
		return nil, apperror.ValidationFailed("status", "status must be one of: pending, done")
	}
	if patch.DueDate.Set {
		patch.DueDate.Value = utcPtr(patch.DueDate.Value)
	}

	task, err := s.repo.GetByIDAndOwner(ctx, id, ownerID)
	if err != nil {
		return nil, wrapRepoErr("loading task", err)
	}

	if patch.Status.Set && patch.Status.Value == model.TaskStatusPending && task.Status == model.TaskStatusDone {
		return nil, apperror.ValidationFailed("status", "task is already done")
	}
	if patch.Empty() {
		return task, nil
	}

	if err := s.repo.Update(ctx, task, patch); err != nil {
		return nil, wrapRepoErr("updating task", err)
	}

	s.recorder.TaskEvent("update")
	s.logger.Info("task updated",
		slog.String("taskID", task.ID),
		slog.String("userID", ownerID),
	)

	return task, nil
}

// MarkDone moves the task to done. Calling it on a done task succeeds and
// changes nothing but updated_at.
func (s *TaskService) MarkDone(ctx context.Context, ownerID, id string) (*model.Task, error) {
	task := &model.Task{ID: id, UserID: ownerID}
	patch := model.TaskPatch{Status: model.Some(model.TaskStatusDone)}

	if err := s.repo.Update(ctx, task, patch); err != nil {
		return nil, wrapRepoErr("marking task done", err)
	}

	s.recorder.TaskEvent("done")
	s.logger.Info("task marked done",
		slog.String("taskID", id),
		slog.String("userID", ownerID),
	)

	return task, nil
}

// Delete removes the task permanently.
func (s *TaskService) Delete(ctx context.Context, ownerID, id string) error {
	if err := s.repo.Delete(ctx, &model.Task{ID: id, UserID: ownerID}); err != nil {
		return wrapRepoErr("deleting task", err)
	}

	s.recorder.TaskEvent("delete")
	s.logger.Info("task deleted",
		slog.String("taskID", id),
		slog.String("userID", ownerID),
	)

	return nil
}

// Stats counts the owner's tasks by status for the dashboard.
func (s *TaskService) Stats(ctx context.Context, ownerID string) (model.TaskStats, error) {
	tasks, err := s.repo.ListByOwner(ctx, ownerID, repository.TaskFilter{})
	if err != nil {
		return model.TaskStats{}, fmt.Errorf("service/task: computing stats: %w", err)
	}

	stats := model.TaskStats{Total: len(tasks)}
	for _, t := range tasks {
		switch t.Status {
		case model.TaskStatusPending:
			stats.Pending++
		case model.TaskStatusDone:
			stats.Done++
		}
	}
	return stats, nil
}

func validateTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", apperror.ValidationFailed("title", "title is required")
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return "", apperror.ValidationFailed("title",
			fmt.Sprintf("title must be %d characters or less", MaxTitleLength))
	}
	return title, nil
}

func validateDescription(description *string) error {
	if description != nil && utf8.RuneCountInString(*description) > MaxDescriptionLength {
		return apperror.ValidationFailed("description",
			fmt.Sprintf("description must be %d characters or less", MaxDescriptionLength))
	}
	return nil
}

// wrapRepoErr passes domain errors through untouched and adds context to
// everything else.
func wrapRepoErr(op string, err error) error {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return fmt.Errorf("service/task: %s: %w", op, err)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
