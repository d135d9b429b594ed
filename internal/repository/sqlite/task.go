package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/task-manager/internal/apperror"
	"github.com/sakif/task-manager/internal/model"
	"github.com/sakif/task-manager/internal/repository"
)

var _ repository.TaskRepository = (*TaskStore)(nil)

// TaskStore persists tasks. Every read and write is scoped by owner: the
// owner id is part of the WHERE clause, never checked after the fact.
type TaskStore struct {
	conn *sql.DB
}

const taskColumns = `id, user_id, title, description, status, due_date, created_at, updated_at`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanTask reads one task row in taskColumns order.
//
// NULLABLE COLUMNS:
// description and due_date may be NULL. Scanning NULL into a plain string or
// time.Time fails, so they go through sql.NullString / sql.NullTime and are
// converted to pointers afterwards.
func scanTask(row rowScanner) (*model.Task, error) {
	var (
		t           model.Task
		status      string
		description sql.NullString
		dueDate     sql.NullTime
	)

	err := row.Scan(
		&t.ID,
		&t.UserID,
		&t.Title,
		&description,
		&status,
		&dueDate,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Status = model.TaskStatus(status)
	if description.Valid {
		d := description.String
		t.Description = &d
	}
	if dueDate.Valid {
		d := dueDate.Time.UTC()
		t.DueDate = &d
	}
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()

	return &t, nil
}

// Create inserts a new task. The caller sets UserID, Title, Status and the
// optional fields; ID and timestamps are generated here.
func (s *TaskStore) Create(ctx context.Context, task *model.Task) error {
	now := time.Now().UTC()
	task.ID = xid.New().String()
	task.CreatedAt = now
	task.UpdatedAt = now
	if task.Status == "" {
		task.Status = model.TaskStatusPending
	}

	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO tasks (id, user_id, title, description, status, due_date, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID,
		task.UserID,
		task.Title,
		nullString(task.Description),
		string(task.Status),
		nullTime(task.DueDate),
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating task: %w", err)
	}

	return nil
}

// ListByOwner returns the owner's tasks, newest first. A zero filter returns
// every task; a set Status narrows to that status.
//
// id DESC breaks ties between tasks created in the same instant. xid ids are
// time-ordered, so the tie-break follows insertion order.
func (s *TaskStore) ListByOwner(ctx context.Context, ownerID string, filter repository.TaskFilter) ([]model.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE user_id = ?`
	args := []any{ownerID}

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing tasks: %w", err)
	}
	defer rows.Close()

	// Non-nil so an empty result encodes as [] rather than null.
	tasks := make([]model.Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning task row: %w", err)
		}
		tasks = append(tasks, *t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating task rows: %w", err)
	}

	return tasks, nil
}

// GetByIDAndOwner returns the task only if ownerID owns it. A task owned by
// someone else is reported exactly like a missing one.
func (s *TaskStore) GetByIDAndOwner(ctx context.Context, id, ownerID string) (*model.Task, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = ? AND user_id = ?`,
		id, ownerID,
	)

	t, err := scanTask(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("task", id)
		}
		return nil, fmt.Errorf("sqlite: getting task %s: %w", id, err)
	}

	return t, nil
}

// Update applies patch to the task identified by task.ID and task.UserID and
// overwrites *task with the stored result.
//
// The patch is applied in ONE statement. Each column is guarded by a
// "was this field sent" flag, so concurrent patches touching different
// fields never overwrite each other with stale values. The status CASE
// refuses to move a done task anywhere.
func (s *TaskStore) Update(ctx context.Context, task *model.Task, patch model.TaskPatch) error {
	var description sql.NullString
	if patch.Description.Set {
		description = nullString(patch.Description.Value)
	}
	var dueDate sql.NullTime
	if patch.DueDate.Set {
		dueDate = nullTime(patch.DueDate.Value)
	}

	result, err := s.conn.ExecContext(ctx,
		`UPDATE tasks SET
			title       = CASE WHEN ? THEN ? ELSE title END,
			description = CASE WHEN ? THEN ? ELSE description END,
			due_date    = CASE WHEN ? THEN ? ELSE due_date END,
			status      = CASE WHEN ? AND status <> 'done' THEN ? ELSE status END,
			updated_at  = ?
		 WHERE id = ? AND user_id = ?`,
		patch.Title.Set, patch.Title.Value,
		patch.Description.Set, description,
		patch.DueDate.Set, dueDate,
		patch.Status.Set, string(patch.Status.Value),
		time.Now().UTC(),
		task.ID, task.UserID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating task %s: %w", task.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("task", task.ID)
	}

	// Re-read through the typed SELECT so DATETIME columns scan as time.Time.
	updated, err := s.GetByIDAndOwner(ctx, task.ID, task.UserID)
	if err != nil {
		return err
	}

	*task = *updated
	return nil
}

// Delete removes the task identified by task.ID and task.UserID.
func (s *TaskStore) Delete(ctx context.Context, task *model.Task) error {
	result, err := s.conn.ExecContext(ctx,
		`DELETE FROM tasks WHERE id = ? AND user_id = ?`,
		task.ID, task.UserID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: deleting task %s: %w", task.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("task", task.ID)
	}

	return nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
