package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/xid"

	"github.com/sakif/task-manager/internal/apperror"
	"github.com/sakif/task-manager/internal/model"
	"github.com/sakif/task-manager/internal/repository"
)

var _ repository.TaskRepository = (*TaskStore)(nil)

// TaskStore persists tasks. Every statement filters on user_id.
type TaskStore struct {
	pool *pgxpool.Pool
}

const taskColumns = `id, user_id, title, description, status, due_date, created_at, updated_at`

func scanTask(row pgx.Row) (*model.Task, error) {
	var (
		t      model.Task
		status string
	)
	err := row.Scan(&t.ID, &t.UserID, &t.Title, &t.Description, &status, &t.DueDate, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}

	t.Status = model.TaskStatus(status)
	if t.DueDate != nil {
		d := t.DueDate.UTC()
		t.DueDate = &d
	}
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return &t, nil
}

func (s *TaskStore) Create(ctx context.Context, task *model.Task) error {
	now := time.Now().UTC()
	task.ID = xid.New().String()
	task.CreatedAt = now
	task.UpdatedAt = now
	if task.Status == "" {
		task.Status = model.TaskStatusPending
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO tasks (id, user_id, title, description, status, due_date, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		task.ID, task.UserID, task.Title, task.Description, string(task.Status), task.DueDate,
		task.CreatedAt, task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: creating task: %w", err)
	}
	return nil
}

func (s *TaskStore) ListByOwner(ctx context.Context, ownerID string, filter repository.TaskFilter) ([]model.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE user_id = $1`
	args := []any{ownerID}
	if filter.Status != "" {
		query += ` AND status = $2`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]model.Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scanning task row: %w", err)
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterating task rows: %w", err)
	}
	return tasks, nil
}

func (s *TaskStore) GetByIDAndOwner(ctx context.Context, id, ownerID string) (*model.Task, error) {
	t, err := scanTask(s.pool.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = $1 AND user_id = $2`,
		id, ownerID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("task", id)
		}
		return nil, fmt.Errorf("postgres: getting task %s: %w", id, err)
	}
	return t, nil
}

// Update applies patch in a single statement and overwrites *task with the
// returned row. A done task keeps its status whatever the patch says.
func (s *TaskStore) Update(ctx context.Context, task *model.Task, patch model.TaskPatch) error {
	updated, err := scanTask(s.pool.QueryRow(ctx,
		`UPDATE tasks SET
			title       = CASE WHEN $1::boolean THEN $2::text ELSE title END,
			description = CASE WHEN $3::boolean THEN $4::text ELSE description END,
			due_date    = CASE WHEN $5::boolean THEN $6::timestamptz ELSE due_date END,
			status      = CASE WHEN $7::boolean AND status <> 'done' THEN $8::text ELSE status END,
			updated_at  = $9
		 WHERE id = $10 AND user_id = $11
		 RETURNING `+taskColumns,
		patch.Title.Set, patch.Title.Value,
		patch.Description.Set, patch.Description.Value,
		patch.DueDate.Set, patch.DueDate.Value,
		patch.Status.Set, string(patch.Status.Value),
		time.Now().UTC(),
		task.ID, task.UserID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperror.NotFound("task", task.ID)
		}
		return fmt.Errorf("postgres: updating task %s: %w", task.ID, err)
	}

	*task = *updated
	return nil
}

func (s *TaskStore) Delete(ctx context.Context, task *model.Task) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM tasks WHERE id = $1 AND user_id = $2`,
		task.ID, task.UserID,
	)
	if err != nil {
		return fmt.Errorf("postgres: deleting task %s: %w", task.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("task", task.ID)
	}
	return nil
}
