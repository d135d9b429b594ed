// Package repository declares the persistence contracts. Implementations live
// in the sqlite and postgres subpackages; services depend only on these
// interfaces.
package repository

import (
	"context"

	"github.com/sakif/task-manager/internal/model"
)

// UserRepository is the credential store.
//
// Create fails with apperror.ErrConflict when the username or email is taken.
// GetByEmail is the authentication path and is the only read that loads
// PasswordHash. GetByID never selects the hash.
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByID(ctx context.Context, id string) (*model.User, error)
}

// TaskFilter narrows ListByOwner. A zero Status means all statuses.
type TaskFilter struct {
	Status model.TaskStatus
}

// TaskRepository is the task store. Every method is scoped by an owner id the
// caller supplies; the store does not authenticate.
type TaskRepository interface {
	Create(ctx context.Context, task *model.Task) error
	ListByOwner(ctx context.Context, ownerID string, filter TaskFilter) ([]model.Task, error)
	GetByIDAndOwner(ctx context.Context, id, ownerID string) (*model.Task, error)
	// Update applies patch to the row identified by task.ID and task.UserID in
	// one statement and refreshes task from the stored row.
	Update(ctx context.Context, task *model.Task, patch model.TaskPatch) error
	Delete(ctx context.Context, task *model.Task) error
}

// Store is an opened backend: a connection pool plus the repositories on it.
type Store interface {
	Users() UserRepository
	Tasks() TaskRepository
	Ping(ctx context.Context) error
	Close() error
}
