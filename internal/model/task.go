package model

import "time"

// TaskStatus is the lifecycle state of a task.
//
// The only transition is pending → done. Done is terminal.
type TaskStatus string

const (
	TaskStatusPending TaskStatus = "pending"
	TaskStatusDone    TaskStatus = "done"
)

// Valid reports whether s is a known status.
func (s TaskStatus) Valid() bool {
	return s == TaskStatusPending || s == TaskStatusDone
}

// Task is a to-do item owned by exactly one user.
//
// Description and DueDate are pointers because both are optional: nil is
// encoded as JSON null, which is what the mobile client checks for.
type Task struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Title       string     `json:"title"`
	Description *string    `json:"description"`
	Status      TaskStatus `json:"status"`
	DueDate     *time.Time `json:"due_date"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TaskPatch is a partial update. Fields that are not Set are left untouched;
// a Set pointer field holding nil clears the stored value.
type TaskPatch struct {
	Title       Optional[string]
	Description Optional[*string]
	Status      Optional[TaskStatus]
	DueDate     Optional[*time.Time]
}

// Empty reports whether the patch changes nothing.
func (p TaskPatch) Empty() bool {
	return !p.Title.Set && !p.Description.Set && !p.Status.Set && !p.DueDate.Set
}

// TaskStats summarises a user's tasks for the dashboard.
type TaskStats struct {
	Total   int `json:"total"`
	Pending int `json:"pending"`
	Done    int `json:"done"`
}
