package domain

// Roles.
const (
	RoleAdmin    = "ADMIN"
	RoleEmployee = "EMPLOYEE"
)

// Task statuses.
const (
	StatusTodo       = "todo"
	StatusInProgress = "in-progress"
	StatusCompleted  = "completed"
)

// Task priorities.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

func ValidRole(r string) bool {
	return r == RoleAdmin || r == RoleEmployee
}

func ValidStatus(s string) bool {
	return s == StatusTodo || s == StatusInProgress || s == StatusCompleted
}

func ValidPriority(p string) bool {
	return p == PriorityLow || p == PriorityMedium || p == PriorityHigh
}

type User struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
	Role         string `json:"role" enum:"ADMIN,EMPLOYEE"`
	Phone        string `json:"phone,omitempty"`
	Location     string `json:"location,omitempty"`
	CreatedAt    string `json:"created_at" format:"date-time"`
}

type Task struct {
	ID            string         `json:"id"`
	Title         string         `json:"title"`
	Description   string         `json:"description,omitempty"`
	Status        string         `json:"status" enum:"todo,in-progress,completed"`
	Priority      string         `json:"priority" enum:"low,medium,high"`
	AssigneeID    string         `json:"assignee_id"`
	CreatedByID   string         `json:"created_by_id"`
	CreatedAt     string         `json:"created_at" format:"date-time"`
	DueDate       string         `json:"due_date" format:"date-time"`
	CompletedAt   *string        `json:"completed_at,omitempty" format:"date-time"`
	ActionSteps   []ActionStep   `json:"action_steps"`
	ProgressNotes []ProgressNote `json:"progress_notes"`
}

type ActionStep struct {
	ID        string     `json:"id"`
	TaskID    string     `json:"task_id"`
	Title     string     `json:"title"`
	Completed bool       `json:"completed"`
	CreatedAt string     `json:"created_at" format:"date-time"`
	Notes     []StepNote `json:"notes"`
}

type StepNote struct {
	ID         string `json:"id"`
	StepID     string `json:"step_id"`
	AuthorID   string `json:"author_id"`
	AuthorName string `json:"author_name"`
	Content    string `json:"content"`
	Timestamp  string `json:"timestamp" format:"date-time"`
}

type ProgressNote struct {
	ID         string `json:"id"`
	TaskID     string `json:"task_id"`
	AuthorID   string `json:"author_id"`
	AuthorName string `json:"author_name"`
	Content    string `json:"content"`
	Timestamp  string `json:"timestamp" format:"date-time"`
}

// WeeklyReport is a frozen snapshot: counts are computed once at creation
// time and never tied back to the live task set.
type WeeklyReport struct {
	ID              string `json:"id"`
	WeekStart       string `json:"week_start" format:"date"`
	WeekEnd         string `json:"week_end" format:"date"`
	CreatedAt       string `json:"created_at" format:"date-time"`
	Summary         string `json:"summary"`
	CompletedCount  int    `json:"completed_count"`
	InProgressCount int    `json:"in_progress_count"`
	OverdueCount    int    `json:"overdue_count"`
	TodoCount       int    `json:"todo_count"`
}

type APIKey struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// ActionSummary is the per-employee read-side aggregation of action steps.
type ActionSummary struct {
	TotalStepsCompleted  int                  `json:"total_steps_completed"`
	TotalStepsIncomplete int                  `json:"total_steps_incomplete"`
	CompletionPercentage int                  `json:"completion_percentage"`
	TaskBreakdown        []TaskStepsBreakdown `json:"task_breakdown"`
}

type TaskStepsBreakdown struct {
	TaskID         string `json:"task_id"`
	Title          string `json:"title"`
	CompletedSteps int    `json:"completed_steps"`
	TotalSteps     int    `json:"total_steps"`
}
