package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"taskdesk/internal/access"
	"taskdesk/internal/auth"
	"taskdesk/internal/domain"
	"taskdesk/internal/events"
	"taskdesk/internal/repo"
)

// ValidationError maps to 400.
type ValidationError struct {
	Msg string
}

func (e ValidationError) Error() string { return e.Msg }

// ConflictError maps to 409.
type ConflictError struct {
	Msg string
}

func (e ConflictError) Error() string { return e.Msg }

// ErrInvalidCredentials is deliberately identical for unknown email and
// wrong password so a caller cannot probe which emails are registered.
var ErrInvalidCredentials = errors.New("Invalid email or password")

const minPasswordLen = 6

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Signer *auth.Signer
	Now    func() time.Time
}

func New(db *sql.DB, signer *auth.Signer) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Signer: signer,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) nowRFC3339() string {
	return e.now().UTC().Format(time.RFC3339)
}

// Register creates an EMPLOYEE account and returns it with a session token.
func (e Engine) Register(ctx context.Context, name, email, password string) (domain.User, string, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if name == "" || email == "" || password == "" {
		return domain.User{}, "", ValidationError{Msg: "Name, email, and password are required"}
	}
	if len(password) < minPasswordLen {
		return domain.User{}, "", ValidationError{Msg: "Password must be at least 6 characters"}
	}
	taken, err := e.Repo.EmailTaken(ctx, email)
	if err != nil {
		return domain.User{}, "", err
	}
	if taken {
		return domain.User{}, "", ConflictError{Msg: "Email already registered"}
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, "", err
	}
	u := domain.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         domain.RoleEmployee,
		CreatedAt:    e.nowRFC3339(),
	}
	if err := e.insertUser(ctx, u, u.ID); err != nil {
		return domain.User{}, "", err
	}
	token, err := e.Signer.Sign(u.ID, u.Email, u.Role)
	if err != nil {
		return domain.User{}, "", err
	}
	return u, token, nil
}

// CreateUser is the CLI bootstrap path: like Register but with an explicit
// role and no token.
func (e Engine) CreateUser(ctx context.Context, name, email, password, role string) (domain.User, error) {
	if !domain.ValidRole(role) {
		return domain.User{}, ValidationError{Msg: fmt.Sprintf("invalid role %q", role)}
	}
	if name == "" || email == "" {
		return domain.User{}, ValidationError{Msg: "name and email are required"}
	}
	if len(password) < minPasswordLen {
		return domain.User{}, ValidationError{Msg: "Password must be at least 6 characters"}
	}
	taken, err := e.Repo.EmailTaken(ctx, email)
	if err != nil {
		return domain.User{}, err
	}
	if taken {
		return domain.User{}, ConflictError{Msg: "Email already registered"}
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, err
	}
	u := domain.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    e.nowRFC3339(),
	}
	if err := e.insertUser(ctx, u, u.ID); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

func (e Engine) insertUser(ctx context.Context, u domain.User, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertUser(ctx, tx, u); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "user.registered", "user", u.ID, actorID, events.EventPayload{"role": u.Role}); err != nil {
		return err
	}
	return tx.Commit()
}

// Login verifies credentials and returns the user with a fresh token.
func (e Engine) Login(ctx context.Context, email, password string) (domain.User, string, error) {
	if email == "" || password == "" {
		return domain.User{}, "", ValidationError{Msg: "Email and password are required"}
	}
	u, err := e.Repo.GetUserByEmail(ctx, email)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, "", ErrInvalidCredentials
	}
	if err != nil {
		return domain.User{}, "", err
	}
	if !auth.CheckPassword(password, u.PasswordHash) {
		return domain.User{}, "", ErrInvalidCredentials
	}
	token, err := e.Signer.Sign(u.ID, u.Email, u.Role)
	if err != nil {
		return domain.User{}, "", err
	}
	return u, token, nil
}

// TaskCreateOptions are parameters for creating a task.
type TaskCreateOptions struct {
	Title       string
	Description string
	Priority    string
	DueDate     string
	AssigneeID  string
	ActorID     string
	ActionSteps []string
}

func (e Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.Task, error) {
	if opts.Title == "" || opts.AssigneeID == "" || opts.DueDate == "" {
		return domain.Task{}, ValidationError{Msg: "Title, assigneeId, and dueDate are required"}
	}
	if opts.Priority == "" {
		opts.Priority = domain.PriorityMedium
	}
	if !domain.ValidPriority(opts.Priority) {
		return domain.Task{}, ValidationError{Msg: fmt.Sprintf("invalid priority %q", opts.Priority)}
	}
	due, err := time.Parse(time.RFC3339, opts.DueDate)
	if err != nil {
		return domain.Task{}, ValidationError{Msg: "dueDate must be an RFC 3339 timestamp"}
	}
	if _, err := e.Repo.GetUser(ctx, opts.AssigneeID); err != nil {
		return domain.Task{}, err
	}
	now := e.nowRFC3339()
	t := domain.Task{
		ID:          uuid.NewString(),
		Title:       opts.Title,
		Description: opts.Description,
		Status:      domain.StatusTodo,
		Priority:    opts.Priority,
		AssigneeID:  opts.AssigneeID,
		CreatedByID: opts.ActorID,
		CreatedAt:   now,
		DueDate:     due.UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	for _, title := range opts.ActionSteps {
		if strings.TrimSpace(title) == "" {
			continue
		}
		step := domain.ActionStep{
			ID:        uuid.NewString(),
			TaskID:    t.ID,
			Title:     title,
			CreatedAt: now,
		}
		if err := e.Repo.InsertActionStep(ctx, tx, step); err != nil {
			return domain.Task{}, err
		}
	}
	if err := e.Events.Append(ctx, tx, "task.created", "task", t.ID, opts.ActorID, events.EventPayload{
		"assignee_id": t.AssigneeID,
		"priority":    t.Priority,
	}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return e.Repo.GetTask(ctx, t.ID)
}

// TaskUpdateOptions carries a status and/or priority change request.
type TaskUpdateOptions struct {
	ID       string
	ActorID  string
	Role     string
	Status   *string
	Priority *string
}

// UpdateTask applies a status and/or priority change. Existence is checked
// before permission; completed_at is stamped or cleared together with the
// status in a single UPDATE.
func (e Engine) UpdateTask(ctx context.Context, opts TaskUpdateOptions) (domain.Task, error) {
	t, err := e.Repo.GetTaskRow(ctx, opts.ID)
	if err != nil {
		return domain.Task{}, err
	}
	if opts.Priority != nil && !access.CanUpdatePriority(opts.Role) {
		return domain.Task{}, access.Denied()
	}
	if opts.Status != nil && !access.CanUpdateStatus(opts.Role, opts.ActorID, t) {
		return domain.Task{}, access.Denied()
	}
	if opts.Status == nil && opts.Priority == nil {
		return domain.Task{}, ValidationError{Msg: "status or priority is required"}
	}
	update := repo.TaskUpdate{Priority: opts.Priority}
	payload := events.EventPayload{}
	if opts.Status != nil {
		if !domain.ValidStatus(*opts.Status) {
			return domain.Task{}, ValidationError{Msg: fmt.Sprintf("invalid status %q", *opts.Status)}
		}
		update.Status = opts.Status
		if *opts.Status == domain.StatusCompleted {
			ts := e.nowRFC3339()
			update.CompletedAt = &ts
		}
		payload["status"] = *opts.Status
	}
	if opts.Priority != nil {
		if !domain.ValidPriority(*opts.Priority) {
			return domain.Task{}, ValidationError{Msg: fmt.Sprintf("invalid priority %q", *opts.Priority)}
		}
		payload["priority"] = *opts.Priority
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateTask(ctx, tx, opts.ID, update); err != nil {
		return domain.Task{}, err
	}
	if err := e.Events.Append(ctx, tx, "task.updated", "task", opts.ID, opts.ActorID, payload); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return e.Repo.GetTask(ctx, opts.ID)
}

// DeleteTask removes a task and, via foreign keys, its steps and notes.
func (e Engine) DeleteTask(ctx context.Context, id, actorID, role string) error {
	if _, err := e.Repo.GetTaskRow(ctx, id); err != nil {
		return err
	}
	if !access.CanDeleteTask(role) {
		return access.Denied()
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteTask(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "task.deleted", "task", id, actorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// taskForMutation loads the task and applies the step-mutation access rule:
// 404 before 403.
func (e Engine) taskForMutation(ctx context.Context, taskID, actorID, role string) (domain.Task, error) {
	t, err := e.Repo.GetTaskRow(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if !access.CanModifySteps(role, actorID, t) {
		return domain.Task{}, access.Denied()
	}
	return t, nil
}

func (e Engine) AddActionStep(ctx context.Context, taskID, title, actorID, role string) (domain.ActionStep, error) {
	if strings.TrimSpace(title) == "" {
		return domain.ActionStep{}, ValidationError{Msg: "Title is required"}
	}
	if _, err := e.taskForMutation(ctx, taskID, actorID, role); err != nil {
		return domain.ActionStep{}, err
	}
	step := domain.ActionStep{
		ID:        uuid.NewString(),
		TaskID:    taskID,
		Title:     title,
		CreatedAt: e.nowRFC3339(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ActionStep{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertActionStep(ctx, tx, step); err != nil {
		return domain.ActionStep{}, err
	}
	if err := e.Events.Append(ctx, tx, "step.created", "action_step", step.ID, actorID, events.EventPayload{"task_id": taskID}); err != nil {
		return domain.ActionStep{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ActionStep{}, err
	}
	step.Notes = []domain.StepNote{}
	return step, nil
}

// stepInTask resolves a step and confirms it belongs to the task; a step id
// from another task reads as not found.
func (e Engine) stepInTask(ctx context.Context, taskID, stepID string) (domain.ActionStep, error) {
	step, err := e.Repo.GetActionStep(ctx, stepID)
	if err != nil {
		return domain.ActionStep{}, err
	}
	if step.TaskID != taskID {
		return domain.ActionStep{}, repo.ErrNotFound
	}
	return step, nil
}

func (e Engine) SetActionStepCompleted(ctx context.Context, taskID, stepID string, completed bool, actorID, role string) (domain.ActionStep, error) {
	if _, err := e.taskForMutation(ctx, taskID, actorID, role); err != nil {
		return domain.ActionStep{}, err
	}
	if _, err := e.stepInTask(ctx, taskID, stepID); err != nil {
		return domain.ActionStep{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ActionStep{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.SetActionStepCompleted(ctx, tx, stepID, completed); err != nil {
		return domain.ActionStep{}, err
	}
	if err := e.Events.Append(ctx, tx, "step.updated", "action_step", stepID, actorID, events.EventPayload{"completed": completed}); err != nil {
		return domain.ActionStep{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ActionStep{}, err
	}
	return e.Repo.GetActionStep(ctx, stepID)
}

func (e Engine) DeleteActionStep(ctx context.Context, taskID, stepID, actorID, role string) error {
	if _, err := e.Repo.GetTaskRow(ctx, taskID); err != nil {
		return err
	}
	if !access.CanDeleteStep(role) {
		return access.Denied()
	}
	if _, err := e.stepInTask(ctx, taskID, stepID); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteActionStep(ctx, tx, stepID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "step.deleted", "action_step", stepID, actorID, events.EventPayload{"task_id": taskID}); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) AddStepNote(ctx context.Context, taskID, stepID, content, actorID, role string) (domain.StepNote, error) {
	if strings.TrimSpace(content) == "" {
		return domain.StepNote{}, ValidationError{Msg: "Content is required"}
	}
	if _, err := e.taskForMutation(ctx, taskID, actorID, role); err != nil {
		return domain.StepNote{}, err
	}
	if _, err := e.stepInTask(ctx, taskID, stepID); err != nil {
		return domain.StepNote{}, err
	}
	author, err := e.Repo.GetUser(ctx, actorID)
	if err != nil {
		return domain.StepNote{}, err
	}
	note := domain.StepNote{
		ID:         uuid.NewString(),
		StepID:     stepID,
		AuthorID:   author.ID,
		AuthorName: author.Name,
		Content:    content,
		Timestamp:  e.nowRFC3339(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.StepNote{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertStepNote(ctx, tx, note); err != nil {
		return domain.StepNote{}, err
	}
	if err := e.Events.Append(ctx, tx, "note.created", "step_note", note.ID, actorID, events.EventPayload{"step_id": stepID}); err != nil {
		return domain.StepNote{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.StepNote{}, err
	}
	return note, nil
}

func (e Engine) AddProgressNote(ctx context.Context, taskID, content, actorID, role string) (domain.ProgressNote, error) {
	if strings.TrimSpace(content) == "" {
		return domain.ProgressNote{}, ValidationError{Msg: "Content is required"}
	}
	if _, err := e.taskForMutation(ctx, taskID, actorID, role); err != nil {
		return domain.ProgressNote{}, err
	}
	author, err := e.Repo.GetUser(ctx, actorID)
	if err != nil {
		return domain.ProgressNote{}, err
	}
	note := domain.ProgressNote{
		ID:         uuid.NewString(),
		TaskID:     taskID,
		AuthorID:   author.ID,
		AuthorName: author.Name,
		Content:    content,
		Timestamp:  e.nowRFC3339(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ProgressNote{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertProgressNote(ctx, tx, note); err != nil {
		return domain.ProgressNote{}, err
	}
	if err := e.Events.Append(ctx, tx, "note.created", "progress_note", note.ID, actorID, events.EventPayload{"task_id": taskID}); err != nil {
		return domain.ProgressNote{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ProgressNote{}, err
	}
	return note, nil
}

// CreateReport snapshots counts over the entire current task set. The
// counts are frozen at creation and never recomputed.
func (e Engine) CreateReport(ctx context.Context, summary, actorID string) (domain.WeeklyReport, error) {
	if strings.TrimSpace(summary) == "" {
		return domain.WeeklyReport{}, ValidationError{Msg: "Summary is required"}
	}
	now := e.now().UTC()
	counts, err := e.Repo.CountTasksByStatus(ctx)
	if err != nil {
		return domain.WeeklyReport{}, err
	}
	overdue, err := e.Repo.CountOverdueTasks(ctx, now.Format(time.RFC3339))
	if err != nil {
		return domain.WeeklyReport{}, err
	}
	rep := domain.WeeklyReport{
		ID:              uuid.NewString(),
		WeekStart:       now.AddDate(0, 0, -7).Format("2006-01-02"),
		WeekEnd:         now.Format("2006-01-02"),
		CreatedAt:       now.Format(time.RFC3339),
		Summary:         summary,
		CompletedCount:  counts[domain.StatusCompleted],
		InProgressCount: counts[domain.StatusInProgress],
		TodoCount:       counts[domain.StatusTodo],
		OverdueCount:    overdue,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.WeeklyReport{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertReport(ctx, tx, rep); err != nil {
		return domain.WeeklyReport{}, err
	}
	if err := e.Events.Append(ctx, tx, "report.created", "report", rep.ID, actorID, events.EventPayload{
		"completed": rep.CompletedCount,
		"overdue":   rep.OverdueCount,
	}); err != nil {
		return domain.WeeklyReport{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.WeeklyReport{}, err
	}
	return rep, nil
}

// ActionSummary aggregates the caller's action steps across their assigned
// tasks. Tasks without steps do not appear in the breakdown; an employee
// with no steps anywhere gets zeros and an empty breakdown.
func (e Engine) ActionSummary(ctx context.Context, userID string) (domain.ActionSummary, error) {
	breakdown, err := e.Repo.StepBreakdownByAssignee(ctx, userID)
	if err != nil {
		return domain.ActionSummary{}, err
	}
	sum := domain.ActionSummary{TaskBreakdown: []domain.TaskStepsBreakdown{}}
	for _, b := range breakdown {
		sum.TotalStepsCompleted += b.CompletedSteps
		sum.TotalStepsIncomplete += b.TotalSteps - b.CompletedSteps
		sum.TaskBreakdown = append(sum.TaskBreakdown, b)
	}
	total := sum.TotalStepsCompleted + sum.TotalStepsIncomplete
	if total > 0 {
		sum.CompletionPercentage = int(float64(sum.TotalStepsCompleted)/float64(total)*100 + 0.5)
	}
	return sum, nil
}

// UpdateProfile edits name/phone/location for the target user.
func (e Engine) UpdateProfile(ctx context.Context, targetID string, u repo.UserProfileUpdate, actorID string) (domain.User, error) {
	if _, err := e.Repo.GetUser(ctx, targetID); err != nil {
		return domain.User{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateUserProfile(ctx, tx, targetID, u); err != nil {
		return domain.User{}, err
	}
	if err := e.Events.Append(ctx, tx, "user.updated", "user", targetID, actorID, nil); err != nil {
		return domain.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.User{}, err
	}
	return e.Repo.GetUser(ctx, targetID)
}

// CreateAPIKey mints a key for a user and returns the plaintext exactly
// once; only the hash is stored.
func (e Engine) CreateAPIKey(ctx context.Context, userID, name, actorID string) (domain.APIKey, string, error) {
	u, err := e.Repo.GetUser(ctx, userID)
	if err != nil {
		return domain.APIKey{}, "", err
	}
	plaintext := "tdk_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	key := domain.APIKey{
		ID:        uuid.NewString(),
		UserID:    u.ID,
		Name:      name,
		KeyHash:   repo.HashAPIKey(plaintext),
		CreatedAt: e.nowRFC3339(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.APIKey{}, "", err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertAPIKey(ctx, tx, key); err != nil {
		return domain.APIKey{}, "", err
	}
	if err := e.Events.Append(ctx, tx, "api_key.created", "api_key", key.ID, actorID, events.EventPayload{"user_id": u.ID}); err != nil {
		return domain.APIKey{}, "", err
	}
	if err := tx.Commit(); err != nil {
		return domain.APIKey{}, "", err
	}
	return key, plaintext, nil
}
