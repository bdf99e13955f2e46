package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"taskdesk/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO tasks(id,title,description,status,priority,assignee_id,created_by_id,created_at,due_date,completed_at)
VALUES (?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.Title, nullable(t.Description), t.Status, t.Priority, t.AssigneeID, t.CreatedByID,
		t.CreatedAt, t.DueDate, nullableStringPtr(t.CompletedAt))
	return err
}

const taskColumns = `id,title,COALESCE(description,''),status,priority,assignee_id,created_by_id,created_at,due_date,completed_at`

func scanTask(scan func(dest ...any) error) (domain.Task, error) {
	var t domain.Task
	var completedAt sql.NullString
	err := scan(&t.ID, &t.Title, &t.Description, &t.Status, &t.Priority, &t.AssigneeID, &t.CreatedByID, &t.CreatedAt, &t.DueDate, &completedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if completedAt.Valid {
		t.CompletedAt = &completedAt.String
	}
	return t, nil
}

// GetTaskRow returns the task without its child collections.
func (r Repo) GetTaskRow(ctx context.Context, id string) (domain.Task, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id)
	return scanTask(row.Scan)
}

// GetTask returns the task with action steps (including their notes) and
// progress notes attached, children in insertion order.
func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	t, err := r.GetTaskRow(ctx, id)
	if err != nil {
		return t, err
	}
	if err := r.attachChildren(ctx, &t); err != nil {
		return t, err
	}
	return t, nil
}

type TaskFilters struct {
	AssigneeID string
	Status     string
	Limit      int
}

// ListTasks returns tasks newest-first with children attached.
func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.Task, error) {
	var clauses []string
	var args []any
	if f.AssigneeID != "" {
		clauses = append(clauses, "assignee_id=?")
		args = append(args, f.AssigneeID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + taskColumns + ` FROM tasks ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range res {
		if err := r.attachChildren(ctx, &res[i]); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (r Repo) attachChildren(ctx context.Context, t *domain.Task) error {
	steps, err := r.ListActionSteps(ctx, t.ID)
	if err != nil {
		return err
	}
	notes, err := r.ListProgressNotes(ctx, t.ID)
	if err != nil {
		return err
	}
	t.ActionSteps = steps
	t.ProgressNotes = notes
	return nil
}

// TaskUpdate carries the writable task fields. CompletedAt travels with
// Status so the pair lands in one UPDATE statement.
type TaskUpdate struct {
	Status      *string
	Priority    *string
	CompletedAt *string
}

func (r Repo) UpdateTask(ctx context.Context, tx *sql.Tx, id string, u TaskUpdate) error {
	var (
		fields []string
		args   []any
	)
	if u.Status != nil {
		fields = append(fields, "status=?", "completed_at=?")
		args = append(args, *u.Status, nullableStringPtr(u.CompletedAt))
	}
	if u.Priority != nil {
		fields = append(fields, "priority=?")
		args = append(args, *u.Priority)
	}
	if len(fields) == 0 {
		return nil
	}
	exec := r.DB.ExecContext
	if tx != nil {
		exec = tx.ExecContext
	}
	args = append(args, id)
	res, err := exec(ctx, fmt.Sprintf(`UPDATE tasks SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteTask(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) InsertActionStep(ctx context.Context, tx *sql.Tx, s domain.ActionStep) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO action_steps(id,task_id,title,completed,created_at) VALUES (?,?,?,?,?)`,
		s.ID, s.TaskID, s.Title, s.Completed, s.CreatedAt)
	return err
}

// GetActionStep returns a step with its notes; TaskID scoping is the
// caller's concern.
func (r Repo) GetActionStep(ctx context.Context, id string) (domain.ActionStep, error) {
	var s domain.ActionStep
	err := r.DB.QueryRowContext(ctx, `SELECT id,task_id,title,completed,created_at FROM action_steps WHERE id=?`, id).
		Scan(&s.ID, &s.TaskID, &s.Title, &s.Completed, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	if err != nil {
		return s, err
	}
	notes, err := r.ListStepNotes(ctx, s.ID)
	if err != nil {
		return s, err
	}
	s.Notes = notes
	return s, nil
}

func (r Repo) ListActionSteps(ctx context.Context, taskID string) ([]domain.ActionStep, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,task_id,title,completed,created_at FROM action_steps WHERE task_id=? ORDER BY created_at ASC, id ASC`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	steps := []domain.ActionStep{}
	for rows.Next() {
		var s domain.ActionStep
		if err := rows.Scan(&s.ID, &s.TaskID, &s.Title, &s.Completed, &s.CreatedAt); err != nil {
			return nil, err
		}
		steps = append(steps, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range steps {
		notes, err := r.ListStepNotes(ctx, steps[i].ID)
		if err != nil {
			return nil, err
		}
		steps[i].Notes = notes
	}
	return steps, nil
}

func (r Repo) SetActionStepCompleted(ctx context.Context, tx *sql.Tx, id string, completed bool) error {
	exec := r.DB.ExecContext
	if tx != nil {
		exec = tx.ExecContext
	}
	res, err := exec(ctx, `UPDATE action_steps SET completed=? WHERE id=?`, completed, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteActionStep(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM action_steps WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) InsertStepNote(ctx context.Context, tx *sql.Tx, n domain.StepNote) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO step_notes(id,step_id,author_id,author_name,content,ts) VALUES (?,?,?,?,?,?)`,
		n.ID, n.StepID, n.AuthorID, n.AuthorName, n.Content, n.Timestamp)
	return err
}

func (r Repo) ListStepNotes(ctx context.Context, stepID string) ([]domain.StepNote, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,step_id,author_id,author_name,content,ts FROM step_notes WHERE step_id=? ORDER BY ts ASC, id ASC`, stepID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	notes := []domain.StepNote{}
	for rows.Next() {
		var n domain.StepNote
		if err := rows.Scan(&n.ID, &n.StepID, &n.AuthorID, &n.AuthorName, &n.Content, &n.Timestamp); err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

func (r Repo) InsertProgressNote(ctx context.Context, tx *sql.Tx, n domain.ProgressNote) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO progress_notes(id,task_id,author_id,author_name,content,ts) VALUES (?,?,?,?,?,?)`,
		n.ID, n.TaskID, n.AuthorID, n.AuthorName, n.Content, n.Timestamp)
	return err
}

func (r Repo) ListProgressNotes(ctx context.Context, taskID string) ([]domain.ProgressNote, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,task_id,author_id,author_name,content,ts FROM progress_notes WHERE task_id=? ORDER BY ts ASC, id ASC`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	notes := []domain.ProgressNote{}
	for rows.Next() {
		var n domain.ProgressNote
		if err := rows.Scan(&n.ID, &n.TaskID, &n.AuthorID, &n.AuthorName, &n.Content, &n.Timestamp); err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

// CountTasksByStatus aggregates the entire task set.
func (r Repo) CountTasksByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, count(*) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		res[status] = count
	}
	return res, rows.Err()
}

// CountOverdueTasks counts tasks not completed whose due date is strictly
// before now. RFC3339 strings compare lexicographically in UTC.
func (r Repo) CountOverdueTasks(ctx context.Context, now string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM tasks WHERE status != ? AND due_date < ?`, domain.StatusCompleted, now).Scan(&n)
	return n, err
}

// StepBreakdownByAssignee returns, per task assigned to the user that has at
// least one action step, the completed and total step counts in task
// insertion order.
func (r Repo) StepBreakdownByAssignee(ctx context.Context, assigneeID string) ([]domain.TaskStepsBreakdown, error) {
	rows, err := r.DB.QueryContext(ctx, `
SELECT t.id, t.title, SUM(CASE WHEN s.completed THEN 1 ELSE 0 END), COUNT(s.id)
FROM tasks t
JOIN action_steps s ON s.task_id = t.id
WHERE t.assignee_id = ?
GROUP BY t.id, t.title
ORDER BY t.created_at ASC, t.id ASC`, assigneeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TaskStepsBreakdown
	for rows.Next() {
		var b domain.TaskStepsBreakdown
		if err := rows.Scan(&b.TaskID, &b.Title, &b.CompletedSteps, &b.TotalSteps); err != nil {
			return nil, err
		}
		res = append(res, b)
	}
	return res, rows.Err()
}
