package repo

import (
	"context"
	"database/sql"

	"taskdesk/internal/domain"
)

func (r Repo) InsertReport(ctx context.Context, tx *sql.Tx, rep domain.WeeklyReport) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO weekly_reports(id,week_start,week_end,created_at,summary,completed_count,in_progress_count,overdue_count,todo_count)
VALUES (?,?,?,?,?,?,?,?,?)`,
		rep.ID, rep.WeekStart, rep.WeekEnd, rep.CreatedAt, rep.Summary,
		rep.CompletedCount, rep.InProgressCount, rep.OverdueCount, rep.TodoCount)
	return err
}

func (r Repo) GetReport(ctx context.Context, id string) (domain.WeeklyReport, error) {
	var rep domain.WeeklyReport
	err := r.DB.QueryRowContext(ctx, `SELECT id,week_start,week_end,created_at,summary,completed_count,in_progress_count,overdue_count,todo_count FROM weekly_reports WHERE id=?`, id).
		Scan(&rep.ID, &rep.WeekStart, &rep.WeekEnd, &rep.CreatedAt, &rep.Summary, &rep.CompletedCount, &rep.InProgressCount, &rep.OverdueCount, &rep.TodoCount)
	if err == sql.ErrNoRows {
		return rep, ErrNotFound
	}
	return rep, err
}

func (r Repo) ListReports(ctx context.Context) ([]domain.WeeklyReport, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,week_start,week_end,created_at,summary,completed_count,in_progress_count,overdue_count,todo_count FROM weekly_reports ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.WeeklyReport
	for rows.Next() {
		var rep domain.WeeklyReport
		if err := rows.Scan(&rep.ID, &rep.WeekStart, &rep.WeekEnd, &rep.CreatedAt, &rep.Summary, &rep.CompletedCount, &rep.InProgressCount, &rep.OverdueCount, &rep.TodoCount); err != nil {
			return nil, err
		}
		res = append(res, rep)
	}
	return res, rows.Err()
}
