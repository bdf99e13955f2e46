package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"taskdesk/internal/domain"
)

const userColumns = `id,name,email,password_hash,role,COALESCE(phone,''),COALESCE(location,''),created_at`

func scanUser(scan func(dest ...any) error) (domain.User, error) {
	var u domain.User
	err := scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.Phone, &u.Location, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	return u, err
}

func (r Repo) InsertUser(ctx context.Context, tx *sql.Tx, u domain.User) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO users(id,name,email,password_hash,role,phone,location,created_at) VALUES (?,?,?,?,?,?,?,?)`,
		u.ID, u.Name, u.Email, u.PasswordHash, u.Role, nullable(u.Phone), nullable(u.Location), u.CreatedAt)
	return err
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=?`, id)
	return scanUser(row.Scan)
}

// GetUserByEmail matches case-insensitively, consistent with the unique
// index on lower(email).
func (r Repo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email)=lower(?)`, email)
	return scanUser(row.Scan)
}

func (r Repo) EmailTaken(ctx context.Context, email string) (bool, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM users WHERE lower(email)=lower(?)`, email).Scan(&n)
	return n > 0, err
}

func (r Repo) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.User
	for rows.Next() {
		u, err := scanUser(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

// UserProfileUpdate carries the self-service editable fields. Email, role
// and password hash are not updatable through this path.
type UserProfileUpdate struct {
	Name     *string
	Phone    *string
	Location *string
}

func (r Repo) UpdateUserProfile(ctx context.Context, tx *sql.Tx, id string, u UserProfileUpdate) error {
	var (
		fields []string
		args   []any
	)
	if u.Name != nil && *u.Name != "" {
		fields = append(fields, "name=?")
		args = append(args, *u.Name)
	}
	if u.Phone != nil {
		fields = append(fields, "phone=?")
		args = append(args, nullable(*u.Phone))
	}
	if u.Location != nil {
		fields = append(fields, "location=?")
		args = append(args, nullable(*u.Location))
	}
	if len(fields) == 0 {
		return nil
	}
	exec := r.DB.ExecContext
	if tx != nil {
		exec = tx.ExecContext
	}
	args = append(args, id)
	res, err := exec(ctx, fmt.Sprintf(`UPDATE users SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
