package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/trackmyacademy/dashboard/core"
	"github.com/trackmyacademy/dashboard/core/user"
)

type sessionRepository struct {
	exec core.DBExecutor
}

var _ user.SessionRepository = (*sessionRepository)(nil) // interface compliance check

func NewSessionRepository(exec core.DBExecutor) *sessionRepository {
	return &sessionRepository{exec: exec}
}

// sessionRow is a Session as stored; timestamps are unix milliseconds, 0 meaning unset.
type sessionRow struct {
	ID             string `db:"id"`
	UserID         string `db:"user_id"`
	UserEmail      string `db:"user_email"`
	UserName       string `db:"user_name"`
	UserRole       string `db:"user_role"`
	UserAcademyID  string `db:"user_academy_id"`
	AccessToken    string `db:"access_token"`
	RefreshToken   string `db:"refresh_token"`
	TokenExpiresAt int64  `db:"token_expires_at"`
	ExpiresAt      int64  `db:"expires_at"`
	CreatedAt      int64  `db:"created_at"`
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func toRow(sess user.Session) sessionRow {
	return sessionRow{
		ID:             sess.ID,
		UserID:         sess.UserID,
		UserEmail:      sess.User.Email,
		UserName:       sess.User.Name,
		UserRole:       sess.User.Role,
		UserAcademyID:  sess.User.AcademyID,
		AccessToken:    sess.AccessToken,
		RefreshToken:   sess.RefreshToken,
		TokenExpiresAt: toMillis(sess.TokenExpiresAt),
		ExpiresAt:      toMillis(sess.ExpiresAt),
		CreatedAt:      toMillis(sess.CreatedAt),
	}
}

func (row sessionRow) session() user.Session {
	return user.Session{
		ID:             row.ID,
		UserID:         row.UserID,
		AccessToken:    row.AccessToken,
		RefreshToken:   row.RefreshToken,
		TokenExpiresAt: fromMillis(row.TokenExpiresAt),
		User: user.User{
			ID:        row.UserID,
			Email:     row.UserEmail,
			Name:      row.UserName,
			Role:      row.UserRole,
			AcademyID: row.UserAcademyID,
		},
		ExpiresAt: fromMillis(row.ExpiresAt),
		CreatedAt: fromMillis(row.CreatedAt),
	}
}

func (repo sessionRepository) CreateSession(ctx context.Context, sess user.Session) error {
	const q = `INSERT INTO sessions (
		id, user_id, user_email, user_name, user_role, user_academy_id,
		access_token, refresh_token, token_expires_at, expires_at, created_at
	) VALUES (
		:id, :user_id, :user_email, :user_name, :user_role, :user_academy_id,
		:access_token, :refresh_token, :token_expires_at, :expires_at, :created_at
	)`
	_, err := repo.exec.NamedExecContext(ctx, q, toRow(sess))
	return errors.Wrap(err, "inserting session")
}

func (repo sessionRepository) GetSession(ctx context.Context, id string) (user.Session, error) {
	var row sessionRow
	err := repo.exec.GetContext(ctx, &row, repo.exec.Rebind(`SELECT * FROM sessions WHERE id = ?`), id)
	if err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return user.Session{}, user.ErrSessionNotFound
		}
		return user.Session{}, errors.Wrap(err, "selecting session")
	}
	return row.session(), nil
}

func (repo sessionRepository) UpdateSessionTokens(ctx context.Context, id string, tokens user.Tokens) error {
	q := repo.exec.Rebind(`UPDATE sessions SET access_token = ?, refresh_token = ?, token_expires_at = ? WHERE id = ?`)
	res, err := repo.exec.ExecContext(ctx, q, tokens.AccessToken, tokens.RefreshToken, toMillis(tokens.ExpiresAt), id)
	if err != nil {
		return errors.Wrap(err, "updating session tokens")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return user.ErrSessionNotFound
	}
	return nil
}

func (repo sessionRepository) DeleteSession(ctx context.Context, id string) error {
	res, err := repo.exec.ExecContext(ctx, repo.exec.Rebind(`DELETE FROM sessions WHERE id = ?`), id)
	if err != nil {
		return errors.Wrap(err, "deleting session")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return user.ErrSessionNotFound
	}
	return nil
}

func (repo sessionRepository) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := repo.exec.ExecContext(ctx, repo.exec.Rebind(`DELETE FROM sessions WHERE expires_at <= ?`), toMillis(now))
	if err != nil {
		return 0, errors.Wrap(err, "deleting expired sessions")
	}
	n, err := res.RowsAffected()
	return n, errors.Wrap(err, "counting deleted sessions")
}
