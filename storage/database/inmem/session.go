package inmemdb

import (
	"context"
	"time"

	"github.com/trackmyacademy/dashboard/core/user"
)

type sessionRepository struct {
	db *sessionTable
}

var _ user.SessionRepository = (*sessionRepository)(nil) // interface compliance check

func NewSessionRepository(db *DB) *sessionRepository {
	return &sessionRepository{db: db.session}
}

func (repo *sessionRepository) CreateSession(_ context.Context, sess user.Session) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	repo.db.table[sess.ID] = &sess
	return nil
}

func (repo *sessionRepository) GetSession(_ context.Context, id string) (user.Session, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if sess, ok := repo.db.table[id]; ok {
		return *sess, nil
	}
	return user.Session{}, user.ErrSessionNotFound
}

func (repo *sessionRepository) UpdateSessionTokens(_ context.Context, id string, tokens user.Tokens) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	sess, ok := repo.db.table[id]
	if !ok {
		return user.ErrSessionNotFound
	}
	sess.AccessToken = tokens.AccessToken
	sess.RefreshToken = tokens.RefreshToken
	sess.TokenExpiresAt = tokens.ExpiresAt
	return nil
}

func (repo *sessionRepository) DeleteSession(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.table[id]; !ok {
		return user.ErrSessionNotFound
	}
	delete(repo.db.table, id)
	return nil
}

func (repo *sessionRepository) DeleteExpiredSessions(_ context.Context, now time.Time) (int64, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	var n int64
	for id, sess := range repo.db.table {
		if sess.Expired(now) {
			delete(repo.db.table, id)
			n++
		}
	}
	return n, nil
}
