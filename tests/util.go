package testutil

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trackmyacademy/dashboard/core"
	"github.com/trackmyacademy/dashboard/core/user"
	"github.com/trackmyacademy/dashboard/storage/database"
)

// PrepareDB opens a migrated sqlite database in a temporary directory.
func PrepareDB(t *testing.T) *sqlx.DB {
	conf := core.NewTestConfig()
	conf.Database.Engine = database.EngineSQLite
	conf.Database.Path = filepath.Join(t.TempDir(), "test.db")

	db, err := database.Open(conf)
	require.NoError(t, err, "opening database")
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.Migrate(context.Background(), db), "migrating database")
	return db
}

// NewSession returns a Session of `usr` expiring at `expiresAt`.
func NewSession(id string, usr user.User, expiresAt time.Time) user.Session {
	return user.Session{
		ID:             id,
		UserID:         usr.ID,
		AccessToken:    "access-" + id,
		RefreshToken:   "refresh-" + id,
		TokenExpiresAt: expiresAt.Add(-time.Hour).UTC().Truncate(time.Millisecond),
		User:           usr,
		ExpiresAt:      expiresAt.UTC().Truncate(time.Millisecond),
		CreatedAt:      expiresAt.Add(-24 * time.Hour).UTC().Truncate(time.Millisecond),
	}
}

// TestSessionRepository runs the behaviour every user.SessionRepository must have.
func TestSessionRepository(t *testing.T, repo user.SessionRepository) {
	ctx := context.Background()
	now := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)
	usr := user.User{ID: "u1", Email: "jane@academy.io", Name: "Jane", Role: user.RoleAdmin, AcademyID: "a1"}

	live := NewSession("s-live", usr, now.Add(time.Hour))
	expired := NewSession("s-expired", usr, now.Add(-time.Minute))
	boundary := NewSession("s-boundary", usr, now)

	for _, sess := range []user.Session{live, expired, boundary} {
		require.NoError(t, repo.CreateSession(ctx, sess))
	}

	t.Run("get", func(t *testing.T) {
		got, err := repo.GetSession(ctx, live.ID)
		require.NoError(t, err)
		assert.Equal(t, live, got)

		_, err = repo.GetSession(ctx, "unknown")
		assert.Equal(t, user.ErrSessionNotFound, err)
	})

	t.Run("update tokens", func(t *testing.T) {
		tokens := user.Tokens{AccessToken: "a2", RefreshToken: "r2", ExpiresAt: now.Add(2 * time.Hour)}
		require.NoError(t, repo.UpdateSessionTokens(ctx, live.ID, tokens))

		got, err := repo.GetSession(ctx, live.ID)
		require.NoError(t, err)
		assert.Equal(t, "a2", got.AccessToken)
		assert.Equal(t, "r2", got.RefreshToken)
		assert.True(t, tokens.ExpiresAt.Equal(got.TokenExpiresAt))
		assert.Equal(t, live.User, got.User)

		assert.Equal(t, user.ErrSessionNotFound, repo.UpdateSessionTokens(ctx, "unknown", tokens))
	})

	t.Run("delete expired", func(t *testing.T) {
		n, err := repo.DeleteExpiredSessions(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		_, err = repo.GetSession(ctx, expired.ID)
		assert.Equal(t, user.ErrSessionNotFound, err)
		_, err = repo.GetSession(ctx, boundary.ID)
		assert.Equal(t, user.ErrSessionNotFound, err)
		_, err = repo.GetSession(ctx, live.ID)
		assert.NoError(t, err)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, repo.DeleteSession(ctx, live.ID))
		assert.Equal(t, user.ErrSessionNotFound, repo.DeleteSession(ctx, live.ID))
	})
}

// Logger records the messages logged at warn level and above.
type Logger struct {
	mu       sync.Mutex
	messages []string
}

var _ core.Logger = (*Logger)(nil)

func (l *Logger) record(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, level+": "+msg)
}

func (l *Logger) Messages() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.messages...)
}

func (l *Logger) Debug(string, ...interface{})       {}
func (l *Logger) Info(string, ...interface{})        {}
func (l *Logger) Warn(msg string, _ ...interface{})  { l.record("warn", msg) }
func (l *Logger) Error(msg string, _ ...interface{}) { l.record("error", msg) }
func (l *Logger) Fatal(msg string, _ ...interface{}) { l.record("fatal", msg) }
