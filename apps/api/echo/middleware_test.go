package echoapi

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/trackmyacademy/dashboard/core/dashboard"
	"github.com/trackmyacademy/dashboard/core/user"
)

func Test_guardMiddleware(t *testing.T) {
	e := echo.New()
	guard := dashboard.NewGuard()
	started, release := make(chan struct{}), make(chan struct{})

	blocking := guardMiddleware(guard)(func(ctx echo.Context) error {
		close(started)
		<-release
		return ctx.NoContent(http.StatusCreated)
	})
	noop := guardMiddleware(guard)(func(ctx echo.Context) error {
		return ctx.NoContent(http.StatusCreated)
	})

	newCtx := func(sessID, instance string) echo.Context {
		req := httptest.NewRequest(http.MethodPost, "/v1/coaches", nil)
		if instance != "" {
			req.Header.Set(headerFormInstance, instance)
		}
		ctx := e.NewContext(req, httptest.NewRecorder())
		if sessID != "" {
			ctx.Set(contextSessionKey, user.Session{ID: sessID})
		}
		return ctx
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, blocking(newCtx("sess-1", "")))
	}()
	<-started

	t.Run("same form while in flight", func(t *testing.T) {
		assert.Equal(t, dashboard.ErrSubmitInFlight, noop(newCtx("sess-1", "")))
	})
	t.Run("other form instance", func(t *testing.T) {
		assert.NoError(t, noop(newCtx("sess-1", "coach-form-2")))
	})
	t.Run("other session", func(t *testing.T) {
		assert.NoError(t, noop(newCtx("sess-2", "")))
	})
	t.Run("no session", func(t *testing.T) {
		assert.Equal(t, errUnauthorized, errors.Cause(noop(newCtx("", ""))))
	})

	close(release)
	wg.Wait()

	t.Run("released", func(t *testing.T) {
		assert.NoError(t, noop(newCtx("sess-1", "")))
	})
}
