package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trackmyacademy/dashboard/core"
	"github.com/trackmyacademy/dashboard/core/dashboard"
)

type dashboardApi struct {
	backend dashboard.Backend
	metrics *metrics
}

func registerDashboardAPI(g *echo.Group, auth echo.MiddlewareFunc, backend dashboard.Backend, m *metrics) {
	api := dashboardApi{backend: backend, metrics: m}

	dg := g.Group("/dashboard", auth)
	dg.GET("", api.show)
	dg.GET("/:resource", api.reload)
}

func (api *dashboardApi) view(ctx echo.Context) (*dashboard.View, error) {
	sess, err := getContextSession(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "getting context session")
	}
	return dashboard.NewView(api.backend, sess.User, sess.AccessToken, bindTableQuery(ctx))
}

// show loads every resource of the caller's dashboard. Failed resources are reported in place.
func (api *dashboardApi) show(ctx echo.Context) error {
	view, err := api.view(ctx)
	if err != nil {
		return errors.Wrap(err, "building dashboard")
	}

	snap := view.Load(ctx.Request().Context())
	api.metrics.observeSnapshot(snap)
	if snap.Unauthorized() {
		return core.ErrUnauthorized
	}
	return ctx.JSON(http.StatusOK, snap)
}

// reload loads a single resource of the caller's dashboard.
func (api *dashboardApi) reload(ctx echo.Context) error {
	view, err := api.view(ctx)
	if err != nil {
		return errors.Wrap(err, "building dashboard")
	}

	kind := dashboard.Kind(ctx.Param("resource"))
	st, err := view.Reload(ctx.Request().Context(), kind)
	if err != nil {
		return errors.Wrapf(err, "reloading %q", kind)
	}
	if st.Status == dashboard.StatusFailed {
		api.metrics.resourceFailures.WithLabelValues(string(kind)).Inc()
		if core.IsUnauthorized(st.Err()) {
			return core.ErrUnauthorized
		}
	}
	return ctx.JSON(http.StatusOK, st)
}
