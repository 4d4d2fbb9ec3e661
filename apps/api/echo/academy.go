package echoapi

import (
	"net/http"
	"net/mail"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trackmyacademy/dashboard/core"
	"github.com/trackmyacademy/dashboard/core/academy"
	"github.com/trackmyacademy/dashboard/core/user"
)

type academyApi struct {
	backend  Backend
	notifier *academy.Notifier
	validate *validator.Validate
}

func registerAcademyAPI(
	g *echo.Group,
	auth, guard echo.MiddlewareFunc,
	backend Backend,
	notifier *academy.Notifier,
	validate *validator.Validate,
) {
	api := academyApi{backend: backend, notifier: notifier, validate: validate}

	// super-admin
	sg := g.Group("/super-admin/academies", auth, roleMiddleware(user.RoleSuperAdmin))
	sg.GET("", api.queryAcademies)
	sg.POST("", api.createAcademy, guard)
	sg.POST("/logo", api.uploadLogo, guard)
	sg.POST("/notify-expiring", api.notifyExpiring, guard)
	sg.GET("/:id", api.retrieveAcademy)
	sg.PUT("/:id", api.updateAcademy, guard)
	sg.DELETE("/:id", api.destroyAcademy)

	admin := roleMiddleware(user.RoleAdmin)
	staff := roleMiddleware(user.RoleAdmin, user.RoleCoach)

	// admin
	g.GET("/academies", api.queryTenantAcademies, auth, admin)
	g.GET("/coaches", api.queryCoaches, auth, admin)
	g.POST("/coaches", api.createCoach, auth, admin, guard)
	g.GET("/students", api.queryStudents, auth, staff)
	g.POST("/students", api.createStudent, auth, admin, guard)
	g.GET("/sessions", api.querySessions, auth, staff)
	g.POST("/sessions", api.createSession, auth, admin, guard)
	g.GET("/sessions/:id", api.retrieveSession, auth, staff)
	g.PUT("/sessions/:id", api.updateSession, auth, admin, guard)

	// coach
	g.POST("/attendance", api.recordAttendance, auth, staff, guard)
	g.GET("/sessions/:id/attendance", api.querySessionAttendance, auth, staff)
	g.POST("/performance", api.recordPerformance, auth, staff, guard)

	// student detail endpoints
	dg := g.Group("/students/:id", auth, roleMiddleware(user.RoleAdmin, user.RoleCoach, user.RoleStudent), selfOrStaffMiddleware)
	dg.GET("/performance", api.queryStudentPerformance)
	dg.GET("/analytics/attendance", api.attendanceAnalytics)
	dg.GET("/analytics/performance", api.performanceAnalytics)
}

// selfOrStaffMiddleware only lets students read their own records.
func selfOrStaffMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		sess, err := getContextSession(ctx)
		if err != nil {
			return errors.Wrap(err, "getting context session")
		}
		if sess.User.IsStudent() && ctx.Param("id") != sess.User.ID {
			return errHttpForbidden
		}
		return next(ctx)
	}
}

// sessionToken returns the identity token of the signed-in user.
func sessionToken(ctx echo.Context) (string, user.User, error) {
	sess, err := getContextSession(ctx)
	if err != nil {
		return "", user.User{}, errors.Wrap(err, "getting context session")
	}
	return sess.AccessToken, sess.User, nil
}

// Academies

func (api *academyApi) queryAcademies(ctx echo.Context) error {
	token, _, err := sessionToken(ctx)
	if err != nil {
		return err
	}
	academies, err := api.backend.ListAcademies(ctx.Request().Context(), token)
	if err != nil {
		return errors.Wrap(err, "listing academies")
	}
	return ctx.JSON(http.StatusOK, academy.Table(academies, bindTableQuery(ctx), academy.NowFunc()))
}

func (api *academyApi) retrieveAcademy(ctx echo.Context) error {
	token, _, err := sessionToken(ctx)
	if err != nil {
		return err
	}
	a, err := api.backend.GetAcademy(ctx.Request().Context(), token, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting academy")
	}
	sub, _ := a.Subscription(academy.NowFunc()) // ErrMissingExpiryDate -> StatusUnknown
	return ctx.JSON(http.StatusOK, academy.Row{Academy: a, Subscription: sub})
}

func (api *academyApi) createAcademy(ctx echo.Context) error {
	token, _, err := sessionToken(ctx)
	if err != nil {
		return err
	}

	var data academy.NewAcademy
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAcademy")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	a, err := api.backend.CreateAcademy(ctx.Request().Context(), token, data)
	if err != nil {
		return errors.Wrap(err, "creating academy")
	}
	return ctx.JSON(http.StatusCreated, a)
}

func (api *academyApi) updateAcademy(ctx echo.Context) error {
	token, _, err := sessionToken(ctx)
	if err != nil {
		return err
	}

	var data academy.UpdateAcademy
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateAcademy")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	a, err := api.backend.UpdateAcademy(ctx.Request().Context(), token, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating academy")
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *academyApi) destroyAcademy(ctx echo.Context) error {
	token, _, err := sessionToken(ctx)
	if err != nil {
		return err
	}
	if err = api.backend.DeleteAcademy(ctx.Request().Context(), token, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting academy")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *academyApi) uploadLogo(ctx echo.Context) error {
	token, _, err := sessionToken(ctx)
	if err != nil {
		return err
	}

	fh, err := ctx.FormFile("file")
	if err != nil {
		return core.NewValidationError(nil, core.FieldError{Field: "file", Error: "this field is required"})
	}
	file, err := fh.Open()
	if err != nil {
		return errors.Wrap(err, "opening uploaded file")
	}
	defer file.Close()

	url, err := api.backend.UploadLogo(ctx.Request().Context(), token, fh.Filename, file)
	if err != nil {
		return errors.Wrap(err, "uploading logo")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"url": url})
}

func (api *academyApi) notifyExpiring(ctx echo.Context) error {
	token, usr, err := sessionToken(ctx)
	if err != nil {
		return err
	}
	requester := mail.Address{Name: usr.Name, Address: usr.Email}
	report, err := api.notifier.Notify(ctx.Request().Context(), token, requester)
	if err != nil {
		return errors.Wrap(err, "notifying expiring academies")
	}
	return ctx.JSON(http.StatusOK, report)
}

func (api *academyApi) queryTenantAcademies(ctx echo.Context) error {
	token, _, err := sessionToken(ctx)
	if err != nil {
		return err
	}
	academies, err := api.backend.ListTenantAcademies(ctx.Request().Context(), token)
	if err != nil {
		return errors.Wrap(err, "listing tenant academies")
	}
	return ctx.JSON(http.StatusOK, academy.Table(academies, bindTableQuery(ctx), academy.NowFunc()))
}

// Coaches & students

func (api *academyApi) queryCoaches(ctx echo.Context) error {
	token, _, err := sessionToken(ctx)
	if err != nil {
		return err
	}
	coaches, err := api.backend.ListCoaches(ctx.Request().Context(), token)
	if err != nil {
		return errors.Wrap(err, "listing coaches")
	}
	return ctx.JSON(http.StatusOK, coaches)
}

func (api *academyApi) createCoach(ctx echo.Context) error {
	token, usr, err := sessionToken(ctx)
	if err != nil {
		return err
	}

	var data academy.NewCoach
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCoach")
	}
	data.AcademyID = usr.AcademyID
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	coach, err := api.backend.CreateCoach(ctx.Request().Context(), token, data)
	if err != nil {
		return errors.Wrap(err, "creating coach")
	}
	return ctx.JSON(http.StatusCreated, coach)
}

func (api *academyApi) queryStudents(ctx echo.Context) error {
	token, _, err := sessionToken(ctx)
	if err != nil {
		return err
	}
	students, err := api.backend.ListStudents(ctx.Request().Context(), token)
	if err != nil {
		return errors.Wrap(err, "listing students")
	}
	return ctx.JSON(http.StatusOK, students)
}

func (api *academyApi) createStudent(ctx echo.Context) error {
	token, usr, err := sessionToken(ctx)
	if err != nil {
		return err
	}

	var data academy.NewStudent
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStudent")
	}
	data.AcademyID = usr.AcademyID
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	student, err := api.backend.CreateStudent(ctx.Request().Context(), token, data)
	if err != nil {
		return errors.Wrap(err, "creating student")
	}
	return ctx.JSON(http.StatusCreated, student)
}

// Sessions

func (api *academyApi) querySessions(ctx echo.Context) error {
	token, usr, err := sessionToken(ctx)
	if err != nil {
		return err
	}
	sessions, err := api.backend.ListSessions(ctx.Request().Context(), token)
	if err != nil {
		return errors.Wrap(err, "listing sessions")
	}
	if usr.IsCoach() {
		own := make([]academy.Session, 0, len(sessions))
		for _, s := range sessions {
			if s.HasCoach(usr.ID) {
				own = append(own, s)
			}
		}
		sessions = own
	}
	return ctx.JSON(http.StatusOK, sessions)
}

// visibleSession gets Session `id`, which coaches only see if they run it.
func (api *academyApi) visibleSession(ctx echo.Context, token string, usr user.User, id string) (academy.Session, error) {
	s, err := api.backend.GetSession(ctx.Request().Context(), token, id)
	if err != nil {
		return academy.Session{}, errors.Wrap(err, "getting session")
	}
	if usr.IsCoach() && !s.HasCoach(usr.ID) {
		return academy.Session{}, errHttpNotFound
	}
	return s, nil
}

func (api *academyApi) retrieveSession(ctx echo.Context) error {
	token, usr, err := sessionToken(ctx)
	if err != nil {
		return err
	}
	s, err := api.visibleSession(ctx, token, usr, ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *academyApi) createSession(ctx echo.Context) error {
	token, usr, err := sessionToken(ctx)
	if err != nil {
		return err
	}

	var data academy.NewSession
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSession")
	}
	data.AcademyID = usr.AcademyID
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	s, err := api.backend.CreateSession(ctx.Request().Context(), token, data)
	if err != nil {
		return errors.Wrap(err, "creating session")
	}
	return ctx.JSON(http.StatusCreated, s)
}

func (api *academyApi) updateSession(ctx echo.Context) error {
	token, _, err := sessionToken(ctx)
	if err != nil {
		return err
	}

	var data academy.UpdateSession
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateSession")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	s, err := api.backend.UpdateSession(ctx.Request().Context(), token, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating session")
	}
	return ctx.JSON(http.StatusOK, s)
}

// Attendance & performance

func (api *academyApi) recordAttendance(ctx echo.Context) error {
	token, usr, err := sessionToken(ctx)
	if err != nil {
		return err
	}

	var data academy.NewAttendance
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAttendance")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}
	if usr.IsCoach() {
		if _, err = api.visibleSession(ctx, token, usr, data.SessionID); err != nil {
			return err
		}
	}

	rec, err := api.backend.RecordAttendance(ctx.Request().Context(), token, data)
	if err != nil {
		return errors.Wrap(err, "recording attendance")
	}
	return ctx.JSON(http.StatusCreated, rec)
}

func (api *academyApi) querySessionAttendance(ctx echo.Context) error {
	token, usr, err := sessionToken(ctx)
	if err != nil {
		return err
	}
	if usr.IsCoach() {
		if _, err = api.visibleSession(ctx, token, usr, ctx.Param("id")); err != nil {
			return err
		}
	}
	records, err := api.backend.ListSessionAttendance(ctx.Request().Context(), token, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "listing session attendance")
	}
	return ctx.JSON(http.StatusOK, records)
}

func (api *academyApi) recordPerformance(ctx echo.Context) error {
	token, usr, err := sessionToken(ctx)
	if err != nil {
		return err
	}

	var data academy.NewPerformance
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewPerformance")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}
	// scores outside a session are not tied to a coach
	if usr.IsCoach() && data.SessionID != "" {
		if _, err = api.visibleSession(ctx, token, usr, data.SessionID); err != nil {
			return err
		}
	}

	rec, err := api.backend.RecordPerformance(ctx.Request().Context(), token, data)
	if err != nil {
		return errors.Wrap(err, "recording performance")
	}
	return ctx.JSON(http.StatusCreated, rec)
}

func (api *academyApi) queryStudentPerformance(ctx echo.Context) error {
	token, _, err := sessionToken(ctx)
	if err != nil {
		return err
	}
	records, err := api.backend.ListStudentPerformance(ctx.Request().Context(), token, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "listing student performance")
	}
	return ctx.JSON(http.StatusOK, records)
}

func (api *academyApi) attendanceAnalytics(ctx echo.Context) error {
	token, _, err := sessionToken(ctx)
	if err != nil {
		return err
	}
	stats, err := api.backend.AttendanceAnalytics(ctx.Request().Context(), token, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting attendance analytics")
	}
	return ctx.JSON(http.StatusOK, stats)
}

func (api *academyApi) performanceAnalytics(ctx echo.Context) error {
	token, _, err := sessionToken(ctx)
	if err != nil {
		return err
	}
	stats, err := api.backend.PerformanceAnalytics(ctx.Request().Context(), token, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting performance analytics")
	}
	return ctx.JSON(http.StatusOK, stats)
}
