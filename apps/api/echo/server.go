package echoapi

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/trackmyacademy/dashboard/core"
	"github.com/trackmyacademy/dashboard/core/academy"
	"github.com/trackmyacademy/dashboard/core/dashboard"
	"github.com/trackmyacademy/dashboard/core/user"
)

type (
	// Backend is the academy backend as used by the API handlers.
	Backend interface {
		dashboard.Backend

		GetAcademy(ctx context.Context, token, id string) (academy.Academy, error)
		CreateAcademy(ctx context.Context, token string, na academy.NewAcademy) (academy.Academy, error)
		UpdateAcademy(ctx context.Context, token, id string, ua academy.UpdateAcademy) (academy.Academy, error)
		DeleteAcademy(ctx context.Context, token, id string) error
		UploadLogo(ctx context.Context, token, filename string, file io.Reader) (string, error)
		CreateCoach(ctx context.Context, token string, nc academy.NewCoach) (academy.Coach, error)
		CreateStudent(ctx context.Context, token string, ns academy.NewStudent) (academy.Student, error)
		GetSession(ctx context.Context, token, id string) (academy.Session, error)
		CreateSession(ctx context.Context, token string, ns academy.NewSession) (academy.Session, error)
		UpdateSession(ctx context.Context, token, id string, us academy.UpdateSession) (academy.Session, error)
		RecordAttendance(ctx context.Context, token string, na academy.NewAttendance) (academy.AttendanceRecord, error)
		ListSessionAttendance(ctx context.Context, token, sessionID string) ([]academy.AttendanceRecord, error)
		RecordPerformance(ctx context.Context, token string, np academy.NewPerformance) (academy.PerformanceRecord, error)
		ListStudentPerformance(ctx context.Context, token, studentID string) ([]academy.PerformanceRecord, error)
	}

	Deps struct {
		UserSvc  *user.Service
		Backend  Backend
		Notifier *academy.Notifier
	}

	Server struct {
		conf       *core.Config
		logger     core.Logger
		deps       Deps
		validate   *validator.Validate
		translator ut.Translator
		app        *echo.Echo
		guard      *dashboard.Guard
		metrics    *metrics
		shutdown   chan os.Signal
		errors     chan error
	}
)

func NewServer(
	conf *core.Config,
	logger core.Logger,
	validate *validator.Validate,
	translator ut.Translator,
	deps Deps,
) *Server {
	s := &Server{
		conf:       conf,
		logger:     logger,
		deps:       deps,
		validate:   validate,
		translator: translator,
		app:        echo.New(),
		guard:      dashboard.NewGuard(),
		metrics:    newMetrics(),
		shutdown:   make(chan os.Signal, 1),
		errors:     make(chan error, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *Server) setup() {
	debug := s.conf.Debug

	s.app.HideBanner = true
	s.app.Logger.SetLevel(log.INFO)
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.conf.Server.DisableRequestLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(debug || s.conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(s.metrics.middleware)

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.logger, s.translator, s.deps.UserSvc, s.SignalShutdown)
	s.app.Debug = debug

	s.app.GET("/", s.home)
	s.app.GET("/healthz", healthz)
	s.app.GET("/metrics", echo.WrapHandler(s.metrics.handler()))

	v1 := s.app.Group("/v1")
	auth := sessionMiddleware(s.deps.UserSvc)
	guard := guardMiddleware(s.guard)

	registerAuthAPI(v1, auth, s.deps.UserSvc)
	registerDashboardAPI(v1, auth, s.deps.Backend, s.metrics)
	registerAcademyAPI(v1, auth, guard, s.deps.Backend, s.deps.Notifier, s.validate)
}

// Start listens on the configured address; any error other than a shutdown is sent on Errors.
func (s *Server) Start() {
	if err := s.app.Start(s.conf.Server.Address); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error {
	return s.errors
}

func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

// SignalShutdown asks the main goroutine to shut the server down.
func (s *Server) SignalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default: // already signaled
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	signal.Stop(s.shutdown)
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *Server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.conf.AppName+" API!")
}

func healthz(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, echo.Map{"status": "ok"})
}
