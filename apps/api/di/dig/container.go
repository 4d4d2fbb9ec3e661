package dig_container

import (
	"context"
	"fmt"
	"io"
	"log"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/trackmyacademy/dashboard/apps/api/echo"
	"github.com/trackmyacademy/dashboard/core"
	"github.com/trackmyacademy/dashboard/core/academy"
	"github.com/trackmyacademy/dashboard/core/user"
	backendsvc "github.com/trackmyacademy/dashboard/services/backend"
	emailsvc "github.com/trackmyacademy/dashboard/services/email"
	identitysvc "github.com/trackmyacademy/dashboard/services/identity"
	inmemidentity "github.com/trackmyacademy/dashboard/services/identity/inmem"
	logsvc "github.com/trackmyacademy/dashboard/services/logger"
	"github.com/trackmyacademy/dashboard/storage/database"
	inmemdb "github.com/trackmyacademy/dashboard/storage/database/inmem"
	sqlxrepos "github.com/trackmyacademy/dashboard/storage/database/sqlx"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

// SessionStore is the session repository along with whatever must be closed on shutdown.
type SessionStore struct {
	dig.Out
	Sessions user.SessionRepository
	Closer   io.Closer `name:"sessionStoreCloser"`
}

type DepsParam struct {
	dig.In
	UserSvc  *user.Service
	Backend  echoapi.Backend
	Notifier *academy.Notifier
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func newLogger(conf *core.Config) core.Logger {
	return logsvc.NewRollbarLogger(logsvc.NewStdLogger("API : "), conf)
}

func newDBLogger(conf *core.Config) core.Logger {
	return logsvc.NewRollbarLogger(logsvc.NewStdLogger("DB : "), conf)
}

func newSessionStore(conf *core.Config, loggerParam DBLoggerParam) SessionStore {
	if conf.Database.Engine == database.EngineInMem {
		return SessionStore{Sessions: inmemdb.NewSessionRepository(inmemdb.Open()), Closer: nopCloser{}}
	}

	setUp := func() (io.Closer, user.SessionRepository, error) {
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, nil, err
		}

		db, err := database.Open(conf)
		if err != nil {
			return nil, nil, err
		}

		if err = database.Migrate(context.Background(), db); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return db, sqlxrepos.NewSessionRepository(db), nil
	}

	db, sessions, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return SessionStore{Sessions: sessions, Closer: db}
}

func newIdentity(conf *core.Config, mailSvc core.EmailService, logger core.Logger) user.Identity {
	if conf.Identity.Provider == "inmem" {
		return inmemidentity.NewProvider(conf, mailSvc, logger)
	}
	return identitysvc.NewGoTrue(conf)
}

func newBackend(conf *core.Config) (echoapi.Backend, user.Directory, academy.Lister) {
	client := backendsvc.NewClient(conf)
	return client, client, client
}

func newValidator(translator ut.Translator) *validator.Validate {
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	academy.InitValidators(validate, translator)
	return validate
}

func newDeps(p DepsParam) echoapi.Deps {
	return echoapi.Deps{UserSvc: p.UserSvc, Backend: p.Backend, Notifier: p.Notifier}
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newSessionStore))
	must(c.Provide(emailsvc.NewService))
	must(c.Provide(newIdentity))
	must(c.Provide(newBackend))
	must(c.Provide(core.NewTranslator))
	must(c.Provide(newValidator))
	must(c.Provide(user.NewService))
	must(c.Provide(academy.NewNotifier))
	must(c.Provide(newDeps))
	must(c.Provide(echoapi.NewServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
