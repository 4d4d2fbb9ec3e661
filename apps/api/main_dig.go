package main

import (
	"context"
	"expvar"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"go.uber.org/dig"

	dig_container "github.com/trackmyacademy/dashboard/apps/api/di/dig"
	echoapi "github.com/trackmyacademy/dashboard/apps/api/echo"
	"github.com/trackmyacademy/dashboard/core"
	"github.com/trackmyacademy/dashboard/core/user"
)

type startParams struct {
	dig.In

	Conf          *core.Config
	APILogger     core.Logger
	DBLogger      core.Logger `name:"dbLogger"`
	SessionCloser io.Closer   `name:"sessionStoreCloser"`
	MailSvc       core.EmailService
	UserSvc       *user.Service
	Server        *echoapi.Server
}

func startWithDig() {
	c := dig_container.New()

	must(c.Invoke(func(p startParams) {
		conf, apiLogger := p.Conf, p.APILogger

		// =========================================================================
		// Initialize App

		apiLogger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))

		core.ParseEmailTemplates(conf, apiLogger)

		user.LoadCommonPasswords(conf, apiLogger)

		defer func() {
			if err := p.SessionCloser.Close(); err != nil {
				p.DBLogger.Error("Failed to close", err)
			}
		}()
		defer apiLogger.Info("Application stopped")
		defer func() {
			if w, ok := p.MailSvc.(interface{ Wait() }); ok {
				w.Wait() // let queued emails go out
			}
		}()

		// =========================================================================
		// Start Debug Service
		//
		// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
		// /debug/vars - Added to the default mux by importing the expvar package.

		// Expose important info under /debug/vars.
		expvar.NewString("build").Set(conf.Build)
		expvar.NewString("env").Set(conf.Env)

		go func() {
			if err := http.ListenAndServe(conf.Server.DebugAddress, http.DefaultServeMux); err != nil {
				apiLogger.Error(fmt.Sprintf("debug server closed: %v", err), err)
			}
		}()

		// =========================================================================
		// Purge expired sessions

		purgeCtx, stopPurge := context.WithCancel(context.Background())
		defer stopPurge()
		go purgeSessions(purgeCtx, p.UserSvc, conf.Server.SessionPurgeInterval, p.DBLogger)

		// =========================================================================
		// Start API Service

		server := p.Server
		go func() {
			server.Start()
		}()

		// =========================================================================
		// Shutdown

		select {
		case err := <-server.Errors():
			apiLogger.Fatal(fmt.Sprintf("server error: %v", err), err)

		case sig := <-server.ShutdownSignal():
			apiLogger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

			// give outstanding requests a deadline for completion
			ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
			defer cancel()

			// asking listener to shut down and shed load
			if err := server.Shutdown(ctx); err != nil {
				apiLogger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

				if err = server.Close(); err != nil {
					apiLogger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
				}
			}
		}
	}))
}

// purgeSessions deletes expired sessions every `interval` until ctx is done.
func purgeSessions(ctx context.Context, svc *user.Service, interval time.Duration, logger core.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := svc.PurgeExpired(ctx)
			if err != nil {
				logger.Error(fmt.Sprintf("purging expired sessions: %v", err), err)
				continue
			}
			if n > 0 {
				logger.Info(fmt.Sprintf("purged %d expired session(s)", n))
			}
		}
	}
}

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
