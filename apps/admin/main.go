package main

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/trackmyacademy/dashboard/core"
	"github.com/trackmyacademy/dashboard/core/academy"
	"github.com/trackmyacademy/dashboard/core/user"
	backendsvc "github.com/trackmyacademy/dashboard/services/backend"
	emailsvc "github.com/trackmyacademy/dashboard/services/email"
	identitysvc "github.com/trackmyacademy/dashboard/services/identity"
	inmemidentity "github.com/trackmyacademy/dashboard/services/identity/inmem"
	logsvc "github.com/trackmyacademy/dashboard/services/logger"
	filestore "github.com/trackmyacademy/dashboard/storage/file"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(logsvc.NewStdLogger("ADMIN : "), conf)

	core.ParseEmailTemplates(conf, logger)
	user.LoadCommonPasswords(conf, logger)

	translator := core.NewTranslator()
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	academy.InitValidators(validate, translator)

	mailSvc := emailsvc.NewService(conf, logger)
	client := backendsvc.NewClient(conf)

	var idp user.Identity = identitysvc.NewGoTrue(conf)
	if conf.Identity.Provider == "inmem" {
		idp = inmemidentity.NewProvider(conf, mailSvc, logger)
	}

	// start CLI
	cli := commandLine{
		conf:       conf,
		store:      user.NewStore(filestore.NewTokenStore(conf.CLI.TokenFile), idp, client, validate),
		academies:  client,
		notifier:   academy.NewNotifier(client, mailSvc, logger),
		translator: translator,
		out:        os.Stdout,
	}

	err := cli.run(os.Args)
	if w, ok := mailSvc.(interface{ Wait() }); ok {
		w.Wait() // emails are sent in the background
	}
	if err != nil {
		if err != errHelp {
			_, _ = fmt.Fprintf(os.Stderr, "\nerror: %s\n", cli.describeError(err))
		}
		os.Exit(1)
	}
}
