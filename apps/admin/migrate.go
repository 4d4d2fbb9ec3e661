package main

import (
	"context"
	"log"

	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"

	"github.com/trackmyacademy/dashboard/storage/database"
)

var (
	createDBFunc = database.CreateIfNotExist // mockable
	gooseRunFunc = database.Run              // mockable
)

// migrate runs a goose command against the sessions database, creating it and its app user first.
func (cli *commandLine) migrate(ctx context.Context, args []string) error {
	if len(args) == 0 {
		cli.printUsage()
		return errHelp
	}
	if cli.conf.Database.Engine == database.EngineInMem {
		cli.printf("Nothing to migrate: the %q engine keeps sessions in memory\n", database.EngineInMem)
		return nil
	}

	if err := createDBFunc(cli.conf); err != nil {
		return errors.Wrap(err, "creating database")
	}
	db, err := database.Open(cli.conf)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	goose.SetLogger(log.New(cli.out, "", 0))
	return gooseRunFunc(ctx, db, args[0], args[1:]...)
}
