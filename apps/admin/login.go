package main

import (
	"context"

	"github.com/trackmyacademy/dashboard/core"
	"github.com/trackmyacademy/dashboard/core/user"
)

func (cli *commandLine) login(ctx context.Context, email, pwd string) error {
	usr, err := cli.store.SignIn(ctx, user.Credentials{Email: email, Password: pwd})
	if err != nil {
		return err
	}
	cli.printf("Signed in as %s <%s> (%s)\n", usr.Name, usr.Email, usr.Role)
	return nil
}

func (cli *commandLine) logout(ctx context.Context) error {
	if !cli.store.Authenticated() {
		cli.printf("Not signed in\n")
		return nil
	}
	if err := cli.store.SignOut(ctx); err != nil {
		return err
	}
	cli.printf("Signed out\n")
	return nil
}

func (cli *commandLine) whoami() error {
	st := cli.store.State()
	if st.Token == "" {
		return core.ErrUnauthorized
	}
	usr := st.User
	cli.printf("%s <%s>\nrole: %s\n", usr.Name, usr.Email, usr.Role)
	if usr.AcademyID != "" {
		cli.printf("academy: %s\n", usr.AcademyID)
	}
	return nil
}
