package main

import (
	"context"

	"github.com/trackmyacademy/dashboard/core/user"
)

// resetPassword asks the identity provider to email a recovery link to `email`.
// The output is the same whether or not the account exists.
func (cli *commandLine) resetPassword(ctx context.Context, email string) error {
	if err := cli.store.RequestPasswordReset(ctx, user.PasswordResetRequest{Email: email}); err != nil {
		return err
	}
	cli.printf("If %s is associated with an account, a password reset email is on its way.\n", email)
	return nil
}
